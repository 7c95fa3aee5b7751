package models

import (
	"time"

	"github.com/google/uuid"

	"github.com/angelmondragon/coachcredits-backend/pkg/enums"
)

// Notification is an in-app message for one user. ReadAt is nil until the
// user opens it.
type Notification struct {
	ID        uuid.UUID              `gorm:"type:uuid;primaryKey" json:"id"`
	UserID    uuid.UUID              `gorm:"type:uuid;not null" json:"user_id"`
	Type      enums.NotificationType `gorm:"type:notification_type;not null" json:"type"`
	Title     string                 `gorm:"not null" json:"title"`
	Message   string                 `gorm:"not null" json:"message"`
	Link      *string                `json:"link,omitempty"`
	ReadAt    *time.Time             `gorm:"type:timestamptz" json:"read_at,omitempty"`
	CreatedAt time.Time              `gorm:"type:timestamptz;not null" json:"created_at"`
}

// IsRead reports whether the user has opened n.
func (n Notification) IsRead() bool { return n.ReadAt != nil }
