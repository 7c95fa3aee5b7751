package models

import (
	"time"

	"github.com/google/uuid"
)

// User is the subset of the identity record the credit ledger reads.
// Accounts are provisioned by the wider platform; this service never inserts users.
type User struct {
	ID           uuid.UUID  `gorm:"type:uuid;default:gen_random_uuid();primaryKey"`
	Email        string     `gorm:"type:text;not null;uniqueIndex"`
	DisplayName  string     `gorm:"column:display_name;not null;default:''"`
	Role         string     `gorm:"column:role;not null;default:'coach'"`
	IsUnlimited  bool       `gorm:"column:is_unlimited;not null;default:false"`
	PremiumUntil *time.Time `gorm:"column:premium_until"`
	CreatedAt    time.Time  `gorm:"column:created_at;autoCreateTime"`
	UpdatedAt    time.Time  `gorm:"column:updated_at;autoUpdateTime"`
}
