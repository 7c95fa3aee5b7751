package models

import (
	"time"

	"github.com/google/uuid"
)

// UserCreditAccount holds the spendable credit balance for a single user.
// Rows are created lazily by the credits service and never deleted.
type UserCreditAccount struct {
	UserID            uuid.UUID `gorm:"column:user_id;type:uuid;primaryKey"`
	Balance           int64     `gorm:"column:balance;not null;default:0"`
	LifetimePurchased int64     `gorm:"column:lifetime_purchased;not null;default:0"`
	LifetimeUsed      int64     `gorm:"column:lifetime_used;not null;default:0"`
	CreatedAt         time.Time `gorm:"column:created_at;autoCreateTime"`
	UpdatedAt         time.Time `gorm:"column:updated_at;autoUpdateTime"`
}

func (UserCreditAccount) TableName() string { return "user_credit_accounts" }
