package models

import (
	"time"

	"github.com/google/uuid"

	"github.com/angelmondragon/coachcredits-backend/pkg/enums"
)

// ReferralReward marks a referral as paid out. ReferralID is the idempotency key.
type ReferralReward struct {
	ReferralID     string           `gorm:"column:referral_id;primaryKey"`
	ReferrerUserID uuid.UUID        `gorm:"column:referrer_user_id;type:uuid;not null;index"`
	RewardType     enums.RewardType `gorm:"column:reward_type;type:reward_type;not null"`
	Credits        int64            `gorm:"column:credits;not null;default:0"`
	PremiumDays    int              `gorm:"column:premium_days;not null;default:0"`
	GrantedAt      time.Time        `gorm:"column:granted_at;not null"`
}

func (ReferralReward) TableName() string { return "referral_rewards" }
