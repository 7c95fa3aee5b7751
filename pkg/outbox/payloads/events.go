package payloads

import (
	"time"

	"github.com/google/uuid"

	"github.com/angelmondragon/coachcredits-backend/pkg/enums"
)

// CreditsPurchasedEvent is emitted once a paid order has been credited.
type CreditsPurchasedEvent struct {
	UserID          uuid.UUID `json:"user_id"`
	OrderID         uuid.UUID `json:"order_id"`
	ExternalOrderID string    `json:"external_order_id"`
	Credits         int64     `json:"credits"`
	BalanceAfter    int64     `json:"balance_after"`
}

// CreditsRefundedEvent is emitted when a refund reverses purchased credits.
type CreditsRefundedEvent struct {
	UserID          uuid.UUID `json:"user_id"`
	OrderID         uuid.UUID `json:"order_id"`
	ExternalOrderID string    `json:"external_order_id"`
	CreditsDeducted int64     `json:"credits_deducted"`
	BalanceAfter    int64     `json:"balance_after"`
}

// TrialGrantedEvent is emitted when a new user receives trial credits.
type TrialGrantedEvent struct {
	UserID       uuid.UUID `json:"user_id"`
	Credits      int64     `json:"credits"`
	BalanceAfter int64     `json:"balance_after"`
}

// ReferralRewardedEvent is emitted when a referral pays out.
type ReferralRewardedEvent struct {
	ReferralID     string           `json:"referral_id"`
	ReferrerUserID uuid.UUID        `json:"referrer_user_id"`
	RewardType     enums.RewardType `json:"reward_type"`
	Credits        int64            `json:"credits,omitempty"`
	PremiumUntil   *time.Time       `json:"premium_until,omitempty"`
}

// NotificationRequestedEvent tells downstream delivery (push, email) to alert a user.
type NotificationRequestedEvent struct {
	NotificationID uuid.UUID              `json:"notification_id"`
	UserID         uuid.UUID              `json:"user_id"`
	Type           enums.NotificationType `json:"type"`
	Title          string                 `json:"title"`
	Message        string                 `json:"message"`
}
