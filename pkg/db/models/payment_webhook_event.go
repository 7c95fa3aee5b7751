package models

import (
	"encoding/json"
	"time"

	"github.com/google/uuid"

	"github.com/angelmondragon/coachcredits-backend/pkg/enums"
)

// PaymentWebhookEvent is the audit trail of verified webhook deliveries.
type PaymentWebhookEvent struct {
	ID              uuid.UUID            `gorm:"column:id;type:uuid;default:gen_random_uuid();primaryKey"`
	Provider        string               `gorm:"column:provider;not null"`
	EventName       string               `gorm:"column:event_name;not null"`
	ExternalOrderID *string              `gorm:"column:external_order_id"`
	Outcome         enums.WebhookOutcome `gorm:"column:outcome;not null"`
	Error           *string              `gorm:"column:error"`
	RawPayload      json.RawMessage      `gorm:"column:raw_payload;type:jsonb;not null"`
	ReceivedAt      time.Time            `gorm:"column:received_at;not null"`
}

func (PaymentWebhookEvent) TableName() string { return "payment_webhook_events" }
