package models

import (
	"encoding/json"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/angelmondragon/coachcredits-backend/pkg/enums"
)

// PaymentOrder records an order confirmed by the payment provider.
type PaymentOrder struct {
	ID              uuid.UUID                `gorm:"column:id;type:uuid;default:gen_random_uuid();primaryKey"`
	ExternalOrderID string                   `gorm:"column:external_order_id;not null;uniqueIndex:ux_payment_orders_external_order_id"`
	UserID          uuid.UUID                `gorm:"column:user_id;type:uuid;not null;index"`
	VariantID       string                   `gorm:"column:variant_id;not null"`
	ProductID       *string                  `gorm:"column:product_id"`
	CreditsAmount   int64                    `gorm:"column:credits_amount;not null"`
	AmountPaid      decimal.Decimal          `gorm:"column:amount_paid;type:numeric(12,2);not null"`
	Currency        string                   `gorm:"column:currency;not null"`
	Status          enums.PaymentOrderStatus `gorm:"column:status;type:payment_order_status;not null"`
	RawPayload      json.RawMessage          `gorm:"column:raw_payload;type:jsonb;not null"`
	ReceivedAt      time.Time                `gorm:"column:received_at;not null"`
	RefundedAt      *time.Time               `gorm:"column:refunded_at"`
	CreatedAt       time.Time                `gorm:"column:created_at;autoCreateTime"`
	UpdatedAt       time.Time                `gorm:"column:updated_at;autoUpdateTime"`
}

func (PaymentOrder) TableName() string { return "payment_orders" }
