package payments

import (
	"encoding/json"
	"strings"

	"github.com/go-playground/validator/v10"
	"github.com/google/uuid"

	pkgerrors "github.com/angelmondragon/coachcredits-backend/pkg/errors"
)

const (
	EventOrderCreated  = "order_created"
	EventOrderRefunded = "order_refunded"
)

// WebhookEvent is the provider's order webhook envelope.
type WebhookEvent struct {
	Meta EventMeta `json:"meta"`
	Data EventData `json:"data"`
}

type EventMeta struct {
	EventName  string         `json:"event_name" validate:"required"`
	CustomData map[string]any `json:"custom_data"`
}

type EventData struct {
	ID         FlexibleID      `json:"id" validate:"required"`
	Attributes OrderAttributes `json:"attributes"`
}

type OrderAttributes struct {
	Status         string     `json:"status"`
	Currency       string     `json:"currency"`
	Total          int64      `json:"total" validate:"gte=0"`
	UserEmail      string     `json:"user_email"`
	FirstOrderItem *OrderItem `json:"first_order_item"`
}

type OrderItem struct {
	VariantID FlexibleID `json:"variant_id" validate:"required"`
	ProductID FlexibleID `json:"product_id"`
}

// FlexibleID accepts ids sent either as JSON strings or numbers.
type FlexibleID string

func (f *FlexibleID) UnmarshalJSON(data []byte) error {
	if string(data) == "null" {
		*f = ""
		return nil
	}
	var text string
	if err := json.Unmarshal(data, &text); err == nil {
		*f = FlexibleID(strings.TrimSpace(text))
		return nil
	}
	var number json.Number
	if err := json.Unmarshal(data, &number); err != nil {
		return err
	}
	*f = FlexibleID(number.String())
	return nil
}

func (f FlexibleID) String() string {
	return string(f)
}

var eventValidator = validator.New()

// ParseEvent decodes and validates a webhook body. Call only after the
// signature was verified.
func ParseEvent(payload []byte) (*WebhookEvent, error) {
	var event WebhookEvent
	if err := json.Unmarshal(payload, &event); err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeValidation, err, "decode webhook payload")
	}
	if err := eventValidator.Struct(event); err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeValidation, err, "invalid webhook payload")
	}
	event.Meta.EventName = strings.ToLower(strings.TrimSpace(event.Meta.EventName))
	return &event, nil
}

// ExternalOrderID is the provider's order id, the idempotency key.
func (e *WebhookEvent) ExternalOrderID() string {
	return strings.TrimSpace(e.Data.ID.String())
}

// VariantID returns the purchased variant, or "" when the payload has no line item.
func (e *WebhookEvent) VariantID() string {
	if e.Data.Attributes.FirstOrderItem == nil {
		return ""
	}
	return strings.TrimSpace(e.Data.Attributes.FirstOrderItem.VariantID.String())
}

func (e *WebhookEvent) ProductID() *string {
	item := e.Data.Attributes.FirstOrderItem
	if item == nil || item.ProductID == "" {
		return nil
	}
	id := item.ProductID.String()
	return &id
}

// BuyerID reads the internal user id passed through the checkout metadata. The
// buyer's email is never used to guess an account.
func (e *WebhookEvent) BuyerID() (uuid.UUID, error) {
	raw, _ := e.Meta.CustomData["user_id"].(string)
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return uuid.Nil, pkgerrors.New(pkgerrors.CodeUnknownUser, "order metadata has no user id")
	}
	id, err := uuid.Parse(raw)
	if err != nil {
		return uuid.Nil, pkgerrors.Wrap(pkgerrors.CodeUnknownUser, err, "order metadata user id is not a uuid")
	}
	return id, nil
}
