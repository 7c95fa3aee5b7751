package enums

// PaymentOrderStatus is the lifecycle of a credited provider order.
type PaymentOrderStatus string

const (
	PaymentOrderStatusPaid     PaymentOrderStatus = "paid"
	PaymentOrderStatusRefunded PaymentOrderStatus = "refunded"
)

var orderStatuses = values[PaymentOrderStatus]{PaymentOrderStatusPaid, PaymentOrderStatusRefunded}

func (s PaymentOrderStatus) IsValid() bool { return orderStatuses.has(s) }

func ParsePaymentOrderStatus(raw string) (PaymentOrderStatus, error) {
	return orderStatuses.parse("payment order status", raw)
}

// WebhookOutcome is what the reconciler did with one webhook delivery.
type WebhookOutcome string

const (
	WebhookOutcomeProcessed WebhookOutcome = "processed"
	WebhookOutcomeDuplicate WebhookOutcome = "duplicate"
	WebhookOutcomeIgnored   WebhookOutcome = "ignored"
	WebhookOutcomeRejected  WebhookOutcome = "rejected"
	WebhookOutcomeFailed    WebhookOutcome = "failed"
)

var webhookOutcomes = values[WebhookOutcome]{
	WebhookOutcomeProcessed,
	WebhookOutcomeDuplicate,
	WebhookOutcomeIgnored,
	WebhookOutcomeRejected,
	WebhookOutcomeFailed,
}

func (o WebhookOutcome) IsValid() bool { return webhookOutcomes.has(o) }
