package enums

// OutboxAggregateType names the entity an outbox event is about.
type OutboxAggregateType string

const (
	AggregateCreditAccount OutboxAggregateType = "credit_account"
	AggregatePaymentOrder  OutboxAggregateType = "payment_order"
	AggregateReferral      OutboxAggregateType = "referral"
	AggregateNotification  OutboxAggregateType = "notification"
)

var aggregateTypes = values[OutboxAggregateType]{
	AggregateCreditAccount,
	AggregatePaymentOrder,
	AggregateReferral,
	AggregateNotification,
}

func (a OutboxAggregateType) IsValid() bool { return aggregateTypes.has(a) }

// OutboxEventType names an event published by the relay.
type OutboxEventType string

const (
	EventCreditsPurchased      OutboxEventType = "credits_purchased"
	EventCreditsRefunded       OutboxEventType = "credits_refunded"
	EventTrialGranted          OutboxEventType = "trial_granted"
	EventReferralRewarded      OutboxEventType = "referral_rewarded"
	EventNotificationRequested OutboxEventType = "notification_requested"
)

var eventTypes = values[OutboxEventType]{
	EventCreditsPurchased,
	EventCreditsRefunded,
	EventTrialGranted,
	EventReferralRewarded,
	EventNotificationRequested,
}

func (e OutboxEventType) IsValid() bool { return eventTypes.has(e) }

func ParseOutboxEventType(raw string) (OutboxEventType, error) {
	return eventTypes.parse("outbox event type", raw)
}

// DeadLetterReason records why the relay gave up on an event.
type DeadLetterReason string

const (
	DeadLetterMaxAttempts  DeadLetterReason = "max_attempts"
	DeadLetterNonRetryable DeadLetterReason = "non_retryable"
)

var deadLetterReasons = values[DeadLetterReason]{DeadLetterMaxAttempts, DeadLetterNonRetryable}

func (r DeadLetterReason) IsValid() bool { return deadLetterReasons.has(r) }
