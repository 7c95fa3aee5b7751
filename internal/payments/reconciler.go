package payments

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"gorm.io/gorm"

	"github.com/angelmondragon/coachcredits-backend/internal/credits"
	"github.com/angelmondragon/coachcredits-backend/internal/notifications"
	"github.com/angelmondragon/coachcredits-backend/pkg/db/models"
	"github.com/angelmondragon/coachcredits-backend/pkg/enums"
	pkgerrors "github.com/angelmondragon/coachcredits-backend/pkg/errors"
	"github.com/angelmondragon/coachcredits-backend/pkg/logger"
	"github.com/angelmondragon/coachcredits-backend/pkg/metrics"
	"github.com/angelmondragon/coachcredits-backend/pkg/outbox"
	"github.com/angelmondragon/coachcredits-backend/pkg/outbox/payloads"
)

const relatedPaymentOrder = "payment_order"

type creditLedger interface {
	AddCreditsTx(ctx context.Context, tx *gorm.DB, input credits.AddCreditsInput) (int64, error)
	LockAccountTx(ctx context.Context, tx *gorm.DB, userID uuid.UUID) (*models.UserCreditAccount, error)
}

type userDirectory interface {
	Exists(ctx context.Context, id uuid.UUID) (bool, error)
}

type notifier interface {
	NotifyTx(ctx context.Context, tx *gorm.DB, input notifications.NotifyInput) (*models.Notification, error)
}

type eventEmitter interface {
	Emit(ctx context.Context, tx *gorm.DB, event outbox.Event) error
}

type webhookGuard interface {
	CheckAndMark(ctx context.Context, key string) (bool, error)
	Delete(ctx context.Context, key string) error
}

type txRunner interface {
	WithTx(ctx context.Context, fn func(tx *gorm.DB) error) error
}

// Result is the reconciler's verdict for one delivery. Every Result maps to a
// 2xx response; failures are returned as errors instead.
type Result struct {
	Outcome         enums.WebhookOutcome `json:"outcome"`
	EventName       string               `json:"event_name"`
	ExternalOrderID string               `json:"external_order_id,omitempty"`
	Credits         int64                `json:"credits,omitempty"`
	Balance         *int64               `json:"balance,omitempty"`
}

type ReconcilerParams struct {
	Provider      string
	Verifier      *Verifier
	Catalog       *Catalog
	Orders        OrderRepository
	Audit         AuditRepository
	Credits       creditLedger
	Users         userDirectory
	Notifications notifier
	Outbox        eventEmitter
	Guard         webhookGuard
	TxRunner      txRunner
	Logger        *logger.Logger
	Metrics       *metrics.LedgerMetrics
}

// Reconciler turns verified provider webhooks into ledger mutations. Each
// order moves unknown -> paid -> refunded and never backwards.
type Reconciler struct {
	provider      string
	verifier      *Verifier
	catalog       *Catalog
	orders        OrderRepository
	audit         AuditRepository
	credits       creditLedger
	users         userDirectory
	notifications notifier
	outbox        eventEmitter
	guard         webhookGuard
	tx            txRunner
	logg          *logger.Logger
	metrics       *metrics.LedgerMetrics
	now           func() time.Time
}

func NewReconciler(params ReconcilerParams) (*Reconciler, error) {
	switch {
	case params.Verifier == nil:
		return nil, pkgerrors.New(pkgerrors.CodeInternal, "signature verifier required")
	case params.Catalog == nil:
		return nil, pkgerrors.New(pkgerrors.CodeInternal, "product catalog required")
	case params.Orders == nil:
		return nil, pkgerrors.New(pkgerrors.CodeInternal, "order repository required")
	case params.Audit == nil:
		return nil, pkgerrors.New(pkgerrors.CodeInternal, "webhook audit repository required")
	case params.Credits == nil:
		return nil, pkgerrors.New(pkgerrors.CodeInternal, "credit service required")
	case params.Users == nil:
		return nil, pkgerrors.New(pkgerrors.CodeInternal, "user directory required")
	case params.Notifications == nil:
		return nil, pkgerrors.New(pkgerrors.CodeInternal, "notification service required")
	case params.Outbox == nil:
		return nil, pkgerrors.New(pkgerrors.CodeInternal, "outbox required")
	case params.TxRunner == nil:
		return nil, pkgerrors.New(pkgerrors.CodeInternal, "transaction runner required")
	case params.Logger == nil:
		return nil, pkgerrors.New(pkgerrors.CodeInternal, "logger required")
	}
	provider := strings.TrimSpace(params.Provider)
	if provider == "" {
		provider = "lemonsqueezy"
	}
	return &Reconciler{
		provider:      provider,
		verifier:      params.Verifier,
		catalog:       params.Catalog,
		orders:        params.Orders,
		audit:         params.Audit,
		credits:       params.Credits,
		users:         params.Users,
		notifications: params.Notifications,
		outbox:        params.Outbox,
		guard:         params.Guard,
		tx:            params.TxRunner,
		logg:          params.Logger,
		metrics:       params.Metrics,
		now:           time.Now,
	}, nil
}

// HandleWebhook authenticates the raw body, then dispatches on the event name.
// Duplicate and ignored deliveries succeed so the provider stops retrying.
func (r *Reconciler) HandleWebhook(ctx context.Context, payload []byte, signature string) (*Result, error) {
	receivedAt := r.now().UTC()

	if err := r.verifier.Verify(payload, signature); err != nil {
		r.metrics.IncWebhook("unverified", string(enums.WebhookOutcomeRejected))
		r.logg.Warn(r.logg.WithField(ctx, "provider", r.provider), "payment webhook rejected: invalid signature")
		return nil, err
	}

	event, err := ParseEvent(payload)
	if err != nil {
		r.record(ctx, "unparsed", "", enums.WebhookOutcomeRejected, err, payload, receivedAt)
		return nil, err
	}
	eventName := event.Meta.EventName
	orderID := event.ExternalOrderID()
	ctx = r.logg.WithOrderID(r.logg.WithField(ctx, "event_name", eventName), orderID)

	var handle func(context.Context, *WebhookEvent, []byte, time.Time) (*Result, error)
	switch eventName {
	case EventOrderCreated:
		handle = r.HandlePaid
	case EventOrderRefunded:
		handle = r.HandleRefunded
	default:
		result := &Result{Outcome: enums.WebhookOutcomeIgnored, EventName: eventName, ExternalOrderID: orderID}
		r.record(ctx, eventName, orderID, result.Outcome, nil, payload, receivedAt)
		return result, nil
	}

	key := guardKey(eventName, orderID)
	if r.guard != nil {
		seen, guardErr := r.guard.CheckAndMark(ctx, key)
		switch {
		case guardErr != nil:
			// the unique order id remains the authoritative barrier
			r.logg.Warn(r.logg.WithField(ctx, "error", guardErr.Error()), "webhook idempotency guard unavailable")
		case seen:
			result := &Result{Outcome: enums.WebhookOutcomeDuplicate, EventName: eventName, ExternalOrderID: orderID}
			r.record(ctx, eventName, orderID, result.Outcome, nil, payload, receivedAt)
			return result, nil
		}
	}

	result, err := handle(ctx, event, payload, receivedAt)
	if err != nil {
		if r.guard != nil {
			if delErr := r.guard.Delete(ctx, key); delErr != nil {
				r.logg.Warn(r.logg.WithField(ctx, "error", delErr.Error()), "failed to clear webhook idempotency key")
			}
		}
		outcome := enums.WebhookOutcomeRejected
		if pkgerrors.IsCode(err, pkgerrors.CodeDependency) || pkgerrors.As(err) == nil {
			outcome = enums.WebhookOutcomeFailed
		}
		r.record(ctx, eventName, orderID, outcome, err, payload, receivedAt)
		return nil, err
	}
	r.record(ctx, eventName, orderID, result.Outcome, nil, payload, receivedAt)
	return result, nil
}

// HandlePaid applies an order_created event whose signature was already verified.
func (r *Reconciler) HandlePaid(ctx context.Context, event *WebhookEvent, payload []byte, receivedAt time.Time) (*Result, error) {
	orderID := event.ExternalOrderID()
	result := &Result{EventName: event.Meta.EventName, ExternalOrderID: orderID}

	if status := strings.ToLower(event.Data.Attributes.Status); status != "" && status != string(enums.PaymentOrderStatusPaid) {
		result.Outcome = enums.WebhookOutcomeIgnored
		return result, nil
	}

	existing, err := r.orders.FindByExternalID(ctx, orderID)
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "lookup payment order")
	}
	if existing != nil {
		result.Outcome = enums.WebhookOutcomeDuplicate
		return result, nil
	}

	creditsAmount, err := r.catalog.Resolve(event.VariantID())
	if err != nil {
		return nil, err
	}
	userID, err := event.BuyerID()
	if err != nil {
		return nil, err
	}
	exists, err := r.users.Exists(ctx, userID)
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "lookup buyer")
	}
	if !exists {
		return nil, pkgerrors.New(pkgerrors.CodeUnknownUser, "buyer does not exist").
			WithDetails(map[string]any{"user_id": userID.String()})
	}

	order := &models.PaymentOrder{
		ID:              uuid.New(),
		ExternalOrderID: orderID,
		UserID:          userID,
		VariantID:       event.VariantID(),
		ProductID:       event.ProductID(),
		CreditsAmount:   creditsAmount,
		AmountPaid:      decimal.New(event.Data.Attributes.Total, -2),
		Currency:        strings.ToUpper(strings.TrimSpace(event.Data.Attributes.Currency)),
		Status:          enums.PaymentOrderStatusPaid,
		RawPayload:      json.RawMessage(payload),
		ReceivedAt:      receivedAt,
	}

	duplicate := false
	var balance int64
	err = r.tx.WithTx(ctx, func(tx *gorm.DB) error {
		inserted, err := r.orders.WithTx(tx).InsertIfAbsent(ctx, order)
		if err != nil {
			return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "insert payment order")
		}
		if !inserted {
			duplicate = true
			return nil
		}

		balance, err = r.credits.AddCreditsTx(ctx, tx, credits.AddCreditsInput{
			UserID:      userID,
			Amount:      creditsAmount,
			Kind:        enums.CreditKindPurchase,
			Description: fmt.Sprintf("Purchased %d credits", creditsAmount),
			Related:     &credits.RelatedEntity{Type: relatedPaymentOrder, ID: orderID},
		})
		if err != nil {
			return err
		}

		if _, err := r.notifications.NotifyTx(ctx, tx, notifications.NotifyInput{
			UserID:  userID,
			Type:    enums.NotificationTypeCreditsPurchased,
			Title:   "Credits added",
			Message: fmt.Sprintf("%d credits were added to your account.", creditsAmount),
		}); err != nil {
			return err
		}

		return r.emit(ctx, tx, enums.EventCreditsPurchased, order.ID, userID, payloads.CreditsPurchasedEvent{
			UserID:          userID,
			OrderID:         order.ID,
			ExternalOrderID: orderID,
			Credits:         creditsAmount,
			BalanceAfter:    balance,
		})
	})
	if err != nil {
		return nil, asDependencyError(err, "apply paid order")
	}
	if duplicate {
		result.Outcome = enums.WebhookOutcomeDuplicate
		return result, nil
	}

	result.Outcome = enums.WebhookOutcomeProcessed
	result.Credits = creditsAmount
	result.Balance = &balance
	return result, nil
}

// HandleRefunded reverses a paid order, clamping the deduction to the current
// balance so already spent credits never push it negative.
func (r *Reconciler) HandleRefunded(ctx context.Context, event *WebhookEvent, payload []byte, receivedAt time.Time) (*Result, error) {
	orderID := event.ExternalOrderID()
	result := &Result{EventName: event.Meta.EventName, ExternalOrderID: orderID}

	unmatched := false
	var (
		deducted int64
		balance  int64
	)
	err := r.tx.WithTx(ctx, func(tx *gorm.DB) error {
		order, err := r.orders.WithTx(tx).LockPaidByExternalID(ctx, orderID)
		if err != nil {
			return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "lock payment order")
		}
		if order == nil {
			unmatched = true
			return nil
		}

		account, err := r.credits.LockAccountTx(ctx, tx, order.UserID)
		if err != nil {
			return err
		}
		deducted = order.CreditsAmount
		if account.Balance < deducted {
			deducted = account.Balance
		}
		balance = account.Balance

		if err := r.orders.WithTx(tx).MarkRefunded(ctx, order.ID, receivedAt); err != nil {
			return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "mark order refunded")
		}
		if deducted > 0 {
			balance, err = r.credits.AddCreditsTx(ctx, tx, credits.AddCreditsInput{
				UserID:      order.UserID,
				Amount:      -deducted,
				Kind:        enums.CreditKindRefund,
				Description: fmt.Sprintf("Refund of order %s", orderID),
				Related:     &credits.RelatedEntity{Type: relatedPaymentOrder, ID: orderID},
			})
			if err != nil {
				return err
			}
		}

		if _, err := r.notifications.NotifyTx(ctx, tx, notifications.NotifyInput{
			UserID:  order.UserID,
			Type:    enums.NotificationTypeCreditsRefunded,
			Title:   "Order refunded",
			Message: fmt.Sprintf("%d credits were removed after your refund.", deducted),
		}); err != nil {
			return err
		}

		return r.emit(ctx, tx, enums.EventCreditsRefunded, order.ID, order.UserID, payloads.CreditsRefundedEvent{
			UserID:          order.UserID,
			OrderID:         order.ID,
			ExternalOrderID: orderID,
			CreditsDeducted: deducted,
			BalanceAfter:    balance,
		})
	})
	if err != nil {
		return nil, asDependencyError(err, "apply refund")
	}

	if unmatched {
		r.logg.Warn(ctx, "refund without a matching paid order ignored")
		result.Outcome = enums.WebhookOutcomeIgnored
		return result, nil
	}
	result.Outcome = enums.WebhookOutcomeProcessed
	result.Credits = deducted
	result.Balance = &balance
	return result, nil
}

func (r *Reconciler) emit(ctx context.Context, tx *gorm.DB, eventType enums.OutboxEventType, orderID, userID uuid.UUID, data any) error {
	err := r.outbox.Emit(ctx, tx, outbox.Event{
		EventType:     eventType,
		AggregateType: enums.AggregatePaymentOrder,
		AggregateID:   orderID,
		Actor:         &outbox.Actor{UserID: userID},
		Data:          data,
	})
	if err != nil {
		return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "queue payment event")
	}
	return nil
}

// record writes the audit row and the outcome metric. Audit failures are logged
// only; the ledger outcome is already decided.
func (r *Reconciler) record(ctx context.Context, eventName, orderID string, outcome enums.WebhookOutcome, cause error, payload []byte, receivedAt time.Time) {
	r.metrics.IncWebhook(eventName, string(outcome))

	entry := &models.PaymentWebhookEvent{
		ID:         uuid.New(),
		Provider:   r.provider,
		EventName:  eventName,
		Outcome:    outcome,
		RawPayload: auditPayload(payload),
		ReceivedAt: receivedAt,
	}
	if orderID != "" {
		entry.ExternalOrderID = &orderID
	}
	logCtx := r.logg.WithField(ctx, "outcome", outcome)
	if cause != nil {
		msg := cause.Error()
		entry.Error = &msg
		logCtx = r.logg.WithField(logCtx, "error", msg)
	}
	if err := r.audit.Record(ctx, entry); err != nil {
		r.logg.Error(logCtx, "failed to record payment webhook audit entry", err)
	}
	r.logg.Info(logCtx, "payment webhook handled")
}

func auditPayload(payload []byte) json.RawMessage {
	if json.Valid(payload) {
		return json.RawMessage(payload)
	}
	wrapped, _ := json.Marshal(map[string]string{"unparsed": string(payload)})
	return wrapped
}

func asDependencyError(err error, action string) error {
	if pkgerrors.As(err) != nil {
		return err
	}
	return pkgerrors.Wrap(pkgerrors.CodeDependency, err, action)
}
