package quota

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/angelmondragon/coachcredits-backend/internal/credits"
	pkgerrors "github.com/angelmondragon/coachcredits-backend/pkg/errors"
	"github.com/angelmondragon/coachcredits-backend/pkg/logger"
	"github.com/angelmondragon/coachcredits-backend/pkg/metrics"
)

const (
	DefaultActionTimeout = 60 * time.Second
	unitCost             = 1
)

// Outcome reports whether the metered action delivered its result.
type Outcome string

const (
	OutcomeSuccess Outcome = "success"
	OutcomeFailure Outcome = "failure"
)

// Principal is the resolved caller of a metered action.
type Principal struct {
	UserID    uuid.UUID
	Unlimited bool
}

// Admission is the result of the unlocked pre-action balance check.
type Admission struct {
	Allowed   bool  `json:"allowed"`
	Balance   int64 `json:"balance"`
	Unlimited bool  `json:"unlimited"`
}

// Settlement reports what happened to the debit after the action ran. Balance
// is nil when no debit was attempted or the ledger could not be read.
type Settlement struct {
	Charged bool   `json:"charged"`
	Balance *int64 `json:"balance,omitempty"`
	Warning string `json:"warning,omitempty"`
}

// Ledger is the slice of the credit service the gate depends on.
type Ledger interface {
	GetBalance(ctx context.Context, userID uuid.UUID) (*credits.BalanceDTO, error)
	DeductOne(ctx context.Context, userID uuid.UUID, description string, related *credits.RelatedEntity) (credits.DebitResult, error)
}

// Action is the metered, non-transactional work guarded by the gate.
type Action func(ctx context.Context) error

// Gate wraps a metered action with check-then-consume billing. The debit runs
// after the action on purpose: a concurrent request may drain the balance in
// between, and that late failure is logged and counted instead of discarding a
// result the operator already paid for.
type Gate interface {
	CheckAndReserve(ctx context.Context, principal Principal) (Admission, error)
	Settle(ctx context.Context, principal Principal, outcome Outcome, description string, related *credits.RelatedEntity) (Settlement, error)
	Run(ctx context.Context, principal Principal, description string, related *credits.RelatedEntity, action Action) (Settlement, error)
}

type GateParams struct {
	Ledger        Ledger
	Logger        *logger.Logger
	Metrics       *metrics.LedgerMetrics
	ActionTimeout time.Duration
}

type gate struct {
	ledger  Ledger
	logg    *logger.Logger
	metrics *metrics.LedgerMetrics
	timeout time.Duration
	now     func() time.Time
}

func NewGate(params GateParams) (Gate, error) {
	if params.Ledger == nil {
		return nil, pkgerrors.New(pkgerrors.CodeInternal, "credit ledger required")
	}
	if params.Logger == nil {
		return nil, pkgerrors.New(pkgerrors.CodeInternal, "logger required")
	}
	timeout := params.ActionTimeout
	if timeout <= 0 {
		timeout = DefaultActionTimeout
	}
	return &gate{
		ledger:  params.Ledger,
		logg:    params.Logger,
		metrics: params.Metrics,
		timeout: timeout,
		now:     time.Now,
	}, nil
}

// PaymentRequired builds the error surfaced when a caller cannot afford an action.
func PaymentRequired(balance int64) error {
	return pkgerrors.New(pkgerrors.CodePaymentRequired, "insufficient credits, buy more credits to continue").
		WithDetails(map[string]any{"balance": balance, "required": unitCost})
}

func (g *gate) CheckAndReserve(ctx context.Context, principal Principal) (Admission, error) {
	if principal.UserID == uuid.Nil {
		return Admission{}, pkgerrors.New(pkgerrors.CodeValidation, "user id is required")
	}
	if principal.Unlimited {
		return Admission{Allowed: true, Unlimited: true}, nil
	}
	account, err := g.ledger.GetBalance(ctx, principal.UserID)
	if err != nil {
		return Admission{}, err
	}
	return Admission{Allowed: account.Balance >= unitCost, Balance: account.Balance}, nil
}

func (g *gate) Settle(ctx context.Context, principal Principal, outcome Outcome, description string, related *credits.RelatedEntity) (Settlement, error) {
	if principal.UserID == uuid.Nil {
		return Settlement{}, pkgerrors.New(pkgerrors.CodeValidation, "user id is required")
	}
	switch outcome {
	case OutcomeFailure:
		return Settlement{}, nil
	case OutcomeSuccess:
	default:
		return Settlement{}, pkgerrors.New(pkgerrors.CodeValidation, fmt.Sprintf("invalid outcome %q", outcome))
	}

	logCtx := g.logg.WithUserID(ctx, principal.UserID.String())
	if principal.Unlimited {
		g.logg.Info(g.logg.WithFields(logCtx, map[string]any{
			"would_cost":  unitCost,
			"description": description,
		}), "unlimited principal used metered action")
		return Settlement{}, nil
	}

	// The action was delivered; a client hang-up must not abort the debit.
	result, err := g.ledger.DeductOne(context.WithoutCancel(ctx), principal.UserID, description, related)
	if err != nil {
		g.metrics.IncUnbilled("storage_error")
		g.logg.Warn(g.logg.WithFields(logCtx, map[string]any{
			"would_cost": unitCost,
			"reason":     "storage_error",
			"error":      err.Error(),
		}), "metered action delivered without debit")
		return Settlement{Warning: "usage could not be billed"}, nil
	}

	balance := result.Balance
	if !result.Applied() {
		g.metrics.IncUnbilled("insufficient_credits")
		g.logg.Warn(g.logg.WithFields(logCtx, map[string]any{
			"would_cost": unitCost,
			"reason":     "insufficient_credits",
			"balance":    balance,
		}), "metered action delivered without debit")
		return Settlement{Balance: &balance, Warning: "credits ran out before this usage was billed"}, nil
	}
	return Settlement{Charged: true, Balance: &balance}, nil
}

// Run performs admission, the bounded action, and settlement. A rejected
// admission returns PaymentRequired without invoking the action. A failed or
// timed out action is returned as-is and never debits.
func (g *gate) Run(ctx context.Context, principal Principal, description string, related *credits.RelatedEntity, action Action) (Settlement, error) {
	if action == nil {
		return Settlement{}, pkgerrors.New(pkgerrors.CodeInternal, "metered action required")
	}
	if strings.TrimSpace(description) == "" {
		return Settlement{}, pkgerrors.New(pkgerrors.CodeValidation, "description is required")
	}

	admission, err := g.CheckAndReserve(ctx, principal)
	if err != nil {
		return Settlement{}, err
	}
	if !admission.Allowed {
		return Settlement{}, PaymentRequired(admission.Balance)
	}

	actionCtx, cancel := context.WithTimeout(ctx, g.timeout)
	started := g.now()
	actionErr := action(actionCtx)
	if actionErr == nil && actionCtx.Err() != nil {
		actionErr = actionCtx.Err()
	}
	cancel()

	if actionErr != nil {
		g.metrics.ObserveAction(string(OutcomeFailure), g.now().Sub(started))
		if errors.Is(actionErr, context.DeadlineExceeded) {
			return Settlement{}, pkgerrors.Wrap(pkgerrors.CodeDependency, actionErr, "metered action timed out")
		}
		return Settlement{}, actionErr
	}
	g.metrics.ObserveAction(string(OutcomeSuccess), g.now().Sub(started))

	return g.Settle(ctx, principal, OutcomeSuccess, description, related)
}
