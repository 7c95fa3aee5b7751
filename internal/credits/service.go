package credits

import (
	"context"
	"fmt"
	"strings"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/angelmondragon/coachcredits-backend/pkg/db"
	"github.com/angelmondragon/coachcredits-backend/pkg/db/models"
	"github.com/angelmondragon/coachcredits-backend/pkg/enums"
	pkgerrors "github.com/angelmondragon/coachcredits-backend/pkg/errors"
	"github.com/angelmondragon/coachcredits-backend/pkg/logger"
	"github.com/angelmondragon/coachcredits-backend/pkg/metrics"
	"github.com/angelmondragon/coachcredits-backend/pkg/pagination"
)

const (
	DefaultTrialAmount = 25
	trialDescription   = "Welcome trial credits"
)

// Service is the only code path allowed to change a credit balance. Every
// mutation locks the account row, writes the new balance and one ledger entry,
// and commits them together.
type Service interface {
	AddCredits(ctx context.Context, input AddCreditsInput) (int64, error)
	AddCreditsTx(ctx context.Context, tx *gorm.DB, input AddCreditsInput) (int64, error)
	DeductOne(ctx context.Context, userID uuid.UUID, description string, related *RelatedEntity) (DebitResult, error)
	InitTrialCredits(ctx context.Context, userID uuid.UUID) (TrialResult, error)
	InitTrialCreditsTx(ctx context.Context, tx *gorm.DB, userID uuid.UUID) (TrialResult, error)
	LockAccountTx(ctx context.Context, tx *gorm.DB, userID uuid.UUID) (*models.UserCreditAccount, error)
	GetBalance(ctx context.Context, userID uuid.UUID) (*BalanceDTO, error)
	ListTransactions(ctx context.Context, userID uuid.UUID, page pagination.Page) (*TransactionPage, error)
	Audit(ctx context.Context, userID uuid.UUID) (*AuditReport, error)
}

type txRunner interface {
	WithTx(ctx context.Context, fn func(tx *gorm.DB) error) error
}

type ServiceParams struct {
	Repo            Repository
	TxRunner        txRunner
	Logger          *logger.Logger
	Metrics         *metrics.LedgerMetrics
	TrialAmount     int64
	DefaultPageSize int
}

type service struct {
	repo            Repository
	tx              txRunner
	logg            *logger.Logger
	metrics         *metrics.LedgerMetrics
	trialAmount     int64
	defaultPageSize int
}

func NewService(params ServiceParams) (Service, error) {
	if params.Repo == nil {
		return nil, pkgerrors.New(pkgerrors.CodeInternal, "credits repository required")
	}
	if params.TxRunner == nil {
		return nil, pkgerrors.New(pkgerrors.CodeInternal, "transaction runner required")
	}
	if params.Logger == nil {
		return nil, pkgerrors.New(pkgerrors.CodeInternal, "logger required")
	}
	trial := params.TrialAmount
	if trial <= 0 {
		trial = DefaultTrialAmount
	}
	return &service{
		repo:            params.Repo,
		tx:              params.TxRunner,
		logg:            params.Logger,
		metrics:         params.Metrics,
		trialAmount:     trial,
		defaultPageSize: params.DefaultPageSize,
	}, nil
}

func (s *service) AddCredits(ctx context.Context, input AddCreditsInput) (int64, error) {
	if err := validateAddInput(input); err != nil {
		return 0, err
	}
	var balance int64
	err := s.tx.WithTx(ctx, func(tx *gorm.DB) error {
		var err error
		balance, err = s.addCreditsTx(ctx, tx, input)
		return err
	})
	if err != nil {
		return 0, asStorageError(err, "add credits")
	}
	return balance, nil
}

// AddCreditsTx applies the adjustment inside the caller's transaction so it
// commits atomically with the caller's own writes.
func (s *service) AddCreditsTx(ctx context.Context, tx *gorm.DB, input AddCreditsInput) (int64, error) {
	if tx == nil {
		return 0, pkgerrors.New(pkgerrors.CodeInternal, "transaction required")
	}
	if err := validateAddInput(input); err != nil {
		return 0, err
	}
	balance, err := s.addCreditsTx(ctx, tx, input)
	if err != nil {
		return 0, asStorageError(err, "add credits")
	}
	return balance, nil
}

func (s *service) addCreditsTx(ctx context.Context, tx *gorm.DB, input AddCreditsInput) (int64, error) {
	repo := s.repo.WithTx(tx)
	account, err := repo.LockForUpdate(ctx, input.UserID)
	if err != nil {
		return 0, fmt.Errorf("lock account: %w", err)
	}
	return s.applyLocked(ctx, repo, account, input)
}

// applyLocked mutates an account already locked by the current transaction.
func (s *service) applyLocked(ctx context.Context, repo Repository, account *models.UserCreditAccount, input AddCreditsInput) (int64, error) {
	account.Balance += input.Amount
	if input.Amount > 0 && input.Kind == enums.CreditKindPurchase {
		account.LifetimePurchased += input.Amount
	}
	if input.Kind == enums.CreditKindUsage {
		account.LifetimeUsed += -input.Amount
	}
	if err := repo.SaveBalances(ctx, account); err != nil {
		return 0, fmt.Errorf("save balances: %w", err)
	}

	txn := &models.CreditTransaction{
		UserID:       input.UserID,
		Amount:       input.Amount,
		Kind:         input.Kind,
		Description:  input.Description,
		BalanceAfter: account.Balance,
	}
	if input.Related != nil {
		entityType, entityID := input.Related.Type, input.Related.ID
		txn.RelatedEntityType = &entityType
		txn.RelatedEntityID = &entityID
	}
	if err := repo.AppendTransaction(ctx, txn); err != nil {
		return 0, fmt.Errorf("append transaction: %w", err)
	}

	s.metrics.IncMutation(string(input.Kind))
	logCtx := s.logg.WithUserID(ctx, input.UserID.String())
	logCtx = s.logg.WithFields(logCtx, map[string]any{
		"kind":          input.Kind,
		"amount":        input.Amount,
		"balance_after": account.Balance,
	})
	s.logg.Debug(logCtx, "credit ledger entry written")
	return account.Balance, nil
}

func (s *service) DeductOne(ctx context.Context, userID uuid.UUID, description string, related *RelatedEntity) (DebitResult, error) {
	if userID == uuid.Nil {
		return DebitResult{}, pkgerrors.New(pkgerrors.CodeValidation, "user id is required")
	}
	if strings.TrimSpace(description) == "" {
		description = "Metered usage"
	}

	var result DebitResult
	err := s.tx.WithTx(ctx, func(tx *gorm.DB) error {
		repo := s.repo.WithTx(tx)
		account, err := repo.LockForUpdate(ctx, userID)
		if err != nil {
			return fmt.Errorf("lock account: %w", err)
		}
		if account.Balance < 1 {
			result = DebitResult{Status: DebitInsufficient, Balance: account.Balance}
			return nil
		}
		balance, err := s.applyLocked(ctx, repo, account, AddCreditsInput{
			UserID:      userID,
			Amount:      -1,
			Kind:        enums.CreditKindUsage,
			Description: description,
			Related:     related,
		})
		if err != nil {
			return err
		}
		result = DebitResult{Status: DebitApplied, Balance: balance}
		return nil
	})
	if err != nil {
		s.metrics.IncDebit("error")
		return DebitResult{}, asStorageError(err, "deduct credit")
	}
	s.metrics.IncDebit(string(result.Status))
	return result, nil
}

func (s *service) InitTrialCredits(ctx context.Context, userID uuid.UUID) (TrialResult, error) {
	var result TrialResult
	err := s.tx.WithTx(ctx, func(tx *gorm.DB) error {
		var err error
		result, err = s.InitTrialCreditsTx(ctx, tx, userID)
		return err
	})
	if err != nil {
		return TrialResult{}, asStorageError(err, "grant trial credits")
	}
	return result, nil
}

// InitTrialCreditsTx grants the trial once per user. The existing-trial check
// runs under the account lock so concurrent signups cannot double-grant.
func (s *service) InitTrialCreditsTx(ctx context.Context, tx *gorm.DB, userID uuid.UUID) (TrialResult, error) {
	if userID == uuid.Nil {
		return TrialResult{}, pkgerrors.New(pkgerrors.CodeValidation, "user id is required")
	}
	if tx == nil {
		return TrialResult{}, pkgerrors.New(pkgerrors.CodeInternal, "transaction required")
	}
	repo := s.repo.WithTx(tx)
	account, err := repo.LockForUpdate(ctx, userID)
	if err != nil {
		return TrialResult{}, asStorageError(err, "lock account")
	}
	granted, err := repo.HasTransactionOfKind(ctx, userID, enums.CreditKindTrial)
	if err != nil {
		return TrialResult{}, asStorageError(err, "check trial")
	}
	if granted {
		return TrialResult{Granted: false, Balance: account.Balance}, nil
	}
	balance, err := s.applyLocked(ctx, repo, account, AddCreditsInput{
		UserID:      userID,
		Amount:      s.trialAmount,
		Kind:        enums.CreditKindTrial,
		Description: trialDescription,
	})
	if err != nil {
		return TrialResult{}, asStorageError(err, "grant trial credits")
	}
	return TrialResult{Granted: true, Credits: s.trialAmount, Balance: balance}, nil
}

// LockAccountTx exposes the row lock to callers that must read the balance and
// adjust it in one transaction, such as refund clamping.
func (s *service) LockAccountTx(ctx context.Context, tx *gorm.DB, userID uuid.UUID) (*models.UserCreditAccount, error) {
	if tx == nil {
		return nil, pkgerrors.New(pkgerrors.CodeInternal, "transaction required")
	}
	account, err := s.repo.WithTx(tx).LockForUpdate(ctx, userID)
	if err != nil {
		return nil, asStorageError(err, "lock account")
	}
	return account, nil
}

func (s *service) GetBalance(ctx context.Context, userID uuid.UUID) (*BalanceDTO, error) {
	if userID == uuid.Nil {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "user id is required")
	}
	account, err := s.repo.GetOrCreate(ctx, userID)
	if err != nil {
		return nil, asStorageError(err, "load balance")
	}
	return balanceFromModel(account), nil
}

func (s *service) ListTransactions(ctx context.Context, userID uuid.UUID, page pagination.Page) (*TransactionPage, error) {
	if userID == uuid.Nil {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "user id is required")
	}
	page = page.Normalize(s.defaultPageSize)
	rows, total, err := s.repo.ListTransactions(ctx, userID, page.PageSize, page.Offset())
	if err != nil {
		return nil, asStorageError(err, "list transactions")
	}
	items := make([]TransactionDTO, 0, len(rows))
	for _, row := range rows {
		items = append(items, transactionFromModel(row))
	}
	return &TransactionPage{
		Items:      items,
		Page:       page.Page,
		PageSize:   page.PageSize,
		Total:      total,
		TotalPages: page.TotalPages(total),
	}, nil
}

// Audit recomputes the ledger sum under the account lock and compares it to the
// stored balance.
func (s *service) Audit(ctx context.Context, userID uuid.UUID) (*AuditReport, error) {
	if userID == uuid.Nil {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "user id is required")
	}
	var report AuditReport
	err := s.tx.WithTx(ctx, func(tx *gorm.DB) error {
		repo := s.repo.WithTx(tx)
		account, err := repo.LockForUpdate(ctx, userID)
		if err != nil {
			return fmt.Errorf("lock account: %w", err)
		}
		sum, count, err := repo.SumTransactions(ctx, userID)
		if err != nil {
			return fmt.Errorf("sum transactions: %w", err)
		}
		report = AuditReport{
			UserID:           userID,
			Balance:          account.Balance,
			LedgerSum:        sum,
			TransactionCount: count,
			Consistent:       sum == account.Balance && account.Balance >= 0,
		}
		return nil
	})
	if err != nil {
		return nil, asStorageError(err, "audit ledger")
	}
	if !report.Consistent {
		logCtx := s.logg.WithUserID(ctx, userID.String())
		logCtx = s.logg.WithFields(logCtx, map[string]any{"balance": report.Balance, "ledger_sum": report.LedgerSum})
		s.logg.Warn(logCtx, "credit ledger out of balance")
	}
	return &report, nil
}

func validateAddInput(input AddCreditsInput) error {
	if input.UserID == uuid.Nil {
		return pkgerrors.New(pkgerrors.CodeValidation, "user id is required")
	}
	if input.Amount == 0 {
		return pkgerrors.New(pkgerrors.CodeValidation, "amount must be non-zero")
	}
	if !input.Kind.IsValid() {
		return pkgerrors.New(pkgerrors.CodeValidation, fmt.Sprintf("invalid credit transaction kind %q", input.Kind))
	}
	if input.Kind.IsGrant() != (input.Amount > 0) {
		return pkgerrors.New(pkgerrors.CodeValidation, fmt.Sprintf("amount sign does not match kind %q", input.Kind))
	}
	if strings.TrimSpace(input.Description) == "" {
		return pkgerrors.New(pkgerrors.CodeValidation, "description is required")
	}
	if input.Related != nil && (input.Related.Type == "" || input.Related.ID == "") {
		return pkgerrors.New(pkgerrors.CodeValidation, "related entity requires type and id")
	}
	return nil
}

// asStorageError leaves coded errors alone, maps constraint violations that a
// retry cannot fix, and classifies everything else as a retryable dependency failure.
func asStorageError(err error, action string) error {
	switch {
	case err == nil:
		return nil
	case pkgerrors.As(err) != nil:
		return err
	case db.IsForeignKeyViolation(err):
		return pkgerrors.Wrap(pkgerrors.CodeUnknownUser, err, "user does not exist")
	case db.IsCheckViolation(err):
		return pkgerrors.Wrap(pkgerrors.CodeValidation, err, "balance cannot go negative")
	default:
		return pkgerrors.Wrap(pkgerrors.CodeDependency, err, action)
	}
}
