package credits

import (
	"context"
	"errors"
	"io"
	"sync"
	"testing"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"

	"github.com/angelmondragon/coachcredits-backend/pkg/db"
	"github.com/angelmondragon/coachcredits-backend/pkg/db/dbtest"
	"github.com/angelmondragon/coachcredits-backend/pkg/db/models"
	"github.com/angelmondragon/coachcredits-backend/pkg/enums"
	pkgerrors "github.com/angelmondragon/coachcredits-backend/pkg/errors"
	"github.com/angelmondragon/coachcredits-backend/pkg/logger"
	"github.com/angelmondragon/coachcredits-backend/pkg/pagination"
)

func newTestService(t *testing.T) (Service, *gorm.DB) {
	t.Helper()
	conn := dbtest.Open(t)
	svc, err := NewService(ServiceParams{
		Repo:        NewRepository(conn),
		TxRunner:    db.NewFromConn(conn),
		Logger:      logger.New(logger.Options{ServiceName: "credits-test", Output: io.Discard}),
		TrialAmount: 25,
	})
	require.NoError(t, err)
	return svc, conn
}

func assertLedgerInvariant(t *testing.T, conn *gorm.DB, userID uuid.UUID) {
	t.Helper()
	var account models.UserCreditAccount
	require.NoError(t, conn.Where("user_id = ?", userID).First(&account).Error)

	var sum int64
	require.NoError(t, conn.Model(&models.CreditTransaction{}).
		Select("COALESCE(SUM(amount), 0)").
		Where("user_id = ?", userID).
		Scan(&sum).Error)

	assert.Equal(t, sum, account.Balance, "balance must equal the ledger sum")
	assert.GreaterOrEqual(t, account.Balance, int64(0))
}

func TestNewServiceValidatesDependencies(t *testing.T) {
	_, err := NewService(ServiceParams{})
	require.Error(t, err)
	assert.True(t, pkgerrors.IsCode(err, pkgerrors.CodeInternal))
}

func TestInitTrialCreditsGrantsOnce(t *testing.T) {
	svc, conn := newTestService(t)
	ctx := context.Background()
	userID := uuid.New()

	result, err := svc.InitTrialCredits(ctx, userID)
	require.NoError(t, err)
	assert.True(t, result.Granted)
	assert.Equal(t, int64(25), result.Balance)

	page, err := svc.ListTransactions(ctx, userID, pagination.Page{})
	require.NoError(t, err)
	require.Len(t, page.Items, 1)
	assert.Equal(t, enums.CreditKindTrial, page.Items[0].Kind)
	assert.Equal(t, int64(25), page.Items[0].BalanceAfter)
	assert.Equal(t, int64(25), page.Items[0].Amount)

	again, err := svc.InitTrialCredits(ctx, userID)
	require.NoError(t, err)
	assert.False(t, again.Granted)
	assert.Equal(t, int64(25), again.Balance)

	balance, err := svc.GetBalance(ctx, userID)
	require.NoError(t, err)
	assert.Equal(t, int64(25), balance.Balance)
	assert.Equal(t, int64(0), balance.LifetimePurchased, "trial credits are not purchases")
	assertLedgerInvariant(t, conn, userID)
}

func TestDeductOneFromLastCredit(t *testing.T) {
	svc, conn := newTestService(t)
	ctx := context.Background()
	userID := uuid.New()

	_, err := svc.AddCredits(ctx, AddCreditsInput{
		UserID: userID, Amount: 1, Kind: enums.CreditKindReward, Description: "seed",
	})
	require.NoError(t, err)

	first, err := svc.DeductOne(ctx, userID, "Coach chat message", &RelatedEntity{Type: "chat_session", ID: "s-1"})
	require.NoError(t, err)
	assert.True(t, first.Applied())
	assert.Equal(t, int64(0), first.Balance)

	second, err := svc.DeductOne(ctx, userID, "Coach chat message", nil)
	require.NoError(t, err)
	assert.Equal(t, DebitInsufficient, second.Status)
	assert.Equal(t, int64(0), second.Balance)

	balance, err := svc.GetBalance(ctx, userID)
	require.NoError(t, err)
	assert.Equal(t, int64(0), balance.Balance)
	assert.Equal(t, int64(1), balance.LifetimeUsed)

	page, err := svc.ListTransactions(ctx, userID, pagination.Page{Page: 1, PageSize: 10})
	require.NoError(t, err)
	require.Len(t, page.Items, 2, "insufficient debit must not write a ledger row")
	require.NotNil(t, page.Items[0].RelatedEntity)
	assert.Equal(t, "chat_session", page.Items[0].RelatedEntity.Type)
	assertLedgerInvariant(t, conn, userID)
}

// dbtest pins sqlite to one connection, so these callers are serialized by the
// pool rather than by the FOR UPDATE row lock. The test pins the invariant, not
// the Postgres locking path.
func TestConcurrentDeductOneNeverOverdraws(t *testing.T) {
	svc, conn := newTestService(t)
	ctx := context.Background()
	userID := uuid.New()

	const (
		starting = 7
		callers  = 20
	)
	_, err := svc.AddCredits(ctx, AddCreditsInput{
		UserID: userID, Amount: starting, Kind: enums.CreditKindPurchase, Description: "pack",
	})
	require.NoError(t, err)

	var (
		wg           sync.WaitGroup
		mu           sync.Mutex
		applied      int
		insufficient int
		failures     []error
	)
	for i := 0; i < callers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			result, err := svc.DeductOne(ctx, userID, "Coach chat message", nil)
			mu.Lock()
			defer mu.Unlock()
			if err != nil {
				failures = append(failures, err)
				return
			}
			if result.Applied() {
				applied++
			} else {
				insufficient++
			}
		}()
	}
	wg.Wait()

	require.Empty(t, failures)
	assert.Equal(t, starting, applied)
	assert.Equal(t, callers-starting, insufficient)

	balance, err := svc.GetBalance(ctx, userID)
	require.NoError(t, err)
	assert.Equal(t, int64(0), balance.Balance)
	assert.Equal(t, int64(starting), balance.LifetimeUsed)
	assertLedgerInvariant(t, conn, userID)
}

func TestAddCreditsTracksLifetimePurchasedForPurchasesOnly(t *testing.T) {
	svc, _ := newTestService(t)
	ctx := context.Background()
	userID := uuid.New()

	_, err := svc.AddCredits(ctx, AddCreditsInput{UserID: userID, Amount: 50, Kind: enums.CreditKindPurchase, Description: "pack"})
	require.NoError(t, err)
	_, err = svc.AddCredits(ctx, AddCreditsInput{UserID: userID, Amount: 10, Kind: enums.CreditKindReward, Description: "referral"})
	require.NoError(t, err)
	newBalance, err := svc.AddCredits(ctx, AddCreditsInput{
		UserID: userID, Amount: -20, Kind: enums.CreditKindRefund, Description: "refund",
		Related: &RelatedEntity{Type: "payment_order", ID: "ord_1"},
	})
	require.NoError(t, err)
	assert.Equal(t, int64(40), newBalance)

	balance, err := svc.GetBalance(ctx, userID)
	require.NoError(t, err)
	assert.Equal(t, int64(50), balance.LifetimePurchased, "refunds never lower lifetime_purchased")
	assert.Equal(t, int64(0), balance.LifetimeUsed)
}

func TestAddCreditsValidation(t *testing.T) {
	svc, _ := newTestService(t)
	ctx := context.Background()
	userID := uuid.New()

	cases := []AddCreditsInput{
		{UserID: uuid.Nil, Amount: 1, Kind: enums.CreditKindReward, Description: "x"},
		{UserID: userID, Amount: 0, Kind: enums.CreditKindReward, Description: "x"},
		{UserID: userID, Amount: 1, Kind: "bonus", Description: "x"},
		{UserID: userID, Amount: -5, Kind: enums.CreditKindPurchase, Description: "x"},
		{UserID: userID, Amount: 5, Kind: enums.CreditKindRefund, Description: "x"},
		{UserID: userID, Amount: 5, Kind: enums.CreditKindReward, Description: " "},
		{UserID: userID, Amount: 5, Kind: enums.CreditKindReward, Description: "x", Related: &RelatedEntity{Type: "order"}},
	}
	for _, input := range cases {
		_, err := svc.AddCredits(ctx, input)
		require.Error(t, err, "input %+v", input)
		assert.True(t, pkgerrors.IsCode(err, pkgerrors.CodeValidation), "input %+v got %v", input, err)
	}
}

func TestAddCreditsTxRollsBackWithCaller(t *testing.T) {
	svc, conn := newTestService(t)
	ctx := context.Background()
	userID := uuid.New()
	client := db.NewFromConn(conn)

	boom := errors.New("order insert failed")
	err := client.WithTx(ctx, func(tx *gorm.DB) error {
		if _, err := svc.AddCreditsTx(ctx, tx, AddCreditsInput{
			UserID: userID, Amount: 50, Kind: enums.CreditKindPurchase, Description: "pack",
		}); err != nil {
			return err
		}
		return boom
	})
	require.ErrorIs(t, err, boom)

	var txCount int64
	require.NoError(t, conn.Model(&models.CreditTransaction{}).Count(&txCount).Error)
	assert.Equal(t, int64(0), txCount)

	balance, err := svc.GetBalance(ctx, userID)
	require.NoError(t, err)
	assert.Equal(t, int64(0), balance.Balance)
}

func TestListTransactionsPaginates(t *testing.T) {
	svc, _ := newTestService(t)
	ctx := context.Background()
	userID := uuid.New()

	_, err := svc.AddCredits(ctx, AddCreditsInput{UserID: userID, Amount: 5, Kind: enums.CreditKindPurchase, Description: "pack"})
	require.NoError(t, err)
	for i := 0; i < 4; i++ {
		_, err := svc.DeductOne(ctx, userID, "chat", nil)
		require.NoError(t, err)
	}

	page, err := svc.ListTransactions(ctx, userID, pagination.Page{Page: 2, PageSize: 2})
	require.NoError(t, err)
	assert.Equal(t, int64(5), page.Total)
	assert.Equal(t, 3, page.TotalPages)
	require.Len(t, page.Items, 2)
	// newest first: balances run 1,2 | 3,4 | 5
	assert.Equal(t, int64(3), page.Items[0].BalanceAfter)
	assert.Equal(t, int64(4), page.Items[1].BalanceAfter)
}

func TestAuditReportsConsistency(t *testing.T) {
	svc, conn := newTestService(t)
	ctx := context.Background()
	userID := uuid.New()

	_, err := svc.InitTrialCredits(ctx, userID)
	require.NoError(t, err)
	_, err = svc.DeductOne(ctx, userID, "chat", nil)
	require.NoError(t, err)

	report, err := svc.Audit(ctx, userID)
	require.NoError(t, err)
	assert.True(t, report.Consistent)
	assert.Equal(t, int64(24), report.Balance)
	assert.Equal(t, int64(24), report.LedgerSum)
	assert.Equal(t, int64(2), report.TransactionCount)

	require.NoError(t, conn.Exec("UPDATE user_credit_accounts SET balance = 99 WHERE user_id = ?", userID.String()).Error)
	report, err = svc.Audit(ctx, userID)
	require.NoError(t, err)
	assert.False(t, report.Consistent)
}

type failingRepo struct {
	Repository
	err error
}

func (f *failingRepo) WithTx(tx *gorm.DB) Repository { return f }

func (f *failingRepo) LockForUpdate(ctx context.Context, userID uuid.UUID) (*models.UserCreditAccount, error) {
	return nil, f.err
}

type passthroughTx struct{}

func (passthroughTx) WithTx(ctx context.Context, fn func(tx *gorm.DB) error) error {
	return fn(nil)
}

func TestDeductOneSurfacesStorageErrors(t *testing.T) {
	storageErr := errors.New("could not serialize access")
	svc, err := NewService(ServiceParams{
		Repo:     &failingRepo{err: storageErr},
		TxRunner: passthroughTx{},
		Logger:   logger.New(logger.Options{ServiceName: "credits-test", Output: io.Discard}),
	})
	require.NoError(t, err)

	result, err := svc.DeductOne(context.Background(), uuid.New(), "chat", nil)
	require.Error(t, err)
	assert.ErrorIs(t, err, storageErr)
	assert.True(t, pkgerrors.IsCode(err, pkgerrors.CodeDependency))
	assert.Equal(t, DebitResult{}, result)
}

func TestStorageErrorsThatRetriesCannotFix(t *testing.T) {
	newFailing := func(err error) Service {
		svc, buildErr := NewService(ServiceParams{
			Repo:     &failingRepo{err: err},
			TxRunner: passthroughTx{},
			Logger:   logger.New(logger.Options{ServiceName: "credits-test", Output: io.Discard}),
		})
		require.NoError(t, buildErr)
		return svc
	}

	_, err := newFailing(&pgconn.PgError{Code: "23503"}).DeductOne(context.Background(), uuid.New(), "chat", nil)
	assert.True(t, pkgerrors.IsCode(err, pkgerrors.CodeUnknownUser), "got %v", err)

	_, err = newFailing(&pgconn.PgError{Code: "23514"}).AddCredits(context.Background(), AddCreditsInput{
		UserID: uuid.New(), Amount: -3, Kind: enums.CreditKindRefund, Description: "refund",
	})
	assert.True(t, pkgerrors.IsCode(err, pkgerrors.CodeValidation), "got %v", err)
}

func TestRefundPastZeroIsRejectedByBalanceCheck(t *testing.T) {
	svc, conn := newTestService(t)
	ctx := context.Background()
	userID := uuid.New()

	_, err := svc.AddCredits(ctx, AddCreditsInput{UserID: userID, Amount: 5, Kind: enums.CreditKindPurchase, Description: "pack"})
	require.NoError(t, err)

	_, err = svc.AddCredits(ctx, AddCreditsInput{UserID: userID, Amount: -10, Kind: enums.CreditKindRefund, Description: "refund"})
	require.Error(t, err)
	assert.True(t, pkgerrors.IsCode(err, pkgerrors.CodeValidation), "got %v", err)

	balance, err := svc.GetBalance(ctx, userID)
	require.NoError(t, err)
	assert.Equal(t, int64(5), balance.Balance)
	assertLedgerInvariant(t, conn, userID)
}
