package credits

import (
	"context"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/angelmondragon/coachcredits-backend/pkg/db/models"
	"github.com/angelmondragon/coachcredits-backend/pkg/enums"
)

// Repository persists credit accounts and their append-only transaction log.
type Repository interface {
	WithTx(tx *gorm.DB) Repository
	EnsureAccount(ctx context.Context, userID uuid.UUID) error
	LockForUpdate(ctx context.Context, userID uuid.UUID) (*models.UserCreditAccount, error)
	GetOrCreate(ctx context.Context, userID uuid.UUID) (*models.UserCreditAccount, error)
	SaveBalances(ctx context.Context, account *models.UserCreditAccount) error
	AppendTransaction(ctx context.Context, txn *models.CreditTransaction) error
	HasTransactionOfKind(ctx context.Context, userID uuid.UUID, kind enums.CreditTransactionKind) (bool, error)
	ListTransactions(ctx context.Context, userID uuid.UUID, limit, offset int) ([]models.CreditTransaction, int64, error)
	SumTransactions(ctx context.Context, userID uuid.UUID) (int64, int64, error)
	ListAccountUserIDs(ctx context.Context, after uuid.UUID, limit int) ([]uuid.UUID, error)
}

type repository struct {
	db *gorm.DB
}

// NewRepository returns a credits repository bound to the provided database.
func NewRepository(db *gorm.DB) Repository {
	return &repository{db: db}
}

func (r *repository) WithTx(tx *gorm.DB) Repository {
	if tx == nil {
		return r
	}
	return &repository{db: tx}
}

// EnsureAccount inserts a zero-balance account if none exists yet.
func (r *repository) EnsureAccount(ctx context.Context, userID uuid.UUID) error {
	now := time.Now().UTC()
	account := models.UserCreditAccount{
		UserID:    userID,
		CreatedAt: now,
		UpdatedAt: now,
	}
	return r.db.WithContext(ctx).
		Clauses(clause.OnConflict{Columns: []clause.Column{{Name: "user_id"}}, DoNothing: true}).
		Create(&account).Error
}

// LockForUpdate creates the account if needed and takes a row lock on it for the
// rest of the surrounding transaction. Must be called on a repository bound to a tx.
func (r *repository) LockForUpdate(ctx context.Context, userID uuid.UUID) (*models.UserCreditAccount, error) {
	if err := r.EnsureAccount(ctx, userID); err != nil {
		return nil, err
	}
	var account models.UserCreditAccount
	if err := r.db.WithContext(ctx).
		Clauses(clause.Locking{Strength: "UPDATE"}).
		Where("user_id = ?", userID).
		First(&account).Error; err != nil {
		return nil, err
	}
	return &account, nil
}

func (r *repository) GetOrCreate(ctx context.Context, userID uuid.UUID) (*models.UserCreditAccount, error) {
	if err := r.EnsureAccount(ctx, userID); err != nil {
		return nil, err
	}
	var account models.UserCreditAccount
	if err := r.db.WithContext(ctx).
		Where("user_id = ?", userID).
		First(&account).Error; err != nil {
		return nil, err
	}
	return &account, nil
}

func (r *repository) SaveBalances(ctx context.Context, account *models.UserCreditAccount) error {
	account.UpdatedAt = time.Now().UTC()
	return r.db.WithContext(ctx).
		Model(&models.UserCreditAccount{}).
		Where("user_id = ?", account.UserID).
		Updates(map[string]any{
			"balance":            account.Balance,
			"lifetime_purchased": account.LifetimePurchased,
			"lifetime_used":      account.LifetimeUsed,
			"updated_at":         account.UpdatedAt,
		}).Error
}

func (r *repository) AppendTransaction(ctx context.Context, txn *models.CreditTransaction) error {
	if txn.CreatedAt.IsZero() {
		txn.CreatedAt = time.Now().UTC()
	}
	return r.db.WithContext(ctx).Create(txn).Error
}

func (r *repository) HasTransactionOfKind(ctx context.Context, userID uuid.UUID, kind enums.CreditTransactionKind) (bool, error) {
	var count int64
	if err := r.db.WithContext(ctx).
		Model(&models.CreditTransaction{}).
		Where("user_id = ? AND kind = ?", userID, kind).
		Count(&count).Error; err != nil {
		return false, err
	}
	return count > 0, nil
}

// ListTransactions returns newest-first entries plus the user's total entry count.
func (r *repository) ListTransactions(ctx context.Context, userID uuid.UUID, limit, offset int) ([]models.CreditTransaction, int64, error) {
	var total int64
	if err := r.db.WithContext(ctx).
		Model(&models.CreditTransaction{}).
		Where("user_id = ?", userID).
		Count(&total).Error; err != nil {
		return nil, 0, err
	}

	var rows []models.CreditTransaction
	if err := r.db.WithContext(ctx).
		Where("user_id = ?", userID).
		Order("id DESC").
		Limit(limit).
		Offset(offset).
		Find(&rows).Error; err != nil {
		return nil, 0, err
	}
	return rows, total, nil
}

// SumTransactions returns the sum of amounts and the number of ledger rows for a user.
func (r *repository) SumTransactions(ctx context.Context, userID uuid.UUID) (int64, int64, error) {
	var result struct {
		Total int64
		Count int64
	}
	if err := r.db.WithContext(ctx).
		Model(&models.CreditTransaction{}).
		Select("COALESCE(SUM(amount), 0) AS total, COUNT(*) AS count").
		Where("user_id = ?", userID).
		Scan(&result).Error; err != nil {
		return 0, 0, err
	}
	return result.Total, result.Count, nil
}

// ListAccountUserIDs walks accounts in user id order, starting after the given id.
func (r *repository) ListAccountUserIDs(ctx context.Context, after uuid.UUID, limit int) ([]uuid.UUID, error) {
	var ids []uuid.UUID
	if err := r.db.WithContext(ctx).
		Model(&models.UserCreditAccount{}).
		Where("user_id > ?", after).
		Order("user_id ASC").
		Limit(limit).
		Pluck("user_id", &ids).Error; err != nil {
		return nil, err
	}
	return ids, nil
}
