package users

import (
	"context"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/angelmondragon/coachcredits-backend/pkg/db/models"
)

const day = 24 * time.Hour

// Repository reads users and writes the premium entitlement. Accounts are
// provisioned elsewhere; Create serves seeding and tests.
type Repository struct {
	db *gorm.DB
}

func NewRepository(db *gorm.DB) *Repository {
	return &Repository{db: db}
}

// WithTx returns a repository whose queries run inside tx.
func (r *Repository) WithTx(tx *gorm.DB) *Repository {
	if tx == nil {
		return r
	}
	return &Repository{db: tx}
}

func (r *Repository) byID(ctx context.Context, id uuid.UUID) *gorm.DB {
	return r.db.WithContext(ctx).Model(&models.User{}).Where("id = ?", id)
}

func (r *Repository) Create(ctx context.Context, dto CreateUserDTO) (*models.User, error) {
	user := dto.ToModel()
	if err := r.db.WithContext(ctx).Create(user).Error; err != nil {
		return nil, err
	}
	return user, nil
}

func (r *Repository) FindByID(ctx context.Context, id uuid.UUID) (*models.User, error) {
	user := &models.User{}
	if err := r.byID(ctx, id).Take(user).Error; err != nil {
		return nil, err
	}
	return user, nil
}

func (r *Repository) Exists(ctx context.Context, id uuid.UUID) (bool, error) {
	var n int64
	err := r.byID(ctx, id).Limit(1).Count(&n).Error
	return n > 0, err
}

// IsUnlimited reads the unlimited-quota flag. Unknown users are metered.
func (r *Repository) IsUnlimited(ctx context.Context, id uuid.UUID) (bool, error) {
	var flags []bool
	if err := r.byID(ctx, id).Limit(1).Pluck("is_unlimited", &flags).Error; err != nil {
		return false, err
	}
	return len(flags) == 1 && flags[0], nil
}

// ExtendPremium adds days to the premium window and returns its new end. An
// active window grows from its current end; a lapsed one restarts at now.
// The row is locked, so call it on a repository bound to a transaction.
func (r *Repository) ExtendPremium(ctx context.Context, id uuid.UUID, days int, now time.Time) (time.Time, error) {
	var current struct{ PremiumUntil *time.Time }
	err := r.byID(ctx, id).
		Clauses(clause.Locking{Strength: "UPDATE"}).
		Select("premium_until").
		Take(&current).Error
	if err != nil {
		return time.Time{}, err
	}

	start := now
	if current.PremiumUntil != nil && current.PremiumUntil.After(now) {
		start = *current.PremiumUntil
	}
	until := start.Add(time.Duration(days) * day)

	res := r.byID(ctx, id).UpdateColumns(map[string]any{"premium_until": until, "updated_at": now})
	if res.Error != nil {
		return time.Time{}, res.Error
	}
	if res.RowsAffected == 0 {
		return time.Time{}, gorm.ErrRecordNotFound
	}
	return until, nil
}

