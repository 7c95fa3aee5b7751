package rewards

import (
	"context"
	"errors"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/angelmondragon/coachcredits-backend/pkg/db/models"
)

// Repository owns referral_rewards.
type Repository interface {
	WithTx(tx *gorm.DB) Repository
	Find(ctx context.Context, referralID string) (*models.ReferralReward, error)
	InsertIfAbsent(ctx context.Context, reward *models.ReferralReward) (bool, error)
}

type repository struct {
	db *gorm.DB
}

func NewRepository(db *gorm.DB) Repository {
	return &repository{db: db}
}

func (r *repository) WithTx(tx *gorm.DB) Repository {
	if tx == nil {
		return r
	}
	return &repository{db: tx}
}

// Find returns nil when the referral was never rewarded.
func (r *repository) Find(ctx context.Context, referralID string) (*models.ReferralReward, error) {
	var reward models.ReferralReward
	err := r.db.WithContext(ctx).Where("referral_id = ?", referralID).First(&reward).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &reward, nil
}

// InsertIfAbsent claims the referral id. False means another grant already owns it.
func (r *repository) InsertIfAbsent(ctx context.Context, reward *models.ReferralReward) (bool, error) {
	result := r.db.WithContext(ctx).
		Clauses(clause.OnConflict{Columns: []clause.Column{{Name: "referral_id"}}, DoNothing: true}).
		Create(reward)
	if result.Error != nil {
		return false, result.Error
	}
	return result.RowsAffected > 0, nil
}
