package notifications

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/angelmondragon/coachcredits-backend/pkg/db/models"
	"github.com/angelmondragon/coachcredits-backend/pkg/pagination"
)

type Repository interface {
	WithTx(tx *gorm.DB) Repository
	Create(ctx context.Context, n *models.Notification) error
	Page(ctx context.Context, q pageQuery) ([]models.Notification, *pagination.Cursor, error)
	MarkRead(ctx context.Context, userID, id uuid.UUID, at time.Time) (readState, error)
	MarkAllRead(ctx context.Context, userID uuid.UUID, at time.Time) (int64, error)
	DeleteReadBefore(ctx context.Context, cutoff time.Time) (int64, error)
}

// pageQuery selects one keyset page of a user's notifications.
type pageQuery struct {
	userID     uuid.UUID
	limit      int
	after      *pagination.Cursor
	unreadOnly bool
}

// readState is what MarkRead found.
type readState int

const (
	readMissing readState = iota
	readMarked
	readAlready
)

type gormRepository struct {
	db *gorm.DB
}

func NewRepository(db *gorm.DB) Repository {
	return &gormRepository{db: db}
}

func (r *gormRepository) WithTx(tx *gorm.DB) Repository {
	if tx == nil {
		return r
	}
	return &gormRepository{db: tx}
}

func (r *gormRepository) scoped(ctx context.Context, userID uuid.UUID) *gorm.DB {
	return r.db.WithContext(ctx).Model(&models.Notification{}).Where("user_id = ?", userID)
}

func (r *gormRepository) Create(ctx context.Context, n *models.Notification) error {
	return r.db.WithContext(ctx).Create(n).Error
}

func (r *gormRepository) Page(ctx context.Context, q pageQuery) ([]models.Notification, *pagination.Cursor, error) {
	tx := r.scoped(ctx, q.userID)
	if q.unreadOnly {
		tx = tx.Where("read_at IS NULL")
	}
	var rows []models.Notification
	if err := pagination.Seek(tx, q.after, q.limit).Find(&rows).Error; err != nil {
		return nil, nil, err
	}
	rows, next := pagination.Split(rows, q.limit, func(n models.Notification) pagination.Cursor {
		return pagination.Cursor{CreatedAt: n.CreatedAt, ID: n.ID}
	})
	return rows, next, nil
}

// MarkRead stamps one notification. Reading an already read notification
// keeps its original read_at.
func (r *gormRepository) MarkRead(ctx context.Context, userID, id uuid.UUID, at time.Time) (readState, error) {
	var n models.Notification
	err := r.scoped(ctx, userID).Where("id = ?", id).Take(&n).Error
	switch {
	case errors.Is(err, gorm.ErrRecordNotFound):
		return readMissing, nil
	case err != nil:
		return readMissing, err
	case n.IsRead():
		return readAlready, nil
	}
	if err := r.scoped(ctx, userID).Where("id = ? AND read_at IS NULL", id).UpdateColumn("read_at", at).Error; err != nil {
		return readMissing, err
	}
	return readMarked, nil
}

func (r *gormRepository) MarkAllRead(ctx context.Context, userID uuid.UUID, at time.Time) (int64, error) {
	res := r.scoped(ctx, userID).Where("read_at IS NULL").UpdateColumn("read_at", at)
	return res.RowsAffected, res.Error
}

// DeleteReadBefore purges read notifications created before cutoff.
func (r *gormRepository) DeleteReadBefore(ctx context.Context, cutoff time.Time) (int64, error) {
	res := r.db.WithContext(ctx).
		Where("read_at IS NOT NULL AND created_at < ?", cutoff).
		Delete(&models.Notification{})
	return res.RowsAffected, res.Error
}
