package payments

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/angelmondragon/coachcredits-backend/pkg/db"
	"github.com/angelmondragon/coachcredits-backend/pkg/db/models"
	"github.com/angelmondragon/coachcredits-backend/pkg/enums"
)

const externalOrderConstraint = "ux_payment_orders_external_order_id"

// OrderRepository owns payment_orders.
type OrderRepository interface {
	WithTx(tx *gorm.DB) OrderRepository
	FindByExternalID(ctx context.Context, externalOrderID string) (*models.PaymentOrder, error)
	InsertIfAbsent(ctx context.Context, order *models.PaymentOrder) (bool, error)
	LockPaidByExternalID(ctx context.Context, externalOrderID string) (*models.PaymentOrder, error)
	MarkRefunded(ctx context.Context, id uuid.UUID, at time.Time) error
}

type orderRepository struct {
	db *gorm.DB
}

func NewOrderRepository(conn *gorm.DB) OrderRepository {
	return &orderRepository{db: conn}
}

func (r *orderRepository) WithTx(tx *gorm.DB) OrderRepository {
	if tx == nil {
		return r
	}
	return &orderRepository{db: tx}
}

// FindByExternalID returns nil when no order exists.
func (r *orderRepository) FindByExternalID(ctx context.Context, externalOrderID string) (*models.PaymentOrder, error) {
	var order models.PaymentOrder
	err := r.db.WithContext(ctx).Where("external_order_id = ?", externalOrderID).First(&order).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &order, nil
}

// InsertIfAbsent inserts the order unless one with the same external id exists.
// It reports false for the losing side of a concurrent insert without aborting
// the surrounding transaction.
func (r *orderRepository) InsertIfAbsent(ctx context.Context, order *models.PaymentOrder) (bool, error) {
	now := time.Now().UTC()
	if order.ID == uuid.Nil {
		order.ID = uuid.New()
	}
	if order.CreatedAt.IsZero() {
		order.CreatedAt = now
	}
	order.UpdatedAt = now

	result := r.db.WithContext(ctx).
		Clauses(clause.OnConflict{Columns: []clause.Column{{Name: "external_order_id"}}, DoNothing: true}).
		Create(order)
	if result.Error != nil {
		if db.IsUniqueViolation(result.Error, externalOrderConstraint) {
			return false, nil
		}
		return false, result.Error
	}
	return result.RowsAffected > 0, nil
}

// LockPaidByExternalID row-locks a paid order. Returns nil when the order is
// unknown or already refunded.
func (r *orderRepository) LockPaidByExternalID(ctx context.Context, externalOrderID string) (*models.PaymentOrder, error) {
	var order models.PaymentOrder
	err := r.db.WithContext(ctx).
		Clauses(clause.Locking{Strength: "UPDATE"}).
		Where("external_order_id = ? AND status = ?", externalOrderID, enums.PaymentOrderStatusPaid).
		First(&order).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &order, nil
}

func (r *orderRepository) MarkRefunded(ctx context.Context, id uuid.UUID, at time.Time) error {
	return r.db.WithContext(ctx).
		Model(&models.PaymentOrder{}).
		Where("id = ? AND status = ?", id, enums.PaymentOrderStatusPaid).
		Updates(map[string]any{
			"status":      enums.PaymentOrderStatusRefunded,
			"refunded_at": at,
			"updated_at":  at,
		}).Error
}

// AuditRepository appends to payment_webhook_events.
type AuditRepository interface {
	Record(ctx context.Context, entry *models.PaymentWebhookEvent) error
}

type auditRepository struct {
	db *gorm.DB
}

func NewAuditRepository(conn *gorm.DB) AuditRepository {
	return &auditRepository{db: conn}
}

func (r *auditRepository) Record(ctx context.Context, entry *models.PaymentWebhookEvent) error {
	if entry.ID == uuid.Nil {
		entry.ID = uuid.New()
	}
	if entry.ReceivedAt.IsZero() {
		entry.ReceivedAt = time.Now().UTC()
	}
	return r.db.WithContext(ctx).Create(entry).Error
}
