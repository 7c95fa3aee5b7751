package models

import (
	"time"

	"github.com/google/uuid"

	"github.com/angelmondragon/coachcredits-backend/pkg/enums"
)

// CreditTransaction is one immutable ledger entry. Amount is signed; BalanceAfter
// snapshots the account balance once the entry was applied.
type CreditTransaction struct {
	ID                int64                       `gorm:"column:id;primaryKey;autoIncrement"`
	UserID            uuid.UUID                   `gorm:"column:user_id;type:uuid;not null;index"`
	Amount            int64                       `gorm:"column:amount;not null"`
	Kind              enums.CreditTransactionKind `gorm:"column:kind;type:credit_transaction_kind;not null"`
	Description       string                      `gorm:"column:description;type:text;not null"`
	BalanceAfter      int64                       `gorm:"column:balance_after;not null"`
	RelatedEntityType *string                     `gorm:"column:related_entity_type"`
	RelatedEntityID   *string                     `gorm:"column:related_entity_id"`
	CreatedAt         time.Time                   `gorm:"column:created_at;autoCreateTime"`
}

func (CreditTransaction) TableName() string { return "credit_transactions" }
