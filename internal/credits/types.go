package credits

import (
	"time"

	"github.com/google/uuid"

	"github.com/angelmondragon/coachcredits-backend/pkg/db/models"
	"github.com/angelmondragon/coachcredits-backend/pkg/enums"
)

// RelatedEntity points a ledger entry at the object that caused it.
type RelatedEntity struct {
	Type string `json:"type"`
	ID   string `json:"id"`
}

// AddCreditsInput describes a signed balance adjustment.
type AddCreditsInput struct {
	UserID      uuid.UUID
	Amount      int64
	Kind        enums.CreditTransactionKind
	Description string
	Related     *RelatedEntity
}

// DebitStatus tags the business outcome of a debit attempt.
type DebitStatus string

const (
	DebitApplied      DebitStatus = "applied"
	DebitInsufficient DebitStatus = "insufficient"
)

// DebitResult is returned for every debit that reached the ledger. Balance is the
// post-debit balance when applied, or the unchanged balance when insufficient.
// Storage failures are reported through the accompanying error instead.
type DebitResult struct {
	Status  DebitStatus `json:"status"`
	Balance int64       `json:"balance"`
}

func (r DebitResult) Applied() bool {
	return r.Status == DebitApplied
}

// TrialResult reports whether a trial grant happened on this call.
type TrialResult struct {
	Granted bool  `json:"granted"`
	Credits int64 `json:"credits"`
	Balance int64 `json:"balance"`
}

// BalanceDTO is the read model for a user's account.
type BalanceDTO struct {
	UserID            uuid.UUID `json:"user_id"`
	Balance           int64     `json:"balance"`
	LifetimePurchased int64     `json:"lifetime_purchased"`
	LifetimeUsed      int64     `json:"lifetime_used"`
}

// TransactionDTO is the API shape of a ledger entry.
type TransactionDTO struct {
	ID            int64                       `json:"id"`
	Amount        int64                       `json:"amount"`
	Kind          enums.CreditTransactionKind `json:"kind"`
	Description   string                      `json:"description"`
	BalanceAfter  int64                       `json:"balance_after"`
	RelatedEntity *RelatedEntity              `json:"related_entity,omitempty"`
	CreatedAt     time.Time                   `json:"created_at"`
}

// TransactionPage is one page of a user's ledger, newest first.
type TransactionPage struct {
	Items      []TransactionDTO `json:"items"`
	Page       int              `json:"page"`
	PageSize   int              `json:"page_size"`
	Total      int64            `json:"total"`
	TotalPages int              `json:"total_pages"`
}

// AuditReport compares the stored balance with the ledger sum.
type AuditReport struct {
	UserID           uuid.UUID `json:"user_id"`
	Balance          int64     `json:"balance"`
	LedgerSum        int64     `json:"ledger_sum"`
	TransactionCount int64     `json:"transaction_count"`
	Consistent       bool      `json:"consistent"`
}

func balanceFromModel(account *models.UserCreditAccount) *BalanceDTO {
	return &BalanceDTO{
		UserID:            account.UserID,
		Balance:           account.Balance,
		LifetimePurchased: account.LifetimePurchased,
		LifetimeUsed:      account.LifetimeUsed,
	}
}

func transactionFromModel(txn models.CreditTransaction) TransactionDTO {
	dto := TransactionDTO{
		ID:           txn.ID,
		Amount:       txn.Amount,
		Kind:         txn.Kind,
		Description:  txn.Description,
		BalanceAfter: txn.BalanceAfter,
		CreatedAt:    txn.CreatedAt,
	}
	if txn.RelatedEntityType != nil && txn.RelatedEntityID != nil {
		dto.RelatedEntity = &RelatedEntity{Type: *txn.RelatedEntityType, ID: *txn.RelatedEntityID}
	}
	return dto
}
