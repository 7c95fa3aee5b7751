package enums

// CreditTransactionKind classifies a ledger entry.
type CreditTransactionKind string

const (
	CreditKindTrial    CreditTransactionKind = "trial"
	CreditKindPurchase CreditTransactionKind = "purchase"
	CreditKindUsage    CreditTransactionKind = "usage"
	CreditKindRefund   CreditTransactionKind = "refund"
	CreditKindReward   CreditTransactionKind = "reward"
)

var creditKinds = values[CreditTransactionKind]{CreditKindTrial, CreditKindPurchase, CreditKindUsage, CreditKindRefund, CreditKindReward}

func (k CreditTransactionKind) IsValid() bool { return creditKinds.has(k) }

// IsGrant reports whether entries of this kind carry a positive amount.
func (k CreditTransactionKind) IsGrant() bool {
	return k == CreditKindTrial || k == CreditKindPurchase || k == CreditKindReward
}

func ParseCreditTransactionKind(raw string) (CreditTransactionKind, error) {
	return creditKinds.parse("credit transaction kind", raw)
}
