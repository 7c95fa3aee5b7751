package payments

import (
	"fmt"

	pkgerrors "github.com/angelmondragon/coachcredits-backend/pkg/errors"
)

// Catalog maps provider variant ids to credit pack sizes.
type Catalog struct {
	credits map[string]int64
}

func NewCatalog(credits map[string]int64) *Catalog {
	copied := make(map[string]int64, len(credits))
	for variant, amount := range credits {
		copied[variant] = amount
	}
	return &Catalog{credits: copied}
}

// Resolve returns the credits granted for a variant. Unknown or non-positive
// packs fail instead of granting zero.
func (c *Catalog) Resolve(variantID string) (int64, error) {
	amount, ok := c.credits[variantID]
	if variantID == "" || !ok || amount <= 0 {
		return 0, pkgerrors.New(pkgerrors.CodeUnknownProduct, fmt.Sprintf("unknown product variant %q", variantID)).
			WithDetails(map[string]any{"variant_id": variantID})
	}
	return amount, nil
}
