package quota

import (
	"context"

	"github.com/google/uuid"

	"github.com/angelmondragon/coachcredits-backend/pkg/enums"
)

// UnlimitedLookup reports whether a stored user carries the unlimited flag.
type UnlimitedLookup interface {
	IsUnlimited(ctx context.Context, userID uuid.UUID) (bool, error)
}

// Resolver turns an authenticated caller into a gate principal. Configured ids,
// the owner role, and the per-user flag all grant unlimited quota.
type Resolver struct {
	ids    map[uuid.UUID]struct{}
	lookup UnlimitedLookup
}

func NewResolver(ids map[uuid.UUID]struct{}, lookup UnlimitedLookup) *Resolver {
	if ids == nil {
		ids = map[uuid.UUID]struct{}{}
	}
	return &Resolver{ids: ids, lookup: lookup}
}

func (r *Resolver) Resolve(ctx context.Context, userID uuid.UUID, role enums.UserRole) (Principal, error) {
	principal := Principal{UserID: userID}
	if role == enums.UserRoleOwner {
		principal.Unlimited = true
		return principal, nil
	}
	if _, ok := r.ids[userID]; ok {
		principal.Unlimited = true
		return principal, nil
	}
	if r.lookup == nil {
		return principal, nil
	}
	unlimited, err := r.lookup.IsUnlimited(ctx, userID)
	if err != nil {
		return Principal{}, err
	}
	principal.Unlimited = unlimited
	return principal, nil
}
