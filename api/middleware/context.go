package middleware

import (
	"context"

	"github.com/google/uuid"

	"github.com/angelmondragon/coachcredits-backend/pkg/enums"
)

type callerKey struct{}

// caller is the authenticated identity the Auth middleware attaches.
type caller struct {
	userID string
	role   enums.UserRole
}

func callerFrom(ctx context.Context) caller {
	if ctx == nil {
		return caller{}
	}
	c, _ := ctx.Value(callerKey{}).(caller)
	return c
}

func withCaller(ctx context.Context, c caller) context.Context {
	if ctx == nil {
		ctx = context.Background()
	}
	return context.WithValue(ctx, callerKey{}, c)
}

func UserIDFromContext(ctx context.Context) string {
	return callerFrom(ctx).userID
}

// UserUUIDFromContext parses the authenticated user id; ok is false when absent or malformed.
func UserUUIDFromContext(ctx context.Context) (uuid.UUID, bool) {
	id, err := uuid.Parse(callerFrom(ctx).userID)
	if err != nil {
		return uuid.Nil, false
	}
	return id, true
}

func RoleFromContext(ctx context.Context) enums.UserRole {
	return callerFrom(ctx).role
}

// WithUserID sets the caller's user id, keeping any role already present.
func WithUserID(ctx context.Context, userID string) context.Context {
	c := callerFrom(ctx)
	c.userID = userID
	return withCaller(ctx, c)
}

// WithRole sets the caller's role, keeping any user id already present.
func WithRole(ctx context.Context, role enums.UserRole) context.Context {
	c := callerFrom(ctx)
	c.role = role
	return withCaller(ctx, c)
}
