package users

import (
	"context"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/angelmondragon/coachcredits-backend/pkg/db/dbtest"
	"github.com/angelmondragon/coachcredits-backend/pkg/enums"
)

func TestRepositoryLookups(t *testing.T) {
	repo := NewRepository(dbtest.Open(t))
	ctx := context.Background()

	user, err := repo.Create(ctx, CreateUserDTO{Email: "coach@example.com", Role: enums.UserRoleCoach, IsUnlimited: true})
	require.NoError(t, err)

	exists, err := repo.Exists(ctx, user.ID)
	require.NoError(t, err)
	assert.True(t, exists)

	exists, err = repo.Exists(ctx, uuid.New())
	require.NoError(t, err)
	assert.False(t, exists)

	unlimited, err := repo.IsUnlimited(ctx, user.ID)
	require.NoError(t, err)
	assert.True(t, unlimited)

	unlimited, err = repo.IsUnlimited(ctx, uuid.New())
	require.NoError(t, err)
	assert.False(t, unlimited)

	dto := FromModel(user)
	assert.Equal(t, "coach", dto.Role)
}

func TestRepositoryExtendPremium(t *testing.T) {
	conn := dbtest.Open(t)
	repo := NewRepository(conn)
	ctx := context.Background()
	now := time.Date(2026, 10, 1, 12, 0, 0, 0, time.UTC)

	user, err := repo.Create(ctx, CreateUserDTO{Email: "referrer@example.com"})
	require.NoError(t, err)

	until, err := repo.ExtendPremium(ctx, user.ID, 7, now)
	require.NoError(t, err)
	assert.WithinDuration(t, now.Add(7*24*time.Hour), until, time.Second)

	// an active entitlement extends from its current end, not from now
	until, err = repo.ExtendPremium(ctx, user.ID, 7, now.Add(24*time.Hour))
	require.NoError(t, err)
	assert.WithinDuration(t, now.Add(14*24*time.Hour), until, time.Second)

	stored, err := repo.FindByID(ctx, user.ID)
	require.NoError(t, err)
	require.NotNil(t, stored.PremiumUntil)
	assert.WithinDuration(t, until, *stored.PremiumUntil, time.Second)

	// a lapsed entitlement restarts from now
	later := now.Add(30 * 24 * time.Hour)
	until, err = repo.ExtendPremium(ctx, user.ID, 7, later)
	require.NoError(t, err)
	assert.WithinDuration(t, later.Add(7*24*time.Hour), until, time.Second)
}
