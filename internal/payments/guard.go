package payments

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/angelmondragon/coachcredits-backend/pkg/redis"
)

const guardScope = "payment-webhook"

// IdempotencyGuard is a fast-path duplicate filter in front of the
// external_order_id constraint. Keys are removed when processing fails so
// provider retries are not swallowed.
type IdempotencyGuard struct {
	store redis.IdempotencyStore
	ttl   time.Duration
}

func NewIdempotencyGuard(store redis.IdempotencyStore, ttl time.Duration) (*IdempotencyGuard, error) {
	if store == nil {
		return nil, errors.New("idempotency store is required")
	}
	if ttl < 0 {
		return nil, errors.New("ttl must be non-negative")
	}
	return &IdempotencyGuard{store: store, ttl: ttl}, nil
}

// CheckAndMark reports whether the key was already marked.
func (g *IdempotencyGuard) CheckAndMark(ctx context.Context, key string) (bool, error) {
	if key == "" {
		return false, errors.New("event key is required")
	}
	set, err := g.store.SetNX(ctx, g.store.IdempotencyKey(guardScope, key), "1", g.ttl)
	if err != nil {
		return false, fmt.Errorf("set idempotency key: %w", err)
	}
	return !set, nil
}

func (g *IdempotencyGuard) Delete(ctx context.Context, key string) error {
	if key == "" {
		return errors.New("event key is required")
	}
	return g.store.Del(ctx, g.store.IdempotencyKey(guardScope, key))
}

func guardKey(eventName, externalOrderID string) string {
	return eventName + ":" + externalOrderID
}
