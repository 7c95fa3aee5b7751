package cron

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
)

const defaultLeaseTTL = time.Hour

// Locker hands out the sweep lease. ok is false when another worker holds it;
// unlock is only valid when ok is true.
type Locker interface {
	TryLock(ctx context.Context) (unlock func(context.Context) error, ok bool, err error)
}

type leaseStore interface {
	SetNX(ctx context.Context, key string, value any, ttl time.Duration) (bool, error)
	Get(ctx context.Context, key string) (string, error)
	Del(ctx context.Context, keys ...string) error
}

// RedisLocker leases a key with SETNX. Each lease carries a fresh token and
// unlock only deletes the key while it still holds that token.
type RedisLocker struct {
	store leaseStore
	key   string
	ttl   time.Duration
}

func NewRedisLocker(store leaseStore, key string, ttl time.Duration) (*RedisLocker, error) {
	if store == nil || key == "" {
		return nil, errors.New("cron: lease store and key are required")
	}
	if ttl <= 0 {
		ttl = defaultLeaseTTL
	}
	return &RedisLocker{store: store, key: key, ttl: ttl}, nil
}

func (l *RedisLocker) TryLock(ctx context.Context) (func(context.Context) error, bool, error) {
	token := uuid.NewString()
	ok, err := l.store.SetNX(ctx, l.key, token, l.ttl)
	if err != nil || !ok {
		if err != nil {
			err = fmt.Errorf("lease %s: %w", l.key, err)
		}
		return nil, false, err
	}
	return func(ctx context.Context) error { return l.unlock(ctx, token) }, true, nil
}

func (l *RedisLocker) unlock(ctx context.Context, token string) error {
	holder, err := l.store.Get(ctx, l.key)
	switch {
	case errors.Is(err, redis.Nil):
		return nil
	case err != nil:
		return fmt.Errorf("read lease %s: %w", l.key, err)
	case holder != token:
		// Expired and taken over by another worker.
		return nil
	}
	if err := l.store.Del(ctx, l.key); err != nil {
		return fmt.Errorf("drop lease %s: %w", l.key, err)
	}
	return nil
}
