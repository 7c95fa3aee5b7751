package payments

import (
	"context"
	"errors"
	"testing"
	"time"
)

type fakeIdempotencyStore struct {
	keys    map[string]bool
	setErr  error
	lastTTL time.Duration
}

func (f *fakeIdempotencyStore) SetNX(ctx context.Context, key string, value any, ttl time.Duration) (bool, error) {
	if f.setErr != nil {
		return false, f.setErr
	}
	f.lastTTL = ttl
	if f.keys[key] {
		return false, nil
	}
	f.keys[key] = true
	return true, nil
}

func (f *fakeIdempotencyStore) IdempotencyKey(scope, id string) string {
	return "cc:idempotency:" + scope + ":" + id
}

func (f *fakeIdempotencyStore) Del(ctx context.Context, keys ...string) error {
	for _, key := range keys {
		delete(f.keys, key)
	}
	return nil
}

func TestIdempotencyGuard(t *testing.T) {
	store := &fakeIdempotencyStore{keys: map[string]bool{}}
	guard, err := NewIdempotencyGuard(store, 72*time.Hour)
	if err != nil {
		t.Fatalf("new guard: %v", err)
	}
	ctx := context.Background()
	key := guardKey(EventOrderCreated, "ord_1")

	seen, err := guard.CheckAndMark(ctx, key)
	if err != nil || seen {
		t.Fatalf("first delivery: seen=%v err=%v", seen, err)
	}
	if !store.keys["cc:idempotency:payment-webhook:order_created:ord_1"] {
		t.Fatalf("unexpected keys %v", store.keys)
	}
	if store.lastTTL != 72*time.Hour {
		t.Fatalf("unexpected ttl %s", store.lastTTL)
	}

	seen, err = guard.CheckAndMark(ctx, key)
	if err != nil || !seen {
		t.Fatalf("redelivery: seen=%v err=%v", seen, err)
	}

	if err := guard.Delete(ctx, key); err != nil {
		t.Fatalf("delete: %v", err)
	}
	seen, _ = guard.CheckAndMark(ctx, key)
	if seen {
		t.Fatal("expected key to be cleared after delete")
	}

	if _, err := guard.CheckAndMark(ctx, ""); err == nil {
		t.Fatal("expected error for empty key")
	}
}

func TestIdempotencyGuardStoreError(t *testing.T) {
	storeErr := errors.New("redis down")
	guard, _ := NewIdempotencyGuard(&fakeIdempotencyStore{keys: map[string]bool{}, setErr: storeErr}, time.Hour)
	if _, err := guard.CheckAndMark(context.Background(), "k"); !errors.Is(err, storeErr) {
		t.Fatalf("expected store error, got %v", err)
	}
	if _, err := NewIdempotencyGuard(nil, time.Hour); err == nil {
		t.Fatal("expected error for nil store")
	}
}
