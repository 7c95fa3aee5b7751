package middleware

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/redis/go-redis/v9"

	pkgerrors "github.com/angelmondragon/coachcredits-backend/pkg/errors"
)

type fakeStore struct {
	data map[string]string
	ttls map[string]time.Duration
}

func newFakeStore() *fakeStore {
	return &fakeStore{data: map[string]string{}, ttls: map[string]time.Duration{}}
}

func (f *fakeStore) Get(_ context.Context, key string) (string, error) {
	if v, ok := f.data[key]; ok {
		return v, nil
	}
	return "", redis.Nil
}

func (f *fakeStore) SetNX(_ context.Context, key string, value any, ttl time.Duration) (bool, error) {
	if _, ok := f.data[key]; ok {
		return false, nil
	}
	f.data[key] = value.(string)
	f.ttls[key] = ttl
	return true, nil
}

func (f *fakeStore) Set(_ context.Context, key string, value any, ttl time.Duration) error {
	f.data[key] = value.(string)
	f.ttls[key] = ttl
	return nil
}

func (f *fakeStore) Del(_ context.Context, keys ...string) error {
	for _, key := range keys {
		delete(f.data, key)
		delete(f.ttls, key)
	}
	return nil
}

func (f *fakeStore) IdempotencyKey(scope, id string) string {
	return fmt.Sprintf("fake:%s:%s", scope, id)
}

const chatBody = `{"messages":[{"role":"user","content":"hi"}]}`

func postWithKey(path, key, body string) *http.Request {
	req := httptest.NewRequest(http.MethodPost, path, strings.NewReader(body))
	if key != "" {
		req.Header.Set(IdempotencyKeyHeader, key)
	}
	return req.WithContext(WithUserID(req.Context(), "user-1"))
}

func TestIdempotentRequiresHeader(t *testing.T) {
	called := false
	h := Idempotent(newFakeStore(), time.Hour, nil)(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		called = true
	}))
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, postWithKey("/api/v1/assistant/messages", "", chatBody))

	if rec.Code != http.StatusBadRequest {
		t.Fatalf("expected 400 got %d", rec.Code)
	}
	if called {
		t.Fatal("handler must not run without a key")
	}
}

func TestIdempotentRejectsOversizedKey(t *testing.T) {
	h := Idempotent(newFakeStore(), time.Hour, nil)(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {}))
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, postWithKey("/api/v1/assistant/messages", strings.Repeat("k", 300), chatBody))
	if rec.Code != http.StatusBadRequest {
		t.Fatalf("expected 400 got %d", rec.Code)
	}
}

func TestIdempotentReplaysStoredResponse(t *testing.T) {
	store := newFakeStore()
	var calls int
	h := Idempotent(store, 24*time.Hour, nil)(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls++
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusAccepted)
		_, _ = w.Write([]byte(`{"ok":true}`))
	}))

	first := httptest.NewRecorder()
	h.ServeHTTP(first, postWithKey("/api/v1/assistant/messages", "abc", chatBody))
	if first.Code != http.StatusAccepted {
		t.Fatalf("expected 202 got %d", first.Code)
	}

	second := httptest.NewRecorder()
	h.ServeHTTP(second, postWithKey("/api/v1/assistant/messages", "abc", chatBody))
	if second.Code != http.StatusAccepted {
		t.Fatalf("expected replayed 202 got %d", second.Code)
	}
	if second.Header().Get("Content-Type") != "application/json" {
		t.Fatal("content type not replayed")
	}
	if second.Header().Get(ReplayedHeader) != "true" {
		t.Fatal("replay header missing")
	}
	if second.Body.String() != `{"ok":true}` {
		t.Fatalf("unexpected replay body %s", second.Body.String())
	}
	if calls != 1 {
		t.Fatalf("handler ran %d times", calls)
	}
	for _, ttl := range store.ttls {
		if ttl != 24*time.Hour {
			t.Fatalf("expected 24h ttl, got %s", ttl)
		}
	}
}

func TestIdempotentScopesKeysByPath(t *testing.T) {
	var calls int
	h := Idempotent(newFakeStore(), time.Hour, nil)(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls++
		w.WriteHeader(http.StatusOK)
	}))
	h.ServeHTTP(httptest.NewRecorder(), postWithKey("/api/v1/notifications/a/read", "same", ""))
	h.ServeHTTP(httptest.NewRecorder(), postWithKey("/api/v1/notifications/b/read", "same", ""))
	if calls != 2 {
		t.Fatalf("expected distinct paths to both run, calls=%d", calls)
	}
}

func TestIdempotentDetectsBodyChange(t *testing.T) {
	h := Idempotent(newFakeStore(), time.Hour, nil)(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	}))
	h.ServeHTTP(httptest.NewRecorder(), postWithKey("/api/v1/assistant/messages", "xyz", chatBody))

	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, postWithKey("/api/v1/assistant/messages", "xyz", `{"messages":[{"role":"user","content":"bye"}]}`))
	if rec.Code != http.StatusConflict {
		t.Fatalf("expected 409 got %d", rec.Code)
	}
	var payload struct {
		Error struct {
			Code string `json:"code"`
		} `json:"error"`
	}
	if err := json.Unmarshal(rec.Body.Bytes(), &payload); err != nil {
		t.Fatalf("decode error: %v", err)
	}
	if payload.Error.Code != string(pkgerrors.CodeIdempotency) {
		t.Fatalf("expected %s got %s", pkgerrors.CodeIdempotency, payload.Error.Code)
	}
}

func TestIdempotentDoesNotStoreServerErrors(t *testing.T) {
	var calls int
	h := Idempotent(newFakeStore(), time.Hour, nil)(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls++
		if calls == 1 {
			w.WriteHeader(http.StatusServiceUnavailable)
			return
		}
		w.WriteHeader(http.StatusOK)
	}))
	for i := 0; i < 2; i++ {
		h.ServeHTTP(httptest.NewRecorder(), postWithKey("/api/v1/assistant/messages", "retry-me", `{}`))
	}
	if calls != 2 {
		t.Fatalf("expected retry after 503 to reach handler, calls=%d", calls)
	}
}

func TestIdempotentWithoutStorePassesThrough(t *testing.T) {
	called := false
	h := Idempotent(nil, time.Hour, nil)(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		called = true
	}))
	h.ServeHTTP(httptest.NewRecorder(), postWithKey("/api/v1/assistant/messages", "", chatBody))
	if !called {
		t.Fatal("expected pass-through when store is nil")
	}
}

func TestIdempotentRejectsDuplicateWhileFirstIsRunning(t *testing.T) {
	var (
		calls int
		h     http.Handler
		inner *httptest.ResponseRecorder
	)
	h = Idempotent(newFakeStore(), time.Hour, nil)(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls++
		if calls == 1 {
			inner = httptest.NewRecorder()
			h.ServeHTTP(inner, postWithKey("/api/v1/assistant/messages", "dup", chatBody))
		}
		w.WriteHeader(http.StatusOK)
	}))

	first := httptest.NewRecorder()
	h.ServeHTTP(first, postWithKey("/api/v1/assistant/messages", "dup", chatBody))

	if first.Code != http.StatusOK {
		t.Fatalf("expected 200 for the first request, got %d", first.Code)
	}
	if inner.Code != http.StatusConflict {
		t.Fatalf("expected 409 while the first request runs, got %d", inner.Code)
	}
	if calls != 1 {
		t.Fatalf("handler ran %d times", calls)
	}

	replayed := httptest.NewRecorder()
	h.ServeHTTP(replayed, postWithKey("/api/v1/assistant/messages", "dup", chatBody))
	if replayed.Code != http.StatusOK || replayed.Header().Get(ReplayedHeader) != "true" {
		t.Fatalf("expected replay after completion, got %d", replayed.Code)
	}
}

func TestIdempotentReleasesReservationOnServerError(t *testing.T) {
	store := newFakeStore()
	h := Idempotent(store, time.Hour, nil)(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusBadGateway)
	}))
	h.ServeHTTP(httptest.NewRecorder(), postWithKey("/api/v1/assistant/messages", "gone", chatBody))
	if len(store.data) != 0 {
		t.Fatalf("expected reservation released, store=%v", store.data)
	}
}

func TestIdempotentCapsBodySize(t *testing.T) {
	called := false
	h := Idempotent(newFakeStore(), time.Hour, nil)(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		called = true
	}))
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, postWithKey("/api/v1/assistant/messages", "big", strings.Repeat("x", maxIdempotentBodyBytes+1)))
	if rec.Code != http.StatusBadRequest {
		t.Fatalf("expected 400 got %d", rec.Code)
	}
	if called {
		t.Fatal("handler must not run for an oversized body")
	}
}
