package logger

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"strings"
	"testing"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newBuffered(opts Options) (*Logger, *bytes.Buffer) {
	buf := &bytes.Buffer{}
	opts.Output = buf
	if opts.Format == "" {
		opts.Format = "json"
	}
	if opts.ServiceName == "" {
		opts.ServiceName = "test"
	}
	return New(opts), buf
}

func lastLine(t *testing.T, buf *bytes.Buffer) map[string]any {
	t.Helper()
	lines := strings.Split(strings.TrimSpace(buf.String()), "\n")
	var entry map[string]any
	require.NoError(t, json.Unmarshal([]byte(lines[len(lines)-1]), &entry))
	return entry
}

func TestContextFieldsAccumulate(t *testing.T) {
	log, buf := newBuffered(Options{Level: zerolog.DebugLevel})

	ctx := log.WithRequestID(context.Background(), "req-123")
	ctx = log.WithOrderID(ctx, "ord_1")
	ctx = log.WithFields(ctx, map[string]any{"credits": 50})
	log.Error(ctx, "payments.credit_failed", errors.New("ledger locked"))

	entry := lastLine(t, buf)
	assert.Equal(t, "req-123", entry["request_id"])
	assert.Equal(t, "ord_1", entry["external_order_id"])
	assert.EqualValues(t, 50, entry["credits"])
	assert.Equal(t, "ledger locked", entry["error"])
	assert.Equal(t, "test", entry["service"])
	assert.NotEmpty(t, entry["stack"])
}

func TestDerivedContextDoesNotLeakIntoParent(t *testing.T) {
	log, buf := newBuffered(Options{})

	parent := log.WithUserID(context.Background(), "user-1")
	_ = log.WithActorRole(parent, "admin")
	log.Info(parent, "credits.balance_read")

	entry := lastLine(t, buf)
	assert.Equal(t, "user-1", entry["user_id"])
	assert.NotContains(t, entry, "actor_role")
}

func TestWarnStackToggle(t *testing.T) {
	quiet, quietBuf := newBuffered(Options{})
	quiet.Warn(context.Background(), "rate_limit.degraded")
	assert.NotContains(t, lastLine(t, quietBuf), "stack")

	loud, loudBuf := newBuffered(Options{WarnStack: true})
	loud.Warn(context.Background(), "rate_limit.degraded")
	assert.Contains(t, lastLine(t, loudBuf), "stack")
}

func TestLevelFiltersOutput(t *testing.T) {
	log, buf := newBuffered(Options{Level: zerolog.WarnLevel})
	log.Info(context.Background(), "quiet")
	log.Debug(context.Background(), "quieter")
	assert.Zero(t, buf.Len())
}

func TestParseLevel(t *testing.T) {
	assert.Equal(t, zerolog.InfoLevel, ParseLevel(""))
	assert.Equal(t, zerolog.InfoLevel, ParseLevel("loud"))
	assert.Equal(t, zerolog.WarnLevel, ParseLevel(" WARN "))
	assert.Equal(t, zerolog.DebugLevel, ParseLevel("debug"))
}

func TestConsoleFormat(t *testing.T) {
	log, buf := newBuffered(Options{Format: "console"})
	log.Info(context.Background(), "hello console")
	assert.False(t, bytes.HasPrefix(buf.Bytes(), []byte("{")), "got json: %s", buf.String())
	assert.Contains(t, buf.String(), "hello console")
}
