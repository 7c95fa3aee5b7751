// Package dbtest opens throwaway sqlite databases carrying the ledger schema.
package dbtest

import (
	"fmt"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/require"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	gormlogger "gorm.io/gorm/logger"
)

var schema = []string{
	`CREATE TABLE users (
  id TEXT PRIMARY KEY,
  email TEXT NOT NULL UNIQUE,
  display_name TEXT NOT NULL DEFAULT '',
  role TEXT NOT NULL DEFAULT 'coach',
  is_unlimited INTEGER NOT NULL DEFAULT 0,
  premium_until DATETIME,
  created_at DATETIME,
  updated_at DATETIME
);`,
	`CREATE TABLE user_credit_accounts (
  user_id TEXT PRIMARY KEY,
  balance INTEGER NOT NULL DEFAULT 0 CHECK (balance >= 0),
  lifetime_purchased INTEGER NOT NULL DEFAULT 0,
  lifetime_used INTEGER NOT NULL DEFAULT 0,
  created_at DATETIME,
  updated_at DATETIME
);`,
	`CREATE TABLE credit_transactions (
  id INTEGER PRIMARY KEY AUTOINCREMENT,
  user_id TEXT NOT NULL,
  amount INTEGER NOT NULL CHECK (amount <> 0),
  kind TEXT NOT NULL,
  description TEXT NOT NULL,
  balance_after INTEGER NOT NULL,
  related_entity_type TEXT,
  related_entity_id TEXT,
  created_at DATETIME
);`,
	`CREATE TABLE payment_orders (
  id TEXT PRIMARY KEY,
  external_order_id TEXT NOT NULL,
  user_id TEXT NOT NULL,
  variant_id TEXT NOT NULL,
  product_id TEXT,
  credits_amount INTEGER NOT NULL,
  amount_paid TEXT NOT NULL,
  currency TEXT NOT NULL,
  status TEXT NOT NULL,
  raw_payload TEXT NOT NULL,
  received_at DATETIME NOT NULL,
  refunded_at DATETIME,
  created_at DATETIME,
  updated_at DATETIME,
  CONSTRAINT ux_payment_orders_external_order_id UNIQUE (external_order_id)
);`,
	`CREATE TABLE payment_webhook_events (
  id TEXT PRIMARY KEY,
  provider TEXT NOT NULL,
  event_name TEXT NOT NULL,
  external_order_id TEXT,
  outcome TEXT NOT NULL,
  error TEXT,
  raw_payload TEXT NOT NULL,
  received_at DATETIME NOT NULL
);`,
	`CREATE TABLE referral_rewards (
  referral_id TEXT PRIMARY KEY,
  referrer_user_id TEXT NOT NULL,
  reward_type TEXT NOT NULL,
  credits INTEGER NOT NULL DEFAULT 0,
  premium_days INTEGER NOT NULL DEFAULT 0,
  granted_at DATETIME NOT NULL
);`,
	`CREATE TABLE notifications (
  id TEXT PRIMARY KEY,
  user_id TEXT NOT NULL,
  type TEXT NOT NULL,
  title TEXT NOT NULL,
  message TEXT NOT NULL,
  link TEXT,
  read_at DATETIME,
  created_at DATETIME DEFAULT CURRENT_TIMESTAMP
);`,
	`CREATE TABLE outbox_events (
  id TEXT PRIMARY KEY,
  event_type TEXT NOT NULL,
  aggregate_type TEXT NOT NULL,
  aggregate_id TEXT NOT NULL,
  payload TEXT NOT NULL,
  created_at DATETIME,
  published_at DATETIME,
  attempt_count INTEGER NOT NULL DEFAULT 0,
  last_error TEXT
);`,
	`CREATE TABLE outbox_dlq (
  id TEXT PRIMARY KEY,
  event_id TEXT NOT NULL,
  event_type TEXT NOT NULL,
  aggregate_type TEXT NOT NULL,
  aggregate_id TEXT NOT NULL,
  payload_json TEXT NOT NULL,
  error_reason TEXT NOT NULL,
  error_message TEXT,
  attempt_count INTEGER NOT NULL DEFAULT 0,
  failed_at DATETIME,
  created_at DATETIME
);`,
}

// Open returns an isolated in-memory database with the full schema. The pool is
// pinned to one connection so concurrent transactions serialize the way row
// locks serialize them in Postgres.
func Open(t testing.TB) *gorm.DB {
	t.Helper()

	dsn := fmt.Sprintf("file:%s?mode=memory&cache=shared&_busy_timeout=5000", uuid.NewString())
	conn, err := gorm.Open(sqlite.Open(dsn), &gorm.Config{
		SkipDefaultTransaction: true,
		Logger:                 gormlogger.Default.LogMode(gormlogger.Silent),
	})
	require.NoError(t, err)

	sqlDB, err := conn.DB()
	require.NoError(t, err)
	sqlDB.SetMaxOpenConns(1)
	t.Cleanup(func() { _ = sqlDB.Close() })

	for _, stmt := range schema {
		require.NoError(t, conn.Exec(stmt).Error)
	}
	return conn
}
