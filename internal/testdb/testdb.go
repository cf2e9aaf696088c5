// Package testdb opens an in-memory sqlite database carrying the deal-room
// schema for repository and service tests.
package testdb

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/require"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"

	dbpkg "github.com/angelmondragon/dealroom-backend/pkg/db"
)

var schema = []string{
	`CREATE TABLE IF NOT EXISTS rights (
  id TEXT PRIMARY KEY,
  owner_id TEXT NOT NULL,
  title TEXT NOT NULL,
  status TEXT NOT NULL DEFAULT 'draft',
  created_at DATETIME,
  updated_at DATETIME
);`,
	`CREATE TABLE IF NOT EXISTS rooms (
  id TEXT PRIMARY KEY,
  title TEXT NOT NULL,
  type TEXT NOT NULL,
  status TEXT NOT NULL DEFAULT 'setup',
  right_id TEXT,
  created_by TEXT NOT NULL,
  created_at DATETIME,
  updated_at DATETIME
);`,
	`CREATE TABLE IF NOT EXISTS room_participants (
  id TEXT PRIMARY KEY,
  room_id TEXT NOT NULL,
  user_id TEXT NOT NULL,
  role TEXT NOT NULL,
  created_at DATETIME
);`,
	`CREATE UNIQUE INDEX IF NOT EXISTS ux_room_participants_room_user ON room_participants (room_id, user_id);`,
	`CREATE TABLE IF NOT EXISTS offers (
  id TEXT PRIMARY KEY,
  room_id TEXT NOT NULL,
  created_by TEXT NOT NULL,
  version INTEGER NOT NULL,
  price TEXT NOT NULL,
  terms TEXT NOT NULL DEFAULT '',
  message TEXT,
  status TEXT NOT NULL DEFAULT 'sent',
  resolved_by TEXT,
  resolved_at DATETIME,
  created_at DATETIME,
  updated_at DATETIME
);`,
	`CREATE UNIQUE INDEX IF NOT EXISTS ux_offers_room_version ON offers (room_id, version);`,
	`CREATE TABLE IF NOT EXISTS documents (
  id TEXT PRIMARY KEY,
  room_id TEXT NOT NULL,
  uploaded_by TEXT NOT NULL,
  type TEXT NOT NULL,
  name TEXT NOT NULL,
  file_url TEXT,
  body TEXT,
  offer_id TEXT,
  signature_status TEXT NOT NULL DEFAULT 'draft',
  version INTEGER NOT NULL DEFAULT 1,
  created_at DATETIME,
  updated_at DATETIME
);`,
	`CREATE TABLE IF NOT EXISTS signature_requests (
  id TEXT PRIMARY KEY,
  document_id TEXT NOT NULL,
  signer_id TEXT NOT NULL,
  status TEXT NOT NULL DEFAULT 'pending',
  deadline DATETIME,
  signed_at DATETIME,
  rejected_at DATETIME,
  rejection_reason TEXT,
  signature_payload TEXT,
  reminded_at DATETIME,
  created_at DATETIME,
  updated_at DATETIME
);`,
	`CREATE UNIQUE INDEX IF NOT EXISTS ux_signature_requests_document_signer ON signature_requests (document_id, signer_id);`,
	`CREATE TABLE IF NOT EXISTS fee_policies (
  id TEXT PRIMARY KEY,
  name TEXT NOT NULL,
  rate_percent TEXT NOT NULL,
  fixed_fee TEXT NOT NULL DEFAULT '0',
  applicable_to TEXT NOT NULL DEFAULT 'all',
  is_active INTEGER NOT NULL DEFAULT 1,
  created_at DATETIME,
  updated_at DATETIME
);`,
	`CREATE TABLE IF NOT EXISTS settlements (
  id TEXT PRIMARY KEY,
  room_id TEXT NOT NULL,
  document_id TEXT,
  offer_id TEXT,
  license_id TEXT,
  payer_id TEXT NOT NULL,
  payee_id TEXT NOT NULL,
  amount TEXT NOT NULL,
  payment_type TEXT NOT NULL,
  status TEXT NOT NULL DEFAULT 'pending',
  paid_at DATETIME,
  note TEXT,
  fee_policy_snapshot TEXT,
  created_at DATETIME,
  updated_at DATETIME
);`,
	`CREATE UNIQUE INDEX IF NOT EXISTS ux_settlements_document ON settlements (document_id) WHERE document_id IS NOT NULL;`,
	`CREATE TABLE IF NOT EXISTS audit_log_entries (
  id TEXT PRIMARY KEY,
  room_id TEXT NOT NULL,
  actor_id TEXT,
  action TEXT NOT NULL,
  target_type TEXT NOT NULL,
  target_id TEXT,
  detail TEXT,
  created_at DATETIME
);`,
	`CREATE TABLE IF NOT EXISTS notifications (
  id TEXT PRIMARY KEY,
  user_id TEXT NOT NULL,
  room_id TEXT,
  kind TEXT NOT NULL,
  message TEXT NOT NULL,
  link TEXT,
  read_at DATETIME,
  created_at DATETIME
);`,
	`CREATE TABLE IF NOT EXISTS outbox_events (
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
	`CREATE UNIQUE INDEX IF NOT EXISTS ux_outbox_events_once_per_aggregate ON outbox_events (event_type, aggregate_type, aggregate_id)
  WHERE event_type IN ('document_fully_signed', 'settlement_created');`,
	`CREATE TABLE IF NOT EXISTS outbox_dlq (
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

// Open returns a fresh database named after the running test. The pool is
// pinned to one connection so concurrent transactions serialize the way row
// locks serialize them on Postgres.
func Open(t *testing.T) *gorm.DB {
	t.Helper()

	name := strings.NewReplacer("/", "_", " ", "_").Replace(t.Name())
	conn, err := gorm.Open(sqlite.Open("file:"+name+"?mode=memory&cache=shared"), &gorm.Config{
		SkipDefaultTransaction: true,
		NowFunc:                dbpkg.NowUTC,
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

// Client wraps Open in the transaction-capable db client used by services.
func Client(t *testing.T) *dbpkg.Client {
	t.Helper()
	return dbpkg.NewWithConn(Open(t))
}
