package db

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"strings"
	"testing"
	"time"

	"github.com/jackc/pgx/v5/pgconn"
	"github.com/lib/pq"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	gormlogger "gorm.io/gorm/logger"

	"github.com/angelmondragon/dealroom-backend/pkg/logger"
)

type testModel struct {
	ID   int
	Name string
}

func newTestDB(t *testing.T) *gorm.DB {
	t.Helper()
	conn, err := gorm.Open(sqlite.Open("file:"+t.Name()+"?mode=memory&cache=shared"), &gorm.Config{
		SkipDefaultTransaction: true,
	})
	if err != nil {
		t.Fatalf("failed to open sqlite: %v", err)
	}
	if err := conn.AutoMigrate(&testModel{}); err != nil {
		t.Fatalf("failed to migrate sqlite: %v", err)
	}
	return conn
}

func TestWithTx_CommitsAndRollbacks(t *testing.T) {
	db := newTestDB(t)
	client := &Client{conn: db}

	ctx := context.Background()
	if err := client.WithTx(ctx, func(tx *gorm.DB) error {
		return tx.Create(&testModel{Name: "committed"}).Error
	}); err != nil {
		t.Fatalf("WithTx commit failed: %v", err)
	}

	var count int64
	if err := db.Model(&testModel{}).Count(&count).Error; err != nil {
		t.Fatalf("count failed: %v", err)
	}
	if count != 1 {
		t.Fatalf("expected 1 record, got %d", count)
	}

	err := client.WithTx(ctx, func(tx *gorm.DB) error {
		if err := tx.Create(&testModel{Name: "rolled"}).Error; err != nil {
			return err
		}
		return errors.New("boom")
	})
	if err == nil {
		t.Fatal("expected WithTx to return an error")
	}
	if err := db.Model(&testModel{}).Count(&count).Error; err != nil {
		t.Fatalf("count failed after rollback: %v", err)
	}
	if count != 1 {
		t.Fatalf("expected rollback to leave 1 record, got %d", count)
	}
}

func TestPing(t *testing.T) {
	db := newTestDB(t)
	client := &Client{conn: db}
	if err := client.Ping(context.Background()); err != nil {
		t.Fatalf("unexpected ping error: %v", err)
	}
}

func TestWithTx_RollsBackOnPanic(t *testing.T) {
	db := newTestDB(t)
	client := NewWithConn(db)

	var before int64
	if err := db.Model(&testModel{}).Count(&before).Error; err != nil {
		t.Fatalf("count failed: %v", err)
	}

	func() {
		defer func() {
			if r := recover(); r == nil {
				t.Fatal("expected panic to propagate")
			}
		}()
		_ = client.WithTx(context.Background(), func(tx *gorm.DB) error {
			if err := tx.Create(&testModel{Name: "panicked"}).Error; err != nil {
				return err
			}
			panic("boom")
		})
	}()

	var after int64
	if err := db.Model(&testModel{}).Count(&after).Error; err != nil {
		t.Fatalf("count failed: %v", err)
	}
	if after != before {
		t.Fatalf("expected panic rollback to keep %d rows, got %d", before, after)
	}
}

func TestIsUniqueViolation(t *testing.T) {
	pgErr := &pgconn.PgError{Code: "23505", ConstraintName: "ux_offers_room_version"}
	if !IsUniqueViolation(pgErr, "ux_offers_room_version") {
		t.Fatal("expected pgconn unique violation to match constraint")
	}
	if IsUniqueViolation(pgErr, "ux_other") {
		t.Fatal("expected constraint mismatch to be ignored")
	}
	if IsUniqueViolation(&pgconn.PgError{Code: "23503"}, "") {
		t.Fatal("foreign key violations are not unique violations")
	}
	if !IsUniqueViolation(&pq.Error{Code: "23505"}, "") {
		t.Fatal("expected lib/pq unique violation to match")
	}
	if !IsUniqueViolation(errors.New("UNIQUE constraint failed: offers.room_id, offers.version"), "") {
		t.Fatal("expected sqlite unique violation to match")
	}
	if IsUniqueViolation(nil, "") {
		t.Fatal("nil is never a violation")
	}
}

func TestIsRetryable(t *testing.T) {
	if !IsRetryable(fmt.Errorf("commit: %w", &pgconn.PgError{Code: "40001"})) {
		t.Fatal("serialization failures should be retryable")
	}
	if !IsRetryable(&pq.Error{Code: "40P01"}) {
		t.Fatal("deadlocks should be retryable")
	}
	if IsRetryable(&pgconn.PgError{Code: "23505"}) || IsRetryable(errors.New("boom")) || IsRetryable(nil) {
		t.Fatal("only transaction conflicts are retryable")
	}
}

func TestWithTx_RetriesSerializationFailures(t *testing.T) {
	client := NewWithConn(newTestDB(t))

	calls := 0
	err := client.WithTx(context.Background(), func(tx *gorm.DB) error {
		calls++
		if calls == 1 {
			return &pgconn.PgError{Code: "40001"}
		}
		return tx.Create(&testModel{Name: "second-try"}).Error
	})
	if err != nil {
		t.Fatalf("expected retry to succeed, got %v", err)
	}
	if calls != 2 {
		t.Fatalf("expected 2 attempts, got %d", calls)
	}
}

func TestWithTx_GivesUpAfterRetries(t *testing.T) {
	client := NewWithConn(newTestDB(t))
	client.txRetries = 2

	calls := 0
	err := client.WithTx(context.Background(), func(tx *gorm.DB) error {
		calls++
		return &pgconn.PgError{Code: "40P01"}
	})
	if !IsRetryable(err) {
		t.Fatalf("expected last conflict returned, got %v", err)
	}
	if calls != 2 {
		t.Fatalf("expected 2 attempts, got %d", calls)
	}
}

func TestQueryLoggerReportsSlowAndFailedQueries(t *testing.T) {
	var buf bytes.Buffer
	logg := logger.New(logger.Options{ServiceName: "db-test", Output: &buf, Level: "debug"})
	ql := newQueryLogger(logg, 10*time.Millisecond)
	sql := func() (string, int64) { return "SELECT 1", 1 }

	ql.Trace(context.Background(), time.Now(), sql, nil)
	if buf.Len() != 0 {
		t.Fatalf("fast successful queries should not be logged: %s", buf.String())
	}

	ql.Trace(context.Background(), time.Now().Add(-time.Second), sql, nil)
	if !strings.Contains(buf.String(), "db.query.slow") {
		t.Fatalf("expected slow query warning, got %s", buf.String())
	}

	buf.Reset()
	ql.Trace(context.Background(), time.Now(), sql, gorm.ErrRecordNotFound)
	if buf.Len() != 0 {
		t.Fatalf("record not found is not a failure: %s", buf.String())
	}
	ql.Trace(context.Background(), time.Now(), sql, errors.New("relation does not exist"))
	if !strings.Contains(buf.String(), "db.query.failed") {
		t.Fatalf("expected failed query error, got %s", buf.String())
	}

	buf.Reset()
	ql.LogMode(gormlogger.Silent).Trace(context.Background(), time.Now().Add(-time.Second), sql, nil)
	if buf.Len() != 0 {
		t.Fatalf("silent mode should log nothing: %s", buf.String())
	}
}
