// Package pgtest opens throwaway Postgres schemas for integration tests.
//
// Tests run only when CLUBHOUSE_DATABASE_URL is set. Outside CI an unreachable
// server skips the test instead of failing it.
package pgtest

import (
	"context"
	"crypto/rand"
	"errors"
	"net"
	"os"
	"path/filepath"
	"runtime"
	"strings"
	"testing"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/oklog/ulid/v2"
)

const EnvDatabaseURL = "CLUBHOUSE_DATABASE_URL"

// Open returns a pool for CLUBHOUSE_DATABASE_URL, closed on test cleanup.
func Open(t testing.TB) *pgxpool.Pool {
	t.Helper()

	raw := strings.TrimSpace(os.Getenv(EnvDatabaseURL))
	if raw == "" {
		t.Skip("integration test skipped: " + EnvDatabaseURL + " is not set")
	}

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	cfg, err := pgxpool.ParseConfig(raw)
	if err != nil {
		t.Fatalf("parse %s: %v", EnvDatabaseURL, err)
	}
	pool, err := pgxpool.NewWithConfig(ctx, cfg)
	if err != nil {
		t.Fatalf("connect postgres: %v", err)
	}

	c, err := pool.Acquire(ctx)
	if err != nil {
		pool.Close()
		if shouldSkip(err) {
			t.Skipf("integration test skipped: Postgres unreachable: %v", err)
		}
		t.Fatalf("acquire: %v", err)
	}
	c.Release()

	t.Cleanup(pool.Close)
	return pool
}

// Schema creates a uniquely named schema with db/schema.sql applied inside it
// and drops it on cleanup.
func Schema(t testing.TB, pool *pgxpool.Pool, prefix string) string {
	t.Helper()

	id := ulid.MustNew(ulid.Timestamp(time.Now()), ulid.Monotonic(rand.Reader, 0)).String()
	schema := prefix + "_" + strings.ToLower(id)

	raw, err := os.ReadFile(schemaFile(t))
	if err != nil {
		t.Fatalf("read schema.sql: %v", err)
	}
	sql := strings.ReplaceAll(string(raw), "clubhouse.", pgx.Identifier{schema}.Sanitize()+".")
	sql = strings.ReplaceAll(sql, "SCHEMA IF NOT EXISTS clubhouse", "SCHEMA IF NOT EXISTS "+pgx.Identifier{schema}.Sanitize())

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Second)
	defer cancel()

	t.Cleanup(func() {
		ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		_, _ = pool.Exec(ctx, `DROP SCHEMA IF EXISTS `+pgx.Identifier{schema}.Sanitize()+` CASCADE`)
	})
	if _, err := pool.Exec(ctx, sql); err != nil {
		t.Fatalf("apply schema: %v", err)
	}
	return schema
}

// InsertUser adds a user row and returns its id.
func InsertUser(t testing.TB, pool *pgxpool.Pool, schema, username, role, passwordHash string) int64 {
	t.Helper()

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	var hash *string
	if passwordHash != "" {
		hash = &passwordHash
	}
	var id int64
	err := pool.QueryRow(ctx,
		`INSERT INTO `+pgx.Identifier{schema, "users"}.Sanitize()+` (username, role, password_hash)
		 VALUES ($1, $2, $3) RETURNING id`,
		username, role, hash,
	).Scan(&id)
	if err != nil {
		t.Fatalf("insert user: %v", err)
	}
	return id
}

func schemaFile(t testing.TB) string {
	t.Helper()
	_, file, _, ok := runtime.Caller(0)
	if !ok {
		t.Fatalf("locate pgtest source")
	}
	// cmd/internal/pgtest -> repo root
	return filepath.Join(filepath.Dir(file), "..", "..", "..", "db", "schema.sql")
}

func shouldSkip(err error) bool {
	if err == nil || os.Getenv("CI") != "" {
		return false
	}
	var opErr *net.OpError
	if errors.As(err, &opErr) {
		return true
	}
	var dnsErr *net.DNSError
	if errors.As(err, &dnsErr) {
		return true
	}
	msg := strings.ToLower(err.Error())
	return strings.Contains(msg, "connection refused") ||
		strings.Contains(msg, "context deadline exceeded") ||
		strings.Contains(msg, "timeout") ||
		strings.Contains(msg, "no such host")
}
