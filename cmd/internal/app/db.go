package app

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
)

// requiredTables must exist in the configured schema before the server accepts traffic.
var requiredTables = []string{"users", "attendance_records", "audit_log"}

// NewDBPool builds a pgxpool from cfg, tags connections with the application
// name and checks connectivity plus the presence of db/schema.sql objects.
// It does not run migrations.
func NewDBPool(ctx context.Context, cfg Config) (*pgxpool.Pool, error) {
	pcfg, err := pgxpool.ParseConfig(cfg.DatabaseURL)
	if err != nil {
		return nil, fmt.Errorf("parse database url: %w", err)
	}

	if cfg.DBMaxConns > 0 {
		pcfg.MaxConns = cfg.DBMaxConns
	}
	if cfg.DBMinConns >= 0 && cfg.DBMinConns <= pcfg.MaxConns {
		pcfg.MinConns = cfg.DBMinConns
	}
	pcfg.MaxConnIdleTime = 5 * time.Minute
	pcfg.HealthCheckPeriod = 30 * time.Second
	if _, ok := pcfg.ConnConfig.RuntimeParams["application_name"]; !ok {
		pcfg.ConnConfig.RuntimeParams["application_name"] = "clubhouse"
	}

	pool, err := pgxpool.NewWithConfig(ctx, pcfg)
	if err != nil {
		return nil, err
	}

	if err := PingDB(ctx, pool, 3*time.Second); err != nil {
		pool.Close()
		return nil, fmt.Errorf("ping database: %w", err)
	}
	if err := checkSchema(ctx, pool, cfg.DatabaseSchema); err != nil {
		pool.Close()
		return nil, err
	}

	return pool, nil
}

// PingDB checks if we can acquire a connection within timeout.
func PingDB(parent context.Context, pool *pgxpool.Pool, timeout time.Duration) error {
	ctx, cancel := context.WithTimeout(parent, timeout)
	defer cancel()

	conn, err := pool.Acquire(ctx)
	if err != nil {
		return err
	}
	defer conn.Release()
	return conn.Ping(ctx)
}

func checkSchema(parent context.Context, pool *pgxpool.Pool, schema string) error {
	schema = strings.TrimSpace(schema)
	if schema == "" {
		return errors.New("database schema is empty")
	}

	ctx, cancel := context.WithTimeout(parent, 3*time.Second)
	defer cancel()

	var missing []string
	for _, table := range requiredTables {
		var found bool
		err := pool.QueryRow(ctx,
			`SELECT to_regclass(quote_ident($1) || '.' || quote_ident($2)) IS NOT NULL`,
			schema, table,
		).Scan(&found)
		if err != nil {
			return fmt.Errorf("check table %s.%s: %w", schema, table, err)
		}
		if !found {
			missing = append(missing, schema+"."+table)
		}
	}
	if len(missing) > 0 {
		return fmt.Errorf("database schema incomplete, apply db/schema.sql (missing %s)", strings.Join(missing, ", "))
	}
	return nil
}
