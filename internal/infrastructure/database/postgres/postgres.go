// Package postgres wires a pgxpool.Pool from config.DatabaseConfig and
// applies the embedded schema migration. Grounded on the teacher's
// NewPostgresRepository in internal/infrastructure/database/postgres/postgres.go
// (ParseConfig, pool tuning from duration strings, Ping on startup),
// retargeted at the ledger's store.Adapter instead of a bespoke
// repository type.
package postgres

import (
	"context"
	_ "embed"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"

	"ledgercore/internal/config"
	"ledgercore/internal/ledger/dialect"
	"ledgercore/internal/ledger/store"
)

//go:embed migrations/000001_init_schema.up.sql
var initSchema string

// Connect opens a pgxpool.Pool tuned from cfg and wraps it in a
// store.Adapter bound to the Postgres dialect.
func Connect(ctx context.Context, cfg config.DatabaseConfig) (*store.Adapter, error) {
	poolConfig, err := pgxpool.ParseConfig(cfg.ConnectionString())
	if err != nil {
		return nil, fmt.Errorf("failed to parse connection string: %w", err)
	}

	poolConfig.MaxConns = int32(cfg.MaxOpenConns)
	poolConfig.MinConns = int32(cfg.MaxIdleConns)

	if maxLifetime, err := time.ParseDuration(cfg.ConnMaxLifetime); err == nil {
		poolConfig.MaxConnLifetime = maxLifetime
	}
	if maxIdleTime, err := time.ParseDuration(cfg.ConnMaxIdleTime); err == nil {
		poolConfig.MaxConnIdleTime = maxIdleTime
	}
	if healthCheck, err := time.ParseDuration(cfg.HealthCheckPeriod); err == nil {
		poolConfig.HealthCheckPeriod = healthCheck
	}

	pool, err := pgxpool.NewWithConfig(ctx, poolConfig)
	if err != nil {
		return nil, fmt.Errorf("failed to create connection pool: %w", err)
	}

	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("failed to ping database: %w", err)
	}

	return store.New(pool, dialect.Postgres{}), nil
}

// Migrate applies the embedded init schema. It is idempotent: every
// statement uses CREATE TABLE/INDEX IF NOT EXISTS, so re-running it
// against an already-migrated database is a no-op.
func Migrate(ctx context.Context, a *store.Adapter) error {
	if _, err := a.Pool.Exec(ctx, initSchema); err != nil {
		return fmt.Errorf("failed to apply schema migration: %w", err)
	}
	return nil
}
