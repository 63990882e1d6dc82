package repository

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
)

// DBTX is the subset of *pgxpool.Pool the repositories use.
type DBTX interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
}

// NewDB creates a new PostgreSQL connection pool.
func NewDB(ctx context.Context, databaseURL string, maxConns int32) (*pgxpool.Pool, error) {
	config, err := pgxpool.ParseConfig(databaseURL)
	if err != nil {
		return nil, fmt.Errorf("failed to parse database URL: %w", err)
	}

	if maxConns <= 0 {
		maxConns = 5
	}
	config.MaxConns = maxConns
	config.MinConns = 1

	pool, err := pgxpool.NewWithConfig(ctx, config)
	if err != nil {
		return nil, fmt.Errorf("failed to create connection pool: %w", err)
	}

	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("failed to ping database: %w", err)
	}

	return pool, nil
}

// RunMigrations creates the audit schema.
func RunMigrations(ctx context.Context, db DBTX) error {
	query := `
		CREATE TABLE IF NOT EXISTS payment_verifications (
			order_id     TEXT PRIMARY KEY,
			state        TEXT NOT NULL,
			reason       TEXT NOT NULL,
			message      TEXT NOT NULL DEFAULT '',
			attempts     INTEGER NOT NULL,
			plan_name    TEXT NOT NULL DEFAULT '',
			amount_minor BIGINT NOT NULL DEFAULT 0,
			currency     TEXT NOT NULL DEFAULT '',
			completed_at TIMESTAMPTZ NOT NULL,
			recorded_at  TIMESTAMPTZ NOT NULL DEFAULT NOW()
		);
		CREATE INDEX IF NOT EXISTS idx_payment_verifications_completed_at ON payment_verifications(completed_at DESC);
	`
	_, err := db.Exec(ctx, query)
	if err != nil {
		return fmt.Errorf("failed to run migrations: %w", err)
	}
	return nil
}
