// Package database provides the PostgreSQL client and migration utilities.
package database

import (
	"context"
	stdsql "database/sql"
	"fmt"

	"github.com/jackc/pgx/v5/pgxpool"
	_ "github.com/jackc/pgx/v5/stdlib" // Register pgx driver for database/sql (migrations)
)

// Client wraps a pgx connection pool. All pipeline SQL (claiming, locking,
// savepoints, upserts) goes through the pool; migrations use a short-lived
// database/sql connection because golang-migrate requires one.
type Client struct {
	pool *pgxpool.Pool
}

// Pool returns the underlying pgx pool for direct queries and transactions.
func (c *Client) Pool() *pgxpool.Pool {
	return c.pool
}

// Close releases all pooled connections.
func (c *Client) Close() {
	c.pool.Close()
}

// NewClientFromPool wraps an existing pool (useful for testing).
func NewClientFromPool(pool *pgxpool.Pool) *Client {
	return &Client{pool: pool}
}

// NewClient creates a database client, verifies connectivity, and applies
// pending migrations.
func NewClient(ctx context.Context, cfg Config) (*Client, error) {
	poolCfg, err := cfg.PoolConfig()
	if err != nil {
		return nil, err
	}

	pool, err := pgxpool.NewWithConfig(ctx, poolCfg)
	if err != nil {
		return nil, fmt.Errorf("failed to create connection pool: %w", err)
	}

	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("failed to ping database: %w", err)
	}

	// Migrations run over database/sql; golang-migrate does not speak pgx natively.
	db, err := stdsql.Open("pgx", cfg.ConnString())
	if err != nil {
		pool.Close()
		return nil, fmt.Errorf("failed to open migration connection: %w", err)
	}
	defer func() { _ = db.Close() }()

	if err := Migrate(db, cfg.Database); err != nil {
		pool.Close()
		return nil, fmt.Errorf("failed to run migrations: %w", err)
	}

	return &Client{pool: pool}, nil
}
