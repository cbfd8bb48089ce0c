// Package postgres implements store.Store on pgx/v5, the production
// counterpart to internal/store/memory. It mirrors the teacher's
// common/mpostgres connection-hub shape (a struct wrapping the driver handle,
// a Connect that is safe to call repeatedly, a GetPool the rest of the
// package depends on instead of importing pgx directly) adapted from
// database/sql + dbresolver to pgxpool, since pgx/v5 is already this
// project's primary Postgres driver.
package postgres

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/settld/core/pkg/obs/log"
)

// Connection holds the shared pgx pool every Store method runs queries
// through.
type Connection struct {
	ConnectionString string
	Pool             *pgxpool.Pool
	Logger           log.Logger
}

// Connect opens the pool and pings it; safe to call repeatedly, only the
// first call does work.
func (c *Connection) Connect(ctx context.Context) error {
	if c.Pool != nil {
		return nil
	}

	cfg, err := pgxpool.ParseConfig(c.ConnectionString)
	if err != nil {
		return fmt.Errorf("postgres: parse connection string: %w", err)
	}

	pool, err := pgxpool.NewWithConfig(ctx, cfg)
	if err != nil {
		return fmt.Errorf("postgres: open pool: %w", err)
	}

	if err := pool.Ping(ctx); err != nil {
		pool.Close()

		return fmt.Errorf("postgres: ping: %w", err)
	}

	c.logger().Info("postgres: connected")
	c.Pool = pool

	return nil
}

// Close releases the pool.
func (c *Connection) Close() {
	if c.Pool != nil {
		c.Pool.Close()
	}
}

func (c *Connection) logger() log.Logger {
	if c.Logger != nil {
		return c.Logger
	}

	return &log.NoneLogger{}
}
