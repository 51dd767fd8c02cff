// Package db wraps the two pgx connection pools the sync engine works
// against: a read-only source and a read-write destination, two databases on
// the same PostgreSQL server. The pools are independent and never share a
// transaction.
package db

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/johndauphine/pg-table-sync/internal/logging"
)

// Pool manages a pgx connection pool for one database.
type Pool struct {
	pool     *pgxpool.Pool
	database string
}

// Connect creates a connection pool for the given DSN and verifies it with a
// ping. A pass holds exactly one logical connection per side, so the pool is
// kept small.
func Connect(ctx context.Context, dsn, database string) (*Pool, error) {
	poolCfg, err := pgxpool.ParseConfig(dsn)
	if err != nil {
		return nil, fmt.Errorf("parsing connection config: %w", err)
	}
	poolCfg.MaxConns = 2
	poolCfg.MinConns = 1

	pool, err := pgxpool.NewWithConfig(ctx, poolCfg)
	if err != nil {
		return nil, fmt.Errorf("creating pool: %w", err)
	}

	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("pinging database %s: %w", database, err)
	}

	logging.Info("Connected to PostgreSQL database %s", database)
	return &Pool{pool: pool, database: database}, nil
}

// Close closes all connections in the pool
func (p *Pool) Close() {
	p.pool.Close()
}

// Database returns the database name this pool is connected to
func (p *Pool) Database() string {
	return p.database
}

// Pool returns the underlying pgxpool
func (p *Pool) Pool() *pgxpool.Pool {
	return p.pool
}
