// Package store implements durable persistence for accounts, quota
// counters, subscriptions, conversations and payment orders.
//
// The primary implementation is Postgres via pgx. All quota and tier
// mutations are expressed as single atomic statements or explicit
// transactions so concurrent requests for the same account never observe
// half-applied state. A Memory implementation backs unit tests and local
// development, and a Redis-backed quota counter is available for
// deployments that want metering off the relational store.
package store

import (
	"context"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
)

// Postgres is the pgx-backed store. It satisfies all of the service-layer
// store interfaces.
type Postgres struct {
	pool *pgxpool.Pool
}

// NewPostgres creates a store backed by the given connection pool.
func NewPostgres(pool *pgxpool.Pool) *Postgres {
	return &Postgres{pool: pool}
}

// Connect opens a pgx pool and verifies connectivity.
func Connect(ctx context.Context, databaseURL string) (*pgxpool.Pool, error) {
	pool, err := pgxpool.New(ctx, databaseURL)
	if err != nil {
		return nil, fmt.Errorf("create pool: %w", err)
	}

	pingCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	if err := pool.Ping(pingCtx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("ping database: %w", err)
	}

	return pool, nil
}
