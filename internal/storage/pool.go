// Package storage provides the PostgreSQL storage layer for bunrui.
//
// It manages connection pooling (via pgxpool), embedded schema migrations and
// the query methods behind the category, summary and usage stores.
package storage

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/jackc/pgx/v5/pgxpool"
	"go.opentelemetry.io/otel/metric"

	"github.com/ashita-ai/bunrui/internal/telemetry"
)

// DB wraps a pgxpool.Pool. It implements categories.Store, summaries.Store
// and usage.Store.
type DB struct {
	pool   *pgxpool.Pool
	logger *slog.Logger
}

// New creates a new DB with a connection pool and verifies connectivity.
func New(ctx context.Context, dsn string, logger *slog.Logger) (*DB, error) {
	poolCfg, err := pgxpool.ParseConfig(dsn)
	if err != nil {
		return nil, fmt.Errorf("storage: parse DSN: %w", err)
	}

	pool, err := pgxpool.NewWithConfig(ctx, poolCfg)
	if err != nil {
		return nil, fmt.Errorf("storage: create pool: %w", err)
	}

	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("storage: ping pool: %w", err)
	}

	return &DB{pool: pool, logger: logger}, nil
}

// Pool returns the underlying connection pool.
func (db *DB) Pool() *pgxpool.Pool {
	return db.pool
}

// Ping checks connectivity to the database.
func (db *DB) Ping(ctx context.Context) error {
	return db.pool.Ping(ctx)
}

// Close shuts down the connection pool.
func (db *DB) Close(context.Context) error {
	db.pool.Close()
	return nil
}

// RegisterPoolMetrics exports pool statistics as observable gauges.
func (db *DB) RegisterPoolMetrics() {
	meter := telemetry.Meter("bunrui/storage")
	total, _ := meter.Int64ObservableGauge("bunrui.db.pool.connections",
		metric.WithDescription("Open connections in the pool"),
	)
	idle, _ := meter.Int64ObservableGauge("bunrui.db.pool.idle",
		metric.WithDescription("Idle connections in the pool"),
	)
	acquired, _ := meter.Int64ObservableGauge("bunrui.db.pool.acquired",
		metric.WithDescription("Connections currently checked out"),
	)
	_, err := meter.RegisterCallback(func(_ context.Context, o metric.Observer) error {
		s := db.pool.Stat()
		o.ObserveInt64(total, int64(s.TotalConns()))
		o.ObserveInt64(idle, int64(s.IdleConns()))
		o.ObserveInt64(acquired, int64(s.AcquiredConns()))
		return nil
	}, total, idle, acquired)
	if err != nil {
		db.logger.Warn("storage: register pool metrics", "error", err)
	}
}
