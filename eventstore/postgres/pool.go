// Package postgres is an EventStore written directly against pgx.
package postgres

import (
	"context"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
)

// Open connects a pool to databaseURL and pings it.
func Open(ctx context.Context, databaseURL string) (*pgxpool.Pool, error) {
	cfg, err := pgxpool.ParseConfig(databaseURL)
	if err != nil {
		return nil, err
	}
	cfg.MaxConns = 10
	cfg.MinConns = 1
	cfg.MaxConnLifetime = 30 * time.Minute
	cfg.MaxConnIdleTime = 5 * time.Minute

	pool, err := pgxpool.NewWithConfig(ctx, cfg)
	if err != nil {
		return nil, err
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, err
	}
	return pool, nil
}

const schema = `
CREATE TABLE IF NOT EXISTS events (
	id             uuid         PRIMARY KEY,
	aggregate_id   varchar(100) NOT NULL,
	aggregate_type varchar(100) NOT NULL,
	event_type     varchar(100) NOT NULL,
	event_data     jsonb        NOT NULL,
	metadata       jsonb        NOT NULL DEFAULT '{}',
	version        bigint       NOT NULL,
	"timestamp"    timestamptz  NOT NULL,
	user_id        varchar(100),
	correlation_id varchar(100),
	causation_id   varchar(100)
);
CREATE UNIQUE INDEX IF NOT EXISTS idx_events_aggregate_version ON events (aggregate_id, version);
CREATE INDEX IF NOT EXISTS idx_events_aggregate_id ON events (aggregate_id);
CREATE INDEX IF NOT EXISTS idx_events_aggregate_type ON events (aggregate_type);
CREATE INDEX IF NOT EXISTS idx_events_event_type ON events (event_type);
CREATE INDEX IF NOT EXISTS idx_events_timestamp ON events ("timestamp");
CREATE INDEX IF NOT EXISTS idx_events_user_id ON events (user_id);
CREATE INDEX IF NOT EXISTS idx_events_correlation_id ON events (correlation_id);
`

// Migrate creates the events table and its indexes if they do not exist.
func Migrate(ctx context.Context, pool *pgxpool.Pool) error {
	_, err := pool.Exec(ctx, schema)
	return err
}
