package database

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/rickgao/streamwatch/internal/config"
)

// Connect creates a connection pool and verifies it with a ping.
func Connect(ctx context.Context, cfg config.DatabaseConfig) (*pgxpool.Pool, error) {
	connStr := BuildConnString(cfg)

	poolCfg, err := pgxpool.ParseConfig(connStr)
	if err != nil {
		return nil, fmt.Errorf("parse connection string: %w", err)
	}

	poolCfg.MinConns = int32(cfg.MinConns)
	poolCfg.MaxConns = int32(cfg.MaxConns)

	pool, err := pgxpool.NewWithConfig(ctx, poolCfg)
	if err != nil {
		return nil, fmt.Errorf("create pool: %w", err)
	}

	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("ping database: %w", err)
	}

	return pool, nil
}

// Schema creates the online-event log. Statements are idempotent.
var Schema = []string{
	`CREATE TABLE IF NOT EXISTS stream_online_events (
		event_id          TEXT PRIMARY KEY,
		broadcaster_id    TEXT NOT NULL,
		broadcaster_login TEXT NOT NULL,
		broadcaster_name  TEXT NOT NULL,
		source            TEXT NOT NULL,
		title             TEXT NOT NULL DEFAULT '',
		game_name         TEXT NOT NULL DEFAULT '',
		started_at        TIMESTAMPTZ NOT NULL,
		received_at       BIGINT NOT NULL
	)`,
	`CREATE INDEX IF NOT EXISTS stream_online_events_broadcaster_idx
		ON stream_online_events (broadcaster_id, started_at DESC)`,
}

// Execer is the subset of pgxpool.Pool used by EnsureSchema.
type Execer interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
}

// EnsureSchema applies Schema.
func EnsureSchema(ctx context.Context, db Execer) error {
	for _, stmt := range Schema {
		if _, err := db.Exec(ctx, stmt); err != nil {
			return fmt.Errorf("ensure schema: %w", err)
		}
	}
	return nil
}
