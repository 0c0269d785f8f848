package database

import (
	"context"
	"database/sql"
	"fmt"
)

// analyticsEntriesDDL keeps rows for retentionDays; ClickHouse drops expired
// parts during merges.
const analyticsEntriesDDL = `
	CREATE TABLE IF NOT EXISTS analytics_entries (
		id         String,
		event_type LowCardinality(String),
		event_name String,
		session_id String,
		page_url   String,
		page_path  String,
		user_agent String,
		ip_address String,
		metadata   String,
		created_at DateTime64(3, 'UTC')
	)
	ENGINE = MergeTree
	PARTITION BY toYYYYMM(created_at)
	ORDER BY (event_type, created_at, id)
	TTL toDateTime(created_at) + INTERVAL %d DAY DELETE
`

const accountsDDL = `
	CREATE TABLE IF NOT EXISTS accounts (
		id              SERIAL PRIMARY KEY,
		email           TEXT NOT NULL UNIQUE,
		hashed_password BYTEA NOT NULL,
		created_at      TIMESTAMPTZ NOT NULL DEFAULT now(),
		updated_at      TIMESTAMPTZ NOT NULL DEFAULT now()
	)
`

// EnsureClickHouseSchema creates the analytics table if it does not exist.
func EnsureClickHouseSchema(ctx context.Context, db *sql.DB, retentionDays int) error {
	if retentionDays <= 0 {
		return fmt.Errorf("retention days must be positive, got %d", retentionDays)
	}
	if _, err := db.ExecContext(ctx, fmt.Sprintf(analyticsEntriesDDL, retentionDays)); err != nil {
		return fmt.Errorf("failed to create analytics_entries table: %w", err)
	}
	return nil
}

// EnsurePostgresSchema creates the accounts table if it does not exist.
func EnsurePostgresSchema(ctx context.Context, db *sql.DB) error {
	if _, err := db.ExecContext(ctx, accountsDDL); err != nil {
		return fmt.Errorf("failed to create accounts table: %w", err)
	}
	return nil
}
