// Package postgres opens the shared database/sql pool on the pgx driver.
package postgres

import (
	"context"
	"database/sql"
	"fmt"

	_ "github.com/jackc/pgx/v5/stdlib"

	"corpdesk/internal/platform/config"
)

// Open returns a pinged pool. Returns nil if the DSN is empty (Postgres not
// configured).
func Open(ctx context.Context, cfg config.PostgresConfig) (*sql.DB, error) {
	if cfg.DSN == "" {
		return nil, nil
	}

	db, err := sql.Open("pgx", cfg.DSN)
	if err != nil {
		return nil, fmt.Errorf("open postgres: %w", err)
	}
	db.SetMaxOpenConns(cfg.MaxOpenConns)
	db.SetMaxIdleConns(cfg.MaxIdleConns)
	db.SetConnMaxLifetime(cfg.ConnMaxLifetime)

	if err := db.PingContext(ctx); err != nil {
		db.Close()
		return nil, fmt.Errorf("postgres ping failed: %w", err)
	}
	return db, nil
}

// Schema creates the tables the engine's Postgres stores use. Statements
// are idempotent so Migrate can run on every boot.
const Schema = `
CREATE TABLE IF NOT EXISTS compliance_deadlines (
	entity_id     UUID        NOT NULL,
	deadline_type TEXT        NOT NULL,
	due_date      DATE        NOT NULL,
	reminder_date DATE        NOT NULL,
	jurisdiction  TEXT        NOT NULL DEFAULT '',
	description   TEXT        NOT NULL DEFAULT '',
	PRIMARY KEY (entity_id, deadline_type)
);

CREATE TABLE IF NOT EXISTS entities (
	id             UUID PRIMARY KEY,
	name           TEXT NOT NULL,
	owner_email    TEXT NOT NULL,
	owner_name     TEXT NOT NULL DEFAULT '',
	jurisdiction   TEXT NOT NULL,
	formation_date DATE NOT NULL
);

CREATE TABLE IF NOT EXISTS notifications (
	id            UUID        PRIMARY KEY,
	entity_id     UUID        NOT NULL,
	deadline_type TEXT        NOT NULL,
	due_date      DATE        NOT NULL,
	recipient     TEXT        NOT NULL,
	subject       TEXT        NOT NULL,
	created_at    TIMESTAMPTZ NOT NULL
);

CREATE INDEX IF NOT EXISTS notifications_recent_idx
	ON notifications (entity_id, deadline_type, created_at DESC);

CREATE TABLE IF NOT EXISTS reminder_claims (
	key        TEXT        PRIMARY KEY,
	expires_at TIMESTAMPTZ NOT NULL
);

CREATE TABLE IF NOT EXISTS audit_entries (
	id        UUID        PRIMARY KEY,
	timestamp TIMESTAMPTZ NOT NULL,
	action    TEXT        NOT NULL,
	actor_id  TEXT        NOT NULL DEFAULT '',
	target_id TEXT        NOT NULL DEFAULT '',
	details   JSONB       NOT NULL DEFAULT '{}'
);
`

// Migrate applies Schema.
func Migrate(ctx context.Context, db *sql.DB) error {
	if _, err := db.ExecContext(ctx, Schema); err != nil {
		return fmt.Errorf("apply schema: %w", err)
	}
	return nil
}
