// Package migrations contains the database schema and a minimal runner that
// applies it at startup. Statements are idempotent so repeated application is
// safe.
package migrations

import (
	"context"
	"database/sql"
	"fmt"
)

var statements = []string{
	`CREATE TABLE IF NOT EXISTS app_users (
		id TEXT PRIMARY KEY,
		username TEXT NOT NULL UNIQUE,
		email TEXT NOT NULL DEFAULT '',
		password_hash TEXT NOT NULL,
		created_at TIMESTAMPTZ NOT NULL,
		last_login_at TIMESTAMPTZ
	)`,
	`CREATE TABLE IF NOT EXISTS app_sessions (
		id TEXT PRIMARY KEY,
		user_id TEXT NOT NULL REFERENCES app_users(id) ON DELETE CASCADE,
		token_hash TEXT NOT NULL UNIQUE,
		expires_at TIMESTAMPTZ NOT NULL,
		created_at TIMESTAMPTZ NOT NULL
	)`,
	`CREATE TABLE IF NOT EXISTS app_habits (
		id TEXT PRIMARY KEY,
		owner_id TEXT NOT NULL REFERENCES app_users(id) ON DELETE CASCADE,
		name TEXT NOT NULL,
		description TEXT NOT NULL DEFAULT '',
		active BOOLEAN NOT NULL DEFAULT TRUE,
		created_at TIMESTAMPTZ NOT NULL,
		updated_at TIMESTAMPTZ NOT NULL
	)`,
	`CREATE UNIQUE INDEX IF NOT EXISTS app_habits_owner_name
		ON app_habits (owner_id, lower(name))`,
	`CREATE TABLE IF NOT EXISTS app_checkins (
		id TEXT PRIMARY KEY,
		habit_id TEXT NOT NULL REFERENCES app_habits(id) ON DELETE CASCADE,
		date DATE NOT NULL,
		minutes_spent INTEGER NOT NULL DEFAULT 0,
		xp_awarded INTEGER NOT NULL DEFAULT 0,
		created_at TIMESTAMPTZ NOT NULL,
		UNIQUE (habit_id, date)
	)`,
	`CREATE TABLE IF NOT EXISTS app_profiles (
		user_id TEXT PRIMARY KEY REFERENCES app_users(id) ON DELETE CASCADE,
		total_xp INTEGER NOT NULL DEFAULT 0,
		level INTEGER NOT NULL DEFAULT 1,
		total_minutes_logged INTEGER NOT NULL DEFAULT 0,
		achievements JSONB NOT NULL DEFAULT '{}',
		created_at TIMESTAMPTZ NOT NULL,
		updated_at TIMESTAMPTZ NOT NULL
	)`,
	`CREATE TABLE IF NOT EXISTS app_audit_log (
		id BIGSERIAL PRIMARY KEY,
		time TIMESTAMPTZ NOT NULL,
		user_id TEXT NOT NULL DEFAULT '',
		method TEXT NOT NULL,
		path TEXT NOT NULL,
		status INTEGER NOT NULL,
		remote_addr TEXT NOT NULL DEFAULT '',
		user_agent TEXT NOT NULL DEFAULT ''
	)`,
}

// Apply executes every schema statement in order.
func Apply(ctx context.Context, db *sql.DB) error {
	for i, stmt := range statements {
		if _, err := db.ExecContext(ctx, stmt); err != nil {
			return fmt.Errorf("apply migration %d: %w", i+1, err)
		}
	}
	return nil
}

// Count reports the number of schema statements. Used by tests.
func Count() int {
	return len(statements)
}
