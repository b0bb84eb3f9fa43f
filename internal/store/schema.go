package store

import (
	"context"
	"database/sql"
)

// EnsureSchema creates the tables the service owns. The legacy flat log
// table is created too so a fresh install works; in a migrated deployment
// it already exists and holds frozen history.
func EnsureSchema(ctx context.Context, db *sql.DB) error {
	stmts := []string{
		`CREATE TABLE IF NOT EXISTS users (
			uid           TEXT PRIMARY KEY,
			firstname     TEXT NOT NULL DEFAULT '',
			lastname      TEXT NOT NULL DEFAULT '',
			grade         INT  NOT NULL DEFAULT 0,
			team_id       TEXT,
			card_id       TEXT,
			role          TEXT,
			status        TEXT,
			last_activity TIMESTAMPTZ,
			created_at    TIMESTAMPTZ NOT NULL DEFAULT NOW(),
			updated_at    TIMESTAMPTZ NOT NULL DEFAULT NOW()
		)`,
		`CREATE INDEX IF NOT EXISTS users_card_id_idx ON users (card_id)`,
		`CREATE TABLE IF NOT EXISTS teams (
			id         TEXT PRIMARY KEY,
			name       TEXT NOT NULL,
			leader_uid TEXT,
			created_at TIMESTAMPTZ NOT NULL DEFAULT NOW()
		)`,
		`CREATE TABLE IF NOT EXISTS attendance_day_logs (
			date_key TEXT NOT NULL,
			id       TEXT NOT NULL,
			uid      TEXT NOT NULL,
			card_id  TEXT,
			log_type TEXT NOT NULL,
			memo     TEXT,
			ts       TIMESTAMPTZ NOT NULL,
			PRIMARY KEY (date_key, id)
		)`,
		`CREATE INDEX IF NOT EXISTS attendance_day_logs_uid_idx ON attendance_day_logs (date_key, uid, ts DESC)`,
		`CREATE TABLE IF NOT EXISTS attendance_logs (
			id      TEXT PRIMARY KEY,
			uid     TEXT NOT NULL,
			card_id TEXT,
			log_type TEXT NOT NULL,
			memo    TEXT,
			ts      TIMESTAMPTZ NOT NULL
		)`,
		`CREATE INDEX IF NOT EXISTS attendance_logs_uid_ts_idx ON attendance_logs (uid, ts DESC)`,
		`CREATE TABLE IF NOT EXISTS link_requests (
			id         TEXT PRIMARY KEY,
			token      TEXT NOT NULL,
			status     TEXT NOT NULL,
			card_id    TEXT,
			uid        TEXT,
			created_at TIMESTAMPTZ NOT NULL DEFAULT NOW(),
			updated_at TIMESTAMPTZ NOT NULL DEFAULT NOW()
		)`,
		`CREATE INDEX IF NOT EXISTS link_requests_token_idx ON link_requests (token)`,
		`CREATE TABLE IF NOT EXISTS notifications (
			id         TEXT PRIMARY KEY,
			title      TEXT NOT NULL,
			body       TEXT,
			level      TEXT NOT NULL DEFAULT 'info',
			created_at TIMESTAMPTZ NOT NULL DEFAULT NOW()
		)`,
	}
	for _, stmt := range stmts {
		if _, err := db.ExecContext(ctx, stmt); err != nil {
			return err
		}
	}
	return nil
}
