// Package sqlite provides SQLite-based persistent storage for QuizHub.
// Uses WAL mode for concurrent reads and crash-safe writes.
package sqlite

import (
	"context"
	"database/sql"
	"fmt"
	"os"
	"path/filepath"

	_ "modernc.org/sqlite" // Pure-Go SQLite driver (no CGO required)
)

// DB wraps a SQLite connection with WAL mode and migrations.
type DB struct {
	db *sql.DB
}

// Open creates or opens the SQLite database at dir/quizhub.db.
// Enables WAL mode, foreign keys, and 5-second busy timeout.
func Open(dir string) (*DB, error) {
	if err := os.MkdirAll(dir, 0700); err != nil {
		return nil, fmt.Errorf("create data dir: %w", err)
	}

	dbPath := filepath.Join(dir, "quizhub.db")
	dsn := dbPath + "?_pragma=journal_mode(WAL)&_pragma=busy_timeout(5000)&_pragma=foreign_keys(1)"

	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("open sqlite: %w", err)
	}

	if err := db.Ping(); err != nil {
		db.Close()
		return nil, fmt.Errorf("ping sqlite: %w", err)
	}

	// SQLite is single-writer; one connection also serializes CAS writes.
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)

	d := &DB{db: db}
	if err := d.migrate(); err != nil {
		db.Close()
		return nil, fmt.Errorf("migrate: %w", err)
	}

	return d, nil
}

// Close cleanly shuts down the database.
func (d *DB) Close() error {
	return d.db.Close()
}

// Ping checks database connectivity.
func (d *DB) Ping(ctx context.Context) error {
	return d.db.PingContext(ctx)
}

// migrate runs idempotent schema migrations.
func (d *DB) migrate() error {
	migrations := []string{
		// Streak state, one row per user. version drives compare-and-swap.
		`CREATE TABLE IF NOT EXISTS user_streaks (
			user_id           TEXT PRIMARY KEY,
			current_streak    INTEGER NOT NULL DEFAULT 0,
			longest_streak    INTEGER NOT NULL DEFAULT 0,
			last_completion   TEXT NOT NULL DEFAULT '',
			frozen_through    TEXT NOT NULL DEFAULT '',
			freezes_remaining INTEGER NOT NULL DEFAULT 0,
			freeze_month      TEXT NOT NULL DEFAULT '',
			month             TEXT NOT NULL DEFAULT '',
			monthly_dates     TEXT NOT NULL DEFAULT '',
			total_quiz_days   INTEGER NOT NULL DEFAULT 0,
			version           INTEGER NOT NULL,
			updated_at        INTEGER NOT NULL
		)`,

		// Lifetime completion record (one row per user per day)
		`CREATE TABLE IF NOT EXISTS completion_days (
			user_id TEXT NOT NULL,
			day     TEXT NOT NULL,
			PRIMARY KEY (user_id, day)
		)`,

		// XP profile: cached ledger total
		`CREATE TABLE IF NOT EXISTS user_progress (
			user_id    TEXT PRIMARY KEY,
			total_xp   INTEGER NOT NULL DEFAULT 0,
			updated_at INTEGER NOT NULL
		)`,

		// Append-only XP ledger
		`CREATE TABLE IF NOT EXISTS xp_events (
			id         TEXT PRIMARY KEY,
			user_id    TEXT NOT NULL,
			amount     INTEGER NOT NULL CHECK (amount > 0),
			source     TEXT NOT NULL,
			created_at INTEGER NOT NULL
		)`,
		`CREATE INDEX IF NOT EXISTS idx_xp_events_user ON xp_events(user_id, created_at)`,
	}

	for _, m := range migrations {
		if _, err := d.db.Exec(m); err != nil {
			return fmt.Errorf("migration failed: %w\nSQL: %s", err, m)
		}
	}
	return nil
}
