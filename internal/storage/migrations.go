package storage

import (
	"context"
	"fmt"
)

// migration is one schema change, applied exactly once in order.
type migration struct {
	description string
	sql         string
	version     int
}

var migrations = []migration{
	{
		version:     1,
		description: "create cache_entries table",
		sql: `CREATE TABLE IF NOT EXISTS cache_entries (
			image_hash TEXT PRIMARY KEY,
			provider TEXT NOT NULL,
			ruleset_version INTEGER NOT NULL,
			result_json TEXT NOT NULL,
			created_at TIMESTAMP NOT NULL
		)`,
	},
	{
		version:     2,
		description: "create ruleset_version counter",
		sql: `CREATE TABLE IF NOT EXISTS ruleset_version (
			id INTEGER PRIMARY KEY CHECK (id = 1),
			version INTEGER NOT NULL
		);
		INSERT OR IGNORE INTO ruleset_version (id, version) VALUES (1, 1)`,
	},
	{
		version:     3,
		description: "create whitelist_entries table",
		sql: `CREATE TABLE IF NOT EXISTS whitelist_entries (
			value TEXT PRIMARY KEY,
			label TEXT NOT NULL DEFAULT '',
			kind TEXT NOT NULL
		)`,
	},
	{
		version:     4,
		description: "create records table",
		sql: `CREATE TABLE IF NOT EXISTS records (
			id TEXT PRIMARY KEY,
			image_ref TEXT NOT NULL DEFAULT '',
			image_hash TEXT NOT NULL,
			created_at TIMESTAMP NOT NULL,
			status TEXT NOT NULL,
			status_message TEXT NOT NULL DEFAULT '',
			amount INTEGER NOT NULL DEFAULT 0,
			date TEXT NOT NULL DEFAULT '',
			result_json TEXT NOT NULL
		);
		CREATE INDEX IF NOT EXISTS idx_records_status ON records(status);
		CREATE INDEX IF NOT EXISTS idx_records_date ON records(date)`,
	},
}

// Migrate applies all pending schema migrations.
func (s *SQLiteStorage) Migrate(ctx context.Context) error {
	if err := validateContext(ctx); err != nil {
		return err
	}

	if _, err := s.db.ExecContext(ctx, `CREATE TABLE IF NOT EXISTS migrations (
		version INTEGER PRIMARY KEY,
		description TEXT NOT NULL,
		applied_at TIMESTAMP NOT NULL DEFAULT CURRENT_TIMESTAMP
	)`); err != nil {
		return fmt.Errorf("failed to create migrations table: %w", err)
	}

	var current int
	if err := s.db.QueryRowContext(ctx, `SELECT COALESCE(MAX(version), 0) FROM migrations`).Scan(&current); err != nil {
		return fmt.Errorf("failed to read migration state: %w", err)
	}

	for _, m := range migrations {
		if m.version <= current {
			continue
		}

		tx, err := s.db.BeginTx(ctx, nil)
		if err != nil {
			return fmt.Errorf("failed to begin migration %d: %w", m.version, err)
		}

		if _, err := tx.ExecContext(ctx, m.sql); err != nil {
			_ = tx.Rollback()
			return fmt.Errorf("migration %d (%s) failed: %w", m.version, m.description, err)
		}
		if _, err := tx.ExecContext(ctx, `INSERT INTO migrations (version, description) VALUES (?, ?)`, m.version, m.description); err != nil {
			_ = tx.Rollback()
			return fmt.Errorf("failed to record migration %d: %w", m.version, err)
		}
		if err := tx.Commit(); err != nil {
			return fmt.Errorf("failed to commit migration %d: %w", m.version, err)
		}
	}

	return nil
}
