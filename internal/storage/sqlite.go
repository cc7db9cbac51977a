// Package storage implements the persistence layer on SQLite: the result
// cache, the ruleset version counter, the authorization whitelist, and the
// local record history.
package storage

import (
	"context"
	"database/sql"
	"fmt"
	"os"
	"path/filepath"

	_ "github.com/mattn/go-sqlite3" // SQLite driver
)

// SQLiteStorage implements the service.Storage interface using SQLite.
type SQLiteStorage struct {
	db     *sql.DB
	dbPath string
}

// NewSQLiteStorage creates a new SQLite storage instance.
func NewSQLiteStorage(dbPath string) (*SQLiteStorage, error) {
	if err := validateString(dbPath, "dbPath"); err != nil {
		return nil, err
	}

	// Ensure directory exists
	dir := filepath.Dir(dbPath)
	if err := os.MkdirAll(dir, 0750); err != nil {
		return nil, fmt.Errorf("failed to create database directory: %w", err)
	}

	db, err := sql.Open("sqlite3", dbPath+"?_journal_mode=WAL&_busy_timeout=5000")
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	// SQLite doesn't benefit from multiple connections
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)
	db.SetConnMaxLifetime(0)

	if err := db.Ping(); err != nil {
		return nil, fmt.Errorf("failed to ping database: %w", err)
	}

	return &SQLiteStorage{
		db:     db,
		dbPath: dbPath,
	}, nil
}

// Close closes the database connection.
func (s *SQLiteStorage) Close() error {
	return s.db.Close()
}

// GetRulesetVersion returns the current global ruleset version counter.
func (s *SQLiteStorage) GetRulesetVersion(ctx context.Context) (int64, error) {
	if err := validateContext(ctx); err != nil {
		return 0, err
	}

	var version int64
	err := s.db.QueryRowContext(ctx, `SELECT version FROM ruleset_version WHERE id = 1`).Scan(&version)
	if err != nil {
		return 0, fmt.Errorf("failed to read ruleset version: %w", err)
	}
	return version, nil
}

// BumpRulesetVersion atomically increments the global counter and returns
// the new value. Entries written before the bump become logically invalid
// without being touched.
func (s *SQLiteStorage) BumpRulesetVersion(ctx context.Context) (int64, error) {
	if err := validateContext(ctx); err != nil {
		return 0, err
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return 0, fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	if _, err := tx.ExecContext(ctx, `UPDATE ruleset_version SET version = version + 1 WHERE id = 1`); err != nil {
		return 0, fmt.Errorf("failed to bump ruleset version: %w", err)
	}

	var version int64
	if err := tx.QueryRowContext(ctx, `SELECT version FROM ruleset_version WHERE id = 1`).Scan(&version); err != nil {
		return 0, fmt.Errorf("failed to read bumped version: %w", err)
	}

	if err := tx.Commit(); err != nil {
		return 0, fmt.Errorf("failed to commit version bump: %w", err)
	}

	return version, nil
}
