package storage

import (
	"context"
	"fmt"

	"github.com/consigna-dev/consigna/internal/model"
)

// GetWhitelist returns all whitelist entries, ordered by value.
func (s *SQLiteStorage) GetWhitelist(ctx context.Context) ([]model.WhitelistEntry, error) {
	if err := validateContext(ctx); err != nil {
		return nil, err
	}

	rows, err := s.db.QueryContext(ctx, `SELECT value, label, kind FROM whitelist_entries ORDER BY value`)
	if err != nil {
		return nil, fmt.Errorf("failed to query whitelist: %w", err)
	}
	defer func() { _ = rows.Close() }()

	var entries []model.WhitelistEntry
	for rows.Next() {
		var e model.WhitelistEntry
		if err := rows.Scan(&e.Value, &e.Label, &e.Kind); err != nil {
			return nil, fmt.Errorf("failed to scan whitelist entry: %w", err)
		}
		entries = append(entries, e)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate whitelist: %w", err)
	}

	return entries, nil
}

// AddWhitelistEntry inserts or updates one whitelist entry.
func (s *SQLiteStorage) AddWhitelistEntry(ctx context.Context, entry model.WhitelistEntry) error {
	if err := validateContext(ctx); err != nil {
		return err
	}
	if err := validateString(entry.Value, "entry.Value"); err != nil {
		return err
	}
	if entry.Kind != model.KindAccount && entry.Kind != model.KindConvenio {
		return fmt.Errorf("invalid whitelist kind: %s", entry.Kind)
	}

	_, err := s.db.ExecContext(ctx, `
		INSERT INTO whitelist_entries (value, label, kind) VALUES (?, ?, ?)
		ON CONFLICT(value) DO UPDATE SET label = excluded.label, kind = excluded.kind`,
		entry.Value, entry.Label, entry.Kind)
	if err != nil {
		return fmt.Errorf("failed to save whitelist entry: %w", err)
	}
	return nil
}

// RemoveWhitelistEntry deletes one whitelist entry by value.
func (s *SQLiteStorage) RemoveWhitelistEntry(ctx context.Context, value string) error {
	if err := validateContext(ctx); err != nil {
		return err
	}
	if err := validateString(value, "value"); err != nil {
		return err
	}

	if _, err := s.db.ExecContext(ctx, `DELETE FROM whitelist_entries WHERE value = ?`, value); err != nil {
		return fmt.Errorf("failed to remove whitelist entry: %w", err)
	}
	return nil
}
