package storage

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/consigna-dev/consigna/internal/common"
	"github.com/consigna-dev/consigna/internal/model"
	"github.com/consigna-dev/consigna/internal/service"
)

// GetCacheEntry reads one cache entry by image hash. A missing row maps to
// ErrNotFound; an undecodable row maps to ErrCacheCorrupt so the cache can
// treat it as a miss.
func (s *SQLiteStorage) GetCacheEntry(ctx context.Context, imageHash string) (*model.CacheEntry, error) {
	if err := validateContext(ctx); err != nil {
		return nil, err
	}
	if err := validateString(imageHash, "imageHash"); err != nil {
		return nil, err
	}

	var entry model.CacheEntry
	var resultJSON string

	err := s.db.QueryRowContext(ctx, `
		SELECT image_hash, provider, ruleset_version, result_json, created_at
		FROM cache_entries WHERE image_hash = ?`, imageHash).
		Scan(&entry.ImageHash, &entry.Provider, &entry.RulesetVersion, &resultJSON, &entry.CreatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("%w: cache entry %s", common.ErrNotFound, imageHash)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to read cache entry: %w", err)
	}

	if err := json.Unmarshal([]byte(resultJSON), &entry.Result); err != nil {
		return nil, fmt.Errorf("%w: %v", common.ErrCacheCorrupt, err)
	}

	return &entry, nil
}

// PutCacheEntry writes one cache entry as a single atomic replace.
func (s *SQLiteStorage) PutCacheEntry(ctx context.Context, entry *model.CacheEntry) error {
	if err := validateContext(ctx); err != nil {
		return err
	}
	if entry == nil {
		return fmt.Errorf("entry cannot be nil")
	}
	if err := validateString(entry.ImageHash, "entry.ImageHash"); err != nil {
		return err
	}

	resultJSON, err := json.Marshal(entry.Result)
	if err != nil {
		return fmt.Errorf("failed to encode cache entry: %w", err)
	}

	_, err = s.db.ExecContext(ctx, `
		INSERT INTO cache_entries (image_hash, provider, ruleset_version, result_json, created_at)
		VALUES (?, ?, ?, ?, ?)
		ON CONFLICT(image_hash) DO UPDATE SET
			provider = excluded.provider,
			ruleset_version = excluded.ruleset_version,
			result_json = excluded.result_json,
			created_at = excluded.created_at`,
		entry.ImageHash, entry.Provider, entry.RulesetVersion, string(resultJSON), entry.CreatedAt)
	if err != nil {
		return fmt.Errorf("failed to write cache entry: %w", err)
	}

	return nil
}

// DeleteCacheEntry removes one cache entry, if present.
func (s *SQLiteStorage) DeleteCacheEntry(ctx context.Context, imageHash string) error {
	if err := validateContext(ctx); err != nil {
		return err
	}
	if err := validateString(imageHash, "imageHash"); err != nil {
		return err
	}

	if _, err := s.db.ExecContext(ctx, `DELETE FROM cache_entries WHERE image_hash = ?`, imageHash); err != nil {
		return fmt.Errorf("failed to delete cache entry: %w", err)
	}
	return nil
}

// DeleteCacheEntriesBefore physically removes entries created before the
// cutoff, regardless of their ruleset version.
func (s *SQLiteStorage) DeleteCacheEntriesBefore(ctx context.Context, cutoff time.Time) (int64, error) {
	if err := validateContext(ctx); err != nil {
		return 0, err
	}

	res, err := s.db.ExecContext(ctx, `DELETE FROM cache_entries WHERE created_at < ?`, cutoff)
	if err != nil {
		return 0, fmt.Errorf("failed to sweep cache entries: %w", err)
	}

	removed, err := res.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("failed to count swept entries: %w", err)
	}
	return removed, nil
}

// CacheStats summarizes the cache contents and the current ruleset version.
func (s *SQLiteStorage) CacheStats(ctx context.Context) (*service.CacheStats, error) {
	if err := validateContext(ctx); err != nil {
		return nil, err
	}

	stats := &service.CacheStats{}

	var oldest sql.NullTime
	err := s.db.QueryRowContext(ctx, `SELECT COUNT(*), MIN(created_at) FROM cache_entries`).
		Scan(&stats.Entries, &oldest)
	if err != nil {
		return nil, fmt.Errorf("failed to read cache stats: %w", err)
	}
	if oldest.Valid {
		stats.OldestEntry = oldest.Time
	}

	version, err := s.GetRulesetVersion(ctx)
	if err != nil {
		return nil, err
	}
	stats.CurrentVersion = version

	return stats, nil
}
