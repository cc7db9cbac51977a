// Package cache implements the versioned extraction-result cache. Entries
// are keyed by image content hash and stamped with the ruleset version
// current at write time; a version bump logically invalidates every entry
// in O(1), with physical deletion happening lazily on read or via sweep.
package cache

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"github.com/consigna-dev/consigna/internal/common"
	"github.com/consigna-dev/consigna/internal/model"
	"github.com/consigna-dev/consigna/internal/service"
)

// DefaultTTL bounds how long a cached extraction stays servable even when
// the ruleset never changes.
const DefaultTTL = 30 * 24 * time.Hour

// Store is the result cache over the persistence layer.
type Store struct {
	storage service.Storage
	logger  *slog.Logger
	now     func() time.Time
	ttl     time.Duration
}

// New creates a result cache with the given TTL (DefaultTTL when zero).
func New(storage service.Storage, ttl time.Duration, logger *slog.Logger) *Store {
	if ttl <= 0 {
		ttl = DefaultTTL
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Store{
		storage: storage,
		ttl:     ttl,
		logger:  logger,
		now:     time.Now,
	}
}

// Get returns the cached entry for an image hash, or nil when absent.
// An entry is absent when it does not exist, when its ruleset version no
// longer matches the current counter (the stale entry is deleted lazily),
// or when its age exceeds the TTL. Unreadable entries count as misses,
// never as failures.
func (s *Store) Get(ctx context.Context, imageHash string) (*model.CacheEntry, error) {
	entry, err := s.storage.GetCacheEntry(ctx, imageHash)
	if err != nil {
		if errors.Is(err, common.ErrNotFound) {
			return nil, nil
		}
		if errors.Is(err, common.ErrCacheCorrupt) {
			s.logger.Warn("discarding unreadable cache entry", "image_hash", imageHash, "error", err)
			_ = s.storage.DeleteCacheEntry(ctx, imageHash)
			return nil, nil
		}
		s.logger.Warn("cache read failed, treating as miss", "image_hash", imageHash, "error", err)
		return nil, nil
	}

	version, err := s.storage.GetRulesetVersion(ctx)
	if err != nil {
		return nil, err
	}

	if entry.RulesetVersion != version {
		// Lazy invalidation: the bump only moved the counter.
		if delErr := s.storage.DeleteCacheEntry(ctx, imageHash); delErr != nil {
			s.logger.Warn("failed to delete stale cache entry", "image_hash", imageHash, "error", delErr)
		}
		return nil, nil
	}

	if s.now().Sub(entry.CreatedAt) > s.ttl {
		return nil, nil
	}

	return entry, nil
}

// Put stores an extraction result under the image hash, stamped with the
// ruleset version current at write time. The write replaces any previous
// entry for the hash atomically.
func (s *Store) Put(ctx context.Context, imageHash string, result model.ExtractionResult, provider string) error {
	version, err := s.storage.GetRulesetVersion(ctx)
	if err != nil {
		return err
	}

	return s.storage.PutCacheEntry(ctx, &model.CacheEntry{
		ImageHash:      imageHash,
		Result:         result,
		Provider:       provider,
		RulesetVersion: version,
		CreatedAt:      s.now(),
	})
}

// BumpRulesetVersion increments the global counter, logically invalidating
// the entire cache without touching any entry. Call it whenever the
// human-curated correction rules or training examples change.
func (s *Store) BumpRulesetVersion(ctx context.Context) (int64, error) {
	version, err := s.storage.BumpRulesetVersion(ctx)
	if err != nil {
		return 0, err
	}
	s.logger.Info("ruleset version bumped, cache invalidated", "version", version)
	return version, nil
}

// SweepExpired physically removes entries older than the window, regardless
// of ruleset version, bounding storage growth.
func (s *Store) SweepExpired(ctx context.Context, window time.Duration) (int64, error) {
	if window <= 0 {
		window = s.ttl
	}
	removed, err := s.storage.DeleteCacheEntriesBefore(ctx, s.now().Add(-window))
	if err != nil {
		return 0, err
	}
	if removed > 0 {
		s.logger.Info("swept expired cache entries", "removed", removed, "window", window)
	}
	return removed, nil
}

// Stats reports the current cache size and ruleset version.
func (s *Store) Stats(ctx context.Context) (*service.CacheStats, error) {
	return s.storage.CacheStats(ctx)
}
