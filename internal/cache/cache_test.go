package cache

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/consigna-dev/consigna/internal/model"
	"github.com/consigna-dev/consigna/internal/service"
	"github.com/consigna-dev/consigna/internal/storage"
)

func newTestStore(t *testing.T) (*Store, service.Storage) {
	t.Helper()

	db, err := storage.NewSQLiteStorage(filepath.Join(t.TempDir(), "test.db"))
	require.NoError(t, err)
	t.Cleanup(func() { _ = db.Close() })
	require.NoError(t, db.Migrate(context.Background()))

	return New(db, 0, nil), db
}

func testResult(rrn string) model.ExtractionResult {
	var r model.ExtractionResult
	r.RRN = rrn
	r.Amount = 150000
	r.Confidence = 90
	return r
}

func TestCacheRoundTrip(t *testing.T) {
	ctx := context.Background()
	c, _ := newTestStore(t)

	require.NoError(t, c.Put(ctx, "hash-1", testResult("112233"), "openai"))

	entry, err := c.Get(ctx, "hash-1")
	require.NoError(t, err)
	require.NotNil(t, entry)

	assert.Equal(t, "112233", entry.Result.RRN)
	assert.Equal(t, int64(150000), entry.Result.Amount)
	assert.Equal(t, "openai", entry.Provider)
	assert.Equal(t, int64(1), entry.RulesetVersion)
}

func TestCacheMissOnUnknownHash(t *testing.T) {
	ctx := context.Background()
	c, _ := newTestStore(t)

	entry, err := c.Get(ctx, "never-written")
	require.NoError(t, err)
	assert.Nil(t, entry)
}

func TestCacheVersionBumpInvalidates(t *testing.T) {
	ctx := context.Background()
	c, db := newTestStore(t)

	require.NoError(t, c.Put(ctx, "hash-1", testResult("112233"), "openai"))

	version, err := c.BumpRulesetVersion(ctx)
	require.NoError(t, err)
	assert.Equal(t, int64(2), version)

	// Stale entry reads as a miss and is deleted lazily.
	entry, err := c.Get(ctx, "hash-1")
	require.NoError(t, err)
	assert.Nil(t, entry)

	stats, err := db.CacheStats(ctx)
	require.NoError(t, err)
	assert.Equal(t, 0, stats.Entries)

	// A fresh write under the new version is servable again.
	require.NoError(t, c.Put(ctx, "hash-1", testResult("445566"), "openai"))
	entry, err = c.Get(ctx, "hash-1")
	require.NoError(t, err)
	require.NotNil(t, entry)
	assert.Equal(t, "445566", entry.Result.RRN)
	assert.Equal(t, int64(2), entry.RulesetVersion)
}

func TestCacheTTLExpiry(t *testing.T) {
	ctx := context.Background()
	c, _ := newTestStore(t)

	now := time.Now()
	c.now = func() time.Time { return now }

	require.NoError(t, c.Put(ctx, "hash-1", testResult("112233"), "openai"))

	entry, err := c.Get(ctx, "hash-1")
	require.NoError(t, err)
	require.NotNil(t, entry)

	// Within the TTL the entry still serves; past it, a miss.
	c.now = func() time.Time { return now.Add(DefaultTTL - time.Hour) }
	entry, err = c.Get(ctx, "hash-1")
	require.NoError(t, err)
	assert.NotNil(t, entry)

	c.now = func() time.Time { return now.Add(DefaultTTL + time.Hour) }
	entry, err = c.Get(ctx, "hash-1")
	require.NoError(t, err)
	assert.Nil(t, entry)
}

func TestCacheSweepExpired(t *testing.T) {
	ctx := context.Background()
	c, db := newTestStore(t)

	now := time.Now()
	c.now = func() time.Time { return now.Add(-40 * 24 * time.Hour) }
	require.NoError(t, c.Put(ctx, "old", testResult("111111"), "openai"))

	c.now = func() time.Time { return now }
	require.NoError(t, c.Put(ctx, "fresh", testResult("222222"), "openai"))

	removed, err := c.SweepExpired(ctx, 0)
	require.NoError(t, err)
	assert.Equal(t, int64(1), removed)

	stats, err := db.CacheStats(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, stats.Entries)
}

func TestCachePutReplacesExisting(t *testing.T) {
	ctx := context.Background()
	c, _ := newTestStore(t)

	require.NoError(t, c.Put(ctx, "hash-1", testResult("111111"), "openai"))
	require.NoError(t, c.Put(ctx, "hash-1", testResult("222222"), "anthropic"))

	entry, err := c.Get(ctx, "hash-1")
	require.NoError(t, err)
	require.NotNil(t, entry)
	assert.Equal(t, "222222", entry.Result.RRN)
	assert.Equal(t, "anthropic", entry.Provider)
}

func TestCacheStats(t *testing.T) {
	ctx := context.Background()
	c, _ := newTestStore(t)

	require.NoError(t, c.Put(ctx, "hash-1", testResult("111111"), "openai"))
	require.NoError(t, c.Put(ctx, "hash-2", testResult("222222"), "openai"))

	stats, err := c.Stats(ctx)
	require.NoError(t, err)
	assert.Equal(t, 2, stats.Entries)
	assert.Equal(t, int64(1), stats.CurrentVersion)
}
