package storage

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/consigna-dev/consigna/internal/common"
	"github.com/consigna-dev/consigna/internal/model"
	"github.com/consigna-dev/consigna/internal/service"
)

func newTestStorage(t *testing.T) *SQLiteStorage {
	t.Helper()

	s, err := NewSQLiteStorage(filepath.Join(t.TempDir(), "test.db"))
	require.NoError(t, err)
	t.Cleanup(func() { _ = s.Close() })
	require.NoError(t, s.Migrate(context.Background()))
	return s
}

func testRecord(id string, status model.RecordStatus, createdAt time.Time) model.ConsignmentRecord {
	var result model.ExtractionResult
	result.Amount = 150000
	result.Date = "2025-05-01"
	result.RRN = "112233"
	result.Confidence = 90

	return model.ConsignmentRecord{
		ExtractionResult: result,
		ID:               id,
		ImageRef:         id + ".jpg",
		ImageHash:        "hash-" + id,
		CreatedAt:        createdAt,
		Status:           status,
		StatusMessage:    "test",
	}
}

func TestMigrateIsIdempotent(t *testing.T) {
	s := newTestStorage(t)
	require.NoError(t, s.Migrate(context.Background()))

	version, err := s.GetRulesetVersion(context.Background())
	require.NoError(t, err)
	assert.Equal(t, int64(1), version)
}

func TestRulesetVersionBump(t *testing.T) {
	ctx := context.Background()
	s := newTestStorage(t)

	v1, err := s.BumpRulesetVersion(ctx)
	require.NoError(t, err)
	assert.Equal(t, int64(2), v1)

	v2, err := s.BumpRulesetVersion(ctx)
	require.NoError(t, err)
	assert.Equal(t, int64(3), v2)

	current, err := s.GetRulesetVersion(ctx)
	require.NoError(t, err)
	assert.Equal(t, int64(3), current)
}

func TestCacheEntryLifecycle(t *testing.T) {
	ctx := context.Background()
	s := newTestStorage(t)

	_, err := s.GetCacheEntry(ctx, "missing")
	assert.ErrorIs(t, err, common.ErrNotFound)

	var result model.ExtractionResult
	result.RRN = "112233"

	entry := &model.CacheEntry{
		ImageHash:      "hash-1",
		Provider:       "openai",
		RulesetVersion: 1,
		Result:         result,
		CreatedAt:      time.Now(),
	}
	require.NoError(t, s.PutCacheEntry(ctx, entry))

	got, err := s.GetCacheEntry(ctx, "hash-1")
	require.NoError(t, err)
	assert.Equal(t, "112233", got.Result.RRN)
	assert.Equal(t, "openai", got.Provider)

	require.NoError(t, s.DeleteCacheEntry(ctx, "hash-1"))
	_, err = s.GetCacheEntry(ctx, "hash-1")
	assert.ErrorIs(t, err, common.ErrNotFound)
}

func TestCorruptCacheEntry(t *testing.T) {
	ctx := context.Background()
	s := newTestStorage(t)

	_, err := s.db.ExecContext(ctx, `
		INSERT INTO cache_entries (image_hash, provider, ruleset_version, result_json, created_at)
		VALUES ('bad', 'openai', 1, 'not json', ?)`, time.Now())
	require.NoError(t, err)

	_, err = s.GetCacheEntry(ctx, "bad")
	assert.ErrorIs(t, err, common.ErrCacheCorrupt)
}

func TestDeleteCacheEntriesBefore(t *testing.T) {
	ctx := context.Background()
	s := newTestStorage(t)

	now := time.Now()
	for i, age := range []time.Duration{45 * 24 * time.Hour, 10 * 24 * time.Hour} {
		entry := &model.CacheEntry{
			ImageHash:      string(rune('a' + i)),
			Provider:       "openai",
			RulesetVersion: 1,
			CreatedAt:      now.Add(-age),
		}
		require.NoError(t, s.PutCacheEntry(ctx, entry))
	}

	removed, err := s.DeleteCacheEntriesBefore(ctx, now.Add(-30*24*time.Hour))
	require.NoError(t, err)
	assert.Equal(t, int64(1), removed)

	stats, err := s.CacheStats(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, stats.Entries)
}

func TestWhitelistOperations(t *testing.T) {
	ctx := context.Background()
	s := newTestStorage(t)

	require.NoError(t, s.AddWhitelistEntry(ctx, model.WhitelistEntry{
		Value: "24500020949", Label: "Cuenta principal", Kind: model.KindAccount,
	}))
	require.NoError(t, s.AddWhitelistEntry(ctx, model.WhitelistEntry{
		Value: "94375", Label: "Convenio Acme", Kind: model.KindConvenio,
	}))

	entries, err := s.GetWhitelist(ctx)
	require.NoError(t, err)
	require.Len(t, entries, 2)

	// Re-adding the same value updates in place instead of duplicating.
	require.NoError(t, s.AddWhitelistEntry(ctx, model.WhitelistEntry{
		Value: "94375", Label: "Convenio Acme SA", Kind: model.KindConvenio,
	}))
	entries, err = s.GetWhitelist(ctx)
	require.NoError(t, err)
	require.Len(t, entries, 2)

	require.NoError(t, s.RemoveWhitelistEntry(ctx, "94375"))
	entries, err = s.GetWhitelist(ctx)
	require.NoError(t, err)
	require.Len(t, entries, 1)
	assert.Equal(t, "24500020949", entries[0].Value)
}

func TestRecordsSaveAndQuery(t *testing.T) {
	ctx := context.Background()
	s := newTestStorage(t)

	now := time.Now()
	records := []model.ConsignmentRecord{
		testRecord("r1", model.StatusValid, now.Add(-2*time.Hour)),
		testRecord("r2", model.StatusDuplicate, now.Add(-time.Hour)),
		testRecord("r3", model.StatusValid, now),
	}
	require.NoError(t, s.SaveRecords(ctx, records))

	all, err := s.GetRecords(ctx, service.RecordFilter{})
	require.NoError(t, err)
	require.Len(t, all, 3)
	assert.Equal(t, "r1", all[0].ID)
	assert.Equal(t, int64(150000), all[0].Amount)
	assert.Equal(t, "112233", all[0].RRN)

	accepted, err := s.GetAcceptedRecords(ctx)
	require.NoError(t, err)
	require.Len(t, accepted, 2)

	limited, err := s.GetRecords(ctx, service.RecordFilter{Limit: 1})
	require.NoError(t, err)
	require.Len(t, limited, 1)

	start := now.Add(-90 * time.Minute)
	ranged, err := s.GetRecords(ctx, service.RecordFilter{StartDate: &start})
	require.NoError(t, err)
	assert.Len(t, ranged, 2)
}

func TestUpdateRecordStatus(t *testing.T) {
	ctx := context.Background()
	s := newTestStorage(t)

	require.NoError(t, s.SaveRecords(ctx, []model.ConsignmentRecord{
		testRecord("r1", model.StatusPending, time.Now()),
	}))

	require.NoError(t, s.UpdateRecordStatus(ctx, "r1", model.StatusValid, "accepted after review"))

	records, err := s.GetRecords(ctx, service.RecordFilter{})
	require.NoError(t, err)
	require.Len(t, records, 1)
	assert.Equal(t, model.StatusValid, records[0].Status)
	assert.Equal(t, "accepted after review", records[0].StatusMessage)

	assert.Error(t, s.UpdateRecordStatus(ctx, "no-such-record", model.StatusValid, ""))
}

func TestSaveRecordsEmptyBatch(t *testing.T) {
	s := newTestStorage(t)
	require.NoError(t, s.SaveRecords(context.Background(), nil))
}
