package engine

import (
	"context"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/consigna-dev/consigna/internal/consensus"
	"github.com/consigna-dev/consigna/internal/extract"
	"github.com/consigna-dev/consigna/internal/model"
	"github.com/consigna-dev/consigna/internal/rules"
	"github.com/consigna-dev/consigna/internal/service"
	"github.com/consigna-dev/consigna/internal/sheets"
	"github.com/consigna-dev/consigna/internal/storage"
)

func newTestEngine(t *testing.T, provider extract.Provider, history service.HistoryStore) (*Engine, service.Storage) {
	t.Helper()

	db, err := storage.NewSQLiteStorage(filepath.Join(t.TempDir(), "test.db"))
	require.NoError(t, err)
	t.Cleanup(func() { _ = db.Close() })
	require.NoError(t, db.Migrate(context.Background()))

	require.NoError(t, db.AddWhitelistEntry(context.Background(), model.WhitelistEntry{
		Value: "24500020949", Kind: model.KindAccount,
	}))

	orchestrator := consensus.New(provider, nil, rules.NewPipeline(rules.Config{}), nil, nil)

	eng := New(db, history, orchestrator, Config{
		Strategy:     consensus.StrategyTriple,
		AppendRemote: history != nil,
	}, nil)

	return eng, db
}

func readableFields(operation string, amount int64) model.RawFields {
	return model.RawFields{
		Bank:              "Bancolombia",
		AccountOrConvenio: "24500020949",
		Amount:            amount,
		Date:              "2025-05-01",
		Time:              "10:15",
		OperationNumber:   operation,
		ImageQuality:      85,
		Confidence:        90,
		IsReadable:        true,
	}
}

func image(ref string) Image {
	return Image{Ref: ref, MimeType: "image/jpeg", Data: []byte("image bytes for " + ref)}
}

func TestProcessBatchAcceptsAndPersists(t *testing.T) {
	provider := extract.NewMockProvider("openai", readableFields("12345678", 150000))
	eng, db := newTestEngine(t, provider, nil)

	records, err := eng.ProcessBatch(context.Background(), []Image{image("receipt1.jpg")})
	require.NoError(t, err)
	require.Len(t, records, 1)

	assert.Equal(t, model.StatusValid, records[0].Status)
	assert.NotEmpty(t, records[0].ID)
	assert.NotEmpty(t, records[0].ImageHash)
	assert.Equal(t, "receipt1.jpg", records[0].ImageRef)

	stored, err := db.GetAcceptedRecords(context.Background())
	require.NoError(t, err)
	require.Len(t, stored, 1)
	assert.Equal(t, records[0].ID, stored[0].ID)
}

// The second image repeats the first one's identifier and must be caught as a
// duplicate within the same batch.
func TestProcessBatchCatchesIntraBatchDuplicate(t *testing.T) {
	fields := readableFields("12345678", 150000)
	// Six identical responses: three calls per image, two images.
	provider := extract.NewMockProvider("openai", fields, fields, fields, fields, fields, fields)
	eng, _ := newTestEngine(t, provider, nil)

	records, err := eng.ProcessBatch(context.Background(), []Image{image("a.jpg"), image("b.jpg")})
	require.NoError(t, err)
	require.Len(t, records, 2)

	assert.Equal(t, model.StatusValid, records[0].Status)
	assert.Equal(t, model.StatusDuplicate, records[1].Status)
}

func TestProcessBatchUsesRemoteHistory(t *testing.T) {
	prior := model.ConsignmentRecord{
		ExtractionResult: model.ExtractionResult{RawFields: readableFields("12345678", 150000)},
		ID:               "remote-1",
		Status:           model.StatusValid,
	}
	history := sheets.NewMockStore(prior)

	provider := extract.NewMockProvider("openai", readableFields("12345678", 150000))
	eng, _ := newTestEngine(t, provider, history)

	records, err := eng.ProcessBatch(context.Background(), []Image{image("a.jpg")})
	require.NoError(t, err)
	require.Len(t, records, 1)

	assert.Equal(t, model.StatusDuplicate, records[0].Status)
	assert.Equal(t, 1, history.FetchCallCount)
	// Nothing accepted, so nothing is appended remotely.
	assert.Equal(t, 0, history.AppendCallCount)
}

func TestProcessBatchAppendsAcceptedToRemote(t *testing.T) {
	history := sheets.NewMockStore()

	provider := extract.NewMockProvider("openai", readableFields("12345678", 150000))
	eng, _ := newTestEngine(t, provider, history)

	records, err := eng.ProcessBatch(context.Background(), []Image{image("a.jpg")})
	require.NoError(t, err)
	require.Len(t, records, 1)
	require.Equal(t, model.StatusValid, records[0].Status)

	assert.Equal(t, 1, history.AppendCallCount)
	require.Len(t, history.Records, 1)
	assert.Equal(t, records[0].ID, history.Records[0].ID)
}

func TestProcessBatchContinuesPastFailedImage(t *testing.T) {
	boom := assert.AnError
	provider := extract.NewMockProvider("openai",
		readableFields("", 0), readableFields("", 0), readableFields("", 0),
		readableFields("87654321", 200000), readableFields("87654321", 200000), readableFields("87654321", 200000))
	// All three calls of the first image fail; the second image succeeds.
	provider.Errors = []error{boom, boom, boom}
	eng, _ := newTestEngine(t, provider, nil)

	records, err := eng.ProcessBatch(context.Background(), []Image{image("broken.jpg"), image("good.jpg")})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "broken.jpg")

	require.Len(t, records, 1)
	assert.Equal(t, "good.jpg", records[0].ImageRef)
	assert.Equal(t, model.StatusValid, records[0].Status)
}

func TestProcessBatchRejectsUnauthorizedAccount(t *testing.T) {
	fields := readableFields("12345678", 150000)
	fields.AccountOrConvenio = "99999999999"

	provider := extract.NewMockProvider("openai", fields)
	eng, _ := newTestEngine(t, provider, nil)

	records, err := eng.ProcessBatch(context.Background(), []Image{image("a.jpg")})
	require.NoError(t, err)
	require.Len(t, records, 1)
	assert.Equal(t, model.StatusInvalidAccount, records[0].Status)
}
