package consensus

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/consigna-dev/consigna/internal/common"
	"github.com/consigna-dev/consigna/internal/extract"
	"github.com/consigna-dev/consigna/internal/model"
	"github.com/consigna-dev/consigna/internal/rules"
)

var testImage = []byte("fake image bytes")

func newTestOrchestrator(primary, secondary extract.Provider) *Orchestrator {
	return New(primary, secondary, rules.NewPipeline(rules.Config{}), nil, nil)
}

func TestTripleCheckUnanimousAgreementBoostsConfidence(t *testing.T) {
	fields := model.RawFields{
		Amount:          150000,
		Date:            "2025-05-01",
		OperationNumber: "12345678",
		RRN:             "112233",
		Confidence:      85,
		IsReadable:      true,
	}
	provider := extract.NewMockProvider("openai", fields, fields, fields)
	o := newTestOrchestrator(provider, nil)

	result, err := o.TripleCheck(context.Background(), testImage, "image/jpeg", nil)
	require.NoError(t, err)

	assert.Equal(t, 3, provider.CallCount)
	assert.Equal(t, 95, result.Confidence)
	assert.False(t, result.HasAmbiguousNumbers)
	assert.Empty(t, result.AmbiguousFields)
	assert.Equal(t, "12345678", result.OperationNumber)
	assert.Equal(t, "openai", result.UsedProvider)
	assert.False(t, result.FromCache)
}

func TestTripleCheckConfidenceCappedAtHundred(t *testing.T) {
	fields := model.RawFields{OperationNumber: "12345678", Confidence: 95}
	provider := extract.NewMockProvider("openai", fields, fields, fields)
	o := newTestOrchestrator(provider, nil)

	result, err := o.TripleCheck(context.Background(), testImage, "image/jpeg", nil)
	require.NoError(t, err)
	assert.Equal(t, 100, result.Confidence)
}

func TestTripleCheckMajorityValueAdopted(t *testing.T) {
	agree := model.RawFields{RRN: "112233", Confidence: 70}
	outlier := model.RawFields{RRN: "999999", Confidence: 90}
	provider := extract.NewMockProvider("openai", agree, outlier, agree)
	o := newTestOrchestrator(provider, nil)

	result, err := o.TripleCheck(context.Background(), testImage, "image/jpeg", nil)
	require.NoError(t, err)

	// The outlier has the highest self-confidence and becomes the base, but
	// the majority value wins the contested-free field.
	assert.Equal(t, "112233", result.RRN)
	assert.Equal(t, 100, result.Confidence)
}

func TestTripleCheckSingleContestedFieldPenalized(t *testing.T) {
	a := model.RawFields{OperationNumber: "111111", Confidence: 90}
	b := model.RawFields{OperationNumber: "222222", Confidence: 80}
	c := model.RawFields{OperationNumber: "333333", Confidence: 70}
	provider := extract.NewMockProvider("openai", a, b, c)
	o := newTestOrchestrator(provider, nil)

	result, err := o.TripleCheck(context.Background(), testImage, "image/jpeg", nil)
	require.NoError(t, err)

	assert.Equal(t, 75, result.Confidence)
	assert.True(t, result.HasAmbiguousNumbers)
	assert.Contains(t, result.AmbiguousFields, "operationNumber")
}

func TestTripleCheckContestedConfidenceNeverBelowFloor(t *testing.T) {
	a := model.RawFields{OperationNumber: "111111", Confidence: 60}
	b := model.RawFields{OperationNumber: "222222", Confidence: 58}
	c := model.RawFields{OperationNumber: "333333", Confidence: 55}
	provider := extract.NewMockProvider("openai", a, b, c)
	o := newTestOrchestrator(provider, nil)

	result, err := o.TripleCheck(context.Background(), testImage, "image/jpeg", nil)
	require.NoError(t, err)
	assert.Equal(t, contestedFloor, result.Confidence)
}

func TestTripleCheckMultipleContestedFieldsCapped(t *testing.T) {
	a := model.RawFields{OperationNumber: "111111", RRN: "444444", Confidence: 90}
	b := model.RawFields{OperationNumber: "222222", RRN: "555555", Confidence: 85}
	c := model.RawFields{OperationNumber: "333333", RRN: "666666", Confidence: 80}
	provider := extract.NewMockProvider("openai", a, b, c)
	o := newTestOrchestrator(provider, nil)

	result, err := o.TripleCheck(context.Background(), testImage, "image/jpeg", nil)
	require.NoError(t, err)

	assert.Equal(t, multiContestedCap, result.Confidence)
	assert.True(t, result.HasAmbiguousNumbers)
	assert.Contains(t, result.AmbiguousFields, "operationNumber")
	assert.Contains(t, result.AmbiguousFields, "rrn")
}

func TestTripleCheckFailedCallExcludedFromVote(t *testing.T) {
	fields := model.RawFields{RRN: "112233", Confidence: 80}
	provider := extract.NewMockProvider("openai", fields, fields, fields)
	provider.Errors = []error{errors.New("transient failure")}
	o := newTestOrchestrator(provider, nil)

	result, err := o.TripleCheck(context.Background(), testImage, "image/jpeg", nil)
	require.NoError(t, err)

	// Two surviving calls still count as agreement.
	assert.Equal(t, 90, result.Confidence)
	assert.Equal(t, "112233", result.RRN)
}

func TestTripleCheckAllCallsFailed(t *testing.T) {
	boom := errors.New("provider down")
	provider := extract.NewMockProvider("openai")
	provider.Errors = []error{boom, boom, boom}
	o := newTestOrchestrator(provider, nil)

	_, err := o.TripleCheck(context.Background(), testImage, "image/jpeg", nil)
	require.Error(t, err)
	assert.ErrorIs(t, err, common.ErrExtractionUnavailable)
}

func TestDualProviderHighAgreementPicksMoreConfident(t *testing.T) {
	shared := model.RawFields{Amount: 150000, Date: "2025-05-01", RRN: "112233"}

	first := shared
	first.Confidence = 80
	second := shared
	second.Confidence = 92

	primary := extract.NewMockProvider("openai", first)
	secondary := extract.NewMockProvider("anthropic", second)
	o := newTestOrchestrator(primary, secondary)

	result, err := o.DualProvider(context.Background(), testImage, "image/jpeg", nil)
	require.NoError(t, err)

	assert.Equal(t, "anthropic", result.UsedProvider)
	assert.Equal(t, 92, result.Confidence)
	assert.False(t, result.HasAmbiguousNumbers)
	assert.False(t, result.FromCache)
}

func TestDualProviderDisagreementFallsBackToSecond(t *testing.T) {
	first := model.RawFields{Amount: 150000, Date: "2025-05-01", RRN: "112233", Confidence: 90}
	second := model.RawFields{Amount: 999999, Date: "2025-06-15", RRN: "778899", Confidence: 88}

	primary := extract.NewMockProvider("openai", first)
	secondary := extract.NewMockProvider("anthropic", second)
	o := newTestOrchestrator(primary, secondary)

	result, err := o.DualProvider(context.Background(), testImage, "image/jpeg", nil)
	require.NoError(t, err)

	assert.Equal(t, "anthropic", result.UsedProvider)
	assert.Equal(t, int64(999999), result.Amount)
	assert.Equal(t, dualFallbackCap, result.Confidence)
	assert.True(t, result.HasAmbiguousNumbers)
	assert.Contains(t, result.AmbiguousFields, disagreementMarker)
}

func TestDualProviderSurvivorWinsWhenOneFails(t *testing.T) {
	primary := extract.NewMockProvider("openai")
	primary.Errors = []error{errors.New("rate limited")}
	secondary := extract.NewMockProvider("anthropic", model.RawFields{RRN: "112233", Confidence: 85})
	o := newTestOrchestrator(primary, secondary)

	result, err := o.DualProvider(context.Background(), testImage, "image/jpeg", nil)
	require.NoError(t, err)

	assert.Equal(t, "anthropic", result.UsedProvider)
	assert.Equal(t, "112233", result.RRN)
	assert.Equal(t, 85, result.Confidence)
	assert.False(t, result.HasAmbiguousNumbers)
}

func TestDualProviderBothFailed(t *testing.T) {
	primary := extract.NewMockProvider("openai")
	primary.Errors = []error{errors.New("down")}
	secondary := extract.NewMockProvider("anthropic")
	secondary.Errors = []error{errors.New("also down")}
	o := newTestOrchestrator(primary, secondary)

	_, err := o.DualProvider(context.Background(), testImage, "image/jpeg", nil)
	require.Error(t, err)
	assert.ErrorIs(t, err, common.ErrExtractionUnavailable)
}

func TestDualProviderRequiresSecondProvider(t *testing.T) {
	o := newTestOrchestrator(extract.NewMockProvider("openai"), nil)
	_, err := o.DualProvider(context.Background(), testImage, "image/jpeg", nil)
	require.Error(t, err)
}

func TestExtractUnknownStrategy(t *testing.T) {
	o := newTestOrchestrator(extract.NewMockProvider("openai"), nil)
	_, err := o.Extract(context.Background(), Strategy("quintuple"), testImage, "image/jpeg", nil)
	require.Error(t, err)
}

func TestMergeFieldsDeduplicates(t *testing.T) {
	merged := mergeFields([]string{"rrn", "amount"}, []string{"amount", "operationNumber"})
	assert.Equal(t, []string{"rrn", "amount", "operationNumber"}, merged)
}
