// Package consensus reconciles multiple independent extraction attempts over
// the same receipt image into one authoritative result, via single-provider
// majority voting or dual-provider agreement scoring.
package consensus

import (
	"context"
	"fmt"
	"log/slog"
	"sort"
	"sync"

	"github.com/consigna-dev/consigna/internal/cache"
	"github.com/consigna-dev/consigna/internal/common"
	"github.com/consigna-dev/consigna/internal/extract"
	"github.com/consigna-dev/consigna/internal/model"
	"github.com/consigna-dev/consigna/internal/rules"
)

// Strategy selects how a consensus round is run.
type Strategy string

// Available consensus strategies.
const (
	// StrategyTriple issues three parallel calls to the primary provider
	// and majority-votes each identifier field.
	StrategyTriple Strategy = "triple"
	// StrategyDual issues one call each to two distinct providers and
	// scores their agreement over the critical fields.
	StrategyDual Strategy = "dual"
)

// Confidence calibration constants.
const (
	tripleCallCount    = 3
	agreementBonus     = 10 // added when all identity-critical fields agree
	contestedPenalty   = 15 // subtracted when exactly one field is contested
	contestedFloor     = 55
	multiContestedCap  = 50
	dualScoreThreshold = 80.0
	dualFallbackCap    = 70

	// disagreementMarker is appended to AmbiguousFields when two providers
	// fail to reach the agreement threshold.
	disagreementMarker = "providerDisagreement"
)

// Orchestrator runs consensus extraction rounds. It consults the result
// cache before issuing any model call and writes the final result back.
type Orchestrator struct {
	primary   extract.Provider
	secondary extract.Provider
	pipeline  *rules.Pipeline
	cache     *cache.Store
	logger    *slog.Logger
}

// New creates an orchestrator. The secondary provider may be nil, in which
// case only the triple-check strategy is available. The cache may be nil to
// disable caching entirely.
func New(primary, secondary extract.Provider, pipeline *rules.Pipeline, cacheStore *cache.Store, logger *slog.Logger) *Orchestrator {
	if logger == nil {
		logger = slog.Default()
	}
	return &Orchestrator{
		primary:   primary,
		secondary: secondary,
		pipeline:  pipeline,
		cache:     cacheStore,
		logger:    logger,
	}
}

// Extract runs one consensus round with the selected strategy.
func (o *Orchestrator) Extract(ctx context.Context, strategy Strategy, image []byte, mimeType string, examples []model.PromptExample) (model.ExtractionResult, error) {
	switch strategy {
	case StrategyTriple, "":
		return o.TripleCheck(ctx, image, mimeType, examples)
	case StrategyDual:
		return o.DualProvider(ctx, image, mimeType, examples)
	default:
		return model.ExtractionResult{}, fmt.Errorf("unsupported consensus strategy: %s", strategy)
	}
}

// callOutcome is the settled result of one dispatched extraction call.
type callOutcome struct {
	fields model.RawFields
	err    error
}

// TripleCheck issues three parallel calls to the primary provider, applies
// the post-processor to each, majority-votes every identifier field, and
// calibrates the final confidence from the level of agreement.
func (o *Orchestrator) TripleCheck(ctx context.Context, image []byte, mimeType string, examples []model.PromptExample) (model.ExtractionResult, error) {
	hash := model.HashImage(image)

	if cached, ok := o.fromCache(ctx, hash); ok {
		return cached, nil
	}

	outcomes := o.dispatch(ctx, image, mimeType, examples, o.primary, tripleCallCount)

	calls := make([]model.RawFields, 0, tripleCallCount)
	for i, out := range outcomes {
		if out.err != nil {
			o.logger.Warn("extraction call failed, excluded from vote",
				"provider", o.primary.Name(),
				"call", i+1,
				"error", out.err)
			continue
		}
		calls = append(calls, o.pipeline.Apply(out.fields))
	}

	if len(calls) == 0 {
		return model.ExtractionResult{}, fmt.Errorf("%w: provider %s", common.ErrExtractionUnavailable, o.primary.Name())
	}

	result := o.reconcileTriple(calls)
	result.UsedProvider = o.primary.Name()
	result.FromCache = false

	o.toCache(ctx, hash, result)
	return result, nil
}

// reconcileTriple is the pure majority-vote reconciliation over the calls
// that survived a triple-check round.
func (o *Orchestrator) reconcileTriple(calls []model.RawFields) model.ExtractionResult {
	base := calls[0]
	for _, c := range calls[1:] {
		if c.Confidence > base.Confidence {
			base = c
		}
	}

	type resolution struct {
		value       string
		hasMajority bool
		contested   bool
	}
	resolutions := make(map[string]resolution, len(model.IdentifierFields))
	var contested []string
	contestedCritical := 0

	for _, name := range model.IdentifierFields {
		v, hasMajority, isContested := resolveIdentifier(name, calls)
		resolutions[name] = resolution{value: v, hasMajority: hasMajority, contested: isContested}
		if isContested {
			contested = append(contested, name)
			if identityCriticalFields[name] {
				contestedCritical++
			}
		}
	}
	sort.Strings(contested)

	result := model.ExtractionResult{RawFields: base}

	switch {
	case contestedCritical == 0:
		// Confirmed agreement: adopt majority values and boost confidence.
		for _, name := range model.IdentifierFields {
			if r := resolutions[name]; r.hasMajority {
				result.SetIdentifier(name, r.value)
			}
		}
		if len(calls) >= 2 {
			result.Confidence = min(base.Confidence+agreementBonus, 100)
		}

	case contestedCritical == 1:
		result.Confidence = max(base.Confidence-contestedPenalty, contestedFloor)
		result.HasAmbiguousNumbers = true
		result.AmbiguousFields = mergeFields(base.AmbiguousFields, contested)

	default:
		result.Confidence = min(base.Confidence, multiContestedCap)
		result.HasAmbiguousNumbers = true
		result.AmbiguousFields = mergeFields(base.AmbiguousFields, contested)
	}

	return result
}

// DualProvider issues one call each to two distinct providers and scores
// their agreement over the critical-field table. High agreement selects the
// more self-confident result; low agreement prefers the second provider's
// result with capped confidence and a disagreement marker.
func (o *Orchestrator) DualProvider(ctx context.Context, image []byte, mimeType string, examples []model.PromptExample) (model.ExtractionResult, error) {
	if o.secondary == nil {
		return model.ExtractionResult{}, fmt.Errorf("dual-provider consensus requires a second provider")
	}

	hash := model.HashImage(image)

	if cached, ok := o.fromCache(ctx, hash); ok {
		return cached, nil
	}

	providers := []extract.Provider{o.primary, o.secondary}
	outcomes := make([]callOutcome, len(providers))

	var wg sync.WaitGroup
	for i, p := range providers {
		wg.Add(1)
		go func(i int, p extract.Provider) {
			defer wg.Done()
			fields, err := p.Extract(ctx, image, mimeType, examples)
			outcomes[i] = callOutcome{fields: fields, err: err}
		}(i, p)
	}
	wg.Wait()

	for i, out := range outcomes {
		if out.err != nil {
			o.logger.Warn("extraction call failed, excluded from consensus",
				"provider", providers[i].Name(),
				"error", out.err)
		}
	}

	var result model.ExtractionResult
	switch {
	case outcomes[0].err != nil && outcomes[1].err != nil:
		return model.ExtractionResult{}, fmt.Errorf("%w: both providers failed", common.ErrExtractionUnavailable)

	case outcomes[0].err != nil:
		result = model.ExtractionResult{RawFields: o.pipeline.Apply(outcomes[1].fields)}
		result.UsedProvider = providers[1].Name()

	case outcomes[1].err != nil:
		result = model.ExtractionResult{RawFields: o.pipeline.Apply(outcomes[0].fields)}
		result.UsedProvider = providers[0].Name()

	default:
		first := o.pipeline.Apply(outcomes[0].fields)
		second := o.pipeline.Apply(outcomes[1].fields)
		result = o.reconcileDual(first, second, providers[0].Name(), providers[1].Name())
	}

	result.FromCache = false
	o.toCache(ctx, hash, result)
	return result, nil
}

// reconcileDual is the pure agreement-scoring reconciliation of two
// post-processed provider results.
func (o *Orchestrator) reconcileDual(first, second model.RawFields, firstName, secondName string) model.ExtractionResult {
	score, compared, matched := agreementScore(&first, &second)

	o.logger.Debug("dual-provider agreement",
		"score", score,
		"compared", compared,
		"matched", matched)

	if score >= dualScoreThreshold {
		winner, name := first, firstName
		if second.Confidence > first.Confidence {
			winner, name = second, secondName
		}
		result := model.ExtractionResult{RawFields: winner}
		result.UsedProvider = name
		return result
	}

	result := model.ExtractionResult{RawFields: second}
	result.UsedProvider = secondName
	result.Confidence = min(second.Confidence, dualFallbackCap)
	result.HasAmbiguousNumbers = true
	result.AmbiguousFields = mergeFields(second.AmbiguousFields, []string{disagreementMarker})
	return result
}

// dispatch issues n concurrent calls to one provider and joins on all of
// them. Late results cannot leak past the barrier: every outcome is settled
// before reconciliation starts.
func (o *Orchestrator) dispatch(ctx context.Context, image []byte, mimeType string, examples []model.PromptExample, provider extract.Provider, n int) []callOutcome {
	outcomes := make([]callOutcome, n)

	var wg sync.WaitGroup
	for i := 0; i < n; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			fields, err := provider.Extract(ctx, image, mimeType, examples)
			outcomes[i] = callOutcome{fields: fields, err: err}
		}(i)
	}
	wg.Wait()

	return outcomes
}

func (o *Orchestrator) fromCache(ctx context.Context, hash string) (model.ExtractionResult, bool) {
	if o.cache == nil {
		return model.ExtractionResult{}, false
	}

	entry, err := o.cache.Get(ctx, hash)
	if err != nil || entry == nil {
		return model.ExtractionResult{}, false
	}

	o.logger.Debug("cache hit", "image_hash", hash, "provider", entry.Provider)
	result := entry.Result
	result.FromCache = true
	return result, true
}

func (o *Orchestrator) toCache(ctx context.Context, hash string, result model.ExtractionResult) {
	if o.cache == nil {
		return
	}
	if err := o.cache.Put(ctx, hash, result, result.UsedProvider); err != nil {
		o.logger.Warn("failed to write extraction result to cache", "image_hash", hash, "error", err)
	}
}

func mergeFields(existing, added []string) []string {
	seen := make(map[string]bool, len(existing)+len(added))
	merged := make([]string, 0, len(existing)+len(added))
	for _, lists := range [][]string{existing, added} {
		for _, f := range lists {
			if !seen[f] {
				seen[f] = true
				merged = append(merged, f)
			}
		}
	}
	return merged
}
