// Package validation classifies each extraction result as accepted or
// rejected. Rules run in a fixed order and the first matching rule wins;
// outcomes are terminal classifications with human-readable explanations,
// never errors.
package validation

import (
	"fmt"
	"log/slog"
	"strings"

	"github.com/consigna-dev/consigna/internal/model"
)

// minStrictIdentifierDigits guards the strict duplicate check and the
// relaxed authorization fallbacks against trivially short values.
const minStrictIdentifierDigits = 3

// Config carries the tunable validation policy. The amount tolerance and
// the "missing time cannot rule out a duplicate" behavior deliberately
// favor false positives over false negatives; they are business policy,
// not constants.
type Config struct {
	// MinQualityScore rejects images scored below it. Default 60.
	MinQualityScore int
	// AmountTolerance is the +/- window, in currency units, of the
	// heuristic duplicate check. Default 50.
	AmountTolerance int64
	// CommonReferences are additional destination values accepted as
	// authorized without a whitelist entry.
	CommonReferences []string
}

// DefaultConfig returns the standard validation policy.
func DefaultConfig() Config {
	return Config{
		MinQualityScore: 60,
		AmountTolerance: 50,
	}
}

// Engine applies the validation rules against a whitelist and a corpus of
// previously accepted records. It never mutates the corpus; callers append
// accepted records for subsequent checks within the same batch.
type Engine struct {
	logger    *slog.Logger
	whitelist []model.WhitelistEntry
	cfg       Config
}

// New creates a validation engine.
func New(cfg Config, whitelist []model.WhitelistEntry, logger *slog.Logger) *Engine {
	if cfg.MinQualityScore == 0 {
		cfg.MinQualityScore = DefaultConfig().MinQualityScore
	}
	if cfg.AmountTolerance == 0 {
		cfg.AmountTolerance = DefaultConfig().AmountTolerance
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Engine{cfg: cfg, whitelist: whitelist, logger: logger}
}

// Validate classifies one candidate against the history corpus.
func (e *Engine) Validate(candidate model.ExtractionResult, corpus []model.ConsignmentRecord) model.ValidationOutcome {
	if outcome, rejected := e.qualityGate(candidate); rejected {
		return outcome
	}
	if outcome, rejected := e.strictDuplicate(candidate, corpus); rejected {
		return outcome
	}
	if outcome, rejected := e.heuristicDuplicate(candidate, corpus); rejected {
		return outcome
	}
	if outcome, rejected := e.authorization(candidate); rejected {
		return outcome
	}

	return model.ValidationOutcome{
		Status:  model.StatusValid,
		Message: "receipt passed quality, duplicate, and authorization checks",
	}
}

func (e *Engine) qualityGate(candidate model.ExtractionResult) (model.ValidationOutcome, bool) {
	if !candidate.IsReadable {
		return model.ValidationOutcome{
			Status:  model.StatusLowQuality,
			Message: fmt.Sprintf("receipt is not readable (quality score %d, threshold %d)", candidate.ImageQuality, e.cfg.MinQualityScore),
		}, true
	}
	if candidate.ImageQuality < e.cfg.MinQualityScore {
		return model.ValidationOutcome{
			Status:  model.StatusLowQuality,
			Message: fmt.Sprintf("image quality score %d is below the minimum threshold %d", candidate.ImageQuality, e.cfg.MinQualityScore),
		}, true
	}
	return model.ValidationOutcome{}, false
}

// strictDuplicate matches the candidate's primary identifier, digits-only,
// against every identifier of every corpus record.
func (e *Engine) strictDuplicate(candidate model.ExtractionResult, corpus []model.ConsignmentRecord) (model.ValidationOutcome, bool) {
	primary := digitsOnly(candidate.PrimaryIdentifier())
	if len(primary) <= minStrictIdentifierDigits {
		return model.ValidationOutcome{}, false
	}

	for i := range corpus {
		for _, id := range corpus[i].Identifiers() {
			if digitsOnly(id) == primary {
				return model.ValidationOutcome{
					Status:  model.StatusDuplicate,
					Message: fmt.Sprintf("transaction identifier %s already registered on record %s", candidate.PrimaryIdentifier(), recordLabel(&corpus[i])),
				}, true
			}
		}
	}
	return model.ValidationOutcome{}, false
}

// heuristicDuplicate flags repeat payments correlated by amount, date, and
// reference or clock time. A missing time on either side never fires the
// time rule but does not block the reference rule.
func (e *Engine) heuristicDuplicate(candidate model.ExtractionResult, corpus []model.ConsignmentRecord) (model.ValidationOutcome, bool) {
	candidateRef := NormalizeAccount(candidate.PaymentReference)

	for i := range corpus {
		record := &corpus[i]

		if candidate.Date == "" || candidate.Date != record.Date {
			continue
		}
		diff := candidate.Amount - record.Amount
		if diff < 0 {
			diff = -diff
		}
		if diff > e.cfg.AmountTolerance {
			continue
		}

		refMatch := candidateRef != "" && candidateRef == NormalizeAccount(record.PaymentReference)
		timeMatch := candidate.Time != "" && record.Time != "" && candidate.Time == record.Time

		if refMatch || timeMatch {
			reason := "same payment reference"
			if !refMatch {
				reason = "same payment time"
			}
			return model.ValidationOutcome{
				Status: model.StatusDuplicate,
				Message: fmt.Sprintf("likely repeat payment of record %s: amount %d within %d of %d on %s, %s",
					recordLabel(record), candidate.Amount, e.cfg.AmountTolerance, record.Amount, record.Date, reason),
			}, true
		}
	}
	return model.ValidationOutcome{}, false
}

// authorization checks the destination against the whitelist, the common
// reference list, and the relaxed containment fallbacks.
func (e *Engine) authorization(candidate model.ExtractionResult) (model.ValidationOutcome, bool) {
	account := NormalizeAccount(candidate.AccountOrConvenio)

	// An empty extracted account can still be authorized when the payment
	// reference embeds a whitelisted account.
	if account == "" {
		ref := stripSeparators(candidate.PaymentReference)
		for _, entry := range e.whitelist {
			v := stripSeparators(entry.Value)
			if len(digitsOnly(v)) > minStrictIdentifierDigits && strings.Contains(ref, v) {
				account = NormalizeAccount(entry.Value)
				break
			}
		}
	}

	for _, entry := range e.whitelist {
		if account != "" && NormalizeAccount(entry.Value) == account {
			return model.ValidationOutcome{}, false
		}
	}
	for _, ref := range e.cfg.CommonReferences {
		if account != "" && NormalizeAccount(ref) == account {
			return model.ValidationOutcome{}, false
		}
	}

	// Relaxed fallback: containment within the account value or within the
	// whitespace-stripped transcript. Inherently ambiguous for short
	// whitelist values, so those are excluded.
	transcript := stripSeparators(candidate.RawText)
	for _, entry := range e.whitelist {
		v := NormalizeAccount(entry.Value)
		if len(digitsOnly(v)) <= minStrictIdentifierDigits {
			continue
		}
		if account != "" && strings.Contains(account, v) {
			return model.ValidationOutcome{}, false
		}
		if strings.Contains(transcript, stripSeparators(entry.Value)) {
			return model.ValidationOutcome{}, false
		}
	}

	rejected := candidate.AccountOrConvenio
	if rejected == "" {
		rejected = "(not found on receipt)"
	}
	return model.ValidationOutcome{
		Status:  model.StatusInvalidAccount,
		Message: fmt.Sprintf("destination account or convenio %s is not authorized", rejected),
	}, true
}

func recordLabel(record *model.ConsignmentRecord) string {
	if record.ID != "" {
		return record.ID
	}
	if record.ImageHash != "" {
		return record.ImageHash[:min(12, len(record.ImageHash))]
	}
	return "(unidentified)"
}
