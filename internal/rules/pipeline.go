// Package rules implements the deterministic post-processing pipeline applied
// to every raw extraction. Each rule pattern-matches the receipt transcript
// and corrects a known, systematic extractor error for one receipt format.
// Rules are pure, total, and idempotent; they never clear a populated field
// unless they replace it with a more authoritative value.
package rules

import (
	"github.com/consigna-dev/consigna/internal/model"
)

// Rule is one deterministic rewrite over extracted fields.
type Rule interface {
	Name() string
	Apply(fields model.RawFields) model.RawFields
}

// Partner describes a known business client whose payments arrive through a
// dedicated convenio. A match forces the canonical payment reference.
type Partner struct {
	Name      string
	Reference string            // canonical payment reference code
	Convenios []string          // convenio codes owned by this partner
	Markers   []string          // transcript substrings identifying the partner
	Aliases   map[string]string // transcript alias -> overriding reference
}

// Config carries the operator-curated inputs of the pipeline. Changing it is
// a ruleset change: callers must bump the cache's ruleset version afterwards.
type Config struct {
	Partners []Partner
}

// Pipeline applies the fixed, ordered rule sequence. Each rule sees the
// output of the previous one.
type Pipeline struct {
	rules []Rule
}

// NewPipeline creates the standard pipeline in its fixed order.
func NewPipeline(cfg Config) *Pipeline {
	return &Pipeline{
		rules: []Rule{
			&transfiyaIdentifierRule{},
			&appScreenshotRule{},
			&thermalReceiptRule{},
			&knownClientRule{partners: cfg.Partners},
		},
	}
}

// Apply runs all rules in sequence over one extraction.
func (p *Pipeline) Apply(fields model.RawFields) model.RawFields {
	for _, r := range p.rules {
		fields = r.Apply(fields)
	}
	return fields
}

// Rules exposes the ordered rule names, for logging and diagnostics.
func (p *Pipeline) Rules() []string {
	names := make([]string, len(p.rules))
	for i, r := range p.rules {
		names[i] = r.Name()
	}
	return names
}
