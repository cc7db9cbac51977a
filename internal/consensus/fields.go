package consensus

import (
	"strconv"
	"strings"
	"unicode"

	"github.com/consigna-dev/consigna/internal/model"
)

// normalizeID canonicalizes a transaction identifier for exact comparison:
// uppercase with whitespace, dashes, and punctuation stripped.
func normalizeID(s string) string {
	var b strings.Builder
	for _, r := range strings.ToUpper(s) {
		if unicode.IsLetter(r) || unicode.IsDigit(r) {
			b.WriteRune(r)
		}
	}
	return b.String()
}

// digitsOnly keeps decimal digits, the fallback comparison for identifiers
// whose alphabetic decorations differ between calls.
func digitsOnly(s string) string {
	var b strings.Builder
	for _, r := range s {
		if r >= '0' && r <= '9' {
			b.WriteRune(r)
		}
	}
	return b.String()
}

// normalizeText collapses whitespace and lowercases, for free-text fields
// like bank names.
func normalizeText(s string) string {
	return strings.Join(strings.Fields(strings.ToLower(s)), " ")
}

// identityCriticalFields are the identifier fields whose disagreement forces
// a reduced-confidence result.
var identityCriticalFields = map[string]bool{
	"operationNumber": true,
	"rrn":             true,
	"receiptNumber":   true,
}

// fieldSpec ties one critical field to its accessor and normalizer, making
// the dual-provider comparison set explicit and testable in isolation.
type fieldSpec struct {
	name      string
	get       func(*model.RawFields) string
	normalize func(string) string
}

// criticalFields is the statically enumerated comparison table for
// dual-provider agreement scoring.
var criticalFields = []fieldSpec{
	{"amount", amountString, digitsOnly},
	{"date", func(f *model.RawFields) string { return f.Date }, digitsOnly},
	{"voucherNumber", func(f *model.RawFields) string { return f.VoucherNumber }, digitsOnly},
	{"operationNumber", func(f *model.RawFields) string { return f.OperationNumber }, digitsOnly},
	{"rrn", func(f *model.RawFields) string { return f.RRN }, digitsOnly},
	{"accountOrConvenio", func(f *model.RawFields) string { return f.AccountOrConvenio }, digitsOnly},
	{"bank", func(f *model.RawFields) string { return f.Bank }, normalizeText},
}

func amountString(f *model.RawFields) string {
	if f.Amount == 0 {
		return ""
	}
	return strconv.FormatInt(f.Amount, 10)
}

// agreementScore compares two extractions over the critical-field table.
// A field is compared when either side is non-empty after normalization and
// matched when both sides are non-empty and equal. The score is
// matched/compared x 100; with nothing to compare the score is zero.
func agreementScore(a, b *model.RawFields) (score float64, compared, matched int) {
	for _, spec := range criticalFields {
		av := spec.normalize(spec.get(a))
		bv := spec.normalize(spec.get(b))

		if av == "" && bv == "" {
			continue
		}
		compared++
		if av != "" && av == bv {
			matched++
		}
	}

	if compared == 0 {
		return 0, 0, 0
	}
	return float64(matched) / float64(compared) * 100, compared, matched
}

// resolveIdentifier computes the consensus value of one identifier field
// across the surviving calls of a triple-check round. It returns the
// majority value when at least two calls agree (exact normalization first,
// digits-only as fallback). The field is contested when no two calls agree
// and at least two calls produced a non-empty value.
func resolveIdentifier(name string, calls []model.RawFields) (value string, hasMajority, contested bool) {
	raw := make([]string, len(calls))
	for i := range calls {
		raw[i] = calls[i].Identifier(name)
	}

	if v, ok := majorityBy(raw, normalizeID); ok {
		return v, true, false
	}
	if v, ok := majorityBy(raw, digitsOnly); ok {
		return v, true, false
	}

	nonEmpty := 0
	for _, v := range raw {
		if strings.TrimSpace(v) != "" {
			nonEmpty++
		}
	}
	return "", false, nonEmpty >= 2
}

// majorityBy finds a value shared by at least two calls under the given
// normalization, returning the first raw form that carries it.
func majorityBy(raw []string, normalize func(string) string) (string, bool) {
	counts := make(map[string]int, len(raw))
	for _, v := range raw {
		n := normalize(v)
		if n == "" {
			continue
		}
		counts[n]++
	}

	for _, v := range raw {
		n := normalize(v)
		if n != "" && counts[n] >= 2 {
			return v, true
		}
	}
	return "", false
}
