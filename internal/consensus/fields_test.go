package consensus

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/consigna-dev/consigna/internal/model"
)

func TestNormalizeID(t *testing.T) {
	tests := []struct {
		in   string
		want string
	}{
		{"ABC-123", "ABC123"},
		{"abc 123", "ABC123"},
		{"  12.34.56  ", "123456"},
		{"", ""},
		{"---", ""},
	}

	for _, tt := range tests {
		assert.Equal(t, tt.want, normalizeID(tt.in), "normalizeID(%q)", tt.in)
	}
}

func TestAgreementScore(t *testing.T) {
	tests := []struct {
		name         string
		a, b         model.RawFields
		wantScore    float64
		wantCompared int
		wantMatched  int
	}{
		{
			name:         "full agreement",
			a:            model.RawFields{Amount: 150000, Date: "2025-05-01", RRN: "112233"},
			b:            model.RawFields{Amount: 150000, Date: "2025-05-01", RRN: "112233"},
			wantScore:    100,
			wantCompared: 3,
			wantMatched:  3,
		},
		{
			name:         "one side empty counts as compared, not matched",
			a:            model.RawFields{Amount: 150000, RRN: "112233"},
			b:            model.RawFields{Amount: 150000},
			wantScore:    50,
			wantCompared: 2,
			wantMatched:  1,
		},
		{
			name:         "formatting differences ignored for identifiers",
			a:            model.RawFields{RRN: "11-22-33"},
			b:            model.RawFields{RRN: "112233"},
			wantScore:    100,
			wantCompared: 1,
			wantMatched:  1,
		},
		{
			name:         "bank names compared case-insensitively",
			a:            model.RawFields{Bank: "Banco   de Bogotá"},
			b:            model.RawFields{Bank: "banco de bogotá"},
			wantScore:    100,
			wantCompared: 1,
			wantMatched:  1,
		},
		{
			name:         "nothing to compare scores zero",
			a:            model.RawFields{},
			b:            model.RawFields{},
			wantScore:    0,
			wantCompared: 0,
			wantMatched:  0,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			score, compared, matched := agreementScore(&tt.a, &tt.b)
			assert.InDelta(t, tt.wantScore, score, 0.01)
			assert.Equal(t, tt.wantCompared, compared)
			assert.Equal(t, tt.wantMatched, matched)
		})
	}
}

func TestResolveIdentifier(t *testing.T) {
	calls := func(values ...string) []model.RawFields {
		out := make([]model.RawFields, len(values))
		for i, v := range values {
			out[i].RRN = v
		}
		return out
	}

	tests := []struct {
		name          string
		calls         []model.RawFields
		wantValue     string
		wantMajority  bool
		wantContested bool
	}{
		{
			name:         "unanimous",
			calls:        calls("112233", "112233", "112233"),
			wantValue:    "112233",
			wantMajority: true,
		},
		{
			name:         "two of three agree",
			calls:        calls("112233", "999999", "112233"),
			wantValue:    "112233",
			wantMajority: true,
		},
		{
			name:         "majority found under digits-only fallback",
			calls:        calls("RRN112233", "A112233", "112233"),
			wantValue:    "RRN112233",
			wantMajority: true,
		},
		{
			name:          "three distinct non-empty values are contested",
			calls:         calls("111111", "222222", "333333"),
			wantContested: true,
		},
		{
			name:  "single non-empty value is neither majority nor contested",
			calls: calls("112233", "", ""),
		},
		{
			name:  "all empty",
			calls: calls("", "", ""),
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			value, hasMajority, contested := resolveIdentifier("rrn", tt.calls)
			assert.Equal(t, tt.wantValue, value)
			assert.Equal(t, tt.wantMajority, hasMajority)
			assert.Equal(t, tt.wantContested, contested)
		})
	}
}
