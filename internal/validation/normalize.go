package validation

import "strings"

// NormalizeAccount canonicalizes an account, convenio, or payment reference
// for comparison: spaces and dashes stripped, then leading zeros stripped.
// The function is idempotent.
func NormalizeAccount(s string) string {
	return strings.TrimLeft(stripSeparators(s), "0")
}

// stripSeparators removes whitespace and dashes without touching zeros,
// used for the relaxed transcript-substring checks where leading zeros are
// still meaningful.
func stripSeparators(s string) string {
	var b strings.Builder
	for _, r := range s {
		switch {
		case r == ' ' || r == '\t' || r == '\n' || r == '\r':
		case r == '-':
		default:
			b.WriteRune(r)
		}
	}
	return b.String()
}

func digitsOnly(s string) string {
	var b strings.Builder
	for _, r := range s {
		if r >= '0' && r <= '9' {
			b.WriteRune(r)
		}
	}
	return b.String()
}
