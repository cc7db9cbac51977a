package model

import "time"

// RecordStatus is the validation outcome attached to a consignment record.
type RecordStatus string

// Record status constants. A record has exactly one status at any time.
const (
	StatusPending        RecordStatus = "PENDING"
	StatusValid          RecordStatus = "VALID"
	StatusDuplicate      RecordStatus = "DUPLICATE"
	StatusInvalidAccount RecordStatus = "INVALID_ACCOUNT"
	StatusLowQuality     RecordStatus = "LOW_QUALITY"
)

// ConsignmentRecord is the externally visible unit: one processed receipt
// image with its extraction result and validation status. Status may be
// upgraded later by manual review, but the extracted fields are never
// silently altered.
type ConsignmentRecord struct {
	ExtractionResult

	CreatedAt     time.Time
	ID            string
	ImageRef      string
	ImageHash     string
	Status        RecordStatus
	StatusMessage string
}

// ValidationOutcome is the terminal classification emitted by the validation
// engine. Outcomes are data, not errors; rejected records still carry a
// human-readable explanation.
type ValidationOutcome struct {
	Status  RecordStatus
	Message string
}

// CacheEntry is one stored extraction result, tagged with the ruleset
// version current at write time. Entries whose version no longer matches
// the global counter are treated as absent.
type CacheEntry struct {
	CreatedAt      time.Time
	ImageHash      string
	Provider       string
	RulesetVersion int64
	Result         ExtractionResult
}
