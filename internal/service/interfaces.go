// Package service defines the interfaces for all application services.
package service

import (
	"context"
	"time"

	"github.com/consigna-dev/consigna/internal/model"
)

// RecordFilter defines filtering options for record queries.
type RecordFilter struct {
	StartDate *time.Time
	EndDate   *time.Time
	Statuses  []model.RecordStatus
	Limit     int
}

// CacheStats summarizes the current state of the result cache.
type CacheStats struct {
	OldestEntry    time.Time
	Entries        int
	CurrentVersion int64
}

// Storage defines the contract for the persistence layer.
type Storage interface {
	// Result cache operations
	GetCacheEntry(ctx context.Context, imageHash string) (*model.CacheEntry, error)
	PutCacheEntry(ctx context.Context, entry *model.CacheEntry) error
	DeleteCacheEntry(ctx context.Context, imageHash string) error
	DeleteCacheEntriesBefore(ctx context.Context, cutoff time.Time) (int64, error)
	CacheStats(ctx context.Context) (*CacheStats, error)

	// Ruleset version counter
	GetRulesetVersion(ctx context.Context) (int64, error)
	BumpRulesetVersion(ctx context.Context) (int64, error)

	// Whitelist operations
	GetWhitelist(ctx context.Context) ([]model.WhitelistEntry, error)
	AddWhitelistEntry(ctx context.Context, entry model.WhitelistEntry) error
	RemoveWhitelistEntry(ctx context.Context, value string) error

	// Record operations
	SaveRecords(ctx context.Context, records []model.ConsignmentRecord) error
	GetRecords(ctx context.Context, filter RecordFilter) ([]model.ConsignmentRecord, error)
	GetAcceptedRecords(ctx context.Context) ([]model.ConsignmentRecord, error)
	UpdateRecordStatus(ctx context.Context, id string, status model.RecordStatus, message string) error

	// Database management
	Migrate(ctx context.Context) error
	Close() error
}

// HistoryStore is the remote, spreadsheet-backed record store. The validation
// engine reads it as part of its duplicate-check corpus; appending is a
// post-validation concern.
type HistoryStore interface {
	FetchHistory(ctx context.Context, filter RecordFilter) ([]model.ConsignmentRecord, error)
	AppendRecords(ctx context.Context, records []model.ConsignmentRecord) error
}

// RetryOptions configures retry behavior for transient failures.
type RetryOptions struct {
	MaxAttempts  int
	InitialDelay time.Duration
	MaxDelay     time.Duration
	Multiplier   float64
}
