package sheets

import (
	"context"
	"sync"

	"github.com/consigna-dev/consigna/internal/model"
	"github.com/consigna-dev/consigna/internal/service"
)

// MockStore is an in-memory implementation of service.HistoryStore for
// testing.
type MockStore struct {
	FetchFunc       func(ctx context.Context, filter service.RecordFilter) ([]model.ConsignmentRecord, error)
	AppendFunc      func(ctx context.Context, records []model.ConsignmentRecord) error
	Records         []model.ConsignmentRecord
	AppendCallCount int
	FetchCallCount  int
	mu              sync.Mutex
}

// NewMockStore creates a mock history store seeded with records.
func NewMockStore(records ...model.ConsignmentRecord) *MockStore {
	return &MockStore{Records: records}
}

// FetchHistory implements the HistoryStore interface.
func (m *MockStore) FetchHistory(ctx context.Context, filter service.RecordFilter) ([]model.ConsignmentRecord, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.FetchCallCount++
	if m.FetchFunc != nil {
		return m.FetchFunc(ctx, filter)
	}

	out := make([]model.ConsignmentRecord, len(m.Records))
	copy(out, m.Records)
	return out, nil
}

// AppendRecords implements the HistoryStore interface.
func (m *MockStore) AppendRecords(ctx context.Context, records []model.ConsignmentRecord) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.AppendCallCount++
	if m.AppendFunc != nil {
		return m.AppendFunc(ctx, records)
	}

	m.Records = append(m.Records, records...)
	return nil
}
