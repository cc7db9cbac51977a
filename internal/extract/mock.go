package extract

import (
	"context"
	"sync"

	"github.com/consigna-dev/consigna/internal/model"
)

// MockProvider is a scriptable Provider implementation for testing.
// Responses are returned in order, one per call; the last response repeats
// once the script is exhausted.
type MockProvider struct {
	ProviderName string
	Responses    []model.RawFields
	Errors       []error
	CallCount    int
	mu           sync.Mutex
}

// NewMockProvider creates a mock provider named after the given provider.
func NewMockProvider(name string, responses ...model.RawFields) *MockProvider {
	return &MockProvider{ProviderName: name, Responses: responses}
}

// Name implements the Provider interface.
func (m *MockProvider) Name() string {
	if m.ProviderName == "" {
		return "mock"
	}
	return m.ProviderName
}

// Extract implements the Provider interface.
func (m *MockProvider) Extract(_ context.Context, _ []byte, _ string, _ []model.PromptExample) (model.RawFields, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	i := m.CallCount
	m.CallCount++

	if i < len(m.Errors) && m.Errors[i] != nil {
		return model.RawFields{}, m.Errors[i]
	}
	if len(m.Responses) == 0 {
		return model.RawFields{}, nil
	}
	if i >= len(m.Responses) {
		i = len(m.Responses) - 1
	}
	return m.Responses[i], nil
}
