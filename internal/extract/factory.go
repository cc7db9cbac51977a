package extract

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/consigna-dev/consigna/internal/common"
	"github.com/consigna-dev/consigna/internal/model"
	"github.com/consigna-dev/consigna/internal/service"
)

// NewProvider creates an extraction provider based on the provided
// configuration, wrapped with rate limiting and bounded retries for
// transient failures. Non-transient failures (invalid image, protocol
// errors) are surfaced immediately.
func NewProvider(cfg Config) (Provider, error) {
	var inner Provider
	var err error

	switch strings.ToLower(cfg.Provider) {
	case "openai":
		inner, err = newOpenAIProvider(cfg)
	case "anthropic":
		inner, err = newAnthropicProvider(cfg)
	default:
		return nil, fmt.Errorf("unsupported extraction provider: %s", cfg.Provider)
	}

	if err != nil {
		return nil, fmt.Errorf("failed to create extraction provider: %w", err)
	}

	retryOpts := service.RetryOptions{
		MaxAttempts:  cfg.MaxRetries,
		InitialDelay: cfg.RetryDelay,
		MaxDelay:     30 * time.Second,
		Multiplier:   2.0,
	}
	if retryOpts.MaxAttempts == 0 {
		retryOpts.MaxAttempts = 3
	}
	if retryOpts.InitialDelay == 0 {
		retryOpts.InitialDelay = time.Second
	}

	return &managedProvider{
		inner:     inner,
		limiter:   newRateLimiter(cfg.RateLimit),
		retryOpts: retryOpts,
	}, nil
}

// managedProvider decorates a Provider with rate limiting and retries.
// Retrying lives here, not in the consensus orchestrator: a consensus
// round sees each logical call exactly once.
type managedProvider struct {
	inner     Provider
	limiter   *rateLimiter
	retryOpts service.RetryOptions
}

func (m *managedProvider) Name() string { return m.inner.Name() }

func (m *managedProvider) Extract(ctx context.Context, image []byte, mimeType string, examples []model.PromptExample) (model.RawFields, error) {
	if err := m.limiter.wait(ctx); err != nil {
		return model.RawFields{}, err
	}

	var result model.RawFields
	err := common.WithRetry(ctx, func() error {
		var callErr error
		result, callErr = m.inner.Extract(ctx, image, mimeType, examples)
		if callErr != nil && !common.IsRetryable(callErr) {
			return &common.RetryableError{Err: callErr, Retryable: false}
		}
		return callErr
	}, m.retryOpts)
	if err != nil {
		return model.RawFields{}, err
	}

	return result, nil
}

// Close releases the rate limiter's refill goroutine.
func (m *managedProvider) Close() {
	m.limiter.Close()
}
