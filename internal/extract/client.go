// Package extract provides vision-model extraction backends for payment
// receipt images. Each provider turns one image into a RawFields record;
// consensus over multiple calls happens upstream.
package extract

import (
	"context"
	"time"

	"github.com/consigna-dev/consigna/internal/model"
)

// Provider is the uniform extraction capability over a vision-capable model
// backend. Implementations perform the network call and nothing else: no
// cache writes, no post-processing.
type Provider interface {
	// Name identifies the backing provider ("openai", "anthropic").
	Name() string
	// Extract analyzes one receipt image. The examples are prior
	// human-corrected extractions forwarded verbatim to bias the model;
	// providers must not interpret them. Required numeric fields default
	// to zero on partial output; missing fields stay empty, never
	// fabricated.
	Extract(ctx context.Context, image []byte, mimeType string, examples []model.PromptExample) (model.RawFields, error)
}

// Config holds configuration for an extraction provider.
type Config struct {
	Provider    string
	APIKey      string
	Model       string
	MaxRetries  int
	RetryDelay  time.Duration
	RateLimit   int
	Temperature float64
	MaxTokens   int
}
