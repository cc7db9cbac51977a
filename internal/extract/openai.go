package extract

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/consigna-dev/consigna/internal/common"
	"github.com/consigna-dev/consigna/internal/model"
)

// openAIProvider implements the Provider interface for the OpenAI API.
type openAIProvider struct {
	httpClient  *http.Client
	baseURL     string
	apiKey      string
	model       string
	temperature float64
	maxTokens   int
}

// newOpenAIProvider creates a new OpenAI API provider.
func newOpenAIProvider(cfg Config) (Provider, error) {
	if cfg.APIKey == "" {
		return nil, fmt.Errorf("%w: OpenAI API key is required", common.ErrMissingConfig)
	}

	mdl := cfg.Model
	if mdl == "" {
		mdl = "gpt-4o"
	}

	temperature := cfg.Temperature
	if temperature == 0 {
		temperature = 0.1
	}

	maxTokens := cfg.MaxTokens
	if maxTokens == 0 {
		maxTokens = 2000
	}

	return &openAIProvider{
		apiKey:      cfg.APIKey,
		model:       mdl,
		temperature: temperature,
		maxTokens:   maxTokens,
		baseURL:     "https://api.openai.com/v1/chat/completions",
		httpClient: &http.Client{
			Timeout: 60 * time.Second,
			Transport: &http.Transport{
				MaxIdleConns:        100,
				MaxIdleConnsPerHost: 10,
				IdleConnTimeout:     90 * time.Second,
			},
		},
	}, nil
}

func (p *openAIProvider) Name() string { return "openai" }

// Extract sends one vision extraction request to OpenAI.
func (p *openAIProvider) Extract(ctx context.Context, image []byte, mimeType string, examples []model.PromptExample) (model.RawFields, error) {
	if err := validateImage(image, mimeType); err != nil {
		return model.RawFields{}, err
	}

	dataURL := fmt.Sprintf("data:%s;base64,%s", mimeType, base64.StdEncoding.EncodeToString(image))

	requestBody := map[string]any{
		"model": p.model,
		"messages": []map[string]any{
			{
				"role":    "system",
				"content": systemPrompt,
			},
			{
				"role": "user",
				"content": []map[string]any{
					{
						"type": "text",
						"text": buildUserPrompt(examples),
					},
					{
						"type":      "image_url",
						"image_url": map[string]any{"url": dataURL},
					},
				},
			},
		},
		"temperature": p.temperature,
		"max_tokens":  p.maxTokens,
	}

	jsonBody, err := json.Marshal(requestBody)
	if err != nil {
		return model.RawFields{}, fmt.Errorf("failed to marshal request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, p.baseURL, strings.NewReader(string(jsonBody)))
	if err != nil {
		return model.RawFields{}, fmt.Errorf("failed to create request: %w", err)
	}

	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", "Bearer "+p.apiKey)

	resp, err := p.httpClient.Do(req)
	if err != nil {
		return model.RawFields{}, fmt.Errorf("%w: %v", common.ErrModelUnavailable, err)
	}
	defer func() { _ = resp.Body.Close() }()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return model.RawFields{}, fmt.Errorf("failed to read response: %w", err)
	}

	if err := classifyStatus(resp.StatusCode, body, "OpenAI"); err != nil {
		return model.RawFields{}, err
	}

	var response openAIResponse
	if err := json.Unmarshal(body, &response); err != nil {
		return model.RawFields{}, fmt.Errorf("%w: %v", common.ErrModelProtocol, err)
	}

	if len(response.Choices) == 0 {
		return model.RawFields{}, fmt.Errorf("%w: no completion choices returned", common.ErrModelProtocol)
	}

	return decodeRawFields(response.Choices[0].Message.Content)
}

// openAIResponse represents the OpenAI API response structure.
type openAIResponse struct {
	ID      string `json:"id"`
	Model   string `json:"model"`
	Choices []struct {
		Message struct {
			Role    string `json:"role"`
			Content string `json:"content"`
		} `json:"message"`
		FinishReason string `json:"finish_reason"`
		Index        int    `json:"index"`
	} `json:"choices"`
	Usage struct {
		PromptTokens     int `json:"prompt_tokens"`
		CompletionTokens int `json:"completion_tokens"`
		TotalTokens      int `json:"total_tokens"`
	} `json:"usage"`
}

// supportedMimeTypes lists the image formats the vision backends accept.
var supportedMimeTypes = map[string]bool{
	"image/jpeg": true,
	"image/png":  true,
	"image/webp": true,
	"image/gif":  true,
}

func validateImage(image []byte, mimeType string) error {
	if len(image) == 0 {
		return fmt.Errorf("%w: empty image payload", common.ErrInvalidImage)
	}
	if !supportedMimeTypes[mimeType] {
		return fmt.Errorf("%w: unsupported mime type %q", common.ErrInvalidImage, mimeType)
	}
	return nil
}

// classifyStatus maps HTTP statuses onto the extraction error taxonomy.
func classifyStatus(status int, body []byte, provider string) error {
	switch {
	case status == http.StatusOK:
		return nil
	case status == http.StatusTooManyRequests:
		return fmt.Errorf("%w: %s (status %d)", common.ErrRateLimit, provider, status)
	case status >= http.StatusInternalServerError:
		return fmt.Errorf("%w: %s API error (status %d): %s", common.ErrModelUnavailable, provider, status, string(body))
	case status == http.StatusBadRequest:
		return fmt.Errorf("%w: %s rejected the request (status %d): %s", common.ErrInvalidImage, provider, status, string(body))
	default:
		return fmt.Errorf("%s API error (status %d): %s", provider, status, string(body))
	}
}
