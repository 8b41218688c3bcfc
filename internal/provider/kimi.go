package provider

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/chofesh/model-gateway/internal/catalog"
)

// KimiConfig holds Moonshot (Kimi) client configuration.
type KimiConfig struct {
	BaseURL string
	APIKey  string
	Timeout time.Duration
}

// KimiAdapter talks to the Moonshot API. The dialect is OpenAI-flavoured
// with two quirks: temperature is capped at 1.0 and images must arrive as
// data URLs inside content parts.
type KimiAdapter struct {
	baseURL    string
	apiKey     string
	httpClient *http.Client
}

// NewKimiAdapter creates a Kimi adapter.
func NewKimiAdapter(cfg *KimiConfig) (*KimiAdapter, error) {
	if cfg.BaseURL == "" {
		return nil, fmt.Errorf("base URL is required")
	}
	timeout := cfg.Timeout
	if timeout == 0 {
		timeout = 120 * time.Second
	}
	return &KimiAdapter{
		baseURL: cfg.BaseURL,
		apiKey:  cfg.APIKey,
		httpClient: &http.Client{
			Timeout: timeout,
		},
	}, nil
}

func (a *KimiAdapter) Family() catalog.Family { return catalog.FamilyKimi }

// Send posts the request to the Moonshot chat completions endpoint.
func (a *KimiAdapter) Send(ctx context.Context, req *Request) (*Raw, error) {
	shaped := buildOpenAIRequest(req)
	if shaped.Temperature > 1.0 {
		shaped.Temperature = 1.0
	}

	body, err := json.Marshal(shaped)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal request: %w", err)
	}

	url := fmt.Sprintf("%s/chat/completions", a.baseURL)
	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}
	httpReq.Header.Set("Content-Type", "application/json")
	httpReq.Header.Set("Authorization", "Bearer "+a.apiKey)

	resp, err := a.httpClient.Do(httpReq)
	if err != nil {
		return nil, fmt.Errorf("request failed: %w", err)
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("failed to read response: %w", err)
	}
	return &Raw{Status: resp.StatusCode, Body: data}, nil
}

// Normalize decodes the OpenAI-shaped envelope Moonshot returns.
func (a *KimiAdapter) Normalize(raw *Raw) (*Response, error) {
	var envelope openAIResponse
	if err := json.Unmarshal(raw.Body, &envelope); err != nil {
		return nil, fmt.Errorf("failed to decode response: %w", err)
	}
	if len(envelope.Choices) == 0 {
		return nil, fmt.Errorf("no choices in response")
	}
	return &Response{
		Content: envelope.Choices[0].Message.Content,
		Model:   envelope.Model,
		Usage: Usage{
			PromptTokens:     envelope.Usage.PromptTokens,
			CompletionTokens: envelope.Usage.CompletionTokens,
			TotalTokens:      envelope.Usage.TotalTokens,
		},
	}, nil
}
