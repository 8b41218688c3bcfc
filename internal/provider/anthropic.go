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

const anthropicVersion = "2023-06-01"

// AnthropicConfig holds Anthropic-compatible client configuration.
type AnthropicConfig struct {
	BaseURL string
	APIKey  string
	Timeout time.Duration
}

// AnthropicAdapter talks to the Anthropic messages API.
type AnthropicAdapter struct {
	baseURL    string
	apiKey     string
	httpClient *http.Client
}

// NewAnthropicAdapter creates an Anthropic adapter.
func NewAnthropicAdapter(cfg *AnthropicConfig) (*AnthropicAdapter, error) {
	if cfg.BaseURL == "" {
		return nil, fmt.Errorf("base URL is required")
	}
	timeout := cfg.Timeout
	if timeout == 0 {
		timeout = 120 * time.Second
	}
	return &AnthropicAdapter{
		baseURL: cfg.BaseURL,
		apiKey:  cfg.APIKey,
		httpClient: &http.Client{
			Timeout: timeout,
		},
	}, nil
}

func (a *AnthropicAdapter) Family() catalog.Family { return catalog.FamilyAnthropic }

// Send posts to /v1/messages. The system turn moves to the top-level system
// field; images become base64 source blocks on the last user turn.
func (a *AnthropicAdapter) Send(ctx context.Context, req *Request) (*Raw, error) {
	maxTokens := req.MaxTokens
	if maxTokens == 0 {
		maxTokens = 4096
	}
	out := &anthropicRequest{
		Model:       req.Model,
		MaxTokens:   maxTokens,
		Temperature: req.Temperature,
	}
	lastUser := lastUserIndex(req.Messages)
	for i, m := range req.Messages {
		if m.Role == "system" {
			out.System = m.Content
			continue
		}
		blocks := []anthropicBlock{{Type: "text", Text: m.Content}}
		if i == lastUser {
			for _, img := range req.Images {
				blocks = append(blocks, anthropicBlock{
					Type: "image",
					Source: &anthropicImageSource{
						Type:      "base64",
						MediaType: img.MediaType,
						Data:      img.Data,
					},
				})
			}
		}
		out.Messages = append(out.Messages, anthropicMessage{Role: m.Role, Content: blocks})
	}

	body, err := json.Marshal(out)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal request: %w", err)
	}

	url := fmt.Sprintf("%s/v1/messages", a.baseURL)
	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}
	httpReq.Header.Set("Content-Type", "application/json")
	httpReq.Header.Set("x-api-key", a.apiKey)
	httpReq.Header.Set("anthropic-version", anthropicVersion)

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

// Normalize decodes the messages envelope.
func (a *AnthropicAdapter) Normalize(raw *Raw) (*Response, error) {
	var envelope anthropicResponse
	if err := json.Unmarshal(raw.Body, &envelope); err != nil {
		return nil, fmt.Errorf("failed to decode response: %w", err)
	}
	if len(envelope.Content) == 0 {
		return nil, fmt.Errorf("no content blocks in response")
	}
	var text string
	for _, block := range envelope.Content {
		if block.Type == "text" {
			text += block.Text
		}
	}
	return &Response{
		Content: text,
		Model:   envelope.Model,
		Usage: Usage{
			PromptTokens:     envelope.Usage.InputTokens,
			CompletionTokens: envelope.Usage.OutputTokens,
			TotalTokens:      envelope.Usage.InputTokens + envelope.Usage.OutputTokens,
		},
	}, nil
}

type anthropicRequest struct {
	Model       string             `json:"model"`
	System      string             `json:"system,omitempty"`
	Messages    []anthropicMessage `json:"messages"`
	MaxTokens   int                `json:"max_tokens"`
	Temperature float64            `json:"temperature,omitempty"`
}

type anthropicMessage struct {
	Role    string           `json:"role"`
	Content []anthropicBlock `json:"content"`
}

type anthropicBlock struct {
	Type   string                `json:"type"`
	Text   string                `json:"text,omitempty"`
	Source *anthropicImageSource `json:"source,omitempty"`
}

type anthropicImageSource struct {
	Type      string `json:"type"`
	MediaType string `json:"media_type"`
	Data      string `json:"data"`
}

type anthropicResponse struct {
	ID      string `json:"id"`
	Model   string `json:"model"`
	Content []struct {
		Type string `json:"type"`
		Text string `json:"text"`
	} `json:"content"`
	Usage struct {
		InputTokens  int `json:"input_tokens"`
		OutputTokens int `json:"output_tokens"`
	} `json:"usage"`
}
