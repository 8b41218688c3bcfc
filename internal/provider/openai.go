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

// OpenAIConfig holds OpenAI-compatible client configuration. Groq,
// OpenRouter, Cerebras and Grok all speak this dialect behind different
// base URLs.
type OpenAIConfig struct {
	BaseURL string
	APIKey  string
	Timeout time.Duration
	Headers map[string]string
}

// OpenAIAdapter talks to any chat/completions endpoint.
type OpenAIAdapter struct {
	baseURL    string
	apiKey     string
	headers    map[string]string
	httpClient *http.Client
}

// NewOpenAIAdapter creates an OpenAI-compatible adapter.
func NewOpenAIAdapter(cfg *OpenAIConfig) (*OpenAIAdapter, error) {
	if cfg.BaseURL == "" {
		return nil, fmt.Errorf("base URL is required")
	}
	timeout := cfg.Timeout
	if timeout == 0 {
		timeout = 120 * time.Second
	}
	return &OpenAIAdapter{
		baseURL: cfg.BaseURL,
		apiKey:  cfg.APIKey,
		headers: cfg.Headers,
		httpClient: &http.Client{
			Timeout: timeout,
		},
	}, nil
}

func (a *OpenAIAdapter) Family() catalog.Family { return catalog.FamilyOpenAI }

// Send posts the request to the chat completions endpoint.
func (a *OpenAIAdapter) Send(ctx context.Context, req *Request) (*Raw, error) {
	body, err := json.Marshal(buildOpenAIRequest(req))
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
	for k, v := range a.headers {
		httpReq.Header.Set(k, v)
	}

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

// Normalize decodes the completions envelope.
func (a *OpenAIAdapter) Normalize(raw *Raw) (*Response, error) {
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

func buildOpenAIRequest(req *Request) *openAIRequest {
	out := &openAIRequest{
		Model:       req.Model,
		Temperature: req.Temperature,
		MaxTokens:   req.MaxTokens,
		Stream:      false,
	}
	for i, m := range req.Messages {
		// Images ride along with the final user message as data URLs.
		if len(req.Images) > 0 && m.Role == "user" && i == lastUserIndex(req.Messages) {
			parts := []openAIContentPart{{Type: "text", Text: m.Content}}
			for _, img := range req.Images {
				parts = append(parts, openAIContentPart{
					Type: "image_url",
					ImageURL: &openAIImageURL{
						URL: fmt.Sprintf("data:%s;base64,%s", img.MediaType, img.Data),
					},
				})
			}
			out.Messages = append(out.Messages, openAIMessage{Role: m.Role, Content: parts})
			continue
		}
		out.Messages = append(out.Messages, openAIMessage{Role: m.Role, Content: m.Content})
	}
	return out
}

func lastUserIndex(messages []Message) int {
	for i := len(messages) - 1; i >= 0; i-- {
		if messages[i].Role == "user" {
			return i
		}
	}
	return -1
}

type openAIRequest struct {
	Model       string          `json:"model"`
	Messages    []openAIMessage `json:"messages"`
	Temperature float64         `json:"temperature,omitempty"`
	MaxTokens   int             `json:"max_tokens,omitempty"`
	Stream      bool            `json:"stream"`
}

// openAIMessage content is either a string or a part list for vision input.
type openAIMessage struct {
	Role    string      `json:"role"`
	Content interface{} `json:"content"`
}

type openAIContentPart struct {
	Type     string          `json:"type"`
	Text     string          `json:"text,omitempty"`
	ImageURL *openAIImageURL `json:"image_url,omitempty"`
}

type openAIImageURL struct {
	URL string `json:"url"`
}

type openAIResponse struct {
	ID      string         `json:"id"`
	Model   string         `json:"model"`
	Choices []openAIChoice `json:"choices"`
	Usage   openAIUsage    `json:"usage"`
}

type openAIChoice struct {
	Index        int `json:"index"`
	Message      struct {
		Role    string `json:"role"`
		Content string `json:"content"`
	} `json:"message"`
	FinishReason string `json:"finish_reason"`
}

type openAIUsage struct {
	PromptTokens     int `json:"prompt_tokens"`
	CompletionTokens int `json:"completion_tokens"`
	TotalTokens      int `json:"total_tokens"`
}
