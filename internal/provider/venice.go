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

// VeniceConfig holds Venice image generation client configuration.
type VeniceConfig struct {
	BaseURL string
	APIKey  string
	Timeout time.Duration
}

// VeniceAdapter generates images through the Venice API. Restricted-tier
// models run with moderation set to low; everything else keeps the default.
type VeniceAdapter struct {
	baseURL    string
	apiKey     string
	httpClient *http.Client
}

// NewVeniceAdapter creates a Venice image adapter.
func NewVeniceAdapter(cfg *VeniceConfig) (*VeniceAdapter, error) {
	if cfg.BaseURL == "" {
		return nil, fmt.Errorf("base URL is required")
	}
	timeout := cfg.Timeout
	if timeout == 0 {
		timeout = 180 * time.Second
	}
	return &VeniceAdapter{
		baseURL: cfg.BaseURL,
		apiKey:  cfg.APIKey,
		httpClient: &http.Client{
			Timeout: timeout,
		},
	}, nil
}

func (a *VeniceAdapter) Family() catalog.Family { return catalog.FamilyVenice }

// Send posts an image generation request. The prompt is the latest user
// message; chat history is not part of the image contract.
func (a *VeniceAdapter) Send(ctx context.Context, req *Request) (*Raw, error) {
	prompt := req.LastUserContent()
	if prompt == "" {
		return nil, fmt.Errorf("image generation requires a user prompt")
	}

	out := &veniceRequest{
		Model:  req.Model,
		Prompt: prompt,
		Width:  1024,
		Height: 1024,
		Format: "png",
	}
	if req.LowModeration {
		out.SafeMode = false
		out.Moderation = "low"
	}

	body, err := json.Marshal(out)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal request: %w", err)
	}

	url := fmt.Sprintf("%s/images/generations", a.baseURL)
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

// Normalize extracts the first generated image.
func (a *VeniceAdapter) Normalize(raw *Raw) (*Response, error) {
	var envelope veniceResponse
	if err := json.Unmarshal(raw.Body, &envelope); err != nil {
		return nil, fmt.Errorf("failed to decode response: %w", err)
	}
	if len(envelope.Images) == 0 {
		return nil, fmt.Errorf("no images in response")
	}
	return &Response{
		ImageB64: envelope.Images[0],
		Model:    envelope.Model,
	}, nil
}

type veniceRequest struct {
	Model      string `json:"model"`
	Prompt     string `json:"prompt"`
	Width      int    `json:"width"`
	Height     int    `json:"height"`
	Format     string `json:"format,omitempty"`
	SafeMode   bool   `json:"safe_mode"`
	Moderation string `json:"moderation,omitempty"`
}

type veniceResponse struct {
	ID     string   `json:"id"`
	Model  string   `json:"model"`
	Images []string `json:"images"`
}
