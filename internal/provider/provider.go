// Package provider adapts normalized requests to concrete AI backends.
// One adapter per provider family; each exposes Send plus Normalize so the
// invoker can treat every vendor the same way.
package provider

import (
	"context"

	"github.com/chofesh/model-gateway/internal/catalog"
)

// Message is one chat turn in the normalized request.
type Message struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

// ImageAttachment carries image bytes as base64 plus the media type.
type ImageAttachment struct {
	MediaType string `json:"media_type"`
	Data      string `json:"data"`
}

// Request is the provider-independent call shape.
type Request struct {
	Model       string
	Messages    []Message
	Images      []ImageAttachment
	Temperature float64
	MaxTokens   int

	// LowModeration asks image backends to relax content filtering. Set by
	// the invoker for restricted-tier descriptors only.
	LowModeration bool
}

// LastUserContent returns the text of the most recent user message.
func (r *Request) LastUserContent() string {
	for i := len(r.Messages) - 1; i >= 0; i-- {
		if r.Messages[i].Role == "user" {
			return r.Messages[i].Content
		}
	}
	return ""
}

// Usage is normalized token accounting.
type Usage struct {
	PromptTokens     int `json:"prompt_tokens"`
	CompletionTokens int `json:"completion_tokens"`
	TotalTokens      int `json:"total_tokens"`
}

// Response is the normalized provider result.
type Response struct {
	Content  string
	ImageB64 string
	Model    string
	Usage    Usage
}

// Raw is an undecoded provider reply.
type Raw struct {
	Status int
	Body   []byte
}

// Adapter speaks one provider dialect.
type Adapter interface {
	Family() catalog.Family
	Send(ctx context.Context, req *Request) (*Raw, error)
	Normalize(raw *Raw) (*Response, error)
}
