// Package routing drives a normalized request through gating, chain
// building, credit reservation and provider invocation until one backend
// answers or the chain is exhausted.
package routing

import (
	"github.com/chofesh/model-gateway/internal/catalog"
	"github.com/chofesh/model-gateway/internal/provider"
)

// Request is one normalized routing request. The transport fills it in;
// the router consumes it once.
type Request struct {
	UserID   string
	Messages []provider.Message
	Images   []provider.ImageAttachment

	// ContentModalities is derived from the payload (text always, vision
	// when images ride along, image-generation for image requests).
	ContentModalities []catalog.Modality

	// DesiredPolicyTier is the requester's uncensored toggle intent,
	// possibly raised by the hint classifier. It steers ordering only;
	// AgeVerified is what actually unlocks restricted backends.
	DesiredPolicyTier catalog.PolicyTier

	// ExplicitModelID pins the chain to one model. No silent fallback away
	// from an explicit choice.
	ExplicitModelID string

	AgeVerified bool

	// PromptFingerprint is opaque and used for audit logging only.
	PromptFingerprint string

	Temperature float64
	MaxTokens   int
}

// Response is the terminal success outcome.
type Response struct {
	Content        string
	ImageB64       string
	ServedBy       string
	CreditsCharged int64
	Usage          provider.Usage
	Attempts       int
}
