// Package gating decides which catalog descriptors a request may use.
package gating

import (
	"github.com/chofesh/model-gateway/internal/catalog"
)

// Facts are the inputs the gate evaluates. AgeVerified is the binding fact
// for restricted-tier access; it is supplied by the caller, never inferred.
type Facts struct {
	ContentModalities []catalog.Modality
	AgeVerified       bool
	ExplicitModelID   string
}

// FilterEligible drops candidates the request must not use.
//
// Restricted-tier candidates are removed unless the requester is age
// verified. Candidates missing a required modality are removed, except the
// one the requester named explicitly: that candidate stays in so the
// invocation path can surface a capability error instead of silently
// dropping an attachment.
func FilterEligible(candidates []catalog.Descriptor, facts Facts) []catalog.Descriptor {
	out := make([]catalog.Descriptor, 0, len(candidates))
	for _, d := range candidates {
		if d.Tier == catalog.TierRestricted && !facts.AgeVerified {
			continue
		}
		if !d.SupportsAll(facts.ContentModalities) && d.ID != facts.ExplicitModelID {
			continue
		}
		out = append(out, d)
	}
	return out
}
