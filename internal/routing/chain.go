package routing

import (
	"fmt"

	"github.com/chofesh/model-gateway/internal/catalog"
	"github.com/chofesh/model-gateway/internal/gating"
	"github.com/chofesh/model-gateway/internal/health"
)

// ChainBuilder produces the ordered candidate list for one request.
type ChainBuilder struct {
	cat     *catalog.Catalog
	tracker *health.Tracker
}

func NewChainBuilder(cat *catalog.Catalog, tracker *health.Tracker) *ChainBuilder {
	return &ChainBuilder{cat: cat, tracker: tracker}
}

// Build returns the fallback chain.
//
// An explicit model choice yields a chain of exactly that model: the user
// asked for it, so no other backend may silently answer instead. An
// explicit choice that fails the age gate is an error here, never a
// substitution. Auto-routing yields every eligible descriptor in priority
// order, minus backends disabled by credential failures.
func (b *ChainBuilder) Build(req *Request) ([]catalog.Descriptor, error) {
	facts := gating.Facts{
		ContentModalities: req.ContentModalities,
		AgeVerified:       req.AgeVerified,
		ExplicitModelID:   req.ExplicitModelID,
	}

	if req.ExplicitModelID != "" {
		desc, ok := b.cat.Get(req.ExplicitModelID)
		if !ok {
			return nil, &Error{Kind: KindNoEligibleModel,
				Err: fmt.Errorf("unknown model %s", req.ExplicitModelID)}
		}
		eligible := gating.FilterEligible([]catalog.Descriptor{*desc}, facts)
		if len(eligible) == 0 {
			return nil, &Error{Kind: KindGatingDenied,
				Err: fmt.Errorf("model %s requires age verification", desc.ID)}
		}
		// A modality mismatch survives gating on purpose; the invoker
		// rejects it with a capability error instead of dropping media.
		return eligible, nil
	}

	candidates := b.cat.ListCandidates(req.ContentModalities, req.DesiredPolicyTier)
	eligible := gating.FilterEligible(candidates, facts)

	chain := make([]catalog.Descriptor, 0, len(eligible))
	for _, d := range eligible {
		if !b.tracker.Available(d.ID) {
			continue
		}
		chain = append(chain, d)
	}
	return chain, nil
}
