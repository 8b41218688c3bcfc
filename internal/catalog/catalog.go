// Package catalog holds the static table of model backends the gateway can
// route to. Descriptors are loaded once at startup and never mutated.
package catalog

import (
	"fmt"
	"sort"
)

// Modality is a kind of content a model can accept or produce.
type Modality string

const (
	ModalityText     Modality = "text"
	ModalityVision   Modality = "vision"
	ModalityAudio    Modality = "audio"
	ModalityImageGen Modality = "image-generation"
)

// PolicyTier is the content-policy category of a model.
type PolicyTier string

const (
	TierStandard   PolicyTier = "standard"
	TierRestricted PolicyTier = "restricted"
)

// Family identifies the provider dialect an adapter speaks.
type Family string

const (
	FamilyOpenAI    Family = "openai-compatible"
	FamilyAnthropic Family = "anthropic"
	FamilyKimi      Family = "kimi"
	FamilyVenice    Family = "venice-image"
)

// Descriptor describes one concrete model backend.
type Descriptor struct {
	ID         string
	Family     Family
	Modalities []Modality
	Tier       PolicyTier
	CreditCost int64
	Priority   int
	MaxRetries int
}

// Supports reports whether the descriptor handles the given modality.
func (d *Descriptor) Supports(m Modality) bool {
	for _, have := range d.Modalities {
		if have == m {
			return true
		}
	}
	return false
}

// SupportsAll reports whether the descriptor handles every modality in ms.
func (d *Descriptor) SupportsAll(ms []Modality) bool {
	for _, m := range ms {
		if !d.Supports(m) {
			return false
		}
	}
	return true
}

// Catalog is the read-only registry of known descriptors.
type Catalog struct {
	models []Descriptor
	byID   map[string]*Descriptor
}

// New validates the descriptor table and builds a catalog.
func New(models []Descriptor) (*Catalog, error) {
	c := &Catalog{
		models: make([]Descriptor, len(models)),
		byID:   make(map[string]*Descriptor, len(models)),
	}
	copy(c.models, models)
	for i := range c.models {
		d := &c.models[i]
		if d.ID == "" {
			return nil, fmt.Errorf("model at index %d has empty id", i)
		}
		if _, dup := c.byID[d.ID]; dup {
			return nil, fmt.Errorf("duplicate model id %s", d.ID)
		}
		if d.CreditCost <= 0 {
			return nil, fmt.Errorf("model %s has non-positive credit cost %d", d.ID, d.CreditCost)
		}
		if d.MaxRetries < 0 {
			return nil, fmt.Errorf("model %s has negative max retries", d.ID)
		}
		switch d.Family {
		case FamilyOpenAI, FamilyAnthropic, FamilyKimi, FamilyVenice:
		default:
			return nil, fmt.Errorf("model %s has unknown family %q", d.ID, d.Family)
		}
		switch d.Tier {
		case TierStandard, TierRestricted:
		default:
			return nil, fmt.Errorf("model %s has unknown tier %q", d.ID, d.Tier)
		}
		if len(d.Modalities) == 0 {
			d.Modalities = []Modality{ModalityText}
		}
		c.byID[d.ID] = d
	}
	return c, nil
}

// Get returns the descriptor with the given id, if known.
func (c *Catalog) Get(id string) (*Descriptor, bool) {
	d, ok := c.byID[id]
	return d, ok
}

// All returns a copy of every descriptor in the catalog.
func (c *Catalog) All() []Descriptor {
	out := make([]Descriptor, len(c.models))
	copy(out, c.models)
	return out
}

// ListCandidates returns descriptors supporting every requested modality,
// ordered by policy-tier match, then priority, then credit cost, then id.
// The tail tie-breaks keep chain order deterministic across runs.
func (c *Catalog) ListCandidates(modalities []Modality, tier PolicyTier) []Descriptor {
	out := make([]Descriptor, 0, len(c.models))
	for _, d := range c.models {
		if d.SupportsAll(modalities) {
			out = append(out, d)
		}
	}
	sort.SliceStable(out, func(i, j int) bool {
		mi, mj := out[i].Tier == tier, out[j].Tier == tier
		if mi != mj {
			return mi
		}
		if out[i].Priority != out[j].Priority {
			return out[i].Priority < out[j].Priority
		}
		if out[i].CreditCost != out[j].CreditCost {
			return out[i].CreditCost < out[j].CreditCost
		}
		return out[i].ID < out[j].ID
	})
	return out
}
