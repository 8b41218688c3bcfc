package gating

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/chofesh/model-gateway/internal/catalog"
)

var candidates = []catalog.Descriptor{
	{ID: "text-model", Family: catalog.FamilyOpenAI, Modalities: []catalog.Modality{catalog.ModalityText}, Tier: catalog.TierStandard, CreditCost: 1},
	{ID: "vision-model", Family: catalog.FamilyOpenAI, Modalities: []catalog.Modality{catalog.ModalityText, catalog.ModalityVision}, Tier: catalog.TierStandard, CreditCost: 2},
	{ID: "restricted-model", Family: catalog.FamilyOpenAI, Modalities: []catalog.Modality{catalog.ModalityText}, Tier: catalog.TierRestricted, CreditCost: 3},
}

func TestRestrictedDroppedWithoutAgeVerification(t *testing.T) {
	got := FilterEligible(candidates, Facts{
		ContentModalities: []catalog.Modality{catalog.ModalityText},
		AgeVerified:       false,
	})
	for _, d := range got {
		assert.NotEqual(t, catalog.TierRestricted, d.Tier)
	}
	assert.Len(t, got, 2)
}

func TestRestrictedKeptWithAgeVerification(t *testing.T) {
	got := FilterEligible(candidates, Facts{
		ContentModalities: []catalog.Modality{catalog.ModalityText},
		AgeVerified:       true,
	})
	assert.Len(t, got, 3)
}

func TestModalityFilterDropsIncapableModels(t *testing.T) {
	got := FilterEligible(candidates, Facts{
		ContentModalities: []catalog.Modality{catalog.ModalityText, catalog.ModalityVision},
		AgeVerified:       true,
	})
	assert.Len(t, got, 1)
	assert.Equal(t, "vision-model", got[0].ID)
}

func TestExplicitChoiceSurvivesModalityFilter(t *testing.T) {
	got := FilterEligible(candidates, Facts{
		ContentModalities: []catalog.Modality{catalog.ModalityText, catalog.ModalityVision},
		AgeVerified:       true,
		ExplicitModelID:   "text-model",
	})
	ids := make([]string, 0, len(got))
	for _, d := range got {
		ids = append(ids, d.ID)
	}
	assert.Contains(t, ids, "text-model")
}

func TestExplicitChoiceDoesNotBypassAgeGate(t *testing.T) {
	got := FilterEligible(candidates, Facts{
		ContentModalities: []catalog.Modality{catalog.ModalityText},
		AgeVerified:       false,
		ExplicitModelID:   "restricted-model",
	})
	for _, d := range got {
		assert.NotEqual(t, "restricted-model", d.ID)
	}
}

func TestDetectRestrictedHint(t *testing.T) {
	hint := DetectRestrictedHint("write me an NSFW story")
	assert.True(t, hint.Restricted)
	assert.Equal(t, ConfidenceHigh, hint.Confidence)

	hint = DetectRestrictedHint("generate nude portrait")
	assert.True(t, hint.Restricted)

	hint = DetectRestrictedHint("what is the capital of France")
	assert.False(t, hint.Restricted)

	// A single suggestive word is not enough.
	hint = DetectRestrictedHint("that is a sexy car")
	assert.False(t, hint.Restricted)
}
