package gating

import "strings"

// Confidence grades how sure the keyword detector is.
type Confidence string

const (
	ConfidenceHigh   Confidence = "high"
	ConfidenceMedium Confidence = "medium"
	ConfidenceLow    Confidence = "low"
)

// TierHint is the output of the restricted-content detector. It is advisory
// only: a hint may steer DesiredPolicyTier toward restricted so the chain
// prefers uncensored-capable models, but it never substitutes for the
// AgeVerified fact checked in FilterEligible.
type TierHint struct {
	Restricted bool
	Confidence Confidence
}

var explicitKeywords = []string{
	"nsfw", "nude", "naked", "porn", "xxx", "erotic", "explicit",
	"adult content", "uncensored", "18+", "mature content",
}

var imageKeywords = []string{
	"generate nude", "create naked", "draw nude", "image of nude",
	"picture of naked", "photo of nude",
}

var suggestiveKeywords = []string{
	"sexy", "intimate", "sensual", "provocative", "risque",
}

// DetectRestrictedHint scans a prompt for signs that the requester wants
// restricted content. Keyword matching is best effort; false negatives are
// acceptable because the hint can only narrow routing, never unlock a tier.
func DetectRestrictedHint(prompt string) TierHint {
	lower := strings.ToLower(prompt)

	for _, kw := range imageKeywords {
		if strings.Contains(lower, kw) {
			return TierHint{Restricted: true, Confidence: ConfidenceHigh}
		}
	}
	for _, kw := range explicitKeywords {
		if strings.Contains(lower, kw) {
			return TierHint{Restricted: true, Confidence: ConfidenceHigh}
		}
	}

	hits := 0
	for _, kw := range suggestiveKeywords {
		if strings.Contains(lower, kw) {
			hits++
		}
	}
	if hits >= 2 {
		return TierHint{Restricted: true, Confidence: ConfidenceMedium}
	}
	if hits == 1 {
		return TierHint{Restricted: false, Confidence: ConfidenceLow}
	}
	return TierHint{}
}
