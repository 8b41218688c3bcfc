package routing

import (
	"errors"
	"fmt"
)

// Kind tags the terminal failure outcomes of the routing contract.
type Kind string

const (
	KindNoEligibleModel     Kind = "no_eligible_model"
	KindInsufficientCredits Kind = "insufficient_credits"
	KindGatingDenied        Kind = "gating_denied"
	KindCapabilityMismatch  Kind = "capability_mismatch"
	KindProviderExhausted   Kind = "provider_exhausted"
)

// Error is the tagged failure returned to callers. Per-candidate errors
// never escape the router loop; only these do.
type Error struct {
	Kind     Kind
	Attempts int
	Err      error
}

func (e *Error) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %v", e.Kind, e.Err)
	}
	return string(e.Kind)
}

func (e *Error) Unwrap() error { return e.Err }

// KindOf extracts the outcome tag, or "" for untagged errors.
func KindOf(err error) Kind {
	var re *Error
	if errors.As(err, &re) {
		return re.Kind
	}
	return ""
}
