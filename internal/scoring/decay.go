package scoring

import (
	"math"
	"time"
)

const decayTau = 5 * time.Minute

// decayFactor implements SPEC_FULL §4.5's exponential time decay:
// exp(-age/tau), floored at 0.1, and zero once age exceeds signalExpiry.
func decayFactor(age, signalExpiry time.Duration) float64 {
	if age >= signalExpiry {
		return 0
	}
	f := math.Exp(-age.Seconds() / decayTau.Seconds())
	if f < 0.1 {
		return 0.1
	}
	return f
}

// clamp01 bounds a raw axis score to [0, 1] — unknown/absent evidence
// contributes 0, never negative (SPEC_FULL §4.5 tie-break rule).
func clamp01(v float64) float64 {
	if v < 0 {
		return 0
	}
	if v > 1 {
		return 1
	}
	return v
}
