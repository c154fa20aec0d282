// Package scoring implements the Cross Validator / Composite Scorer
// (SPEC_FULL §4.5): weighted-axis scoring with exponential time decay and
// an aggregation-window channel-count boost, driven by a per-token
// candidate state machine. The axis-weighting and cluster time-window
// pruning shape is grounded in the teacher's SignalFilter.Validate
// (signal_filter.go); the candidate persistence/cooldown tracking and
// bucketed aggregation-window boost are grounded in
// app_signal_distributor.go and signal_aggregator.go respectively.
package scoring

import (
	"time"

	"github.com/tokensentinel/sentinel/internal/domain"
)

// CandidateState is the per-token lifecycle stage from SPEC_FULL §4.5's
// state diagram.
type CandidateState string

const (
	StateObserved    CandidateState = "observed"
	StateAggregating CandidateState = "aggregating"
	StateScored      CandidateState = "scored"
	StateDiscarded   CandidateState = "discarded"
)

const maxWindowExtend = 5 * time.Minute

// candidate accumulates evidence for one (chain, token) within the
// aggregation window.
type candidate struct {
	token      domain.TokenFingerprint
	firstSeen  time.Time
	fireAt     time.Time
	windowEnd  time.Time // hard ceiling: firstSeen + AGGREGATION_WINDOW + MAX_EXTEND
	evidence   []domain.RawSignal
	sourceSeen map[string]time.Time
	state      CandidateState
	heapIndex  int
}

func newCandidate(sig domain.RawSignal, aggregationWindow time.Duration) *candidate {
	now := sig.Timestamp
	if now.IsZero() {
		now = time.Now()
	}
	c := &candidate{
		token:      sig.Token,
		firstSeen:  now,
		fireAt:     now.Add(aggregationWindow),
		windowEnd:  now.Add(aggregationWindow).Add(maxWindowExtend),
		sourceSeen: make(map[string]time.Time),
		state:      StateObserved,
	}
	c.ingest(sig, aggregationWindow)
	return c
}

// ingest adds new evidence. A new arrival re-extends fireAt up to
// windowEnd rather than restarting the timer outright, matching
// SPEC_FULL §4.5's "window extends only up to MAX_EXTEND" rule.
func (c *candidate) ingest(sig domain.RawSignal, aggregationWindow time.Duration) {
	now := sig.Timestamp
	if now.IsZero() {
		now = time.Now()
	}
	c.evidence = append(c.evidence, sig)
	c.sourceSeen[sig.SourceID] = now
	c.state = StateAggregating

	extended := now.Add(aggregationWindow)
	if extended.After(c.fireAt) && extended.Before(c.windowEnd) {
		c.fireAt = extended
	} else if extended.After(c.windowEnd) {
		c.fireAt = c.windowEnd
	}

	if isFinalEvidence(sig) {
		c.fireAt = now
	}
}

// isFinalEvidence matches SPEC_FULL §4.5's "new evidence arrives (e.g.,
// smart-money online >= configured threshold)" early-exit condition.
func isFinalEvidence(sig domain.RawSignal) bool {
	if v, ok := sig.SmartMoneyOnline.Get(); ok && v >= 10 {
		return true
	}
	return false
}

// distinctSourceCount returns how many distinct sources mentioned this
// token within the given window before now.
func (c *candidate) distinctSourceCount(now time.Time, heatWindow time.Duration) int {
	count := 0
	cutoff := now.Add(-heatWindow)
	for _, t := range c.sourceSeen {
		if t.After(cutoff) {
			count++
		}
	}
	return count
}
