// Package gates implements the tri-state Hard Gate and Exit Gate filters
// (SPEC_FULL §4.4). The composition shape — named checks evaluated in
// order, verdicts and reasons accumulated — is grounded in
// other_examples/8014f6f2_RajChodisetti-Trading-app's RiskGate interface
// (Name/Evaluate/Priority) and priority-ordered gate list, adapted here
// from a boolean approve/deny outcome to PASS/GREYLIST/REJECT, since
// SPEC_FULL explicitly requires unknown data to downgrade rather than
// silently pass (invariant I7).
package gates

import (
	"time"

	"github.com/tokensentinel/sentinel/internal/config"
	"github.com/tokensentinel/sentinel/internal/domain"
)

// check is one named condition inside a gate; pass(), reject() and grey()
// build one, and fold() combines them into a GateVerdict.
type check struct {
	verdict domain.Verdict
	reason  string
}

func pass() check                { return check{verdict: domain.VerdictPass} }
func reject(reason string) check { return check{verdict: domain.VerdictReject, reason: reason} }
func grey(reason string) check   { return check{verdict: domain.VerdictGreylist, reason: reason} }

// fold combines an ordered list of checks into one GateVerdict using the
// same "strictest wins, reasons accumulate" rule as domain.GateVerdict.Combine.
func fold(gateName string, checks []check) domain.GateVerdict {
	v := domain.GateVerdict{Gate: gateName, Verdict: domain.VerdictPass, EvaluedAt: time.Now()}
	for _, c := range checks {
		frag := domain.GateVerdict{Verdict: c.verdict}
		if c.reason != "" {
			frag.Reasons = []string{c.reason}
		}
		v = v.Combine(frag)
	}
	return v
}

// thresholdsFor selects the chain-specific threshold table.
func thresholdsFor(cfg *config.Config, chain domain.Chain) config.GateThresholds {
	if chain == domain.ChainBSC {
		return cfg.GatesBSC
	}
	return cfg.GatesSOL
}
