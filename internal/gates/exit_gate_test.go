package gates

import (
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/tokensentinel/sentinel/internal/config"
	"github.com/tokensentinel/sentinel/internal/domain"
)

func exitSnapshot(chain domain.Chain) domain.ChainSnapshot {
	return domain.ChainSnapshot{
		Token:           domain.TokenFingerprint{Chain: chain, Address: "tok"},
		LiquidityNat:    domain.Known(10.0),
		SlippageAt20Pct: domain.Known(1.0),
		Top10Pct:        domain.Known(10.0),
		WashFlag:        domain.Known(domain.WashLow),
	}
}

func TestExitGate_MissingPlannedSizeForcesGreylist(t *testing.T) {
	cfg := config.Load()
	g := NewExitGate(cfg)
	v := g.Evaluate(exitSnapshot(domain.ChainSOL), domain.Unknown[float64]())
	require.Equal(t, domain.VerdictGreylist, v.Verdict)
}

func TestExitGate_WashHighAloneIsGreylist(t *testing.T) {
	cfg := config.Load()
	g := NewExitGate(cfg)
	snap := exitSnapshot(domain.ChainSOL)
	snap.WashFlag = domain.Known(domain.WashHigh)
	v := g.Evaluate(snap, domain.Known(1.0))
	require.Equal(t, domain.VerdictGreylist, v.Verdict)
}

func TestExitGate_WashHighPlusOtherYellowEscalatesToReject(t *testing.T) {
	cfg := config.Load()
	g := NewExitGate(cfg)
	snap := exitSnapshot(domain.ChainSOL)
	snap.WashFlag = domain.Known(domain.WashHigh)
	snap.LiquidityNat = domain.Unknown[float64]() // second yellow flag
	v := g.Evaluate(snap, domain.Known(1.0))
	require.Equal(t, domain.VerdictReject, v.Verdict)
}

func TestExitGate_SlippageThresholdsDifferByChain(t *testing.T) {
	cfg := config.Load()
	g := NewExitGate(cfg)

	sol := exitSnapshot(domain.ChainSOL)
	sol.SlippageAt20Pct = domain.Known(6.0) // > 5% SOL reject threshold
	vSOL := g.Evaluate(sol, domain.Known(1.0))
	require.Equal(t, domain.VerdictReject, vSOL.Verdict)

	bsc := exitSnapshot(domain.ChainBSC)
	bsc.SlippageAt20Pct = domain.Known(6.0) // < 8% BSC reject threshold, > 3% grey
	vBSC := g.Evaluate(bsc, domain.Known(1.0))
	require.Equal(t, domain.VerdictGreylist, vBSC.Verdict)
}
