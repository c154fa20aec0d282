package gates

import (
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/tokensentinel/sentinel/internal/config"
	"github.com/tokensentinel/sentinel/internal/domain"
)

func baseSnapshot(chain domain.Chain) domain.ChainSnapshot {
	return domain.ChainSnapshot{
		Token:         domain.TokenFingerprint{Chain: chain, Address: "tok"},
		LiquidityUSD:  domain.Known(20000.0),
		HolderCount:   domain.Known(500),
		Top10Pct:      domain.Known(10.0),
		SlippageAt20Pct: domain.Known(0.01),
		BuyTaxPct:     domain.Known(2.0),
		SellTaxPct:    domain.Known(2.0),
		TaxMutable:    domain.Known(false),
		IsHoneypot:    domain.Known(false),
		OwnerIsSafeType: domain.Known(true),
		MintAuthority: domain.Known(domain.AuthorityDisabled),
		FreezeAuth:    domain.Known(domain.AuthorityDisabled),
		LPState:       domain.Known(domain.LPBurned),
	}
}

func TestHardGate_PassesCleanSnapshot(t *testing.T) {
	cfg := config.Load()
	g := NewHardGate(cfg)
	v := g.Evaluate(baseSnapshot(domain.ChainSOL))
	require.Equal(t, domain.VerdictPass, v.Verdict)
}

func TestHardGate_UnknownLiquidityNeverPasses(t *testing.T) {
	cfg := config.Load()
	g := NewHardGate(cfg)
	snap := baseSnapshot(domain.ChainSOL)
	snap.LiquidityUSD = domain.Unknown[float64]()
	v := g.Evaluate(snap)
	require.NotEqual(t, domain.VerdictPass, v.Verdict)
}

func TestHardGate_MintAuthorityEnabledRejectsOnSOL(t *testing.T) {
	cfg := config.Load()
	g := NewHardGate(cfg)
	snap := baseSnapshot(domain.ChainSOL)
	snap.MintAuthority = domain.Known(domain.AuthorityEnabled)
	v := g.Evaluate(snap)
	require.Equal(t, domain.VerdictReject, v.Verdict)
}

func TestHardGate_FreezeAuthorityEnabledRejectsOnSOL(t *testing.T) {
	cfg := config.Load()
	g := NewHardGate(cfg)
	snap := baseSnapshot(domain.ChainSOL)
	snap.FreezeAuth = domain.Known(domain.AuthorityEnabled)
	v := g.Evaluate(snap)
	require.Equal(t, domain.VerdictReject, v.Verdict)
}

func TestHardGate_BondingCurveBSCBypassesOwnerSafety(t *testing.T) {
	cfg := config.Load()
	g := NewHardGate(cfg)
	snap := baseSnapshot(domain.ChainBSC)
	snap.IsBondingCurve = true
	snap.OwnerIsSafeType = domain.Known(false) // would reject if checked
	v := g.Evaluate(snap)
	require.NotEqual(t, domain.VerdictReject, v.Verdict, "bonding-curve BSC tokens bypass owner-safety")
}

func TestHardGate_NonBondingBSCRejectsUnsafeOwner(t *testing.T) {
	cfg := config.Load()
	g := NewHardGate(cfg)
	snap := baseSnapshot(domain.ChainBSC)
	snap.OwnerIsSafeType = domain.Known(false)
	v := g.Evaluate(snap)
	require.Equal(t, domain.VerdictReject, v.Verdict)
}

func TestHardGate_BondingCurveBypassesAuthorityButTightensTop10(t *testing.T) {
	cfg := config.Load()
	g := NewHardGate(cfg)
	snap := baseSnapshot(domain.ChainSOL)
	snap.IsBondingCurve = true
	snap.MintAuthority = domain.Known(domain.AuthorityEnabled) // would reject if checked
	snap.Top10Pct = domain.Known(27.0)                         // below default 30 but above bonding 25
	v := g.Evaluate(snap)
	require.Equal(t, domain.VerdictReject, v.Verdict, "bonding curve tightened top10 should reject at 27%%")
}

func TestHardGate_Monotonicity(t *testing.T) {
	cfg := config.Load()
	g := NewHardGate(cfg)
	better := baseSnapshot(domain.ChainSOL)
	worse := baseSnapshot(domain.ChainSOL)
	worse.Top10Pct = domain.Known(90.0)

	vBetter := g.Evaluate(better)
	vWorse := g.Evaluate(worse)

	rank := map[domain.Verdict]int{domain.VerdictPass: 0, domain.VerdictGreylist: 1, domain.VerdictReject: 2}
	require.LessOrEqual(t, rank[vBetter.Verdict], rank[vWorse.Verdict])
}
