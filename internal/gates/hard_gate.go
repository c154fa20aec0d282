package gates

import (
	"github.com/tokensentinel/sentinel/internal/config"
	"github.com/tokensentinel/sentinel/internal/domain"
)

// HardGate evaluates the safety/quality table from SPEC_FULL §4.4.
// Bonding-curve tokens bypass the authority/LP checks (those concepts
// don't apply pre-DEX) but get a tightened Top-10 threshold, since their
// holder base is small by construction.
type HardGate struct {
	cfg *config.Config
}

func NewHardGate(cfg *config.Config) *HardGate {
	return &HardGate{cfg: cfg}
}

func (g *HardGate) Name() string { return "hard_gate" }

func (g *HardGate) Evaluate(snap domain.ChainSnapshot) domain.GateVerdict {
	th := thresholdsFor(g.cfg, snap.Token.Chain)
	var checks []check

	checks = append(checks, liquidityCheck(snap, th.MinLiquidityUSD))
	checks = append(checks, holdersCheck(snap, th.MinHolders))
	checks = append(checks, top10Check(snap, th))
	checks = append(checks, slippageCheck(snap, th.MaxSlippageBps))

	if snap.Token.Chain == domain.ChainBSC {
		checks = append(checks, taxCheck(snap, th.MaxTaxPct))
		checks = append(checks, honeypotCheck(snap))
	}

	if !snap.IsBondingCurve {
		checks = append(checks, authorityCheck(snap, snap.Token.Chain))
		checks = append(checks, freezeAuthorityCheck(snap, snap.Token.Chain))
		checks = append(checks, lpStateCheck(snap))
		if snap.Token.Chain == domain.ChainBSC {
			checks = append(checks, ownerSafetyCheck(snap))
		}
	}

	return fold(g.Name(), checks)
}

func liquidityCheck(snap domain.ChainSnapshot, minLiquidityUSD float64) check {
	v, known := snap.LiquidityUSD.Get()
	if !known {
		return grey("Liquidity Unknown")
	}
	if v < minLiquidityUSD {
		return reject("Liquidity below minimum")
	}
	return pass()
}

func holdersCheck(snap domain.ChainSnapshot, minHolders int) check {
	v, known := snap.HolderCount.Get()
	if !known {
		return grey("Holder count unknown")
	}
	if v < minHolders {
		return reject("Holder count below minimum")
	}
	return pass()
}

func top10Check(snap domain.ChainSnapshot, th config.GateThresholds) check {
	v, known := snap.Top10Pct.Get()
	if !known {
		return grey("Top-10 concentration unknown")
	}
	max := th.MaxTop10Pct
	if snap.IsBondingCurve {
		max = th.MaxTop10PctBonding
	}
	if v > max {
		return reject("Top-10 concentration too high")
	}
	return pass()
}

func slippageCheck(snap domain.ChainSnapshot, maxSlippageBps float64) check {
	v, known := snap.SlippageAt20Pct.Get()
	if !known {
		return grey("Slippage unknown")
	}
	if v*100 > maxSlippageBps {
		return reject("Slippage exceeds maximum")
	}
	return pass()
}

func taxCheck(snap domain.ChainSnapshot, maxTaxPct float64) check {
	buy, buyKnown := snap.BuyTaxPct.Get()
	sell, sellKnown := snap.SellTaxPct.Get()
	if !buyKnown || !sellKnown {
		return grey("Tax unknown")
	}
	if mutable, ok := snap.TaxMutable.Get(); ok && mutable {
		return reject("Tax is mutable")
	}
	if buy+sell > maxTaxPct {
		return reject("Combined tax exceeds maximum")
	}
	return pass()
}

func honeypotCheck(snap domain.ChainSnapshot) check {
	v, known := snap.IsHoneypot.Get()
	if !known {
		return grey("Honeypot indicator unknown")
	}
	if v {
		return reject("Honeypot detected")
	}
	return pass()
}

func ownerSafetyCheck(snap domain.ChainSnapshot) check {
	v, known := snap.OwnerIsSafeType.Get()
	if !known {
		return grey("Owner safety unknown")
	}
	if !v {
		return reject("Owner is not a recognized safe type")
	}
	return pass()
}

func authorityCheck(snap domain.ChainSnapshot, chain domain.Chain) check {
	if chain != domain.ChainSOL {
		return pass()
	}
	mint, known := snap.MintAuthority.Get()
	if !known {
		return grey("Mint authority unknown")
	}
	if mint == domain.AuthorityEnabled {
		return reject("Mint authority still enabled")
	}
	return pass()
}

func freezeAuthorityCheck(snap domain.ChainSnapshot, chain domain.Chain) check {
	if chain != domain.ChainSOL {
		return pass()
	}
	freeze, known := snap.FreezeAuth.Get()
	if !known {
		return grey("Freeze authority unknown")
	}
	if freeze == domain.AuthorityEnabled {
		return reject("Freeze authority still enabled")
	}
	return pass()
}

func lpStateCheck(snap domain.ChainSnapshot) check {
	v, known := snap.LPState.Get()
	if !known {
		return grey("LP state unknown")
	}
	if v == domain.LPUnlocked {
		return reject("Liquidity is unlocked")
	}
	return pass()
}
