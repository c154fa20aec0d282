package gates

import (
	"github.com/tokensentinel/sentinel/internal/config"
	"github.com/tokensentinel/sentinel/internal/domain"
)

// ExitGate evaluates whether a planned position of a given size could be
// exited cleanly (SPEC_FULL §4.4). plannedPositionNative is required
// input; its absence forces GREYLIST regardless of every other field,
// since exit feasibility is coupled to the sized trade.
type ExitGate struct {
	cfg *config.Config
}

func NewExitGate(cfg *config.Config) *ExitGate {
	return &ExitGate{cfg: cfg}
}

func (g *ExitGate) Name() string { return "exit_gate" }

func (g *ExitGate) Evaluate(snap domain.ChainSnapshot, plannedPositionNative domain.Optional[float64]) domain.GateVerdict {
	th := thresholdsFor(g.cfg, snap.Token.Chain)
	var checks []check

	if _, ok := plannedPositionNative.Get(); !ok {
		checks = append(checks, grey("Planned position size not supplied"))
	}

	checks = append(checks, exitLiquidityCheck(snap, th.MinLiquidityNative))
	checks = append(checks, exitSlippageCheck(snap, th, snap.Token.Chain))
	checks = append(checks, top10Check(snap, th))
	checks = append(checks, washFlagCheck(snap))

	if snap.Token.Chain == domain.ChainBSC {
		checks = append(checks, sellConstraintsCheck(snap))
	}

	verdict := fold(g.Name(), checks)

	// Wash-HIGH combined with any other yellow flag escalates to REJECT;
	// wash-HIGH alone stays GREYLIST (SPEC_FULL §4.4 exit gate table).
	if wf, ok := snap.WashFlag.Get(); ok && wf == domain.WashHigh && verdict.Verdict == domain.VerdictGreylist && len(verdict.Reasons) > 1 {
		verdict.Verdict = domain.VerdictReject
	}

	return verdict
}

func exitLiquidityCheck(snap domain.ChainSnapshot, minLiquidityNative float64) check {
	v, known := snap.LiquidityNat.Get()
	if !known {
		return grey("Liquidity (native) unknown")
	}
	if v < minLiquidityNative {
		return reject("Liquidity (native) below minimum")
	}
	return pass()
}

func exitSlippageCheck(snap domain.ChainSnapshot, th config.GateThresholds, chain domain.Chain) check {
	v, known := snap.SlippageAt20Pct.Get()
	if !known {
		return grey("Exit slippage unknown")
	}
	if v > th.ExitSlippageRejectPc {
		return reject("Exit slippage at 20% too high")
	}
	if v > th.ExitSlippageGreyPct {
		return grey("Exit slippage at 20% is elevated")
	}
	return pass()
}

func washFlagCheck(snap domain.ChainSnapshot) check {
	v, known := snap.WashFlag.Get()
	if !known {
		return grey("Wash flag unknown")
	}
	switch v {
	case domain.WashHigh:
		return grey("Wash trading flag high")
	default:
		return pass()
	}
}

func sellConstraintsCheck(snap domain.ChainSnapshot) check {
	v, known := snap.SellConstraintsBSC.Get()
	if !known {
		return grey("Sell constraints unknown")
	}
	if v {
		return reject("Sell constraints detected")
	}
	return pass()
}
