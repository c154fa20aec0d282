// Package sizer turns a scored, risk-approved candidate into a concrete
// position size. Grounded in the teacher's CalculateDynamicMargin /
// evaluateCandidate tier-scaling chain (predator_engine.go), which shrinks
// notional by fixed multipliers for a weaker tier (50%), a consecutive-loss
// strike penalty (50%), and a low-confirmation ratio (30%) — generalized
// here into one tier-multiplier table plus an account-percent cap.
package sizer

import (
	"github.com/shopspring/decimal"

	"github.com/tokensentinel/sentinel/internal/config"
	"github.com/tokensentinel/sentinel/internal/domain"
)

// tierMultiplier mirrors the teacher's Tier1/Tier2/strike-penalty scaling,
// renamed to the MAX/NORMAL/SMALL/WATCH vocabulary SPEC_FULL §4.7 uses.
var tierMultiplier = map[domain.ScoreTier]decimal.Decimal{
	domain.TierMax:    decimal.NewFromFloat(1.0),
	domain.TierNormal: decimal.NewFromFloat(0.75),
	domain.TierSmall:  decimal.NewFromFloat(0.5),
	domain.TierWatch:  decimal.Zero, // WATCH tier never sizes into a position
	domain.TierReject: decimal.Zero,
}

// Sizer computes a position's native-asset size from the account's total
// capital, the tier multiplier, and the configured per-trade cap.
type Sizer struct {
	cfg *config.Config
}

func New(cfg *config.Config) *Sizer {
	return &Sizer{cfg: cfg}
}

// Result is the Position Sizer's output (SPEC_FULL §4.7).
type Result struct {
	SizeNative decimal.Decimal
	Multiplier decimal.Decimal
}

// Size returns the native-asset amount to commit for a given chain and
// score tier. The MAX_POSITION_PERCENT-of-capital amount is the ceiling a
// MAX-tier candidate receives in full; weaker tiers receive a fraction of
// it. Returns a zero Result (and ok=false) for tiers that never size into
// a position.
func (s *Sizer) Size(chain domain.Chain, tier domain.ScoreTier) (Result, bool) {
	mult, known := tierMultiplier[tier]
	if !known || mult.IsZero() {
		return Result{}, false
	}

	totalCapital := decimal.NewFromFloat(s.cfg.TotalCapitalSOL)
	if chain == domain.ChainBSC {
		totalCapital = decimal.NewFromFloat(s.cfg.TotalCapitalBNB)
	}

	ceiling := totalCapital.Mul(decimal.NewFromFloat(s.cfg.MaxPositionPercent))
	size := ceiling.Mul(mult)

	return Result{SizeNative: size, Multiplier: mult}, true
}
