package scoring

import (
	"time"

	"github.com/tokensentinel/sentinel/internal/domain"
)

const (
	weightSmartMoney  = 40.0
	weightAINarrative = 25.0
	weightTGHeat      = 15.0
	weightMomentum    = 10.0
	weightSafety      = 10.0
)

// axisInputs is everything computeAxes needs beyond the candidate's own
// evidence list: the Safety verdict comes from the Hard Gate, Momentum
// comes from the snapshot/kline pipeline, both fetched by the caller.
type axisInputs struct {
	now          time.Time
	signalExpiry time.Duration
	heatWindow   time.Duration
	hardVerdict  domain.Verdict
	momentum     domain.Optional[float64] // bounded -1..1, already normalized by caller
}

// computeAxes builds the five weighted axes from SPEC_FULL §4.5's table.
// The SmartMoney and AI-Narrative raw values are decay-weighted by
// evidence age; every axis is clamped to [0,1] and multiplied by its weight.
func computeAxes(c *candidate, in axisInputs) []domain.AxisScore {
	var smartMoneyRaw, aiRaw, heatRaw float64
	heatSources := make(map[string]time.Time)

	for _, ev := range c.evidence {
		ts := ev.Timestamp
		if ts.IsZero() {
			ts = c.firstSeen
		}
		age := in.now.Sub(ts)
		df := decayFactor(age, in.signalExpiry)
		if df == 0 {
			continue
		}

		if v, ok := ev.SmartMoneyOnline.Get(); ok {
			// normalize against a fixed ceiling of 15 smart wallets
			normalized := clamp01(float64(v) / 15.0)
			if normalized*df > smartMoneyRaw {
				smartMoneyRaw = normalized * df
			}
		}
		if v, ok := ev.AIScore.Get(); ok {
			normalized := clamp01(v / 10.0)
			if normalized*df > aiRaw {
				aiRaw = normalized * df
			}
		}
		if age <= in.heatWindow {
			if prev, ok := heatSources[ev.SourceID]; !ok || ts.After(prev) {
				heatSources[ev.SourceID] = ts
			}
		}
	}

	heatCount := len(heatSources)
	heatRaw = clamp01(float64(heatCount) / 5.0)

	momentumRaw := 0.0
	if v, ok := in.momentum.Get(); ok {
		// momentum is supplied already bounded to [-1, 1] and mapped
		// linearly onto [0, 1]; neutral momentum scores 0.5.
		momentumRaw = clamp01((v + 1) / 2)
	}

	safetyRaw := 0.0
	switch in.hardVerdict {
	case domain.VerdictPass:
		safetyRaw = 1.0
	case domain.VerdictGreylist:
		safetyRaw = 0.5
	case domain.VerdictReject:
		safetyRaw = 0.0
	}

	return []domain.AxisScore{
		{Name: "SmartMoney", Raw: smartMoneyRaw, Weight: weightSmartMoney},
		{Name: "AI-Narrative", Raw: aiRaw, Weight: weightAINarrative},
		{Name: "TG-Heat", Raw: heatRaw, Weight: weightTGHeat},
		{Name: "Momentum", Raw: momentumRaw, Weight: weightMomentum},
		{Name: "Safety", Raw: safetyRaw, Weight: weightSafety},
	}
}

// aggregationBoost implements the channel-count boost table: >=5 distinct
// sources in the window adds +15, >=3 adds +10, >=2 adds +5, grounded in
// signal_aggregator.go's heavy-accumulation-vs-normal-flow branching
// (>=5 signals triggers its own "HEAVY ACCUMULATION" summary path there).
func aggregationBoost(distinctSources int) float64 {
	switch {
	case distinctSources >= 5:
		return 15
	case distinctSources >= 3:
		return 10
	case distinctSources >= 2:
		return 5
	default:
		return 0
	}
}

// tierFor maps a composite total to a rating tier per SPEC_FULL §4.5.
func tierFor(total float64) domain.ScoreTier {
	switch {
	case total >= 80:
		return domain.TierMax
	case total >= 65:
		return domain.TierNormal
	case total >= 50:
		return domain.TierSmall
	case total >= 35:
		return domain.TierWatch
	default:
		return domain.TierReject
	}
}
