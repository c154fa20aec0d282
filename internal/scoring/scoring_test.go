package scoring

import (
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/tokensentinel/sentinel/internal/domain"
)

func TestAggregationBoost_Table(t *testing.T) {
	require.Equal(t, 0.0, aggregationBoost(0))
	require.Equal(t, 0.0, aggregationBoost(1))
	require.Equal(t, 5.0, aggregationBoost(2))
	require.Equal(t, 10.0, aggregationBoost(3))
	require.Equal(t, 10.0, aggregationBoost(4))
	require.Equal(t, 15.0, aggregationBoost(5))
	require.Equal(t, 15.0, aggregationBoost(9))
}

func TestTierFor_Thresholds(t *testing.T) {
	require.Equal(t, domain.TierMax, tierFor(80))
	require.Equal(t, domain.TierMax, tierFor(100))
	require.Equal(t, domain.TierNormal, tierFor(65))
	require.Equal(t, domain.TierNormal, tierFor(79))
	require.Equal(t, domain.TierSmall, tierFor(50))
	require.Equal(t, domain.TierWatch, tierFor(35))
	require.Equal(t, domain.TierReject, tierFor(34.9))
}

func TestDecayFactor_FloorAndExpiry(t *testing.T) {
	require.InDelta(t, 1.0, decayFactor(0, 30*time.Minute), 0.01)
	require.Equal(t, 0.0, decayFactor(31*time.Minute, 30*time.Minute))
	require.GreaterOrEqual(t, decayFactor(20*time.Minute, 30*time.Minute), 0.1)
}

func TestComputeAxes_UnknownContributesZeroNeverNegative(t *testing.T) {
	c := &candidate{
		token:     domain.TokenFingerprint{Chain: domain.ChainSOL, Address: "x"},
		firstSeen: time.Now(),
		evidence:  []domain.RawSignal{{SourceID: "s1", Timestamp: time.Now()}},
	}
	axes := computeAxes(c, axisInputs{
		now:          time.Now(),
		signalExpiry: 30 * time.Minute,
		heatWindow:   15 * time.Minute,
		hardVerdict:  domain.VerdictReject,
		momentum:     domain.Unknown[float64](),
	})
	for _, a := range axes {
		require.GreaterOrEqual(t, a.Raw, 0.0)
		require.LessOrEqual(t, a.Raw, 1.0)
	}
}

func TestCandidate_WindowExtendCappedAtMaxExtend(t *testing.T) {
	base := time.Now()
	sig := domain.RawSignal{SourceID: "a", Token: domain.TokenFingerprint{Chain: domain.ChainSOL, Address: "y"}, Timestamp: base}
	c := newCandidate(sig, 10*time.Minute)
	require.Equal(t, base.Add(10*time.Minute), c.fireAt)

	// Evidence arriving near the ceiling should not push fireAt past windowEnd.
	late := base.Add(14 * time.Minute)
	c.ingest(domain.RawSignal{SourceID: "b", Token: sig.Token, Timestamp: late}, 10*time.Minute)
	require.False(t, c.fireAt.After(c.windowEnd))
}
