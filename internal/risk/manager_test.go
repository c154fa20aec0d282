package risk

import (
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/tokensentinel/sentinel/internal/config"
)

func testConfig() *config.Config {
	return &config.Config{
		MaxConcurrentPositions: 3,
		LossStreakPause:        3,
		PauseHours:             24,
		MinStatsTrades:         5,
		WinRateFloor:           0.35,
	}
}

func TestManager_AllowsWhenClean(t *testing.T) {
	m := NewManager(testConfig(), func() int { return 0 })
	d := m.CanTrade(time.Now())
	require.True(t, d.Allowed)
}

func TestManager_PausesAfterLossStreak(t *testing.T) {
	m := NewManager(testConfig(), func() int { return 0 })
	m.RecordTradeResult(false)
	m.RecordTradeResult(false)
	m.RecordTradeResult(false)

	d := m.CanTrade(time.Now())
	require.False(t, d.Allowed)
	require.Equal(t, "loss_streak", d.Rule)

	losses, pausedUntil := m.State()
	require.Equal(t, 3, losses)
	require.True(t, pausedUntil.After(time.Now()))
}

func TestManager_PausedUntilBlocksUntilElapsed(t *testing.T) {
	m := NewManager(testConfig(), func() int { return 0 })
	m.Restore(0, time.Now().Add(1*time.Hour))

	d := m.CanTrade(time.Now())
	require.False(t, d.Allowed)
	require.Equal(t, "paused_until", d.Rule)

	d = m.CanTrade(time.Now().Add(2 * time.Hour))
	require.True(t, d.Allowed)
}

func TestManager_WinResetsConsecutiveLosses(t *testing.T) {
	m := NewManager(testConfig(), func() int { return 0 })
	m.RecordTradeResult(false)
	m.RecordTradeResult(false)
	m.RecordTradeResult(true)

	losses, _ := m.State()
	require.Equal(t, 0, losses)
}

func TestManager_ConcurrentPositionCapDenies(t *testing.T) {
	m := NewManager(testConfig(), func() int { return 3 })
	d := m.CanTrade(time.Now())
	require.False(t, d.Allowed)
	require.Equal(t, "concurrent_cap", d.Rule)
}

func TestManager_WinRateFloorDeniesBelowThreshold(t *testing.T) {
	m := NewManager(testConfig(), func() int { return 0 })
	// 6 trades, 2 wins = 33% win rate, below the 35% floor, with no
	// individual streak reaching the loss_streak threshold so this rule
	// fires on its own.
	for _, win := range []bool{false, false, true, false, false, true} {
		m.RecordTradeResult(win)
	}

	d := m.CanTrade(time.Now())
	require.False(t, d.Allowed)
	require.Equal(t, "win_rate_floor", d.Rule)
}

func TestManager_WinRateFloorIgnoredBelowMinSampleSize(t *testing.T) {
	m := NewManager(testConfig(), func() int { return 0 })
	m.RecordTradeResult(false)
	m.RecordTradeResult(false)

	d := m.CanTrade(time.Now())
	require.True(t, d.Allowed)
}
