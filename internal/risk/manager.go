// Package risk implements the Risk Manager: the pre-trade gate applied
// after scoring and before sizing (SPEC_FULL §4.6). Rules 1-3
// (paused-until, consecutive-loss streak, concurrent-position cap) are
// grounded directly in the teacher's PredatorEngine consecutive-loss
// circuit breaker (ConsecutiveLosses/SafetyModeUntil in predator_engine.go)
// and its GlobalExposureGuard; rule 4 (win-rate floor) has no teacher
// analog and is grounded in other_examples/07ff2077_web3guy0-polybot's
// RiskGate (dailyLossLimitPct combined with consecutiveLosses) and
// other_examples/8014f6f2_RajChodisetti-Trading-app's RiskManagerConfig
// threshold-table shape.
package risk

import (
	"sync"
	"time"

	"github.com/shopspring/decimal"

	"github.com/tokensentinel/sentinel/internal/config"
	"github.com/tokensentinel/sentinel/internal/telemetry"
)

// Decision is the Risk Manager's verdict on whether a scored candidate may
// proceed to sizing.
type Decision struct {
	Allowed bool
	Rule    string
	Reason  string
}

func allow() Decision { return Decision{Allowed: true} }
func deny(rule, reason string) Decision {
	return Decision{Allowed: false, Rule: rule, Reason: reason}
}

// Manager is the process-wide, single-writer risk state. Reads take the
// same short-held mutex as writes and return copies; they are not
// lock-free.
type Manager struct {
	mu sync.Mutex

	cfg *config.Config
	log *telemetry.Logger

	consecutiveLosses int
	pausedUntil       time.Time

	// trailing window of recent trade outcomes for the win-rate floor
	recentOutcomes []bool

	openPositions func() int // injected: counts positions with status open|breakeven
}

func NewManager(cfg *config.Config, openPositionsCounter func() int) *Manager {
	return &Manager{
		cfg:           cfg,
		log:           telemetry.New("risk"),
		openPositions: openPositionsCounter,
	}
}

// CanTrade evaluates the ordered rule list from SPEC_FULL §4.6. The first
// rule that denies short-circuits the rest.
func (m *Manager) CanTrade(now time.Time) Decision {
	m.mu.Lock()
	defer m.mu.Unlock()

	if now.Before(m.pausedUntil) {
		remaining := m.pausedUntil.Sub(now)
		return deny("paused_until", "trading paused for "+remaining.Round(time.Minute).String())
	}

	if m.consecutiveLosses >= m.cfg.LossStreakPause {
		m.pausedUntil = now.Add(time.Duration(m.cfg.PauseHours * float64(time.Hour)))
		m.log.Warn("loss streak of %d reached, pausing until %s", m.consecutiveLosses, m.pausedUntil)
		return deny("loss_streak", "consecutive loss streak reached pause threshold")
	}

	if m.openPositions != nil && m.openPositions() >= m.cfg.MaxConcurrentPositions {
		return deny("concurrent_cap", "max concurrent positions reached")
	}

	if len(m.recentOutcomes) >= m.cfg.MinStatsTrades {
		winRate := m.winRate()
		if winRate < m.cfg.WinRateFloor {
			return deny("win_rate_floor", "trailing win rate below floor")
		}
	}

	return allow()
}

func (m *Manager) winRate() float64 {
	if len(m.recentOutcomes) == 0 {
		return 1 // no evidence against trading yet
	}
	wins := 0
	for _, w := range m.recentOutcomes {
		if w {
			wins++
		}
	}
	return float64(wins) / float64(len(m.recentOutcomes))
}

const recentOutcomesCap = 50

// RecordTradeResult updates the consecutive-loss streak (a win resets it
// to zero, exactly as PredatorEngine's close-trade handler does) and the
// trailing win-rate window.
func (m *Manager) RecordTradeResult(isWin bool) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if isWin {
		m.consecutiveLosses = 0
	} else {
		m.consecutiveLosses++
	}

	m.recentOutcomes = append(m.recentOutcomes, isWin)
	if len(m.recentOutcomes) > recentOutcomesCap {
		m.recentOutcomes = m.recentOutcomes[len(m.recentOutcomes)-recentOutcomesCap:]
	}
}

// PnLPercent is a small decimal-based helper the executor/monitor share so
// every percentage computation in the money path goes through
// shopspring/decimal instead of raw float64 (SPEC_FULL §10).
func PnLPercent(entry, current decimal.Decimal) decimal.Decimal {
	if entry.IsZero() {
		return decimal.Zero
	}
	return current.Sub(entry).Div(entry).Mul(decimal.NewFromInt(100))
}

// State returns a point-in-time copy for persistence/reporting.
func (m *Manager) State() (consecutiveLosses int, pausedUntil time.Time) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.consecutiveLosses, m.pausedUntil
}

// Restore loads persisted risk state at startup so a restart resumes any
// active pause (SPEC_FULL §3's RiskState persistence requirement).
func (m *Manager) Restore(consecutiveLosses int, pausedUntil time.Time) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.consecutiveLosses = consecutiveLosses
	m.pausedUntil = pausedUntil
}
