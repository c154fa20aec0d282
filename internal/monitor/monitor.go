// Package monitor runs the position lifecycle state machine: a priority-
// ordered set of hard exit rules shared by the pre- and post-breakeven
// phases, plus a post-breakeven warning-count table that scales the sell
// fraction with how many independent signals are flashing red. One
// fan-out polling loop drives every open position. Grounded in the
// teacher's ExecutionService.MonitorPosition (breakeven trigger, trailing
// stop, high-water-mark tracking) and PredatorEngine's close-position
// handling for the hard-rule ladder; CoPilotService.evaluateSession's
// BearishStartTime hysteresis timer is the direct template for the
// warning-count table.
package monitor

import (
	"context"
	"sync"
	"time"

	"github.com/shopspring/decimal"

	"github.com/tokensentinel/sentinel/internal/config"
	"github.com/tokensentinel/sentinel/internal/domain"
	"github.com/tokensentinel/sentinel/internal/executor"
	"github.com/tokensentinel/sentinel/internal/notify"
	"github.com/tokensentinel/sentinel/internal/risk"
	"github.com/tokensentinel/sentinel/internal/snapshot"
	"github.com/tokensentinel/sentinel/internal/telemetry"
	"github.com/tokensentinel/sentinel/internal/transport"
)

// timeStopPnLCeiling is the fixed PnL ceiling under which the time stop
// rule fires; unlike the other thresholds it isn't a named config knob.
const timeStopPnLCeiling = 20.0

// Store is the subset of position persistence the monitor needs; see
// internal/store for the concrete in-memory implementation.
type Store interface {
	OpenPositions() []*domain.Position
	Save(p *domain.Position)
}

// RiskRecorder decouples the monitor from internal/risk's concrete type
// so tests can stub it.
type RiskRecorder interface {
	RecordTradeResult(isWin bool)
}

// outcome is the result of evaluating the hard-rule ladder against one
// position: either nothing fired (Hit=false), or it did, naming the sell
// fraction and whether the position terminates.
type outcome struct {
	Hit          bool
	Terminal     bool
	ExitType     domain.ExitType
	Reason       string
	SellFraction float64
}

// Monitor runs the position state machine on a single polling loop,
// grounded in MonitorPosition's one-ticker-per-position shape but
// generalized to fan out per cycle instead of one goroutine per position
// for the lifetime of the trade (SPEC_FULL §9 Open Question 3 decision).
type Monitor struct {
	cfg       *config.Config
	store     Store
	snapshot  *snapshot.Service
	exec      executor.Executor
	notifier  *notify.Telegram
	push      *notify.Push
	risk      RiskRecorder
	throttler *transport.PositionThrottler
	log       *telemetry.Logger

	mu       sync.Mutex
	warnings map[string]int // token key -> last poll's Phase 2 warning count
}

func New(cfg *config.Config, store Store, snap *snapshot.Service, exec executor.Executor, notifier *notify.Telegram, push *notify.Push, riskRecorder RiskRecorder, throttler *transport.PositionThrottler) *Monitor {
	return &Monitor{
		cfg:       cfg,
		store:     store,
		snapshot:  snap,
		exec:      exec,
		notifier:  notifier,
		push:      push,
		risk:      riskRecorder,
		throttler: throttler,
		log:       telemetry.New("monitor"),
		warnings:  make(map[string]int),
	}
}

// broadcast pushes a position snapshot to the dashboard feed through the
// throttler so a busy polling cycle coalesces into one update per tick
// instead of flooding every connected client.
func (m *Monitor) broadcast(p *domain.Position, eventType, reason string) {
	if m.throttler == nil {
		return
	}
	m.throttler.Update(transport.PositionEvent{
		Type:     eventType,
		Token:    p.Token.String(),
		Status:   string(p.Status),
		PnLPct:   p.PnLPercent,
		ExitType: string(p.ExitType),
		Reason:   reason,
	})
}

// Run polls every MONITOR_POLL interval, evaluating every open position in
// its own goroutine per cycle, joined before the next tick starts.
func (m *Monitor) Run(ctx context.Context) {
	ticker := time.NewTicker(m.cfg.MonitorPoll)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			m.runCycle(ctx)
		}
	}
}

func (m *Monitor) runCycle(ctx context.Context) {
	positions := m.store.OpenPositions()
	var wg sync.WaitGroup
	for _, p := range positions {
		p := p
		wg.Add(1)
		go func() {
			defer wg.Done()
			m.evaluate(ctx, p)
		}()
	}
	wg.Wait()
}

// evaluate fetches one snapshot, updates HWM bookkeeping, then runs the
// rule ladder appropriate to the position's current phase. On a
// SnapshotService failure (an error, or a snapshot without a price, which
// is how GetSnapshot reports a failed fetch) this poll cycle is skipped
// entirely — absence of data is never treated as an exit condition
// (SPEC_FULL §4.9 failure semantics).
func (m *Monitor) evaluate(ctx context.Context, p *domain.Position) {
	remaining := p.EntrySizeNative * p.RemainingPercent
	snap, err := m.snapshot.GetSnapshot(ctx, p.Token, domain.Known(remaining))
	if err != nil {
		m.log.Warn("monitor snapshot fetch failed for %s: %v", p.Token, err)
		return
	}
	price, ok := snap.Price.Get()
	if !ok {
		m.log.Warn("monitor snapshot for %s has no price, skipping this cycle", p.Token)
		return
	}
	p.CurrentPrice = price

	pnlPct := m.pnlPercent(p)
	p.PnLPercent = pnlPct
	holdMinutes := p.HoldDuration(time.Now()).Minutes()

	if p.CurrentPrice > p.HighWaterMark {
		p.HighWaterMark = p.CurrentPrice
		p.LastSignificant = time.Now()
	}

	var out outcome
	switch p.Status {
	case domain.PositionOpen:
		out = m.evalPhase1(p, snap, pnlPct, holdMinutes)
	case domain.PositionBreakeven:
		if out = m.evalHardRules(p, snap, pnlPct, holdMinutes); !out.Hit {
			out = m.evalPhase2Warnings(p, snap)
		}
	default:
		return
	}

	if out.Hit {
		m.applySell(ctx, p, out)
		return
	}

	m.store.Save(p)
	m.broadcast(p, "update", out.Reason)
}

func (m *Monitor) pnlPercent(p *domain.Position) float64 {
	v, _ := risk.PnLPercent(decimal.NewFromFloat(p.EntryPrice), decimal.NewFromFloat(p.CurrentPrice)).Float64()
	return v
}

// evalHardRules implements SPEC_FULL §4.9 priority rules 1-5, the ladder
// shared verbatim by Phase 1 and (as rules "1'-5'") Phase 2. First match
// wins.
func (m *Monitor) evalHardRules(p *domain.Position, snap domain.ChainSnapshot, pnlPct, holdMinutes float64) outcome {
	if pnlPct <= m.cfg.StopLossPct {
		return outcome{Hit: true, Terminal: true, ExitType: domain.ExitStopLoss, Reason: "price stop hit", SellFraction: 1}
	}

	timeStopLimit := float64(m.cfg.TimeStopSOLMinutes)
	if p.Token.Chain == domain.ChainBSC {
		timeStopLimit = float64(m.cfg.TimeStopBSCMinutes)
	}
	if holdMinutes >= timeStopLimit && pnlPct < timeStopPnLCeiling {
		return outcome{Hit: true, Terminal: true, ExitType: domain.ExitTimeStop, Reason: "time stop elapsed without sufficient gain", SellFraction: 1}
	}

	if liq, ok := snap.LiquidityUSD.Get(); ok {
		if liq < p.EntrySnapshot.LiquidityUS*m.cfg.LiquidityCrashThresh {
			return outcome{Hit: true, Terminal: true, ExitType: domain.ExitEmergency, Reason: "liquidity crashed below entry threshold", SellFraction: 1}
		}
	}

	if top1, ok := snap.Top1HolderPct.Get(); ok {
		if p.EntrySnapshot.Top1Pct-top1 > m.cfg.DevDumpPct {
			return outcome{Hit: true, Terminal: true, ExitType: domain.ExitEmergency, Reason: "top holder balance dumped", SellFraction: 1}
		}
	}

	if top10, ok := snap.Top10Pct.Get(); ok {
		if p.EntrySnapshot.Top10Pct-top10 > m.cfg.SmartMoneyExodusPctPts {
			return outcome{Hit: true, Terminal: true, ExitType: domain.ExitEmergency, Reason: "smart money exodus from top holders", SellFraction: 1}
		}
	}

	return outcome{}
}

// evalPhase1 runs the shared hard rules, then rule 6, the breakeven trim,
// if nothing else fired.
func (m *Monitor) evalPhase1(p *domain.Position, snap domain.ChainSnapshot, pnlPct, holdMinutes float64) outcome {
	if out := m.evalHardRules(p, snap, pnlPct, holdMinutes); out.Hit {
		return out
	}

	if pnlPct >= m.cfg.BreakevenTriggerPct {
		return outcome{
			Hit:          true,
			Terminal:     false,
			Reason:       "breakeven trigger reached",
			SellFraction: m.cfg.BreakevenSellPct / 100,
		}
	}

	return outcome{}
}

// evalPhase2Warnings implements SPEC_FULL §4.9's post-breakeven warning
// table: four independent signals are counted afresh on every poll, and
// the count maps onto an increasing sell fraction.
func (m *Monitor) evalPhase2Warnings(p *domain.Position, snap domain.ChainSnapshot) outcome {
	key := p.Token.String()
	count := 0

	if entryHeat := p.EntrySnapshot.TGAccel; entryHeat > 0 {
		if heat, ok := snap.TGAccel.Get(); ok && heat/entryHeat < m.cfg.HeatDecayRatio {
			count++
		}
	}

	if top10, ok := snap.Top10Pct.Get(); ok {
		if p.EntrySnapshot.Top10Pct-top10 > m.cfg.Phase2TopHolderDropPts {
			count++
		}
	}

	if time.Since(p.LastSignificant).Minutes() > m.cfg.SidewaysMinutes {
		count++
	}

	if p.HighWaterMark > 0 {
		drawdown := (p.HighWaterMark - p.CurrentPrice) / p.HighWaterMark
		if drawdown > m.cfg.DrawdownFromHWMPct {
			count++
		}
	}

	// warnings[key] records the last count per token; nothing else in the
	// module reads it. The sell decision below acts on this poll's count
	// directly, not on accumulated history.
	m.mu.Lock()
	m.warnings[key] = count
	m.mu.Unlock()

	switch {
	case count >= 3:
		return outcome{Hit: true, Terminal: true, ExitType: domain.ExitProfitTake, Reason: "sustained warning signals, closing remaining position", SellFraction: 1}
	case count == 2:
		return outcome{Hit: true, Terminal: false, Reason: "two warning signals, trimming remaining position", SellFraction: 0.5}
	case count == 1:
		return outcome{Hit: true, Terminal: false, Reason: "one warning signal, trimming remaining position", SellFraction: 0.33}
	default:
		return outcome{}
	}
}

// applySell executes a (partial or full) sell against the outcome's sell
// fraction, updates remaining_percent, and transitions position state.
// Only the monitor ever mutates a Position after its initial insert
// (SPEC_FULL §9 design note).
func (m *Monitor) applySell(ctx context.Context, p *domain.Position, out outcome) {
	remaining := p.EntrySizeNative * p.RemainingPercent
	sellSize := remaining * out.SellFraction

	fill, err := m.exec.Sell(ctx, p.Token, decimal.NewFromFloat(sellSize))
	if err != nil {
		m.log.Error("failed to execute sell for %s: %v", p.Token, err)
		return
	}

	p.RemainingPercent = p.RemainingPercent * (1 - out.SellFraction)
	if p.RemainingPercent < 0 {
		p.RemainingPercent = 0
	}

	wasFirstTrim := p.Status == domain.PositionOpen && !out.Terminal
	if wasFirstTrim {
		p.Status = domain.PositionBreakeven
		p.BreakevenDone = true
		p.BreakevenTime = time.Now()
		p.BreakevenPrice = p.CurrentPrice
		m.log.Info("breakeven trim for %s at %.2f%%, fill=%s", p.Token, p.PnLPercent, fill.TxRef)
	}

	if out.Terminal || p.RemainingPercent <= 0 {
		m.closePosition(p, out.ExitType, out.Reason, fill.TxRef)
		return
	}

	m.log.Trade("partial sell for %s: %s (remaining=%.2f%%) fill=%s", p.Token, out.Reason, p.RemainingPercent*100, fill.TxRef)
	m.store.Save(p)
	m.broadcast(p, "trim", out.Reason)
}

func (m *Monitor) closePosition(p *domain.Position, exitType domain.ExitType, reason, txRef string) {
	p.Status = domain.PositionClosed
	p.ExitType = exitType
	p.ExitTime = time.Now()
	p.ExitPrice = p.CurrentPrice
	p.PnLPercent = m.pnlPercent(p)
	m.store.Save(p)
	m.broadcast(p, "closed", reason)

	m.risk.RecordTradeResult(p.PnLPercent > 0)

	m.log.Trade("closed %s: %s (%s) fill=%s", p.Token, reason, exitType, txRef)
	if m.notifier != nil {
		m.notifier.NotifyExit(p, reason)
	}
	if exitType == domain.ExitEmergency && m.push != nil {
		m.push.NotifyEmergencyExit(p.Token, reason)
	}

	m.mu.Lock()
	delete(m.warnings, p.Token.String())
	m.mu.Unlock()
}
