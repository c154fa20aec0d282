package monitor

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/require"

	"github.com/tokensentinel/sentinel/internal/config"
	"github.com/tokensentinel/sentinel/internal/domain"
	"github.com/tokensentinel/sentinel/internal/executor"
	"github.com/tokensentinel/sentinel/internal/snapshot"
	"github.com/tokensentinel/sentinel/internal/transport"
)

type fakeProvider struct {
	name string
	snap domain.ChainSnapshot
}

func (f *fakeProvider) Name() string { return f.name }
func (f *fakeProvider) Fetch(ctx context.Context, token domain.TokenFingerprint, planned domain.Optional[float64]) (domain.ChainSnapshot, error) {
	f.snap.Token = token
	return f.snap, nil
}

type memStore struct {
	mu  sync.Mutex
	pos map[string]*domain.Position
}

func newMemStore() *memStore { return &memStore{pos: make(map[string]*domain.Position)} }

func (m *memStore) OpenPositions() []*domain.Position {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []*domain.Position
	for _, p := range m.pos {
		if p.Status != domain.PositionClosed {
			out = append(out, p)
		}
	}
	return out
}

func (m *memStore) Save(p *domain.Position) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.pos[p.ID] = p
}

type stubExecutor struct{ sellCalls []decimal.Decimal }

func (s *stubExecutor) Name() string { return "stub" }
func (s *stubExecutor) Buy(ctx context.Context, token domain.TokenFingerprint, size decimal.Decimal) (executor.Fill, error) {
	return executor.Fill{}, nil
}
func (s *stubExecutor) Sell(ctx context.Context, token domain.TokenFingerprint, size decimal.Decimal) (executor.Fill, error) {
	s.sellCalls = append(s.sellCalls, size)
	return executor.Fill{TxRef: "STUB_SELL"}, nil
}

type fakeRisk struct{ results []bool }

func (f *fakeRisk) RecordTradeResult(isWin bool) { f.results = append(f.results, isWin) }

func testCfg() *config.Config {
	return &config.Config{
		StopLossPct:            -50,
		BreakevenTriggerPct:    100,
		BreakevenSellPct:       50,
		TimeStopSOLMinutes:     60,
		TimeStopBSCMinutes:     120,
		LiquidityCrashThresh:   0.5,
		DevDumpPct:             10,
		SmartMoneyExodusPctPts: 30,
		HeatDecayRatio:         0.4,
		Phase2TopHolderDropPts: 15,
		SidewaysMinutes:        30,
		DrawdownFromHWMPct:     0.5,
		MonitorPoll:            time.Second,
	}
}

func testPosition() *domain.Position {
	return &domain.Position{
		ID:               "p1",
		Chain:            domain.ChainSOL,
		Token:            domain.TokenFingerprint{Chain: domain.ChainSOL, Address: "abc"},
		EntryTime:        time.Now().Add(-5 * time.Minute),
		EntryPrice:       1.0,
		EntrySizeNative:  0.1,
		RemainingPercent: 1.0,
		Status:           domain.PositionOpen,
		EntrySnapshot:    domain.EntrySnapshot{LiquidityUS: 10000, Top10Pct: 20, Top1Pct: 10, TGAccel: 5},
	}
}

func TestMonitor_EvalPhase1_StopLossTriggers(t *testing.T) {
	m := &Monitor{cfg: testCfg(), warnings: make(map[string]int)}
	p := testPosition()
	p.CurrentPrice = 0.4 // -60% from entry of 1.0

	out := m.evalPhase1(p, domain.ChainSnapshot{}, m.pnlPercent(p), p.HoldDuration(time.Now()).Minutes())
	require.True(t, out.Hit)
	require.True(t, out.Terminal)
	require.Equal(t, domain.ExitStopLoss, out.ExitType)
	require.Equal(t, 1.0, out.SellFraction)
}

func TestMonitor_EvalPhase1_NoExitWhenHealthy(t *testing.T) {
	m := &Monitor{cfg: testCfg(), warnings: make(map[string]int)}
	p := testPosition()
	p.CurrentPrice = 1.1

	snap := domain.ChainSnapshot{LiquidityUSD: domain.Known(20000.0), Top10Pct: domain.Known(20.0), Top1HolderPct: domain.Known(10.0)}
	out := m.evalPhase1(p, snap, m.pnlPercent(p), p.HoldDuration(time.Now()).Minutes())
	require.False(t, out.Hit)
}

func TestMonitor_EvalPhase1_LiquidityCrashIsEmergency(t *testing.T) {
	m := &Monitor{cfg: testCfg(), warnings: make(map[string]int)}
	p := testPosition()
	p.CurrentPrice = 1.05

	snap := domain.ChainSnapshot{LiquidityUSD: domain.Known(1000.0)}
	out := m.evalPhase1(p, snap, m.pnlPercent(p), p.HoldDuration(time.Now()).Minutes())
	require.True(t, out.Hit)
	require.Equal(t, domain.ExitEmergency, out.ExitType)
}

func TestMonitor_EvalPhase1_DevDumpIsEmergency(t *testing.T) {
	m := &Monitor{cfg: testCfg(), warnings: make(map[string]int)}
	p := testPosition()
	p.CurrentPrice = 1.05

	snap := domain.ChainSnapshot{LiquidityUSD: domain.Known(20000.0), Top1HolderPct: domain.Known(-1.0)} // dropped 11pp from entry's 10
	out := m.evalPhase1(p, snap, m.pnlPercent(p), p.HoldDuration(time.Now()).Minutes())
	require.True(t, out.Hit)
	require.Equal(t, domain.ExitEmergency, out.ExitType)
}

func TestMonitor_EvalPhase1_BreakevenTrimsHalfNotTerminal(t *testing.T) {
	m := &Monitor{cfg: testCfg(), warnings: make(map[string]int)}
	p := testPosition()
	p.CurrentPrice = 2.1 // +110%, above the 100% breakeven trigger

	snap := domain.ChainSnapshot{LiquidityUSD: domain.Known(20000.0), Top10Pct: domain.Known(20.0), Top1HolderPct: domain.Known(10.0)}
	out := m.evalPhase1(p, snap, m.pnlPercent(p), p.HoldDuration(time.Now()).Minutes())
	require.True(t, out.Hit)
	require.False(t, out.Terminal)
	require.Equal(t, 0.5, out.SellFraction)
}

func TestMonitor_EvalPhase2Warnings_SingleSignalTrimsOneThird(t *testing.T) {
	m := &Monitor{cfg: testCfg(), warnings: make(map[string]int)}
	p := testPosition()
	p.Status = domain.PositionBreakeven
	p.HighWaterMark = 1.5
	p.CurrentPrice = 1.4 // close to HWM, no drawdown trip
	p.LastSignificant = time.Now().Add(-45 * time.Minute) // sideways too long, only active signal

	out := m.evalPhase2Warnings(p, domain.ChainSnapshot{})
	require.True(t, out.Hit)
	require.False(t, out.Terminal)
	require.Equal(t, 0.33, out.SellFraction)

	// a clean poll with no active signal holds
	p.LastSignificant = time.Now()
	out = m.evalPhase2Warnings(p, domain.ChainSnapshot{})
	require.False(t, out.Hit)
}

func TestMonitor_EvalPhase2Warnings_ThreeWarningsCloseRemaining(t *testing.T) {
	m := &Monitor{cfg: testCfg(), warnings: make(map[string]int)}
	p := testPosition()
	p.Status = domain.PositionBreakeven
	p.HighWaterMark = 1.5
	p.CurrentPrice = 0.5 // deep drawdown from HWM also trips
	p.LastSignificant = time.Now().Add(-45 * time.Minute)

	snap := domain.ChainSnapshot{
		TGAccel:  domain.Known(1.0), // 1/5 entry accel < 0.4 ratio
		Top10Pct: domain.Known(0.0), // dropped 20pp from entry's 20, > 15pp threshold
	}
	out := m.evalPhase2Warnings(p, snap)
	require.True(t, out.Hit)
	require.True(t, out.Terminal)
	require.Equal(t, domain.ExitProfitTake, out.ExitType)
	require.Equal(t, 1.0, out.SellFraction)
}

func TestMonitor_FullCycle_ClosesOnStopLoss(t *testing.T) {
	cfg := testCfg()
	store := newMemStore()
	p := testPosition()
	p.CurrentPrice = 1.0
	store.Save(p)

	snap := snapshot.NewService(time.Minute, 100, 10, nil)
	snap.RegisterProvider(domain.ChainSOL, &fakeProvider{name: "sol-test", snap: domain.ChainSnapshot{Price: domain.Known(0.3)}})

	risk := &fakeRisk{}
	exec := &stubExecutor{}
	m := New(cfg, store, snap, exec, nil, nil, risk, nil)

	m.runCycle(context.Background())

	got := store.OpenPositions()
	require.Empty(t, got)
	require.Len(t, risk.results, 1)
	require.False(t, risk.results[0])
}

func TestMonitor_FullCycle_BreakevenTrimKeepsPositionOpenWithRemainder(t *testing.T) {
	cfg := testCfg()
	store := newMemStore()
	p := testPosition()
	p.CurrentPrice = 1.0
	store.Save(p)

	snap := snapshot.NewService(time.Minute, 100, 10, nil)
	snap.RegisterProvider(domain.ChainSOL, &fakeProvider{name: "sol-test", snap: domain.ChainSnapshot{
		Price:         domain.Known(2.1),
		LiquidityUSD:  domain.Known(20000.0),
		Top10Pct:      domain.Known(20.0),
		Top1HolderPct: domain.Known(10.0),
	}})

	risk := &fakeRisk{}
	exec := &stubExecutor{}
	m := New(cfg, store, snap, exec, nil, nil, risk, nil)

	m.runCycle(context.Background())

	open := store.OpenPositions()
	require.Len(t, open, 1)
	require.Equal(t, domain.PositionBreakeven, open[0].Status)
	require.InDelta(t, 0.5, open[0].RemainingPercent, 0.001)
	require.Empty(t, risk.results)
	require.Len(t, exec.sellCalls, 1)
}

func TestMonitor_FullCycle_BreakevenTrimReachesThrottler(t *testing.T) {
	cfg := testCfg()
	store := newMemStore()
	p := testPosition()
	p.CurrentPrice = 1.0
	store.Save(p)

	snap := snapshot.NewService(time.Minute, 100, 10, nil)
	snap.RegisterProvider(domain.ChainSOL, &fakeProvider{name: "sol-test", snap: domain.ChainSnapshot{
		Price:         domain.Known(2.1),
		LiquidityUSD:  domain.Known(20000.0),
		Top10Pct:      domain.Known(20.0),
		Top1HolderPct: domain.Known(10.0),
	}})

	risk := &fakeRisk{}
	exec := &stubExecutor{}
	throttler := transport.NewPositionThrottler(transport.NewHub())
	m := New(cfg, store, snap, exec, nil, nil, risk, throttler)

	m.runCycle(context.Background())

	ev, ok := throttler.Pending(p.Token.String())
	require.True(t, ok, "monitor cycle must reach the throttler, not just the store")
	require.Equal(t, "trim", ev.Type)
}
