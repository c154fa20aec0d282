package orchestrator

import (
	"context"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/require"

	"github.com/tokensentinel/sentinel/internal/config"
	"github.com/tokensentinel/sentinel/internal/domain"
	"github.com/tokensentinel/sentinel/internal/executor"
	"github.com/tokensentinel/sentinel/internal/gates"
	"github.com/tokensentinel/sentinel/internal/risk"
	"github.com/tokensentinel/sentinel/internal/scoring"
	"github.com/tokensentinel/sentinel/internal/sizer"
	"github.com/tokensentinel/sentinel/internal/store"
	"github.com/tokensentinel/sentinel/internal/telemetry"
	"github.com/tokensentinel/sentinel/internal/transport"
	"github.com/prometheus/client_golang/prometheus"
)

type recordingExecutor struct {
	buys []decimal.Decimal
}

func (e *recordingExecutor) Name() string { return "recording" }
func (e *recordingExecutor) Buy(ctx context.Context, token domain.TokenFingerprint, size decimal.Decimal) (executor.Fill, error) {
	e.buys = append(e.buys, size)
	return executor.Fill{TxRef: "TEST_FILL"}, nil
}
func (e *recordingExecutor) Sell(ctx context.Context, token domain.TokenFingerprint, size decimal.Decimal) (executor.Fill, error) {
	return executor.Fill{}, nil
}

func newTestOrchestrator(t *testing.T, exec *recordingExecutor) *Orchestrator {
	t.Helper()
	cfg := config.Load()
	cfg.AutoBuyEnabled = true

	positions := store.NewPositions()
	hub := transport.NewHub()
	return &Orchestrator{
		cfg:       cfg,
		log:       telemetry.New("orchestrator-test"),
		Metrics:   telemetry.NewMetrics(prometheus.NewRegistry()),
		ExitGate:  gates.NewExitGate(cfg),
		Risk:      risk.NewManager(cfg, positions.Count),
		Sizer:     sizer.New(cfg),
		Executor:  exec,
		Positions: positions,
		GateAudit: store.NewGateAudit(),
		Hub:       hub,
		throttler: transport.NewPositionThrottler(hub),
	}
}

func cleanDecision(tier domain.ScoreTier) scoring.Decision {
	return scoring.Decision{
		Score: domain.CompositeScore{
			Token:      domain.TokenFingerprint{Chain: domain.ChainSOL, Address: "tok1"},
			Total:      0.9,
			Tier:       tier,
			Reason:     "scored",
			ScoredTime: time.Now(),
		},
		Snapshot: domain.ChainSnapshot{
			Token:           domain.TokenFingerprint{Chain: domain.ChainSOL, Address: "tok1"},
			Price:           domain.Known(1.0),
			LiquidityNat:    domain.Known(10.0),
			SlippageAt20Pct: domain.Known(1.0),
			Top10Pct:        domain.Known(10.0),
			WashFlag:        domain.Known(domain.WashLow),
		},
		HardVerdict: domain.GateVerdict{
			Gate:      "hard_gate",
			Verdict:   domain.VerdictPass,
			EvaluedAt: time.Now(),
		},
	}
}

func TestHandleDecision_MaxTierOpensPosition(t *testing.T) {
	exec := &recordingExecutor{}
	o := newTestOrchestrator(t, exec)

	o.handleDecision(context.Background(), cleanDecision(domain.TierMax))

	require.Len(t, exec.buys, 1)
	open := o.Positions.OpenPositions()
	require.Len(t, open, 1)
	require.Equal(t, domain.PositionOpen, open[0].Status)
}

func TestHandleDecision_WatchTierNeverBuys(t *testing.T) {
	exec := &recordingExecutor{}
	o := newTestOrchestrator(t, exec)

	o.handleDecision(context.Background(), cleanDecision(domain.TierWatch))

	require.Empty(t, exec.buys)
	require.Empty(t, o.Positions.OpenPositions())
}

func TestHandleDecision_AutoBuyDisabledLogsOnly(t *testing.T) {
	exec := &recordingExecutor{}
	o := newTestOrchestrator(t, exec)
	o.cfg.AutoBuyEnabled = false

	o.handleDecision(context.Background(), cleanDecision(domain.TierMax))

	require.Empty(t, exec.buys)
	require.Empty(t, o.Positions.OpenPositions())
}

func TestHandleDecision_SkipsWhenAlreadyHoldingPosition(t *testing.T) {
	exec := &recordingExecutor{}
	o := newTestOrchestrator(t, exec)
	dec := cleanDecision(domain.TierMax)

	o.handleDecision(context.Background(), dec)
	require.Len(t, exec.buys, 1)

	o.handleDecision(context.Background(), dec)
	require.Len(t, exec.buys, 1, "second decision for an already-open token must not re-buy")
}

func TestHandleDecision_ExitGateRejectBlocksBuy(t *testing.T) {
	exec := &recordingExecutor{}
	o := newTestOrchestrator(t, exec)
	dec := cleanDecision(domain.TierMax)
	dec.Snapshot.WashFlag = domain.Known(domain.WashHigh)
	dec.Snapshot.LiquidityNat = domain.Unknown[float64]() // second yellow flag escalates wash-high to REJECT

	o.handleDecision(context.Background(), dec)

	require.Empty(t, exec.buys)
	require.Empty(t, o.Positions.OpenPositions())
}
