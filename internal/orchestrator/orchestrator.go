// Package orchestrator wires the signal pipeline's independent packages
// into one running process, following the teacher's main()'s assembly
// order (channels, then services that consume them, then background
// loops, then the HTTP listener) rather than inventing a new shape.
package orchestrator

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/adshao/go-binance/v2/futures"
	"github.com/google/uuid"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/shopspring/decimal"

	"github.com/tokensentinel/sentinel/internal/adapters"
	"github.com/tokensentinel/sentinel/internal/auth"
	"github.com/tokensentinel/sentinel/internal/bus"
	"github.com/tokensentinel/sentinel/internal/config"
	"github.com/tokensentinel/sentinel/internal/domain"
	"github.com/tokensentinel/sentinel/internal/executor"
	"github.com/tokensentinel/sentinel/internal/gates"
	"github.com/tokensentinel/sentinel/internal/monitor"
	"github.com/tokensentinel/sentinel/internal/notify"
	"github.com/tokensentinel/sentinel/internal/risk"
	"github.com/tokensentinel/sentinel/internal/scoring"
	"github.com/tokensentinel/sentinel/internal/sizer"
	"github.com/tokensentinel/sentinel/internal/snapshot"
	"github.com/tokensentinel/sentinel/internal/store"
	"github.com/tokensentinel/sentinel/internal/telemetry"
	"github.com/tokensentinel/sentinel/internal/transport"
)

// Orchestrator owns every long-lived service and the goroutines that
// connect them. cmd/sentinel constructs one, starts it, and mounts its
// HTTP surface; nothing in here talks to flags or os.Args.
type Orchestrator struct {
	cfg *config.Config
	log *telemetry.Logger

	Metrics *telemetry.Metrics

	Adapters  *adapters.Manager
	Bus       *bus.Bus
	Validator *scoring.Validator
	HardGate  *gates.HardGate
	ExitGate  *gates.ExitGate
	Risk      *risk.Manager
	Sizer     *sizer.Sizer
	Snapshot  *snapshot.Service
	Executor  executor.Executor
	Monitor   *monitor.Monitor
	Positions *store.Positions
	GateAudit *store.GateAudit
	RiskState *store.RiskStateStore
	Telegram  *notify.Telegram
	Push      *notify.Push
	Hub       *transport.Hub
	Verifier  *auth.Verifier

	throttler *transport.PositionThrottler
}

// New builds every service from cfg, wiring each one's real constructor
// rather than a stub, but starts nothing yet: Run does that.
func New(cfg *config.Config) *Orchestrator {
	log := telemetry.New("orchestrator")
	reg := prometheus.NewRegistry()
	metrics := telemetry.NewMetrics(reg)

	positions := store.NewPositions()
	gateAudit := store.NewGateAudit()
	riskState := store.NewRiskStateStore()

	hardGate := gates.NewHardGate(cfg)
	exitGate := gates.NewExitGate(cfg)

	var momentum *snapshot.MomentumHelper
	if cfg.BinanceAPIKey != "" && cfg.BinanceAPISecret != "" {
		client := futures.NewClient(cfg.BinanceAPIKey, cfg.BinanceAPISecret)
		momentum = snapshot.NewMomentumHelper(client)
	}

	snap := snapshot.NewService(cfg.CacheTTL, cfg.ProviderRPS, cfg.ProviderBurst, metrics)

	validator := scoring.NewValidator(cfg, snap, hardGate, momentum)

	riskMgr := risk.NewManager(cfg, positions.Count)
	if rs := riskState.Load(); !rs.PausedUntil.IsZero() || rs.ConsecutiveLosses > 0 {
		riskMgr.Restore(rs.ConsecutiveLosses, rs.PausedUntil)
	}

	sz := sizer.New(cfg)

	// LiveExecutor needs a concrete venue swap call, which is out of scope;
	// every mode runs against ShadowExecutor. AUTO_BUY_ENABLED governs
	// whether handleDecision buys directly; SHADOW_MODE only sets
	// Position.IsShadow.
	var exec executor.Executor = executor.NewShadowExecutor()

	telegram := notify.NewTelegram(cfg.TelegramBotToken, cfg.TelegramChatID)
	push := notify.NewPush(cfg.FirebaseCredsFile)

	hub := transport.NewHub()
	throttler := transport.NewPositionThrottler(hub)

	mon := monitor.New(cfg, positions, snap, exec, telegram, push, riskMgr, throttler)

	var verifier *auth.Verifier
	if v, err := auth.NewVerifier(cfg.FirebaseCredsFile); err != nil {
		log.Warn("operator API auth disabled: %v", err)
	} else {
		verifier = v
	}

	mgr := adapters.NewManager()

	return &Orchestrator{
		cfg:       cfg,
		log:       log,
		Metrics:   metrics,
		Adapters:  mgr,
		Bus:       bus.New(cfg.BusCapacity, cfg.SourceDedupWindow, cfg.GlobalDedupWindow),
		Validator: validator,
		HardGate:  hardGate,
		ExitGate:  exitGate,
		Risk:      riskMgr,
		Sizer:     sz,
		Snapshot:  snap,
		Executor:  exec,
		Monitor:   mon,
		Positions: positions,
		GateAudit: gateAudit,
		RiskState: riskState,
		Telegram:  telegram,
		Push:      push,
		Hub:       hub,
		Verifier:  verifier,
		throttler: throttler,
	}
}

// RegisterProvider exposes the snapshot service's provider registration so
// cmd/sentinel can wire chain-specific providers without reaching into
// o.Snapshot directly.
func (o *Orchestrator) RegisterProvider(chain domain.Chain, p snapshot.Provider) {
	o.Snapshot.RegisterProvider(chain, p)
}

// RegisterAdapter adds an evidence source; call before Run.
func (o *Orchestrator) RegisterAdapter(a adapters.Adapter) {
	o.Adapters.Register(a)
}

// Run starts every background loop and blocks until ctx is cancelled,
// mirroring main()'s goroutine fan-out followed by a blocking listener.
func (o *Orchestrator) Run(ctx context.Context) {
	var wg sync.WaitGroup

	rawOut := make(chan domain.RawSignal, o.cfg.AdapterMaxQueue)

	wg.Add(1)
	go func() {
		defer wg.Done()
		// Start returns once every adapter has stopped on ctx, so no
		// sender remains when rawOut is closed.
		defer close(rawOut)
		o.Adapters.Start(ctx, rawOut)
	}()

	wg.Add(1)
	go func() {
		defer wg.Done()
		o.Bus.Run(ctx)
	}()

	// Adapters -> Bus
	wg.Add(1)
	go func() {
		defer wg.Done()
		for sig := range rawOut {
			select {
			case o.Bus.In() <- sig:
			case <-ctx.Done():
				return
			}
		}
	}()

	// Bus -> Validator
	wg.Add(1)
	go func() {
		defer wg.Done()
		for sig := range o.Bus.Out() {
			select {
			case o.Validator.In() <- sig:
			case <-ctx.Done():
				return
			}
		}
	}()

	wg.Add(1)
	go func() {
		defer wg.Done()
		o.Validator.Run(ctx)
	}()

	// Validator decisions -> risk/sizing/execution
	wg.Add(1)
	go func() {
		defer wg.Done()
		for dec := range o.Validator.Decisions() {
			o.handleDecision(ctx, dec)
		}
	}()

	wg.Add(1)
	go func() {
		defer wg.Done()
		o.Monitor.Run(ctx)
	}()

	// PositionThrottler.Start never returns, so it is not part of wg:
	// shutdown does not wait for it.
	go o.throttler.Start()

	if o.Push != nil {
		wg.Add(1)
		go func() {
			defer wg.Done()
			o.Push.StartWorker(ctx)
		}()
	}

	if o.Telegram != nil {
		go o.Telegram.Listen(o.onApprove, o.statusReport, o.fullReport, func() {})
	}

	wg.Add(1)
	go func() {
		defer wg.Done()
		o.persistRiskStateLoop(ctx)
	}()

	<-ctx.Done()
	o.log.Info("shutdown signal received, draining background loops")
	wg.Wait()
}

// handleDecision is the buy path, in this order: gate audit, open-position
// check, risk check, sizing, exit-liquidity check, operator approval
// request, execution, position creation and notification.
func (o *Orchestrator) handleDecision(ctx context.Context, dec scoring.Decision) {
	token := dec.Score.Token

	o.Metrics.GateVerdicts.WithLabelValues("hard_gate", string(dec.HardVerdict.Verdict)).Inc()
	o.GateAudit.Record(token, dec.HardVerdict)

	o.Hub.BroadcastDecision(token, domain.GateVerdict{
		Gate:      "validator",
		Verdict:   domain.VerdictPass,
		Reasons:   []string{string(dec.Score.Tier)},
		EvaluedAt: dec.Score.ScoredTime,
	})

	if o.Positions.HasOpenPosition(token) {
		o.log.Info("skipping %s: already holding an open position", token)
		return
	}

	decision := o.Risk.CanTrade(time.Now())
	if !decision.Allowed {
		o.Metrics.RiskDenials.WithLabelValues(decision.Rule).Inc()
		o.log.Info("risk manager denied %s: %s (%s)", token, decision.Reason, decision.Rule)
		return
	}

	sizeResult, ok := o.Sizer.Size(token.Chain, dec.Score.Tier)
	if !ok {
		o.log.Info("tier %s for %s never sizes into a position", dec.Score.Tier, token)
		return
	}
	plannedNative, _ := sizeResult.SizeNative.Float64()

	exitVerdict := o.ExitGate.Evaluate(dec.Snapshot, domain.Known(plannedNative))
	o.Metrics.GateVerdicts.WithLabelValues("exit_gate", string(exitVerdict.Verdict)).Inc()
	o.GateAudit.Record(token, exitVerdict)
	if exitVerdict.Verdict == domain.VerdictReject {
		o.log.Info("exit gate rejected %s: %v", token, exitVerdict.Reasons)
		return
	}

	if dec.Score.Tier == domain.TierMax && o.Telegram != nil {
		o.Telegram.RequestApproval(notify.ApprovalRequest{
			ID:         uuid.NewString(),
			Token:      token,
			Tier:       dec.Score.Tier,
			Total:      dec.Score.Total,
			Reason:     dec.Score.Reason,
			SizeNative: plannedNative,
		})
	}

	if !o.cfg.AutoBuyEnabled {
		o.log.Info("AUTO_BUY_ENABLED=false; %s (%s, size=%v) logged only, no order placed", token, dec.Score.Tier, sizeResult.SizeNative)
		return
	}

	fill, err := o.Executor.Buy(ctx, token, sizeResult.SizeNative)
	if err != nil {
		o.log.Error("buy failed for %s: %v", token, err)
		return
	}
	entryPrice, _ := dec.Snapshot.Price.Get()

	pos := &domain.Position{
		ID:               uuid.NewString(),
		Chain:            token.Chain,
		Token:            token,
		EntryTime:        time.Now(),
		EntryPrice:       entryPrice,
		EntrySizeNative:  plannedNative,
		Status:           domain.PositionOpen,
		CurrentPrice:     entryPrice,
		RemainingPercent: 1.0,
		HighWaterMark:    entryPrice,
		LastSignificant:  time.Now(),
		EntrySnapshot:    entrySnapshotFrom(dec.Snapshot),
		IsShadow:         o.cfg.ShadowMode,
	}
	o.Positions.Save(pos)
	o.Metrics.OpenPositions.Set(float64(o.Positions.Count()))

	o.log.Trade("opened %s tier=%s size=%v fill=%s", token, dec.Score.Tier, sizeResult.SizeNative, fill.TxRef)

	o.Hub.Broadcast(transport.PositionEvent{Type: "opened", Token: token.String(), Status: string(pos.Status)})

	if dec.Score.Tier == domain.TierMax && o.Push != nil {
		o.Push.NotifyMaxTierBuy(token, dec.Score.Total, plannedNative)
	}
}

func entrySnapshotFrom(snap domain.ChainSnapshot) domain.EntrySnapshot {
	top10, _ := snap.Top10Pct.Get()
	top1, _ := snap.Top1HolderPct.Get()
	liq, _ := snap.LiquidityUSD.Get()
	tg, _ := snap.TGAccel.Get()
	return domain.EntrySnapshot{
		Top10Pct:    top10,
		Top1Pct:     top1,
		LiquidityUS: liq,
		TGAccel:     tg,
	}
}

func (o *Orchestrator) onApprove(req notify.ApprovalRequest) {
	ctx := context.Background()
	fill, err := o.Executor.Buy(ctx, req.Token, decimal.NewFromFloat(req.SizeNative))
	if err != nil {
		o.log.Error("approved buy failed for %s: %v", req.Token, err)
		return
	}
	entryPrice, _ := fill.Price.Float64()
	pos := &domain.Position{
		ID:               uuid.NewString(),
		Chain:            req.Token.Chain,
		Token:            req.Token,
		EntryTime:        time.Now(),
		EntryPrice:       entryPrice,
		EntrySizeNative:  req.SizeNative,
		Status:           domain.PositionOpen,
		CurrentPrice:     entryPrice,
		RemainingPercent: 1.0,
		HighWaterMark:    entryPrice,
		LastSignificant:  time.Now(),
		IsShadow:         o.cfg.ShadowMode,
	}
	o.Positions.Save(pos)
	o.log.Trade("operator-approved buy %s fill=%s", req.Token, fill.TxRef)
}

func (o *Orchestrator) statusReport() string {
	losses, pausedUntil := o.Risk.State()
	return fmt.Sprintf("open positions: %d\nconsecutive losses: %d\npaused until: %s",
		o.Positions.Count(), losses, pausedUntil.Format(time.RFC3339))
}

func (o *Orchestrator) fullReport() string {
	rows := o.GateAudit.Recent(10)
	out := fmt.Sprintf("last %d gate verdicts:\n", len(rows))
	for _, r := range rows {
		out += fmt.Sprintf("  %s %s -> %s\n", r.Token, r.Gate, r.Verdict)
	}
	return out
}

// persistRiskStateLoop periodically checkpoints the risk manager's
// negative-feedback state so a restart doesn't forget an active pause,
// grounded in the teacher's startup restore of SafetyModeUntil.
func (o *Orchestrator) persistRiskStateLoop(ctx context.Context) {
	ticker := time.NewTicker(time.Minute)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			losses, pausedUntil := o.Risk.State()
			o.RiskState.Save(domain.RiskState{ConsecutiveLosses: losses, PausedUntil: pausedUntil})
		}
	}
}
