package scoring

import (
	"container/heap"
	"context"
	"math"
	"sync"
	"time"

	"github.com/tokensentinel/sentinel/internal/config"
	"github.com/tokensentinel/sentinel/internal/domain"
	"github.com/tokensentinel/sentinel/internal/gates"
	"github.com/tokensentinel/sentinel/internal/snapshot"
	"github.com/tokensentinel/sentinel/internal/telemetry"
)

// nativeSymbol is the chain's native asset used for a coarse macro-trend
// modifier on the Momentum axis (e.g. a SOL-chain token inherits some of
// SOL's own trend), mirroring the teacher's trend-anchor guardrail in
// app_signal_distributor.go, which blocked signals that fought the macro
// trend rather than scoring purely on the token's own numbers.
var nativeSymbol = map[domain.Chain]string{
	domain.ChainSOL: "SOLUSDT",
	domain.ChainBSC: "BNBUSDT",
}

// Decision is the Validator's output for one candidate that reached the
// scored state.
type Decision struct {
	Score       domain.CompositeScore
	Snapshot    domain.ChainSnapshot
	HardVerdict domain.GateVerdict
}

// Validator runs the candidate state machine described in SPEC_FULL §4.5:
// one coordinator goroutine drives a priority queue of (fireAt,
// fingerprint); new evidence re-heapifies rather than spawning a
// per-candidate goroutine.
type Validator struct {
	cfg          *config.Config
	snapshotSvc  *snapshot.Service
	hardGate     *gates.HardGate
	momentum     *snapshot.MomentumHelper // optional; nil disables the macro modifier
	decisions    chan Decision

	mu         sync.Mutex
	candidates map[string]*candidate
	pq         candidateHeap

	in  chan domain.RawSignal
	log *telemetry.Logger
}

func NewValidator(cfg *config.Config, snapshotSvc *snapshot.Service, hardGate *gates.HardGate, momentum *snapshot.MomentumHelper) *Validator {
	return &Validator{
		cfg:         cfg,
		snapshotSvc: snapshotSvc,
		hardGate:    hardGate,
		momentum:    momentum,
		decisions:   make(chan Decision, 64),
		candidates:  make(map[string]*candidate),
		in:          make(chan domain.RawSignal, cfg.BusCapacity),
		log:         telemetry.New("validator"),
	}
}

// In is where the Signal Bus's deduplicated output is fed.
func (v *Validator) In() chan<- domain.RawSignal { return v.in }

// Decisions yields one Decision per candidate that reaches the scored
// state with tier != REJECT; a discarded candidate is never sent.
func (v *Validator) Decisions() <-chan Decision { return v.decisions }

// Run is the single coordinator goroutine: it merges new evidence into the
// candidate map/heap and fires scoring when a candidate's fireAt elapses.
func (v *Validator) Run(ctx context.Context) {
	defer close(v.decisions)
	timer := time.NewTimer(time.Hour)
	defer timer.Stop()

	resetTimer := func() {
		v.mu.Lock()
		defer v.mu.Unlock()
		if len(v.pq) == 0 {
			timer.Reset(time.Hour)
			return
		}
		d := time.Until(v.pq[0].fireAt)
		if d < 0 {
			d = 0
		}
		timer.Reset(d)
	}

	resetTimer()
	for {
		select {
		case <-ctx.Done():
			return
		case sig, ok := <-v.in:
			if !ok {
				return
			}
			v.ingest(sig)
			resetTimer()
		case <-timer.C:
			v.fireDue(ctx)
			resetTimer()
		}
	}
}

func (v *Validator) ingest(sig domain.RawSignal) {
	v.mu.Lock()
	defer v.mu.Unlock()

	key := sig.Token.String()
	c, exists := v.candidates[key]
	if !exists {
		c = newCandidate(sig, v.cfg.AggregationWindow)
		v.candidates[key] = c
		heap.Push(&v.pq, c)
		return
	}
	c.ingest(sig, v.cfg.AggregationWindow)
	v.pq.fix(c)
}

func (v *Validator) fireDue(ctx context.Context) {
	now := time.Now()
	var due []*candidate

	v.mu.Lock()
	for len(v.pq) > 0 && !v.pq[0].fireAt.After(now) {
		c := heap.Pop(&v.pq).(*candidate)
		delete(v.candidates, c.token.String())
		due = append(due, c)
	}
	v.mu.Unlock()

	for _, c := range due {
		v.score(ctx, c)
	}
}

// score implements SCORE_TIMEOUT handling: if scoring can't complete in
// time, the candidate is dropped with no partial action (SPEC_FULL §4.5
// failure semantics).
func (v *Validator) score(ctx context.Context, c *candidate) {
	scoreCtx, cancel := context.WithTimeout(ctx, v.cfg.ScoreTimeout)
	defer cancel()

	snap, err := v.snapshotSvc.GetSnapshot(scoreCtx, c.token, domain.Unknown[float64]())
	if err != nil {
		v.log.Warn("snapshot fetch failed during scoring for %s: %v", c.token, err)
	}
	if scoreCtx.Err() != nil {
		v.log.Warn("score_timeout for %s", c.token)
		return
	}

	hardVerdict := v.hardGate.Evaluate(snap)
	momentumRaw := v.computeMomentum(scoreCtx, c, snap)

	now := time.Now()
	axes := computeAxes(c, axisInputs{
		now:          now,
		signalExpiry: v.cfg.SignalExpiry,
		heatWindow:   v.cfg.HeatWindow,
		hardVerdict:  hardVerdict.Verdict,
		momentum:     momentumRaw,
	})

	total := 0.0
	for _, a := range axes {
		total += a.Weighted()
	}
	total += aggregationBoost(len(c.sourceSeen))
	total = clampTotal(math.Round(total))

	tier := tierFor(total)
	// Safety REJECT overrides the composite score regardless of total,
	// per SPEC_FULL §4.5's tie-break/conflict rule.
	reason := "scored"
	if hardVerdict.Verdict == domain.VerdictReject {
		tier = domain.TierReject
		reason = "hard_gate_reject"
	}

	score := domain.CompositeScore{
		Token:      c.token,
		Total:      total,
		Axes:       axes,
		Tier:       tier,
		Reason:     reason,
		ScoredTime: now,
	}

	if tier == domain.TierReject {
		return // discarded: terminal state, no decision emitted
	}

	select {
	case v.decisions <- Decision{Score: score, Snapshot: snap, HardVerdict: hardVerdict}:
	case <-ctx.Done():
	}
}

// computeMomentum blends the candidate's own reported price-change
// evidence with a coarse macro-trend read of the chain's native asset,
// grounded in the teacher's trend-anchor guardrail (app_signal_distributor.go)
// which penalized signals fighting the macro trend.
func (v *Validator) computeMomentum(ctx context.Context, c *candidate, snap domain.ChainSnapshot) domain.Optional[float64] {
	var ownChange float64
	haveOwn := false
	for _, ev := range c.evidence {
		if pc, ok := ev.PriceChange1h.Get(); ok {
			ownChange = pc
			haveOwn = true
		}
	}

	macroBullish, macroKnown := false, false
	if v.momentum != nil {
		if symbol, ok := nativeSymbol[c.token.Chain]; ok {
			if bullish, ok := v.momentum.EMATrend(ctx, symbol, "15m"); ok {
				macroBullish, macroKnown = bullish, true
			}
		}
	}

	if !haveOwn && !macroKnown {
		return domain.Unknown[float64]()
	}

	// normalize own percent-change into [-1, 1], clamped at ±20%
	normalizedOwn := 0.0
	if haveOwn {
		normalizedOwn = ownChange / 20.0
		if normalizedOwn > 1 {
			normalizedOwn = 1
		} else if normalizedOwn < -1 {
			normalizedOwn = -1
		}
	}

	result := normalizedOwn
	if macroKnown {
		macroSignal := -1.0
		if macroBullish {
			macroSignal = 1.0
		}
		if haveOwn {
			result = 0.7*normalizedOwn + 0.3*macroSignal
		} else {
			result = macroSignal
		}
	}
	return domain.Known(result)
}

func clampTotal(v float64) float64 {
	if v < 0 {
		return 0
	}
	if v > 100 {
		return 100
	}
	return v
}
