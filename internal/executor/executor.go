// Package executor abstracts the venue-facing buy/sell call behind one
// interface, grounded in the teacher's ExecutionService.ExecuteTrade/
// RequestApproval approval-gated flow (execution_service.go) and
// PredatorEngine.executeTrade's tiered-signal-to-order translation
// (predator_engine.go). Wire-protocol detail for a concrete venue is out
// of scope (SPEC_FULL §1's non-goals); LiveExecutor is an explicit seam.
package executor

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/tokensentinel/sentinel/internal/domain"
	"github.com/tokensentinel/sentinel/internal/telemetry"
)

// Fill is the result of a buy or sell call.
type Fill struct {
	TxRef     string
	Price     decimal.Decimal
	SizeFilld decimal.Decimal
	FilledAt  time.Time
}

// Executor places and closes positions against a venue. One interface,
// independent concrete implementations per venue/mode — the same shape
// other_examples/1bb7f248_zhilong9966-Nofx's GateTrader uses for
// multi-exchange futures trading.
type Executor interface {
	Name() string
	Buy(ctx context.Context, token domain.TokenFingerprint, sizeNative decimal.Decimal) (Fill, error)
	Sell(ctx context.Context, token domain.TokenFingerprint, sizeNative decimal.Decimal) (Fill, error)
}

// ShadowExecutor produces synthetic fills without touching any venue,
// backing SPEC_FULL's SHADOW_MODE default. Grounded in the teacher's
// SafetyConfig.DryRun branch in ExecuteTrade, which logs the intended
// action and returns nil instead of placing an order.
type ShadowExecutor struct {
	log *telemetry.Logger
}

func NewShadowExecutor() *ShadowExecutor {
	return &ShadowExecutor{log: telemetry.New("shadow-executor")}
}

func (s *ShadowExecutor) Name() string { return "shadow" }

func (s *ShadowExecutor) Buy(ctx context.Context, token domain.TokenFingerprint, sizeNative decimal.Decimal) (Fill, error) {
	return s.syntheticFill(token, sizeNative, "BUY")
}

func (s *ShadowExecutor) Sell(ctx context.Context, token domain.TokenFingerprint, sizeNative decimal.Decimal) (Fill, error) {
	return s.syntheticFill(token, sizeNative, "SELL")
}

func (s *ShadowExecutor) syntheticFill(token domain.TokenFingerprint, sizeNative decimal.Decimal, side string) (Fill, error) {
	txRef := fmt.Sprintf("SHADOW_%s", uuid.NewString())
	s.log.Info("🛡️ [SHADOW] %s %s size=%s ref=%s", side, token, sizeNative, txRef)
	return Fill{
		TxRef:     txRef,
		SizeFilld: sizeNative,
		FilledAt:  time.Now(),
	}, nil
}

// LiveExecutor is the real-venue seam. Its swap/DEX call is intentionally
// thin: the wire protocol for placing a swap on a given chain's router is
// declared out of scope, the same way other_examples/1bb7f248's GateTrader
// leaves SetMarginMode as "Implementation deferred to verification phase".
type LiveExecutor struct {
	log   *telemetry.Logger
	place func(ctx context.Context, token domain.TokenFingerprint, sizeNative decimal.Decimal, side string) (Fill, error)
}

// NewLiveExecutor takes a venue-call function so a concrete DEX/aggregator
// client can be injected without this package depending on one directly.
func NewLiveExecutor(place func(ctx context.Context, token domain.TokenFingerprint, sizeNative decimal.Decimal, side string) (Fill, error)) *LiveExecutor {
	return &LiveExecutor{log: telemetry.New("live-executor"), place: place}
}

func (l *LiveExecutor) Name() string { return "live" }

func (l *LiveExecutor) Buy(ctx context.Context, token domain.TokenFingerprint, sizeNative decimal.Decimal) (Fill, error) {
	if l.place == nil {
		return Fill{}, domain.NewPipelineError(domain.KindFatal, fmt.Errorf("live executor has no venue call wired for %s", token))
	}
	return l.place(ctx, token, sizeNative, "BUY")
}

func (l *LiveExecutor) Sell(ctx context.Context, token domain.TokenFingerprint, sizeNative decimal.Decimal) (Fill, error) {
	if l.place == nil {
		return Fill{}, domain.NewPipelineError(domain.KindFatal, fmt.Errorf("live executor has no venue call wired for %s", token))
	}
	return l.place(ctx, token, sizeNative, "SELL")
}
