// Package bus fans independent adapter streams into one ordered stream of
// domain.RawSignal and enforces the two-window dedup policy from
// SPEC_FULL §4.2. The expiry bookkeeping is the teacher's
// LiquidationMonitor.cleanup in-place-slice trick (liquidation_monitor.go),
// generalized from "liquidation events per symbol" to "signal timestamps
// per dedup key".
package bus

import (
	"context"
	"sync"
	"time"

	"github.com/tokensentinel/sentinel/internal/domain"
	"github.com/tokensentinel/sentinel/internal/telemetry"
)

// Bus is the single-consumer fan-in point every adapter feeds.
type Bus struct {
	in  chan domain.RawSignal
	out chan domain.RawSignal

	mu sync.Mutex
	// perSourceSeen[token|source] -> last seen time, pruned lazily.
	perSourceSeen map[string]time.Time
	// globalSeen[token] -> last seen time, pruned lazily.
	globalSeen map[string]time.Time

	sourceWindow time.Duration
	globalWindow time.Duration

	log *telemetry.Logger
}

func New(capacity int, sourceWindow, globalWindow time.Duration) *Bus {
	return &Bus{
		in:            make(chan domain.RawSignal, capacity),
		out:           make(chan domain.RawSignal, capacity),
		perSourceSeen: make(map[string]time.Time),
		globalSeen:    make(map[string]time.Time),
		sourceWindow:  sourceWindow,
		globalWindow:  globalWindow,
		log:           telemetry.New("bus"),
	}
}

// In is the channel adapters (via the adapter Manager) write into.
func (b *Bus) In() chan<- domain.RawSignal { return b.in }

// Out is the deduplicated stream scoring workers read from.
func (b *Bus) Out() <-chan domain.RawSignal { return b.out }

// Run drains In, applies dedup, and forwards survivors to Out until ctx is
// cancelled. Per-adapter emission order into In is preserved through to
// Out because Run is single-threaded (SPEC_FULL §4.2 ordering guarantee).
func (b *Bus) Run(ctx context.Context) {
	defer close(b.out)
	pruneTicker := time.NewTicker(time.Minute)
	defer pruneTicker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-pruneTicker.C:
			b.prune()
		case sig, ok := <-b.in:
			if !ok {
				return
			}
			if b.admit(sig) {
				select {
				case b.out <- sig:
				case <-ctx.Done():
					return
				}
			}
		}
	}
}

// admit applies invariant I6: a RawSignal is processed by the Validator at
// most once per (chain, token, dedup_window). Two independent windows are
// checked: a per-source window (sourceWindow) and a cross-source window
// (globalWindow).
func (b *Bus) admit(sig domain.RawSignal) bool {
	b.mu.Lock()
	defer b.mu.Unlock()

	now := sig.Timestamp
	if now.IsZero() {
		now = time.Now()
	}

	sourceKey := sig.SourceID + "|" + sig.Token.String()
	if last, ok := b.perSourceSeen[sourceKey]; ok && now.Sub(last) < b.sourceWindow {
		return false
	}

	globalKey := sig.Token.String()
	if last, ok := b.globalSeen[globalKey]; ok && now.Sub(last) < b.globalWindow {
		return false
	}

	b.perSourceSeen[sourceKey] = now
	b.globalSeen[globalKey] = now
	return true
}

// prune drops expired bookkeeping entries, mirroring
// LiquidationMonitor.cleanup's in-place slice reuse, adapted to maps: we
// simply delete stale keys instead of filtering a slice.
func (b *Bus) prune() {
	b.mu.Lock()
	defer b.mu.Unlock()

	now := time.Now()
	for k, t := range b.perSourceSeen {
		if now.Sub(t) > b.sourceWindow {
			delete(b.perSourceSeen, k)
		}
	}
	for k, t := range b.globalSeen {
		if now.Sub(t) > b.globalWindow {
			delete(b.globalSeen, k)
		}
	}
}
