// Package adapters implements the source-adapter side of the pipeline:
// independent producers of domain.RawSignal, fanned together by
// internal/bus. The shape mirrors the teacher's Exchange interface
// (Start(out chan<-, ...)), generalized from "one exchange, one trade
// stream" to "one vendor, one RawSignal stream".
package adapters

import (
	"context"

	"github.com/tokensentinel/sentinel/internal/domain"
)

// Adapter is the open-ended capability every source implements. New
// vendors register by implementing this interface; per-vendor quirks stay
// inside the adapter and are normalized at the boundary rather than
// modeled as a subclass hierarchy (SPEC_FULL §9).
type Adapter interface {
	// Name identifies the adapter for logging/metrics.
	Name() string
	// Start begins emitting RawSignals onto out until ctx is cancelled.
	// Start must not block past ctx cancellation, and must never close
	// out on a transient vendor error — only ctx cancellation closes it.
	Start(ctx context.Context, out chan<- domain.RawSignal)
}
