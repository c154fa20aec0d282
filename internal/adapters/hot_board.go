package adapters

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"time"

	"github.com/tokensentinel/sentinel/internal/domain"
	"github.com/tokensentinel/sentinel/internal/telemetry"
)

type hotBoardEntry struct {
	TokenAddress  string  `json:"token_address"`
	Chain         string  `json:"chain"`
	SignalCount   int     `json:"signal_count"`
	MaxPriceGain  float64 `json:"max_price_gain_pct"`
	PriceChange5m float64 `json:"price_change_5m"`
	PriceChange1h float64 `json:"price_change_1h"`
	Volume24h     float64 `json:"volume_24h"`
}

// HotBoardAdapter polls a curated hot-token board, grounded in the same
// polling shape as SmartMoneyAdapter but enriching different fields
// (signal_count / price-gain / volume), per SPEC_FULL §4.1's table.
type HotBoardAdapter struct {
	Endpoint     string
	PollInterval time.Duration
	httpClient   *http.Client
	log          *telemetry.Logger
}

func NewHotBoardAdapter(endpoint string, pollInterval time.Duration) *HotBoardAdapter {
	return &HotBoardAdapter{
		Endpoint:     endpoint,
		PollInterval: pollInterval,
		httpClient:   &http.Client{Timeout: 10 * time.Second},
		log:          telemetry.New("adapter:hot_board"),
	}
}

func (h *HotBoardAdapter) Name() string { return "hot_token_board" }

func (h *HotBoardAdapter) Start(ctx context.Context, out chan<- domain.RawSignal) {
	ticker := time.NewTicker(h.PollInterval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			h.pollOnce(ctx, out)
		}
	}
}

func (h *HotBoardAdapter) pollOnce(ctx context.Context, out chan<- domain.RawSignal) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, h.Endpoint, nil)
	if err != nil {
		h.log.Warn("request build failed: %v", err)
		return
	}
	resp, err := h.httpClient.Do(req)
	if err != nil {
		h.log.Warn("poll failed: %v", err)
		return
	}
	defer resp.Body.Close()
	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return
	}

	var entries []hotBoardEntry
	if err := json.Unmarshal(body, &entries); err != nil {
		return
	}

	now := time.Now()
	for _, e := range entries {
		if e.TokenAddress == "" {
			continue
		}
		sig := domain.RawSignal{
			SourceID:  h.Name(),
			Token:     domain.TokenFingerprint{Chain: domain.Chain(e.Chain), Address: e.TokenAddress},
			Timestamp: now,
		}
		if e.SignalCount > 0 {
			sig.SignalCount = domain.Known(e.SignalCount)
		}
		if e.MaxPriceGain != 0 {
			sig.MaxPriceGainPct = domain.Known(e.MaxPriceGain)
		}
		if e.PriceChange5m != 0 {
			sig.PriceChange5m = domain.Known(e.PriceChange5m)
		}
		if e.PriceChange1h != 0 {
			sig.PriceChange1h = domain.Known(e.PriceChange1h)
		}
		if e.Volume24h != 0 {
			sig.Volume24h = domain.Known(e.Volume24h)
		}

		select {
		case out <- sig:
		case <-ctx.Done():
			return
		default:
			h.log.Warn("output queue full, dropping signal for %s", e.TokenAddress)
		}
	}
}
