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

type marketDiscoveryEntry struct {
	TokenAddress string  `json:"token_address"`
	Chain        string  `json:"chain"`
	Price        float64 `json:"price"`
	LiquidityUSD float64 `json:"liquidity_usd"`
	MarketCapUSD float64 `json:"market_cap_usd"`
	Holders      int     `json:"holders"`
}

// MarketDiscoveryAdapter polls a general market-data discovery vendor for
// raw market_cap/liquidity/holder counts, the weakest-signal source class
// in SPEC_FULL §4.1's table (no mention/smart-money evidence of its own).
type MarketDiscoveryAdapter struct {
	Endpoint     string
	PollInterval time.Duration
	httpClient   *http.Client
	log          *telemetry.Logger
}

func NewMarketDiscoveryAdapter(endpoint string, pollInterval time.Duration) *MarketDiscoveryAdapter {
	return &MarketDiscoveryAdapter{
		Endpoint:     endpoint,
		PollInterval: pollInterval,
		httpClient:   &http.Client{Timeout: 10 * time.Second},
		log:          telemetry.New("adapter:market_discovery"),
	}
}

func (m *MarketDiscoveryAdapter) Name() string { return "market_discovery" }

func (m *MarketDiscoveryAdapter) Start(ctx context.Context, out chan<- domain.RawSignal) {
	ticker := time.NewTicker(m.PollInterval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			m.pollOnce(ctx, out)
		}
	}
}

func (m *MarketDiscoveryAdapter) pollOnce(ctx context.Context, out chan<- domain.RawSignal) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, m.Endpoint, nil)
	if err != nil {
		m.log.Warn("request build failed: %v", err)
		return
	}
	resp, err := m.httpClient.Do(req)
	if err != nil {
		m.log.Warn("poll failed: %v", err)
		return
	}
	defer resp.Body.Close()
	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return
	}

	var entries []marketDiscoveryEntry
	if err := json.Unmarshal(body, &entries); err != nil {
		return
	}

	now := time.Now()
	for _, e := range entries {
		if e.TokenAddress == "" {
			continue
		}
		sig := domain.RawSignal{
			SourceID:  m.Name(),
			Token:     domain.TokenFingerprint{Chain: domain.Chain(e.Chain), Address: e.TokenAddress},
			Timestamp: now,
		}
		if e.Price > 0 {
			sig.Price = domain.Known(e.Price)
		}
		if e.LiquidityUSD > 0 {
			sig.LiquidityUSD = domain.Known(e.LiquidityUSD)
		}
		if e.MarketCapUSD > 0 {
			sig.MarketCapUSD = domain.Known(e.MarketCapUSD)
		}
		if e.Holders > 0 {
			sig.Holders = domain.Known(e.Holders)
		}

		select {
		case out <- sig:
		case <-ctx.Done():
			return
		default:
			m.log.Warn("output queue full, dropping signal for %s", e.TokenAddress)
		}
	}
}
