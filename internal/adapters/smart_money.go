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

type smartMoneyEntry struct {
	TokenAddress     string  `json:"token_address"`
	Chain            string  `json:"chain"`
	SmartMoneyOnline int     `json:"smart_money_online"`
	SmartMoneyTotal  int     `json:"smart_money_total"`
	TokenTier        string  `json:"token_tier"`
	AIScore          float64 `json:"ai_score"`
	AINarrativeType  string  `json:"ai_narrative_type"`
}

// SmartMoneyAdapter polls a smart-wallet aggregation vendor on a ticker.
// Unlike ChannelListenerAdapter this is a plain HTTP client, grounded in
// the same "swallow transient errors, never terminate the stream" policy
// SPEC_FULL §4.1 requires of every adapter class.
type SmartMoneyAdapter struct {
	Endpoint     string
	PollInterval time.Duration
	httpClient   *http.Client
	log          *telemetry.Logger
}

func NewSmartMoneyAdapter(endpoint string, pollInterval time.Duration) *SmartMoneyAdapter {
	return &SmartMoneyAdapter{
		Endpoint:     endpoint,
		PollInterval: pollInterval,
		httpClient:   &http.Client{Timeout: 10 * time.Second},
		log:          telemetry.New("adapter:smart_money"),
	}
}

func (s *SmartMoneyAdapter) Name() string { return "smart_money_aggregator" }

func (s *SmartMoneyAdapter) Start(ctx context.Context, out chan<- domain.RawSignal) {
	ticker := time.NewTicker(s.PollInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			s.pollOnce(ctx, out)
		}
	}
}

func (s *SmartMoneyAdapter) pollOnce(ctx context.Context, out chan<- domain.RawSignal) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, s.Endpoint, nil)
	if err != nil {
		s.log.Warn("request build failed: %v", err)
		return
	}
	resp, err := s.httpClient.Do(req)
	if err != nil {
		s.log.Warn("poll failed: %v", err) // TransientExternal: swallowed
		return
	}
	defer resp.Body.Close()
	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return
	}

	var entries []smartMoneyEntry
	if err := json.Unmarshal(body, &entries); err != nil {
		return // MalformedPayload
	}

	now := time.Now()
	for _, e := range entries {
		if e.TokenAddress == "" {
			continue
		}
		sig := domain.RawSignal{
			SourceID:  s.Name(),
			Token:     domain.TokenFingerprint{Chain: domain.Chain(e.Chain), Address: e.TokenAddress},
			Timestamp: now,
		}
		if e.SmartMoneyOnline > 0 {
			sig.SmartMoneyOnline = domain.Known(e.SmartMoneyOnline)
		}
		if e.SmartMoneyTotal > 0 {
			sig.SmartMoneyTotal = domain.Known(e.SmartMoneyTotal)
		}
		if e.TokenTier != "" {
			sig.TokenTier = domain.Known(domain.TokenTier(e.TokenTier))
		}
		if e.AIScore > 0 {
			sig.AIScore = domain.Known(e.AIScore)
		}
		if e.AINarrativeType != "" {
			sig.AINarrativeType = domain.Known(e.AINarrativeType)
		}

		select {
		case out <- sig:
		case <-ctx.Done():
			return
		default:
			s.log.Warn("output queue full, dropping signal for %s", e.TokenAddress)
		}
	}
}
