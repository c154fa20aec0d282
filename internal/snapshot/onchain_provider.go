package snapshot

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"sort"
	"strings"
	"time"

	"github.com/tokensentinel/sentinel/internal/domain"
	"github.com/tokensentinel/sentinel/internal/telemetry"
)

// holderEntry is one line of a provider's top-holder table.
type holderEntry struct {
	Address string  `json:"address"`
	Pct     float64 `json:"pct"`
}

// snapshotPayload is the on-chain aggregator's response shape for one
// token. Every field is a pointer/omitted-if-absent so a provider that
// doesn't know a given fact just leaves it out, matching ChainSnapshot's
// own Optional-everywhere contract (SPEC_FULL §4.3: "on failure that
// field is unknown, not fabricated").
type snapshotPayload struct {
	Symbol             *string       `json:"symbol"`
	Price              *float64      `json:"price"`
	LiquidityNative    *float64      `json:"liquidity_native"`
	LiquidityUSD       *float64      `json:"liquidity_usd"`
	MarketCapUSD       *float64      `json:"market_cap_usd"`
	TopHolders         []holderEntry `json:"top_holders"`
	HolderCount        *int          `json:"holder_count"`
	MintAuthority      *string       `json:"mint_authority"`
	FreezeAuthority    *string       `json:"freeze_authority"`
	LPState            *string       `json:"lp_state"`
	IsBondingCurve     bool          `json:"is_bonding_curve"`
	BondingCurveProg   *float64      `json:"bonding_curve_progress"`
	BuyTaxPct          *float64      `json:"buy_tax_pct"`
	SellTaxPct         *float64      `json:"sell_tax_pct"`
	TaxMutable         *bool         `json:"tax_mutable"`
	IsHoneypot         *bool         `json:"is_honeypot"`
	OwnerIsSafeType    *bool         `json:"owner_is_safe_type"`
	SellConstraintsBSC *bool         `json:"sell_constraints_bsc"`
	TGAccel            *float64      `json:"tg_accel"`
}

type quotePayload struct {
	SlippagePct *float64 `json:"slippage_pct"`
}

// OnChainProvider fetches a ChainSnapshot by polling a per-chain REST
// aggregator endpoint, grounded in the adapters package's HTTP-GET-plus-
// JSON-decode shape (internal/adapters/hot_board.go) rather than any
// chain-specific RPC SDK — the example pack carries no Solana or EVM
// client, only go-binance's futures client, which momentum.go already
// uses for its one legitimate purpose (klines).
type OnChainProvider struct {
	chain         domain.Chain
	name          string
	endpoint      string
	quoteEndpoint string
	excludeAddr   map[string]struct{}
	httpClient    *http.Client
	log           *telemetry.Logger
}

// NewSolanaProvider builds the Chain Snapshot provider for SOL. endpoint
// serves /{address} snapshot lookups; quoteEndpoint (optional, empty
// disables it) serves /{address}/quote?sell_native=N for the
// sell-slippage-at-20pct computation.
func NewSolanaProvider(endpoint, quoteEndpoint string, excludedAddresses []string) *OnChainProvider {
	return newOnChainProvider(domain.ChainSOL, "sol_onchain", endpoint, quoteEndpoint, excludedAddresses)
}

// NewBSCProvider is NewSolanaProvider's BSC counterpart; the two chains
// share an identical fetch/quote contract; only the chain-specific
// thresholds that consume the result (internal/gates) differ.
func NewBSCProvider(endpoint, quoteEndpoint string, excludedAddresses []string) *OnChainProvider {
	return newOnChainProvider(domain.ChainBSC, "bsc_onchain", endpoint, quoteEndpoint, excludedAddresses)
}

func newOnChainProvider(chain domain.Chain, name, endpoint, quoteEndpoint string, excludedAddresses []string) *OnChainProvider {
	excluded := make(map[string]struct{}, len(excludedAddresses))
	for _, a := range excludedAddresses {
		excluded[strings.ToLower(strings.TrimSpace(a))] = struct{}{}
	}
	return &OnChainProvider{
		chain:         chain,
		name:          name,
		endpoint:      strings.TrimRight(endpoint, "/"),
		quoteEndpoint: strings.TrimRight(quoteEndpoint, "/"),
		excludeAddr:   excluded,
		httpClient:    &http.Client{Timeout: 10 * time.Second},
		log:           telemetry.New("snapshot:" + name),
	}
}

func (p *OnChainProvider) Name() string { return p.name }

// Fetch implements Provider. Field population is best-effort: a decode
// failure on the whole payload is an error (the Service degrades the
// entire snapshot to unknown), but an individual missing field inside an
// otherwise-valid payload just stays unknown.
func (p *OnChainProvider) Fetch(ctx context.Context, token domain.TokenFingerprint, plannedPositionNative domain.Optional[float64]) (domain.ChainSnapshot, error) {
	payload, err := p.fetchPayload(ctx, token.Address)
	if err != nil {
		return domain.ChainSnapshot{}, err
	}

	snap := domain.ChainSnapshot{
		Token:          token,
		SnapshotTime:   time.Now(),
		IsBondingCurve: payload.IsBondingCurve,
	}

	if payload.Symbol != nil {
		snap.Symbol = domain.Known(*payload.Symbol)
	}
	if payload.Price != nil {
		snap.Price = domain.Known(*payload.Price)
	}
	if payload.LiquidityNative != nil {
		snap.LiquidityNat = domain.Known(*payload.LiquidityNative)
	}
	if payload.LiquidityUSD != nil {
		snap.LiquidityUSD = domain.Known(*payload.LiquidityUSD)
	}
	if payload.MarketCapUSD != nil {
		snap.MarketCapUSD = domain.Known(*payload.MarketCapUSD)
	}
	if payload.HolderCount != nil {
		snap.HolderCount = domain.Known(*payload.HolderCount)
	}
	if payload.BondingCurveProg != nil {
		snap.BondingCurveProg = domain.Known(*payload.BondingCurveProg)
	}
	if payload.BuyTaxPct != nil {
		snap.BuyTaxPct = domain.Known(*payload.BuyTaxPct)
	}
	if payload.SellTaxPct != nil {
		snap.SellTaxPct = domain.Known(*payload.SellTaxPct)
	}
	if payload.TaxMutable != nil {
		snap.TaxMutable = domain.Known(*payload.TaxMutable)
	}
	if payload.IsHoneypot != nil {
		snap.IsHoneypot = domain.Known(*payload.IsHoneypot)
	}
	if payload.OwnerIsSafeType != nil {
		snap.OwnerIsSafeType = domain.Known(*payload.OwnerIsSafeType)
	}
	if payload.SellConstraintsBSC != nil {
		snap.SellConstraintsBSC = domain.Known(*payload.SellConstraintsBSC)
	}
	if payload.TGAccel != nil {
		snap.TGAccel = domain.Known(*payload.TGAccel)
	}
	if state := authorityState(payload.MintAuthority); state != "" {
		snap.MintAuthority = domain.Known(state)
	}
	if state := authorityState(payload.FreezeAuthority); state != "" {
		snap.FreezeAuth = domain.Known(state)
	}
	if state := lpState(payload.LPState); state != "" {
		snap.LPState = domain.Known(state)
	}

	if top10, top1, ok := p.topHolderPcts(payload.TopHolders); ok {
		snap.Top10Pct = domain.Known(top10)
		snap.Top1HolderPct = domain.Known(top1)
	}

	if sellNative, ok := plannedPositionNative.Get(); ok && p.quoteEndpoint != "" {
		if slippage, ok := p.fetchSlippage(ctx, token.Address, sellNative*0.20); ok {
			snap.SlippageAt20Pct = domain.Known(slippage)
		}
	}

	return snap, nil
}

func (p *OnChainProvider) fetchPayload(ctx context.Context, address string) (*snapshotPayload, error) {
	target := fmt.Sprintf("%s/%s", p.endpoint, url.PathEscape(address))
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, target, nil)
	if err != nil {
		return nil, err
	}
	resp, err := p.httpClient.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("%s: unexpected status %d", p.name, resp.StatusCode)
	}
	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, err
	}
	var payload snapshotPayload
	if err := json.Unmarshal(body, &payload); err != nil {
		return nil, fmt.Errorf("%s: decode snapshot: %w", p.name, err)
	}
	return &payload, nil
}

// fetchSlippage quotes a synthetic sale of sellNative units and returns
// the reported slippage percentage, per SPEC_FULL §4.3's definition of
// sell_slippage_at_20pct.
func (p *OnChainProvider) fetchSlippage(ctx context.Context, address string, sellNative float64) (float64, bool) {
	target := fmt.Sprintf("%s/%s/quote?sell_native=%f", p.quoteEndpoint, url.PathEscape(address), sellNative)
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, target, nil)
	if err != nil {
		return 0, false
	}
	resp, err := p.httpClient.Do(req)
	if err != nil {
		p.log.Warn("slippage quote failed for %s: %v", address, err)
		return 0, false
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return 0, false
	}
	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return 0, false
	}
	var q quotePayload
	if err := json.Unmarshal(body, &q); err != nil || q.SlippagePct == nil {
		return 0, false
	}
	return *q.SlippagePct, true
}

// topHolderPcts sums the top-10 and single-largest holder percentages,
// excluding known DEX/curve/burn addresses per the caller-supplied
// exclusion set (SPEC_FULL §4.3: "this exclusion list is a configured
// set, not hardcoded logic").
func (p *OnChainProvider) topHolderPcts(holders []holderEntry) (top10, top1 float64, ok bool) {
	filtered := make([]holderEntry, 0, len(holders))
	for _, h := range holders {
		if _, excluded := p.excludeAddr[strings.ToLower(h.Address)]; excluded {
			continue
		}
		filtered = append(filtered, h)
	}
	if len(filtered) == 0 {
		return 0, 0, false
	}
	sort.Slice(filtered, func(i, j int) bool { return filtered[i].Pct > filtered[j].Pct })

	top1 = filtered[0].Pct
	n := len(filtered)
	if n > 10 {
		n = 10
	}
	for _, h := range filtered[:n] {
		top10 += h.Pct
	}
	return top10, top1, true
}

func authorityState(raw *string) domain.AuthorityState {
	if raw == nil {
		return ""
	}
	switch strings.ToLower(*raw) {
	case "enabled":
		return domain.AuthorityEnabled
	case "disabled", "revoked", "renounced":
		return domain.AuthorityDisabled
	default:
		return ""
	}
}

func lpState(raw *string) domain.LPState {
	if raw == nil {
		return ""
	}
	switch strings.ToLower(*raw) {
	case "burned":
		return domain.LPBurned
	case "locked":
		return domain.LPLocked
	case "unlocked":
		return domain.LPUnlocked
	default:
		return ""
	}
}
