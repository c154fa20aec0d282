package snapshot

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/tokensentinel/sentinel/internal/domain"
)

func TestOnChainProvider_FetchPopulatesKnownFields(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		json.NewEncoder(w).Encode(map[string]interface{}{
			"symbol":           "DOGEWIF",
			"price":            1.5,
			"liquidity_native": 200.0,
			"liquidity_usd":    40000.0,
			"holder_count":     120,
			"mint_authority":   "disabled",
			"freeze_authority": "disabled",
			"lp_state":         "burned",
			"top_holders": []map[string]interface{}{
				{"address": "BurnAddr111", "pct": 20.0},
				{"address": "Holder2", "pct": 8.0},
				{"address": "Holder3", "pct": 4.0},
			},
		})
	}))
	defer srv.Close()

	p := NewSolanaProvider(srv.URL, "", []string{"BurnAddr111"})
	tok := domain.TokenFingerprint{Chain: domain.ChainSOL, Address: "tok1"}

	snap, err := p.Fetch(context.Background(), tok, domain.Unknown[float64]())
	require.NoError(t, err)

	price, ok := snap.Price.Get()
	require.True(t, ok)
	require.Equal(t, 1.5, price)

	liq, ok := snap.LiquidityUSD.Get()
	require.True(t, ok)
	require.Equal(t, 40000.0, liq)

	top10, ok := snap.Top10Pct.Get()
	require.True(t, ok)
	require.Equal(t, 12.0, top10, "BurnAddr111 must be excluded from the concentration sum")

	top1, ok := snap.Top1HolderPct.Get()
	require.True(t, ok)
	require.Equal(t, 8.0, top1, "largest non-excluded holder")

	mint, ok := snap.MintAuthority.Get()
	require.True(t, ok)
	require.Equal(t, domain.AuthorityDisabled, mint)

	lp, ok := snap.LPState.Get()
	require.True(t, ok)
	require.Equal(t, domain.LPBurned, lp)
}

func TestOnChainProvider_MissingFieldsStayUnknown(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		json.NewEncoder(w).Encode(map[string]interface{}{
			"price": 2.0,
		})
	}))
	defer srv.Close()

	p := NewSolanaProvider(srv.URL, "", nil)
	tok := domain.TokenFingerprint{Chain: domain.ChainSOL, Address: "tok2"}

	snap, err := p.Fetch(context.Background(), tok, domain.Unknown[float64]())
	require.NoError(t, err)

	_, ok := snap.LiquidityUSD.Get()
	require.False(t, ok)
	_, ok = snap.Top10Pct.Get()
	require.False(t, ok)
	_, ok = snap.MintAuthority.Get()
	require.False(t, ok)
}

func TestOnChainProvider_QuotesSlippageWhenPlannedSizeKnown(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		json.NewEncoder(w).Encode(map[string]interface{}{"price": 1.0})
	}))
	defer srv.Close()
	quoteSrv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		json.NewEncoder(w).Encode(map[string]interface{}{"slippage_pct": 1.8})
	}))
	defer quoteSrv.Close()

	p := NewSolanaProvider(srv.URL, quoteSrv.URL, nil)
	tok := domain.TokenFingerprint{Chain: domain.ChainSOL, Address: "tok3"}

	snap, err := p.Fetch(context.Background(), tok, domain.Known(10.0))
	require.NoError(t, err)

	slip, ok := snap.SlippageAt20Pct.Get()
	require.True(t, ok)
	require.Equal(t, 1.8, slip)
}

func TestOnChainProvider_NoQuoteEndpointLeavesSlippageUnknown(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		json.NewEncoder(w).Encode(map[string]interface{}{"price": 1.0})
	}))
	defer srv.Close()

	p := NewSolanaProvider(srv.URL, "", nil)
	tok := domain.TokenFingerprint{Chain: domain.ChainSOL, Address: "tok4"}

	snap, err := p.Fetch(context.Background(), tok, domain.Known(10.0))
	require.NoError(t, err)

	_, ok := snap.SlippageAt20Pct.Get()
	require.False(t, ok, "without a quote endpoint slippage must stay unknown, not fabricated")
}

func TestOnChainProvider_NonOKStatusIsAnError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusInternalServerError)
	}))
	defer srv.Close()

	p := NewSolanaProvider(srv.URL, "", nil)
	tok := domain.TokenFingerprint{Chain: domain.ChainSOL, Address: "tok5"}

	_, err := p.Fetch(context.Background(), tok, domain.Unknown[float64]())
	require.Error(t, err)
}
