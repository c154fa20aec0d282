package executor

import (
	"context"
	"strings"
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/require"

	"github.com/tokensentinel/sentinel/internal/domain"
)

func TestShadowExecutor_BuyProducesShadowTxRef(t *testing.T) {
	e := NewShadowExecutor()
	token := domain.TokenFingerprint{Chain: domain.ChainSOL, Address: "abc"}

	fill, err := e.Buy(context.Background(), token, decimal.NewFromFloat(0.1))
	require.NoError(t, err)
	require.True(t, strings.HasPrefix(fill.TxRef, "SHADOW_"))
	require.True(t, fill.SizeFilld.Equal(decimal.NewFromFloat(0.1)))
}

func TestShadowExecutor_SellProducesDistinctRefs(t *testing.T) {
	e := NewShadowExecutor()
	token := domain.TokenFingerprint{Chain: domain.ChainSOL, Address: "abc"}

	a, _ := e.Sell(context.Background(), token, decimal.NewFromFloat(0.1))
	b, _ := e.Sell(context.Background(), token, decimal.NewFromFloat(0.1))
	require.NotEqual(t, a.TxRef, b.TxRef)
}

func TestLiveExecutor_ErrorsWithoutWiring(t *testing.T) {
	e := NewLiveExecutor(nil)
	token := domain.TokenFingerprint{Chain: domain.ChainBSC, Address: "0xabc"}

	_, err := e.Buy(context.Background(), token, decimal.NewFromFloat(1))
	require.Error(t, err)
}

func TestLiveExecutor_DelegatesToInjectedVenueCall(t *testing.T) {
	called := false
	e := NewLiveExecutor(func(ctx context.Context, token domain.TokenFingerprint, sizeNative decimal.Decimal, side string) (Fill, error) {
		called = true
		require.Equal(t, "BUY", side)
		return Fill{TxRef: "LIVE_1"}, nil
	})

	token := domain.TokenFingerprint{Chain: domain.ChainBSC, Address: "0xabc"}
	fill, err := e.Buy(context.Background(), token, decimal.NewFromFloat(1))
	require.NoError(t, err)
	require.True(t, called)
	require.Equal(t, "LIVE_1", fill.TxRef)
}
