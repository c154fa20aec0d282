package sizer

import (
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/require"

	"github.com/tokensentinel/sentinel/internal/config"
	"github.com/tokensentinel/sentinel/internal/domain"
)

func testConfig() *config.Config {
	return &config.Config{
		TotalCapitalSOL:    10,
		TotalCapitalBNB:    5,
		MaxPositionPercent: 0.02,
	}
}

func TestSizer_MaxTierReceivesFullCeiling(t *testing.T) {
	s := New(testConfig())
	res, ok := s.Size(domain.ChainSOL, domain.TierMax)
	require.True(t, ok)
	require.True(t, res.SizeNative.Equal(decimal.NewFromFloat(0.2)))
}

func TestSizer_SmallTierReceivesHalf(t *testing.T) {
	s := New(testConfig())
	res, ok := s.Size(domain.ChainSOL, domain.TierSmall)
	require.True(t, ok)
	require.True(t, res.SizeNative.Equal(decimal.NewFromFloat(0.1)))
}

func TestSizer_WatchTierNeverSizes(t *testing.T) {
	s := New(testConfig())
	_, ok := s.Size(domain.ChainSOL, domain.TierWatch)
	require.False(t, ok)
}

func TestSizer_UsesBNBCapitalOnBSC(t *testing.T) {
	s := New(testConfig())
	res, ok := s.Size(domain.ChainBSC, domain.TierMax)
	require.True(t, ok)
	require.True(t, res.SizeNative.Equal(decimal.NewFromFloat(0.1)))
}
