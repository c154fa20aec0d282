package snapshot

import (
	"context"
	"math"
	"strconv"
	"strings"
	"time"

	"github.com/adshao/go-binance/v2/futures"

	"github.com/tokensentinel/sentinel/internal/telemetry"
)

// MomentumHelper reuses the teacher's EMA/RSI kline-based indicator
// calculations (trend_analyzer.go) as the Momentum axis's data source.
// go-binance/v2/futures is the only working technical-analysis client in
// the whole example pack, so it is kept narrowly for this purpose — see
// DESIGN.md's internal/snapshot entry. It is never used for order
// placement; that goes through internal/executor's venue-agnostic
// interface.
type MomentumHelper struct {
	client *futures.Client
	log    *telemetry.Logger
}

func NewMomentumHelper(client *futures.Client) *MomentumHelper {
	return &MomentumHelper{client: client, log: telemetry.New("snapshot:momentum")}
}

// normalizeSymbol mirrors trend_analyzer.go's NormalizeSymbol: Binance
// Futures quotes in USDT pairs, so a bare base asset needs the suffix.
func normalizeSymbol(symbol string) string {
	symbol = strings.ToUpper(symbol)
	if !strings.HasSuffix(symbol, "USDT") {
		return symbol + "USDT"
	}
	return symbol
}

// Velocity returns points-per-minute price change over the last 5 one-
// minute candles, the same slope measure as trend_analyzer.go's
// CalculateVelocity.
func (m *MomentumHelper) Velocity(ctx context.Context, symbol string) (float64, bool) {
	validSymbol := normalizeSymbol(symbol)
	klines, err := m.client.NewKlinesService().
		Symbol(validSymbol).
		Interval("1m").
		Limit(5).
		Do(ctx)
	if err != nil || len(klines) < 2 {
		return 0, false
	}
	start, _ := strconv.ParseFloat(klines[0].Close, 64)
	end, _ := strconv.ParseFloat(klines[len(klines)-1].Close, 64)
	return (end - start) / float64(len(klines)), true
}

// EMATrend reports whether EMA9 is above EMA21 on the given interval —
// the bullish/bearish test trend_analyzer.go's analyzeTimeframe performs,
// with one fail-safe retry preserved (vendor klines are flaky on cold
// symbols immediately after a fresh listing).
func (m *MomentumHelper) EMATrend(ctx context.Context, symbol, interval string) (bullish bool, ok bool) {
	validSymbol := normalizeSymbol(symbol)
	var klines []*futures.Kline
	var err error
	for attempt := 0; attempt < 2; attempt++ {
		klines, err = m.client.NewKlinesService().
			Symbol(validSymbol).
			Interval(interval).
			Limit(30).
			Do(ctx)
		if err == nil && len(klines) >= 25 {
			break
		}
		if attempt == 0 {
			select {
			case <-time.After(500 * time.Millisecond):
			case <-ctx.Done():
				return false, false
			}
		}
	}
	if err != nil || len(klines) < 25 {
		if err != nil && !strings.Contains(err.Error(), "-1121") {
			m.log.Warn("kline fetch failed for %s %s: %v", validSymbol, interval, err)
		}
		return false, false
	}

	prices := make([]float64, len(klines))
	for i, k := range klines {
		price, _ := strconv.ParseFloat(k.Close, 64)
		prices[i] = price
	}
	return calculateEMA(prices, 9) > calculateEMA(prices, 21), true
}

// RSI computes Wilder's RSI over `period` candles on `interval`, identical
// first-average formula to trend_analyzer.go's calculateRSI.
func (m *MomentumHelper) RSI(ctx context.Context, symbol, interval string, period int) (float64, bool) {
	validSymbol := normalizeSymbol(symbol)
	klines, err := m.client.NewKlinesService().
		Symbol(validSymbol).
		Interval(interval).
		Limit(period * 2).
		Do(ctx)
	if err != nil || len(klines) < period+1 {
		return 0, false
	}

	var gains, losses float64
	for i := 1; i <= period; i++ {
		curr, _ := strconv.ParseFloat(klines[i].Close, 64)
		prev, _ := strconv.ParseFloat(klines[i-1].Close, 64)
		change := curr - prev
		if change > 0 {
			gains += change
		} else {
			losses -= change
		}
	}
	avgGain := gains / float64(period)
	avgLoss := losses / float64(period)
	if avgLoss == 0 {
		return 100, true
	}
	rs := avgGain / avgLoss
	return 100 - (100 / (1 + rs)), true
}

// ATR computes the 14-period Average True Range, identical formula to
// trend_analyzer.go's CalculateATR.
func (m *MomentumHelper) ATR(ctx context.Context, symbol, interval string) (float64, bool) {
	validSymbol := normalizeSymbol(symbol)
	klines, err := m.client.NewKlinesService().
		Symbol(validSymbol).
		Interval(interval).
		Limit(15).
		Do(ctx)
	if err != nil || len(klines) < 15 {
		return 0, false
	}

	trSum := 0.0
	for i := 1; i < len(klines); i++ {
		high, _ := strconv.ParseFloat(klines[i].High, 64)
		low, _ := strconv.ParseFloat(klines[i].Low, 64)
		prevClose, _ := strconv.ParseFloat(klines[i-1].Close, 64)
		tr1 := high - low
		tr2 := math.Abs(high - prevClose)
		tr3 := math.Abs(low - prevClose)
		trSum += math.Max(tr1, math.Max(tr2, tr3))
	}
	return trSum / 14.0, true
}

// calculateEMA is the teacher's SMA-seeded iterative EMA helper, unchanged
// in shape (trend_analyzer.go's standalone calculateEMA).
func calculateEMA(prices []float64, period int) float64 {
	if len(prices) < period {
		return 0
	}
	k := 2.0 / float64(period+1)
	sum := 0.0
	for i := 0; i < period; i++ {
		sum += prices[i]
	}
	ema := sum / float64(period)
	for i := period; i < len(prices); i++ {
		ema = (prices[i] * k) + (ema * (1 - k))
	}
	return ema
}
