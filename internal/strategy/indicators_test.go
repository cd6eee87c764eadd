package strategy

import (
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"tradepulse/internal/market"
)

func TestSMA(t *testing.T) {
	out := SMA([]float64{1, 2, 3, 4, 5}, 3)
	assert.True(t, math.IsNaN(out[0]))
	assert.True(t, math.IsNaN(out[1]))
	assert.InDelta(t, 2, out[2], 1e-9)
	assert.InDelta(t, 3, out[3], 1e-9)
	assert.InDelta(t, 4, out[4], 1e-9)
}

func TestSMAShortInput(t *testing.T) {
	out := SMA([]float64{1, 2}, 3)
	for _, v := range out {
		assert.True(t, math.IsNaN(v))
	}
}

func TestEMASeededWithSMA(t *testing.T) {
	out := EMA([]float64{2, 4, 6, 8}, 3)
	assert.True(t, math.IsNaN(out[0]))
	assert.InDelta(t, 4, out[2], 1e-9) // seed = SMA(2,4,6)
	// alpha = 0.5: (8-4)*0.5 + 4
	assert.InDelta(t, 6, out[3], 1e-9)
}

func TestRSIExtremes(t *testing.T) {
	rising := RSI([]float64{1, 2, 3, 4, 5, 6}, 3)
	assert.InDelta(t, 100, rising[5], 1e-9)

	falling := RSI([]float64{6, 5, 4, 3, 2, 1}, 3)
	assert.InDelta(t, 0, falling[5], 1e-9)

	short := RSI([]float64{1, 2, 3}, 3)
	for _, v := range short {
		assert.True(t, math.IsNaN(v))
	}
}

func TestBollingerBands(t *testing.T) {
	values := []float64{10, 12, 14, 16}
	middle, upper, lower := Bollinger(values, 4, 2)
	require.InDelta(t, 13, middle[3], 1e-9)

	// Window stddev of {10,12,14,16} around 13 is sqrt(5).
	sd := math.Sqrt(5)
	assert.InDelta(t, 13+2*sd, upper[3], 1e-9)
	assert.InDelta(t, 13-2*sd, lower[3], 1e-9)
	assert.True(t, math.IsNaN(upper[2]))
}

func TestATR(t *testing.T) {
	highs := []float64{12, 13, 14, 15}
	lows := []float64{10, 11, 12, 13}
	closes := []float64{11, 12, 13, 14}
	out := ATR(highs, lows, closes, 2)

	assert.True(t, math.IsNaN(out[1]))
	// True range is 2 on every bar after the first.
	assert.InDelta(t, 2, out[2], 1e-9)
	assert.InDelta(t, 2, out[3], 1e-9)
}

func TestLatestATR(t *testing.T) {
	candles := []market.Candle{
		{High: 12, Low: 10, Close: 11},
		{High: 13, Low: 11, Close: 12},
		{High: 14, Low: 12, Close: 13},
		{High: 15, Low: 13, Close: 14},
	}
	assert.InDelta(t, 2, LatestATR(candles, 2), 1e-9)
}

func TestLatestATRShortHistory(t *testing.T) {
	candles := []market.Candle{
		{High: 12, Low: 10, Close: 11},
		{High: 13, Low: 11, Close: 12},
	}
	assert.Zero(t, LatestATR(candles, 2), "history shorter than the period yields no ATR")
	assert.Zero(t, LatestATR(nil, 3))
	assert.Zero(t, LatestATR(candles, 0))
}
