package strategy

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"tradepulse/internal/market"
)

func candlesFromCloses(closes []float64, volumes []float64) []market.Candle {
	base := time.Date(2025, 6, 1, 0, 0, 0, 0, time.UTC)
	out := make([]market.Candle, len(closes))
	for i, c := range closes {
		vol := 100.0
		if volumes != nil {
			vol = volumes[i]
		}
		out[i] = market.Candle{
			Timestamp: base.Add(time.Duration(i) * time.Hour),
			Open:      c, High: c * 1.001, Low: c * 0.999, Close: c,
			Volume: vol,
		}
	}
	return out
}

func smallParams() Params {
	p := DefaultParams()
	p.SMAShortPeriod = 2
	p.SMALongPeriod = 3
	p.RSIPeriod = 3
	p.BBPeriod = 4
	p.BBStdDev = 1.0
	p.EMAFastPeriod = 2
	p.EMASlowPeriod = 3
	return p
}

func TestFactory(t *testing.T) {
	for _, name := range []string{"SMA_CROSS", "RSI_BB", "EMA_SCALP"} {
		s, err := New(name, DefaultParams())
		require.NoError(t, err)
		assert.Equal(t, name, s.Name())
	}

	_, err := New("MARTINGALE", DefaultParams())
	assert.Error(t, err)
}

func TestSMACrossGoldenCross(t *testing.T) {
	s := NewSMACross(smallParams())

	sig, err := s.Evaluate("BTCUSDT", candlesFromCloses([]float64{10, 10, 10, 10, 12}, nil))
	require.NoError(t, err)
	require.NotNil(t, sig)
	assert.Equal(t, SignalBuy, sig.Kind)
	assert.Equal(t, "SMA_CROSS", sig.Strategy)
	assert.InDelta(t, 12, sig.Price, 1e-9)
	assert.Greater(t, sig.Strength, 0.0)
}

func TestSMACrossDeathCross(t *testing.T) {
	s := NewSMACross(smallParams())

	sig, err := s.Evaluate("BTCUSDT", candlesFromCloses([]float64{10, 10, 12, 12, 9}, nil))
	require.NoError(t, err)
	require.NotNil(t, sig)
	assert.Equal(t, SignalSell, sig.Kind)
}

func TestSMACrossFlatMarket(t *testing.T) {
	s := NewSMACross(smallParams())
	sig, err := s.Evaluate("BTCUSDT", candlesFromCloses([]float64{10, 10, 10, 10, 10}, nil))
	require.NoError(t, err)
	assert.Nil(t, sig)
}

func TestSMACrossInsufficientHistory(t *testing.T) {
	s := NewSMACross(smallParams())
	sig, err := s.Evaluate("BTCUSDT", candlesFromCloses([]float64{10, 10, 10}, nil))
	require.NoError(t, err)
	assert.Nil(t, sig)
}

func TestRSIBBOversoldBuy(t *testing.T) {
	s := NewRSIBB(smallParams())

	// Monotone decline: RSI 0, last close below the lower band.
	sig, err := s.Evaluate("BTCUSDT", candlesFromCloses([]float64{100, 98, 96, 94, 80}, nil))
	require.NoError(t, err)
	require.NotNil(t, sig)
	assert.Equal(t, SignalBuy, sig.Kind)
	assert.GreaterOrEqual(t, sig.Strength, 0.5)
}

func TestRSIBBOverboughtSell(t *testing.T) {
	s := NewRSIBB(smallParams())

	sig, err := s.Evaluate("BTCUSDT", candlesFromCloses([]float64{100, 102, 104, 106, 120}, nil))
	require.NoError(t, err)
	require.NotNil(t, sig)
	assert.Equal(t, SignalSell, sig.Kind)
}

func TestRSIBBNeutral(t *testing.T) {
	s := NewRSIBB(smallParams())
	sig, err := s.Evaluate("BTCUSDT", candlesFromCloses([]float64{100, 101, 100, 101, 100}, nil))
	require.NoError(t, err)
	assert.Nil(t, sig)
}

func emaScalpSeries(lastClose, lastVolume float64) []market.Candle {
	closes := make([]float64, 25)
	volumes := make([]float64, 25)
	for i := range closes {
		closes[i] = 10
		volumes[i] = 100
	}
	closes[24] = lastClose
	volumes[24] = lastVolume
	return candlesFromCloses(closes, volumes)
}

func TestEMAScalpCrossWithVolume(t *testing.T) {
	s := NewEMAScalp(smallParams())

	sig, err := s.Evaluate("ETHUSDT", emaScalpSeries(12, 300))
	require.NoError(t, err)
	require.NotNil(t, sig)
	assert.Equal(t, SignalBuy, sig.Kind)
	assert.Equal(t, "EMA_SCALP", sig.Strategy)
}

func TestEMAScalpCrossWithoutVolumeSkipped(t *testing.T) {
	s := NewEMAScalp(smallParams())

	sig, err := s.Evaluate("ETHUSDT", emaScalpSeries(12, 100))
	require.NoError(t, err)
	assert.Nil(t, sig)
}
