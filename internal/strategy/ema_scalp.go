package strategy

import (
	"math"

	"github.com/rs/zerolog/log"

	"tradepulse/internal/market"
)

const volumeSMAperiod = 20

// EMAScalp is a short-timeframe scalping strategy: fast/slow EMA
// crossover confirmed by a volume spike against the rolling average.
type EMAScalp struct {
	fastPeriod      int
	slowPeriod      int
	volumeThreshold float64
}

func NewEMAScalp(params Params) *EMAScalp {
	return &EMAScalp{
		fastPeriod:      params.EMAFastPeriod,
		slowPeriod:      params.EMASlowPeriod,
		volumeThreshold: 1.5,
	}
}

func (s *EMAScalp) Name() string { return "EMA_SCALP" }

func (s *EMAScalp) Evaluate(symbol string, candles []market.Candle) (*Signal, error) {
	if len(candles) < s.slowPeriod+2 {
		return nil, nil
	}

	prices := closes(candles)
	fast := EMA(prices, s.fastPeriod)
	slow := EMA(prices, s.slowPeriod)

	last := len(prices) - 1
	if math.IsNaN(slow[last]) || math.IsNaN(slow[last-1]) {
		return nil, nil
	}

	volumes := make([]float64, len(candles))
	for i, c := range candles {
		volumes[i] = c.Volume
	}
	volSMA := SMA(volumes, volumeSMAperiod)
	volumeRatio := 1.0
	if !math.IsNaN(volSMA[last]) && volSMA[last] > 0 {
		volumeRatio = volumes[last] / volSMA[last]
	}

	crossedUp := fast[last-1] <= slow[last-1] && fast[last] > slow[last]
	crossedDown := fast[last-1] >= slow[last-1] && fast[last] < slow[last]
	if !crossedUp && !crossedDown {
		return nil, nil
	}

	if volumeRatio < s.volumeThreshold {
		log.Debug().Str("symbol", symbol).Float64("volume_ratio", volumeRatio).
			Msg("EMA crossover without volume confirmation, skipping")
		return nil, nil
	}

	latest := candles[last]
	sig := &Signal{
		Timestamp: latest.Timestamp,
		Symbol:    symbol,
		Strategy:  s.Name(),
		Price:     latest.Close,
		Strength:  math.Min(1.0, volumeRatio/(s.volumeThreshold*2)),
	}
	if crossedUp {
		sig.Kind = SignalBuy
	} else {
		sig.Kind = SignalSell
	}
	log.Info().Str("symbol", symbol).Str("kind", string(sig.Kind)).
		Float64("price", sig.Price).Float64("volume_ratio", volumeRatio).
		Msg("EMA scalp crossover")
	return sig, nil
}
