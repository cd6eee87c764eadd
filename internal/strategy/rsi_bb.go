package strategy

import (
	"math"

	"github.com/rs/zerolog/log"

	"tradepulse/internal/market"
)

// RSIBB is a mean-reversion strategy: BUY when RSI is oversold and
// price trades at or below the lower Bollinger band, SELL when RSI is
// overbought and price trades at or above the upper band.
type RSIBB struct {
	rsiPeriod  int
	oversold   float64
	overbought float64
	bbPeriod   int
	bbStdDev   float64
}

func NewRSIBB(params Params) *RSIBB {
	return &RSIBB{
		rsiPeriod:  params.RSIPeriod,
		oversold:   params.RSIOversold,
		overbought: params.RSIOverbought,
		bbPeriod:   params.BBPeriod,
		bbStdDev:   params.BBStdDev,
	}
}

func (s *RSIBB) Name() string { return "RSI_BB" }

func (s *RSIBB) Evaluate(symbol string, candles []market.Candle) (*Signal, error) {
	minBars := s.bbPeriod
	if s.rsiPeriod+1 > minBars {
		minBars = s.rsiPeriod + 1
	}
	if len(candles) < minBars {
		return nil, nil
	}

	prices := closes(candles)
	rsi := RSI(prices, s.rsiPeriod)
	_, upper, lower := Bollinger(prices, s.bbPeriod, s.bbStdDev)

	last := len(prices) - 1
	if math.IsNaN(rsi[last]) || math.IsNaN(lower[last]) {
		return nil, nil
	}

	latest := candles[last]
	price := latest.Close

	switch {
	case rsi[last] <= s.oversold && price <= lower[last]:
		log.Info().Str("symbol", symbol).Float64("rsi", rsi[last]).
			Float64("bb_lower", lower[last]).Msg("Oversold at lower band")
		return &Signal{
			Timestamp: latest.Timestamp,
			Symbol:    symbol,
			Strategy:  s.Name(),
			Kind:      SignalBuy,
			Price:     price,
			Strength:  reversionStrength(rsi[last], s.oversold, true),
		}, nil
	case rsi[last] >= s.overbought && price >= upper[last]:
		log.Info().Str("symbol", symbol).Float64("rsi", rsi[last]).
			Float64("bb_upper", upper[last]).Msg("Overbought at upper band")
		return &Signal{
			Timestamp: latest.Timestamp,
			Symbol:    symbol,
			Strategy:  s.Name(),
			Kind:      SignalSell,
			Price:     price,
			Strength:  reversionStrength(rsi[last], s.overbought, false),
		}, nil
	}
	return nil, nil
}

// reversionStrength maps how far RSI sits beyond its threshold into a
// 0..1 confidence, saturating 15 points past the threshold.
func reversionStrength(rsi, threshold float64, oversold bool) float64 {
	var depth float64
	if oversold {
		depth = threshold - rsi
	} else {
		depth = rsi - threshold
	}
	if depth < 0 {
		depth = 0
	}
	return math.Min(1.0, 0.5+depth/30.0)
}
