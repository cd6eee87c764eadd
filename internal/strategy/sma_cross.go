package strategy

import (
	"math"

	"github.com/rs/zerolog/log"

	"tradepulse/internal/market"
)

// SMACross signals on golden cross (BUY) and death cross (SELL) of a
// short and long simple moving average.
type SMACross struct {
	shortPeriod int
	longPeriod  int
}

func NewSMACross(params Params) *SMACross {
	return &SMACross{
		shortPeriod: params.SMAShortPeriod,
		longPeriod:  params.SMALongPeriod,
	}
}

func (s *SMACross) Name() string { return "SMA_CROSS" }

func (s *SMACross) Evaluate(symbol string, candles []market.Candle) (*Signal, error) {
	if len(candles) < s.longPeriod+1 {
		return nil, nil
	}

	prices := closes(candles)
	short := SMA(prices, s.shortPeriod)
	long := SMA(prices, s.longPeriod)

	last := len(prices) - 1
	if math.IsNaN(long[last]) || math.IsNaN(long[last-1]) {
		return nil, nil
	}

	prevAbove := short[last-1] > long[last-1]
	currAbove := short[last] > long[last]
	if prevAbove == currAbove {
		return nil, nil
	}

	latest := candles[last]
	sig := &Signal{
		Timestamp: latest.Timestamp,
		Symbol:    symbol,
		Strategy:  s.Name(),
		Price:     latest.Close,
		Strength:  crossStrength(short[last], long[last]),
	}
	if currAbove {
		sig.Kind = SignalBuy
		log.Info().Str("symbol", symbol).
			Float64("sma_short", short[last]).Float64("sma_long", long[last]).
			Msg("Golden cross detected")
	} else {
		sig.Kind = SignalSell
		log.Info().Str("symbol", symbol).
			Float64("sma_short", short[last]).Float64("sma_long", long[last]).
			Msg("Death cross detected")
	}
	return sig, nil
}

// crossStrength scales the separation of the two averages into a 0..1
// confidence, saturating at a 2% gap.
func crossStrength(short, long float64) float64 {
	if long == 0 {
		return 0
	}
	gap := math.Abs(short-long) / long * 100
	return math.Min(1.0, gap/2.0)
}
