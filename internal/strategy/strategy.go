package strategy

import (
	"fmt"
	"time"

	"tradepulse/internal/market"
)

// SignalKind is the discrete action a strategy proposes.
type SignalKind string

const (
	SignalBuy   SignalKind = "BUY"
	SignalSell  SignalKind = "SELL"
	SignalClose SignalKind = "CLOSE"
)

// Signal is an immutable evaluation record. It is emitted once per
// tick at most and persisted for audit even when not acted on.
type Signal struct {
	Timestamp  time.Time  `json:"timestamp"`
	Symbol     string     `json:"symbol"`
	Strategy   string     `json:"strategy"`
	Kind       SignalKind `json:"kind"`
	Price      float64    `json:"price"`
	Strength   float64    `json:"strength"` // 0..1 confidence
	Taken      bool       `json:"taken"`
	SkipReason string     `json:"skip_reason,omitempty"`
}

// Strategy produces zero or one Signal per evaluation of a candle
// window. Implementations must be stateless so the same instance can
// drive live ticks and backtests.
type Strategy interface {
	Name() string
	Evaluate(symbol string, candles []market.Candle) (*Signal, error)
}

// Params carries the indicator periods and thresholds shared by the
// built-in strategies.
type Params struct {
	SMAShortPeriod int     `yaml:"sma_short_period"`
	SMALongPeriod  int     `yaml:"sma_long_period"`
	RSIPeriod      int     `yaml:"rsi_period"`
	RSIOversold    float64 `yaml:"rsi_oversold"`
	RSIOverbought  float64 `yaml:"rsi_overbought"`
	BBPeriod       int     `yaml:"bb_period"`
	BBStdDev       float64 `yaml:"bb_std"`
	EMAFastPeriod  int     `yaml:"ema_fast_period"`
	EMASlowPeriod  int     `yaml:"ema_slow_period"`
}

// DefaultParams mirrors the stock tuning the strategies ship with.
func DefaultParams() Params {
	return Params{
		SMAShortPeriod: 20,
		SMALongPeriod:  50,
		RSIPeriod:      14,
		RSIOversold:    30,
		RSIOverbought:  70,
		BBPeriod:       20,
		BBStdDev:       2.0,
		EMAFastPeriod:  8,
		EMASlowPeriod:  21,
	}
}

// New returns the strategy registered under name.
func New(name string, params Params) (Strategy, error) {
	switch name {
	case "SMA_CROSS":
		return NewSMACross(params), nil
	case "RSI_BB":
		return NewRSIBB(params), nil
	case "EMA_SCALP":
		return NewEMAScalp(params), nil
	default:
		return nil, fmt.Errorf("unknown strategy: %s", name)
	}
}

func closes(candles []market.Candle) []float64 {
	out := make([]float64, len(candles))
	for i, c := range candles {
		out[i] = c.Close
	}
	return out
}
