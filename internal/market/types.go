package market

import (
	"fmt"
	"time"
)

// Timeframe identifies a candle interval.
type Timeframe string

const (
	TF5m  Timeframe = "5m"
	TF15m Timeframe = "15m"
	TF1h  Timeframe = "1h"
	TF4h  Timeframe = "4h"
	TF1d  Timeframe = "1d"
)

// Duration returns the wall-clock length of one candle.
func (tf Timeframe) Duration() time.Duration {
	switch tf {
	case TF5m:
		return 5 * time.Minute
	case TF15m:
		return 15 * time.Minute
	case TF1h:
		return time.Hour
	case TF4h:
		return 4 * time.Hour
	case TF1d:
		return 24 * time.Hour
	default:
		return time.Hour
	}
}

// BarsPerYear returns the annualization factor for return series
// sampled at this timeframe.
func (tf Timeframe) BarsPerYear() float64 {
	return float64(365*24*time.Hour) / float64(tf.Duration())
}

// Candle is a single OHLCV bar.
type Candle struct {
	Timestamp time.Time `json:"timestamp" yaml:"timestamp"`
	Open      float64   `json:"open" yaml:"open"`
	High      float64   `json:"high" yaml:"high"`
	Low       float64   `json:"low" yaml:"low"`
	Close     float64   `json:"close" yaml:"close"`
	Volume    float64   `json:"volume" yaml:"volume"`
}

// Validate rejects malformed bars before they reach the simulator.
func (c Candle) Validate() error {
	if c.Timestamp.IsZero() {
		return fmt.Errorf("candle has zero timestamp")
	}
	if c.Open <= 0 || c.High <= 0 || c.Low <= 0 || c.Close <= 0 {
		return fmt.Errorf("candle at %s has non-positive price", c.Timestamp.Format(time.RFC3339))
	}
	if c.High < c.Low {
		return fmt.Errorf("candle at %s has high %.8f < low %.8f", c.Timestamp.Format(time.RFC3339), c.High, c.Low)
	}
	return nil
}

// Snapshot is the market view for one symbol at one evaluation tick.
type Snapshot struct {
	Symbol    string    `json:"symbol"`
	Timestamp time.Time `json:"timestamp"`
	Price     float64   `json:"price"`
	Volume    float64   `json:"volume"`
	Bid       float64   `json:"bid"`
	Ask       float64   `json:"ask"`
	Candles   []Candle  `json:"-"`
}

// SpreadPct returns the bid/ask spread as a percentage of mid, or 0
// when quotes are missing.
func (s Snapshot) SpreadPct() float64 {
	if s.Bid <= 0 || s.Ask <= 0 || s.Ask < s.Bid {
		return 0
	}
	mid := (s.Bid + s.Ask) / 2
	return (s.Ask - s.Bid) / mid * 100
}
