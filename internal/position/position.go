package position

import (
	"math"
	"time"

	"github.com/google/uuid"

	"tradepulse/internal/market"
)

// Side is the direction of a position.
type Side int

const (
	Long Side = iota
	Short
)

func (s Side) String() string {
	if s == Short {
		return "SHORT"
	}
	return "LONG"
}

// Sign returns +1 for LONG and -1 for SHORT, the multiplier applied
// to price moves when computing PnL.
func (s Side) Sign() float64 {
	if s == Short {
		return -1
	}
	return 1
}

// ExitReason records why a position closed, with evaluation priority
// matching the declaration order.
type ExitReason int

const (
	NoExit ExitReason = iota
	StopLoss
	TrailingStop
	TakeProfit
	Manual
	SignalClose
	Timeout
)

func (er ExitReason) String() string {
	switch er {
	case StopLoss:
		return "stop_loss"
	case TrailingStop:
		return "trailing_stop"
	case TakeProfit:
		return "take_profit"
	case Manual:
		return "manual"
	case SignalClose:
		return "signal"
	case Timeout:
		return "timeout"
	default:
		return "no_exit"
	}
}

// Status tracks the single OPEN → CLOSED transition.
type Status int

const (
	StatusOpen Status = iota
	StatusClosed
)

func (s Status) String() string {
	if s == StatusClosed {
		return "CLOSED"
	}
	return "OPEN"
}

// TrailingConfig controls the trailing-stop ratchet.
type TrailingConfig struct {
	Enabled       bool    `yaml:"enabled"`
	ActivationPct float64 `yaml:"activation_pct"` // unrealized % that arms the trail
	DistancePct   float64 `yaml:"distance_pct"`   // callback from the high-water mark
}

// Position is capital committed to a symbol. Mutable while OPEN; the
// CLOSED transition happens exactly once and freezes a Trade.
type Position struct {
	ID         string    `json:"id"`
	Symbol     string    `json:"symbol"`
	Strategy   string    `json:"strategy"`
	Side       Side      `json:"side"`
	EntryPrice float64   `json:"entry_price"`
	EntryTime  time.Time `json:"entry_time"`
	Amount     float64   `json:"amount"`
	StopLoss   float64   `json:"stop_loss"`
	TakeProfit float64   `json:"take_profit"`
	EntryFees  float64   `json:"entry_fees"`
	Status     Status    `json:"status"`

	// Trailing state. HighWater is only meaningful once armed.
	TrailingArmed bool    `json:"trailing_armed"`
	HighWater     float64 `json:"high_water,omitempty"`
}

// Trade is the immutable record written when a position closes.
type Trade struct {
	ID         string     `json:"id"`
	Symbol     string     `json:"symbol"`
	Strategy   string     `json:"strategy"`
	Side       Side       `json:"side"`
	EntryPrice float64    `json:"entry_price"`
	EntryTime  time.Time  `json:"entry_time"`
	ExitPrice  float64    `json:"exit_price"`
	ExitTime   time.Time  `json:"exit_time"`
	Amount     float64    `json:"amount"`
	PnL        float64    `json:"pnl"`         // net of fees
	PnLPct     float64    `json:"pnl_percent"` // net PnL / entry notional
	Fees       float64    `json:"fees"`
	ExitReason ExitReason `json:"exit_reason"`
}

// New opens a position. Stop and take-profit must sit on the correct
// side of entry for the direction; callers derive them with the risk
// package helpers.
func New(symbol, strategyName string, side Side, entryPrice, amount, stopLoss, takeProfit float64, entryTime time.Time) *Position {
	return &Position{
		ID:         uuid.NewString(),
		Symbol:     symbol,
		Strategy:   strategyName,
		Side:       side,
		EntryPrice: entryPrice,
		EntryTime:  entryTime,
		Amount:     amount,
		StopLoss:   stopLoss,
		TakeProfit: takeProfit,
		Status:     StatusOpen,
	}
}

// Notional is the entry value of the position in quote currency.
func (p *Position) Notional() float64 {
	return p.EntryPrice * p.Amount
}

// UnrealizedPnL returns gross PnL and percent at the given price.
func (p *Position) UnrealizedPnL(price float64) (pnl, pct float64) {
	pnl = (price - p.EntryPrice) * p.Amount * p.Side.Sign()
	if notional := p.Notional(); notional > 0 {
		pct = pnl / notional * 100
	}
	return pnl, pct
}

// UpdateTrailing arms and ratchets the trailing stop. The stop only
// ever tightens: each candidate is taken only when it improves on the
// current stop for the position's side. Returns true when the stop
// moved.
func (p *Position) UpdateTrailing(price float64, cfg TrailingConfig) bool {
	if !cfg.Enabled || p.Status != StatusOpen {
		return false
	}

	if !p.TrailingArmed {
		_, pct := p.UnrealizedPnL(price)
		if pct < cfg.ActivationPct {
			return false
		}
		p.TrailingArmed = true
		p.HighWater = price
		return p.tighten(trailingStopFrom(price, p.Side, cfg.DistancePct))
	}

	if p.Side == Long {
		if price <= p.HighWater {
			return false
		}
		p.HighWater = price
	} else {
		if price >= p.HighWater {
			return false
		}
		p.HighWater = price
	}
	return p.tighten(trailingStopFrom(p.HighWater, p.Side, cfg.DistancePct))
}

func trailingStopFrom(highWater float64, side Side, distancePct float64) float64 {
	if side == Long {
		return highWater * (1 - distancePct/100)
	}
	return highWater * (1 + distancePct/100)
}

// tighten moves the stop only in the profitable direction.
func (p *Position) tighten(candidate float64) bool {
	if p.Side == Long {
		if candidate > p.StopLoss {
			p.StopLoss = candidate
			return true
		}
	} else {
		if p.StopLoss == 0 || candidate < p.StopLoss {
			p.StopLoss = candidate
			return true
		}
	}
	return false
}

// CheckExitPrice evaluates the stop and take-profit against a single
// tick price. Stop breach wins over take-profit. An armed trail turns
// a stop breach into a trailing_stop exit.
func (p *Position) CheckExitPrice(price float64) (ExitReason, bool) {
	if p.stopBreached(price) {
		if p.TrailingArmed {
			return TrailingStop, true
		}
		return StopLoss, true
	}
	if p.takeProfitBreached(price) {
		return TakeProfit, true
	}
	return NoExit, false
}

// CheckExitCandle evaluates exits against an intra-candle range.
// When both levels are touched within the same candle the stop fires,
// modeling worst-case execution, and the fill lands on the level
// itself.
func (p *Position) CheckExitCandle(c market.Candle) (ExitReason, float64, bool) {
	stopTouched := false
	tpTouched := false
	if p.Side == Long {
		stopTouched = p.StopLoss > 0 && c.Low <= p.StopLoss
		tpTouched = p.TakeProfit > 0 && c.High >= p.TakeProfit
	} else {
		stopTouched = p.StopLoss > 0 && c.High >= p.StopLoss
		tpTouched = p.TakeProfit > 0 && c.Low <= p.TakeProfit
	}

	if stopTouched {
		reason := StopLoss
		if p.TrailingArmed {
			reason = TrailingStop
		}
		return reason, p.StopLoss, true
	}
	if tpTouched {
		return TakeProfit, p.TakeProfit, true
	}
	return NoExit, 0, false
}

func (p *Position) stopBreached(price float64) bool {
	if p.StopLoss <= 0 {
		return false
	}
	if p.Side == Long {
		return price <= p.StopLoss
	}
	return price >= p.StopLoss
}

func (p *Position) takeProfitBreached(price float64) bool {
	if p.TakeProfit <= 0 {
		return false
	}
	if p.Side == Long {
		return price >= p.TakeProfit
	}
	return price <= p.TakeProfit
}

// Expired reports a timeout exit: position age past maxHold. A zero
// maxHold disables the check.
func (p *Position) Expired(now time.Time, maxHold time.Duration) bool {
	return maxHold > 0 && now.Sub(p.EntryTime) >= maxHold
}

// Close transitions to CLOSED and freezes the Trade. Exactly one
// Trade is produced per position; closing twice panics in tests via
// the status check upstream.
func (p *Position) Close(exitPrice float64, exitTime time.Time, reason ExitReason, fees float64) Trade {
	p.Status = StatusClosed
	gross, _ := p.UnrealizedPnL(exitPrice)
	net := gross - fees
	pct := 0.0
	if notional := p.Notional(); notional > 0 {
		pct = net / notional * 100
	}
	return Trade{
		ID:         p.ID,
		Symbol:     p.Symbol,
		Strategy:   p.Strategy,
		Side:       p.Side,
		EntryPrice: p.EntryPrice,
		EntryTime:  p.EntryTime,
		ExitPrice:  exitPrice,
		ExitTime:   exitTime,
		Amount:     p.Amount,
		PnL:        net,
		PnLPct:     pct,
		Fees:       fees,
		ExitReason: reason,
	}
}

// ValidPrice rejects the non-finite and non-positive prices that must
// never drive a state transition.
func ValidPrice(price float64) bool {
	return price > 0 && !math.IsNaN(price) && !math.IsInf(price, 0)
}
