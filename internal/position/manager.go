package position

import (
	"sync"
	"time"

	"github.com/rs/zerolog/log"

	"tradepulse/internal/market"
	"tradepulse/internal/risk"
)

// LifecycleConfig controls per-position exit behavior.
type LifecycleConfig struct {
	Trailing TrailingConfig `yaml:"trailing"`
	MaxHold  time.Duration  `yaml:"max_hold"` // 0 disables the timeout exit
}

// ExitDecision is the outcome of one lifecycle tick when an exit
// condition matched. Exactly one fires per tick.
type ExitDecision struct {
	Reason    ExitReason
	ExitPrice float64
}

// Manager owns the OPEN → CLOSED state machine for every position,
// one per symbol. It never touches the account; callers settle
// exposure and capital from the Trades it emits.
type Manager struct {
	mu        sync.Mutex
	cfg       LifecycleConfig
	open      map[string]*Position
	closedLog []Trade
}

func NewManager(cfg LifecycleConfig) *Manager {
	return &Manager{
		cfg:  cfg,
		open: make(map[string]*Position),
	}
}

// Open registers a new position for its symbol.
func (m *Manager) Open(p *Position) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.open[p.Symbol] = p
	log.Info().
		Str("symbol", p.Symbol).
		Str("side", p.Side.String()).
		Float64("amount", p.Amount).
		Float64("entry", p.EntryPrice).
		Float64("stop_loss", p.StopLoss).
		Float64("take_profit", p.TakeProfit).
		Msg("Opened position")
}

// Has reports whether the symbol currently holds an open position.
func (m *Manager) Has(symbol string) bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	_, ok := m.open[symbol]
	return ok
}

// Get returns the open position for a symbol, or nil.
func (m *Manager) Get(symbol string) *Position {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.open[symbol]
}

// Count returns the number of open positions.
func (m *Manager) Count() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.open)
}

// OpenPositions returns a copy of the open positions for reporting.
func (m *Manager) OpenPositions() []Position {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]Position, 0, len(m.open))
	for _, p := range m.open {
		out = append(out, *p)
	}
	return out
}

// Symbols returns the symbols with open positions.
func (m *Manager) Symbols() []string {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]string, 0, len(m.open))
	for s := range m.open {
		out = append(out, s)
	}
	return out
}

// UnrealizedPnL sums gross open PnL at the given prices. Symbols
// without a price contribute zero.
func (m *Manager) UnrealizedPnL(prices map[string]float64) float64 {
	m.mu.Lock()
	defer m.mu.Unlock()
	var total float64
	for symbol, p := range m.open {
		if price, ok := prices[symbol]; ok && ValidPrice(price) {
			pnl, _ := p.UnrealizedPnL(price)
			total += pnl
		}
	}
	return total
}

// EvaluateTick runs one live lifecycle tick for a symbol: trailing
// ratchet first, then exit conditions in fixed priority order
// (stop > take-profit > external close > timeout). A bad price
// rejects the tick and leaves the position untouched.
func (m *Manager) EvaluateTick(symbol string, price float64, now time.Time, closeRequested ExitReason) (*ExitDecision, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	p, ok := m.open[symbol]
	if !ok {
		return nil, nil
	}
	if !ValidPrice(price) {
		return nil, risk.ErrInvalidMarketPrice
	}

	if p.UpdateTrailing(price, m.cfg.Trailing) {
		log.Info().Str("symbol", symbol).
			Float64("stop_loss", p.StopLoss).
			Float64("high_water", p.HighWater).
			Msg("Trailing stop ratcheted")
	}

	if reason, hit := p.CheckExitPrice(price); hit {
		return &ExitDecision{Reason: reason, ExitPrice: price}, nil
	}
	if closeRequested == Manual || closeRequested == SignalClose {
		return &ExitDecision{Reason: closeRequested, ExitPrice: price}, nil
	}
	if p.Expired(now, m.cfg.MaxHold) {
		return &ExitDecision{Reason: Timeout, ExitPrice: price}, nil
	}
	return nil, nil
}

// EvaluateCandle runs one backtest lifecycle tick against an
// intra-candle range. Exits are checked against the stop state as of
// candle open, the conservative reading; the trailing ratchet then
// advances from the close only when the position survives the bar.
func (m *Manager) EvaluateCandle(symbol string, c market.Candle, closeRequested ExitReason) (*ExitDecision, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	p, ok := m.open[symbol]
	if !ok {
		return nil, nil
	}
	if err := c.Validate(); err != nil {
		return nil, risk.ErrInvalidMarketPrice
	}

	if reason, exitPrice, hit := p.CheckExitCandle(c); hit {
		return &ExitDecision{Reason: reason, ExitPrice: exitPrice}, nil
	}
	if closeRequested == Manual || closeRequested == SignalClose {
		return &ExitDecision{Reason: closeRequested, ExitPrice: c.Close}, nil
	}
	if p.Expired(c.Timestamp, m.cfg.MaxHold) {
		return &ExitDecision{Reason: Timeout, ExitPrice: c.Close}, nil
	}

	p.UpdateTrailing(c.Close, m.cfg.Trailing)
	return nil, nil
}

// Close finalizes a decided exit: removes the position, freezes the
// Trade, and appends it to the closed log. Returns false when no
// position is open for the symbol.
func (m *Manager) Close(symbol string, exitPrice float64, exitTime time.Time, reason ExitReason, fees float64) (Trade, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()

	p, ok := m.open[symbol]
	if !ok {
		log.Warn().Str("symbol", symbol).Msg("Close requested for unknown position")
		return Trade{}, false
	}
	delete(m.open, symbol)

	trade := p.Close(exitPrice, exitTime, reason, fees)
	m.closedLog = append(m.closedLog, trade)

	log.Info().
		Str("symbol", symbol).
		Str("reason", reason.String()).
		Float64("exit", exitPrice).
		Float64("pnl", trade.PnL).
		Float64("pnl_pct", trade.PnLPct).
		Msg("Closed position")
	return trade, true
}

// ClosedTrades returns a copy of all trades closed so far, in close
// order.
func (m *Manager) ClosedTrades() []Trade {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]Trade, len(m.closedLog))
	copy(out, m.closedLog)
	return out
}
