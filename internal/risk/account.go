package risk

import (
	"sync"
	"time"

	"github.com/rs/zerolog/log"
)

// Account is the process-wide equity aggregate shared across symbols.
// All mutation goes through its methods behind one mutex so that no
// two symbols can jointly exceed the exposure cap within a tick.
type Account struct {
	mu sync.Mutex

	initialCapital    float64
	capital           float64
	peakCapital       float64
	openNotional      float64
	openPositions     int
	consecutiveLosses int
	totalTrades       int
	winningTrades     int
	losingTrades      int
	halted            bool
	haltReason        string
	haltedAt          time.Time
}

// AccountSnapshot is a point-in-time copy, safe to hand to HTTP
// handlers and notifiers.
type AccountSnapshot struct {
	InitialCapital    float64   `json:"initial_capital"`
	Capital           float64   `json:"capital"`
	PeakCapital       float64   `json:"peak_capital"`
	OpenNotional      float64   `json:"open_notional"`
	OpenPositions     int       `json:"open_positions"`
	ConsecutiveLosses int       `json:"consecutive_losses"`
	TotalTrades       int       `json:"total_trades"`
	WinningTrades     int       `json:"winning_trades"`
	LosingTrades      int       `json:"losing_trades"`
	DrawdownPct       float64   `json:"drawdown_pct"`
	Halted            bool      `json:"halted"`
	HaltReason        string    `json:"halt_reason,omitempty"`
	HaltedAt          time.Time `json:"halted_at,omitempty"`
}

// NewAccount starts an account at the given capital.
func NewAccount(initialCapital float64) *Account {
	return &Account{
		initialCapital: initialCapital,
		capital:        initialCapital,
		peakCapital:    initialCapital,
	}
}

// Reserve books notional for a new position. Capital is not debited
// for spot sizing; only the exposure budget and position count are
// consumed. Returns an error when a limit would be breached.
func (a *Account) Reserve(notional float64, maxPositions int, maxExposurePct float64) error {
	a.mu.Lock()
	defer a.mu.Unlock()

	if a.halted {
		return ErrTradingHalted
	}
	if a.openPositions >= maxPositions {
		return ErrMaxPositionsReached
	}
	if notional > a.capital {
		return ErrInsufficientCapital
	}
	if a.openNotional+notional > maxExposurePct/100*a.capital {
		return ErrExposureLimitExceeded
	}

	a.openNotional += notional
	a.openPositions++
	return nil
}

// Release frees the notional of a closed or failed position.
func (a *Account) Release(notional float64) {
	a.mu.Lock()
	defer a.mu.Unlock()

	a.openNotional -= notional
	if a.openNotional < 0 {
		a.openNotional = 0
	}
	if a.openPositions > 0 {
		a.openPositions--
	}
}

// ApplyTrade settles a closed trade's realized PnL (net of fees) into
// capital and updates the streak counters that feed the kill switch.
func (a *Account) ApplyTrade(netPnL float64) {
	a.mu.Lock()
	defer a.mu.Unlock()

	a.capital += netPnL
	a.totalTrades++

	switch {
	case netPnL > 0:
		a.winningTrades++
		a.consecutiveLosses = 0
		if a.capital > a.peakCapital {
			a.peakCapital = a.capital
		}
	case netPnL < 0:
		a.losingTrades++
		a.consecutiveLosses++
	}

	log.Info().
		Float64("capital", a.capital).
		Float64("pnl", netPnL).
		Int("consecutive_losses", a.consecutiveLosses).
		Msg("Capital updated")
}

// DebitFees removes entry commission from capital without touching
// the trade counters.
func (a *Account) DebitFees(fees float64) {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.capital -= fees
}

// Halt sets the sticky kill-switch flag. Existing positions keep
// being managed; only new entries are refused.
func (a *Account) Halt(reason string, at time.Time) {
	a.mu.Lock()
	defer a.mu.Unlock()
	if a.halted {
		return
	}
	a.halted = true
	a.haltReason = reason
	a.haltedAt = at
	log.Error().Str("reason", reason).Msg("Kill switch activated, trading halted")
}

// ResetHalt clears the kill switch. Requires an explicit operator
// action; the flag never clears on its own.
func (a *Account) ResetHalt() {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.halted = false
	a.haltReason = ""
	a.haltedAt = time.Time{}
	log.Warn().Msg("Kill switch reset by operator")
}

// Halted reports whether the kill switch is active.
func (a *Account) Halted() bool {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.halted
}

// Capital returns realized equity.
func (a *Account) Capital() float64 {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.capital
}

// OpenNotional returns the committed notional across open positions.
func (a *Account) OpenNotional() float64 {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.openNotional
}

// DrawdownPct returns the current decline from peak capital as a
// percentage, never negative.
func (a *Account) DrawdownPct() float64 {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.drawdownLocked()
}

func (a *Account) drawdownLocked() float64 {
	if a.peakCapital <= 0 {
		return 0
	}
	dd := (a.peakCapital - a.capital) / a.peakCapital * 100
	if dd < 0 {
		return 0
	}
	return dd
}

// ConsecutiveLosses returns the current losing streak length.
func (a *Account) ConsecutiveLosses() int {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.consecutiveLosses
}

// Snapshot copies the full state for reporting.
func (a *Account) Snapshot() AccountSnapshot {
	a.mu.Lock()
	defer a.mu.Unlock()
	return AccountSnapshot{
		InitialCapital:    a.initialCapital,
		Capital:           a.capital,
		PeakCapital:       a.peakCapital,
		OpenNotional:      a.openNotional,
		OpenPositions:     a.openPositions,
		ConsecutiveLosses: a.consecutiveLosses,
		TotalTrades:       a.totalTrades,
		WinningTrades:     a.winningTrades,
		LosingTrades:      a.losingTrades,
		DrawdownPct:       a.drawdownLocked(),
		Halted:            a.halted,
		HaltReason:        a.haltReason,
		HaltedAt:          a.haltedAt,
	}
}
