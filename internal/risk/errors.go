package risk

import "errors"

// Sentinel errors for the sizing and gating pipeline. All are
// recoverable by skipping the offending tick or symbol; none is fatal
// to the process.
var (
	ErrInvalidStopDistance   = errors.New("invalid stop distance: per-unit risk must be positive")
	ErrExposureLimitExceeded = errors.New("exposure limit exceeded: no remaining portfolio budget")
	ErrTradingHalted         = errors.New("trading halted: kill switch active")
	ErrInvalidMarketPrice    = errors.New("invalid market price")
	ErrInsufficientCapital   = errors.New("insufficient capital for position notional")
	ErrMaxPositionsReached   = errors.New("maximum concurrent positions reached")
	ErrCircuitBreakerActive  = errors.New("circuit breaker active for symbol")
)
