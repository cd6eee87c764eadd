package risk

import (
	"fmt"
	"time"
)

// GovernorConfig holds the portfolio-level guardrail thresholds.
type GovernorConfig struct {
	MaxDrawdownPct       float64 `yaml:"max_drawdown_pct"`
	MaxConsecutiveLosses int     `yaml:"max_consecutive_losses"`
	MaxPositions         int     `yaml:"max_positions"`
	MaxExposurePct       float64 `yaml:"max_portfolio_exposure_pct"`
	EnableKillSwitch     bool    `yaml:"enable_kill_switch"`
}

// Governor gates every new position behind the kill switch and the
// per-symbol circuit breaker. It never mutates positions, only the
// account's halted flag and breaker state.
type Governor struct {
	cfg     GovernorConfig
	breaker *CircuitBreaker
}

// NewGovernor wires the guardrails around an optional circuit
// breaker; pass nil to disable anomaly checks.
func NewGovernor(cfg GovernorConfig, breaker *CircuitBreaker) *Governor {
	return &Governor{cfg: cfg, breaker: breaker}
}

// CheckKillSwitch evaluates the sticky halt conditions against the
// account. Once tripped, the halt survives until Account.ResetHalt.
func (g *Governor) CheckKillSwitch(acct *Account, now time.Time) {
	if !g.cfg.EnableKillSwitch || acct.Halted() {
		return
	}
	if dd := acct.DrawdownPct(); dd >= g.cfg.MaxDrawdownPct {
		acct.Halt(fmt.Sprintf("max drawdown exceeded: %.2f%% >= %.2f%%", dd, g.cfg.MaxDrawdownPct), now)
		return
	}
	if losses := acct.ConsecutiveLosses(); losses >= g.cfg.MaxConsecutiveLosses {
		acct.Halt(fmt.Sprintf("max consecutive losses exceeded: %d >= %d", losses, g.cfg.MaxConsecutiveLosses), now)
	}
}

// GateEntry decides whether a new position may open for the symbol
// this tick. Pure predicate over account and market snapshot; the
// caller reserves exposure separately.
func (g *Governor) GateEntry(acct *Account, symbol string, obs BreakerObservation) error {
	if acct.Halted() {
		return ErrTradingHalted
	}
	if g.breaker != nil {
		if tripped, reason := g.breaker.Check(symbol, obs); tripped {
			return fmt.Errorf("%w: %s", ErrCircuitBreakerActive, reason)
		}
	}
	return nil
}

// Config exposes the limits for the caller's Reserve step.
func (g *Governor) Config() GovernorConfig { return g.cfg }
