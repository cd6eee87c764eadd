package risk

import (
	"fmt"
	"sync"

	"github.com/rs/zerolog/log"
)

// BreakerConfig holds the anomaly multiples that trip the per-symbol
// circuit breaker.
type BreakerConfig struct {
	VolatilityMultiple float64 `yaml:"volatility_multiple"` // current vol > N× baseline
	VolumeFloor        float64 `yaml:"volume_floor"`        // current volume < N× baseline (0..1)
	MaxSpreadPct       float64 `yaml:"max_spread_pct"`      // bid/ask spread ceiling
	MinSamples         int     `yaml:"min_samples"`         // observations before checks engage
}

// DefaultBreakerConfig mirrors the stock thresholds: 5× volatility,
// 20% volume floor, 0.5% spread.
func DefaultBreakerConfig() BreakerConfig {
	return BreakerConfig{
		VolatilityMultiple: 5.0,
		VolumeFloor:        0.2,
		MaxSpreadPct:       0.5,
		MinSamples:         20,
	}
}

// BreakerObservation is one tick's market reading for a symbol.
type BreakerObservation struct {
	Volatility float64 // e.g. stddev of recent returns
	Volume     float64
	SpreadPct  float64
}

type baseline struct {
	volatility float64
	volume     float64
	samples    int
}

// CircuitBreaker pauses entries for a symbol while market conditions
// are anomalous relative to its rolling baseline. The trip is
// non-sticky: each tick re-evaluates from scratch.
type CircuitBreaker struct {
	mu        sync.Mutex
	cfg       BreakerConfig
	baselines map[string]*baseline
}

func NewCircuitBreaker(cfg BreakerConfig) *CircuitBreaker {
	return &CircuitBreaker{
		cfg:       cfg,
		baselines: make(map[string]*baseline),
	}
}

// Check folds the observation into the symbol's rolling baseline and
// reports whether entries should pause for this tick.
func (cb *CircuitBreaker) Check(symbol string, obs BreakerObservation) (bool, string) {
	cb.mu.Lock()
	defer cb.mu.Unlock()

	b, ok := cb.baselines[symbol]
	if !ok {
		b = &baseline{}
		cb.baselines[symbol] = b
	}

	tripped, reason := cb.evaluate(symbol, b, obs)

	// EWMA baseline update. Tripped ticks are excluded so an anomaly
	// cannot drag its own baseline toward itself.
	if !tripped {
		const alpha = 0.1
		if b.samples == 0 {
			b.volatility = obs.Volatility
			b.volume = obs.Volume
		} else {
			b.volatility += alpha * (obs.Volatility - b.volatility)
			b.volume += alpha * (obs.Volume - b.volume)
		}
		b.samples++
	}

	return tripped, reason
}

func (cb *CircuitBreaker) evaluate(symbol string, b *baseline, obs BreakerObservation) (bool, string) {
	if obs.SpreadPct > cb.cfg.MaxSpreadPct {
		reason := fmt.Sprintf("high spread: %.3f%% > %.3f%%", obs.SpreadPct, cb.cfg.MaxSpreadPct)
		log.Warn().Str("symbol", symbol).Msg("Circuit breaker: " + reason)
		return true, reason
	}

	if b.samples < cb.cfg.MinSamples {
		return false, ""
	}

	if b.volatility > 0 && obs.Volatility > b.volatility*cb.cfg.VolatilityMultiple {
		reason := fmt.Sprintf("extreme volatility: %.6f > %.1fx baseline %.6f",
			obs.Volatility, cb.cfg.VolatilityMultiple, b.volatility)
		log.Warn().Str("symbol", symbol).Msg("Circuit breaker: " + reason)
		return true, reason
	}

	if b.volume > 0 && obs.Volume < b.volume*cb.cfg.VolumeFloor {
		reason := fmt.Sprintf("low volume: %.2f < %.0f%% of baseline %.2f",
			obs.Volume, cb.cfg.VolumeFloor*100, b.volume)
		log.Warn().Str("symbol", symbol).Msg("Circuit breaker: " + reason)
		return true, reason
	}

	return false, ""
}
