package risk

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func warmBreaker(cb *CircuitBreaker, symbol string, n int, obs BreakerObservation) {
	for i := 0; i < n; i++ {
		cb.Check(symbol, obs)
	}
}

func TestBreakerWarmupSuppressesVolatilityCheck(t *testing.T) {
	cb := NewCircuitBreaker(DefaultBreakerConfig())

	// Before MinSamples observations only the spread check is armed,
	// so a huge volatility reading passes.
	tripped, _ := cb.Check("BTCUSDT", BreakerObservation{Volatility: 100, Volume: 1000})
	assert.False(t, tripped)
}

func TestBreakerVolatilitySpike(t *testing.T) {
	cb := NewCircuitBreaker(DefaultBreakerConfig())
	normal := BreakerObservation{Volatility: 0.01, Volume: 1000}
	warmBreaker(cb, "BTCUSDT", 25, normal)

	tripped, reason := cb.Check("BTCUSDT", BreakerObservation{Volatility: 0.06, Volume: 1000})
	assert.True(t, tripped)
	assert.Contains(t, reason, "volatility")

	// Non-sticky: the next normal tick passes.
	tripped, _ = cb.Check("BTCUSDT", normal)
	assert.False(t, tripped)
}

func TestBreakerVolumeCollapse(t *testing.T) {
	cb := NewCircuitBreaker(DefaultBreakerConfig())
	normal := BreakerObservation{Volatility: 0.01, Volume: 1000}
	warmBreaker(cb, "BTCUSDT", 25, normal)

	tripped, reason := cb.Check("BTCUSDT", BreakerObservation{Volatility: 0.01, Volume: 100})
	assert.True(t, tripped)
	assert.Contains(t, reason, "volume")
}

func TestBreakerSpreadCeiling(t *testing.T) {
	cb := NewCircuitBreaker(DefaultBreakerConfig())

	tripped, reason := cb.Check("BTCUSDT", BreakerObservation{SpreadPct: 0.6})
	assert.True(t, tripped)
	assert.Contains(t, reason, "spread")
}

func TestBreakerBaselinesArePerSymbol(t *testing.T) {
	cb := NewCircuitBreaker(DefaultBreakerConfig())
	warmBreaker(cb, "BTCUSDT", 25, BreakerObservation{Volatility: 0.01, Volume: 1000})

	// ETH has no baseline yet; its first spike is still in warmup.
	tripped, _ := cb.Check("ETHUSDT", BreakerObservation{Volatility: 0.5, Volume: 1})
	assert.False(t, tripped)

	tripped, _ = cb.Check("BTCUSDT", BreakerObservation{Volatility: 0.5, Volume: 1000})
	assert.True(t, tripped)
}

func TestBreakerTrippedTickExcludedFromBaseline(t *testing.T) {
	cb := NewCircuitBreaker(DefaultBreakerConfig())
	normal := BreakerObservation{Volatility: 0.01, Volume: 1000}
	warmBreaker(cb, "BTCUSDT", 25, normal)

	// Repeated spikes must keep tripping; if they fed the EWMA the
	// baseline would drift up and accept them.
	for i := 0; i < 10; i++ {
		tripped, _ := cb.Check("BTCUSDT", BreakerObservation{Volatility: 0.06, Volume: 1000})
		assert.True(t, tripped, "spike %d", i)
	}
}
