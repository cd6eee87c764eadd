package telemetry

import (
	"testing"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewRegistersCollectors(t *testing.T) {
	m := New()
	m.TicksTotal.Inc()
	m.PositionsClosed.WithLabelValues("stop_loss").Inc()
	m.Capital.Set(9876.5)

	families, err := m.Registry.Gather()
	require.NoError(t, err)

	names := make(map[string]bool, len(families))
	for _, f := range families {
		names[f.GetName()] = true
	}
	for _, want := range []string{
		"tradepulse_ticks_total",
		"tradepulse_positions_opened_total",
		"tradepulse_positions_closed_total",
		"tradepulse_entries_rejected_total",
		"tradepulse_kill_switch_trips_total",
		"tradepulse_open_positions",
		"tradepulse_capital",
		"tradepulse_drawdown_pct",
	} {
		assert.True(t, names[want], want)
	}
	assert.Equal(t, 9876.5, testutil.ToFloat64(m.Capital))
}

func TestInstancesAreIsolated(t *testing.T) {
	a, b := New(), New()
	a.TicksTotal.Inc()
	assert.Equal(t, 1.0, testutil.ToFloat64(a.TicksTotal))
	assert.Equal(t, 0.0, testutil.ToFloat64(b.TicksTotal))
}
