package telemetry

import (
	"github.com/prometheus/client_golang/prometheus"
)

// Metrics bundles the trading collectors registered against one
// registry, so parallel simulations can carry isolated instances.
type Metrics struct {
	Registry *prometheus.Registry

	TicksTotal      prometheus.Counter
	PositionsOpened prometheus.Counter
	PositionsClosed *prometheus.CounterVec
	EntriesRejected *prometheus.CounterVec
	KillSwitchTrips prometheus.Counter
	OpenPositions   prometheus.Gauge
	Capital         prometheus.Gauge
	DrawdownPct     prometheus.Gauge
}

// New builds and registers the collector set on a fresh registry.
func New() *Metrics {
	reg := prometheus.NewRegistry()

	m := &Metrics{
		Registry: reg,
		TicksTotal: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "tradepulse_ticks_total",
			Help: "Evaluation ticks processed.",
		}),
		PositionsOpened: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "tradepulse_positions_opened_total",
			Help: "Positions opened.",
		}),
		PositionsClosed: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "tradepulse_positions_closed_total",
			Help: "Positions closed by exit reason.",
		}, []string{"reason"}),
		EntriesRejected: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "tradepulse_entries_rejected_total",
			Help: "Entries rejected by the risk governor or sizer.",
		}, []string{"cause"}),
		KillSwitchTrips: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "tradepulse_kill_switch_trips_total",
			Help: "Kill switch activations.",
		}),
		OpenPositions: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "tradepulse_open_positions",
			Help: "Currently open positions.",
		}),
		Capital: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "tradepulse_capital",
			Help: "Realized account equity.",
		}),
		DrawdownPct: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "tradepulse_drawdown_pct",
			Help: "Current drawdown from peak capital, percent.",
		}),
	}

	reg.MustRegister(
		m.TicksTotal,
		m.PositionsOpened,
		m.PositionsClosed,
		m.EntriesRejected,
		m.KillSwitchTrips,
		m.OpenPositions,
		m.Capital,
		m.DrawdownPct,
	)
	return m
}
