package market

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestCandleValidate(t *testing.T) {
	ts := time.Date(2025, 6, 1, 0, 0, 0, 0, time.UTC)
	good := Candle{Timestamp: ts, Open: 100, High: 110, Low: 95, Close: 105, Volume: 10}
	assert.NoError(t, good.Validate())

	zero := good
	zero.Timestamp = time.Time{}
	assert.Error(t, zero.Validate())

	neg := good
	neg.Low = -1
	assert.Error(t, neg.Validate())

	inverted := good
	inverted.High, inverted.Low = 95, 110
	assert.Error(t, inverted.Validate())
}

func TestTimeframeDuration(t *testing.T) {
	assert.Equal(t, time.Hour, TF1h.Duration())
	assert.Equal(t, 4*time.Hour, TF4h.Duration())
	assert.Equal(t, time.Hour, Timeframe("bogus").Duration())
}

func TestBarsPerYear(t *testing.T) {
	assert.InDelta(t, 8760, TF1h.BarsPerYear(), 1e-9)
	assert.InDelta(t, 365, TF1d.BarsPerYear(), 1e-9)
}

func TestSnapshotSpreadPct(t *testing.T) {
	s := Snapshot{Bid: 49990, Ask: 50010}
	assert.InDelta(t, 0.04, s.SpreadPct(), 1e-6)

	assert.Zero(t, Snapshot{}.SpreadPct())
	assert.Zero(t, Snapshot{Bid: 100, Ask: 90}.SpreadPct())
}
