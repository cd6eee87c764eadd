package backtest

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const sampleSeries = `
timeframe: 1h
symbols:
  BTCUSDT:
    - timestamp: 2025-06-01T00:00:00Z
      open: 100
      high: 101
      low: 99
      close: 100.5
      volume: 10
    - timestamp: 2025-06-01T01:00:00Z
      open: 100.5
      high: 102
      low: 100
      close: 101.5
      volume: 12
`

func writeSeries(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "series.yaml")
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
	return path
}

func TestLoadSeries(t *testing.T) {
	sf, err := LoadSeries(writeSeries(t, sampleSeries))
	require.NoError(t, err)

	assert.Equal(t, "1h", string(sf.Timeframe))
	require.Len(t, sf.Symbols["BTCUSDT"], 2)
	assert.InDelta(t, 100.5, sf.Symbols["BTCUSDT"][0].Close, 1e-9)
	assert.Equal(t, 2025, sf.Symbols["BTCUSDT"][1].Timestamp.Year())
}

func TestLoadSeriesEmptySymbols(t *testing.T) {
	_, err := LoadSeries(writeSeries(t, "timeframe: 1h\nsymbols: {}\n"))
	assert.ErrorContains(t, err, "no symbols")
}

func TestLoadSeriesInvalidCandle(t *testing.T) {
	bad := `
timeframe: 1h
symbols:
  BTCUSDT:
    - timestamp: 2025-06-01T00:00:00Z
      open: 100
      high: 90
      low: 99
      close: 100
      volume: 10
`
	_, err := LoadSeries(writeSeries(t, bad))
	assert.Error(t, err)
}
