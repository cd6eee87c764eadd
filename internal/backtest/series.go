package backtest

import (
	"fmt"
	"os"

	"gopkg.in/yaml.v3"

	"tradepulse/internal/market"
)

// SeriesFile is the on-disk candle archive a backtest replays:
// per-symbol OHLCV sequences plus the timeframe they were sampled at.
type SeriesFile struct {
	Timeframe market.Timeframe           `yaml:"timeframe"`
	Symbols   map[string][]market.Candle `yaml:"symbols"`
}

// LoadSeries reads and validates a candle series file.
func LoadSeries(path string) (*SeriesFile, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read series file: %w", err)
	}

	var sf SeriesFile
	if err := yaml.Unmarshal(data, &sf); err != nil {
		return nil, fmt.Errorf("failed to parse series YAML: %w", err)
	}
	if len(sf.Symbols) == 0 {
		return nil, fmt.Errorf("series file %s has no symbols", path)
	}
	for symbol, candles := range sf.Symbols {
		if len(candles) == 0 {
			return nil, fmt.Errorf("symbol %s has no candles", symbol)
		}
		for i, c := range candles {
			if err := c.Validate(); err != nil {
				return nil, fmt.Errorf("symbol %s candle %d: %w", symbol, i, err)
			}
		}
	}
	return &sf, nil
}
