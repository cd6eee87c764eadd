package data

import (
	"context"

	"github.com/rs/zerolog/log"

	"tradepulse/internal/market"
)

// Source is the upstream market-data provider the feed falls back to
// on cache misses.
type Source interface {
	LatestPrice(ctx context.Context, symbol string) (float64, error)
	Candles(ctx context.Context, symbol string, tf market.Timeframe, limit int) ([]market.Candle, error)
}

// Feed is a read-through cache over a market-data source. Cache
// failures degrade to the source; they never fail a read.
type Feed struct {
	source Source
	cache  *Cache
}

// NewFeed wraps source with cache. cache may be nil, in which case the
// feed is a passthrough.
func NewFeed(source Source, cache *Cache) *Feed {
	return &Feed{source: source, cache: cache}
}

// LatestPrice returns the cached price if fresh, otherwise fetches and
// caches it.
func (f *Feed) LatestPrice(ctx context.Context, symbol string) (float64, error) {
	if f.cache != nil {
		price, err := f.cache.Price(ctx, symbol)
		if err == nil {
			return price, nil
		}
		if !Miss(err) {
			log.Warn().Err(err).Str("symbol", symbol).Msg("price cache read failed")
		}
	}

	price, err := f.source.LatestPrice(ctx, symbol)
	if err != nil {
		return 0, err
	}
	if f.cache != nil {
		if err := f.cache.SetPrice(ctx, symbol, price); err != nil {
			log.Warn().Err(err).Str("symbol", symbol).Msg("price cache write failed")
		}
	}
	return price, nil
}

// Candles returns the cached series when present, otherwise fetches
// and caches it.
func (f *Feed) Candles(ctx context.Context, symbol string, tf market.Timeframe, limit int) ([]market.Candle, error) {
	if f.cache != nil {
		candles, err := f.cache.Candles(ctx, symbol, tf)
		if err == nil && len(candles) >= limit {
			return candles[len(candles)-limit:], nil
		}
		if err != nil && !Miss(err) {
			log.Warn().Err(err).Str("symbol", symbol).Msg("candle cache read failed")
		}
	}

	candles, err := f.source.Candles(ctx, symbol, tf, limit)
	if err != nil {
		return nil, err
	}
	if f.cache != nil {
		if err := f.cache.SetCandles(ctx, symbol, tf, candles); err != nil {
			log.Warn().Err(err).Str("symbol", symbol).Msg("candle cache write failed")
		}
	}
	return candles, nil
}
