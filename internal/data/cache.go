package data

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/go-redis/redis/v8"

	"tradepulse/internal/market"
)

// Cache is a Redis-backed hot cache for candles and last prices. It
// sits in front of the REST client so repeated strategy evaluations in
// one poll cycle do not refetch history.
type Cache struct {
	rdb       *redis.Client
	candleTTL time.Duration
	priceTTL  time.Duration
}

// NewCache wraps an existing Redis client.
func NewCache(rdb *redis.Client, candleTTL, priceTTL time.Duration) *Cache {
	if candleTTL <= 0 {
		candleTTL = 60 * time.Second
	}
	if priceTTL <= 0 {
		priceTTL = 5 * time.Second
	}
	return &Cache{rdb: rdb, candleTTL: candleTTL, priceTTL: priceTTL}
}

func candleKey(symbol string, tf market.Timeframe) string {
	return fmt.Sprintf("tradepulse:candles:%s:%s", symbol, tf)
}

func priceKey(symbol string) string {
	return fmt.Sprintf("tradepulse:price:%s", symbol)
}

// Candles returns the cached series for symbol/timeframe, or
// redis.Nil-wrapped miss.
func (c *Cache) Candles(ctx context.Context, symbol string, tf market.Timeframe) ([]market.Candle, error) {
	raw, err := c.rdb.Get(ctx, candleKey(symbol, tf)).Bytes()
	if err != nil {
		return nil, err
	}
	var candles []market.Candle
	if err := json.Unmarshal(raw, &candles); err != nil {
		return nil, fmt.Errorf("corrupt candle cache for %s: %w", symbol, err)
	}
	return candles, nil
}

// SetCandles stores a series under the candle TTL.
func (c *Cache) SetCandles(ctx context.Context, symbol string, tf market.Timeframe, candles []market.Candle) error {
	raw, err := json.Marshal(candles)
	if err != nil {
		return err
	}
	return c.rdb.Set(ctx, candleKey(symbol, tf), raw, c.candleTTL).Err()
}

// Price returns the cached last price.
func (c *Cache) Price(ctx context.Context, symbol string) (float64, error) {
	return c.rdb.Get(ctx, priceKey(symbol)).Float64()
}

// SetPrice stores the last price under the price TTL.
func (c *Cache) SetPrice(ctx context.Context, symbol string, price float64) error {
	return c.rdb.Set(ctx, priceKey(symbol), price, c.priceTTL).Err()
}

// Miss reports whether err is a plain cache miss rather than a real
// Redis failure.
func Miss(err error) bool {
	return err == redis.Nil
}
