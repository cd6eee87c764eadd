package data

import (
	"context"
	"encoding/json"
	"errors"
	"testing"
	"time"

	"github.com/go-redis/redismock/v8"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"tradepulse/internal/market"
)

func testCandles() []market.Candle {
	start := time.Date(2024, 3, 1, 0, 0, 0, 0, time.UTC)
	return []market.Candle{
		{Timestamp: start, Open: 100, High: 101, Low: 99, Close: 100.5, Volume: 1200},
		{Timestamp: start.Add(time.Hour), Open: 100.5, High: 102, Low: 100, Close: 101.8, Volume: 900},
	}
}

func TestCachePriceRoundTrip(t *testing.T) {
	db, mock := redismock.NewClientMock()
	cache := NewCache(db, time.Minute, 10*time.Second)

	mock.ExpectSet("tradepulse:price:BTCUSDT", 42.5, 10*time.Second).SetVal("OK")
	require.NoError(t, cache.SetPrice(context.Background(), "BTCUSDT", 42.5))

	mock.ExpectGet("tradepulse:price:BTCUSDT").SetVal("42.5")
	price, err := cache.Price(context.Background(), "BTCUSDT")
	require.NoError(t, err)
	assert.Equal(t, 42.5, price)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestCacheCandlesRoundTrip(t *testing.T) {
	db, mock := redismock.NewClientMock()
	cache := NewCache(db, 5*time.Minute, time.Second)
	candles := testCandles()
	raw, err := json.Marshal(candles)
	require.NoError(t, err)

	mock.ExpectSet("tradepulse:candles:BTCUSDT:1h", raw, 5*time.Minute).SetVal("OK")
	require.NoError(t, cache.SetCandles(context.Background(), "BTCUSDT", market.TF1h, candles))

	mock.ExpectGet("tradepulse:candles:BTCUSDT:1h").SetVal(string(raw))
	got, err := cache.Candles(context.Background(), "BTCUSDT", market.TF1h)
	require.NoError(t, err)
	assert.Equal(t, candles, got)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestCacheMiss(t *testing.T) {
	db, mock := redismock.NewClientMock()
	cache := NewCache(db, time.Minute, time.Second)

	mock.ExpectGet("tradepulse:price:ETHUSDT").RedisNil()
	_, err := cache.Price(context.Background(), "ETHUSDT")
	require.Error(t, err)
	assert.True(t, Miss(err))
	assert.False(t, Miss(errors.New("connection refused")))
}

func TestCacheCorruptPayload(t *testing.T) {
	db, mock := redismock.NewClientMock()
	cache := NewCache(db, time.Minute, time.Second)

	mock.ExpectGet("tradepulse:candles:BTCUSDT:1h").SetVal("{not json")
	_, err := cache.Candles(context.Background(), "BTCUSDT", market.TF1h)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "corrupt candle cache")
}

func TestCacheTTLDefaults(t *testing.T) {
	db, mock := redismock.NewClientMock()
	cache := NewCache(db, 0, 0)

	mock.ExpectSet("tradepulse:price:BTCUSDT", 10.0, 5*time.Second).SetVal("OK")
	require.NoError(t, cache.SetPrice(context.Background(), "BTCUSDT", 10.0))
	assert.NoError(t, mock.ExpectationsWereMet())
}
