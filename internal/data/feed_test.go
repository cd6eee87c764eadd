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

type fakeSource struct {
	price       float64
	candles     []market.Candle
	err         error
	priceCalls  int
	candleCalls int
}

func (f *fakeSource) LatestPrice(_ context.Context, _ string) (float64, error) {
	f.priceCalls++
	return f.price, f.err
}

func (f *fakeSource) Candles(_ context.Context, _ string, _ market.Timeframe, _ int) ([]market.Candle, error) {
	f.candleCalls++
	return f.candles, f.err
}

func TestFeedPassthroughWithoutCache(t *testing.T) {
	src := &fakeSource{price: 50000}
	feed := NewFeed(src, nil)

	price, err := feed.LatestPrice(context.Background(), "BTCUSDT")
	require.NoError(t, err)
	assert.Equal(t, 50000.0, price)
	assert.Equal(t, 1, src.priceCalls)
}

func TestFeedPriceCacheHitSkipsSource(t *testing.T) {
	db, mock := redismock.NewClientMock()
	src := &fakeSource{price: 50000}
	feed := NewFeed(src, NewCache(db, time.Minute, time.Second))

	mock.ExpectGet("tradepulse:price:BTCUSDT").SetVal("49999.5")
	price, err := feed.LatestPrice(context.Background(), "BTCUSDT")
	require.NoError(t, err)
	assert.Equal(t, 49999.5, price)
	assert.Zero(t, src.priceCalls)
}

func TestFeedPriceMissFetchesAndCaches(t *testing.T) {
	db, mock := redismock.NewClientMock()
	src := &fakeSource{price: 50000}
	feed := NewFeed(src, NewCache(db, time.Minute, time.Second))

	mock.ExpectGet("tradepulse:price:BTCUSDT").RedisNil()
	mock.ExpectSet("tradepulse:price:BTCUSDT", 50000.0, time.Second).SetVal("OK")

	price, err := feed.LatestPrice(context.Background(), "BTCUSDT")
	require.NoError(t, err)
	assert.Equal(t, 50000.0, price)
	assert.Equal(t, 1, src.priceCalls)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestFeedDegradesOnCacheFailure(t *testing.T) {
	db, mock := redismock.NewClientMock()
	src := &fakeSource{price: 50000}
	feed := NewFeed(src, NewCache(db, time.Minute, time.Second))

	mock.ExpectGet("tradepulse:price:BTCUSDT").SetErr(errors.New("connection refused"))
	mock.ExpectSet("tradepulse:price:BTCUSDT", 50000.0, time.Second).SetErr(errors.New("connection refused"))

	price, err := feed.LatestPrice(context.Background(), "BTCUSDT")
	require.NoError(t, err, "cache outages never fail a read")
	assert.Equal(t, 50000.0, price)
	assert.Equal(t, 1, src.priceCalls)
}

func TestFeedPropagatesSourceError(t *testing.T) {
	src := &fakeSource{err: errors.New("upstream down")}
	feed := NewFeed(src, nil)

	_, err := feed.LatestPrice(context.Background(), "BTCUSDT")
	require.Error(t, err)
	_, err = feed.Candles(context.Background(), "BTCUSDT", market.TF1h, 10)
	require.Error(t, err)
}

func TestFeedCandlesServedFromCache(t *testing.T) {
	db, mock := redismock.NewClientMock()
	src := &fakeSource{}
	feed := NewFeed(src, NewCache(db, time.Minute, time.Second))

	cached := testCandles()
	raw, err := json.Marshal(cached)
	require.NoError(t, err)

	mock.ExpectGet("tradepulse:candles:BTCUSDT:1h").SetVal(string(raw))
	got, err := feed.Candles(context.Background(), "BTCUSDT", market.TF1h, 1)
	require.NoError(t, err)
	require.Len(t, got, 1, "cache serves the requested tail")
	assert.Equal(t, cached[1], got[0])
	assert.Zero(t, src.candleCalls)
}

func TestFeedCandlesTooShortRefetches(t *testing.T) {
	db, mock := redismock.NewClientMock()
	fresh := testCandles()
	src := &fakeSource{candles: fresh}
	feed := NewFeed(src, NewCache(db, time.Minute, time.Second))

	cached := fresh[:1]
	rawCached, err := json.Marshal(cached)
	require.NoError(t, err)
	rawFresh, err := json.Marshal(fresh)
	require.NoError(t, err)

	mock.ExpectGet("tradepulse:candles:BTCUSDT:1h").SetVal(string(rawCached))
	mock.ExpectSet("tradepulse:candles:BTCUSDT:1h", rawFresh, time.Minute).SetVal("OK")

	got, err := feed.Candles(context.Background(), "BTCUSDT", market.TF1h, 2)
	require.NoError(t, err)
	assert.Equal(t, fresh, got)
	assert.Equal(t, 1, src.candleCalls)
	assert.NoError(t, mock.ExpectationsWereMet())
}
