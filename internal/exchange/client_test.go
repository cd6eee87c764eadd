package exchange

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"tradepulse/internal/market"
)

func testServer(t *testing.T, handler http.HandlerFunc) *Client {
	t.Helper()
	srv := httptest.NewServer(handler)
	t.Cleanup(srv.Close)
	return NewClient(srv.URL, Options{Timeout: time.Second, RatePerSecond: 1000, Burst: 1000})
}

func TestLatestPrice(t *testing.T) {
	client := testServer(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/api/v3/ticker/price", r.URL.Path)
		assert.Equal(t, "BTCUSDT", r.URL.Query().Get("symbol"))
		json.NewEncoder(w).Encode(map[string]string{"symbol": "BTCUSDT", "price": "64123.45"})
	})

	price, err := client.LatestPrice(context.Background(), "BTCUSDT")
	require.NoError(t, err)
	assert.Equal(t, 64123.45, price)
}

func TestLatestPriceMalformed(t *testing.T) {
	client := testServer(t, func(w http.ResponseWriter, r *http.Request) {
		json.NewEncoder(w).Encode(map[string]string{"symbol": "BTCUSDT", "price": "not-a-number"})
	})

	_, err := client.LatestPrice(context.Background(), "BTCUSDT")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "malformed price")
}

func TestBookTicker(t *testing.T) {
	client := testServer(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/api/v3/ticker/bookTicker", r.URL.Path)
		json.NewEncoder(w).Encode(map[string]string{"bidPrice": "99.5", "askPrice": "100.5"})
	})

	bid, ask, err := client.BookTicker(context.Background(), "BTCUSDT")
	require.NoError(t, err)
	assert.Equal(t, 99.5, bid)
	assert.Equal(t, 100.5, ask)
}

func TestCandles(t *testing.T) {
	client := testServer(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/api/v3/klines", r.URL.Path)
		assert.Equal(t, "1h", r.URL.Query().Get("interval"))
		assert.Equal(t, "2", r.URL.Query().Get("limit"))
		w.Write([]byte(`[
			[1709251200000, "100.0", "101.5", "99.2", "100.8", "1250.5", 1709254799999],
			[1709254800000, "100.8", "102.0", "100.1", "101.9", "980.2", 1709258399999]
		]`))
	})

	candles, err := client.Candles(context.Background(), "BTCUSDT", market.TF1h, 2)
	require.NoError(t, err)
	require.Len(t, candles, 2)

	first := candles[0]
	assert.Equal(t, time.UnixMilli(1709251200000).UTC(), first.Timestamp)
	assert.Equal(t, 100.0, first.Open)
	assert.Equal(t, 101.5, first.High)
	assert.Equal(t, 99.2, first.Low)
	assert.Equal(t, 100.8, first.Close)
	assert.Equal(t, 1250.5, first.Volume)
	assert.True(t, candles[0].Timestamp.Before(candles[1].Timestamp))
}

func TestCandlesBadRow(t *testing.T) {
	client := testServer(t, func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`[[1709251200000, "100.0"]]`))
	})

	_, err := client.Candles(context.Background(), "BTCUSDT", market.TF1h, 1)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "short kline row")
}

func TestServerErrorSurfacesStatus(t *testing.T) {
	client := testServer(t, func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "teapot", http.StatusTeapot)
	})

	_, err := client.LatestPrice(context.Background(), "BTCUSDT")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "418")
}

func TestBreakerOpensAfterConsecutiveFailures(t *testing.T) {
	client := testServer(t, func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "down", http.StatusBadGateway)
	})

	for i := 0; i < 5; i++ {
		_, err := client.LatestPrice(context.Background(), "BTCUSDT")
		require.Error(t, err)
	}
	_, err := client.LatestPrice(context.Background(), "BTCUSDT")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "circuit breaker is open")
}

func TestParseKline(t *testing.T) {
	var row []json.RawMessage
	require.NoError(t, json.Unmarshal([]byte(`[1709251200000, "1.5", "2.0", "1.0", "1.8", "42.0"]`), &row))

	c, err := parseKline(row)
	require.NoError(t, err)
	assert.Equal(t, 1.5, c.Open)
	assert.Equal(t, 42.0, c.Volume)
	require.NoError(t, c.Validate())
}
