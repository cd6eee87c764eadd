package exchange

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"strconv"
	"time"

	cb "github.com/sony/gobreaker"
	"golang.org/x/time/rate"

	"tradepulse/internal/market"
)

// Client fetches market data from a Binance-compatible REST API. All
// calls run behind a rate limiter and a circuit breaker so a
// degraded venue cannot stall the control loop.
type Client struct {
	baseURL string
	http    *http.Client
	limiter *rate.Limiter
	breaker *cb.CircuitBreaker
}

// Options tune the client transport.
type Options struct {
	Timeout       time.Duration
	RatePerSecond float64
	Burst         int
}

// NewClient builds a market-data client for the given base URL.
func NewClient(baseURL string, opts Options) *Client {
	if opts.Timeout <= 0 {
		opts.Timeout = 10 * time.Second
	}
	if opts.RatePerSecond <= 0 {
		opts.RatePerSecond = 10
	}
	if opts.Burst <= 0 {
		opts.Burst = 20
	}

	st := cb.Settings{Name: "exchange-rest"}
	st.Interval = 60 * time.Second
	st.Timeout = 30 * time.Second
	st.ReadyToTrip = func(counts cb.Counts) bool {
		return counts.ConsecutiveFailures >= 5
	}

	return &Client{
		baseURL: baseURL,
		http:    &http.Client{Timeout: opts.Timeout},
		limiter: rate.NewLimiter(rate.Limit(opts.RatePerSecond), opts.Burst),
		breaker: cb.NewCircuitBreaker(st),
	}
}

// LatestPrice returns the last traded price for a symbol.
func (c *Client) LatestPrice(ctx context.Context, symbol string) (float64, error) {
	var payload struct {
		Symbol string `json:"symbol"`
		Price  string `json:"price"`
	}
	q := url.Values{"symbol": {symbol}}
	if err := c.getJSON(ctx, "/api/v3/ticker/price", q, &payload); err != nil {
		return 0, err
	}
	price, err := strconv.ParseFloat(payload.Price, 64)
	if err != nil {
		return 0, fmt.Errorf("malformed price %q for %s: %w", payload.Price, symbol, err)
	}
	return price, nil
}

// BookTicker returns the current best bid and ask.
func (c *Client) BookTicker(ctx context.Context, symbol string) (bid, ask float64, err error) {
	var payload struct {
		BidPrice string `json:"bidPrice"`
		AskPrice string `json:"askPrice"`
	}
	q := url.Values{"symbol": {symbol}}
	if err := c.getJSON(ctx, "/api/v3/ticker/bookTicker", q, &payload); err != nil {
		return 0, 0, err
	}
	bid, err = strconv.ParseFloat(payload.BidPrice, 64)
	if err != nil {
		return 0, 0, fmt.Errorf("malformed bid for %s: %w", symbol, err)
	}
	ask, err = strconv.ParseFloat(payload.AskPrice, 64)
	if err != nil {
		return 0, 0, fmt.Errorf("malformed ask for %s: %w", symbol, err)
	}
	return bid, ask, nil
}

// Candles returns up to limit klines, oldest first.
func (c *Client) Candles(ctx context.Context, symbol string, tf market.Timeframe, limit int) ([]market.Candle, error) {
	var raw [][]json.RawMessage
	q := url.Values{
		"symbol":   {symbol},
		"interval": {string(tf)},
		"limit":    {strconv.Itoa(limit)},
	}
	if err := c.getJSON(ctx, "/api/v3/klines", q, &raw); err != nil {
		return nil, err
	}

	candles := make([]market.Candle, 0, len(raw))
	for i, row := range raw {
		c, err := parseKline(row)
		if err != nil {
			return nil, fmt.Errorf("kline %d for %s: %w", i, symbol, err)
		}
		candles = append(candles, c)
	}
	return candles, nil
}

// parseKline decodes one Binance kline row:
// [openTimeMs, open, high, low, close, volume, ...] with prices as
// strings.
func parseKline(row []json.RawMessage) (market.Candle, error) {
	if len(row) < 6 {
		return market.Candle{}, fmt.Errorf("short kline row: %d fields", len(row))
	}
	var openMs int64
	if err := json.Unmarshal(row[0], &openMs); err != nil {
		return market.Candle{}, fmt.Errorf("open time: %w", err)
	}
	fields := make([]float64, 5)
	for i := 1; i <= 5; i++ {
		var s string
		if err := json.Unmarshal(row[i], &s); err != nil {
			return market.Candle{}, fmt.Errorf("field %d: %w", i, err)
		}
		v, err := strconv.ParseFloat(s, 64)
		if err != nil {
			return market.Candle{}, fmt.Errorf("field %d: %w", i, err)
		}
		fields[i-1] = v
	}
	return market.Candle{
		Timestamp: time.UnixMilli(openMs).UTC(),
		Open:      fields[0],
		High:      fields[1],
		Low:       fields[2],
		Close:     fields[3],
		Volume:    fields[4],
	}, nil
}

func (c *Client) getJSON(ctx context.Context, path string, query url.Values, out any) error {
	if err := c.limiter.Wait(ctx); err != nil {
		return err
	}

	_, err := c.breaker.Execute(func() (any, error) {
		u := c.baseURL + path
		if len(query) > 0 {
			u += "?" + query.Encode()
		}
		req, err := http.NewRequestWithContext(ctx, http.MethodGet, u, nil)
		if err != nil {
			return nil, err
		}
		resp, err := c.http.Do(req)
		if err != nil {
			return nil, err
		}
		defer resp.Body.Close()
		if resp.StatusCode != http.StatusOK {
			return nil, fmt.Errorf("exchange returned %d for %s", resp.StatusCode, path)
		}
		return nil, json.NewDecoder(resp.Body).Decode(out)
	})
	return err
}
