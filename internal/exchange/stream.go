package exchange

import (
	"context"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/gorilla/websocket"
	"github.com/rs/zerolog/log"
)

// Tick is one miniTicker update from the stream.
type Tick struct {
	Symbol    string
	Price     float64
	Volume    float64
	Timestamp time.Time
}

// Stream consumes the combined miniTicker websocket feed and fans
// updates out on a channel. It reconnects with a fixed backoff until
// the context is cancelled.
type Stream struct {
	wsURL   string
	symbols []string
}

// NewStream builds a ticker stream for the given symbols.
func NewStream(wsURL string, symbols []string) *Stream {
	return &Stream{wsURL: wsURL, symbols: symbols}
}

// Run connects and delivers ticks until ctx is cancelled. The returned
// channel closes when the stream shuts down.
func (s *Stream) Run(ctx context.Context) <-chan Tick {
	ticks := make(chan Tick, 100)

	go func() {
		defer close(ticks)
		for {
			if err := s.consume(ctx, ticks); err != nil {
				if ctx.Err() != nil {
					return
				}
				log.Warn().Err(err).Msg("ticker stream dropped, reconnecting")
			}
			select {
			case <-ctx.Done():
				return
			case <-time.After(5 * time.Second):
			}
		}
	}()

	return ticks
}

func (s *Stream) consume(ctx context.Context, ticks chan<- Tick) error {
	streams := make([]string, len(s.symbols))
	for i, sym := range s.symbols {
		streams[i] = strings.ToLower(sym) + "@miniTicker"
	}
	u := fmt.Sprintf("%s/stream?streams=%s", s.wsURL, strings.Join(streams, "/"))

	conn, _, err := websocket.DefaultDialer.DialContext(ctx, u, nil)
	if err != nil {
		return fmt.Errorf("dial %s: %w", s.wsURL, err)
	}
	defer conn.Close()

	log.Info().Strs("symbols", s.symbols).Msg("ticker stream connected")

	// Unblock ReadMessage when the context is cancelled.
	done := make(chan struct{})
	defer close(done)
	go func() {
		select {
		case <-ctx.Done():
			conn.Close()
		case <-done:
		}
	}()

	for {
		var frame struct {
			Data struct {
				Symbol  string `json:"s"`
				Close   string `json:"c"`
				Volume  string `json:"v"`
				EventMs int64  `json:"E"`
			} `json:"data"`
		}
		if err := conn.ReadJSON(&frame); err != nil {
			return err
		}

		price, err := strconv.ParseFloat(frame.Data.Close, 64)
		if err != nil {
			log.Warn().Str("symbol", frame.Data.Symbol).Str("close", frame.Data.Close).Msg("dropping malformed tick")
			continue
		}
		volume, _ := strconv.ParseFloat(frame.Data.Volume, 64)

		tick := Tick{
			Symbol:    frame.Data.Symbol,
			Price:     price,
			Volume:    volume,
			Timestamp: time.UnixMilli(frame.Data.EventMs).UTC(),
		}
		select {
		case ticks <- tick:
		case <-ctx.Done():
			return ctx.Err()
		}
	}
}
