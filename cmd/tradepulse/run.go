package main

import (
	"context"
	"os/signal"
	"sync"
	"syscall"
	"time"

	"github.com/go-redis/redis/v8"
	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"

	"tradepulse/internal/config"
	"tradepulse/internal/data"
	"tradepulse/internal/engine"
	"tradepulse/internal/exchange"
	"tradepulse/internal/httpapi"
	"tradepulse/internal/market"
	"tradepulse/internal/persistence"
	"tradepulse/internal/persistence/postgres"
	"tradepulse/internal/position"
	"tradepulse/internal/risk"
	"tradepulse/internal/telemetry"
)

func loadConfig(cmd *cobra.Command) (*config.Config, error) {
	path, _ := cmd.Flags().GetString("config")
	if path == "" {
		return config.Default(), nil
	}
	return config.Load(path)
}

func runLive(cmd *cobra.Command, _ []string) error {
	cfg, err := loadConfig(cmd)
	if err != nil {
		return err
	}
	if symbols, _ := cmd.Flags().GetStringSlice("symbols"); len(symbols) > 0 {
		cfg.Symbols = symbols
	}
	if interval, _ := cmd.Flags().GetDuration("interval"); interval > 0 {
		cfg.PollInterval = config.Duration(interval)
	}

	ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	client := exchange.NewClient(cfg.Exchange.BaseURL, exchange.Options{
		Timeout:       cfg.Exchange.RequestTimeout.Std(),
		RatePerSecond: cfg.Exchange.RatePerSecond,
		Burst:         cfg.Exchange.Burst,
	})

	var cache *data.Cache
	if cfg.Redis.Addr != "" {
		rdb := redis.NewClient(&redis.Options{
			Addr:     cfg.Redis.Addr,
			Password: cfg.Redis.Password,
			DB:       cfg.Redis.DB,
		})
		pingCtx, cancel := context.WithTimeout(ctx, 3*time.Second)
		err := rdb.Ping(pingCtx).Err()
		cancel()
		if err != nil {
			log.Warn().Err(err).Str("addr", cfg.Redis.Addr).Msg("redis unreachable, running without cache")
		} else {
			cache = data.NewCache(rdb, cfg.Redis.CandleTTL.Std(), cfg.Redis.PriceTTL.Std())
			defer rdb.Close()
		}
	}
	feed := data.NewFeed(client, cache)

	var (
		store       engine.TradeStore
		tradesRepo  persistence.TradesRepo
		signalsRepo persistence.SignalsRepo
	)
	if cfg.Postgres.DSN != "" {
		db, err := postgres.Connect(cfg.Postgres.DSN)
		if err != nil {
			return err
		}
		defer db.Close()
		if err := postgres.Migrate(db); err != nil {
			return err
		}
		pg := postgres.NewStore(db, cfg.Postgres.Timeout.Std())
		store = pg
		tradesRepo = pg.Trades
		signalsRepo = pg.Signals
	}

	account := risk.NewAccount(cfg.Account.InitialCapital)
	breaker := risk.NewCircuitBreaker(cfg.Breaker)
	governor := risk.NewGovernor(cfg.Governor, breaker)
	positions := position.NewManager(cfg.Lifecycle.Position())
	metrics := telemetry.New()

	var notifier engine.Notifier = engine.LogNotifier{}
	if cfg.Notify.WebhookURL != "" {
		notifier = engine.NewWebhookNotifier(cfg.Notify.WebhookURL)
	}

	if !cfg.Exchange.Paper {
		log.Warn().Msg("live order routing is not wired, falling back to paper fills")
	}
	executor := exchange.NewPaperExecutor(feed, cfg.Exchange.TakerFeePct, cfg.Backtest.SlippageRatePct)

	eng, err := engine.New(cfg.Engine, account, governor, positions, executor, store, notifier, metrics)
	if err != nil {
		return err
	}

	if cfg.HTTP.Listen != "" {
		srv := httpapi.New(cfg.HTTP.Listen, account, positions, tradesRepo, signalsRepo, metrics)
		go func() {
			if err := srv.Start(); err != nil {
				log.Error().Err(err).Msg("ops server failed")
			}
		}()
		defer func() {
			shutCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer cancel()
			srv.Shutdown(shutCtx)
		}()
	}

	// Live prices ride the websocket when available; the REST quote
	// is the fallback per tick.
	live := newTickBook()
	if cfg.Exchange.WebsocketURL != "" {
		ticks := exchange.NewStream(cfg.Exchange.WebsocketURL, cfg.Symbols).Run(ctx)
		go func() {
			for tick := range ticks {
				live.put(tick)
			}
		}()
	}

	log.Info().
		Strs("symbols", cfg.Symbols).
		Dur("interval", cfg.PollInterval.Std()).
		Float64("capital", cfg.Account.InitialCapital).
		Msg("trading loop started")

	ticker := time.NewTicker(cfg.PollInterval.Std())
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			log.Info().Msg("shutting down")
			return nil
		case <-ticker.C:
			for _, symbol := range cfg.Symbols {
				evaluateSymbol(ctx, eng, feed, client, live, cfg, symbol)
			}
		}
	}
}

func evaluateSymbol(ctx context.Context, eng *engine.Engine, feed *data.Feed,
	client *exchange.Client, live *tickBook, cfg *config.Config, symbol string) {

	candles, err := feed.Candles(ctx, symbol, cfg.Engine.Timeframe, cfg.Engine.CandleLimit)
	if err != nil {
		log.Warn().Err(err).Str("symbol", symbol).Msg("candle fetch failed, skipping tick")
		return
	}

	snap := market.Snapshot{
		Symbol:    symbol,
		Timestamp: time.Now().UTC(),
		Candles:   candles,
	}
	if tick, ok := live.get(symbol); ok {
		snap.Price = tick.Price
		snap.Volume = tick.Volume
	} else {
		price, err := feed.LatestPrice(ctx, symbol)
		if err != nil {
			log.Warn().Err(err).Str("symbol", symbol).Msg("price fetch failed, skipping tick")
			return
		}
		snap.Price = price
	}
	if bid, ask, err := client.BookTicker(ctx, symbol); err == nil {
		snap.Bid, snap.Ask = bid, ask
	}

	res, err := eng.EvaluateTick(ctx, symbol, snap)
	if err != nil {
		log.Error().Err(err).Str("symbol", symbol).Msg("tick failed")
		return
	}
	if res.Opened != nil {
		log.Info().Str("symbol", symbol).Str("position", res.Opened.ID).Msg("entered position")
	}
	for _, trade := range res.Closed {
		log.Info().
			Str("symbol", trade.Symbol).
			Float64("pnl", trade.PnL).
			Str("reason", trade.ExitReason.String()).
			Msg("closed position")
	}
}

// tickBook holds the freshest websocket tick per symbol.
type tickBook struct {
	mu    sync.RWMutex
	ticks map[string]exchange.Tick
}

func newTickBook() *tickBook {
	return &tickBook{ticks: make(map[string]exchange.Tick)}
}

func (b *tickBook) put(t exchange.Tick) {
	b.mu.Lock()
	b.ticks[t.Symbol] = t
	b.mu.Unlock()
}

func (b *tickBook) get(symbol string) (exchange.Tick, bool) {
	b.mu.RLock()
	defer b.mu.RUnlock()
	t, ok := b.ticks[symbol]
	if !ok || time.Since(t.Timestamp) > time.Minute {
		return exchange.Tick{}, false
	}
	return t, true
}
