package engine

import (
	"context"
	"errors"
	"math"
	"time"

	"github.com/rs/zerolog/log"

	"tradepulse/internal/market"
	"tradepulse/internal/position"
	"tradepulse/internal/risk"
	"tradepulse/internal/strategy"
	"tradepulse/internal/telemetry"
)

// MarketData is the feed collaborator. Implementations handle their
// own retries and backoff; the engine treats a failure as a skipped
// tick.
type MarketData interface {
	LatestPrice(ctx context.Context, symbol string) (float64, error)
	Candles(ctx context.Context, symbol string, tf market.Timeframe, limit int) ([]market.Candle, error)
}

// Fill is the result of an executed order.
type Fill struct {
	Price float64
	Fees  float64
}

// OrderExecutor is the order-placement collaborator.
type OrderExecutor interface {
	PlaceOrder(ctx context.Context, symbol string, side position.Side, amount float64) (Fill, error)
}

// TradeStore persists trades, signals and position snapshots.
// Fire-and-forget: a store failure is logged, never propagated.
type TradeStore interface {
	SaveTrade(ctx context.Context, t position.Trade) error
	SaveSignal(ctx context.Context, s strategy.Signal) error
	SavePositionSnapshot(ctx context.Context, p position.Position) error
}

// Config carries the per-trade parameters the tick pipeline applies.
type Config struct {
	RiskPerTradePct float64           `yaml:"risk_per_trade_pct"`
	StopLossPct     float64           `yaml:"stop_loss_pct"`
	TakeProfitPct   float64           `yaml:"take_profit_pct"`
	ATRPeriod       int               `yaml:"atr_period"`    // 0 disables ATR stops
	ATRStopMult     float64           `yaml:"atr_stop_mult"` // stop distance in ATR multiples
	LotStep         float64           `yaml:"lot_step"`
	Timeframe       market.Timeframe  `yaml:"timeframe"`
	CandleLimit     int               `yaml:"candle_limit"`
	Routing         map[string]string `yaml:"strategy_routing"` // symbol -> strategy name
	DefaultStrategy string            `yaml:"strategy"`
}

// TickResult is what one evaluation tick produced for a symbol.
type TickResult struct {
	Signal *strategy.Signal   `json:"signal,omitempty"`
	Opened *position.Position `json:"opened,omitempty"`
	Closed []position.Trade   `json:"closed,omitempty"`
}

// Engine drives the signal → gate → size → lifecycle pipeline. All
// account mutation is serialized through the Account; ticks for
// different symbols may run in any order but never jointly exceed the
// exposure cap.
type Engine struct {
	cfg        Config
	account    *risk.Account
	governor   *risk.Governor
	positions  *position.Manager
	strategies map[string]strategy.Strategy
	fallback   strategy.Strategy
	orders     OrderExecutor
	store      TradeStore
	notifier   Notifier
	metrics    *telemetry.Metrics
}

// New builds an engine. store, notifier and metrics may be nil.
func New(cfg Config, account *risk.Account, governor *risk.Governor, positions *position.Manager,
	orders OrderExecutor, store TradeStore, notifier Notifier, metrics *telemetry.Metrics) (*Engine, error) {

	params := strategy.DefaultParams()
	fallback, err := strategy.New(cfg.DefaultStrategy, params)
	if err != nil {
		return nil, err
	}
	routed := make(map[string]strategy.Strategy, len(cfg.Routing))
	for symbol, name := range cfg.Routing {
		s, err := strategy.New(name, params)
		if err != nil {
			return nil, err
		}
		routed[symbol] = s
	}
	if notifier == nil {
		notifier = NopNotifier{}
	}
	return &Engine{
		cfg:        cfg,
		account:    account,
		governor:   governor,
		positions:  positions,
		strategies: routed,
		fallback:   fallback,
		orders:     orders,
		store:      store,
		notifier:   notifier,
		metrics:    metrics,
	}, nil
}

// Account exposes the shared account for reporting surfaces.
func (e *Engine) Account() *risk.Account { return e.account }

// Positions exposes the lifecycle manager for reporting surfaces.
func (e *Engine) Positions() *position.Manager { return e.positions }

// EvaluateTick runs one full evaluate → gate → size → mutate sequence
// for a symbol. A failed tick is skipped wholesale and retried on the
// next interval; there is no mid-tick cancellation.
func (e *Engine) EvaluateTick(ctx context.Context, symbol string, snap market.Snapshot) (TickResult, error) {
	var result TickResult

	if e.metrics != nil {
		e.metrics.TicksTotal.Inc()
	}

	wasHalted := e.account.Halted()
	e.governor.CheckKillSwitch(e.account, snap.Timestamp)
	if !wasHalted && e.account.Halted() {
		acct := e.account.Snapshot()
		e.notifier.Notify(ctx, Event{
			Type:      EventHalted,
			Timestamp: snap.Timestamp,
			Message:   acct.HaltReason,
			Account:   &acct,
		})
		if e.metrics != nil {
			e.metrics.KillSwitchTrips.Inc()
		}
	}

	// Manage the open position before considering new entries.
	decision, err := e.positions.EvaluateTick(symbol, snap.Price, snap.Timestamp, position.NoExit)
	if err != nil {
		log.Warn().Err(err).Str("symbol", symbol).Msg("Lifecycle tick rejected")
		return result, err
	}
	if decision != nil {
		if trade, ok := e.closePosition(ctx, symbol, decision); ok {
			result.Closed = append(result.Closed, trade)
		}
	}

	sig, err := e.strategyFor(symbol).Evaluate(symbol, snap.Candles)
	if err != nil {
		log.Warn().Err(err).Str("symbol", symbol).Msg("Strategy evaluation failed")
		return result, err
	}
	if sig == nil {
		return result, nil
	}
	result.Signal = sig

	// An opposite or explicit close signal against an open position
	// exits it; the position side decides what "opposite" means.
	if open := e.positions.Get(symbol); open != nil {
		if sig.Kind == strategy.SignalClose || oppositeSignal(sig.Kind, open.Side) {
			decision, err := e.positions.EvaluateTick(symbol, snap.Price, snap.Timestamp, position.SignalClose)
			if err == nil && decision != nil {
				if trade, ok := e.closePosition(ctx, symbol, decision); ok {
					result.Closed = append(result.Closed, trade)
				}
			}
			sig.Taken = true
		} else {
			sig.SkipReason = "position already open"
		}
		e.saveSignal(ctx, *sig)
		return result, nil
	}
	if sig.Kind == strategy.SignalClose {
		sig.SkipReason = "no open position to close"
		e.saveSignal(ctx, *sig)
		return result, nil
	}

	opened, skipReason := e.tryOpen(ctx, symbol, sig, snap)
	if opened != nil {
		sig.Taken = true
		result.Opened = opened
	} else {
		sig.SkipReason = skipReason
	}
	e.saveSignal(ctx, *sig)
	return result, nil
}

// tryOpen runs gate → size → place → reserve for an entry signal.
// Returns the opened position, or nil with the skip reason.
func (e *Engine) tryOpen(ctx context.Context, symbol string, sig *strategy.Signal, snap market.Snapshot) (*position.Position, string) {
	obs := observationFrom(snap)
	if err := e.governor.GateEntry(e.account, symbol, obs); err != nil {
		log.Info().Err(err).Str("symbol", symbol).Msg("Entry gated")
		if e.metrics != nil {
			e.metrics.EntriesRejected.WithLabelValues(rejectLabel(err)).Inc()
		}
		return nil, err.Error()
	}

	side := position.Long
	if sig.Kind == strategy.SignalSell {
		side = position.Short
	}
	stop := risk.StopLossPrice(snap.Price, e.cfg.StopLossPct, side == position.Long)
	if e.cfg.ATRPeriod > 0 {
		if atr := strategy.LatestATR(snap.Candles, e.cfg.ATRPeriod); atr > 0 {
			stop = risk.ATRStopLossPrice(snap.Price, atr, e.cfg.ATRStopMult, side == position.Long)
		}
	}
	takeProfit := risk.TakeProfitPrice(snap.Price, e.cfg.TakeProfitPct, side == position.Long)

	govCfg := e.governor.Config()
	sized, err := risk.SizePosition(risk.SizeRequest{
		Capital:        e.account.Capital(),
		RiskPerTrade:   e.cfg.RiskPerTradePct,
		EntryPrice:     snap.Price,
		StopLossPrice:  stop,
		MaxExposurePct: govCfg.MaxExposurePct,
		OpenNotional:   e.account.OpenNotional(),
		LotStep:        e.cfg.LotStep,
	})
	if err != nil {
		log.Info().Err(err).Str("symbol", symbol).Msg("Sizing rejected")
		if e.metrics != nil {
			e.metrics.EntriesRejected.WithLabelValues(rejectLabel(err)).Inc()
		}
		return nil, err.Error()
	}

	if err := e.account.Reserve(sized.Notional, govCfg.MaxPositions, govCfg.MaxExposurePct); err != nil {
		if e.metrics != nil {
			e.metrics.EntriesRejected.WithLabelValues(rejectLabel(err)).Inc()
		}
		return nil, err.Error()
	}

	fill, err := e.orders.PlaceOrder(ctx, symbol, side, sized.Amount)
	if err != nil {
		// A failed placement means the signal was not taken; give the
		// budget back and move on.
		e.account.Release(sized.Notional)
		log.Warn().Err(err).Str("symbol", symbol).Msg("Order placement failed")
		return nil, "order placement failed: " + err.Error()
	}

	pos := position.New(symbol, sig.Strategy, side, fill.Price, sized.Amount, stop, takeProfit, snap.Timestamp)
	pos.EntryFees = fill.Fees
	e.account.DebitFees(fill.Fees)
	e.positions.Open(pos)

	if e.store != nil {
		if err := e.store.SavePositionSnapshot(ctx, *pos); err != nil {
			log.Warn().Err(err).Str("symbol", symbol).Msg("Position snapshot save failed")
		}
	}
	e.notifier.Notify(ctx, Event{
		Type:      EventOpened,
		Timestamp: snap.Timestamp,
		Symbol:    symbol,
		Position:  pos,
	})
	if e.metrics != nil {
		e.metrics.PositionsOpened.Inc()
		e.metrics.OpenPositions.Set(float64(e.positions.Count()))
	}
	return pos, ""
}

// closePosition executes the exit order and settles the trade into
// the account.
func (e *Engine) closePosition(ctx context.Context, symbol string, decision *position.ExitDecision) (position.Trade, bool) {
	open := e.positions.Get(symbol)
	if open == nil {
		return position.Trade{}, false
	}

	exitSide := position.Short
	if open.Side == position.Short {
		exitSide = position.Long
	}
	fill, err := e.orders.PlaceOrder(ctx, symbol, exitSide, open.Amount)
	if err != nil {
		// Leave the position open; the exit re-fires next tick.
		log.Error().Err(err).Str("symbol", symbol).Msg("Exit order failed, position remains open")
		return position.Trade{}, false
	}

	notional := open.Notional()
	trade, ok := e.positions.Close(symbol, fill.Price, time.Now().UTC(), decision.Reason, fill.Fees)
	if !ok {
		return position.Trade{}, false
	}
	e.account.Release(notional)
	e.account.ApplyTrade(trade.PnL)

	if e.store != nil {
		if err := e.store.SaveTrade(ctx, trade); err != nil {
			log.Warn().Err(err).Str("symbol", symbol).Msg("Trade save failed")
		}
	}
	e.notifier.Notify(ctx, Event{
		Type:      EventClosed,
		Timestamp: trade.ExitTime,
		Symbol:    symbol,
		Trade:     &trade,
	})
	if e.metrics != nil {
		e.metrics.PositionsClosed.WithLabelValues(trade.ExitReason.String()).Inc()
		e.metrics.OpenPositions.Set(float64(e.positions.Count()))
		e.metrics.Capital.Set(e.account.Capital())
		e.metrics.DrawdownPct.Set(e.account.DrawdownPct())
	}
	return trade, true
}

func (e *Engine) strategyFor(symbol string) strategy.Strategy {
	if s, ok := e.strategies[symbol]; ok {
		return s
	}
	return e.fallback
}

func (e *Engine) saveSignal(ctx context.Context, sig strategy.Signal) {
	if e.store == nil {
		return
	}
	if err := e.store.SaveSignal(ctx, sig); err != nil {
		log.Warn().Err(err).Str("symbol", sig.Symbol).Msg("Signal save failed")
	}
}

func oppositeSignal(kind strategy.SignalKind, side position.Side) bool {
	return (kind == strategy.SignalSell && side == position.Long) ||
		(kind == strategy.SignalBuy && side == position.Short)
}

// observationFrom derives the circuit-breaker reading from a
// snapshot: stddev of recent close-to-close returns for volatility,
// latest volume, and the quoted spread.
func observationFrom(snap market.Snapshot) risk.BreakerObservation {
	return risk.BreakerObservation{
		Volatility: returnVolatility(snap.Candles, 20),
		Volume:     snap.Volume,
		SpreadPct:  snap.SpreadPct(),
	}
}

func returnVolatility(candles []market.Candle, window int) float64 {
	if len(candles) < 2 {
		return 0
	}
	start := len(candles) - window - 1
	if start < 0 {
		start = 0
	}
	var returns []float64
	for i := start + 1; i < len(candles); i++ {
		prev := candles[i-1].Close
		if prev <= 0 {
			continue
		}
		returns = append(returns, candles[i].Close/prev-1)
	}
	if len(returns) == 0 {
		return 0
	}
	var mean float64
	for _, r := range returns {
		mean += r
	}
	mean /= float64(len(returns))
	var ss float64
	for _, r := range returns {
		d := r - mean
		ss += d * d
	}
	return math.Sqrt(ss / float64(len(returns)))
}

func rejectLabel(err error) string {
	switch {
	case errors.Is(err, risk.ErrTradingHalted):
		return "halted"
	case errors.Is(err, risk.ErrCircuitBreakerActive):
		return "circuit_breaker"
	case errors.Is(err, risk.ErrExposureLimitExceeded):
		return "exposure"
	case errors.Is(err, risk.ErrMaxPositionsReached):
		return "max_positions"
	case errors.Is(err, risk.ErrInsufficientCapital):
		return "capital"
	case errors.Is(err, risk.ErrInvalidStopDistance):
		return "stop_distance"
	default:
		return "other"
	}
}
