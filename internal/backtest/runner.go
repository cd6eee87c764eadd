package backtest

import (
	"fmt"
	"math"
	"sort"
	"time"

	"github.com/rs/zerolog/log"

	"tradepulse/internal/market"
	"tradepulse/internal/position"
	"tradepulse/internal/risk"
	"tradepulse/internal/strategy"
)

// Config parameterizes one simulation run. The sizing, lifecycle and
// governor settings are the same structures live mode uses, so a
// backtest replays exactly the live pipeline.
type Config struct {
	InitialCapital    float64                  `yaml:"initial_capital"`
	CommissionRatePct float64                  `yaml:"commission_rate_pct"`
	SlippageRatePct   float64                  `yaml:"slippage_rate_pct"`
	RiskPerTradePct   float64                  `yaml:"risk_per_trade_pct"`
	StopLossPct       float64                  `yaml:"stop_loss_pct"`
	TakeProfitPct     float64                  `yaml:"take_profit_pct"`
	ATRPeriod         int                      `yaml:"atr_period"`    // 0 disables ATR stops
	ATRStopMult       float64                  `yaml:"atr_stop_mult"` // stop distance in ATR multiples
	LotStep           float64                  `yaml:"lot_step"`
	Timeframe         market.Timeframe         `yaml:"timeframe"`
	Strategy          string                   `yaml:"strategy"`
	Routing           map[string]string        `yaml:"strategy_routing"`
	Params            strategy.Params          `yaml:"strategy_params"`
	Lifecycle         position.LifecycleConfig `yaml:"lifecycle"`
	Governor          risk.GovernorConfig      `yaml:"governor"`
	Breaker           risk.BreakerConfig       `yaml:"breaker"`
	RiskFreeRate      float64                  `yaml:"risk_free_rate"`
}

// DefaultConfig mirrors the stock live configuration.
func DefaultConfig() Config {
	return Config{
		InitialCapital:    10000,
		CommissionRatePct: 0.1,
		SlippageRatePct:   0.05,
		RiskPerTradePct:   2,
		StopLossPct:       2,
		TakeProfitPct:     4,
		Timeframe:         market.TF1h,
		Strategy:          "SMA_CROSS",
		Params:            strategy.DefaultParams(),
		Lifecycle: position.LifecycleConfig{
			Trailing: position.TrailingConfig{
				Enabled:       false,
				ActivationPct: 1.5,
				DistancePct:   0.8,
			},
		},
		Governor: risk.GovernorConfig{
			MaxDrawdownPct:       10,
			MaxConsecutiveLosses: 5,
			MaxPositions:         3,
			MaxExposurePct:       50,
			EnableKillSwitch:     true,
		},
		Breaker:      risk.DefaultBreakerConfig(),
		RiskFreeRate: 0.02,
	}
}

// EquityPoint is one sample of the append-only equity curve,
// monotonic in timestamp.
type EquityPoint struct {
	Timestamp     time.Time `json:"timestamp"`
	Equity        float64   `json:"equity"` // cash + open PnL
	Cash          float64   `json:"cash"`
	OpenPnL       float64   `json:"open_pnl"`
	OpenNotional  float64   `json:"open_notional"`
	OpenPositions int       `json:"open_positions"`
}

// Result carries everything a run produced. On an aborted run the
// fields hold results up to the fault and Err describes it.
type Result struct {
	Config         Config                 `json:"config"`
	Trades         []position.Trade       `json:"trades"`
	Equity         []EquityPoint          `json:"equity_curve"`
	Signals        []strategy.Signal      `json:"signals"`
	Metrics        *Metrics               `json:"metrics"`
	InitialCapital float64                `json:"initial_capital"`
	FinalCapital   float64                `json:"final_capital"`
}

// Runner replays candle history through the live sizing, gating and
// lifecycle code. Single-threaded, no wall clock: two runs over the
// same input are byte-identical.
type Runner struct {
	cfg        Config
	account    *risk.Account
	governor   *risk.Governor
	positions  *position.Manager
	strategies map[string]strategy.Strategy
	fallback   strategy.Strategy
	seq        int // sequential trade IDs keep runs byte-identical
}

// NewRunner builds a simulation with fresh, isolated state so
// parallel backtests never share an account.
func NewRunner(cfg Config) (*Runner, error) {
	fallback, err := strategy.New(cfg.Strategy, cfg.Params)
	if err != nil {
		return nil, err
	}
	routed := make(map[string]strategy.Strategy, len(cfg.Routing))
	for symbol, name := range cfg.Routing {
		s, err := strategy.New(name, cfg.Params)
		if err != nil {
			return nil, err
		}
		routed[symbol] = s
	}
	return &Runner{
		cfg:        cfg,
		account:    risk.NewAccount(cfg.InitialCapital),
		governor:   risk.NewGovernor(cfg.Governor, risk.NewCircuitBreaker(cfg.Breaker)),
		positions:  position.NewManager(cfg.Lifecycle),
		strategies: routed,
		fallback:   fallback,
	}, nil
}

// Run replays the series in chronological order. A malformed candle
// aborts the run but the partial Result is still returned alongside
// the error; results computed before the fault are never discarded.
func (r *Runner) Run(series map[string][]market.Candle) (*Result, error) {
	result := &Result{
		Config:         r.cfg,
		InitialCapital: r.cfg.InitialCapital,
	}

	symbols := make([]string, 0, len(series))
	for s := range series {
		symbols = append(symbols, s)
	}
	sort.Strings(symbols)

	steps, err := alignSeries(symbols, series)
	if err != nil {
		r.finalize(result)
		return result, err
	}

	log.Info().Int("symbols", len(symbols)).Int("steps", len(steps)).
		Str("strategy", r.cfg.Strategy).Msg("Starting backtest")

	for i, st := range steps {
		if err := r.processStep(st, result); err != nil {
			// Force-close against the steps already processed; candles
			// past the fault were never seen and must not price exits.
			r.finish(result, steps[:i])
			r.finalize(result)
			return result, fmt.Errorf("backtest aborted at %s: %w", st.timestamp.Format(time.RFC3339), err)
		}
		r.appendEquity(result, st)
	}

	r.finish(result, steps)
	r.finalize(result)

	log.Info().Int("trades", len(result.Trades)).
		Float64("final_capital", result.FinalCapital).Msg("Backtest completed")
	return result, nil
}

// finalize fills the summary fields. It runs on aborted runs too, so
// a partial Result always carries metrics and the closing capital.
func (r *Runner) finalize(result *Result) {
	result.Metrics = ComputeMetrics(result.Trades, result.Equity, r.cfg.InitialCapital, MetricsConfig{
		RiskFreeRate: r.cfg.RiskFreeRate,
		BarsPerYear:  r.cfg.Timeframe.BarsPerYear(),
	})
	result.FinalCapital = r.account.Capital()
}

// step is one chronological slot: the candles that close at this
// timestamp, per symbol, plus each symbol's history index.
type step struct {
	timestamp time.Time
	symbols   []string
	candles   map[string]market.Candle
	history   map[string][]market.Candle
}

// alignSeries merges the per-symbol series into a single ordered
// timeline. Symbols within a slot process in lexical order so runs
// are reproducible.
func alignSeries(symbols []string, series map[string][]market.Candle) ([]step, error) {
	slots := make(map[time.Time]*step)
	var order []time.Time

	for _, symbol := range symbols {
		candles := series[symbol]
		for i, c := range candles {
			if c.Timestamp.IsZero() {
				return nil, fmt.Errorf("symbol %s: candle %d has zero timestamp", symbol, i)
			}
			if i > 0 && !candles[i-1].Timestamp.Before(c.Timestamp) {
				return nil, fmt.Errorf("symbol %s: candles out of order at index %d", symbol, i)
			}
			ts := c.Timestamp
			slot, ok := slots[ts]
			if !ok {
				slot = &step{
					timestamp: ts,
					candles:   make(map[string]market.Candle),
					history:   make(map[string][]market.Candle),
				}
				slots[ts] = slot
				order = append(order, ts)
			}
			slot.symbols = append(slot.symbols, symbol)
			slot.candles[symbol] = c
			slot.history[symbol] = candles[:i+1]
		}
	}

	sort.Slice(order, func(i, j int) bool { return order[i].Before(order[j]) })
	steps := make([]step, 0, len(order))
	for _, ts := range order {
		slot := slots[ts]
		sort.Strings(slot.symbols)
		steps = append(steps, *slot)
	}
	return steps, nil
}

// processStep mirrors the live EvaluateTick sequence for every symbol
// in the slot: manage open positions first, then evaluate entries.
func (r *Runner) processStep(st step, result *Result) error {
	r.governor.CheckKillSwitch(r.account, st.timestamp)

	for _, symbol := range st.symbols {
		candle := st.candles[symbol]
		if err := candle.Validate(); err != nil {
			return err
		}

		decision, err := r.positions.EvaluateCandle(symbol, candle, position.NoExit)
		if err != nil {
			return err
		}
		if decision != nil {
			r.closeSimulated(symbol, decision.ExitPrice, st.timestamp, decision.Reason, result)
		}
	}

	for _, symbol := range st.symbols {
		candle := st.candles[symbol]
		sig, err := r.strategyFor(symbol).Evaluate(symbol, st.history[symbol])
		if err != nil {
			return err
		}
		if sig == nil {
			continue
		}

		if open := r.positions.Get(symbol); open != nil {
			if sig.Kind == strategy.SignalClose ||
				(sig.Kind == strategy.SignalSell && open.Side == position.Long) ||
				(sig.Kind == strategy.SignalBuy && open.Side == position.Short) {
				decision, err := r.positions.EvaluateCandle(symbol, candle, position.SignalClose)
				if err == nil && decision != nil {
					r.closeSimulated(symbol, decision.ExitPrice, st.timestamp, decision.Reason, result)
				}
				sig.Taken = true
			} else {
				sig.SkipReason = "position already open"
			}
			result.Signals = append(result.Signals, *sig)
			continue
		}
		if sig.Kind == strategy.SignalClose {
			sig.SkipReason = "no open position to close"
			result.Signals = append(result.Signals, *sig)
			continue
		}

		r.tryOpenSimulated(symbol, sig, candle, st.history[symbol])
		result.Signals = append(result.Signals, *sig)
	}
	return nil
}

func (r *Runner) tryOpenSimulated(symbol string, sig *strategy.Signal, candle market.Candle, history []market.Candle) {
	obs := risk.BreakerObservation{
		Volatility: historyVolatility(history, 20),
		Volume:     candle.Volume,
	}
	if err := r.governor.GateEntry(r.account, symbol, obs); err != nil {
		sig.SkipReason = err.Error()
		return
	}

	side := position.Long
	if sig.Kind == strategy.SignalSell {
		side = position.Short
	}

	// Slippage moves the entry against the order direction.
	entryPrice := candle.Close * (1 + r.cfg.SlippageRatePct/100*side.Sign())
	stop := risk.StopLossPrice(entryPrice, r.cfg.StopLossPct, side == position.Long)
	if r.cfg.ATRPeriod > 0 {
		if atr := strategy.LatestATR(history, r.cfg.ATRPeriod); atr > 0 {
			stop = risk.ATRStopLossPrice(entryPrice, atr, r.cfg.ATRStopMult, side == position.Long)
		}
	}
	takeProfit := risk.TakeProfitPrice(entryPrice, r.cfg.TakeProfitPct, side == position.Long)

	sized, err := risk.SizePosition(risk.SizeRequest{
		Capital:        r.account.Capital(),
		RiskPerTrade:   r.cfg.RiskPerTradePct,
		EntryPrice:     entryPrice,
		StopLossPrice:  stop,
		MaxExposurePct: r.cfg.Governor.MaxExposurePct,
		OpenNotional:   r.account.OpenNotional(),
		LotStep:        r.cfg.LotStep,
	})
	if err != nil {
		sig.SkipReason = err.Error()
		return
	}
	if err := r.account.Reserve(sized.Notional, r.cfg.Governor.MaxPositions, r.cfg.Governor.MaxExposurePct); err != nil {
		sig.SkipReason = err.Error()
		return
	}

	entryFees := sized.Notional * r.cfg.CommissionRatePct / 100
	r.account.DebitFees(entryFees)

	pos := position.New(symbol, sig.Strategy, side, entryPrice, sized.Amount, stop, takeProfit, candle.Timestamp)
	r.seq++
	pos.ID = fmt.Sprintf("sim-%06d", r.seq)
	pos.EntryFees = entryFees
	r.positions.Open(pos)
	sig.Taken = true
}

// closeSimulated settles an exit with commission and slippage charged
// on the exit notional, matching the live close path.
func (r *Runner) closeSimulated(symbol string, exitPrice float64, exitTime time.Time, reason position.ExitReason, result *Result) {
	open := r.positions.Get(symbol)
	if open == nil {
		return
	}
	notional := open.Notional()
	exitValue := open.Amount * exitPrice
	fees := exitValue * (r.cfg.CommissionRatePct + r.cfg.SlippageRatePct) / 100

	trade, ok := r.positions.Close(symbol, exitPrice, exitTime, reason, fees)
	if !ok {
		return
	}
	r.account.Release(notional)
	r.account.ApplyTrade(trade.PnL)
	result.Trades = append(result.Trades, trade)
}

// finish force-closes whatever is still open at the close of the last
// processed step, recorded as a manual exit.
func (r *Runner) finish(result *Result, steps []step) {
	if len(steps) == 0 {
		return
	}
	symbols := r.positions.Symbols()
	sort.Strings(symbols)
	last := steps[len(steps)-1]
	for _, symbol := range symbols {
		c, ok := lastCandleFor(steps, symbol)
		if !ok {
			continue
		}
		r.closeSimulated(symbol, c.Close, last.timestamp, position.Manual, result)
	}
}

func lastCandleFor(steps []step, symbol string) (market.Candle, bool) {
	for i := len(steps) - 1; i >= 0; i-- {
		if c, ok := steps[i].candles[symbol]; ok {
			return c, true
		}
	}
	return market.Candle{}, false
}

func (r *Runner) appendEquity(result *Result, st step) {
	prices := make(map[string]float64, len(st.candles))
	for symbol, c := range st.candles {
		prices[symbol] = c.Close
	}
	cash := r.account.Capital()
	openPnL := r.positions.UnrealizedPnL(prices)
	result.Equity = append(result.Equity, EquityPoint{
		Timestamp:     st.timestamp,
		Equity:        cash + openPnL,
		Cash:          cash,
		OpenPnL:       openPnL,
		OpenNotional:  r.account.OpenNotional(),
		OpenPositions: r.positions.Count(),
	})
}

func (r *Runner) strategyFor(symbol string) strategy.Strategy {
	if s, ok := r.strategies[symbol]; ok {
		return s
	}
	return r.fallback
}

func historyVolatility(candles []market.Candle, window int) float64 {
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
	for _, v := range returns {
		mean += v
	}
	mean /= float64(len(returns))
	var ss float64
	for _, v := range returns {
		d := v - mean
		ss += d * d
	}
	return math.Sqrt(ss / float64(len(returns)))
}
