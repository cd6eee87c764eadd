package backtest

import (
	"math"

	"tradepulse/internal/position"
)

// MetricsConfig parameterizes the ratio calculations.
type MetricsConfig struct {
	RiskFreeRate float64 // annual risk-free rate, e.g. 0.02
	BarsPerYear  float64 // annualization factor matched to the candle timeframe
}

// Metrics is the aggregate performance record derived from a closed
// trade sequence and an equity curve. Ratios degrade to 0 (or the
// +Inf profit-factor sentinel) instead of dividing by zero.
type Metrics struct {
	TotalReturnPct      float64 `json:"total_return_pct"`
	AnnualizedReturnPct float64 `json:"annualized_return_pct"`
	MaxDrawdownPct      float64 `json:"max_drawdown_pct"`
	SharpeRatio         float64 `json:"sharpe_ratio"`
	SortinoRatio        float64 `json:"sortino_ratio"`
	CalmarRatio         float64 `json:"calmar_ratio"`
	RecoveryFactor      float64 `json:"recovery_factor"`

	TotalTrades   int     `json:"total_trades"`
	WinningTrades int     `json:"winning_trades"`
	LosingTrades  int     `json:"losing_trades"`
	WinRatePct    float64 `json:"win_rate_pct"`
	ProfitFactor  float64 `json:"profit_factor"` // +Inf when no losers and at least one winner

	GrossProfit float64 `json:"gross_profit"`
	GrossLoss   float64 `json:"gross_loss"`
	AvgWin      float64 `json:"avg_win"`
	AvgLoss     float64 `json:"avg_loss"`
	LargestWin  float64 `json:"largest_win"`
	LargestLoss float64 `json:"largest_loss"`

	AvgTradeDurationHours float64 `json:"avg_trade_duration_hours"`
	MaxConsecutiveWins    int     `json:"max_consecutive_wins"`
	MaxConsecutiveLosses  int     `json:"max_consecutive_losses"`

	InitialCapital float64 `json:"initial_capital"`
	FinalCapital   float64 `json:"final_capital"`
	TotalPnL       float64 `json:"total_pnl"`
}

// ComputeMetrics is a pure function of its inputs.
func ComputeMetrics(trades []position.Trade, equity []EquityPoint, initialCapital float64, cfg MetricsConfig) *Metrics {
	m := &Metrics{
		InitialCapital: initialCapital,
		FinalCapital:   initialCapital,
	}
	if len(equity) == 0 && len(trades) == 0 {
		return m
	}

	if len(equity) > 0 {
		final := equity[len(equity)-1].Equity
		m.FinalCapital = final
		m.TotalPnL = final - initialCapital
		if initialCapital > 0 {
			m.TotalReturnPct = m.TotalPnL / initialCapital * 100
		}

		m.MaxDrawdownPct = maxDrawdown(equity) * 100
		m.AnnualizedReturnPct = annualizedReturn(equity, initialCapital) * 100

		returns := periodicReturns(equity)
		m.SharpeRatio = sharpe(returns, cfg, false)
		m.SortinoRatio = sharpe(returns, cfg, true)
		if m.MaxDrawdownPct != 0 {
			m.CalmarRatio = math.Abs(m.AnnualizedReturnPct / m.MaxDrawdownPct)
			m.RecoveryFactor = math.Abs(m.TotalReturnPct / m.MaxDrawdownPct)
		}
	}

	m.TotalTrades = len(trades)
	if len(trades) == 0 {
		return m
	}

	var durationHours float64
	winStreak, lossStreak := 0, 0
	for _, t := range trades {
		durationHours += t.ExitTime.Sub(t.EntryTime).Hours()
		switch {
		case t.PnL > 0:
			m.WinningTrades++
			m.GrossProfit += t.PnL
			if t.PnL > m.LargestWin {
				m.LargestWin = t.PnL
			}
			winStreak++
			lossStreak = 0
		case t.PnL < 0:
			m.LosingTrades++
			m.GrossLoss += -t.PnL
			if t.PnL < m.LargestLoss {
				m.LargestLoss = t.PnL
			}
			lossStreak++
			winStreak = 0
		default:
			winStreak, lossStreak = 0, 0
		}
		if winStreak > m.MaxConsecutiveWins {
			m.MaxConsecutiveWins = winStreak
		}
		if lossStreak > m.MaxConsecutiveLosses {
			m.MaxConsecutiveLosses = lossStreak
		}
	}

	m.WinRatePct = float64(m.WinningTrades) / float64(m.TotalTrades) * 100
	m.AvgTradeDurationHours = durationHours / float64(m.TotalTrades)

	switch {
	case m.GrossLoss > 0:
		m.ProfitFactor = m.GrossProfit / m.GrossLoss
	case m.WinningTrades > 0:
		m.ProfitFactor = math.Inf(1)
	}

	if m.WinningTrades > 0 {
		m.AvgWin = m.GrossProfit / float64(m.WinningTrades)
	}
	if m.LosingTrades > 0 {
		m.AvgLoss = -m.GrossLoss / float64(m.LosingTrades)
	}
	return m
}

// maxDrawdown returns the worst (peak − value)/peak over the curve,
// as a fraction.
func maxDrawdown(equity []EquityPoint) float64 {
	var peak, worst float64
	for _, p := range equity {
		if p.Equity > peak {
			peak = p.Equity
		}
		if peak > 0 {
			if dd := (peak - p.Equity) / peak; dd > worst {
				worst = dd
			}
		}
	}
	return worst
}

func annualizedReturn(equity []EquityPoint, initialCapital float64) float64 {
	if initialCapital <= 0 {
		return 0
	}
	first, last := equity[0], equity[len(equity)-1]
	years := last.Timestamp.Sub(first.Timestamp).Hours() / (365.25 * 24)
	if years <= 0 {
		return 0
	}
	ratio := last.Equity / initialCapital
	if ratio <= 0 {
		return -1
	}
	return math.Pow(ratio, 1/years) - 1
}

func periodicReturns(equity []EquityPoint) []float64 {
	if len(equity) < 2 {
		return nil
	}
	out := make([]float64, 0, len(equity)-1)
	for i := 1; i < len(equity); i++ {
		prev := equity[i-1].Equity
		if prev <= 0 {
			continue
		}
		out = append(out, equity[i].Equity/prev-1)
	}
	return out
}

// sharpe computes the Sharpe ratio, or Sortino when downsideOnly is
// set (deviation taken over negative returns only).
func sharpe(returns []float64, cfg MetricsConfig, downsideOnly bool) float64 {
	if len(returns) == 0 || cfg.BarsPerYear <= 0 {
		return 0
	}
	var mean float64
	for _, r := range returns {
		mean += r
	}
	mean /= float64(len(returns))

	sample := returns
	if downsideOnly {
		sample = nil
		for _, r := range returns {
			if r < 0 {
				sample = append(sample, r)
			}
		}
		if len(sample) == 0 {
			return 0
		}
	}

	var sampleMean float64
	for _, r := range sample {
		sampleMean += r
	}
	sampleMean /= float64(len(sample))
	var ss float64
	for _, r := range sample {
		d := r - sampleMean
		ss += d * d
	}
	dev := math.Sqrt(ss / float64(len(sample)))
	if dev == 0 {
		return 0
	}

	excess := mean - cfg.RiskFreeRate/cfg.BarsPerYear
	return excess / dev * math.Sqrt(cfg.BarsPerYear)
}
