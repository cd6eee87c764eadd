package main

import (
	"encoding/json"
	"fmt"
	"os"

	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"

	"tradepulse/internal/backtest"
)

func runBacktest(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig(cmd)
	if err != nil {
		return err
	}

	series, err := backtest.LoadSeries(args[0])
	if err != nil {
		return err
	}

	btCfg := backtest.Config{
		InitialCapital:    cfg.Account.InitialCapital,
		CommissionRatePct: cfg.Backtest.CommissionRatePct,
		SlippageRatePct:   cfg.Backtest.SlippageRatePct,
		RiskPerTradePct:   cfg.Engine.RiskPerTradePct,
		StopLossPct:       cfg.Engine.StopLossPct,
		TakeProfitPct:     cfg.Engine.TakeProfitPct,
		ATRPeriod:         cfg.Engine.ATRPeriod,
		ATRStopMult:       cfg.Engine.ATRStopMult,
		LotStep:           cfg.Engine.LotStep,
		Timeframe:         series.Timeframe,
		Strategy:          cfg.Engine.DefaultStrategy,
		Routing:           cfg.Engine.Routing,
		Params:            backtest.DefaultConfig().Params,
		Lifecycle:         cfg.Lifecycle.Position(),
		Governor:          cfg.Governor,
		Breaker:           cfg.Breaker,
		RiskFreeRate:      cfg.Backtest.RiskFreeRate,
	}
	if name, _ := cmd.Flags().GetString("strategy"); name != "" {
		btCfg.Strategy = name
		btCfg.Routing = nil
	}
	if capital, _ := cmd.Flags().GetFloat64("capital"); capital > 0 {
		btCfg.InitialCapital = capital
	}
	if trailing, _ := cmd.Flags().GetBool("trailing"); trailing {
		btCfg.Lifecycle.Trailing.Enabled = true
	}

	runner, err := backtest.NewRunner(btCfg)
	if err != nil {
		return err
	}

	result, runErr := runner.Run(series.Symbols)
	if runErr != nil {
		log.Error().Err(runErr).Msg("simulation aborted, reporting partial results")
	}
	if result == nil {
		return runErr
	}

	if asJSON, _ := cmd.Flags().GetBool("json"); asJSON {
		enc := json.NewEncoder(os.Stdout)
		enc.SetIndent("", "  ")
		if err := enc.Encode(result); err != nil {
			return err
		}
		return runErr
	}

	printSummary(result)
	return runErr
}

func printSummary(r *backtest.Result) {
	m := r.Metrics
	fmt.Printf("\nBacktest summary (%s)\n", r.Config.Strategy)
	fmt.Printf("  capital        %.2f -> %.2f\n", r.InitialCapital, r.FinalCapital)
	fmt.Printf("  total return   %.2f%%  (annualized %.2f%%)\n", m.TotalReturnPct, m.AnnualizedReturnPct)
	fmt.Printf("  max drawdown   %.2f%%\n", m.MaxDrawdownPct)
	fmt.Printf("  sharpe         %.2f   sortino %.2f   calmar %.2f\n", m.SharpeRatio, m.SortinoRatio, m.CalmarRatio)
	fmt.Printf("  trades         %d (%d won / %d lost, win rate %.1f%%)\n",
		m.TotalTrades, m.WinningTrades, m.LosingTrades, m.WinRatePct)
	fmt.Printf("  profit factor  %.2f\n", m.ProfitFactor)
	fmt.Printf("  avg win/loss   %.2f / %.2f\n", m.AvgWin, m.AvgLoss)
	fmt.Printf("  total pnl      %.2f\n", m.TotalPnL)
	fmt.Printf("  signals        %d emitted\n\n", len(r.Signals))
}
