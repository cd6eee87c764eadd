package main

import (
	"os"
	"time"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"
	"golang.org/x/term"
)

const (
	appName = "tradepulse"
	version = "v0.3.0"
)

func main() {
	zerolog.TimeFieldFormat = time.RFC3339
	if term.IsTerminal(int(os.Stderr.Fd())) {
		log.Logger = log.Output(zerolog.ConsoleWriter{Out: os.Stderr, TimeFormat: time.Kitchen})
	}

	rootCmd := &cobra.Command{
		Use:     appName,
		Short:   "Crypto trading automation core",
		Version: version,
		Long: `tradepulse runs rule-based crypto strategies behind a risk governor:
fixed-fractional sizing, portfolio exposure caps, a drawdown kill
switch and a market circuit breaker. The same pipeline replays
historical candles for backtesting.`,
		PersistentPreRun: func(cmd *cobra.Command, _ []string) {
			levelName, _ := cmd.Flags().GetString("log-level")
			level, err := zerolog.ParseLevel(levelName)
			if err != nil {
				level = zerolog.InfoLevel
			}
			zerolog.SetGlobalLevel(level)
		},
	}
	rootCmd.PersistentFlags().String("log-level", "info", "Log level (trace|debug|info|warn|error)")
	rootCmd.PersistentFlags().String("config", "", "Path to YAML config (defaults apply when empty)")

	runCmd := &cobra.Command{
		Use:   "run",
		Short: "Run the live trading loop",
		Long:  "Poll market data, evaluate strategies and manage positions until interrupted",
		RunE:  runLive,
	}
	runCmd.Flags().StringSlice("symbols", nil, "Override configured symbols")
	runCmd.Flags().Duration("interval", 0, "Override poll interval")

	backtestCmd := &cobra.Command{
		Use:   "backtest <series.yaml>",
		Short: "Replay a candle series through the live pipeline",
		Long:  "Simulate the full signal, sizing and lifecycle pipeline over historical candles and report performance metrics",
		Args:  cobra.ExactArgs(1),
		RunE:  runBacktest,
	}
	backtestCmd.Flags().String("strategy", "", "Override default strategy (SMA_CROSS|RSI_BB|EMA_SCALP)")
	backtestCmd.Flags().Float64("capital", 0, "Override initial capital")
	backtestCmd.Flags().Bool("json", false, "Emit the full result as JSON instead of a summary")
	backtestCmd.Flags().Bool("trailing", false, "Enable the trailing stop")

	rootCmd.AddCommand(runCmd, backtestCmd)

	if err := rootCmd.Execute(); err != nil {
		log.Error().Err(err).Msg("command failed")
		os.Exit(1)
	}
}
