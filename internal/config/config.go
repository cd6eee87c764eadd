package config

import (
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v2"

	"tradepulse/internal/engine"
	"tradepulse/internal/market"
	"tradepulse/internal/position"
	"tradepulse/internal/risk"
)

// Duration wraps time.Duration so YAML accepts "30s" / "5m" style
// values as well as raw nanosecond integers.
type Duration time.Duration

// Std returns the wrapped time.Duration.
func (d Duration) Std() time.Duration { return time.Duration(d) }

// UnmarshalYAML implements yaml.Unmarshaler.
func (d *Duration) UnmarshalYAML(unmarshal func(interface{}) error) error {
	var raw string
	if err := unmarshal(&raw); err == nil {
		v, err := time.ParseDuration(raw)
		if err != nil {
			return fmt.Errorf("invalid duration %q: %w", raw, err)
		}
		*d = Duration(v)
		return nil
	}
	var ns int64
	if err := unmarshal(&ns); err != nil {
		return fmt.Errorf("duration must be a string like \"30s\" or nanoseconds")
	}
	*d = Duration(ns)
	return nil
}

// MarshalYAML implements yaml.Marshaler.
func (d Duration) MarshalYAML() (interface{}, error) {
	return time.Duration(d).String(), nil
}

// LifecycleConfig is the YAML shape of the position lifecycle
// settings.
type LifecycleConfig struct {
	Trailing position.TrailingConfig `yaml:"trailing"`
	MaxHold  Duration                `yaml:"max_hold"`
}

// Position converts to the lifecycle manager's config.
func (c LifecycleConfig) Position() position.LifecycleConfig {
	return position.LifecycleConfig{Trailing: c.Trailing, MaxHold: c.MaxHold.Std()}
}

// Config is the full tradepulse configuration tree, loaded from one
// YAML file.
type Config struct {
	Symbols      []string `yaml:"symbols"`
	PollInterval Duration `yaml:"poll_interval"`

	Account   AccountConfig       `yaml:"account"`
	Engine    engine.Config       `yaml:"engine"`
	Lifecycle LifecycleConfig     `yaml:"lifecycle"`
	Governor  risk.GovernorConfig `yaml:"governor"`
	Breaker   risk.BreakerConfig  `yaml:"breaker"`
	Backtest  BacktestConfig      `yaml:"backtest"`
	Exchange  ExchangeConfig      `yaml:"exchange"`
	Redis     RedisConfig         `yaml:"redis"`
	Postgres  PostgresConfig      `yaml:"postgres"`
	HTTP      HTTPConfig          `yaml:"http"`
	Notify    NotifyConfig        `yaml:"notify"`
}

// AccountConfig seeds the shared account state.
type AccountConfig struct {
	InitialCapital float64 `yaml:"initial_capital"`
}

// BacktestConfig holds the simulation cost model.
type BacktestConfig struct {
	CommissionRatePct float64 `yaml:"commission_rate_pct"`
	SlippageRatePct   float64 `yaml:"slippage_rate_pct"`
	RiskFreeRate      float64 `yaml:"risk_free_rate"`
}

// ExchangeConfig points the adapters at a venue.
type ExchangeConfig struct {
	BaseURL        string   `yaml:"base_url"`
	WebsocketURL   string   `yaml:"websocket_url"`
	RequestTimeout Duration `yaml:"request_timeout"`
	RatePerSecond  float64  `yaml:"rate_per_second"`
	Burst          int      `yaml:"burst"`
	Paper          bool     `yaml:"paper"` // fill orders locally instead of routing out
	TakerFeePct    float64  `yaml:"taker_fee_pct"`
}

// RedisConfig controls the market-data cache. An empty Addr disables
// caching.
type RedisConfig struct {
	Addr      string   `yaml:"addr"`
	Password  string   `yaml:"password"`
	DB        int      `yaml:"db"`
	CandleTTL Duration `yaml:"candle_ttl"`
	PriceTTL  Duration `yaml:"price_ttl"`
}

// PostgresConfig controls persistence. An empty DSN disables it.
type PostgresConfig struct {
	DSN     string   `yaml:"dsn"`
	Timeout Duration `yaml:"timeout"`
}

// HTTPConfig controls the ops server. An empty Listen disables it.
type HTTPConfig struct {
	Listen string `yaml:"listen"`
}

// NotifyConfig selects the notification sink.
type NotifyConfig struct {
	WebhookURL string `yaml:"webhook_url"`
}

// Default returns the stock configuration that Load fills gaps from.
func Default() *Config {
	return &Config{
		Symbols:      []string{"BTCUSDT", "ETHUSDT", "SOLUSDT"},
		PollInterval: Duration(time.Minute),
		Account:      AccountConfig{InitialCapital: 10000},
		Engine: engine.Config{
			RiskPerTradePct: 2,
			StopLossPct:     2,
			TakeProfitPct:   4,
			ATRStopMult:     2,
			Timeframe:       market.TF1h,
			CandleLimit:     200,
			DefaultStrategy: "SMA_CROSS",
			Routing: map[string]string{
				"BTCUSDT": "SMA_CROSS",
				"ETHUSDT": "EMA_SCALP",
				"SOLUSDT": "EMA_SCALP",
			},
		},
		Lifecycle: LifecycleConfig{
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
		Breaker: risk.DefaultBreakerConfig(),
		Backtest: BacktestConfig{
			CommissionRatePct: 0.1,
			SlippageRatePct:   0.05,
			RiskFreeRate:      0.02,
		},
		Exchange: ExchangeConfig{
			BaseURL:        "https://api.binance.com",
			WebsocketURL:   "wss://stream.binance.com:9443",
			RequestTimeout: Duration(10 * time.Second),
			RatePerSecond:  10,
			Burst:          20,
			Paper:          true,
			TakerFeePct:    0.1,
		},
		Redis: RedisConfig{
			CandleTTL: Duration(5 * time.Minute),
			PriceTTL:  Duration(10 * time.Second),
		},
		Postgres: PostgresConfig{Timeout: Duration(5 * time.Second)},
	}
}

// Load reads a YAML config file over the defaults and validates the
// result.
func Load(path string) (*Config, error) {
	cfg := Default()

	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read config: %w", err)
	}
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config YAML: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Validate rejects configurations the risk pipeline cannot run with.
func (c *Config) Validate() error {
	if len(c.Symbols) == 0 {
		return fmt.Errorf("symbols must not be empty")
	}
	if c.Account.InitialCapital <= 0 {
		return fmt.Errorf("account.initial_capital must be greater than 0")
	}
	if c.Engine.RiskPerTradePct <= 0 || c.Engine.RiskPerTradePct > 100 {
		return fmt.Errorf("engine.risk_per_trade_pct must be in (0, 100]")
	}
	if c.Engine.StopLossPct <= 0 {
		return fmt.Errorf("engine.stop_loss_pct must be greater than 0")
	}
	if c.Governor.MaxPositions <= 0 {
		return fmt.Errorf("governor.max_positions must be greater than 0")
	}
	if c.Governor.MaxExposurePct <= 0 || c.Governor.MaxExposurePct > 100 {
		return fmt.Errorf("governor.max_portfolio_exposure_pct must be in (0, 100]")
	}
	if c.PollInterval <= 0 {
		return fmt.Errorf("poll_interval must be greater than 0")
	}
	return nil
}
