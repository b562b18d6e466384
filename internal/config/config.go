// Package config defines the top-level configuration for the scorebot
// decision pipeline and provides validation helpers.
package config

import (
	"fmt"
	"strings"
	"time"
)

// Config is the root configuration structure. Fields are populated from a
// TOML file and then optionally overridden by SCOREBOT_* environment
// variables.
type Config struct {
	Instruments []string        `toml:"instruments"`
	Strategy    StrategyConfig  `toml:"strategy"`
	Risk        RiskConfig      `toml:"risk"`
	Execution   ExecutionConfig `toml:"execution"`
	Reconcile   ReconcileConfig `toml:"reconcile"`
	Postgres    PostgresConfig  `toml:"postgres"`
	Redis       RedisConfig     `toml:"redis"`
	Exchange    ExchangeConfig  `toml:"exchange"`
	Notify      NotifyConfig    `toml:"notify"`
	Mode        string          `toml:"mode"`
	LogLevel    string          `toml:"log_level"`
}

// StrategyConfig holds allocation and scoring thresholds.
type StrategyConfig struct {
	// MinScoreForExecution gates trading entirely: scores with a smaller
	// magnitude produce a zero allocation.
	MinScoreForExecution float64 `toml:"min_score_for_execution"`
	// BuyThreshold and SellThreshold classify a score into a direction.
	BuyThreshold  float64 `toml:"buy_threshold"`
	SellThreshold float64 `toml:"sell_threshold"`
	// AllocationMaxPercent caps a single position's notional as a percent
	// of account equity.
	AllocationMaxPercent float64 `toml:"allocation_max_percent"`
	// MaxTotalExposurePercent caps the notional summed over all open
	// positions as a percent of account equity.
	MaxTotalExposurePercent float64 `toml:"max_total_exposure_percent"`
	// MinOrderNotional drops allocations too small to be worth executing.
	MinOrderNotional float64 `toml:"min_order_notional"`
	// HoldTolerancePercent treats targets within this percent of the
	// current exposure as already satisfied (action HOLD).
	HoldTolerancePercent float64 `toml:"hold_tolerance_percent"`
}

// ProfitTakeLevel configures one partial-close trigger relative to entry.
type ProfitTakeLevel struct {
	GainPercent float64 `toml:"gain_percent"`
	Fraction    float64 `toml:"fraction"`
}

// RiskConfig holds the protective-exit parameters applied to every position.
type RiskConfig struct {
	StopLossPercent     float64           `toml:"stop_loss_percent"`
	TrailingStopPercent float64           `toml:"trailing_stop_percent"`
	// MinProfitToTrailPercent is the unrealized gain required before the
	// trailing stop arms.
	MinProfitToTrailPercent float64           `toml:"min_profit_to_trail_percent"`
	ProfitTakeLevels        []ProfitTakeLevel `toml:"profit_take_levels"`
}

// ExecutionConfig holds retry and confirmation parameters for order
// execution.
type ExecutionConfig struct {
	MaxRetryAttempts    int      `toml:"max_retry_attempts"`
	RetryBackoffBase    duration `toml:"retry_backoff_base"`
	ConfirmTimeout      duration `toml:"confirm_timeout"`
	ConfirmPollInterval duration `toml:"confirm_poll_interval"`
	Workers             int      `toml:"workers"`
	LockTTL             duration `toml:"lock_ttl"`
	// SweepInterval is how often open positions are re-evaluated against
	// the latest price when no fresh score arrives.
	SweepInterval duration `toml:"sweep_interval"`
}

// ReconcileConfig holds the reconciliation cadence and divergence tolerance.
type ReconcileConfig struct {
	Interval duration `toml:"interval"`
	// TolerancePercent is the relative quantity/price divergence below
	// which local and exchange records are considered in agreement.
	TolerancePercent float64 `toml:"tolerance_percent"`
}

// PostgresConfig holds PostgreSQL connection parameters.
type PostgresConfig struct {
	DSN           string `toml:"dsn"`
	Host          string `toml:"host"`
	Port          int    `toml:"port"`
	Database      string `toml:"database"`
	User          string `toml:"user"`
	Password      string `toml:"password"`
	SSLMode       string `toml:"ssl_mode"`
	PoolMaxConns  int    `toml:"pool_max_conns"`
	PoolMinConns  int    `toml:"pool_min_conns"`
	RunMigrations bool   `toml:"run_migrations"`
}

// RedisConfig holds Redis connection parameters.
type RedisConfig struct {
	Addr       string `toml:"addr"`
	Password   string `toml:"password"`
	DB         int    `toml:"db"`
	PoolSize   int    `toml:"pool_size"`
	MaxRetries int    `toml:"max_retries"`
	TLSEnabled bool   `toml:"tls_enabled"`
}

// ExchangeConfig selects the execution gateway. Only the paper gateway is
// built in; a real exchange client plugs in through the same interfaces.
type ExchangeConfig struct {
	// PaperEquity is the simulated account balance for the paper gateway.
	PaperEquity float64 `toml:"paper_equity"`
}

// NotifyConfig holds notification channel credentials.
type NotifyConfig struct {
	TelegramToken     string   `toml:"telegram_token"`
	TelegramChatID    string   `toml:"telegram_chat_id"`
	DiscordWebhookURL string   `toml:"discord_webhook_url"`
	Events            []string `toml:"events"`
}

// duration is a wrapper around time.Duration that supports TOML string
// decoding (e.g. "5m", "30s").
type duration struct {
	time.Duration
}

// UnmarshalText implements encoding.TextUnmarshaler so the TOML decoder can
// parse duration strings like "5m" or "30s".
func (d *duration) UnmarshalText(text []byte) error {
	var err error
	d.Duration, err = time.ParseDuration(string(text))
	return err
}

// MarshalText implements encoding.TextMarshaler for round-trip encoding.
func (d duration) MarshalText() ([]byte, error) {
	return []byte(d.Duration.String()), nil
}

// Defaults returns a Config populated with reasonable default values.
// These match the values in config.example.toml.
func Defaults() Config {
	return Config{
		Instruments: []string{"BTCUSDT", "ETHUSDT", "BNBUSDT"},
		Strategy: StrategyConfig{
			MinScoreForExecution:    0.45,
			BuyThreshold:            0.6,
			SellThreshold:           -0.45,
			AllocationMaxPercent:    5.0,
			MaxTotalExposurePercent: 25.0,
			MinOrderNotional:        10.0,
			HoldTolerancePercent:    1.0,
		},
		Risk: RiskConfig{
			StopLossPercent:         5.0,
			TrailingStopPercent:     1.5,
			MinProfitToTrailPercent: 2.0,
			ProfitTakeLevels: []ProfitTakeLevel{
				{GainPercent: 2.0, Fraction: 0.3},
				{GainPercent: 5.0, Fraction: 0.5},
			},
		},
		Execution: ExecutionConfig{
			MaxRetryAttempts:    3,
			RetryBackoffBase:    duration{500 * time.Millisecond},
			ConfirmTimeout:      duration{15 * time.Second},
			ConfirmPollInterval: duration{500 * time.Millisecond},
			Workers:             4,
			LockTTL:             duration{2 * time.Minute},
			SweepInterval:       duration{30 * time.Second},
		},
		Reconcile: ReconcileConfig{
			Interval:         duration{5 * time.Minute},
			TolerancePercent: 0.5,
		},
		Postgres: PostgresConfig{
			Host:          "localhost",
			Port:          5432,
			Database:      "scorebot",
			User:          "postgres",
			SSLMode:       "disable",
			PoolMaxConns:  10,
			PoolMinConns:  2,
			RunMigrations: true,
		},
		Redis: RedisConfig{
			Addr:       "localhost:6379",
			DB:         0,
			PoolSize:   20,
			MaxRetries: 3,
			TLSEnabled: false,
		},
		Exchange: ExchangeConfig{
			PaperEquity: 10000,
		},
		Notify: NotifyConfig{
			Events: []string{"decision_made", "execution_failed", "position_reconciled"},
		},
		Mode:     "trade",
		LogLevel: "info",
	}
}

// validModes enumerates the accepted values for Config.Mode.
var validModes = map[string]bool{
	"trade":   true,
	"monitor": true,
}

// validLogLevels enumerates the accepted values for Config.LogLevel.
var validLogLevels = map[string]bool{
	"debug": true,
	"info":  true,
	"warn":  true,
	"error": true,
}

// Validate checks Config for obviously invalid or missing values and returns
// a combined error describing every problem found. A validation failure is
// fatal at startup and never retried.
func (c *Config) Validate() error {
	var errs []string

	if !validModes[strings.ToLower(c.Mode)] {
		errs = append(errs, fmt.Sprintf("unknown mode %q (valid: trade, monitor)", c.Mode))
	}
	if !validLogLevels[strings.ToLower(c.LogLevel)] {
		errs = append(errs, fmt.Sprintf("unknown log_level %q (valid: debug, info, warn, error)", c.LogLevel))
	}

	if len(c.Instruments) == 0 {
		errs = append(errs, "instruments must not be empty")
	}

	// Strategy
	if c.Strategy.MinScoreForExecution < 0 {
		errs = append(errs, "strategy: min_score_for_execution must be >= 0")
	}
	if c.Strategy.BuyThreshold <= 0 {
		errs = append(errs, "strategy: buy_threshold must be > 0")
	}
	if c.Strategy.SellThreshold >= 0 {
		errs = append(errs, "strategy: sell_threshold must be < 0")
	}
	if c.Strategy.AllocationMaxPercent <= 0 || c.Strategy.AllocationMaxPercent > 100 {
		errs = append(errs, fmt.Sprintf("strategy: allocation_max_percent must be in (0,100], got %g", c.Strategy.AllocationMaxPercent))
	}
	if c.Strategy.MaxTotalExposurePercent < c.Strategy.AllocationMaxPercent {
		errs = append(errs, "strategy: max_total_exposure_percent must be >= allocation_max_percent")
	}
	if c.Strategy.MinOrderNotional < 0 {
		errs = append(errs, "strategy: min_order_notional must be >= 0")
	}
	if c.Strategy.HoldTolerancePercent < 0 {
		errs = append(errs, "strategy: hold_tolerance_percent must be >= 0")
	}

	// Risk
	if c.Risk.StopLossPercent < 0 {
		errs = append(errs, "risk: stop_loss_percent must be >= 0")
	}
	if c.Risk.TrailingStopPercent < 0 {
		errs = append(errs, "risk: trailing_stop_percent must be >= 0")
	}
	var tpSum float64
	for i, lvl := range c.Risk.ProfitTakeLevels {
		if lvl.GainPercent <= 0 {
			errs = append(errs, fmt.Sprintf("risk: profit_take_levels[%d].gain_percent must be > 0", i))
		}
		if lvl.Fraction <= 0 || lvl.Fraction > 1 {
			errs = append(errs, fmt.Sprintf("risk: profit_take_levels[%d].fraction must be in (0,1]", i))
		}
		if i > 0 && lvl.GainPercent <= c.Risk.ProfitTakeLevels[i-1].GainPercent {
			errs = append(errs, "risk: profit_take_levels must be ordered by ascending gain_percent")
		}
		tpSum += lvl.Fraction
	}
	if tpSum > 1 {
		errs = append(errs, fmt.Sprintf("risk: profit_take_levels fractions sum to %g, must be <= 1", tpSum))
	}

	// Execution
	if c.Execution.MaxRetryAttempts < 1 {
		errs = append(errs, "execution: max_retry_attempts must be >= 1")
	}
	if c.Execution.RetryBackoffBase.Duration <= 0 {
		errs = append(errs, "execution: retry_backoff_base must be > 0")
	}
	if c.Execution.ConfirmTimeout.Duration <= 0 {
		errs = append(errs, "execution: confirm_timeout must be > 0")
	}
	if c.Execution.ConfirmPollInterval.Duration <= 0 {
		errs = append(errs, "execution: confirm_poll_interval must be > 0")
	}
	if c.Execution.Workers < 1 {
		errs = append(errs, "execution: workers must be >= 1")
	}
	if c.Execution.LockTTL.Duration < c.Execution.ConfirmTimeout.Duration {
		errs = append(errs, "execution: lock_ttl must be >= confirm_timeout")
	}
	if c.Execution.SweepInterval.Duration <= 0 {
		errs = append(errs, "execution: sweep_interval must be > 0")
	}

	// Reconcile
	if c.Reconcile.Interval.Duration <= 0 {
		errs = append(errs, "reconcile: interval must be > 0")
	}
	if c.Reconcile.TolerancePercent < 0 {
		errs = append(errs, "reconcile: tolerance_percent must be >= 0")
	}

	// Postgres
	if strings.TrimSpace(c.Postgres.DSN) == "" {
		if c.Postgres.Host == "" {
			errs = append(errs, "postgres: host must not be empty (or set postgres.dsn)")
		}
		if c.Postgres.Port <= 0 || c.Postgres.Port > 65535 {
			errs = append(errs, fmt.Sprintf("postgres: port must be 1-65535, got %d", c.Postgres.Port))
		}
		if c.Postgres.Database == "" {
			errs = append(errs, "postgres: database must not be empty")
		}
	}
	if c.Postgres.PoolMaxConns < 1 {
		errs = append(errs, "postgres: pool_max_conns must be >= 1")
	}
	if c.Postgres.PoolMinConns < 0 {
		errs = append(errs, "postgres: pool_min_conns must be >= 0")
	}
	if c.Postgres.PoolMinConns > c.Postgres.PoolMaxConns {
		errs = append(errs, "postgres: pool_min_conns must not exceed pool_max_conns")
	}

	// Exchange
	if c.Exchange.PaperEquity <= 0 {
		errs = append(errs, "exchange: paper_equity must be > 0")
	}

	// Redis
	if c.Redis.Addr == "" {
		errs = append(errs, "redis: addr must not be empty")
	}
	if c.Redis.PoolSize < 1 {
		errs = append(errs, "redis: pool_size must be >= 1")
	}

	if len(errs) > 0 {
		return fmt.Errorf("config validation failed:\n  - %s", strings.Join(errs, "\n  - "))
	}
	return nil
}
