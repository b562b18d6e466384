package config

import (
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/BurntSushi/toml"
	"github.com/joho/godotenv"
)

// Load reads a TOML configuration file at path, merges it on top of the
// built-in defaults, applies SCOREBOT_* environment variable overrides, and
// returns the final Config. The returned Config has NOT been validated; the
// caller should invoke Config.Validate() after Load.
func Load(path string) (*Config, error) {
	cfg := Defaults()

	if _, err := toml.DecodeFile(path, &cfg); err != nil {
		return nil, err
	}

	// Load .env file if present (silently ignore if missing).
	_ = godotenv.Load()

	applyEnvOverrides(&cfg)

	return &cfg, nil
}

// applyEnvOverrides reads well-known SCOREBOT_* environment variables and
// overwrites the corresponding Config fields when a variable is set. This
// lets operators inject secrets at deploy time without touching the TOML
// file.
func applyEnvOverrides(cfg *Config) {
	setStringSlice(&cfg.Instruments, "SCOREBOT_INSTRUMENTS")

	// ── Strategy ──
	setFloat64(&cfg.Strategy.MinScoreForExecution, "SCOREBOT_STRATEGY_MIN_SCORE_FOR_EXECUTION")
	setFloat64(&cfg.Strategy.BuyThreshold, "SCOREBOT_STRATEGY_BUY_THRESHOLD")
	setFloat64(&cfg.Strategy.SellThreshold, "SCOREBOT_STRATEGY_SELL_THRESHOLD")
	setFloat64(&cfg.Strategy.AllocationMaxPercent, "SCOREBOT_STRATEGY_ALLOCATION_MAX_PERCENT")
	setFloat64(&cfg.Strategy.MaxTotalExposurePercent, "SCOREBOT_STRATEGY_MAX_TOTAL_EXPOSURE_PERCENT")
	setFloat64(&cfg.Strategy.MinOrderNotional, "SCOREBOT_STRATEGY_MIN_ORDER_NOTIONAL")
	setFloat64(&cfg.Strategy.HoldTolerancePercent, "SCOREBOT_STRATEGY_HOLD_TOLERANCE_PERCENT")

	// ── Risk ──
	setFloat64(&cfg.Risk.StopLossPercent, "SCOREBOT_RISK_STOP_LOSS_PERCENT")
	setFloat64(&cfg.Risk.TrailingStopPercent, "SCOREBOT_RISK_TRAILING_STOP_PERCENT")
	setFloat64(&cfg.Risk.MinProfitToTrailPercent, "SCOREBOT_RISK_MIN_PROFIT_TO_TRAIL_PERCENT")

	// ── Execution ──
	setInt(&cfg.Execution.MaxRetryAttempts, "SCOREBOT_EXECUTION_MAX_RETRY_ATTEMPTS")
	setDuration(&cfg.Execution.RetryBackoffBase, "SCOREBOT_EXECUTION_RETRY_BACKOFF_BASE")
	setDuration(&cfg.Execution.ConfirmTimeout, "SCOREBOT_EXECUTION_CONFIRM_TIMEOUT")
	setDuration(&cfg.Execution.ConfirmPollInterval, "SCOREBOT_EXECUTION_CONFIRM_POLL_INTERVAL")
	setInt(&cfg.Execution.Workers, "SCOREBOT_EXECUTION_WORKERS")
	setDuration(&cfg.Execution.LockTTL, "SCOREBOT_EXECUTION_LOCK_TTL")
	setDuration(&cfg.Execution.SweepInterval, "SCOREBOT_EXECUTION_SWEEP_INTERVAL")

	// ── Reconcile ──
	setDuration(&cfg.Reconcile.Interval, "SCOREBOT_RECONCILE_INTERVAL")
	setFloat64(&cfg.Reconcile.TolerancePercent, "SCOREBOT_RECONCILE_TOLERANCE_PERCENT")

	// ── Postgres ──
	setStr(&cfg.Postgres.DSN, "SCOREBOT_POSTGRES_DSN")
	setStr(&cfg.Postgres.Host, "SCOREBOT_POSTGRES_HOST")
	setInt(&cfg.Postgres.Port, "SCOREBOT_POSTGRES_PORT")
	setStr(&cfg.Postgres.Database, "SCOREBOT_POSTGRES_DATABASE")
	setStr(&cfg.Postgres.User, "SCOREBOT_POSTGRES_USER")
	setStr(&cfg.Postgres.Password, "SCOREBOT_POSTGRES_PASSWORD")
	setStr(&cfg.Postgres.SSLMode, "SCOREBOT_POSTGRES_SSLMODE")
	setInt(&cfg.Postgres.PoolMaxConns, "SCOREBOT_POSTGRES_POOL_MAX_CONNS")
	setInt(&cfg.Postgres.PoolMinConns, "SCOREBOT_POSTGRES_POOL_MIN_CONNS")
	setBool(&cfg.Postgres.RunMigrations, "SCOREBOT_POSTGRES_RUN_MIGRATIONS")

	// ── Redis ──
	setStr(&cfg.Redis.Addr, "SCOREBOT_REDIS_ADDR")
	setStr(&cfg.Redis.Password, "SCOREBOT_REDIS_PASSWORD")
	setInt(&cfg.Redis.DB, "SCOREBOT_REDIS_DB")
	setInt(&cfg.Redis.PoolSize, "SCOREBOT_REDIS_POOL_SIZE")
	setInt(&cfg.Redis.MaxRetries, "SCOREBOT_REDIS_MAX_RETRIES")
	setBool(&cfg.Redis.TLSEnabled, "SCOREBOT_REDIS_TLS_ENABLED")

	setFloat64(&cfg.Exchange.PaperEquity, "SCOREBOT_EXCHANGE_PAPER_EQUITY")

	// ── Notify ──
	setStr(&cfg.Notify.TelegramToken, "SCOREBOT_NOTIFY_TELEGRAM_TOKEN")
	setStr(&cfg.Notify.TelegramChatID, "SCOREBOT_NOTIFY_TELEGRAM_CHAT_ID")
	setStr(&cfg.Notify.DiscordWebhookURL, "SCOREBOT_NOTIFY_DISCORD_WEBHOOK_URL")
	setStringSlice(&cfg.Notify.Events, "SCOREBOT_NOTIFY_EVENTS")

	// ── Top-level ──
	setStr(&cfg.Mode, "SCOREBOT_MODE")
	setStr(&cfg.LogLevel, "SCOREBOT_LOG_LEVEL")
}

// ---------------------------------------------------------------------------
// Typed env-var helpers. Each only mutates the target when the environment
// variable is present and non-empty.
// ---------------------------------------------------------------------------

func setStr(dst *string, key string) {
	if v := os.Getenv(key); v != "" {
		*dst = v
	}
}

func setInt(dst *int, key string) {
	if v := os.Getenv(key); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			*dst = n
		}
	}
}

func setFloat64(dst *float64, key string) {
	if v := os.Getenv(key); v != "" {
		if f, err := strconv.ParseFloat(v, 64); err == nil {
			*dst = f
		}
	}
}

func setBool(dst *bool, key string) {
	if v := os.Getenv(key); v != "" {
		if b, err := strconv.ParseBool(v); err == nil {
			*dst = b
		}
	}
}

func setDuration(dst *duration, key string) {
	if v := os.Getenv(key); v != "" {
		if d, err := time.ParseDuration(v); err == nil {
			dst.Duration = d
		}
	}
}

func setStringSlice(dst *[]string, key string) {
	if v := os.Getenv(key); v != "" {
		parts := strings.Split(v, ",")
		cleaned := make([]string, 0, len(parts))
		for _, p := range parts {
			p = strings.TrimSpace(p)
			if p != "" {
				cleaned = append(cleaned, p)
			}
		}
		if len(cleaned) > 0 {
			*dst = cleaned
		}
	}
}
