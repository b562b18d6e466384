package app

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/avelichko/scorebot/internal/cache/redis"
	"github.com/avelichko/scorebot/internal/config"
	"github.com/avelichko/scorebot/internal/domain"
	"github.com/avelichko/scorebot/internal/exchange"
	"github.com/avelichko/scorebot/internal/notify"
	"github.com/avelichko/scorebot/internal/store/memory"
	"github.com/avelichko/scorebot/internal/store/postgres"
)

// Dependencies bundles every domain-level dependency the application modes
// need. It is constructed by Wire and torn down by the returned cleanup
// function.
type Dependencies struct {
	// Stores
	PositionStore domain.PositionStore
	AuditStore    domain.AuditStore

	// Redis
	PriceCache  domain.PriceCache
	LockManager domain.LockManager
	SignalBus   *redis.SignalBus

	// Exchange
	Gateway  domain.ExecutionGateway
	Exchange domain.ExchangeState
	Account  domain.AccountInfo

	// Notifications
	Notifier *notify.Notifier
	Events   *notify.Events
}

// needsPostgres returns true for modes that require durable persistence.
// Monitor mode runs entirely on in-memory stores.
func needsPostgres(mode string) bool {
	return mode == "trade"
}

// Wire constructs all concrete dependency implementations from the given
// configuration and returns them together with a cleanup function that
// should be called on shutdown to release resources.
func Wire(ctx context.Context, cfg *config.Config, logger *slog.Logger) (*Dependencies, func(), error) {
	var closers []func()
	cleanup := func() {
		for i := len(closers) - 1; i >= 0; i-- {
			closers[i]()
		}
	}

	deps := &Dependencies{}

	// --- Stores ---
	if needsPostgres(cfg.Mode) {
		pgClient, err := postgres.Connect(ctx, postgres.Config{
			DSN:      cfg.Postgres.DSN,
			Host:     cfg.Postgres.Host,
			Port:     cfg.Postgres.Port,
			Database: cfg.Postgres.Database,
			User:     cfg.Postgres.User,
			Password: cfg.Postgres.Password,
			SSLMode:  cfg.Postgres.SSLMode,
			MaxConns: cfg.Postgres.PoolMaxConns,
			MinConns: cfg.Postgres.PoolMinConns,
		})
		if err != nil {
			cleanup()
			return nil, nil, fmt.Errorf("wire: postgres: %w", err)
		}
		closers = append(closers, pgClient.Close)

		if cfg.Postgres.RunMigrations {
			if err := pgClient.RunMigrations(ctx); err != nil {
				cleanup()
				return nil, nil, fmt.Errorf("wire: postgres migrations: %w", err)
			}
		}

		pool := pgClient.Pool()
		deps.PositionStore = postgres.NewPositionStore(pool)
		deps.AuditStore = postgres.NewAuditStore(pool)
	} else {
		deps.PositionStore = memory.NewPositionStore()
		deps.AuditStore = memory.NewAuditStore()
	}

	// --- Redis ---
	redisClient, err := redis.Connect(ctx, redis.Options{
		Addr:       cfg.Redis.Addr,
		Password:   cfg.Redis.Password,
		DB:         cfg.Redis.DB,
		PoolSize:   cfg.Redis.PoolSize,
		MaxRetries: cfg.Redis.MaxRetries,
		TLS:        cfg.Redis.TLSEnabled,
	})
	if err != nil {
		cleanup()
		return nil, nil, fmt.Errorf("wire: redis: %w", err)
	}
	closers = append(closers, func() { _ = redisClient.Close() })

	deps.PriceCache = redis.NewPriceCache(redisClient)
	deps.LockManager = redis.NewLockManager(redisClient)
	deps.SignalBus = redis.NewSignalBus(redisClient)

	// --- Exchange ---
	// Only the paper gateway ships; a real exchange client implements the
	// same three interfaces and slots in here.
	paper := exchange.NewPaper(deps.PriceCache, cfg.Exchange.PaperEquity, logger)
	deps.Gateway = paper
	deps.Exchange = paper
	deps.Account = paper

	// --- Notifications ---
	var senders []notify.Sender
	if cfg.Notify.TelegramToken != "" && cfg.Notify.TelegramChatID != "" {
		senders = append(senders, notify.NewTelegram(
			cfg.Notify.TelegramToken,
			cfg.Notify.TelegramChatID,
		))
	}
	if cfg.Notify.DiscordWebhookURL != "" {
		senders = append(senders, notify.NewDiscord(cfg.Notify.DiscordWebhookURL))
	}
	deps.Notifier = notify.NewNotifier(senders, cfg.Notify.Events, logger)
	deps.Events = notify.NewEvents(deps.SignalBus, deps.AuditStore, deps.Notifier, logger)

	return deps, cleanup, nil
}
