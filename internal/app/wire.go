package app

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/shopspring/decimal"

	s3blob "github.com/alanyoungcy/crudebot/internal/blob/s3"
	"github.com/alanyoungcy/crudebot/internal/cache/redis"
	"github.com/alanyoungcy/crudebot/internal/config"
	"github.com/alanyoungcy/crudebot/internal/crypto"
	"github.com/alanyoungcy/crudebot/internal/domain"
	"github.com/alanyoungcy/crudebot/internal/executor"
	"github.com/alanyoungcy/crudebot/internal/notify"
	"github.com/alanyoungcy/crudebot/internal/platform/exchange"
	"github.com/alanyoungcy/crudebot/internal/server/handler"
	"github.com/alanyoungcy/crudebot/internal/store/postgres"
	"github.com/alanyoungcy/crudebot/internal/strategy"
)

// Dependencies bundles everything the run modes need. It is constructed by
// Wire and torn down by the returned cleanup function. Everything except
// Exchange, Executor, Engine and Notifier is optional.
type Dependencies struct {
	Exchange *exchange.Client
	Executor *executor.Executor
	Engine   *strategy.Engine
	Notifier *notify.Notifier

	// Journal
	ActionStore *postgres.ActionStore

	// Redis
	APILimiter domain.RateLimiter
	LockManager domain.LockManager
	SignalBus   domain.SignalBus

	// Blob storage
	Archiver *s3blob.ArchiveImpl

	// HealthChecks ping each wired backing service.
	HealthChecks map[string]handler.CheckFunc
}

// Wire constructs all concrete implementations from cfg and returns them
// together with a cleanup function to call on shutdown.
func Wire(ctx context.Context, cfg *config.Config, logger *slog.Logger) (*Dependencies, func(), error) {
	var closers []func()
	cleanup := func() {
		for i := len(closers) - 1; i >= 0; i-- {
			closers[i]()
		}
	}
	fail := func(err error) (*Dependencies, func(), error) {
		cleanup()
		return nil, nil, err
	}

	deps := &Dependencies{HealthChecks: make(map[string]handler.CheckFunc)}

	apiKey, err := crypto.LoadAPIKey(crypto.KeyConfig{
		APIKey:           cfg.Exchange.APIKey,
		EncryptedKeyPath: cfg.Exchange.EncryptedKeyPath,
		KeyPassword:      cfg.Exchange.KeyPassword,
	})
	if err != nil {
		return fail(fmt.Errorf("wire: api key: %w", err))
	}

	// --- PostgreSQL action journal ---
	if cfg.Supabase.Enabled {
		db, err := postgres.Open(ctx, postgres.Config{
			DSN:      cfg.Supabase.DSN,
			Host:     cfg.Supabase.Host,
			Port:     cfg.Supabase.Port,
			Database: cfg.Supabase.Database,
			User:     cfg.Supabase.User,
			Password: cfg.Supabase.Password,
			SSLMode:  cfg.Supabase.SSLMode,
			MaxConns: cfg.Supabase.PoolMaxConns,
			MinConns: cfg.Supabase.PoolMinConns,
		})
		if err != nil {
			return fail(fmt.Errorf("wire: postgres: %w", err))
		}
		closers = append(closers, db.Close)

		if cfg.Supabase.RunMigrations {
			if err := db.Migrate(ctx); err != nil {
				return fail(fmt.Errorf("wire: postgres migrations: %w", err))
			}
		}
		deps.ActionStore = db.Actions()
		deps.HealthChecks["postgres"] = db.Ping
	}

	// --- Redis ---
	var exchangeLimiter domain.RateLimiter
	var publisher *redis.ActionPublisher
	if cfg.Redis.Enabled {
		redisClient, err := redis.Dial(ctx, redis.Config{
			Addr:       cfg.Redis.Addr,
			Password:   cfg.Redis.Password,
			DB:         cfg.Redis.DB,
			PoolSize:   cfg.Redis.PoolSize,
			MaxRetries: cfg.Redis.MaxRetries,
			TLS:        cfg.Redis.TLSEnabled,
			KeyPrefix:  cfg.Redis.KeyPrefix,
		})
		if err != nil {
			return fail(fmt.Errorf("wire: redis: %w", err))
		}
		closers = append(closers, func() { _ = redisClient.Close() })

		if cfg.Exchange.RateLimit > 0 {
			exchangeLimiter = redis.NewRateLimiter(redisClient, cfg.Exchange.RateLimit, cfg.Exchange.RateWindow.Duration)
		}
		if cfg.Server.RateLimit > 0 {
			deps.APILimiter = redis.NewRateLimiter(redisClient, cfg.Server.RateLimit, time.Minute)
		}
		deps.HealthChecks["redis"] = redisClient.Ping
		deps.LockManager = redis.NewLockManager(redisClient)
		bus := redis.NewSignalBus(redisClient, cfg.Redis.StreamMaxLen)
		deps.SignalBus = bus
		publisher = redis.NewActionPublisher(bus)
	}

	// --- S3 journal archive ---
	if cfg.S3.Enabled && deps.ActionStore != nil {
		archive, err := s3blob.Open(ctx, s3blob.Config{
			Endpoint:       cfg.S3.Endpoint,
			Region:         cfg.S3.Region,
			Bucket:         cfg.S3.Bucket,
			Prefix:         cfg.S3.Prefix,
			AccessKey:      cfg.S3.AccessKey,
			SecretKey:      cfg.S3.SecretKey,
			UseSSL:         cfg.S3.UseSSL,
			ForcePathStyle: cfg.S3.ForcePathStyle,
		})
		if err != nil {
			return fail(fmt.Errorf("wire: s3: %w", err))
		}
		deps.HealthChecks["s3"] = archive.Ping
		deps.Archiver = s3blob.NewArchiver(archive, archive, deps.ActionStore, logger)
	}

	// --- Notifications ---
	httpClient := &http.Client{Timeout: 10 * time.Second}
	var channels []notify.Channel
	if cfg.Notify.TelegramToken != "" && cfg.Notify.TelegramChatID != "" {
		channels = append(channels, notify.Telegram(
			notify.TelegramAPI,
			cfg.Notify.TelegramToken,
			cfg.Notify.TelegramChatID,
			httpClient,
		))
	}
	if cfg.Notify.DiscordWebhookURL != "" {
		channels = append(channels, notify.Discord(cfg.Notify.DiscordWebhookURL, httpClient))
	}
	deps.Notifier = notify.New(notify.Config{
		Events:      cfg.Notify.Events,
		QuietPeriod: cfg.Notify.QuietPeriod.Duration,
		Bus:         deps.SignalBus,
	}, logger, channels...)

	// --- Exchange, executor and strategies ---
	deps.Exchange = exchange.NewClient(exchange.Config{
		BaseURL: cfg.Exchange.BaseURL,
		APIKey:  apiKey,
		Timeout: cfg.Exchange.RequestTimeout.Duration,
		Logger:  logger,
	}, nil, exchangeLimiter)

	var recorders []executor.Recorder
	if deps.ActionStore != nil {
		recorders = append(recorders, deps.ActionStore)
	}
	if publisher != nil {
		recorders = append(recorders, publisher)
	}
	deps.Executor = executor.NewExecutor(deps.Exchange, logger,
		executor.WithRecorders(recorders...),
		executor.WithAlerter(deps.Notifier),
		executor.WithDryRun(cfg.DryRun()),
	)

	sd := strategy.Deps{
		Market:  deps.Exchange,
		Actions: deps.Executor,
		Alerts:  deps.Notifier,
		Logger:  logger,
	}
	deps.Engine = strategy.NewEngine(newRegistry(sd, strategyParams(cfg.Trading)), strategy.EngineConfig{
		Interval: cfg.Trading.PollInterval.Duration,
		LockTTL:  cfg.Trading.CycleLockTTL.Duration,
		Locks:    deps.LockManager,
		Bus:      deps.SignalBus,
		Alerts:   deps.Notifier,
	}, logger)

	return deps, cleanup, nil
}

// newRegistry registers the strategies in the order they run each cycle.
func newRegistry(sd strategy.Deps, p strategy.Params) *strategy.Registry {
	reg := strategy.NewRegistry()
	reg.Register(strategy.NewNews(sd, p))
	reg.Register(strategy.NewTransport(sd, p))
	reg.Register(strategy.NewRefinery(sd, p))
	reg.Register(strategy.NewSpotFutures(sd, p))
	return reg
}

// strategyParams converts the configured constants to the strategies' decimal
// form.
func strategyParams(t config.TradingConfig) strategy.Params {
	return strategy.Params{
		OrderLimit:            t.OrderLimit,
		TransportLimit:        t.TransportLimit,
		ArbitrageThreshold:    decimal.NewFromFloat(t.ArbitrageThreshold),
		CrackSpreadThreshold:  decimal.NewFromFloat(t.CrackSpreadThreshold),
		PipelineCost:          decimal.NewFromFloat(t.PipelineCost),
		RefineryCostPerBarrel: decimal.NewFromFloat(t.RefineryCostPerBarrel),
		Elasticity:            decimal.NewFromFloat(t.Elasticity),
		LeaseLookupAttempts:   t.LeaseLookupAttempts,
		LeaseLookupBackoff:    t.LeaseLookupBackoff.Duration,
	}
}
