// Package app wires the communication layer together from a config.Config.
package app

import (
	"context"
	"fmt"

	"extsys/internal/common/cache"
	"extsys/internal/common/logging"
	"extsys/internal/common/ratelimit"
	"extsys/internal/config"
	"extsys/internal/crypto"
	"extsys/internal/events"
	"extsys/internal/protocols"
	httpproto "extsys/internal/protocols/http"
	"extsys/internal/protocols/redisstream"
	"extsys/internal/provider"
	"extsys/internal/redis"
	"extsys/internal/storage"
	_ "extsys/internal/storage/memory"
	_ "extsys/internal/storage/postgres"
	_ "extsys/internal/storage/sqlite"
)

// Secrets seals secrets before they are stored and opens them for use
type Secrets interface {
	crypto.Encrypter
	crypto.Decrypter
}

// App holds all the application dependencies
type App struct {
	Config    *config.Config
	Logger    logging.Logger
	Secrets   Secrets
	Redis     *redis.Client
	Bus       events.Bus
	Store     storage.Store
	Executor  *protocols.Executor
	Limiter   *ratelimit.Limiter
	Protocols *protocols.Registry
	Provider  *provider.Provider

	invalidator *events.Invalidator
}

// New creates a new application instance with all dependencies. On failure
// everything built so far is closed.
func New(ctx context.Context, cfg *config.Config) (*App, error) {
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}

	logging.InitGlobalLogger(cfg.LogLevel, cfg.LogFormat, nil)
	app := &App{
		Config: cfg,
		Logger: logging.GetGlobalLogger().WithFields(logging.String("component", "app")),
	}

	steps := []func(ctx context.Context) error{
		app.initializeSecrets,
		app.initializeRedis,
		app.initializeBus,
		app.initializeStorage,
		app.initializeProtocols,
		app.initializeProvider,
	}
	for _, step := range steps {
		if err := step(ctx); err != nil {
			app.Close()
			return nil, err
		}
	}

	app.Logger.Info("Application initialized",
		logging.String("database_type", cfg.StoreType()),
		logging.String("event_bus", cfg.EventBus),
		logging.Bool("redis", app.Redis != nil),
		logging.Any("protocols", app.Protocols.GetAvailableTypes()),
	)
	return app, nil
}

func (app *App) initializeSecrets(context.Context) error {
	if app.Config.EncryptionKey == "" {
		app.Logger.Warn("CONFIG_ENCRYPTION_KEY is not set, secrets are stored as given")
		app.Secrets = crypto.PlainText{}
		return nil
	}
	encryptor, err := crypto.NewConfigEncryptor(app.Config.EncryptionKey)
	if err != nil {
		return fmt.Errorf("failed to initialize encryption: %w", err)
	}
	app.Secrets = encryptor
	return nil
}

func (app *App) redisConfig() *redis.Config {
	if !app.Config.UseRedis() {
		return nil
	}
	return &redis.Config{
		Address:  app.Config.RedisAddress,
		Password: app.Config.RedisPassword,
		DB:       app.Config.RedisDBNumber(),
		PoolSize: app.Config.RedisPoolSizeNumber(),
	}
}

func (app *App) initializeRedis(context.Context) error {
	redisConfig := app.redisConfig()
	if redisConfig == nil {
		return nil
	}

	client, err := redis.NewClient(redisConfig)
	if err != nil {
		if app.Config.EventBus == "redis" {
			return err
		}
		// the stream transport opens its own connections
		app.Logger.Warn("Redis is unreachable, continuing without it", logging.Err(err))
		return nil
	}
	app.Redis = client
	return nil
}

func (app *App) initializeBus(ctx context.Context) error {
	if app.Config.EventBus != "redis" {
		app.Bus = events.NewLocalBus()
		return nil
	}

	bus, err := events.NewRedisBus(ctx, app.Redis, app.Config.EventChannel, app.Logger)
	if err != nil {
		return fmt.Errorf("failed to subscribe to change events: %w", err)
	}
	app.Bus = bus
	return nil
}

func (app *App) initializeStorage(context.Context) error {
	settings := storage.Settings{
		SQLitePath: app.Config.DatabasePath,
		Postgres: storage.PostgresSettings{
			Host:     app.Config.PostgresHost,
			Port:     app.Config.PostgresPortNumber(),
			Database: app.Config.PostgresDB,
			Username: app.Config.PostgresUser,
			Password: app.Config.PostgresPassword,
			SSLMode:  app.Config.PostgresSSLMode,
		},
	}

	store, err := storage.Create(app.Config.StoreType(), settings, app.Bus, app.Logger)
	if err != nil {
		return fmt.Errorf("failed to initialize storage: %w", err)
	}
	app.Store = store
	return nil
}

func (app *App) initializeProtocols(context.Context) error {
	limiter, err := ratelimit.NewLimiter(app.Config.RateLimit())
	if err != nil {
		return fmt.Errorf("failed to initialize rate limiter: %w", err)
	}
	app.Limiter = limiter

	app.Executor = protocols.NewExecutor(app.Config.MaxConcurrent())
	app.Protocols = protocols.NewRegistry()

	app.Protocols.Register(httpproto.NewFactory(httpproto.Dependencies{
		Executor:  app.Executor,
		Decrypter: app.Secrets,
		Logger:    app.Logger,
		Limiter:   limiter,
	}))
	app.Protocols.Register(redisstream.NewFactory(redisstream.Dependencies{
		Executor: app.Executor,
		Conn:     app.Redis,
		Redis:    app.redisConfig(),
		Logger:   app.Logger,
	}))
	return nil
}

func (app *App) initializeProvider(context.Context) error {
	instances := cache.NewInstanceCache[protocols.ExternalSystem](cache.Config{
		TTL:             app.Config.CacheTTL(),
		CleanupInterval: cache.DefaultCleanupInterval,
	}, app.Logger)

	app.Provider = provider.New(app.Store, app.Protocols, instances, app.Logger)
	app.invalidator = events.NewInvalidator(app.Bus, app.Provider, app.Logger)
	return nil
}

// Close tears the application down in reverse order of construction.
func (app *App) Close() {
	if app.invalidator != nil {
		app.invalidator.Stop()
	}
	if app.Provider != nil {
		app.Provider.Close()
	}
	if app.Executor != nil {
		app.Executor.Wait()
	}
	if app.Store != nil {
		if err := app.Store.Close(); err != nil {
			app.Logger.Error("Failed to close storage", err)
		}
	}
	if app.Bus != nil {
		if err := app.Bus.Close(); err != nil {
			app.Logger.Error("Failed to close event bus", err)
		}
	}
	if app.Redis != nil {
		if err := app.Redis.Close(); err != nil {
			app.Logger.Error("Failed to close Redis client", err)
		}
	}
	logging.MustSync()
}
