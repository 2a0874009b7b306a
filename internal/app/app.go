// Package app provides the main application lifecycle management for
// the watcher service.
package app

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/jmoiron/sqlx"
	"github.com/joho/godotenv"
	"github.com/redis/go-redis/v9"

	"earnwatch/internal/api"
	"earnwatch/internal/bot"
	"earnwatch/internal/config"
	"earnwatch/internal/logger"
	"earnwatch/internal/metrics"
	"earnwatch/internal/notify"
	"earnwatch/internal/scheduler"
	"earnwatch/internal/source"
	"earnwatch/internal/store"
	"earnwatch/internal/telegram"
	"earnwatch/internal/watcher"
)

const (
	shutdownTimeout = 30 * time.Second
	initTimeout     = 10 * time.Second
	pingTimeout     = 5 * time.Second
)

// App holds the wired service components and drives their lifecycle.
type App struct {
	config      *config.Config
	logger      logger.Logger
	db          *sqlx.DB
	redisClient *redis.Client
	scheduler   *scheduler.Scheduler
	bot         *bot.Bot
	server      *api.Server
	version     string
}

// Options contains configuration for creating a new App.
type Options struct {
	Version string
}

// New loads configuration and wires every component. A .env file in
// the working directory is loaded first when present, matching local
// development setups.
func New(opts Options) (*App, error) {
	_ = godotenv.Load()

	cfg, err := config.Load()
	if err != nil {
		return nil, fmt.Errorf("load config: %w", err)
	}

	appLogger, err := logger.NewLogger(cfg.Debug)
	if err != nil {
		return nil, fmt.Errorf("create logger: %w", err)
	}
	appLogger = appLogger.With(
		logger.String("service", "earnwatch"),
		logger.String("version", opts.Version),
	)

	db, repo, err := initStore(cfg)
	if err != nil {
		_ = appLogger.Sync()
		return nil, err
	}

	redisClient, err := initRedis(cfg, appLogger)
	if err != nil {
		db.Close()
		_ = appLogger.Sync()
		return nil, err
	}

	tracker := metrics.NewTracker(nil, appLogger)
	if redisClient != nil {
		tracker = metrics.NewTracker(redisClient, appLogger)
	}

	sourceClient := source.NewClient(cfg.Earn.BaseURL, cfg.Earn.Timeout, appLogger)
	tgClient := telegram.NewClient(cfg.Telegram.BotToken, appLogger)
	sender := notify.NewSender(tgClient, cfg.Telegram.ChatID, appLogger)

	watcherSvc := watcher.NewService(sourceClient, repo, sender, tracker, watcher.Config{
		MaxNotifsPerRun: cfg.Watcher.MaxNotifsPerRun,
		ForceCooldown:   cfg.Watcher.ForceCooldown(),
	}, appLogger)

	router := api.NewRouter(repo, tracker, watcherSvc.State(), redisClient, cfg.Debug, appLogger)

	return &App{
		config:      cfg,
		logger:      appLogger,
		db:          db,
		redisClient: redisClient,
		scheduler:   scheduler.New(watcherSvc, cfg.Watcher.PollInterval(), appLogger),
		bot:         bot.New(tgClient, repo, watcherSvc, watcherSvc.State(), cfg.Watcher.PollInterval(), appLogger),
		server:      api.NewServer(router, cfg.Server.Addr, cfg.Server.ReadTimeout, cfg.Server.WriteTimeout, appLogger),
		version:     opts.Version,
	}, nil
}

func initStore(cfg *config.Config) (*sqlx.DB, *store.Repository, error) {
	db, err := store.NewPostgresConnection(cfg.Database.URL)
	if err != nil {
		return nil, nil, fmt.Errorf("connect to database: %w", err)
	}

	repo := store.NewRepository(db)
	ctx, cancel := context.WithTimeout(context.Background(), initTimeout)
	defer cancel()
	if err = repo.Init(ctx); err != nil {
		db.Close()
		return nil, nil, fmt.Errorf("init schema: %w", err)
	}
	return db, repo, nil
}

// initRedis connects the optional metrics backend. An empty address
// disables it; a configured but unreachable one is a startup error.
func initRedis(cfg *config.Config, log logger.Logger) (*redis.Client, error) {
	if cfg.Redis.Addr == "" {
		log.Info("Redis not configured, cycle counters disabled")
		return nil, nil
	}

	client := redis.NewClient(&redis.Options{
		Addr:     cfg.Redis.Addr,
		Password: cfg.Redis.Password,
		DB:       cfg.Redis.DB,
	})

	ctx, cancel := context.WithTimeout(context.Background(), pingTimeout)
	defer cancel()
	if err := client.Ping(ctx).Err(); err != nil {
		return nil, fmt.Errorf("connect to Redis: %w", err)
	}
	return client, nil
}

// Run starts every component and blocks until a shutdown signal
// arrives or the HTTP server fails.
func (a *App) Run(ctx context.Context) error {
	a.logger.Info("Starting watcher service",
		logger.String("poll_interval", a.config.Watcher.PollInterval().String()),
		logger.Bool("debug", a.config.Debug),
	)

	runCtx, cancel := context.WithCancel(ctx)
	defer cancel()

	if err := a.scheduler.Start(runCtx); err != nil {
		return fmt.Errorf("start scheduler: %w", err)
	}

	go a.bot.Run(runCtx)

	serverErr := make(chan error, 1)
	go func() {
		serverErr <- a.server.Start()
	}()

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, os.Interrupt, syscall.SIGTERM)

	var runErr error
	select {
	case sig := <-sigChan:
		a.logger.Info("Shutting down gracefully", logger.String("signal", sig.String()))
	case err := <-serverErr:
		if err != nil {
			a.logger.Error("Status API failed", logger.Error(err))
			runErr = err
		}
	}

	cancel()
	a.shutdown()
	a.logger.Info("Service stopped")
	return runErr
}

func (a *App) shutdown() {
	// Stop the scheduler first so no cycle starts mid-shutdown; Stop
	// waits for a running cycle to finish.
	a.scheduler.Stop()

	ctx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	if err := a.server.Shutdown(ctx); err != nil {
		a.logger.Error("Status API shutdown failed", logger.Error(err))
	}

	if a.redisClient != nil {
		if err := a.redisClient.Close(); err != nil {
			a.logger.Error("Redis close failed", logger.Error(err))
		}
	}
	if err := a.db.Close(); err != nil {
		a.logger.Error("Database close failed", logger.Error(err))
	}
	_ = a.logger.Sync()
}
