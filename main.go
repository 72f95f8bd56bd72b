package main

import (
	"context"
	"errors"
	"log" // Use standard log only for initial fatal errors before logger is set up
	"os/signal"
	"syscall"

	"tradedash/config"
	"tradedash/internal/adapters/engineclient"
	"tradedash/internal/adapters/logger"
	"tradedash/internal/adapters/sqlite"
	"tradedash/internal/app"
)

func main() {
	// 1. Load Configuration
	cfg, err := config.LoadConfig()
	if err != nil {
		log.Fatalf("FATAL: Failed to load configuration: %v", err) // Use standard log before logger is ready
	}

	// 2. Initialize Logger
	appLogger := logger.NewStdLogger(cfg.LogLevel)
	appLogger.Info(context.Background(), "Logger initialized", map[string]interface{}{"level": cfg.LogLevel.String()})

	// 3. Initialize Repository (Database Adapter)
	repo, err := sqlite.NewRepository(sqlite.Config{
		DBPath: cfg.DBPath,
		Logger: appLogger,
	})
	if err != nil {
		appLogger.Error(context.Background(), err, "FATAL: Failed to initialize database repository")
		log.Fatalf("FATAL: Failed to initialize database repository: %v", err) // Also log to stderr
	}
	defer func() {
		if err := repo.Close(); err != nil {
			appLogger.Error(context.Background(), err, "Error closing database repository")
		}
	}()
	appLogger.Info(context.Background(), "Database repository initialized")

	// 4. Initialize Engine Client (HTTP Adapter)
	engineClient, err := engineclient.New(engineclient.Config{
		BaseURL:        cfg.EngineBaseURL,
		APIKey:         cfg.APIKey,
		UserID:         cfg.UserID,
		Logger:         appLogger,
		Tokens:         repo,
		RequestTimeout: cfg.RequestTimeout,
		MaxRetries:     cfg.MaxRetries,
	})
	if err != nil {
		appLogger.Error(context.Background(), err, "FATAL: Failed to initialize engine client")
		log.Fatalf("FATAL: Failed to initialize engine client: %v", err)
	}
	appLogger.Info(context.Background(), "Engine client initialized")

	// 5. Initialize Stores
	authStore, err := app.NewAuthStore(app.AuthStoreConfig{
		Client: engineClient,
		Tokens: repo,
		Logger: appLogger,
	})
	if err != nil {
		appLogger.Error(context.Background(), err, "FATAL: Failed to initialize auth store")
		log.Fatalf("FATAL: Failed to initialize auth store: %v", err)
	}

	orderStore, err := app.NewOrderStore(app.OrderStoreConfig{
		Client:   engineClient,
		Repo:     repo,
		Logger:   appLogger,
		PageSize: cfg.PageSize,
	})
	if err != nil {
		appLogger.Error(context.Background(), err, "FATAL: Failed to initialize order store")
		log.Fatalf("FATAL: Failed to initialize order store: %v", err)
	}

	strategyStore, err := app.NewStrategyStore(app.StrategyStoreConfig{
		Client: engineClient,
		Repo:   repo,
		Logger: appLogger,
	})
	if err != nil {
		appLogger.Error(context.Background(), err, "FATAL: Failed to initialize strategy store")
		log.Fatalf("FATAL: Failed to initialize strategy store: %v", err)
	}
	appLogger.Info(context.Background(), "Stores initialized")

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	// 6. Establish Session
	restored, err := authStore.Restore(ctx)
	if err != nil {
		appLogger.Warn(ctx, "Session restore failed, falling back to login", map[string]interface{}{"error": err.Error()})
	}
	if !restored {
		if err := authStore.Login(ctx); err != nil {
			appLogger.Error(ctx, err, "FATAL: Login failed")
			log.Fatalf("FATAL: Login failed: %v", err)
		}
	}

	// 7. Hydrate from the mirror, then run the first sync
	if err := orderStore.Hydrate(ctx); err != nil {
		appLogger.Warn(ctx, "Order hydrate failed", map[string]interface{}{"error": err.Error()})
	}
	if err := strategyStore.Hydrate(ctx); err != nil {
		appLogger.Warn(ctx, "Strategy hydrate failed", map[string]interface{}{"error": err.Error()})
	}
	if err := strategyStore.RefreshMarketplace(ctx, app.DefaultMarketplaceFilter()); err != nil {
		appLogger.Warn(ctx, "Initial marketplace refresh failed", map[string]interface{}{"error": err.Error()})
	}

	runner, err := app.NewRunner(app.RunnerConfig{
		Orders:     orderStore,
		Strategies: strategyStore,
		Logger:     appLogger,
		Interval:   cfg.RefreshInterval,
	})
	if err != nil {
		appLogger.Error(ctx, err, "FATAL: Failed to initialize runner")
		log.Fatalf("FATAL: Failed to initialize runner: %v", err)
	}
	runner.SyncOnce(ctx)

	// 8. Run the Reconcile Loop
	if err := runner.Run(ctx); err != nil && !errors.Is(err, context.Canceled) {
		appLogger.Error(ctx, err, "Reconcile loop exited with error")
		log.Fatalf("FATAL: Reconcile loop exited with error: %v", err)
	}

	appLogger.Info(context.Background(), "Application finished gracefully.")
}
