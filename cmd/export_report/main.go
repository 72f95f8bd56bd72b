package main

import (
	"context"
	"fmt"
	"log"
	"time"

	"tradedash/config"
	"tradedash/internal/adapters/logger"
	"tradedash/internal/adapters/sqlite"
	"tradedash/internal/analytics"
	"tradedash/internal/utils"
)

// export_report renders an offline report from the local SQLite mirror: the
// portfolio summary on stdout plus order and strategy CSVs. It never talks to
// the engine, so it works while the engine is down.
func main() {
	// 1. Load Configuration
	cfg, err := config.LoadConfig()
	if err != nil {
		log.Fatalf("FATAL: Failed to load configuration: %v", err) // Use standard log before logger is ready
	}

	// 2. Initialize Logger
	appLogger := logger.NewStdLogger(cfg.LogLevel)

	// 3. Initialize Repository (Database Adapter)
	repo, err := sqlite.NewRepository(sqlite.Config{
		DBPath: cfg.DBPath,
		Logger: appLogger,
	})
	if err != nil {
		appLogger.Error(context.Background(), err, "FATAL: Failed to initialize database repository")
		log.Fatalf("FATAL: Failed to initialize database repository: %v", err)
	}
	defer repo.Close()

	ctx := context.Background()

	orders, err := repo.FindOrders(ctx)
	if err != nil {
		appLogger.Error(ctx, err, "Error reading mirrored orders")
		log.Fatalf("Error reading mirrored orders: %v", err)
	}
	strategies, err := repo.FindStrategies(ctx)
	if err != nil {
		appLogger.Error(ctx, err, "Error reading mirrored strategies")
		log.Fatalf("Error reading mirrored strategies: %v", err)
	}

	summary := analytics.Aggregate(strategies)
	fmt.Println("=== Portfolio Summary (from local mirror) ===")
	fmt.Printf("Strategies:       %d total, %d active, %d paused\n", summary.TotalStrategies, summary.ActiveStrategies, summary.PausedStrategies)
	fmt.Printf("Capital deployed: %s\n", summary.CapitalDeployed.StringFixed(2))
	fmt.Printf("Total P&L:        %s\n", summary.TotalPnL.StringFixed(2))
	fmt.Printf("Trades:           %d total, %d winning, %d losing (win rate %.2f%%)\n", summary.TotalTrades, summary.WinningTrades, summary.LosingTrades, summary.OverallWinRate)
	fmt.Printf("Max drawdown:     %s\n", summary.MaxDrawdown.StringFixed(2))
	if summary.BestStrategyID != "" {
		fmt.Printf("Best strategy:    %s\n", summary.BestStrategyID)
	}
	if summary.WorstStrategyID != "" {
		fmt.Printf("Worst strategy:   %s\n", summary.WorstStrategyID)
	}
	fmt.Printf("Orders mirrored:  %d\n", len(orders))

	stamp := time.Now().Format("20060102_150405")
	ordersFile := fmt.Sprintf("data/orders_%s.csv", stamp)
	if err := utils.WriteOrdersToCSV(orders, ordersFile); err != nil {
		appLogger.Error(ctx, err, "Error writing orders CSV")
		log.Fatalf("Error writing orders CSV: %v", err)
	}
	strategiesFile := fmt.Sprintf("data/strategies_%s.csv", stamp)
	if err := utils.WriteStrategiesToCSV(strategies, strategiesFile); err != nil {
		appLogger.Error(ctx, err, "Error writing strategies CSV")
		log.Fatalf("Error writing strategies CSV: %v", err)
	}
	appLogger.Info(ctx, "Report written", map[string]interface{}{"orders": ordersFile, "strategies": strategiesFile})
}
