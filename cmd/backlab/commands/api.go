package commands

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/wonny/backlab/internal/api"
	"github.com/wonny/backlab/internal/api/handlers"
	"github.com/wonny/backlab/internal/optimizer"
	"github.com/wonny/backlab/internal/pricedata"
	"github.com/wonny/backlab/internal/scheduler"
	"github.com/wonny/backlab/pkg/config"
	"github.com/wonny/backlab/pkg/database"
	"github.com/wonny/backlab/pkg/logger"
	"github.com/wonny/backlab/pkg/redis"
)

// apiCmd represents the api command
var apiCmd = &cobra.Command{
	Use:   "api",
	Short: "Start the API server",
	Long: `Start the REST API server.

Endpoints:
  GET  /health              - Health check
  POST /api/backtest/run    - Run one backtest
  POST /api/optimize/run    - Run an optimization batch
  POST /api/optimize/chart  - Price chart with MA overlays

Example:
  go run ./cmd/backlab api
  go run ./cmd/backlab api --port 8080`,
	RunE: runAPIServer,
}

var (
	apiPort string
)

func init() {
	rootCmd.AddCommand(apiCmd)

	// Flags
	apiCmd.Flags().StringVar(&apiPort, "port", "", "API server port (default from config)")
}

func runAPIServer(cmd *cobra.Command, args []string) error {
	fmt.Println("=== Backlab API Server ===")

	// 1. Load config
	cfg, err := config.Load()
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}

	// Override port if flag is set
	if apiPort != "" {
		cfg.Port = apiPort
	}

	// 2. Initialize logger
	log := logger.New(cfg)

	log.WithFields(map[string]interface{}{
		"port":   cfg.Port,
		"env":    cfg.Env,
		"source": cfg.Data.Source,
	}).Info("Initializing API server")

	// 3. Create price data provider
	var provider pricedata.Provider
	var csvProvider *pricedata.CSVProvider

	switch cfg.Data.Source {
	case "postgres":
		db, err := database.New(cfg)
		if err != nil {
			return fmt.Errorf("connect to database: %w", err)
		}
		defer db.Close()
		log.Info("Connected to database")

		provider = pricedata.NewPostgresProvider(db.Pool)

	default:
		csvProvider = pricedata.NewCSVProvider(cfg.Data.Dir, log)
		provider = csvProvider
	}

	// 4. Create result cache
	redisClient, err := redis.New(cfg)
	if err != nil {
		return fmt.Errorf("connect to redis: %w", err)
	}
	defer redisClient.Close()

	cache := redis.NewCache(redisClient, "backlab")

	// 5. Create optimizer
	opt := optimizer.New(cfg.Engine.Workers, log)

	// 6. Create handlers
	backtestHandler := handlers.NewBacktestHandler(provider, cache, cfg.Engine.ResultCacheTTL, log)
	optimizeHandler := handlers.NewOptimizeHandler(provider, opt, cache, cfg.Engine.ResultCacheTTL, cfg.Engine.OptimizeTimeout, log)

	// 7. Create router and server
	router := api.NewRouter(backtestHandler, optimizeHandler, cfg, log)
	server := api.New(cfg, log, router)

	// 8. Schedule CSV cache refresh
	if csvProvider != nil {
		sched := scheduler.New(log)
		err := sched.AddJob(scheduler.FuncJob{
			JobName: "price-cache-refresh",
			Spec:    cfg.Data.RefreshCron,
			Fn:      csvProvider.Refresh,
		})
		if err != nil {
			return fmt.Errorf("schedule cache refresh: %w", err)
		}
		sched.Start()
		defer sched.Stop()
	}

	// 9. Start server with graceful shutdown
	go func() {
		if err := server.Start(); err != nil {
			log.WithError(err).Fatal("Failed to start server")
		}
	}()

	log.Info("API server started successfully")
	fmt.Printf("\n✅ Server running on http://localhost:%s\n", cfg.Port)
	fmt.Println("\nAvailable endpoints:")
	fmt.Println("  GET  /health")
	fmt.Println("  POST /api/backtest/run")
	fmt.Println("  POST /api/optimize/run")
	fmt.Println("  POST /api/optimize/chart")
	fmt.Println("\nPress Ctrl+C to stop")

	// Wait for interrupt signal
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, os.Interrupt, syscall.SIGTERM)
	<-quit

	log.Info("Shutting down server...")

	// Graceful shutdown with timeout
	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	if err := server.Shutdown(ctx); err != nil {
		return fmt.Errorf("server shutdown failed: %w", err)
	}

	log.Info("Server stopped")
	return nil
}
