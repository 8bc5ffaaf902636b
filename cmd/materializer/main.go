package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"go.uber.org/zap"

	"portfolio-holdings/internal/config"
	"portfolio-holdings/internal/database"
	"portfolio-holdings/internal/holdings"
	"portfolio-holdings/internal/lock"
	"portfolio-holdings/internal/logger"
	"portfolio-holdings/internal/marketdata"
	"portfolio-holdings/internal/pricing"
)

func main() {
	configPath := flag.String("config", "./configs", "directory containing config.yml")
	once := flag.Bool("once", false, "materialize every account once and exit")
	accountID := flag.Uint("account", 0, "materialize a single account and exit")
	flag.Parse()

	// Load application configuration
	cfg, err := config.LoadConfig(*configPath)
	if err != nil {
		// We can't use the logger here because it's not initialized yet.
		panic(fmt.Sprintf("could not load config: %v", err))
	}

	// Initialize logger
	log, err := logger.NewLogger(cfg.Logger.Level, cfg.Logger.Format)
	if err != nil {
		panic(err)
	}
	defer log.Sync()
	log.Info("Configuration loaded")

	// Initialize database
	db, err := database.NewDatabase(cfg.Database)
	if err != nil {
		log.Fatal("Failed to connect to database", zap.Error(err))
	}
	log.Info("Database connection successful and schema migrated.", zap.String("driver", cfg.Database.Driver))

	// Setup context for graceful shutdown
	ctx, cancel := context.WithCancel(context.Background())
	go func() {
		sigchan := make(chan os.Signal, 1)
		signal.Notify(sigchan, syscall.SIGINT, syscall.SIGTERM)
		<-sigchan
		log.Info("Shutdown signal received, gracefully shutting down...")
		cancel()
	}()

	// Initialize the price provider client; without one prices come from
	// the database and the trades themselves.
	var provider pricing.Provider
	client, err := marketdata.NewRestClient(&cfg.Provider, log)
	switch {
	case errors.Is(err, marketdata.ErrNotConfigured):
		log.Warn("Price provider not configured, using stored and trade prices only")
	case err != nil:
		log.Fatal("Failed to create price provider client", zap.Error(err))
	default:
		provider = client
		log.Info("Price provider configured", zap.String("base_url", cfg.Provider.BaseURL))
	}

	var locker lock.Locker = lock.NewLocalLocker()
	if cfg.Redis.Addr != "" {
		redisLocker, err := lock.NewRedisLocker(ctx, cfg.Redis, log)
		if err != nil {
			log.Fatal("Failed to connect to redis", zap.Error(err))
		}
		defer redisLocker.Close()
		locker = redisLocker
		log.Info("Using redis account locks", zap.String("addr", cfg.Redis.Addr))
	}

	accounts := database.NewAccountRepository(db)
	materializer, err := holdings.NewMaterializer(holdings.Sources{
		Accounts:   accounts,
		Securities: database.NewSecurityRepository(db),
		Trades:     database.NewTradeRepository(db),
		Positions:  database.NewPositionRepository(db),
		Holdings:   database.NewHoldingRepository(db, cfg.Materializer.InsertBatchSize),
		Prices:     holdings.PriceSources{Store: database.NewPriceRepository(db), Provider: provider},
	}, cfg.Materializer, locker, log)
	if err != nil {
		log.Fatal("Failed to create materializer", zap.Error(err))
	}

	interval := time.Duration(cfg.Materializer.IntervalSeconds) * time.Second
	engine := holdings.NewEngine(log, accounts, materializer, interval)

	switch {
	case *accountID != 0:
		if _, err := materializer.Materialize(ctx, *accountID); err != nil {
			log.Fatal("Materialization failed", zap.Uint("account_id", *accountID), zap.Error(err))
		}
	case *once:
		if _, err := engine.RunOnce(ctx); err != nil {
			log.Fatal("Materialization pass failed", zap.Error(err))
		}
	default:
		engine.Run(ctx)
	}

	log.Info("Materializer has been shut down.")
}
