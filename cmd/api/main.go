package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
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
	flag.Parse()

	// Load configuration
	cfg, err := config.LoadConfig(*configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to load configuration: %v\n", err)
		os.Exit(1)
	}

	// Initialize logger
	log, err := logger.NewLogger(cfg.Logger.Level, cfg.Logger.Format)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to initialize logger: %v\n", err)
		os.Exit(1)
	}
	defer log.Sync()

	// Connect to the database
	db, err := database.NewDatabase(cfg.Database)
	if err != nil {
		log.Fatal("Failed to connect to database", zap.Error(err))
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	var locker lock.Locker = lock.NewLocalLocker()
	if cfg.Redis.Addr != "" {
		redisLocker, err := lock.NewRedisLocker(ctx, cfg.Redis, log)
		if err != nil {
			log.Fatal("Failed to connect to redis", zap.Error(err))
		}
		defer redisLocker.Close()
		locker = redisLocker
	}

	var provider pricing.Provider
	client, err := marketdata.NewRestClient(&cfg.Provider, log)
	switch {
	case errors.Is(err, marketdata.ErrNotConfigured):
		log.Warn("Price provider not configured, using stored and trade prices only")
	case err != nil:
		log.Fatal("Failed to create price provider client", zap.Error(err))
	default:
		provider = client
	}

	accounts := database.NewAccountRepository(db)
	holdingRepo := database.NewHoldingRepository(db, cfg.Materializer.InsertBatchSize)
	materializer, err := holdings.NewMaterializer(holdings.Sources{
		Accounts:   accounts,
		Securities: database.NewSecurityRepository(db),
		Trades:     database.NewTradeRepository(db),
		Positions:  database.NewPositionRepository(db),
		Holdings:   holdingRepo,
		Prices:     holdings.PriceSources{Store: database.NewPriceRepository(db), Provider: provider},
	}, cfg.Materializer, locker, log)
	if err != nil {
		log.Fatal("Failed to create materializer", zap.Error(err))
	}

	if cfg.Logger.Level != "debug" {
		gin.SetMode(gin.ReleaseMode)
	}
	router := NewRouter(NewAPIHandler(log.Named("api"), accounts, holdingRepo, materializer))

	addr := fmt.Sprintf(":%d", cfg.Server.Port)
	srv := &http.Server{Addr: addr, Handler: router}

	go func() {
		<-ctx.Done()
		log.Info("Shutdown signal received, gracefully shutting down...")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		if err := srv.Shutdown(shutdownCtx); err != nil {
			log.Error("Web server shutdown failed", zap.Error(err))
		}
	}()

	log.Info("Starting web server", zap.String("address", addr))
	if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		log.Fatal("Web server failed", zap.Error(err))
	}
}
