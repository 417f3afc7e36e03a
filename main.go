package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"

	"github.com/mertipekreal/merf-stock-engine/config"
	"github.com/mertipekreal/merf-stock-engine/internal/api"
	"github.com/mertipekreal/merf-stock-engine/internal/cache"
	"github.com/mertipekreal/merf-stock-engine/internal/database"
	"github.com/mertipekreal/merf-stock-engine/internal/engine"
	"github.com/mertipekreal/merf-stock-engine/internal/features"
	"github.com/mertipekreal/merf-stock-engine/internal/learning"
	"github.com/mertipekreal/merf-stock-engine/internal/logging"
	"github.com/mertipekreal/merf-stock-engine/internal/marketdata"
)

func main() {
	// .env is optional, real deployments set the environment directly.
	godotenv.Load()

	cfg, err := config.Load()
	if err != nil {
		panic(err)
	}

	logger := logging.New(logging.Config{
		Level:      cfg.LoggingConfig.Level,
		JSONFormat: cfg.LoggingConfig.JSONFormat,
	})
	log := logger.With().Str("component", "main").Logger()

	// Database
	db, err := database.NewDB(database.Config{
		Host:     cfg.DatabaseConfig.Host,
		Port:     cfg.DatabaseConfig.Port,
		User:     cfg.DatabaseConfig.User,
		Password: cfg.DatabaseConfig.Password,
		Database: cfg.DatabaseConfig.Database,
		SSLMode:  cfg.DatabaseConfig.SSLMode,
	}, logger)
	if err != nil {
		log.Fatal().Err(err).Msg("Database connection failed")
	}
	defer db.Close()

	migrateCtx, cancelMigrate := context.WithTimeout(context.Background(), 60*time.Second)
	if err := db.RunMigrations(migrateCtx); err != nil {
		cancelMigrate()
		log.Fatal().Err(err).Msg("Migrations failed")
	}
	cancelMigrate()

	repo := database.NewRepository(db)

	// Redis cache, optional: the engine runs fine without it.
	var marketCache *cache.MarketCache
	if cfg.RedisConfig.Enabled {
		cacheService, err := cache.NewCacheService(cache.Config{
			Enabled:  true,
			Address:  cfg.RedisConfig.Address,
			Password: cfg.RedisConfig.Password,
			DB:       cfg.RedisConfig.DB,
			PoolSize: cfg.RedisConfig.PoolSize,
		}, logger)
		if err != nil {
			log.Warn().Err(err).Msg("Cache unavailable, continuing without Redis")
		} else {
			marketCache = cache.NewMarketCache(cacheService)
			defer cacheService.Close()
		}
	}

	// Market data: Yahoo Finance with read-through candle caching.
	var candles marketdata.Provider = marketdata.NewYahooClient(logger,
		marketdata.WithBaseURL(cfg.MarketDataConfig.YahooBaseURL),
		marketdata.WithRequestTimeout(cfg.MarketDataConfig.RequestTimeout),
	)
	if marketCache != nil {
		candles = cache.NewCachingProvider(candles, marketCache)
	}

	// Core engines.
	featureEngine := features.NewEngine(features.Deps{Candles: candles}, logger)
	learningEngine := learning.NewEngine(repo, logger)
	modelCache := engine.NewModelCache()
	trainer := engine.NewTrainer(repo, modelCache, logger)
	service := engine.NewService(repo, featureEngine, learningEngine, trainer, modelCache, candles, logger).
		WithSnapshotCache(marketCache)

	// Background loops.
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	scheduler := engine.NewScheduler(service, learningEngine, trainer, logger,
		engine.WithLearningInterval(cfg.LearningConfig.LearningInterval),
		engine.WithOutcomeInterval(cfg.LearningConfig.OutcomeInterval),
		engine.WithRetrainInterval(cfg.LearningConfig.RetrainInterval),
	)
	scheduler.Start(ctx)

	// HTTP API.
	server := api.NewServer(api.ServerConfig{
		Port:           cfg.ServerConfig.Port,
		Host:           cfg.ServerConfig.Host,
		ProductionMode: cfg.ServerConfig.ProductionMode,
		APIToken:       cfg.ServerConfig.APIToken,
	}, repo, service, learningEngine, trainer, candles, logger)

	go func() {
		if err := server.Start(); err != nil {
			log.Fatal().Err(err).Msg("API server failed")
		}
	}()

	// Wait for shutdown signal.
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	log.Info().Msg("Shutting down")
	cancel()

	shutdownCtx, cancelShutdown := context.WithTimeout(
		context.Background(),
		time.Duration(cfg.ServerConfig.ShutdownTimeout)*time.Second,
	)
	defer cancelShutdown()
	if err := server.Shutdown(shutdownCtx); err != nil {
		log.Error().Err(err).Msg("Server shutdown error")
	}
}
