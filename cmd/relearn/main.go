// relearn runs the learning loop from the command line: process pending
// outcome batches, or wipe and recompute all learning state from stored
// predictions.
package main

import (
	"context"
	"flag"
	"time"

	"github.com/joho/godotenv"

	"github.com/mertipekreal/merf-stock-engine/config"
	"github.com/mertipekreal/merf-stock-engine/internal/database"
	"github.com/mertipekreal/merf-stock-engine/internal/learning"
	"github.com/mertipekreal/merf-stock-engine/internal/logging"
)

func main() {
	reset := flag.Bool("reset", false, "clear all learning state and recompute from stored predictions")
	timeout := flag.Duration("timeout", 10*time.Minute, "overall run timeout")
	flag.Parse()

	godotenv.Load()

	cfg, err := config.Load()
	if err != nil {
		panic(err)
	}

	logger := logging.New(logging.Config{
		Level:      cfg.LoggingConfig.Level,
		JSONFormat: cfg.LoggingConfig.JSONFormat,
	})
	log := logger.With().Str("component", "relearn").Logger()

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

	ctx, cancel := context.WithTimeout(context.Background(), *timeout)
	defer cancel()

	if err := db.RunMigrations(ctx); err != nil {
		log.Fatal().Err(err).Msg("Migrations failed")
	}

	engine := learning.NewEngine(database.NewRepository(db), logger)

	if *reset {
		result, err := engine.ResetAndRecompute(ctx)
		if err != nil {
			log.Fatal().Err(err).Msg("Reset and recompute failed")
		}
		log.Info().
			Int("reprocessed", result.PredictionsReprocessed).
			Int("batches", result.Batches).
			Msg("Learning state recomputed")
		return
	}

	result, err := engine.ProcessOutcomes(ctx)
	if err != nil {
		log.Fatal().Err(err).Msg("Outcome processing failed")
	}
	log.Info().
		Int("processed", result.Processed).
		Int("patterns_matched", result.PatternsMatched).
		Msg("Outcome batch complete")
}
