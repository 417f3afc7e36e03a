// Package database provides the PostgreSQL persistence layer: connection
// pooling, schema migrations, and repositories for predictions, feature
// snapshots, trained models, and learning state.
package database

import (
	"context"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/rs/zerolog"
)

// DB wraps the PostgreSQL connection pool
type DB struct {
	Pool   *pgxpool.Pool
	logger zerolog.Logger
}

// Config holds database configuration
type Config struct {
	Host     string
	Port     int
	User     string
	Password string
	Database string
	SSLMode  string
}

// NewDB creates a new database connection
func NewDB(cfg Config, logger zerolog.Logger) (*DB, error) {
	dsn := fmt.Sprintf(
		"host=%s port=%d user=%s password=%s dbname=%s sslmode=%s",
		cfg.Host, cfg.Port, cfg.User, cfg.Password, cfg.Database, cfg.SSLMode,
	)

	poolConfig, err := pgxpool.ParseConfig(dsn)
	if err != nil {
		return nil, fmt.Errorf("unable to parse database config: %w", err)
	}

	poolConfig.MaxConns = 25
	poolConfig.MinConns = 5
	poolConfig.MaxConnLifetime = time.Hour
	poolConfig.MaxConnIdleTime = 30 * time.Minute
	poolConfig.HealthCheckPeriod = time.Minute

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	pool, err := pgxpool.NewWithConfig(ctx, poolConfig)
	if err != nil {
		return nil, fmt.Errorf("unable to create connection pool: %w", err)
	}

	if err := pool.Ping(ctx); err != nil {
		return nil, fmt.Errorf("unable to ping database: %w", err)
	}

	log := logger.With().Str("component", "database").Logger()
	log.Info().Str("database", cfg.Database).Msg("Connected to PostgreSQL")

	return &DB{Pool: pool, logger: log}, nil
}

// Close closes the database connection
func (db *DB) Close() {
	if db.Pool != nil {
		db.Pool.Close()
		db.logger.Info().Msg("Database connection closed")
	}
}

// RunMigrations executes database migrations
func (db *DB) RunMigrations(ctx context.Context) error {
	db.logger.Info().Msg("Running database migrations")

	migrations := []string{
		// Predictions with their layer breakdown and realized outcome.
		`CREATE TABLE IF NOT EXISTS predictions (
			id UUID PRIMARY KEY,
			symbol VARCHAR(20) NOT NULL,
			direction VARCHAR(10) NOT NULL,
			score DOUBLE PRECISION NOT NULL,
			probability DOUBLE PRECISION NOT NULL,
			confidence DOUBLE PRECISION NOT NULL,
			votes JSONB NOT NULL DEFAULT '{}',
			contributions JSONB NOT NULL DEFAULT '{}',
			layer_scores JSONB NOT NULL DEFAULT '{}',
			weights_used JSONB NOT NULL DEFAULT '{}',
			composite_signal DOUBLE PRECISION NOT NULL DEFAULT 0,
			regime VARCHAR(20) NOT NULL DEFAULT 'risk_on',
			horizon VARCHAR(10) NOT NULL DEFAULT '1d',
			status VARCHAR(20) NOT NULL DEFAULT 'pending',
			actual_direction VARCHAR(10),
			actual_return DOUBLE PRECISION,
			created_at TIMESTAMPTZ NOT NULL DEFAULT NOW(),
			outcome_at TIMESTAMPTZ,
			learning_processed_at TIMESTAMPTZ
		)`,
		`ALTER TABLE predictions ADD COLUMN IF NOT EXISTS composite_signal DOUBLE PRECISION NOT NULL DEFAULT 0`,
		`CREATE INDEX IF NOT EXISTS idx_predictions_symbol ON predictions(symbol)`,
		`CREATE INDEX IF NOT EXISTS idx_predictions_status ON predictions(status)`,
		`CREATE INDEX IF NOT EXISTS idx_predictions_unprocessed
			ON predictions(created_at) WHERE status <> 'pending' AND learning_processed_at IS NULL`,

		// Feature snapshots captured at prediction time, reused for training.
		`CREATE TABLE IF NOT EXISTS feature_snapshots (
			id UUID PRIMARY KEY,
			symbol VARCHAR(20) NOT NULL,
			version INTEGER NOT NULL,
			vector JSONB NOT NULL,
			names JSONB NOT NULL,
			layer_scores JSONB NOT NULL DEFAULT '{}',
			created_at TIMESTAMPTZ NOT NULL DEFAULT NOW()
		)`,
		`CREATE INDEX IF NOT EXISTS idx_feature_snapshots_symbol_time
			ON feature_snapshots(symbol, created_at)`,

		// Trained gradient-boosting models, trees serialized whole.
		`CREATE TABLE IF NOT EXISTS ml_models (
			id UUID PRIMARY KEY,
			base_prediction DOUBLE PRECISION NOT NULL,
			params JSONB NOT NULL,
			feature_names JSONB NOT NULL,
			trees JSONB NOT NULL,
			metrics JSONB NOT NULL DEFAULT '{}',
			synthetic BOOLEAN NOT NULL DEFAULT FALSE,
			trained_at TIMESTAMPTZ NOT NULL DEFAULT NOW()
		)`,
		`CREATE INDEX IF NOT EXISTS idx_ml_models_trained_at ON ml_models(trained_at)`,

		`CREATE TABLE IF NOT EXISTS ml_model_feature_importance (
			model_id UUID NOT NULL REFERENCES ml_models(id) ON DELETE CASCADE,
			feature_name VARCHAR(100) NOT NULL,
			importance DOUBLE PRECISION NOT NULL,
			PRIMARY KEY (model_id, feature_name)
		)`,

		// Per-layer learning history keyed by (layer, regime, horizon).
		`CREATE TABLE IF NOT EXISTS layer_learning_history (
			layer VARCHAR(20) NOT NULL,
			regime VARCHAR(20) NOT NULL,
			horizon VARCHAR(10) NOT NULL,
			total_predictions INTEGER NOT NULL DEFAULT 0,
			correct_predictions INTEGER NOT NULL DEFAULT 0,
			accuracy DOUBLE PRECISION NOT NULL DEFAULT 0,
			rolling_accuracy DOUBLE PRECISION NOT NULL DEFAULT 0.5,
			avg_score_correct DOUBLE PRECISION NOT NULL DEFAULT 0,
			avg_score_incorrect DOUBLE PRECISION NOT NULL DEFAULT 0,
			weight_adjustment DOUBLE PRECISION NOT NULL DEFAULT 0,
			updated_at TIMESTAMPTZ NOT NULL DEFAULT NOW(),
			PRIMARY KEY (layer, regime, horizon)
		)`,

		`CREATE TABLE IF NOT EXISTS prediction_patterns (
			name VARCHAR(50) PRIMARY KEY,
			description TEXT NOT NULL DEFAULT '',
			occurrences INTEGER NOT NULL DEFAULT 0,
			successes INTEGER NOT NULL DEFAULT 0,
			success_rate DOUBLE PRECISION NOT NULL DEFAULT 0,
			active BOOLEAN NOT NULL DEFAULT FALSE,
			updated_at TIMESTAMPTZ NOT NULL DEFAULT NOW()
		)`,
	}

	for i, migration := range migrations {
		if _, err := db.Pool.Exec(ctx, migration); err != nil {
			return fmt.Errorf("migration %d failed: %w", i+1, err)
		}
	}

	db.logger.Info().Int("count", len(migrations)).Msg("Migrations complete")
	return nil
}
