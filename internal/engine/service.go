// Package engine orchestrates the prediction pipeline: feature snapshot,
// layer scoring, optimized weights, model inference, and persistence.
package engine

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/mertipekreal/merf-stock-engine/internal/boosting"
	"github.com/mertipekreal/merf-stock-engine/internal/cache"
	"github.com/mertipekreal/merf-stock-engine/internal/database"
	"github.com/mertipekreal/merf-stock-engine/internal/features"
	"github.com/mertipekreal/merf-stock-engine/internal/learning"
	"github.com/mertipekreal/merf-stock-engine/internal/marketdata"
	"github.com/mertipekreal/merf-stock-engine/internal/metrics"
)

// Outcome resolution tuning.
const (
	// DefaultHorizon is the prediction horizon written on new predictions.
	DefaultHorizon = "1d"

	// outcomeNeutralBand is the absolute return below which a realized
	// move counts as neutral rather than directional.
	outcomeNeutralBand = 0.002

	outcomeBatchLimit = 200
)

// Store is what the prediction service needs from persistence.
type Store interface {
	SavePrediction(ctx context.Context, p *learning.PredictionRecord) error
	ListPredictions(ctx context.Context, symbol, status string, limit int) ([]*learning.PredictionRecord, error)
	SaveSnapshot(ctx context.Context, uf *features.UnifiedFeatures, scores features.LayerScores) (string, error)
	RecordOutcome(ctx context.Context, id, actualDirection string, actualReturn float64) error
	GetLatestModel(ctx context.Context) (*database.StoredModel, error)
}

// Service runs the end-to-end prediction pipeline.
type Service struct {
	store     Store
	features  *features.Engine
	learner   *learning.Engine
	trainer   *Trainer
	models    *ModelCache
	candles   marketdata.Provider
	snapCache *cache.MarketCache
	logger    zerolog.Logger
}

// NewService wires the prediction service.
func NewService(store Store, fe *features.Engine, le *learning.Engine, tr *Trainer, mc *ModelCache, candles marketdata.Provider, logger zerolog.Logger) *Service {
	return &Service{
		store:    store,
		features: fe,
		learner:  le,
		trainer:  tr,
		models:   mc,
		candles:  candles,
		logger:   logger.With().Str("component", "prediction_service").Logger(),
	}
}

// WithSnapshotCache attaches a Redis-backed snapshot cache. A nil cache is
// valid and leaves every lookup a miss.
func (s *Service) WithSnapshotCache(mc *cache.MarketCache) *Service {
	s.snapCache = mc
	return s
}

// Predict generates a feature snapshot for the symbol, runs the active
// model over it, and persists both. When no model exists yet, one is
// trained synchronously before serving.
func (s *Service) Predict(ctx context.Context, symbol string) (*learning.PredictionRecord, error) {
	uf, err := s.snapCache.GetSnapshot(ctx, symbol)
	if err != nil {
		start := time.Now()
		uf, err = s.features.GenerateSnapshot(ctx, symbol, time.Now().UTC())
		if err != nil {
			return nil, fmt.Errorf("generate snapshot: %w", err)
		}
		metrics.SnapshotDuration.Observe(time.Since(start).Seconds())
		s.snapCache.SetSnapshot(ctx, uf)
	}

	scores := features.CalculateLayerScores(uf)
	regime := regimeFor(uf.Economic)

	weights, err := s.learner.GetOptimizedWeights(ctx, features.DefaultLayerWeights(), regime, DefaultHorizon)
	if err != nil {
		return nil, fmt.Errorf("optimized weights: %w", err)
	}
	composite := weights.Combine(scores)

	model, err := s.activeModel(ctx)
	if err != nil {
		return nil, err
	}

	pred, err := model.PredictFull(uf.Vector)
	if err != nil {
		return nil, fmt.Errorf("model inference: %w", err)
	}

	record := &learning.PredictionRecord{
		ID:              uuid.New().String(),
		Symbol:          symbol,
		Direction:       pred.Direction,
		Score:           pred.Score,
		Probability:     pred.Probability,
		Confidence:      pred.Confidence,
		Votes:           pred.Votes,
		Contributions:   pred.Contributions,
		LayerScores:     scores,
		WeightsUsed:     weights,
		CompositeSignal: composite,
		Regime:          regime,
		Horizon:         DefaultHorizon,
		Status:          learning.StatusPending,
		CreatedAt:       time.Now().UTC(),
	}

	if _, err := s.store.SaveSnapshot(ctx, uf, scores); err != nil {
		s.logger.Error().Err(err).Str("symbol", symbol).Msg("Snapshot persist failed")
	}
	if err := s.store.SavePrediction(ctx, record); err != nil {
		return nil, fmt.Errorf("save prediction: %w", err)
	}

	metrics.PredictionsTotal.WithLabelValues(symbol, record.Direction).Inc()

	s.logger.Info().
		Str("symbol", symbol).
		Str("direction", record.Direction).
		Float64("score", record.Score).
		Float64("probability", record.Probability).
		Float64("composite", record.CompositeSignal).
		Msg("Prediction stored")

	return record, nil
}

// ListPredictions exposes stored predictions for the API surface.
func (s *Service) ListPredictions(ctx context.Context, symbol, status string, limit int) ([]*learning.PredictionRecord, error) {
	if limit <= 0 || limit > 500 {
		limit = 50
	}
	return s.store.ListPredictions(ctx, symbol, status, limit)
}

// ResolveOutcomes finds pending predictions whose horizon has elapsed,
// computes the realized return from candle data, and records the outcome.
func (s *Service) ResolveOutcomes(ctx context.Context) (int, error) {
	pending, err := s.store.ListPredictions(ctx, "", string(learning.StatusPending), outcomeBatchLimit)
	if err != nil {
		return 0, fmt.Errorf("list pending predictions: %w", err)
	}

	resolved := 0
	now := time.Now().UTC()
	for _, p := range pending {
		horizon := horizonDuration(p.Horizon)
		if now.Sub(p.CreatedAt) < horizon {
			continue
		}

		ret, err := s.realizedReturn(ctx, p.Symbol, p.CreatedAt, p.CreatedAt.Add(horizon))
		if err != nil {
			s.logger.Warn().Err(err).Str("symbol", p.Symbol).Str("id", p.ID).Msg("Outcome resolution skipped")
			continue
		}

		direction := "neutral"
		if ret > outcomeNeutralBand {
			direction = "up"
		} else if ret < -outcomeNeutralBand {
			direction = "down"
		}

		if err := s.store.RecordOutcome(ctx, p.ID, direction, ret); err != nil {
			s.logger.Error().Err(err).Str("id", p.ID).Msg("Outcome record failed")
			continue
		}
		resolved++
	}

	if resolved > 0 {
		s.logger.Info().Int("resolved", resolved).Msg("Prediction outcomes recorded")
	}
	return resolved, nil
}

// activeModel returns the cached model, loading the latest persisted one
// or training from scratch when the cache is empty.
func (s *Service) activeModel(ctx context.Context) (*boosting.Model, error) {
	if model, _ := s.models.Current(); model != nil {
		return model, nil
	}

	stored, err := s.store.GetLatestModel(ctx)
	if err == nil {
		s.models.Publish(stored.Model, stored.Synthetic)
		return stored.Model, nil
	}
	if !errors.Is(err, database.ErrNotFound) {
		return nil, fmt.Errorf("load model: %w", err)
	}

	s.logger.Info().Msg("No model available, training synchronously")
	result, err := s.trainer.Train(ctx)
	if err != nil {
		return nil, fmt.Errorf("bootstrap training: %w", err)
	}
	return result.Model, nil
}

func (s *Service) realizedReturn(ctx context.Context, symbol string, since, until time.Time) (float64, error) {
	candles, err := s.candles.GetCandles(ctx, symbol, since, until.Add(24*time.Hour))
	if err != nil {
		return 0, err
	}
	if len(candles) < 2 {
		return 0, errors.New("not enough candles to resolve outcome")
	}
	first := candles[0].Close
	last := candles[len(candles)-1].Close
	if first == 0 {
		return 0, errors.New("zero reference price")
	}
	return (last - first) / first, nil
}

// regimeFor maps the macro risk flag to a learning regime key.
func regimeFor(e features.EconomicIndicators) string {
	if e.RiskOn {
		return "risk_on"
	}
	return "risk_off"
}

// horizonDuration maps a horizon label to wall time, defaulting to one day.
func horizonDuration(h string) time.Duration {
	switch h {
	case "1d", "":
		return 24 * time.Hour
	case "5d":
		return 5 * 24 * time.Hour
	case "1w":
		return 7 * 24 * time.Hour
	default:
		return 24 * time.Hour
	}
}
