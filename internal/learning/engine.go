package learning

import (
	"context"
	"fmt"
	"math"
	"time"

	"github.com/rs/zerolog"

	"github.com/mertipekreal/merf-stock-engine/internal/metrics"
)

// Loop defaults.
const (
	DefaultDecay              = 0.95
	DefaultMinSampleSize      = 10
	DefaultMinOccurrences     = 10
	DefaultBatchSize          = 200
	DefaultMaxBatchIterations = 50

	// initialRollingAccuracy seeds new history rows with an uninformative
	// prior before the first decayed update is applied.
	initialRollingAccuracy = 0.5
)

// Engine runs the learning loop against a Repository.
type Engine struct {
	repo               Repository
	logger             zerolog.Logger
	decay              float64
	minSampleSize      int
	minOccurrences     int
	batchSize          int
	maxBatchIterations int
}

// Option customizes an Engine.
type Option func(*Engine)

// WithDecay overrides the rolling-accuracy decay factor.
func WithDecay(decay float64) Option {
	return func(e *Engine) { e.decay = decay }
}

// WithBatchSize overrides the per-claim batch size.
func WithBatchSize(n int) Option {
	return func(e *Engine) { e.batchSize = n }
}

// WithMinOccurrences overrides the pattern activation threshold.
func WithMinOccurrences(n int) Option {
	return func(e *Engine) { e.minOccurrences = n }
}

// NewEngine creates a learning engine with standard tuning.
func NewEngine(repo Repository, logger zerolog.Logger, opts ...Option) *Engine {
	e := &Engine{
		repo:               repo,
		logger:             logger.With().Str("component", "learning_engine").Logger(),
		decay:              DefaultDecay,
		minSampleSize:      DefaultMinSampleSize,
		minOccurrences:     DefaultMinOccurrences,
		batchSize:          DefaultBatchSize,
		maxBatchIterations: DefaultMaxBatchIterations,
	}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// ProcessOutcomes claims and consumes completed predictions in batches
// until none remain. Because the repository stamps rows as part of the
// claim, re-running with no new completed predictions processes zero rows
// and leaves all history untouched.
func (e *Engine) ProcessOutcomes(ctx context.Context) (*BatchResult, error) {
	result := &BatchResult{}

	for iter := 0; iter < e.maxBatchIterations; iter++ {
		batch, err := e.repo.ClaimCompletedPredictions(ctx, e.batchSize)
		if err != nil {
			return result, fmt.Errorf("claim predictions: %w", err)
		}
		if len(batch) == 0 {
			break
		}

		for _, pred := range batch {
			matched, err := e.processPrediction(ctx, pred)
			if err != nil {
				return result, fmt.Errorf("process prediction %s: %w", pred.ID, err)
			}
			result.Processed++
			result.PatternsMatched += matched
		}
	}

	if result.Processed > 0 {
		e.logger.Info().
			Int("processed", result.Processed).
			Int("patterns_matched", result.PatternsMatched).
			Msg("Learning batch complete")
	}
	return result, nil
}

// processPrediction updates the four layer-history rows and the pattern
// table for one completed prediction.
func (e *Engine) processPrediction(ctx context.Context, pred *PredictionRecord) (int, error) {
	for _, layer := range Layers() {
		score := layerScore(pred, layer)
		correct := impliedDirection(score) == pred.ActualDirection

		if err := e.updateLayerHistory(ctx, layer, pred.Regime, pred.Horizon, score, correct); err != nil {
			return 0, err
		}
	}

	return e.updatePatterns(ctx, pred)
}

// layerScore selects the stored per-layer score for the layer.
func layerScore(pred *PredictionRecord, layer Layer) float64 {
	switch layer {
	case LayerHardData:
		return pred.LayerScores.HardData
	case LayerTechnical:
		return pred.LayerScores.Technical
	case LayerSAM:
		return pred.LayerScores.SAM
	case LayerEconomic:
		return pred.LayerScores.Economic
	}
	return 0
}

// impliedDirection derives a layer's directional call from its score sign.
func impliedDirection(score float64) string {
	if score > 0 {
		return "up"
	}
	if score < 0 {
		return "down"
	}
	return "neutral"
}

func (e *Engine) updateLayerHistory(ctx context.Context, layer Layer, regime, horizon string, score float64, correct bool) error {
	h, err := e.repo.GetLayerHistory(ctx, layer, regime, horizon)
	if err != nil {
		return err
	}
	if h == nil {
		h = &LayerHistory{
			Layer:           layer,
			Regime:          regime,
			Horizon:         horizon,
			RollingAccuracy: initialRollingAccuracy,
		}
	}

	h.TotalPredictions++
	correctVal := 0.0
	if correct {
		h.CorrectPredictions++
		correctVal = 1
	}
	h.Accuracy = float64(h.CorrectPredictions) / float64(h.TotalPredictions)
	h.RollingAccuracy = h.RollingAccuracy*e.decay + correctVal*(1-e.decay)

	mag := math.Abs(score)
	if correct {
		n := float64(h.CorrectPredictions)
		h.AvgScoreCorrect = (h.AvgScoreCorrect*(n-1) + mag) / n
	} else {
		n := float64(h.TotalPredictions - h.CorrectPredictions)
		h.AvgScoreIncorrect = (h.AvgScoreIncorrect*(n-1) + mag) / n
	}

	h.WeightAdjustment = adjustmentForAccuracy(h.RollingAccuracy, h.TotalPredictions, e.minSampleSize)
	h.UpdatedAt = time.Now().UTC()

	metrics.LayerRollingAccuracy.WithLabelValues(string(layer), regime, horizon).Set(h.RollingAccuracy)

	return e.repo.UpsertLayerHistory(ctx, h)
}

// adjustmentForAccuracy maps rolling accuracy to a weight-adjustment step.
// Below the minimum sample size the adjustment is forced to zero: too
// little evidence to move weights.
func adjustmentForAccuracy(rolling float64, samples, minSamples int) float64 {
	if samples < minSamples {
		return 0
	}
	switch {
	case rolling >= 0.70:
		return 0.08
	case rolling >= 0.60:
		return 0.04
	case rolling >= 0.55:
		return 0.02
	case rolling >= 0.50:
		return 0
	case rolling >= 0.45:
		return -0.02
	case rolling >= 0.40:
		return -0.04
	default:
		return -0.06
	}
}

// ResetAndRecompute repairs historical double-counting: it clears all
// learning state and processed stamps, then replays the batch loop to
// exhaustion under a bounded iteration count. This is an explicit
// maintenance operation, not part of the steady-state loop.
func (e *Engine) ResetAndRecompute(ctx context.Context) (*ResetResult, error) {
	if err := e.repo.ClearLearningState(ctx); err != nil {
		return nil, fmt.Errorf("clear learning state: %w", err)
	}

	result := &ResetResult{}
	for i := 0; i < e.maxBatchIterations; i++ {
		batch, err := e.ProcessOutcomes(ctx)
		if err != nil {
			return result, err
		}
		result.Batches++
		result.PredictionsReprocessed += batch.Processed
		if batch.Processed == 0 {
			break
		}
	}

	e.logger.Info().
		Int("reprocessed", result.PredictionsReprocessed).
		Int("batches", result.Batches).
		Msg("Learning state reset and recomputed")
	return result, nil
}
