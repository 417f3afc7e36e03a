package engine

import (
	"context"
	"fmt"
	"math/rand"
	"time"

	"github.com/rs/zerolog"

	"github.com/mertipekreal/merf-stock-engine/internal/boosting"
	"github.com/mertipekreal/merf-stock-engine/internal/database"
	"github.com/mertipekreal/merf-stock-engine/internal/features"
	"github.com/mertipekreal/merf-stock-engine/internal/metrics"
)

// Training thresholds.
const (
	// MinRealSamples is the minimum number of real (snapshot, outcome)
	// pairs required before the trainer will fit on real data.
	MinRealSamples = 50

	syntheticSamples   = 500
	trainingFetchLimit = 5000
	holdoutFraction    = 0.2
)

// TrainingStore is what the trainer needs from persistence.
type TrainingStore interface {
	ListTrainingExamples(ctx context.Context, version, limit int) ([]database.TrainingExample, error)
	SaveModel(ctx context.Context, m *boosting.Model, synthetic bool) error
}

// TrainingResult reports one training run. Synthetic is true when the run
// fell back to generated data because too few real outcomes existed; such
// models are served but flagged so downstream consumers can discount them.
type TrainingResult struct {
	Model     *boosting.Model   `json:"model"`
	Synthetic bool              `json:"synthetic"`
	Samples   int               `json:"samples"`
	Metrics   *boosting.Metrics `json:"metrics,omitempty"`
}

// Trainer fits gradient-boosting models from stored snapshots and realized
// outcomes, falling back to a synthetic dataset while real history is thin.
type Trainer struct {
	store  TrainingStore
	cache  *ModelCache
	params boosting.Hyperparameters
	logger zerolog.Logger
}

// NewTrainer creates a trainer publishing into the given model cache.
func NewTrainer(store TrainingStore, cache *ModelCache, logger zerolog.Logger) *Trainer {
	return &Trainer{
		store:  store,
		cache:  cache,
		params: boosting.DefaultHyperparameters(),
		logger: logger.With().Str("component", "trainer").Logger(),
	}
}

// Train fits a model, evaluates it on a holdout split, persists it, and
// publishes it as the active model.
func (t *Trainer) Train(ctx context.Context) (*TrainingResult, error) {
	examples, err := t.store.ListTrainingExamples(ctx, features.FeatureVersion, trainingFetchLimit)
	if err != nil {
		return nil, fmt.Errorf("load training examples: %w", err)
	}

	synthetic := len(examples) < MinRealSamples
	if synthetic {
		t.logger.Warn().
			Int("real_samples", len(examples)).
			Int("required", MinRealSamples).
			Msg("Too few real outcomes, training on synthetic data")
		examples = syntheticDataset(syntheticSamples)
	}

	vectors := make([][]float64, len(examples))
	targets := make([]float64, len(examples))
	for i, ex := range examples {
		vectors[i] = ex.Vector
		targets[i] = ex.Target
	}

	holdout := int(float64(len(examples)) * holdoutFraction)
	trainVec, trainTgt := vectors[holdout:], targets[holdout:]
	testVec, testTgt := vectors[:holdout], targets[:holdout]

	model, err := boosting.Train(trainVec, trainTgt, features.FeatureNames(), t.params)
	if err != nil {
		return nil, fmt.Errorf("fit model: %w", err)
	}

	if len(testVec) > 0 {
		m, err := model.Evaluate(testVec, testTgt)
		if err != nil {
			return nil, fmt.Errorf("evaluate model: %w", err)
		}
		model.Metrics = m
	}

	if err := t.store.SaveModel(ctx, model, synthetic); err != nil {
		return nil, fmt.Errorf("save model: %w", err)
	}
	t.cache.Publish(model, synthetic)

	source := "real"
	if synthetic {
		source = "synthetic"
	}
	metrics.TrainingRunsTotal.WithLabelValues(source).Inc()

	t.logger.Info().
		Str("model_id", model.ID).
		Int("samples", len(examples)).
		Bool("synthetic", synthetic).
		Msg("Model trained and published")

	return &TrainingResult{
		Model:     model,
		Synthetic: synthetic,
		Samples:   len(examples),
		Metrics:   model.Metrics,
	}, nil
}

// syntheticDataset builds a plausible training set: normalized vectors in
// [0,1] with a target driven by a fixed linear signal over a handful of
// features plus noise. The structure gives the trees something to learn so
// the serving path behaves sensibly until real outcomes accumulate.
func syntheticDataset(n int) []database.TrainingExample {
	rng := rand.New(rand.NewSource(time.Now().UnixNano()))
	names := features.FeatureNames()

	examples := make([]database.TrainingExample, n)
	for i := range examples {
		vector := make([]float64, len(names))
		for j := range vector {
			vector[j] = rng.Float64()
		}

		// Centered signal features so the target straddles zero.
		target := 0.0
		target += (vector[0] - 0.5) * 0.04   // 1d price change
		target += (vector[1] - 0.5) * 0.02   // 5d price change
		target += (vector[12] - 0.5) * -0.03 // RSI mean reversion
		target += (vector[9] - 0.5) * 0.02   // structure signal
		target += rng.NormFloat64() * 0.01

		examples[i] = database.TrainingExample{Vector: vector, Target: target}
	}
	return examples
}
