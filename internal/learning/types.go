// Package learning implements the self-improving feedback loop: idempotent
// consumption of completed predictions, per-layer accuracy history, pattern
// detection over layer scores, and optimized layer-weight derivation.
package learning

import (
	"time"

	"github.com/mertipekreal/merf-stock-engine/internal/features"
)

// Layer identifies one of the four signal layers.
type Layer string

const (
	LayerHardData  Layer = "hard_data"
	LayerTechnical Layer = "technical"
	LayerSAM       Layer = "sam"
	LayerEconomic  Layer = "economic"
)

// Layers returns the four layers in canonical order.
func Layers() []Layer {
	return []Layer{LayerHardData, LayerTechnical, LayerSAM, LayerEconomic}
}

// Prediction lifecycle states. A prediction mutates exactly twice: once
// when the outcome recorder attaches the result, once when the learning
// loop stamps LearningProcessedAt.
type PredictionStatus string

const (
	StatusPending   PredictionStatus = "pending"
	StatusCorrect   PredictionStatus = "correct"
	StatusIncorrect PredictionStatus = "incorrect"
)

// PredictionRecord is a stored prediction with its layer breakdown and,
// once the horizon elapses, its realized outcome.
type PredictionRecord struct {
	ID                  string                `json:"id"`
	Symbol              string                `json:"symbol"`
	Direction           string                `json:"direction"`
	Score               float64               `json:"score"`
	Probability         float64               `json:"probability"`
	Confidence          float64               `json:"confidence"`
	Votes               map[string]int        `json:"votes"`
	Contributions       map[string]float64    `json:"contributions"`
	LayerScores         features.LayerScores  `json:"layer_scores"`
	WeightsUsed         features.LayerWeights `json:"weights_used"`
	CompositeSignal     float64               `json:"composite_signal"`
	Regime              string                `json:"regime"`
	Horizon             string                `json:"horizon"`
	Status              PredictionStatus      `json:"status"`
	ActualDirection     string                `json:"actual_direction,omitempty"`
	ActualReturn        float64               `json:"actual_return,omitempty"`
	CreatedAt           time.Time             `json:"created_at"`
	OutcomeAt           *time.Time            `json:"outcome_at,omitempty"`
	LearningProcessedAt *time.Time            `json:"learning_processed_at,omitempty"`
}

// LayerHistory is one learning-history row, keyed by (layer, regime,
// horizon). It accumulates incrementally and is only ever reset by the
// explicit recompute operation.
type LayerHistory struct {
	Layer              Layer     `json:"layer"`
	Regime             string    `json:"regime"`
	Horizon            string    `json:"horizon"`
	TotalPredictions   int       `json:"total_predictions"`
	CorrectPredictions int       `json:"correct_predictions"`
	Accuracy           float64   `json:"accuracy"`
	RollingAccuracy    float64   `json:"rolling_accuracy"`
	AvgScoreCorrect    float64   `json:"avg_score_correct"`
	AvgScoreIncorrect  float64   `json:"avg_score_incorrect"`
	WeightAdjustment   float64   `json:"weight_adjustment"`
	UpdatedAt          time.Time `json:"updated_at"`
}

// Pattern is a named boolean condition over layer scores with its running
// occurrence count and success rate. It only becomes active once enough
// occurrences accumulate to trust the sample.
type Pattern struct {
	Name        string    `json:"name"`
	Description string    `json:"description"`
	Occurrences int       `json:"occurrences"`
	Successes   int       `json:"successes"`
	SuccessRate float64   `json:"success_rate"`
	Active      bool      `json:"active"`
	UpdatedAt   time.Time `json:"updated_at"`
}

// BatchResult summarizes one outcome-processing run.
type BatchResult struct {
	Processed       int `json:"processed"`
	PatternsMatched int `json:"patterns_matched"`
}

// ResetResult summarizes a reset-and-recompute maintenance run.
type ResetResult struct {
	PredictionsReprocessed int `json:"predictions_reprocessed"`
	Batches                int `json:"batches"`
}
