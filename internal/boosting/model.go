package boosting

import (
	"errors"
	"fmt"
	"math"
	"time"

	"github.com/google/uuid"
)

// Direction labels for predictions and tree votes.
const (
	DirectionUp      = "up"
	DirectionDown    = "down"
	DirectionNeutral = "neutral"
)

// Directional thresholds on the ensemble score and per-tree outputs.
const (
	directionThreshold = 0.05
	voteThreshold      = 0.1
)

var (
	// ErrFeatureCountMismatch is a hard error: positional indexing is
	// safety-critical to tree traversal, so a wrong-length vector is never
	// truncated or padded.
	ErrFeatureCountMismatch = errors.New("feature vector length does not match model feature count")
	// ErrNoTrainingData is returned when the training set is empty.
	ErrNoTrainingData = errors.New("no training data")
)

// Hyperparameters configure a training run.
type Hyperparameters struct {
	NEstimators     int     `json:"n_estimators"`
	LearningRate    float64 `json:"learning_rate"`
	MaxDepth        int     `json:"max_depth"`
	MinSamplesSplit int     `json:"min_samples_split"`
	MinSamplesLeaf  int     `json:"min_samples_leaf"`
}

// DefaultHyperparameters returns the standard training configuration.
func DefaultHyperparameters() Hyperparameters {
	return Hyperparameters{
		NEstimators:     50,
		LearningRate:    0.1,
		MaxDepth:        3,
		MinSamplesSplit: DefaultMinSamplesSplit,
		MinSamplesLeaf:  DefaultMinSamplesLeaf,
	}
}

// Model is an ordered sequence of regression trees plus the shared learning
// rate and base prediction. Models are immutable once trained; the trees
// are exclusively owned by the model that built them.
type Model struct {
	ID                string             `json:"id"`
	Version           int                `json:"version"`
	Trees             []*DecisionTree    `json:"trees"`
	BasePrediction    float64            `json:"base_prediction"`
	FeatureNames      []string           `json:"feature_names"`
	FeatureImportance map[string]float64 `json:"feature_importance"`
	Params            Hyperparameters    `json:"params"`
	TrainedAt         time.Time          `json:"trained_at"`
	Metrics           *Metrics           `json:"metrics,omitempty"`
}

// Prediction is a full inference result.
type Prediction struct {
	Score         float64            `json:"score"`
	Direction     string             `json:"direction"`
	Probability   float64            `json:"probability"`
	Confidence    float64            `json:"confidence"` // % of trees in the winning vote bucket
	Votes         map[string]int     `json:"votes"`
	Contributions map[string]float64 `json:"contributions"`
}

// Train fits an additive ensemble: start every sample at the mean target,
// then per round fit one tree to the residuals and fold learning_rate times
// its output back into the running predictions.
func Train(features [][]float64, targets []float64, featureNames []string, params Hyperparameters) (*Model, error) {
	if len(features) == 0 || len(targets) == 0 {
		return nil, ErrNoTrainingData
	}
	if len(features) != len(targets) {
		return nil, fmt.Errorf("features/targets length mismatch: %d vs %d", len(features), len(targets))
	}
	for i, row := range features {
		if len(row) != len(featureNames) {
			return nil, fmt.Errorf("sample %d: %w (got %d, want %d)", i, ErrFeatureCountMismatch, len(row), len(featureNames))
		}
	}
	if params.NEstimators <= 0 {
		params.NEstimators = DefaultHyperparameters().NEstimators
	}
	if params.LearningRate <= 0 {
		params.LearningRate = DefaultHyperparameters().LearningRate
	}
	if params.MaxDepth <= 0 {
		params.MaxDepth = DefaultHyperparameters().MaxDepth
	}
	if params.MinSamplesSplit <= 0 {
		params.MinSamplesSplit = DefaultMinSamplesSplit
	}
	if params.MinSamplesLeaf <= 0 {
		params.MinSamplesLeaf = DefaultMinSamplesLeaf
	}

	base := 0.0
	for _, t := range targets {
		base += t
	}
	base /= float64(len(targets))

	predictions := make([]float64, len(targets))
	for i := range predictions {
		predictions[i] = base
	}

	builder := &treeBuilder{
		maxDepth:        params.MaxDepth,
		minSamplesSplit: params.MinSamplesSplit,
		minSamplesLeaf:  params.MinSamplesLeaf,
	}

	trees := make([]*DecisionTree, 0, params.NEstimators)
	residuals := make([]float64, len(targets))
	splitCounts := make(map[int]int)

	for round := 0; round < params.NEstimators; round++ {
		for i := range targets {
			residuals[i] = targets[i] - predictions[i]
		}

		tree := builder.build(features, residuals)
		trees = append(trees, tree)
		tree.SplitCounts(splitCounts)

		for i, row := range features {
			predictions[i] += params.LearningRate * tree.Predict(row)
		}
	}

	model := &Model{
		ID:             uuid.New().String(),
		Version:        1,
		Trees:          trees,
		BasePrediction: base,
		FeatureNames:   append([]string(nil), featureNames...),
		Params:         params,
		TrainedAt:      time.Now().UTC(),
	}
	model.FeatureImportance = normalizeImportance(splitCounts, featureNames)

	return model, nil
}

// normalizeImportance converts split usage counts into proportions. Usage
// counting (rather than gain weighting) is a deliberate simplification that
// downstream consumers were tuned against.
func normalizeImportance(counts map[int]int, names []string) map[string]float64 {
	total := 0
	for _, c := range counts {
		total += c
	}
	importance := make(map[string]float64, len(counts))
	if total == 0 {
		return importance
	}
	for idx, c := range counts {
		if idx >= 0 && idx < len(names) {
			importance[names[idx]] = float64(c) / float64(total)
		}
	}
	return importance
}

// Predict returns base_prediction + sum of learning_rate * tree(v).
func (m *Model) Predict(vector []float64) (float64, error) {
	if len(vector) != len(m.FeatureNames) {
		return 0, fmt.Errorf("%w (got %d, want %d)", ErrFeatureCountMismatch, len(vector), len(m.FeatureNames))
	}
	score := m.BasePrediction
	for _, tree := range m.Trees {
		score += m.Params.LearningRate * tree.Predict(vector)
	}
	return score, nil
}

// PredictFull runs inference plus vote tally and path contributions.
func (m *Model) PredictFull(vector []float64) (*Prediction, error) {
	score, err := m.Predict(vector)
	if err != nil {
		return nil, err
	}

	votes := m.treeVotes(vector)
	winning := 0
	for _, c := range votes {
		if c > winning {
			winning = c
		}
	}
	confidence := 0.0
	if len(m.Trees) > 0 {
		confidence = float64(winning) / float64(len(m.Trees)) * 100
	}

	contributions, err := m.FeatureContributions(vector)
	if err != nil {
		return nil, err
	}

	direction, probability := classifyScore(score)
	return &Prediction{
		Score:         score,
		Direction:     direction,
		Probability:   probability,
		Confidence:    confidence,
		Votes:         votes,
		Contributions: contributions,
	}, nil
}

// classifyScore maps the ensemble score to a direction and probability:
// score > 0.05 up, < -0.05 down, else neutral; probability is
// 0.5 + min(0.45, 2|score|).
func classifyScore(score float64) (string, float64) {
	direction := DirectionNeutral
	if score > directionThreshold {
		direction = DirectionUp
	} else if score < -directionThreshold {
		direction = DirectionDown
	}
	probability := 0.5 + math.Min(0.45, 2*math.Abs(score))
	return direction, probability
}

// treeVotes classifies each tree's raw output into up/down/neutral buckets
// at the +/-0.1 threshold, a confidence proxy for the ensemble.
func (m *Model) treeVotes(vector []float64) map[string]int {
	votes := map[string]int{DirectionUp: 0, DirectionDown: 0, DirectionNeutral: 0}
	for _, tree := range m.Trees {
		out := tree.Predict(vector)
		switch {
		case out > voteThreshold:
			votes[DirectionUp]++
		case out < -voteThreshold:
			votes[DirectionDown]++
		default:
			votes[DirectionNeutral]++
		}
	}
	return votes
}

// FeatureContributions walks each tree's decision path and spreads that
// tree's scaled output evenly over the features used along the path, keyed
// by feature name. The map sums to Predict(v) - BasePrediction; trees whose
// root is already a leaf have no path to attribute and are credited to the
// pseudo-feature "_base".
func (m *Model) FeatureContributions(vector []float64) (map[string]float64, error) {
	if len(vector) != len(m.FeatureNames) {
		return nil, fmt.Errorf("%w (got %d, want %d)", ErrFeatureCountMismatch, len(vector), len(m.FeatureNames))
	}

	contributions := make(map[string]float64)
	for _, tree := range m.Trees {
		path, leaf := tree.DecisionPath(vector)
		scaled := m.Params.LearningRate * leaf.Value
		if len(path) == 0 {
			contributions["_base"] += scaled
			continue
		}
		share := scaled / float64(len(path))
		for _, featureIdx := range path {
			contributions[m.FeatureNames[featureIdx]] += share
		}
	}
	return contributions, nil
}
