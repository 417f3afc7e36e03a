package boosting

import (
	"errors"
	"math"
	"math/rand"
	"testing"
)

// signalDataset builds samples where the target follows feature 0 with a
// little noise, so trees have a real split to find.
func signalDataset(n int, seed int64) ([][]float64, []float64) {
	rng := rand.New(rand.NewSource(seed))
	features := make([][]float64, n)
	targets := make([]float64, n)
	for i := 0; i < n; i++ {
		f0 := rng.Float64()
		f1 := rng.Float64()
		f2 := rng.Float64()
		features[i] = []float64{f0, f1, f2}
		targets[i] = (f0-0.5)*4 + rng.NormFloat64()*0.2
	}
	return features, targets
}

var testNames = []string{"alpha", "beta", "gamma"}

func trainTestModel(t *testing.T) *Model {
	t.Helper()
	features, targets := signalDataset(200, 1)
	model, err := Train(features, targets, testNames, Hyperparameters{
		NEstimators:  20,
		LearningRate: 0.1,
		MaxDepth:     3,
	})
	if err != nil {
		t.Fatalf("Train: %v", err)
	}
	return model
}

func TestTrainRejectsBadInput(t *testing.T) {
	if _, err := Train(nil, nil, testNames, Hyperparameters{}); !errors.Is(err, ErrNoTrainingData) {
		t.Errorf("empty set should return ErrNoTrainingData, got %v", err)
	}

	features := [][]float64{{1, 2}}
	if _, err := Train(features, []float64{1}, testNames, Hyperparameters{}); !errors.Is(err, ErrFeatureCountMismatch) {
		t.Errorf("short row should return ErrFeatureCountMismatch, got %v", err)
	}
}

func TestAdditiveReconstruction(t *testing.T) {
	model := trainTestModel(t)

	vectors := [][]float64{
		{0.1, 0.5, 0.9},
		{0.9, 0.2, 0.1},
		{0.5, 0.5, 0.5},
	}
	for _, v := range vectors {
		score, err := model.Predict(v)
		if err != nil {
			t.Fatalf("Predict: %v", err)
		}

		manual := model.BasePrediction
		for _, tree := range model.Trees {
			manual += model.Params.LearningRate * tree.Predict(v)
		}
		if score != manual {
			t.Errorf("reconstruction failed: predict=%v manual=%v", score, manual)
		}
	}
}

func TestFeatureContributionsSumToScore(t *testing.T) {
	model := trainTestModel(t)

	v := []float64{0.8, 0.3, 0.6}
	score, err := model.Predict(v)
	if err != nil {
		t.Fatalf("Predict: %v", err)
	}
	contributions, err := model.FeatureContributions(v)
	if err != nil {
		t.Fatalf("FeatureContributions: %v", err)
	}

	sum := 0.0
	for _, c := range contributions {
		sum += c
	}
	if math.Abs(sum-(score-model.BasePrediction)) > 1e-9 {
		t.Errorf("contributions sum %v != score-base %v", sum, score-model.BasePrediction)
	}
	if _, ok := contributions["alpha"]; !ok {
		t.Error("dominant signal feature alpha should appear in contributions")
	}
}

func TestPredictRejectsWrongLength(t *testing.T) {
	model := trainTestModel(t)

	if _, err := model.Predict([]float64{0.5, 0.5}); !errors.Is(err, ErrFeatureCountMismatch) {
		t.Errorf("short vector must be a hard error, got %v", err)
	}
	if _, err := model.PredictFull([]float64{0.5, 0.5, 0.5, 0.5}); !errors.Is(err, ErrFeatureCountMismatch) {
		t.Errorf("long vector must be a hard error, got %v", err)
	}
}

func TestDirectionThresholds(t *testing.T) {
	cases := []struct {
		score     float64
		direction string
	}{
		{0.2, DirectionUp},
		{0.051, DirectionUp},
		{0.05, DirectionNeutral},
		{0.0, DirectionNeutral},
		{-0.05, DirectionNeutral},
		{-0.06, DirectionDown},
	}
	for _, tc := range cases {
		dir, prob := classifyScore(tc.score)
		if dir != tc.direction {
			t.Errorf("score %v: expected %s, got %s", tc.score, tc.direction, dir)
		}
		want := 0.5 + math.Min(0.45, 2*math.Abs(tc.score))
		if prob != want {
			t.Errorf("score %v: expected probability %v, got %v", tc.score, want, prob)
		}
	}
}

func TestPredictFullVotesAndConfidence(t *testing.T) {
	model := trainTestModel(t)

	pred, err := model.PredictFull([]float64{0.95, 0.5, 0.5})
	if err != nil {
		t.Fatalf("PredictFull: %v", err)
	}

	total := pred.Votes[DirectionUp] + pred.Votes[DirectionDown] + pred.Votes[DirectionNeutral]
	if total != len(model.Trees) {
		t.Errorf("votes should cover all %d trees, got %d", len(model.Trees), total)
	}
	if pred.Confidence < 0 || pred.Confidence > 100 {
		t.Errorf("confidence out of range: %v", pred.Confidence)
	}
	if pred.Direction != DirectionUp {
		t.Errorf("strong positive sample should predict up, got %s", pred.Direction)
	}
}

func TestFeatureImportanceNormalized(t *testing.T) {
	model := trainTestModel(t)

	sum := 0.0
	for _, v := range model.FeatureImportance {
		if v < 0 || v > 1 {
			t.Errorf("importance out of range: %v", v)
		}
		sum += v
	}
	if math.Abs(sum-1) > 1e-9 {
		t.Errorf("importances should sum to 1, got %v", sum)
	}
	if model.FeatureImportance["alpha"] <= model.FeatureImportance["beta"] {
		t.Errorf("signal feature alpha should dominate importance: %+v", model.FeatureImportance)
	}
}

func TestTreeStopConditions(t *testing.T) {
	// Four identical samples: under min_samples_split, so the root stays a leaf.
	features := [][]float64{{1, 1, 1}, {1, 1, 1}, {1, 1, 1}, {1, 1, 1}}
	targets := []float64{1, 2, 3, 4}

	model, err := Train(features, targets, testNames, Hyperparameters{NEstimators: 3, LearningRate: 0.5, MaxDepth: 3})
	if err != nil {
		t.Fatalf("Train: %v", err)
	}
	for i, tree := range model.Trees {
		if !tree.Root.IsLeaf() {
			t.Errorf("tree %d should be a bare leaf with 4 samples", i)
		}
	}
	if model.BasePrediction != 2.5 {
		t.Errorf("base prediction should be mean target 2.5, got %v", model.BasePrediction)
	}
}

func TestEvaluateMetrics(t *testing.T) {
	features, targets := signalDataset(300, 7)
	model, err := Train(features[:200], targets[:200], testNames, DefaultHyperparameters())
	if err != nil {
		t.Fatalf("Train: %v", err)
	}

	metrics, err := model.Evaluate(features[200:], targets[200:])
	if err != nil {
		t.Fatalf("Evaluate: %v", err)
	}

	if metrics.Accuracy < 0.7 {
		t.Errorf("model on strong synthetic signal should beat 0.7 accuracy, got %v", metrics.Accuracy)
	}
	if metrics.AUC < 0.7 {
		t.Errorf("AUC should reflect ranking quality, got %v", metrics.AUC)
	}
	if metrics.MSE < 0 || metrics.MAE < 0 {
		t.Errorf("error metrics must be non-negative: mse=%v mae=%v", metrics.MSE, metrics.MAE)
	}
	if metrics.F1 == 0 && metrics.Precision > 0 && metrics.Recall > 0 {
		t.Error("F1 should be populated when precision and recall are")
	}
}

func TestRankAUCPerfectAndInverted(t *testing.T) {
	preds := []float64{0.9, 0.8, 0.1, 0.2}
	targets := []float64{1, 1, -1, -1}
	if auc := rankAUC(preds, targets); auc != 1 {
		t.Errorf("perfect ranking should give AUC 1, got %v", auc)
	}

	inverted := []float64{0.1, 0.2, 0.9, 0.8}
	if auc := rankAUC(inverted, targets); auc != 0 {
		t.Errorf("inverted ranking should give AUC 0, got %v", auc)
	}

	if auc := rankAUC([]float64{0.5}, []float64{1}); auc != 0.5 {
		t.Errorf("degenerate class balance should give AUC 0.5, got %v", auc)
	}
}
