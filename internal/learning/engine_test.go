package learning

import (
	"context"
	"fmt"
	"math"
	"testing"
	"time"

	"github.com/rs/zerolog"

	"github.com/mertipekreal/merf-stock-engine/internal/features"
)

// fakeRepo is an in-memory Repository for tests.
type fakeRepo struct {
	predictions []*PredictionRecord
	histories   map[string]*LayerHistory
	patterns    map[string]*Pattern
}

func newFakeRepo() *fakeRepo {
	return &fakeRepo{
		histories: make(map[string]*LayerHistory),
		patterns:  make(map[string]*Pattern),
	}
}

func historyKey(layer Layer, regime, horizon string) string {
	return fmt.Sprintf("%s|%s|%s", layer, regime, horizon)
}

func (f *fakeRepo) ClaimCompletedPredictions(ctx context.Context, limit int) ([]*PredictionRecord, error) {
	var claimed []*PredictionRecord
	now := time.Now()
	for _, p := range f.predictions {
		if len(claimed) >= limit {
			break
		}
		if p.Status == StatusPending || p.LearningProcessedAt != nil {
			continue
		}
		stamp := now
		p.LearningProcessedAt = &stamp
		claimed = append(claimed, p)
	}
	return claimed, nil
}

func (f *fakeRepo) GetLayerHistory(ctx context.Context, layer Layer, regime, horizon string) (*LayerHistory, error) {
	h, ok := f.histories[historyKey(layer, regime, horizon)]
	if !ok {
		return nil, nil
	}
	clone := *h
	return &clone, nil
}

func (f *fakeRepo) UpsertLayerHistory(ctx context.Context, h *LayerHistory) error {
	clone := *h
	f.histories[historyKey(h.Layer, h.Regime, h.Horizon)] = &clone
	return nil
}

func (f *fakeRepo) ListLayerHistories(ctx context.Context, regime, horizon string) ([]*LayerHistory, error) {
	var out []*LayerHistory
	for _, h := range f.histories {
		if regime != "" && h.Regime != regime {
			continue
		}
		if horizon != "" && h.Horizon != horizon {
			continue
		}
		clone := *h
		out = append(out, &clone)
	}
	return out, nil
}

func (f *fakeRepo) GetPattern(ctx context.Context, name string) (*Pattern, error) {
	p, ok := f.patterns[name]
	if !ok {
		return nil, nil
	}
	clone := *p
	return &clone, nil
}

func (f *fakeRepo) UpsertPattern(ctx context.Context, p *Pattern) error {
	clone := *p
	f.patterns[p.Name] = &clone
	return nil
}

func (f *fakeRepo) ListPatterns(ctx context.Context) ([]*Pattern, error) {
	var out []*Pattern
	for _, p := range f.patterns {
		clone := *p
		out = append(out, &clone)
	}
	return out, nil
}

func (f *fakeRepo) ClearLearningState(ctx context.Context) error {
	f.histories = make(map[string]*LayerHistory)
	f.patterns = make(map[string]*Pattern)
	for _, p := range f.predictions {
		p.LearningProcessedAt = nil
	}
	return nil
}

func (f *fakeRepo) CountCompletedPredictions(ctx context.Context) (int, error) {
	n := 0
	for _, p := range f.predictions {
		if p.Status != StatusPending {
			n++
		}
	}
	return n, nil
}

func completedPrediction(id string, correct bool, scores features.LayerScores) *PredictionRecord {
	status := StatusIncorrect
	actual := "down"
	if correct {
		status = StatusCorrect
		actual = "up"
	}
	return &PredictionRecord{
		ID:              id,
		Symbol:          "THYAO",
		Direction:       "up",
		Score:           0.2,
		Confidence:      60,
		LayerScores:     scores,
		Regime:          "risk_on",
		Horizon:         "1d",
		Status:          status,
		ActualDirection: actual,
		CreatedAt:       time.Now(),
	}
}

func allBullishScores() features.LayerScores {
	return features.LayerScores{HardData: 0.4, Technical: 0.3, SAM: 0.6, Economic: 0.2}
}

func TestProcessOutcomesIdempotent(t *testing.T) {
	repo := newFakeRepo()
	for i := 0; i < 5; i++ {
		repo.predictions = append(repo.predictions, completedPrediction(fmt.Sprintf("p%d", i), i%2 == 0, allBullishScores()))
	}
	repo.predictions = append(repo.predictions, &PredictionRecord{ID: "pending", Status: StatusPending})

	engine := NewEngine(repo, zerolog.Nop())

	first, err := engine.ProcessOutcomes(context.Background())
	if err != nil {
		t.Fatalf("first run: %v", err)
	}
	if first.Processed != 5 {
		t.Errorf("expected 5 processed, got %d", first.Processed)
	}

	snapshot := make(map[string]LayerHistory)
	for k, h := range repo.histories {
		snapshot[k] = *h
	}

	second, err := engine.ProcessOutcomes(context.Background())
	if err != nil {
		t.Fatalf("second run: %v", err)
	}
	if second.Processed != 0 {
		t.Errorf("second run must process 0 records, got %d", second.Processed)
	}
	for k, h := range repo.histories {
		if snapshot[k] != *h {
			t.Errorf("history %s changed on idempotent rerun: %+v vs %+v", k, snapshot[k], *h)
		}
	}
}

func TestRollingAccuracyDecay(t *testing.T) {
	repo := newFakeRepo()
	repo.predictions = []*PredictionRecord{completedPrediction("p1", true, allBullishScores())}

	engine := NewEngine(repo, zerolog.Nop())
	if _, err := engine.ProcessOutcomes(context.Background()); err != nil {
		t.Fatalf("ProcessOutcomes: %v", err)
	}

	h := repo.histories[historyKey(LayerHardData, "risk_on", "1d")]
	if h == nil {
		t.Fatal("expected hard_data history row")
	}
	// Seeded at 0.5, one correct update: 0.5*0.95 + 1*0.05
	want := 0.5*DefaultDecay + 1*(1-DefaultDecay)
	if math.Abs(h.RollingAccuracy-want) > 1e-12 {
		t.Errorf("rolling accuracy: want %v, got %v", want, h.RollingAccuracy)
	}
	if h.TotalPredictions != 1 || h.CorrectPredictions != 1 || h.Accuracy != 1 {
		t.Errorf("plain counters wrong: %+v", h)
	}
	if h.WeightAdjustment != 0 {
		t.Errorf("adjustment must be gated to 0 below %d samples, got %v", DefaultMinSampleSize, h.WeightAdjustment)
	}
}

func TestAdjustmentStepTable(t *testing.T) {
	cases := []struct {
		rolling float64
		want    float64
	}{
		{0.75, 0.08},
		{0.70, 0.08},
		{0.65, 0.04},
		{0.58, 0.02},
		{0.52, 0},
		{0.47, -0.02},
		{0.42, -0.04},
		{0.30, -0.06},
	}
	for _, tc := range cases {
		if got := adjustmentForAccuracy(tc.rolling, 20, DefaultMinSampleSize); got != tc.want {
			t.Errorf("rolling %v: want %v, got %v", tc.rolling, tc.want, got)
		}
	}
	if got := adjustmentForAccuracy(0.9, 9, DefaultMinSampleSize); got != 0 {
		t.Errorf("under min samples adjustment must be 0, got %v", got)
	}
}

func TestLayerCorrectnessBySign(t *testing.T) {
	repo := newFakeRepo()
	// Hard data says up, technical says down; outcome is up.
	scores := features.LayerScores{HardData: 0.4, Technical: -0.3, SAM: 0.1, Economic: 0}
	repo.predictions = []*PredictionRecord{completedPrediction("p1", true, scores)}

	engine := NewEngine(repo, zerolog.Nop())
	if _, err := engine.ProcessOutcomes(context.Background()); err != nil {
		t.Fatalf("ProcessOutcomes: %v", err)
	}

	hd := repo.histories[historyKey(LayerHardData, "risk_on", "1d")]
	tech := repo.histories[historyKey(LayerTechnical, "risk_on", "1d")]
	econ := repo.histories[historyKey(LayerEconomic, "risk_on", "1d")]

	if hd.CorrectPredictions != 1 {
		t.Error("hard_data layer pointed up and outcome was up: should be correct")
	}
	if tech.CorrectPredictions != 0 {
		t.Error("technical layer pointed down against an up outcome: should be incorrect")
	}
	if econ.CorrectPredictions != 0 {
		t.Error("zero-score layer implies neutral, which misses a directional outcome")
	}
}

func TestOptimizedWeightsSumAndBounds(t *testing.T) {
	repo := newFakeRepo()
	engine := NewEngine(repo, zerolog.Nop())

	// Seed extreme adjustments in both directions.
	now := time.Now()
	seed := []*LayerHistory{
		{Layer: LayerHardData, Regime: "risk_on", Horizon: "1d", TotalPredictions: 50, WeightAdjustment: 0.08, UpdatedAt: now},
		{Layer: LayerTechnical, Regime: "risk_on", Horizon: "1d", TotalPredictions: 50, WeightAdjustment: -0.06, UpdatedAt: now},
		{Layer: LayerSAM, Regime: "risk_on", Horizon: "1d", TotalPredictions: 50, WeightAdjustment: 0.08, UpdatedAt: now},
		{Layer: LayerEconomic, Regime: "risk_on", Horizon: "1d", TotalPredictions: 50, WeightAdjustment: -0.06, UpdatedAt: now},
	}
	for _, h := range seed {
		if err := repo.UpsertLayerHistory(context.Background(), h); err != nil {
			t.Fatal(err)
		}
	}

	for _, tc := range []struct{ regime, horizon string }{
		{"", ""},
		{"risk_on", "1d"},
		{"risk_off", "5d"}, // no rows match: defaults pass through
	} {
		w, err := engine.GetOptimizedWeights(context.Background(), features.DefaultLayerWeights(), tc.regime, tc.horizon)
		if err != nil {
			t.Fatalf("GetOptimizedWeights(%q,%q): %v", tc.regime, tc.horizon, err)
		}

		if math.Abs(w.Sum()-1) > 1e-9 {
			t.Errorf("(%q,%q) weights must sum to 1, got %v", tc.regime, tc.horizon, w.Sum())
		}
		checks := []struct {
			name     string
			v        float64
			min, max float64
		}{
			{"hard_data", w.HardData, 0.15, 0.45},
			{"technical", w.Technical, 0.10, 0.40},
			{"sam", w.SAM, 0.10, 0.50},
			{"economic", w.Economic, 0.05, 0.30},
		}
		for _, c := range checks {
			if c.v < c.min-1e-9 || c.v > c.max+1e-9 {
				t.Errorf("(%q,%q) %s weight %v outside [%v,%v]", tc.regime, tc.horizon, c.name, c.v, c.min, c.max)
			}
		}
	}
}

func TestPatternActivationThreshold(t *testing.T) {
	repo := newFakeRepo()
	for i := 0; i < DefaultMinOccurrences; i++ {
		repo.predictions = append(repo.predictions, completedPrediction(fmt.Sprintf("p%d", i), true, allBullishScores()))
	}

	engine := NewEngine(repo, zerolog.Nop())
	if _, err := engine.ProcessOutcomes(context.Background()); err != nil {
		t.Fatalf("ProcessOutcomes: %v", err)
	}

	p := repo.patterns["all_layers_aligned"]
	if p == nil {
		t.Fatal("expected all_layers_aligned pattern row")
	}
	if p.Occurrences != DefaultMinOccurrences {
		t.Errorf("expected %d occurrences, got %d", DefaultMinOccurrences, p.Occurrences)
	}
	if !p.Active {
		t.Error("pattern should activate at the occurrence threshold")
	}
	if p.SuccessRate != 1 {
		t.Errorf("all-correct run should have success rate 1, got %v", p.SuccessRate)
	}

	// One short of the threshold stays inactive.
	repo2 := newFakeRepo()
	for i := 0; i < DefaultMinOccurrences-1; i++ {
		repo2.predictions = append(repo2.predictions, completedPrediction(fmt.Sprintf("q%d", i), true, allBullishScores()))
	}
	engine2 := NewEngine(repo2, zerolog.Nop())
	if _, err := engine2.ProcessOutcomes(context.Background()); err != nil {
		t.Fatalf("ProcessOutcomes: %v", err)
	}
	if p2 := repo2.patterns["all_layers_aligned"]; p2 == nil || p2.Active {
		t.Error("pattern must stay inactive below the occurrence threshold")
	}
}

func TestPatternConditions(t *testing.T) {
	aligned := completedPrediction("a", true, allBullishScores())
	split := completedPrediction("b", true, features.LayerScores{HardData: 0.4, Technical: -0.3, SAM: -0.6, Economic: 0.2})
	confident := completedPrediction("c", true, features.LayerScores{})
	confident.Confidence = 85

	find := func(name string) patternCondition {
		for _, c := range patternConditions {
			if c.name == name {
				return c
			}
		}
		t.Fatalf("no condition %s", name)
		return patternCondition{}
	}

	if !find("all_layers_aligned").matches(aligned) {
		t.Error("aligned scores should match all_layers_aligned")
	}
	if find("all_layers_aligned").matches(split) {
		t.Error("split scores must not match all_layers_aligned")
	}
	if !find("high_confidence").matches(confident) {
		t.Error("confidence 85 should match high_confidence")
	}
	if !find("sam_extreme").matches(aligned) {
		t.Error("SAM 0.6 with positive score should match sam_extreme")
	}
	if find("hard_sam_agreement").matches(split) {
		t.Error("opposite-sign hard/SAM must not match hard_sam_agreement")
	}
}

func TestResetAndRecompute(t *testing.T) {
	repo := newFakeRepo()
	for i := 0; i < 7; i++ {
		repo.predictions = append(repo.predictions, completedPrediction(fmt.Sprintf("p%d", i), i%3 != 0, allBullishScores()))
	}
	repo.predictions = append(repo.predictions, &PredictionRecord{ID: "pending", Status: StatusPending})

	engine := NewEngine(repo, zerolog.Nop())

	// Simulate historical double-counting by processing twice with stamps
	// cleared in between.
	if _, err := engine.ProcessOutcomes(context.Background()); err != nil {
		t.Fatal(err)
	}
	for _, p := range repo.predictions {
		p.LearningProcessedAt = nil
	}
	if _, err := engine.ProcessOutcomes(context.Background()); err != nil {
		t.Fatal(err)
	}

	doubled := repo.histories[historyKey(LayerHardData, "risk_on", "1d")]
	if doubled.TotalPredictions != 14 {
		t.Fatalf("setup should have double-counted to 14, got %d", doubled.TotalPredictions)
	}

	result, err := engine.ResetAndRecompute(context.Background())
	if err != nil {
		t.Fatalf("ResetAndRecompute: %v", err)
	}

	completed, _ := repo.CountCompletedPredictions(context.Background())
	if result.PredictionsReprocessed != completed {
		t.Errorf("reprocessed %d, want the %d completed predictions", result.PredictionsReprocessed, completed)
	}

	repaired := repo.histories[historyKey(LayerHardData, "risk_on", "1d")]
	if repaired.TotalPredictions != 7 {
		t.Errorf("after recompute totals must match a from-scratch run: want 7, got %d", repaired.TotalPredictions)
	}

	// And match an actual from-scratch recomputation.
	fresh := newFakeRepo()
	for i := 0; i < 7; i++ {
		fresh.predictions = append(fresh.predictions, completedPrediction(fmt.Sprintf("p%d", i), i%3 != 0, allBullishScores()))
	}
	freshEngine := NewEngine(fresh, zerolog.Nop())
	if _, err := freshEngine.ProcessOutcomes(context.Background()); err != nil {
		t.Fatal(err)
	}
	freshRow := fresh.histories[historyKey(LayerHardData, "risk_on", "1d")]
	if freshRow.TotalPredictions != repaired.TotalPredictions ||
		freshRow.CorrectPredictions != repaired.CorrectPredictions ||
		math.Abs(freshRow.RollingAccuracy-repaired.RollingAccuracy) > 1e-12 {
		t.Errorf("recomputed state differs from from-scratch state: %+v vs %+v", repaired, freshRow)
	}
}
