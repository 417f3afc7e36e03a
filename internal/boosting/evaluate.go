package boosting

import (
	"fmt"
	"math"
	"sort"
)

// Metrics summarize model quality on a held-out set. Classification metrics
// binarize both prediction and target at the zero threshold.
type Metrics struct {
	Accuracy  float64 `json:"accuracy"`
	Precision float64 `json:"precision"`
	Recall    float64 `json:"recall"`
	F1        float64 `json:"f1"`
	MSE       float64 `json:"mse"`
	MAE       float64 `json:"mae"`
	AUC       float64 `json:"auc"`
	Samples   int     `json:"samples"`
}

// Evaluate scores the model against held-out features/targets.
func (m *Model) Evaluate(features [][]float64, targets []float64) (*Metrics, error) {
	if len(features) == 0 || len(features) != len(targets) {
		return nil, fmt.Errorf("evaluate: need matching feature/target sets, got %d/%d", len(features), len(targets))
	}

	predictions := make([]float64, len(features))
	for i, row := range features {
		p, err := m.Predict(row)
		if err != nil {
			return nil, err
		}
		predictions[i] = p
	}

	var tp, tn, fp, fn int
	mse, mae := 0.0, 0.0
	for i, p := range predictions {
		actual := targets[i]
		diff := p - actual
		mse += diff * diff
		mae += math.Abs(diff)

		predUp := p > 0
		actualUp := actual > 0
		switch {
		case predUp && actualUp:
			tp++
		case !predUp && !actualUp:
			tn++
		case predUp && !actualUp:
			fp++
		default:
			fn++
		}
	}

	n := float64(len(predictions))
	metrics := &Metrics{
		Accuracy: float64(tp+tn) / n,
		MSE:      mse / n,
		MAE:      mae / n,
		AUC:      rankAUC(predictions, targets),
		Samples:  len(predictions),
	}
	if tp+fp > 0 {
		metrics.Precision = float64(tp) / float64(tp+fp)
	}
	if tp+fn > 0 {
		metrics.Recall = float64(tp) / float64(tp+fn)
	}
	if metrics.Precision+metrics.Recall > 0 {
		metrics.F1 = 2 * metrics.Precision * metrics.Recall / (metrics.Precision + metrics.Recall)
	}
	return metrics, nil
}

// rankAUC computes the Mann-Whitney AUC: rank samples by prediction and
// accumulate the positive ranks over pos_count x neg_count.
func rankAUC(predictions, targets []float64) float64 {
	type pair struct {
		pred     float64
		positive bool
	}
	pairs := make([]pair, len(predictions))
	pos, neg := 0, 0
	for i, p := range predictions {
		positive := targets[i] > 0
		pairs[i] = pair{pred: p, positive: positive}
		if positive {
			pos++
		} else {
			neg++
		}
	}
	if pos == 0 || neg == 0 {
		return 0.5
	}

	sort.Slice(pairs, func(i, j int) bool { return pairs[i].pred < pairs[j].pred })

	posRankSum := 0.0
	for i, p := range pairs {
		if p.positive {
			posRankSum += float64(i + 1)
		}
	}

	return (posRankSum - float64(pos)*float64(pos+1)/2) / (float64(pos) * float64(neg))
}
