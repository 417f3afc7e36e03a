package learning

import (
	"context"
	"math"
	"time"
)

// patternCondition is a fixed boolean check over a completed prediction's
// layer scores.
type patternCondition struct {
	name        string
	description string
	matches     func(p *PredictionRecord) bool
}

// patternConditions are evaluated independently of layer updates; each
// match bumps the pattern's occurrence count and success rate.
var patternConditions = []patternCondition{
	{
		name:        "all_layers_aligned",
		description: "All four layer scores agree in direction",
		matches: func(p *PredictionRecord) bool {
			return layerAgreement(p.LayerScores.HardData, p.LayerScores.Technical, p.LayerScores.SAM, p.LayerScores.Economic) == 4
		},
	},
	{
		name:        "three_layer_agreement",
		description: "At least three of four layer scores agree in direction",
		matches: func(p *PredictionRecord) bool {
			return layerAgreement(p.LayerScores.HardData, p.LayerScores.Technical, p.LayerScores.SAM, p.LayerScores.Economic) >= 3
		},
	},
	{
		name:        "high_confidence",
		description: "Ensemble vote confidence at or above 70%",
		matches: func(p *PredictionRecord) bool {
			return p.Confidence >= 70
		},
	},
	{
		name:        "sam_extreme",
		description: "Strong SAM score pointing the same way as the prediction",
		matches: func(p *PredictionRecord) bool {
			return math.Abs(p.LayerScores.SAM) > 0.5 && sameSign(p.LayerScores.SAM, p.Score)
		},
	},
	{
		name:        "hard_sam_agreement",
		description: "Hard-data and SAM layers strongly agree in direction",
		matches: func(p *PredictionRecord) bool {
			return math.Abs(p.LayerScores.HardData) > 0.3 &&
				math.Abs(p.LayerScores.SAM) > 0.3 &&
				sameSign(p.LayerScores.HardData, p.LayerScores.SAM)
		},
	},
}

// layerAgreement counts the largest group of layer scores sharing a
// non-zero sign.
func layerAgreement(scores ...float64) int {
	up, down := 0, 0
	for _, s := range scores {
		if s > 0 {
			up++
		} else if s < 0 {
			down++
		}
	}
	if up > down {
		return up
	}
	return down
}

func sameSign(a, b float64) bool {
	return (a > 0 && b > 0) || (a < 0 && b < 0)
}

// updatePatterns bumps every pattern whose condition matches the prediction
// and returns how many matched. Patterns activate only once occurrences
// reach the minimum threshold.
func (e *Engine) updatePatterns(ctx context.Context, pred *PredictionRecord) (int, error) {
	correct := pred.Status == StatusCorrect

	matched := 0
	for _, cond := range patternConditions {
		if !cond.matches(pred) {
			continue
		}
		matched++

		p, err := e.repo.GetPattern(ctx, cond.name)
		if err != nil {
			return matched, err
		}
		if p == nil {
			p = &Pattern{Name: cond.name, Description: cond.description}
		}

		p.Occurrences++
		if correct {
			p.Successes++
		}
		p.SuccessRate = float64(p.Successes) / float64(p.Occurrences)
		p.Active = p.Occurrences >= e.minOccurrences
		p.UpdatedAt = time.Now().UTC()

		if err := e.repo.UpsertPattern(ctx, p); err != nil {
			return matched, err
		}
	}
	return matched, nil
}
