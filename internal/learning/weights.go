package learning

import (
	"context"
	"fmt"
	"math"

	"github.com/mertipekreal/merf-stock-engine/internal/features"
)

// Valid ranges each optimized layer weight must stay inside.
var weightBounds = map[Layer][2]float64{
	LayerHardData:  {0.15, 0.45},
	LayerTechnical: {0.10, 0.40},
	LayerSAM:       {0.10, 0.50},
	LayerEconomic:  {0.05, 0.30},
}

// GetOptimizedWeights aggregates weight-adjustment scalars across matching
// history rows (sample-size weighted), applies them to the caller's default
// weights, clamps each layer into its valid range, and renormalizes the
// four weights to sum to 1. Empty regime/horizon match all rows.
func (e *Engine) GetOptimizedWeights(ctx context.Context, defaults features.LayerWeights, regime, horizon string) (features.LayerWeights, error) {
	rows, err := e.repo.ListLayerHistories(ctx, regime, horizon)
	if err != nil {
		return defaults, fmt.Errorf("list layer histories: %w", err)
	}

	adjSum := map[Layer]float64{}
	sampleSum := map[Layer]float64{}
	for _, h := range rows {
		adjSum[h.Layer] += h.WeightAdjustment * float64(h.TotalPredictions)
		sampleSum[h.Layer] += float64(h.TotalPredictions)
	}

	adjusted := map[Layer]float64{
		LayerHardData:  defaults.HardData,
		LayerTechnical: defaults.Technical,
		LayerSAM:       defaults.SAM,
		LayerEconomic:  defaults.Economic,
	}
	for layer := range adjusted {
		if sampleSum[layer] > 0 {
			adjusted[layer] += adjSum[layer] / sampleSum[layer]
		}
	}

	normalized := clampAndNormalize(adjusted)

	return features.LayerWeights{
		HardData:  normalized[LayerHardData],
		Technical: normalized[LayerTechnical],
		SAM:       normalized[LayerSAM],
		Economic:  normalized[LayerEconomic],
	}, nil
}

// clampAndNormalize iterates clamping into the valid ranges and rescaling
// toward a unit sum until both hold, then absorbs any residual into a layer
// with slack.
func clampAndNormalize(weights map[Layer]float64) map[Layer]float64 {
	out := make(map[Layer]float64, len(weights))
	for l, w := range weights {
		out[l] = w
	}

	for iter := 0; iter < 20; iter++ {
		sum := 0.0
		for l := range out {
			b := weightBounds[l]
			out[l] = math.Min(math.Max(out[l], b[0]), b[1])
			sum += out[l]
		}
		if math.Abs(sum-1) < 1e-12 {
			return out
		}
		for l := range out {
			out[l] /= sum
		}
	}

	// Final correction: clamp once more and push the remainder into
	// whichever layer has room.
	sum := 0.0
	for l := range out {
		b := weightBounds[l]
		out[l] = math.Min(math.Max(out[l], b[0]), b[1])
		sum += out[l]
	}
	residual := 1 - sum
	for _, l := range Layers() {
		b := weightBounds[l]
		candidate := out[l] + residual
		if candidate >= b[0] && candidate <= b[1] {
			out[l] = candidate
			break
		}
	}
	return out
}
