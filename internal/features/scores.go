package features

// CalculateLayerScores turns the raw (non-normalized) sub-features into four
// directional scores, each a weighted combination of sign/threshold rules
// clamped to [-1,1]. These scores are the unit the learning loop reweights.
func CalculateLayerScores(f *UnifiedFeatures) LayerScores {
	return LayerScores{
		HardData:  hardDataScore(f.HardData),
		Technical: technicalScore(f.Technical),
		SAM:       samScore(f.SAM),
		Economic:  economicScore(f.Economic),
	}
}

func hardDataScore(h HardDataFeatures) float64 {
	score := 0.0

	score += clampUnit(h.PriceChange1D/3) * 0.30
	score += clampUnit(h.PriceChange5D/8) * 0.20

	// Put/call below 0.7 reads bullish, above 1.3 bearish.
	if h.PutCallRatio > 0 {
		if h.PutCallRatio < 0.7 {
			score += 0.15
		} else if h.PutCallRatio > 1.3 {
			score -= 0.15
		}
	}

	score += clampUnit(h.DarkPoolFlow/20e6) * 0.15
	score += sign(h.CongressNetBuy) * 0.10
	score += sign(h.InsiderNetBuy) * 0.10

	return clampUnit(score)
}

func technicalScore(t TechnicalFeatures) float64 {
	score := 0.0

	score += clampUnit(t.TrendStrength) * 0.30
	score += clampUnit((50-t.RSI)/20) * 0.20
	score += sign(t.MACDCross) * 0.20
	score += clampUnit(t.GapNetDirection) * 0.15
	score += sign(t.StructureSignal) * 0.15

	return clampUnit(score)
}

func samScore(s SAMMetrics) float64 {
	score := 0.0

	// Elevated dream fear reads bearish against the midpoint of 50.
	score += clampUnit((50-s.DreamFearIndex)/50) * 0.30
	score += clampUnit(s.SocialSentiment) * 0.30
	score -= clampUnit(s.SentimentDissonance) * 0.20
	// Night activity and fear ratio above their baselines lean bearish.
	score -= clampUnit((s.NightActivityRatio-0.35)/0.35) * 0.10
	score -= clampUnit((s.DreamFearRatio-0.25)/0.25) * 0.10

	return clampUnit(score)
}

func economicScore(e EconomicIndicators) float64 {
	score := 0.0

	score += clampUnit((20-e.VIX)/10) * 0.30
	score += clampUnit(e.YieldCurveSpread/1.5) * 0.25
	score += clampUnit((e.ConsumerSentiment-70)/20) * 0.15
	score += clampUnit((4.5-e.UnemploymentRate)/1.5) * 0.10
	score += clampUnit((3-e.CPI)/2) * 0.10
	if e.RiskOn {
		score += 0.10
	} else {
		score -= 0.10
	}

	return clampUnit(score)
}

func clampUnit(v float64) float64 {
	if v < -1 {
		return -1
	}
	if v > 1 {
		return 1
	}
	return v
}

func sign(v float64) float64 {
	if v > 0 {
		return 1
	}
	if v < 0 {
		return -1
	}
	return 0
}
