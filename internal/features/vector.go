package features

// featureRange fixes the documented (min,max) normalization bounds for one
// vector slot. Raw values are min-max scaled into [0,1]; out-of-range
// values clamp rather than error.
type featureRange struct {
	name string
	min  float64
	max  float64
}

// vectorSchema is the positional layout of the unified vector. The order is
// load-bearing: trained tree models address features by index, so this list
// must never be reordered without bumping FeatureVersion.
var vectorSchema = []featureRange{
	// Hard data
	{"hard_price_change_1d", -10, 10},
	{"hard_price_change_5d", -20, 20},
	{"hard_volume_ratio", 0, 3},
	{"hard_put_call_ratio", 0, 2},
	{"hard_dark_pool_flow", -50e6, 50e6},
	{"hard_congress_net_buy", -10e6, 10e6},
	{"hard_insider_net_buy", -10e6, 10e6},
	// Technical
	{"tech_gap_count", 0, 10},
	{"tech_gap_net_direction", -1, 1},
	{"tech_structure_signal", -1, 1},
	{"tech_liquidity_void_nearby", 0, 1},
	{"tech_trend_strength", -1, 1},
	{"tech_rsi", 0, 100},
	{"tech_macd_cross", -1, 1},
	// SAM sentiment
	{"sam_night_activity_ratio", 0, 1},
	{"sam_sentiment_dissonance", -1, 1},
	{"sam_dream_fear_index", 0, 100},
	{"sam_social_sentiment", -1, 1},
	{"sam_dream_fear_ratio", 0, 1},
	// Economic
	{"econ_vix", 10, 40},
	{"econ_yield_curve_spread", -2, 3},
	{"econ_consumer_sentiment", 50, 110},
	{"econ_unemployment_rate", 3, 10},
	{"econ_cpi", 0, 10},
	{"econ_fed_funds_rate", 0, 8},
	{"econ_risk_on", 0, 1},
}

// FeatureNames returns the stable, ordered feature name list.
func FeatureNames() []string {
	names := make([]string, len(vectorSchema))
	for i, f := range vectorSchema {
		names[i] = f.name
	}
	return names
}

// FeatureCount is the unified vector length.
func FeatureCount() int {
	return len(vectorSchema)
}

func normalize(raw, min, max float64) float64 {
	if max <= min {
		return 0
	}
	v := (raw - min) / (max - min)
	if v < 0 {
		return 0
	}
	if v > 1 {
		return 1
	}
	return v
}

func boolToFloat(b bool) float64 {
	if b {
		return 1
	}
	return 0
}

// buildVector flattens the four sub-feature groups into the normalized
// vector, in schema order.
func (f *UnifiedFeatures) buildVector() {
	raw := []float64{
		f.HardData.PriceChange1D,
		f.HardData.PriceChange5D,
		f.HardData.VolumeRatio,
		f.HardData.PutCallRatio,
		f.HardData.DarkPoolFlow,
		f.HardData.CongressNetBuy,
		f.HardData.InsiderNetBuy,
		f.Technical.GapCount,
		f.Technical.GapNetDirection,
		f.Technical.StructureSignal,
		boolToFloat(f.Technical.LiquidityVoidNearby),
		f.Technical.TrendStrength,
		f.Technical.RSI,
		f.Technical.MACDCross,
		f.SAM.NightActivityRatio,
		f.SAM.SentimentDissonance,
		f.SAM.DreamFearIndex,
		f.SAM.SocialSentiment,
		f.SAM.DreamFearRatio,
		f.Economic.VIX,
		f.Economic.YieldCurveSpread,
		f.Economic.ConsumerSentiment,
		f.Economic.UnemploymentRate,
		f.Economic.CPI,
		f.Economic.FedFundsRate,
		boolToFloat(f.Economic.RiskOn),
	}

	f.Vector = make([]float64, len(vectorSchema))
	f.Names = FeatureNames()
	for i, r := range vectorSchema {
		f.Vector[i] = normalize(raw[i], r.min, r.max)
	}
	f.Version = FeatureVersion
}
