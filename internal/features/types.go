// Package features condenses hard market data, technical structure, SAM
// sentiment metrics and macro indicators into one fixed-order numeric
// feature vector, and scores each signal layer on a [-1,1] scale.
package features

import "time"

// FeatureVersion guards the positional layout of the unified vector. Any
// change to the vector's name order requires bumping this, since trained
// tree models index features by position.
const FeatureVersion = 1

// HardDataFeatures are raw market microstructure and positioning inputs.
type HardDataFeatures struct {
	PriceChange1D  float64 `json:"price_change_1d"` // %
	PriceChange5D  float64 `json:"price_change_5d"` // %
	VolumeRatio    float64 `json:"volume_ratio"`    // last bar vs 30-bar average
	PutCallRatio   float64 `json:"put_call_ratio"`  // trailing 7 days
	DarkPoolFlow   float64 `json:"dark_pool_flow"`  // signed net notional
	CongressNetBuy float64 `json:"congress_net_buy"`
	InsiderNetBuy  float64 `json:"insider_net_buy"`
}

// TechnicalFeatures reduce the structural detector output to scalars.
type TechnicalFeatures struct {
	GapCount            float64 `json:"gap_count"`
	GapNetDirection     float64 `json:"gap_net_direction"` // -1..1
	StructureSignal     float64 `json:"structure_signal"`  // sign of latest shift
	LiquidityVoidNearby bool    `json:"liquidity_void_nearby"`
	TrendStrength       float64 `json:"trend_strength"` // signed, -1..1
	RSI                 float64 `json:"rsi"`
	MACDCross           float64 `json:"macd_cross"` // sign of crossover
}

// SAMMetrics are the persisted sentiment-analysis measurements.
type SAMMetrics struct {
	NightActivityRatio  float64 `json:"night_activity_ratio"` // 0..1
	SentimentDissonance float64 `json:"sentiment_dissonance"` // -1..1
	DreamFearIndex      float64 `json:"dream_fear_index"`     // 0..100
	SocialSentiment     float64 `json:"social_sentiment"`     // -1..1
	DreamFearRatio      float64 `json:"dream_fear_ratio"`     // 0..1
}

// EconomicIndicators are the macro inputs.
type EconomicIndicators struct {
	VIX               float64 `json:"vix"`
	YieldCurveSpread  float64 `json:"yield_curve_spread"` // 10y-2y, points
	ConsumerSentiment float64 `json:"consumer_sentiment"`
	UnemploymentRate  float64 `json:"unemployment_rate"`
	CPI               float64 `json:"cpi"`
	FedFundsRate      float64 `json:"fed_funds_rate"`
	RiskOn            bool    `json:"risk_on"`
}

// UnifiedFeatures is the snapshot produced per prediction request: the four
// named sub-feature groups plus the flattened vector and its parallel name
// list. Invariant: len(Vector) == len(Names), with a stable name order.
type UnifiedFeatures struct {
	Symbol    string             `json:"symbol"`
	Date      time.Time          `json:"date"`
	Version   int                `json:"version"`
	HardData  HardDataFeatures   `json:"hard_data"`
	Technical TechnicalFeatures  `json:"technical"`
	SAM       SAMMetrics         `json:"sam"`
	Economic  EconomicIndicators `json:"economic"`
	Vector    []float64          `json:"vector"`
	Names     []string           `json:"names"`
}

// LayerScores are the four per-layer directional reads, each in [-1,1].
type LayerScores struct {
	HardData  float64 `json:"hard_data"`
	Technical float64 `json:"technical"`
	SAM       float64 `json:"sam"`
	Economic  float64 `json:"economic"`
}

// LayerWeights combine the four layer scores into one signal. They are
// expected to sum to 1.
type LayerWeights struct {
	HardData  float64 `json:"hard_data"`
	Technical float64 `json:"technical"`
	SAM       float64 `json:"sam"`
	Economic  float64 `json:"economic"`
}

// DefaultLayerWeights are the starting weights before the learning loop
// adjusts them.
func DefaultLayerWeights() LayerWeights {
	return LayerWeights{
		HardData:  0.30,
		Technical: 0.25,
		SAM:       0.25,
		Economic:  0.20,
	}
}

// Sum returns the total of the four weights.
func (w LayerWeights) Sum() float64 {
	return w.HardData + w.Technical + w.SAM + w.Economic
}

// Combine produces the weighted final signal from the layer scores.
func (w LayerWeights) Combine(s LayerScores) float64 {
	return s.HardData*w.HardData + s.Technical*w.Technical + s.SAM*w.SAM + s.Economic*w.Economic
}
