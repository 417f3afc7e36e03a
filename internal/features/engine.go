package features

import (
	"context"
	"math"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"github.com/mertipekreal/merf-stock-engine/internal/marketdata"
	"github.com/mertipekreal/merf-stock-engine/internal/smc"
)

const (
	hardDataLookbackDays = 60
	flowLookbackDays     = 7
	volumeWindow         = 30
)

// Deps are the upstream collaborators of the feature engine. Every feed is
// optional: a missing or failing feed degrades its sub-features to neutral
// defaults instead of failing the snapshot.
type Deps struct {
	Candles  marketdata.Provider
	Options  OptionsFlowFeed
	DarkPool DarkPoolFeed
	Congress CongressFeed
	Insider  InsiderFeed
	SAM      SAMMetricsStore
	Economic EconomicFeed
}

// Engine generates unified feature snapshots.
type Engine struct {
	deps     Deps
	detector *smc.Detector
	logger   zerolog.Logger
}

// NewEngine creates a feature engine.
func NewEngine(deps Deps, logger zerolog.Logger) *Engine {
	return &Engine{
		deps:     deps,
		detector: smc.NewDetector(),
		logger:   logger.With().Str("component", "feature_engine").Logger(),
	}
}

// GenerateSnapshot queries the four extractors concurrently and merges their
// results into one UnifiedFeatures keyed by symbol and session date. The
// extractors share no mutable state; merging happens after all complete.
func (e *Engine) GenerateSnapshot(ctx context.Context, symbol string, date time.Time) (*UnifiedFeatures, error) {
	snapshot := &UnifiedFeatures{
		Symbol: symbol,
		Date:   date,
	}

	candles := e.fetchCandles(ctx, symbol, date)

	var wg sync.WaitGroup
	wg.Add(4)
	go func() {
		defer wg.Done()
		snapshot.HardData = e.extractHardData(ctx, symbol, date, candles)
	}()
	go func() {
		defer wg.Done()
		snapshot.Technical = e.extractTechnical(symbol, candles)
	}()
	go func() {
		defer wg.Done()
		snapshot.SAM = e.extractSAM(ctx, symbol, date)
	}()
	go func() {
		defer wg.Done()
		snapshot.Economic = e.extractEconomic(ctx)
	}()
	wg.Wait()

	snapshot.buildVector()
	return snapshot, nil
}

func (e *Engine) fetchCandles(ctx context.Context, symbol string, date time.Time) []marketdata.Candle {
	if e.deps.Candles == nil {
		return nil
	}
	since := date.AddDate(0, 0, -hardDataLookbackDays)
	candles, err := e.deps.Candles.GetCandles(ctx, symbol, since, date)
	if err != nil {
		e.logger.Warn().Err(err).Str("symbol", symbol).Msg("Candle fetch failed, technical features degrade to neutral")
		return nil
	}
	return candles
}

func (e *Engine) extractHardData(ctx context.Context, symbol string, date time.Time, candles []marketdata.Candle) HardDataFeatures {
	h := HardDataFeatures{VolumeRatio: 1}

	if n := len(candles); n >= 2 {
		if prev := candles[n-2].Close; prev > 0 {
			h.PriceChange1D = (candles[n-1].Close - prev) / prev * 100
		}
	}
	if n := len(candles); n >= 6 {
		if prev := candles[n-6].Close; prev > 0 {
			h.PriceChange5D = (candles[n-1].Close - prev) / prev * 100
		}
	}
	if n := len(candles); n > 0 {
		window := volumeWindow
		if n < window {
			window = n
		}
		sum := 0.0
		for i := n - window; i < n; i++ {
			sum += candles[i].Volume
		}
		if avg := sum / float64(window); avg > 0 {
			h.VolumeRatio = candles[n-1].Volume / avg
		}
	}

	flowSince := date.AddDate(0, 0, -flowLookbackDays)

	if e.deps.Options != nil {
		if records, err := e.deps.Options.GetOptionsFlow(ctx, symbol, flowSince, date); err != nil {
			e.logger.Warn().Err(err).Str("symbol", symbol).Msg("Options flow unavailable")
		} else {
			puts, calls := 0.0, 0.0
			for _, r := range records {
				puts += r.PutVolume
				calls += r.CallVolume
			}
			if calls > 0 {
				h.PutCallRatio = puts / calls
			}
		}
	}

	if e.deps.DarkPool != nil {
		if trades, err := e.deps.DarkPool.GetDarkPoolTrades(ctx, symbol, flowSince, date); err != nil {
			e.logger.Warn().Err(err).Str("symbol", symbol).Msg("Dark pool feed unavailable")
		} else {
			for _, t := range trades {
				if t.Bullish {
					h.DarkPoolFlow += t.Notional
				} else {
					h.DarkPoolFlow -= t.Notional
				}
			}
		}
	}

	h.CongressNetBuy = e.netPositionFlow(ctx, symbol, flowSince, date, "congress")
	h.InsiderNetBuy = e.netPositionFlow(ctx, symbol, flowSince, date, "insider")

	return h
}

func (e *Engine) netPositionFlow(ctx context.Context, symbol string, since, until time.Time, feed string) float64 {
	var trades []PositionTrade
	var err error
	switch feed {
	case "congress":
		if e.deps.Congress == nil {
			return 0
		}
		trades, err = e.deps.Congress.GetCongressTrades(ctx, symbol, since, until)
	case "insider":
		if e.deps.Insider == nil {
			return 0
		}
		trades, err = e.deps.Insider.GetInsiderTrades(ctx, symbol, since, until)
	}
	if err != nil {
		e.logger.Warn().Err(err).Str("symbol", symbol).Str("feed", feed).Msg("Position feed unavailable")
		return 0
	}

	net := 0.0
	for _, t := range trades {
		if t.Side == SideBuy {
			net += t.Notional
		} else {
			net -= t.Notional
		}
	}
	return net
}

func (e *Engine) extractTechnical(symbol string, candles []marketdata.Candle) TechnicalFeatures {
	analysis := e.detector.Analyze(symbol, candles)

	t := TechnicalFeatures{
		GapCount: float64(len(analysis.FairValueGaps)),
		RSI:      analysis.RSI,
	}

	if n := len(analysis.FairValueGaps); n > 0 {
		net := 0
		for _, g := range analysis.FairValueGaps {
			if g.Direction == smc.Bullish {
				net++
			} else {
				net--
			}
		}
		t.GapNetDirection = float64(net) / float64(n)
	}

	if n := len(analysis.StructureShifts); n > 0 {
		if analysis.StructureShifts[n-1].Direction == smc.Bullish {
			t.StructureSignal = 1
		} else {
			t.StructureSignal = -1
		}
	}

	if len(candles) > 0 {
		price := candles[len(candles)-1].Close
		for _, v := range analysis.LiquidityVoids {
			if price >= v.RangeBottom*0.98 && price <= v.RangeTop*1.02 {
				t.LiquidityVoidNearby = true
				break
			}
		}
	}

	strength := analysis.Trend.Strength
	switch analysis.Trend.Direction {
	case smc.Bullish:
		t.TrendStrength = strength
	case smc.Bearish:
		t.TrendStrength = -strength
	}

	switch analysis.MACD.Crossover {
	case smc.Bullish:
		t.MACDCross = 1
	case smc.Bearish:
		t.MACDCross = -1
	}

	return t
}

// extractSAM resolves sentiment metrics through an ordered provider chain:
// the persisted store for the trailing window first, then the constant
// baseline model.
func (e *Engine) extractSAM(ctx context.Context, symbol string, date time.Time) SAMMetrics {
	var fromStore Provider[SAMMetrics]
	if e.deps.SAM != nil {
		fromStore = func(ctx context.Context) (*SAMMetrics, error) {
			return e.deps.SAM.GetMetrics(ctx, symbol, date.AddDate(0, 0, -flowLookbackDays), date)
		}
	}
	return FirstSuccess(ctx, BaselineSAMMetrics(), fromStore)
}

func (e *Engine) extractEconomic(ctx context.Context) EconomicIndicators {
	var fromFeed Provider[EconomicIndicators]
	if e.deps.Economic != nil {
		fromFeed = func(ctx context.Context) (*EconomicIndicators, error) {
			return e.deps.Economic.GetIndicators(ctx)
		}
	}
	ind := FirstSuccess(ctx, DefaultEconomicIndicators(), fromFeed)

	// Sanity-floor obviously broken feed values.
	if ind.VIX <= 0 || math.IsNaN(ind.VIX) {
		ind = DefaultEconomicIndicators()
	}
	return ind
}
