package smc

import (
	"time"

	"github.com/mertipekreal/merf-stock-engine/internal/marketdata"
)

// MinCandles is the smallest window the detector will analyze. Shorter
// windows produce an all-neutral Analysis instead of an error so that
// prediction pipelines keep running on thin history.
const MinCandles = 30

const (
	maxFairValueGaps   = 10
	maxStructureShifts = 5
	maxLiquidityVoids  = 5
	maxOrderBlocks     = 5

	minGapPercent      = 0.1 // FVG must exceed 0.1% of the middle bar close
	mssMinSwingDropPct = 1.0 // failed swing must miss the prior swing by >= 1%
	voidRangeMultiple  = 2.0
	voidVolumeCeiling  = 0.7
	orderBlockBodyMult = 1.5
)

// Detector derives structural signals from an ordered candle window.
type Detector struct {
	rsiPeriod    int
	volWindow    int
	volumeWindow int
}

// NewDetector creates a Detector with standard periods.
func NewDetector() *Detector {
	return &Detector{
		rsiPeriod:    14,
		volWindow:    20,
		volumeWindow: 20,
	}
}

// Analyze runs all detections over the candle window. Candles must be
// ordered oldest first.
func (d *Detector) Analyze(symbol string, candles []marketdata.Candle) Analysis {
	now := time.Now().UTC()
	if len(candles) > 0 {
		now = candles[len(candles)-1].Timestamp
	}
	if len(candles) < MinCandles {
		return neutralAnalysis(symbol, now)
	}

	closes := marketdata.Closes(candles)

	analysis := Analysis{
		Symbol:          symbol,
		Timestamp:       now,
		FairValueGaps:   d.detectFairValueGaps(candles),
		StructureShifts: d.detectStructureShifts(candles),
		LiquidityVoids:  d.detectLiquidityVoids(candles),
		OrderBlocks:     d.detectOrderBlocks(candles),
		RSI:             calculateRSI(closes, d.rsiPeriod),
		Volatility:      annualizedVolatility(closes, d.volWindow),
		VolumeRatio:     d.volumeRatio(candles),
	}

	macd, signal, histogram := calculateMACD(closes, 12, 26, 9)
	crossover := Neutral
	if histogram > 0 {
		crossover = Bullish
	} else if histogram < 0 {
		crossover = Bearish
	}
	analysis.MACD = MACDResult{MACD: macd, Signal: signal, Histogram: histogram, Crossover: crossover}

	analysis.Trend = d.detectTrend(closes)
	analysis.Bias = d.overallBias(analysis)

	return analysis
}

func neutralAnalysis(symbol string, ts time.Time) Analysis {
	return Analysis{
		Symbol:           symbol,
		Timestamp:        ts,
		RSI:              50,
		MACD:             MACDResult{Crossover: Neutral},
		Trend:            TrendResult{Direction: Neutral},
		VolumeRatio:      1,
		Bias:             Bias{Direction: Neutral},
		InsufficientData: true,
	}
}

// detectFairValueGaps scans consecutive bar triples for price imbalances.
// A bullish gap exists when the next bar's low clears the previous bar's
// high; the bearish case mirrors it. Keeps the most recent gaps.
func (d *Detector) detectFairValueGaps(candles []marketdata.Candle) []FairValueGap {
	var gaps []FairValueGap

	for i := 1; i < len(candles)-1; i++ {
		prev, mid, next := candles[i-1], candles[i], candles[i+1]
		if mid.Close <= 0 {
			continue
		}

		if next.Low > prev.High {
			gapPct := (next.Low - prev.High) / mid.Close * 100
			if gapPct > minGapPercent {
				gap := FairValueGap{
					Direction:    Bullish,
					GapTop:       next.Low,
					GapBottom:    prev.High,
					GapPercent:   gapPct,
					Significance: gapSignificance(gapPct),
					Timestamp:    mid.Timestamp,
				}
				gap.Filled = gapFilled(gap, candles[i+2:])
				gaps = append(gaps, gap)
			}
		}

		if next.High < prev.Low {
			gapPct := (prev.Low - next.High) / mid.Close * 100
			if gapPct > minGapPercent {
				gap := FairValueGap{
					Direction:    Bearish,
					GapTop:       prev.Low,
					GapBottom:    next.High,
					GapPercent:   gapPct,
					Significance: gapSignificance(gapPct),
					Timestamp:    mid.Timestamp,
				}
				gap.Filled = gapFilled(gap, candles[i+2:])
				gaps = append(gaps, gap)
			}
		}
	}

	if len(gaps) > maxFairValueGaps {
		gaps = gaps[len(gaps)-maxFairValueGaps:]
	}
	return gaps
}

func gapSignificance(gapPct float64) Significance {
	switch {
	case gapPct > 1.0:
		return SignificanceHigh
	case gapPct > 0.5:
		return SignificanceMedium
	default:
		return SignificanceLow
	}
}

// gapFilled reports whether later price action traded back through the gap.
func gapFilled(gap FairValueGap, later []marketdata.Candle) bool {
	for _, c := range later {
		if gap.Direction == Bullish && c.Low <= gap.GapBottom {
			return true
		}
		if gap.Direction == Bearish && c.High >= gap.GapTop {
			return true
		}
	}
	return false
}

type swing struct {
	index int
	price float64
	high  bool
}

// findSwings identifies local swing highs/lows using a symmetric 5-bar
// window: strict inequality against the two bars on each side.
func findSwings(candles []marketdata.Candle) []swing {
	var swings []swing
	for i := 2; i < len(candles)-2; i++ {
		h := candles[i].High
		if h > candles[i-1].High && h > candles[i-2].High && h > candles[i+1].High && h > candles[i+2].High {
			swings = append(swings, swing{index: i, price: h, high: true})
		}
		l := candles[i].Low
		if l < candles[i-1].Low && l < candles[i-2].Low && l < candles[i+1].Low && l < candles[i+2].Low {
			swings = append(swings, swing{index: i, price: l, high: false})
		}
	}
	return swings
}

// detectStructureShifts flags failed swings confirmed by a close through the
// intervening swing level. Bearish: a swing high at least 1% under the prior
// swing high while the latest close breaks the swing low between them.
func (d *Detector) detectStructureShifts(candles []marketdata.Candle) []StructureShift {
	swings := findSwings(candles)
	latestClose := candles[len(candles)-1].Close

	var shifts []StructureShift

	var prevHigh, prevLow *swing
	for i := range swings {
		s := swings[i]
		if s.high {
			if prevHigh != nil && s.price <= prevHigh.price*(1-mssMinSwingDropPct/100) {
				if low := lowestSwingBetween(swings, prevHigh.index, s.index); low != nil && latestClose < low.price {
					shifts = append(shifts, StructureShift{
						Direction:    Bearish,
						SwingLevel:   s.price,
						BrokenLevel:  low.price,
						Significance: breakSignificance(low.price, latestClose),
						Timestamp:    candles[s.index].Timestamp,
					})
				}
			}
			prevHigh = &swings[i]
		} else {
			if prevLow != nil && s.price >= prevLow.price*(1+mssMinSwingDropPct/100) {
				if high := highestSwingBetween(swings, prevLow.index, s.index); high != nil && latestClose > high.price {
					shifts = append(shifts, StructureShift{
						Direction:    Bullish,
						SwingLevel:   s.price,
						BrokenLevel:  high.price,
						Significance: breakSignificance(high.price, latestClose),
						Timestamp:    candles[s.index].Timestamp,
					})
				}
			}
			prevLow = &swings[i]
		}
	}

	if len(shifts) > maxStructureShifts {
		shifts = shifts[len(shifts)-maxStructureShifts:]
	}
	return shifts
}

func lowestSwingBetween(swings []swing, from, to int) *swing {
	var best *swing
	for i := range swings {
		s := swings[i]
		if s.high || s.index <= from || s.index >= to {
			continue
		}
		if best == nil || s.price < best.price {
			best = &swings[i]
		}
	}
	return best
}

func highestSwingBetween(swings []swing, from, to int) *swing {
	var best *swing
	for i := range swings {
		s := swings[i]
		if !s.high || s.index <= from || s.index >= to {
			continue
		}
		if best == nil || s.price > best.price {
			best = &swings[i]
		}
	}
	return best
}

func breakSignificance(level, close float64) Significance {
	if level <= 0 {
		return SignificanceLow
	}
	margin := (close - level) / level * 100
	if margin < 0 {
		margin = -margin
	}
	switch {
	case margin > 1.0:
		return SignificanceHigh
	case margin > 0.5:
		return SignificanceMedium
	default:
		return SignificanceLow
	}
}

// detectLiquidityVoids finds wide-range bars printed on thin volume:
// range above 2x the window average while volume sits under 70% of average.
func (d *Detector) detectLiquidityVoids(candles []marketdata.Candle) []LiquidityVoid {
	avgRange := 0.0
	avgVolume := 0.0
	for _, c := range candles {
		avgRange += c.Range()
		avgVolume += c.Volume
	}
	avgRange /= float64(len(candles))
	avgVolume /= float64(len(candles))
	if avgRange <= 0 {
		return nil
	}

	var voids []LiquidityVoid
	for _, c := range candles {
		velocity := c.Range() / avgRange
		if velocity <= voidRangeMultiple || c.Volume >= avgVolume*voidVolumeCeiling {
			continue
		}
		dir := Bearish
		if c.IsBullish() {
			dir = Bullish
		}
		sig := SignificanceMedium
		if velocity > 3 {
			sig = SignificanceHigh
		}
		voids = append(voids, LiquidityVoid{
			Direction:    dir,
			RangeTop:     c.High,
			RangeBottom:  c.Low,
			Velocity:     velocity,
			Significance: sig,
			Timestamp:    c.Timestamp,
		})
	}

	if len(voids) > maxLiquidityVoids {
		voids = voids[len(voids)-maxLiquidityVoids:]
	}
	return voids
}

// detectOrderBlocks finds the last opposite-colored candle before an
// impulsive move whose body exceeds 1.5x the block candle's body and breaks
// through its extreme.
func (d *Detector) detectOrderBlocks(candles []marketdata.Candle) []OrderBlock {
	var blocks []OrderBlock

	for i := 0; i < len(candles)-1; i++ {
		block, next := candles[i], candles[i+1]
		if block.Body() <= 0 {
			continue
		}

		if block.IsBearish() && next.IsBullish() &&
			next.Body() > orderBlockBodyMult*block.Body() && next.Close > block.High {
			blocks = append(blocks, OrderBlock{
				Direction:    Bullish,
				RangeTop:     block.High,
				RangeBottom:  block.Low,
				Significance: blockSignificance(next.Body() / block.Body()),
				Timestamp:    block.Timestamp,
			})
		}

		if block.IsBullish() && next.IsBearish() &&
			next.Body() > orderBlockBodyMult*block.Body() && next.Close < block.Low {
			blocks = append(blocks, OrderBlock{
				Direction:    Bearish,
				RangeTop:     block.High,
				RangeBottom:  block.Low,
				Significance: blockSignificance(next.Body() / block.Body()),
				Timestamp:    block.Timestamp,
			})
		}
	}

	if len(blocks) > maxOrderBlocks {
		blocks = blocks[len(blocks)-maxOrderBlocks:]
	}
	return blocks
}

func blockSignificance(bodyRatio float64) Significance {
	switch {
	case bodyRatio > 2.5:
		return SignificanceHigh
	case bodyRatio > 2.0:
		return SignificanceMedium
	default:
		return SignificanceLow
	}
}

func (d *Detector) detectTrend(closes []float64) TrendResult {
	ema20 := calculateEMA(closes, 20)
	ema50 := calculateEMA(closes, 50)
	price := closes[len(closes)-1]

	trend := TrendResult{Direction: Neutral, EMA20: ema20, EMA50: ema50}
	if ema50 <= 0 {
		return trend
	}

	spread := (ema20 - ema50) / ema50 * 100
	strength := clamp(spread/2, -1, 1)
	if strength < 0 {
		strength = -strength
	}

	switch {
	case price > ema20 && ema20 > ema50:
		trend.Direction = Bullish
	case price < ema20 && ema20 < ema50:
		trend.Direction = Bearish
	}
	trend.Strength = strength
	return trend
}

func (d *Detector) volumeRatio(candles []marketdata.Candle) float64 {
	window := d.volumeWindow
	if len(candles) < window {
		window = len(candles)
	}
	sum := 0.0
	for i := len(candles) - window; i < len(candles); i++ {
		sum += candles[i].Volume
	}
	avg := sum / float64(window)
	if avg <= 0 {
		return 1
	}
	return candles[len(candles)-1].Volume / avg
}

// overallBias combines RSI extremity, MACD crossover, trend, FVG imbalance
// and the latest structure shift into a single [-1,1] score. Thresholds at
// +/-0.3 select the directional read.
func (d *Detector) overallBias(a Analysis) Bias {
	score := 0.0

	// RSI mean-reversion read: oversold leans bullish, overbought bearish.
	score += clamp((50-a.RSI)/20, -1, 1) * 0.20

	switch a.MACD.Crossover {
	case Bullish:
		score += 0.20
	case Bearish:
		score -= 0.20
	}

	switch a.Trend.Direction {
	case Bullish:
		score += a.Trend.Strength * 0.25
	case Bearish:
		score -= a.Trend.Strength * 0.25
	}

	if n := len(a.FairValueGaps); n > 0 {
		net := 0
		for _, g := range a.FairValueGaps {
			if g.Direction == Bullish {
				net++
			} else {
				net--
			}
		}
		score += float64(net) / float64(n) * 0.20
	}

	if n := len(a.StructureShifts); n > 0 {
		latest := a.StructureShifts[n-1]
		if latest.Direction == Bullish {
			score += 0.15
		} else {
			score -= 0.15
		}
	}

	score = clamp(score, -1, 1)

	dir := Neutral
	switch {
	case score > 0.3:
		dir = Bullish
	case score < -0.3:
		dir = Bearish
	}

	strength := score * 100
	if strength < 0 {
		strength = -strength
	}
	return Bias{Direction: dir, Score: score, Strength: strength}
}
