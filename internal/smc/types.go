// Package smc detects smart-money-concept structure in candle series:
// fair value gaps, market structure shifts, liquidity voids and order blocks,
// alongside classic momentum indicators.
package smc

import "time"

// Direction of a structural signal or bias
type Direction string

const (
	Bullish Direction = "bullish"
	Bearish Direction = "bearish"
	Neutral Direction = "neutral"
)

// Significance classifies signal strength
type Significance string

const (
	SignificanceHigh   Significance = "high"
	SignificanceMedium Significance = "medium"
	SignificanceLow    Significance = "low"
)

// FairValueGap is a three-candle imbalance where price skipped a range.
type FairValueGap struct {
	Direction    Direction    `json:"direction"`
	GapTop       float64      `json:"gap_top"`
	GapBottom    float64      `json:"gap_bottom"`
	GapPercent   float64      `json:"gap_percent"` // size as % of the middle bar close
	Significance Significance `json:"significance"`
	Timestamp    time.Time    `json:"timestamp"`
	Filled       bool         `json:"filled"` // derived against later price action
}

// StructureShift marks a break of market structure: a failed swing followed
// by a close through the intervening swing level.
type StructureShift struct {
	Direction    Direction    `json:"direction"`
	SwingLevel   float64      `json:"swing_level"`  // the failed swing high/low
	BrokenLevel  float64      `json:"broken_level"` // the intervening level price closed through
	Significance Significance `json:"significance"`
	Timestamp    time.Time    `json:"timestamp"`
}

// LiquidityVoid is a wide-range bar printed on thin volume.
type LiquidityVoid struct {
	Direction    Direction    `json:"direction"`
	RangeTop     float64      `json:"range_top"`
	RangeBottom  float64      `json:"range_bottom"`
	Velocity     float64      `json:"velocity"` // bar range over average range
	Significance Significance `json:"significance"`
	Timestamp    time.Time    `json:"timestamp"`
}

// OrderBlock is the last opposite-colored candle before an impulsive move
// that engulfs and breaks through it.
type OrderBlock struct {
	Direction    Direction    `json:"direction"`
	RangeTop     float64      `json:"range_top"`
	RangeBottom  float64      `json:"range_bottom"`
	Significance Significance `json:"significance"`
	Timestamp    time.Time    `json:"timestamp"`
}

// MACDResult holds MACD line, signal line and crossover classification.
type MACDResult struct {
	MACD      float64   `json:"macd"`
	Signal    float64   `json:"signal"`
	Histogram float64   `json:"histogram"`
	Crossover Direction `json:"crossover"`
}

// TrendResult describes the EMA20/EMA50/price relationship.
type TrendResult struct {
	Direction Direction `json:"direction"`
	Strength  float64   `json:"strength"` // 0..1
	EMA20     float64   `json:"ema20"`
	EMA50     float64   `json:"ema50"`
}

// Bias is the aggregate directional read across all signals.
type Bias struct {
	Direction Direction `json:"direction"`
	Score     float64   `json:"score"`    // -1..1
	Strength  float64   `json:"strength"` // |score| * 100
}

// Analysis is the full detector output over one candle window.
type Analysis struct {
	Symbol           string           `json:"symbol"`
	Timestamp        time.Time        `json:"timestamp"`
	FairValueGaps    []FairValueGap   `json:"fair_value_gaps"`
	StructureShifts  []StructureShift `json:"structure_shifts"`
	LiquidityVoids   []LiquidityVoid  `json:"liquidity_voids"`
	OrderBlocks      []OrderBlock     `json:"order_blocks"`
	RSI              float64          `json:"rsi"`
	MACD             MACDResult       `json:"macd"`
	Volatility       float64          `json:"volatility"` // annualized, from 20-bar log returns
	Trend            TrendResult      `json:"trend"`
	VolumeRatio      float64          `json:"volume_ratio"` // last bar vs 20-bar average
	Bias             Bias             `json:"bias"`
	InsufficientData bool             `json:"insufficient_data"`
}
