package features

import (
	"context"
	"time"
)

// TradeSide tags positioning records as buys or sells.
type TradeSide string

const (
	SideBuy  TradeSide = "buy"
	SideSell TradeSide = "sell"
)

// OptionsFlowRecord is one day of option volume for a symbol.
type OptionsFlowRecord struct {
	Timestamp  time.Time `json:"timestamp"`
	PutVolume  float64   `json:"put_volume"`
	CallVolume float64   `json:"call_volume"`
}

// DarkPoolTrade is one off-exchange print with its inferred sentiment sign.
type DarkPoolTrade struct {
	Timestamp time.Time `json:"timestamp"`
	Notional  float64   `json:"notional"`
	Bullish   bool      `json:"bullish"`
}

// PositionTrade is a congressional or insider transaction.
type PositionTrade struct {
	Timestamp time.Time `json:"timestamp"`
	Notional  float64   `json:"notional"`
	Side      TradeSide `json:"side"`
}

// OptionsFlowFeed supplies put/call volume records over a date range.
type OptionsFlowFeed interface {
	GetOptionsFlow(ctx context.Context, symbol string, since, until time.Time) ([]OptionsFlowRecord, error)
}

// DarkPoolFeed supplies dark-pool prints over a date range.
type DarkPoolFeed interface {
	GetDarkPoolTrades(ctx context.Context, symbol string, since, until time.Time) ([]DarkPoolTrade, error)
}

// CongressFeed supplies congressional trades over a date range.
type CongressFeed interface {
	GetCongressTrades(ctx context.Context, symbol string, since, until time.Time) ([]PositionTrade, error)
}

// InsiderFeed supplies insider trades over a date range.
type InsiderFeed interface {
	GetInsiderTrades(ctx context.Context, symbol string, since, until time.Time) ([]PositionTrade, error)
}

// SAMMetricsStore returns persisted sentiment metrics for a symbol, or nil
// when none exist for the window.
type SAMMetricsStore interface {
	GetMetrics(ctx context.Context, symbol string, since, until time.Time) (*SAMMetrics, error)
}

// EconomicFeed supplies current macro indicators.
type EconomicFeed interface {
	GetIndicators(ctx context.Context) (*EconomicIndicators, error)
}

// Provider is one step of an ordered fallback chain: it returns a value,
// or nil to decline without failing the chain.
type Provider[T any] func(ctx context.Context) (*T, error)

// FirstSuccess tries each provider in order and returns the first non-nil
// result. When every provider declines or errors, it returns the fallback.
// This keeps fallback policy (store -> live feed -> constant) testable in
// isolation from network code.
func FirstSuccess[T any](ctx context.Context, fallback T, providers ...Provider[T]) T {
	for _, p := range providers {
		if p == nil {
			continue
		}
		v, err := p(ctx)
		if err == nil && v != nil {
			return *v
		}
	}
	return fallback
}

// BaselineSAMMetrics is the historically validated constant model used when
// no persisted SAM metrics exist for the trailing window. Values are the
// long-run means observed during calibration, not random placeholders.
func BaselineSAMMetrics() SAMMetrics {
	return SAMMetrics{
		NightActivityRatio:  0.35,
		SentimentDissonance: 0.10,
		DreamFearIndex:      42,
		SocialSentiment:     0.05,
		DreamFearRatio:      0.25,
	}
}

// DefaultEconomicIndicators are the hard-coded fallbacks used when the
// indicator feed is unreachable: a calm, mildly risk-on regime.
func DefaultEconomicIndicators() EconomicIndicators {
	return EconomicIndicators{
		VIX:               18,
		YieldCurveSpread:  0.5,
		ConsumerSentiment: 70,
		UnemploymentRate:  4.0,
		CPI:               3.0,
		FedFundsRate:      4.5,
		RiskOn:            true,
	}
}
