package cache

import (
	"context"
	"fmt"
	"time"

	"github.com/mertipekreal/merf-stock-engine/internal/features"
	"github.com/mertipekreal/merf-stock-engine/internal/marketdata"
)

// MarketCache layers typed candle and snapshot caching on top of the raw
// cache service. A nil MarketCache is valid and behaves as always-miss, so
// callers can run without Redis entirely.
type MarketCache struct {
	cs *CacheService
}

// NewMarketCache wraps a cache service. Passing nil yields a no-op cache.
func NewMarketCache(cs *CacheService) *MarketCache {
	if cs == nil {
		return nil
	}
	return &MarketCache{cs: cs}
}

func candleKey(symbol string, since, until time.Time) string {
	return fmt.Sprintf(PrefixCandles, symbol, fmt.Sprintf("%d-%d", since.Unix(), until.Unix()))
}

// GetCandles returns cached candles for the exact requested range, or
// ErrMiss.
func (mc *MarketCache) GetCandles(ctx context.Context, symbol string, since, until time.Time) ([]marketdata.Candle, error) {
	if mc == nil {
		return nil, ErrMiss
	}
	var candles []marketdata.Candle
	if err := mc.cs.GetJSON(ctx, candleKey(symbol, since, until), &candles); err != nil {
		return nil, err
	}
	return candles, nil
}

// SetCandles caches candles for the requested range. Failures are
// swallowed: caching is strictly best-effort.
func (mc *MarketCache) SetCandles(ctx context.Context, symbol string, since, until time.Time, candles []marketdata.Candle) {
	if mc == nil {
		return
	}
	if err := mc.cs.Set(ctx, candleKey(symbol, since, until), candles, DefaultCandlesTTL); err != nil {
		mc.cs.logger.Debug().Err(err).Str("symbol", symbol).Msg("Candle cache write skipped")
	}
}

// GetSnapshot returns a recently cached feature snapshot for the symbol,
// or ErrMiss.
func (mc *MarketCache) GetSnapshot(ctx context.Context, symbol string) (*features.UnifiedFeatures, error) {
	if mc == nil {
		return nil, ErrMiss
	}
	var uf features.UnifiedFeatures
	if err := mc.cs.GetJSON(ctx, fmt.Sprintf(PrefixSnapshot, symbol), &uf); err != nil {
		return nil, err
	}
	return &uf, nil
}

// SetSnapshot caches a feature snapshot, best-effort.
func (mc *MarketCache) SetSnapshot(ctx context.Context, uf *features.UnifiedFeatures) {
	if mc == nil {
		return
	}
	if err := mc.cs.Set(ctx, fmt.Sprintf(PrefixSnapshot, uf.Symbol), uf, DefaultSnapshotTTL); err != nil {
		mc.cs.logger.Debug().Err(err).Str("symbol", uf.Symbol).Msg("Snapshot cache write skipped")
	}
}

// CachingProvider decorates a candle provider with read-through caching.
type CachingProvider struct {
	upstream marketdata.Provider
	cache    *MarketCache
}

// NewCachingProvider wraps upstream with the market cache.
func NewCachingProvider(upstream marketdata.Provider, cache *MarketCache) *CachingProvider {
	return &CachingProvider{upstream: upstream, cache: cache}
}

// GetCandles serves from cache when possible and falls back to the
// upstream provider, populating the cache on the way back.
func (p *CachingProvider) GetCandles(ctx context.Context, symbol string, since, until time.Time) ([]marketdata.Candle, error) {
	if candles, err := p.cache.GetCandles(ctx, symbol, since, until); err == nil && len(candles) > 0 {
		return candles, nil
	}

	candles, err := p.upstream.GetCandles(ctx, symbol, since, until)
	if err != nil {
		return nil, err
	}

	p.cache.SetCandles(ctx, symbol, since, until, candles)
	return candles, nil
}
