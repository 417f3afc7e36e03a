package cache

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/mertipekreal/merf-stock-engine/internal/marketdata"
)

type countingProvider struct {
	calls int
}

func (p *countingProvider) GetCandles(ctx context.Context, symbol string, since, until time.Time) ([]marketdata.Candle, error) {
	p.calls++
	return []marketdata.Candle{{Close: 100}}, nil
}

func TestNilMarketCacheIsAlwaysMiss(t *testing.T) {
	var mc *MarketCache

	if _, err := mc.GetCandles(context.Background(), "THYAO", time.Now(), time.Now()); !errors.Is(err, ErrMiss) {
		t.Errorf("nil cache must report a miss, got %v", err)
	}
	if _, err := mc.GetSnapshot(context.Background(), "THYAO"); !errors.Is(err, ErrMiss) {
		t.Errorf("nil cache snapshot lookup must report a miss, got %v", err)
	}

	// Writes on a nil cache are no-ops, not panics.
	mc.SetCandles(context.Background(), "THYAO", time.Now(), time.Now(), nil)
	mc.SetSnapshot(context.Background(), nil)
}

func TestNewMarketCacheNilService(t *testing.T) {
	if NewMarketCache(nil) != nil {
		t.Error("wrapping a nil cache service must yield the nil no-op cache")
	}
}

func TestCachingProviderFallsThroughWithoutCache(t *testing.T) {
	upstream := &countingProvider{}
	p := NewCachingProvider(upstream, nil)

	for i := 0; i < 2; i++ {
		candles, err := p.GetCandles(context.Background(), "THYAO", time.Now().Add(-time.Hour), time.Now())
		if err != nil {
			t.Fatalf("GetCandles: %v", err)
		}
		if len(candles) != 1 {
			t.Fatalf("expected upstream candles, got %d", len(candles))
		}
	}
	if upstream.calls != 2 {
		t.Errorf("without a cache every call goes upstream, got %d calls", upstream.calls)
	}
}

func TestCircuitBreakerCounters(t *testing.T) {
	cs := &CacheService{healthy: true, maxFailures: 3, checkInterval: time.Hour}

	cs.recordFailure()
	cs.recordFailure()
	if !cs.IsHealthy() {
		t.Error("two failures must stay under the breaker threshold")
	}
	cs.recordFailure()
	if cs.IsHealthy() {
		t.Error("third failure must open the breaker")
	}

	cs.recordSuccess()
	if !cs.IsHealthy() {
		t.Error("a success must close the breaker")
	}
	if cs.failureCount != 0 {
		t.Errorf("success must reset the failure count, got %d", cs.failureCount)
	}
}
