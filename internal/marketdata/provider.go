package marketdata

import (
	"context"
	"time"
)

// Provider supplies price/volume history for a symbol. Implementations may
// return fewer candles than the requested range covers; callers must handle
// short series.
type Provider interface {
	GetCandles(ctx context.Context, symbol string, since, until time.Time) ([]Candle, error)
}
