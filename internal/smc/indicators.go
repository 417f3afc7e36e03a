package smc

import "math"

// tradingDaysPerYear is used to annualize daily-bar volatility.
const tradingDaysPerYear = 252

// calculateRSI computes RSI over the close series using Wilder's smoothing:
// seed averages over the first period, then smooth each subsequent delta.
// Returns the neutral 50 when the series is too short.
func calculateRSI(closes []float64, period int) float64 {
	if len(closes) < period+1 {
		return 50
	}

	gains := make([]float64, 0, len(closes)-1)
	losses := make([]float64, 0, len(closes)-1)
	for i := 1; i < len(closes); i++ {
		d := closes[i] - closes[i-1]
		if d > 0 {
			gains = append(gains, d)
			losses = append(losses, 0)
		} else {
			gains = append(gains, 0)
			losses = append(losses, -d)
		}
	}

	avgGain := 0.0
	avgLoss := 0.0
	for i := 0; i < period; i++ {
		avgGain += gains[i]
		avgLoss += losses[i]
	}
	avgGain /= float64(period)
	avgLoss /= float64(period)

	for i := period; i < len(gains); i++ {
		avgGain = (avgGain*float64(period-1) + gains[i]) / float64(period)
		avgLoss = (avgLoss*float64(period-1) + losses[i]) / float64(period)
	}

	if avgLoss == 0 {
		return 100
	}
	rs := avgGain / avgLoss
	return 100 - (100 / (1 + rs))
}

// emaSeries computes the EMA series of prices, seeded with the SMA of the
// first period values. The returned slice is aligned so that index i holds
// the EMA through prices[i+period-1].
func emaSeries(prices []float64, period int) []float64 {
	if len(prices) < period {
		return nil
	}
	multiplier := 2.0 / float64(period+1)

	sum := 0.0
	for i := 0; i < period; i++ {
		sum += prices[i]
	}
	ema := sum / float64(period)

	out := make([]float64, 0, len(prices)-period+1)
	out = append(out, ema)
	for i := period; i < len(prices); i++ {
		ema = (prices[i]-ema)*multiplier + ema
		out = append(out, ema)
	}
	return out
}

// calculateEMA returns the latest EMA value for the period.
func calculateEMA(prices []float64, period int) float64 {
	series := emaSeries(prices, period)
	if len(series) == 0 {
		if len(prices) == 0 {
			return 0
		}
		return prices[len(prices)-1]
	}
	return series[len(series)-1]
}

// calculateMACD returns the MACD line, its signal line (EMA of the MACD
// series) and the histogram for fast/slow/signal periods.
func calculateMACD(closes []float64, fast, slow, signal int) (float64, float64, float64) {
	if len(closes) < slow+signal {
		return 0, 0, 0
	}

	fastEMAs := emaSeries(closes, fast)
	slowEMAs := emaSeries(closes, slow)

	// Align the two series on their common tail.
	offset := len(fastEMAs) - len(slowEMAs)
	macdSeries := make([]float64, len(slowEMAs))
	for i := range slowEMAs {
		macdSeries[i] = fastEMAs[i+offset] - slowEMAs[i]
	}

	signalSeries := emaSeries(macdSeries, signal)
	if len(signalSeries) == 0 {
		last := macdSeries[len(macdSeries)-1]
		return last, last, 0
	}

	macd := macdSeries[len(macdSeries)-1]
	sig := signalSeries[len(signalSeries)-1]
	return macd, sig, macd - sig
}

// annualizedVolatility computes the standard deviation of the last `window`
// log returns, annualized by sqrt of bars per year.
func annualizedVolatility(closes []float64, window int) float64 {
	if len(closes) < window+1 {
		return 0
	}

	returns := make([]float64, 0, window)
	for i := len(closes) - window; i < len(closes); i++ {
		prev := closes[i-1]
		cur := closes[i]
		if prev <= 0 || cur <= 0 {
			returns = append(returns, 0)
			continue
		}
		returns = append(returns, math.Log(cur/prev))
	}

	mean := 0.0
	for _, r := range returns {
		mean += r
	}
	mean /= float64(len(returns))

	variance := 0.0
	for _, r := range returns {
		variance += (r - mean) * (r - mean)
	}
	variance /= float64(len(returns))

	return math.Sqrt(variance) * math.Sqrt(tradingDaysPerYear)
}

func clamp(value, min, max float64) float64 {
	if value < min {
		return min
	}
	if value > max {
		return max
	}
	return value
}
