package strategy

import "math"

// SMA returns the simple moving average of values, or false when the slice
// is empty.
func SMA(values []float64) (float64, bool) {
	if len(values) == 0 {
		return 0, false
	}
	sum := 0.0
	for _, v := range values {
		sum += v
	}
	return sum / float64(len(values)), true
}

// trailingSMA averages the last n values, or returns false when the series
// is shorter than n.
func trailingSMA(values []float64, n int) (float64, bool) {
	if n <= 0 || len(values) < n {
		return 0, false
	}
	return SMA(values[len(values)-n:])
}

// EMASeries returns the exponential moving average series for the given span:
// ema[0] = values[0], ema[i] = values[i]*k + ema[i-1]*(1-k), k = 2/(span+1).
func EMASeries(values []float64, span int) []float64 {
	if len(values) == 0 || span <= 0 {
		return nil
	}
	k := 2.0 / float64(span+1)
	series := make([]float64, len(values))
	series[0] = values[0]
	for i := 1; i < len(values); i++ {
		series[i] = values[i]*k + series[i-1]*(1-k)
	}
	return series
}

// RSI computes the Wilder-style relative strength index over the trailing
// period. It returns false when the series is too short. By convention the
// result is 100 when the average loss is zero with gains present, and 50 when
// the series never moved.
func RSI(closes []float64, period int) (float64, bool) {
	if period <= 0 || len(closes) < period+1 {
		return 0, false
	}
	var gains, losses []float64
	for i := 1; i < len(closes); i++ {
		diff := closes[i] - closes[i-1]
		if diff > 0 {
			gains = append(gains, diff)
		} else if diff < 0 {
			losses = append(losses, -diff)
		}
	}

	avgGain := trailingAvg(gains, period)
	avgLoss := trailingAvg(losses, period)
	if avgLoss == 0 {
		if avgGain > 0 {
			return 100, true
		}
		return 50, true
	}
	rs := avgGain / avgLoss
	return 100 - 100/(1+rs), true
}

// trailingAvg averages the last period entries, dividing by period even when
// fewer entries exist so sparse movement is damped rather than amplified.
func trailingAvg(values []float64, period int) float64 {
	if len(values) > period {
		values = values[len(values)-period:]
	}
	sum := 0.0
	for _, v := range values {
		sum += v
	}
	return sum / float64(period)
}

// MACDHistogram computes the 12/26-period EMA difference minus its 9-period
// EMA signal over the full close series. It returns false when fewer than
// slow+signal closes are available.
func MACDHistogram(closes []float64, fast, slow, signal int) (float64, bool) {
	if fast <= 0 || slow <= 0 || signal <= 0 || len(closes) < slow+signal {
		return 0, false
	}
	fastEMA := EMASeries(closes, fast)
	slowEMA := EMASeries(closes, slow)
	macd := make([]float64, len(closes))
	for i := range closes {
		macd[i] = fastEMA[i] - slowEMA[i]
	}
	signalEMA := EMASeries(macd, signal)
	return macd[len(macd)-1] - signalEMA[len(signalEMA)-1], true
}

// StdDev returns the population standard deviation of values.
func StdDev(values []float64) float64 {
	if len(values) == 0 {
		return 0
	}
	mean := 0.0
	for _, v := range values {
		mean += v
	}
	mean /= float64(len(values))
	variance := 0.0
	for _, v := range values {
		d := v - mean
		variance += d * d
	}
	return math.Sqrt(variance / float64(len(values)))
}
