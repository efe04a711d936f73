package indicator

// SMA calculates Simple Moving Average.
// Returns a series of len(prices); the first period-1 values are undefined.
func SMA(prices []float64, period int) Series {
	out := undefinedSeries(len(prices))
	if period <= 0 || len(prices) < period {
		return out
	}

	// Calculate first SMA
	var sum float64
	for i := 0; i < period; i++ {
		sum += prices[i]
	}
	out[period-1] = sum / float64(period)

	// Rolling calculation
	for i := period; i < len(prices); i++ {
		sum = sum - prices[i-period] + prices[i]
		out[i] = sum / float64(period)
	}

	return out
}

// EMA calculates Exponential Moving Average seeded with the SMA of the
// first period values. The first period-1 values are undefined.
func EMA(prices []float64, period int) Series {
	return emaFrom(prices, 0, period)
}

// emaFrom computes an EMA over prices[start:], leaving everything before
// start+period-1 undefined. Used to smooth series that carry their own warm-up.
func emaFrom(prices []float64, start, period int) Series {
	out := undefinedSeries(len(prices))
	if period <= 0 || start < 0 || len(prices)-start < period {
		return out
	}

	multiplier := 2.0 / float64(period+1)

	var sum float64
	for i := start; i < start+period; i++ {
		sum += prices[i]
	}
	ema := sum / float64(period)
	out[start+period-1] = ema

	for i := start + period; i < len(prices); i++ {
		ema = (prices[i]-ema)*multiplier + ema
		out[i] = ema
	}

	return out
}
