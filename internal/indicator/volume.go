package indicator

import (
	talib "github.com/markcheno/go-talib"
)

// OBV computes On-Balance Volume. Defined from the first bar.
func OBV(closes, volumes []float64) Series {
	if len(closes) == 0 {
		return Series{}
	}
	return fromTalib(talib.Obv(closes, volumes), 0)
}

// CMF computes Chaikin Money Flow over period bars.
func CMF(high, low, close, volume []float64, period int) Series {
	n := len(close)
	out := undefinedSeries(n)
	if period <= 0 || n < period {
		return out
	}

	mfv := make([]float64, n)
	for i := 0; i < n; i++ {
		rng := high[i] - low[i]
		if rng == 0 {
			continue
		}
		mfv[i] = ((close[i] - low[i]) - (high[i] - close[i])) / rng * volume[i]
	}

	var sumMFV, sumVol float64
	for i := 0; i < n; i++ {
		sumMFV += mfv[i]
		sumVol += volume[i]
		if i >= period {
			sumMFV -= mfv[i-period]
			sumVol -= volume[i-period]
		}
		if i >= period-1 {
			out[i] = ratio(sumMFV, sumVol, 0)
		}
	}
	return out
}

// VolumeRatio divides each bar's volume by its trailing SMA(period).
// A zero average yields 1.
func VolumeRatio(volumes []float64, avg Series) Series {
	out := undefinedSeries(len(volumes))
	for i, v := range volumes {
		if a, ok := avg.At(i); ok {
			out[i] = ratio(v, a, 1)
		}
	}
	return out
}
