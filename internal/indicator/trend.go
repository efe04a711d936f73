package indicator

import (
	talib "github.com/markcheno/go-talib"
)

// ADX computes the Average Directional Index. The warm-up reported here is
// 2·period, one bar more than go-talib's lookback, so the first defined
// value has a full smoothing window behind it.
func ADX(high, low, close []float64, period int) Series {
	warmup := 2 * period
	if len(close) <= warmup {
		return undefinedSeries(len(close))
	}
	return fromTalib(talib.Adx(high, low, close, period), warmup)
}

// Aroon computes the Aroon up/down lines.
func Aroon(high, low []float64, period int) (up, down Series) {
	if len(high) <= period {
		return undefinedSeries(len(high)), undefinedSeries(len(high))
	}
	downOut, upOut := talib.Aroon(high, low, period)
	return fromTalib(upOut, period), fromTalib(downOut, period)
}

// PivotResult holds classic floor-trader pivots derived from the prior bar.
type PivotResult struct {
	Pivot       Series
	Resistance1 Series
	Support1    Series
}

// Pivots computes P=(H+L+C)/3, R1=2P-L, S1=2P-H from bar i-1 for bar i.
func Pivots(high, low, close []float64) PivotResult {
	n := len(close)
	res := PivotResult{
		Pivot:       undefinedSeries(n),
		Resistance1: undefinedSeries(n),
		Support1:    undefinedSeries(n),
	}
	for i := 1; i < n; i++ {
		p := (high[i-1] + low[i-1] + close[i-1]) / 3
		res.Pivot[i] = p
		res.Resistance1[i] = 2*p - low[i-1]
		res.Support1[i] = 2*p - high[i-1]
	}
	return res
}
