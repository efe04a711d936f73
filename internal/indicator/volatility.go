package indicator

import (
	talib "github.com/markcheno/go-talib"
	"gonum.org/v1/gonum/stat"
)

// BollingerResult holds Bollinger Band series.
type BollingerResult struct {
	Upper   Series
	Middle  Series
	Lower   Series
	Width   Series // (upper-lower)/middle
	Percent Series // %B
}

// Bollinger computes SMA(period) ± k·σ(period) using the population deviation.
// %B is 0.5 when the bands collapse.
func Bollinger(closes []float64, period int, k float64) BollingerResult {
	n := len(closes)
	res := BollingerResult{
		Upper:   undefinedSeries(n),
		Middle:  undefinedSeries(n),
		Lower:   undefinedSeries(n),
		Width:   undefinedSeries(n),
		Percent: undefinedSeries(n),
	}
	if period <= 0 || n < period {
		return res
	}

	for i := period - 1; i < n; i++ {
		mean, sd := stat.PopMeanStdDev(closes[i-period+1:i+1], nil)
		upper := mean + k*sd
		lower := mean - k*sd
		res.Middle[i] = mean
		res.Upper[i] = upper
		res.Lower[i] = lower
		res.Width[i] = ratio(upper-lower, mean, 0)
		res.Percent[i] = ratio(closes[i]-lower, upper-lower, 0.5)
	}
	return res
}

// ATR computes Wilder's Average True Range.
func ATR(high, low, close []float64, period int) Series {
	if len(close) <= period {
		return undefinedSeries(len(close))
	}
	return fromTalib(talib.Atr(high, low, close, period), period)
}

// Returns computes the k-bar simple return (c[i]-c[i-k])/c[i-k].
func Returns(closes []float64, k int) Series {
	out := undefinedSeries(len(closes))
	for i := k; i < len(closes); i++ {
		out[i] = ratio(closes[i]-closes[i-k], closes[i-k], 0)
	}
	return out
}

// Volatility computes the sample standard deviation of the trailing k
// one-bar returns. The first k values are undefined.
func Volatility(closes []float64, k int) Series {
	out := undefinedSeries(len(closes))
	if k < 2 || len(closes) <= k {
		return out
	}
	daily := make([]float64, len(closes))
	for i := 1; i < len(closes); i++ {
		daily[i] = ratio(closes[i]-closes[i-1], closes[i-1], 0)
	}
	for i := k; i < len(closes); i++ {
		sd := stat.StdDev(daily[i-k+1:i+1], nil)
		if !isFinite(sd) {
			sd = 0
		}
		out[i] = sd
	}
	return out
}
