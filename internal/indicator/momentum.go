package indicator

import (
	talib "github.com/markcheno/go-talib"
)

// RSI computes Wilder's Relative Strength Index. The first period values
// are undefined (period+1 bars are needed for period deltas). A window with
// no price movement reads 0, following TA-Lib.
func RSI(closes []float64, period int) Series {
	if period < 2 || len(closes) <= period {
		return undefinedSeries(len(closes))
	}
	return fromTalib(talib.Rsi(closes, period), period)
}

// MACDResult holds the three MACD series.
type MACDResult struct {
	Line      Series
	Signal    Series
	Histogram Series
}

// MACD computes EMA(fast) - EMA(slow) and its EMA(signal) smoothing.
// The line is undefined for slow-1 bars, signal and histogram for
// slow+signal-2 bars.
func MACD(closes []float64, fast, slow, signal int) MACDResult {
	n := len(closes)
	res := MACDResult{
		Line:      undefinedSeries(n),
		Signal:    undefinedSeries(n),
		Histogram: undefinedSeries(n),
	}
	fastEMA := EMA(closes, fast)
	slowEMA := EMA(closes, slow)

	start := slow - 1
	if n <= start {
		return res
	}
	for i := start; i < n; i++ {
		res.Line[i] = fastEMA[i] - slowEMA[i]
	}

	res.Signal = emaFrom(res.Line, start, signal)
	for i := range res.Signal {
		if res.Signal.Defined(i) {
			res.Histogram[i] = res.Line[i] - res.Signal[i]
		}
	}
	return res
}

// Stochastic computes the slow %K / %D oscillator (14,3,3 by convention).
func Stochastic(high, low, close []float64, kPeriod, slowK, dPeriod int) (k, d Series) {
	if len(close) < kPeriod+slowK+dPeriod {
		return undefinedSeries(len(close)), undefinedSeries(len(close))
	}
	slowKOut, slowDOut := talib.Stoch(high, low, close, kPeriod, slowK, talib.SMA, dPeriod, talib.SMA)
	warmup := kPeriod - 1 + slowK - 1 + dPeriod - 1
	return fromTalib(slowKOut, warmup), fromTalib(slowDOut, warmup)
}

// WilliamsR computes Williams %R in [-100, 0].
func WilliamsR(high, low, close []float64, period int) Series {
	if len(close) < period {
		return undefinedSeries(len(close))
	}
	return fromTalib(talib.WillR(high, low, close, period), period-1)
}

// CCI computes the Commodity Channel Index.
func CCI(high, low, close []float64, period int) Series {
	if len(close) < period {
		return undefinedSeries(len(close))
	}
	return fromTalib(talib.Cci(high, low, close, period), period-1)
}

// ROC computes the percentage rate of change over period bars.
func ROC(closes []float64, period int) Series {
	if len(closes) <= period {
		return undefinedSeries(len(closes))
	}
	return fromTalib(talib.Roc(closes, period), period)
}
