// Package feature turns bars and their indicator set into fixed-order
// feature rows for the forecast model.
package feature

import (
	"fmt"
	"time"

	"github.com/newthinker/foresight/internal/core"
	"github.com/newthinker/foresight/internal/indicator"
)

// Fields is the feature order shared by training and inference.
var Fields = [...]string{
	"close",
	"sma10_ratio",
	"sma20_ratio",
	"sma50_ratio",
	"ema_spread",
	"rsi14",
	"macd_norm",
	"macd_hist_norm",
	"williams_r",
	"stoch_k",
	"bb_percent",
	"bb_width",
	"atr_norm",
	"adx",
	"aroon_osc",
	"cci",
	"cmf",
	"volume_ratio",
	"roc",
	"return_1d",
	"return_5d",
	"return_20d",
	"volatility_10",
	"volatility_30",
	"pivot_distance",
}

// Width is the number of features in a Row.
const Width = len(Fields)

// Row is one feature vector in Fields order.
type Row [Width]float64

// Slice returns the row as a slice backed by the row itself.
func (r *Row) Slice() []float64 { return r[:] }

// Sample is a labelled training row.
type Sample struct {
	Date  time.Time
	Close float64
	Row   Row
	Label float64 // forward return over Horizon bars
}

// Matrix is a chronologically ordered training set.
type Matrix struct {
	Horizon int
	Samples []Sample
}

// Len returns the number of samples.
func (m Matrix) Len() int { return len(m.Samples) }

// Names returns a copy of the feature order.
func Names() []string {
	return append([]string(nil), Fields[:]...)
}

// Build assembles the training matrix and the live row for the final bar.
// A sample is emitted for bar i when every feature is defined at i and
// i+horizon is within the series; its label is the forward return
// (close[i+horizon]-close[i])/close[i].
func Build(bars []core.OHLCV, set *indicator.Set, horizon int) (Matrix, Row, error) {
	if horizon <= 0 {
		return Matrix{}, Row{}, core.Errorf(core.ErrInvalidRequest, "label horizon must be positive, got %d", horizon)
	}
	if set == nil || len(set.SMA10) != len(bars) {
		panic(fmt.Sprintf("feature: indicator set does not match %d bars", len(bars)))
	}

	n := len(bars)
	m := Matrix{Horizon: horizon}
	for i := 0; i+horizon < n; i++ {
		row, ok := rowAt(bars, set, i)
		if !ok {
			continue
		}
		c0 := bars[i].Close
		m.Samples = append(m.Samples, Sample{
			Date:  bars[i].Time,
			Close: c0,
			Row:   row,
			Label: (bars[i+horizon].Close - c0) / c0,
		})
	}

	live, ok := rowAt(bars, set, n-1)
	if !ok {
		return m, Row{}, core.Errorf(core.ErrInsufficientHistory, "features undefined on the latest bar")
	}
	return m, live, nil
}

func rowAt(bars []core.OHLCV, s *indicator.Set, i int) (Row, bool) {
	c := bars[i].Close
	if c <= 0 {
		return Row{}, false
	}

	var (
		row Row
		ok  = true
	)
	get := func(series indicator.Series) float64 {
		v, defined := series.At(i)
		if !defined {
			ok = false
		}
		return v
	}
	rel := func(series indicator.Series) float64 {
		return get(series) / c
	}

	sma10, sma20, sma50 := get(s.SMA10), get(s.SMA20), get(s.SMA50)
	pivot := get(s.PivotPoint)

	row[0] = c
	row[1] = relTo(c, sma10)
	row[2] = relTo(c, sma20)
	row[3] = relTo(c, sma50)
	row[4] = (get(s.EMA12) - get(s.EMA26)) / c
	row[5] = get(s.RSI14)
	row[6] = rel(s.MACD)
	row[7] = rel(s.MACDHist)
	row[8] = get(s.WilliamsR)
	row[9] = get(s.StochK)
	row[10] = get(s.BBPercent)
	row[11] = get(s.BBWidth)
	row[12] = rel(s.ATR14)
	row[13] = get(s.ADX)
	row[14] = get(s.AroonUp) - get(s.AroonDown)
	row[15] = get(s.CCI)
	row[16] = get(s.CMF)
	row[17] = get(s.VolumeRatio)
	row[18] = get(s.ROC)
	row[19] = get(s.Return1D)
	row[20] = get(s.Return5D)
	row[21] = get(s.Return20D)
	row[22] = get(s.Volatility10)
	row[23] = get(s.Volatility30)
	row[24] = relTo(c, pivot)

	return row, ok
}

// relTo returns c/ref - 1, or 0 when ref is not positive.
func relTo(c, ref float64) float64 {
	if ref <= 0 {
		return 0
	}
	return c/ref - 1
}
