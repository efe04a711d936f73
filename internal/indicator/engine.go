package indicator

import (
	"github.com/newthinker/foresight/internal/core"
)

// MinBars is the shortest history Compute accepts.
const MinBars = 60

// Set is the fixed-schema output of Compute. Every series has the length of
// the input bars.
type Set struct {
	SMA10  Series
	SMA20  Series
	SMA50  Series
	SMA200 Series
	EMA12  Series
	EMA26  Series

	RSI14      Series
	MACD       Series
	MACDSignal Series
	MACDHist   Series

	BBUpper   Series
	BBMiddle  Series
	BBLower   Series
	BBWidth   Series
	BBPercent Series
	ATR14     Series

	StochK    Series
	StochD    Series
	WilliamsR Series
	ADX       Series
	AroonUp   Series
	AroonDown Series
	CCI       Series
	ROC       Series

	OBV         Series
	CMF         Series
	VolumeSMA   Series
	VolumeRatio Series

	PivotPoint  Series
	Resistance1 Series
	Support1    Series

	Return1D     Series
	Return5D     Series
	Return20D    Series
	Return60D    Series
	Volatility10 Series
	Volatility30 Series
}

// Field describes one named series of a Set.
type Field struct {
	Name   string
	Warmup int
	Values Series
}

// Compute derives the full indicator Set from bars. It returns
// ErrInsufficientHistory when fewer than MinBars bars are supplied.
func Compute(bars []core.OHLCV) (*Set, error) {
	if len(bars) < MinBars {
		return nil, core.Errorf(core.ErrInsufficientHistory,
			"need at least %d bars, got %d", MinBars, len(bars))
	}

	n := len(bars)
	high := make([]float64, n)
	low := make([]float64, n)
	closes := make([]float64, n)
	volume := make([]float64, n)
	for i, b := range bars {
		high[i] = b.High
		low[i] = b.Low
		closes[i] = b.Close
		volume[i] = float64(b.Volume)
	}

	macd := MACD(closes, 12, 26, 9)
	bb := Bollinger(closes, 20, 2)
	stochK, stochD := Stochastic(high, low, closes, 14, 3, 3)
	aroonUp, aroonDown := Aroon(high, low, 14)
	pivots := Pivots(high, low, closes)
	volSMA := SMA(volume, 20)

	return &Set{
		SMA10:  SMA(closes, 10),
		SMA20:  SMA(closes, 20),
		SMA50:  SMA(closes, 50),
		SMA200: SMA(closes, 200),
		EMA12:  EMA(closes, 12),
		EMA26:  EMA(closes, 26),

		RSI14:      RSI(closes, 14),
		MACD:       macd.Line,
		MACDSignal: macd.Signal,
		MACDHist:   macd.Histogram,

		BBUpper:   bb.Upper,
		BBMiddle:  bb.Middle,
		BBLower:   bb.Lower,
		BBWidth:   bb.Width,
		BBPercent: bb.Percent,
		ATR14:     ATR(high, low, closes, 14),

		StochK:    stochK,
		StochD:    stochD,
		WilliamsR: WilliamsR(high, low, closes, 14),
		ADX:       ADX(high, low, closes, 14),
		AroonUp:   aroonUp,
		AroonDown: aroonDown,
		CCI:       CCI(high, low, closes, 20),
		ROC:       ROC(closes, 12),

		OBV:         OBV(closes, volume),
		CMF:         CMF(high, low, closes, volume, 20),
		VolumeSMA:   volSMA,
		VolumeRatio: VolumeRatio(volume, volSMA),

		PivotPoint:  pivots.Pivot,
		Resistance1: pivots.Resistance1,
		Support1:    pivots.Support1,

		Return1D:     Returns(closes, 1),
		Return5D:     Returns(closes, 5),
		Return20D:    Returns(closes, 20),
		Return60D:    Returns(closes, 60),
		Volatility10: Volatility(closes, 10),
		Volatility30: Volatility(closes, 30),
	}, nil
}

// Fields lists every series in a fixed order with its warm-up length.
func (s *Set) Fields() []Field {
	return []Field{
		{"sma_10", 9, s.SMA10},
		{"sma_20", 19, s.SMA20},
		{"sma_50", 49, s.SMA50},
		{"sma_200", 199, s.SMA200},
		{"ema_12", 11, s.EMA12},
		{"ema_26", 25, s.EMA26},
		{"rsi_14", 14, s.RSI14},
		{"macd", 25, s.MACD},
		{"macd_signal", 33, s.MACDSignal},
		{"macd_hist", 33, s.MACDHist},
		{"bb_upper", 19, s.BBUpper},
		{"bb_middle", 19, s.BBMiddle},
		{"bb_lower", 19, s.BBLower},
		{"bb_width", 19, s.BBWidth},
		{"bb_percent", 19, s.BBPercent},
		{"atr_14", 14, s.ATR14},
		{"stoch_k", 17, s.StochK},
		{"stoch_d", 17, s.StochD},
		{"williams_r", 13, s.WilliamsR},
		{"adx", 28, s.ADX},
		{"aroon_up", 14, s.AroonUp},
		{"aroon_down", 14, s.AroonDown},
		{"cci", 19, s.CCI},
		{"roc", 12, s.ROC},
		{"obv", 0, s.OBV},
		{"cmf", 19, s.CMF},
		{"volume_sma", 19, s.VolumeSMA},
		{"volume_ratio", 19, s.VolumeRatio},
		{"pivot_point", 1, s.PivotPoint},
		{"resistance_1", 1, s.Resistance1},
		{"support_1", 1, s.Support1},
		{"return_1d", 1, s.Return1D},
		{"return_5d", 5, s.Return5D},
		{"return_20d", 20, s.Return20D},
		{"return_60d", 60, s.Return60D},
		{"volatility_10", 10, s.Volatility10},
		{"volatility_30", 30, s.Volatility30},
	}
}

// Snapshot returns the latest value of every defined series keyed by name.
func (s *Set) Snapshot() map[string]float64 {
	out := make(map[string]float64)
	for _, f := range s.Fields() {
		if v, ok := f.Values.Last(); ok {
			out[f.Name] = v
		}
	}
	return out
}
