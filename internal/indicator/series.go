package indicator

import "math"

// Series is an indicator time series aligned 1:1 with the input bars.
// Undefined (warm-up) positions hold NaN.
type Series []float64

// undefinedSeries returns a series of length n with every value undefined.
func undefinedSeries(n int) Series {
	s := make(Series, n)
	for i := range s {
		s[i] = math.NaN()
	}
	return s
}

// Defined reports whether position i holds a value.
func (s Series) Defined(i int) bool {
	return i >= 0 && i < len(s) && !math.IsNaN(s[i])
}

// At returns the value at i and whether it is defined.
func (s Series) At(i int) (float64, bool) {
	if !s.Defined(i) {
		return 0, false
	}
	return s[i], true
}

// Last returns the most recent value and whether it is defined.
func (s Series) Last() (float64, bool) {
	return s.At(len(s) - 1)
}

// FirstDefined returns the index of the first defined value, or -1.
func (s Series) FirstDefined() int {
	for i, v := range s {
		if !math.IsNaN(v) {
			return i
		}
	}
	return -1
}

// fromTalib converts a go-talib output (zero-filled before its lookback)
// into a Series undefined before warmup. Degenerate windows that produce
// non-finite values are reported as zero so the defined region stays finite.
func fromTalib(values []float64, warmup int) Series {
	out := undefinedSeries(len(values))
	for i := warmup; i < len(values); i++ {
		v := values[i]
		if !isFinite(v) {
			v = 0
		}
		out[i] = v
	}
	return out
}

func isFinite(v float64) bool {
	return !math.IsNaN(v) && !math.IsInf(v, 0)
}

// ratio divides a by b, returning fallback when b is zero.
func ratio(a, b, fallback float64) float64 {
	if b == 0 {
		return fallback
	}
	return a / b
}
