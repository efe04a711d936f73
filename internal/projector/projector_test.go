package projector

import (
	"errors"
	"math"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/newthinker/foresight/internal/core"
)

var friday = time.Date(2024, 1, 5, 0, 0, 0, 0, time.UTC)

func TestProject_BoundsInvariant(t *testing.T) {
	cases := []Input{
		{ForwardReturn: 0.03, LabelHorizon: 5, CurrentPrice: 100, Horizon: 365, Volatility: 0.02, LastDate: friday},
		{ForwardReturn: -0.2, LabelHorizon: 5, CurrentPrice: 3, Horizon: 365, Volatility: 0.15, LastDate: friday},
		{ForwardReturn: -0.99, LabelHorizon: 1, CurrentPrice: 0.5, Horizon: 100, Volatility: 0.5, LastDate: friday},
		{ForwardReturn: 0, LabelHorizon: 5, CurrentPrice: 50, Horizon: 1, Volatility: 0, LastDate: friday},
		{ForwardReturn: 5, LabelHorizon: 5, CurrentPrice: 10, Horizon: 30, Volatility: math.NaN(), LastDate: friday},
	}

	for _, params := range []Params{DefaultParams(), {BandZ: 1.96}} {
		for _, in := range cases {
			path, err := Project(in, params)
			require.NoError(t, err)
			require.Len(t, path, in.Horizon)

			prevWidth := -1.0
			for i, pt := range path {
				assert.Greater(t, pt.LowerBound, 0.0, "lower bound must be positive at %d", i)
				assert.LessOrEqual(t, pt.LowerBound, pt.Price, "lower > price at %d", i)
				assert.LessOrEqual(t, pt.Price, pt.UpperBound, "price > upper at %d", i)
				width := pt.UpperBound - pt.LowerBound
				assert.GreaterOrEqual(t, width, prevWidth-1e-9, "width shrank at %d", i)
				prevWidth = width
			}
		}
	}
}

func TestProject_BusinessDayDates(t *testing.T) {
	path, err := Project(Input{ForwardReturn: 0.01, LabelHorizon: 5, CurrentPrice: 100, Horizon: 10, Volatility: 0.01, LastDate: friday}, DefaultParams())
	require.NoError(t, err)

	assert.Equal(t, time.Monday, path[0].Date.Weekday())
	for i, pt := range path {
		assert.True(t, core.IsBusinessDay(pt.Date), "point %d on weekend", i)
		if i > 0 {
			assert.True(t, pt.Date.After(path[i-1].Date))
		}
	}
}

func TestProject_Direction(t *testing.T) {
	up, err := Project(Input{ForwardReturn: 0.05, LabelHorizon: 5, CurrentPrice: 100, Horizon: 30, Volatility: 0.01, LastDate: friday}, DefaultParams())
	require.NoError(t, err)
	down, err := Project(Input{ForwardReturn: -0.05, LabelHorizon: 5, CurrentPrice: 100, Horizon: 30, Volatility: 0.01, LastDate: friday}, DefaultParams())
	require.NoError(t, err)

	assert.Greater(t, up[29].Price, 100.0)
	assert.Less(t, down[29].Price, 100.0)

	// without decay, compounding the step return over the label horizon recovers it
	flat, err := Project(Input{ForwardReturn: 0.05, LabelHorizon: 5, CurrentPrice: 100, Horizon: 5, LastDate: friday}, Params{BandZ: 1.96})
	require.NoError(t, err)
	assert.InDelta(t, 105.0, flat[4].Price, 1e-9)
}

func TestProject_DriftCappedBySigma(t *testing.T) {
	path, err := Project(Input{ForwardReturn: 1, LabelHorizon: 1, CurrentPrice: 100, Horizon: 10, Volatility: 0.01, LastDate: friday}, Params{BandZ: 1.96})
	require.NoError(t, err)
	assert.InDelta(t, 103.0, path[0].Price, 1e-9, "step capped at 3σ")
	assert.InDelta(t, 100*math.Pow(1.03, 10), path[9].Price, 1e-9)
}

func TestProject_ExtremeDriftKeepsWidening(t *testing.T) {
	for _, in := range []Input{
		{ForwardReturn: 1000, LabelHorizon: 1, CurrentPrice: 100, Horizon: 365, Volatility: 0.5, LastDate: friday},
		{ForwardReturn: 1000, LabelHorizon: 1, CurrentPrice: 100, Horizon: 365, Volatility: 0, LastDate: friday},
		{ForwardReturn: -0.999, LabelHorizon: 1, CurrentPrice: 100, Horizon: 365, Volatility: 0.3, LastDate: friday},
	} {
		path, err := Project(in, DefaultParams())
		require.NoError(t, err)
		prevWidth := 0.0
		for i, pt := range path {
			assert.LessOrEqual(t, pt.Price, 100*in.CurrentPrice)
			assert.GreaterOrEqual(t, pt.Price, in.CurrentPrice/100)
			assert.Greater(t, pt.LowerBound, 0.0)
			assert.LessOrEqual(t, pt.LowerBound, pt.Price)
			assert.LessOrEqual(t, pt.Price, pt.UpperBound)
			width := pt.UpperBound - pt.LowerBound
			assert.GreaterOrEqual(t, width, prevWidth, "step %d", i+1)
			prevWidth = width
		}
	}
}

func TestProject_InvalidInput(t *testing.T) {
	for _, h := range []int{0, -1, 366} {
		_, err := Project(Input{CurrentPrice: 100, Horizon: h, LabelHorizon: 5, LastDate: friday}, DefaultParams())
		assert.True(t, errors.Is(err, core.ErrInvalidRequest), "horizon %d: %v", h, err)
	}
	_, err := Project(Input{CurrentPrice: 0, Horizon: 5, LabelHorizon: 5, LastDate: friday}, DefaultParams())
	assert.True(t, errors.Is(err, core.ErrInvalidRequest))
}

func TestStepReturn_Clamped(t *testing.T) {
	assert.InDelta(t, 0.5, StepReturn(1000, 1), 1e-12)
	assert.InDelta(t, -0.5, StepReturn(-0.99, 1), 1e-12)
	assert.Equal(t, 0.0, StepReturn(math.NaN(), 5))
	assert.InDelta(t, math.Pow(1.1, 0.2)-1, StepReturn(0.1, 5), 1e-12)
}

func TestClassify(t *testing.T) {
	tests := []struct {
		ret  float64
		want core.Trend
	}{
		{0.05, core.TrendBullish},
		{0.0201, core.TrendBullish},
		{0.02, core.TrendNeutral},
		{0, core.TrendNeutral},
		{-0.02, core.TrendNeutral},
		{-0.03, core.TrendBearish},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, Classify(tt.ret, 0.02), "return %f", tt.ret)
	}
	assert.Equal(t, core.TrendBullish, Classifier(0.02)(0.1))
}

func TestDailyVolatility(t *testing.T) {
	flat := []float64{10, 10, 10, 10, 10}
	assert.Equal(t, 0.0, DailyVolatility(flat, 30))

	zigzag := []float64{100, 101, 100, 101, 100, 101, 100}
	v := DailyVolatility(zigzag, 30)
	assert.Greater(t, v, 0.009)
	assert.Less(t, v, 0.012)

	assert.Equal(t, 0.0, DailyVolatility([]float64{1, 2}, 30))
}
