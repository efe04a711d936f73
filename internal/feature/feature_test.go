package feature

import (
	"errors"
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/newthinker/foresight/internal/collector/memory"
	"github.com/newthinker/foresight/internal/core"
	"github.com/newthinker/foresight/internal/indicator"
)

func build(t *testing.T, bars []core.OHLCV, horizon int) (Matrix, Row) {
	t.Helper()
	set, err := indicator.Compute(bars)
	require.NoError(t, err)
	m, live, err := Build(bars, set, horizon)
	require.NoError(t, err)
	return m, live
}

func TestFields_Order(t *testing.T) {
	assert.Equal(t, 25, Width)
	assert.Equal(t, "close", Fields[0])
	assert.Equal(t, "pivot_distance", Fields[Width-1])

	names := Names()
	names[0] = "mutated"
	assert.Equal(t, "close", Fields[0], "Names must return a copy")
}

func TestBuild_LabelsAndOrder(t *testing.T) {
	bars := memory.Generate("TEST", 200, memory.Walk{Drift: 0.001, Noise: 0.01, Seed: 11})
	m, _ := build(t, bars, 5)

	require.NotZero(t, m.Len())
	assert.Equal(t, 5, m.Horizon)

	byDate := make(map[int64]int, len(bars))
	for i, b := range bars {
		byDate[b.Time.Unix()] = i
	}

	for k, s := range m.Samples {
		i := byDate[s.Date.Unix()]
		require.Less(t, i+5, len(bars), "sample %d has no realised label", k)
		want := (bars[i+5].Close - bars[i].Close) / bars[i].Close
		assert.InDelta(t, want, s.Label, 1e-12)
		assert.Equal(t, bars[i].Close, s.Row[0])
		if k > 0 {
			assert.True(t, s.Date.After(m.Samples[k-1].Date), "samples out of order at %d", k)
		}
		for j, v := range s.Row {
			assert.False(t, math.IsNaN(v) || math.IsInf(v, 0), "%s not finite in sample %d", Fields[j], k)
		}
	}

	// sma50 is the longest warm-up feature
	assert.Equal(t, bars[49].Time, m.Samples[0].Date)
	assert.Equal(t, bars[len(bars)-6].Time, m.Samples[m.Len()-1].Date)
}

func TestBuild_LiveRowMatchesTrainingLayout(t *testing.T) {
	bars := memory.Generate("TEST", 150, memory.Walk{Drift: 0.001, Noise: 0.01, Seed: 12})
	full, _ := build(t, bars, 5)

	// the live row of a prefix equals the training row at the same bar
	k := 120
	_, live := build(t, bars[:k+1], 5)
	for _, s := range full.Samples {
		if s.Date.Equal(bars[k].Time) {
			for j := range live {
				assert.InDelta(t, s.Row[j], live[j], 1e-9, "feature %s differs", Fields[j])
			}
			return
		}
	}
	t.Fatal("no training sample for the prefix end")
}

func TestBuild_InvalidHorizon(t *testing.T) {
	bars := memory.Generate("TEST", 80, memory.Walk{Seed: 1})
	set, err := indicator.Compute(bars)
	require.NoError(t, err)

	_, _, err = Build(bars, set, 0)
	assert.True(t, errors.Is(err, core.ErrInvalidRequest))
}

func TestBuild_MismatchedSetPanics(t *testing.T) {
	bars := memory.Generate("TEST", 80, memory.Walk{Seed: 1})
	set, err := indicator.Compute(bars)
	require.NoError(t, err)

	assert.Panics(t, func() { Build(bars[:70], set, 5) })
}
