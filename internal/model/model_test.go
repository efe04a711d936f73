package model

import (
	"context"
	"errors"
	"math/rand"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/newthinker/foresight/internal/core"
	"github.com/newthinker/foresight/internal/feature"
)

// synthetic builds n daily samples whose label depends on feature 1.
func synthetic(n int, seed int64) feature.Matrix {
	rng := rand.New(rand.NewSource(seed))
	start := time.Date(2023, 1, 2, 0, 0, 0, 0, time.UTC)
	m := feature.Matrix{Horizon: 5}
	for i := 0; i < n; i++ {
		var row feature.Row
		for j := range row {
			row[j] = rng.NormFloat64()
		}
		row[0] = 100
		label := 0.02*row[1] + 0.001*rng.NormFloat64()
		m.Samples = append(m.Samples, feature.Sample{
			Date:  start.AddDate(0, 0, i),
			Close: 100,
			Row:   row,
			Label: label,
		})
	}
	return m
}

func smallParams() Params {
	p := DefaultParams()
	p.Estimators = 20
	return p
}

func TestSplit_Chronological(t *testing.T) {
	m := synthetic(100, 1)
	train, holdout := Split(m, 0.2)

	// 80 rows before the cut, minus the 5 whose labels overlap the holdout
	require.Equal(t, 75, train.Len())
	require.Equal(t, 20, holdout.Len())

	lastTrain := train.Samples[train.Len()-1].Date
	for _, s := range holdout.Samples {
		assert.True(t, s.Date.After(lastTrain), "holdout row %v not after training rows", s.Date)
	}
	assert.Equal(t, m.Samples[80].Date, holdout.Samples[0].Date)
	assert.Equal(t, m.Samples[74].Date, lastTrain)
}

func TestSplit_PurgesOnlyWithHoldout(t *testing.T) {
	m := synthetic(100, 1)
	m.Horizon = 0
	train, _ := Split(m, 0.2)
	assert.Equal(t, 80, train.Len())

	m.Horizon = 5
	train, holdout := Split(m, 0)
	assert.Equal(t, 100, train.Len())
	assert.Zero(t, holdout.Len())
}

func TestSplit_AlwaysHoldsOut(t *testing.T) {
	train, holdout := Split(synthetic(3, 1), 0.2)
	assert.Equal(t, 1, train.Len(), "purging keeps one training row")
	assert.Equal(t, 1, holdout.Len())

	train, holdout = Split(synthetic(3, 1), 0)
	assert.Equal(t, 3, train.Len())
	assert.Equal(t, 0, holdout.Len())
}

func TestFit_LearnsSignal(t *testing.T) {
	m, err := Fit(context.Background(), synthetic(300, 2), smallParams())
	require.NoError(t, err)

	var hi, lo feature.Row
	hi[0], lo[0] = 100, 100
	hi[1], lo[1] = 2, -2
	assert.Greater(t, m.Predict(hi), 0.0)
	assert.Less(t, m.Predict(lo), 0.0)

	assert.Equal(t, 235, m.Summary.TrainRows)
	assert.Equal(t, 60, m.Summary.HoldoutRows)
	assert.Equal(t, feature.Names(), m.Summary.FeatureOrder)
	assert.Greater(t, m.Accuracy, 0.9)
	assert.LessOrEqual(t, m.Accuracy, 1.0)
	assert.LessOrEqual(t, m.Confidence, 95.0)
	assert.Greater(t, m.Confidence, 0.0)
	assert.Greater(t, m.Summary.HoldoutRMSE, 0.0)
	assert.GreaterOrEqual(t, m.Summary.HoldoutRMSE, m.Summary.HoldoutMAE)
}

func TestFit_Deterministic(t *testing.T) {
	data := synthetic(200, 3)
	a, err := Fit(context.Background(), data, smallParams())
	require.NoError(t, err)
	b, err := Fit(context.Background(), data, smallParams())
	require.NoError(t, err)

	probe := data.Samples[len(data.Samples)-1].Row
	assert.Equal(t, a.Predict(probe), b.Predict(probe))
	assert.Equal(t, a.Accuracy, b.Accuracy)
	assert.Equal(t, a.Summary.HoldoutMAE, b.Summary.HoldoutMAE)

	p := smallParams()
	p.Seed = 7
	c, err := Fit(context.Background(), data, p)
	require.NoError(t, err)
	assert.NotEqual(t, a.Predict(probe), c.Predict(probe))
}

func TestFit_Failures(t *testing.T) {
	_, err := Fit(context.Background(), synthetic(29, 1), smallParams())
	assert.True(t, errors.Is(err, core.ErrModelFitFailed), "too few rows: %v", err)

	flat := synthetic(100, 1)
	for i := range flat.Samples {
		flat.Samples[i].Label = 0.01
	}
	_, err = Fit(context.Background(), flat, smallParams())
	assert.True(t, errors.Is(err, core.ErrModelFitFailed), "constant labels: %v", err)
}

func TestFit_Cancelled(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := Fit(ctx, synthetic(100, 1), smallParams())
	assert.True(t, errors.Is(err, core.ErrTimeout), "got %v", err)
}

func TestForest_PredictWrongWidthPanics(t *testing.T) {
	x := [][]float64{{1, 2}, {2, 3}, {3, 4}, {4, 5}}
	y := []float64{1, 2, 3, 4}
	f, err := FitForest(context.Background(), x, y, ForestParams{Estimators: 3, MaxDepth: 3, MinLeaf: 1, Seed: 1})
	require.NoError(t, err)

	assert.Panics(t, func() { f.Predict([]float64{1}) })
	assert.NotPanics(t, func() { f.Predict([]float64{1, 2}) })
}
