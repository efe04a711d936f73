// Package model fits the forward-return regressor and measures it on a
// chronological holdout.
package model

import (
	"context"
	"errors"
	"math"
	"time"

	"gonum.org/v1/gonum/stat"

	"github.com/newthinker/foresight/internal/core"
	"github.com/newthinker/foresight/internal/feature"
)

// Params configures Fit.
type Params struct {
	Estimators      int
	MaxDepth        int
	MinLeaf         int
	MaxFeatures     int
	Seed            int64 // 0 draws a seed from the clock
	HoldoutFraction float64
	MinRows         int
}

// DefaultParams mirrors the service defaults.
func DefaultParams() Params {
	return Params{
		Estimators:      100,
		MaxDepth:        10,
		MinLeaf:         5,
		Seed:            42,
		HoldoutFraction: 0.2,
		MinRows:         30,
	}
}

// tradingYear scales confidence by how much history the fit saw.
const tradingYear = 252

// Model is a fitted forest plus its holdout measurements.
type Model struct {
	forest     *Forest
	Summary    core.ModelSummary
	Accuracy   float64 // [0,1]
	Confidence float64 // [0,100]
}

// Predict estimates the forward return for a live row.
func (m *Model) Predict(row feature.Row) float64 {
	return m.forest.Predict(row.Slice())
}

// Split divides m chronologically: the first ⌊(1-f)·n⌋ samples train, the
// rest form the holdout. A non-empty matrix always yields at least one
// holdout sample when f > 0. When there is a holdout, the last m.Horizon
// training samples are purged since their labels reach into the holdout
// period; at least one training sample is kept.
func Split(m feature.Matrix, holdoutFraction float64) (train, holdout feature.Matrix) {
	n := m.Len()
	cut := int(math.Floor((1 - holdoutFraction) * float64(n)))
	if holdoutFraction > 0 && cut >= n && n > 1 {
		cut = n - 1
	}
	if cut < 0 {
		cut = 0
	}
	if cut > n {
		cut = n
	}
	end := cut
	if cut < n && m.Horizon > 0 {
		end = max(cut-m.Horizon, min(cut, 1))
	}
	train = feature.Matrix{Horizon: m.Horizon, Samples: m.Samples[:end:end]}
	holdout = feature.Matrix{Horizon: m.Horizon, Samples: m.Samples[cut:]}
	return train, holdout
}

// Fit trains on the chronological head of m and scores the holdout tail.
// It fails with ErrModelFitFailed on too few rows or constant labels.
func Fit(ctx context.Context, m feature.Matrix, p Params) (*Model, error) {
	if m.Len() < p.MinRows {
		return nil, core.Errorf(core.ErrModelFitFailed, "need at least %d training rows, got %d", p.MinRows, m.Len())
	}

	train, holdout := Split(m, p.HoldoutFraction)
	if train.Len() == 0 {
		return nil, core.Errorf(core.ErrModelFitFailed, "holdout fraction %.2f leaves no training rows", p.HoldoutFraction)
	}

	x := make([][]float64, train.Len())
	y := make([]float64, train.Len())
	for i := range train.Samples {
		x[i] = train.Samples[i].Row.Slice()
		y[i] = train.Samples[i].Label
	}
	if len(y) < 2 || !(stat.Variance(y, nil) > 0) {
		return nil, core.Errorf(core.ErrModelFitFailed, "training labels have zero variance")
	}

	seed := p.Seed
	if seed == 0 {
		seed = time.Now().UnixNano()
	}

	forest, err := FitForest(ctx, x, y, ForestParams{
		Estimators:  p.Estimators,
		MaxDepth:    p.MaxDepth,
		MinLeaf:     p.MinLeaf,
		MaxFeatures: p.MaxFeatures,
		Seed:        seed,
	})
	if err != nil {
		if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
			return nil, core.WrapError(core.ErrTimeout, err)
		}
		return nil, core.WrapError(core.ErrModelFitFailed, err)
	}

	model := &Model{
		forest: forest,
		Summary: core.ModelSummary{
			FeatureOrder: feature.Names(),
			TrainedAt:    time.Now().UTC(),
			TrainRows:    train.Len(),
			HoldoutRows:  holdout.Len(),
			Estimators:   forest.Size(),
			Seed:         seed,
		},
	}
	model.score(holdout)
	return model, nil
}

// score fills in holdout error, accuracy and confidence. Accuracy compares
// implied prices: 1 - MAE(price)/mean(actual price), clamped to [0,1].
func (m *Model) score(holdout feature.Matrix) {
	n := holdout.Len()
	if n == 0 {
		return
	}

	var absErr, sqErr, priceAbsErr float64
	actualPrices := make([]float64, n)
	for i, s := range holdout.Samples {
		pred := m.Predict(s.Row)
		diff := pred - s.Label
		absErr += math.Abs(diff)
		sqErr += diff * diff

		actual := s.Close * (1 + s.Label)
		predicted := s.Close * (1 + pred)
		priceAbsErr += math.Abs(predicted - actual)
		actualPrices[i] = actual
	}

	m.Summary.HoldoutMAE = absErr / float64(n)
	m.Summary.HoldoutRMSE = math.Sqrt(sqErr / float64(n))

	meanPrice := stat.Mean(actualPrices, nil)
	if meanPrice > 0 {
		m.Accuracy = clamp(1-(priceAbsErr/float64(n))/meanPrice, 0, 1)
	}
	m.Summary.HoldoutAccuracy = m.Accuracy

	sizeFactor := math.Min(1, math.Sqrt(float64(m.Summary.TrainRows)/tradingYear))
	m.Confidence = math.Min(100*m.Accuracy, 95) * sizeFactor
}

func clamp(v, lo, hi float64) float64 {
	return math.Max(lo, math.Min(hi, v))
}
