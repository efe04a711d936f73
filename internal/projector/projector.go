// Package projector turns a forward-return estimate into a dated daily
// price path with volatility bounds.
package projector

import (
	"math"
	"time"

	"gonum.org/v1/gonum/stat"

	"github.com/newthinker/foresight/internal/core"
)

const (
	// MaxHorizon is the longest supported projection in business days.
	MaxHorizon = 365
	// maxStepReturn caps the per-step drift applied to the path.
	maxStepReturn = 0.5
	// maxStepSigmas further caps the per-step drift at this many daily σ.
	maxStepSigmas = 3
	// maxGrowth bounds the projected price within [P0/maxGrowth, P0·maxGrowth].
	maxGrowth = 100
	// epsilon is the lowest lower bound ever reported.
	epsilon = 1e-6
)

// Params shapes a projection.
type Params struct {
	BandZ          float64 // z-score of the bound envelope, e.g. 1.96
	HalfLife       float64 // drift half-life in steps; 0 disables decay
	TrendThreshold float64 // |return| above which a trend is directional
}

// DefaultParams mirrors the service defaults.
func DefaultParams() Params {
	return Params{BandZ: 1.96, HalfLife: 180, TrendThreshold: 0.02}
}

// Input is everything a projection needs.
type Input struct {
	// ForwardReturn is the estimated return over LabelHorizon steps.
	ForwardReturn float64
	LabelHorizon  int
	CurrentPrice  float64
	Horizon       int
	Volatility    float64 // daily σ of returns
	LastDate      time.Time
}

// Project builds Horizon daily points starting the business day after
// LastDate. Price compounds the per-step return r=(1+R)^(1/h)-1, capped at
// maxStepSigmas·σ and damped by 2^(-t/HalfLife), and stays within maxGrowth
// of P0. Bounds are price ± P0·z·σ·√t, shifted up when the lower bound would
// reach zero so that 0 < lower ≤ price ≤ upper always holds and the width
// never shrinks.
func Project(in Input, p Params) ([]core.PathPoint, error) {
	if in.Horizon < 1 || in.Horizon > MaxHorizon {
		return nil, core.Errorf(core.ErrInvalidRequest, "horizon must be in [1,%d], got %d", MaxHorizon, in.Horizon)
	}
	if !(in.CurrentPrice > 0) {
		return nil, core.Errorf(core.ErrInvalidRequest, "current price must be positive, got %f", in.CurrentPrice)
	}

	step := StepReturn(in.ForwardReturn, in.LabelHorizon)
	sigma := in.Volatility
	if !(sigma >= 0) || math.IsInf(sigma, 0) {
		sigma = 0
	}
	if sigma > 0 {
		limit := maxStepSigmas * sigma
		step = math.Max(-limit, math.Min(limit, step))
	}
	floor := math.Max(in.CurrentPrice/maxGrowth, epsilon)
	ceiling := in.CurrentPrice * maxGrowth

	path := make([]core.PathPoint, 0, in.Horizon)
	price := in.CurrentPrice
	date := in.LastDate
	for t := 1; t <= in.Horizon; t++ {
		r := step
		if p.HalfLife > 0 {
			r *= math.Exp2(-float64(t) / p.HalfLife)
		}
		price = math.Max(floor, math.Min(ceiling, price*(1+r)))
		date = core.NextBusinessDay(date)

		band := in.CurrentPrice * p.BandZ * sigma * math.Sqrt(float64(t))
		lower := math.Max(price-band, epsilon)
		path = append(path, core.PathPoint{
			Date:       date,
			Price:      price,
			LowerBound: lower,
			UpperBound: lower + 2*band,
		})
	}
	return path, nil
}

// StepReturn converts a return over h steps into the equivalent compounded
// single-step return, clamped to ±50%.
func StepReturn(forward float64, h int) float64 {
	if h < 1 {
		h = 1
	}
	if math.IsNaN(forward) {
		return 0
	}
	base := math.Max(1+forward, 0)
	r := math.Pow(base, 1/float64(h)) - 1
	return math.Max(-maxStepReturn, math.Min(maxStepReturn, r))
}

// Classify maps a horizon return onto a trend.
func Classify(ret, threshold float64) core.Trend {
	switch {
	case ret > threshold:
		return core.TrendBullish
	case ret < -threshold:
		return core.TrendBearish
	default:
		return core.TrendNeutral
	}
}

// Classifier binds a threshold for use with Prediction.Truncate.
func Classifier(threshold float64) func(float64) core.Trend {
	return func(ret float64) core.Trend { return Classify(ret, threshold) }
}

// DailyVolatility is the sample σ of the last window one-bar returns.
func DailyVolatility(closes []float64, window int) float64 {
	if len(closes) < 3 {
		return 0
	}
	if window < 2 || window > len(closes)-1 {
		window = len(closes) - 1
	}
	rets := make([]float64, 0, window)
	for i := len(closes) - window; i < len(closes); i++ {
		if closes[i-1] > 0 {
			rets = append(rets, closes[i]/closes[i-1]-1)
		}
	}
	if len(rets) < 2 {
		return 0
	}
	sd := stat.StdDev(rets, nil)
	if math.IsNaN(sd) || math.IsInf(sd, 0) {
		return 0
	}
	return sd
}
