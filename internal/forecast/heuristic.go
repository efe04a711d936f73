package forecast

import (
	"context"
	"time"

	"go.uber.org/zap"

	"github.com/newthinker/foresight/internal/cache"
	"github.com/newthinker/foresight/internal/core"
	"github.com/newthinker/foresight/internal/indicator"
	"github.com/newthinker/foresight/internal/projector"
)

const (
	baseAnnualReturn = 0.08
	returnPerPoint   = 0.02
	tradingYear      = 252

	monthBars   = 21
	quarterBars = 65
)

// TrendScore rates the latest bar from moving-average alignment, one and
// three month momentum and volume confirmation. The score ranges over
// [-4.5, 4.5]; positive is bullish.
func TrendScore(bars []core.OHLCV, set *indicator.Set) float64 {
	closes := core.Closes(bars)
	n := len(closes)
	price := closes[n-1]

	ma5, ok5 := indicator.SMA(closes, 5).Last()
	ma20, ok20 := set.SMA20.Last()
	ma50, ok50 := set.SMA50.Last()

	var score float64
	if ok5 && ok20 && ok50 {
		switch {
		case price > ma5 && ma5 > ma20 && ma20 > ma50:
			score += 2
		case price > ma20 && ma20 > ma50:
			score++
		case price < ma5 && ma5 < ma20 && ma20 < ma50:
			score -= 2
		case price < ma20 && ma20 < ma50:
			score--
		}
	}

	switch m := momentum(closes, monthBars); {
	case m > 0.05:
		score++
	case m < -0.05:
		score--
	}
	switch m := momentum(closes, quarterBars); {
	case m > 0.15:
		score++
	case m < -0.15:
		score--
	}

	if ratio, ok := set.VolumeRatio.Last(); ok && ratio > 1.5 {
		if score > 0 {
			score += 0.5
		} else {
			score -= 0.5
		}
	}
	return score
}

// momentum is the return over the last k bars, 0 when history is shorter.
func momentum(closes []float64, k int) float64 {
	n := len(closes)
	if n <= k || closes[n-1-k] <= 0 {
		return 0
	}
	return closes[n-1]/closes[n-1-k] - 1
}

// AnnualReturn maps a trend score onto an expected annual return.
func AnnualReturn(score float64) float64 {
	return baseAnnualReturn + returnPerPoint*score
}

func (s *Service) computeHeuristic(symbol string) cache.ComputeFunc {
	return func(ctx context.Context) (rec *core.Prediction, err error) {
		began := time.Now()
		defer func() { s.observe(core.MethodHeuristic, symbol, began, err) }()

		ctx, cancel := context.WithTimeout(ctx, s.params.ComputeTimeout)
		defer cancel()

		bars, set, err := s.loadHistory(ctx, symbol)
		if err != nil {
			return nil, err
		}

		score := TrendScore(bars, set)
		annual := AnnualReturn(score)
		last := bars[len(bars)-1]
		vol := projector.DailyVolatility(core.Closes(bars), s.params.VolatilityWindow)

		// compound the annual return evenly over a trading year, no decay
		params := s.params.Projection
		params.HalfLife = 0
		start := time.Now()
		path, err := projector.Project(projector.Input{
			ForwardReturn: annual,
			LabelHorizon:  tradingYear,
			CurrentPrice:  last.Close,
			Horizon:       s.params.MaxHorizon,
			Volatility:    vol,
			LastDate:      last.Time,
		}, params)
		s.metrics.ObserveStage(StageProject, time.Since(start).Seconds())
		if err != nil {
			return nil, err
		}

		rec = s.finish(&core.Prediction{
			Symbol:       symbol,
			Method:       core.MethodHeuristic,
			ComputedAt:   s.cache.Now().UTC(),
			CurrentPrice: last.Close,
			Path:         path,
			TrendScore:   score,
			Volatility:   vol,
			Indicators:   set.Snapshot(),
		})

		s.logger.Info("heuristic forecast computed",
			zap.String("symbol", symbol),
			zap.Float64("trend_score", score),
			zap.Float64("annual_return", annual),
			zap.Duration("duration", time.Since(began)))

		s.archive(ctx, rec)
		return rec, nil
	}
}
