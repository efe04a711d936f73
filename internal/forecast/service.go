// Package forecast runs the prediction pipeline: fetch history, derive
// indicators and features, fit the ensemble, project a price path and cache
// the resulting record per symbol.
package forecast

import (
	"context"
	"errors"
	"time"

	"go.uber.org/zap"

	"github.com/newthinker/foresight/internal/cache"
	"github.com/newthinker/foresight/internal/collector"
	"github.com/newthinker/foresight/internal/core"
	"github.com/newthinker/foresight/internal/feature"
	"github.com/newthinker/foresight/internal/indicator"
	"github.com/newthinker/foresight/internal/metrics"
	"github.com/newthinker/foresight/internal/model"
	"github.com/newthinker/foresight/internal/projector"
	"github.com/newthinker/foresight/internal/storage/archive"
)

// Pipeline stage names used for timing.
const (
	StageFetch      = "fetch"
	StageIndicators = "indicators"
	StageFeatures   = "features"
	StageFit        = "fit"
	StageProject    = "project"
)

// Params configures the pipeline.
type Params struct {
	LabelHorizon     int           // bars ahead the model predicts
	Lookback         time.Duration // history requested from the collector
	VolatilityWindow int
	DefaultHorizon   int
	MaxHorizon       int
	ComputeTimeout   time.Duration
	BatchConcurrency int
	MaxBatch         int
	Model            model.Params
	Projection       projector.Params
}

// DefaultParams mirrors the configuration defaults.
func DefaultParams() Params {
	return Params{
		LabelHorizon:     5,
		Lookback:         730 * 24 * time.Hour,
		VolatilityWindow: 30,
		DefaultHorizon:   30,
		MaxHorizon:       projector.MaxHorizon,
		ComputeTimeout:   5 * time.Minute,
		BatchConcurrency: 4,
		MaxBatch:         50,
		Model:            model.DefaultParams(),
		Projection:       projector.DefaultParams(),
	}
}

// Result is a served prediction.
type Result struct {
	Prediction *core.Prediction
	Cached     bool // served from a fresh cache entry
}

// Service is the prediction façade shared by the HTTP API, the CLI and the
// warm-up scheduler.
type Service struct {
	collector collector.Collector
	cache     *cache.Cache
	recorder  *archive.Recorder
	metrics   *metrics.Registry
	logger    *zap.Logger
	params    Params
}

// Option configures a Service.
type Option func(*Service)

// WithRecorder archives every computed prediction.
func WithRecorder(r *archive.Recorder) Option {
	return func(s *Service) { s.recorder = r }
}

// WithMetrics records pipeline metrics.
func WithMetrics(m *metrics.Registry) Option {
	return func(s *Service) { s.metrics = m }
}

func WithLogger(l *zap.Logger) Option {
	return func(s *Service) {
		if l != nil {
			s.logger = l
		}
	}
}

// New creates a Service reading bars from c and memoising results in pc.
func New(c collector.Collector, pc *cache.Cache, p Params, opts ...Option) *Service {
	s := &Service{
		collector: c,
		cache:     pc,
		logger:    zap.NewNop(),
		params:    p,
	}
	for _, opt := range opts {
		opt(s)
	}
	if s.params.MaxHorizon <= 0 || s.params.MaxHorizon > projector.MaxHorizon {
		s.params.MaxHorizon = projector.MaxHorizon
	}
	if s.params.DefaultHorizon <= 0 || s.params.DefaultHorizon > s.params.MaxHorizon {
		s.params.DefaultHorizon = s.params.MaxHorizon
	}
	if s.params.ComputeTimeout <= 0 {
		s.params.ComputeTimeout = DefaultParams().ComputeTimeout
	}
	if s.params.BatchConcurrency < 1 {
		s.params.BatchConcurrency = 1
	}
	return s
}

// Params returns the effective pipeline parameters.
func (s *Service) Params() Params { return s.params }

// Predict returns the ensemble forecast of symbol limited to days. days == 0
// selects the default horizon.
func (s *Service) Predict(ctx context.Context, symbol string, days int) (*Result, error) {
	return s.serve(ctx, core.MethodEnsemble, symbol, days, s.computeEnsemble)
}

// PredictSimple returns the heuristic forecast of symbol. It skips model
// fitting and is correspondingly less accurate.
func (s *Service) PredictSimple(ctx context.Context, symbol string, days int) (*Result, error) {
	return s.serve(ctx, core.MethodHeuristic, symbol, days, s.computeHeuristic)
}

// Refresh recomputes the ensemble forecast of symbol over the full horizon,
// replacing the cached record. It joins a computation already in flight for
// symbol instead of starting a second one.
func (s *Service) Refresh(ctx context.Context, symbol string) (*Result, error) {
	sym, err := core.NormalizeSymbol(symbol)
	if err != nil {
		return nil, err
	}
	rec, _, err := s.cache.Refresh(ctx, cache.Key(string(core.MethodEnsemble), sym), s.computeEnsemble(sym))
	if err != nil {
		return nil, err
	}
	s.metrics.SetCacheEntries(s.cache.Len())

	view := rec.Truncate(s.params.MaxHorizon, projector.Classifier(s.params.Projection.TrendThreshold))
	return &Result{Prediction: view}, nil
}

// CacheTTL returns how long computed forecasts stay fresh.
func (s *Service) CacheTTL() time.Duration { return s.cache.TTL() }

// CacheStatus reports every cached or in-flight key.
func (s *Service) CacheStatus() []cache.EntryStatus {
	return s.cache.Status()
}

// ClearCache drops the cached forecasts of symbol, or everything when symbol
// is empty. It returns how many local entries were removed.
func (s *Service) ClearCache(ctx context.Context, symbol string) (int, error) {
	before := s.cache.Len()
	if symbol == "" {
		if err := s.cache.Clear(ctx); err != nil {
			return 0, err
		}
	} else {
		sym, err := core.NormalizeSymbol(symbol)
		if err != nil {
			return 0, err
		}
		for _, m := range []core.Method{core.MethodEnsemble, core.MethodHeuristic} {
			if err := s.cache.Invalidate(ctx, cache.Key(string(m), sym)); err != nil {
				return 0, err
			}
		}
	}
	after := s.cache.Len()
	s.metrics.SetCacheEntries(after)
	s.logger.Info("cache cleared", zap.String("symbol", symbol), zap.Int("removed", before-after))
	return before - after, nil
}

// History returns archived predictions of symbol, newest first.
func (s *Service) History(ctx context.Context, symbol string, limit int) ([]*core.Prediction, error) {
	if s.recorder == nil {
		return nil, core.Errorf(core.ErrNotFound, "prediction archive is disabled")
	}
	sym, err := core.NormalizeSymbol(symbol)
	if err != nil {
		return nil, err
	}
	return s.recorder.History(ctx, sym, limit)
}

// validateDays resolves days against the default and maximum horizon.
func (s *Service) validateDays(days int) (int, error) {
	if days == 0 {
		return s.params.DefaultHorizon, nil
	}
	if days < 1 || days > s.params.MaxHorizon {
		return 0, core.Errorf(core.ErrInvalidRequest, "days must be between 1 and %d, got %d", s.params.MaxHorizon, days)
	}
	return days, nil
}

type computeFactory func(symbol string) cache.ComputeFunc

// serve validates the request, resolves the full-horizon record through the
// cache and returns the view limited to days.
func (s *Service) serve(ctx context.Context, method core.Method, symbol string, days int, factory computeFactory) (*Result, error) {
	sym, err := core.NormalizeSymbol(symbol)
	if err != nil {
		return nil, err
	}
	days, err = s.validateDays(days)
	if err != nil {
		return nil, err
	}

	rec, outcome, err := s.cache.Get(ctx, cache.Key(string(method), sym), factory(sym))
	if err != nil {
		return nil, err
	}
	s.metrics.SetCacheEntries(s.cache.Len())

	view := rec.Truncate(days, projector.Classifier(s.params.Projection.TrendThreshold))
	return &Result{Prediction: view, Cached: outcome == cache.OutcomeHit}, nil
}

// loadHistory fetches bars and derives the indicator set.
func (s *Service) loadHistory(ctx context.Context, symbol string) ([]core.OHLCV, *indicator.Set, error) {
	start := time.Now()
	bars, err := s.collector.FetchHistory(ctx, symbol, s.params.Lookback)
	s.metrics.ObserveStage(StageFetch, time.Since(start).Seconds())
	if err != nil {
		return nil, nil, err
	}

	start = time.Now()
	set, err := indicator.Compute(bars)
	s.metrics.ObserveStage(StageIndicators, time.Since(start).Seconds())
	if err != nil {
		return nil, nil, err
	}
	return bars, set, nil
}

func (s *Service) computeEnsemble(symbol string) cache.ComputeFunc {
	return func(ctx context.Context) (rec *core.Prediction, err error) {
		began := time.Now()
		defer func() { s.observe(core.MethodEnsemble, symbol, began, err) }()

		ctx, cancel := context.WithTimeout(ctx, s.params.ComputeTimeout)
		defer cancel()

		bars, set, err := s.loadHistory(ctx, symbol)
		if err != nil {
			return nil, err
		}

		start := time.Now()
		matrix, live, err := feature.Build(bars, set, s.params.LabelHorizon)
		s.metrics.ObserveStage(StageFeatures, time.Since(start).Seconds())
		if err != nil {
			return nil, err
		}

		start = time.Now()
		fitted, err := model.Fit(ctx, matrix, s.params.Model)
		s.metrics.ObserveStage(StageFit, time.Since(start).Seconds())
		if err != nil {
			return nil, err
		}
		s.metrics.ObserveAccuracy(fitted.Accuracy)

		forward := fitted.Predict(live)
		last := bars[len(bars)-1]
		vol := projector.DailyVolatility(core.Closes(bars), s.params.VolatilityWindow)

		start = time.Now()
		path, err := projector.Project(projector.Input{
			ForwardReturn: forward,
			LabelHorizon:  s.params.LabelHorizon,
			CurrentPrice:  last.Close,
			Horizon:       s.params.MaxHorizon,
			Volatility:    vol,
			LastDate:      last.Time,
		}, s.params.Projection)
		s.metrics.ObserveStage(StageProject, time.Since(start).Seconds())
		if err != nil {
			return nil, err
		}

		summary := fitted.Summary
		rec = &core.Prediction{
			Symbol:          symbol,
			Method:          core.MethodEnsemble,
			ComputedAt:      s.cache.Now().UTC(),
			CurrentPrice:    last.Close,
			Path:            path,
			ConfidenceScore: fitted.Confidence,
			ModelAccuracy:   fitted.Accuracy,
			Volatility:      vol,
			Model:           &summary,
			Indicators:      set.Snapshot(),
		}
		rec = s.finish(rec)

		s.logger.Info("ensemble forecast computed",
			zap.String("symbol", symbol),
			zap.Int("rows", matrix.Len()),
			zap.Float64("forward_return", forward),
			zap.Float64("accuracy", fitted.Accuracy),
			zap.Duration("duration", time.Since(began)))

		s.archive(ctx, rec)
		return rec, nil
	}
}

// finish fills the horizon summary fields of a full-length record.
func (s *Service) finish(rec *core.Prediction) *core.Prediction {
	return rec.Truncate(len(rec.Path), projector.Classifier(s.params.Projection.TrendThreshold))
}

func (s *Service) archive(ctx context.Context, rec *core.Prediction) {
	if s.recorder == nil {
		return
	}
	if _, err := s.recorder.Record(ctx, rec); err != nil {
		s.metrics.RecordArchiveWrite("error")
		s.logger.Warn("archiving prediction failed", zap.String("symbol", rec.Symbol), zap.Error(err))
		return
	}
	s.metrics.RecordArchiveWrite("ok")
}

func (s *Service) observe(method core.Method, symbol string, began time.Time, err error) {
	result := "ok"
	if err != nil {
		result = ErrorCode(err)
		s.logger.Warn("forecast failed",
			zap.String("symbol", symbol),
			zap.String("method", string(method)),
			zap.Error(err))
	}
	s.metrics.RecordPrediction(string(method), result, time.Since(began).Seconds())
}

// ErrorCode returns the code of a *core.Error in err's chain, or "INTERNAL".
func ErrorCode(err error) string {
	var ce *core.Error
	if errors.As(err, &ce) {
		return ce.Code
	}
	return "INTERNAL"
}
