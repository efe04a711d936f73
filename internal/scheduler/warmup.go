package scheduler

import (
	"context"
	"sync/atomic"
	"time"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/newthinker/foresight/internal/forecast"
	"github.com/newthinker/foresight/internal/metrics"
)

// Refresher recomputes the forecast of one symbol.
type Refresher interface {
	Refresh(ctx context.Context, symbol string) (*forecast.Result, error)
}

// Warmup refreshes a watchlist of symbols.
type Warmup struct {
	refresher   Refresher
	symbols     []string
	concurrency int
	metrics     *metrics.Registry
	logger      *zap.Logger

	running atomic.Bool
}

// Report summarises one warm-up run.
type Report struct {
	Refreshed int
	Failed    int
	Duration  time.Duration
	Skipped   bool // another run was still in progress
}

// NewWarmup creates a warm-up over symbols with at most concurrency
// refreshes in flight. metrics may be nil.
func NewWarmup(r Refresher, symbols []string, concurrency int, m *metrics.Registry, logger *zap.Logger) *Warmup {
	if concurrency < 1 {
		concurrency = 1
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Warmup{
		refresher:   r,
		symbols:     append([]string(nil), symbols...),
		concurrency: concurrency,
		metrics:     m,
		logger:      logger,
	}
}

// Run refreshes every symbol once. Individual failures are logged and
// counted; they never stop the run. A Run that starts while another is in
// progress returns immediately with Skipped set.
func (w *Warmup) Run(ctx context.Context) Report {
	if !w.running.CompareAndSwap(false, true) {
		w.logger.Info("cache warm-up already running, skipping")
		return Report{Skipped: true}
	}
	defer w.running.Store(false)

	start := time.Now()
	var ok, failed atomic.Int64

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(w.concurrency)
	for _, sym := range w.symbols {
		g.Go(func() error {
			if gctx.Err() != nil {
				failed.Add(1)
				w.metrics.RecordWarmup("error")
				return nil
			}
			if _, err := w.refresher.Refresh(gctx, sym); err != nil {
				failed.Add(1)
				w.metrics.RecordWarmup("error")
				w.logger.Warn("warm-up refresh failed", zap.String("symbol", sym), zap.Error(err))
				return nil
			}
			ok.Add(1)
			w.metrics.RecordWarmup("ok")
			return nil
		})
	}
	_ = g.Wait()

	rep := Report{Refreshed: int(ok.Load()), Failed: int(failed.Load()), Duration: time.Since(start)}
	w.logger.Info("cache warm-up finished",
		zap.Int("refreshed", rep.Refreshed),
		zap.Int("failed", rep.Failed),
		zap.Duration("duration", rep.Duration))
	return rep
}

// Running reports whether a run is in progress.
func (w *Warmup) Running() bool { return w.running.Load() }

// Schedule registers the warm-up on r.
func (w *Warmup) Schedule(r *Runner, spec string) error {
	_, err := r.Add(spec, func(ctx context.Context) { w.Run(ctx) })
	return err
}
