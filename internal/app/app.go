package app

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/newthinker/foresight/internal/api"
	"github.com/newthinker/foresight/internal/cache"
	"github.com/newthinker/foresight/internal/collector"
	"github.com/newthinker/foresight/internal/collector/yahoo"
	"github.com/newthinker/foresight/internal/config"
	"github.com/newthinker/foresight/internal/core"
	"github.com/newthinker/foresight/internal/forecast"
	"github.com/newthinker/foresight/internal/metrics"
	"github.com/newthinker/foresight/internal/model"
	"github.com/newthinker/foresight/internal/projector"
	"github.com/newthinker/foresight/internal/scheduler"
	"github.com/newthinker/foresight/internal/storage/archive"
)

// shutdownTimeout bounds graceful HTTP shutdown.
const shutdownTimeout = 30 * time.Second

// App wires configuration into the forecasting components.
type App struct {
	cfg        *config.Config
	logger     *zap.Logger
	collectors *collector.Registry
	metrics    *metrics.Registry
	cache      *cache.Cache
	redis      *cache.RedisStore
	recorder   *archive.Recorder
	service    *forecast.Service
	warmup     *scheduler.Warmup

	extra []collector.Collector

	mu      sync.Mutex
	running bool
}

// Option configures an App.
type Option func(*App)

// WithCollector registers an additional collector, selectable through
// provider.name.
func WithCollector(c collector.Collector) Option {
	return func(a *App) { a.extra = append(a.extra, c) }
}

// New builds every component described by cfg. It connects to Redis when
// the second cache tier is enabled.
func New(ctx context.Context, cfg *config.Config, logger *zap.Logger, opts ...Option) (*App, error) {
	if logger == nil {
		logger = zap.NewNop()
	}
	a := &App{cfg: cfg, logger: logger}
	for _, opt := range opts {
		opt(a)
	}

	if cfg.Metrics.Enabled {
		a.metrics = metrics.NewRegistry()
	}

	a.collectors = collector.NewRegistry()
	yopts := []yahoo.Option{yahoo.WithTimeout(cfg.Provider.Timeout)}
	if cfg.Provider.BaseURL != "" {
		yopts = append(yopts, yahoo.WithBaseURL(cfg.Provider.BaseURL))
	}
	a.collectors.Register(yahoo.New(yopts...))
	for _, c := range a.extra {
		a.collectors.Register(c)
	}
	source, err := a.collectors.Select(cfg.Provider.Name)
	if err != nil {
		return nil, err
	}

	cacheOpts := []cache.Option{
		cache.WithLogger(logger.Named("cache")),
		cache.WithObserver(func(o cache.Outcome) { a.metrics.RecordCacheOutcome(string(o)) }),
	}
	if cfg.Cache.Redis.Enabled {
		a.redis, err = cache.NewRedisStore(ctx, cache.RedisConfig{
			Addr:     cfg.Cache.Redis.Addr,
			Password: cfg.Cache.Redis.Password,
			DB:       cfg.Cache.Redis.DB,
			Prefix:   cfg.Cache.Redis.Prefix,
		})
		if err != nil {
			return nil, err
		}
		cacheOpts = append(cacheOpts, cache.WithStore(a.redis))
	}
	a.cache = cache.New(cfg.Cache.TTL, cacheOpts...)

	a.recorder, err = newRecorder(cfg.Archive, logger.Named("archive"))
	if err != nil {
		a.Close()
		return nil, err
	}

	svcOpts := []forecast.Option{
		forecast.WithLogger(logger.Named("forecast")),
		forecast.WithMetrics(a.metrics),
	}
	if a.recorder != nil {
		svcOpts = append(svcOpts, forecast.WithRecorder(a.recorder))
	}
	a.service = forecast.New(source, a.cache, ForecastParams(cfg), svcOpts...)

	if len(cfg.Scheduler.Symbols) > 0 {
		a.warmup = scheduler.NewWarmup(a.service, cfg.Scheduler.Symbols,
			cfg.Server.BatchConcurrency, a.metrics, logger.Named("warmup"))
	}

	logger.Info("application initialised",
		zap.String("provider", source.Name()),
		zap.Bool("redis", a.redis != nil),
		zap.String("archive", cfg.Archive.Type),
		zap.Int("watchlist", len(cfg.Scheduler.Symbols)))
	return a, nil
}

func newRecorder(cfg config.ArchiveConfig, logger *zap.Logger) (*archive.Recorder, error) {
	var store archive.Storage
	switch cfg.Type {
	case "", "none":
		return nil, nil
	case "localfs":
		fs, err := archive.NewLocalFS(cfg.Path)
		if err != nil {
			return nil, fmt.Errorf("creating local archive: %w", err)
		}
		store = fs
	case "s3":
		s3, err := archive.NewS3(archive.S3Config{
			Bucket:    cfg.S3.Bucket,
			Endpoint:  cfg.S3.Endpoint,
			Region:    cfg.S3.Region,
			AccessKey: cfg.S3.AccessKey,
			SecretKey: cfg.S3.SecretKey,
			Prefix:    cfg.S3.Prefix,
		})
		if err != nil {
			return nil, err
		}
		store = s3
	default:
		return nil, core.Errorf(core.ErrConfigInvalid, "unknown archive type %q", cfg.Type)
	}
	return archive.NewRecorder(store, logger), nil
}

// ForecastParams maps configuration onto pipeline parameters.
func ForecastParams(cfg *config.Config) forecast.Params {
	f := cfg.Forecast
	return forecast.Params{
		LabelHorizon:     f.LabelHorizon,
		Lookback:         cfg.Provider.Lookback(),
		VolatilityWindow: f.VolatilityWindow,
		DefaultHorizon:   f.DefaultHorizon,
		MaxHorizon:       f.MaxHorizon,
		ComputeTimeout:   f.ComputeTimeout,
		BatchConcurrency: cfg.Server.BatchConcurrency,
		MaxBatch:         cfg.Server.MaxBatch,
		Model: model.Params{
			Estimators:      f.Estimators,
			MaxDepth:        f.MaxDepth,
			MinLeaf:         f.MinLeaf,
			MaxFeatures:     f.MaxFeatures,
			Seed:            f.Seed,
			HoldoutFraction: f.HoldoutFraction,
			MinRows:         f.MinRows,
		},
		Projection: projector.Params{
			BandZ:          f.BandZ,
			HalfLife:       f.ReturnHalfLife,
			TrendThreshold: f.TrendThreshold,
		},
	}
}

// Service returns the forecasting façade.
func (a *App) Service() *forecast.Service { return a.service }

// Metrics returns the metrics registry, nil when metrics are disabled.
func (a *App) Metrics() *metrics.Registry { return a.metrics }

// Collectors returns the registered collectors.
func (a *App) Collectors() *collector.Registry { return a.collectors }

// Warmup returns the watchlist warm-up, nil without scheduler symbols.
func (a *App) Warmup() *scheduler.Warmup { return a.warmup }

// NewServer builds the HTTP API over the app's components. ctx parents
// background work started by handlers.
func (a *App) NewServer(ctx context.Context) (*api.Server, error) {
	metricsPath := ""
	if a.cfg.Metrics.Enabled {
		metricsPath = a.cfg.Metrics.Path
	}
	deps := api.Dependencies{
		Forecaster:    a.service,
		Metrics:       a.metrics,
		WarmupSymbols: a.cfg.Scheduler.Symbols,
		BaseCtx:       ctx,
	}
	if a.warmup != nil {
		deps.Warmup = a.warmup
	}
	return api.NewServer(api.Config{
		Host:           a.cfg.Server.Host,
		Port:           a.cfg.Server.Port,
		APIKey:         a.cfg.Server.APIKey,
		RequestTimeout: a.cfg.Server.RequestTimeout,
		MetricsPath:    metricsPath,
	}, deps, a.logger.Named("http"))
}

// Run serves HTTP and the warm-up schedule until ctx is cancelled, then
// shuts both down gracefully.
func (a *App) Run(ctx context.Context) error {
	a.mu.Lock()
	if a.running {
		a.mu.Unlock()
		return fmt.Errorf("app already running")
	}
	a.running = true
	a.mu.Unlock()
	defer func() {
		a.mu.Lock()
		a.running = false
		a.mu.Unlock()
	}()

	server, err := a.NewServer(ctx)
	if err != nil {
		return fmt.Errorf("creating server: %w", err)
	}

	var runner *scheduler.Runner
	if a.cfg.Scheduler.Enabled && a.warmup != nil {
		runner = scheduler.New(a.logger.Named("scheduler"), ctx)
		if err := a.warmup.Schedule(runner, a.cfg.Scheduler.Spec); err != nil {
			return err
		}
		runner.Start()
		defer runner.Stop()
	}

	errCh := make(chan error, 1)
	go func() { errCh <- server.Start() }()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	if err := server.Shutdown(shutdownCtx); err != nil && !errors.Is(err, context.Canceled) {
		return fmt.Errorf("shutting down server: %w", err)
	}
	return nil
}

// Close releases external connections.
func (a *App) Close() error {
	if a.redis != nil {
		return a.redis.Close()
	}
	return nil
}
