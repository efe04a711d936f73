package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
)

// Registry holds all Prometheus metrics. Recording methods are safe to call
// on a nil *Registry so components can run without metrics.
type Registry struct {
	*prometheus.Registry

	// HTTP metrics
	httpRequestsTotal    *prometheus.CounterVec
	httpRequestsInFlight prometheus.Gauge
	httpRequestDuration  *prometheus.HistogramVec

	// Forecast metrics
	predictionsTotal   *prometheus.CounterVec
	predictionDuration *prometheus.HistogramVec
	stageDuration      *prometheus.HistogramVec
	modelAccuracy      prometheus.Histogram
	cacheRequests      *prometheus.CounterVec
	cacheEntries       prometheus.Gauge
	warmupRuns         *prometheus.CounterVec
	archiveWrites      *prometheus.CounterVec
}

// NewRegistry creates a new metrics registry with all metrics registered.
func NewRegistry() *Registry {
	reg := prometheus.NewRegistry()

	// Register Go runtime metrics
	reg.MustRegister(collectors.NewGoCollector())
	reg.MustRegister(collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))

	r := &Registry{
		Registry: reg,

		httpRequestsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "http_requests_total",
				Help: "Total number of HTTP requests",
			},
			[]string{"method", "path", "status"},
		),

		httpRequestDuration: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "http_request_duration_seconds",
				Help:    "HTTP request duration in seconds",
				Buckets: prometheus.DefBuckets,
			},
			[]string{"method", "path"},
		),

		httpRequestsInFlight: prometheus.NewGauge(
			prometheus.GaugeOpts{
				Name: "http_requests_in_flight",
				Help: "Number of HTTP requests currently in flight",
			},
		),
	}

	reg.MustRegister(r.httpRequestsTotal)
	reg.MustRegister(r.httpRequestDuration)
	reg.MustRegister(r.httpRequestsInFlight)

	r.predictionsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "foresight_predictions_total",
			Help: "Total number of prediction computations by method and result",
		},
		[]string{"method", "result"},
	)
	r.predictionDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "foresight_prediction_duration_seconds",
			Help:    "Full pipeline duration of a prediction computation",
			Buckets: []float64{0.05, 0.1, 0.25, 0.5, 1, 2.5, 5, 10, 30, 60},
		},
		[]string{"method"},
	)
	r.stageDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "foresight_stage_duration_seconds",
			Help:    "Duration of individual pipeline stages",
			Buckets: []float64{0.001, 0.005, 0.01, 0.05, 0.1, 0.5, 1, 5, 10, 30},
		},
		[]string{"stage"},
	)
	r.modelAccuracy = prometheus.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "foresight_model_holdout_accuracy",
			Help:    "Holdout accuracy score of fitted models",
			Buckets: []float64{0.5, 0.8, 0.9, 0.95, 0.97, 0.98, 0.99, 1},
		},
	)
	r.cacheRequests = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "foresight_cache_requests_total",
			Help: "Prediction cache lookups by outcome",
		},
		[]string{"outcome"},
	)
	r.cacheEntries = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Name: "foresight_cache_entries",
			Help: "Number of predictions held in the cache",
		},
	)
	r.warmupRuns = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "foresight_warmup_runs_total",
			Help: "Scheduled cache warm-up refreshes by result",
		},
		[]string{"result"},
	)
	r.archiveWrites = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "foresight_archive_writes_total",
			Help: "Predictions written to the archive by result",
		},
		[]string{"result"},
	)

	reg.MustRegister(r.predictionsTotal)
	reg.MustRegister(r.predictionDuration)
	reg.MustRegister(r.stageDuration)
	reg.MustRegister(r.modelAccuracy)
	reg.MustRegister(r.cacheRequests)
	reg.MustRegister(r.cacheEntries)
	reg.MustRegister(r.warmupRuns)
	reg.MustRegister(r.archiveWrites)

	return r
}

// RecordRequest records metrics for an HTTP request.
func (r *Registry) RecordRequest(method, path string, status int, duration float64) {
	if r == nil {
		return
	}
	statusStr := statusToString(status)
	r.httpRequestsTotal.WithLabelValues(method, path, statusStr).Inc()
	r.httpRequestDuration.WithLabelValues(method, path).Observe(duration)
}

// InFlightInc increments in-flight requests.
func (r *Registry) InFlightInc() {
	if r == nil {
		return
	}
	r.httpRequestsInFlight.Inc()
}

// InFlightDec decrements in-flight requests.
func (r *Registry) InFlightDec() {
	if r == nil {
		return
	}
	r.httpRequestsInFlight.Dec()
}

// RecordPrediction records one pipeline run. result is "ok" or an error code.
func (r *Registry) RecordPrediction(method, result string, duration float64) {
	if r == nil {
		return
	}
	r.predictionsTotal.WithLabelValues(method, result).Inc()
	r.predictionDuration.WithLabelValues(method).Observe(duration)
}

// ObserveStage records the duration of a pipeline stage.
func (r *Registry) ObserveStage(stage string, duration float64) {
	if r == nil {
		return
	}
	r.stageDuration.WithLabelValues(stage).Observe(duration)
}

// ObserveAccuracy records a fitted model's holdout accuracy.
func (r *Registry) ObserveAccuracy(accuracy float64) {
	if r == nil {
		return
	}
	r.modelAccuracy.Observe(accuracy)
}

// RecordCacheOutcome counts a cache lookup by outcome (hit, miss, shared).
func (r *Registry) RecordCacheOutcome(outcome string) {
	if r == nil {
		return
	}
	r.cacheRequests.WithLabelValues(outcome).Inc()
}

// SetCacheEntries sets the current cache size.
func (r *Registry) SetCacheEntries(n int) {
	if r == nil {
		return
	}
	r.cacheEntries.Set(float64(n))
}

// RecordWarmup counts a scheduled refresh.
func (r *Registry) RecordWarmup(result string) {
	if r == nil {
		return
	}
	r.warmupRuns.WithLabelValues(result).Inc()
}

// RecordArchiveWrite counts a prediction archive write.
func (r *Registry) RecordArchiveWrite(result string) {
	if r == nil {
		return
	}
	r.archiveWrites.WithLabelValues(result).Inc()
}

func statusToString(status int) string {
	switch {
	case status >= 500:
		return "5xx"
	case status >= 400:
		return "4xx"
	case status >= 300:
		return "3xx"
	case status >= 200:
		return "2xx"
	default:
		return "1xx"
	}
}
