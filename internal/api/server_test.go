// internal/api/server_test.go
package api

import (
	"bytes"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"go.uber.org/zap"

	"github.com/newthinker/foresight/internal/cache"
	"github.com/newthinker/foresight/internal/collector/memory"
	"github.com/newthinker/foresight/internal/forecast"
	"github.com/newthinker/foresight/internal/metrics"
)

func testDeps(t *testing.T) Dependencies {
	t.Helper()
	mem := memory.New()
	mem.Set("AAPL", memory.Generate("AAPL", 400, memory.Walk{Drift: 0.001, Noise: 0.001, Seed: 7}))
	p := forecast.DefaultParams()
	p.Model.Estimators = 10
	reg := metrics.NewRegistry()
	pc := cache.New(time.Hour, cache.WithObserver(func(o cache.Outcome) { reg.RecordCacheOutcome(string(o)) }))
	return Dependencies{
		Forecaster: forecast.New(mem, pc, p, forecast.WithMetrics(reg)),
		Metrics:    reg,
	}
}

func newTestServer(t *testing.T, cfg Config) *Server {
	t.Helper()
	srv, err := NewServer(cfg, testDeps(t), zap.NewNop())
	if err != nil {
		t.Fatalf("failed to create server: %v", err)
	}
	return srv
}

func do(srv *Server, method, path string, body string, header map[string]string) *httptest.ResponseRecorder {
	var req *http.Request
	if body != "" {
		req = httptest.NewRequest(method, path, bytes.NewBufferString(body))
	} else {
		req = httptest.NewRequest(method, path, nil)
	}
	for k, v := range header {
		req.Header.Set(k, v)
	}
	w := httptest.NewRecorder()
	srv.Handler().ServeHTTP(w, req)
	return w
}

func TestServer_Health(t *testing.T) {
	srv := newTestServer(t, Config{Host: "localhost", Port: 0, APIKey: "test-key"})

	w := do(srv, "GET", "/health", "", nil)
	if w.Code != http.StatusOK {
		t.Errorf("expected 200, got %d", w.Code)
	}
	if !strings.Contains(w.Body.String(), `"healthy"`) {
		t.Errorf("expected healthy status, got %s", w.Body.String())
	}
	if w.Header().Get("X-Request-ID") == "" {
		t.Error("expected request id header")
	}
}

func TestNewServer_RequiresForecaster(t *testing.T) {
	if _, err := NewServer(Config{}, Dependencies{}, nil); err == nil {
		t.Error("expected error without forecaster")
	}
}

func TestServer_APIAuth_Required(t *testing.T) {
	srv := newTestServer(t, Config{Host: "localhost", Port: 0, APIKey: "test-key"})

	// Without API key
	w := do(srv, "GET", "/cache/status", "", nil)
	if w.Code != http.StatusUnauthorized {
		t.Errorf("expected 401 without key, got %d", w.Code)
	}
}

func TestServer_APIAuth_ValidKey(t *testing.T) {
	srv := newTestServer(t, Config{Host: "localhost", Port: 0, APIKey: "test-key"})

	// With API key
	w := do(srv, "GET", "/cache/status", "", map[string]string{"X-API-Key": "test-key"})
	if w.Code != http.StatusOK {
		t.Errorf("expected 200 with key, got %d", w.Code)
	}
}

func TestServer_APIAuth_Disabled(t *testing.T) {
	// Empty APIKey = disabled auth
	srv := newTestServer(t, Config{Host: "localhost", Port: 0})

	w := do(srv, "GET", "/cache/status", "", nil)
	if w.Code != http.StatusOK {
		t.Errorf("expected 200 with disabled auth, got %d", w.Code)
	}
}

func TestServer_PredictAndMetrics(t *testing.T) {
	srv := newTestServer(t, Config{Host: "localhost", Port: 0, RequestTimeout: time.Minute, MetricsPath: "/metrics"})

	w := do(srv, "GET", "/predict/AAPL?days=7", "", nil)
	if w.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", w.Code, w.Body.String())
	}
	if !strings.Contains(w.Body.String(), `"processing_ms"`) {
		t.Errorf("expected processing_ms in meta, got %s", w.Body.String())
	}

	w = do(srv, "GET", "/metrics", "", nil)
	if w.Code != http.StatusOK {
		t.Fatalf("expected 200 from metrics, got %d", w.Code)
	}
	body := w.Body.String()
	for _, want := range []string{
		`http_requests_total{method="GET",path="GET /predict/{symbol}",status="2xx"} 1`,
		`foresight_predictions_total{method="ensemble",result="ok"} 1`,
		`foresight_cache_requests_total{outcome="miss"} 1`,
	} {
		if !strings.Contains(body, want) {
			t.Errorf("metrics missing %q", want)
		}
	}
}

func TestServer_MethodNotAllowed(t *testing.T) {
	srv := newTestServer(t, Config{Host: "localhost", Port: 0})

	w := do(srv, "GET", "/predict-batch", "", nil)
	if w.Code != http.StatusMethodNotAllowed {
		t.Errorf("expected 405, got %d", w.Code)
	}
}

func TestServer_Batch(t *testing.T) {
	srv := newTestServer(t, Config{Host: "localhost", Port: 0})

	w := do(srv, "POST", "/predict-batch", `{"symbols":["AAPL","MISSING"],"days":5}`, nil)
	if w.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", w.Code, w.Body.String())
	}
	if !strings.Contains(w.Body.String(), `"SYMBOL_NOT_FOUND"`) {
		t.Errorf("expected per-symbol failure, got %s", w.Body.String())
	}
}
