// internal/api/handler/api/warmup.go
package api

import (
	"context"
	"net/http"
	"sync/atomic"

	"github.com/newthinker/foresight/internal/api/response"
	"github.com/newthinker/foresight/internal/scheduler"
)

// WarmupRunner refreshes the configured watchlist.
type WarmupRunner interface {
	Run(ctx context.Context) scheduler.Report
}

// WarmupHandler triggers an out-of-schedule cache warm-up.
type WarmupHandler struct {
	runner  WarmupRunner
	symbols []string
	baseCtx context.Context
	running atomic.Bool
}

// NewWarmupHandler creates a new warm-up handler. Triggered runs use
// baseCtx so they outlive the request.
func NewWarmupHandler(baseCtx context.Context, runner WarmupRunner, symbols []string) *WarmupHandler {
	if baseCtx == nil {
		baseCtx = context.Background()
	}
	return &WarmupHandler{runner: runner, symbols: symbols, baseCtx: baseCtx}
}

// Trigger handles POST /cache/warmup. At most one triggered run is in
// progress; a request arriving meanwhile reports it instead of starting
// another.
func (h *WarmupHandler) Trigger(w http.ResponseWriter, r *http.Request) {
	if !h.running.CompareAndSwap(false, true) {
		response.JSON(w, http.StatusAccepted, map[string]any{
			"triggered":       false,
			"already_running": true,
			"symbols_count":   len(h.symbols),
		})
		return
	}

	// Run warm-up in background
	go func() {
		defer h.running.Store(false)
		h.runner.Run(h.baseCtx)
	}()

	response.JSON(w, http.StatusAccepted, map[string]any{
		"triggered":     true,
		"symbols_count": len(h.symbols),
	})
}
