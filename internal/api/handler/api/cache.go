// internal/api/handler/api/cache.go
package api

import (
	"context"
	"net/http"
	"time"

	"github.com/newthinker/foresight/internal/api/response"
	"github.com/newthinker/foresight/internal/cache"
)

// CacheAdmin inspects and clears the prediction cache.
type CacheAdmin interface {
	CacheStatus() []cache.EntryStatus
	ClearCache(ctx context.Context, symbol string) (int, error)
	CacheTTL() time.Duration
}

// CacheHandler handles cache API requests.
type CacheHandler struct {
	admin CacheAdmin
}

// NewCacheHandler creates a new cache handler.
func NewCacheHandler(admin CacheAdmin) *CacheHandler {
	return &CacheHandler{admin: admin}
}

// Status handles GET /cache/status
func (h *CacheHandler) Status(w http.ResponseWriter, r *http.Request) {
	entries := h.admin.CacheStatus()
	counts := map[cache.State]int{}
	for _, e := range entries {
		counts[e.State]++
	}
	response.JSON(w, http.StatusOK, map[string]any{
		"entries":   entries,
		"total":     len(entries),
		"fresh":     counts[cache.StateFresh],
		"stale":     counts[cache.StateStale],
		"computing": counts[cache.StateComputing],
		"ttl_hours": h.admin.CacheTTL().Hours(),
	})
}

// Clear handles POST /cache/clear[?symbol=SYM]
func (h *CacheHandler) Clear(w http.ResponseWriter, r *http.Request) {
	symbol := r.URL.Query().Get("symbol")
	removed, err := h.admin.ClearCache(r.Context(), symbol)
	if err != nil {
		response.Fail(w, err)
		return
	}

	scope := "all"
	if symbol != "" {
		scope = symbol
	}
	response.JSON(w, http.StatusOK, map[string]any{
		"cleared": scope,
		"removed": removed,
	})
}
