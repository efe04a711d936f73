// internal/api/handler/api/archive.go
package api

import (
	"context"
	"net/http"

	"github.com/newthinker/foresight/internal/api/response"
	"github.com/newthinker/foresight/internal/core"
)

const defaultHistoryLimit = 20

// HistoryReader lists archived predictions.
type HistoryReader interface {
	History(ctx context.Context, symbol string, limit int) ([]*core.Prediction, error)
}

// ArchiveHandler serves archived predictions.
type ArchiveHandler struct {
	history HistoryReader
}

// NewArchiveHandler creates a new archive handler.
func NewArchiveHandler(h HistoryReader) *ArchiveHandler {
	return &ArchiveHandler{history: h}
}

// History handles GET /archive/{symbol}?limit=N
func (h *ArchiveHandler) History(w http.ResponseWriter, r *http.Request) {
	limit, err := intQuery(r, "limit")
	if err != nil {
		response.Fail(w, err)
		return
	}
	if limit == 0 {
		limit = defaultHistoryLimit
	}

	records, err := h.history.History(r.Context(), r.PathValue("symbol"), limit)
	if err != nil {
		response.Fail(w, err)
		return
	}
	response.JSON(w, http.StatusOK, map[string]any{
		"predictions": records,
		"count":       len(records),
	})
}
