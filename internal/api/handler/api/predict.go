// internal/api/handler/api/predict.go
package api

import (
	"context"
	"net/http"
	"time"

	"github.com/newthinker/foresight/internal/api/response"
	"github.com/newthinker/foresight/internal/forecast"
)

// Forecaster is the part of forecast.Service the prediction routes need.
type Forecaster interface {
	Predict(ctx context.Context, symbol string, days int) (*forecast.Result, error)
	PredictSimple(ctx context.Context, symbol string, days int) (*forecast.Result, error)
	PredictBatch(ctx context.Context, symbols []string, days int) ([]forecast.BatchItem, error)
}

// PredictHandler serves single and batch forecasts.
type PredictHandler struct {
	svc Forecaster
}

// NewPredictHandler creates a new prediction handler.
func NewPredictHandler(svc Forecaster) *PredictHandler {
	return &PredictHandler{svc: svc}
}

// BatchRequest is the body of POST /predict-batch.
type BatchRequest struct {
	Symbols []string `json:"symbols" validate:"required,min=1,dive,required"`
	Days    int      `json:"days" default:"30" validate:"gte=1,lte=365"`
}

// BatchResponse lists per-symbol outcomes in request order.
type BatchResponse struct {
	Results   []forecast.BatchItem `json:"results"`
	Succeeded int                  `json:"succeeded"`
	Failed    int                  `json:"failed"`
}

// Predict handles GET /predict/{symbol}?days=N
func (h *PredictHandler) Predict(w http.ResponseWriter, r *http.Request) {
	h.single(w, r, h.svc.Predict)
}

// PredictSimple handles GET /predict-simple/{symbol}?days=N
func (h *PredictHandler) PredictSimple(w http.ResponseWriter, r *http.Request) {
	h.single(w, r, h.svc.PredictSimple)
}

type predictFunc func(ctx context.Context, symbol string, days int) (*forecast.Result, error)

func (h *PredictHandler) single(w http.ResponseWriter, r *http.Request, predict predictFunc) {
	start := time.Now()
	days, err := intQuery(r, "days")
	if err != nil {
		response.Fail(w, err)
		return
	}

	res, err := predict(r.Context(), r.PathValue("symbol"), days)
	if err != nil {
		response.Fail(w, err)
		return
	}
	response.Served(w, res.Prediction, res.Cached, start)
}

// Batch handles POST /predict-batch
func (h *PredictHandler) Batch(w http.ResponseWriter, r *http.Request) {
	start := time.Now()
	var req BatchRequest
	if err := readAndValidate(r, &req); err != nil {
		response.Fail(w, err)
		return
	}

	items, err := h.svc.PredictBatch(r.Context(), req.Symbols, req.Days)
	if err != nil {
		response.Fail(w, err)
		return
	}

	resp := BatchResponse{Results: items}
	allCached := true
	for _, it := range items {
		if it.Success {
			resp.Succeeded++
		} else {
			resp.Failed++
		}
		allCached = allCached && it.Cached
	}
	response.Served(w, resp, allCached, start)
}
