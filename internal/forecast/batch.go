package forecast

import (
	"context"
	"errors"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/newthinker/foresight/internal/core"
)

// BatchError is the failure of one symbol within a batch.
type BatchError struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}

// BatchItem is the outcome for one requested symbol.
type BatchItem struct {
	Symbol  string           `json:"symbol"`
	Success bool             `json:"success"`
	Cached  bool             `json:"cached,omitempty"`
	Data    *core.Prediction `json:"data,omitempty"`
	Error   *BatchError      `json:"error,omitempty"`
}

// PredictBatch forecasts every symbol with bounded concurrency. Results keep
// request order; a failing symbol never aborts the others.
func (s *Service) PredictBatch(ctx context.Context, symbols []string, days int) ([]BatchItem, error) {
	if len(symbols) == 0 {
		return nil, core.Errorf(core.ErrInvalidRequest, "symbols cannot be empty")
	}
	if s.params.MaxBatch > 0 && len(symbols) > s.params.MaxBatch {
		return nil, core.Errorf(core.ErrInvalidRequest, "at most %d symbols per batch, got %d", s.params.MaxBatch, len(symbols))
	}
	if _, err := s.validateDays(days); err != nil {
		return nil, err
	}

	items := make([]BatchItem, len(symbols))
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(s.params.BatchConcurrency)
	for i, sym := range symbols {
		g.Go(func() error {
			items[i] = s.batchItem(gctx, sym, days)
			return nil
		})
	}
	_ = g.Wait()

	failed := 0
	for _, it := range items {
		if !it.Success {
			failed++
		}
	}
	s.logger.Info("batch forecast finished",
		zap.Int("symbols", len(symbols)),
		zap.Int("failed", failed))
	return items, nil
}

func (s *Service) batchItem(ctx context.Context, symbol string, days int) BatchItem {
	item := BatchItem{Symbol: symbol}
	if sym, err := core.NormalizeSymbol(symbol); err == nil {
		item.Symbol = sym
	}

	res, err := s.Predict(ctx, symbol, days)
	if err != nil {
		item.Error = toBatchError(err)
		return item
	}
	item.Success = true
	item.Cached = res.Cached
	item.Data = res.Prediction
	return item
}

func toBatchError(err error) *BatchError {
	var ce *core.Error
	if errors.As(err, &ce) {
		msg := ce.Message
		if ce.Cause != nil {
			msg += ": " + ce.Cause.Error()
		}
		return &BatchError{Code: ce.Code, Message: msg}
	}
	return &BatchError{Code: "INTERNAL", Message: err.Error()}
}
