// Package memory provides an in-process collector backed by fixed bar series.
// It serves offline runs and tests.
package memory

import (
	"context"
	"sync"
	"sync/atomic"
	"time"

	"github.com/newthinker/foresight/internal/collector"
	"github.com/newthinker/foresight/internal/core"
)

// Memory serves preloaded OHLCV series.
type Memory struct {
	mu     sync.RWMutex
	series map[string][]core.OHLCV
	errs   map[string]error
	delay  time.Duration
	calls  atomic.Int64
}

// New creates an empty in-memory collector.
func New() *Memory {
	return &Memory{
		series: make(map[string][]core.OHLCV),
		errs:   make(map[string]error),
	}
}

var _ collector.Collector = (*Memory)(nil)

func (m *Memory) Name() string {
	return "memory"
}

// Set stores the bar series served for symbol.
func (m *Memory) Set(symbol string, bars []core.OHLCV) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.series[symbol] = collector.Clean(bars)
	delete(m.errs, symbol)
}

// Fail makes every fetch of symbol return err.
func (m *Memory) Fail(symbol string, err error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.errs[symbol] = err
}

// SetDelay adds latency to every fetch.
func (m *Memory) SetDelay(d time.Duration) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.delay = d
}

// Calls returns how many fetches have been served.
func (m *Memory) Calls() int64 {
	return m.calls.Load()
}

// FetchHistory returns the bars of symbol within lookback of its latest bar.
func (m *Memory) FetchHistory(ctx context.Context, symbol string, lookback time.Duration) ([]core.OHLCV, error) {
	m.calls.Add(1)

	m.mu.RLock()
	bars, ok := m.series[symbol]
	failure := m.errs[symbol]
	delay := m.delay
	m.mu.RUnlock()

	if delay > 0 {
		select {
		case <-time.After(delay):
		case <-ctx.Done():
			return nil, core.WrapError(core.ErrTimeout, ctx.Err())
		}
	}
	if failure != nil {
		return nil, failure
	}
	if !ok || len(bars) == 0 {
		return nil, core.Errorf(core.ErrSymbolNotFound, "no series loaded for %s", symbol)
	}

	from := 0
	if lookback > 0 {
		cutoff := bars[len(bars)-1].Time.Add(-lookback)
		for from < len(bars) && bars[from].Time.Before(cutoff) {
			from++
		}
	}
	return append([]core.OHLCV(nil), bars[from:]...), nil
}
