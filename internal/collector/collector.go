package collector

import (
	"context"
	"sort"
	"time"

	"github.com/newthinker/foresight/internal/core"
)

// Collector fetches daily OHLCV history for a symbol.
//
// Implementations must return bars in strictly increasing time order and
// report failures as core.ErrSymbolNotFound or core.ErrProviderUnavailable.
type Collector interface {
	Name() string
	FetchHistory(ctx context.Context, symbol string, lookback time.Duration) ([]core.OHLCV, error)
}

// Clean sorts bars by time, drops duplicate timestamps (last one wins) and
// bars without a positive close. The input slice is not modified.
func Clean(bars []core.OHLCV) []core.OHLCV {
	out := make([]core.OHLCV, 0, len(bars))
	for _, b := range bars {
		if b.Close > 0 {
			out = append(out, b)
		}
	}
	sort.SliceStable(out, func(i, j int) bool { return out[i].Time.Before(out[j].Time) })

	deduped := out[:0]
	for _, b := range out {
		if n := len(deduped); n > 0 && deduped[n-1].Time.Equal(b.Time) {
			deduped[n-1] = b
			continue
		}
		deduped = append(deduped, b)
	}
	return deduped
}
