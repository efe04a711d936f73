package memory

import (
	"math"
	"math/rand"
	"time"

	"github.com/newthinker/foresight/internal/core"
)

// Walk parameterises a synthetic daily price series.
type Walk struct {
	Start      time.Time // first bar date; zero means 2023-01-02
	StartPrice float64   // zero means 100
	Drift      float64   // mean daily return, e.g. 0.001
	Noise      float64   // daily return standard deviation
	Volume     int64     // mean daily volume; zero means 1,000,000
	Seed       int64
}

// Generate builds n business-day bars following a seeded geometric walk:
// close[i] = close[i-1] · (1 + Drift + Noise·z).
func Generate(symbol string, n int, w Walk) []core.OHLCV {
	if w.Start.IsZero() {
		w.Start = time.Date(2023, 1, 2, 0, 0, 0, 0, time.UTC)
	}
	if w.StartPrice == 0 {
		w.StartPrice = 100
	}
	if w.Volume == 0 {
		w.Volume = 1_000_000
	}

	rng := rand.New(rand.NewSource(w.Seed))
	bars := make([]core.OHLCV, 0, n)
	date := w.Start
	if !core.IsBusinessDay(date) {
		date = core.NextBusinessDay(date)
	}

	prev := w.StartPrice
	for i := 0; i < n; i++ {
		ret := w.Drift + w.Noise*rng.NormFloat64()
		closePrice := math.Max(prev*(1+ret), 0.01)
		open := prev
		wick := 0.001 + 0.004*math.Abs(rng.NormFloat64())
		high := math.Max(open, closePrice) * (1 + wick)
		low := math.Min(open, closePrice) * (1 - wick)
		vol := float64(w.Volume) * (1 + 0.2*rng.NormFloat64())
		if vol < 1 {
			vol = 1
		}

		bars = append(bars, core.OHLCV{
			Symbol:   symbol,
			Interval: "1d",
			Open:     open,
			High:     high,
			Low:      low,
			Close:    closePrice,
			Volume:   int64(vol),
			Time:     date,
		})

		prev = closePrice
		date = core.NextBusinessDay(date)
	}
	return bars
}
