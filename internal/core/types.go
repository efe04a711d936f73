package core

import (
	"regexp"
	"strings"
	"time"
)

// OHLCV represents a candlestick/bar
type OHLCV struct {
	Symbol   string    `json:"symbol"`
	Interval string    `json:"interval"` // "1d"
	Open     float64   `json:"open"`
	High     float64   `json:"high"`
	Low      float64   `json:"low"`
	Close    float64   `json:"close"`
	Volume   int64     `json:"volume"`
	Time     time.Time `json:"time"`
}

// Closes extracts closing prices in bar order.
func Closes(bars []OHLCV) []float64 {
	out := make([]float64, len(bars))
	for i, b := range bars {
		out[i] = b.Close
	}
	return out
}

// Trend is the directional classification of a forecast.
type Trend string

const (
	TrendBullish Trend = "bullish"
	TrendBearish Trend = "bearish"
	TrendNeutral Trend = "neutral"
)

// Method identifies how a prediction was produced.
type Method string

const (
	MethodEnsemble  Method = "ensemble"
	MethodHeuristic Method = "heuristic"
)

// PathPoint is one projected trading day.
type PathPoint struct {
	Date       time.Time `json:"date"`
	Price      float64   `json:"price"`
	LowerBound float64   `json:"lower_bound"`
	UpperBound float64   `json:"upper_bound"`
}

// ModelSummary describes the fitted regressor behind an ensemble prediction.
type ModelSummary struct {
	FeatureOrder    []string  `json:"feature_order"`
	TrainedAt       time.Time `json:"trained_at"`
	TrainRows       int       `json:"train_rows"`
	HoldoutRows     int       `json:"holdout_rows"`
	HoldoutMAE      float64   `json:"holdout_mae"`
	HoldoutRMSE     float64   `json:"holdout_rmse"`
	HoldoutAccuracy float64   `json:"holdout_accuracy_score"`
	Estimators      int       `json:"estimators"`
	Seed            int64     `json:"seed"`
}

// Prediction is the immutable result of one forecasting run.
type Prediction struct {
	Symbol          string             `json:"symbol"`
	Method          Method             `json:"method"`
	ComputedAt      time.Time          `json:"computed_at"`
	CurrentPrice    float64            `json:"current_price"`
	Horizon         int                `json:"horizon"`
	Path            []PathPoint        `json:"predicted_path"`
	PredictedPrice  float64            `json:"predicted_horizon_price"`
	PredictedReturn float64            `json:"predicted_return"`
	Trend           Trend              `json:"trend"`
	TrendScore      float64            `json:"trend_score,omitempty"`
	ConfidenceScore float64            `json:"confidence_score"`
	ModelAccuracy   float64            `json:"model_accuracy"`
	Volatility      float64            `json:"volatility"`
	Model           *ModelSummary      `json:"model,omitempty"`
	Indicators      map[string]float64 `json:"indicator_snapshot"`
}

// Truncate returns a copy limited to the first days of the path. The trend is
// re-derived by classify so a shorter view is classified on its own return.
func (p *Prediction) Truncate(days int, classify func(ret float64) Trend) *Prediction {
	if days <= 0 || days > len(p.Path) {
		days = len(p.Path)
	}
	out := *p
	out.Path = append([]PathPoint(nil), p.Path[:days]...)
	out.Horizon = days
	if days > 0 {
		out.PredictedPrice = out.Path[days-1].Price
	}
	if p.CurrentPrice > 0 {
		out.PredictedReturn = (out.PredictedPrice - p.CurrentPrice) / p.CurrentPrice
	}
	if classify != nil {
		out.Trend = classify(out.PredictedReturn)
	}
	return &out
}

// validSymbol matches tickers like AAPL, BRK.B, 0700.HK, BTC-USD, ^GSPC, EURUSD=X
var validSymbol = regexp.MustCompile(`^\^?[A-Z0-9]{1,10}([.\-=][A-Z0-9]{1,6})?$`)

// NormalizeSymbol uppercases and validates a ticker symbol.
func NormalizeSymbol(symbol string) (string, error) {
	s := strings.ToUpper(strings.TrimSpace(symbol))
	if s == "" {
		return "", Errorf(ErrInvalidRequest, "symbol cannot be empty")
	}
	if !validSymbol.MatchString(s) {
		return "", Errorf(ErrInvalidRequest, "invalid symbol format: %q", symbol)
	}
	return s, nil
}

// IsBusinessDay reports whether t falls on Monday through Friday.
func IsBusinessDay(t time.Time) bool {
	wd := t.Weekday()
	return wd != time.Saturday && wd != time.Sunday
}

// NextBusinessDay returns the first Monday-Friday date after t.
func NextBusinessDay(t time.Time) time.Time {
	next := t.AddDate(0, 0, 1)
	for !IsBusinessDay(next) {
		next = next.AddDate(0, 0, 1)
	}
	return next
}
