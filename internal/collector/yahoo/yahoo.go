package yahoo

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/newthinker/foresight/internal/collector"
	"github.com/newthinker/foresight/internal/core"
)

const (
	// DefaultBaseURL is the Yahoo Finance v8 chart endpoint.
	DefaultBaseURL = "https://query1.finance.yahoo.com/v8/finance/chart"

	userAgent = "Mozilla/5.0 (compatible; foresight/1.0)"
)

// Yahoo implements the Yahoo Finance collector
type Yahoo struct {
	client  *http.Client
	baseURL string
	now     func() time.Time
}

// Option configures a Yahoo collector.
type Option func(*Yahoo)

// WithBaseURL overrides the chart endpoint (used by tests and proxies).
func WithBaseURL(u string) Option {
	return func(y *Yahoo) {
		if u != "" {
			y.baseURL = strings.TrimRight(u, "/")
		}
	}
}

// WithTimeout sets the HTTP client timeout.
func WithTimeout(d time.Duration) Option {
	return func(y *Yahoo) {
		if d > 0 {
			y.client.Timeout = d
		}
	}
}

// WithClock overrides the time source used to compute the request window.
func WithClock(now func() time.Time) Option {
	return func(y *Yahoo) { y.now = now }
}

// New creates a new Yahoo collector
func New(opts ...Option) *Yahoo {
	y := &Yahoo{
		client: &http.Client{
			Timeout: 10 * time.Second,
		},
		baseURL: DefaultBaseURL,
		now:     time.Now,
	}
	for _, opt := range opts {
		opt(y)
	}
	return y
}

var _ collector.Collector = (*Yahoo)(nil)

func (y *Yahoo) Name() string {
	return "yahoo"
}

// toYahooSymbol converts internal symbol format to Yahoo format
func (y *Yahoo) toYahooSymbol(symbol string) string {
	// Shanghai stocks: 600519.SH -> 600519.SS
	if strings.HasSuffix(symbol, ".SH") {
		return strings.TrimSuffix(symbol, ".SH") + ".SS"
	}
	return symbol
}

// FetchHistory fetches daily OHLCV bars covering the trailing lookback window.
func (y *Yahoo) FetchHistory(ctx context.Context, symbol string, lookback time.Duration) ([]core.OHLCV, error) {
	end := y.now()
	start := end.Add(-lookback)

	u := fmt.Sprintf("%s/%s?interval=1d&period1=%d&period2=%d&events=history",
		y.baseURL, url.PathEscape(y.toYahooSymbol(symbol)), start.Unix(), end.Unix())

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, u, nil)
	if err != nil {
		return nil, core.WrapError(core.ErrProviderUnavailable, err)
	}
	req.Header.Set("User-Agent", userAgent)
	req.Header.Set("Accept", "application/json")

	resp, err := y.client.Do(req)
	if err != nil {
		if errors.Is(err, context.DeadlineExceeded) || errors.Is(err, context.Canceled) {
			return nil, core.WrapError(core.ErrTimeout, err)
		}
		return nil, core.WrapError(core.ErrProviderUnavailable, fmt.Errorf("fetching history: %w", err))
	}
	defer resp.Body.Close()

	var result chartResponse
	decodeErr := json.NewDecoder(resp.Body).Decode(&result)

	switch {
	case resp.StatusCode == http.StatusNotFound:
		return nil, core.Errorf(core.ErrSymbolNotFound, "yahoo has no chart for %s", symbol)
	case resp.StatusCode != http.StatusOK:
		return nil, core.Errorf(core.ErrProviderUnavailable, "unexpected status: %d", resp.StatusCode)
	case decodeErr != nil:
		return nil, core.WrapError(core.ErrProviderUnavailable, fmt.Errorf("decoding response: %w", decodeErr))
	}

	if result.Chart.Error != nil {
		if strings.EqualFold(result.Chart.Error.Code, "Not Found") {
			return nil, core.Errorf(core.ErrSymbolNotFound, "%s: %s", symbol, result.Chart.Error.Description)
		}
		return nil, core.Errorf(core.ErrProviderUnavailable, "yahoo error: %s", result.Chart.Error.Description)
	}

	if len(result.Chart.Result) == 0 || len(result.Chart.Result[0].Indicators.Quote) == 0 {
		return nil, core.Errorf(core.ErrSymbolNotFound, "no data for symbol: %s", symbol)
	}

	r := result.Chart.Result[0]
	quotes := r.Indicators.Quote[0]

	data := make([]core.OHLCV, 0, len(r.Timestamp))
	for i, ts := range r.Timestamp {
		bar, ok := quotes.bar(i)
		if !ok {
			continue // Skip missing data
		}
		bar.Symbol = symbol
		bar.Interval = "1d"
		bar.Time = time.Unix(ts, 0).UTC()
		data = append(data, bar)
	}

	if len(data) == 0 {
		return nil, core.Errorf(core.ErrSymbolNotFound, "no data for symbol: %s", symbol)
	}
	return collector.Clean(data), nil
}

// Yahoo API response types
type chartResponse struct {
	Chart struct {
		Result []chartResult `json:"result"`
		Error  *struct {
			Code        string `json:"code"`
			Description string `json:"description"`
		} `json:"error"`
	} `json:"chart"`
}

type chartResult struct {
	Timestamp  []int64    `json:"timestamp"`
	Indicators indicators `json:"indicators"`
}

type indicators struct {
	Quote []quoteIndicator `json:"quote"`
}

type quoteIndicator struct {
	Open   []*float64 `json:"open"`
	High   []*float64 `json:"high"`
	Low    []*float64 `json:"low"`
	Close  []*float64 `json:"close"`
	Volume []*int64   `json:"volume"`
}

func (q quoteIndicator) bar(i int) (core.OHLCV, bool) {
	open, ok1 := at(q.Open, i)
	high, ok2 := at(q.High, i)
	low, ok3 := at(q.Low, i)
	cls, ok4 := at(q.Close, i)
	if !ok1 || !ok2 || !ok3 || !ok4 {
		return core.OHLCV{}, false
	}
	var vol int64
	if i < len(q.Volume) && q.Volume[i] != nil {
		vol = *q.Volume[i]
	}
	return core.OHLCV{Open: open, High: high, Low: low, Close: cls, Volume: vol}, true
}

func at(values []*float64, i int) (float64, bool) {
	if i >= len(values) || values[i] == nil {
		return 0, false
	}
	return *values[i], true
}
