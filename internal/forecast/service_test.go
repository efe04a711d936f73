package forecast

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/newthinker/foresight/internal/cache"
	"github.com/newthinker/foresight/internal/collector/memory"
	"github.com/newthinker/foresight/internal/core"
	"github.com/newthinker/foresight/internal/indicator"
	"github.com/newthinker/foresight/internal/metrics"
	"github.com/newthinker/foresight/internal/storage/archive"
)

var fixedNow = time.Date(2024, 9, 2, 18, 0, 0, 0, time.UTC)

func testParams() Params {
	p := DefaultParams()
	p.Model.Estimators = 20
	return p
}

func upTrend(symbol string) []core.OHLCV {
	return memory.Generate(symbol, 400, memory.Walk{Drift: 0.001, Noise: 0.001, Seed: 7})
}

func newTestService(t *testing.T, opts ...Option) (*Service, *memory.Memory, *cache.Cache) {
	t.Helper()
	return newClockedService(t, func() time.Time { return fixedNow }, opts...)
}

func newClockedService(t *testing.T, now func() time.Time, opts ...Option) (*Service, *memory.Memory, *cache.Cache) {
	t.Helper()
	mem := memory.New()
	mem.Set("AAPL", upTrend("AAPL"))
	pc := cache.New(24*time.Hour, cache.WithClock(now))
	return New(mem, pc, testParams(), opts...), mem, pc
}

func TestPredict_UpwardDrift(t *testing.T) {
	svc, mem, _ := newTestService(t)
	ctx := context.Background()

	res, err := svc.Predict(ctx, "aapl", 30)
	require.NoError(t, err)
	assert.False(t, res.Cached)

	p := res.Prediction
	assert.Equal(t, "AAPL", p.Symbol)
	assert.Equal(t, core.MethodEnsemble, p.Method)
	assert.Equal(t, 30, p.Horizon)
	assert.Equal(t, core.TrendBullish, p.Trend)
	assert.Greater(t, p.PredictedReturn, 0.0)
	assert.GreaterOrEqual(t, p.ConfidenceScore, 0.0)
	assert.LessOrEqual(t, p.ConfidenceScore, 95.0)
	assert.GreaterOrEqual(t, p.ModelAccuracy, 0.0)
	assert.LessOrEqual(t, p.ModelAccuracy, 1.0)
	require.NotNil(t, p.Model)
	assert.Len(t, p.Model.FeatureOrder, 25)
	assert.NotEmpty(t, p.Indicators)

	require.Len(t, p.Path, 30)
	bars := upTrend("AAPL")
	prev := bars[len(bars)-1].Time
	prevWidth := 0.0
	for _, pt := range p.Path {
		assert.True(t, pt.Date.After(prev), "dates strictly increase")
		assert.True(t, core.IsBusinessDay(pt.Date))
		assert.Greater(t, pt.LowerBound, 0.0)
		assert.LessOrEqual(t, pt.LowerBound, pt.Price)
		assert.LessOrEqual(t, pt.Price, pt.UpperBound)
		width := pt.UpperBound - pt.LowerBound
		assert.GreaterOrEqual(t, width, prevWidth)
		prev, prevWidth = pt.Date, width
	}
	assert.Equal(t, p.Path[29].Price, p.PredictedPrice)

	again, err := svc.Predict(ctx, "AAPL", 30)
	require.NoError(t, err)
	assert.True(t, again.Cached)
	assert.Equal(t, p.Path, again.Prediction.Path)
	assert.EqualValues(t, 1, mem.Calls())
}

func TestPredict_HorizonsShareOneComputation(t *testing.T) {
	svc, mem, pc := newTestService(t)
	ctx := context.Background()

	short, err := svc.Predict(ctx, "AAPL", 5)
	require.NoError(t, err)
	long, err := svc.Predict(ctx, "AAPL", 365)
	require.NoError(t, err)

	assert.Len(t, short.Prediction.Path, 5)
	assert.Len(t, long.Prediction.Path, 365)
	assert.Equal(t, long.Prediction.Path[:5], short.Prediction.Path)
	assert.EqualValues(t, 1, mem.Calls())
	assert.Equal(t, 1, pc.Len())
}

func TestPredict_StampsAndExpiresOnCacheClock(t *testing.T) {
	var elapsed atomic.Int64
	now := func() time.Time { return fixedNow.Add(time.Duration(elapsed.Load())) }
	svc, mem, _ := newClockedService(t, now)
	ctx := context.Background()

	res, err := svc.Predict(ctx, "AAPL", 10)
	require.NoError(t, err)
	assert.True(t, res.Prediction.ComputedAt.Equal(fixedNow))

	elapsed.Store(int64(23 * time.Hour))
	res, err = svc.Predict(ctx, "AAPL", 10)
	require.NoError(t, err)
	assert.True(t, res.Cached)
	assert.EqualValues(t, 1, mem.Calls())

	elapsed.Store(int64(25 * time.Hour))
	res, err = svc.Predict(ctx, "AAPL", 10)
	require.NoError(t, err)
	assert.False(t, res.Cached)
	assert.True(t, res.Prediction.ComputedAt.Equal(fixedNow.Add(25*time.Hour)))
	assert.EqualValues(t, 2, mem.Calls())
}

func TestPredict_DefaultAndInvalidDays(t *testing.T) {
	svc, _, _ := newTestService(t)
	ctx := context.Background()

	res, err := svc.Predict(ctx, "AAPL", 0)
	require.NoError(t, err)
	assert.Len(t, res.Prediction.Path, 30)

	for _, days := range []int{-1, 366, 1000} {
		_, err := svc.Predict(ctx, "AAPL", days)
		assert.ErrorIs(t, err, core.ErrInvalidRequest, "days=%d", days)
	}

	_, err = svc.Predict(ctx, "not a symbol!", 10)
	assert.ErrorIs(t, err, core.ErrInvalidRequest)
}

func TestPredict_InsufficientHistory(t *testing.T) {
	svc, mem, pc := newTestService(t)
	mem.Set("TINY", memory.Generate("TINY", 10, memory.Walk{Seed: 1}))

	_, err := svc.Predict(context.Background(), "TINY", 30)
	assert.ErrorIs(t, err, core.ErrInsufficientHistory)
	assert.Equal(t, 0, pc.Len(), "failures are not cached")
}

func TestPredict_UnknownSymbol(t *testing.T) {
	svc, _, pc := newTestService(t)

	_, err := svc.Predict(context.Background(), "ZZZZ", 30)
	assert.ErrorIs(t, err, core.ErrSymbolNotFound)
	assert.Equal(t, 0, pc.Len())
}

func TestPredict_Deterministic(t *testing.T) {
	a, _, _ := newTestService(t)
	b, _, _ := newTestService(t)
	ctx := context.Background()

	ra, err := a.Predict(ctx, "AAPL", 60)
	require.NoError(t, err)
	rb, err := b.Predict(ctx, "AAPL", 60)
	require.NoError(t, err)

	assert.Equal(t, ra.Prediction.Path, rb.Prediction.Path)
	assert.Equal(t, ra.Prediction.ConfidenceScore, rb.Prediction.ConfidenceScore)
	assert.Equal(t, ra.Prediction.ModelAccuracy, rb.Prediction.ModelAccuracy)
}

func TestPredict_SingleFlight(t *testing.T) {
	svc, mem, _ := newTestService(t)
	mem.SetDelay(50 * time.Millisecond)

	var wg sync.WaitGroup
	results := make([]*Result, 8)
	errs := make([]error, 8)
	for i := range results {
		wg.Add(1)
		go func() {
			defer wg.Done()
			results[i], errs[i] = svc.Predict(context.Background(), "AAPL", 30)
		}()
	}
	wg.Wait()

	for i := range results {
		require.NoError(t, errs[i])
		assert.Equal(t, results[0].Prediction.Path, results[i].Prediction.Path)
	}
	assert.EqualValues(t, 1, mem.Calls())
}

func TestPredict_CallerTimeoutKeepsComputing(t *testing.T) {
	svc, mem, pc := newTestService(t)
	mem.SetDelay(100 * time.Millisecond)

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Millisecond)
	defer cancel()
	_, err := svc.Predict(ctx, "AAPL", 30)
	assert.ErrorIs(t, err, core.ErrTimeout)

	assert.Eventually(t, func() bool { return pc.Len() == 1 }, 10*time.Second, 20*time.Millisecond)

	res, err := svc.Predict(context.Background(), "AAPL", 30)
	require.NoError(t, err)
	assert.True(t, res.Cached)
	assert.EqualValues(t, 1, mem.Calls())
}

func TestPredictSimple(t *testing.T) {
	svc, _, pc := newTestService(t)

	res, err := svc.PredictSimple(context.Background(), "AAPL", 90)
	require.NoError(t, err)

	p := res.Prediction
	assert.Equal(t, core.MethodHeuristic, p.Method)
	assert.Nil(t, p.Model)
	assert.Zero(t, p.ModelAccuracy)
	assert.Greater(t, p.TrendScore, 0.0)
	assert.Greater(t, p.PredictedReturn, 0.0)
	require.Len(t, p.Path, 90)
	for _, pt := range p.Path {
		assert.LessOrEqual(t, pt.LowerBound, pt.Price)
		assert.LessOrEqual(t, pt.Price, pt.UpperBound)
	}

	// separate cache namespace from the ensemble
	_, err = svc.Predict(context.Background(), "AAPL", 90)
	require.NoError(t, err)
	assert.Equal(t, 2, pc.Len())
}

func TestTrendScore(t *testing.T) {
	up := memory.Generate("UP", 300, memory.Walk{Drift: 0.004, Noise: 0.001, Seed: 3})
	down := memory.Generate("DN", 300, memory.Walk{Drift: -0.004, Noise: 0.001, Seed: 3})

	upSet, err := indicator.Compute(up)
	require.NoError(t, err)
	downSet, err := indicator.Compute(down)
	require.NoError(t, err)

	assert.GreaterOrEqual(t, TrendScore(up, upSet), 3.0)
	assert.LessOrEqual(t, TrendScore(down, downSet), -3.0)
	assert.InDelta(t, 0.08, AnnualReturn(0), 1e-12)
	assert.InDelta(t, 0.14, AnnualReturn(3), 1e-12)
}

func TestPredictBatch_PartialFailure(t *testing.T) {
	svc, mem, _ := newTestService(t)
	mem.Set("MSFT", upTrend("MSFT"))
	mem.Fail("DOWN", core.Errorf(core.ErrProviderUnavailable, "upstream 503"))

	items, err := svc.PredictBatch(context.Background(), []string{"AAPL", "NOT_A_REAL_SYMBOL", "msft", "DOWN"}, 30)
	require.NoError(t, err)
	require.Len(t, items, 4)

	assert.True(t, items[0].Success)
	assert.Equal(t, "AAPL", items[0].Symbol)
	require.NotNil(t, items[0].Data)
	assert.Len(t, items[0].Data.Path, 30)

	assert.False(t, items[1].Success)
	require.NotNil(t, items[1].Error)
	assert.Equal(t, core.ErrInvalidRequest.Code, items[1].Error.Code)

	assert.True(t, items[2].Success)
	assert.Equal(t, "MSFT", items[2].Symbol)

	assert.False(t, items[3].Success)
	assert.Equal(t, core.ErrProviderUnavailable.Code, items[3].Error.Code)
	assert.Contains(t, items[3].Error.Message, "upstream 503")
}

func TestPredictBatch_Validation(t *testing.T) {
	svc, _, _ := newTestService(t)
	ctx := context.Background()

	_, err := svc.PredictBatch(ctx, nil, 30)
	assert.ErrorIs(t, err, core.ErrInvalidRequest)

	_, err = svc.PredictBatch(ctx, []string{"AAPL"}, 400)
	assert.ErrorIs(t, err, core.ErrInvalidRequest)

	tooMany := make([]string, svc.Params().MaxBatch+1)
	for i := range tooMany {
		tooMany[i] = "AAPL"
	}
	_, err = svc.PredictBatch(ctx, tooMany, 30)
	assert.ErrorIs(t, err, core.ErrInvalidRequest)
}

func TestRefreshAndClearCache(t *testing.T) {
	svc, mem, pc := newTestService(t)
	ctx := context.Background()

	_, err := svc.Predict(ctx, "AAPL", 30)
	require.NoError(t, err)
	_, err = svc.PredictSimple(ctx, "AAPL", 30)
	require.NoError(t, err)
	assert.EqualValues(t, 2, mem.Calls())

	res, err := svc.Refresh(ctx, "AAPL")
	require.NoError(t, err)
	assert.False(t, res.Cached)
	assert.Len(t, res.Prediction.Path, 365)
	assert.EqualValues(t, 3, mem.Calls())

	status := svc.CacheStatus()
	require.Len(t, status, 2)
	assert.Equal(t, "ensemble:AAPL", status[0].Key)
	assert.Equal(t, cache.StateFresh, status[0].State)

	removed, err := svc.ClearCache(ctx, "aapl")
	require.NoError(t, err)
	assert.Equal(t, 2, removed)
	assert.Equal(t, 0, pc.Len())

	_, err = svc.Predict(ctx, "AAPL", 30)
	require.NoError(t, err)
	removed, err = svc.ClearCache(ctx, "")
	require.NoError(t, err)
	assert.Equal(t, 1, removed)
}

func TestRefresh_JoinsComputationInFlight(t *testing.T) {
	svc, mem, _ := newTestService(t)
	mem.SetDelay(300 * time.Millisecond)
	ctx := context.Background()

	var wg sync.WaitGroup
	wg.Add(1)
	go func() {
		defer wg.Done()
		_, err := svc.Predict(ctx, "AAPL", 30)
		assert.NoError(t, err)
	}()

	require.Eventually(t, func() bool {
		status := svc.CacheStatus()
		return len(status) == 1 && status[0].State == cache.StateComputing
	}, time.Second, 5*time.Millisecond)

	for range 2 {
		wg.Add(1)
		go func() {
			defer wg.Done()
			res, err := svc.Refresh(ctx, "AAPL")
			assert.NoError(t, err)
			if err == nil {
				assert.Len(t, res.Prediction.Path, 365)
			}
		}()
		time.Sleep(50 * time.Millisecond)
	}

	status := svc.CacheStatus()
	require.Len(t, status, 1)
	assert.Equal(t, cache.StateComputing, status[0].State)

	wg.Wait()
	assert.EqualValues(t, 1, mem.Calls())
}

func TestRefresh_ReplacesFreshEntry(t *testing.T) {
	svc, mem, pc := newTestService(t)
	ctx := context.Background()

	_, err := svc.Predict(ctx, "AAPL", 30)
	require.NoError(t, err)
	_, err = svc.Refresh(ctx, "AAPL")
	require.NoError(t, err)
	assert.EqualValues(t, 2, mem.Calls())
	assert.Equal(t, 1, pc.Len())

	res, err := svc.Predict(ctx, "AAPL", 30)
	require.NoError(t, err)
	assert.True(t, res.Cached)
	assert.EqualValues(t, 2, mem.Calls())
}

func TestHistory(t *testing.T) {
	ctx := context.Background()

	bare, _, _ := newTestService(t)
	_, err := bare.History(ctx, "AAPL", 5)
	assert.ErrorIs(t, err, core.ErrNotFound)

	fs, err := archive.NewLocalFS(t.TempDir())
	require.NoError(t, err)
	reg := metrics.NewRegistry()
	svc, _, _ := newTestService(t, WithRecorder(archive.NewRecorder(fs, nil)), WithMetrics(reg))

	_, err = svc.Predict(ctx, "AAPL", 30)
	require.NoError(t, err)

	hist, err := svc.History(ctx, "AAPL", 5)
	require.NoError(t, err)
	require.Len(t, hist, 1)
	assert.Equal(t, core.MethodEnsemble, hist[0].Method)
	assert.Len(t, hist[0].Path, 365, "archive keeps the full horizon")
	assert.True(t, hist[0].ComputedAt.Equal(fixedNow))
}

func TestErrorCode(t *testing.T) {
	assert.Equal(t, "TIMEOUT", ErrorCode(core.WrapError(core.ErrTimeout, context.DeadlineExceeded)))
	assert.Equal(t, "INTERNAL", ErrorCode(errors.New("boom")))
}
