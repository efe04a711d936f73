package collector

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/newthinker/foresight/internal/core"
)

// mockCollector for testing
type mockCollector struct {
	name string
}

func (m *mockCollector) Name() string { return m.name }
func (m *mockCollector) FetchHistory(ctx context.Context, symbol string, lookback time.Duration) ([]core.OHLCV, error) {
	return nil, nil
}

func TestRegistry_Register(t *testing.T) {
	r := NewRegistry()

	mock := &mockCollector{name: "mock"}
	r.Register(mock)

	c, ok := r.Get("mock")
	if !ok {
		t.Fatal("expected to find registered collector")
	}

	if c.Name() != "mock" {
		t.Errorf("expected name 'mock', got '%s'", c.Name())
	}
}

func TestRegistry_Names(t *testing.T) {
	r := NewRegistry()
	r.Register(&mockCollector{name: "b"})
	r.Register(&mockCollector{name: "a"})

	names := r.Names()
	if len(names) != 2 || names[0] != "a" || names[1] != "b" {
		t.Errorf("expected [a b], got %v", names)
	}
}

func TestRegistry_SelectUnknown(t *testing.T) {
	r := NewRegistry()
	r.Register(&mockCollector{name: "yahoo"})

	if _, err := r.Select("yahoo"); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	_, err := r.Select("bloomberg")
	if !errors.Is(err, core.ErrConfigInvalid) {
		t.Errorf("expected CONFIG_INVALID, got %v", err)
	}
}

func TestClean(t *testing.T) {
	day := func(d int) time.Time { return time.Date(2024, 1, d, 0, 0, 0, 0, time.UTC) }
	in := []core.OHLCV{
		{Time: day(3), Close: 3},
		{Time: day(1), Close: 1},
		{Time: day(2), Close: 0},
		{Time: day(3), Close: 33},
		{Time: day(4), Close: 4},
	}

	got := Clean(in)
	if len(got) != 3 {
		t.Fatalf("expected 3 bars, got %d", len(got))
	}
	if got[0].Close != 1 || got[1].Close != 33 || got[2].Close != 4 {
		t.Errorf("unexpected order or dedupe: %+v", got)
	}
	if in[0].Close != 3 {
		t.Error("input slice must not be modified")
	}
}
