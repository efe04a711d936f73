// Package cache memoises predictions per key for a freshness window and
// guarantees at most one concurrent computation per key.
package cache

import (
	"context"
	"sort"
	"strings"
	"sync"
	"time"

	"go.uber.org/zap"
	"golang.org/x/sync/singleflight"

	"github.com/newthinker/foresight/internal/core"
)

// Outcome tells how a Get was served.
type Outcome string

const (
	OutcomeHit    Outcome = "hit"    // fresh entry already present
	OutcomeMiss   Outcome = "miss"   // this caller ran the computation
	OutcomeShared Outcome = "shared" // joined another caller's computation
)

// State is the lifecycle state of a key.
type State string

const (
	StateComputing State = "computing"
	StateFresh     State = "fresh"
	StateStale     State = "stale"
)

// ComputeFunc produces a prediction on a cache miss.
type ComputeFunc func(ctx context.Context) (*core.Prediction, error)

// Store is an optional second tier shared between processes.
type Store interface {
	Load(ctx context.Context, key string) (*core.Prediction, bool, error)
	Save(ctx context.Context, key string, rec *core.Prediction, ttl time.Duration) error
	Delete(ctx context.Context, key string) error
	Clear(ctx context.Context) error
}

// EntryStatus describes one key for the status endpoint.
type EntryStatus struct {
	Key        string    `json:"key"`
	Symbol     string    `json:"symbol"`
	State      State     `json:"state"`
	ComputedAt time.Time `json:"computed_at,omitempty"`
	ExpiresAt  time.Time `json:"expires_at,omitempty"`
	AgeHours   float64   `json:"age_hours"`
}

// Cache is a TTL prediction cache with single-flight computation.
type Cache struct {
	ttl     time.Duration
	now     func() time.Time
	store   Store
	logger  *zap.Logger
	observe func(Outcome)

	mu       sync.RWMutex
	entries  map[string]*core.Prediction
	inflight map[string]time.Time

	group singleflight.Group
}

// Option configures a Cache.
type Option func(*Cache)

// WithClock overrides the time source.
func WithClock(now func() time.Time) Option {
	return func(c *Cache) { c.now = now }
}

// WithStore adds a second-tier store consulted before computing.
func WithStore(s Store) Option {
	return func(c *Cache) { c.store = s }
}

// WithLogger sets the logger.
func WithLogger(l *zap.Logger) Option {
	return func(c *Cache) {
		if l != nil {
			c.logger = l
		}
	}
}

// WithObserver registers a callback invoked with every Get outcome.
func WithObserver(fn func(Outcome)) Option {
	return func(c *Cache) { c.observe = fn }
}

// New creates a cache whose entries stay fresh for ttl after ComputedAt.
func New(ttl time.Duration, opts ...Option) *Cache {
	c := &Cache{
		ttl:      ttl,
		now:      time.Now,
		logger:   zap.NewNop(),
		entries:  make(map[string]*core.Prediction),
		inflight: make(map[string]time.Time),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// TTL returns the freshness window.
func (c *Cache) TTL() time.Duration { return c.ttl }

// Now returns the cache's clock. Records stamped with it age consistently
// with freshness checks.
func (c *Cache) Now() time.Time { return c.now() }

func (c *Cache) fresh(rec *core.Prediction) bool {
	return rec.ComputedAt.Add(c.ttl).After(c.now())
}

// lookup returns a fresh entry, evicting a stale one on the way.
func (c *Cache) lookup(key string) (*core.Prediction, bool) {
	c.mu.RLock()
	rec, ok := c.entries[key]
	c.mu.RUnlock()
	if !ok {
		return nil, false
	}
	if c.fresh(rec) {
		return rec, true
	}

	c.mu.Lock()
	if cur, ok := c.entries[key]; ok && cur == rec {
		delete(c.entries, key)
	}
	c.mu.Unlock()
	return nil, false
}

// Get returns the fresh record for key, computing it when absent. Concurrent
// callers for the same key share one computation. The computation is detached
// from ctx: a caller whose ctx ends first receives ErrTimeout while the
// computation runs on and populates the cache. Failed computations are not
// cached.
func (c *Cache) Get(ctx context.Context, key string, compute ComputeFunc) (*core.Prediction, Outcome, error) {
	if rec, ok := c.lookup(key); ok {
		c.report(OutcomeHit)
		return rec, OutcomeHit, nil
	}
	return c.do(ctx, key, compute, false)
}

// Refresh recomputes key even when a fresh entry exists, bypassing the
// second tier. A computation already in flight for key is joined rather
// than duplicated. The previous entry keeps serving Get until replaced.
func (c *Cache) Refresh(ctx context.Context, key string, compute ComputeFunc) (*core.Prediction, Outcome, error) {
	return c.do(ctx, key, compute, true)
}

func (c *Cache) do(ctx context.Context, key string, compute ComputeFunc, force bool) (*core.Prediction, Outcome, error) {
	led := false
	ch := c.group.DoChan(key, func() (any, error) {
		led = true
		return c.fill(context.WithoutCancel(ctx), key, compute, force)
	})

	select {
	case res := <-ch:
		outcome := OutcomeShared
		if led {
			outcome = OutcomeMiss
		}
		c.report(outcome)
		if res.Err != nil {
			return nil, outcome, res.Err
		}
		return res.Val.(*core.Prediction), outcome, nil
	case <-ctx.Done():
		c.logger.Warn("caller gave up waiting for prediction",
			zap.String("key", key), zap.Error(ctx.Err()))
		return nil, OutcomeShared, core.WrapError(core.ErrTimeout, ctx.Err())
	}
}

func (c *Cache) fill(ctx context.Context, key string, compute ComputeFunc, force bool) (*core.Prediction, error) {
	// a flight that finished between lookup and DoChan already stored the record
	if !force {
		if rec, ok := c.lookup(key); ok {
			return rec, nil
		}
	}

	c.mu.Lock()
	c.inflight[key] = c.now()
	c.mu.Unlock()
	defer func() {
		c.mu.Lock()
		delete(c.inflight, key)
		c.mu.Unlock()
	}()

	if !force {
		if rec := c.loadStore(ctx, key); rec != nil {
			c.put(key, rec)
			return rec, nil
		}
	}

	start := c.now()
	rec, err := compute(ctx)
	if err != nil {
		c.logger.Info("prediction failed, not caching",
			zap.String("key", key), zap.Error(err))
		return nil, err
	}

	c.put(key, rec)
	c.saveStore(ctx, key, rec)
	c.logger.Debug("prediction cached",
		zap.String("key", key), zap.Bool("forced", force), zap.Duration("duration", c.now().Sub(start)))
	return rec, nil
}

func (c *Cache) put(key string, rec *core.Prediction) {
	c.mu.Lock()
	c.entries[key] = rec
	c.mu.Unlock()
}

func (c *Cache) loadStore(ctx context.Context, key string) *core.Prediction {
	if c.store == nil {
		return nil
	}
	rec, ok, err := c.store.Load(ctx, key)
	if err != nil {
		c.logger.Warn("second-tier cache load failed", zap.String("key", key), zap.Error(err))
		return nil
	}
	if !ok || !c.fresh(rec) {
		return nil
	}
	return rec
}

func (c *Cache) saveStore(ctx context.Context, key string, rec *core.Prediction) {
	if c.store == nil {
		return
	}
	remaining := rec.ComputedAt.Add(c.ttl).Sub(c.now())
	if remaining <= 0 {
		return
	}
	if err := c.store.Save(ctx, key, rec, remaining); err != nil {
		c.logger.Warn("second-tier cache save failed", zap.String("key", key), zap.Error(err))
	}
}

func (c *Cache) report(o Outcome) {
	if c.observe != nil {
		c.observe(o)
	}
}

// Invalidate drops key from both tiers. A computation already in flight for
// key keeps running, later Gets join it, and its result is stored when it
// finishes.
func (c *Cache) Invalidate(ctx context.Context, key string) error {
	c.mu.Lock()
	delete(c.entries, key)
	c.mu.Unlock()

	if c.store != nil {
		return c.store.Delete(ctx, key)
	}
	return nil
}

// Clear drops every entry from both tiers. In-flight computations are left
// to finish, as with Invalidate.
func (c *Cache) Clear(ctx context.Context) error {
	c.mu.Lock()
	c.entries = make(map[string]*core.Prediction)
	c.mu.Unlock()

	if c.store != nil {
		return c.store.Clear(ctx)
	}
	return nil
}

// Len returns the number of stored entries, fresh or stale.
func (c *Cache) Len() int {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return len(c.entries)
}

// Status reports every known key sorted by key.
func (c *Cache) Status() []EntryStatus {
	now := c.now()

	c.mu.RLock()
	out := make([]EntryStatus, 0, len(c.entries)+len(c.inflight))
	for key, rec := range c.entries {
		st := EntryStatus{
			Key:        key,
			Symbol:     rec.Symbol,
			State:      StateStale,
			ComputedAt: rec.ComputedAt,
			ExpiresAt:  rec.ComputedAt.Add(c.ttl),
			AgeHours:   now.Sub(rec.ComputedAt).Hours(),
		}
		if st.ExpiresAt.After(now) {
			st.State = StateFresh
		}
		out = append(out, st)
	}
	for key, since := range c.inflight {
		if _, ok := c.entries[key]; ok {
			continue
		}
		out = append(out, EntryStatus{
			Key:      key,
			Symbol:   SymbolOf(key),
			State:    StateComputing,
			AgeHours: now.Sub(since).Hours(),
		})
	}
	c.mu.RUnlock()

	sort.Slice(out, func(i, j int) bool { return out[i].Key < out[j].Key })
	return out
}

// Key joins a namespace and symbol, e.g. "ensemble:AAPL".
func Key(namespace, symbol string) string {
	return namespace + ":" + symbol
}

// SymbolOf extracts the symbol from a Key.
func SymbolOf(key string) string {
	if i := strings.LastIndex(key, ":"); i >= 0 {
		return key[i+1:]
	}
	return key
}
