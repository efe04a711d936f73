package collector

import (
	"sort"
	"sync"

	"github.com/newthinker/foresight/internal/core"
)

// Registry manages collector plugins
type Registry struct {
	mu         sync.RWMutex
	collectors map[string]Collector
}

// NewRegistry creates a new collector registry
func NewRegistry() *Registry {
	return &Registry{
		collectors: make(map[string]Collector),
	}
}

// Register adds a collector to the registry
func (r *Registry) Register(c Collector) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.collectors[c.Name()] = c
}

// Get retrieves a collector by name
func (r *Registry) Get(name string) (Collector, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	c, ok := r.collectors[name]
	return c, ok
}

// Select returns the named collector or a CONFIG_INVALID error.
func (r *Registry) Select(name string) (Collector, error) {
	c, ok := r.Get(name)
	if !ok {
		return nil, core.Errorf(core.ErrConfigInvalid, "unknown provider %q (have %v)", name, r.Names())
	}
	return c, nil
}

// Names returns the registered collector names in sorted order.
func (r *Registry) Names() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()

	result := make([]string, 0, len(r.collectors))
	for name := range r.collectors {
		result = append(result, name)
	}
	sort.Strings(result)
	return result
}
