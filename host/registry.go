package host

import (
	"fmt"
	"sort"
	"sync"
)

// Factory instantiates a unit with the given display name.
type Factory func(name string) (Unit, error)

// Registry maps component descriptions to unit factories.
type Registry struct {
	mu        sync.RWMutex
	factories map[Description]Factory
}

func NewRegistry() *Registry {
	return &Registry{factories: make(map[Description]Factory)}
}

// Register adds or replaces the factory for d.
func (r *Registry) Register(d Description, f Factory) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.factories[d] = f
}

// Instantiate creates a unit for d.
func (r *Registry) Instantiate(d Description, name string) (Unit, error) {
	r.mu.RLock()
	f, ok := r.factories[d]
	r.mu.RUnlock()
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrUnknownUnit, d)
	}
	u, err := f(name)
	if err != nil {
		return nil, fmt.Errorf("instantiate %s: %w", d, err)
	}
	return u, nil
}

// Descriptions lists registered components sorted by their string form.
func (r *Registry) Descriptions() []Description {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]Description, 0, len(r.factories))
	for d := range r.factories {
		out = append(out, d)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].String() < out[j].String() })
	return out
}
