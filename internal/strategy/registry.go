package strategy

import "sync"

// Registry holds the strategies in the order they run each cycle. It is safe
// for concurrent use.
type Registry struct {
	order      []string
	strategies map[string]Strategy
	mu         sync.RWMutex
}

// NewRegistry returns an empty, ready-to-use Registry.
func NewRegistry() *Registry {
	return &Registry{
		strategies: make(map[string]Strategy),
	}
}

// Register appends s to the run order. Registering a name again replaces the
// strategy but keeps its original position.
func (r *Registry) Register(s Strategy) {
	r.mu.Lock()
	defer r.mu.Unlock()
	name := s.Name()
	if _, ok := r.strategies[name]; !ok {
		r.order = append(r.order, name)
	}
	r.strategies[name] = s
}

// List returns the registered names in run order.
func (r *Registry) List() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return append([]string(nil), r.order...)
}

// Strategies returns the registered strategies in run order.
func (r *Registry) Strategies() []Strategy {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]Strategy, 0, len(r.order))
	for _, n := range r.order {
		out = append(out, r.strategies[n])
	}
	return out
}
