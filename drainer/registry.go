// Package drainer implements the periodic background reconciliation of
// dirty cache entries to the durable store under a cluster-wide,
// per-storage lease. See spec.md §4.6.
package drainer

import (
	"sync"

	grainstore "github.com/lattice-run/grainstore"
)

// Registry is the explicitly-owned, append-mostly set of registered
// storage-names spec.md §9 calls for instead of an ambient singleton: safe
// for concurrent readers (the drain loop) while writers (application
// startup, one Core per storage) register bindings.
type Registry struct {
	mu       sync.RWMutex
	order    []string
	bindings map[string]grainstore.DrainBinding
}

// NewRegistry returns an empty Registry.
func NewRegistry() *Registry {
	return &Registry{bindings: make(map[string]grainstore.DrainBinding)}
}

// Register adds or replaces the binding for b.Storage. Call this once per
// Core[T] at startup with the result of Core.DrainBinding.
func (r *Registry) Register(b grainstore.DrainBinding) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, exists := r.bindings[b.Storage]; !exists {
		r.order = append(r.order, b.Storage)
	}
	r.bindings[b.Storage] = b
}

// Names returns the registered storage-names in registration order.
func (r *Registry) Names() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]string, len(r.order))
	copy(out, r.order)
	return out
}

func (r *Registry) get(storage string) (grainstore.DrainBinding, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	b, ok := r.bindings[storage]
	return b, ok
}
