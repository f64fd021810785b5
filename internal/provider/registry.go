package provider

import (
	"fmt"
	"sync"
)

// Registry holds the set of configured providers, filtered by the
// enabled_providers allowlist from config.
type Registry struct {
	mu        sync.RWMutex
	providers map[string]Provider
}

// NewRegistry creates an empty registry.
func NewRegistry() *Registry {
	return &Registry{providers: make(map[string]Provider)}
}

// Register adds p, keyed by its own ID. A later call with the same ID
// replaces the earlier one, matching hot-reload semantics in config.
func (r *Registry) Register(p Provider) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.providers[p.ID()] = p
}

// Get returns the provider for id, or an error if it isn't
// registered or was filtered out by enabled_providers.
func (r *Registry) Get(id string) (Provider, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	p, ok := r.providers[id]
	if !ok {
		return nil, fmt.Errorf("provider %q is not configured or not enabled", id)
	}
	return p, nil
}

// FilterEnabled removes any registered provider whose ID is not in
// enabled, unless enabled is empty (meaning no filter is applied).
func (r *Registry) FilterEnabled(enabled []string) {
	if len(enabled) == 0 {
		return
	}
	allow := make(map[string]bool, len(enabled))
	for _, id := range enabled {
		allow[id] = true
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	for id := range r.providers {
		if !allow[id] {
			delete(r.providers, id)
		}
	}
}

// IDs returns the currently registered provider identifiers.
func (r *Registry) IDs() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	ids := make([]string, 0, len(r.providers))
	for id := range r.providers {
		ids = append(ids, id)
	}
	return ids
}
