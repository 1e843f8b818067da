// Package registry implements the priority-ordered provider registry. The
// chain is fixed at startup; only the per-entry enabled flag changes at
// runtime, via operator action.
package registry

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"sync"

	"github.com/emberio/hearth/internal/domain"
)

type entry struct {
	provider domain.Provider
	priority int
	weight   int
	order    int // registration order, tie-break for equal priorities
	enabled  bool
}

// Registry implements the domain.ProviderRegistry interface.
type Registry struct {
	mu      sync.RWMutex
	entries []*entry
	byName  map[string]*entry
}

// NewRegistry creates an empty provider registry.
func NewRegistry() *Registry {
	return &Registry{
		byName: make(map[string]*entry),
	}
}

// Register adds a provider with its priority rank and relative weight.
// Lower priority values are tried first. The weight is carried for future
// load distribution and does not affect ordering.
func (r *Registry) Register(_ context.Context, provider domain.Provider, priority, weight int) error {
	if provider == nil {
		return errors.New("provider cannot be nil")
	}

	name := provider.Name()
	if name == "" {
		return errors.New("provider name cannot be empty")
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	if _, exists := r.byName[name]; exists {
		return fmt.Errorf("provider %s already registered", name)
	}

	e := &entry{
		provider: provider,
		priority: priority,
		weight:   weight,
		order:    len(r.entries),
		enabled:  true,
	}
	r.entries = append(r.entries, e)
	r.byName[name] = e

	sort.SliceStable(r.entries, func(i, j int) bool {
		if r.entries[i].priority != r.entries[j].priority {
			return r.entries[i].priority < r.entries[j].priority
		}
		return r.entries[i].order < r.entries[j].order
	})

	return nil
}

// Get retrieves a provider by name.
func (r *Registry) Get(_ context.Context, name string) (domain.Provider, error) {
	if name == "" {
		return nil, errors.New("provider name cannot be empty")
	}

	r.mu.RLock()
	defer r.mu.RUnlock()

	e, exists := r.byName[name]
	if !exists {
		return nil, fmt.Errorf("%w: %s", domain.ErrProviderNotFound, name)
	}

	return e.provider, nil
}

// SetEnabled flips the operator-controlled enabled flag. The flag is
// independent of health status; a disabled entry is simply absent from the
// candidate list.
func (r *Registry) SetEnabled(_ context.Context, name string, enabled bool) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	e, exists := r.byName[name]
	if !exists {
		return fmt.Errorf("%w: %s", domain.ErrProviderNotFound, name)
	}

	e.enabled = enabled
	return nil
}

// Candidates returns enabled providers in ascending priority order. The
// order is deterministic for a fixed configuration; disabling an entry does
// not change the relative order of the rest.
func (r *Registry) Candidates(_ context.Context) []domain.Provider {
	r.mu.RLock()
	defer r.mu.RUnlock()

	candidates := make([]domain.Provider, 0, len(r.entries))
	for _, e := range r.entries {
		if e.enabled {
			candidates = append(candidates, e.provider)
		}
	}
	return candidates
}

// Entries returns a snapshot of every registered provider, in priority order.
func (r *Registry) Entries(_ context.Context) []domain.RegistryEntry {
	r.mu.RLock()
	defer r.mu.RUnlock()

	out := make([]domain.RegistryEntry, 0, len(r.entries))
	for _, e := range r.entries {
		out = append(out, domain.RegistryEntry{
			Name:     e.provider.Name(),
			Priority: e.priority,
			Weight:   e.weight,
			Enabled:  e.enabled,
			Health:   e.provider.Health().Snapshot(),
		})
	}
	return out
}
