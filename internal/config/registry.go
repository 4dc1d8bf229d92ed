package config

import (
	"errors"
	"fmt"
	"sync"

	"github.com/shinelabs/shine/pkg/provider/analyzer"
)

// ErrProviderNotRegistered is returned by [Registry.Create] when no factory
// has been registered under the requested provider name.
var ErrProviderNotRegistered = errors.New("config: provider not registered")

// Registry maps analyzer provider names to their constructor functions.
// It is safe for concurrent use.
type Registry struct {
	mu        sync.RWMutex
	factories map[string]func(ProviderEntry) (analyzer.Provider, error)
}

// NewRegistry returns an empty, ready-to-use [Registry].
func NewRegistry() *Registry {
	return &Registry{
		factories: make(map[string]func(ProviderEntry) (analyzer.Provider, error)),
	}
}

// Register registers an analyzer provider factory under name.
// Subsequent calls with the same name overwrite the previous registration.
func (r *Registry) Register(name string, factory func(ProviderEntry) (analyzer.Provider, error)) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.factories[name] = factory
}

// Create instantiates an analyzer provider using the factory registered under
// entry.Name. Returns [ErrProviderNotRegistered] if no factory has been
// registered for that name.
func (r *Registry) Create(entry ProviderEntry) (analyzer.Provider, error) {
	r.mu.RLock()
	factory, ok := r.factories[entry.Name]
	r.mu.RUnlock()
	if !ok {
		return nil, fmt.Errorf("%w: analyzer/%q", ErrProviderNotRegistered, entry.Name)
	}
	return factory(entry)
}

// Names returns the registered provider names, for startup summaries.
func (r *Registry) Names() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	names := make([]string, 0, len(r.factories))
	for name := range r.factories {
		names = append(names, name)
	}
	return names
}
