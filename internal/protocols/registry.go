// Package protocols defines the client contract for external systems and the
// registry that maps protocol tags to client factories.
package protocols

import (
	"sort"
	"sync"

	"extsys/internal/common/errors"
)

// Registry maps protocol tags to factories. It is safe for concurrent use.
type Registry struct {
	factories map[string][]Factory
	mu        sync.RWMutex
}

// NewRegistry creates a new empty protocol registry.
func NewRegistry() *Registry {
	return &Registry{
		factories: make(map[string][]Factory),
	}
}

// Register adds a factory under its own GetType tag.
func (r *Registry) Register(factory Factory) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.factories[factory.GetType()] = append(r.factories[factory.GetType()], factory)
}

// Resolve returns the single factory registered for protocol.
func (r *Registry) Resolve(protocol string) (Factory, error) {
	r.mu.RLock()
	factories := r.factories[protocol]
	r.mu.RUnlock()

	switch len(factories) {
	case 0:
		return nil, errors.ConfigErrorf("No external system found for protocol %s", protocol)
	case 1:
		return factories[0], nil
	default:
		return nil, errors.ConfigErrorf("Found multiple external systems for protocol %s", protocol)
	}
}

// GetAvailableTypes returns the registered protocol tags, sorted.
func (r *Registry) GetAvailableTypes() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()

	types := make([]string, 0, len(r.factories))
	for protocol := range r.factories {
		types = append(types, protocol)
	}
	sort.Strings(types)
	return types
}

// IsRegistered checks whether any factory exists for protocol.
func (r *Registry) IsRegistered(protocol string) bool {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.factories[protocol]) > 0
}

// IsCacheable reports whether instances of protocol may be reused.
func (r *Registry) IsCacheable(protocol string) (bool, error) {
	factory, err := r.Resolve(protocol)
	if err != nil {
		return false, err
	}
	return factory.Cacheable(), nil
}
