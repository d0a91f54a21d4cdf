package auth

import (
	"sort"
	"sync"

	"extsys/internal/common/errors"
)

// Constructor returns a new, uninitialized strategy instance.
type Constructor func() Strategy

// Registry maps authorization method tags to strategy constructors.
// Registering the same tag twice is allowed, but resolving an ambiguous tag fails.
type Registry struct {
	constructors map[string][]Constructor
	mu           sync.RWMutex
}

// NewRegistry creates a new empty strategy registry.
func NewRegistry() *Registry {
	return &Registry{
		constructors: make(map[string][]Constructor),
	}
}

// Register adds a constructor for method.
func (r *Registry) Register(method string, constructor Constructor) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.constructors[method] = append(r.constructors[method], constructor)
}

// New returns a fresh strategy for method. Exactly one constructor must be
// registered for the method.
func (r *Registry) New(method string) (Strategy, error) {
	r.mu.RLock()
	constructors := r.constructors[method]
	r.mu.RUnlock()

	switch len(constructors) {
	case 0:
		return nil, errors.ConfigErrorf("No HTTP authorization provider found for method %s", method)
	case 1:
		return constructors[0](), nil
	default:
		return nil, errors.ConfigErrorf("Found multiple HTTP authorization providers for method %s", method)
	}
}

// Build resolves and initializes a strategy.
func (r *Registry) Build(method string, settings Settings) (Strategy, error) {
	strategy, err := r.New(method)
	if err != nil {
		return nil, err
	}
	if err := strategy.Init(settings); err != nil {
		return nil, err
	}
	return strategy, nil
}

// Methods returns the registered method tags, sorted.
func (r *Registry) Methods() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()

	methods := make([]string, 0, len(r.constructors))
	for method := range r.constructors {
		methods = append(methods, method)
	}
	sort.Strings(methods)
	return methods
}

// DefaultRegistry holds the built-in strategies, registered by their init functions.
var DefaultRegistry = NewRegistry()

// Register adds a constructor to the default registry.
func Register(method string, constructor Constructor) {
	DefaultRegistry.Register(method, constructor)
}

// Build resolves and initializes a strategy from the default registry.
func Build(method string, settings Settings) (Strategy, error) {
	return DefaultRegistry.Build(method, settings)
}
