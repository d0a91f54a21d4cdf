package storage

import (
	"sort"
	"sync"

	"extsys/internal/common/errors"
	"extsys/internal/common/logging"
	"extsys/internal/events"
)

// Settings carries the connection settings of every store type
type Settings struct {
	SQLitePath string
	Postgres   PostgresSettings
}

type PostgresSettings struct {
	Host     string
	Port     int
	Database string
	Username string
	Password string
	SSLMode  string
}

// Factory opens one type of store
type Factory interface {
	Create(settings Settings, bus events.Bus, logger logging.Logger) (Store, error)
	GetType() string
}

type Registry struct {
	factories map[string]Factory
	mu        sync.RWMutex
}

func NewRegistry() *Registry {
	return &Registry{
		factories: make(map[string]Factory),
	}
}

func (r *Registry) Register(storeType string, factory Factory) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.factories[storeType] = factory
}

func (r *Registry) Create(storeType string, settings Settings, bus events.Bus, logger logging.Logger) (Store, error) {
	r.mu.RLock()
	factory, exists := r.factories[storeType]
	r.mu.RUnlock()

	if !exists {
		return nil, errors.ConfigErrorf("unsupported database type: %s", storeType)
	}

	return factory.Create(settings, bus, logger)
}

func (r *Registry) GetAvailableTypes() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()

	types := make([]string, 0, len(r.factories))
	for storeType := range r.factories {
		types = append(types, storeType)
	}
	sort.Strings(types)
	return types
}

var defaultRegistry = NewRegistry()

// Register adds a factory to the default registry
func Register(storeType string, factory Factory) {
	defaultRegistry.Register(storeType, factory)
}

// Create opens a store of storeType from the default registry
func Create(storeType string, settings Settings, bus events.Bus, logger logging.Logger) (Store, error) {
	return defaultRegistry.Create(storeType, settings, bus, logger)
}

// AvailableTypes lists the store types registered by imported implementations
func AvailableTypes() []string {
	return defaultRegistry.GetAvailableTypes()
}
