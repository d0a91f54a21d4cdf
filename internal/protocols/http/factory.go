package http

import (
	"extsys/internal/models"
	"extsys/internal/protocols"
)

// Factory creates HTTP clients sharing one set of dependencies.
type Factory struct {
	deps Dependencies
}

func NewFactory(deps Dependencies) *Factory {
	return &Factory{deps: deps}
}

// Create returns an unconfigured client.
func (f *Factory) Create() protocols.ExternalSystem {
	return NewClient(f.deps)
}

// GetType returns the HTTP protocol tag.
func (f *Factory) GetType() string {
	return models.ProtocolHTTP
}

// Cacheable is true: a configured client holds a connection pool and an
// authorization state worth reusing.
func (f *Factory) Cacheable() bool {
	return true
}
