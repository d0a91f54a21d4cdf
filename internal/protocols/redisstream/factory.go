package redisstream

import (
	"extsys/internal/models"
	"extsys/internal/protocols"
)

// Factory creates Redis stream clients.
type Factory struct {
	deps Dependencies
}

func NewFactory(deps Dependencies) *Factory {
	return &Factory{deps: deps}
}

func (f *Factory) Create() protocols.ExternalSystem {
	return NewClient(f.deps)
}

// GetType returns the Redis stream protocol tag.
func (f *Factory) GetType() string {
	return models.ProtocolRedisStream
}

// Cacheable is false; every call gets its own connection pool.
func (f *Factory) Cacheable() bool {
	return false
}
