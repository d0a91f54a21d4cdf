// Package provider resolves configured external system clients by id or
// search key, reusing cached instances for cacheable protocols.
package provider

import (
	"context"

	gocache "github.com/patrickmn/go-cache"

	"extsys/internal/common/cache"
	"extsys/internal/common/errors"
	"extsys/internal/common/logging"
	"extsys/internal/models"
	"extsys/internal/protocols"
)

// Lookup finds connection records. A missing record is a not_found error.
type Lookup interface {
	FindExternalSystem(ctx context.Context, ref string) (*models.ExternalSystem, error)
}

// Provider hands out configured clients. It is safe for concurrent use.
type Provider struct {
	lookup    Lookup
	protocols *protocols.Registry
	instances *cache.InstanceCache[protocols.ExternalSystem]
	// protocol tag -> cacheable
	cacheable *gocache.Cache
	logger    logging.Logger
}

func New(lookup Lookup, registry *protocols.Registry, instances *cache.InstanceCache[protocols.ExternalSystem], logger logging.Logger) *Provider {
	if logger == nil {
		logger = logging.GetGlobalLogger()
	}
	if instances == nil {
		instances = cache.NewInstanceCache[protocols.ExternalSystem](cache.DefaultConfig(), logger)
	}
	return &Provider{
		lookup:    lookup,
		protocols: registry,
		instances: instances,
		cacheable: gocache.New(gocache.NoExpiration, 0),
		logger:    logger,
	}
}

// GetBySearchKeyOrID returns a configured client for the record matching ref.
// An absent or inactive record reports false with no error. Clients of
// non-cacheable protocols are new on every call and must be closed by the caller.
func (p *Provider) GetBySearchKeyOrID(ctx context.Context, ref string) (protocols.ExternalSystem, bool, error) {
	system, err := p.lookup.FindExternalSystem(ctx, ref)
	if errors.IsType(err, errors.ErrTypeNotFound) {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, err
	}
	if system == nil || !system.Active {
		return nil, false, nil
	}

	cacheable, err := p.IsCacheable(system.Protocol)
	if err != nil {
		return nil, false, err
	}
	if !cacheable {
		instance, err := p.build(system)
		if err != nil {
			return nil, false, err
		}
		return instance, true, nil
	}

	instance, err := p.instances.GetOrCreate(system.ID, func() (protocols.ExternalSystem, error) {
		return p.build(system)
	})
	if err != nil {
		return nil, false, err
	}
	return instance, true, nil
}

// IsCacheable reports whether clients of protocol are reused. The answer is
// remembered per protocol tag.
func (p *Provider) IsCacheable(protocol string) (bool, error) {
	if v, found := p.cacheable.Get(protocol); found {
		return v.(bool), nil
	}
	cacheable, err := p.protocols.IsCacheable(protocol)
	if err != nil {
		return false, err
	}
	p.cacheable.SetDefault(protocol, cacheable)
	return cacheable, nil
}

// Invalidate evicts and closes the cached client of the configuration id.
func (p *Provider) Invalidate(id string) {
	p.logger.Debug("Invalidating external system", logging.String("external_system_id", id))
	p.instances.Invalidate(id)
}

// Release closes instance unless it is the cached client of its record.
// Callers pass every client they got from GetBySearchKeyOrID once done with it.
func (p *Provider) Release(instance protocols.ExternalSystem) {
	if instance == nil {
		return
	}
	if cached, found := p.instances.Get(instance.ID()); found && cached == instance {
		return
	}
	if err := instance.Close(); err != nil {
		p.logger.Warn("Could not close external system client", logging.Err(err))
	}
}

// Close releases every cached client.
func (p *Provider) Close() {
	p.instances.Close()
}

func (p *Provider) build(system *models.ExternalSystem) (protocols.ExternalSystem, error) {
	factory, err := p.protocols.Resolve(system.Protocol)
	if err != nil {
		return nil, err
	}

	instance := factory.Create()
	if err := instance.Configure(system); err != nil {
		p.logger.Warn("Could not configure external system",
			logging.String("external_system_id", system.ID),
			logging.String("protocol", system.Protocol),
			logging.Err(err),
		)
		instance.Close()
		return nil, err
	}
	return instance, nil
}
