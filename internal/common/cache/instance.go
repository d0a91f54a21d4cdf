// Package cache keeps long-lived client instances keyed by configuration id.
//
// Instances expire a fixed time after they were created, independent of use.
// Whenever an entry leaves the cache, by expiry, invalidation or Close, the
// instance's Close method is called exactly once. Close errors are logged and
// never returned to the caller that triggered the eviction.
//
// It wraps github.com/patrickmn/go-cache for storage and expiry and
// golang.org/x/sync/singleflight to collapse concurrent builds of one key.
//
// Usage:
//
//	instances := cache.NewInstanceCache[protocols.ExternalSystem](cache.DefaultConfig(), logger)
//	client, err := instances.GetOrCreate(id, func() (protocols.ExternalSystem, error) {
//		return build(id)
//	})
package cache

import (
	"io"
	"sync"
	"time"

	gocache "github.com/patrickmn/go-cache"
	"golang.org/x/sync/singleflight"

	"extsys/internal/common/logging"
)

// InstanceCache is a TTL cache of closable instances. It is safe for concurrent use.
type InstanceCache[T io.Closer] struct {
	items   *gocache.Cache
	flights singleflight.Group
	logger  logging.Logger

	stop     chan struct{}
	stopOnce sync.Once
	wg       sync.WaitGroup
}

// NewInstanceCache creates a cache. With a zero CleanupInterval no janitor
// runs and expired entries are only released on access or EvictExpired.
func NewInstanceCache[T io.Closer](config Config, logger logging.Logger) *InstanceCache[T] {
	if config.TTL <= 0 {
		config.TTL = DefaultTTL
	}
	if logger == nil {
		logger = logging.GetGlobalLogger()
	}

	c := &InstanceCache[T]{
		items:  gocache.New(config.TTL, 0),
		logger: logger,
		stop:   make(chan struct{}),
	}
	c.items.OnEvicted(c.release)

	if config.CleanupInterval > 0 {
		c.wg.Add(1)
		go c.janitor(config.CleanupInterval)
	}
	return c
}

// Get returns the live instance for key.
func (c *InstanceCache[T]) Get(key string) (T, bool) {
	if v, found := c.items.Get(key); found {
		return v.(T), true
	}
	var zero T
	return zero, false
}

// GetOrCreate returns the live instance for key, building and storing one on
// a miss. Build errors are returned and nothing is stored, so the next call
// builds again.
func (c *InstanceCache[T]) GetOrCreate(key string, build func() (T, error)) (T, error) {
	if instance, ok := c.Get(key); ok {
		return instance, nil
	}

	v, err, _ := c.flights.Do(key, func() (interface{}, error) {
		if instance, ok := c.Get(key); ok {
			return instance, nil
		}

		// Releases an expired entry still held for key
		c.items.Delete(key)

		instance, err := build()
		if err != nil {
			return nil, err
		}
		if err := c.items.Add(key, instance, gocache.DefaultExpiration); err != nil {
			c.closeInstance(key, instance)
			existing, ok := c.Get(key)
			if !ok {
				return nil, err
			}
			return existing, nil
		}
		c.logger.Debug("Cached instance", logging.String("key", key))
		return instance, nil
	})
	if err != nil {
		var zero T
		return zero, err
	}
	return v.(T), nil
}

// Invalidate evicts key. The evicted instance is closed.
func (c *InstanceCache[T]) Invalidate(key string) {
	c.items.Delete(key)
}

// EvictExpired releases every expired entry.
func (c *InstanceCache[T]) EvictExpired() {
	c.items.DeleteExpired()
}

// Len counts stored entries, expired ones not yet released included.
func (c *InstanceCache[T]) Len() int {
	return c.items.ItemCount()
}

// Close stops the janitor and evicts every entry.
func (c *InstanceCache[T]) Close() {
	c.stopOnce.Do(func() { close(c.stop) })
	c.wg.Wait()
	for key := range c.items.Items() {
		c.items.Delete(key)
	}
	// Items omits expired entries
	c.items.DeleteExpired()
}

func (c *InstanceCache[T]) janitor(interval time.Duration) {
	defer c.wg.Done()
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ticker.C:
			c.items.DeleteExpired()
		case <-c.stop:
			return
		}
	}
}

func (c *InstanceCache[T]) release(key string, value interface{}) {
	if instance, ok := value.(T); ok {
		c.closeInstance(key, instance)
	}
}

func (c *InstanceCache[T]) closeInstance(key string, instance T) {
	if err := instance.Close(); err != nil {
		c.logger.Error("Failed to close evicted instance", err, logging.String("key", key))
		return
	}
	c.logger.Debug("Closed evicted instance", logging.String("key", key))
}
