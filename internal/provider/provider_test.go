package provider

import (
	"context"
	"fmt"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"extsys/internal/common/cache"
	"extsys/internal/common/errors"
	"extsys/internal/common/logging"
	"extsys/internal/models"
	"extsys/internal/protocols"
	"extsys/internal/testutil"
)

type mapLookup struct {
	mu      sync.Mutex
	systems map[string]*models.ExternalSystem
	err     error
}

func (m *mapLookup) FindExternalSystem(_ context.Context, ref string) (*models.ExternalSystem, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.err != nil {
		return nil, m.err
	}
	if s, ok := m.systems[ref]; ok {
		return s, nil
	}
	for _, s := range m.systems {
		if s.SearchKey == ref {
			return s, nil
		}
	}
	return nil, errors.NotFoundError("external system")
}

func (m *mapLookup) put(s *models.ExternalSystem) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.systems[s.ID] = s
}

type countingSystem struct {
	protocols.Base
	configured *models.ExternalSystem
	closes     atomic.Int32
}

func (c *countingSystem) Configure(s *models.ExternalSystem) error {
	if s.Name == "broken" {
		return errors.ConfigError("broken configuration")
	}
	c.configured = s
	return c.Base.Configure(s)
}

func (c *countingSystem) Send(context.Context, protocols.SendRequest) *protocols.Future {
	return protocols.CompletedFuture(protocols.NewResponseBuilder().Build())
}

func (c *countingSystem) Close() error {
	c.closes.Add(1)
	return nil
}

type countingFactory struct {
	protocol  string
	cacheable bool
	calls     *atomic.Int32
}

func (f countingFactory) GetType() string { return f.protocol }
func (f countingFactory) Cacheable() bool {
	f.calls.Add(1)
	return f.cacheable
}
func (f countingFactory) Create() protocols.ExternalSystem { return &countingSystem{} }

type fixture struct {
	provider       *Provider
	lookup         *mapLookup
	cacheableCalls *atomic.Int32
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	calls := &atomic.Int32{}
	registry := protocols.NewRegistry()
	registry.Register(countingFactory{protocol: models.ProtocolHTTP, cacheable: true, calls: calls})
	registry.Register(countingFactory{protocol: models.ProtocolRedisStream, cacheable: false, calls: calls})

	lookup := &mapLookup{systems: map[string]*models.ExternalSystem{}}
	lookup.put(testutil.NewExternalSystemBuilder().WithID("ES1").WithSearchKey("countries").Build())
	lookup.put(testutil.NewExternalSystemBuilder().WithID("ES2").WithSearchKey("orders").WithProtocol(models.ProtocolRedisStream).Build())
	lookup.put(testutil.NewExternalSystemBuilder().WithID("ES3").WithSearchKey("off").WithActive(false).Build())

	instances := cache.NewInstanceCache[protocols.ExternalSystem](cache.Config{TTL: time.Minute}, logging.NopLogger{})
	p := New(lookup, registry, instances, logging.NopLogger{})
	t.Cleanup(p.Close)
	return &fixture{provider: p, lookup: lookup, cacheableCalls: calls}
}

func TestProvider_GetBySearchKeyOrID(t *testing.T) {
	ctx := context.Background()

	t.Run("cacheable instances are reused", func(t *testing.T) {
		f := newFixture(t)

		byID, ok, err := f.provider.GetBySearchKeyOrID(ctx, "ES1")
		require.NoError(t, err)
		require.True(t, ok)
		bySearchKey, ok, err := f.provider.GetBySearchKeyOrID(ctx, "countries")
		require.NoError(t, err)
		require.True(t, ok)

		assert.Same(t, byID, bySearchKey)
		assert.Equal(t, "ES1", byID.(*countingSystem).ID())
	})

	t.Run("non cacheable instances are fresh", func(t *testing.T) {
		f := newFixture(t)

		first, ok, err := f.provider.GetBySearchKeyOrID(ctx, "orders")
		require.NoError(t, err)
		require.True(t, ok)
		second, _, _ := f.provider.GetBySearchKeyOrID(ctx, "orders")

		assert.NotSame(t, first, second)
		assert.Equal(t, int32(1), f.cacheableCalls.Load())
	})

	t.Run("absent and inactive are empty", func(t *testing.T) {
		f := newFixture(t)

		for _, ref := range []string{"missing", "ES3", "off"} {
			instance, ok, err := f.provider.GetBySearchKeyOrID(ctx, ref)
			assert.NoError(t, err, ref)
			assert.False(t, ok, ref)
			assert.Nil(t, instance, ref)
		}
	})

	t.Run("lookup failures are returned", func(t *testing.T) {
		f := newFixture(t)
		f.lookup.err = fmt.Errorf("database unavailable")

		_, ok, err := f.provider.GetBySearchKeyOrID(ctx, "ES1")
		assert.EqualError(t, err, "database unavailable")
		assert.False(t, ok)
	})

	t.Run("unknown protocol", func(t *testing.T) {
		f := newFixture(t)
		f.lookup.put(testutil.NewExternalSystemBuilder().WithID("ES4").WithProtocol("FTP").Build())

		_, _, err := f.provider.GetBySearchKeyOrID(ctx, "ES4")
		require.Error(t, err)
		assert.Equal(t, "No external system found for protocol FTP", errors.Message(err))
	})

	t.Run("configuration failures are retried", func(t *testing.T) {
		f := newFixture(t)
		broken := testutil.NewExternalSystemBuilder().WithID("ES5").Build()
		broken.Name = "broken"
		f.lookup.put(broken)

		_, _, err := f.provider.GetBySearchKeyOrID(ctx, "ES5")
		assert.True(t, errors.IsType(err, errors.ErrTypeConfig))

		fixed := testutil.NewExternalSystemBuilder().WithID("ES5").Build()
		f.lookup.put(fixed)
		instance, ok, err := f.provider.GetBySearchKeyOrID(ctx, "ES5")
		require.NoError(t, err)
		assert.True(t, ok)
		assert.Same(t, fixed, instance.(*countingSystem).configured)
	})

	t.Run("cacheability is remembered per protocol", func(t *testing.T) {
		f := newFixture(t)
		for i := 0; i < 3; i++ {
			_, _, err := f.provider.GetBySearchKeyOrID(ctx, "ES1")
			require.NoError(t, err)
		}
		assert.Equal(t, int32(1), f.cacheableCalls.Load())
	})
}

func TestProvider_Invalidate(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)

	first, _, err := f.provider.GetBySearchKeyOrID(ctx, "ES1")
	require.NoError(t, err)

	f.provider.Invalidate("ES1")
	assert.Equal(t, int32(1), first.(*countingSystem).closes.Load())

	second, _, err := f.provider.GetBySearchKeyOrID(ctx, "ES1")
	require.NoError(t, err)
	assert.NotSame(t, first, second)
	assert.Zero(t, second.(*countingSystem).closes.Load())

	f.provider.Close()
	assert.Equal(t, int32(1), second.(*countingSystem).closes.Load())
	assert.Equal(t, int32(1), first.(*countingSystem).closes.Load())
}

func TestProvider_Release(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)

	shared, _, err := f.provider.GetBySearchKeyOrID(ctx, "ES1")
	require.NoError(t, err)
	f.provider.Release(shared)
	assert.Zero(t, shared.(*countingSystem).closes.Load())

	fresh, _, err := f.provider.GetBySearchKeyOrID(ctx, "ES2")
	require.NoError(t, err)
	f.provider.Release(fresh)
	assert.Equal(t, int32(1), fresh.(*countingSystem).closes.Load())

	f.provider.Invalidate("ES1")
	f.provider.Release(nil)
	assert.Equal(t, int32(1), shared.(*countingSystem).closes.Load())
}
