package cache

import (
	"fmt"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"extsys/internal/common/logging"
)

type fakeInstance struct {
	id     int
	closes atomic.Int32
	err    error
}

func (f *fakeInstance) Close() error {
	f.closes.Add(1)
	return f.err
}

type builder struct {
	count atomic.Int32
}

func (b *builder) build() (*fakeInstance, error) {
	n := b.count.Add(1)
	return &fakeInstance{id: int(n)}, nil
}

func newCache(ttl time.Duration) *InstanceCache[*fakeInstance] {
	return NewInstanceCache[*fakeInstance](Config{TTL: ttl}, logging.NopLogger{})
}

func TestInstanceCache_GetOrCreate(t *testing.T) {
	t.Run("builds once and reuses", func(t *testing.T) {
		c := newCache(time.Minute)
		b := &builder{}

		first, err := c.GetOrCreate("ES1", b.build)
		require.NoError(t, err)
		second, err := c.GetOrCreate("ES1", b.build)
		require.NoError(t, err)

		assert.Same(t, first, second)
		assert.Equal(t, int32(1), b.count.Load())
		assert.Equal(t, 1, c.Len())
	})

	t.Run("build errors are not cached", func(t *testing.T) {
		c := newCache(time.Minute)
		calls := 0
		failing := func() (*fakeInstance, error) {
			calls++
			return nil, fmt.Errorf("bad configuration")
		}

		_, err := c.GetOrCreate("ES1", failing)
		assert.EqualError(t, err, "bad configuration")
		_, err = c.GetOrCreate("ES1", failing)
		assert.Error(t, err)
		assert.Equal(t, 2, calls)
		assert.Zero(t, c.Len())

		b := &builder{}
		instance, err := c.GetOrCreate("ES1", b.build)
		require.NoError(t, err)
		assert.NotNil(t, instance)
	})

	t.Run("concurrent misses build once", func(t *testing.T) {
		c := newCache(time.Minute)
		var builds atomic.Int32
		release := make(chan struct{})
		slow := func() (*fakeInstance, error) {
			builds.Add(1)
			<-release
			return &fakeInstance{}, nil
		}

		var wg sync.WaitGroup
		results := make([]*fakeInstance, 10)
		for i := range results {
			wg.Add(1)
			go func(i int) {
				defer wg.Done()
				instance, err := c.GetOrCreate("ES1", slow)
				assert.NoError(t, err)
				results[i] = instance
			}(i)
		}
		time.Sleep(20 * time.Millisecond)
		close(release)
		wg.Wait()

		assert.Equal(t, int32(1), builds.Load())
		for _, r := range results {
			assert.Same(t, results[0], r)
		}
	})
}

func TestInstanceCache_Eviction(t *testing.T) {
	t.Run("expiry closes the instance", func(t *testing.T) {
		c := newCache(20 * time.Millisecond)
		b := &builder{}
		first, err := c.GetOrCreate("ES1", b.build)
		require.NoError(t, err)

		time.Sleep(40 * time.Millisecond)
		_, found := c.Get("ES1")
		assert.False(t, found)

		c.EvictExpired()
		assert.Equal(t, int32(1), first.closes.Load())
		assert.Zero(t, c.Len())
	})

	t.Run("expired entry released on access", func(t *testing.T) {
		c := newCache(20 * time.Millisecond)
		b := &builder{}
		first, err := c.GetOrCreate("ES1", b.build)
		require.NoError(t, err)

		time.Sleep(40 * time.Millisecond)
		second, err := c.GetOrCreate("ES1", b.build)
		require.NoError(t, err)

		assert.NotSame(t, first, second)
		assert.Equal(t, int32(1), first.closes.Load())
		assert.Zero(t, second.closes.Load())
	})

	t.Run("invalidate never hands back the closed instance", func(t *testing.T) {
		c := newCache(time.Minute)
		b := &builder{}
		first, err := c.GetOrCreate("ES1", b.build)
		require.NoError(t, err)

		c.Invalidate("ES1")
		assert.Equal(t, int32(1), first.closes.Load())

		second, err := c.GetOrCreate("ES1", b.build)
		require.NoError(t, err)
		assert.NotSame(t, first, second)
		assert.Zero(t, second.closes.Load())
	})

	t.Run("racing evictions close once", func(t *testing.T) {
		c := newCache(5 * time.Millisecond)
		b := &builder{}
		instances := make([]*fakeInstance, 20)
		for i := range instances {
			instance, err := c.GetOrCreate(fmt.Sprintf("ES%d", i), b.build)
			require.NoError(t, err)
			instances[i] = instance
		}
		time.Sleep(10 * time.Millisecond)

		var wg sync.WaitGroup
		for i := range instances {
			wg.Add(3)
			key := fmt.Sprintf("ES%d", i)
			go func() { defer wg.Done(); c.Invalidate(key) }()
			go func() { defer wg.Done(); c.EvictExpired() }()
			go func() { defer wg.Done(); c.Invalidate(key) }()
		}
		wg.Wait()

		for _, instance := range instances {
			assert.Equal(t, int32(1), instance.closes.Load())
		}
	})

	t.Run("close failures are swallowed", func(t *testing.T) {
		c := newCache(time.Minute)
		failing := &fakeInstance{err: fmt.Errorf("close failed")}
		_, err := c.GetOrCreate("ES1", func() (*fakeInstance, error) { return failing, nil })
		require.NoError(t, err)

		assert.NotPanics(t, func() { c.Invalidate("ES1") })
		assert.Equal(t, int32(1), failing.closes.Load())
	})

	t.Run("close releases everything", func(t *testing.T) {
		c := NewInstanceCache[*fakeInstance](Config{TTL: 20 * time.Millisecond, CleanupInterval: time.Hour}, logging.NopLogger{})
		b := &builder{}
		live, _ := c.GetOrCreate("live", b.build)
		expired, _ := c.GetOrCreate("expired", b.build)
		time.Sleep(30 * time.Millisecond)
		c.Invalidate("none")
		live2, _ := c.GetOrCreate("live", b.build)

		c.Close()
		assert.Equal(t, int32(1), live.closes.Load())
		assert.Equal(t, int32(1), expired.closes.Load())
		assert.Equal(t, int32(1), live2.closes.Load())
		assert.Zero(t, c.Len())
	})

	t.Run("janitor evicts in the background", func(t *testing.T) {
		c := NewInstanceCache[*fakeInstance](Config{TTL: 10 * time.Millisecond, CleanupInterval: 5 * time.Millisecond}, logging.NopLogger{})
		defer c.Close()
		b := &builder{}
		instance, _ := c.GetOrCreate("ES1", b.build)

		assert.Eventually(t, func() bool { return instance.closes.Load() == 1 }, time.Second, 5*time.Millisecond)
	})
}
