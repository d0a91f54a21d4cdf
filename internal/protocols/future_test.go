package protocols

import (
	"context"
	"fmt"
	"io"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestFuture(t *testing.T) {
	t.Run("completes once", func(t *testing.T) {
		f := NewFuture()
		ok := NewResponseBuilder().WithStatusCode(200).Build()

		assert.True(t, f.Complete(ok, nil))
		assert.False(t, f.Complete(Response{}, fmt.Errorf("late")))

		resp, err := f.Get()
		require.NoError(t, err)
		assert.Equal(t, 200, resp.StatusCode)
	})

	t.Run("await honours context", func(t *testing.T) {
		f := NewFuture()
		ctx, cancel := context.WithTimeout(context.Background(), 10*time.Millisecond)
		defer cancel()

		_, err := f.Await(ctx)
		assert.ErrorIs(t, err, context.DeadlineExceeded)
	})

	t.Run("failed future", func(t *testing.T) {
		_, err := FailedFuture(fmt.Errorf("boom")).Get()
		assert.EqualError(t, err, "boom")
	})

	t.Run("then maps response", func(t *testing.T) {
		f := CompletedFuture(NewResponseBuilder().WithData("a").Build()).Then(func(r Response) (Response, error) {
			return NewResponseBuilder().WithData(r.Data.(string) + "b").Build(), nil
		})
		resp, err := f.Await(context.Background())
		require.NoError(t, err)
		assert.Equal(t, "ab", resp.Data)
	})

	t.Run("then skips on error", func(t *testing.T) {
		called := false
		f := FailedFuture(fmt.Errorf("boom")).Then(func(r Response) (Response, error) {
			called = true
			return r, nil
		})
		_, err := f.Get()
		assert.Error(t, err)
		assert.False(t, called)
	})

	t.Run("await all", func(t *testing.T) {
		responses, err := AwaitAll(context.Background(),
			CompletedFuture(NewResponseBuilder().WithStatusCode(200).Build()),
			CompletedFuture(NewResponseBuilder().WithStatusCode(201).Build()),
		)
		require.NoError(t, err)
		require.Len(t, responses, 2)
		assert.Equal(t, 201, responses[1].StatusCode)
	})
}

func TestExecutor(t *testing.T) {
	t.Run("bounds concurrency", func(t *testing.T) {
		exec := NewExecutor(2)
		var running, peak atomic.Int32

		futures := make([]*Future, 8)
		for i := range futures {
			futures[i] = exec.Submit(context.Background(), func(ctx context.Context) (Response, error) {
				n := running.Add(1)
				for {
					p := peak.Load()
					if n <= p || peak.CompareAndSwap(p, n) {
						break
					}
				}
				time.Sleep(10 * time.Millisecond)
				running.Add(-1)
				return NewResponseBuilder().Build(), nil
			})
		}

		_, err := AwaitAll(context.Background(), futures...)
		require.NoError(t, err)
		assert.LessOrEqual(t, peak.Load(), int32(2))
	})

	t.Run("submit does not block caller", func(t *testing.T) {
		exec := NewExecutor(1)
		release := make(chan struct{})
		first := exec.Submit(context.Background(), func(ctx context.Context) (Response, error) {
			<-release
			return NewResponseBuilder().Build(), nil
		})

		start := time.Now()
		second := exec.Submit(context.Background(), func(ctx context.Context) (Response, error) {
			return NewResponseBuilder().Build(), nil
		})
		assert.Less(t, time.Since(start), 50*time.Millisecond)

		close(release)
		_, err := AwaitAll(context.Background(), first, second)
		require.NoError(t, err)
		exec.Wait()
	})

	t.Run("task runs with ended context when no slot frees up", func(t *testing.T) {
		exec := NewExecutor(1)
		release := make(chan struct{})
		defer close(release)
		exec.Submit(context.Background(), func(ctx context.Context) (Response, error) {
			<-release
			return Response{}, nil
		})

		ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
		defer cancel()
		f := exec.Submit(ctx, func(ctx context.Context) (Response, error) {
			return ErrorResponse("timed out", ctx.Err()), nil
		})

		resp, err := f.Get()
		require.NoError(t, err)
		assert.False(t, resp.IsSuccess())
		assert.ErrorIs(t, resp.ErrorCause, context.DeadlineExceeded)
	})

	t.Run("default executor is shared", func(t *testing.T) {
		assert.Same(t, DefaultExecutor(), DefaultExecutor())
	})
}

func TestPayloads(t *testing.T) {
	var wg sync.WaitGroup
	suppliers := map[string]PayloadSupplier{
		`{"a":1}`: BytesPayload([]byte(`{"a":1}`)),
		`{"b":2}`: StringPayload(`{"b":2}`),
		`{"c":3}`: JSONPayload(map[string]int{"c": 3}),
	}
	for want, supplier := range suppliers {
		wg.Add(1)
		go func(want string, supplier PayloadSupplier) {
			defer wg.Done()
			for i := 0; i < 2; i++ {
				r, err := supplier()
				assert.NoError(t, err)
				data, err := io.ReadAll(r)
				assert.NoError(t, err)
				assert.Equal(t, want, string(data))
			}
		}(want, supplier)
	}
	wg.Wait()
}
