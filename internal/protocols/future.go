package protocols

import (
	"context"
	"sync"
)

// Future is the handle of a request in flight. It completes exactly once,
// either with a Response or with an error raised before the request was dispatched.
type Future struct {
	done     chan struct{}
	once     sync.Once
	response Response
	err      error
}

// NewFuture returns an incomplete future.
func NewFuture() *Future {
	return &Future{done: make(chan struct{})}
}

// CompletedFuture returns a future already holding resp.
func CompletedFuture(resp Response) *Future {
	f := NewFuture()
	f.Complete(resp, nil)
	return f
}

// FailedFuture returns a future already holding err.
func FailedFuture(err error) *Future {
	f := NewFuture()
	f.Complete(Response{}, err)
	return f
}

// Complete resolves the future. Only the first call has an effect; it reports
// whether this call was the one that completed it.
func (f *Future) Complete(resp Response, err error) bool {
	completed := false
	f.once.Do(func() {
		f.response = resp
		f.err = err
		completed = true
		close(f.done)
	})
	return completed
}

// Done is closed once the future completes.
func (f *Future) Done() <-chan struct{} {
	return f.done
}

// Await blocks until the future completes or ctx ends.
func (f *Future) Await(ctx context.Context) (Response, error) {
	select {
	case <-f.done:
		return f.response, f.err
	case <-ctx.Done():
		return Response{}, ctx.Err()
	}
}

// Get blocks until the future completes.
func (f *Future) Get() (Response, error) {
	<-f.done
	return f.response, f.err
}

// Then returns a future completed with fn applied to this future's response.
// Errors are passed through without calling fn.
func (f *Future) Then(fn func(Response) (Response, error)) *Future {
	next := NewFuture()
	go func() {
		resp, err := f.Get()
		if err != nil {
			next.Complete(Response{}, err)
			return
		}
		next.Complete(fn(resp))
	}()
	return next
}

// AwaitAll waits for every future and returns their responses in order. The
// first error (including ctx ending) is returned.
func AwaitAll(ctx context.Context, futures ...*Future) ([]Response, error) {
	responses := make([]Response, len(futures))
	for i, f := range futures {
		resp, err := f.Await(ctx)
		if err != nil {
			return nil, err
		}
		responses[i] = resp
	}
	return responses, nil
}
