package executor

import "context"

// Future is the typed result of work submitted with Go.
type Future[T any] struct {
	done  chan struct{}
	value T
	err   error
}

// Go runs fn on ex and returns a Future for its result.
func Go[T any](ex Executor, fn func(ctx context.Context) (T, error)) *Future[T] {
	f := &Future[T]{done: make(chan struct{})}
	ex.Submit(func(ctx context.Context) {
		defer close(f.done)
		f.value, f.err = fn(ctx)
	})
	return f
}

// Await blocks until the result is ready or ctx is done. Abandoning the wait
// does not stop the work.
func (f *Future[T]) Await(ctx context.Context) (T, error) {
	select {
	case <-f.done:
		return f.value, f.err
	case <-ctx.Done():
		var zero T
		return zero, ctx.Err()
	}
}

// Done is closed once the result is available.
func (f *Future[T]) Done() <-chan struct{} {
	return f.done
}
