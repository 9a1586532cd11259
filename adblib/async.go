package adblib

import (
	"context"
	"io"
)

// Future is the result of an operation running in the background.
type Future[T any] struct {
	done   chan struct{}
	cancel context.CancelCauseFunc
	val    T
	err    error
}

// Go runs fn in a new goroutine. The context passed to fn is cancelled by
// [Future.Cancel]. If fn succeeds with an [io.Closer] (like file content), the
// context stays alive so the connection it holds remains usable, and Cancel
// must be called to release it. Otherwise, it is released when fn returns.
func Go[T any](ctx context.Context, fn func(ctx context.Context) (T, error)) *Future[T] {
	ctx, cancel := context.WithCancelCause(ctx)
	f := &Future[T]{
		done:   make(chan struct{}),
		cancel: cancel,
	}
	go func() {
		defer close(f.done)
		f.val, f.err = fn(ctx)
		if _, ok := any(f.val).(io.Closer); !ok || f.err != nil {
			cancel(nil)
		}
	}()
	return f
}

// Done returns a channel which is closed once the result is available.
func (f *Future[T]) Done() <-chan struct{} {
	return f.done
}

// Wait blocks until the result is available.
func (f *Future[T]) Wait() (T, error) {
	<-f.done
	return f.val, f.err
}

// Cancel cancels the operation, or closes the connection held by the result
// if it has already completed. It does not wait for the operation to stop.
func (f *Future[T]) Cancel() {
	f.cancel(context.Canceled)
}
