package types

import (
	"context"
	"sync"
)

// Future is a single-shot result that is settled from outside, once.
type Future[T any] struct {
	once  sync.Once
	done  chan struct{}
	value T
	err   error
}

// NewFuture returns an unsettled future.
func NewFuture[T any]() *Future[T] {
	return &Future[T]{done: make(chan struct{})}
}

// Resolve settles the future with v. It returns false if it was already settled.
func (f *Future[T]) Resolve(v T) bool {
	settled := false
	f.once.Do(func() {
		f.value = v
		close(f.done)
		settled = true
	})
	return settled
}

// Reject settles the future with err. It returns false if it was already settled.
func (f *Future[T]) Reject(err error) bool {
	settled := false
	f.once.Do(func() {
		f.err = err
		close(f.done)
		settled = true
	})
	return settled
}

// Done is closed once the future is settled.
func (f *Future[T]) Done() <-chan struct{} {
	return f.done
}

// Wait blocks until the future settles or ctx is done.
func (f *Future[T]) Wait(ctx context.Context) (T, error) {
	select {
	case <-f.done:
		return f.value, f.err
	case <-ctx.Done():
		var zero T
		return zero, ctx.Err()
	}
}

// Result returns the settled value without blocking. ok is false while unsettled.
func (f *Future[T]) Result() (value T, ok bool, err error) {
	select {
	case <-f.done:
		return f.value, true, f.err
	default:
		var zero T
		return zero, false, nil
	}
}
