// Package future provides a settle-once future used to carry deferred op
// results from handlers, through the dispatch adapter, to the executor.
//
// A Future is completed exactly once. Callbacks registered with OnSettled
// run synchronously on the goroutine that completes it (or immediately if it
// already settled); they must not block.
package future

import (
	"context"
	"sync"
)

// Future is the eventual result of a computation.
type Future[T any] struct {
	mu        sync.Mutex
	done      chan struct{}
	settled   bool
	val       T
	err       error
	callbacks []func(T, error)
}

// New returns a pending future.
func New[T any]() *Future[T] {
	return &Future[T]{done: make(chan struct{})}
}

// Ready returns an already settled future.
func Ready[T any](v T, err error) *Future[T] {
	f := New[T]()
	f.Complete(v, err)
	return f
}

// Complete settles the future. Only the first call has an effect; later
// calls return false.
func (f *Future[T]) Complete(v T, err error) bool {
	f.mu.Lock()
	if f.settled {
		f.mu.Unlock()
		return false
	}
	f.settled = true
	f.val = v
	f.err = err
	callbacks := f.callbacks
	f.callbacks = nil
	close(f.done)
	f.mu.Unlock()

	for _, cb := range callbacks {
		cb(v, err)
	}
	return true
}

// Done returns a channel closed once the future settles.
func (f *Future[T]) Done() <-chan struct{} {
	return f.done
}

// Result returns the settled value. ok is false while pending.
func (f *Future[T]) Result() (v T, err error, ok bool) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if !f.settled {
		return v, nil, false
	}
	return f.val, f.err, true
}

// Await blocks until the future settles or ctx is done.
func (f *Future[T]) Await(ctx context.Context) (T, error) {
	select {
	case <-f.done:
		v, err, _ := f.Result()
		return v, err
	case <-ctx.Done():
		var zero T
		return zero, ctx.Err()
	}
}

// OnSettled registers cb to run when the future settles.
func (f *Future[T]) OnSettled(cb func(T, error)) {
	f.mu.Lock()
	if !f.settled {
		f.callbacks = append(f.callbacks, cb)
		f.mu.Unlock()
		return
	}
	v, err := f.val, f.err
	f.mu.Unlock()
	cb(v, err)
}

// Then returns a future settled with fn applied to the result of f.
func Then[T, U any](f *Future[T], fn func(T, error) (U, error)) *Future[U] {
	next := New[U]()
	f.OnSettled(func(v T, err error) {
		next.Complete(fn(v, err))
	})
	return next
}
