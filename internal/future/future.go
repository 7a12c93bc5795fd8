package future

import (
	"context"
	"fmt"
	"sync"
	"time"
)

// Completion is the type-erased view of a future used when tracking
// heterogeneous pending work.
type Completion interface {
	// Done is closed once the future has a result or error.
	Done() <-chan struct{}
	// Err returns the future's error, if any. Only valid after Done.
	Err() error
}

// Future holds the eventual result of an asynchronous operation.
// A future completes exactly once; later completions are ignored.
type Future[T any] struct {
	mu   sync.Mutex
	done chan struct{}
	val  T
	err  error
	set  bool
}

// New returns an incomplete future.
func New[T any]() *Future[T] {
	return &Future[T]{done: make(chan struct{})}
}

// Completed returns a future already completed with val.
func Completed[T any](val T) *Future[T] {
	f := New[T]()
	f.SetResult(val)
	return f
}

// SetResult completes the future with val. No-op if already complete.
func (f *Future[T]) SetResult(val T) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.set {
		return
	}
	f.val = val
	f.set = true
	close(f.done)
}

// SetErr completes the future with err. No-op if already complete.
func (f *Future[T]) SetErr(err error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.set {
		return
	}
	f.err = err
	f.set = true
	close(f.done)
}

// Done implements Completion.
func (f *Future[T]) Done() <-chan struct{} {
	return f.done
}

// Err implements Completion.
func (f *Future[T]) Err() error {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.err
}

// Wait blocks until the future completes or ctx is cancelled.
func (f *Future[T]) Wait(ctx context.Context) (T, error) {
	select {
	case <-f.done:
		f.mu.Lock()
		defer f.mu.Unlock()
		return f.val, f.err
	case <-ctx.Done():
		var zero T
		return zero, ctx.Err()
	}
}

// Value returns the result without blocking. It must only be called
// after Done.
func (f *Future[T]) Value() (T, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.val, f.err
}

// Timeout returns a future that mirrors f but fails with a timeout
// error if f does not complete within d.
func Timeout[T any](f *Future[T], d time.Duration) *Future[T] {
	out := New[T]()
	go func() {
		timer := time.NewTimer(d)
		defer timer.Stop()
		select {
		case <-f.done:
			val, err := f.Value()
			if err != nil {
				out.SetErr(err)
			} else {
				out.SetResult(val)
			}
		case <-timer.C:
			out.SetErr(fmt.Errorf("future timed out after %s", d))
		}
	}()
	return out
}

// Then schedules fn as a continuation on f and returns a future for
// fn's result. fn receives f's result and error.
func Then[T, U any](f *Future[T], fn func(T, error) (U, error)) *Future[U] {
	out := New[U]()
	go func() {
		<-f.done
		val, err := f.Value()
		res, err := fn(val, err)
		if err != nil {
			out.SetErr(err)
		} else {
			out.SetResult(res)
		}
	}()
	return out
}
