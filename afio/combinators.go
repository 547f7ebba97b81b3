package afio

import (
	"sync"

	"github.com/flowfs/afio/internal/pool"
)

// Awaitable is anything WhenAll/WhenAny can wait on: a Handle, or a Future
// from Call/Enumerate wrapped with AsAwaitable.
type Awaitable interface {
	wait() (any, error)
}

func (h Handle) wait() (any, error) {
	v, err := h.Wait()
	return v, err
}

type futureAwaitable[T any] struct{ f *pool.Future[T] }

func (a futureAwaitable[T]) wait() (any, error) {
	v, err := a.f.Wait()
	return v, err
}

// AsAwaitable adapts a typed Future (as returned by Call or Enumerate)
// into an Awaitable, so it can be mixed with Handles in a
// single WhenAll/WhenAny call.
func AsAwaitable[T any](f *pool.Future[T]) Awaitable { return futureAwaitable[T]{f} }

// WhenAll resolves once every item has reached its terminal completion,
// with the first error observed among them (in argument order), or nil if
// none failed.
func WhenAll(items ...Awaitable) *pool.Future[error] {
	fut, publish := pool.NewPromise[error]()
	go func() {
		var firstErr error
		for _, it := range items {
			if _, err := it.wait(); err != nil && firstErr == nil {
				firstErr = err
			}
		}
		publish(firstErr, nil)
	}()
	return fut
}

// WhenAny resolves as soon as the first item reaches its terminal
// completion, with that item's own error (or nil).
func WhenAny(items ...Awaitable) *pool.Future[error] {
	fut, publish := pool.NewPromise[error]()
	var once sync.Once
	for _, it := range items {
		it := it
		go func() {
			_, err := it.wait()
			once.Do(func() { publish(err, nil) })
		}()
	}
	return fut
}

// WhenAllNoThrow is WhenAll but never carries an error: it completes
// successfully once every item is done, regardless of how many of them
// failed.
func WhenAllNoThrow(items ...Awaitable) *pool.Future[error] {
	fut, publish := pool.NewPromise[error]()
	go func() {
		for _, it := range items {
			it.wait()
		}
		publish(nil, nil)
	}()
	return fut
}

// WhenAnyNoThrow is WhenAny but never carries an error.
func WhenAnyNoThrow(items ...Awaitable) *pool.Future[error] {
	fut, publish := pool.NewPromise[error]()
	var once sync.Once
	for _, it := range items {
		it := it
		go func() {
			it.wait()
			once.Do(func() { publish(nil, nil) })
		}()
	}
	return fut
}
