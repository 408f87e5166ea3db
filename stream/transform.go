// ©Hayabusa Cloud Co., Ltd. 2026. All rights reserved.
// Use of this source code is governed by a MIT-style
// license that can be found in the LICENSE file.

package stream

import (
	"errors"
	"sync"

	"code.hybscloud.com/reactor"
)

// ============================================================================
// TRANSFORMATION OPERATORS
// ============================================================================

// Map derives a stream of fn applied to every value of s.
func Map[T, V any](s *Stream[T], fn func(v T) V) *Stream[V] {
	return derive[T, V](s, s.n.batchSize, func(ev *reactor.Event, out *node) error {
		return out.emit(ev, fn(valueOf[T](ev)))
	})
}

// TryMap derives a stream of fn applied to every value of s. An error
// returned by fn enters the error path of the derived stream instead of
// producing a value.
func TryMap[T, V any](s *Stream[T], fn func(v T) (V, error)) *Stream[V] {
	return derive[T, V](s, s.n.batchSize, func(ev *reactor.Event, out *node) error {
		v, err := fn(valueOf[T](ev))
		if err != nil {
			out.handleError(err)
			return nil
		}
		return out.emit(ev, v)
	})
}

// MapMany derives a stream of the values of the streams fn returns, one per
// value of s. Errors of those streams enter the error path of the derived
// stream. A returned stream still holding construction-time values is
// flushed once attached.
func MapMany[T, V any](s *Stream[T], fn func(v T) *Stream[V]) *Stream[V] {
	return derive[T, V](s, s.n.batchSize, func(ev *reactor.Event, out *node) error {
		inner := fn(valueOf[T](ev))
		if inner == nil {
			return nil
		}
		inner.n.on(out, func(iev *reactor.Event) error {
			return out.emit(iev, iev.Data)
		})
		inner.n.addHandler(func(error) bool { return true }, out.handleError)

		inner.mu.Lock()
		pending := len(inner.values) > 0 && !inner.flushed
		inner.mu.Unlock()
		if pending {
			if err := inner.flush(ev); err != nil && !errors.Is(err, ErrAlreadyFlushed) {
				return err
			}
		}
		return nil
	})
}

// Split derives a stream of the elements of every slice of s, one value per
// element, in order.
func Split[E any](s *Stream[[]E]) *Stream[E] {
	return derive[[]E, E](s, s.n.batchSize, func(ev *reactor.Event, out *node) error {
		for _, e := range valueOf[[]E](ev) {
			if err := out.emit(ev, e); err != nil {
				return err
			}
		}
		return nil
	})
}

// ============================================================================
// REDUCTION
// ============================================================================

// Reduce derives a stream of accumulations of s with fn, starting from
// initial.
//
// On an unbounded stream every arrival emits the running accumulation. On a
// batched stream the accumulation is private to the batch: only the final
// accumulator is emitted when the batch closes, and the next batch starts
// again from initial.
func Reduce[T, A any](s *Stream[T], fn func(acc A, v T) A, initial A) *Stream[A] {
	return ReduceWith(s, fn, func() A { return initial })
}

// ReduceWith is Reduce with a fresh initial accumulator from supplier for
// every batch. A nil supplier starts from the zero A.
func ReduceWith[T, A any](s *Stream[T], fn func(acc A, v T) A, supplier func() A) *Stream[A] {
	if supplier == nil {
		supplier = func() A {
			var zero A
			return zero
		}
	}

	var (
		mu      sync.Mutex
		acc     A
		started bool
	)
	if !s.IsBatch() {
		scan := func(v T) A {
			mu.Lock()
			defer mu.Unlock()
			if !started {
				acc = supplier()
				started = true
			}
			acc = fn(acc, v)
			return acc
		}
		return derive[T, A](s, 1, func(ev *reactor.Event, out *node) error {
			return out.emit(ev, scan(valueOf[T](ev)))
		})
	}

	c := &counter{n: s.n.batchSize}
	reduce := func(v T) (A, bool) {
		mu.Lock()
		defer mu.Unlock()
		opens, closes := c.next()
		if opens {
			acc = supplier()
		}
		acc = fn(acc, v)
		return acc, closes
	}
	return derive[T, A](s, 1, func(ev *reactor.Event, out *node) error {
		if v, closes := reduce(valueOf[T](ev)); closes {
			return out.emit(ev, v)
		}
		return nil
	})
}
