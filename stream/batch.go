// ©Hayabusa Cloud Co., Ltd. 2026. All rights reserved.
// Use of this source code is governed by a MIT-style
// license that can be found in the LICENSE file.

package stream

import (
	"sync"

	"code.hybscloud.com/reactor"
)

// ============================================================================
// COUNT-BASED OPERATORS
// ============================================================================

// counter tracks the position of arrivals within a batch of size n.
type counter struct {
	mu    sync.Mutex
	n     int
	count int
}

// next advances the counter and reports whether the arrival opens and
// whether it closes the current batch.
func (c *counter) next() (opens, closes bool) {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.count++
	opens = c.count == 1
	if c.count == c.n {
		c.count = 0
		closes = true
	}
	return opens, closes
}

// First derives a stream of the first value of every batch.
// Panics with ErrUnbounded if s is unbounded.
func (s *Stream[T]) First() *Stream[T] {
	return s.FirstN(s.n.batchSize)
}

// FirstN derives a stream of the first value of every batch of n values.
// Panics with ErrUnbounded if n <= 0.
func (s *Stream[T]) FirstN(n int) *Stream[T] {
	if n <= 0 {
		precondition(ErrUnbounded, "first() of an unbounded stream, extract a batch first")
	}
	c := &counter{n: n}
	return derive[T, T](s, n, func(ev *reactor.Event, out *node) error {
		if opens, _ := c.next(); opens {
			return out.emit(ev, ev.Data)
		}
		return nil
	})
}

// Last derives a stream of the value closing every batch.
// Panics with ErrUnbounded if s is unbounded.
func (s *Stream[T]) Last() *Stream[T] {
	return s.LastN(s.n.batchSize)
}

// LastN derives a stream of every n-th value, the one closing its batch.
// Panics with ErrUnbounded if n <= 0.
func (s *Stream[T]) LastN(n int) *Stream[T] {
	if n <= 0 {
		precondition(ErrUnbounded, "last() of an unbounded stream, extract a batch first")
	}
	c := &counter{n: n}
	return derive[T, T](s, n, func(ev *reactor.Event, out *node) error {
		if _, closes := c.next(); closes {
			return out.emit(ev, ev.Data)
		}
		return nil
	})
}

// Collect derives a stream of the batches of s, each emitted once full.
// Panics with ErrUnbounded if s is unbounded.
func Collect[T any](s *Stream[T]) *Stream[[]T] {
	return CollectN(s, s.n.batchSize)
}

// CollectN derives a stream of consecutive groups of n values, in arrival
// order. A group is emitted when its n-th value arrives; the next group
// starts empty. Panics with ErrUnbounded if n <= 0.
func CollectN[T any](s *Stream[T], n int) *Stream[[]T] {
	if n <= 0 {
		precondition(ErrUnbounded, "collect() of an unbounded stream")
	}
	var (
		mu  sync.Mutex
		buf = make([]T, 0, n)
	)
	return derive[T, []T](s, n, func(ev *reactor.Event, out *node) error {
		mu.Lock()
		buf = append(buf, valueOf[T](ev))
		if len(buf) < n {
			mu.Unlock()
			return nil
		}
		full := buf
		buf = make([]T, 0, n)
		mu.Unlock()

		return out.emit(ev, full)
	})
}
