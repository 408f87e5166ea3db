// ©Hayabusa Cloud Co., Ltd. 2026. All rights reserved.
// Use of this source code is governed by a MIT-style
// license that can be found in the LICENSE file.

package stream

import (
	"errors"
	"sync"

	"code.hybscloud.com/reactor"
)

// Stream is the read side of a pipeline stage.
//
// Operators derive new stages bound to the same dispatcher; values flow from
// a stage to its derived stages through dispatched events, errors flow from
// a stage to every descendant until a handler intercepts them.
//
// Operators whose output element type differs from the input are package
// functions: Map, TryMap, MapMany, Reduce, Collect, Window, MovingWindow
// and Split.
type Stream[T any] struct {
	n *node

	mu      sync.Mutex
	values  []T
	flushed bool
}

func newStream[T any](n *node) *Stream[T] {
	return &Stream[T]{n: n}
}

// derive creates a stage fed by s through fn. fn receives every event
// published on s and the new stage to emit to.
func derive[T, V any](s *Stream[T], batchSize int, fn func(ev *reactor.Event, out *node) error) *Stream[V] {
	c := s.n.child(batchSize)
	s.n.on(c, func(ev *reactor.Event) error {
		return fn(ev, c)
	})
	return newStream[V](c)
}

// valueOf returns the payload of ev as a T. A nil payload yields the zero T.
func valueOf[T any](ev *reactor.Event) T {
	v, _ := ev.Data.(T)
	return v
}

// IsBatch reports whether the stream has a positive batch size.
func (s *Stream[T]) IsBatch() bool {
	return s.n.batchSize > 0
}

// BatchSize returns the batch size, -1 when unbounded.
func (s *Stream[T]) BatchSize() int {
	return s.n.batchSize
}

// Key returns the key values are accepted on.
func (s *Stream[T]) Key() reactor.Key {
	return s.n.acceptKey
}

// Observable returns the observable the stage publishes through.
func (s *Stream[T]) Observable() *reactor.Observable {
	return s.n.obs
}

// Consume registers fn for every value. A panic in fn enters the error path
// of s.
func (s *Stream[T]) Consume(fn func(v T)) *Stream[T] {
	s.n.on(s.n, func(ev *reactor.Event) error {
		fn(valueOf[T](ev))
		return nil
	})
	return s
}

// ConsumeErr registers fn for every value. An error returned by fn enters
// the error path of s.
func (s *Stream[T]) ConsumeErr(fn func(v T) error) *Stream[T] {
	s.n.on(s.n, func(ev *reactor.Event) error {
		return fn(valueOf[T](ev))
	})
	return s
}

// Connect forwards every value of s to target.
func (s *Stream[T]) Connect(target *Stream[T]) *Stream[T] {
	s.n.on(s.n, func(ev *reactor.Event) error {
		return target.n.emit(ev, ev.Data)
	})
	return s
}

// NotifyOn publishes every value of s on key through obs.
func (s *Stream[T]) NotifyOn(obs *reactor.Observable, key any) *Stream[T] {
	s.n.on(s.n, func(ev *reactor.Event) error {
		return obs.Forward(ev, key, ev.Data, nil)
	})
	return s
}

// OnError registers fn for every error reaching s. Registered errors stop
// here and no longer flow to derived stages.
func (s *Stream[T]) OnError(fn func(err error)) *Stream[T] {
	s.n.addHandler(func(error) bool { return true }, fn)
	return s
}

// When registers fn for errors reaching s that match E, as errors.As does.
// Matched errors stop here; others keep flowing to derived stages.
func When[E error, T any](s *Stream[T], fn func(err E)) *Stream[T] {
	s.n.addHandler(func(err error) bool {
		var target E
		return errors.As(err, &target)
	}, func(err error) {
		var target E
		if errors.As(err, &target) {
			fn(target)
		}
	})
	return s
}

// Filter derives a stream of the values p accepts.
func (s *Stream[T]) Filter(p func(v T) bool) *Stream[T] {
	return derive[T, T](s, s.n.batchSize, func(ev *reactor.Event, out *node) error {
		if !p(valueOf[T](ev)) {
			return nil
		}
		return out.emit(ev, ev.Data)
	})
}

// Tap returns a holder continuously updated with the latest value of s.
func (s *Stream[T]) Tap() *Tap[T] {
	t := &Tap[T]{}
	s.n.on(s.n, func(ev *reactor.Event) error {
		t.set(valueOf[T](ev))
		return nil
	})
	return t
}

// Flush publishes the values the stream was created with, in order. It must
// be called once, after the consumers are attached; later calls return
// ErrAlreadyFlushed.
func (s *Stream[T]) Flush() error {
	return s.flush(nil)
}

// flush publishes the construction-time values. With a non-nil from they
// are emitted as work derived from it, so a consumer flushing a stream never
// waits on a ring slot it would have to free itself.
func (s *Stream[T]) flush(from *reactor.Event) error {
	s.mu.Lock()
	if s.flushed {
		s.mu.Unlock()
		return ErrAlreadyFlushed
	}
	s.flushed = true
	values := s.values
	s.values = nil
	s.mu.Unlock()

	for _, v := range values {
		var err error
		if from != nil {
			err = s.n.emit(from, v)
		} else {
			err = s.n.notify(v)
		}
		if err != nil {
			return err
		}
	}
	return nil
}

// Cancel detaches s and every stage derived from it.
func (s *Stream[T]) Cancel() {
	s.n.cancel()
}

// Tap holds the most recent value of a stream.
type Tap[T any] struct {
	mu sync.RWMutex
	v  T
	ok bool
}

// Get returns the most recent value, or the zero T if none arrived yet.
func (t *Tap[T]) Get() T {
	t.mu.RLock()
	defer t.mu.RUnlock()
	return t.v
}

// Load returns the most recent value and whether any value arrived.
func (t *Tap[T]) Load() (T, bool) {
	t.mu.RLock()
	defer t.mu.RUnlock()
	return t.v, t.ok
}

func (t *Tap[T]) set(v T) {
	t.mu.Lock()
	t.v = v
	t.ok = true
	t.mu.Unlock()
}
