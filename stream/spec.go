// ©Hayabusa Cloud Co., Ltd. 2026. All rights reserved.
// Use of this source code is governed by a MIT-style
// license that can be found in the LICENSE file.

package stream

import (
	"log/slog"

	"code.hybscloud.com/reactor"
)

// Spec builds the root stage of a pipeline with fluent configuration.
//
// Example:
//
//	d := reactor.New("pipeline").BuildRingBuffer()
//	in := stream.NewSpec[int]().Dispatcher(d).Deferred()
//	stream.Map(in.Compose(), strconv.Itoa).Consume(fmt.Println)
//	in.Accept(42)
type Spec[T any] struct {
	dispatcher reactor.Dispatcher
	obs        *reactor.Observable
	batchSize  int
	values     []T
	timer      reactor.Timer
	logger     *slog.Logger
}

// NewSpec creates a spec for an unbounded stream on an inline dispatcher.
func NewSpec[T any]() *Spec[T] {
	return &Spec[T]{batchSize: -1}
}

// Dispatcher sets the dispatcher every stage of the pipeline runs on.
func (s *Spec[T]) Dispatcher(d reactor.Dispatcher) *Spec[T] {
	s.dispatcher = d
	return s
}

// Observable shares an existing observable. It takes precedence over
// Dispatcher.
func (s *Spec[T]) Observable(o *reactor.Observable) *Spec[T] {
	s.obs = o
	return s
}

// Capacity sets the batch size. A size <= 0 makes the stream unbounded.
func (s *Spec[T]) Capacity(size int) *Spec[T] {
	if size <= 0 {
		size = -1
	}
	s.batchSize = size
	return s
}

// Each loads values to be published by Flush and sets the batch size to
// their number.
func (s *Spec[T]) Each(values ...T) *Spec[T] {
	s.values = values
	if len(values) > 0 {
		s.batchSize = len(values)
	}
	return s
}

// Timer sets the timer used by Window and MovingWindow.
func (s *Spec[T]) Timer(t reactor.Timer) *Spec[T] {
	s.timer = t
	return s
}

// Logger sets the logger for errors no stage handles.
func (s *Spec[T]) Logger(l *slog.Logger) *Spec[T] {
	s.logger = l
	return s
}

// Get creates the stream.
func (s *Spec[T]) Get() *Stream[T] {
	obs := s.obs
	if obs == nil {
		d := s.dispatcher
		if d == nil {
			d = reactor.NewSyncDispatcher(nil)
		}
		var opts []reactor.ObservableOption
		if s.logger != nil {
			opts = append(opts, reactor.WithLogger(s.logger))
		}
		obs = reactor.NewObservable(d, opts...)
	}
	st := newStream[T](newNode(obs, s.batchSize, s.timer, s.logger))
	st.values = append([]T(nil), s.values...)
	return st
}

// Deferred creates the stream and returns its write side.
func (s *Spec[T]) Deferred() *Deferred[T] {
	return &Deferred[T]{s: s.Get()}
}

// Deferred is the write side of a stream.
type Deferred[T any] struct {
	s *Stream[T]
}

// NewDeferred pairs a write side with s.
func NewDeferred[T any](s *Stream[T]) *Deferred[T] {
	return &Deferred[T]{s: s}
}

// Accept publishes v on the stream. On a ring-buffer dispatcher it blocks
// while the ring is full and returns an error matched by reactor.IsRejected
// once the dispatcher is shut down.
func (d *Deferred[T]) Accept(v T) error {
	return d.s.n.notify(v)
}

// AcceptError publishes err on the error path of the stream, in order with
// the values accepted before it.
func (d *Deferred[T]) AcceptError(err error) error {
	if err == nil {
		return nil
	}
	return d.s.n.raise(err)
}

// Compose returns the read side.
func (d *Deferred[T]) Compose() *Stream[T] {
	return d.s
}
