// ©Hayabusa Cloud Co., Ltd. 2026. All rights reserved.
// Use of this source code is governed by a MIT-style
// license that can be found in the LICENSE file.

package stream

import (
	"sync"
	"time"

	"code.hybscloud.com/reactor"
)

// ============================================================================
// TIME-BASED OPERATORS
// ============================================================================

// WindowOption configures Window and MovingWindow.
type WindowOption func(*windowConfig)

type windowConfig struct {
	delay time.Duration
	timer reactor.Timer
}

// WithDelay delays the first tick. The default is no delay: the first tick
// fires as soon as the window is created.
func WithDelay(d time.Duration) WindowOption {
	return func(c *windowConfig) { c.delay = d }
}

// WithTimer overrides the timer configured on the stream.
func WithTimer(t reactor.Timer) WindowOption {
	return func(c *windowConfig) { c.timer = t }
}

// Window derives a stream of the values of s grouped by timer tick.
//
// The first tick fires after the configured delay, then every period. Each
// tick emits the values that arrived since the previous tick, in arrival
// order, and empties the buffer; a tick with no arrivals emits an empty
// slice. Panics with ErrNoTimer if neither s nor opts provide a timer.
func Window[T any](s *Stream[T], period time.Duration, opts ...WindowOption) *Stream[[]T] {
	cfg := windowOptions(s.n, period, opts)

	var (
		mu  sync.Mutex
		buf []T
	)
	out := derive[T, []T](s, s.n.batchSize, func(ev *reactor.Event, _ *node) error {
		mu.Lock()
		buf = append(buf, valueOf[T](ev))
		mu.Unlock()
		return nil
	})
	out.n.every(cfg, period, func() any {
		mu.Lock()
		defer mu.Unlock()
		w := buf
		buf = nil
		if w == nil {
			w = []T{}
		}
		return w
	})
	return out
}

// MovingWindow derives a stream of the most recent values of s, re-emitted
// on every timer tick.
//
// At most backlog values are retained: once the window is full each arrival
// evicts the oldest value. Every tick emits the retained values, oldest
// first, without clearing them. Panics with ErrNoTimer if neither s nor opts
// provide a timer, with ErrInvalidWindow if backlog <= 0.
func MovingWindow[T any](s *Stream[T], period time.Duration, backlog int, opts ...WindowOption) *Stream[[]T] {
	if backlog <= 0 {
		precondition(ErrInvalidWindow, "backlog %d", backlog)
	}
	cfg := windowOptions(s.n, period, opts)

	var (
		mu   sync.Mutex
		ring = make([]T, backlog)
		head int
		size int
	)
	out := derive[T, []T](s, s.n.batchSize, func(ev *reactor.Event, _ *node) error {
		v := valueOf[T](ev)
		mu.Lock()
		if size < backlog {
			ring[(head+size)%backlog] = v
			size++
		} else {
			ring[head] = v
			head = (head + 1) % backlog
		}
		mu.Unlock()
		return nil
	})
	out.n.every(cfg, period, func() any {
		mu.Lock()
		defer mu.Unlock()
		w := make([]T, size)
		for i := range w {
			w[i] = ring[(head+i)%backlog]
		}
		return w
	})
	return out
}

func windowOptions(n *node, period time.Duration, opts []WindowOption) windowConfig {
	if period <= 0 {
		precondition(ErrInvalidWindow, "period %v", period)
	}
	cfg := windowConfig{timer: n.timer}
	for _, opt := range opts {
		opt(&cfg)
	}
	if cfg.timer == nil {
		precondition(ErrNoTimer, "configure one with Spec.Timer or WithTimer")
	}
	return cfg
}

// every publishes snapshot() on n at every tick until n is detached or its
// dispatcher stops accepting work.
func (n *node) every(cfg windowConfig, period time.Duration, snapshot func() any) {
	sched := &schedule{}
	h, err := cfg.timer.Schedule(func(time.Time) {
		if n.isDetached() {
			return
		}
		if err := n.notify(snapshot()); err != nil {
			if reactor.IsRejected(err) {
				sched.Cancel()
				return
			}
			n.handleError(err)
		}
	}, cfg.delay, period)
	if err != nil {
		precondition(ErrNoTimer, "%v", err)
	}
	sched.set(h)
	n.own(sched)
}

// schedule is a timer handle that may be cancelled before it is known.
type schedule struct {
	mu      sync.Mutex
	h       reactor.Cancellable
	stopped bool
}

func (s *schedule) set(h reactor.Cancellable) {
	s.mu.Lock()
	if s.stopped {
		s.mu.Unlock()
		h.Cancel()
		return
	}
	s.h = h
	s.mu.Unlock()
}

func (s *schedule) Cancel() {
	s.mu.Lock()
	s.stopped = true
	h := s.h
	s.h = nil
	s.mu.Unlock()
	if h != nil {
		h.Cancel()
	}
}
