// ©Hayabusa Cloud Co., Ltd. 2026. All rights reserved.
// Use of this source code is governed by a MIT-style
// license that can be found in the LICENSE file.

package reactor

import "time"

// Dispatcher accepts tasks and events and governs their execution
// concurrency and ordering.
//
// A Dispatcher is created once, owns its goroutines and slot buffer for its
// entire lifetime, and is retired through an explicit shutdown transition:
//
//	RUNNING → SHUTTING_DOWN → TERMINATED   (Shutdown, queued work drains)
//	RUNNING → HALTED                       (Halt, queued work is discarded)
//
// There is no transition out of a terminal state. Dispatch and Execute after
// Shutdown or Halt fail with an error matched by [IsRejected].
//
// Example:
//
//	d := reactor.New("events").BufferSize(4096).BuildRingBuffer()
//	defer d.AwaitAndShutdown(time.Second)
//
//	reg := reactor.NewKeyRegistry()
//	reg.Register("greet", reactor.ConsumerFunc(func(ev *reactor.Event) error {
//	    fmt.Println("hello", ev.Data)
//	    return nil
//	}))
//	d.Dispatch("greet", &reactor.Event{Data: "world"}, reg, nil, reactor.NewConsumerRouter(nil), nil)
type Dispatcher interface {
	// Dispatch routes ev to the consumers registry selects for key, through
	// router. A consumer failure is delivered to onError instead of being
	// returned to the caller. onComplete, if not nil, is invoked once every
	// consumer succeeded. With a nil registry the event is delivered to
	// onComplete only.
	//
	// Concurrent variants return before the consumers run.
	Dispatch(key any, ev *Event, registry Registry, onError ErrorConsumer, router Router, onComplete Consumer) error

	// Execute schedules fn through the same concurrency model as Dispatch,
	// without event or router semantics.
	Execute(fn func()) error

	// Alive reports whether the dispatcher still accepts work.
	Alive() bool

	// Shutdown stops accepting new work. Already queued work still drains.
	// Idempotent.
	Shutdown()

	// Halt stops accepting new work and discards queued work that has not
	// started executing. Idempotent.
	Halt()

	// AwaitAndShutdown calls Shutdown and blocks until queued work drained
	// or timeout elapsed. A timeout <= 0 waits without limit. Returns false
	// when the dispatcher did not drain in time.
	AwaitAndShutdown(timeout time.Duration) bool
}

// Consumer receives routed events.
//
// The event envelope is borrowed for the duration of Accept only: it may be
// recycled as soon as Accept returns. Copy ev.Data if it must outlive the call.
type Consumer interface {
	Accept(ev *Event) error
}

// ConsumerFunc adapts a function to the Consumer interface.
type ConsumerFunc func(ev *Event) error

// Accept calls f(ev).
func (f ConsumerFunc) Accept(ev *Event) error {
	return f(ev)
}

// ErrorConsumer receives failures captured while routing an event.
type ErrorConsumer func(err error)

// Router resolves which consumers receive an event and invokes them.
//
// Route is called on the dispatcher's consumer goroutine and must be safe to
// invoke from it. Failures of individual consumers are delivered to onError
// and never unwind into the dispatcher.
type Router interface {
	Route(key any, ev *Event, consumers []Consumer, onComplete Consumer, onError ErrorConsumer)
}

// Registry selects the ordered consumers that match a key.
//
// Select must not be mutated by the caller; it may be empty.
type Registry interface {
	Select(key any) []Consumer
}

// Recyclable is an object that can be reset and returned to a pool.
//
// Recycle may be invoked from any goroutine: it runs on whichever goroutine
// drops the reference count to zero.
type Recyclable interface {
	Recycle()
}

// Cancellable is a handle to a registration or a scheduled callback.
type Cancellable interface {
	Cancel()
}
