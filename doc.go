// ©Hayabusa Cloud Co., Ltd. 2026. All rights reserved.
// Use of this source code is governed by a MIT-style
// license that can be found in the LICENSE file.

// Package reactor provides in-process event dispatchers.
//
// A [Dispatcher] accepts events and plain tasks and governs how they run:
//
//   - [SyncDispatcher]: inline, on the caller's goroutine
//   - [RingBufferDispatcher]: a pre-allocated ring feeding one consumer goroutine
//   - [TraceDispatcher]: wraps any dispatcher and records every call
//
// Events are routed by a [Router] to the consumers a [Registry] selects for
// their key. [Observable] binds the three together, and the stream
// subpackage builds composable pipelines on top of it.
//
// # Quick Start
//
// Builder API selects the variant from the configuration:
//
//	d := reactor.New("events").Build()                      // → RingBufferDispatcher
//	d := reactor.New("events").Synchronous().Build()        // → SyncDispatcher
//	d := reactor.New("events").Traced(nil).Build()          // → TraceDispatcher over RingBufferDispatcher
//
// Publish and subscribe through an Observable:
//
//	obs := reactor.NewObservable(d)
//	obs.On("greet", reactor.ConsumerFunc(func(ev *reactor.Event) error {
//	    fmt.Println("hello", ev.Data)
//	    return nil
//	}))
//	obs.Notify("greet", "world")
//
// # Backpressure
//
// The ring holds a fixed number of slots. Dispatch and Execute block while
// every slot is taken; the wait policy decides how:
//
//	reactor.New("md").BusySpin()   // spin with CPU pause instructions
//	reactor.New("md").Yielding()   // adaptive backoff, never parks
//	reactor.New("md").Blocking()   // spin briefly, then park (default)
//
// TryDispatch and TryExecute never wait and return [ErrWouldBlock] instead:
//
//	backoff := iox.Backoff{}
//	for {
//	    err := d.TryExecute(task)
//	    if !reactor.IsWouldBlock(err) {
//	        return err
//	    }
//	    backoff.Wait()
//	}
//
// A consumer that publishes work derived from the event it handles, through
// [Observable.Forward] or [Observable.Reply], never waits: the derived work
// runs right after the current task on the same goroutine.
//
// # Lifecycle
//
//	RUNNING → SHUTTING_DOWN → TERMINATED   Shutdown: queued work drains
//	RUNNING → HALTED                       Halt: queued work is discarded
//
// Submissions after Shutdown or Halt fail with [ErrShutdown] or [ErrHalted],
// both matched by [IsRejected]:
//
//	if !d.AwaitAndShutdown(5 * time.Second) {
//	    log.Println("dispatcher did not drain in time")
//	}
//
// # Failures
//
// A failing consumer never unwinds into the dispatcher. [ConsumerRouter]
// isolates each consumer: an error it returns, or a panic recovered as a
// [*PanicError], goes to the event's error consumer and the remaining
// consumers still run. A panic escaping a plain task goes to the uncaught
// handler, which logs through log/slog by default.
//
// # Recycling
//
// [Reference] counts the holders of a [Recyclable] object and recycles it on
// the release that drops the count to zero, exactly once. [Pool] keeps
// recycled references on a lock-free free list for reuse. Observable draws
// its events from a pool, so consumers must not keep an *Event past Accept.
//
// # Time
//
// [Timer] runs periodic callbacks on its own goroutines; [GoTimer] is the
// default implementation. [TickClock] is a coarse clock refreshed by a timer
// at [DefaultClockResolution].
//
// # Race Detection
//
// The ring and the free list protect plain slot fields with acquire-release
// sequence numbers. The race detector cannot observe that ordering, so
// stress tests relying on it are excluded via //go:build !race.
//
// # Dependencies
//
// This package uses [code.hybscloud.com/atomix] for atomic primitives with
// explicit memory ordering, [code.hybscloud.com/spin] for CPU pause
// instructions, [code.hybscloud.com/iox] for semantic errors and backoff, and
// OpenTelemetry for dispatcher tracing.
package reactor
