// ©Hayabusa Cloud Co., Ltd. 2026. All rights reserved.
// Use of this source code is governed by a MIT-style
// license that can be found in the LICENSE file.

package reactor

import (
	"log/slog"
	"runtime/debug"
	"time"

	"code.hybscloud.com/atomix"
)

// Dispatcher lifecycle states.
const (
	stateRunning int32 = iota
	stateShuttingDown
	stateTerminated
	stateHalted
)

// RingBufferDispatcher feeds a pre-allocated ring of task slots to a single
// consumer goroutine.
//
// Producers claim a slot, fill it and publish it; the consumer executes
// published slots strictly in sequence order. Per-producer FIFO order is
// preserved across any number of producers. Dispatch blocks while the ring
// is full; TryDispatch returns ErrWouldBlock instead.
//
// A consumer callback that dispatches an event derived from the one it is
// handling (see Observable.Forward) never waits for a ring slot: the derived
// work is appended to a consumer-local tail pile and executed right after the
// current task, so a full ring cannot deadlock the consumer against itself.
//
// Example:
//
//	d := reactor.New("orders").BufferSize(4096).BuildRingBuffer()
//	defer d.AwaitAndShutdown(5 * time.Second)
//
//	if err := d.Execute(func() { process() }); reactor.IsRejected(err) {
//	    // dispatcher already shut down
//	}
type RingBufferDispatcher struct {
	name     string
	ring     *taskRing
	notEmpty waiter // consumer parks here
	notFull  waiter // producers park here

	_        pad
	state    atomix.Int32
	inflight atomix.Int64

	// Token of the job currently executing, zero between jobs.
	executing atomix.Uint64

	// Consumer-local
	epoch uint64
	pile  []job

	uncaught func(error)
	done     chan struct{}

	published atomix.Uint64
	executed  atomix.Uint64
	failed    atomix.Uint64
	rejected  atomix.Uint64
}

// Stats is a snapshot of dispatcher counters.
type Stats struct {
	// Published counts accepted tasks and events, tail pile included.
	Published uint64
	// Executed counts tasks that ran to completion.
	Executed uint64
	// Failed counts tasks whose execution panicked.
	Failed uint64
	// Rejected counts submissions refused because of the dispatcher state.
	Rejected uint64
	// Backlog is the number of published slots not yet consumed.
	Backlog int
	// Capacity is the ring capacity.
	Capacity int
}

func newRingBufferDispatcher(opts Options) *RingBufferDispatcher {
	logger := opts.logger
	if logger == nil {
		logger = slog.Default()
	}
	d := &RingBufferDispatcher{
		name:     opts.name,
		ring:     newTaskRing(opts.capacity, opts.singleProducer),
		notEmpty: newWaiter(opts.wait),
		notFull:  newWaiter(opts.wait),
		uncaught: opts.uncaught,
		done:     make(chan struct{}),
	}
	if d.uncaught == nil {
		name := opts.name
		d.uncaught = func(err error) {
			logger.Error("reactor: uncaught failure", "dispatcher", name, "error", err)
		}
	}
	go d.run()
	return d
}

// Name returns the dispatcher name.
func (d *RingBufferDispatcher) Name() string {
	return d.name
}

// Cap returns the ring capacity.
func (d *RingBufferDispatcher) Cap() int {
	return int(d.ring.capacity)
}

// Stats returns a snapshot of the dispatcher counters.
func (d *RingBufferDispatcher) Stats() Stats {
	return Stats{
		Published: d.published.Load(),
		Executed:  d.executed.Load(),
		Failed:    d.failed.Load(),
		Rejected:  d.rejected.Load(),
		Backlog:   d.ring.backlog(),
		Capacity:  int(d.ring.capacity),
	}
}

// Dispatch publishes an event for routing on the consumer goroutine.
// Blocks while the ring is full.
func (d *RingBufferDispatcher) Dispatch(key any, ev *Event, registry Registry, onError ErrorConsumer, router Router, onComplete Consumer) error {
	return d.dispatch(key, ev, registry, onError, router, onComplete, true)
}

// TryDispatch is Dispatch without blocking.
// Returns ErrWouldBlock if the ring is full.
func (d *RingBufferDispatcher) TryDispatch(key any, ev *Event, registry Registry, onError ErrorConsumer, router Router, onComplete Consumer) error {
	return d.dispatch(key, ev, registry, onError, router, onComplete, false)
}

// Execute publishes fn for execution on the consumer goroutine.
// Blocks while the ring is full.
//
// Execute must not be called from the consumer goroutine while the ring may
// be full: unlike a derived Dispatch, a plain task has no tail pile.
func (d *RingBufferDispatcher) Execute(fn func()) error {
	if fn == nil {
		return nil
	}
	return d.submit(job{fn: fn}, true)
}

// TryExecute is Execute without blocking.
// Returns ErrWouldBlock if the ring is full.
func (d *RingBufferDispatcher) TryExecute(fn func()) error {
	if fn == nil {
		return nil
	}
	return d.submit(job{fn: fn}, false)
}

// Alive reports whether the dispatcher accepts new work.
func (d *RingBufferDispatcher) Alive() bool {
	return d.state.Load() == stateRunning
}

// Shutdown stops accepting new work and lets the consumer drain the ring.
func (d *RingBufferDispatcher) Shutdown() {
	if d.state.CompareAndSwapAcqRel(stateRunning, stateShuttingDown) {
		d.notEmpty.wakeAll()
	}
}

// Halt stops accepting new work and abandons every task not yet started.
// The task executing at the time of the call, if any, runs to completion.
func (d *RingBufferDispatcher) Halt() {
	for {
		s := d.state.Load()
		if s == stateHalted || s == stateTerminated {
			return
		}
		if d.state.CompareAndSwapAcqRel(s, stateHalted) {
			d.notEmpty.wakeAll()
			d.notFull.wakeAll()
			return
		}
	}
}

// AwaitAndShutdown shuts down and waits for the consumer to drain.
// Returns true only if every accepted task was executed before timeout.
func (d *RingBufferDispatcher) AwaitAndShutdown(timeout time.Duration) bool {
	d.Shutdown()
	if timeout <= 0 {
		<-d.done
	} else {
		t := time.NewTimer(timeout)
		defer t.Stop()
		select {
		case <-d.done:
		case <-t.C:
			return false
		}
	}
	return d.state.Load() == stateTerminated
}

func (d *RingBufferDispatcher) dispatch(key any, ev *Event, registry Registry, onError ErrorConsumer, router Router, onComplete Consumer, block bool) error {
	if router == nil {
		return ErrNilRouter
	}
	if ev == nil {
		ev = &Event{}
	}
	j := job{
		key:        key,
		ev:         ev,
		registry:   registry,
		router:     router,
		onError:    onError,
		onComplete: onComplete,
	}
	if ev.token != 0 && ev.origin == Dispatcher(d) && ev.token == d.executing.Load() {
		return d.pileUp(j)
	}
	return d.submit(j, block)
}

// pileUp appends work derived from the executing job (consumer only).
// Derived work is part of draining, so it is accepted while shutting down.
func (d *RingBufferDispatcher) pileUp(j job) error {
	if d.state.Load() == stateHalted {
		d.rejected.Add(1)
		return ErrHalted
	}
	d.pile = append(d.pile, j)
	d.published.Add(1)
	return nil
}

func (d *RingBufferDispatcher) submit(j job, block bool) error {
	d.inflight.Add(1)
	if err := d.admit(); err != nil {
		d.leave()
		d.rejected.Add(1)
		return err
	}

	t, err := d.ring.tryClaim()
	for err != nil {
		if !block {
			d.leave()
			return err
		}
		d.notFull.wait(d.ring.hasSpace, d.halted)
		if d.halted() {
			d.leave()
			d.rejected.Add(1)
			return ErrHalted
		}
		t, err = d.ring.tryClaim()
	}

	t.job = j
	d.ring.publish(t)
	d.published.Add(1)
	d.leave()
	return nil
}

func (d *RingBufferDispatcher) admit() error {
	switch d.state.Load() {
	case stateRunning:
		return nil
	case stateHalted:
		return ErrHalted
	default:
		return ErrShutdown
	}
}

// leave ends a producer's critical section and wakes the consumer, which
// may be waiting for the last in-flight producer before terminating.
func (d *RingBufferDispatcher) leave() {
	d.inflight.Add(-1)
	d.notEmpty.signal()
}

func (d *RingBufferDispatcher) halted() bool {
	return d.state.Load() == stateHalted
}

func (d *RingBufferDispatcher) ready() bool {
	return d.ring.next() != nil
}

// stopping reports whether the consumer may exit: halted, or shut down with
// no producer in flight and nothing left to consume.
func (d *RingBufferDispatcher) stopping() bool {
	switch d.state.Load() {
	case stateHalted:
		return true
	case stateShuttingDown:
		return d.inflight.Load() == 0 && d.ring.drained()
	default:
		return false
	}
}

// run is the consumer loop.
func (d *RingBufferDispatcher) run() {
	defer d.exit()

	for {
		t := d.ring.next()
		if t == nil {
			if d.stopping() {
				return
			}
			d.notEmpty.wait(d.ready, d.stopping)
			continue
		}
		j := t.job
		d.ring.consumed(t)
		d.notFull.signal()

		// A Halt landing after this check still runs j, the one task
		// already dequeued.
		if d.halted() {
			return
		}
		d.execute(&j)
		if !d.drainPile() {
			return
		}
	}
}

// drainPile executes derived work in arrival order, including work derived
// while draining. Returns false if the dispatcher was halted meanwhile.
func (d *RingBufferDispatcher) drainPile() bool {
	for i := 0; i < len(d.pile); i++ {
		if d.halted() {
			clear(d.pile)
			d.pile = d.pile[:0]
			return false
		}
		j := d.pile[i]
		d.pile[i] = job{}
		d.execute(&j)
	}
	d.pile = d.pile[:0]
	return true
}

func (d *RingBufferDispatcher) execute(j *job) {
	d.epoch++
	token := d.epoch
	d.executing.Store(token)
	defer d.executing.Store(0)
	defer func() {
		if r := recover(); r != nil {
			d.failed.Add(1)
			d.fail(&PanicError{Value: r, Stack: debug.Stack()})
		}
	}()

	if j.fn != nil {
		j.fn()
	} else {
		var consumers []Consumer
		if j.registry != nil {
			consumers = j.registry.Select(j.key)
		}
		j.ev.Key = j.key
		j.ev.origin = d
		j.ev.token = token
		j.router.Route(j.key, j.ev, consumers, j.onComplete, j.onError)
	}
	d.executed.Add(1)
}

// fail hands err to the uncaught handler. A panicking handler is swallowed:
// the consumer goroutine must survive it.
func (d *RingBufferDispatcher) fail(err error) {
	defer func() { _ = recover() }()
	d.uncaught(err)
}

func (d *RingBufferDispatcher) exit() {
	d.state.CompareAndSwapAcqRel(stateShuttingDown, stateTerminated)
	d.notFull.wakeAll()
	close(d.done)
}
