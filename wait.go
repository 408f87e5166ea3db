// ©Hayabusa Cloud Co., Ltd. 2026. All rights reserved.
// Use of this source code is governed by a MIT-style
// license that can be found in the LICENSE file.

package reactor

import (
	"sync"

	"code.hybscloud.com/atomix"
	"code.hybscloud.com/iox"
	"code.hybscloud.com/spin"
)

// WaitStrategy selects how a waiting producer or consumer passes time.
//
// The strategy trades latency for CPU; it never affects ordering or delivery.
type WaitStrategy int

const (
	// BlockingWait spins briefly, then parks on a condition until signalled.
	BlockingWait WaitStrategy = iota
	// YieldingWait backs off adaptively with iox.Backoff and never parks.
	YieldingWait
	// BusySpinWait spins on the CPU with pause instructions.
	BusySpinWait
)

func (w WaitStrategy) String() string {
	switch w {
	case BlockingWait:
		return "blocking"
	case YieldingWait:
		return "yielding"
	case BusySpinWait:
		return "busy-spin"
	default:
		return "unknown"
	}
}

// waiter parks a goroutine until ready or stop reports true.
//
// signal must be called after every state change that can make ready true,
// and wakeAll after every change that can make stop true.
type waiter interface {
	wait(ready, stop func() bool)
	signal()
	wakeAll()
}

func newWaiter(s WaitStrategy) waiter {
	switch s {
	case YieldingWait:
		return yieldWaiter{}
	case BusySpinWait:
		return spinWaiter{}
	default:
		return newBlockingWaiter()
	}
}

type spinWaiter struct{}

func (spinWaiter) wait(ready, stop func() bool) {
	sw := spin.Wait{}
	for !ready() && !stop() {
		sw.Once()
	}
}

func (spinWaiter) signal()  {}
func (spinWaiter) wakeAll() {}

type yieldWaiter struct{}

func (yieldWaiter) wait(ready, stop func() bool) {
	backoff := iox.Backoff{}
	for !ready() && !stop() {
		backoff.Wait()
	}
}

func (yieldWaiter) signal()  {}
func (yieldWaiter) wakeAll() {}

// blockingSpins is the number of spin rounds before parking.
const blockingSpins = 64

type blockingWaiter struct {
	mu       sync.Mutex
	cond     *sync.Cond
	sleepers atomix.Int32
	epoch    atomix.Uint64
}

func newBlockingWaiter() *blockingWaiter {
	w := &blockingWaiter{}
	w.cond = sync.NewCond(&w.mu)
	return w
}

func (w *blockingWaiter) wait(ready, stop func() bool) {
	sw := spin.Wait{}
	for range blockingSpins {
		if ready() || stop() {
			return
		}
		sw.Once()
	}

	w.mu.Lock()
	w.sleepers.Add(1)
	for !ready() && !stop() {
		w.cond.Wait()
	}
	w.sleepers.Add(-1)
	w.mu.Unlock()
}

// signal wakes parked goroutines, if any.
//
// The epoch increment orders the caller's preceding release store before
// the sleeper check; the waiter increments sleepers before re-checking
// ready, so one side always observes the other.
func (w *blockingWaiter) signal() {
	w.epoch.Add(1)
	if w.sleepers.Load() == 0 {
		return
	}
	w.wakeAll()
}

func (w *blockingWaiter) wakeAll() {
	w.mu.Lock()
	w.cond.Broadcast()
	w.mu.Unlock()
}
