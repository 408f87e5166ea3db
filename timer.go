// ©Hayabusa Cloud Co., Ltd. 2026. All rights reserved.
// Use of this source code is governed by a MIT-style
// license that can be found in the LICENSE file.

package reactor

import (
	"context"
	"sync"
	"time"

	"golang.org/x/sync/errgroup"
)

// Timer schedules periodic callbacks.
//
// Callbacks run on the timer's own goroutines, independent of any
// dispatcher's consumer goroutine.
type Timer interface {
	// Schedule invokes fn after delay and then every period until the
	// returned handle is cancelled. A period <= 0 schedules a single
	// invocation.
	Schedule(fn func(now time.Time), delay, period time.Duration) (Cancellable, error)
}

// GoTimer is a Timer that runs each schedule on its own goroutine.
type GoTimer struct {
	mu      sync.Mutex
	ctx     context.Context
	cancel  context.CancelFunc
	g       *errgroup.Group
	stopped bool
}

// NewTimer creates a running GoTimer.
func NewTimer() *GoTimer {
	ctx, cancel := context.WithCancel(context.Background())
	return &GoTimer{
		ctx:    ctx,
		cancel: cancel,
		g:      &errgroup.Group{},
	}
}

// Schedule implements Timer.
func (t *GoTimer) Schedule(fn func(now time.Time), delay, period time.Duration) (Cancellable, error) {
	t.mu.Lock()
	defer t.mu.Unlock()

	if t.stopped {
		return nil, ErrTimerStopped
	}
	ctx, cancel := context.WithCancel(t.ctx)
	t.g.Go(func() error {
		defer cancel()
		runSchedule(ctx, fn, delay, period)
		return nil
	})
	return cancelFunc(cancel), nil
}

// Stop cancels every schedule and waits for running callbacks to return.
// Idempotent.
func (t *GoTimer) Stop() {
	t.mu.Lock()
	t.stopped = true
	t.mu.Unlock()

	t.cancel()
	_ = t.g.Wait()
}

func runSchedule(ctx context.Context, fn func(time.Time), delay, period time.Duration) {
	if delay > 0 {
		first := time.NewTimer(delay)
		select {
		case <-ctx.Done():
			first.Stop()
			return
		case now := <-first.C:
			fn(now)
		}
	} else {
		fn(time.Now())
	}
	if period <= 0 {
		return
	}

	ticker := time.NewTicker(period)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case now := <-ticker.C:
			if ctx.Err() != nil {
				return
			}
			fn(now)
		}
	}
}

type cancelFunc context.CancelFunc

func (f cancelFunc) Cancel() { f() }
