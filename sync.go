// ©Hayabusa Cloud Co., Ltd. 2026. All rights reserved.
// Use of this source code is governed by a MIT-style
// license that can be found in the LICENSE file.

package reactor

import (
	"log/slog"
	"runtime/debug"
	"time"
)

// SyncDispatcher executes every task and event inline on the caller's
// goroutine.
//
// It is always alive: Shutdown and Halt are no-ops. Use it where ordering on
// the calling goroutine is required or dispatch overhead must be zero.
type SyncDispatcher struct {
	uncaught func(error)
}

// NewSyncDispatcher creates an inline dispatcher. Panics escaping Execute
// are recovered and passed to uncaught; a nil uncaught logs them with
// slog.Default().
func NewSyncDispatcher(uncaught func(error)) *SyncDispatcher {
	return newSyncDispatcher("sync", uncaught, nil)
}

func newSyncDispatcher(name string, uncaught func(error), logger *slog.Logger) *SyncDispatcher {
	if uncaught == nil {
		if logger == nil {
			logger = slog.Default()
		}
		uncaught = func(err error) {
			logger.Error("reactor: uncaught failure", "dispatcher", name, "error", err)
		}
	}
	return &SyncDispatcher{uncaught: uncaught}
}

// Dispatch routes ev immediately. Returns after every consumer ran.
func (d *SyncDispatcher) Dispatch(key any, ev *Event, registry Registry, onError ErrorConsumer, router Router, onComplete Consumer) error {
	if router == nil {
		return ErrNilRouter
	}
	if ev == nil {
		ev = &Event{}
	}
	ev.Key = key
	var consumers []Consumer
	if registry != nil {
		consumers = registry.Select(key)
	}
	router.Route(key, ev, consumers, onComplete, onError)
	return nil
}

// Execute runs fn immediately.
func (d *SyncDispatcher) Execute(fn func()) error {
	if fn == nil {
		return nil
	}
	defer func() {
		if r := recover(); r != nil {
			d.uncaught(&PanicError{Value: r, Stack: debug.Stack()})
		}
	}()
	fn()
	return nil
}

// Alive always reports true.
func (d *SyncDispatcher) Alive() bool { return true }

// Shutdown is a no-op.
func (d *SyncDispatcher) Shutdown() {}

// Halt is a no-op.
func (d *SyncDispatcher) Halt() {}

// AwaitAndShutdown returns true immediately: there is never queued work.
func (d *SyncDispatcher) AwaitAndShutdown(time.Duration) bool { return true }
