// ©Hayabusa Cloud Co., Ltd. 2026. All rights reserved.
// Use of this source code is governed by a MIT-style
// license that can be found in the LICENSE file.

package reactor

import (
	"log/slog"
	"runtime/debug"
)

// ConsumerRouter invokes the selected consumers in registration order.
//
// Each consumer runs in isolation: an error it returns or a panic it raises
// is passed to onError and the remaining consumers still run. onComplete is
// invoked after the last consumer, and only if none of them failed. With a
// nil onError, failures are logged.
type ConsumerRouter struct {
	logger *slog.Logger
}

// NewConsumerRouter creates a router. A nil logger uses slog.Default().
func NewConsumerRouter(logger *slog.Logger) *ConsumerRouter {
	if logger == nil {
		logger = slog.Default()
	}
	return &ConsumerRouter{logger: logger}
}

// Route implements Router.
func (r *ConsumerRouter) Route(key any, ev *Event, consumers []Consumer, onComplete Consumer, onError ErrorConsumer) {
	ok := true
	for _, c := range consumers {
		if err := invoke(c, ev); err != nil {
			ok = false
			r.report(key, err, onError)
		}
	}
	if ok && onComplete != nil {
		if err := invoke(onComplete, ev); err != nil {
			r.report(key, err, onError)
		}
	}
}

func (r *ConsumerRouter) report(key any, err error, onError ErrorConsumer) {
	if onError == nil {
		r.logger.Error("reactor: consumer failed", "key", key, "error", err)
		return
	}
	defer func() {
		if v := recover(); v != nil {
			r.logger.Error("reactor: error consumer panicked", "key", key, "error", err, "panic", v)
		}
	}()
	onError(err)
}

func invoke(c Consumer, ev *Event) (err error) {
	defer func() {
		if v := recover(); v != nil {
			err = &PanicError{Value: v, Stack: debug.Stack()}
		}
	}()
	return c.Accept(ev)
}
