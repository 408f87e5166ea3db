// ©Hayabusa Cloud Co., Ltd. 2026. All rights reserved.
// Use of this source code is governed by a MIT-style
// license that can be found in the LICENSE file.

package stream

import (
	"log/slog"
	"slices"
	"sync"

	"code.hybscloud.com/reactor"
)

// node is the untyped stage behind a Stream.
//
// Values published on acceptKey reach the consumers and actions attached to
// the stage. Errors published on errorKey, or captured while those consumers
// run, go through handleError. A stage holds its children; the parent link
// is only used to detach.
type node struct {
	obs       *reactor.Observable
	acceptKey reactor.Key
	errorKey  reactor.Key
	batchSize int
	timer     reactor.Timer
	logger    *slog.Logger

	mu       sync.Mutex
	parent   *node
	children []*node
	handlers []errorHandler
	owned    []reactor.Cancellable // registrations and schedules torn down with the stage
	detached bool
}

type errorHandler struct {
	match func(error) bool
	fn    func(error)
}

func newNode(obs *reactor.Observable, batchSize int, timer reactor.Timer, logger *slog.Logger) *node {
	if logger == nil {
		logger = slog.Default()
	}
	n := &node{
		obs:       obs,
		acceptKey: reactor.NewKey(),
		errorKey:  reactor.NewKey(),
		batchSize: batchSize,
		timer:     timer,
		logger:    logger,
	}
	n.owned = append(n.owned, obs.On(n.errorKey, reactor.ConsumerFunc(func(ev *reactor.Event) error {
		if err, ok := ev.Data.(error); ok {
			n.handleError(err)
		}
		return nil
	})))
	return n
}

// child creates a stage on the same observable whose errors come from n.
func (n *node) child(batchSize int) *node {
	c := newNode(n.obs, batchSize, n.timer, n.logger)
	c.parent = n

	n.mu.Lock()
	if n.detached {
		n.mu.Unlock()
		c.cancel()
		return c
	}
	n.children = append(n.children, c)
	n.mu.Unlock()
	return c
}

// on attaches fn to the values of n, owned by owner.
func (n *node) on(owner *node, fn func(ev *reactor.Event) error) {
	reg := n.obs.On(n.acceptKey, reactor.ConsumerFunc(fn))
	owner.own(reg)
}

// own ties c to the stage lifetime. c is cancelled at once if the stage is
// already detached.
func (n *node) own(c reactor.Cancellable) {
	n.mu.Lock()
	if n.detached {
		n.mu.Unlock()
		c.Cancel()
		return
	}
	n.owned = append(n.owned, c)
	n.mu.Unlock()
}

// emit publishes v on n as work derived from ev.
func (n *node) emit(ev *reactor.Event, v any) error {
	return n.obs.Forward(ev, n.acceptKey, v, n.handleError)
}

// notify publishes v on n.
func (n *node) notify(v any) error {
	return n.obs.NotifyWith(n.acceptKey, v, n.handleError)
}

// raise publishes err on the error path of n, in order with its values.
func (n *node) raise(err error) error {
	return n.obs.NotifyWith(n.errorKey, err, n.handleError)
}

func (n *node) addHandler(match func(error) bool, fn func(error)) {
	n.mu.Lock()
	n.handlers = append(n.handlers, errorHandler{match: match, fn: fn})
	n.mu.Unlock()
}

// handleError delivers err to the matching handlers of n. An error no
// handler matches flows on to every child; at a leaf it is logged.
func (n *node) handleError(err error) {
	n.mu.Lock()
	if n.detached {
		n.mu.Unlock()
		return
	}
	handlers := n.handlers
	children := n.children
	n.mu.Unlock()

	handled := false
	for _, h := range handlers {
		if h.match(err) {
			handled = true
			n.invoke(h.fn, err)
		}
	}
	if handled {
		return
	}
	if len(children) == 0 {
		n.logger.Error("stream: unhandled error", "stage", n.acceptKey.String(), "error", err)
		return
	}
	for _, c := range children {
		c.handleError(err)
	}
}

func (n *node) invoke(fn func(error), err error) {
	defer func() {
		if v := recover(); v != nil {
			n.logger.Error("stream: error handler panicked", "stage", n.acceptKey.String(), "error", err, "panic", v)
		}
	}()
	fn(err)
}

// cancel detaches n and its descendants: their consumers, actions and
// schedules are cancelled and errors no longer reach them.
func (n *node) cancel() {
	n.mu.Lock()
	if n.detached {
		n.mu.Unlock()
		return
	}
	n.detached = true
	owned := n.owned
	children := n.children
	parent := n.parent
	n.owned = nil
	n.children = nil
	n.mu.Unlock()

	for _, c := range owned {
		c.Cancel()
	}
	for _, c := range children {
		c.cancel()
	}
	if parent != nil {
		parent.mu.Lock()
		parent.children = slices.DeleteFunc(parent.children, func(c *node) bool { return c == n })
		parent.mu.Unlock()
	}
}

func (n *node) isDetached() bool {
	n.mu.Lock()
	defer n.mu.Unlock()
	return n.detached
}
