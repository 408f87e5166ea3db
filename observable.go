// ©Hayabusa Cloud Co., Ltd. 2026. All rights reserved.
// Use of this source code is governed by a MIT-style
// license that can be found in the LICENSE file.

package reactor

import "log/slog"

// DefaultEventPoolSize is the free list capacity of an Observable's event pool.
const DefaultEventPoolSize = 256

// Observable binds a dispatcher, a key registry and a router into a
// publish/subscribe surface.
//
// Events published through an Observable come from a pool and are recycled
// once routing completes: consumers must not keep the *Event past Accept.
type Observable struct {
	dispatcher Dispatcher
	registry   *KeyRegistry
	router     Router
	events     *Pool[*Event]
	logger     *slog.Logger
	onError    ErrorConsumer
}

// ObservableOption configures an Observable.
type ObservableOption func(*observableConfig)

type observableConfig struct {
	router   Router
	logger   *slog.Logger
	onError  ErrorConsumer
	poolSize int
	clock    Clock
}

// WithRouter sets the router. Defaults to a ConsumerRouter.
func WithRouter(r Router) ObservableOption {
	return func(c *observableConfig) { c.router = r }
}

// WithLogger sets the logger for failures nobody handles.
func WithLogger(l *slog.Logger) ObservableOption {
	return func(c *observableConfig) { c.logger = l }
}

// WithErrorHandler sets the error consumer used by Notify and Send.
func WithErrorHandler(fn ErrorConsumer) ObservableOption {
	return func(c *observableConfig) { c.onError = fn }
}

// WithEventPool sets the event pool capacity and the clock its references
// are stamped with.
func WithEventPool(size int, clock Clock) ObservableOption {
	return func(c *observableConfig) {
		c.poolSize = size
		c.clock = clock
	}
}

// NewObservable creates an Observable publishing through d.
func NewObservable(d Dispatcher, opts ...ObservableOption) *Observable {
	if d == nil {
		panic("reactor: dispatcher is required")
	}
	cfg := observableConfig{poolSize: DefaultEventPoolSize}
	for _, opt := range opts {
		opt(&cfg)
	}
	if cfg.logger == nil {
		cfg.logger = slog.Default()
	}
	if cfg.router == nil {
		cfg.router = NewConsumerRouter(cfg.logger)
	}
	o := &Observable{
		dispatcher: d,
		registry:   NewKeyRegistry(),
		router:     recyclingRouter{cfg.router},
		events:     NewPool(cfg.poolSize, func() *Event { return &Event{} }, cfg.clock),
		logger:     cfg.logger,
		onError:    cfg.onError,
	}
	return o
}

// Dispatcher returns the dispatcher events are published through.
func (o *Observable) Dispatcher() Dispatcher {
	return o.dispatcher
}

// Registry returns the key registry.
func (o *Observable) Registry() *KeyRegistry {
	return o.registry
}

// PoolStats returns the event pool counters.
func (o *Observable) PoolStats() PoolStats {
	return o.events.Stats()
}

// On registers c for events published on key.
func (o *Observable) On(key any, c Consumer) *Registration {
	return o.registry.Register(key, c)
}

// Notify publishes data on key.
func (o *Observable) Notify(key, data any) error {
	return o.publish(nil, key, data, nil, o.onError)
}

// NotifyWith publishes data on key with a dedicated error consumer.
func (o *Observable) NotifyWith(key, data any, onError ErrorConsumer) error {
	return o.publish(nil, key, data, nil, onError)
}

// Send publishes data on key; consumers may answer with Reply.
func (o *Observable) Send(key, data, replyTo any) error {
	return o.publish(nil, key, data, replyTo, o.onError)
}

// Reply publishes data on the ReplyTo key of ev. No-op if ev has none.
func (o *Observable) Reply(ev *Event, data any) error {
	if ev == nil || ev.ReplyTo == nil {
		return nil
	}
	return o.publish(ev, ev.ReplyTo, data, nil, o.onError)
}

// Forward publishes data on key as work derived from the event being
// handled. Called from a consumer of from, the derived event runs right
// after the current one on a ring-buffer dispatcher, without waiting for a
// free slot.
func (o *Observable) Forward(from *Event, key, data any, onError ErrorConsumer) error {
	return o.publish(from, key, data, nil, onError)
}

func (o *Observable) publish(from *Event, key, data, replyTo any, onError ErrorConsumer) error {
	ref := o.events.Allocate()
	ev := ref.Get()
	ev.ref = ref
	ev.Key = key
	ev.Data = data
	ev.ReplyTo = replyTo
	if from != nil {
		ev.origin = from.origin
		ev.token = from.token
	}
	if onError == nil {
		onError = o.uncaught
	}

	if err := o.dispatcher.Dispatch(key, ev, o.registry, onError, o.router, nil); err != nil {
		ev.release()
		return err
	}
	return nil
}

func (o *Observable) uncaught(err error) {
	o.logger.Error("reactor: unhandled failure", "error", err)
}

// recyclingRouter releases pooled events once routing returns.
type recyclingRouter struct {
	Router
}

func (r recyclingRouter) Route(key any, ev *Event, consumers []Consumer, onComplete Consumer, onError ErrorConsumer) {
	defer ev.release()
	r.Router.Route(key, ev, consumers, onComplete, onError)
}
