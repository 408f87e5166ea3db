// ©Hayabusa Cloud Co., Ltd. 2026. All rights reserved.
// Use of this source code is governed by a MIT-style
// license that can be found in the LICENSE file.

package reactor

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
)

// tracerName is the instrumentation scope name for dispatcher tracing.
const tracerName = "code.hybscloud.com/reactor"

// LevelTrace is the slog level of TraceDispatcher records, below Debug.
const LevelTrace = slog.LevelDebug - 4

// TraceDispatcher forwards every call to another dispatcher unchanged and
// records it as a span and a trace-level log record.
//
// It never alters ordering or failure routing: the wrapped dispatcher sees
// exactly the arguments the caller passed. With no TracerProvider configured
// globally the default noop tracer is used and only the log record remains;
// with the logger below LevelTrace the record is skipped as well.
type TraceDispatcher struct {
	inner  Dispatcher
	name   string
	tracer trace.Tracer
	logger *slog.Logger
}

// NewTraceDispatcher wraps inner. A nil tracer uses the global otel
// TracerProvider, a nil logger uses slog.Default().
func NewTraceDispatcher(inner Dispatcher, name string, tracer trace.Tracer, logger *slog.Logger) *TraceDispatcher {
	if tracer == nil {
		tracer = otel.Tracer(tracerName)
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &TraceDispatcher{inner: inner, name: name, tracer: tracer, logger: logger}
}

// Unwrap returns the wrapped dispatcher.
func (d *TraceDispatcher) Unwrap() Dispatcher {
	return d.inner
}

func (d *TraceDispatcher) Dispatch(key any, ev *Event, registry Registry, onError ErrorConsumer, router Router, onComplete Consumer) error {
	k := fmt.Sprint(key)
	span := d.start("reactor.dispatch", attribute.String("reactor.key", k))
	d.trace("dispatch", slog.String("key", k), slog.Any("data", eventData(ev)))

	err := d.inner.Dispatch(key, ev, registry, onError, router, onComplete)
	end(span, err)
	return err
}

func (d *TraceDispatcher) Execute(fn func()) error {
	span := d.start("reactor.execute")
	d.trace("execute")

	err := d.inner.Execute(fn)
	end(span, err)
	return err
}

func (d *TraceDispatcher) Alive() bool {
	alive := d.inner.Alive()
	d.trace("alive", slog.Bool("alive", alive))
	return alive
}

func (d *TraceDispatcher) Shutdown() {
	span := d.start("reactor.shutdown")
	d.trace("shutdown")
	d.inner.Shutdown()
	span.End()
}

func (d *TraceDispatcher) Halt() {
	span := d.start("reactor.halt")
	d.trace("halt")
	d.inner.Halt()
	span.End()
}

func (d *TraceDispatcher) AwaitAndShutdown(timeout time.Duration) bool {
	span := d.start("reactor.await_and_shutdown", attribute.String("reactor.timeout", timeout.String()))
	d.trace("awaitAndShutdown", slog.Duration("timeout", timeout))

	drained := d.inner.AwaitAndShutdown(timeout)
	span.SetAttributes(attribute.Bool("reactor.drained", drained))
	span.End()
	return drained
}

func (d *TraceDispatcher) start(op string, attrs ...attribute.KeyValue) trace.Span {
	attrs = append(attrs, attribute.String("reactor.dispatcher", d.name))
	_, span := d.tracer.Start(context.Background(), op,
		trace.WithAttributes(attrs...),
		trace.WithSpanKind(trace.SpanKindProducer),
	)
	return span
}

func (d *TraceDispatcher) trace(op string, attrs ...slog.Attr) {
	ctx := context.Background()
	if !d.logger.Enabled(ctx, LevelTrace) {
		return
	}
	attrs = append(attrs, slog.String("dispatcher", d.name))
	d.logger.LogAttrs(ctx, LevelTrace, "reactor: "+op, attrs...)
}

func end(span trace.Span, err error) {
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
	} else {
		span.SetStatus(codes.Ok, "")
	}
	span.End()
}

func eventData(ev *Event) any {
	if ev == nil {
		return nil
	}
	return ev.Data
}
