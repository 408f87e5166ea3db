// ©Hayabusa Cloud Co., Ltd. 2026. All rights reserved.
// Use of this source code is governed by a MIT-style
// license that can be found in the LICENSE file.

package reactor_test

import (
	"bytes"
	"errors"
	"log/slog"
	"strings"
	"testing"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	"go.opentelemetry.io/otel/sdk/trace/tracetest"
	"go.opentelemetry.io/otel/trace"

	"code.hybscloud.com/reactor"
)

// =============================================================================
// Builder
// =============================================================================

// TestBuilderSelectsVariant tests automatic variant selection.
func TestBuilderSelectsVariant(t *testing.T) {
	d := reactor.New("ring").Build()
	if _, ok := d.(*reactor.RingBufferDispatcher); !ok {
		t.Fatalf("Build(): got %T, want *RingBufferDispatcher", d)
	}
	d.Halt()

	d = reactor.New("sync").Synchronous().Build()
	if _, ok := d.(*reactor.SyncDispatcher); !ok {
		t.Fatalf("Build(Synchronous): got %T, want *SyncDispatcher", d)
	}

	d = reactor.New("traced").Synchronous().Traced(nil).Build()
	td, ok := d.(*reactor.TraceDispatcher)
	if !ok {
		t.Fatalf("Build(Traced): got %T, want *TraceDispatcher", d)
	}
	if _, ok := td.Unwrap().(*reactor.SyncDispatcher); !ok {
		t.Fatalf("Unwrap: got %T, want *SyncDispatcher", td.Unwrap())
	}
}

// TestBuilderPanics tests that misconfiguration panics at build time.
func TestBuilderPanics(t *testing.T) {
	cases := map[string]func(){
		"BufferSize(1)":                func() { reactor.New("x").BufferSize(1) },
		"BuildRingBuffer(Synchronous)": func() { reactor.New("x").Synchronous().BuildRingBuffer() },
		"BuildRingBuffer(Traced)":      func() { reactor.New("x").Traced(nil).BuildRingBuffer() },
	}
	for name, f := range cases {
		t.Run(name, func(t *testing.T) {
			defer func() {
				if recover() == nil {
					t.Fatalf("%s: expected panic", name)
				}
			}()
			f()
		})
	}
}

// =============================================================================
// Sync Dispatcher
// =============================================================================

// TestSyncDispatcherInline tests that events and tasks run on the caller's
// goroutine before the call returns.
func TestSyncDispatcherInline(t *testing.T) {
	d := reactor.New("sync").BuildSync()

	ran := false
	if err := d.Execute(func() { ran = true }); err != nil {
		t.Fatalf("Execute: %v", err)
	}
	if !ran {
		t.Fatalf("Execute: task did not run inline")
	}

	reg := reactor.NewKeyRegistry()
	var got any
	reg.Register("k", reactor.ConsumerFunc(func(ev *reactor.Event) error {
		got = ev.Data
		return nil
	}))
	if err := d.Dispatch("k", &reactor.Event{Data: 7}, reg, nil, reactor.NewConsumerRouter(nil), nil); err != nil {
		t.Fatalf("Dispatch: %v", err)
	}
	if got != 7 {
		t.Fatalf("Dispatch: got %v, want 7", got)
	}
}

// TestSyncDispatcherLifecycle tests that the inline dispatcher is always
// alive.
func TestSyncDispatcherLifecycle(t *testing.T) {
	d := reactor.NewSyncDispatcher(nil)

	d.Shutdown()
	d.Halt()
	if !d.Alive() {
		t.Fatalf("Alive after Shutdown/Halt: got false, want true")
	}
	if !d.AwaitAndShutdown(time.Millisecond) {
		t.Fatalf("AwaitAndShutdown: got false, want true")
	}
	if err := d.Execute(func() {}); err != nil {
		t.Fatalf("Execute after Shutdown: %v", err)
	}
}

// TestSyncDispatcherPanic tests that a panicking task reaches the uncaught
// handler instead of the caller.
func TestSyncDispatcherPanic(t *testing.T) {
	var got error
	d := reactor.NewSyncDispatcher(func(err error) { got = err })

	if err := d.Execute(func() { panic("boom") }); err != nil {
		t.Fatalf("Execute: %v", err)
	}
	if !errors.Is(got, reactor.ErrPanic) {
		t.Fatalf("uncaught: got %v, want ErrPanic", got)
	}
}

// TestSyncDispatcherBuilderLogger tests that the inline variant logs
// uncaught failures to the builder's logger.
func TestSyncDispatcherBuilderLogger(t *testing.T) {
	var buf bytes.Buffer
	logger := slog.New(slog.NewTextHandler(&buf, nil))
	d := reactor.New("inline").Logger(logger).Synchronous().Build()

	if err := d.Execute(func() { panic("boom") }); err != nil {
		t.Fatalf("Execute: %v", err)
	}
	out := buf.String()
	for _, want := range []string{"reactor: uncaught failure", "dispatcher=inline", "boom"} {
		if !strings.Contains(out, want) {
			t.Fatalf("log: got %q, want %q", out, want)
		}
	}
}

// =============================================================================
// Trace Dispatcher
// =============================================================================

func setupTestTracer() (*tracetest.SpanRecorder, trace.Tracer) {
	sr := tracetest.NewSpanRecorder()
	tp := sdktrace.NewTracerProvider(sdktrace.WithSpanProcessor(sr))
	return sr, tp.Tracer("test")
}

// TestTraceDispatcherSpans tests one span per call with the dispatcher name.
func TestTraceDispatcherSpans(t *testing.T) {
	sr, tracer := setupTestTracer()
	d := reactor.New("traced").Synchronous().Traced(tracer).Build()

	if err := d.Execute(func() {}); err != nil {
		t.Fatalf("Execute: %v", err)
	}
	if err := d.Dispatch("k", &reactor.Event{}, nil, nil, reactor.NewConsumerRouter(nil), nil); err != nil {
		t.Fatalf("Dispatch: %v", err)
	}
	d.Shutdown()

	spans := sr.Ended()
	if len(spans) != 3 {
		t.Fatalf("spans: got %d, want 3", len(spans))
	}
	names := []string{"reactor.execute", "reactor.dispatch", "reactor.shutdown"}
	for i, name := range names {
		if spans[i].Name() != name {
			t.Fatalf("spans[%d]: got %q, want %q", i, spans[i].Name(), name)
		}
	}
	if spans[0].Status().Code != codes.Ok {
		t.Fatalf("execute status: got %v, want Ok", spans[0].Status().Code)
	}

	attrs := map[attribute.Key]string{}
	for _, kv := range spans[1].Attributes() {
		attrs[kv.Key] = kv.Value.Emit()
	}
	if attrs["reactor.dispatcher"] != "traced" {
		t.Fatalf("reactor.dispatcher: got %q, want %q", attrs["reactor.dispatcher"], "traced")
	}
	if attrs["reactor.key"] != "k" {
		t.Fatalf("reactor.key: got %q, want %q", attrs["reactor.key"], "k")
	}
}

// TestTraceDispatcherForwardsFailures tests that a rejected submission is
// returned unchanged and recorded on the span.
func TestTraceDispatcherForwardsFailures(t *testing.T) {
	sr, tracer := setupTestTracer()
	inner := reactor.New("inner").BuildRingBuffer()
	d := reactor.NewTraceDispatcher(inner, "outer", tracer, nil)

	if !d.AwaitAndShutdown(5 * time.Second) {
		t.Fatalf("AwaitAndShutdown: got false, want true")
	}
	if d.Alive() {
		t.Fatalf("Alive: got true, want false")
	}

	err := d.Execute(func() {})
	if !errors.Is(err, reactor.ErrShutdown) {
		t.Fatalf("Execute: got %v, want ErrShutdown", err)
	}

	spans := sr.Ended()
	last := spans[len(spans)-1]
	if last.Name() != "reactor.execute" {
		t.Fatalf("last span: got %q, want reactor.execute", last.Name())
	}
	if last.Status().Code != codes.Error {
		t.Fatalf("execute status: got %v, want Error", last.Status().Code)
	}
	if last.Status().Description != reactor.ErrShutdown.Error() {
		t.Fatalf("execute status description: got %q", last.Status().Description)
	}
}

// TestTraceDispatcherPreservesOrder tests that tracing a ring-buffer
// dispatcher keeps publish order.
func TestTraceDispatcherPreservesOrder(t *testing.T) {
	_, tracer := setupTestTracer()
	d := reactor.New("ordered").BufferSize(4).Traced(tracer).Build()

	const n = 100
	got := make([]int, 0, n)
	for i := range n {
		if err := d.Execute(func() { got = append(got, i) }); err != nil {
			t.Fatalf("Execute(%d): %v", i, err)
		}
	}
	if !d.AwaitAndShutdown(5 * time.Second) {
		t.Fatalf("AwaitAndShutdown: got false, want true")
	}
	for i, v := range got {
		if v != i {
			t.Fatalf("got[%d]: got %d, want %d", i, v, i)
		}
	}
	if len(got) != n {
		t.Fatalf("executed: got %d, want %d", len(got), n)
	}
}

// TestTraceDispatcherLogs tests trace-level records, and their absence when
// the logger is above LevelTrace.
func TestTraceDispatcherLogs(t *testing.T) {
	var buf bytes.Buffer
	logger := slog.New(slog.NewTextHandler(&buf, &slog.HandlerOptions{Level: reactor.LevelTrace}))
	d := reactor.NewTraceDispatcher(reactor.NewSyncDispatcher(nil), "logged", nil, logger)

	_ = d.Execute(func() {})
	_ = d.Dispatch("greet", &reactor.Event{Data: "hi"}, nil, nil, reactor.NewConsumerRouter(nil), nil)

	out := buf.String()
	for _, want := range []string{"reactor: execute", "reactor: dispatch", "key=greet", "dispatcher=logged"} {
		if !strings.Contains(out, want) {
			t.Fatalf("log output missing %q:\n%s", want, out)
		}
	}

	buf.Reset()
	quiet := slog.New(slog.NewTextHandler(&buf, &slog.HandlerOptions{Level: slog.LevelDebug}))
	d = reactor.NewTraceDispatcher(reactor.NewSyncDispatcher(nil), "quiet", nil, quiet)
	_ = d.Execute(func() {})
	if buf.Len() != 0 {
		t.Fatalf("log output above LevelTrace: got %q, want empty", buf.String())
	}
}
