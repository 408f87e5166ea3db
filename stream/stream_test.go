// ©Hayabusa Cloud Co., Ltd. 2026. All rights reserved.
// Use of this source code is governed by a MIT-style
// license that can be found in the LICENSE file.

package stream_test

import (
	"bytes"
	"errors"
	"fmt"
	"log/slog"
	"reflect"
	"strings"
	"testing"
	"time"

	"code.hybscloud.com/reactor"
	"code.hybscloud.com/reactor/stream"
)

// recorder collects emitted values; safe across goroutines.
type recorder[T any] struct {
	ch chan T
}

func record[T any](s *stream.Stream[T]) *recorder[T] {
	r := &recorder[T]{ch: make(chan T, 1024)}
	s.Consume(func(v T) { r.ch <- v })
	return r
}

// take waits for n values.
func (r *recorder[T]) take(t *testing.T, n int) []T {
	t.Helper()
	out := make([]T, 0, n)
	deadline := time.After(5 * time.Second)
	for len(out) < n {
		select {
		case v := <-r.ch:
			out = append(out, v)
		case <-deadline:
			t.Fatalf("timeout: got %v, want %d values", out, n)
		}
	}
	return out
}

// drain returns the values emitted so far.
func (r *recorder[T]) drain() []T {
	var out []T
	for {
		select {
		case v := <-r.ch:
			out = append(out, v)
		default:
			return out
		}
	}
}

func expect[T any](t *testing.T, what string, got, want T) {
	t.Helper()
	if !reflect.DeepEqual(got, want) {
		t.Fatalf("%s: got %v, want %v", what, got, want)
	}
}

func expectPanic(t *testing.T, what string, sentinel error, f func()) {
	t.Helper()
	defer func() {
		t.Helper()
		v := recover()
		if v == nil {
			t.Fatalf("%s: expected panic", what)
		}
		err, ok := v.(error)
		if !ok || !errors.Is(err, sentinel) {
			t.Fatalf("%s: got panic %v, want %v", what, v, sentinel)
		}
	}()
	f()
}

func accept[T any](t *testing.T, d *stream.Deferred[T], values ...T) {
	t.Helper()
	for _, v := range values {
		if err := d.Accept(v); err != nil {
			t.Fatalf("Accept(%v): %v", v, err)
		}
	}
}

func acceptError[T any](t *testing.T, d *stream.Deferred[T], err error) {
	t.Helper()
	if e := d.AcceptError(err); e != nil {
		t.Fatalf("AcceptError(%v): %v", err, e)
	}
}

// =============================================================================
// Count-based operators
// =============================================================================

func TestCollectTwoBatches(t *testing.T) {
	in := stream.NewSpec[int]().Deferred()
	out := record(stream.CollectN(in.Compose(), 3))

	accept(t, in, 1, 2, 3, 4, 5, 6)

	expect(t, "CollectN(3)", out.drain(), [][]int{{1, 2, 3}, {4, 5, 6}})
}

func TestCollectUsesBatchSize(t *testing.T) {
	in := stream.NewSpec[string]().Capacity(2).Deferred()
	collected := stream.Collect(in.Compose())
	out := record(collected)

	accept(t, in, "a", "b", "c")

	expect(t, "Collect", out.drain(), [][]string{{"a", "b"}})
	expect(t, "BatchSize", collected.BatchSize(), 2)
}

// TestCountOperatorsRequireBatch tests that count operators on an unbounded
// stream are rejected at construction.
func TestCountOperatorsRequireBatch(t *testing.T) {
	s := stream.NewSpec[int]().Get()
	if s.IsBatch() {
		t.Fatalf("IsBatch: got true, want false")
	}
	expect(t, "BatchSize", s.BatchSize(), -1)

	expectPanic(t, "First", stream.ErrUnbounded, func() { s.First() })
	expectPanic(t, "Last", stream.ErrUnbounded, func() { s.Last() })
	expectPanic(t, "Collect", stream.ErrUnbounded, func() { stream.Collect(s) })
	expectPanic(t, "CollectN(0)", stream.ErrUnbounded, func() { stream.CollectN(s, 0) })
}

func TestFirstLast(t *testing.T) {
	in := stream.NewSpec[int]().Capacity(3).Deferred()
	first := record(in.Compose().First())
	last := record(in.Compose().Last())

	accept(t, in, 1, 2, 3, 4, 5, 6, 7)

	expect(t, "First", first.drain(), []int{1, 4, 7})
	expect(t, "Last", last.drain(), []int{3, 6})
}

func TestFirstNOverridesBatchSize(t *testing.T) {
	in := stream.NewSpec[int]().Deferred()
	first := in.Compose().FirstN(2)
	out := record(first)

	accept(t, in, 1, 2, 3, 4)

	expect(t, "FirstN(2)", out.drain(), []int{1, 3})
	expect(t, "BatchSize", first.BatchSize(), 2)
}

// =============================================================================
// Reduce
// =============================================================================

func sum(acc, v int) int { return acc + v }

// TestReduceUnboundedScans tests running accumulation without batches.
func TestReduceUnboundedScans(t *testing.T) {
	in := stream.NewSpec[int]().Deferred()
	reduced := stream.Reduce(in.Compose(), sum, 0)
	out := record(reduced)

	accept(t, in, 1, 2, 3)

	expect(t, "Reduce", out.drain(), []int{1, 3, 6})
	expect(t, "BatchSize", reduced.BatchSize(), 1)
}

// TestReduceBatchedEmitsAtClose tests one accumulation per batch, each
// starting over from the initial value.
func TestReduceBatchedEmitsAtClose(t *testing.T) {
	in := stream.NewSpec[int]().Capacity(3).Deferred()
	out := record(stream.Reduce(in.Compose(), sum, 0))

	accept(t, in, 1, 2)
	if got := out.drain(); len(got) != 0 {
		t.Fatalf("before batch close: got %v, want nothing", got)
	}

	accept(t, in, 3)
	expect(t, "first batch", out.drain(), []int{6})

	accept(t, in, 4, 5, 6)
	expect(t, "second batch", out.drain(), []int{15})
}

func TestReduceWithFreshAccumulatorPerBatch(t *testing.T) {
	in := stream.NewSpec[string]().Capacity(2).Deferred()
	supplied := 0
	out := record(stream.ReduceWith(in.Compose(), func(acc []string, v string) []string {
		return append(acc, v)
	}, func() []string {
		supplied++
		return nil
	}))

	accept(t, in, "a", "b", "c", "d")

	expect(t, "ReduceWith", out.drain(), [][]string{{"a", "b"}, {"c", "d"}})
	expect(t, "supplier calls", supplied, 2)
}

// =============================================================================
// Transformations
// =============================================================================

func TestMapFilter(t *testing.T) {
	in := stream.NewSpec[int]().Deferred()
	even := in.Compose().Filter(func(v int) bool { return v%2 == 0 })
	out := record(stream.Map(even, func(v int) string { return fmt.Sprintf("#%d", v) }))

	accept(t, in, 1, 2, 3, 4)

	expect(t, "Map(Filter)", out.drain(), []string{"#2", "#4"})
}

// TestTryMapErrorsFlowDownstream tests that a mapping error replaces the
// value with an error on the derived stream.
func TestTryMapErrorsFlowDownstream(t *testing.T) {
	in := stream.NewSpec[string]().Deferred()
	errBad := errors.New("bad input")
	mapped := stream.TryMap(in.Compose(), func(v string) (int, error) {
		if v == "" {
			return 0, errBad
		}
		return len(v), nil
	})

	var failures []error
	mapped.OnError(func(err error) { failures = append(failures, err) })
	out := record(mapped)

	accept(t, in, "ab", "", "abc")

	expect(t, "TryMap", out.drain(), []int{2, 3})
	if len(failures) != 1 || !errors.Is(failures[0], errBad) {
		t.Fatalf("OnError: got %v, want [%v]", failures, errBad)
	}
}

func TestSplitFlattensOneLevel(t *testing.T) {
	in := stream.NewSpec[int]().Deferred()
	out := record(stream.Split(stream.CollectN(in.Compose(), 2)))

	accept(t, in, 1, 2, 3, 4, 5)

	expect(t, "Split", out.drain(), []int{1, 2, 3, 4})
}

func TestMapMany(t *testing.T) {
	in := stream.NewSpec[int]().Deferred()
	out := record(stream.MapMany(in.Compose(), func(v int) *stream.Stream[int] {
		return stream.NewSpec[int]().Each(v, v*10).Get()
	}))

	accept(t, in, 1, 2)

	expect(t, "MapMany", out.drain(), []int{1, 10, 2, 20})
}

// TestMapManyFullRing tests that inner values flushed by a consumer do not
// need free ring slots: an inner stream larger than the ring on the same
// dispatcher still delivers every value.
func TestMapManyFullRing(t *testing.T) {
	d := reactor.New("mapmany").BufferSize(2).BuildRingBuffer()
	defer d.Halt()

	in := stream.NewSpec[int]().Dispatcher(d).Deferred()
	obs := in.Compose().Observable()
	out := record(stream.MapMany(in.Compose(), func(v int) *stream.Stream[int] {
		return stream.NewSpec[int]().Observable(obs).Each(v, v+1, v+2, v+3).Get()
	}))

	accept(t, in, 10, 20)

	expect(t, "MapMany", out.take(t, 8), []int{10, 11, 12, 13, 20, 21, 22, 23})
	if !d.AwaitAndShutdown(5 * time.Second) {
		t.Fatalf("AwaitAndShutdown: got false, want true")
	}
}

func TestConnect(t *testing.T) {
	in := stream.NewSpec[int]().Deferred()
	target := stream.NewSpec[int]().Deferred()
	out := record(target.Compose())

	in.Compose().Connect(target.Compose())
	accept(t, in, 7, 8)

	expect(t, "Connect", out.drain(), []int{7, 8})
}

func TestTap(t *testing.T) {
	in := stream.NewSpec[string]().Deferred()
	tap := in.Compose().Tap()

	if _, ok := tap.Load(); ok {
		t.Fatalf("Load before any value: got ok, want !ok")
	}

	accept(t, in, "a", "b")
	expect(t, "Get", tap.Get(), "b")
	v, ok := tap.Load()
	if !ok || v != "b" {
		t.Fatalf("Load: got (%q, %v), want (%q, true)", v, ok, "b")
	}
}

// =============================================================================
// Flush and Cancel
// =============================================================================

// TestFlushPublishesInitialValuesOnce tests Each and a single Flush.
func TestFlushPublishesInitialValuesOnce(t *testing.T) {
	s := stream.NewSpec[int]().Each(1, 2, 3).Get()
	expect(t, "BatchSize", s.BatchSize(), 3)

	sums := record(stream.Reduce(s, sum, 0))
	out := record(s)

	if err := s.Flush(); err != nil {
		t.Fatalf("Flush: %v", err)
	}
	expect(t, "values", out.drain(), []int{1, 2, 3})
	expect(t, "sums", sums.drain(), []int{6})

	if err := s.Flush(); !errors.Is(err, stream.ErrAlreadyFlushed) {
		t.Fatalf("second Flush: got %v, want ErrAlreadyFlushed", err)
	}
	if got := out.drain(); len(got) != 0 {
		t.Fatalf("after second Flush: got %v, want nothing", got)
	}
}

// TestCancelDetachesSubtree tests that a cancelled stage and its
// descendants receive neither values nor errors.
func TestCancelDetachesSubtree(t *testing.T) {
	in := stream.NewSpec[int]().Deferred()
	root := record(in.Compose())
	child := in.Compose().Filter(func(int) bool { return true })
	grandchild := record(stream.Map(child, func(v int) int { return v * 2 }))

	accept(t, in, 1)
	child.Cancel()
	accept(t, in, 2)

	expect(t, "root", root.drain(), []int{1, 2})
	expect(t, "grandchild", grandchild.drain(), []int{2})

	var seen []error
	child.OnError(func(err error) { seen = append(seen, err) })
	acceptError(t, in, errors.New("late"))
	if len(seen) != 0 {
		t.Fatalf("errors after Cancel: got %v, want none", seen)
	}
}

// TestCancelledParentDerivesDetached tests that a stage derived from a
// cancelled stage leaves no registration behind.
func TestCancelledParentDerivesDetached(t *testing.T) {
	in := stream.NewSpec[int]().Deferred()
	parent := in.Compose().Filter(func(int) bool { return true })
	parent.Cancel()

	late := stream.Map(parent, func(v int) int { return v })
	out := record(late)

	accept(t, in, 1)
	if got := out.drain(); len(got) != 0 {
		t.Fatalf("values on a detached stage: got %v, want none", got)
	}
	if n := late.Observable().Registry().Len(late.Key()); n != 0 {
		t.Fatalf("consumers on a detached stage: got %d, want 0", n)
	}
}

// =============================================================================
// Errors
// =============================================================================

type codeError struct {
	code int
}

func (e *codeError) Error() string { return fmt.Sprintf("code %d", e.code) }

func TestErrorsPropagateToDescendants(t *testing.T) {
	in := stream.NewSpec[int]().Deferred()
	mapped := stream.Map(in.Compose(), func(v int) int { return v })
	leafA := mapped.Filter(func(int) bool { return true })
	leafB := stream.Map(mapped, func(v int) string { return "" })

	var a, b []error
	leafA.OnError(func(err error) { a = append(a, err) })
	leafB.OnError(func(err error) { b = append(b, err) })

	errBoom := errors.New("boom")
	acceptError(t, in, errBoom)

	if len(a) != 1 || !errors.Is(a[0], errBoom) {
		t.Fatalf("leaf A: got %v, want [%v]", a, errBoom)
	}
	if len(b) != 1 || !errors.Is(b[0], errBoom) {
		t.Fatalf("leaf B: got %v, want [%v]", b, errBoom)
	}
}

// TestWhenInterceptsMatchingErrors tests that matched errors stop at the
// stage and the rest reach derived stages.
func TestWhenInterceptsMatchingErrors(t *testing.T) {
	in := stream.NewSpec[int]().Deferred()
	s := in.Compose()

	var codes []int
	stream.When(s, func(err *codeError) { codes = append(codes, err.code) })

	child := stream.Map(s, func(v int) int { return v })
	var flowed []error
	child.OnError(func(err error) { flowed = append(flowed, err) })

	acceptError(t, in, &codeError{code: 7})
	acceptError(t, in, fmt.Errorf("wrapped: %w", &codeError{code: 9}))
	acceptError(t, in, errors.New("other"))

	expect(t, "When", codes, []int{7, 9})
	if len(flowed) != 1 || flowed[0].Error() != "other" {
		t.Fatalf("flowed: got %v, want [other]", flowed)
	}
}

func TestErrorsConsumerPanicEntersErrorPath(t *testing.T) {
	in := stream.NewSpec[int]().Deferred()
	s := in.Compose()

	var failures []error
	s.OnError(func(err error) { failures = append(failures, err) })
	s.Consume(func(v int) {
		if v < 0 {
			panic("negative")
		}
	})

	accept(t, in, 1, -1, 2)

	if len(failures) != 1 || !errors.Is(failures[0], reactor.ErrPanic) {
		t.Fatalf("OnError: got %v, want one ErrPanic", failures)
	}
}

func TestErrorsUnhandledAreLogged(t *testing.T) {
	var buf bytes.Buffer
	logger := slog.New(slog.NewTextHandler(&buf, nil))
	in := stream.NewSpec[int]().Logger(logger).Deferred()
	stream.Map(in.Compose(), func(v int) int { return v })

	acceptError(t, in, errors.New("nobody listens"))

	for _, want := range []string{"stream: unhandled error", "nobody listens"} {
		if !strings.Contains(buf.String(), want) {
			t.Fatalf("log: got %q, want %q", buf.String(), want)
		}
	}
}

// =============================================================================
// Ring-buffer dispatcher
// =============================================================================

func TestPipelineRingBuffer(t *testing.T) {
	d := reactor.New("pipeline").BufferSize(4).BuildRingBuffer()

	in := stream.NewSpec[int]().Dispatcher(d).Capacity(5).Deferred()
	sums := record(stream.Reduce(stream.Map(in.Compose(), func(v int) int { return v * v }), sum, 0))
	batches := record(stream.Collect(in.Compose()))

	for i := 1; i <= 10; i++ {
		accept(t, in, i)
	}

	expect(t, "sums", sums.take(t, 2), []int{1 + 4 + 9 + 16 + 25, 36 + 49 + 64 + 81 + 100})
	expect(t, "batches", batches.take(t, 2), [][]int{{1, 2, 3, 4, 5}, {6, 7, 8, 9, 10}})

	if !d.AwaitAndShutdown(5 * time.Second) {
		t.Fatalf("AwaitAndShutdown: got false, want true")
	}
	if err := in.Accept(11); !reactor.IsRejected(err) {
		t.Fatalf("Accept after shutdown: got %v, want rejected", err)
	}
}
