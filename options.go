// ©Hayabusa Cloud Co., Ltd. 2026. All rights reserved.
// Use of this source code is governed by a MIT-style
// license that can be found in the LICENSE file.

package reactor

import (
	"log/slog"

	"go.opentelemetry.io/otel/trace"
)

// DefaultBufferSize is the ring buffer capacity used when none is configured.
const DefaultBufferSize = 1024

// Options configures dispatcher creation and variant selection.
type Options struct {
	name string

	// Ring buffer shape
	capacity       int
	singleProducer bool
	wait           WaitStrategy

	// Variant selection
	synchronous bool
	traced      bool
	tracer      trace.Tracer

	uncaught func(error)
	logger   *slog.Logger
}

// Builder creates dispatchers with fluent configuration.
//
// The builder selects the variant from the configuration: Synchronous()
// yields an inline dispatcher, otherwise a ring-buffer dispatcher; Traced()
// wraps either one in a TraceDispatcher.
//
// Example:
//
//	// Multi-producer ring buffer with a blocking consumer (defaults)
//	d := reactor.New("events").BuildRingBuffer()
//
//	// Latency-sensitive single producer pipeline
//	d := reactor.New("md").BufferSize(8192).SingleProducer().BusySpin().Build()
//
//	// Inline dispatcher with trace records
//	d := reactor.New("sync").Synchronous().Traced(nil).Build()
type Builder struct {
	opts Options
}

// New creates a dispatcher builder with the given name.
//
// The name labels the consumer goroutine's log records, trace records and
// metrics. Defaults: DefaultBufferSize slots, multiple producers, blocking
// wait strategy, failures logged through slog.Default().
func New(name string) *Builder {
	return &Builder{opts: Options{
		name:     name,
		capacity: DefaultBufferSize,
		wait:     BlockingWait,
	}}
}

// BufferSize sets the ring buffer capacity.
//
// Capacity rounds up to the next power of 2. Panics if size < 2.
func (b *Builder) BufferSize(size int) *Builder {
	if size < 2 {
		panic("reactor: buffer size must be >= 2")
	}
	b.opts.capacity = size
	return b
}

// SingleProducer declares that only one goroutine will publish.
//
// Publishing then skips the CAS claim loop. Violating the constraint
// corrupts the ring. Timer-driven stream windows publish from the timer's
// goroutine and therefore count as a producer.
func (b *Builder) SingleProducer() *Builder {
	b.opts.singleProducer = true
	return b
}

// BusySpin makes waiting producers and the consumer spin on the CPU.
// Lowest latency, one core burnt per waiter.
func (b *Builder) BusySpin() *Builder {
	b.opts.wait = BusySpinWait
	return b
}

// Yielding makes waiters back off adaptively without parking.
func (b *Builder) Yielding() *Builder {
	b.opts.wait = YieldingWait
	return b
}

// Blocking makes waiters park on a condition after a short spin.
// This is the default.
func (b *Builder) Blocking() *Builder {
	b.opts.wait = BlockingWait
	return b
}

// UncaughtHandler sets the handler for failures that escape task execution.
// The default logs them at error level.
func (b *Builder) UncaughtHandler(h func(error)) *Builder {
	b.opts.uncaught = h
	return b
}

// Logger sets the logger used by the default uncaught handler and by
// trace records.
func (b *Builder) Logger(l *slog.Logger) *Builder {
	b.opts.logger = l
	return b
}

// Synchronous selects the inline dispatcher.
func (b *Builder) Synchronous() *Builder {
	b.opts.synchronous = true
	return b
}

// Traced wraps the built dispatcher in a TraceDispatcher.
// A nil tracer uses the global otel TracerProvider.
func (b *Builder) Traced(tracer trace.Tracer) *Builder {
	b.opts.traced = true
	b.opts.tracer = tracer
	return b
}

// Build creates a Dispatcher with automatic variant selection.
//
//	Synchronous()  → *SyncDispatcher
//	otherwise      → *RingBufferDispatcher
//	Traced()       → wrapped in *TraceDispatcher
func (b *Builder) Build() Dispatcher {
	var d Dispatcher
	if b.opts.synchronous {
		d = b.BuildSync()
	} else {
		d = newRingBufferDispatcher(b.opts)
	}
	if b.opts.traced {
		return NewTraceDispatcher(d, b.opts.name, b.opts.tracer, b.opts.logger)
	}
	return d
}

// BuildRingBuffer creates a ring-buffer dispatcher with compile-time type
// safety. Panics if the builder is configured with Synchronous() or Traced().
func (b *Builder) BuildRingBuffer() *RingBufferDispatcher {
	if b.opts.synchronous || b.opts.traced {
		panic("reactor: BuildRingBuffer requires neither Synchronous() nor Traced()")
	}
	return newRingBufferDispatcher(b.opts)
}

// BuildSync creates an inline dispatcher. Without an UncaughtHandler,
// recovered panics are logged to the builder's logger.
func (b *Builder) BuildSync() *SyncDispatcher {
	return newSyncDispatcher(b.opts.name, b.opts.uncaught, b.opts.logger)
}

// roundToPow2 rounds n up to the next power of 2.
func roundToPow2(n int) int {
	if n < 2 {
		return 2
	}
	n--
	n |= n >> 1
	n |= n >> 2
	n |= n >> 4
	n |= n >> 8
	n |= n >> 16
	n |= n >> 32
	return n + 1
}

// pad is cache line padding to prevent false sharing.
type pad [64]byte

// padShort is padding to fill cache line after 8-byte field.
type padShort [64 - 8]byte
