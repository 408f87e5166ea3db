// ©Hayabusa Cloud Co., Ltd. 2026. All rights reserved.
// Use of this source code is governed by a MIT-style
// license that can be found in the LICENSE file.

package reactor

import (
	"time"

	"code.hybscloud.com/atomix"
)

// DefaultClockResolution is the update period of a TickClock.
const DefaultClockResolution = 100 * time.Millisecond

// Clock reports an approximate wall clock in Unix milliseconds.
type Clock interface {
	ApproxNowMillis() int64
}

// ClockFunc adapts a function to the Clock interface.
type ClockFunc func() int64

// ApproxNowMillis calls f().
func (f ClockFunc) ApproxNowMillis() int64 {
	return f()
}

// SystemClock reads time.Now on every call.
type SystemClock struct{}

// ApproxNowMillis returns the current Unix time in milliseconds.
func (SystemClock) ApproxNowMillis() int64 {
	return time.Now().UnixMilli()
}

// TickClock is a coarse clock refreshed by a timer tick.
//
// Reads are a single atomic load. Precision is bounded by the resolution:
// a reading may lag the wall clock by up to one period.
type TickClock struct {
	now    atomix.Int64
	handle Cancellable
}

// NewTickClock creates a clock refreshed by t every resolution.
// A resolution <= 0 uses DefaultClockResolution.
func NewTickClock(t Timer, resolution time.Duration) (*TickClock, error) {
	if resolution <= 0 {
		resolution = DefaultClockResolution
	}
	c := &TickClock{}
	c.now.Store(time.Now().UnixMilli())
	h, err := t.Schedule(func(now time.Time) {
		c.now.Store(now.UnixMilli())
	}, resolution, resolution)
	if err != nil {
		return nil, err
	}
	c.handle = h
	return c, nil
}

// ApproxNowMillis returns the time of the last tick in Unix milliseconds.
func (c *TickClock) ApproxNowMillis() int64 {
	return c.now.Load()
}

// Stop cancels the refreshing tick. The clock keeps its last reading.
func (c *TickClock) Stop() {
	if c.handle != nil {
		c.handle.Cancel()
	}
}
