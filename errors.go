// ©Hayabusa Cloud Co., Ltd. 2026. All rights reserved.
// Use of this source code is governed by a MIT-style
// license that can be found in the LICENSE file.

package reactor

import (
	"errors"
	"fmt"

	"code.hybscloud.com/iox"
)

// ErrWouldBlock indicates the operation cannot proceed immediately.
//
// TryDispatch and TryExecute return ErrWouldBlock when the ring buffer is
// full. It is a control flow signal, not a failure: the caller should retry
// later or fall back to the blocking Dispatch/Execute.
//
// This is an alias for [iox.ErrWouldBlock] for ecosystem consistency.
var ErrWouldBlock = iox.ErrWouldBlock

var (
	// ErrShutdown is returned when work is submitted to a dispatcher that
	// is shutting down or has terminated.
	ErrShutdown = errors.New("reactor: dispatcher is shut down")

	// ErrHalted is returned when work is submitted to a halted dispatcher.
	ErrHalted = errors.New("reactor: dispatcher is halted")

	// ErrNilRouter is returned by Dispatch when no router is supplied.
	ErrNilRouter = errors.New("reactor: router is required")

	// ErrPanic is matched by every *PanicError.
	ErrPanic = errors.New("reactor: consumer panicked")

	// ErrOverRelease is returned when a reference is released more times
	// than it was retained. The count is clamped at zero.
	ErrOverRelease = errors.New("reactor: reference released below zero")

	// ErrTimerStopped is returned when scheduling on a stopped timer.
	ErrTimerStopped = errors.New("reactor: timer is stopped")
)

// IsWouldBlock reports whether err indicates the operation would block.
// Delegates to [iox.IsWouldBlock] for wrapped error support.
func IsWouldBlock(err error) bool {
	return iox.IsWouldBlock(err)
}

// IsRejected reports whether err is a state violation: work submitted to a
// dispatcher that no longer accepts it.
func IsRejected(err error) bool {
	return errors.Is(err, ErrShutdown) || errors.Is(err, ErrHalted)
}

// PanicError wraps a value recovered from a panicking consumer or task.
type PanicError struct {
	// Value is the value passed to panic().
	Value any

	// Stack is the stack trace at the time of the panic.
	Stack []byte
}

// Error implements the error interface.
func (e *PanicError) Error() string {
	return fmt.Sprintf("reactor: panic: %v", e.Value)
}

// Is allows errors.Is to match PanicError with ErrPanic.
func (e *PanicError) Is(target error) bool {
	return target == ErrPanic
}

// Unwrap returns the panic value when it is itself an error.
func (e *PanicError) Unwrap() error {
	if err, ok := e.Value.(error); ok {
		return err
	}
	return nil
}
