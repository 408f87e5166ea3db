// ©Hayabusa Cloud Co., Ltd. 2026. All rights reserved.
// Use of this source code is governed by a MIT-style
// license that can be found in the LICENSE file.

package stream

import (
	"errors"
	"fmt"
)

var (
	// ErrUnbounded is wrapped by the panic raised when a count-based
	// operator is applied without a positive batch size.
	ErrUnbounded = errors.New("stream: operator requires a batch size > 0")

	// ErrNoTimer is wrapped by the panic raised when a time-based window
	// is created without a timer.
	ErrNoTimer = errors.New("stream: window requires a timer")

	// ErrInvalidWindow is wrapped by the panic raised for a non-positive
	// window period or moving-window backlog.
	ErrInvalidWindow = errors.New("stream: invalid window")

	// ErrAlreadyFlushed is returned by a second call to Flush.
	ErrAlreadyFlushed = errors.New("stream: already flushed")
)

func precondition(sentinel error, format string, args ...any) {
	panic(fmt.Errorf("%w: "+format, append([]any{sentinel}, args...)...))
}
