// ©Hayabusa Cloud Co., Ltd. 2026. All rights reserved.
// Use of this source code is governed by a MIT-style
// license that can be found in the LICENSE file.

package reactor

import (
	"crypto/rand"
	"sync"
	"time"

	"github.com/oklog/ulid/v2"
)

// Event is the envelope a dispatcher routes to consumers.
//
// The dispatcher owns an event until it is delivered; consumers borrow it for
// the duration of their callback. Events obtained from an Observable are
// pooled and recycled once routing completes.
type Event struct {
	// Key is the routing key the event was dispatched on.
	Key any

	// Data is the payload.
	Data any

	// ReplyTo, if not nil, is the key replies to this event are sent to.
	ReplyTo any

	// Delivery bookkeeping, set by the ring-buffer consumer while the
	// event's consumers run. Forward copies both onto the derived event.
	origin Dispatcher
	token  uint64

	ref *Reference[*Event]
}

// Recycle clears the event for reuse.
func (e *Event) Recycle() {
	e.Key = nil
	e.Data = nil
	e.ReplyTo = nil
	e.origin = nil
	e.token = 0
}

// release returns a pooled event to its pool. No-op for unpooled events.
func (e *Event) release() {
	if e.ref != nil {
		_ = e.ref.Release()
	}
}

// Key identifies an acceptor or error sink on an Observable.
//
// Keys are ULIDs: unique, comparable and time-sortable, which keeps trace
// records of a pipeline ordered by stage creation.
type Key = ulid.ULID

var (
	keyMu      sync.Mutex
	keyEntropy = ulid.Monotonic(rand.Reader, 0)
)

// NewKey returns a fresh routing key.
func NewKey() Key {
	keyMu.Lock()
	defer keyMu.Unlock()

	return ulid.MustNew(ulid.Timestamp(time.Now()), keyEntropy)
}
