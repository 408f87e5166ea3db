// ©Hayabusa Cloud Co., Ltd. 2026. All rights reserved.
// Use of this source code is governed by a MIT-style
// license that can be found in the LICENSE file.

package reactor

import (
	"fmt"
	"time"

	"code.hybscloud.com/atomix"
)

// Reference counts the holders of a Recyclable object.
//
// When the count drops to zero the object is recycled exactly once and, for
// pooled references, the reference returns to its pool. Holders must not
// read the object after their final Release.
//
// Retain and Release are atomic with respect to each other; the reference is
// a counting primitive, not a lock.
//
// Example:
//
//	ref := reactor.NewReference(buf, nil)  // count 1
//	ref.Retain()                           // handed to a second goroutine
//	go func() { use(ref.Get()); ref.Release() }()
//	ref.Release()                          // last Release recycles buf
type Reference[O Recyclable] struct {
	count     atomix.Uint64
	inception int64
	obj       O
	clock     Clock
	pool      *Pool[O]
}

// NewReference wraps obj in a reference held once by the caller.
// A nil clock uses SystemClock.
func NewReference[O Recyclable](obj O, clock Clock) *Reference[O] {
	if clock == nil {
		clock = SystemClock{}
	}
	r := &Reference[O]{obj: obj, clock: clock}
	r.reset()
	return r
}

// reset marks the reference as freshly allocated.
func (r *Reference[O]) reset() {
	r.inception = r.clock.ApproxNowMillis()
	r.count.StoreRelease(1)
}

// Get returns the wrapped object.
func (r *Reference[O]) Get() O {
	return r.obj
}

// Count returns the current reference count.
func (r *Reference[O]) Count() int {
	return int(r.count.LoadAcquire())
}

// Age returns the time elapsed since the reference was allocated, at the
// resolution of its clock.
func (r *Reference[O]) Age() time.Duration {
	return time.Duration(r.clock.ApproxNowMillis()-r.inception) * time.Millisecond
}

// Retain increments the count by one.
func (r *Reference[O]) Retain() {
	r.count.AddAcqRel(1)
}

// RetainN increments the count by n. Non-positive n is ignored.
func (r *Reference[O]) RetainN(n int) {
	if n <= 0 {
		return
	}
	r.count.AddAcqRel(uint64(n))
}

// Release decrements the count by one.
func (r *Reference[O]) Release() error {
	return r.ReleaseN(1)
}

// ReleaseN decrements the count by n, clamped to the outstanding count.
//
// The call that moves the count to zero recycles the object. Releasing more
// than is outstanding clamps at zero and returns ErrOverRelease so the
// imbalance is detectable; the object is still recycled at most once.
func (r *Reference[O]) ReleaseN(n int) error {
	if n <= 0 {
		return nil
	}
	want := uint64(n)
	for {
		c := r.count.LoadAcquire()
		if c == 0 {
			return ErrOverRelease
		}
		d := min(want, c)
		if r.count.CompareAndSwapAcqRel(c, c-d) {
			if c == d {
				r.recycle()
			}
			if d < want {
				return ErrOverRelease
			}
			return nil
		}
	}
}

func (r *Reference[O]) recycle() {
	r.obj.Recycle()
	if r.pool != nil {
		r.pool.put(r)
	}
}

func (r *Reference[O]) String() string {
	return fmt.Sprintf("Reference{count=%d, inception=%d, obj=%v}", r.Count(), r.inception, r.obj)
}
