// ©Hayabusa Cloud Co., Ltd. 2026. All rights reserved.
// Use of this source code is governed by a MIT-style
// license that can be found in the LICENSE file.

package reactor

import (
	"code.hybscloud.com/atomix"
	"code.hybscloud.com/spin"
)

// taskRing is a bounded ring of pre-allocated task slots with a single
// consumer and one or many producers.
//
// Each slot carries a sequence number:
//
//	seq == id              slot free, claimable by the producer whose tail is id
//	seq == id+1            slot published, readable by the consumer at head id
//	seq == id+capacity     slot consumed, free for the claim one lap later
//
// Producers claim by advancing tail (CAS with multiple producers, a plain
// release store with one), write the task, then publish by storing id+1.
// The consumer drains strictly by ascending sequence.
//
// Slots are never freed; they are overwritten on every wraparound.
type taskRing struct {
	_        pad
	head     atomix.Uint64 // Consumer reads from here
	_        pad
	tail     atomix.Uint64 // Producers claim here
	_        pad
	slots    []task
	mask     uint64
	capacity uint64
	single   bool
}

// task is a ring slot: a sequence number plus the job it carries.
type task struct {
	seq atomix.Uint64
	id  uint64
	job
}

// job is a unit of deferred work, held in a ring slot or on the consumer's
// tail pile.
type job struct {
	// Event routing
	key        any
	ev         *Event
	registry   Registry
	router     Router
	onError    ErrorConsumer
	onComplete Consumer

	// Plain execution
	fn func()
}

func newTaskRing(capacity int, single bool) *taskRing {
	if capacity < 2 {
		panic("reactor: buffer size must be >= 2")
	}

	n := uint64(roundToPow2(capacity))
	r := &taskRing{
		slots:    make([]task, n),
		mask:     n - 1,
		capacity: n,
		single:   single,
	}

	for i := uint64(0); i < n; i++ {
		r.slots[i].seq.StoreRelaxed(i)
	}

	return r
}

// tryClaim claims the next slot. Returns ErrWouldBlock if the ring is full.
func (r *taskRing) tryClaim() (*task, error) {
	if r.single {
		tail := r.tail.LoadRelaxed()
		slot := &r.slots[tail&r.mask]
		if slot.seq.LoadAcquire() != tail {
			return nil, ErrWouldBlock
		}
		r.tail.StoreRelease(tail + 1)
		slot.id = tail
		return slot, nil
	}

	sw := spin.Wait{}
	for {
		tail := r.tail.LoadAcquire()
		slot := &r.slots[tail&r.mask]
		seq := slot.seq.LoadAcquire()
		diff := int64(seq) - int64(tail)

		if diff == 0 {
			if r.tail.CompareAndSwapAcqRel(tail, tail+1) {
				slot.id = tail
				return slot, nil
			}
		} else if diff < 0 {
			return nil, ErrWouldBlock
		}
		sw.Once()
	}
}

// publish makes a claimed slot visible to the consumer.
func (r *taskRing) publish(t *task) {
	t.seq.StoreRelease(t.id + 1)
}

// next returns the published slot at head, or nil (consumer only).
func (r *taskRing) next() *task {
	head := r.head.LoadRelaxed()
	slot := &r.slots[head&r.mask]
	if slot.seq.LoadAcquire() != head+1 {
		return nil
	}
	return slot
}

// consumed hands a drained slot back to the producers (consumer only).
func (r *taskRing) consumed(t *task) {
	id := t.id
	t.reset()
	t.seq.StoreRelease(id + r.capacity)
	r.head.StoreRelease(id + 1)
}

// hasSpace reports whether the slot at the current tail is claimable.
func (r *taskRing) hasSpace() bool {
	tail := r.tail.LoadAcquire()
	return r.slots[tail&r.mask].seq.LoadAcquire() >= tail
}

// drained reports whether every claimed slot has been consumed.
func (r *taskRing) drained() bool {
	return r.head.LoadAcquire() == r.tail.LoadAcquire()
}

// backlog returns the number of claimed but unconsumed slots.
func (r *taskRing) backlog() int {
	head := r.head.LoadAcquire()
	tail := r.tail.LoadAcquire()
	if tail < head {
		return 0
	}
	return int(tail - head)
}

func (t *task) reset() {
	t.job = job{}
}
