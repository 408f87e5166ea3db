// ©Hayabusa Cloud Co., Ltd. 2026. All rights reserved.
// Use of this source code is governed by a MIT-style
// license that can be found in the LICENSE file.

package reactor

import (
	"code.hybscloud.com/atomix"
	"code.hybscloud.com/spin"
)

// Pool hands out references to recyclable objects and takes them back when
// their count drops to zero.
//
// Free references are kept in a bounded lock-free free list. Allocate reuses
// a free reference when one is available and creates a new object otherwise;
// a reference recycled while the free list is full is left to the garbage
// collector. Allocate and recycling are safe from any goroutine.
//
// Example:
//
//	pool := reactor.NewPool(1024, func() *Frame { return new(Frame) }, nil)
//	ref := pool.Allocate()    // count 1
//	fill(ref.Get())
//	ref.Release()             // Frame.Recycle(), back on the free list
type Pool[O Recyclable] struct {
	free    *freeList[O]
	factory func() O
	clock   Clock

	allocated atomix.Uint64
}

// PoolStats is a snapshot of pool counters.
type PoolStats struct {
	// Allocated counts objects created by the factory.
	Allocated uint64
	// Reused counts allocations served from the free list.
	Reused uint64
	// Recycled counts references returned to the free list.
	Recycled uint64
	// Dropped counts references discarded because the free list was full.
	Dropped uint64
	// Capacity is the free list capacity.
	Capacity int
}

// NewPool creates a pool whose free list holds up to capacity references.
// Capacity rounds up to the next power of 2. Panics if capacity < 2 or
// factory is nil. A nil clock uses SystemClock.
func NewPool[O Recyclable](capacity int, factory func() O, clock Clock) *Pool[O] {
	if factory == nil {
		panic("reactor: pool factory is required")
	}
	if clock == nil {
		clock = SystemClock{}
	}
	return &Pool[O]{
		free:    newFreeList[O](capacity),
		factory: factory,
		clock:   clock,
	}
}

// Allocate returns a reference with a count of one.
func (p *Pool[O]) Allocate() *Reference[O] {
	ref := p.free.take()
	if ref == nil {
		p.allocated.Add(1)
		ref = &Reference[O]{obj: p.factory(), clock: p.clock, pool: p}
	}
	ref.reset()
	return ref
}

// Stats returns a snapshot of the pool counters.
func (p *Pool[O]) Stats() PoolStats {
	return PoolStats{
		Allocated: p.allocated.Load(),
		Reused:    p.free.reused.Load(),
		Recycled:  p.free.recycled.Load(),
		Dropped:   p.free.dropped.Load(),
		Capacity:  len(p.free.cells),
	}
}

func (p *Pool[O]) put(ref *Reference[O]) {
	p.free.put(ref)
}

// freeList holds the idle references of a pool.
//
// Each cell carries a lap sequence: it accepts a reference when the sequence
// equals the put cursor and hands one out when it equals the take cursor
// plus one. Any number of goroutines may put and take concurrently.
type freeList[O Recyclable] struct {
	_     pad
	puts  atomix.Uint64
	_     pad
	takes atomix.Uint64
	_     pad
	cells []freeCell[O]
	mask  uint64

	reused   atomix.Uint64
	recycled atomix.Uint64
	dropped  atomix.Uint64
}

type freeCell[O Recyclable] struct {
	seq atomix.Uint64
	ref *Reference[O]
	_   padShort
}

func newFreeList[O Recyclable](capacity int) *freeList[O] {
	if capacity < 2 {
		panic("reactor: pool capacity must be >= 2")
	}
	n := uint64(roundToPow2(capacity))
	l := &freeList[O]{cells: make([]freeCell[O], n), mask: n - 1}
	for i := range l.cells {
		l.cells[i].seq.StoreRelaxed(uint64(i))
	}
	return l
}

// put stashes ref, or drops it to the garbage collector when every cell is
// taken. Reports whether ref was kept.
func (l *freeList[O]) put(ref *Reference[O]) bool {
	sw := spin.Wait{}
	for {
		pos := l.puts.LoadAcquire()
		c := &l.cells[pos&l.mask]
		seq := c.seq.LoadAcquire()
		switch {
		case seq == pos:
			if l.puts.CompareAndSwapAcqRel(pos, pos+1) {
				c.ref = ref
				c.seq.StoreRelease(pos + 1)
				l.recycled.Add(1)
				return true
			}
		case seq < pos:
			// Cell still holds the reference put one lap ago
			l.dropped.Add(1)
			return false
		}
		sw.Once()
	}
}

// take returns an idle reference, nil if there is none.
func (l *freeList[O]) take() *Reference[O] {
	sw := spin.Wait{}
	for {
		pos := l.takes.LoadAcquire()
		c := &l.cells[pos&l.mask]
		seq := c.seq.LoadAcquire()
		switch {
		case seq == pos+1:
			if l.takes.CompareAndSwapAcqRel(pos, pos+1) {
				ref := c.ref
				c.ref = nil
				c.seq.StoreRelease(pos + l.mask + 1)
				l.reused.Add(1)
				return ref
			}
		case seq < pos+1:
			return nil
		}
		sw.Once()
	}
}
