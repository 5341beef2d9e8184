package libsref

import (
	"sync/atomic"
	"unsafe"
)

// Acquire records a pending +1 to p's reference count and returns p, so
// call sites can write p = Acquire(r, atomicLoad(slot)). It must be called
// from inside a read critical section opened with r.Enter.
func Acquire[T Managed](r *Reader, p T) T {
	acquireOrRelease(r, p.header(), +1, false)
	return p
}

// Release records a pending -1 to p's reference count. It must be called
// from inside a read critical section opened with r.Enter.
func Release[T Managed](r *Reader, p T) {
	acquireOrRelease(r, p.header(), -1, true)
}

// acquireOrRelease is the shared body of Acquire/Release: it resolves the
// current phase, records the delta in the matching sub-table of the
// reader's cache for that phase, and attempts an immediate synchronous
// flush once the cache has seen more than one near-full signal. If that
// flush fails because the reader is still inside a critical section (it
// cannot itself run a grace period, which would wait on itself) and this
// call inserted a new slot, it falls through to the emergency path.
func acquireOrRelease(r *Reader, obj *Object, delta int64, isDecrement bool) {
	if obj == nil {
		panic("libsref: nil managed object")
	}

	phase := r.domain.phase()
	c := &r.caches[phase]
	ptr := uintptr(unsafe.Pointer(obj))

	var idx int
	var nearFull bool
	var table *deltaTable
	if isDecrement {
		table = &c.decs
	} else {
		table = &c.incs
	}
	usedBefore := table.nUsed
	nearFull = table.add(ptr, delta, &idx)
	inserted := table.nUsed > usedBefore

	if nearFull {
		c.flush++
	}
	if c.flush > 1 {
		// Only a call that claimed a new slot has an insert to back out;
		// an accumulate onto an existing entry did not grow the table.
		if err := r.flushImpl(atomic.LoadUint64(&r.counter)); err != nil && inserted {
			r.emergency(table, idx, obj, delta)
		}
	}
}

// emergency handles a cache that is full while its owning reader is still
// inside a read critical section. It backs the just-inserted delta out of
// the cache, applies it directly to the object's refcnt under tdMu, and
// parks the object on the registry's review list so the next grace period
// finalizes it if that brought the count to zero.
func (r *Reader) emergency(table *deltaTable, idx int, obj *Object, delta int64) {
	ptr := uintptr(unsafe.Pointer(obj))
	if table.slots[idx].ptr != ptr {
		panic("libsref: inconsistent delta table state in emergency path")
	}
	table.removeProbed(idx)

	d := r.domain
	d.tdMu.Lock()
	obj.refcnt += delta
	if obj.refcnt < 0 {
		d.tdMu.Unlock()
		panic("libsref: refcount went negative")
	}
	if obj.reviewNext == nil {
		obj.reviewNext = d.review
		d.review = obj
	}
	d.tdMu.Unlock()
}
