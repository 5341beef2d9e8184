package libsref

import "unsafe"

// delta pairs a managed object's address with an accumulated reference
// count change. A zero ptr marks an empty slot.
type delta struct {
	ptr uintptr
	val int64
}

// deltaTable is a fixed-capacity, open-addressed hashmap from object
// address to pending refcount delta. Capacity is always a power of two.
// Inserts must always succeed: a cache is flushed before its tables fill,
// see cache.go and acquire_release.go.
type deltaTable struct {
	slots []delta
	nUsed int
}

func newDeltaTable(capacity int) deltaTable {
	return deltaTable{slots: make([]delta, capacity)}
}

func (t *deltaTable) capacity() int { return len(t.slots) }

// add inserts delta for ptr, or accumulates onto an existing entry for ptr.
// *idxOut receives the slot index used for the insert, but only when a new
// slot was actually claimed (the empty-slot branch below); a call that
// merely accumulates onto an existing entry leaves *idxOut untouched. This
// matches the access pattern in acquire_release.go, where idxOut is only
// read back after a call that grew nUsed, i.e. one that took the insert
// branch.
//
// add reports whether the table's load factor has crossed 75% capacity.
func (t *deltaTable) add(ptr uintptr, val int64, idxOut *int) bool {
	n := len(t.slots)
	if t.nUsed >= n {
		panic("libsref: delta table overflow")
	}

	idx := int((ptr >> 3) % uintptr(n))
	for probe := uintptr(1); ; probe++ {
		s := &t.slots[idx]
		switch s.ptr {
		case 0:
			s.ptr = ptr
			s.val = val
			*idxOut = idx
			t.nUsed++
			return t.nUsed*100 >= n*75
		case ptr:
			s.val += val
			return false
		}
		idx = int((uintptr(idx) + probe) % uintptr(n))
	}
}

// removeProbed clears the slot at idx, which must currently hold the most
// recent insert performed by add. Used only by the emergency path in
// acquire_release.go to back out an insert that pushed a cache over its
// flush threshold while the reader could not itself run a grace period.
//
// This can leave a probe-chain "tombstone" gap behind: a later probe for a
// different key that happened to collide through this slot may stop early
// at the now-empty slot instead of continuing its chain. The table's
// contract tolerates this because every table is fully drained (emptied)
// before the next grace period begins filling it again, so any stale chain
// cannot outlive a single grace period.
func (t *deltaTable) removeProbed(idx int) {
	t.slots[idx] = delta{}
	t.nUsed--
}

// merge moves every entry of src into dst via add, clearing src's slots as
// it goes. It stops at the first near-full signal from add and leaves the
// remainder of src in place; the caller completes the merge on the next
// grace period. The scan walks slot indices forward and stops once it has
// consumed as many non-empty slots as src held when merge was called,
// rather than resetting after an early stop.
func (t *deltaTable) merge(src *deltaTable) {
	j := 0
	for i, n := 0, src.nUsed; j < n; i++ {
		s := &src.slots[i]
		if s.ptr == 0 {
			continue
		}

		var idx int
		nearFull := t.add(s.ptr, s.val, &idx)
		s.ptr = 0
		s.val = 0
		src.nUsed--
		j++

		if nearFull {
			break
		}
	}
}

// drain applies every pending delta in the table to its object's refcnt. If
// isDecrement and the resulting refcnt is zero, the object's finalizer is
// invoked. Every visited slot is cleared; the table is empty when drain
// returns.
func (t *deltaTable) drain(isDecrement bool) {
	j := 0
	for i := 0; j < t.nUsed; i++ {
		s := &t.slots[i]
		if s.ptr == 0 {
			continue
		}

		obj := (*Object)(unsafe.Pointer(s.ptr))
		obj.refcnt += s.val
		if obj.refcnt < 0 {
			panic("libsref: refcount went negative")
		}
		if isDecrement && obj.refcnt == 0 && obj.fini != nil {
			obj.fini()
		}

		s.ptr = 0
		s.val = 0
		j++
	}
	t.nUsed = 0
}
