package libsref

import (
	"runtime"
	"sync/atomic"
	"time"
)

type readerState int

const (
	stateInactive readerState = iota
	stateActive
	stateOld
)

// classify reports whether r is not in any read critical section
// (inactive), in one that started in the domain's current phase (active),
// or in one that started before the phase last flipped (old).
func classify(d *Domain, r *Reader) readerState {
	val := atomic.LoadUint64(&r.counter)
	if val>>phaseBit == 0 {
		return stateInactive
	}
	if (val^atomic.LoadUint64(&d.counter))&phaseBit == 0 {
		return stateActive
	}
	return stateOld
}

// registryPoll repeatedly scans the readers list (a sentinel head),
// classifying each linked reader. INACTIVE readers always move to qs.
// ACTIVE readers move to out when out is non-nil (pass 1); when out is nil
// (pass 2) they are treated like INACTIVE and also move to qs. OLD readers
// are left in place; registryPoll loops, re-scanning, until none remain.
//
// Between scans tdMu is dropped (so readers can Enter/Exit/Close) and
// reacquired. After 1000 unproductive iterations it sleeps ~1ms instead of
// spinning, matching the backoff shape of the grace-period wait loop this
// engine is faithful to.
func (d *Domain) registryPoll(readers, out, qs *Reader) {
	for loops := 0; ; {
		runp := readers.next
		for runp != readers {
			next := runp.next
			switch classify(d, runp) {
			case stateActive:
				if out != nil {
					d.unlinkNode(runp)
					d.linkAtHead(out, runp)
					runp = next
					continue
				}
				fallthrough
			case stateInactive:
				d.unlinkNode(runp)
				d.linkAtHead(qs, runp)
			case stateOld:
				// Leave it; we must wait for it to finish.
			}
			runp = next
		}

		if dlistEmpty(readers) {
			return
		}

		d.tdMu.Unlock()
		if loops < 1000 {
			// Acquire-fence substitute: give the scheduler a chance to run
			// the readers we're waiting on, then re-observe their state.
			runtime.Gosched()
			loops++
		} else {
			time.Sleep(time.Millisecond)
			loops = 0
		}
		d.tdMu.Lock()
	}
}

// registrySync runs one grace period: it waits for every reader active at
// entry to either go quiescent or observably cross the phase flip, flips
// the global phase, applies every reader's old-phase deltas (increments
// before decrements, so a live object's count never transiently touches
// zero), and drains the emergency review list.
//
// If acquireLocks is true, registrySync takes gpMu then tdMu itself and
// releases them before returning. If false, the caller must already hold
// both (used by Reader.Close, which runs this while tearing a reader down
// under locks it took itself).
func (d *Domain) registrySync(acquireLocks bool) {
	if acquireLocks {
		d.gpMu.Lock()
		d.tdMu.Lock()
	}

	if dlistEmpty(&d.root) {
		if acquireLocks {
			d.tdMu.Unlock()
			d.gpMu.Unlock()
		}
		return
	}

	var out, qs Reader
	out.next, out.prev = &out, &out
	qs.next, qs.prev = &qs, &qs

	// Full fence: make sure every write the caller performed before calling
	// us (notably, whatever cache inserts led up to a flush) is visible
	// before we start classifying readers below.
	atomic.LoadUint64(&d.counter)

	d.registryPoll(&d.root, &out, &qs)

	prevPhase := atomic.LoadUint64(&d.counter)
	atomic.StoreUint64(&d.counter, prevPhase^phaseBit)

	d.registryPoll(&out, nil, &qs)
	splice(&qs, &d.root)

	oldPhase := prevPhase & phaseBit
	for rd := d.root.next; rd != &d.root; rd = rd.next {
		rd.caches[oldPhase].incs.drain(false)
	}
	for rd := d.root.next; rd != &d.root; rd = rd.next {
		rd.caches[oldPhase].decs.drain(true)
	}

	d.drainReview()

	if acquireLocks {
		d.tdMu.Unlock()
		d.gpMu.Unlock()
	}
}

// drainReview walks the emergency review list (see acquire_release.go),
// finalizing any object whose refcnt reached zero while it sat there and
// unlinking any object that is still live. Callers must hold tdMu: the
// emergency path also mutates refcnt only under tdMu, which is what makes
// this safe without running a nested grace period.
func (d *Domain) drainReview() {
	for obj := d.review; obj != nil; {
		next := obj.reviewNext
		if obj.refcnt != 0 {
			obj.reviewNext = nil
		} else {
			obj.fini()
		}
		obj = next
	}
	d.review = nil
}
