package libsref

import (
	"sync/atomic"
)

// phaseBit is the low bit of both the registry's global counter and a
// reader's counter: it carries the phase. The bits above it carry a
// reader's read-critical-section nesting depth, incremented/decremented by
// 2 per Enter/Exit so the phase bit is never disturbed by nesting.
const phaseBit = 1

// Reader is a per-goroutine handle into a Domain, analogous to a
// pthread's lazily-created thread-local record. Go has no thread-local
// storage and no thread-exit destructor, so a Reader is created explicitly
// with Domain.NewReader and must be explicitly released with Close when the
// owning goroutine is done with it.
//
// A Reader must not be used concurrently by more than one goroutine.
type Reader struct {
	domain *Domain

	// counter packs (nesting_depth << 1 | local_phase_bit). Zero means "not
	// in any read critical section, phase bit 0". Only ever written by the
	// owning goroutine; read by the grace-period engine via atomic loads.
	counter uint64

	caches [2]cache

	// registry list linkage; guarded by domain.tdMu.
	prev, next *Reader

	closed bool
}

func newReader(d *Domain) *Reader {
	r := &Reader{domain: d}
	r.caches[0] = newCache(d.capacity)
	r.caches[1] = newCache(d.capacity)
	return r
}

func (r *Reader) linked() bool { return r.next != nil }

// Enter begins a (possibly nested) read critical section. Acquire and
// Release must only be called while a critical section is open.
func (r *Reader) Enter() {
	value := atomic.LoadUint64(&r.counter)
	if value>>phaseBit == 0 {
		// Not nested: a grace period may have elapsed since we last looked,
		// so pick up the current phase and drop any stale flush watermark
		// for it -- a prior fill of that cache is now moot.
		value = atomic.LoadUint64(&r.domain.counter) & phaseBit
		r.caches[value&phaseBit].flush = 0
	}

	nval := value + (1 << phaseBit)
	if nval <= value {
		panic("libsref: read critical section nesting overflow")
	}
	atomic.StoreUint64(&r.counter, nval)
}

// Exit ends one level of read critical section. If this was the outermost
// level and the current-phase cache has a pending flush watermark, Exit
// attempts the deferred flush.
func (r *Reader) Exit() {
	value := atomic.LoadUint64(&r.counter)
	if value>>phaseBit == 0 {
		panic("libsref: Exit called without a matching Enter")
	}
	value -= 1 << phaseBit
	atomic.StoreUint64(&r.counter, value)

	if value>>phaseBit == 0 && r.caches[value&phaseBit].flush != 0 {
		r.flushImpl(value)
	}
}

// Close tears the reader down: any deltas still cached for the phase the
// reader is not currently merged against are folded in, a grace period
// runs if that leaves anything pending, and the reader is unlinked from its
// domain. Close must be called exactly once per Reader, after the owning
// goroutine is done entering critical sections with it -- Go has no
// thread-exit hook to do this automatically.
func (r *Reader) Close() {
	d := r.domain
	atomic.StoreUint64(&r.counter, 0)

	d.gpMu.Lock()
	d.tdMu.Lock()

	if r.closed {
		d.tdMu.Unlock()
		d.gpMu.Unlock()
		panic("libsref: Reader closed twice")
	}

	idx := atomic.LoadUint64(&d.counter) & phaseBit
	cur, other := &r.caches[idx], &r.caches[idx^phaseBit]

	cur.incs.merge(&other.incs)
	cur.decs.merge(&other.decs)
	if cur.incs.nUsed != 0 || cur.decs.nUsed != 0 {
		d.registrySync(false)
	}

	idx ^= phaseBit
	if r.caches[idx].incs.nUsed != 0 || r.caches[idx].decs.nUsed != 0 {
		d.registrySync(false)
	}

	d.unlink(r)
	r.closed = true

	d.tdMu.Unlock()
	d.gpMu.Unlock()
}
