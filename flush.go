package libsref

import "sync/atomic"

// flushImpl attempts to run a grace period on behalf of r, given an
// already-loaded counter value. It fails with ErrFlushInCriticalSection if
// value shows r is currently inside a read critical section -- running a
// grace period from there would mean waiting for ourselves to exit, which
// never happens.
func (r *Reader) flushImpl(value uint64) error {
	if value>>phaseBit != 0 {
		return ErrFlushInCriticalSection
	}

	r.caches[value&phaseBit].flush = 0
	r.domain.registrySync(true)
	return nil
}

// Flush forces a grace period, applying every reader's pending deltas. If
// r is currently inside a read critical section the flush cannot run here;
// Flush instead arms the current-phase cache's watermark so the next
// matching Exit performs it, and returns ErrFlushInCriticalSection.
func (r *Reader) Flush() error {
	value := atomic.LoadUint64(&r.counter)
	err := r.flushImpl(value)
	if err != nil {
		r.caches[value&phaseBit].flush = 1
	}
	return err
}
