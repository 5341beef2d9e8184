package libsref

import "errors"

var (
	// ErrFlushInCriticalSection is returned by (*Reader).Flush when called
	// from inside a read critical section. The flush is not lost: the
	// reader's current-phase cache has its watermark set so that the next
	// matching Exit performs the flush instead.
	ErrFlushInCriticalSection = errors.New("libsref: flush called inside a read critical section")

	// ErrInvalidCapacity is returned by NewDomain when WithCapacity is given
	// a value that is not a positive power of two.
	ErrInvalidCapacity = errors.New("libsref: capacity must be a positive power of two")
)
