package libsref

import (
	"sync"
	"sync/atomic"
)

const defaultCapacity = 128

// Domain owns the global registry of readers for one independent instance
// of the library: the reader list, the phase counter, the two
// synchronization locks, and the emergency review list.
//
// Most programs only need one Domain; Default returns a lazily-initialized
// package-level instance for that case. Tests and programs that want
// isolated registries (so one test's grace periods never wait on another
// test's readers) can construct their own with NewDomain.
type Domain struct {
	capacity int

	counter uint64 // low bit is the global phase bit

	// root is the sentinel of a circular intrusive doubly-linked list of
	// live Readers. root is never itself a real reader.
	root Reader

	tdMu sync.Mutex // guards root's membership and the review list
	gpMu sync.Mutex // serializes grace periods; always taken before tdMu

	review *Object // singly-linked emergency review list
}

// Option configures a Domain constructed with NewDomain.
type Option func(*Domain) error

// WithCapacity sets the per-phase, per-reader delta table capacity. It
// must be a positive power of two; the default is 128.
func WithCapacity(n int) Option {
	return func(d *Domain) error {
		if n <= 0 || n&(n-1) != 0 {
			return ErrInvalidCapacity
		}
		d.capacity = n
		return nil
	}
}

// NewDomain constructs an independent registry. It is the Go equivalent of
// the library's idempotent lib_init: each Domain value owns its own locks
// and reader list, so constructing one always succeeds barring invalid
// options -- there is no shared process-global resource to exhaust.
func NewDomain(opts ...Option) (*Domain, error) {
	d := &Domain{capacity: defaultCapacity}
	d.root.next = &d.root
	d.root.prev = &d.root

	for _, opt := range opts {
		if err := opt(d); err != nil {
			return nil, err
		}
	}
	return d, nil
}

var defaultDomain struct {
	once sync.Once
	d    *Domain
}

// Default returns a lazily-initialized, process-wide Domain, for callers
// who want a single shared registry instead of managing their own Domain
// value.
func Default() *Domain {
	defaultDomain.once.Do(func() {
		d, err := NewDomain()
		if err != nil {
			// Only WithCapacity can fail NewDomain, and Default passes none.
			panic(err)
		}
		defaultDomain.d = d
	})
	return defaultDomain.d
}

// NewReader creates and registers a new Reader handle. Callers keep the
// returned Reader per-goroutine (Go has no thread-local slot to do this
// automatically) and must call Close on it exactly once when done.
func (d *Domain) NewReader() *Reader {
	r := newReader(d)

	d.tdMu.Lock()
	d.linkAtHead(&d.root, r)
	d.tdMu.Unlock()

	return r
}

// dlist helpers. These operate on the prev/next fields embedded directly in
// Reader: no separate allocation per list node, just documented aliasing
// rules enforced by routing every link, unlink and splice through the
// helpers below.

func (d *Domain) linkAtHead(head, node *Reader) {
	node.next = head.next
	node.prev = head
	head.next.prev = node
	head.next = node
}

func (d *Domain) unlinkNode(node *Reader) {
	node.next.prev = node.prev
	node.prev.next = node.next
}

// unlink removes r from the registry. Callers must hold tdMu.
func (d *Domain) unlink(r *Reader) {
	d.unlinkNode(r)
}

func dlistEmpty(head *Reader) bool { return head.next == head }

// splice moves every node currently linked under src (a sentinel head) to
// the front of dst (another sentinel head), leaving src empty. Callers must
// hold tdMu.
func splice(src, dst *Reader) {
	if dlistEmpty(src) {
		return
	}

	src.next.prev = dst
	src.prev.next = dst.next
	dst.next.prev = src.prev
	dst.next = src.next

	src.next = src
	src.prev = src
}

func (d *Domain) phase() uint64 {
	return atomic.LoadUint64(&d.counter) & phaseBit
}
