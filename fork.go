package libsref

// AtForkHooks bundles the three callbacks a host's fork wrapper should run
// around a fork(2) call, so this domain's registry stays consistent across
// the fork in a multi-threaded process embedding Go via cgo.
//
// Plain Go programs essentially never call fork(2) directly -- the runtime
// does not support forking a multi-goroutine process without an immediate
// exec, since goroutines and their scheduler state do not survive a fork.
// AtFork exists for symmetry with the wider API this package's fork
// support was distilled from, and for the narrow case of a cgo host that
// forks around a region where no Go goroutines not already tracked here
// are expected to survive into the child.
type AtForkHooks struct {
	Prepare func()
	Parent  func()
	Child   func()
}

// AtFork returns the prepare/parent/child callbacks described above.
func (d *Domain) AtFork() AtForkHooks {
	return AtForkHooks{
		Prepare: func() {
			d.gpMu.Lock()
			d.tdMu.Lock()
		},
		Parent: func() {
			d.tdMu.Unlock()
			d.gpMu.Unlock()
		},
		Child: func() {
			d.tdMu.Unlock()
			d.gpMu.Unlock()

			// Every other reader's goroutine vanished with the fork; none
			// of their caches or pending deltas survive. Only the calling
			// goroutine's own reader, if it has one, still exists in the
			// child.
			d.root.next = &d.root
			d.root.prev = &d.root
			d.review = nil
		},
	}
}

// ReattachAfterFork re-links r into d's registry after AtFork's Child
// callback has reset d to an empty list. The calling goroutine is
// responsible for calling this on whichever Reader (if any) it intends to
// keep using past the fork; d has no way to discover that Reader on its
// own, since Go has no thread-local storage to find it through.
func (d *Domain) ReattachAfterFork(r *Reader) {
	d.tdMu.Lock()
	d.linkAtHead(&d.root, r)
	d.tdMu.Unlock()
}
