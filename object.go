package libsref

// Object is embedded as the first field of any managed type. It carries the
// reference count, the user-supplied finalizer, and the review-list link
// used by the emergency path (see acquire_release.go).
//
// Readers and writers never touch these fields directly; refcnt is mutated
// only by the grace-period engine (grace.go) and, under the registry's
// thread-list lock, by the emergency path (acquire_release.go).
type Object struct {
	refcnt     int64
	fini       func()
	reviewNext *Object
}

// Managed is satisfied by any *T that embeds Object, via promotion of
// Object's header method. Acquire and Release are generic over Managed so
// callers never need to reach into the embedded Object by hand.
type Managed interface {
	header() *Object
}

func (o *Object) header() *Object { return o }

// Init gives the object its initial reference count of 1 and its
// finalizer. fini is invoked exactly once, when the object's reference
// count first reaches zero during grace-period application.
func (o *Object) Init(fini func()) {
	o.refcnt = 1
	o.fini = fini
	o.reviewNext = nil
}

// ForceFini unconditionally invokes the object's finalizer, bypassing the
// reference count. It is a blunt "destroy this now" escape hatch, not a
// safe release.
func (o *Object) ForceFini() {
	o.fini()
}
