// Package libsref provides scalable, thread-safe reference counting for
// shared, mutable pointer slots.
//
// Many goroutines can concurrently dereference pointers to heap objects,
// and writer goroutines can atomically swap those pointers, without readers
// paying a per-access atomic read-modify-write cost on the object's
// reference count. Destruction of an object is deferred until it is
// provably safe: no reader still holds a reference to it.
//
// The design fuses a grace-period/quiescent-state mechanism with per-reader
// batched reference-count deltas. Readers enter and exit short critical
// sections with Enter/Exit. Within a critical section, Acquire/Release only
// touch a reader-local delta table; a later grace period applies all
// accumulated deltas in bulk and runs finalizers for objects whose count
// drops to zero. There is no background goroutine: grace periods run
// synchronously in the caller, from Flush, from Close, from the outermost
// Exit when a flush is pending, and from Acquire/Release once a cache has
// signalled near-full more than once.
//
// You should embed Object as the first field of any type you want managed
// this way:
//
//	type Widget struct {
//		libsref.Object
//		Name string
//	}
//
// Call Init once to give the object its initial reference and finalizer,
// then acquire/release it from inside a reader's critical section:
//
//	w := &Widget{Name: "foo"}
//	w.Init(func() { /* free w */ })
//
//	r := domain.NewReader()
//	r.Enter()
//	w = libsref.Acquire(r, w)
//	libsref.Release(r, w)
//	r.Exit()
//
// This package does not provide atomic pointer-swap primitives; callers
// swap their own slots (e.g. with atomic.Pointer[T]) and release whatever
// was displaced.
package libsref
