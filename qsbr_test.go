package libsref_test

import (
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/lmlg/libsref"
)

// TestSingleThreadInitReleaseFlush covers the base lifecycle: init, enter,
// release, flush (while still inside the critical section -- finalization
// may be deferred), exit, then the finalizer must have run.
func TestSingleThreadInitReleaseFlush(t *testing.T) {
	d, err := libsref.NewDomain()
	require.NoError(t, err)

	finalized := 0
	w := &widget{}
	w.Init(func() { finalized++ })

	r := d.NewReader()
	defer r.Close()

	r.Enter()
	libsref.Release(r, w)

	_ = r.Flush() // may legitimately fail: we're inside a critical section.
	require.Equal(t, 0, finalized, "fini must not run while the release is still pending")

	r.Exit()
	require.Equal(t, 1, finalized, "Exit must flush a deferred finalize")
}

// TestCacheSaturation fills a cache with exactly capacity
// distinct objects, releasing all of them inside one critical section, and
// re-acquire one before exiting. All but the re-acquired object should be
// finalized once the critical section closes.
func TestCacheSaturation(t *testing.T) {
	const n = 128 // default capacity
	d, err := libsref.NewDomain(libsref.WithCapacity(n))
	require.NoError(t, err)

	objs := make([]*widget, n)
	finalized := make([]bool, n)
	for i := range objs {
		i := i
		objs[i] = &widget{}
		objs[i].Init(func() { finalized[i] = true })
	}

	r := d.NewReader()
	defer r.Close()

	r.Enter()
	for _, o := range objs {
		libsref.Release(r, o)
	}
	libsref.Acquire(r, objs[1])
	r.Exit()

	require.NoError(t, r.Flush())

	for i := range objs {
		if i == 1 {
			require.False(t, finalized[i], "object re-acquired must survive")
			continue
		}
		require.True(t, finalized[i], "object %d should have been finalized", i)
	}
}

// TestSingleObjectHotLoop runs a long acquire/release hot loop on
// one object, one acquire/release pair per critical section, followed by
// one more release to drop it to zero.
func TestSingleObjectHotLoop(t *testing.T) {
	d, err := libsref.NewDomain()
	require.NoError(t, err)

	finalized := 0
	w := &widget{}
	w.Init(func() { finalized++ })

	r := d.NewReader()
	defer r.Close()

	for i := 0; i < 10_000; i++ {
		r.Enter()
		libsref.Acquire(r, w)
		libsref.Release(r, w)
		r.Exit()
	}

	r.Enter()
	libsref.Release(r, w)
	r.Exit()

	require.NoError(t, r.Flush())
	require.Equal(t, 1, finalized)
}

func TestEnterExitNestingTracksDepth(t *testing.T) {
	d, err := libsref.NewDomain()
	require.NoError(t, err)
	r := d.NewReader()
	defer r.Close()

	r.Enter()
	r.Enter()
	r.Exit()
	r.Exit()

	require.Panics(t, func() { r.Exit() }, "exiting past depth zero must panic")
}

func TestAcquireOutsideCriticalSectionWithoutPanicButUnsupported(t *testing.T) {
	// Acquire/Release are documented as requiring an open critical section;
	// the fast path itself does not assert this (it only needs the current
	// phase bit, which is always readable), so this test exists to pin down
	// that calling convention rather than to claim it is safe.
	d, err := libsref.NewDomain()
	require.NoError(t, err)
	r := d.NewReader()
	defer r.Close()

	w := &widget{}
	w.Init(func() {})
	require.NotPanics(t, func() { libsref.Acquire(r, w) })
}

func TestFlushInsideCriticalSectionDefers(t *testing.T) {
	d, err := libsref.NewDomain()
	require.NoError(t, err)
	r := d.NewReader()
	defer r.Close()

	r.Enter()
	err = r.Flush()
	require.ErrorIs(t, err, libsref.ErrFlushInCriticalSection)
	r.Exit()
}

func TestNewDomainRejectsNonPowerOfTwoCapacity(t *testing.T) {
	_, err := libsref.NewDomain(libsref.WithCapacity(100))
	require.ErrorIs(t, err, libsref.ErrInvalidCapacity)
}

func TestVersion(t *testing.T) {
	major, minor := libsref.Version()
	require.Equal(t, libsref.Major, major)
	require.Equal(t, libsref.Minor, minor)
}
