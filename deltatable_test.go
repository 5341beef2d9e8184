package libsref

import (
	"testing"
	"unsafe"

	"github.com/stretchr/testify/require"
)

func objAddr(o *Object) uintptr { return uintptr(unsafe.Pointer(o)) }

func TestDeltaTableAddAccumulatesOnMatch(t *testing.T) {
	table := newDeltaTable(8)
	var idx int

	near := table.add(0x1000, 1, &idx)
	require.False(t, near)
	require.Equal(t, 1, table.nUsed)

	near = table.add(0x1000, 2, &idx)
	require.False(t, near, "matching an existing key must never report near-full")
	require.Equal(t, 1, table.nUsed)
	require.Equal(t, int64(3), table.slots[idx].val)
}

func TestDeltaTableAddSignalsNearFullAtLoadFactor(t *testing.T) {
	table := newDeltaTable(8)
	var idx int
	var lastNear bool

	for i := 0; i < 6; i++ {
		lastNear = table.add(uintptr((i+1)*8), 1, &idx)
	}

	// 6/8 = 75%, crossing the >= 75% threshold.
	require.True(t, lastNear)
}

func TestDeltaTableDrainAppliesDeltasAndClearsSlots(t *testing.T) {
	table := newDeltaTable(8)
	obj := &Object{refcnt: 1}
	ptr := objAddr(obj)

	var idx int
	table.add(ptr, -1, &idx)

	finalized := false
	obj.fini = func() { finalized = true }

	table.drain(true)

	require.Equal(t, int64(0), obj.refcnt)
	require.True(t, finalized)
	require.Equal(t, 0, table.nUsed)
	require.Equal(t, uintptr(0), table.slots[idx].ptr)
}

func TestDeltaTableDrainIncrementDoesNotFinalize(t *testing.T) {
	table := newDeltaTable(8)
	obj := &Object{refcnt: 1}
	ptr := objAddr(obj)

	var idx int
	table.add(ptr, 1, &idx)

	finalized := false
	obj.fini = func() { finalized = true }

	table.drain(false)

	require.Equal(t, int64(2), obj.refcnt)
	require.False(t, finalized)
}

func TestDeltaTableMergeStopsEarlyOnNearFull(t *testing.T) {
	dst := newDeltaTable(8)
	src := newDeltaTable(8)

	var idx int
	// Fill dst to just below the near-full threshold (75% of 8 = 6).
	for i := 0; i < 5; i++ {
		dst.add(uintptr((i+1)*8), 1, &idx)
	}

	for i := 0; i < 3; i++ {
		src.add(uintptr((i+100)*8), 1, &idx)
	}
	srcUsedBefore := src.nUsed

	dst.merge(&src)

	require.Less(t, src.nUsed, srcUsedBefore, "merge must consume at least one src slot")
	require.Greater(t, src.nUsed, 0, "merge must stop before fully draining src once dst goes near-full")
}

func TestDeltaTableRemoveProbedClearsSlot(t *testing.T) {
	table := newDeltaTable(8)
	var idx int
	table.add(0x40, 5, &idx)
	require.Equal(t, 1, table.nUsed)

	table.removeProbed(idx)
	require.Equal(t, 0, table.nUsed)
	require.Equal(t, uintptr(0), table.slots[idx].ptr)
}

func TestDeltaTableAddPanicsWhenFull(t *testing.T) {
	table := newDeltaTable(2)
	var idx int
	table.add(0x8, 1, &idx)
	table.add(0x10, 1, &idx)

	require.Panics(t, func() {
		table.add(0x18, 1, &idx)
	})
}
