package storage

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestStackArenaGrowsMonotonically(t *testing.T) {
	a := newStackArena()
	off1 := a.claim(8, 8)
	off2 := a.claim(16, 8)
	require.NotEqual(t, off1, off2)
	require.GreaterOrEqual(t, a.size, uint32(24))
}

func TestStackArenaCoalescesAdjacentFreedChunks(t *testing.T) {
	a := newStackArena()
	off1 := a.claim(8, 8)
	off2 := a.claim(8, 8)
	off3 := a.claim(8, 8)

	a.release(off1, 8)
	a.release(off3, 8)
	a.release(off2, 8)

	require.Len(t, a.free, 1, "three adjacent frees should coalesce into a single chunk")
	require.Equal(t, uint32(24), a.free[0].size)
}

func TestStackArenaReusesFreedChunkBeforeGrowing(t *testing.T) {
	a := newStackArena()
	off1 := a.claim(8, 8)
	a.claim(8, 8)
	a.release(off1, 8)

	sizeBefore := a.size
	reused := a.claim(8, 8)
	require.Equal(t, off1, reused)
	require.Equal(t, sizeBefore, a.size, "reusing a free chunk must not grow the arena")
}

func TestStackArenaDoubleFreePanics(t *testing.T) {
	a := newStackArena()
	off := a.claim(8, 8)
	a.release(off, 8)
	require.Panics(t, func() {
		a.release(off, 8)
	})
}
