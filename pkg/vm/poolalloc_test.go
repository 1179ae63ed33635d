package vm

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type poolItem struct {
	n int
}

func TestPool_AllocNeverHandsOutSameSlotTwice(t *testing.T) {
	p := NewPool[poolItem]()
	seen := map[*poolItem]bool{}
	for i := 0; i < 1000; i++ {
		item := p.Alloc(false)
		require.NotNil(t, item)
		assert.False(t, seen[item], "slot handed out twice without a free")
		seen[item] = true
	}
}

func TestPool_FreeRecyclesSlots(t *testing.T) {
	p := NewPool[poolItem]()
	a := p.Alloc(false)
	require.NotNil(t, a)
	free := p.FreeCount()
	p.Free(a)
	assert.Equal(t, free+1, p.FreeCount())

	// The freed slot is the hinted next allocation:
	b := p.Alloc(false)
	assert.Same(t, a, b)
}

func TestPool_GrowthPreservesOutstandingPointers(t *testing.T) {
	p := NewPool[poolItem]()
	var items []*poolItem
	for i := 0; i < firstPoolSize*4; i++ {
		item := p.Alloc(false)
		require.NotNil(t, item)
		item.n = i
		items = append(items, item)
	}
	for i, item := range items {
		assert.Equal(t, i, item.n, "growth moved an outstanding slot")
	}
	assert.Greater(t, p.TotalCount(), firstPoolSize)
}

func TestPool_EmergencyMarginDoesNotGrow(t *testing.T) {
	p := NewPool[poolItem]()
	total := p.TotalCount()
	// Drain the pool down to nothing using the emergency flag, which
	// must never add areas:
	for i := 0; i < total; i++ {
		require.NotNil(t, p.Alloc(true))
	}
	assert.Equal(t, total, p.TotalCount())
	assert.Nil(t, p.Alloc(true))
}

func TestPool_HintStaysInSyncAcrossAreas(t *testing.T) {
	p := NewPool[poolItem]()
	var items []*poolItem
	for i := 0; i < firstPoolSize*3; i++ {
		items = append(items, p.Alloc(false))
	}
	// Free a scattered pattern across the areas; reallocations must
	// never alias a slot that is still live:
	live := map[*poolItem]bool{}
	for _, item := range items {
		live[item] = true
	}
	for i := 0; i < len(items); i += 7 {
		p.Free(items[i])
		delete(live, items[i])
	}
	for i := 0; i < len(items)/7; i++ {
		got := p.Alloc(true)
		require.NotNil(t, got)
		assert.False(t, live[got], "allocator returned a live slot")
		live[got] = true
	}
}

func TestPool_DoubleFreePanics(t *testing.T) {
	p := NewPool[poolItem]()
	a := p.Alloc(false)
	p.Free(a)
	assert.Panics(t, func() { p.Free(a) })
}

func TestStack_FloorRelativeAddressing(t *testing.T) {
	st := NewStack()
	require.True(t, st.ToSize(4, false))
	*st.EntryAbs(0) = Int64(10)
	*st.EntryAbs(3) = Int64(40)

	st.CurrentFuncFloor = 2
	assert.Equal(t, int64(2), st.Top())
	assert.Equal(t, int64(40), st.Entry(1).Int)
	// Negative indices wrap from the absolute top:
	assert.Equal(t, int64(40), st.Entry(-1).Int)
	assert.Equal(t, int64(10), st.Entry(-4).Int)
}

func TestStack_GrowthKeepsValues(t *testing.T) {
	st := NewStack()
	require.True(t, st.ToSize(2, false))
	*st.EntryAbs(0) = Int64(1)
	*st.EntryAbs(1) = Int64(2)
	require.True(t, st.ToSize(5000, false))
	assert.Equal(t, int64(1), st.EntryAbs(0).Int)
	assert.Equal(t, int64(2), st.EntryAbs(1).Int)
	// Newly exposed slots are zeroed:
	assert.Equal(t, ValNone, st.EntryAbs(4000).Kind)
}

func TestStack_ShrinkClearsSlots(t *testing.T) {
	st := NewStack()
	require.True(t, st.ToSize(4, false))
	*st.EntryAbs(3) = Int64(99)
	require.True(t, st.ToSize(2, false))
	require.True(t, st.ToSize(4, false))
	assert.Equal(t, ValNone, st.EntryAbs(3).Kind)
}

func TestStack_OvershootBounds(t *testing.T) {
	st := NewStack()
	require.True(t, st.ToSize(1, false))
	over := st.AllocSize() - st.TotalSize()
	assert.GreaterOrEqual(t, over, int64(allocOvershoot))
	assert.LessOrEqual(t, over,
		int64(allocMaxOvershoot+allocEmergencyMargin))
}
