package vm

import "unsafe"

// Pool is a fixed-size object pool: a list of geometrically growing areas
// (first 256 slots, doubling after that), each with a parallel used
// bitset, plus hints remembering the most recently freed slot. One pool
// instance exists per object size, so the type parameter stands in for
// the C allocator's item size.
//
// Alloc refuses to grow when the emergency flag is set, so the reserved
// free slots stay available for out-of-memory error construction. Growth
// appends areas and never moves existing slots, so outstanding pointers
// survive it.

const (
	firstPoolSize = 256
	// Alloc grows the pool when fewer than this many slots are free,
	// keeping a cushion for emergency allocations.
	poolGrowThreshold = 10
)

type poolArea[T any] struct {
	items             []T
	slotUsed          []bool
	possiblyFreeIndex int
}

// Pool hands out *T slots with Alloc and takes them back with Free.
type Pool[T any] struct {
	areas             []poolArea[T]
	lastUsedAreaIndex int

	totalItems int
	freeItems  int
}

// NewPool returns a pool with its first area allocated.
func NewPool[T any]() *Pool[T] {
	p := &Pool[T]{}
	p.addArea()
	return p
}

func (p *Pool[T]) addArea() bool {
	size := firstPoolSize
	if len(p.areas) > 0 {
		size = len(p.areas[len(p.areas)-1].items) * 2
	}
	p.areas = append(p.areas, poolArea[T]{
		items:    make([]T, size),
		slotUsed: make([]bool, size),
	})
	p.totalItems += size
	p.freeItems += size
	p.lastUsedAreaIndex = len(p.areas) - 1
	return true
}

// Alloc returns a free slot, growing the pool when the free count drops
// below the threshold unless the caller opted into the emergency margin.
// A nil return means the pool is exhausted.
func (p *Pool[T]) Alloc(canUseEmergencyMargin bool) *T {
	if !canUseEmergencyMargin && p.freeItems < poolGrowThreshold {
		if !p.addArea() {
			return nil
		}
	}
	if p.freeItems <= 0 {
		return nil
	}

	if p.lastUsedAreaIndex >= 0 && p.lastUsedAreaIndex < len(p.areas) {
		area := &p.areas[p.lastUsedAreaIndex]
		k := area.possiblyFreeIndex
		if k >= 0 && k < len(area.items) && !area.slotUsed[k] {
			p.freeItems--
			area.slotUsed[k] = true
			area.possiblyFreeIndex = k + 1
			return &area.items[k]
		}
		for k := 0; k < len(area.items); k++ {
			if !area.slotUsed[k] {
				p.freeItems--
				area.slotUsed[k] = true
				area.possiblyFreeIndex = k + 1
				return &area.items[k]
			}
		}
	}
	for j := range p.areas {
		area := &p.areas[j]
		for k := 0; k < len(area.items); k++ {
			if !area.slotUsed[k] {
				p.freeItems--
				p.lastUsedAreaIndex = j
				area.slotUsed[k] = true
				area.possiblyFreeIndex = k + 1
				return &area.items[k]
			}
		}
	}
	return nil
}

// Free returns a slot to its owning area, located by address range, and
// refreshes the free-slot hints. Freeing a pointer the pool does not own
// panics: that is always a caller bug.
func (p *Pool[T]) Free(ptr *T) {
	addr := uintptr(unsafe.Pointer(ptr))
	for j := range p.areas {
		area := &p.areas[j]
		base := uintptr(unsafe.Pointer(&area.items[0]))
		itemSize := unsafe.Sizeof(area.items[0])
		if itemSize == 0 {
			continue
		}
		end := base + itemSize*uintptr(len(area.items))
		if addr < base || addr >= end {
			continue
		}
		k := int((addr - base) / itemSize)
		if !area.slotUsed[k] {
			panic("pool: double free")
		}
		area.slotUsed[k] = false
		area.possiblyFreeIndex = k
		p.lastUsedAreaIndex = j
		p.freeItems++
		return
	}
	panic("pool: freed pointer not owned by this pool")
}

// FreeCount returns how many slots are currently free.
func (p *Pool[T]) FreeCount() int { return p.freeItems }

// TotalCount returns the pool's capacity across all areas.
func (p *Pool[T]) TotalCount() int { return p.totalItems }
