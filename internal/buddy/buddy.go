// Package buddy implements a power-of-two block allocator with split/merge
// (no buddy.c survived into the retrieval pack's original_source/, so the
// algorithm is built directly from the original flightos mm/ design's
// walk/split/merge description), following the convention of an external
// caller-supplied lock rather than an internal one.
package buddy

import (
	"math/bits"

	"github.com/uviespace/flightos-sub001/internal/bitmap"
	"github.com/uviespace/flightos-sub001/internal/kerr"
)

// node is one entry of an order's free list, intrusive via index bookkeeping
// is avoided in favor of a plain slice-backed stack per order — the original
// kernel's list_head is replaced by normal Go slices, since there is no
// requirement to avoid allocation inside the allocator itself (unlike the
// kernel heap, which must run before any allocator exists).
type node struct {
	addr uintptr
}

// Pool represents one contiguous physical memory bank managed as a buddy
// system.
//
// Pool is NOT internally synchronized — "(iii) Concurrent
// access is serialized by an external lock supplied by the caller." Callers
// (page map, page-backed heap) hold their own spinlock around every method
// call.
type Pool struct {
	base     uintptr
	maxOrder uint
	minOrder uint

	freeLists []([]node) // index by order
	allocated []int8     // indexed by (addr-base)>>minOrder; -1 == free

	free bitmap.Bitmap // fast-skip accelerator, one bit per min-order block
}

// granularity is 2^minOrder, the smallest allocatable block size.
func (p *Pool) granularity() uintptr { return 1 << p.minOrder }

// Size returns the total pool size, 2^maxOrder bytes.
func (p *Pool) Size() uintptr { return 1 << p.maxOrder }

// New creates a Pool spanning [base, base+2^maxOrder) with a minimum
// allocatable block of 2^minOrder bytes. The entire pool starts as a single
// free block at maxOrder, matching the "returns to all-free" invariant.
func New(base uintptr, maxOrder, minOrder uint) (*Pool, error) {
	if maxOrder < minOrder {
		return nil, kerr.New(kerr.InvalidArgument, "max_order %d < min_order %d", maxOrder, minOrder)
	}

	nblocks := int(uintptr(1) << (maxOrder - minOrder))

	p := &Pool{
		base:      base,
		maxOrder:  maxOrder,
		minOrder:  minOrder,
		freeLists: make([][]node, maxOrder+1),
		allocated: make([]int8, nblocks),
	}
	bm := bitmap.New(nblocks)
	p.free = *bm

	for i := range p.allocated {
		p.allocated[i] = -1
	}

	p.freeLists[maxOrder] = []node{{addr: base}}
	p.markFree(base, maxOrder)

	return p, nil
}

func (p *Pool) blockIndex(addr uintptr) int {
	return int((addr - p.base) >> p.minOrder)
}

// markFree sets every min-order bit covered by a block of the given order
// as free in the accelerator bitmap.
func (p *Pool) markFree(addr uintptr, order uint) {
	start := p.blockIndex(addr)
	n := int(uintptr(1) << (order - p.minOrder))
	for i := start; i < start+n; i++ {
		p.free.Set(i)
	}
}

func (p *Pool) markAllocated(addr uintptr, order uint) {
	start := p.blockIndex(addr)
	n := int(uintptr(1) << (order - p.minOrder))
	for i := start; i < start+n; i++ {
		p.free.Clear(i)
	}
}

// orderFor returns ceil(log2(max(size, granularity))), clamped to at least
// minOrder, as required by algorithm description.
func (p *Pool) orderFor(size uintptr) uint {
	if size <= p.granularity() {
		return p.minOrder
	}
	order := uint(bits.Len(uint(size - 1)))
	if order < p.minOrder {
		order = p.minOrder
	}
	return order
}

// popFreeList removes and returns the last entry of the free list for the
// given order, or ok=false if empty.
func (p *Pool) popFreeList(order uint) (node, bool) {
	l := p.freeLists[order]
	if len(l) == 0 {
		return node{}, false
	}
	n := l[len(l)-1]
	p.freeLists[order] = l[:len(l)-1]
	return n, true
}

func (p *Pool) pushFreeList(order uint, n node) {
	p.freeLists[order] = append(p.freeLists[order], n)
}

// removeFromFreeList deletes a specific address from an order's free list;
// used when merging with a buddy discovered to be free. Returns false if not
// present (should not happen if bookkeeping is consistent).
func (p *Pool) removeFromFreeList(order uint, addr uintptr) bool {
	l := p.freeLists[order]
	for i, n := range l {
		if n.addr == addr {
			l[i] = l[len(l)-1]
			p.freeLists[order] = l[:len(l)-1]
			return true
		}
	}
	return false
}

// Alloc returns an address for a block able to hold size bytes, aligned to
// its allocation order, or an error if the pool cannot satisfy the request.
// Size 0 returns (0, nil) rather than an error. A failed allocation never
// mutates the pool.
func (p *Pool) Alloc(size uintptr) (uintptr, error) {
	if size == 0 {
		return 0, nil
	}
	if size > p.Size() {
		return 0, kerr.New(kerr.OutOfMemory, "request %d exceeds pool size %d", size, p.Size())
	}

	order := p.orderFor(size)

	// find first non-empty free list at order >= requested
	found := order
	for found <= p.maxOrder {
		if len(p.freeLists[found]) > 0 {
			break
		}
		found++
	}
	if found > p.maxOrder {
		return 0, kerr.New(kerr.OutOfMemory, "no free block >= order %d", order)
	}

	n, _ := p.popFreeList(found)
	addr := n.addr

	// split repeatedly down to the requested order, putting the unused
	// buddy halves back on their own order's free list.
	for o := found; o > order; o-- {
		buddyAddr := addr ^ (uintptr(1) << (o - 1))
		p.pushFreeList(o-1, node{addr: buddyAddr})
		p.markFree(buddyAddr, o-1)
	}

	p.allocated[p.blockIndex(addr)] = int8(order)
	p.markAllocated(addr, order)

	return addr, nil
}

// Free releases a block previously returned by Alloc. The allocated-order
// table is consulted so Free needs only the address. Freeing a null address
// (0 when base != 0) is ignored; freeing a foreign address or a double free
// is detected and reported without corrupting pool state.
func (p *Pool) Free(addr uintptr) error {
	if addr == 0 && p.base != 0 {
		return nil
	}
	if addr < p.base || addr >= p.base+p.Size() {
		return kerr.New(kerr.InvalidArgument, "address %#x outside pool [%#x, %#x)", addr, p.base, p.base+p.Size())
	}
	if (addr-p.base)&(p.granularity()-1) != 0 {
		return kerr.New(kerr.InvalidArgument, "address %#x not aligned to granularity", addr)
	}

	idx := p.blockIndex(addr)
	o := p.allocated[idx]
	if o < 0 {
		return kerr.New(kerr.InvalidArgument, "double free or free of non-allocated address %#x", addr)
	}
	order := uint(o)

	p.allocated[idx] = -1
	p.markFree(addr, order)

	// merge eagerly with a free buddy of the same order, repeating up to
	// maxOrder.
	for order < p.maxOrder {
		buddyAddr := addr ^ (uintptr(1) << order)
		if !p.buddyIsFree(buddyAddr, order) {
			break
		}
		p.removeFromFreeList(order, buddyAddr)
		if buddyAddr < addr {
			addr = buddyAddr
		}
		order++
	}

	p.pushFreeList(order, node{addr: addr})

	return nil
}

// buddyIsFree reports whether the buddy block at buddyAddr/order is
// currently present on its order's free list (i.e. not allocated and not
// itself already merged away).
func (p *Pool) buddyIsFree(buddyAddr uintptr, order uint) bool {
	if buddyAddr < p.base || buddyAddr >= p.base+p.Size() {
		return false
	}
	idx := p.blockIndex(buddyAddr)
	if p.allocated[idx] >= 0 {
		return false
	}
	for _, n := range p.freeLists[order] {
		if n.addr == buddyAddr {
			return true
		}
	}
	return false
}

// FreeBlockCount returns the number of min-order blocks currently marked
// free in the accelerator bitmap — for display/scrub tooling only.
func (p *Pool) FreeBlockCount() int {
	return p.free.Popcount()
}

// MaxOrder and MinOrder expose the pool's configured order bounds.
func (p *Pool) MaxOrder() uint { return p.maxOrder }
func (p *Pool) MinOrder() uint { return p.minOrder }
func (p *Pool) Base() uintptr  { return p.base }

// AllocatedOrder returns the allocation order recorded for addr, and whether
// addr is currently allocated at all. Exposed for the page map and for test
// scenarios asserting specific allocated-order sequences.
func (p *Pool) AllocatedOrder(addr uintptr) (uint, bool) {
	if addr < p.base || addr >= p.base+p.Size() {
		return 0, false
	}
	o := p.allocated[p.blockIndex(addr)]
	if o < 0 {
		return 0, false
	}
	return uint(o), true
}
