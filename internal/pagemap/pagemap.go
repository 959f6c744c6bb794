// Package pagemap implements the page map: an ordered list of buddy-backed
// nodes, one per physical memory bank, with linear lookup and small
// LRU-style rotation when a node's free count drops below a configured
// threshold.
package pagemap

import (
	"sync"

	"github.com/uviespace/flightos-sub001/internal/buddy"
	"github.com/uviespace/flightos-sub001/internal/kerr"
)

// PageSize is the minimum allocation granularity of every buddy pool a
// PageMap manages — the "page" in page_alloc()/page_free().
const PageSize = 1 << 12 // 4KiB, matching CONFIG_PAGE typical values

// Node owns one buddy pool over one contiguous bank [StartPFN, EndPFN).
type Node struct {
	StartPFN uint64
	EndPFN   uint64

	pool *buddy.Pool
}

func (n *Node) contains(addr uintptr) bool {
	start := uintptr(n.StartPFN) * PageSize
	end := uintptr(n.EndPFN) * PageSize
	return addr >= start && addr < end
}

func (n *Node) freePages() int {
	return n.pool.FreeBlockCount()
}

// PageMap holds the vector of buddy-backed nodes and serializes access with
// a single, short-held spinlock.
type PageMap struct {
	mu         sync.Mutex
	nodes      []*Node
	moveThresh int
}

// New creates an empty PageMap. moveThresh is the free-page count below
// which a node is rotated to the back of the lookup order
// (CONFIG_PAGE_MAP_MOVE_NODE_AVAIL_THRESH).
func New(moveThresh int) *PageMap {
	return &PageMap{moveThresh: moveThresh}
}

// AddBank registers a new bank [startPFN, endPFN) as a buddy pool with the
// given order bounds.
func (pm *PageMap) AddBank(startPFN, endPFN uint64, maxOrder, minOrder uint) error {
	pm.mu.Lock()
	defer pm.mu.Unlock()

	base := uintptr(startPFN) * PageSize
	pool, err := buddy.New(base, maxOrder, minOrder)
	if err != nil {
		return err
	}

	pm.nodes = append(pm.nodes, &Node{StartPFN: startPFN, EndPFN: endPFN, pool: pool})
	return nil
}

// rotateIfLow moves the node at index i to the back of pm.nodes if its free
// count has dropped below the configured threshold, so the next lookup
// tries other nodes first.
func (pm *PageMap) rotateIfLow(i int) {
	if pm.nodes[i].freePages() >= pm.moveThresh {
		return
	}
	n := pm.nodes[i]
	pm.nodes = append(pm.nodes[:i], pm.nodes[i+1:]...)
	pm.nodes = append(pm.nodes, n)
}

// PageAlloc returns exactly one page (a min-order block) from the first
// node that has one.
func (pm *PageMap) PageAlloc() (uintptr, error) {
	pm.mu.Lock()
	defer pm.mu.Unlock()

	for i, n := range pm.nodes {
		addr, err := n.pool.Alloc(PageSize)
		if err != nil {
			continue
		}
		pm.rotateIfLow(i)
		return addr, nil
	}

	return 0, kerr.New(kerr.OutOfMemory, "no page map node has a free page")
}

// PageFree locates the owning node by address range and returns the page.
func (pm *PageMap) PageFree(addr uintptr) error {
	pm.mu.Lock()
	defer pm.mu.Unlock()

	for _, n := range pm.nodes {
		if n.contains(addr) {
			return n.pool.Free(addr)
		}
	}

	return kerr.New(kerr.InvalidArgument, "address %#x is not owned by any page map node", addr)
}

// ReserveChunk performs one multi-order allocation of size bytes from the
// first node that can satisfy it, per page_map_reserve_chunk() in the
// original.
func (pm *PageMap) ReserveChunk(size uintptr) (uintptr, error) {
	pm.mu.Lock()
	defer pm.mu.Unlock()

	for i, n := range pm.nodes {
		addr, err := n.pool.Alloc(size)
		if err != nil {
			continue
		}
		pm.rotateIfLow(i)
		return addr, nil
	}

	return 0, kerr.New(kerr.OutOfMemory, "no page map node can satisfy a %d byte reservation", size)
}

// NodeCount returns the number of registered banks, for diagnostics/tests.
func (pm *PageMap) NodeCount() int {
	pm.mu.Lock()
	defer pm.mu.Unlock()
	return len(pm.nodes)
}
