// Package kheap implements the sequential-fit kernel heap layered on a
// moving program break. It is a direct generalization of
// original_source/kernel/kmem.c's kmalloc/kcalloc/krealloc/kfree, replacing
// the C header-before-payload trick with an explicit Go map from data
// pointer (simulated as an opaque handle) to header, since Go gives no
// portable way to do pointer arithmetic on a []byte-backed break.
package kheap

import (
	"sync"

	"github.com/uviespace/flightos-sub001/internal/kerr"
)

const wordSize = 8

func wordAlign(x int) int {
	return (x + wordSize - 1) &^ (wordSize - 1)
}

// Handle is the opaque "pointer" returned by Alloc — analogous to the
// kmem.data field in the original, i.e. the address immediately after the
// header.
type Handle uint64

// record is the kernel heap record: {free, prev, next, size,
// data_ptr, node}. prev/next form the doubly-linked address-order chain;
// handle is the data_ptr.
type record struct {
	free bool
	prev *record
	next *record
	size int
	h    Handle
}

// Break is the moving program break a Heap is layered on — the sbrk(2)
// analogue. It hands out handles at the current break position and tracks
// that position as it moves up or down, letting the heap grow/shrink the
// granted address range exactly like kernel_sbrk() in the original.
type Break struct {
	cur  Handle
	next Handle
}

// NewBreak creates a Break starting at the given base handle value.
func NewBreak(base Handle) *Break {
	return &Break{cur: base, next: base}
}

// Sbrk grows (n > 0) or shrinks (n < 0) the break by n bytes and returns the
// previous break position, matching the kernel_sbrk(n) convention used by
// kmem_init()/kfree() in the original.
func (b *Break) Sbrk(n int) Handle {
	prev := b.next
	b.next = Handle(int64(b.next) + int64(n))
	return prev
}

// Current returns the current break position (kernel_sbrk(0) equivalent).
func (b *Break) Current() Handle { return b.next }

// Heap is the sequential-fit allocator.
type Heap struct {
	mu sync.Mutex

	brk *Break

	initial *record          // first chunk ever carved, chain head
	last    *record          // most recently appended chunk, chain tail
	byHnd   map[Handle]*record
	freeLst []*record // free chunks, first-fit scanned in order
}

// New creates a Heap backed by the given Break.
func New(brk *Break) *Heap {
	return &Heap{
		brk:   brk,
		byHnd: make(map[Handle]*record),
	}
}

// findFreeChunk returns the first free chunk with size >= request, scanning
// the free list in first-fit order.
func (h *Heap) findFreeChunk(size int) *record {
	for i, r := range h.freeLst {
		if r.size >= size {
			h.freeLst = append(h.freeLst[:i], h.freeLst[i+1:]...)
			return r
		}
	}
	return nil
}

func (h *Heap) removeFromFreeList(r *record) {
	for i, x := range h.freeLst {
		if x == r {
			h.freeLst = append(h.freeLst[:i], h.freeLst[i+1:]...)
			return
		}
	}
}

// headerOverhead is the constant per-allocation bookkeeping cost accounted
// for in the liveness invariant: sum of live allocation sizes plus a
// per-allocation constant overhead.
const headerOverhead = 48

// split breaks r into a chunk of exactly `size` bytes and a remainder chunk,
// only when the remainder exceeds one header plus one word. Returns the
// (possibly unchanged) allocated chunk.
func (h *Heap) split(r *record, size int) *record {
	remainder := r.size - size
	if remainder <= headerOverhead+wordSize {
		return r
	}

	tail := &record{
		free: true,
		size: remainder - headerOverhead,
		h:    Handle(uint64(r.h) + uint64(size) + headerOverhead),
	}
	tail.prev = r
	tail.next = r.next
	if r.next != nil {
		r.next.prev = tail
	}
	r.next = tail
	r.size = size

	h.byHnd[tail.h] = tail
	h.freeLst = append(h.freeLst, tail)
	if h.last == r {
		h.last = tail
	}

	return r
}

// Alloc allocates size bytes, word-aligned.
func (h *Heap) Alloc(size int) (Handle, error) {
	if size <= 0 {
		return 0, kerr.New(kerr.InvalidArgument, "alloc size must be > 0, got %d", size)
	}

	h.mu.Lock()
	defer h.mu.Unlock()

	len_ := wordAlign(size)

	if r := h.findFreeChunk(len_); r != nil {
		r = h.split(r, len_)
		r.free = false
		return r.h, nil
	}

	// extend the break by request + header.
	handle := h.brk.Sbrk(len_ + headerOverhead)
	r := &record{
		free: false,
		size: len_,
		h:    handle,
	}

	if h.initial == nil {
		h.initial = r
		h.last = r
	} else {
		r.prev = h.last
		h.last.next = r
		h.last = r
	}

	h.byHnd[r.h] = r

	return r.h, nil
}

// Calloc allocates nmemb*size bytes and (logically) zeroes them. Since
// Handles are opaque offsets rather than real memory in this simulation,
// zeroing is a no-op contract fulfilled by the caller's backing storage;
// Calloc exists to preserve the kcalloc() call-shape and argument
// validation from the original.
func (h *Heap) Calloc(nmemb, size int) (Handle, error) {
	if nmemb <= 0 || size <= 0 {
		return 0, kerr.New(kerr.InvalidArgument, "calloc nmemb=%d size=%d must both be > 0", nmemb, size)
	}
	return h.Alloc(nmemb * size)
}

// validate checks that handle lies strictly inside the current heap range
// and that the record's own handle matches.
func (h *Heap) validate(handle Handle) (*record, error) {
	if h.initial == nil || handle < h.initial.h || handle >= h.brk.Current() {
		return nil, kerr.New(kerr.InvalidArgument, "handle %d outside heap range", handle)
	}

	r, ok := h.byHnd[handle]
	if !ok || r.h != handle {
		return nil, kerr.New(kerr.InvalidArgument, "handle %d does not match any allocation header", handle)
	}
	if r.free {
		return nil, kerr.New(kerr.InvalidArgument, "double free of handle %d", handle)
	}

	return r, nil
}

// Free releases handle. Freed neighbours are coalesced; if the freed chunk
// becomes the chain tail, the break is decremented by exactly the chunk's
// total span instead of merely being marked free.
func (h *Heap) Free(handle Handle) error {
	if handle == 0 {
		return nil
	}

	h.mu.Lock()
	defer h.mu.Unlock()

	r, err := h.validate(handle)
	if err != nil {
		return err
	}

	r.free = true

	if r.next != nil && r.next.free {
		h.mergeNext(r)
	}
	if r.prev != nil && r.prev.free {
		r = r.prev
		h.mergeNext(r)
	}
	h.removeFromFreeList(r)

	if r.next == nil {
		if r.prev != nil {
			r.prev.next = nil
		} else {
			h.initial = nil
		}
		h.last = r.prev
		delete(h.byHnd, r.h)

		h.brk.Sbrk(-(r.size + headerOverhead))
	} else {
		h.freeLst = append(h.freeLst, r)
	}

	return nil
}

// mergeNext merges r with r.next, matching kmem_merge() in the original.
func (h *Heap) mergeNext(r *record) {
	next := r.next
	h.removeFromFreeList(next)
	delete(h.byHnd, next.h)

	r.size = r.size + next.size + headerOverhead
	r.next = next.next
	if r.next != nil {
		r.next.prev = r
	}
	if h.last == next {
		h.last = r
	}
}

// Realloc always performs malloc-copy-free and preserves min(old, new)
// bytes worth of accounting. Since this simulation tracks
// sizes rather than byte contents, Realloc returns the new handle and the
// number of bytes the caller should copy forward.
func (h *Heap) Realloc(handle Handle, size int) (newHandle Handle, copyLen int, err error) {
	if handle == 0 {
		nh, err := h.Alloc(size)
		return nh, 0, err
	}
	if size == 0 {
		return 0, 0, h.Free(handle)
	}

	h.mu.Lock()
	r, verr := h.validate(handle)
	oldSize := 0
	if verr == nil {
		oldSize = r.size
	}
	h.mu.Unlock()
	if verr != nil {
		return 0, 0, verr
	}

	nh, err := h.Alloc(size)
	if err != nil {
		return 0, 0, err
	}

	copyLen = oldSize
	if size < copyLen {
		copyLen = size
	}

	if err := h.Free(handle); err != nil {
		return 0, 0, err
	}

	return nh, copyLen, nil
}

// Size returns the current live size of the allocation at handle, or an
// error if handle is invalid. Used by tests exercising the liveness
// invariant.
func (h *Heap) Size(handle Handle) (int, error) {
	h.mu.Lock()
	defer h.mu.Unlock()
	r, err := h.validate(handle)
	if err != nil {
		return 0, err
	}
	return r.size, nil
}

// LiveBytes sums the sizes of every currently-allocated chunk plus the
// constant per-allocation overhead.
func (h *Heap) LiveBytes() int {
	h.mu.Lock()
	defer h.mu.Unlock()

	total := 0
	for r := h.initial; r != nil; r = r.next {
		if !r.free {
			total += r.size + headerOverhead
		}
	}
	return total
}

// BreakSpan returns brk.Current() - initial break, the denominator of the
// invariant.
func (h *Heap) BreakSpan() int {
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.initial == nil {
		return 0
	}
	return int(h.brk.Current() - h.initial.h)
}
