// dmaPool tracks DMA channel reservations with a bitmap. DMA channels are a
// shared resource protected by the Xentium engine's lock, so dmaPool itself
// holds no lock of its own; the Engine's mutex guards every call into it.
package xentium

import "github.com/uviespace/flightos-sub001/internal/bitmap"

type dmaPool struct {
	bm *bitmap.Bitmap
}

func newDMAPool(nChannels int) *dmaPool {
	return &dmaPool{bm: bitmap.New(nChannels)}
}

// reserve finds a free channel, marks it used and returns its index, or
// ok=false if every channel is currently reserved.
func (d *dmaPool) reserve() (int, bool) {
	for i := 0; i < d.bm.Len(); i++ {
		if !d.bm.Test(i) {
			d.bm.Set(i)
			return i, true
		}
	}
	return 0, false
}

func (d *dmaPool) release(channel int) {
	d.bm.Clear(channel)
}
