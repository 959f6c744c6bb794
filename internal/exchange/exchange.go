// Package exchange implements the fixed-layout post-mortem exchange area: a
// 72-byte little-endian record written at a configured physical address
// just before the kernel's CORRUPT_STATE panic/die path halts the CPU, so
// external tooling can recover the last-known state across a reset.
package exchange

import (
	"encoding/binary"

	"github.com/uviespace/flightos-sub001/internal/kerr"
	"github.com/uviespace/flightos-sub001/internal/ktime"
)

// Size is the fixed wire size of the exchange area.
const Size = 72

const nCPU = 2

// RegSnapshot holds the 5 32-bit registers captured per CPU at panic time.
type RegSnapshot [5]uint32

// Area is the in-memory representation of the exchange area.
type Area struct {
	ResetType uint16
	ErrCount  uint8
	ResetCnt  uint8
	ResetTime ktime.CUC

	TrapNumber [nCPU]uint8
	SWTrapID   uint16

	Regs [nCPU]RegSnapshot

	AHBStatus uint32
	AHBFailAddr uint32

	// Stacktrace holds one abbreviated backtrace pointer per CPU — the
	// fixed 72-byte total leaves no room for a full multi-word-per-CPU
	// trace, so only the innermost frame address survives here.
	Stacktrace [nCPU]uint32
}

// MarshalBinary encodes the area into its fixed 72-byte little-endian wire
// form, with ResetTime encoded in its own big-endian CUC sub-format.
func (a Area) MarshalBinary() ([]byte, error) {
	buf := make([]byte, Size)
	off := 0

	binary.LittleEndian.PutUint16(buf[off:], a.ResetType)
	off += 2
	buf[off] = a.ErrCount
	off++
	buf[off] = a.ResetCnt
	off++

	cuc := a.ResetTime.MarshalBinary()
	copy(buf[off:], cuc[:])
	off += 8

	for c := 0; c < nCPU; c++ {
		buf[off] = a.TrapNumber[c]
		off++
	}

	binary.LittleEndian.PutUint16(buf[off:], a.SWTrapID)
	off += 2

	for c := 0; c < nCPU; c++ {
		for _, r := range a.Regs[c] {
			binary.LittleEndian.PutUint32(buf[off:], r)
			off += 4
		}
	}

	binary.LittleEndian.PutUint32(buf[off:], a.AHBStatus)
	off += 4
	binary.LittleEndian.PutUint32(buf[off:], a.AHBFailAddr)
	off += 4

	for c := 0; c < nCPU; c++ {
		binary.LittleEndian.PutUint32(buf[off:], a.Stacktrace[c])
		off += 4
	}

	if off != Size {
		return nil, kerr.New(kerr.CorruptState, "exchange area encoder wrote %d bytes, want %d", off, Size)
	}

	return buf, nil
}

// UnmarshalArea decodes a 72-byte exchange area.
func UnmarshalArea(buf []byte) (Area, error) {
	var a Area
	if len(buf) != Size {
		return a, kerr.New(kerr.InvalidArgument, "exchange area must be exactly %d bytes, got %d", Size, len(buf))
	}

	off := 0
	a.ResetType = binary.LittleEndian.Uint16(buf[off:])
	off += 2
	a.ErrCount = buf[off]
	off++
	a.ResetCnt = buf[off]
	off++

	var cuc [8]byte
	copy(cuc[:], buf[off:off+8])
	a.ResetTime = ktime.UnmarshalCUC(cuc)
	off += 8

	for c := 0; c < nCPU; c++ {
		a.TrapNumber[c] = buf[off]
		off++
	}

	a.SWTrapID = binary.LittleEndian.Uint16(buf[off:])
	off += 2

	for c := 0; c < nCPU; c++ {
		for i := range a.Regs[c] {
			a.Regs[c][i] = binary.LittleEndian.Uint32(buf[off:])
			off += 4
		}
	}

	a.AHBStatus = binary.LittleEndian.Uint32(buf[off:])
	off += 4
	a.AHBFailAddr = binary.LittleEndian.Uint32(buf[off:])
	off += 4

	for c := 0; c < nCPU; c++ {
		a.Stacktrace[c] = binary.LittleEndian.Uint32(buf[off:])
		off += 4
	}

	return a, nil
}

// Sink is where a written Area ends up — a configured physical address in
// the real kernel, a plain byte slice in this simulation.
type Sink struct {
	buf []byte
}

// NewSink creates a Sink backed by a zeroed Size-byte buffer.
func NewSink() *Sink {
	return &Sink{buf: make([]byte, Size)}
}

// Write encodes and stores area, the panic/die path's final step before
// halting the CPU.
func (s *Sink) Write(area Area) error {
	buf, err := area.MarshalBinary()
	if err != nil {
		return err
	}
	copy(s.buf, buf)
	return nil
}

// Read decodes whatever area is currently stored in the sink.
func (s *Sink) Read() (Area, error) {
	return UnmarshalArea(s.buf)
}
