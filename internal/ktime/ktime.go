// Package ktime provides the 64-bit nanosecond timebase used throughout the
// kernel core, plus the CUC (coarse/fine) wire format used by the post-mortem
// exchange area, grounded on arch/sparc/include/asm/time.h.
package ktime

import "time"

// Time is a 64-bit nanosecond count since boot.
type Time int64

// Source supplies monotonic ktime readings; production code uses the
// SystemClock below, tests substitute a fake so scheduling decisions stay
// deterministic.
type Source interface {
	Now() Time
}

// SystemClock is the production Source, backed by time.Now()'s monotonic
// reading anchored at process start.
type SystemClock struct {
	start time.Time
}

// NewSystemClock returns a Source anchored at the current instant, i.e. Now()
// returns 0 immediately after construction.
func NewSystemClock() *SystemClock {
	return &SystemClock{start: time.Now()}
}

func (s *SystemClock) Now() Time {
	return Time(time.Since(s.start).Nanoseconds())
}

// FromDuration converts a time.Duration to a Time delta.
func FromDuration(d time.Duration) Time { return Time(d.Nanoseconds()) }

// Duration converts a Time delta back to a time.Duration.
func (t Time) Duration() time.Duration { return time.Duration(t) }

// Add is wakeup/deadline arithmetic sugar: t + delta.
func (t Time) Add(delta Time) Time { return t + delta }

// Sub returns t - u.
func (t Time) Sub(u Time) Time { return t - u }

// CUC is the custom Coarse/Fine Under Clock time format used by the
// post-mortem exchange area: 4 bytes coarse seconds (big-endian) + 3 bytes
// fractional microseconds + 1 reserved byte, 8 bytes total.
type CUC struct {
	CoarseSeconds uint32
	FractionUs    uint32 // only the low 24 bits are meaningful (0..999999)
}

// FromTime converts a Time (nanoseconds since boot) combined with a boot
// wall-clock offset into a CUC value.
func FromTime(boot time.Time, t Time) CUC {
	wall := boot.Add(t.Duration())
	sec := uint32(wall.Unix())
	us := uint32(wall.Nanosecond() / 1000)
	return CUC{CoarseSeconds: sec, FractionUs: us}
}

// MarshalBinary encodes the CUC into the 8-byte wire format: 4B coarse
// seconds big-endian, 3B fractional microseconds big-endian, 1B reserved.
func (c CUC) MarshalBinary() [8]byte {
	var b [8]byte
	b[0] = byte(c.CoarseSeconds >> 24)
	b[1] = byte(c.CoarseSeconds >> 16)
	b[2] = byte(c.CoarseSeconds >> 8)
	b[3] = byte(c.CoarseSeconds)
	frac := c.FractionUs & 0xFFFFFF
	b[4] = byte(frac >> 16)
	b[5] = byte(frac >> 8)
	b[6] = byte(frac)
	b[7] = 0
	return b
}

// UnmarshalCUC decodes the 8-byte wire format produced by MarshalBinary.
func UnmarshalCUC(b [8]byte) CUC {
	sec := uint32(b[0])<<24 | uint32(b[1])<<16 | uint32(b[2])<<8 | uint32(b[3])
	frac := uint32(b[4])<<16 | uint32(b[5])<<8 | uint32(b[6])
	return CUC{CoarseSeconds: sec, FractionUs: frac}
}
