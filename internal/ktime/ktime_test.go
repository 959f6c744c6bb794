package ktime

import (
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func TestSystemClockStartsNearZero(t *testing.T) {
	c := NewSystemClock()
	require.InDelta(t, int64(0), int64(c.Now()), float64(5*time.Millisecond))
}

func TestAddAndSub(t *testing.T) {
	a := Time(100)
	b := a.Add(50)
	require.Equal(t, Time(150), b)
	require.Equal(t, Time(50), b.Sub(a))
}

func TestFromDurationRoundTrip(t *testing.T) {
	d := 3 * time.Second
	require.Equal(t, d, FromDuration(d).Duration())
}

func TestCUCMarshalUnmarshalRoundTrip(t *testing.T) {
	c := CUC{CoarseSeconds: 0x01020304, FractionUs: 0x00ABCDEF & 0xFFFFFF}
	b := c.MarshalBinary()
	require.Len(t, b, 8)

	got := UnmarshalCUC(b)
	require.Equal(t, c.CoarseSeconds, got.CoarseSeconds)
	require.Equal(t, c.FractionUs&0xFFFFFF, got.FractionUs)
}

func TestFromTimeUsesBootOffset(t *testing.T) {
	boot := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	c := FromTime(boot, Time(2*time.Second))
	require.Equal(t, uint32(boot.Add(2*time.Second).Unix()), c.CoarseSeconds)
}
