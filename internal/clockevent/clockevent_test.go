package clockevent

import (
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/uviespace/flightos-sub001/internal/ktime"
)

func TestProgramTimeoutClampsToRange(t *testing.T) {
	var programmed ktime.Time
	dev := &Device{
		Name:       "timer0",
		MinDeltaNs: 1000,
		MaxDeltaNs: 100_000,
		SetNextEvent: func(delta ktime.Time) error {
			programmed = delta
			return nil
		},
	}

	clamped, err := dev.ProgramTimeoutNs(10)
	require.NoError(t, err)
	require.True(t, clamped)
	require.Equal(t, ktime.Time(1000), programmed)

	clamped, err = dev.ProgramTimeoutNs(1_000_000)
	require.NoError(t, err)
	require.True(t, clamped)
	require.Equal(t, ktime.Time(100_000), programmed)

	clamped, err = dev.ProgramTimeoutNs(5000)
	require.NoError(t, err)
	require.False(t, clamped)
	require.Equal(t, ktime.Time(5000), programmed)
}

func TestArbiterSelectsBestRatedDeviceForFeature(t *testing.T) {
	arb := NewArbiter(0)

	coarse := &Device{Name: "coarse", Rating: 200, Features: FeaturePeriodic, SetNextEvent: func(ktime.Time) error { return nil }}
	fine := &Device{Name: "fine", Rating: 50, Features: FeaturePeriodic, SetNextEvent: func(ktime.Time) error { return nil }}

	arb.Register(coarse)
	arb.Register(fine)

	dev, err := arb.Offer(FeaturePeriodic)
	require.NoError(t, err)
	require.Equal(t, "fine", dev.Name)
}

func TestArbiterReturnsNoDeviceWhenFeatureUnmatched(t *testing.T) {
	arb := NewArbiter(0)
	arb.Register(&Device{Name: "periodic-only", Features: FeaturePeriodic, SetNextEvent: func(ktime.Time) error { return nil }})

	_, err := arb.Offer(FeatureWatchdog)
	require.Error(t, err)
}

func TestWatchdogDormantUntilFirstFeed(t *testing.T) {
	arb := NewArbiter(0)
	arb.Register(&Device{
		Name: "wd0", Rating: 10,
		Features:   FeatureWatchdog,
		MaxDeltaNs: 1_000_000_000,
		SetNextEvent: func(ktime.Time) error { return nil },
	})

	wd := NewWatchdog(arb)
	require.False(t, wd.Fed())

	var barked bool
	wd.SetHandler(func(data any) { barked = true }, nil)

	_, err := wd.Feed(500_000)
	require.NoError(t, err)
	require.True(t, wd.Fed())
	require.False(t, barked)
}

func TestWatchdogBarksOnFire(t *testing.T) {
	arb := NewArbiter(0)
	dev := &Device{
		Name: "wd0", Rating: 10,
		Features:   FeatureWatchdog,
		MaxDeltaNs: 1_000_000_000,
		SetNextEvent: func(ktime.Time) error { return nil },
	}
	arb.Register(dev)

	wd := NewWatchdog(arb)
	var barked bool
	wd.SetHandler(func(data any) { barked = true }, nil)

	_, err := wd.Feed(500_000)
	require.NoError(t, err)

	dev.Fire()
	require.True(t, barked)
}

func TestTickPeriodicReArmsOnFire(t *testing.T) {
	arb := NewArbiter(0)
	var lastProgrammed ktime.Time
	arb.Register(&Device{
		Name: "tick0", Rating: 5,
		Features:   FeaturePeriodic | FeatureOneshot,
		MaxDeltaNs: 1_000_000_000,
		SetNextEvent: func(d ktime.Time) error {
			lastProgrammed = d
			return nil
		},
	})

	tk := NewTick(arb, 10_000)
	ticks := 0
	tk.SetOnTick(func(now ktime.Time) { ticks++ })

	require.NoError(t, tk.StartPeriodic())
	tk.Fire()
	tk.Fire()

	require.Equal(t, 2, ticks)
	require.Equal(t, ktime.Time(10_000), lastProgrammed)
}
