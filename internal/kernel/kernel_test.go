package kernel

import (
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/uviespace/flightos-sub001/internal/config"
	"github.com/uviespace/flightos-sub001/internal/ktime"
	syscalltable "github.com/uviespace/flightos-sub001/internal/syscall"
	"github.com/uviespace/flightos-sub001/internal/task"
)

// fixedClock is a ktime.Source that never advances, so EDF re-arm tests can
// assert on exact Wakeup/Deadline arithmetic without racing real time.
type fixedClock struct{ now ktime.Time }

func (c *fixedClock) Now() ktime.Time { return c.now }

func TestRunCPUExecutesAdmittedTask(t *testing.T) {
	k := New(config.Default())

	ran := false
	tsk, err := k.Tasks.Create("worker", func(any) error {
		ran = true
		return nil
	}, nil, 0, 4096, k.Clock.Now())
	require.NoError(t, err)
	require.NoError(t, k.Tasks.SetAttr(tsk.ID, task.Attr{Policy: task.RR, Priority: 1}))
	require.NoError(t, k.Sched.Admit(0, tsk.ID))

	require.NoError(t, k.RunCPU(0))
	require.True(t, ran)
}

func TestRunCPURearmsEDFTaskInsteadOfKilling(t *testing.T) {
	k := New(config.Default())
	clock := &fixedClock{now: 0}
	k.Clock = clock

	runs := 0
	tsk, err := k.Tasks.Create("periodic", func(any) error {
		runs++
		return nil
	}, nil, 0, 4096, clock.Now())
	require.NoError(t, err)
	require.NoError(t, k.Tasks.SetAttr(tsk.ID, task.Attr{
		Policy: task.EDF, Period: 100, DeadlineRel: 100, WCET: 10,
	}))
	require.NoError(t, k.Sched.Admit(0, tsk.ID))

	require.NoError(t, k.RunCPU(0))
	require.Equal(t, 1, runs)

	got, ok := k.Tasks.Get(tsk.ID)
	require.True(t, ok)
	require.Equal(t, task.Idle, got.State, "re-armed task stays alive, not DEAD")
	require.Equal(t, ktime.Time(100), got.Wakeup)
	require.Equal(t, ktime.Time(200), got.Deadline)
	require.Equal(t, ktime.Time(10), got.Runtime)
}

func TestPanicWritesExchangeAreaAndPanics(t *testing.T) {
	k := New(config.Default())

	require.Panics(t, func() {
		k.Panic(0, 7, "test corrupt state")
	})

	area, err := k.Exchange.Read()
	require.NoError(t, err)
	require.Equal(t, uint16(7), area.SWTrapID)
	require.Equal(t, uint8(1), area.ErrCount)
}

func TestHeapArenaIsReservedFromPageMap(t *testing.T) {
	k := New(config.Default())

	require.Equal(t, 1, k.PageMap.NodeCount(), "kernel heap arena bank should be registered")

	handle, err := k.Heap.Alloc(64)
	require.NoError(t, err)
	require.Equal(t, uint64(config.Default().PageOffset), uint64(handle),
		"heap break should be seeded from the page map's reservation, not a synthetic counter")
}

func TestSyscallAllocFreeRoundTrip(t *testing.T) {
	k := New(config.Default())

	handle, err := k.Syscalls.Invoke(int(syscalltable.SlotAlloc), syscalltable.Args{64})
	require.NoError(t, err)
	require.NotZero(t, handle)

	_, err = k.Syscalls.Invoke(int(syscalltable.SlotFree), syscalltable.Args{handle})
	require.NoError(t, err)
}

func TestSyscallGetTimeAdvancesMonotonically(t *testing.T) {
	k := New(config.Default())

	first, err := k.Syscalls.Invoke(int(syscalltable.SlotGetTime), syscalltable.Args{})
	require.NoError(t, err)

	second, err := k.Syscalls.Invoke(int(syscalltable.SlotGetTime), syscalltable.Args{})
	require.NoError(t, err)

	require.GreaterOrEqual(t, second, first)
}

func TestSyscallWatchdogFeedArmsDevice(t *testing.T) {
	k := New(config.Default())

	_, err := k.Syscalls.Invoke(int(syscalltable.SlotWatchdog), syscalltable.Args{0, 1_000_000})
	require.NoError(t, err)
	require.True(t, k.Watchdogs[0].Fed())
}
