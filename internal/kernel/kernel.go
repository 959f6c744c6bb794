// Package kernel glues every subsystem into one context passed by
// reference, generalizing the common per-CPU current[] global-array
// convention (main.go's current_set/INIT_DONE pattern) into an explicit
// Kernel struct instead of package-level globals, and wiring zerolog for
// structured logging the way the retrieval pack's non-kernel services do.
package kernel

import (
	"fmt"
	"os"
	"time"

	"github.com/rs/zerolog"
	"go.uber.org/atomic"

	"github.com/uviespace/flightos-sub001/internal/clockevent"
	"github.com/uviespace/flightos-sub001/internal/config"
	"github.com/uviespace/flightos-sub001/internal/exchange"
	"github.com/uviespace/flightos-sub001/internal/irq"
	"github.com/uviespace/flightos-sub001/internal/kerr"
	"github.com/uviespace/flightos-sub001/internal/kheap"
	"github.com/uviespace/flightos-sub001/internal/ktime"
	"github.com/uviespace/flightos-sub001/internal/pagemap"
	"github.com/uviespace/flightos-sub001/internal/sched"
	syscalltable "github.com/uviespace/flightos-sub001/internal/syscall"
	"github.com/uviespace/flightos-sub001/internal/task"
	"github.com/uviespace/flightos-sub001/internal/xentium"
)

// wireSyscalls registers the syscall table slots this core actually
// implements. Slots whose real implementation lives outside this core's
// scope (TTY, ELF exec, IASW-specific sysctl attributes) are left at their
// NotSupported default.
func (k *Kernel) wireSyscalls() {
	k.Syscalls.Register(syscalltable.SlotAlloc, func(args syscalltable.Args) (uintptr, error) {
		h, err := k.Heap.Alloc(int(args[0]))
		return uintptr(h), err
	})

	k.Syscalls.Register(syscalltable.SlotFree, func(args syscalltable.Args) (uintptr, error) {
		return 0, k.Heap.Free(kheap.Handle(args[0]))
	})

	k.Syscalls.Register(syscalltable.SlotGetTime, func(args syscalltable.Args) (uintptr, error) {
		return uintptr(k.Clock.Now()), nil
	})

	k.Syscalls.Register(syscalltable.SlotNanosleep, func(args syscalltable.Args) (uintptr, error) {
		time.Sleep(ktime.Time(args[0]).Duration())
		return 0, nil
	})

	k.Syscalls.Register(syscalltable.SlotSchedYield, func(args syscalltable.Args) (uintptr, error) {
		k.Sched.Yield(int(args[0]), task.ID(args[1]))
		return 0, nil
	})

	k.Syscalls.Register(syscalltable.SlotWatchdog, func(args syscalltable.Args) (uintptr, error) {
		cpu := int(args[0])
		if cpu < 0 || cpu >= len(k.Watchdogs) {
			return 0, kerr.New(kerr.InvalidArgument, "cpu %d out of range", cpu)
		}
		clamped, err := k.Watchdogs[cpu].Feed(ktime.Time(args[1]))
		if clamped {
			return 1, err
		}
		return 0, err
	})
}

// baseTickPeriodNs is the minimum tick period used to scale RR timeslices,
// "timeslice = priority * min-tick-period * factor."
const baseTickPeriodNs = ktime.Time(1_000_000) // 1ms

// heapArenaMaxOrder/heapArenaMinOrder size the dedicated page-map bank the
// kernel heap's break is reserved from: a 16MiB bank (maxOrder 24) split down
// to page granularity (minOrder 12, matching pagemap.PageSize). The heap
// reserves the entire bank as one chunk at construction time, so its break
// grows within page-map-backed memory instead of a synthetic counter.
const (
	heapArenaMaxOrder = 24
	heapArenaMinOrder = 12
)

// Kernel is the single-reference context binding every subsystem together,
// replacing the original's scattered per-CPU global arrays (current_set[],
// sched_list, clock-event device lists, page-map vector) with one struct a
// boot harness constructs once and passes down.
type Kernel struct {
	Config config.Config
	Clock  ktime.Source
	Log    zerolog.Logger

	IRQCtx *irq.NullContext
	lock   *irq.SpinLock

	PageMap *pagemap.PageMap
	Heap    *kheap.Heap
	brk     *kheap.Break

	Tasks *task.Arena
	Sched *sched.Registry
	edf   *sched.EDF
	rr    *sched.RR

	Arbiters  []*clockevent.Arbiter
	Ticks     []*clockevent.Tick
	Watchdogs []*clockevent.Watchdog

	Xentium  *xentium.Engine
	Exchange *exchange.Sink
	Syscalls *syscalltable.Table

	boot time.Time

	resetCnt atomic.Uint32
}

// New constructs a Kernel with every subsystem wired in dependency order:
// buddy/page-map/heap first, then IRQ primitives, then
// clock-event/tick/watchdog, then task/scheduler, then the Xentium engine.
func New(cfg config.Config) *Kernel {
	logger := zerolog.New(zerolog.ConsoleWriter{Out: os.Stderr}).With().Timestamp().Logger().Level(zerolog.InfoLevel)

	pm := pagemap.New(cfg.PageMapMoveNodeAvailThresh)

	// Dedicate one bank, starting at the identity-map base, entirely to the
	// kernel heap: the heap's break is seeded from this bank's own reserved
	// chunk rather than a synthetic counter, so heap growth is backed by
	// real page-map-accounted memory instead of being decoupled from it.
	heapArenaStartPFN := cfg.PageOffset / pagemap.PageSize
	heapArenaEndPFN := heapArenaStartPFN + (uint64(1)<<heapArenaMaxOrder)/pagemap.PageSize
	if err := pm.AddBank(heapArenaStartPFN, heapArenaEndPFN, heapArenaMaxOrder, heapArenaMinOrder); err != nil {
		logger.Error().Err(err).Msg("failed to register kernel heap arena bank")
	}
	heapBase, err := pm.ReserveChunk(uintptr(1) << heapArenaMaxOrder)
	if err != nil {
		logger.Error().Err(err).Msg("failed to reserve kernel heap arena from page map")
	}

	brk := kheap.NewBreak(kheap.Handle(heapBase))
	heap := kheap.New(brk)

	irqCtx := irq.NewNullContext(cfg.SMPCPUsMax)
	lock := irq.NewSpinLock(irqCtx)

	arbiters := make([]*clockevent.Arbiter, cfg.SMPCPUsMax)
	ticks := make([]*clockevent.Tick, cfg.SMPCPUsMax)
	watchdogs := make([]*clockevent.Watchdog, cfg.SMPCPUsMax)
	for cpu := 0; cpu < cfg.SMPCPUsMax; cpu++ {
		arb := clockevent.NewArbiter(cpu)
		// One simulated watchdog-capable device per CPU, so the watchdog
		// syscall has a device to claim on its first feed.
		arb.Register(&clockevent.Device{
			Name:         fmt.Sprintf("sim-watchdog%d", cpu),
			Features:     clockevent.FeatureWatchdog,
			SetNextEvent: func(ktime.Time) error { return nil },
		})
		arbiters[cpu] = arb
		ticks[cpu] = clockevent.NewTick(arb, baseTickPeriodNs)
		watchdogs[cpu] = clockevent.NewWatchdog(arb)
	}

	arena := task.NewArena()
	edf := sched.NewEDF(arena, cfg.EDFSlack)
	rr := sched.NewRR(arena, baseTickPeriodNs, cfg.RRTimesliceFactor)
	registry := sched.NewRegistry(arena, lock, cfg.SMPCPUsMax, edf, rr)

	xentiumEngine := xentium.NewEngine(cfg.NoCDMATransferQueueSize)
	xentiumEngine.SetKernelTimeout(cfg.XentiumKernelTimeout.Duration())

	k := &Kernel{
		Config:    cfg,
		Clock:     ktime.NewSystemClock(),
		Log:       logger,
		boot:      time.Now(),
		IRQCtx:    irqCtx,
		lock:      lock,
		PageMap:   pm,
		Heap:      heap,
		brk:       brk,
		Tasks:     arena,
		Sched:     registry,
		edf:       edf,
		rr:        rr,
		Arbiters:  arbiters,
		Ticks:     ticks,
		Watchdogs: watchdogs,
		Xentium:   xentiumEngine,
		Exchange:  exchange.NewSink(),
		Syscalls:  syscalltable.NewTable(),
	}
	k.wireSyscalls()
	return k
}

// Panic implements single exception path: on CORRUPT_STATE
// (stack canary mismatch, buddy bitmap inconsistency, scheduler runqueue
// invariant violation) the kernel writes the exchange area and halts,
// instead of returning a discriminated error like every other operation.
func (k *Kernel) Panic(cpu int, trapID uint16, detail string) {
	cnt := k.resetCnt.Inc()

	area := exchange.Area{
		ResetType: uint16(kerr.CorruptState),
		ErrCount:  1,
		ResetCnt:  uint8(cnt),
		ResetTime: ktime.FromTime(k.boot, k.Clock.Now()),
		SWTrapID:  trapID,
	}
	if cpu >= 0 && cpu < 2 {
		area.TrapNumber[cpu] = 1
	}

	if err := k.Exchange.Write(area); err != nil {
		k.Log.Error().Err(err).Msg("failed to write exchange area during panic")
	}

	k.Log.Error().Int("cpu", cpu).Str("detail", detail).Msg("CORRUPT_STATE: halting")

	panic(fmt.Sprintf("kernel: CORRUPT_STATE on cpu %d: %s", cpu, detail))
}
