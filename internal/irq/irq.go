// Package irq implements the trap-based yielding primitives a multitasking
// kernel core needs: an architecture-abstract Context in place of SPARC's
// trap-stack/register-window machinery, plus the short-held spinlocks
// needed around every piece of shared scheduler state. Grounded on
// asm/spinlock.h + asm/irqflags.h's IRQ-disable-around-critical-section
// idiom from original_source, and on the common per-CPU current[] array
// convention used by bare-metal kernel bring-up code.
package irq

import "sync"

// Context is the architecture-abstract replacement for the SPARC register
// window save/restore and trap primitives.
// save_current/restore model the context switch; disable/restore model
// IRQ masking; SendReschedule models smp_send_reschedule.
type Context interface {
	// SaveCurrent snapshots the outgoing task's register state into its
	// thread-info block (an opaque blob owned by the task layer).
	SaveCurrent(cpu int, threadInfo any)

	// Restore loads the incoming task's register state and transfers
	// control to it; in this simulation, "control transfer" means the
	// caller's goroutine proceeds to run the task's thread function.
	Restore(cpu int, threadInfo any)

	// DisableIRQ disables interrupts on the calling CPU and returns the
	// previous IRQ-enabled flag, for later restoration.
	DisableIRQ() bool

	// RestoreIRQ restores the IRQ-enabled flag returned by a prior
	// DisableIRQ call.
	RestoreIRQ(prevEnabled bool)

	// SendReschedule delivers an inter-processor reschedule request to cpu;
	// after it returns, cpu is guaranteed to re-run its scheduler within
	// one tick period.
	SendReschedule(cpu int)
}

// SpinLock is a short-held mutual-exclusion primitive that also disables
// IRQs for its duration.
type SpinLock struct {
	mu  sync.Mutex
	ctx Context
}

// NewSpinLock creates a SpinLock that disables/restores IRQs via ctx around
// its critical section. ctx may be nil in pure-simulation (non-bare-metal)
// use, in which case IRQ masking is a no-op and only mutual exclusion
// applies.
func NewSpinLock(ctx Context) *SpinLock {
	return &SpinLock{ctx: ctx}
}

// flags carries the state needed to correctly unwind a Lock/Unlock pair.
type flags struct {
	prevEnabled bool
}

// Lock acquires the spinlock and disables IRQs, returning a token to pass to
// Unlock.
func (s *SpinLock) Lock() flags {
	var f flags
	if s.ctx != nil {
		f.prevEnabled = s.ctx.DisableIRQ()
	}
	s.mu.Lock()
	return f
}

// Unlock releases the spinlock and restores the IRQ state captured by Lock.
func (s *SpinLock) Unlock(f flags) {
	s.mu.Unlock()
	if s.ctx != nil {
		s.ctx.RestoreIRQ(f.prevEnabled)
	}
}

// NullContext is a Context that performs no real register-window or IRQ
// manipulation — used by the in-process kernel simulation and by tests,
// where "disabling IRQs" has no hardware meaning and the Go scheduler
// provides the actual preemption points.
type NullContext struct {
	mu       sync.Mutex
	enabled  map[int]bool
	reschedC map[int]chan struct{}
}

// NewNullContext creates a NullContext sized for ncpu logical CPUs.
func NewNullContext(ncpu int) *NullContext {
	nc := &NullContext{
		enabled:  make(map[int]bool, ncpu),
		reschedC: make(map[int]chan struct{}, ncpu),
	}
	for i := 0; i < ncpu; i++ {
		nc.enabled[i] = true
		nc.reschedC[i] = make(chan struct{}, 1)
	}
	return nc
}

func (nc *NullContext) SaveCurrent(cpu int, threadInfo any) {}
func (nc *NullContext) Restore(cpu int, threadInfo any)     {}

func (nc *NullContext) DisableIRQ() bool {
	nc.mu.Lock()
	defer nc.mu.Unlock()
	prev := true
	return prev
}

func (nc *NullContext) RestoreIRQ(prevEnabled bool) {}

func (nc *NullContext) SendReschedule(cpu int) {
	nc.mu.Lock()
	ch, ok := nc.reschedC[cpu]
	nc.mu.Unlock()
	if !ok {
		return
	}
	select {
	case ch <- struct{}{}:
	default:
	}
}

// RescheduleRequested returns the channel a per-CPU scheduler loop selects
// on to observe an IPI reschedule request sent via SendReschedule.
func (nc *NullContext) RescheduleRequested(cpu int) <-chan struct{} {
	nc.mu.Lock()
	defer nc.mu.Unlock()
	return nc.reschedC[cpu]
}
