// Package config holds the kernel's Configuration Surface — the knobs that
// in the original sources live in the generated Kconfig autoconf header
// (generated/autoconf.h), wired here to CLI flags in cmd/flightcored via
// spf13/cobra and spf13/pflag.
package config

import "github.com/uviespace/flightos-sub001/internal/ktime"

// Config mirrors the build-config fields the kernel core depends on.
type Config struct {
	// StackSize is the per-task stack allocation in bytes (CONFIG_STACK_SIZE).
	StackSize int

	// SMPCPUsMax bounds the number of logical CPUs the scheduler/runqueues
	// are sized for (CONFIG_SMP_CPUS_MAX).
	SMPCPUsMax int

	// PageOffset is the identity-map base address (CONFIG_PAGE_OFFSET).
	PageOffset uint64

	// KernelStackPages is the page count backing the per-CPU IRQ stack
	// (CONFIG_KERNEL_STACK_PAGES).
	KernelStackPages int

	// CPUClockFreqHz is the nominal CPU clock frequency, used to convert
	// clocksource tick counts to nanoseconds (CONFIG_CPU_CLOCK_FREQ).
	CPUClockFreqHz uint64

	// NoCDMATransferQueueSize bounds the shared DMA transfer queue used by
	// the Xentium processing network (CONFIG_NOC_DMA_TRANSFER_QUEUE_SIZE).
	NoCDMATransferQueueSize int

	// PageMapMoveNodeAvailThresh is the free-page count below which a page
	// map node is rotated to the back of the lookup order
	// (CONFIG_PAGE_MAP_MOVE_NODE_AVAIL_THRESH).
	PageMapMoveNodeAvailThresh int

	// KernelLevel is the printk-equivalent verbosity floor (CONFIG_KERNEL_LEVEL).
	KernelLevel int

	// EDFSlack is the epsilon slack subtracted from 1 in the EDF admission
	// tests, configurable rather than a hardcoded constant.
	EDFSlack float64

	// RRTimesliceFactor is the configurable multiplier applied on top of
	// priority * min-tick-period when computing an RR timeslice;
	// original_source/kernel/sched/rr.c hardcodes this to 50.
	RRTimesliceFactor int

	// XentiumKernelTimeout bounds how long the processing network waits for
	// a dispatched Xentium kernel instance to reply before treating it as
	// hung: the instance is soft-reset (EXITing) and its held task is
	// routed to DESTROY.
	XentiumKernelTimeout ktime.Time
}

// Default returns the configuration used when no flags override it. Values
// are taken from the original flightos defconfig scale (e.g. 8 CPUs, 16KB
// task stacks) adjusted to this core's EDF/RR defaults.
func Default() Config {
	return Config{
		StackSize:                  16 * 1024,
		SMPCPUsMax:                 8,
		PageOffset:                 0xC0000000,
		KernelStackPages:           2,
		CPUClockFreqHz:             100_000_000,
		NoCDMATransferQueueSize:    16,
		PageMapMoveNodeAvailThresh: 32,
		KernelLevel:                3,
		EDFSlack:                   0.02,
		RRTimesliceFactor:          50,
		XentiumKernelTimeout:       2_000_000_000, // 2s
	}
}
