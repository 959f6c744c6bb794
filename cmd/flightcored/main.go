// Command flightcored boots the kernel simulation core: it brings up the
// configured number of logical CPUs and runs each one's scheduling loop,
// standing in for a bare-metal main()/cpus_start() entry point.
package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"

	"github.com/uviespace/flightos-sub001/internal/config"
	"github.com/uviespace/flightos-sub001/internal/kernel"
	"github.com/uviespace/flightos-sub001/internal/ktime"
)

func main() {
	if err := newRootCmd().Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func newRootCmd() *cobra.Command {
	cfg := config.Default()

	cmd := &cobra.Command{
		Use:   "flightcored",
		Short: "Boot the flight kernel simulation core",
		RunE: func(cmd *cobra.Command, args []string) error {
			return run(cfg)
		},
	}

	flags := cmd.Flags()
	flags.IntVar(&cfg.StackSize, "stack-size", cfg.StackSize, "per-task stack allocation in bytes")
	flags.IntVar(&cfg.SMPCPUsMax, "smp-cpus-max", cfg.SMPCPUsMax, "number of logical CPUs to bring up")
	flags.Uint64Var(&cfg.PageOffset, "page-offset", cfg.PageOffset, "identity-map base address")
	flags.IntVar(&cfg.KernelStackPages, "kernel-stack-pages", cfg.KernelStackPages, "page count backing the per-CPU IRQ stack")
	flags.Uint64Var(&cfg.CPUClockFreqHz, "cpu-clock-freq-hz", cfg.CPUClockFreqHz, "nominal CPU clock frequency")
	flags.IntVar(&cfg.NoCDMATransferQueueSize, "noc-dma-queue-size", cfg.NoCDMATransferQueueSize, "shared DMA transfer queue size for the Xentium network")
	flags.IntVar(&cfg.PageMapMoveNodeAvailThresh, "page-map-move-thresh", cfg.PageMapMoveNodeAvailThresh, "free-page threshold below which a page map node is rotated")
	flags.IntVar(&cfg.KernelLevel, "kernel-level", cfg.KernelLevel, "printk-equivalent verbosity floor")
	flags.Float64Var(&cfg.EDFSlack, "edf-slack", cfg.EDFSlack, "epsilon slack subtracted from 1 in the EDF admission test")
	flags.IntVar(&cfg.RRTimesliceFactor, "rr-timeslice-factor", cfg.RRTimesliceFactor, "multiplier applied to priority * min-tick-period for RR timeslices")

	xentiumTimeout := cfg.XentiumKernelTimeout.Duration()
	flags.DurationVar(&xentiumTimeout, "xentium-kernel-timeout", xentiumTimeout, "how long to wait for a dispatched Xentium kernel instance to reply before treating it as hung")
	cmd.PreRunE = func(cmd *cobra.Command, args []string) error {
		cfg.XentiumKernelTimeout = ktime.FromDuration(xentiumTimeout)
		return nil
	}

	return cmd
}

// run brings up every configured logical CPU and waits for all of them to
// run out of ready work, analogous to a cpus_start() bring-up loop followed
// by the idle-task fallback on each AP.
func run(cfg config.Config) error {
	k := kernel.New(cfg)
	k.Log.Info().Int("cpus", cfg.SMPCPUsMax).Msg("booting kernel simulation core")

	var g errgroup.Group
	for cpu := 0; cpu < cfg.SMPCPUsMax; cpu++ {
		cpu := cpu
		g.Go(func() error {
			return k.RunCPU(cpu)
		})
	}

	return g.Wait()
}
