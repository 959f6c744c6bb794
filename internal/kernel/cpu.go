// cpu.go drives one logical CPU's scheduling loop, standing in for the
// SPARC trap/context-switch path a boot sequence would wire up in its
// CPU bring-up routines. Each logical CPU is a goroutine; "running" a task
// means invoking its ThreadFunc to completion for the slice the scheduler
// granted it — true preemption of a running Go function is outside what
// this module can express, so task bodies are expected to be short,
// cooperative units of work, mirroring the voluntary-yield style kthread
// bodies take in the original.
package kernel

import (
	"github.com/uviespace/flightos-sub001/internal/task"
)

// RunCPU runs cpu's scheduling loop until no task is ready: Schedule picks
// the next task across every registered policy, the kernel context-switches
// into it, and on return an EDF task whose ThreadFunc returned nil is
// re-armed for its next period and stays admitted, while any other task (an
// RR task, or a task whose ThreadFunc returned an error) is marked dead and
// reaped.
func (k *Kernel) RunCPU(cpu int) error {
	for {
		now := k.Clock.Now()

		t, _, err := k.Sched.Schedule(cpu, now)
		if err != nil {
			return err
		}
		if t == nil {
			return nil
		}

		k.IRQCtx.SaveCurrent(cpu, nil)
		t.State = task.Run

		runErr := t.Fn(t.Data)

		t.State = task.Idle
		k.IRQCtx.Restore(cpu, nil)

		if runErr != nil {
			k.Log.Warn().Uint64("task_id", uint64(t.ID)).Err(runErr).Msg("task returned an error")
		}

		t.Total += t.Runtime

		if runErr == nil && t.Attr.Policy == task.EDF {
			// Budget exhaustion, not termination: the task's return is this
			// simulation's stand-in for a tick arriving at the end of its
			// period, so it re-arms for the next one instead of dying.
			t.Slices++
			t.Wakeup += t.Attr.Period
			t.Deadline = t.Wakeup + t.Attr.DeadlineRel
			t.Runtime = t.Attr.WCET
			continue
		}

		if err := k.Sched.Die(cpu, t.ID); err != nil {
			return err
		}
		k.Sched.Reap()
	}
}
