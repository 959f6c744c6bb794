// RR implements the round-robin fallback scheduling class,
// grounded directly on original_source/kernel/sched/rr.c: priority-scaled
// timeslices, tail-of-queue rotation on exhaustion, and "always ready"
// semantics (task_ready_ns == 0 in the original).
package sched

import (
	"github.com/uviespace/flightos-sub001/internal/kerr"
	"github.com/uviespace/flightos-sub001/internal/ktime"
	"github.com/uviespace/flightos-sub001/internal/task"
)

// RR is the Scheduler implementation for task.RR.
type RR struct {
	arena *task.Arena

	minTickPeriod ktime.Time
	factor        int

	queue map[int][]task.ID // per cpu, front = next to run
}

// NewRR creates an RR scheduler. minTickPeriod and factor parameterize the
// timeslice formula "priority * min-tick-period * factor" per
// config.Config.RRTimesliceFactor.
func NewRR(arena *task.Arena, minTickPeriod ktime.Time, factor int) *RR {
	return &RR{
		arena:         arena,
		minTickPeriod: minTickPeriod,
		factor:        factor,
		queue:         make(map[int][]task.ID),
	}
}

func (r *RR) Policy() task.Policy { return task.RR }

// Admit appends t to the tail of cpu's RR queue. RR has no feasibility test
// of its own — it is the best-effort fallback policy — so Admit only
// validates the priority is positive.
func (r *RR) Admit(cpu int, t *task.Task) error {
	if t.Attr.Policy != task.RR {
		return kerr.New(kerr.InvalidArgument, "task %d attr policy is not RR", t.ID)
	}
	if t.Attr.Priority <= 0 {
		return kerr.New(kerr.InvalidArgument, "RR task %d has non-positive priority", t.ID)
	}

	r.queue[cpu] = append(r.queue[cpu], t.ID)
	t.Wakeup = 0 // RR tasks are always ready (task_ready_ns == 0)
	t.Runtime = r.timesliceFor(t.Attr.Priority)

	return nil
}

func (r *RR) Remove(cpu int, id task.ID) {
	q := r.queue[cpu]
	for i, x := range q {
		if x == id {
			r.queue[cpu] = append(q[:i], q[i+1:]...)
			return
		}
	}
}

// PickNext returns the task at the front of cpu's RR queue, without
// rotating it — rotation only happens once the task's timeslice is spent,
// via Rotate.
func (r *RR) PickNext(cpu int, now ktime.Time) (task.ID, bool) {
	q := r.queue[cpu]
	for _, id := range q {
		t, ok := r.arena.Get(id)
		if ok && t.State != task.Dead {
			return id, true
		}
	}
	return 0, false
}

// Rotate moves the front task of cpu's RR queue to the tail, matching
// rr.c's behaviour when a task exhausts its timeslice without blocking.
func (r *RR) Rotate(cpu int) {
	q := r.queue[cpu]
	if len(q) < 2 {
		return
	}
	head := q[0]
	r.queue[cpu] = append(q[1:], head)
}

func (r *RR) timesliceFor(priority int) ktime.Time {
	return r.minTickPeriod * ktime.Time(priority) * ktime.Time(r.factor)
}

// Timeslice returns priority * min-tick-period * factor for id.
func (r *RR) Timeslice(cpu int, id task.ID, now ktime.Time) ktime.Time {
	t, ok := r.arena.Get(id)
	if !ok {
		return 0
	}
	return r.timesliceFor(t.Attr.Priority)
}
