// EDF implements the Earliest-Deadline-First scheduling class, grounded on
// sched.h's edf_sched_attr (period/wcet/deadline) and an admission test
// combining a utilization bound and a deadline-density bound, with a
// configurable epsilon slack.
package sched

import (
	"github.com/uviespace/flightos-sub001/internal/kerr"
	"github.com/uviespace/flightos-sub001/internal/ktime"
	"github.com/uviespace/flightos-sub001/internal/task"
)

// edfInstance is the admitted-task bookkeeping EDF needs beyond what
// task.Task already stores: nothing per-se, but kept as a distinct type so
// the per-CPU admitted set can be extended (e.g. with slack tracking)
// without touching task.Task.
type edfInstance struct {
	id task.ID
}

// EDF is the Scheduler implementation for task.EDF.
type EDF struct {
	arena *task.Arena
	slack float64 // epsilon slack subtracted from the 1.0 utilization bound

	admitted map[int][]edfInstance // per cpu
}

// NewEDF creates an EDF scheduler with the given epsilon slack (e.g. 0.02
// reserves 2% of each CPU's capacity as margin), per config.Config.EDFSlack.
func NewEDF(arena *task.Arena, slack float64) *EDF {
	return &EDF{
		arena:    arena,
		slack:    slack,
		admitted: make(map[int][]edfInstance),
	}
}

func (e *EDF) Policy() task.Policy { return task.EDF }

// utilizationAndDensity computes sum(wcet/period) and sum(wcet/deadline) for
// the currently-admitted tasks on cpu plus the candidate attr, for the EDF
// admission test. Both metrics must not exceed 1-slack.
func (e *EDF) utilizationAndDensity(cpu int, cand task.Attr) (util, density float64) {
	for _, inst := range e.admitted[cpu] {
		t, ok := e.arena.Get(inst.id)
		if !ok {
			continue
		}
		util += float64(t.Attr.WCET) / float64(t.Attr.Period)
		density += float64(t.Attr.WCET) / float64(t.Attr.DeadlineRel)
	}
	util += float64(cand.WCET) / float64(cand.Period)
	density += float64(cand.WCET) / float64(cand.DeadlineRel)
	return util, density
}

// Admit runs the EDF admission test: a candidate
// is accepted only if both the utilization bound and the deadline-density
// bound remain at or below 1-slack with it included.
func (e *EDF) Admit(cpu int, t *task.Task) error {
	if t.Attr.Policy != task.EDF {
		return kerr.New(kerr.InvalidArgument, "task %d attr policy is not EDF", t.ID)
	}
	if t.Attr.Period <= 0 || t.Attr.DeadlineRel <= 0 || t.Attr.WCET <= 0 {
		return kerr.New(kerr.InvalidArgument, "EDF task %d has non-positive period/deadline/wcet", t.ID)
	}

	bound := 1.0 - e.slack
	util, density := e.utilizationAndDensity(cpu, t.Attr)
	if util > bound || density > bound {
		return kerr.New(kerr.AdmissionDenied,
			"EDF admission denied for task %d: utilization=%.4f density=%.4f bound=%.4f",
			t.ID, util, density, bound)
	}

	e.admitted[cpu] = append(e.admitted[cpu], edfInstance{id: t.ID})

	now := t.Created
	t.Deadline = now + t.Attr.DeadlineRel
	t.Wakeup = now
	t.Runtime = t.Attr.WCET

	return nil
}

func (e *EDF) Remove(cpu int, id task.ID) {
	list := e.admitted[cpu]
	for i, inst := range list {
		if inst.id == id {
			e.admitted[cpu] = append(list[:i], list[i+1:]...)
			return
		}
	}
}

// PickNext selects the ready EDF task with the earliest absolute deadline on
// cpu, tie-broken by lower task.ID.
func (e *EDF) PickNext(cpu int, now ktime.Time) (task.ID, bool) {
	var (
		best     task.ID
		bestDead ktime.Time
		found    bool
	)

	for _, inst := range sortedInstances(e.admitted[cpu]) {
		t, ok := e.arena.Get(inst.id)
		if !ok || t.State == task.Dead {
			continue
		}
		if t.Wakeup > now {
			continue
		}
		if !found || t.Deadline < bestDead {
			best = t.ID
			bestDead = t.Deadline
			found = true
		}
	}

	return best, found
}

// Timeslice returns the task's residual runtime up to its current period
// boundary; EDF grants a task the lesser of its remaining budget or the time
// left until its deadline.
func (e *EDF) Timeslice(cpu int, id task.ID, now ktime.Time) ktime.Time {
	t, ok := e.arena.Get(id)
	if !ok {
		return 0
	}
	remaining := t.Deadline - now
	if t.Runtime < remaining {
		return t.Runtime
	}
	return remaining
}

func sortedInstances(in []edfInstance) []edfInstance {
	ids := make([]task.ID, len(in))
	for i, inst := range in {
		ids[i] = inst.id
	}
	ids = sortedByID(ids)
	out := make([]edfInstance, len(ids))
	for i, id := range ids {
		out[i] = edfInstance{id: id}
	}
	return out
}
