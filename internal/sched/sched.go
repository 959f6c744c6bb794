// Package sched implements the multi-policy task scheduler: a registry of
// named scheduling classes tried in descending priority order, backed by
// per-CPU runqueues and global wake/dead lists. It generalizes
// original_source/kernel/sched/rr.c and sched.h's sched_class dispatch table
// (schedule()/check_sched_attr()/task_ready()) to an arbitrary ordered set
// of Go Scheduler implementations, with EDF (edf.go) and RR (rr.go) as the
// two supported policies.
package sched

import (
	"sort"
	"sync"

	"github.com/uviespace/flightos-sub001/internal/irq"
	"github.com/uviespace/flightos-sub001/internal/kerr"
	"github.com/uviespace/flightos-sub001/internal/ktime"
	"github.com/uviespace/flightos-sub001/internal/task"
)

// Scheduler is one scheduling class in the registry, mirroring the
// sched_class function table (check_sched_attr, task_ready, schedule) from
// sched.h in the original.
type Scheduler interface {
	// Policy is the task.Policy this scheduler implements.
	Policy() task.Policy

	// Admit validates attr against any currently-admitted tasks on the
	// target CPU and, if acceptable, records the task as admitted.
	// Returns kerr.AdmissionDenied if the scheduler's feasibility test
	// fails (e.g. EDF utilization bound).
	Admit(cpu int, t *task.Task) error

	// Remove un-admits a task, e.g. on death or policy change.
	Remove(cpu int, id task.ID)

	// PickNext returns the task.ID this scheduler would run next on cpu
	// at time now, or ok=false if it has nothing ready.
	PickNext(cpu int, now ktime.Time) (id task.ID, ok bool)

	// Timeslice returns the execution budget to grant id on cpu if
	// PickNext selects it, e.g. RR's priority-scaled timeslice or EDF's
	// residual runtime-to-deadline.
	Timeslice(cpu int, id task.ID, now ktime.Time) ktime.Time
}

// runqueue is the per-CPU ready-task queue.
type runqueue struct {
	ready []task.ID
}

// Registry is the multi-policy scheduler: an ordered list of Scheduler
// classes, tried from highest to lowest priority until one returns a task
// to run — schedule() queries in descending-priority order, and the first
// non-null pick wins.
type Registry struct {
	mu sync.Mutex

	arena *task.Arena
	lock  *irq.SpinLock
	ncpu  int

	classes []Scheduler // ordered highest-priority first

	runqueues map[int]*runqueue // per cpu
	wake      []task.ID         // global wake (runnable-but-unassigned) list
	dead      []task.ID         // global dead list awaiting reaper
}

// NewRegistry creates a Registry with classes tried in the given order
// (index 0 = highest priority). EDF before RR is the canonical order, since
// EDF tasks have hard timing requirements RR's best-effort policy does not.
// ncpu bounds the ascending-CPU probe Admit performs for tasks with no fixed
// CPU affinity.
func NewRegistry(arena *task.Arena, lock *irq.SpinLock, ncpu int, classes ...Scheduler) *Registry {
	return &Registry{
		arena:     arena,
		lock:      lock,
		ncpu:      ncpu,
		classes:   classes,
		runqueues: make(map[int]*runqueue),
	}
}

func (r *Registry) rq(cpu int) *runqueue {
	q, ok := r.runqueues[cpu]
	if !ok {
		q = &runqueue{}
		r.runqueues[cpu] = q
	}
	return q
}

func (r *Registry) classFor(policy task.Policy) (Scheduler, error) {
	for _, c := range r.classes {
		if c.Policy() == policy {
			return c, nil
		}
	}
	return nil, kerr.New(kerr.InvalidArgument, "no scheduler registered for policy %s", policy)
}

// Admit admits task id for scheduling according to its current Attr.Policy,
// per sched_set_attr()'s feasibility-checking call into check_sched_attr()
// in the original. If the task's OnCPU is task.NoCPUAffinity, cpu is
// ignored and the scheduler probes CPUs in ascending id order, accepting
// the first that passes the policy's admission test; otherwise the task is
// admitted on cpu directly.
func (r *Registry) Admit(cpu int, id task.ID) error {
	t, ok := r.arena.Get(id)
	if !ok {
		return kerr.New(kerr.InvalidArgument, "unknown task id %d", id)
	}

	class, err := r.classFor(t.Attr.Policy)
	if err != nil {
		return err
	}

	f := r.lock.Lock()
	defer r.lock.Unlock(f)

	if t.OnCPU != task.NoCPUAffinity {
		if err := class.Admit(cpu, t); err != nil {
			return err
		}
		return r.admitOnto(cpu, id, t)
	}

	var lastErr error
	for probe := 0; probe < r.ncpu; probe++ {
		if err := class.Admit(probe, t); err != nil {
			lastErr = err
			continue
		}
		t.OnCPU = probe
		return r.admitOnto(probe, id, t)
	}
	if lastErr == nil {
		lastErr = kerr.New(kerr.AdmissionDenied, "no CPU available to probe for task %d", id)
	}
	return lastErr
}

// admitOnto finishes admission once class.Admit has already succeeded on
// cpu: it transitions the task to IDLE and enqueues it on cpu's runqueue.
// Must be called with r.lock held.
func (r *Registry) admitOnto(cpu int, id task.ID, t *task.Task) error {
	t.State = task.Idle
	q := r.rq(cpu)
	q.ready = append(q.ready, id)
	return nil
}

// Wake moves a task from the global wake list onto its CPU's runqueue.
func (r *Registry) Wake(cpu int, id task.ID) {
	f := r.lock.Lock()
	defer r.lock.Unlock(f)

	for i, w := range r.wake {
		if w == id {
			r.wake = append(r.wake[:i], r.wake[i+1:]...)
			break
		}
	}

	q := r.rq(cpu)
	for _, x := range q.ready {
		if x == id {
			return
		}
	}
	q.ready = append(q.ready, id)
}

// Schedule queries every registered class in descending-priority order and
// returns the first non-empty pick. If a class picks a task, that task's
// timeslice is also returned.
func (r *Registry) Schedule(cpu int, now ktime.Time) (*task.Task, ktime.Time, error) {
	f := r.lock.Lock()
	defer r.lock.Unlock(f)

	for _, class := range r.classes {
		id, ok := class.PickNext(cpu, now)
		if !ok {
			continue
		}
		t, ok := r.arena.Get(id)
		if !ok {
			continue
		}
		slice := class.Timeslice(cpu, id, now)
		return t, slice, nil
	}

	return nil, 0, nil
}

// Die removes a task from every scheduling class and its CPU runqueue and
// appends it to the global dead list, completing the task's DEAD
// transition.
func (r *Registry) Die(cpu int, id task.ID) error {
	if err := r.arena.MarkDead(id); err != nil {
		return err
	}

	f := r.lock.Lock()
	defer r.lock.Unlock(f)

	for _, class := range r.classes {
		class.Remove(cpu, id)
	}

	q := r.rq(cpu)
	for i, x := range q.ready {
		if x == id {
			q.ready = append(q.ready[:i], q.ready[i+1:]...)
			break
		}
	}

	r.dead = append(r.dead, id)
	return nil
}

// Yield implements sched_yield(): the calling task voluntarily gives up the
// remainder of its timeslice. For an RR task this rotates it to the tail of
// cpu's run queue immediately, exactly as if it had exhausted its
// timeslice; EDF tasks are unaffected since EDF pick order is driven purely
// by deadline, not queue position.
func (r *Registry) Yield(cpu int, id task.ID) {
	f := r.lock.Lock()
	defer r.lock.Unlock(f)

	for _, class := range r.classes {
		rr, ok := class.(*RR)
		if !ok {
			continue
		}
		if q := rr.queue[cpu]; len(q) > 0 && q[0] == id {
			rr.Rotate(cpu)
		}
	}
}

// Reap runs the reaper pass: every task on the global dead list has its
// reference dropped, and is fully reclaimed from the arena if that drops
// its refcount to zero.
func (r *Registry) Reap() (reclaimed []task.ID) {
	f := r.lock.Lock()
	ids := make([]task.ID, len(r.dead))
	copy(ids, r.dead)
	r.dead = nil
	r.lock.Unlock(f)

	for _, id := range ids {
		ok, err := r.arena.Release(id)
		if err == nil && ok {
			reclaimed = append(reclaimed, id)
		}
	}
	return reclaimed
}

// ReadyLen returns the number of tasks currently ready on cpu's runqueue,
// for tests and diagnostics.
func (r *Registry) ReadyLen(cpu int) int {
	f := r.lock.Lock()
	defer r.lock.Unlock(f)
	return len(r.rq(cpu).ready)
}

// sortedByID is a small helper used by policy implementations to make
// tie-breaks deterministic ("earliest absolute deadline, tie-broken by
// lower id" in EDF pick-next rule).
func sortedByID(ids []task.ID) []task.ID {
	out := make([]task.ID, len(ids))
	copy(out, ids)
	sort.Slice(out, func(i, j int) bool { return out[i] < out[j] })
	return out
}
