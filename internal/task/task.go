// Package task implements the task data model and lifecycle. The original's
// raw-pointer intrusive parent/siblings/children lists are replaced by an
// arena of tasks addressed by stable integer IDs, with relationships
// expressed as Option[ID]/slices of ID rather than pointers — grounded on
// original_source/kernel/kthread.c's create/wake/free shape, translated to
// Go's "accept interfaces, return structs" convention.
package task

import (
	"sync"

	"github.com/uviespace/flightos-sub001/internal/kerr"
	"github.com/uviespace/flightos-sub001/internal/ktime"
)

// State is one of the five states a task's lifecycle moves through.
type State int

const (
	New State = iota
	Run
	Idle
	Busy
	Dead
)

func (s State) String() string {
	switch s {
	case New:
		return "NEW"
	case Run:
		return "RUN"
	case Idle:
		return "IDLE"
	case Busy:
		return "BUSY"
	case Dead:
		return "DEAD"
	default:
		return "UNKNOWN"
	}
}

// Policy is one of the four scheduling policies the scheduler recognizes.
type Policy int

const (
	RR Policy = iota
	EDF
	FIFO
	Other
)

func (p Policy) String() string {
	switch p {
	case RR:
		return "RR"
	case EDF:
		return "EDF"
	case FIFO:
		return "FIFO"
	case Other:
		return "OTHER"
	default:
		return "UNKNOWN"
	}
}

// Attr is the scheduling-attribute record.
type Attr struct {
	Policy Policy

	// Priority is used by RR (>= 1); ignored for EDF.
	Priority int

	// Period, WCET, DeadlineRel are used by EDF, all in nanoseconds,
	// constrained by WCET <= DeadlineRel <= Period.
	Period      ktime.Time
	WCET        ktime.Time
	DeadlineRel ktime.Time
}

// NoCPUAffinity is the sentinel "on_cpu" value meaning the task has no fixed
// CPU affinity and may be scheduled anywhere (KTHREAD_CPU_AFFINITY_NONE in
// the original).
const NoCPUAffinity = -1

// ID is a stable integer identifier for a task, replacing raw pointers.
type ID uint64

// ThreadFunc is the body a task runs. Its return transitions the task to
// Dead, except that an EDF task returning nil is re-armed for its next
// period (see kernel.RunCPU).
type ThreadFunc func(data any) error

// Task is one schedulable unit of execution.
type Task struct {
	ID ID

	Name  string
	State State

	// StackBottom/StackTop describe the simulated stack span; in this
	// non-bare-metal core they exist to preserve the data shape and let
	// tests exercise stack-size accounting, not to back a real stack.
	StackBottom uintptr
	StackTop    uintptr

	OnCPU int // NoCPUAffinity or a specific CPU id

	Fn   ThreadFunc
	Data any

	Attr Attr

	// Runtime is the residual execution budget for the current period
	// (EDF) or timeslice (RR), in nanoseconds.
	Runtime ktime.Time

	// Wakeup is the next scheduled wakeup time; Deadline is the absolute
	// deadline for the current EDF period.
	Wakeup   ktime.Time
	Deadline ktime.Time

	// Created is the task's creation timestamp; Total is accumulated
	// runtime across its lifetime.
	Created ktime.Time
	Total   ktime.Time
	Slices  int

	Parent    ID
	HasParent bool // true if Parent is meaningful (the arena root has none)
	Children  []ID
	Siblings  []ID

	refcount int
}

// Arena owns the set of live tasks, addressed by stable ID, replacing the
// original's intrusive doubly-linked task lists.
type Arena struct {
	mu     sync.Mutex
	nextID ID
	tasks  map[ID]*Task
}

// NewArena creates an empty task arena.
func NewArena() *Arena {
	return &Arena{tasks: make(map[ID]*Task), nextID: 1}
}

// Create allocates a new Task in State New, per kthread_create() in the
// original. It does not enqueue the task with any scheduler; callers must
// call Admit (owned by the sched package's Registry) to admit it.
func (a *Arena) Create(name string, fn ThreadFunc, data any, cpu int, stackSize int, now ktime.Time) (*Task, error) {
	if fn == nil {
		return nil, kerr.New(kerr.InvalidArgument, "thread function must not be nil")
	}

	a.mu.Lock()
	defer a.mu.Unlock()

	id := a.nextID
	a.nextID++

	t := &Task{
		ID:          id,
		Name:        name,
		State:       New,
		StackBottom: 0,
		StackTop:    uintptr(stackSize),
		OnCPU:       cpu,
		Fn:          fn,
		Data:        data,
		Created:     now,
		refcount:    1,
	}
	setDefaultPolicy(t)

	a.tasks[id] = t

	return t, nil
}

// setDefaultPolicy mirrors sched_set_policy_default(): new tasks start as
// best-effort RR with the lowest priority.
func setDefaultPolicy(t *Task) {
	t.Attr = Attr{Policy: RR, Priority: 1}
}

// InitMain promotes the boot path to a Task, per kthread_init_main() in the
// original: it records a task named "main" bound to cpu, in State New with
// the default policy and no thread function. It does not enqueue the task
// with any scheduler.
func (a *Arena) InitMain(cpu int, now ktime.Time) (*Task, error) {
	a.mu.Lock()
	defer a.mu.Unlock()

	id := a.nextID
	a.nextID++

	t := &Task{
		ID:       id,
		Name:     "main",
		State:    New,
		OnCPU:    cpu,
		Created:  now,
		refcount: 1,
	}
	setDefaultPolicy(t)

	a.tasks[id] = t

	return t, nil
}

// Get returns the task with the given ID, if still live in the arena.
func (a *Arena) Get(id ID) (*Task, bool) {
	a.mu.Lock()
	defer a.mu.Unlock()
	t, ok := a.tasks[id]
	return t, ok
}

// SetAttr validates and installs new scheduling attributes on a task, per
// sched_set_attr(). Validation of policy-specific constraints (e.g. EDF's
// WCET <= deadline <= period) is the scheduler's job via check_sched_attr;
// this layer only enforces the structural invariant.
func (a *Arena) SetAttr(id ID, attr Attr) error {
	a.mu.Lock()
	defer a.mu.Unlock()

	t, ok := a.tasks[id]
	if !ok {
		return kerr.New(kerr.InvalidArgument, "unknown task id %d", id)
	}

	if attr.Policy == EDF {
		if attr.WCET > attr.DeadlineRel || attr.DeadlineRel > attr.Period {
			return kerr.New(kerr.InvalidArgument, "EDF attrs must satisfy WCET <= deadline <= period")
		}
	}

	t.Attr = attr
	return nil
}

// GetAttr returns a copy of the task's current scheduling attributes.
func (a *Arena) GetAttr(id ID) (Attr, error) {
	a.mu.Lock()
	defer a.mu.Unlock()
	t, ok := a.tasks[id]
	if !ok {
		return Attr{}, kerr.New(kerr.InvalidArgument, "unknown task id %d", id)
	}
	return t.Attr, nil
}

// MarkDead transitions a task to Dead on return from its thread function,
// lifecycle. The task remains in the arena until Release
// drops its refcount to zero.
func (a *Arena) MarkDead(id ID) error {
	a.mu.Lock()
	defer a.mu.Unlock()
	t, ok := a.tasks[id]
	if !ok {
		return kerr.New(kerr.InvalidArgument, "unknown task id %d", id)
	}
	t.State = Dead
	return nil
}

// Release drops a reference on a Dead task; once the refcount reaches zero
// the task is reclaimed (removed from the arena) by a low-priority reaper
// task.
func (a *Arena) Release(id ID) (reclaimed bool, err error) {
	a.mu.Lock()
	defer a.mu.Unlock()

	t, ok := a.tasks[id]
	if !ok {
		return false, kerr.New(kerr.InvalidArgument, "unknown task id %d", id)
	}
	if t.State != Dead {
		return false, kerr.New(kerr.InvalidArgument, "task %d is not DEAD", id)
	}

	t.refcount--
	if t.refcount > 0 {
		return false, nil
	}

	delete(a.tasks, id)
	return true, nil
}

// DeadTasks returns the IDs of every task currently in State Dead, for the
// reaper to sweep.
func (a *Arena) DeadTasks() []ID {
	a.mu.Lock()
	defer a.mu.Unlock()

	var out []ID
	for id, t := range a.tasks {
		if t.State == Dead {
			out = append(out, id)
		}
	}
	return out
}

// Link establishes a parent/child relationship between two tasks in the
// arena, replacing the original's intrusive sibling lists with plain ID
// slices.
func (a *Arena) Link(parent, child ID) error {
	a.mu.Lock()
	defer a.mu.Unlock()

	p, ok := a.tasks[parent]
	if !ok {
		return kerr.New(kerr.InvalidArgument, "unknown parent task id %d", parent)
	}
	c, ok := a.tasks[child]
	if !ok {
		return kerr.New(kerr.InvalidArgument, "unknown child task id %d", child)
	}

	c.Parent = parent
	c.HasParent = true
	p.Children = append(p.Children, child)

	for _, sib := range p.Children {
		if sib != child {
			c.Siblings = append(c.Siblings, sib)
		}
	}

	return nil
}

// Len returns the number of tasks currently tracked by the arena (live +
// dead-awaiting-reclaim).
func (a *Arena) Len() int {
	a.mu.Lock()
	defer a.mu.Unlock()
	return len(a.tasks)
}
