// Tracker implements the processing tracker (node): a FIFO queue of tasks
// gated by a critical threshold, generalizing lib/data_proc_tracker.c's
// list-based pt_track_put/pt_track_get/pt_track_sort_seq to a slice-backed
// queue with real sort support (the original's pt_track_sort_seq is a
// documented TODO stub in original_source).
package xentium

import (
	"sort"
	"sync"

	"github.com/uviespace/flightos-sub001/internal/kerr"
)

// Tracker is one node of the processing network: a queue of pending tasks
// for one OpCode.
type Tracker struct {
	mu sync.Mutex

	OpCode    OpCode
	queue     []*Task
	critical  int
	stopped   bool
	inputSeen int // not set or read by the Engine; fill-ratio ties use AddNode order
}

// NewTracker creates a Tracker for opCode with the given critical queue
// threshold, per pt_track_create.
func NewTracker(opCode OpCode, critical int) *Tracker {
	return &Tracker{OpCode: opCode, critical: critical}
}

// Usage returns the current queue length, per pt_track_get_usage.
func (t *Tracker) Usage() int {
	t.mu.Lock()
	defer t.mu.Unlock()
	return len(t.queue)
}

// FillRatio returns queue_len / critical_threshold, the quantity the engine
// dispatch rule ranks trackers by.
func (t *Tracker) FillRatio() float64 {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.critical <= 0 {
		return 0
	}
	return float64(len(t.queue)) / float64(t.critical)
}

// LevelCritical reports whether the tracker is at or above its critical
// threshold, per pt_track_level_critical.
func (t *Tracker) LevelCritical() bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	return len(t.queue) >= t.critical
}

// Stopped reports whether the tracker has been removed from dispatch
// rotation by a prior STOP reply.
func (t *Tracker) Stopped() bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.stopped
}

// SetStopped enables/disables dispatch rotation for this tracker.
func (t *Tracker) SetStopped(stopped bool) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.stopped = stopped
}

// Put enqueues a task, refusing it with DeviceBusy if the tracker is at its
// critical threshold.
func (t *Tracker) Put(task *Task) error {
	t.mu.Lock()
	defer t.mu.Unlock()

	if len(t.queue) >= t.critical {
		return kerr.New(kerr.DeviceBusy, "tracker %d is at critical level (%d tasks)", t.OpCode, t.critical)
	}

	t.queue = append(t.queue, task)
	return nil
}

// PutForce enqueues a task unconditionally, bypassing the critical-level
// check, per pt_track_put_force — used for RESCHED/SORTSEQ re-insertion,
// which must never be refused.
func (t *Tracker) PutForce(task *Task) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.queue = append(t.queue, task)
}

// Get dequeues the head task, or ok=false if empty, per pt_track_get.
func (t *Tracker) Get() (*Task, bool) {
	t.mu.Lock()
	defer t.mu.Unlock()
	if len(t.queue) == 0 {
		return nil, false
	}
	task := t.queue[0]
	t.queue = t.queue[1:]
	return task, true
}

// SortSeq sorts the pending queue by ascending Task.Seq, per
// pt_track_sort_seq — left as a documented no-op stub in the original; this
// engine actually implements the sort since SORTSEQ is a reply command tasks
// can request and the routing logic must honor it.
func (t *Tracker) SortSeq() {
	t.mu.Lock()
	defer t.mu.Unlock()
	sort.Slice(t.queue, func(i, j int) bool { return t.queue[i].Seq < t.queue[j].Seq })
}
