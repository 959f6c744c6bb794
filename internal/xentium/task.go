// Package xentium implements the Xentium DSP processing-network engine,
// generalizing original_source/include/data_proc_task.h,
// data_proc_tracker.h, data_proc_net.h and lib/data_proc_tracker.c's
// list-based task/tracker/network model into a Go engine with explicit
// reply-command routing and DMA/kernel-instance reservation.
package xentium

// OpCode identifies a processing step. InputOp and OutputOp are the two
// reserved sentinel identifiers from data_proc_net.h's PN_OP_NODE_IN/
// PN_OP_NODE_OUT.
type OpCode uint64

const (
	OutputOp OpCode = 0x00000000
	InputOp  OpCode = 0xFFFFFFFF
)

// Step is one stage of a task's route, modeling struct proc_step.
type Step struct {
	OpCode OpCode
	OpInfo any
}

// TaskID is a stable identifier for a Task, used for tracking and for the
// SORTSEQ/SORT-by-sequence ordering rule.
type TaskID uint64

// Task is a unit of DSP work travelling through the processing network,
// generalizing struct proc_task in the original.
type Task struct {
	ID TaskID

	Data  []byte
	Nmemb int

	Todo []Step
	Done []Step

	Type OpCode
	Seq  uint64

	// Destroyed is set once the task has been routed to DESTROY, whether by
	// an explicit DESTROY reply, a kernel instance error, or a hang
	// timeout. A destroyed task is removed from the network and never
	// routed further.
	Destroyed bool
}

// NewTask creates a Task carrying its own ordered route, per pt_create plus
// pt_add_step in the original.
func NewTask(id TaskID, data []byte, nmemb int, typ OpCode, seq uint64, route []OpCode) *Task {
	t := &Task{ID: id, Data: data, Nmemb: nmemb, Type: typ, Seq: seq}
	for _, op := range route {
		t.Todo = append(t.Todo, Step{OpCode: op})
	}
	return t
}

// CurrentStep returns the task's next pending step, or ok=false if its route
// is exhausted (ready for the OUTPUT sink).
func (t *Task) CurrentStep() (Step, bool) {
	if len(t.Todo) == 0 {
		return Step{}, false
	}
	return t.Todo[0], true
}

// AdvanceStep pops the current step onto the done list, per
// pt_del_pend_step/pt_next_pend_step_done in the original.
func (t *Task) AdvanceStep() {
	if len(t.Todo) == 0 {
		return
	}
	t.Done = append(t.Done, t.Todo[0])
	t.Todo = t.Todo[1:]
}
