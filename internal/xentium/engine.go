// Engine implements the processing network (proc_net): a
// directed graph of Trackers dispatched by fill ratio, reserving a DMA
// channel and an idle Xentium kernel instance per dispatch, and routing
// tasks according to the nine kernel reply commands. Generalizes
// data_proc_net.h's pn_create/pn_add_node/pn_input_task/pn_process_next.
package xentium

import (
	"sync"
	"time"

	"golang.org/x/sync/semaphore"

	"github.com/uviespace/flightos-sub001/internal/kerr"
)

// defaultKernelTimeout bounds how long ProcessNext waits for a dispatched
// kernel instance to reply before treating it as hung.
const defaultKernelTimeout = 2 * time.Second

// kernelPool is the set of Xentium DSP instances declared for one OpCode,
// guarded by a weighted semaphore sized to the instance count — reserving a
// slot models a Xentium instance that declares this op-code being claimed
// for the duration of one dispatch.
type kernelPool struct {
	sem       *semaphore.Weighted
	instances []*kernelInstance
	next      int
}

type kernelInstance struct {
	id      uint64
	opCode  OpCode
	fn      KernelFunc
	exited  bool
	holding *Task // non-nil while a DETACH is outstanding
}

// Engine is the Xentium processing-network dispatcher.
type Engine struct {
	mu sync.Mutex

	trackers map[OpCode]*Tracker
	order    []OpCode // insertion order, for fill-ratio tie-breaking

	output    []*Task // OUTPUT sink: tasks that completed their full route
	destroyed []*Task // tasks routed to DESTROY: explicit reply, kernel error, or hang

	kernels map[OpCode]*kernelPool
	byID    map[uint64]*kernelInstance
	dma     *dmaPool

	nextKernelID  uint64
	kernelTimeout time.Duration
}

// NewEngine creates an Engine with nDMAChannels DMA channels available for
// reservation, per pn_create (the original's n_in/n_out_tasks_crit become
// the INPUT/OUTPUT tracker critical thresholds, supplied via AddNode).
func NewEngine(nDMAChannels int) *Engine {
	return &Engine{
		trackers:      make(map[OpCode]*Tracker),
		kernels:       make(map[OpCode]*kernelPool),
		byID:          make(map[uint64]*kernelInstance),
		dma:           newDMAPool(nDMAChannels),
		kernelTimeout: defaultKernelTimeout,
	}
}

// SetKernelTimeout overrides the default hang-detection timeout ProcessNext
// applies to a dispatched kernel instance's reply.
func (e *Engine) SetKernelTimeout(d time.Duration) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.kernelTimeout = d
}

// AddNode registers a Tracker in the network, per pn_add_node. Trackers are
// tried in the order they are added when fill ratios tie; the order in which
// op-codes first appear in the input stream is not tracked.
func (e *Engine) AddNode(t *Tracker) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.trackers[t.OpCode] = t
	e.order = append(e.order, t.OpCode)
}

// AddKernel registers one Xentium kernel instance capable of executing
// opCode, per the engine's pool of "Xentium kernels matching a required
// op-code." Each call to AddKernel adds one unit of concurrent dispatch
// capacity for that op-code. It returns the instance's id, to be passed to
// Attach after a DETACH reply.
func (e *Engine) AddKernel(opCode OpCode, fn KernelFunc) uint64 {
	e.mu.Lock()
	defer e.mu.Unlock()

	e.nextKernelID++
	inst := &kernelInstance{id: e.nextKernelID, opCode: opCode, fn: fn}
	e.byID[inst.id] = inst

	kp, ok := e.kernels[opCode]
	if !ok {
		kp = &kernelPool{}
		e.kernels[opCode] = kp
	}
	kp.instances = append(kp.instances, inst)
	kp.sem = semaphore.NewWeighted(int64(len(kp.instances)))

	return inst.id
}

// InputTask injects a task at the INPUT node, routing it to the tracker for
// its first pending step (or straight to OUTPUT if it has none), per
// pn_input_task. Returns a DeviceBusy error if the target tracker is at its
// critical level, so the caller (producer) can back off.
func (e *Engine) InputTask(t *Task) error {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.routeTask(t)
}

// routeTask must be called with e.mu held.
func (e *Engine) routeTask(t *Task) error {
	step, ok := t.CurrentStep()
	if !ok {
		e.output = append(e.output, t)
		return nil
	}

	tr, ok := e.trackers[step.OpCode]
	if !ok {
		return kerr.New(kerr.InvalidArgument, "no tracker registered for op-code %d", step.OpCode)
	}

	return tr.Put(t)
}

// candidate is one eligible tracker for this dispatch round, with its
// computed rank fields.
type candidate struct {
	tracker *Tracker
	opCode  OpCode
	ratio   float64
	order   int
}

// eligibleCandidates returns non-empty, non-stopped trackers ranked by
// descending fill ratio, tie-broken by ascending insertion order.
func (e *Engine) eligibleCandidates() []candidate {
	var out []candidate
	for i, op := range e.order {
		tr := e.trackers[op]
		if tr.Usage() == 0 || tr.Stopped() {
			continue
		}
		out = append(out, candidate{tracker: tr, opCode: op, ratio: tr.FillRatio(), order: i})
	}

	for i := 0; i < len(out); i++ {
		for j := i + 1; j < len(out); j++ {
			if out[j].ratio > out[i].ratio || (out[j].ratio == out[i].ratio && out[j].order < out[i].order) {
				out[i], out[j] = out[j], out[i]
			}
		}
	}
	return out
}

// ProcessNext runs one dispatch round, per pn_process_next: it picks the
// highest fill-ratio tracker with available resources, dispatches exactly
// one task to a Xentium kernel instance, and applies the reply. It returns
// ok=false if no tracker could be serviced this round (either the network is
// idle or every eligible tracker's resources are currently reserved).
func (e *Engine) ProcessNext() (ok bool, err error) {
	e.mu.Lock()
	defer e.mu.Unlock()

	for _, c := range e.eligibleCandidates() {
		channel, reserved := e.dma.reserve()
		if !reserved {
			continue
		}

		kp, hasKernels := e.kernels[c.opCode]
		if !hasKernels || !kp.sem.TryAcquire(1) {
			e.dma.release(channel)
			continue
		}

		inst := e.pickInstance(kp)

		task, gotTask := c.tracker.Get()
		if !gotTask {
			kp.sem.Release(1)
			e.dma.release(channel)
			continue
		}

		reply, rerr, hung := e.invoke(inst, c.opCode, task)

		kp.sem.Release(1)
		e.dma.release(channel)

		if hung {
			// Hung kernel instance: soft-reset it (as if it had replied
			// EXIT) and route the task it was holding to DESTROY rather
			// than block the network on it indefinitely.
			inst.exited = true
			inst.holding = nil
			e.destroy(task)
			return true, nil
		}

		if rerr != nil {
			// A DMA or kernel-instance error destroys only the task that
			// triggered it; the instance itself stays in rotation.
			e.destroy(task)
			return true, nil
		}

		if err := e.applyReply(c.tracker, inst, task, reply); err != nil {
			return true, err
		}

		return true, nil
	}

	return false, nil
}

// invoke runs inst.fn on a goroutine and waits up to e.kernelTimeout for it
// to reply, simulating the hung-kernel-instance detection a real dispatch
// loop would get from a watchdog-backed timeout. hung is true if the
// instance did not reply in time. Must be called with e.mu held; the
// instance goroutine itself never touches Engine state.
func (e *Engine) invoke(inst *kernelInstance, opCode OpCode, task *Task) (reply Reply, err error, hung bool) {
	type result struct {
		reply Reply
		err   error
	}
	done := make(chan result, 1)
	go func() {
		r, err := inst.fn(opCode, task)
		done <- result{r, err}
	}()

	select {
	case res := <-done:
		return res.reply, res.err, false
	case <-time.After(e.kernelTimeout):
		return 0, nil, true
	}
}

// destroy routes task to DESTROY: it is marked and moved to the destroyed
// sink, never to be dispatched again. Must be called with e.mu held.
func (e *Engine) destroy(task *Task) {
	task.Destroyed = true
	e.destroyed = append(e.destroyed, task)
}

func (e *Engine) pickInstance(kp *kernelPool) *kernelInstance {
	for range kp.instances {
		inst := kp.instances[kp.next%len(kp.instances)]
		kp.next++
		if !inst.exited {
			return inst
		}
	}
	return kp.instances[0]
}

// applyReply routes task according to reply, one of the nine kernel reply
// commands. Must be called with e.mu held.
func (e *Engine) applyReply(tr *Tracker, inst *kernelInstance, task *Task, reply Reply) error {
	switch reply {
	case Success:
		task.AdvanceStep()
		return e.routeTask(task)

	case Stop:
		task.AdvanceStep()
		tr.SetStopped(true)
		return e.routeTask(task)

	case Detach:
		inst.holding = task
		return nil

	case Resched:
		tr.PutForce(task)
		return nil

	case SortSeq:
		tr.PutForce(task)
		tr.SortSeq()
		return nil

	case Destroy:
		e.destroy(task)
		return nil

	case New:
		task.Data = make([]byte, requestedSize(task))
		tr.PutForce(task)
		return nil

	case DataRealloc:
		newSize := requestedSize(task)
		buf := make([]byte, newSize)
		copy(buf, task.Data)
		task.Data = buf
		tr.PutForce(task)
		return nil

	case Exit:
		inst.exited = true
		return nil

	default:
		return kerr.New(kerr.InvalidArgument, "unknown xentium reply command %d", reply)
	}
}

// requestedSize extracts a buffer size from the task's current step's
// OpInfo, defaulting to the existing size if none is supplied. NEW/
// DATA_REALLOC kernels are expected to stash the desired size there before
// returning their reply.
func requestedSize(t *Task) int {
	if step, ok := t.CurrentStep(); ok {
		if n, ok := step.OpInfo.(int); ok && n >= 0 {
			return n
		}
	}
	return len(t.Data)
}

// Attach re-admits a task previously held by a DETACH reply, dispatching it
// back to the tracker for its current step so it can be picked up again —
// a detached task is not routed further until a subsequent ATTACH arrives.
// kernelID is the value AddKernel returned for that instance.
func (e *Engine) Attach(kernelID uint64) (*Task, error) {
	e.mu.Lock()
	defer e.mu.Unlock()

	inst, ok := e.byID[kernelID]
	if !ok {
		return nil, kerr.New(kerr.InvalidArgument, "unknown kernel instance %d", kernelID)
	}
	if inst.holding == nil {
		return nil, kerr.New(kerr.InvalidArgument, "kernel instance %d has no detached task", inst.id)
	}

	task := inst.holding
	inst.holding = nil

	if err := e.routeTask(task); err != nil {
		return nil, err
	}
	return task, nil
}

// Drain returns and clears every task that has reached the OUTPUT sink,
// each exiting the OUTPUT node exactly once.
func (e *Engine) Drain() []*Task {
	e.mu.Lock()
	defer e.mu.Unlock()
	out := e.output
	e.output = nil
	return out
}

// DrainDestroyed returns and clears every task routed to DESTROY since the
// last call, whether by explicit reply, kernel-instance error, or hang
// timeout.
func (e *Engine) DrainDestroyed() []*Task {
	e.mu.Lock()
	defer e.mu.Unlock()
	out := e.destroyed
	e.destroyed = nil
	return out
}
