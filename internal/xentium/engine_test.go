package xentium

import (
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func alwaysSuccess(opCode OpCode, t *Task) (Reply, error) {
	return Success, nil
}

func TestTaskWithThreeStepsExitsOutputOnce(t *testing.T) {
	e := NewEngine(4)

	for _, op := range []OpCode{1, 2, 3} {
		e.AddNode(NewTracker(op, 10))
		e.AddKernel(op, alwaysSuccess)
	}

	task := NewTask(1, nil, 0, OpCode(1), 0, []OpCode{1, 2, 3})
	require.NoError(t, e.InputTask(task))

	for i := 0; i < 3; i++ {
		ok, err := e.ProcessNext()
		require.NoError(t, err)
		require.True(t, ok)
	}

	out := e.Drain()
	require.Len(t, out, 1)
	require.Equal(t, []Step{{OpCode: 1}, {OpCode: 2}, {OpCode: 3}}, out[0].Done)
	require.Empty(t, e.Drain())
}

func TestBackpressureRefusesAtCriticalLevel(t *testing.T) {
	e := NewEngine(4)
	e.AddNode(NewTracker(OpCode(1), 2))
	e.AddKernel(OpCode(1), alwaysSuccess)

	require.NoError(t, e.InputTask(NewTask(1, nil, 0, OpCode(1), 0, []OpCode{1})))
	require.NoError(t, e.InputTask(NewTask(2, nil, 0, OpCode(1), 0, []OpCode{1})))

	err := e.InputTask(NewTask(3, nil, 0, OpCode(1), 0, []OpCode{1}))
	require.Error(t, err)
}

func TestHighestFillRatioDispatchedFirst(t *testing.T) {
	e := NewEngine(4)

	var order []OpCode
	tracker := func(opCode OpCode, task *Task) (Reply, error) {
		order = append(order, opCode)
		return Success, nil
	}

	e.AddNode(NewTracker(OpCode(1), 10))
	e.AddKernel(OpCode(1), tracker)
	e.AddNode(NewTracker(OpCode(2), 2))
	e.AddKernel(OpCode(2), tracker)

	require.NoError(t, e.InputTask(NewTask(1, nil, 0, OpCode(1), 0, []OpCode{1})))
	require.NoError(t, e.InputTask(NewTask(2, nil, 0, OpCode(2), 0, []OpCode{2})))
	require.NoError(t, e.InputTask(NewTask(3, nil, 0, OpCode(2), 0, []OpCode{2})))

	ok, err := e.ProcessNext()
	require.NoError(t, err)
	require.True(t, ok)
	require.Equal(t, OpCode(2), order[0])
}

func TestReschedReturnsTaskToTail(t *testing.T) {
	e := NewEngine(4)

	calls := 0
	flaky := func(opCode OpCode, task *Task) (Reply, error) {
		calls++
		if calls == 1 {
			return Resched, nil
		}
		return Success, nil
	}

	e.AddNode(NewTracker(OpCode(1), 10))
	e.AddKernel(OpCode(1), flaky)

	require.NoError(t, e.InputTask(NewTask(1, nil, 0, OpCode(1), 0, []OpCode{1})))

	ok, err := e.ProcessNext()
	require.NoError(t, err)
	require.True(t, ok)
	require.Empty(t, e.Drain())

	ok, err = e.ProcessNext()
	require.NoError(t, err)
	require.True(t, ok)
	require.Len(t, e.Drain(), 1)
	require.Equal(t, 2, calls)
}

func TestDetachThenAttachResumesRouting(t *testing.T) {
	e := NewEngine(4)

	detachOnce := true
	kernel := func(opCode OpCode, task *Task) (Reply, error) {
		if detachOnce {
			detachOnce = false
			return Detach, nil
		}
		return Success, nil
	}

	e.AddNode(NewTracker(OpCode(1), 10))
	kernelID := e.AddKernel(OpCode(1), kernel)

	require.NoError(t, e.InputTask(NewTask(1, nil, 0, OpCode(1), 0, []OpCode{1})))

	ok, err := e.ProcessNext()
	require.NoError(t, err)
	require.True(t, ok)

	ok, err = e.ProcessNext()
	require.NoError(t, err)
	require.False(t, ok, "task is held by the kernel instance, tracker should be empty")

	_, err = e.Attach(kernelID)
	require.NoError(t, err)

	ok, err = e.ProcessNext()
	require.NoError(t, err)
	require.True(t, ok)
	require.Len(t, e.Drain(), 1)
}

func TestDestroyReplyRoutesTaskToDestroyedSink(t *testing.T) {
	e := NewEngine(4)
	e.AddNode(NewTracker(OpCode(1), 10))
	e.AddKernel(OpCode(1), func(opCode OpCode, task *Task) (Reply, error) {
		return Destroy, nil
	})

	require.NoError(t, e.InputTask(NewTask(1, nil, 0, OpCode(1), 0, []OpCode{1})))

	ok, err := e.ProcessNext()
	require.NoError(t, err)
	require.True(t, ok)
	require.Empty(t, e.Drain())

	destroyed := e.DrainDestroyed()
	require.Len(t, destroyed, 1)
	require.True(t, destroyed[0].Destroyed)
}

func TestKernelErrorDestroysOnlyThatTask(t *testing.T) {
	e := NewEngine(4)
	e.AddNode(NewTracker(OpCode(1), 10))
	e.AddKernel(OpCode(1), func(opCode OpCode, task *Task) (Reply, error) {
		return Success, errors.New("dma parity error")
	})

	require.NoError(t, e.InputTask(NewTask(1, nil, 0, OpCode(1), 0, []OpCode{1})))

	ok, err := e.ProcessNext()
	require.NoError(t, err, "kernel errors are absorbed as DESTROY, not bubbled")
	require.True(t, ok)

	destroyed := e.DrainDestroyed()
	require.Len(t, destroyed, 1)
	require.True(t, destroyed[0].Destroyed)
}

func TestHungKernelInstanceIsSoftResetAndTaskDestroyed(t *testing.T) {
	e := NewEngine(4)
	e.SetKernelTimeout(5 * time.Millisecond)
	e.AddNode(NewTracker(OpCode(1), 10))
	e.AddKernel(OpCode(1), func(opCode OpCode, task *Task) (Reply, error) {
		select {}
	})

	require.NoError(t, e.InputTask(NewTask(1, nil, 0, OpCode(1), 0, []OpCode{1})))

	ok, err := e.ProcessNext()
	require.NoError(t, err)
	require.True(t, ok)

	destroyed := e.DrainDestroyed()
	require.Len(t, destroyed, 1)
	require.True(t, destroyed[0].Destroyed)
}

func TestExitMarksKernelInstanceExited(t *testing.T) {
	e := NewEngine(4)
	e.AddNode(NewTracker(OpCode(1), 10))
	id := e.AddKernel(OpCode(1), func(opCode OpCode, task *Task) (Reply, error) {
		return Exit, nil
	})

	require.NoError(t, e.InputTask(NewTask(1, nil, 0, OpCode(1), 0, []OpCode{1})))

	ok, err := e.ProcessNext()
	require.NoError(t, err)
	require.True(t, ok)
	require.Empty(t, e.Drain())
	require.True(t, e.byID[id].exited)
}
