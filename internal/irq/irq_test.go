package irq

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestSpinLockWithNilContextOnlyProvidesMutualExclusion(t *testing.T) {
	lock := NewSpinLock(nil)

	f := lock.Lock()
	lock.Unlock(f)
}

func TestSpinLockWithNullContextRoundTripsIRQFlag(t *testing.T) {
	ctx := NewNullContext(1)
	lock := NewSpinLock(ctx)

	f := lock.Lock()
	require.True(t, f.prevEnabled, "Lock should capture the IRQs-enabled flag for Unlock to restore")
	lock.Unlock(f)
}

func TestSendRescheduleSignalsChannelOnce(t *testing.T) {
	ctx := NewNullContext(2)

	ctx.SendReschedule(0)
	select {
	case <-ctx.RescheduleRequested(0):
	default:
		t.Fatal("expected a pending reschedule signal on cpu 0")
	}

	select {
	case <-ctx.RescheduleRequested(1):
		t.Fatal("cpu 1 should not have received a reschedule signal")
	default:
	}
}

func TestSendRescheduleDoesNotBlockWhenAlreadyPending(t *testing.T) {
	ctx := NewNullContext(1)

	ctx.SendReschedule(0)
	ctx.SendReschedule(0) // must not block on the size-1 buffered channel
}
