package kerr

import (
	"errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestNewFormatsDetail(t *testing.T) {
	err := New(OutOfMemory, "wanted %d bytes, had %d", 64, 32)
	require.EqualError(t, err, "OUT_OF_MEMORY: wanted 64 bytes, had 32")
}

func TestErrorsIsMatchesSentinel(t *testing.T) {
	err := New(DeviceBusy, "tracker at critical level")
	require.True(t, errors.Is(err, ErrDeviceBusy))
	require.False(t, errors.Is(err, ErrTimeout))
}

func TestKindOfUnwrapsWrappedError(t *testing.T) {
	base := New(AdmissionDenied, "EDF bound exceeded")
	wrapped := fmt.Errorf("admit cpu 0: %w", base)

	kind, ok := KindOf(wrapped)
	require.True(t, ok)
	require.Equal(t, AdmissionDenied, kind)
}

func TestKindOfRejectsForeignError(t *testing.T) {
	_, ok := KindOf(errors.New("not a kerr.Error"))
	require.False(t, ok)
}

func TestKindStringCoversEveryKind(t *testing.T) {
	kinds := []Kind{InvalidArgument, OutOfMemory, AdmissionDenied, NoDevice, DeviceBusy, Timeout, CorruptState, NotSupported}
	for _, k := range kinds {
		require.NotEqual(t, "UNKNOWN_ERR_KIND", k.String())
	}
}
