package config

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestDefaultProducesConsistentScheduleKnobs(t *testing.T) {
	cfg := Default()

	require.Greater(t, cfg.SMPCPUsMax, 0)
	require.Greater(t, cfg.StackSize, 0)
	require.Greater(t, cfg.RRTimesliceFactor, 0)
	require.Greater(t, cfg.EDFSlack, 0.0)
	require.Less(t, cfg.EDFSlack, 1.0)
}

func TestDefaultIsIndependentPerCall(t *testing.T) {
	a := Default()
	b := Default()
	a.SMPCPUsMax = 1

	require.NotEqual(t, a.SMPCPUsMax, b.SMPCPUsMax)
}
