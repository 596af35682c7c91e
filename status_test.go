package eventflow_test

import (
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/flowsource/eventflow"
)

func TestStatusTerminal(t *testing.T) {
	terminal := map[eventflow.Status]bool{
		eventflow.StatusUnknown:   false,
		eventflow.StatusPending:   false,
		eventflow.StatusRunning:   false,
		eventflow.StatusCompleted: true,
		eventflow.StatusFailed:    true,
		eventflow.StatusCancelled: true,
	}

	for status, want := range terminal {
		require.Equal(t, want, status.Terminal(), status.String())
	}
}

func TestStatusString(t *testing.T) {
	require.Equal(t, "Pending", eventflow.StatusPending.String())
	require.Equal(t, "Running", eventflow.StatusRunning.String())
	require.Equal(t, "Completed", eventflow.StatusCompleted.String())
	require.Equal(t, "Failed", eventflow.StatusFailed.String())
	require.Equal(t, "Cancelled", eventflow.StatusCancelled.String())
	require.Equal(t, "Unknown", eventflow.Status(99).String())
}
