package eventflow_test

import (
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	clocktesting "k8s.io/utils/clock/testing"

	"github.com/flowsource/eventflow"
)

func TestNewEvent(t *testing.T) {
	t0 := time.Date(2024, time.March, 1, 12, 0, 0, 0, time.UTC)
	factory := eventflow.NewEventFactory("api",
		eventflow.WithFactoryClock(clocktesting.NewFakePassiveClock(t0)),
	)

	e := factory.NewEvent("W1", eventflow.WorkflowStarted, []byte(`{"k":"v"}`))

	require.NotEmpty(t, e.ID)
	require.NotEmpty(t, e.TraceID)
	require.NotEqual(t, e.ID, e.TraceID)
	require.Equal(t, "W1", e.StreamID)
	require.Equal(t, eventflow.WorkflowStarted, e.Type)
	require.Equal(t, "api", e.Source)
	require.Equal(t, t0, e.CreatedAt)

	// The store assigns positions at append time.
	require.Equal(t, int64(0), e.Version)
	require.Equal(t, int64(0), e.GlobalPosition)

	// A fresh correlation id is generated when none is supplied.
	require.NotEmpty(t, e.CorrelationID)
	require.Empty(t, e.CausationID)
	require.Empty(t, e.UserID)
}

func TestNewEventUniqueIDs(t *testing.T) {
	factory := eventflow.NewEventFactory("api")

	seen := make(map[string]bool)
	for i := 0; i < 100; i++ {
		e := factory.NewEvent("W1", eventflow.Audit, nil)
		require.False(t, seen[e.ID])
		seen[e.ID] = true
	}
}

func TestNewEventOptions(t *testing.T) {
	factory := eventflow.NewEventFactory("api")

	cause := factory.NewEvent("W1", eventflow.StepStarted, nil,
		eventflow.WithUserID("u_1"),
	)
	require.Equal(t, "u_1", cause.UserID)

	e := factory.NewEvent("W1", eventflow.DecisionMade, nil,
		eventflow.WithCorrelationID(cause.CorrelationID),
		eventflow.WithCausationID(cause.ID),
		eventflow.WithStepExecutionID("S1-exec-1"),
		eventflow.WithMeta(map[string]string{"channel": "mobile"}),
	)

	require.Equal(t, cause.CorrelationID, e.CorrelationID)
	require.Equal(t, cause.ID, e.CausationID)
	require.Equal(t, "S1-exec-1", e.StepExecutionID)
	require.Equal(t, "mobile", e.Meta["channel"])
}

func TestNewEventDeterministicIDs(t *testing.T) {
	var n int
	factory := eventflow.NewEventFactory("api",
		eventflow.WithFactoryIDs(func() string {
			n++
			return string(rune('a' + n - 1))
		}),
	)

	e := factory.NewEvent("W1", eventflow.Audit, nil)
	require.Equal(t, "a", e.ID)
	require.Equal(t, "b", e.TraceID)
	require.Equal(t, "c", e.CorrelationID)
}
