package eventflow_test

import (
	"context"
	"io"
	"testing"
	"time"

	"github.com/luno/jettison/jtest"
	"github.com/stretchr/testify/require"
	clocktesting "k8s.io/utils/clock/testing"

	"github.com/flowsource/eventflow"
	"github.com/flowsource/eventflow/adapters/memstore"
	"github.com/flowsource/eventflow/internal/logger"
)

func awaitWaiters(t *testing.T, c *clocktesting.FakeClock) {
	t.Helper()

	require.Eventually(t, c.HasWaiters, 5*time.Second, time.Millisecond)
}

func TestSnapshotterTakesDueSnapshots(t *testing.T) {
	store := memstore.New()
	c := clocktesting.NewFakeClock(time.Date(2024, time.March, 1, 12, 0, 0, 0, time.UTC))

	s, err := eventflow.NewSnapshotter(store, logger.New(io.Discard),
		eventflow.WithSnapshotSchedule("@every 1m"),
		eventflow.WithSnapshotInterval(3),
		eventflow.WithSnapshotterClock(c),
	)
	jtest.RequireNil(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() {
		done <- s.Run(ctx)
	}()

	awaitWaiters(t, c)

	// W1 crosses the interval, W2 does not.
	w1 := startedWorkflow(t, "W1")
	jtest.RequireNil(t, w1.StartStep(eventflow.StartStepInput{StepID: "S1", AssignedTo: "alice"}))
	jtest.RequireNil(t, w1.MakeDecision(eventflow.DecisionInput{Decision: "approved", Confidence: 0.9}))
	jtest.RequireNil(t, store.Append(ctx, "W1", 0, w1.UncommittedEvents()))
	w1.MarkCommitted()

	w2 := startedWorkflow(t, "W2")
	jtest.RequireNil(t, store.Append(ctx, "W2", 0, w2.UncommittedEvents()))
	w2.MarkCommitted()

	c.Step(time.Minute)

	require.Eventually(t, func() bool {
		_, err := store.LookupSnapshot(ctx, "W1")
		return err == nil
	}, 5*time.Second, time.Millisecond)

	snap, err := store.LookupSnapshot(ctx, "W1")
	jtest.RequireNil(t, err)
	require.Equal(t, int64(3), snap.Version)

	var state eventflow.WorkflowState
	jtest.RequireNil(t, eventflow.Unmarshal(snap.Data, &state))
	require.Equal(t, eventflow.StatusRunning, state.Status)
	require.Equal(t, "S1", state.CurrentStep)
	require.Equal(t, "alice", state.AssignedTo)

	_, err = store.LookupSnapshot(ctx, "W2")
	jtest.Require(t, eventflow.ErrSnapshotNotFound, err)

	cancel()
	jtest.Require(t, context.Canceled, <-done)
}

func TestSnapshotterWaitsForInterval(t *testing.T) {
	store := memstore.New()
	c := clocktesting.NewFakeClock(time.Date(2024, time.March, 1, 12, 0, 0, 0, time.UTC))

	s, err := eventflow.NewSnapshotter(store, logger.New(io.Discard),
		eventflow.WithSnapshotSchedule("@every 1m"),
		eventflow.WithSnapshotInterval(5),
		eventflow.WithSnapshotterClock(c),
	)
	jtest.RequireNil(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() {
		done <- s.Run(ctx)
	}()

	awaitWaiters(t, c)

	// Three events is below the interval of five, so no snapshot is taken.
	w := startedWorkflow(t, "W1")
	jtest.RequireNil(t, w.StartStep(eventflow.StartStepInput{StepID: "S1"}))
	jtest.RequireNil(t, w.Suspend("waiting"))
	jtest.RequireNil(t, store.Append(ctx, "W1", 0, w.UncommittedEvents()))
	w.MarkCommitted()

	c.Step(time.Minute)
	awaitWaiters(t, c)

	_, err = store.LookupSnapshot(ctx, "W1")
	jtest.Require(t, eventflow.ErrSnapshotNotFound, err)

	// Two more events cross the interval; the next pass snapshots at the head.
	jtest.RequireNil(t, w.Resume())
	jtest.RequireNil(t, w.Complete(nil))
	jtest.RequireNil(t, store.Append(ctx, "W1", w.CommittedVersion(), w.UncommittedEvents()))
	w.MarkCommitted()

	c.Step(time.Minute)

	require.Eventually(t, func() bool {
		_, err := store.LookupSnapshot(ctx, "W1")
		return err == nil
	}, 5*time.Second, time.Millisecond)

	snap, err := store.LookupSnapshot(ctx, "W1")
	jtest.RequireNil(t, err)
	require.Equal(t, int64(5), snap.Version)

	cancel()
	jtest.Require(t, context.Canceled, <-done)
}

func TestSnapshotterInvalidSchedule(t *testing.T) {
	store := memstore.New()

	_, err := eventflow.NewSnapshotter(store, logger.New(io.Discard),
		eventflow.WithSnapshotSchedule("not a schedule"),
	)
	require.Error(t, err)
}

func TestSnapshotShortensReplay(t *testing.T) {
	ctx := context.Background()
	store := memstore.New()
	factory := eventflow.NewEventFactory("snapshotter_test")

	w := startedWorkflow(t, "W1")
	jtest.RequireNil(t, w.StartStep(eventflow.StartStepInput{StepID: "S1"}))
	jtest.RequireNil(t, store.Append(ctx, "W1", 0, w.UncommittedEvents()))
	w.MarkCommitted()

	c := clocktesting.NewFakeClock(time.Now())
	s, err := eventflow.NewSnapshotter(store, logger.New(io.Discard),
		eventflow.WithSnapshotInterval(1),
		eventflow.WithSnapshotterClock(c),
	)
	jtest.RequireNil(t, err)

	runCtx, cancel := context.WithCancel(ctx)
	done := make(chan error, 1)
	go func() {
		done <- s.Run(runCtx)
	}()

	awaitWaiters(t, c)

	// Touch the stream so the snapshotter sees it as dirty.
	jtest.RequireNil(t, w.MakeDecision(eventflow.DecisionInput{Decision: "approved", Confidence: 0.8}))
	jtest.RequireNil(t, store.Append(ctx, "W1", w.CommittedVersion(), w.UncommittedEvents()))
	w.MarkCommitted()

	c.Step(time.Minute)

	require.Eventually(t, func() bool {
		_, err := store.LookupSnapshot(ctx, "W1")
		return err == nil
	}, 5*time.Second, time.Millisecond)

	cancel()
	jtest.Require(t, context.Canceled, <-done)

	// Loading now folds only events after the snapshot version, and agrees
	// with a full replay.
	fromSnapshot, err := eventflow.LoadWorkflow(ctx, store, "W1", factory)
	jtest.RequireNil(t, err)

	jtest.RequireNil(t, store.DeleteSnapshot(ctx, "W1"))
	fromEvents, err := eventflow.LoadWorkflow(ctx, store, "W1", factory)
	jtest.RequireNil(t, err)

	require.Equal(t, fromEvents.Version(), fromSnapshot.Version())
	require.Equal(t, fromEvents.Status(), fromSnapshot.Status())
	require.Equal(t, fromEvents.CurrentStep(), fromSnapshot.CurrentStep())
}
