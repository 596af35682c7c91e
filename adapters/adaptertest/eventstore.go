// Package adaptertest provides reusable acceptance tests that every
// EventStore and CursorStore implementation must pass.
package adaptertest

import (
	"context"
	"testing"

	"github.com/google/uuid"
	"github.com/luno/jettison/errors"
	"github.com/luno/jettison/jtest"
	"github.com/stretchr/testify/require"

	"github.com/flowsource/eventflow"
)

func RunEventStoreTest(t *testing.T, factory func() eventflow.EventStore) {
	tests := []func(t *testing.T, store eventflow.EventStore){
		testAppendAndList,
		testEmptyAppend,
		testVersionConflict,
		testListReverse,
		testListAll,
		testListByType,
		testSubscribe,
		testSnapshots,
	}

	for _, test := range tests {
		storeForTesting := factory()
		test(t, storeForTesting)
	}
}

func RunCursorStoreTest(t *testing.T, factory func() eventflow.CursorStore) {
	t.Run("Cursors", func(t *testing.T) {
		ctx := context.Background()
		cursors := factory()

		_, err := cursors.Get(ctx, "projector")
		jtest.Require(t, eventflow.ErrCursorNotFound, err)

		jtest.RequireNil(t, cursors.Set(ctx, "projector", "12"))

		value, err := cursors.Get(ctx, "projector")
		jtest.RequireNil(t, err)
		require.Equal(t, "12", value)

		jtest.RequireNil(t, cursors.Set(ctx, "projector", "13"))

		pos, err := eventflow.CursorPosition(ctx, cursors, "projector")
		jtest.RequireNil(t, err)
		require.Equal(t, int64(13), pos)
	})
}

func makeEvents(t *testing.T, streamID string, types ...eventflow.EventType) []eventflow.Event {
	t.Helper()

	factory := eventflow.NewEventFactory("adaptertest")

	var events []eventflow.Event
	for _, typ := range types {
		events = append(events, factory.NewEvent(streamID, typ, nil))
	}

	return events
}

func testAppendAndList(t *testing.T, store eventflow.EventStore) {
	t.Run("AppendAndList", func(t *testing.T) {
		ctx := context.Background()
		streamID := uuid.New().String()

		events := makeEvents(t, streamID, eventflow.WorkflowStarted, eventflow.StepStarted, eventflow.DecisionMade)
		err := store.Append(ctx, streamID, 0, events)
		jtest.RequireNil(t, err)

		more := makeEvents(t, streamID, eventflow.WorkflowCompleted)
		err = store.Append(ctx, streamID, 3, more)
		jtest.RequireNil(t, err)

		ls, err := store.List(ctx, streamID, 0)
		jtest.RequireNil(t, err)
		require.Len(t, ls, 4)

		// Versions are a gapless increasing sequence starting at 1 and the
		// global position is assigned and increasing.
		for i, e := range ls {
			require.Equal(t, int64(i+1), e.Version)
			require.NotZero(t, e.GlobalPosition)
			if i > 0 {
				require.Greater(t, e.GlobalPosition, ls[i-1].GlobalPosition)
			}
		}

		require.Equal(t, eventflow.WorkflowStarted, ls[0].Type)
		require.Equal(t, eventflow.WorkflowCompleted, ls[3].Type)
		require.Equal(t, events[0].ID, ls[0].ID)
		require.Equal(t, "adaptertest", ls[0].Source)
		require.NotEmpty(t, ls[0].CorrelationID)
		require.NotEmpty(t, ls[0].TraceID)

		tail, err := store.List(ctx, streamID, 2)
		jtest.RequireNil(t, err)
		require.Len(t, tail, 2)
		require.Equal(t, int64(3), tail[0].Version)
	})
}

func testEmptyAppend(t *testing.T, store eventflow.EventStore) {
	t.Run("EmptyAppend", func(t *testing.T) {
		ctx := context.Background()
		streamID := uuid.New().String()

		// Appending nothing is a no-op even with a nonsense expected version.
		err := store.Append(ctx, streamID, 99, nil)
		jtest.RequireNil(t, err)

		ls, err := store.List(ctx, streamID, 0)
		jtest.RequireNil(t, err)
		require.Empty(t, ls)
	})
}

func testVersionConflict(t *testing.T, store eventflow.EventStore) {
	t.Run("VersionConflict", func(t *testing.T) {
		ctx := context.Background()
		streamID := uuid.New().String()

		err := store.Append(ctx, streamID, 0, makeEvents(t, streamID, eventflow.WorkflowStarted))
		jtest.RequireNil(t, err)
		err = store.Append(ctx, streamID, 1, makeEvents(t, streamID, eventflow.StepStarted))
		jtest.RequireNil(t, err)

		// A second writer that read the stream at version 1 loses.
		err = store.Append(ctx, streamID, 1, makeEvents(t, streamID, eventflow.StepStarted))
		jtest.Require(t, eventflow.ErrVersionConflict, err)

		var conflict eventflow.ConflictError
		require.True(t, errors.As(err, &conflict))
		require.Equal(t, streamID, conflict.StreamID)
		require.Equal(t, int64(1), conflict.ExpectedVersion)
		require.Equal(t, int64(2), conflict.CurrentVersion)

		// Conflicts on the first append are reported the same way.
		err = store.Append(ctx, streamID, 0, makeEvents(t, streamID, eventflow.WorkflowStarted))
		jtest.Require(t, eventflow.ErrVersionConflict, err)

		// The losing appends left no partial writes behind.
		ls, err := store.List(ctx, streamID, 0)
		jtest.RequireNil(t, err)
		require.Len(t, ls, 2)
	})
}

func testListReverse(t *testing.T, store eventflow.EventStore) {
	t.Run("ListReverse", func(t *testing.T) {
		ctx := context.Background()
		streamID := uuid.New().String()

		events := makeEvents(t, streamID,
			eventflow.WorkflowStarted,
			eventflow.StepStarted,
			eventflow.StepCompleted,
			eventflow.StepStarted,
			eventflow.WorkflowCompleted,
		)
		jtest.RequireNil(t, store.Append(ctx, streamID, 0, events))

		ls, err := store.ListReverse(ctx, streamID, 0, 0)
		jtest.RequireNil(t, err)
		require.Len(t, ls, 5)
		require.Equal(t, int64(5), ls[0].Version)
		require.Equal(t, int64(1), ls[4].Version)

		ls, err = store.ListReverse(ctx, streamID, 0, 2)
		jtest.RequireNil(t, err)
		require.Len(t, ls, 2)
		require.Equal(t, int64(5), ls[0].Version)
		require.Equal(t, int64(4), ls[1].Version)

		ls, err = store.ListReverse(ctx, streamID, 3, 10)
		jtest.RequireNil(t, err)
		require.Len(t, ls, 3)
		require.Equal(t, int64(3), ls[0].Version)
		require.Equal(t, int64(1), ls[2].Version)
	})
}

func testListAll(t *testing.T, store eventflow.EventStore) {
	t.Run("ListAll", func(t *testing.T) {
		ctx := context.Background()
		streamA := uuid.New().String()
		streamB := uuid.New().String()

		jtest.RequireNil(t, store.Append(ctx, streamA, 0, makeEvents(t, streamA, eventflow.WorkflowStarted)))
		jtest.RequireNil(t, store.Append(ctx, streamB, 0, makeEvents(t, streamB, eventflow.WorkflowStarted)))
		jtest.RequireNil(t, store.Append(ctx, streamA, 1, makeEvents(t, streamA, eventflow.WorkflowCompleted)))

		all, err := store.ListAll(ctx, 0, 0)
		jtest.RequireNil(t, err)
		require.GreaterOrEqual(t, len(all), 3)

		for i := 1; i < len(all); i++ {
			require.Greater(t, all[i].GlobalPosition, all[i-1].GlobalPosition)
		}

		// Resuming from a position excludes everything up to and including it.
		rest, err := store.ListAll(ctx, all[len(all)-2].GlobalPosition, 0)
		jtest.RequireNil(t, err)
		require.Len(t, rest, 1)
		require.Equal(t, all[len(all)-1].ID, rest[0].ID)

		limited, err := store.ListAll(ctx, 0, 2)
		jtest.RequireNil(t, err)
		require.Len(t, limited, 2)
	})
}

func testListByType(t *testing.T, store eventflow.EventStore) {
	t.Run("ListByType", func(t *testing.T) {
		ctx := context.Background()
		streamA := uuid.New().String()
		streamB := uuid.New().String()

		jtest.RequireNil(t, store.Append(ctx, streamA, 0, makeEvents(t, streamA, eventflow.WorkflowStarted, eventflow.StepStarted)))
		jtest.RequireNil(t, store.Append(ctx, streamB, 0, makeEvents(t, streamB, eventflow.WorkflowStarted)))

		ls, err := store.ListByType(ctx, eventflow.WorkflowStarted, 0)
		jtest.RequireNil(t, err)
		require.Len(t, ls, 2)
		for _, e := range ls {
			require.Equal(t, eventflow.WorkflowStarted, e.Type)
		}
		require.Greater(t, ls[1].GlobalPosition, ls[0].GlobalPosition)

		ls, err = store.ListByType(ctx, eventflow.SLABreach, 0)
		jtest.RequireNil(t, err)
		require.Empty(t, ls)
	})
}

func testSubscribe(t *testing.T, store eventflow.EventStore) {
	t.Run("Subscribe", func(t *testing.T) {
		ctx := context.Background()
		streamID := uuid.New().String()

		var (
			stepEvents []string
			allEvents  []string
		)

		sub := store.Subscribe(eventflow.StepStarted, func(ctx context.Context, e *eventflow.Event) error {
			stepEvents = append(stepEvents, e.ID)
			return nil
		})
		defer sub.Cancel()

		wildcard := store.Subscribe(eventflow.EventTypeAny, func(ctx context.Context, e *eventflow.Event) error {
			allEvents = append(allEvents, e.ID)
			return nil
		})
		defer wildcard.Cancel()

		// A failing handler must not affect the append or other handlers.
		failing := store.Subscribe(eventflow.EventTypeAny, func(ctx context.Context, e *eventflow.Event) error {
			return errors.New("projection exploded")
		})
		defer failing.Cancel()

		events := makeEvents(t, streamID, eventflow.WorkflowStarted, eventflow.StepStarted, eventflow.StepCompleted)
		err := store.Append(ctx, streamID, 0, events)
		jtest.RequireNil(t, err)

		require.Equal(t, []string{events[1].ID}, stepEvents)
		require.Equal(t, []string{events[0].ID, events[1].ID, events[2].ID}, allEvents)

		// The committed state is unaffected by the failing subscriber.
		ls, err := store.List(ctx, streamID, 0)
		jtest.RequireNil(t, err)
		require.Len(t, ls, 3)

		// A cancelled subscription receives nothing further.
		wildcard.Cancel()
		err = store.Append(ctx, streamID, 3, makeEvents(t, streamID, eventflow.StepStarted))
		jtest.RequireNil(t, err)
		require.Len(t, allEvents, 3)
		require.Len(t, stepEvents, 2)
	})
}

func testSnapshots(t *testing.T, store eventflow.EventStore) {
	t.Run("Snapshots", func(t *testing.T) {
		ctx := context.Background()
		streamID := uuid.New().String()

		_, err := store.LookupSnapshot(ctx, streamID)
		jtest.Require(t, eventflow.ErrSnapshotNotFound, err)

		err = store.SetSnapshot(ctx, &eventflow.Snapshot{
			StreamID: streamID,
			Version:  3,
			Data:     []byte(`{"status":2}`),
		})
		jtest.RequireNil(t, err)

		snap, err := store.LookupSnapshot(ctx, streamID)
		jtest.RequireNil(t, err)
		require.Equal(t, streamID, snap.StreamID)
		require.Equal(t, int64(3), snap.Version)
		require.Equal(t, []byte(`{"status":2}`), snap.Data)
		require.False(t, snap.CreatedAt.IsZero())

		// Upserting replaces the prior snapshot, at most one per stream.
		err = store.SetSnapshot(ctx, &eventflow.Snapshot{
			StreamID: streamID,
			Version:  7,
			Data:     []byte(`{"status":3}`),
		})
		jtest.RequireNil(t, err)

		snap, err = store.LookupSnapshot(ctx, streamID)
		jtest.RequireNil(t, err)
		require.Equal(t, int64(7), snap.Version)
		require.Equal(t, []byte(`{"status":3}`), snap.Data)
	})
}
