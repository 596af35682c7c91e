package eventflow

import (
	"context"
	"time"
)

const (
	// DefaultReverseLimit bounds ListReverse when the caller passes no limit.
	DefaultReverseLimit = 100
	// DefaultListAllLimit bounds ListAll when the caller passes no limit.
	DefaultListAllLimit = 1000
)

// EventStore is the append-only persistence for events, grouped into
// per-stream sequences with optimistic concurrency control. Implementations
// should all be tested with adaptertest.RunEventStoreTest.
type EventStore interface {
	// Append appends events to the stream identified by streamID. It is a
	// no-op when events is empty. The persisted stream version must equal
	// expectedVersion at commit time or Append fails with a ConflictError
	// carrying both versions; the compare and append must be atomic with
	// respect to concurrent Append calls on the same stream. On success the
	// appended events carry versions expectedVersion+1..expectedVersion+n
	// and all matching subscribers are notified synchronously, in event
	// order, after the events are durably committed.
	Append(ctx context.Context, streamID string, expectedVersion int64, events []Event) error

	// List returns the stream's events with Version > fromVersion in
	// ascending version order. Pass fromVersion 0 for the full stream. The
	// result is a point in time read, not a live stream.
	List(ctx context.Context, streamID string, fromVersion int64) ([]Event, error)

	// ListReverse returns the stream's events in descending version order,
	// starting at fromVersion (or the stream head when fromVersion is 0),
	// bounded by limit (DefaultReverseLimit when 0).
	ListReverse(ctx context.Context, streamID string, fromVersion int64, limit int) ([]Event, error)

	// ListAll returns events across all streams with
	// GlobalPosition > fromPosition in ascending global order, bounded by
	// limit (DefaultListAllLimit when 0). The global order is a monotonic
	// store-wide sequence and carries no cross-stream causality guarantee;
	// use CorrelationID and CausationID for that.
	ListAll(ctx context.Context, fromPosition int64, limit int) ([]Event, error)

	// ListByType returns events of the given type across all streams with
	// GlobalPosition > fromPosition in ascending global order.
	ListByType(ctx context.Context, eventType EventType, fromPosition int64) ([]Event, error)

	// Subscribe registers a handler invoked for every future append of the
	// given type, or of any type when eventType is EventTypeAny. Registration
	// has no effect on already persisted events. The returned Subscription is
	// owned by the caller and must be cancelled when no longer needed.
	Subscribe(eventType EventType, handler EventHandler) *Subscription

	// SetSnapshot upserts the snapshot for the stream, replacing any prior
	// snapshot. Snapshots are a derived cache and never a substitute for
	// events.
	SetSnapshot(ctx context.Context, snapshot *Snapshot) error

	// LookupSnapshot returns the stream's snapshot or ErrSnapshotNotFound.
	LookupSnapshot(ctx context.Context, streamID string) (*Snapshot, error)
}

// EventHandler consumes a committed event during subscriber notification. A
// returned error is logged per handler and does not affect the committed
// append nor any other handler.
type EventHandler func(ctx context.Context, e *Event) error

// Snapshot is a materialised aggregate state as of Version. Replaying the
// stream from Version+1 on top of Data must be equivalent to replaying the
// full stream.
type Snapshot struct {
	StreamID  string
	Version   int64
	Data      []byte
	CreatedAt time.Time
}
