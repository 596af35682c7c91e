package eventflow

import (
	"github.com/google/uuid"
	"k8s.io/utils/clock"
)

// EventFactory constructs correctly shaped events so id, timestamp and
// correlation bookkeeping is not repeated at every call site. It is pure
// construction with no side effects; Version is left at 0 for the event store
// to assign at append time.
type EventFactory struct {
	source string
	clock  clock.PassiveClock
	genID  func() string
}

type FactoryOption func(*EventFactory)

// WithFactoryClock overrides the clock used for event timestamps.
func WithFactoryClock(c clock.PassiveClock) FactoryOption {
	return func(f *EventFactory) {
		f.clock = c
	}
}

// WithFactoryIDs overrides the identifier generator. Used in tests that need
// deterministic event ids.
func WithFactoryIDs(genID func() string) FactoryOption {
	return func(f *EventFactory) {
		f.genID = genID
	}
}

// NewEventFactory returns a factory stamping events with the given source
// component name.
func NewEventFactory(source string, opts ...FactoryOption) *EventFactory {
	f := &EventFactory{
		source: source,
		clock:  clock.RealClock{},
		genID:  func() string { return uuid.New().String() },
	}

	for _, opt := range opts {
		opt(f)
	}

	return f
}

type EventOption func(*Event)

func WithUserID(userID string) EventOption {
	return func(e *Event) {
		e.UserID = userID
	}
}

// WithCorrelationID ties the event to an existing business transaction. When
// omitted a fresh correlation id is generated so every event belongs to a
// correlation group, even for isolated operations.
func WithCorrelationID(correlationID string) EventOption {
	return func(e *Event) {
		e.CorrelationID = correlationID
	}
}

// WithCausationID records the id of the event that directly caused this one.
func WithCausationID(causationID string) EventOption {
	return func(e *Event) {
		e.CausationID = causationID
	}
}

// WithStepExecutionID scopes the event to one step execution within the stream.
func WithStepExecutionID(stepExecutionID string) EventOption {
	return func(e *Event) {
		e.StepExecutionID = stepExecutionID
	}
}

func WithMeta(meta map[string]string) EventOption {
	return func(e *Event) {
		e.Meta = meta
	}
}

// NewEvent returns a fully populated event for the given stream with a fresh
// unique id and trace id and the current timestamp.
func (f *EventFactory) NewEvent(streamID string, eventType EventType, data []byte, opts ...EventOption) Event {
	e := Event{
		ID:        f.genID(),
		StreamID:  streamID,
		Type:      eventType,
		Data:      data,
		Source:    f.source,
		TraceID:   f.genID(),
		CreatedAt: f.clock.Now(),
	}

	for _, opt := range opts {
		opt(&e)
	}

	if e.CorrelationID == "" {
		e.CorrelationID = f.genID()
	}

	return e
}
