package eventflow

import (
	"github.com/luno/jettison/errors"
	"github.com/luno/jettison/j"
)

// Reducer folds one event into the aggregate state and returns the new state.
// Reducers must be pure: no I/O, no mutation of the event, and the same
// (state, event) input must always produce the same output so that replaying
// a stream is deterministic.
type Reducer[State any] func(state State, e *Event) (State, error)

// Aggregate gives every event-sourced entity uniform replay and command
// buffering behaviour. Concrete aggregates embed it and route all state
// changes through Apply; command methods never mutate state directly.
type Aggregate[State any] struct {
	id      string
	version int64
	state   State
	reduce  Reducer[State]

	uncommitted []Event
}

// NewAggregate returns a fresh aggregate at version 0 with no events. The
// aggregate only comes into existence in the store once its first command's
// events are appended.
func NewAggregate[State any](id string, initial State, reduce Reducer[State]) *Aggregate[State] {
	return &Aggregate[State]{
		id:     id,
		state:  initial,
		reduce: reduce,
	}
}

// AggregateFromHistory reconstructs an aggregate purely by folding a
// previously persisted, ordered event sequence. It produces no uncommitted
// events. An empty history fails with ErrEmptyHistory: there is no such thing
// as an aggregate with zero events, its existence is defined by its first
// event.
func AggregateFromHistory[State any](id string, initial State, reduce Reducer[State], history []Event) (*Aggregate[State], error) {
	return AggregateFromSnapshot(id, initial, reduce, 0, history)
}

// AggregateFromSnapshot reconstructs an aggregate from a materialised state
// at snapshotVersion plus the events persisted after it. With snapshotVersion
// 0 it behaves exactly like AggregateFromHistory. The tail may be empty only
// when a snapshot seeds the state.
func AggregateFromSnapshot[State any](id string, state State, reduce Reducer[State], snapshotVersion int64, tail []Event) (*Aggregate[State], error) {
	if snapshotVersion == 0 && len(tail) == 0 {
		return nil, errors.Wrap(ErrEmptyHistory, "", j.KV("aggregate_id", id))
	}

	a := &Aggregate[State]{
		id:      id,
		version: snapshotVersion,
		state:   state,
		reduce:  reduce,
	}

	for i := range tail {
		state, err := a.reduce(a.state, &tail[i])
		if err != nil {
			return nil, err
		}

		a.state = state
		a.version++
	}

	return a, nil
}

func (a *Aggregate[State]) ID() string {
	return a.id
}

// Version is the count of events folded into the aggregate so far, including
// uncommitted ones.
func (a *Aggregate[State]) Version() int64 {
	return a.version
}

// CommittedVersion is the stream version the aggregate believes is persisted,
// the value to pass as expectedVersion when appending UncommittedEvents.
func (a *Aggregate[State]) CommittedVersion() int64 {
	return a.version - int64(len(a.uncommitted))
}

func (a *Aggregate[State]) State() State {
	return a.state
}

// Apply folds the event into state, buffers it as uncommitted and increments
// the version. It is the only way command methods change aggregate state.
func (a *Aggregate[State]) Apply(e Event) error {
	state, err := a.reduce(a.state, &e)
	if err != nil {
		return err
	}

	a.state = state
	a.uncommitted = append(a.uncommitted, e)
	a.version++

	return nil
}

// UncommittedEvents returns a copy of the events produced by commands since
// the last commit. It does not clear the buffer.
func (a *Aggregate[State]) UncommittedEvents() []Event {
	events := make([]Event, len(a.uncommitted))
	copy(events, a.uncommitted)
	return events
}

// MarkCommitted clears the uncommitted buffer. It must only be called after
// the events have been successfully appended to the store.
func (a *Aggregate[State]) MarkCommitted() {
	a.uncommitted = nil
}
