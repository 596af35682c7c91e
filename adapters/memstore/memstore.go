// Package memstore provides an in-memory event store for tests and examples.
package memstore

import (
	"context"
	"os"
	"sync"

	"k8s.io/utils/clock"

	"github.com/flowsource/eventflow"
	"github.com/flowsource/eventflow/internal/logger"
	"github.com/flowsource/eventflow/internal/metrics"
)

type options struct {
	clock  clock.PassiveClock
	logger eventflow.Logger
}

type Option func(*options)

// WithClock overrides the clock used for snapshot timestamps. Event
// timestamps are owned by the event factory, not the store.
func WithClock(c clock.PassiveClock) Option {
	return func(o *options) {
		o.clock = c
	}
}

func WithLogger(l eventflow.Logger) Option {
	return func(o *options) {
		o.logger = l
	}
}

func New(opts ...Option) *Store {
	opt := options{
		clock:  clock.RealClock{},
		logger: logger.New(os.Stderr),
	}
	for _, o := range opts {
		o(&opt)
	}

	return &Store{
		clock:       opt.clock,
		streams:     make(map[string][]eventflow.Event),
		snapshots:   make(map[string]*eventflow.Snapshot),
		cursors:     make(map[string]string),
		subscribers: eventflow.NewSubscriberRegistry(opt.logger),
	}
}

var _ eventflow.EventStore = (*Store)(nil)

type Store struct {
	mu             sync.Mutex
	clock          clock.PassiveClock
	globalPosition int64

	// notifyMu serialises commit plus fan-out so subscribers observe events
	// in commit order. Handlers may read the store, which only takes mu.
	notifyMu sync.Mutex

	// streams holds each stream's events in version order; log is the
	// store-wide order used by ListAll.
	streams   map[string][]eventflow.Event
	log       []eventflow.Event
	snapshots map[string]*eventflow.Snapshot
	cursors   map[string]string

	subscribers *eventflow.SubscriberRegistry
}

func (s *Store) Append(ctx context.Context, streamID string, expectedVersion int64, events []eventflow.Event) error {
	if len(events) == 0 {
		return nil
	}

	s.notifyMu.Lock()
	defer s.notifyMu.Unlock()

	s.mu.Lock()
	stream := s.streams[streamID]
	current := int64(len(stream))
	if current != expectedVersion {
		s.mu.Unlock()
		metrics.VersionConflicts.Inc()
		return eventflow.ConflictError{
			StreamID:        streamID,
			ExpectedVersion: expectedVersion,
			CurrentVersion:  current,
		}
	}

	appended := make([]eventflow.Event, 0, len(events))
	for i, e := range events {
		e.Version = expectedVersion + int64(i) + 1
		s.globalPosition++
		e.GlobalPosition = s.globalPosition

		s.streams[streamID] = append(s.streams[streamID], e)
		s.log = append(s.log, e)
		appended = append(appended, e)
		metrics.AppendedEvents.WithLabelValues(string(e.Type)).Inc()
	}
	s.mu.Unlock()

	t0 := s.clock.Now()
	s.subscribers.Notify(ctx, appended)
	metrics.NotifyLatency.Observe(s.clock.Since(t0).Seconds())

	return nil
}

func (s *Store) List(ctx context.Context, streamID string, fromVersion int64) ([]eventflow.Event, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	var res []eventflow.Event
	for _, e := range s.streams[streamID] {
		if e.Version <= fromVersion {
			continue
		}

		res = append(res, e)
	}

	return res, nil
}

func (s *Store) ListReverse(ctx context.Context, streamID string, fromVersion int64, limit int) ([]eventflow.Event, error) {
	if limit <= 0 {
		limit = eventflow.DefaultReverseLimit
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	stream := s.streams[streamID]
	var res []eventflow.Event
	for i := len(stream) - 1; i >= 0; i-- {
		e := stream[i]
		if fromVersion > 0 && e.Version > fromVersion {
			continue
		}

		res = append(res, e)
		if len(res) >= limit {
			break
		}
	}

	return res, nil
}

func (s *Store) ListAll(ctx context.Context, fromPosition int64, limit int) ([]eventflow.Event, error) {
	if limit <= 0 {
		limit = eventflow.DefaultListAllLimit
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	var res []eventflow.Event
	for _, e := range s.log {
		if e.GlobalPosition <= fromPosition {
			continue
		}

		res = append(res, e)
		if len(res) >= limit {
			break
		}
	}

	return res, nil
}

func (s *Store) ListByType(ctx context.Context, eventType eventflow.EventType, fromPosition int64) ([]eventflow.Event, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	var res []eventflow.Event
	for _, e := range s.log {
		if e.GlobalPosition <= fromPosition {
			continue
		}

		if e.Type != eventType {
			continue
		}

		res = append(res, e)
	}

	return res, nil
}

func (s *Store) Subscribe(eventType eventflow.EventType, handler eventflow.EventHandler) *eventflow.Subscription {
	return s.subscribers.Subscribe(eventType, handler)
}

func (s *Store) SetSnapshot(ctx context.Context, snapshot *eventflow.Snapshot) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	snap := *snapshot
	if snap.CreatedAt.IsZero() {
		snap.CreatedAt = s.clock.Now()
	}

	s.snapshots[snap.StreamID] = &snap
	return nil
}

func (s *Store) LookupSnapshot(ctx context.Context, streamID string) (*eventflow.Snapshot, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	snap, ok := s.snapshots[streamID]
	if !ok {
		return nil, eventflow.ErrSnapshotNotFound
	}

	// Return a copy so modifications don't affect the store.
	cp := *snap
	return &cp, nil
}

// DeleteSnapshot removes the stream's snapshot. Snapshots are a derived
// cache, so this only affects replay cost, never replay results.
func (s *Store) DeleteSnapshot(ctx context.Context, streamID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	delete(s.snapshots, streamID)
	return nil
}

var _ eventflow.CursorStore = (*Store)(nil)

func (s *Store) Get(ctx context.Context, name string) (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	value, ok := s.cursors[name]
	if !ok {
		return "", eventflow.ErrCursorNotFound
	}

	return value, nil
}

func (s *Store) Set(ctx context.Context, name, value string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.cursors[name] = value
	return nil
}
