package eventflow

import (
	"context"
	"sync"

	"github.com/luno/jettison/errors"
	"github.com/luno/jettison/j"
	"github.com/robfig/cron/v3"
	"k8s.io/utils/clock"

	"github.com/flowsource/eventflow/internal/metrics"
)

const defaultSnapshotInterval = 20

// Snapshotter is the background snapshot maintenance process. It watches
// appends via a wildcard subscription and, on a cron schedule, rebuilds and
// upserts snapshots for streams that accumulated at least interval events
// since their last snapshot. Snapshots stay a pure replay optimisation:
// deleting one only makes the next load fold more events.
type Snapshotter struct {
	store    EventStore
	schedule cron.Schedule
	interval int64
	clock    clock.Clock
	logger   Logger

	mu sync.Mutex
	// head tracks the latest seen version per dirty stream, taken the version
	// last snapshotted.
	head  map[string]int64
	taken map[string]int64
}

type SnapshotterOption func(*Snapshotter) error

// WithSnapshotSchedule sets the cron spec driving snapshot passes. Standard
// five field specs, descriptors and "@every <duration>" are accepted.
func WithSnapshotSchedule(spec string) SnapshotterOption {
	return func(s *Snapshotter) error {
		schedule, err := cron.ParseStandard(spec)
		if err != nil {
			return errors.Wrap(err, "snapshot schedule", j.KV("spec", spec))
		}

		s.schedule = schedule
		return nil
	}
}

// WithSnapshotInterval sets how many events a stream must accumulate since
// its last snapshot before a new one is taken.
func WithSnapshotInterval(n int64) SnapshotterOption {
	return func(s *Snapshotter) error {
		s.interval = n
		return nil
	}
}

func WithSnapshotterClock(c clock.Clock) SnapshotterOption {
	return func(s *Snapshotter) error {
		s.clock = c
		return nil
	}
}

func NewSnapshotter(store EventStore, logger Logger, opts ...SnapshotterOption) (*Snapshotter, error) {
	schedule, err := cron.ParseStandard("@every 1m")
	if err != nil {
		return nil, err
	}

	s := &Snapshotter{
		store:    store,
		schedule: schedule,
		interval: defaultSnapshotInterval,
		clock:    clock.RealClock{},
		logger:   logger,
		head:     make(map[string]int64),
		taken:    make(map[string]int64),
	}

	for _, opt := range opts {
		err := opt(s)
		if err != nil {
			return nil, err
		}
	}

	return s, nil
}

// Run subscribes to all appends and blocks taking scheduled snapshot passes
// until ctx is cancelled.
func (s *Snapshotter) Run(ctx context.Context) error {
	sub := s.store.Subscribe(EventTypeAny, func(ctx context.Context, e *Event) error {
		s.observe(e)
		return nil
	})
	defer sub.Cancel()

	for {
		now := s.clock.Now()
		next := s.schedule.Next(now)

		err := waitFor(ctx, s.clock, next.Sub(now))
		if err != nil {
			return err
		}

		s.flush(ctx)
	}
}

func (s *Snapshotter) observe(e *Event) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if e.Version > s.head[e.StreamID] {
		s.head[e.StreamID] = e.Version
	}
}

// flush snapshots every dirty stream that crossed the interval. Failures are
// logged per stream and retried on the next pass since the dirty marker is
// only cleared on success.
func (s *Snapshotter) flush(ctx context.Context) {
	s.mu.Lock()
	due := make(map[string]int64)
	for streamID, head := range s.head {
		if head-s.taken[streamID] >= s.interval {
			due[streamID] = head
		} else {
			delete(s.head, streamID)
		}
	}
	s.mu.Unlock()

	for streamID := range due {
		version, err := s.snapshot(ctx, streamID)
		if err != nil {
			// NoReturnErr: retried on the next scheduled pass.
			s.logger.Error(ctx, errors.Wrap(err, "snapshot stream", j.KV("stream_id", streamID)))
			continue
		}

		s.mu.Lock()
		s.taken[streamID] = version
		if s.head[streamID] <= version {
			delete(s.head, streamID)
		}
		s.mu.Unlock()
	}
}

func (s *Snapshotter) snapshot(ctx context.Context, streamID string) (int64, error) {
	w, err := LoadWorkflow(ctx, s.store, streamID, nil)
	if err != nil {
		return 0, err
	}

	state := w.State()
	data, err := Marshal(&state)
	if err != nil {
		return 0, err
	}

	err = s.store.SetSnapshot(ctx, &Snapshot{
		StreamID:  streamID,
		Version:   w.Version(),
		Data:      data,
		CreatedAt: s.clock.Now(),
	})
	if err != nil {
		return 0, err
	}

	metrics.SnapshotsTaken.Inc()
	return w.Version(), nil
}
