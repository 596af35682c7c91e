package eventflow

import (
	"context"
	"time"

	"k8s.io/utils/clock"

	"github.com/flowsource/eventflow/internal/metrics"
)

// Projection is a read-model builder fed from the store-wide event log. Its
// name keys the resume cursor, so renaming a projection restarts it from the
// beginning of the log.
type Projection interface {
	Name() string
	Handle(ctx context.Context, e *Event) error
}

const (
	defaultPollFrequency = 250 * time.Millisecond
	defaultBatchSize     = DefaultListAllLimit
)

type projectorOptions struct {
	pollFrequency time.Duration
	batchSize     int
	clock         clock.Clock
}

type ProjectorOption func(*projectorOptions)

func WithPollFrequency(d time.Duration) ProjectorOption {
	return func(o *projectorOptions) {
		o.pollFrequency = d
	}
}

func WithBatchSize(n int) ProjectorOption {
	return func(o *projectorOptions) {
		o.batchSize = n
	}
}

func WithProjectorClock(c clock.Clock) ProjectorOption {
	return func(o *projectorOptions) {
		o.clock = c
	}
}

// RunProjection feeds p every committed event at least once, in global order,
// resuming from the projection's cursor. It blocks until ctx is cancelled or
// an error occurs; retry and backoff policy belongs to the caller since only
// the caller knows whether the projection's failure is transient.
//
// The cursor is advanced only after Handle returns nil, so a crash between
// handling and cursor write redelivers the event. Handlers must therefore be
// idempotent.
func RunProjection(ctx context.Context, store EventStore, cursors CursorStore, p Projection, opts ...ProjectorOption) error {
	o := projectorOptions{
		pollFrequency: defaultPollFrequency,
		batchSize:     defaultBatchSize,
		clock:         clock.RealClock{},
	}
	for _, opt := range opts {
		opt(&o)
	}

	pos, err := CursorPosition(ctx, cursors, p.Name())
	if err != nil {
		return err
	}

	for {
		if ctx.Err() != nil {
			return ctx.Err()
		}

		events, err := store.ListAll(ctx, pos, o.batchSize)
		if err != nil {
			return err
		}

		for i := range events {
			e := &events[i]

			metrics.ProjectionLag.WithLabelValues(p.Name()).Set(o.clock.Since(e.CreatedAt).Seconds())

			t0 := o.clock.Now()
			err := p.Handle(ctx, e)
			if err != nil {
				metrics.ProjectionErrors.WithLabelValues(p.Name()).Inc()
				return err
			}
			metrics.ProjectionLatency.WithLabelValues(p.Name()).Observe(o.clock.Since(t0).Seconds())

			pos = e.GlobalPosition
			err = SetCursorPosition(ctx, cursors, p.Name(), pos)
			if err != nil {
				return err
			}
		}

		if len(events) > 0 {
			continue
		}

		err = waitFor(ctx, o.clock, o.pollFrequency)
		if err != nil {
			return err
		}
	}
}

func waitFor(ctx context.Context, c clock.Clock, d time.Duration) error {
	if d == 0 {
		return ctx.Err()
	}

	t := c.NewTimer(d)
	defer t.Stop()

	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C():
		return nil
	}
}
