package eventflow

import (
	"context"
	"sync"

	"github.com/luno/jettison/errors"
	"github.com/luno/jettison/j"

	"github.com/flowsource/eventflow/internal/metrics"
)

// Subscription is the caller-owned handle returned by EventStore.Subscribe.
// Cancelling it removes the handler from the store; cancelling twice is safe.
type Subscription struct {
	once   sync.Once
	cancel func()
}

func (s *Subscription) Cancel() {
	s.once.Do(s.cancel)
}

// SubscriberRegistry implements the subscriber bookkeeping shared by the
// store adapters. Handlers are invoked in registration order, one event at a
// time, after the events they match have been committed. A handler error or
// panic is logged and counted but never propagates to the Append caller and
// never stops the remaining handlers.
type SubscriberRegistry struct {
	mu      sync.Mutex
	nextID  int64
	entries []subscriberEntry

	logger Logger
}

type subscriberEntry struct {
	id        int64
	eventType EventType
	handler   EventHandler
}

func NewSubscriberRegistry(logger Logger) *SubscriberRegistry {
	return &SubscriberRegistry{
		logger: logger,
	}
}

func (r *SubscriberRegistry) Subscribe(eventType EventType, handler EventHandler) *Subscription {
	r.mu.Lock()
	defer r.mu.Unlock()

	r.nextID++
	id := r.nextID
	r.entries = append(r.entries, subscriberEntry{
		id:        id,
		eventType: eventType,
		handler:   handler,
	})

	return &Subscription{
		cancel: func() {
			r.remove(id)
		},
	}
}

func (r *SubscriberRegistry) remove(id int64) {
	r.mu.Lock()
	defer r.mu.Unlock()

	entries := make([]subscriberEntry, 0, len(r.entries))
	for _, e := range r.entries {
		if e.id == id {
			continue
		}

		entries = append(entries, e)
	}

	r.entries = entries
}

// Notify fans each event out to the matching handlers. It must only be called
// after the events have been successfully committed and must be called with
// the events in append order.
func (r *SubscriberRegistry) Notify(ctx context.Context, events []Event) {
	r.mu.Lock()
	entries := make([]subscriberEntry, len(r.entries))
	copy(entries, r.entries)
	r.mu.Unlock()

	for i := range events {
		e := &events[i]
		for _, entry := range entries {
			if entry.eventType != EventTypeAny && entry.eventType != e.Type {
				continue
			}

			r.invoke(ctx, entry, e)
		}
	}
}

func (r *SubscriberRegistry) invoke(ctx context.Context, entry subscriberEntry, e *Event) {
	defer func() {
		if p := recover(); p != nil {
			metrics.SubscriberErrors.WithLabelValues(string(e.Type)).Inc()
			r.logger.Error(ctx, errors.New("event subscriber panicked", j.MKV{
				"event_id":   e.ID,
				"stream_id":  e.StreamID,
				"event_type": string(e.Type),
				"panic":      p,
			}))
		}
	}()

	err := entry.handler(ctx, e)
	if err != nil {
		// NoReturnErr: a failing subscriber must not affect the committed
		// append nor the remaining subscribers.
		metrics.SubscriberErrors.WithLabelValues(string(e.Type)).Inc()
		r.logger.Error(ctx, errors.Wrap(err, "event subscriber failed", j.MKV{
			"event_id":   e.ID,
			"stream_id":  e.StreamID,
			"event_type": string(e.Type),
		}))
	}
}
