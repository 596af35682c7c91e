package eventflow_test

import (
	"context"
	"io"
	"testing"

	"github.com/luno/jettison/errors"
	"github.com/stretchr/testify/require"

	"github.com/flowsource/eventflow"
	"github.com/flowsource/eventflow/internal/logger"
)

func TestNotifyRegistrationOrder(t *testing.T) {
	ctx := context.Background()
	registry := eventflow.NewSubscriberRegistry(logger.New(io.Discard))
	factory := eventflow.NewEventFactory("subscription_test")

	var calls []string
	registry.Subscribe(eventflow.StepStarted, func(ctx context.Context, e *eventflow.Event) error {
		calls = append(calls, "typed")
		return nil
	})
	registry.Subscribe(eventflow.EventTypeAny, func(ctx context.Context, e *eventflow.Event) error {
		calls = append(calls, "wildcard")
		return nil
	})
	registry.Subscribe(eventflow.DecisionMade, func(ctx context.Context, e *eventflow.Event) error {
		calls = append(calls, "other")
		return nil
	})

	registry.Notify(ctx, []eventflow.Event{
		factory.NewEvent("W1", eventflow.StepStarted, nil),
	})

	require.Equal(t, []string{"typed", "wildcard"}, calls)
}

func TestNotifySurvivesFailingAndPanickingHandlers(t *testing.T) {
	ctx := context.Background()
	registry := eventflow.NewSubscriberRegistry(logger.New(io.Discard))
	factory := eventflow.NewEventFactory("subscription_test")

	var delivered int
	registry.Subscribe(eventflow.EventTypeAny, func(ctx context.Context, e *eventflow.Event) error {
		return errors.New("handler failed")
	})
	registry.Subscribe(eventflow.EventTypeAny, func(ctx context.Context, e *eventflow.Event) error {
		panic("handler panicked")
	})
	registry.Subscribe(eventflow.EventTypeAny, func(ctx context.Context, e *eventflow.Event) error {
		delivered++
		return nil
	})

	registry.Notify(ctx, []eventflow.Event{
		factory.NewEvent("W1", eventflow.Audit, nil),
		factory.NewEvent("W1", eventflow.Audit, nil),
	})

	require.Equal(t, 2, delivered)
}

func TestSubscriptionCancelIdempotent(t *testing.T) {
	ctx := context.Background()
	registry := eventflow.NewSubscriberRegistry(logger.New(io.Discard))
	factory := eventflow.NewEventFactory("subscription_test")

	var delivered int
	sub := registry.Subscribe(eventflow.EventTypeAny, func(ctx context.Context, e *eventflow.Event) error {
		delivered++
		return nil
	})

	registry.Notify(ctx, []eventflow.Event{factory.NewEvent("W1", eventflow.Audit, nil)})
	require.Equal(t, 1, delivered)

	sub.Cancel()
	sub.Cancel()

	registry.Notify(ctx, []eventflow.Event{factory.NewEvent("W1", eventflow.Audit, nil)})
	require.Equal(t, 1, delivered)
}
