package eventbus_test

import (
	"context"
	"testing"
	"time"

	"github.com/ThreeDotsLabs/watermill"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/JackBeStrong/email-auto-reply/pkg/channels/gochannel"
	"github.com/JackBeStrong/email-auto-reply/pkg/eventbus"
	"github.com/JackBeStrong/email-auto-reply/pkg/events"
)

func newTestBus(t *testing.T) eventbus.EventBus {
	t.Helper()

	pub, sub, err := gochannel.CreateTestChannel(watermill.NopLogger{})
	require.NoError(t, err)

	bus := eventbus.NewWatermillEventBus(pub, sub)

	t.Cleanup(func() {
		if err := bus.Close(); err != nil {
			t.Logf("failed to close bus: %v", err)
		}
	})

	return bus
}

func waitForEvent[T any](t *testing.T, ch <-chan T) T {
	t.Helper()

	select {
	case got := <-ch:
		return got
	case <-time.After(2 * time.Second):
		t.Fatal("event never delivered")

		panic("unreachable")
	}
}

func TestPublishSubscribeRoundTrip(t *testing.T) {
	ctx := context.Background()
	bus := newTestBus(t)

	received := make(chan *events.WorkflowStateChanged, 1)

	err := bus.Handle(events.WorkflowStateChangedEvent, func(ctx context.Context, event any) error {
		if change, ok := event.(*events.WorkflowStateChanged); ok {
			received <- change
		}

		return nil
	})
	require.NoError(t, err)
	require.NoError(t, bus.Subscribe(ctx))

	published := events.WorkflowStateChanged{
		BaseEvent: events.BaseEvent{
			ID:        bus.GenerateID(),
			Type:      events.WorkflowStateChangedEvent,
			Timestamp: time.Now().UTC(),
			MessageID: "m1",
		},
		FromState: "pending",
		ToState:   "ai_generating",
		Reason:    "draft generation started",
	}

	require.NoError(t, bus.Publish(ctx, "m1", published))

	got := waitForEvent(t, received)
	assert.Equal(t, "m1", got.MessageID)
	assert.Equal(t, "pending", got.FromState)
	assert.Equal(t, "ai_generating", got.ToState)
	assert.Equal(t, "draft generation started", got.Reason)
}

func TestSubscribeSkipsUnhandledEventTypes(t *testing.T) {
	ctx := context.Background()
	bus := newTestBus(t)

	received := make(chan *events.WorkflowFailed, 1)

	err := bus.Handle(events.WorkflowFailedEvent, func(ctx context.Context, event any) error {
		if failed, ok := event.(*events.WorkflowFailed); ok {
			received <- failed
		}

		return nil
	})
	require.NoError(t, err)
	require.NoError(t, bus.Subscribe(ctx))

	// No handler registered for created events; they must be acked and
	// skipped without stalling the stream.
	created := events.WorkflowCreated{
		BaseEvent: events.BaseEvent{
			ID:        bus.GenerateID(),
			Type:      events.WorkflowCreatedEvent,
			Timestamp: time.Now().UTC(),
			MessageID: "m1",
		},
		EmailFrom: "a@b.com",
	}
	require.NoError(t, bus.Publish(ctx, "m1", created))

	failed := events.WorkflowFailed{
		BaseEvent: events.BaseEvent{
			ID:        bus.GenerateID(),
			Type:      events.WorkflowFailedEvent,
			Timestamp: time.Now().UTC(),
			MessageID: "m1",
		},
		Error:      "oracle unavailable (max retries exceeded)",
		RetryCount: 3,
	}
	require.NoError(t, bus.Publish(ctx, "m1", failed))

	got := waitForEvent(t, received)
	assert.Equal(t, "m1", got.MessageID)
	assert.Equal(t, 3, got.RetryCount)
}

func TestGenerateID(t *testing.T) {
	bus := newTestBus(t)

	first := bus.GenerateID()
	second := bus.GenerateID()

	assert.NotEmpty(t, first)
	assert.NotEmpty(t, second)
	assert.NotEqual(t, first, second)
}
