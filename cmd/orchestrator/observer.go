package main

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/JackBeStrong/email-auto-reply/pkg/eventbus"
	"github.com/JackBeStrong/email-auto-reply/pkg/events"
)

// registerEventObservers attaches logging observers to the workflow
// lifecycle stream and starts consuming it. Observers never feed back into
// the state machine; they exist for operational visibility.
func registerEventObservers(ctx context.Context, bus eventbus.EventBus, logger *slog.Logger) error {
	observerLogger := logger.With("module", "event-observer")

	err := bus.Handle(events.WorkflowCreatedEvent, func(ctx context.Context, event any) error {
		created, ok := event.(*events.WorkflowCreated)
		if !ok {
			return fmt.Errorf("unexpected payload for %s event", events.WorkflowCreatedEvent)
		}

		observerLogger.InfoContext(ctx, "Workflow created",
			"message_id", created.MessageID, "email_from", created.EmailFrom,
			"email_subject", created.EmailSubject)

		return nil
	})
	if err != nil {
		return fmt.Errorf("failed to register created observer: %w", err)
	}

	err = bus.Handle(events.WorkflowStateChangedEvent, func(ctx context.Context, event any) error {
		change, ok := event.(*events.WorkflowStateChanged)
		if !ok {
			return fmt.Errorf("unexpected payload for %s event", events.WorkflowStateChangedEvent)
		}

		observerLogger.InfoContext(ctx, "Workflow state changed",
			"message_id", change.MessageID, "from_state", change.FromState,
			"to_state", change.ToState, "reason", change.Reason)

		return nil
	})
	if err != nil {
		return fmt.Errorf("failed to register state change observer: %w", err)
	}

	err = bus.Handle(events.WorkflowFailedEvent, func(ctx context.Context, event any) error {
		failed, ok := event.(*events.WorkflowFailed)
		if !ok {
			return fmt.Errorf("unexpected payload for %s event", events.WorkflowFailedEvent)
		}

		observerLogger.WarnContext(ctx, "Workflow failed",
			"message_id", failed.MessageID, "error", failed.Error,
			"retry_count", failed.RetryCount)

		return nil
	})
	if err != nil {
		return fmt.Errorf("failed to register failure observer: %w", err)
	}

	return bus.Subscribe(ctx)
}
