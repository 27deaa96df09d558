// Package events defines the lifecycle notifications published as workflow
// records move through their states.
package events

import "time"

type EventType string

// Topic is the single stream carrying workflow lifecycle events.
const Topic = "autoreply.events"

const EventMetadataKey = "key"
const EventTypeMetadataKey = "event_type"

const (
	WorkflowCreatedEvent      EventType = "workflow.created"
	WorkflowStateChangedEvent EventType = "workflow.state_changed"
	WorkflowFailedEvent       EventType = "workflow.failed"
)

type BaseEvent struct {
	ID        string         `json:"id"`
	Type      EventType      `json:"type"`
	Timestamp time.Time      `json:"timestamp"`
	MessageID string         `json:"message_id"`
	Metadata  map[string]any `json:"metadata,omitempty"`
}

// WorkflowCreated is published when a new email enters orchestration.
type WorkflowCreated struct {
	BaseEvent

	EmailSubject string `json:"email_subject"`
	EmailFrom    string `json:"email_from"`
}

func (w WorkflowCreated) GetType() EventType {
	return WorkflowCreatedEvent
}

// WorkflowStateChanged is published on every state transition.
type WorkflowStateChanged struct {
	BaseEvent

	FromState string `json:"from_state"`
	ToState   string `json:"to_state"`
	Reason    string `json:"reason,omitempty"`
}

func (w WorkflowStateChanged) GetType() EventType {
	return WorkflowStateChangedEvent
}

// WorkflowFailed is published when a workflow enters the failed state after
// exhausting its retries.
type WorkflowFailed struct {
	BaseEvent

	Error      string `json:"error"`
	RetryCount int    `json:"retry_count"`
}

func (w WorkflowFailed) GetType() EventType {
	return WorkflowFailedEvent
}
