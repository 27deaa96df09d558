package models

import "time"

// TransitionLogEntry is one row of the append-only audit log. Entries are
// written whenever a record's current state changes and are never mutated or
// deleted. FromState is nil for the creation entry.
type TransitionLogEntry struct {
	ID          int64          `json:"id,omitempty"`
	MessageID   string         `json:"message_id"`
	FromState   *WorkflowState `json:"from_state"`
	ToState     WorkflowState  `json:"to_state"`
	Reason      string         `json:"reason,omitempty"`
	ErrorDetail string         `json:"error_detail,omitempty"`
	CreatedAt   time.Time      `json:"created_at"`
}
