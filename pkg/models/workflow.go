// Package models defines the core entities of the email auto-reply
// orchestrator: the per-email workflow record, its state vocabulary, the
// sparse update patch, and the transition audit log entry.
package models

import "time"

// WorkflowState identifies a position in the per-email lifecycle.
type WorkflowState string

const (
	StatePending       WorkflowState = "pending"
	StateAIGenerating  WorkflowState = "ai_generating"
	StateAIGenerated   WorkflowState = "ai_generated"
	StateSMSSending    WorkflowState = "sms_sending"
	StateAwaitingHuman WorkflowState = "awaiting_human"
	StateReplySent     WorkflowState = "reply_sent"
	StateUserIgnored   WorkflowState = "user_ignored"
	StateTimeout       WorkflowState = "timeout"
	StateFailed        WorkflowState = "failed"
)

// AllStates lists every valid workflow state.
var AllStates = []WorkflowState{
	StatePending,
	StateAIGenerating,
	StateAIGenerated,
	StateSMSSending,
	StateAwaitingHuman,
	StateReplySent,
	StateUserIgnored,
	StateTimeout,
	StateFailed,
}

// IsValid reports whether s is a known workflow state.
func (s WorkflowState) IsValid() bool {
	for _, state := range AllStates {
		if s == state {
			return true
		}
	}

	return false
}

// IsTerminal reports whether s ends the lifecycle. A failed workflow can
// still be revived by an operator retry, but no automatic advance leaves it.
func (s WorkflowState) IsTerminal() bool {
	switch s {
	case StateReplySent, StateUserIgnored, StateTimeout, StateFailed:
		return true
	default:
		return false
	}
}

// WorkflowRecord is the durable per-email lifecycle record. Exactly one
// record exists per message ID; it is created once and mutated in place by
// the workflow manager through sparse patches.
type WorkflowRecord struct {
	MessageID        string `json:"message_id"         validate:"required"`
	EmailSubject     string `json:"email_subject"`
	EmailFrom        string `json:"email_from"`
	EmailTo          string `json:"email_to"`
	EmailBodyPreview string `json:"email_body_preview"`

	CurrentState  WorkflowState `json:"current_state"            validate:"required"`
	PreviousState WorkflowState `json:"previous_state,omitempty"`

	AIReplyText        string     `json:"ai_reply_text,omitempty"`
	AIReplyGeneratedAt *time.Time `json:"ai_reply_generated_at,omitempty"`

	SMSMessageID   string     `json:"sms_message_id,omitempty"`
	SMSSentAt      *time.Time `json:"sms_sent_at,omitempty"`
	SMSPhoneNumber string     `json:"sms_phone_number,omitempty"`

	UserCommand          string     `json:"user_command,omitempty"`
	UserEditInstructions string     `json:"user_edit_instructions,omitempty"`
	UserRespondedAt      *time.Time `json:"user_responded_at,omitempty"`
	EditIteration        int        `json:"edit_iteration"`

	ReplySentAt    *time.Time `json:"reply_sent_at,omitempty"`
	ReplyMessageID string     `json:"reply_message_id,omitempty"`

	ErrorMessage string `json:"error_message,omitempty"`
	RetryCount   int    `json:"retry_count"`

	CreatedAt time.Time  `json:"created_at"`
	UpdatedAt time.Time  `json:"updated_at"`
	TimeoutAt *time.Time `json:"timeout_at,omitempty"`
}

// WorkflowStatistics aggregates record counts for the status endpoints.
// CompletedToday counts records currently in reply_sent whose reply went out
// since the start of the current UTC day.
type WorkflowStatistics struct {
	TotalWorkflows int64                   `json:"total_workflows"`
	ByState        map[WorkflowState]int64 `json:"by_state"`
	CompletedToday int64                   `json:"completed_today"`
}
