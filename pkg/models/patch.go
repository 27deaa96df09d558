package models

import "time"

// WorkflowPatch is a sparse update to a WorkflowRecord. A nil field is left
// untouched; a non-nil field is written, including explicit resets to the
// zero value (clearing the error message on an operator retry, for example).
type WorkflowPatch struct {
	CurrentState  *WorkflowState `json:"current_state,omitempty"`
	PreviousState *WorkflowState `json:"previous_state,omitempty"`

	AIReplyText        *string    `json:"ai_reply_text,omitempty"`
	AIReplyGeneratedAt *time.Time `json:"ai_reply_generated_at,omitempty"`

	SMSMessageID   *string    `json:"sms_message_id,omitempty"`
	SMSSentAt      *time.Time `json:"sms_sent_at,omitempty"`
	SMSPhoneNumber *string    `json:"sms_phone_number,omitempty"`

	UserCommand          *string    `json:"user_command,omitempty"`
	UserEditInstructions *string    `json:"user_edit_instructions,omitempty"`
	UserRespondedAt      *time.Time `json:"user_responded_at,omitempty"`
	EditIteration        *int       `json:"edit_iteration,omitempty"`

	ReplySentAt    *time.Time `json:"reply_sent_at,omitempty"`
	ReplyMessageID *string    `json:"reply_message_id,omitempty"`

	ErrorMessage *string `json:"error_message,omitempty"`
	RetryCount   *int    `json:"retry_count,omitempty"`

	TimeoutAt *time.Time `json:"timeout_at,omitempty"`

	// TransitionReason annotates the audit log entry written when
	// CurrentState changes. It is not persisted on the record itself.
	TransitionReason string `json:"-"`
	// TransitionError carries error detail into the audit log entry.
	TransitionError string `json:"-"`
}

// Apply merges the patch into record. It does not touch UpdatedAt or write
// any audit entry; that is the store's responsibility.
func (p WorkflowPatch) Apply(record *WorkflowRecord) {
	if p.CurrentState != nil {
		record.CurrentState = *p.CurrentState
	}

	if p.PreviousState != nil {
		record.PreviousState = *p.PreviousState
	}

	if p.AIReplyText != nil {
		record.AIReplyText = *p.AIReplyText
	}

	if p.AIReplyGeneratedAt != nil {
		t := *p.AIReplyGeneratedAt
		record.AIReplyGeneratedAt = &t
	}

	if p.SMSMessageID != nil {
		record.SMSMessageID = *p.SMSMessageID
	}

	if p.SMSSentAt != nil {
		t := *p.SMSSentAt
		record.SMSSentAt = &t
	}

	if p.SMSPhoneNumber != nil {
		record.SMSPhoneNumber = *p.SMSPhoneNumber
	}

	if p.UserCommand != nil {
		record.UserCommand = *p.UserCommand
	}

	if p.UserEditInstructions != nil {
		record.UserEditInstructions = *p.UserEditInstructions
	}

	if p.UserRespondedAt != nil {
		t := *p.UserRespondedAt
		record.UserRespondedAt = &t
	}

	if p.EditIteration != nil {
		record.EditIteration = *p.EditIteration
	}

	if p.ReplySentAt != nil {
		t := *p.ReplySentAt
		record.ReplySentAt = &t
	}

	if p.ReplyMessageID != nil {
		record.ReplyMessageID = *p.ReplyMessageID
	}

	if p.ErrorMessage != nil {
		record.ErrorMessage = *p.ErrorMessage
	}

	if p.RetryCount != nil {
		record.RetryCount = *p.RetryCount
	}

	if p.TimeoutAt != nil {
		t := *p.TimeoutAt
		record.TimeoutAt = &t
	}
}

// Helpers for building patches without intermediate variables.

func StatePtr(s WorkflowState) *WorkflowState { return &s }

func StringPtr(s string) *string { return &s }

func IntPtr(i int) *int { return &i }

func TimePtr(t time.Time) *time.Time { return &t }
