// Package persistence provides standardized error types for store operations.
package persistence

import (
	"errors"
	"fmt"
)

var (
	// ErrWorkflowNotFound indicates no record exists for the message ID.
	ErrWorkflowNotFound = errors.New("workflow not found")

	// ErrWorkflowAlreadyExists indicates a record with the same message ID
	// is already present.
	ErrWorkflowAlreadyExists = errors.New("workflow already exists")

	// ErrInvalidState indicates an unknown workflow state was supplied.
	ErrInvalidState = errors.New("invalid workflow state")
)

// WorkflowError wraps store errors with the operation and record identity.
type WorkflowError struct {
	Op        string // Operation being performed (e.g. "Create", "Update")
	MessageID string // Email message ID
	Err       error  // Underlying error
}

func (e *WorkflowError) Error() string {
	return fmt.Sprintf("%s operation failed for workflow %s: %v", e.Op, e.MessageID, e.Err)
}

func (e *WorkflowError) Unwrap() error {
	return e.Err
}

func (e *WorkflowError) Is(target error) bool {
	return errors.Is(e.Err, target)
}

// NewWorkflowError creates a new workflow error with context.
func NewWorkflowError(op, messageID string, err error) *WorkflowError {
	return &WorkflowError{
		Op:        op,
		MessageID: messageID,
		Err:       err,
	}
}

// IsWorkflowNotFound checks if an error indicates a missing record.
func IsWorkflowNotFound(err error) bool {
	return errors.Is(err, ErrWorkflowNotFound)
}

// IsWorkflowAlreadyExists checks if an error indicates a duplicate creation.
func IsWorkflowAlreadyExists(err error) bool {
	return errors.Is(err, ErrWorkflowAlreadyExists)
}

// IsInvalidState checks if an error indicates an unknown state value.
func IsInvalidState(err error) bool {
	return errors.Is(err, ErrInvalidState)
}
