// Package persistence defines the storage abstraction for workflow records
// and their transition audit log.
package persistence

import (
	"context"
	"time"

	"github.com/JackBeStrong/email-auto-reply/pkg/models"
)

// Repository stores workflow records keyed by message ID. Implementations
// must make each Update atomic with respect to concurrent updates of the
// same record, including the transition log append: the poll loop, the
// timeout scan and the inbound handler may all touch the same record.
type Repository interface {
	// Create inserts a new record. It returns ErrWorkflowAlreadyExists when
	// a record with the same message ID is already present, and logs a
	// creation transition (nil from-state) otherwise.
	Create(ctx context.Context, record *models.WorkflowRecord) (*models.WorkflowRecord, error)

	// Get returns the record for a message ID, or ErrWorkflowNotFound.
	Get(ctx context.Context, messageID string) (*models.WorkflowRecord, error)

	// Update applies a sparse patch. Unset patch fields are untouched.
	// UpdatedAt is refreshed on every call. When the patch carries a
	// CurrentState different from the stored one, a transition log entry is
	// appended atomically with the record update; re-supplying the current
	// state does not log.
	Update(ctx context.Context, messageID string, patch models.WorkflowPatch) (*models.WorkflowRecord, error)

	// ListByState returns up to limit records in the given state, newest
	// created first.
	ListByState(ctx context.Context, state models.WorkflowState, limit int) ([]*models.WorkflowRecord, error)

	// ListTimedOut returns every record awaiting a human response whose
	// deadline is at or before now.
	ListTimedOut(ctx context.Context, now time.Time) ([]*models.WorkflowRecord, error)

	// Exists reports whether a record exists for the message ID.
	Exists(ctx context.Context, messageID string) (bool, error)

	// Statistics returns per-state counts and the replies sent since the
	// start of the current UTC day.
	Statistics(ctx context.Context) (*models.WorkflowStatistics, error)

	// AuditLog returns the transition entries for a record, oldest first.
	AuditLog(ctx context.Context, messageID string) ([]*models.TransitionLogEntry, error)

	HealthCheck(ctx context.Context) error

	Close(ctx context.Context) error
}
