package postgresql

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/lib/pq"

	"github.com/JackBeStrong/email-auto-reply/pkg/models"
	"github.com/JackBeStrong/email-auto-reply/pkg/persistence"
)

const uniqueViolationCode = "23505"

const recordColumns = `
	message_id
  , email_subject
  , email_from
  , email_to
  , email_body_preview
  , current_state
  , previous_state
  , ai_reply_text
  , ai_reply_generated_at
  , sms_message_id
  , sms_sent_at
  , sms_phone_number
  , user_command
  , user_edit_instructions
  , user_responded_at
  , edit_iteration
  , reply_sent_at
  , reply_message_id
  , error_message
  , retry_count
  , created_at
  , updated_at
  , timeout_at
`

// Create inserts a new record and its creation transition in one transaction.
func (r *Repository) Create(ctx context.Context, record *models.WorkflowRecord) (*models.WorkflowRecord, error) {
	if record.MessageID == "" {
		return nil, persistence.NewWorkflowError("Create", record.MessageID, errors.New("message ID is required"))
	}

	if record.CurrentState == "" {
		record.CurrentState = models.StatePending
	}

	if !record.CurrentState.IsValid() {
		return nil, persistence.NewWorkflowError("Create", record.MessageID, persistence.ErrInvalidState)
	}

	now := time.Now().UTC()
	record.CreatedAt = now
	record.UpdatedAt = now

	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, persistence.NewWorkflowError("Create", record.MessageID, fmt.Errorf("failed to begin transaction: %w", err))
	}

	insertSQL := `
		INSERT INTO workflow_records (` + recordColumns + `)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15, $16, $17, $18, $19, $20, $21, $22, $23)
	`

	_, err = tx.ExecContext(ctx, insertSQL,
		record.MessageID,
		record.EmailSubject,
		record.EmailFrom,
		record.EmailTo,
		record.EmailBodyPreview,
		string(record.CurrentState),
		string(record.PreviousState),
		record.AIReplyText,
		record.AIReplyGeneratedAt,
		record.SMSMessageID,
		record.SMSSentAt,
		record.SMSPhoneNumber,
		record.UserCommand,
		record.UserEditInstructions,
		record.UserRespondedAt,
		record.EditIteration,
		record.ReplySentAt,
		record.ReplyMessageID,
		record.ErrorMessage,
		record.RetryCount,
		record.CreatedAt,
		record.UpdatedAt,
		record.TimeoutAt,
	)
	if err != nil {
		_ = tx.Rollback()

		var pqErr *pq.Error
		if errors.As(err, &pqErr) && string(pqErr.Code) == uniqueViolationCode {
			return nil, persistence.NewWorkflowError("Create", record.MessageID, persistence.ErrWorkflowAlreadyExists)
		}

		return nil, persistence.NewWorkflowError("Create", record.MessageID, fmt.Errorf("failed to insert record: %w", err))
	}

	err = r.insertTransition(ctx, tx, record.MessageID, nil, record.CurrentState, "workflow created", "")
	if err != nil {
		_ = tx.Rollback()

		return nil, persistence.NewWorkflowError("Create", record.MessageID, err)
	}

	err = tx.Commit()
	if err != nil {
		return nil, persistence.NewWorkflowError("Create", record.MessageID, fmt.Errorf("failed to commit transaction: %w", err))
	}

	return record, nil
}

// Get returns the record for a message ID.
func (r *Repository) Get(ctx context.Context, messageID string) (*models.WorkflowRecord, error) {
	query := `SELECT ` + recordColumns + ` FROM workflow_records WHERE message_id = $1`

	record, err := scanRecord(r.db.QueryRowContext(ctx, query, messageID))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, persistence.NewWorkflowError("Get", messageID, persistence.ErrWorkflowNotFound)
		}

		return nil, persistence.NewWorkflowError("Get", messageID, err)
	}

	return record, nil
}

// Update applies a sparse patch inside a transaction, locking the record row
// and appending a transition entry when the state actually changes.
func (r *Repository) Update(ctx context.Context, messageID string, patch models.WorkflowPatch) (*models.WorkflowRecord, error) {
	if patch.CurrentState != nil && !patch.CurrentState.IsValid() {
		return nil, persistence.NewWorkflowError("Update", messageID, persistence.ErrInvalidState)
	}

	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, persistence.NewWorkflowError("Update", messageID, fmt.Errorf("failed to begin transaction: %w", err))
	}

	var oldState models.WorkflowState

	err = tx.QueryRowContext(ctx,
		"SELECT current_state FROM workflow_records WHERE message_id = $1 FOR UPDATE",
		messageID,
	).Scan(&oldState)
	if err != nil {
		_ = tx.Rollback()

		if errors.Is(err, sql.ErrNoRows) {
			return nil, persistence.NewWorkflowError("Update", messageID, persistence.ErrWorkflowNotFound)
		}

		return nil, persistence.NewWorkflowError("Update", messageID, fmt.Errorf("failed to lock record: %w", err))
	}

	query, args := buildUpdateQuery(patch)

	_, err = tx.ExecContext(ctx, query, append([]any{messageID}, args...)...)
	if err != nil {
		_ = tx.Rollback()

		return nil, persistence.NewWorkflowError("Update", messageID, fmt.Errorf("failed to update record: %w", err))
	}

	if patch.CurrentState != nil && *patch.CurrentState != oldState {
		reason := patch.TransitionReason
		if reason == "" {
			reason = "state transition"
		}

		from := oldState

		err = r.insertTransition(ctx, tx, messageID, &from, *patch.CurrentState, reason, patch.TransitionError)
		if err != nil {
			_ = tx.Rollback()

			return nil, persistence.NewWorkflowError("Update", messageID, err)
		}
	}

	err = tx.Commit()
	if err != nil {
		return nil, persistence.NewWorkflowError("Update", messageID, fmt.Errorf("failed to commit transaction: %w", err))
	}

	return r.Get(ctx, messageID)
}

// ListByState returns records in the given state, newest created first.
func (r *Repository) ListByState(ctx context.Context, state models.WorkflowState, limit int) ([]*models.WorkflowRecord, error) {
	if limit <= 0 {
		limit = 100
	}

	query := `
		SELECT ` + recordColumns + `
		FROM workflow_records
		WHERE current_state = $1
		ORDER BY created_at DESC
		LIMIT $2
	`

	rows, err := r.db.QueryContext(ctx, query, string(state), limit)
	if err != nil {
		return nil, fmt.Errorf("failed to query records by state: %w", err)
	}

	return r.collectRecords(ctx, rows)
}

// ListTimedOut returns awaiting-human records whose deadline has passed.
func (r *Repository) ListTimedOut(ctx context.Context, now time.Time) ([]*models.WorkflowRecord, error) {
	query := `
		SELECT ` + recordColumns + `
		FROM workflow_records
		WHERE current_state = $1
		  AND timeout_at IS NOT NULL
		  AND timeout_at <= $2
	`

	rows, err := r.db.QueryContext(ctx, query, string(models.StateAwaitingHuman), now)
	if err != nil {
		return nil, fmt.Errorf("failed to query timed out records: %w", err)
	}

	return r.collectRecords(ctx, rows)
}

// Exists reports whether a record exists for the message ID.
func (r *Repository) Exists(ctx context.Context, messageID string) (bool, error) {
	var exists bool

	err := r.db.QueryRowContext(ctx,
		"SELECT EXISTS (SELECT 1 FROM workflow_records WHERE message_id = $1)",
		messageID,
	).Scan(&exists)
	if err != nil {
		return false, persistence.NewWorkflowError("Exists", messageID, err)
	}

	return exists, nil
}

// Statistics aggregates counts per state plus replies sent since the start
// of the current UTC day.
func (r *Repository) Statistics(ctx context.Context) (*models.WorkflowStatistics, error) {
	stats := &models.WorkflowStatistics{
		ByState: make(map[models.WorkflowState]int64, len(models.AllStates)),
	}

	for _, state := range models.AllStates {
		stats.ByState[state] = 0
	}

	rows, err := r.db.QueryContext(ctx,
		"SELECT current_state, COUNT(*) FROM workflow_records GROUP BY current_state")
	if err != nil {
		return nil, fmt.Errorf("failed to query state counts: %w", err)
	}

	defer func() {
		err := rows.Close()
		if err != nil {
			r.logger.ErrorContext(ctx, "failed to close rows", "error", err)
		}
	}()

	for rows.Next() {
		var (
			state models.WorkflowState
			count int64
		)

		if err := rows.Scan(&state, &count); err != nil {
			return nil, fmt.Errorf("failed to scan state count: %w", err)
		}

		stats.ByState[state] = count
		stats.TotalWorkflows += count
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating state counts: %w", err)
	}

	dayStart := time.Now().UTC().Truncate(24 * time.Hour)

	err = r.db.QueryRowContext(ctx, `
		SELECT COUNT(*)
		FROM workflow_records
		WHERE current_state = $1 AND reply_sent_at >= $2
	`, string(models.StateReplySent), dayStart).Scan(&stats.CompletedToday)
	if err != nil {
		return nil, fmt.Errorf("failed to count completed records: %w", err)
	}

	return stats, nil
}

// AuditLog returns the transition entries for a record, oldest first.
func (r *Repository) AuditLog(ctx context.Context, messageID string) ([]*models.TransitionLogEntry, error) {
	exists, err := r.Exists(ctx, messageID)
	if err != nil {
		return nil, err
	}

	if !exists {
		return nil, persistence.NewWorkflowError("AuditLog", messageID, persistence.ErrWorkflowNotFound)
	}

	query := `
		SELECT id, message_id, from_state, to_state, reason, error_detail, created_at
		FROM workflow_transitions
		WHERE message_id = $1
		ORDER BY id ASC
	`

	rows, err := r.db.QueryContext(ctx, query, messageID)
	if err != nil {
		return nil, persistence.NewWorkflowError("AuditLog", messageID, fmt.Errorf("failed to query transitions: %w", err))
	}

	defer func() {
		err := rows.Close()
		if err != nil {
			r.logger.ErrorContext(ctx, "failed to close rows", "error", err)
		}
	}()

	entries := make([]*models.TransitionLogEntry, 0)

	for rows.Next() {
		var (
			entry     models.TransitionLogEntry
			fromState sql.NullString
		)

		err := rows.Scan(&entry.ID, &entry.MessageID, &fromState, &entry.ToState,
			&entry.Reason, &entry.ErrorDetail, &entry.CreatedAt)
		if err != nil {
			return nil, persistence.NewWorkflowError("AuditLog", messageID, fmt.Errorf("failed to scan transition: %w", err))
		}

		if fromState.Valid {
			from := models.WorkflowState(fromState.String)
			entry.FromState = &from
		}

		entries = append(entries, &entry)
	}

	if err := rows.Err(); err != nil {
		return nil, persistence.NewWorkflowError("AuditLog", messageID, fmt.Errorf("error iterating transitions: %w", err))
	}

	return entries, nil
}

func (r *Repository) insertTransition(ctx context.Context, tx *sql.Tx, messageID string, from *models.WorkflowState, to models.WorkflowState, reason, errorDetail string) error {
	var fromState sql.NullString
	if from != nil {
		fromState = sql.NullString{String: string(*from), Valid: true}
	}

	_, err := tx.ExecContext(ctx, `
		INSERT INTO workflow_transitions (message_id, from_state, to_state, reason, error_detail, created_at)
		VALUES ($1, $2, $3, $4, $5, $6)
	`, messageID, fromState, string(to), reason, errorDetail, time.Now().UTC())
	if err != nil {
		return fmt.Errorf("failed to insert transition: %w", err)
	}

	return nil
}

// buildUpdateQuery turns a sparse patch into an UPDATE statement. The
// returned args start at placeholder $2; $1 is reserved for the message ID.
func buildUpdateQuery(patch models.WorkflowPatch) (string, []any) {
	clauses := []string{"updated_at = NOW()"}
	args := make([]any, 0, 8)

	add := func(column string, value any) {
		args = append(args, value)
		clauses = append(clauses, fmt.Sprintf("%s = $%d", column, len(args)+1))
	}

	if patch.CurrentState != nil {
		add("current_state", string(*patch.CurrentState))
	}

	if patch.PreviousState != nil {
		add("previous_state", string(*patch.PreviousState))
	}

	if patch.AIReplyText != nil {
		add("ai_reply_text", *patch.AIReplyText)
	}

	if patch.AIReplyGeneratedAt != nil {
		add("ai_reply_generated_at", *patch.AIReplyGeneratedAt)
	}

	if patch.SMSMessageID != nil {
		add("sms_message_id", *patch.SMSMessageID)
	}

	if patch.SMSSentAt != nil {
		add("sms_sent_at", *patch.SMSSentAt)
	}

	if patch.SMSPhoneNumber != nil {
		add("sms_phone_number", *patch.SMSPhoneNumber)
	}

	if patch.UserCommand != nil {
		add("user_command", *patch.UserCommand)
	}

	if patch.UserEditInstructions != nil {
		add("user_edit_instructions", *patch.UserEditInstructions)
	}

	if patch.UserRespondedAt != nil {
		add("user_responded_at", *patch.UserRespondedAt)
	}

	if patch.EditIteration != nil {
		add("edit_iteration", *patch.EditIteration)
	}

	if patch.ReplySentAt != nil {
		add("reply_sent_at", *patch.ReplySentAt)
	}

	if patch.ReplyMessageID != nil {
		add("reply_message_id", *patch.ReplyMessageID)
	}

	if patch.ErrorMessage != nil {
		add("error_message", *patch.ErrorMessage)
	}

	if patch.RetryCount != nil {
		add("retry_count", *patch.RetryCount)
	}

	if patch.TimeoutAt != nil {
		add("timeout_at", *patch.TimeoutAt)
	}

	query := "UPDATE workflow_records SET " + strings.Join(clauses, ", ") + " WHERE message_id = $1"

	return query, args
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanRecord(row rowScanner) (*models.WorkflowRecord, error) {
	var (
		record             models.WorkflowRecord
		aiReplyGeneratedAt sql.NullTime
		smsSentAt          sql.NullTime
		userRespondedAt    sql.NullTime
		replySentAt        sql.NullTime
		timeoutAt          sql.NullTime
	)

	err := row.Scan(
		&record.MessageID,
		&record.EmailSubject,
		&record.EmailFrom,
		&record.EmailTo,
		&record.EmailBodyPreview,
		&record.CurrentState,
		&record.PreviousState,
		&record.AIReplyText,
		&aiReplyGeneratedAt,
		&record.SMSMessageID,
		&smsSentAt,
		&record.SMSPhoneNumber,
		&record.UserCommand,
		&record.UserEditInstructions,
		&userRespondedAt,
		&record.EditIteration,
		&replySentAt,
		&record.ReplyMessageID,
		&record.ErrorMessage,
		&record.RetryCount,
		&record.CreatedAt,
		&record.UpdatedAt,
		&timeoutAt,
	)
	if err != nil {
		return nil, err
	}

	record.AIReplyGeneratedAt = nullableTime(aiReplyGeneratedAt)
	record.SMSSentAt = nullableTime(smsSentAt)
	record.UserRespondedAt = nullableTime(userRespondedAt)
	record.ReplySentAt = nullableTime(replySentAt)
	record.TimeoutAt = nullableTime(timeoutAt)

	return &record, nil
}

func nullableTime(t sql.NullTime) *time.Time {
	if !t.Valid {
		return nil
	}

	value := t.Time

	return &value
}

func (r *Repository) collectRecords(ctx context.Context, rows *sql.Rows) ([]*models.WorkflowRecord, error) {
	defer func() {
		err := rows.Close()
		if err != nil {
			r.logger.ErrorContext(ctx, "failed to close rows", "error", err)
		}
	}()

	records := make([]*models.WorkflowRecord, 0)

	for rows.Next() {
		record, err := scanRecord(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan record: %w", err)
		}

		records = append(records, record)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating records: %w", err)
	}

	return records, nil
}
