// Package file provides a file-system backed workflow store. Records live as
// one JSON document per message ID, transition logs as one JSON array per
// message ID. It is the default store for single-host, home-scale deployments.
package file

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"net/url"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/JackBeStrong/email-auto-reply/pkg/models"
	"github.com/JackBeStrong/email-auto-reply/pkg/persistence"
)

const (
	recordsDir     = "workflows"
	transitionsDir = "transitions"

	defaultListLimit = 100
)

// Repository implements persistence.Repository on the local file system. A
// single mutex serializes every mutation, which also makes the record update
// plus transition append atomic with respect to concurrent entry points.
type Repository struct {
	root string
	mu   sync.Mutex
}

// NewRepository creates a file store rooted at the given path. A "file://"
// prefix on the path is accepted and stripped.
func NewRepository(root string) (*Repository, error) {
	cleanRoot := strings.TrimPrefix(root, "file://")

	for _, dir := range []string{recordsDir, transitionsDir} {
		if err := os.MkdirAll(filepath.Join(cleanRoot, dir), 0o755); err != nil {
			return nil, fmt.Errorf("failed to create store directory: %w", err)
		}
	}

	return &Repository{root: cleanRoot}, nil
}

func (r *Repository) recordPath(messageID string) string {
	return filepath.Join(r.root, recordsDir, url.QueryEscape(messageID)+".json")
}

func (r *Repository) transitionsPath(messageID string) string {
	return filepath.Join(r.root, transitionsDir, url.QueryEscape(messageID)+".json")
}

// Create inserts a new record and logs the creation transition.
func (r *Repository) Create(ctx context.Context, record *models.WorkflowRecord) (*models.WorkflowRecord, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if record.MessageID == "" {
		return nil, persistence.NewWorkflowError("Create", record.MessageID, errors.New("message ID is required"))
	}

	if _, err := os.Stat(r.recordPath(record.MessageID)); err == nil {
		return nil, persistence.NewWorkflowError("Create", record.MessageID, persistence.ErrWorkflowAlreadyExists)
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

	if err := r.writeRecord(record); err != nil {
		return nil, persistence.NewWorkflowError("Create", record.MessageID, err)
	}

	err := r.appendTransition(record.MessageID, nil, record.CurrentState, "workflow created", "")
	if err != nil {
		return nil, persistence.NewWorkflowError("Create", record.MessageID, err)
	}

	return record, nil
}

// Get returns the record for a message ID.
func (r *Repository) Get(ctx context.Context, messageID string) (*models.WorkflowRecord, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	return r.get(messageID)
}

func (r *Repository) get(messageID string) (*models.WorkflowRecord, error) {
	data, err := os.ReadFile(r.recordPath(messageID))
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil, persistence.NewWorkflowError("Get", messageID, persistence.ErrWorkflowNotFound)
		}

		return nil, persistence.NewWorkflowError("Get", messageID, err)
	}

	var record models.WorkflowRecord
	if err := json.Unmarshal(data, &record); err != nil {
		return nil, persistence.NewWorkflowError("Get", messageID, fmt.Errorf("corrupt record: %w", err))
	}

	return &record, nil
}

// Update applies a sparse patch and appends a transition entry when the
// current state actually changes.
func (r *Repository) Update(ctx context.Context, messageID string, patch models.WorkflowPatch) (*models.WorkflowRecord, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	record, err := r.get(messageID)
	if err != nil {
		return nil, err
	}

	if patch.CurrentState != nil && !patch.CurrentState.IsValid() {
		return nil, persistence.NewWorkflowError("Update", messageID, persistence.ErrInvalidState)
	}

	oldState := record.CurrentState
	patch.Apply(record)
	record.UpdatedAt = time.Now().UTC()

	if err := r.writeRecord(record); err != nil {
		return nil, persistence.NewWorkflowError("Update", messageID, err)
	}

	if patch.CurrentState != nil && *patch.CurrentState != oldState {
		reason := patch.TransitionReason
		if reason == "" {
			reason = "state transition"
		}

		from := oldState

		err := r.appendTransition(messageID, &from, *patch.CurrentState, reason, patch.TransitionError)
		if err != nil {
			return nil, persistence.NewWorkflowError("Update", messageID, err)
		}
	}

	return record, nil
}

// ListByState returns records in the given state, newest created first.
func (r *Repository) ListByState(ctx context.Context, state models.WorkflowState, limit int) ([]*models.WorkflowRecord, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if limit <= 0 {
		limit = defaultListLimit
	}

	records, err := r.loadAll()
	if err != nil {
		return nil, err
	}

	matched := make([]*models.WorkflowRecord, 0)

	for _, record := range records {
		if record.CurrentState == state {
			matched = append(matched, record)
		}
	}

	sort.Slice(matched, func(i, j int) bool {
		return matched[i].CreatedAt.After(matched[j].CreatedAt)
	})

	if len(matched) > limit {
		matched = matched[:limit]
	}

	return matched, nil
}

// ListTimedOut returns awaiting-human records whose deadline has passed.
func (r *Repository) ListTimedOut(ctx context.Context, now time.Time) ([]*models.WorkflowRecord, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	records, err := r.loadAll()
	if err != nil {
		return nil, err
	}

	expired := make([]*models.WorkflowRecord, 0)

	for _, record := range records {
		if record.CurrentState != models.StateAwaitingHuman || record.TimeoutAt == nil {
			continue
		}

		if !record.TimeoutAt.After(now) {
			expired = append(expired, record)
		}
	}

	return expired, nil
}

// Exists reports whether a record exists for the message ID.
func (r *Repository) Exists(ctx context.Context, messageID string) (bool, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	_, err := os.Stat(r.recordPath(messageID))
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return false, nil
		}

		return false, persistence.NewWorkflowError("Exists", messageID, err)
	}

	return true, nil
}

// Statistics aggregates counts per state plus replies sent since the start
// of the current UTC day.
func (r *Repository) Statistics(ctx context.Context) (*models.WorkflowStatistics, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	records, err := r.loadAll()
	if err != nil {
		return nil, err
	}

	stats := &models.WorkflowStatistics{
		ByState: make(map[models.WorkflowState]int64, len(models.AllStates)),
	}

	for _, state := range models.AllStates {
		stats.ByState[state] = 0
	}

	dayStart := time.Now().UTC().Truncate(24 * time.Hour)

	for _, record := range records {
		stats.TotalWorkflows++
		stats.ByState[record.CurrentState]++

		if record.CurrentState == models.StateReplySent &&
			record.ReplySentAt != nil && !record.ReplySentAt.Before(dayStart) {
			stats.CompletedToday++
		}
	}

	return stats, nil
}

// AuditLog returns the transition entries for a record, oldest first.
func (r *Repository) AuditLog(ctx context.Context, messageID string) ([]*models.TransitionLogEntry, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, err := r.get(messageID); err != nil {
		return nil, err
	}

	entries, err := r.readTransitions(messageID)
	if err != nil {
		return nil, persistence.NewWorkflowError("AuditLog", messageID, err)
	}

	return entries, nil
}

// HealthCheck verifies the store root is reachable.
func (r *Repository) HealthCheck(ctx context.Context) error {
	if _, err := os.Stat(r.root); err != nil {
		return fmt.Errorf("store root unavailable: %w", err)
	}

	return nil
}

// Close is a no-op for the file store.
func (r *Repository) Close(ctx context.Context) error {
	return nil
}

func (r *Repository) writeRecord(record *models.WorkflowRecord) error {
	data, err := json.MarshalIndent(record, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to marshal record: %w", err)
	}

	if err := os.WriteFile(r.recordPath(record.MessageID), data, 0o644); err != nil {
		return fmt.Errorf("failed to write record: %w", err)
	}

	return nil
}

func (r *Repository) readTransitions(messageID string) ([]*models.TransitionLogEntry, error) {
	data, err := os.ReadFile(r.transitionsPath(messageID))
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return []*models.TransitionLogEntry{}, nil
		}

		return nil, fmt.Errorf("failed to read transitions: %w", err)
	}

	var entries []*models.TransitionLogEntry
	if err := json.Unmarshal(data, &entries); err != nil {
		return nil, fmt.Errorf("corrupt transition log: %w", err)
	}

	return entries, nil
}

func (r *Repository) appendTransition(messageID string, from *models.WorkflowState, to models.WorkflowState, reason, errorDetail string) error {
	entries, err := r.readTransitions(messageID)
	if err != nil {
		return err
	}

	entries = append(entries, &models.TransitionLogEntry{
		ID:          int64(len(entries) + 1),
		MessageID:   messageID,
		FromState:   from,
		ToState:     to,
		Reason:      reason,
		ErrorDetail: errorDetail,
		CreatedAt:   time.Now().UTC(),
	})

	data, err := json.MarshalIndent(entries, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to marshal transitions: %w", err)
	}

	if err := os.WriteFile(r.transitionsPath(messageID), data, 0o644); err != nil {
		return fmt.Errorf("failed to write transitions: %w", err)
	}

	return nil
}

func (r *Repository) loadAll() ([]*models.WorkflowRecord, error) {
	root := os.DirFS(filepath.Join(r.root, recordsDir))

	jsonFiles, err := fs.Glob(root, "*.json")
	if err != nil {
		return nil, fmt.Errorf("failed to list record files: %w", err)
	}

	records := make([]*models.WorkflowRecord, 0, len(jsonFiles))

	for _, name := range jsonFiles {
		data, err := fs.ReadFile(root, name)
		if err != nil {
			return nil, fmt.Errorf("failed to read record file %s: %w", name, err)
		}

		var record models.WorkflowRecord
		if err := json.Unmarshal(data, &record); err != nil {
			return nil, fmt.Errorf("corrupt record file %s: %w", name, err)
		}

		records = append(records, &record)
	}

	return records, nil
}
