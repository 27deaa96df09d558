package models_test

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"

	"github.com/JackBeStrong/email-auto-reply/pkg/models"
)

func TestWorkflowState_IsValid(t *testing.T) {
	for _, state := range models.AllStates {
		assert.True(t, state.IsValid(), "state %q should be valid", state)
	}

	assert.False(t, models.WorkflowState("").IsValid())
	assert.False(t, models.WorkflowState("sleeping").IsValid())
	assert.False(t, models.WorkflowState("PENDING").IsValid())
}

func TestWorkflowState_IsTerminal(t *testing.T) {
	terminal := []models.WorkflowState{
		models.StateReplySent,
		models.StateUserIgnored,
		models.StateTimeout,
		models.StateFailed,
	}

	for _, state := range terminal {
		assert.True(t, state.IsTerminal(), "state %q should be terminal", state)
	}

	active := []models.WorkflowState{
		models.StatePending,
		models.StateAIGenerating,
		models.StateAIGenerated,
		models.StateSMSSending,
		models.StateAwaitingHuman,
	}

	for _, state := range active {
		assert.False(t, state.IsTerminal(), "state %q should not be terminal", state)
	}
}

func TestWorkflowPatch_Apply_SparseFields(t *testing.T) {
	record := &models.WorkflowRecord{
		MessageID:    "m1",
		CurrentState: models.StateAIGenerated,
		AIReplyText:  "original draft",
		RetryCount:   2,
	}

	patch := models.WorkflowPatch{
		CurrentState: models.StatePtr(models.StateSMSSending),
	}
	patch.Apply(record)

	assert.Equal(t, models.StateSMSSending, record.CurrentState)
	assert.Equal(t, "original draft", record.AIReplyText)
	assert.Equal(t, 2, record.RetryCount)
}

func TestWorkflowPatch_Apply_ZeroValueResets(t *testing.T) {
	record := &models.WorkflowRecord{
		MessageID:    "m1",
		CurrentState: models.StateFailed,
		ErrorMessage: "oracle unavailable (max retries exceeded)",
		RetryCount:   3,
	}

	patch := models.WorkflowPatch{
		CurrentState: models.StatePtr(models.StatePending),
		ErrorMessage: models.StringPtr(""),
		RetryCount:   models.IntPtr(0),
	}
	patch.Apply(record)

	assert.Equal(t, models.StatePending, record.CurrentState)
	assert.Empty(t, record.ErrorMessage)
	assert.Zero(t, record.RetryCount)
}

func TestWorkflowPatch_Apply_CopiesTimePointers(t *testing.T) {
	deadline := time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)
	record := &models.WorkflowRecord{MessageID: "m1"}

	patch := models.WorkflowPatch{TimeoutAt: &deadline}
	patch.Apply(record)

	deadline = deadline.Add(time.Hour)

	assert.Equal(t, time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC), *record.TimeoutAt)
}

func TestWorkflowPatch_Apply_EmptyPatchIsNoOp(t *testing.T) {
	now := time.Now().UTC()
	record := &models.WorkflowRecord{
		MessageID:    "m1",
		CurrentState: models.StateAwaitingHuman,
		AIReplyText:  "draft",
		TimeoutAt:    models.TimePtr(now),
	}

	models.WorkflowPatch{}.Apply(record)

	assert.Equal(t, models.StateAwaitingHuman, record.CurrentState)
	assert.Equal(t, "draft", record.AIReplyText)
	assert.True(t, record.TimeoutAt.Equal(now))
}
