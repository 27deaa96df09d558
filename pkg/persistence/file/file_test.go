package file

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/JackBeStrong/email-auto-reply/pkg/models"
	"github.com/JackBeStrong/email-auto-reply/pkg/persistence"
)

func newTestRepository(t *testing.T) *Repository {
	t.Helper()

	repo, err := NewRepository(t.TempDir())
	require.NoError(t, err)

	return repo
}

func newTestRecord(messageID string) *models.WorkflowRecord {
	return &models.WorkflowRecord{
		MessageID:        messageID,
		EmailSubject:     "Meeting tomorrow?",
		EmailFrom:        "alice@example.com",
		EmailTo:          "me@example.com",
		EmailBodyPreview: "Are you free tomorrow at 10?",
		CurrentState:     models.StatePending,
	}
}

func TestCreateAndGet(t *testing.T) {
	ctx := context.Background()
	repo := newTestRepository(t)

	created, err := repo.Create(ctx, newTestRecord("<msg-1@example.com>"))
	require.NoError(t, err)
	assert.False(t, created.CreatedAt.IsZero())
	assert.Equal(t, created.CreatedAt, created.UpdatedAt)

	got, err := repo.Get(ctx, "<msg-1@example.com>")
	require.NoError(t, err)
	assert.Equal(t, "Meeting tomorrow?", got.EmailSubject)
	assert.Equal(t, models.StatePending, got.CurrentState)
}

func TestCreate_Duplicate(t *testing.T) {
	ctx := context.Background()
	repo := newTestRepository(t)

	_, err := repo.Create(ctx, newTestRecord("<msg-1@example.com>"))
	require.NoError(t, err)

	_, err = repo.Create(ctx, newTestRecord("<msg-1@example.com>"))
	assert.True(t, persistence.IsWorkflowAlreadyExists(err))
}

func TestCreate_LogsCreationTransition(t *testing.T) {
	ctx := context.Background()
	repo := newTestRepository(t)

	_, err := repo.Create(ctx, newTestRecord("<msg-1@example.com>"))
	require.NoError(t, err)

	entries, err := repo.AuditLog(ctx, "<msg-1@example.com>")
	require.NoError(t, err)
	require.Len(t, entries, 1)
	assert.Nil(t, entries[0].FromState)
	assert.Equal(t, models.StatePending, entries[0].ToState)
}

func TestGet_NotFound(t *testing.T) {
	repo := newTestRepository(t)

	_, err := repo.Get(context.Background(), "<missing@example.com>")
	assert.True(t, persistence.IsWorkflowNotFound(err))
}

func TestUpdate_StateChangeLogsTransition(t *testing.T) {
	ctx := context.Background()
	repo := newTestRepository(t)

	_, err := repo.Create(ctx, newTestRecord("<msg-1@example.com>"))
	require.NoError(t, err)

	updated, err := repo.Update(ctx, "<msg-1@example.com>", models.WorkflowPatch{
		CurrentState:     models.StatePtr(models.StateAIGenerating),
		TransitionReason: "draft generation started",
	})
	require.NoError(t, err)
	assert.Equal(t, models.StateAIGenerating, updated.CurrentState)

	entries, err := repo.AuditLog(ctx, "<msg-1@example.com>")
	require.NoError(t, err)
	require.Len(t, entries, 2)

	last := entries[1]
	require.NotNil(t, last.FromState)
	assert.Equal(t, models.StatePending, *last.FromState)
	assert.Equal(t, models.StateAIGenerating, last.ToState)
	assert.Equal(t, "draft generation started", last.Reason)
}

func TestUpdate_SameStateDoesNotLog(t *testing.T) {
	ctx := context.Background()
	repo := newTestRepository(t)

	_, err := repo.Create(ctx, newTestRecord("<msg-1@example.com>"))
	require.NoError(t, err)

	_, err = repo.Update(ctx, "<msg-1@example.com>", models.WorkflowPatch{
		CurrentState: models.StatePtr(models.StatePending),
		RetryCount:   models.IntPtr(1),
	})
	require.NoError(t, err)

	entries, err := repo.AuditLog(ctx, "<msg-1@example.com>")
	require.NoError(t, err)
	assert.Len(t, entries, 1)
}

func TestUpdate_SparsePatchLeavesOtherFields(t *testing.T) {
	ctx := context.Background()
	repo := newTestRepository(t)

	_, err := repo.Create(ctx, newTestRecord("<msg-1@example.com>"))
	require.NoError(t, err)

	updated, err := repo.Update(ctx, "<msg-1@example.com>", models.WorkflowPatch{
		AIReplyText: models.StringPtr("Sure, 10 works for me."),
	})
	require.NoError(t, err)

	assert.Equal(t, "Sure, 10 works for me.", updated.AIReplyText)
	assert.Equal(t, "Meeting tomorrow?", updated.EmailSubject)
	assert.Equal(t, models.StatePending, updated.CurrentState)
}

func TestUpdate_InvalidState(t *testing.T) {
	ctx := context.Background()
	repo := newTestRepository(t)

	_, err := repo.Create(ctx, newTestRecord("<msg-1@example.com>"))
	require.NoError(t, err)

	_, err = repo.Update(ctx, "<msg-1@example.com>", models.WorkflowPatch{
		CurrentState: models.StatePtr(models.WorkflowState("exploded")),
	})
	assert.True(t, persistence.IsInvalidState(err))
}

func TestListByState(t *testing.T) {
	ctx := context.Background()
	repo := newTestRepository(t)

	for _, id := range []string{"<a@example.com>", "<b@example.com>", "<c@example.com>"} {
		_, err := repo.Create(ctx, newTestRecord(id))
		require.NoError(t, err)
	}

	_, err := repo.Update(ctx, "<b@example.com>", models.WorkflowPatch{
		CurrentState: models.StatePtr(models.StateFailed),
	})
	require.NoError(t, err)

	pending, err := repo.ListByState(ctx, models.StatePending, 10)
	require.NoError(t, err)
	assert.Len(t, pending, 2)

	failed, err := repo.ListByState(ctx, models.StateFailed, 10)
	require.NoError(t, err)
	require.Len(t, failed, 1)
	assert.Equal(t, "<b@example.com>", failed[0].MessageID)

	limited, err := repo.ListByState(ctx, models.StatePending, 1)
	require.NoError(t, err)
	assert.Len(t, limited, 1)
}

func TestListTimedOut(t *testing.T) {
	ctx := context.Background()
	repo := newTestRepository(t)
	now := time.Now().UTC()

	_, err := repo.Create(ctx, newTestRecord("<expired@example.com>"))
	require.NoError(t, err)
	_, err = repo.Update(ctx, "<expired@example.com>", models.WorkflowPatch{
		CurrentState: models.StatePtr(models.StateAwaitingHuman),
		TimeoutAt:    models.TimePtr(now.Add(-time.Hour)),
	})
	require.NoError(t, err)

	_, err = repo.Create(ctx, newTestRecord("<fresh@example.com>"))
	require.NoError(t, err)
	_, err = repo.Update(ctx, "<fresh@example.com>", models.WorkflowPatch{
		CurrentState: models.StatePtr(models.StateAwaitingHuman),
		TimeoutAt:    models.TimePtr(now.Add(time.Hour)),
	})
	require.NoError(t, err)

	_, err = repo.Create(ctx, newTestRecord("<pending@example.com>"))
	require.NoError(t, err)

	expired, err := repo.ListTimedOut(ctx, now)
	require.NoError(t, err)
	require.Len(t, expired, 1)
	assert.Equal(t, "<expired@example.com>", expired[0].MessageID)
}

func TestExists(t *testing.T) {
	ctx := context.Background()
	repo := newTestRepository(t)

	exists, err := repo.Exists(ctx, "<msg-1@example.com>")
	require.NoError(t, err)
	assert.False(t, exists)

	_, err = repo.Create(ctx, newTestRecord("<msg-1@example.com>"))
	require.NoError(t, err)

	exists, err = repo.Exists(ctx, "<msg-1@example.com>")
	require.NoError(t, err)
	assert.True(t, exists)
}

func TestStatistics(t *testing.T) {
	ctx := context.Background()
	repo := newTestRepository(t)

	_, err := repo.Create(ctx, newTestRecord("<a@example.com>"))
	require.NoError(t, err)

	_, err = repo.Create(ctx, newTestRecord("<b@example.com>"))
	require.NoError(t, err)
	_, err = repo.Update(ctx, "<b@example.com>", models.WorkflowPatch{
		CurrentState: models.StatePtr(models.StateReplySent),
		ReplySentAt:  models.TimePtr(time.Now().UTC()),
	})
	require.NoError(t, err)

	stats, err := repo.Statistics(ctx)
	require.NoError(t, err)
	assert.Equal(t, int64(2), stats.TotalWorkflows)
	assert.Equal(t, int64(1), stats.ByState[models.StatePending])
	assert.Equal(t, int64(1), stats.ByState[models.StateReplySent])
	assert.Equal(t, int64(0), stats.ByState[models.StateFailed])
	assert.Equal(t, int64(1), stats.CompletedToday)
}

func TestAuditLog_NotFound(t *testing.T) {
	repo := newTestRepository(t)

	_, err := repo.AuditLog(context.Background(), "<missing@example.com>")
	assert.True(t, persistence.IsWorkflowNotFound(err))
}

// Message IDs contain characters that are not safe as file names.
func TestMessageIDsWithSpecialCharacters(t *testing.T) {
	ctx := context.Background()
	repo := newTestRepository(t)

	id := "<CABc+123/xyz=@mail.example.com>"

	_, err := repo.Create(ctx, newTestRecord(id))
	require.NoError(t, err)

	got, err := repo.Get(ctx, id)
	require.NoError(t, err)
	assert.Equal(t, id, got.MessageID)
}

func TestHealthCheck(t *testing.T) {
	repo := newTestRepository(t)
	assert.NoError(t, repo.HealthCheck(context.Background()))
}
