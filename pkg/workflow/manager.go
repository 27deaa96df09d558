// Package workflow implements the per-email state machine: polling the email
// source, drafting replies, notifying the human reviewer and acting on their
// decision.
package workflow

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"

	"github.com/JackBeStrong/email-auto-reply/pkg/clients/smsgateway"
	"github.com/JackBeStrong/email-auto-reply/pkg/command"
	"github.com/JackBeStrong/email-auto-reply/pkg/eventbus"
	"github.com/JackBeStrong/email-auto-reply/pkg/events"
	"github.com/JackBeStrong/email-auto-reply/pkg/models"
	"github.com/JackBeStrong/email-auto-reply/pkg/otelhelper"
	"github.com/JackBeStrong/email-auto-reply/pkg/persistence"
)

// Typed results for the operator endpoints.
var (
	ErrNotFailed        = errors.New("workflow is not in failed state")
	ErrNotAwaitingHuman = errors.New("workflow is not awaiting a human response")
)

// Stages that advance automatically and therefore fall under the retry
// policy.
const (
	stageGenerateReply    = "generate_reply"
	stageSendNotification = "send_notification"
	stageSendReply        = "send_reply"
)

const bodyPreviewLength = 200

// EmailSource serves pending emails and accepts status callbacks.
type EmailSource interface {
	PendingEmails(ctx context.Context) ([]*models.EmailDetail, error)
	EmailDetails(ctx context.Context, messageID string) (*models.EmailDetail, error)
	UpdateStatus(ctx context.Context, messageID string, status models.EmailStatus) error
}

// ReplyGenerator drafts replies, optionally steered by edit instructions.
type ReplyGenerator interface {
	GenerateReply(ctx context.Context, messageID, editInstructions string) (string, error)
}

// Notifier delivers text messages to the reviewer.
type Notifier interface {
	SendSMS(ctx context.Context, phoneNumber, message string) (*models.NotificationResult, error)
}

// MailTransport sends the approved reply to the original sender.
type MailTransport interface {
	SendReply(ctx context.Context, to, subject, body, inReplyTo, references string) (string, error)
}

// Config holds the manager's tunables. Zero values fall back to the
// defaults below.
type Config struct {
	PhoneNumber        string
	ResponseTimeout    time.Duration
	MaxEditIterations  int
	MaxRetryAttempts   int
	MaxEmailsPerPoll   int
	RetryBackoffBase   time.Duration
	NotificationFormat smsgateway.Format
}

func (c *Config) applyDefaults() {
	if c.ResponseTimeout <= 0 {
		c.ResponseTimeout = 24 * time.Hour
	}

	if c.MaxEditIterations <= 0 {
		c.MaxEditIterations = 10
	}

	if c.MaxRetryAttempts <= 0 {
		c.MaxRetryAttempts = 3
	}

	if c.MaxEmailsPerPoll <= 0 {
		c.MaxEmailsPerPoll = 5
	}

	if c.RetryBackoffBase < 0 {
		c.RetryBackoffBase = 0
	} else if c.RetryBackoffBase == 0 {
		c.RetryBackoffBase = 5 * time.Second
	}

	if c.NotificationFormat == "" {
		c.NotificationFormat = smsgateway.FormatCondensed
	}
}

// Manager drives every workflow through its lifecycle. All three entry
// points (poll loop, timeout scan, inbound handler) serialize per message ID
// through keyed locks, so a human approve cannot race a timeout scan into a
// double send.
type Manager struct {
	store     persistence.Repository
	source    EmailSource
	generator ReplyGenerator
	notifier  Notifier
	transport MailTransport
	eventBus  eventbus.EventBus
	tracer    trace.Tracer
	logger    *slog.Logger
	config    Config

	locksMu sync.Mutex
	locks   map[string]*sync.Mutex
}

// NewManager creates a workflow manager. The event bus and tracer are
// optional; pass nil to disable lifecycle events or tracing.
func NewManager(
	store persistence.Repository,
	source EmailSource,
	generator ReplyGenerator,
	notifier Notifier,
	transport MailTransport,
	bus eventbus.EventBus,
	tracer trace.Tracer,
	logger *slog.Logger,
	config Config,
) (*Manager, error) {
	if config.PhoneNumber == "" {
		return nil, errors.New("reviewer phone number is required")
	}

	config.applyDefaults()

	return &Manager{
		store:     store,
		source:    source,
		generator: generator,
		notifier:  notifier,
		transport: transport,
		eventBus:  bus,
		tracer:    tracer,
		logger:    logger.With("module", "workflow-manager"),
		config:    config,
	}, nil
}

func (m *Manager) lockFor(messageID string) *sync.Mutex {
	m.locksMu.Lock()
	defer m.locksMu.Unlock()

	if m.locks == nil {
		m.locks = make(map[string]*sync.Mutex)
	}

	lock, ok := m.locks[messageID]
	if !ok {
		lock = &sync.Mutex{}
		m.locks[messageID] = lock
	}

	return lock
}

// ProcessPendingEmails polls the email source and starts a workflow for each
// email that does not have one yet. New workflows per cycle are capped so a
// burst of mail cannot flood the reviewer's phone; the remainder stays
// pending at the source for the next cycle. Each new workflow advances in
// its own goroutine, so one workflow's retry backoff cannot hold up the
// others; the poll returns once all of them have settled.
func (m *Manager) ProcessPendingEmails(ctx context.Context) error {
	ctx, span := m.startSpan(ctx, "workflow.process_pending_emails")
	defer span.End()

	pending, err := m.source.PendingEmails(ctx)
	if err != nil {
		otelhelper.SetError(span, err)

		return fmt.Errorf("failed to poll pending emails: %w", err)
	}

	if len(pending) == 0 {
		return nil
	}

	m.logger.InfoContext(ctx, "Found pending emails", "count", len(pending))

	started := 0

	var wg sync.WaitGroup

	for _, email := range pending {
		exists, err := m.store.Exists(ctx, email.MessageID)
		if err != nil {
			m.logger.ErrorContext(ctx, "Failed to check for existing workflow",
				"message_id", email.MessageID, "error", err)

			continue
		}

		if exists {
			continue
		}

		if started >= m.config.MaxEmailsPerPoll {
			m.logger.WarnContext(ctx, "Reached max emails per poll, deferring remaining emails",
				"limit", m.config.MaxEmailsPerPoll)

			break
		}

		wg.Add(1)

		go func(email *models.EmailDetail) {
			defer wg.Done()

			m.StartWorkflow(ctx, email)
		}(email)

		started++
	}

	wg.Wait()

	return nil
}

// StartWorkflow creates the record for a new email and advances it through
// draft generation. Duplicate creation is an idempotent no-op.
func (m *Manager) StartWorkflow(ctx context.Context, email *models.EmailDetail) {
	lock := m.lockFor(email.MessageID)
	lock.Lock()
	defer lock.Unlock()

	m.logger.InfoContext(ctx, "Starting workflow", "message_id", email.MessageID)

	record := &models.WorkflowRecord{
		MessageID:        email.MessageID,
		EmailSubject:     email.Subject,
		EmailFrom:        email.FromAddress,
		EmailTo:          strings.Join(email.ToAddresses, ", "),
		EmailBodyPreview: preview(email.BodyText),
		CurrentState:     models.StatePending,
	}

	_, err := m.store.Create(ctx, record)
	if err != nil {
		if persistence.IsWorkflowAlreadyExists(err) {
			m.logger.InfoContext(ctx, "Workflow already exists", "message_id", email.MessageID)

			return
		}

		m.logger.ErrorContext(ctx, "Failed to create workflow",
			"message_id", email.MessageID, "error", err)

		return
	}

	m.publishEvent(ctx, email.MessageID, events.WorkflowCreated{
		BaseEvent:    m.newBaseEvent(events.WorkflowCreatedEvent, email.MessageID),
		EmailSubject: email.Subject,
		EmailFrom:    email.FromAddress,
	})

	if err := m.source.UpdateStatus(ctx, email.MessageID, models.EmailStatusOrchestrating); err != nil {
		m.logger.ErrorContext(ctx, "Failed to report orchestrating status",
			"message_id", email.MessageID, "error", err)
	}

	m.generateReply(ctx, email.MessageID, "")
}

// generateReply calls the reply generator and advances to ai_generated, then
// on to the reviewer notification. Edit instructions are present when the
// workflow cycled back from awaiting_human.
func (m *Manager) generateReply(ctx context.Context, messageID, editInstructions string) {
	previous := models.StatePending
	if editInstructions != "" {
		previous = models.StateAwaitingHuman
	}

	_, err := m.store.Update(ctx, messageID, models.WorkflowPatch{
		CurrentState:     models.StatePtr(models.StateAIGenerating),
		PreviousState:    models.StatePtr(previous),
		TransitionReason: "draft generation started",
	})
	if err != nil {
		m.logger.ErrorContext(ctx, "Failed to enter ai_generating",
			"message_id", messageID, "error", err)

		return
	}

	m.publishStateChanged(ctx, messageID, string(previous), string(models.StateAIGenerating), "draft generation started")

	replyText, err := m.generator.GenerateReply(ctx, messageID, editInstructions)
	if err != nil {
		m.handleStageError(ctx, messageID, stageGenerateReply, err)

		return
	}

	_, err = m.store.Update(ctx, messageID, models.WorkflowPatch{
		CurrentState:       models.StatePtr(models.StateAIGenerated),
		AIReplyText:        models.StringPtr(replyText),
		AIReplyGeneratedAt: models.TimePtr(time.Now().UTC()),
		TransitionReason:   "draft generated",
	})
	if err != nil {
		m.logger.ErrorContext(ctx, "Failed to store generated draft",
			"message_id", messageID, "error", err)

		return
	}

	m.publishStateChanged(ctx, messageID,
		string(models.StateAIGenerating), string(models.StateAIGenerated), "draft generated")

	m.sendNotification(ctx, messageID)
}

// sendNotification texts the draft to the reviewer and parks the workflow in
// awaiting_human. The response deadline is set on the first arrival only, so
// edit cycles do not extend it.
func (m *Manager) sendNotification(ctx context.Context, messageID string) {
	record, err := m.store.Get(ctx, messageID)
	if err != nil {
		m.logger.ErrorContext(ctx, "Failed to load workflow for notification",
			"message_id", messageID, "error", err)

		return
	}

	_, err = m.store.Update(ctx, messageID, models.WorkflowPatch{
		CurrentState:     models.StatePtr(models.StateSMSSending),
		TransitionReason: "notifying reviewer",
	})
	if err != nil {
		m.logger.ErrorContext(ctx, "Failed to enter sms_sending",
			"message_id", messageID, "error", err)

		return
	}

	message := smsgateway.FormatNotification(
		record.EmailFrom,
		record.EmailSubject,
		record.EmailBodyPreview,
		record.AIReplyText,
		m.config.NotificationFormat,
	)

	result, err := m.notifier.SendSMS(ctx, m.config.PhoneNumber, message)
	if err != nil {
		m.handleStageError(ctx, messageID, stageSendNotification, err)

		return
	}

	if !result.Success {
		m.handleStageError(ctx, messageID, stageSendNotification,
			fmt.Errorf("notification gateway rejected message: %s", result.Error))

		return
	}

	patch := models.WorkflowPatch{
		CurrentState:     models.StatePtr(models.StateAwaitingHuman),
		SMSMessageID:     models.StringPtr(result.MessageID),
		SMSSentAt:        models.TimePtr(time.Now().UTC()),
		SMSPhoneNumber:   models.StringPtr(m.config.PhoneNumber),
		TransitionReason: "reviewer notified",
	}

	if record.TimeoutAt == nil {
		patch.TimeoutAt = models.TimePtr(time.Now().UTC().Add(m.config.ResponseTimeout))
	}

	_, err = m.store.Update(ctx, messageID, patch)
	if err != nil {
		m.logger.ErrorContext(ctx, "Failed to enter awaiting_human",
			"message_id", messageID, "error", err)

		return
	}

	m.publishStateChanged(ctx, messageID,
		string(models.StateSMSSending), string(models.StateAwaitingHuman), "reviewer notified")

	m.logger.InfoContext(ctx, "Awaiting reviewer response", "message_id", messageID)
}

// HandleUserResponse applies one reviewer message to a workflow. Messages
// for workflows not awaiting a response are logged and dropped.
func (m *Manager) HandleUserResponse(ctx context.Context, messageID, userMessage string) error {
	lock := m.lockFor(messageID)
	lock.Lock()
	defer lock.Unlock()

	ctx, span := m.startSpan(ctx, "workflow.handle_user_response",
		attribute.String(otelhelper.MessageIDKey, messageID))
	defer span.End()

	record, err := m.store.Get(ctx, messageID)
	if err != nil {
		return fmt.Errorf("failed to load workflow: %w", err)
	}

	if record.CurrentState != models.StateAwaitingHuman {
		m.logger.WarnContext(ctx, "Workflow not awaiting a response",
			"message_id", messageID, "state", record.CurrentState)

		return nil
	}

	parsed := command.Parse(userMessage)
	span.SetAttributes(attribute.String(otelhelper.CommandTypeKey, string(parsed.Type)))

	m.logger.InfoContext(ctx, "Reviewer command received",
		"message_id", messageID, "command", parsed.Type)

	_, err = m.store.Update(ctx, messageID, models.WorkflowPatch{
		UserCommand:     models.StringPtr(string(parsed.Type)),
		UserRespondedAt: models.TimePtr(time.Now().UTC()),
	})
	if err != nil {
		return fmt.Errorf("failed to record reviewer response: %w", err)
	}

	switch parsed.Type {
	case command.TypeApprove:
		m.sendReply(ctx, messageID)
	case command.TypeEdit:
		m.handleEdit(ctx, messageID, record, parsed.EditInstructions)
	case command.TypeIgnore:
		m.ignoreEmail(ctx, messageID)
	default:
		m.notifyReviewer(ctx, "❓ Unknown command.\n"+command.HelpText())
	}

	return nil
}

// handleEdit cycles the workflow back into draft generation unless the edit
// ceiling is hit, in which case the workflow stays put and the reviewer is
// told to approve or ignore.
func (m *Manager) handleEdit(ctx context.Context, messageID string, record *models.WorkflowRecord, instructions string) {
	if record.EditIteration >= m.config.MaxEditIterations {
		m.logger.WarnContext(ctx, "Max edit iterations reached",
			"message_id", messageID, "edit_iteration", record.EditIteration)

		m.notifyReviewer(ctx, "⚠️ Max edits reached for this email. Please approve (1) or ignore (3).")

		return
	}

	_, err := m.store.Update(ctx, messageID, models.WorkflowPatch{
		EditIteration:        models.IntPtr(record.EditIteration + 1),
		UserEditInstructions: models.StringPtr(instructions),
	})
	if err != nil {
		m.logger.ErrorContext(ctx, "Failed to record edit request",
			"message_id", messageID, "error", err)

		return
	}

	m.generateReply(ctx, messageID, instructions)
}

// sendReply sends the approved draft to the original sender and closes the
// workflow.
func (m *Manager) sendReply(ctx context.Context, messageID string) {
	record, err := m.store.Get(ctx, messageID)
	if err != nil {
		m.logger.ErrorContext(ctx, "Failed to load workflow for reply",
			"message_id", messageID, "error", err)

		return
	}

	email, err := m.source.EmailDetails(ctx, messageID)
	if err != nil {
		m.handleStageError(ctx, messageID, stageSendReply, err)

		return
	}

	if email == nil {
		m.handleStageError(ctx, messageID, stageSendReply,
			fmt.Errorf("email %s no longer known to the source", messageID))

		return
	}

	replyMessageID, err := m.transport.SendReply(ctx,
		email.FromAddress, email.Subject, record.AIReplyText, email.InReplyTo, email.References)
	if err != nil {
		m.handleStageError(ctx, messageID, stageSendReply, err)

		return
	}

	_, err = m.store.Update(ctx, messageID, models.WorkflowPatch{
		CurrentState:     models.StatePtr(models.StateReplySent),
		ReplySentAt:      models.TimePtr(time.Now().UTC()),
		ReplyMessageID:   models.StringPtr(replyMessageID),
		TransitionReason: "reply approved and sent",
	})
	if err != nil {
		m.logger.ErrorContext(ctx, "Failed to enter reply_sent",
			"message_id", messageID, "error", err)

		return
	}

	m.publishStateChanged(ctx, messageID,
		string(models.StateAwaitingHuman), string(models.StateReplySent), "reply approved and sent")

	if err := m.source.UpdateStatus(ctx, messageID, models.EmailStatusSent); err != nil {
		m.logger.ErrorContext(ctx, "Failed to report sent status",
			"message_id", messageID, "error", err)
	}

	recipient, _, _ := strings.Cut(email.FromAddress, "@")
	m.notifyReviewer(ctx, "✅ Reply sent to "+recipient)

	m.logger.InfoContext(ctx, "Reply sent", "message_id", messageID, "reply_message_id", replyMessageID)
}

// ignoreEmail closes the workflow without replying.
func (m *Manager) ignoreEmail(ctx context.Context, messageID string) {
	_, err := m.store.Update(ctx, messageID, models.WorkflowPatch{
		CurrentState:     models.StatePtr(models.StateUserIgnored),
		TransitionReason: "reviewer ignored",
	})
	if err != nil {
		m.logger.ErrorContext(ctx, "Failed to enter user_ignored",
			"message_id", messageID, "error", err)

		return
	}

	m.publishStateChanged(ctx, messageID,
		string(models.StateAwaitingHuman), string(models.StateUserIgnored), "reviewer ignored")

	if err := m.source.UpdateStatus(ctx, messageID, models.EmailStatusIgnored); err != nil {
		m.logger.ErrorContext(ctx, "Failed to report ignored status",
			"message_id", messageID, "error", err)
	}

	m.notifyReviewer(ctx, "✓ Email ignored")
}

// CheckTimeouts expires every awaiting_human workflow whose deadline has
// passed. Each record is re-checked under its lock so a response arriving
// mid-scan wins.
func (m *Manager) CheckTimeouts(ctx context.Context) error {
	ctx, span := m.startSpan(ctx, "workflow.check_timeouts")
	defer span.End()

	expired, err := m.store.ListTimedOut(ctx, time.Now().UTC())
	if err != nil {
		otelhelper.SetError(span, err)

		return fmt.Errorf("failed to list timed out workflows: %w", err)
	}

	if len(expired) == 0 {
		return nil
	}

	m.logger.InfoContext(ctx, "Found timed out workflows", "count", len(expired))

	for _, record := range expired {
		m.expireWorkflow(ctx, record.MessageID)
	}

	return nil
}

func (m *Manager) expireWorkflow(ctx context.Context, messageID string) {
	lock := m.lockFor(messageID)
	lock.Lock()
	defer lock.Unlock()

	record, err := m.store.Get(ctx, messageID)
	if err != nil {
		m.logger.ErrorContext(ctx, "Failed to load workflow for timeout",
			"message_id", messageID, "error", err)

		return
	}

	if record.CurrentState != models.StateAwaitingHuman ||
		record.TimeoutAt == nil || record.TimeoutAt.After(time.Now().UTC()) {
		return
	}

	_, err = m.store.Update(ctx, messageID, models.WorkflowPatch{
		CurrentState:     models.StatePtr(models.StateTimeout),
		TransitionReason: "response deadline passed",
	})
	if err != nil {
		m.logger.ErrorContext(ctx, "Failed to enter timeout",
			"message_id", messageID, "error", err)

		return
	}

	m.publishStateChanged(ctx, messageID,
		string(models.StateAwaitingHuman), string(models.StateTimeout), "response deadline passed")

	if err := m.source.UpdateStatus(ctx, messageID, models.EmailStatusTimeout); err != nil {
		m.logger.ErrorContext(ctx, "Failed to report timeout status",
			"message_id", messageID, "error", err)
	}

	m.logger.InfoContext(ctx, "Workflow timed out", "message_id", messageID)
}

// RetryWorkflow is the operator's recovery path out of failed: reset the
// retry budget, clear the error and run the forward chain again.
func (m *Manager) RetryWorkflow(ctx context.Context, messageID string) error {
	lock := m.lockFor(messageID)
	lock.Lock()
	defer lock.Unlock()

	record, err := m.store.Get(ctx, messageID)
	if err != nil {
		return err
	}

	if record.CurrentState != models.StateFailed {
		return ErrNotFailed
	}

	_, err = m.store.Update(ctx, messageID, models.WorkflowPatch{
		CurrentState:     models.StatePtr(models.StatePending),
		RetryCount:       models.IntPtr(0),
		ErrorMessage:     models.StringPtr(""),
		TransitionReason: "operator retry",
	})
	if err != nil {
		return fmt.Errorf("failed to reset workflow: %w", err)
	}

	m.publishStateChanged(ctx, messageID,
		string(models.StateFailed), string(models.StatePending), "operator retry")

	m.generateReply(ctx, messageID, "")

	return nil
}

// ForceTimeout is the operator's manual expiry of an awaiting_human
// workflow.
func (m *Manager) ForceTimeout(ctx context.Context, messageID string) error {
	lock := m.lockFor(messageID)
	lock.Lock()
	defer lock.Unlock()

	record, err := m.store.Get(ctx, messageID)
	if err != nil {
		return err
	}

	if record.CurrentState != models.StateAwaitingHuman {
		return ErrNotAwaitingHuman
	}

	_, err = m.store.Update(ctx, messageID, models.WorkflowPatch{
		CurrentState:     models.StatePtr(models.StateTimeout),
		TransitionReason: "operator timeout",
	})
	if err != nil {
		return fmt.Errorf("failed to time out workflow: %w", err)
	}

	m.publishStateChanged(ctx, messageID,
		string(models.StateAwaitingHuman), string(models.StateTimeout), "operator timeout")

	if err := m.source.UpdateStatus(ctx, messageID, models.EmailStatusTimeout); err != nil {
		m.logger.ErrorContext(ctx, "Failed to report timeout status",
			"message_id", messageID, "error", err)
	}

	return nil
}

// ResolveInbound maps an inbound reviewer message to a workflow. The single
// shared inbound line carries no workflow tag, so the most recently created
// awaiting_human workflow wins. The heuristic lives here on its own so a
// stronger matching scheme can replace it without touching the state
// machine.
func (m *Manager) ResolveInbound(ctx context.Context) (string, bool) {
	waiting, err := m.store.ListByState(ctx, models.StateAwaitingHuman, 1)
	if err != nil {
		m.logger.ErrorContext(ctx, "Failed to resolve inbound message", "error", err)

		return "", false
	}

	if len(waiting) == 0 {
		return "", false
	}

	return waiting[0].MessageID, true
}

// HandleInbound routes one inbound reviewer message. Messages from numbers
// other than the configured reviewer are dropped. When nothing is awaiting a
// response the reviewer gets a short usage hint instead.
func (m *Manager) HandleInbound(ctx context.Context, inbound models.InboundMessage) error {
	if inbound.PhoneNumber != "" && inbound.PhoneNumber != m.config.PhoneNumber {
		m.logger.WarnContext(ctx, "Inbound message from unknown number",
			"phone_number", inbound.PhoneNumber)

		return nil
	}

	messageID, ok := m.ResolveInbound(ctx)
	if !ok {
		m.logger.WarnContext(ctx, "Inbound message with no workflow awaiting response")
		m.notifyReviewer(ctx, "No pending emails. Commands: 1=Send 2=Edit 3=Ignore")

		return nil
	}

	return m.HandleUserResponse(ctx, messageID, inbound.Message)
}

// handleStageError implements the shared retry policy: bump the per-workflow
// retry count, back off linearly and re-run the failed stage; after the
// budget is spent the workflow fails and the reviewer is notified once.
func (m *Manager) handleStageError(ctx context.Context, messageID, stage string, stageErr error) {
	m.logger.ErrorContext(ctx, "Workflow stage failed",
		"message_id", messageID, "stage", stage, "error", stageErr)

	record, err := m.store.Get(ctx, messageID)
	if err != nil {
		m.logger.ErrorContext(ctx, "Cannot handle stage error, workflow not loadable",
			"message_id", messageID, "error", err)

		return
	}

	retryCount := record.RetryCount + 1
	errorMessage := fmt.Sprintf("%s: %v", stage, stageErr)

	if retryCount <= m.config.MaxRetryAttempts {
		m.logger.InfoContext(ctx, "Retrying workflow stage",
			"message_id", messageID, "stage", stage,
			"attempt", retryCount, "max_attempts", m.config.MaxRetryAttempts)

		_, err = m.store.Update(ctx, messageID, models.WorkflowPatch{
			RetryCount:   models.IntPtr(retryCount),
			ErrorMessage: models.StringPtr(errorMessage),
		})
		if err != nil {
			m.logger.ErrorContext(ctx, "Failed to record retry",
				"message_id", messageID, "error", err)

			return
		}

		if !m.sleep(ctx, time.Duration(retryCount)*m.config.RetryBackoffBase) {
			return
		}

		switch stage {
		case stageGenerateReply:
			instructions := ""
			if record.PreviousState == models.StateAwaitingHuman {
				instructions = record.UserEditInstructions
			}

			m.generateReply(ctx, messageID, instructions)
		case stageSendNotification:
			m.sendNotification(ctx, messageID)
		case stageSendReply:
			m.sendReply(ctx, messageID)
		}

		return
	}

	m.logger.ErrorContext(ctx, "Max retries exceeded, failing workflow",
		"message_id", messageID, "stage", stage)

	_, err = m.store.Update(ctx, messageID, models.WorkflowPatch{
		CurrentState:     models.StatePtr(models.StateFailed),
		ErrorMessage:     models.StringPtr(errorMessage + " (max retries exceeded)"),
		TransitionReason: "retry budget exhausted",
		TransitionError:  errorMessage,
	})
	if err != nil {
		m.logger.ErrorContext(ctx, "Failed to enter failed state",
			"message_id", messageID, "error", err)

		return
	}

	m.publishEvent(ctx, messageID, events.WorkflowFailed{
		BaseEvent:  m.newBaseEvent(events.WorkflowFailedEvent, messageID),
		Error:      errorMessage,
		RetryCount: record.RetryCount,
	})

	m.notifyReviewer(ctx, fmt.Sprintf("⚠️ Workflow failed for email %s... Error: %s",
		clip(messageID, 20), clip(stageErr.Error(), 50)))
}

// notifyReviewer sends a best-effort text to the reviewer; failures are
// logged, never propagated.
func (m *Manager) notifyReviewer(ctx context.Context, message string) {
	result, err := m.notifier.SendSMS(ctx, m.config.PhoneNumber, message)
	if err != nil {
		m.logger.ErrorContext(ctx, "Failed to notify reviewer", "error", err)

		return
	}

	if !result.Success {
		m.logger.ErrorContext(ctx, "Reviewer notification rejected", "error", result.Error)
	}
}

// sleep waits for the backoff duration, returning false when the context is
// cancelled first. Only the goroutine advancing this workflow suspends.
func (m *Manager) sleep(ctx context.Context, d time.Duration) bool {
	if d <= 0 {
		return ctx.Err() == nil
	}

	timer := time.NewTimer(d)
	defer timer.Stop()

	select {
	case <-ctx.Done():
		return false
	case <-timer.C:
		return true
	}
}

func (m *Manager) publishStateChanged(ctx context.Context, messageID, from, to, reason string) {
	m.publishEvent(ctx, messageID, events.WorkflowStateChanged{
		BaseEvent: m.newBaseEvent(events.WorkflowStateChangedEvent, messageID),
		FromState: from,
		ToState:   to,
		Reason:    reason,
	})
}

func (m *Manager) publishEvent(ctx context.Context, messageID string, event eventbus.Event) {
	if m.eventBus == nil {
		return
	}

	if err := m.eventBus.Publish(ctx, messageID, event); err != nil {
		m.logger.WarnContext(ctx, "Failed to publish event",
			"message_id", messageID, "event_type", event.GetType(), "error", err)
	}
}

func (m *Manager) newBaseEvent(eventType events.EventType, messageID string) events.BaseEvent {
	id := ""
	if m.eventBus != nil {
		id = m.eventBus.GenerateID()
	}

	return events.BaseEvent{
		ID:        id,
		Type:      eventType,
		Timestamp: time.Now().UTC(),
		MessageID: messageID,
	}
}

//nolint:spancheck // Span ownership passes to the caller.
func (m *Manager) startSpan(ctx context.Context, name string, attrs ...attribute.KeyValue) (context.Context, trace.Span) {
	if m.tracer == nil {
		return ctx, trace.SpanFromContext(ctx)
	}

	return otelhelper.StartSpan(ctx, m.tracer, name, attrs...)
}

func preview(bodyText string) string {
	runes := []rune(bodyText)
	if len(runes) <= bodyPreviewLength {
		return bodyText
	}

	return string(runes[:bodyPreviewLength])
}

func clip(s string, max int) string {
	runes := []rune(s)
	if len(runes) <= max {
		return s
	}

	return string(runes[:max])
}
