// Package web provides the HTTP handlers for workflow inspection, operator
// actions and the inbound SMS webhook.
package web

import (
	"context"
	"log/slog"
	"net/http"
	"net/url"
	"strconv"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/gofiber/fiber/v3"

	"github.com/JackBeStrong/email-auto-reply/pkg/models"
	"github.com/JackBeStrong/email-auto-reply/pkg/persistence"
	"github.com/JackBeStrong/email-auto-reply/pkg/workflow"
)

// HealthChecker probes one dependency. A nil error means healthy.
type HealthChecker func(ctx context.Context) error

type APIHandlers struct {
	manager   *workflow.Manager
	store     persistence.Repository
	validator *validator.Validate
	checkers  map[string]HealthChecker
	logger    *slog.Logger
	startedAt time.Time
}

func NewAPIHandlers(
	manager *workflow.Manager,
	store persistence.Repository,
	validator *validator.Validate,
	checkers map[string]HealthChecker,
	logger *slog.Logger,
) *APIHandlers {
	return &APIHandlers{
		manager:   manager,
		store:     store,
		validator: validator,
		checkers:  checkers,
		logger:    logger.With("module", "web"),
		startedAt: time.Now().UTC(),
	}
}

func (h *APIHandlers) HealthCheck(c fiber.Ctx) error {
	results := fiber.Map{}
	healthy := true

	if err := h.store.HealthCheck(c.Context()); err != nil {
		results["repository"] = err.Error()
		healthy = false
	} else {
		results["repository"] = "ok"
	}

	for name, check := range h.checkers {
		if err := check(c.Context()); err != nil {
			results[name] = err.Error()
			healthy = false
		} else {
			results[name] = "ok"
		}
	}

	status := "unhealthy"
	httpStatus := http.StatusInternalServerError

	if healthy {
		status = "healthy"
		httpStatus = http.StatusOK
	}

	response := fiber.Map{
		"status":         status,
		"checkers":       results,
		"uptime_seconds": int64(time.Since(h.startedAt).Seconds()),
		"timestamp":      time.Now().UTC(),
	}

	if stats, err := h.store.Statistics(c.Context()); err == nil {
		response["statistics"] = stats
	}

	return c.Status(httpStatus).JSON(response)
}

func (h *APIHandlers) GetStatus(c fiber.Ctx) error {
	stats, err := h.store.Statistics(c.Context())
	if err != nil {
		return internalError(c, err)
	}

	return c.JSON(stats)
}

func (h *APIHandlers) GetWorkflows(c fiber.Ctx) error {
	state := models.WorkflowState(c.Query("state"))
	if state == "" {
		return badRequest(c, "state query parameter is required")
	}

	if !state.IsValid() {
		return badRequest(c, "unknown workflow state: "+string(state))
	}

	limit := 0

	if limitStr := c.Query("limit"); limitStr != "" {
		parsed, err := strconv.Atoi(limitStr)
		if err != nil {
			return badRequest(c, "invalid limit: "+limitStr)
		}

		limit = parsed
	}

	records, err := h.store.ListByState(c.Context(), state, limit)
	if err != nil {
		return handleWorkflowError(c, err)
	}

	return c.JSON(fiber.Map{
		"workflows": records,
		"count":     len(records),
		"state":     state,
	})
}

func (h *APIHandlers) GetWorkflow(c fiber.Ctx) error {
	messageID := pathMessageID(c)
	if messageID == "" {
		return badRequest(c, "message ID is required")
	}

	record, err := h.store.Get(c.Context(), messageID)
	if err != nil {
		return handleWorkflowError(c, err)
	}

	return c.JSON(record)
}

func (h *APIHandlers) GetAuditLog(c fiber.Ctx) error {
	messageID := pathMessageID(c)
	if messageID == "" {
		return badRequest(c, "message ID is required")
	}

	entries, err := h.store.AuditLog(c.Context(), messageID)
	if err != nil {
		return handleWorkflowError(c, err)
	}

	return c.JSON(fiber.Map{
		"message_id":  messageID,
		"transitions": entries,
	})
}

// RetryWorkflow revives a failed workflow. The draft pipeline runs to
// completion before the response is written, so the returned record reflects
// the outcome of the retry.
func (h *APIHandlers) RetryWorkflow(c fiber.Ctx) error {
	messageID := pathMessageID(c)
	if messageID == "" {
		return badRequest(c, "message ID is required")
	}

	if err := h.manager.RetryWorkflow(c.Context(), messageID); err != nil {
		return handleWorkflowError(c, err)
	}

	record, err := h.store.Get(c.Context(), messageID)
	if err != nil {
		return handleWorkflowError(c, err)
	}

	return c.JSON(record)
}

func (h *APIHandlers) ForceTimeout(c fiber.Ctx) error {
	messageID := pathMessageID(c)
	if messageID == "" {
		return badRequest(c, "message ID is required")
	}

	if err := h.manager.ForceTimeout(c.Context(), messageID); err != nil {
		return handleWorkflowError(c, err)
	}

	record, err := h.store.Get(c.Context(), messageID)
	if err != nil {
		return handleWorkflowError(c, err)
	}

	return c.JSON(record)
}

// InboundSMS receives the SMS gateway webhook for reviewer responses.
// Messages from unknown numbers are accepted and dropped so the gateway does
// not retry them.
func (h *APIHandlers) InboundSMS(c fiber.Ctx) error {
	var req SMSWebhookRequest
	if err := c.Bind().JSON(&req); err != nil {
		return badRequest(c, "Invalid JSON format")
	}

	if err := h.validator.Struct(req); err != nil {
		return badRequest(c, err.Error())
	}

	receivedAt := time.Now().UTC()

	if req.Payload.ReceivedAt != "" {
		if parsed, err := time.Parse(time.RFC3339, req.Payload.ReceivedAt); err == nil {
			receivedAt = parsed.UTC()
		}
	}

	h.logger.InfoContext(c.Context(), "Inbound SMS webhook received",
		"device_id", req.DeviceID, "event", req.Event)

	inbound := models.InboundMessage{
		PhoneNumber: req.Payload.PhoneNumber,
		Message:     req.Payload.Message,
		ReceivedAt:  receivedAt,
	}

	if err := h.manager.HandleInbound(c.Context(), inbound); err != nil {
		return internalError(c, err)
	}

	return c.JSON(fiber.Map{"status": "processed"})
}

// pathMessageID returns the :id route parameter with percent-encoding
// undone. Email message IDs carry characters like '<' and '@' that clients
// must escape in the path.
func pathMessageID(c fiber.Ctx) string {
	raw := c.Params("id")

	unescaped, err := url.PathUnescape(raw)
	if err != nil {
		return raw
	}

	return unescaped
}
