package web

import (
	"errors"

	"github.com/gofiber/fiber/v3"
	"github.com/moogar0880/problems"

	"github.com/JackBeStrong/email-auto-reply/pkg/persistence"
	"github.com/JackBeStrong/email-auto-reply/pkg/workflow"
)

func badRequest(c fiber.Ctx, detail string) error {
	problem := problems.NewStatusProblem(400).
		WithInstance(c.Path()).
		WithType("validation_error").
		WithDetail(detail)

	return c.Status(fiber.StatusBadRequest).JSON(problem)
}

func notFound(c fiber.Ctx, detail string) error {
	problem := problems.NewStatusProblem(404).
		WithInstance(c.Path()).
		WithType("not_found").
		WithDetail(detail)

	return c.Status(fiber.StatusNotFound).JSON(problem)
}

func internalError(c fiber.Ctx, err error) error {
	problem := problems.NewStatusProblem(500).
		WithInstance(c.Path()).
		WithType("internal_error").
		WithError(err)

	return c.Status(fiber.StatusInternalServerError).JSON(problem)
}

// handleWorkflowError maps store and manager errors onto problem responses.
func handleWorkflowError(c fiber.Ctx, err error) error {
	switch {
	case persistence.IsWorkflowNotFound(err):
		return notFound(c, "workflow not found")

	case persistence.IsInvalidState(err):
		return badRequest(c, err.Error())

	case errors.Is(err, workflow.ErrNotFailed):
		return badRequest(c, "workflow is not in the failed state")

	case errors.Is(err, workflow.ErrNotAwaitingHuman):
		return badRequest(c, "workflow is not awaiting a human response")

	default:
		return internalError(c, err)
	}
}
