// Package main runs the email auto-reply orchestrator: the poll scheduler,
// the inbound SMS receiver and the management API in one process.
package main

import (
	"context"
	"log/slog"
	"strconv"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/gofiber/fiber/v3"
	"github.com/gofiber/fiber/v3/middleware/cors"
	"github.com/gofiber/fiber/v3/middleware/healthcheck"
	"github.com/gofiber/fiber/v3/middleware/logger"

	"github.com/JackBeStrong/email-auto-reply/pkg/persistence"
	"github.com/JackBeStrong/email-auto-reply/pkg/web"
	"github.com/JackBeStrong/email-auto-reply/pkg/workflow"
)

type API struct {
	logger   *slog.Logger
	manager  *workflow.Manager
	store    persistence.Repository
	checkers map[string]web.HealthChecker
	validate *validator.Validate

	app *fiber.App
}

func NewAPI(
	logger *slog.Logger,
	manager *workflow.Manager,
	store persistence.Repository,
	checkers map[string]web.HealthChecker,
) *API {
	return &API{
		logger:   logger,
		manager:  manager,
		store:    store,
		checkers: checkers,
		validate: validator.New(validator.WithRequiredStructEnabled()),
	}
}

func (a *API) App() *fiber.App {
	handlers := web.NewAPIHandlers(a.manager, a.store, a.validate, a.checkers, a.logger)

	app := fiber.New()
	app.Use(cors.New())
	app.Use(logger.New(logger.Config{
		DisableColors: true,
	}))

	app.Get(healthcheck.DefaultLivenessEndpoint, healthcheck.NewHealthChecker())
	app.Get(healthcheck.DefaultReadinessEndpoint, healthcheck.NewHealthChecker())

	app.Get("/", func(c fiber.Ctx) error {
		return c.SendString("Email Auto-Reply Orchestrator")
	})

	w := app.Group("/workflows")
	w.Get("/status", handlers.GetStatus)
	w.Get("/", handlers.GetWorkflows)
	w.Get("/:id", handlers.GetWorkflow)
	w.Get("/:id/audit", handlers.GetAuditLog)
	w.Post("/:id/retry", handlers.RetryWorkflow)
	w.Post("/:id/timeout", handlers.ForceTimeout)

	app.Post("/inbound/sms", handlers.InboundSMS)
	app.Get("/health", handlers.HealthCheck)

	return app
}

func (a *API) Start(port int) error {
	a.app = a.App()

	return a.app.Listen(":" + strconv.Itoa(port))
}

// Shutdown drains in-flight requests. It uses a fresh context so shutdown
// still gets its grace period after the run context is cancelled.
func (a *API) Shutdown() error {
	if a.app == nil {
		return nil
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	return a.app.ShutdownWithContext(shutdownCtx)
}
