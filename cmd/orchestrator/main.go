package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"
	"time"

	"go.opentelemetry.io/otel/trace"

	"github.com/google/uuid"
	cli "github.com/urfave/cli/v3"

	"github.com/JackBeStrong/email-auto-reply/pkg/clients/emailmonitor"
	"github.com/JackBeStrong/email-auto-reply/pkg/clients/replygen"
	"github.com/JackBeStrong/email-auto-reply/pkg/clients/smsgateway"
	"github.com/JackBeStrong/email-auto-reply/pkg/cmd"
	"github.com/JackBeStrong/email-auto-reply/pkg/log"
	"github.com/JackBeStrong/email-auto-reply/pkg/mailer"
	"github.com/JackBeStrong/email-auto-reply/pkg/otelhelper"
	"github.com/JackBeStrong/email-auto-reply/pkg/web"
	"github.com/JackBeStrong/email-auto-reply/pkg/workflow"
)

const defaultPort = 9090

func main() {
	command := &cli.Command{
		Name:                  "orchestrator",
		Usage:                 "Poll the inbox, draft replies and route reviewer approvals",
		EnableShellCompletion: true,
		Flags: []cli.Flag{
			&cli.IntFlag{
				Name:    "port",
				Aliases: []string{"p"},
				Usage:   "Port to run the management API on",
				Value:   defaultPort,
				Sources: cli.EnvVars("PORT"),
			},
			&cli.StringFlag{
				Name:     "database-url",
				Usage:    "Store URL (postgres://... or a file store directory)",
				Required: true,
				Sources:  cli.EnvVars("DATABASE_URL"),
			},
			&cli.StringFlag{
				Name:    "event-bus",
				Usage:   "Event bus type (gochannel, kafka)",
				Value:   "gochannel",
				Sources: cli.EnvVars("EVENT_BUS_TYPE"),
			},
			&cli.StringFlag{
				Name:     "email-monitor-url",
				Usage:    "Base URL of the email monitor service",
				Required: true,
				Sources:  cli.EnvVars("EMAIL_MONITOR_URL"),
			},
			&cli.StringFlag{
				Name:     "reply-generator-url",
				Usage:    "Base URL of the reply generator service",
				Required: true,
				Sources:  cli.EnvVars("REPLY_GENERATOR_URL"),
			},
			&cli.StringFlag{
				Name:     "sms-gateway-url",
				Usage:    "Base URL of the SMS gateway",
				Required: true,
				Sources:  cli.EnvVars("SMS_GATEWAY_URL"),
			},
			&cli.StringFlag{
				Name:     "phone-number",
				Usage:    "Reviewer phone number for draft notifications",
				Required: true,
				Sources:  cli.EnvVars("PHONE_NUMBER"),
			},
			&cli.StringFlag{
				Name:    "sms-format",
				Usage:   "Notification format (condensed, multipart)",
				Value:   string(smsgateway.FormatCondensed),
				Sources: cli.EnvVars("SMS_FORMAT"),
			},
			&cli.StringFlag{
				Name:     "smtp-host",
				Usage:    "SMTP server host for outgoing replies",
				Required: true,
				Sources:  cli.EnvVars("SMTP_HOST"),
			},
			&cli.IntFlag{
				Name:    "smtp-port",
				Usage:   "SMTP server port",
				Value:   587,
				Sources: cli.EnvVars("SMTP_PORT"),
			},
			&cli.StringFlag{
				Name:     "smtp-username",
				Usage:    "SMTP account username",
				Required: true,
				Sources:  cli.EnvVars("SMTP_USERNAME"),
			},
			&cli.StringFlag{
				Name:     "smtp-password",
				Usage:    "SMTP account password",
				Required: true,
				Sources:  cli.EnvVars("SMTP_PASSWORD"),
			},
			&cli.StringFlag{
				Name:    "smtp-from",
				Usage:   "From address for outgoing replies (defaults to the SMTP username)",
				Sources: cli.EnvVars("SMTP_FROM"),
			},
			&cli.DurationFlag{
				Name:    "poll-interval",
				Usage:   "Interval between inbox polls",
				Value:   120 * time.Second,
				Sources: cli.EnvVars("POLL_INTERVAL"),
			},
			&cli.DurationFlag{
				Name:    "timeout-scan-interval",
				Usage:   "Interval between response deadline scans",
				Value:   300 * time.Second,
				Sources: cli.EnvVars("TIMEOUT_SCAN_INTERVAL"),
			},
			&cli.DurationFlag{
				Name:    "response-timeout",
				Usage:   "How long to wait for the reviewer before timing out",
				Value:   24 * time.Hour,
				Sources: cli.EnvVars("RESPONSE_TIMEOUT"),
			},
			&cli.IntFlag{
				Name:    "max-edit-iterations",
				Usage:   "Edit cycles allowed per email",
				Value:   10,
				Sources: cli.EnvVars("MAX_EDIT_ITERATIONS"),
			},
			&cli.IntFlag{
				Name:    "max-retry-attempts",
				Usage:   "Retries per failing workflow stage",
				Value:   3,
				Sources: cli.EnvVars("MAX_RETRY_ATTEMPTS"),
			},
			&cli.DurationFlag{
				Name:    "retry-backoff",
				Usage:   "Base backoff between stage retries (scaled by attempt number)",
				Value:   5 * time.Second,
				Sources: cli.EnvVars("RETRY_BACKOFF"),
			},
			&cli.IntFlag{
				Name:    "max-emails-per-poll",
				Usage:   "New workflows started per poll cycle",
				Value:   5,
				Sources: cli.EnvVars("MAX_EMAILS_PER_POLL"),
			},
			&cli.StringFlag{
				Name:    "redis-url",
				Usage:   "Redis URL for the inbound SMS queue (disabled when empty)",
				Sources: cli.EnvVars("REDIS_URL"),
			},
			&cli.StringFlag{
				Name:    "redis-queue",
				Usage:   "Redis list the SMS gateway pushes inbound messages to",
				Value:   "sms-inbound",
				Sources: cli.EnvVars("REDIS_QUEUE"),
			},
			&cli.BoolFlag{
				Name:    "tracing",
				Usage:   "Enable OpenTelemetry tracing",
				Sources: cli.EnvVars("TRACING_ENABLED"),
			},
			&cli.StringFlag{
				Name:    "log-level",
				Usage:   "Log level (debug, info, warn, error)",
				Value:   "info",
				Sources: cli.EnvVars("LOG_LEVEL"),
			},
		},
		Action: run,
	}

	if err := command.Run(context.Background(), os.Args); err != nil {
		panic(err)
	}
}

func run(ctx context.Context, command *cli.Command) error {
	log.Setup(command.String("log-level"))

	instanceID := "orchestrator-" + uuid.New().String()[:8]
	logger := log.WithModule("orchestrator").With("instanceId", instanceID)

	logger.InfoContext(ctx, "Initializing email auto-reply orchestrator")

	ctx, stop := signal.NotifyContext(ctx, os.Interrupt, syscall.SIGTERM)
	defer stop()

	store, err := cmd.NewRepository(ctx, logger, command.String("database-url"))
	if err != nil {
		return err
	}

	defer func() {
		if err := store.Close(ctx); err != nil {
			logger.ErrorContext(ctx, "Failed to close store", "error", err)
		}
	}()

	eventBus, err := cmd.NewEventBus(command.String("event-bus"), logger)
	if err != nil {
		return err
	}

	defer func() {
		if err := eventBus.Close(); err != nil {
			logger.ErrorContext(ctx, "Failed to close event bus", "error", err)
		}
	}()

	if err := registerEventObservers(ctx, eventBus, logger); err != nil {
		return err
	}

	monitor := emailmonitor.NewClient(command.String("email-monitor-url"), logger)
	oracle := replygen.NewClient(command.String("reply-generator-url"), logger)
	gateway := smsgateway.NewClient(command.String("sms-gateway-url"), logger)

	fromAddress := command.String("smtp-from")
	if fromAddress == "" {
		fromAddress = command.String("smtp-username")
	}

	sender, err := mailer.NewMailer(mailer.Config{
		Host:        command.String("smtp-host"),
		Port:        command.Int("smtp-port"),
		Username:    command.String("smtp-username"),
		Password:    command.String("smtp-password"),
		FromAddress: fromAddress,
	}, logger)
	if err != nil {
		return err
	}

	var tracer trace.Tracer

	if command.Bool("tracing") {
		tracer, err = otelhelper.NewTracer(ctx, "email-auto-reply")
		if err != nil {
			return err
		}
	}

	manager, err := workflow.NewManager(store, monitor, oracle, gateway, sender,
		eventBus, tracer, logger, workflow.Config{
			PhoneNumber:        command.String("phone-number"),
			ResponseTimeout:    command.Duration("response-timeout"),
			MaxEditIterations:  command.Int("max-edit-iterations"),
			MaxRetryAttempts:   command.Int("max-retry-attempts"),
			MaxEmailsPerPoll:   command.Int("max-emails-per-poll"),
			RetryBackoffBase:   command.Duration("retry-backoff"),
			NotificationFormat: smsgateway.Format(command.String("sms-format")),
		})
	if err != nil {
		return err
	}

	scheduler := workflow.NewScheduler(manager,
		command.Duration("poll-interval"), command.Duration("timeout-scan-interval"), logger)

	if err := scheduler.Start(ctx); err != nil {
		return err
	}

	defer scheduler.Stop()

	if redisURL := command.String("redis-url"); redisURL != "" {
		receiver, err := workflow.NewQueueReceiver(ctx, manager, redisURL,
			command.String("redis-queue"), logger)
		if err != nil {
			return err
		}

		receiver.Start(ctx)

		defer receiver.Stop()
	}

	checkers := map[string]web.HealthChecker{
		"email_monitor":   monitor.HealthCheck,
		"reply_generator": oracle.HealthCheck,
		"sms_gateway":     gateway.HealthCheck,
	}

	api := NewAPI(logger, manager, store, checkers)

	errCh := make(chan error, 1)

	go func() {
		errCh <- api.Start(command.Int("port"))
	}()

	select {
	case <-ctx.Done():
		logger.Info("Shutting down")

		if err := api.Shutdown(); err != nil {
			logger.Error("Failed to shut down API server", "error", err)
		}

		return nil
	case err := <-errCh:
		return err
	}
}
