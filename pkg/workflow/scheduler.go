package workflow

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/robfig/cron/v3"
)

// Scheduler drives the two periodic entry points: polling the email source
// for new mail and scanning for expired response deadlines. Overlapping runs
// of the same job are skipped rather than queued.
type Scheduler struct {
	manager             *Manager
	cron                *cron.Cron
	pollInterval        time.Duration
	timeoutScanInterval time.Duration
	logger              *slog.Logger

	ctx    context.Context
	cancel context.CancelFunc
}

// NewScheduler creates a scheduler around the manager's periodic work.
func NewScheduler(manager *Manager, pollInterval, timeoutScanInterval time.Duration, logger *slog.Logger) *Scheduler {
	if pollInterval <= 0 {
		pollInterval = 120 * time.Second
	}

	if timeoutScanInterval <= 0 {
		timeoutScanInterval = 300 * time.Second
	}

	return &Scheduler{
		manager:             manager,
		pollInterval:        pollInterval,
		timeoutScanInterval: timeoutScanInterval,
		logger:              logger.With("module", "scheduler"),
	}
}

// Start registers and starts both periodic jobs.
func (s *Scheduler) Start(ctx context.Context) error {
	s.ctx, s.cancel = context.WithCancel(ctx)

	s.cron = cron.New(cron.WithChain(
		cron.SkipIfStillRunning(cron.DefaultLogger),
		cron.Recover(cron.DefaultLogger),
	))

	_, err := s.cron.AddFunc(every(s.pollInterval), func() {
		if err := s.manager.ProcessPendingEmails(s.ctx); err != nil {
			s.logger.Error("Email poll failed", "error", err)
		}
	})
	if err != nil {
		return fmt.Errorf("failed to schedule email poll: %w", err)
	}

	_, err = s.cron.AddFunc(every(s.timeoutScanInterval), func() {
		if err := s.manager.CheckTimeouts(s.ctx); err != nil {
			s.logger.Error("Timeout scan failed", "error", err)
		}
	})
	if err != nil {
		return fmt.Errorf("failed to schedule timeout scan: %w", err)
	}

	s.cron.Start()
	s.logger.Info("Scheduler started",
		"poll_interval", s.pollInterval, "timeout_scan_interval", s.timeoutScanInterval)

	return nil
}

// Stop cancels the job context and waits for in-flight runs to finish.
func (s *Scheduler) Stop() {
	if s.cancel != nil {
		s.cancel()
	}

	if s.cron != nil {
		stopCtx := s.cron.Stop()
		<-stopCtx.Done()
	}

	s.logger.Info("Scheduler stopped")
}

func every(interval time.Duration) string {
	return "@every " + interval.String()
}
