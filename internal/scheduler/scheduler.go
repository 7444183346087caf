package scheduler

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/robfig/cron/v3"

	"betterlox/internal/domain"
)

// Trigger starts one sync run.
type Trigger interface {
	Trigger(ctx context.Context) (*domain.RunSummary, error)
}

type Scheduler struct {
	trigger  Trigger
	schedule string
	timeout  time.Duration
	logger   *slog.Logger
	cron     *cron.Cron
}

func NewScheduler(trigger Trigger, schedule string, timeout time.Duration, logger *slog.Logger) *Scheduler {
	if timeout <= 0 {
		timeout = 5 * time.Minute
	}
	return &Scheduler{
		trigger:  trigger,
		schedule: schedule,
		timeout:  timeout,
		logger:   logger,
		cron:     cron.New(cron.WithChain(cron.SkipIfStillRunning(cron.DiscardLogger))),
	}
}

// Start runs the trigger once, then on every tick of the schedule until ctx is done.
// Start blocks until any in-flight run has returned.
func (s *Scheduler) Start(ctx context.Context) error {
	if _, err := s.cron.AddFunc(s.schedule, func() { s.runSync(ctx) }); err != nil {
		return fmt.Errorf("parse schedule %q: %w", s.schedule, err)
	}

	s.logger.Info("scheduler started", "schedule", s.schedule)

	s.runSync(ctx)
	s.cron.Start()

	<-ctx.Done()
	<-s.cron.Stop().Done()
	s.logger.Info("scheduler stopped")
	return ctx.Err()
}

func (s *Scheduler) runSync(ctx context.Context) {
	if ctx.Err() != nil {
		return
	}

	syncCtx, cancel := context.WithTimeout(ctx, s.timeout)
	defer cancel()

	summary, err := s.trigger.Trigger(syncCtx)
	if err != nil {
		s.logger.Error("sync failed", "error", err.Error())
		return
	}
	s.logger.Info("sync finished", "count", summary.Synced, "type", summary.ItemType)
}
