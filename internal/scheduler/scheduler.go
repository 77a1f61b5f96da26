package scheduler

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.uber.org/zap"

	"github.com/aws-samples/amazon-chime-voiceconnector-cdr-processing/internal/config"
	"github.com/aws-samples/amazon-chime-voiceconnector-cdr-processing/internal/domain"
	"github.com/aws-samples/amazon-chime-voiceconnector-cdr-processing/internal/workflow"
	apperrors "github.com/aws-samples/amazon-chime-voiceconnector-cdr-processing/pkg/errors"
	"github.com/aws-samples/amazon-chime-voiceconnector-cdr-processing/pkg/logger"
)

// Launcher runs one workflow execution to completion.
type Launcher interface {
	Run(ctx context.Context, req workflow.Request) (*domain.Execution, error)
}

// Scheduler starts the daily pipeline and the monthly report at their
// configured UTC times.
type Scheduler struct {
	launcher Launcher
	cfg      config.SchedulerConfig
	logger   *logger.Logger
	now      func() time.Time

	lastDaily   string
	lastMonthly string
	wg          sync.WaitGroup
}

// New constructs a scheduler.
func New(launcher Launcher, cfg config.SchedulerConfig, lg *logger.Logger) *Scheduler {
	return &Scheduler{launcher: launcher, cfg: cfg, logger: lg, now: time.Now}
}

// Run executes the scheduling loop until cancelled. Executions still in
// flight are awaited before it returns.
func (s *Scheduler) Run(ctx context.Context) error {
	dailyAt, err := parseClock(s.cfg.DailyAt)
	if err != nil {
		return fmt.Errorf("scheduler: daily_at: %w", err)
	}
	monthlyAt, err := parseClock(s.cfg.MonthlyAt)
	if err != nil {
		return fmt.Errorf("scheduler: monthly_at: %w", err)
	}
	monthlyDay := s.cfg.MonthlyDay
	if monthlyDay < 1 || monthlyDay > 28 {
		return fmt.Errorf("scheduler: monthly_day %d out of range 1-28: %w", monthlyDay, apperrors.ErrValidation)
	}

	interval := s.cfg.TickInterval
	if interval <= 0 {
		interval = time.Minute
	}

	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	defer s.wg.Wait()

	for {
		s.tick(ctx, dailyAt, monthlyDay, monthlyAt)

		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
		}
	}
}

func (s *Scheduler) tick(ctx context.Context, dailyAt, monthlyDay, monthlyAt int) {
	now := s.now().UTC()

	_, span := otel.Tracer("cdr.scheduler").Start(ctx, "scheduler.tick")
	defer span.End()

	if dailyDue(now, dailyAt, s.lastDaily) {
		s.lastDaily = dayKey(now)
		span.SetAttributes(attribute.Bool("daily.launched", true))
		s.launch(ctx, workflow.Request{Workflow: domain.WorkflowDaily})
	}

	if s.cfg.MonthlyReport && monthlyDue(now, monthlyDay, monthlyAt, s.lastMonthly) {
		s.lastMonthly = monthKey(now)
		span.SetAttributes(attribute.Bool("monthly.launched", true))
		s.launch(ctx, workflow.Request{Workflow: domain.WorkflowMonthly})
	}
}

func (s *Scheduler) launch(ctx context.Context, req workflow.Request) {
	s.wg.Add(1)
	go func() {
		defer s.wg.Done()

		s.logger.Info("scheduler: launching workflow", zap.String("workflow", string(req.Workflow)))
		exec, err := s.launcher.Run(ctx, req)
		switch {
		case errors.Is(err, apperrors.ErrConflict):
			s.logger.Warn("scheduler: workflow already running", zap.String("workflow", string(req.Workflow)), zap.Error(err))
		case err != nil && ctx.Err() == nil:
			s.logger.Error("scheduler: workflow failed", zap.String("workflow", string(req.Workflow)), zap.Error(err))
		case exec != nil:
			s.logger.Info("scheduler: workflow finished",
				zap.String("workflow", string(req.Workflow)),
				zap.String("execution_id", exec.ID.String()),
				zap.String("status", string(exec.Status)))
		}
	}()
}

// parseClock turns HH:MM into minutes after midnight.
func parseClock(value string) (int, error) {
	t, err := time.Parse("15:04", value)
	if err != nil {
		return 0, fmt.Errorf("invalid clock %q: %w", value, apperrors.ErrValidation)
	}
	return t.Hour()*60 + t.Minute(), nil
}

func minuteOfDay(now time.Time) int {
	return now.Hour()*60 + now.Minute()
}

func dayKey(now time.Time) string   { return now.Format("2006-01-02") }
func monthKey(now time.Time) string { return now.Format("2006-01") }

// dailyDue reports whether today's run has not happened and its time has come.
func dailyDue(nowUTC time.Time, at int, last string) bool {
	return minuteOfDay(nowUTC) >= at && dayKey(nowUTC) != last
}

// monthlyDue only fires on the configured day of the month.
func monthlyDue(nowUTC time.Time, day, at int, last string) bool {
	if nowUTC.Day() != day {
		return false
	}
	return minuteOfDay(nowUTC) >= at && monthKey(nowUTC) != last
}
