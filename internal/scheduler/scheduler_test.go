package scheduler

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"

	"github.com/aws-samples/amazon-chime-voiceconnector-cdr-processing/internal/config"
	"github.com/aws-samples/amazon-chime-voiceconnector-cdr-processing/internal/domain"
	"github.com/aws-samples/amazon-chime-voiceconnector-cdr-processing/internal/workflow"
	apperrors "github.com/aws-samples/amazon-chime-voiceconnector-cdr-processing/pkg/errors"
	"github.com/aws-samples/amazon-chime-voiceconnector-cdr-processing/pkg/logger"
)

func TestParseClock(t *testing.T) {
	got, err := parseClock("09:00")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if got != 540 {
		t.Fatalf("expected 540 minutes, got %d", got)
	}

	for _, bad := range []string{"", "9am", "25:00", "12:60"} {
		if _, err := parseClock(bad); !apperrors.Is(err, apperrors.ErrValidation) {
			t.Fatalf("expected validation error for %q, got %v", bad, err)
		}
	}
}

func TestDailyDue(t *testing.T) {
	at := 9 * 60

	early := time.Date(2024, 3, 1, 8, 59, 0, 0, time.UTC)
	if dailyDue(early, at, "") {
		t.Fatalf("expected %v to be before the daily run", early)
	}

	onTime := time.Date(2024, 3, 1, 9, 0, 0, 0, time.UTC)
	if !dailyDue(onTime, at, "2024-02-29") {
		t.Fatalf("expected %v to be due", onTime)
	}

	if dailyDue(onTime.Add(3*time.Hour), at, "2024-03-01") {
		t.Fatalf("expected a single run per day")
	}
}

func TestMonthlyDue(t *testing.T) {
	at := 12 * 60

	wrongDay := time.Date(2024, 3, 1, 13, 0, 0, 0, time.UTC)
	if monthlyDue(wrongDay, 2, at, "") {
		t.Fatalf("expected %v to be skipped (wrong day)", wrongDay)
	}

	early := time.Date(2024, 3, 2, 11, 0, 0, 0, time.UTC)
	if monthlyDue(early, 2, at, "") {
		t.Fatalf("expected %v to be before the monthly run", early)
	}

	onTime := time.Date(2024, 3, 2, 12, 5, 0, 0, time.UTC)
	if !monthlyDue(onTime, 2, at, "2024-02") {
		t.Fatalf("expected %v to be due", onTime)
	}
	if monthlyDue(onTime, 2, at, "2024-03") {
		t.Fatalf("expected a single run per month")
	}
}

type recordingLauncher struct {
	mu       sync.Mutex
	requests []workflow.Request
	err      error
}

func (l *recordingLauncher) Run(_ context.Context, req workflow.Request) (*domain.Execution, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.requests = append(l.requests, req)
	if l.err != nil {
		return nil, l.err
	}
	return &domain.Execution{ID: uuid.New(), Workflow: req.Workflow, Status: domain.ExecutionStatusSucceeded}, nil
}

func (l *recordingLauncher) workflows() []domain.Workflow {
	l.mu.Lock()
	defer l.mu.Unlock()
	out := make([]domain.Workflow, 0, len(l.requests))
	for _, r := range l.requests {
		out = append(out, r.Workflow)
	}
	return out
}

func TestTickLaunchesOncePerPeriod(t *testing.T) {
	launcher := &recordingLauncher{}
	s := New(launcher, config.SchedulerConfig{MonthlyReport: true}, logger.NewNop())
	now := time.Date(2024, 3, 2, 12, 30, 0, 0, time.UTC)
	s.now = func() time.Time { return now }

	ctx := context.Background()
	s.tick(ctx, 9*60, 2, 12*60)
	s.tick(ctx, 9*60, 2, 12*60)
	s.wg.Wait()

	got := launcher.workflows()
	if len(got) != 2 {
		t.Fatalf("expected 2 launches, got %v", got)
	}
	seen := map[domain.Workflow]bool{}
	for _, w := range got {
		seen[w] = true
	}
	if !seen[domain.WorkflowDaily] || !seen[domain.WorkflowMonthly] {
		t.Fatalf("expected daily and monthly launches, got %v", got)
	}

	now = now.Add(24 * time.Hour)
	s.tick(ctx, 9*60, 2, 12*60)
	s.wg.Wait()
	if got := launcher.workflows(); len(got) != 3 || got[2] != domain.WorkflowDaily {
		t.Fatalf("expected one more daily launch, got %v", got)
	}
}

func TestTickSkipsMonthlyWhenDisabled(t *testing.T) {
	launcher := &recordingLauncher{err: apperrors.ErrConflict}
	s := New(launcher, config.SchedulerConfig{MonthlyReport: false}, logger.NewNop())
	s.now = func() time.Time { return time.Date(2024, 3, 2, 12, 30, 0, 0, time.UTC) }

	s.tick(context.Background(), 9*60, 2, 12*60)
	s.wg.Wait()

	if got := launcher.workflows(); len(got) != 1 || got[0] != domain.WorkflowDaily {
		t.Fatalf("expected only the daily launch, got %v", got)
	}
}

func TestRunRejectsInvalidConfig(t *testing.T) {
	s := New(&recordingLauncher{}, config.SchedulerConfig{DailyAt: "nine", MonthlyAt: "12:00", MonthlyDay: 2}, logger.NewNop())
	if err := s.Run(context.Background()); !apperrors.Is(err, apperrors.ErrValidation) {
		t.Fatalf("expected validation error, got %v", err)
	}
}
