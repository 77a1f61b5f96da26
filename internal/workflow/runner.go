package workflow

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/aws-samples/amazon-chime-voiceconnector-cdr-processing/internal/domain"
	"github.com/aws-samples/amazon-chime-voiceconnector-cdr-processing/internal/operation"
	"github.com/aws-samples/amazon-chime-voiceconnector-cdr-processing/internal/repository"
	"github.com/aws-samples/amazon-chime-voiceconnector-cdr-processing/internal/service/lock"
	apperrors "github.com/aws-samples/amazon-chime-voiceconnector-cdr-processing/pkg/errors"
	"github.com/aws-samples/amazon-chime-voiceconnector-cdr-processing/pkg/logger"
)

// Waits are the pauses between a start or check and the next check.
type Waits struct {
	Crawler   time.Duration
	ETL       time.Duration
	Processed time.Duration
	Query     time.Duration
}

// RunnerConfig configures the in-process orchestrator.
type RunnerConfig struct {
	Crawlers Crawlers
	Jobs     Jobs
	Waits    Waits
	// MaxPolls bounds the checks per operation; zero means unbounded.
	MaxPolls int
}

// Request asks for one workflow execution.
type Request struct {
	Workflow domain.Workflow `json:"workflow"`
	Date     string          `json:"date,omitempty"`
	Month    string          `json:"month,omitempty"`
}

// Handle is a prepared execution holding its launch lease.
type Handle struct {
	Execution *domain.Execution
	request   Request
	lockName  string
	lockToken string
}

// Runner walks the workflow graphs: start, wait, check until terminal, then
// notify. Any failure short-circuits to the notification step.
type Runner struct {
	steps  *Steps
	repo   repository.RunRepository
	locker lock.Locker
	cfg    RunnerConfig
	now    func() time.Time
	sleep  func(ctx context.Context, d time.Duration) error
	logger *logger.Logger
}

// NewRunner constructs a runner.
func NewRunner(steps *Steps, repo repository.RunRepository, locker lock.Locker, cfg RunnerConfig, lg *logger.Logger) *Runner {
	return &Runner{
		steps:  steps,
		repo:   repo,
		locker: locker,
		cfg:    cfg,
		now:    time.Now,
		sleep:  sleepCtx,
		logger: lg,
	}
}

// Run prepares and executes a workflow synchronously.
func (r *Runner) Run(ctx context.Context, req Request) (*domain.Execution, error) {
	h, err := r.Prepare(ctx, req)
	if err != nil {
		return nil, err
	}
	if err := r.Execute(ctx, h); err != nil {
		return h.Execution, err
	}
	return h.Execution, nil
}

// Prepare validates the request, takes the launch lease for its workflow and
// period, and records a running execution.
func (r *Runner) Prepare(ctx context.Context, req Request) (*Handle, error) {
	period, err := r.period(req)
	if err != nil {
		return nil, err
	}
	switch req.Workflow {
	case domain.WorkflowDaily:
		req.Date = period
	case domain.WorkflowMonthly:
		req.Month = period
	}

	name := string(req.Workflow) + ":" + period
	token, ok, err := r.locker.Acquire(ctx, name)
	if err != nil {
		return nil, err
	}
	if !ok {
		return nil, fmt.Errorf("workflow %s already running: %w", name, apperrors.ErrConflict)
	}

	input, _ := json.Marshal(req)
	now := r.now().UTC()
	exec := &domain.Execution{
		ID:        uuid.New(),
		Workflow:  req.Workflow,
		Input:     string(input),
		Status:    domain.ExecutionStatusRunning,
		CreatedAt: now,
		UpdatedAt: now,
	}
	if err := r.repo.CreateExecution(ctx, exec); err != nil {
		_ = r.locker.Release(ctx, name, token)
		return nil, err
	}

	return &Handle{Execution: exec, request: req, lockName: name, lockToken: token}, nil
}

// Execute drives a prepared execution to completion and releases its lease.
// Operation failures end in a failure notification and a nil error; errors
// from the services themselves are returned.
func (r *Runner) Execute(ctx context.Context, h *Handle) error {
	defer func() {
		if err := r.locker.Release(context.WithoutCancel(ctx), h.lockName, h.lockToken); err != nil {
			r.logger.Warn("workflow: release lease", zap.String("lease", h.lockName), zap.Error(err))
		}
	}()

	lg := r.logger.With(zap.String("execution_id", h.Execution.ID.String()), zap.String("workflow", string(h.Execution.Workflow)))
	lg.Info("workflow: execution started")

	var (
		failure string
		err     error
	)
	switch h.Execution.Workflow {
	case domain.WorkflowDaily:
		failure, err = r.daily(ctx, h)
	case domain.WorkflowMonthly:
		failure, err = r.monthly(ctx, h)
	default:
		err = fmt.Errorf("unknown workflow %q: %w", h.Execution.Workflow, apperrors.ErrValidation)
	}

	status := domain.ExecutionStatusSucceeded
	msg := failure
	switch {
	case err != nil:
		status, msg = domain.ExecutionStatusFailed, err.Error()
		lg.Error("workflow: execution aborted", zap.Error(err))
	case failure != "":
		status = domain.ExecutionStatusFailed
		lg.Warn("workflow: execution failed", zap.String("error_message", failure))
	default:
		lg.Info("workflow: execution succeeded")
	}

	h.Execution.Status, h.Execution.ErrorMessage = status, msg
	if uerr := r.repo.UpdateExecution(context.WithoutCancel(ctx), h.Execution.ID, status, msg); uerr != nil {
		lg.Error("workflow: update execution", zap.Error(uerr))
	}
	return err
}

func (r *Runner) daily(ctx context.Context, h *Handle) (string, error) {
	state := DailyState{
		Input:    StepInput{Date: h.request.Date},
		Crawlers: r.cfg.Crawlers,
		Jobs:     r.cfg.Jobs,
	}

	// raw crawler
	crawl, err := r.steps.RunRawCrawler(ctx, state)
	if err != nil {
		return "", err
	}
	state.Crawl = &Envelope[CrawlStatus]{Payload: crawl}
	run, err := r.begin(ctx, h, domain.OperationRawCrawler, state.Crawlers.RawCrawler, state.Crawlers.RawCrawler)
	if err != nil {
		return "", err
	}
	err = r.await(ctx, run, r.cfg.Waits.Crawler, "Crawler", func(ctx context.Context) (bool, bool, string, error) {
		st, err := r.steps.CheckRawCrawler(ctx, state)
		state.Crawl.Payload = st
		return st.CrawlerComplete, st.CrawlerFailure, st.ErrorMessage, err
	}, func(msg string) { state.Crawl.Payload = CrawlStatus{CrawlerFailure: true, ErrorMessage: msg} })
	if err != nil {
		return "", err
	}
	if state.Crawl.Payload.CrawlerFailure {
		return r.sendDaily(ctx, state)
	}

	// transform job
	etl, err := r.steps.RunETL(ctx, state)
	if err != nil {
		return "", err
	}
	state.ETL = &Envelope[ETLStatus]{Payload: etl}
	run, err = r.begin(ctx, h, domain.OperationETLJob, state.Jobs.ETLJob, etl.RunID)
	if err != nil {
		return "", err
	}
	err = r.await(ctx, run, r.cfg.Waits.ETL, "ETL", func(ctx context.Context) (bool, bool, string, error) {
		st, err := r.steps.CheckETL(ctx, state)
		if err == nil {
			state.ETL.Payload = st
		}
		return st.ETLComplete, st.ETLFailure, st.ErrorMessage, err
	}, func(msg string) {
		state.ETL.Payload.ETLFailure, state.ETL.Payload.ErrorMessage = true, msg
	})
	if err != nil {
		return "", err
	}
	if state.ETL.Payload.ETLFailure {
		return r.sendDaily(ctx, state)
	}

	// processed crawler
	processed, err := r.steps.RunProcessedCrawler(ctx, state)
	if err != nil {
		return "", err
	}
	state.Processed = &Envelope[ProcessedStatus]{Payload: processed}
	run, err = r.begin(ctx, h, domain.OperationProcessedCrawler, state.Crawlers.ProcessedCrawler, state.Crawlers.ProcessedCrawler)
	if err != nil {
		return "", err
	}
	err = r.await(ctx, run, r.cfg.Waits.Processed, "Crawler", func(ctx context.Context) (bool, bool, string, error) {
		st, err := r.steps.CheckProcessedCrawler(ctx, state)
		state.Processed.Payload = st
		return st.ProcessedCrawlerComplete, st.ProcessedCrawlerFailure, st.ErrorMessage, err
	}, func(msg string) {
		state.Processed.Payload = ProcessedStatus{ProcessedCrawlerFailure: true, ErrorMessage: msg}
	})
	if err != nil {
		return "", err
	}
	return r.sendDaily(ctx, state)
}

func (r *Runner) sendDaily(ctx context.Context, state DailyState) (string, error) {
	if _, err := r.steps.SendResults(ctx, state); err != nil {
		return "", err
	}
	return state.ErrorMessage(), nil
}

func (r *Runner) monthly(ctx context.Context, h *Handle) (string, error) {
	state, err := r.steps.RunQuery(ctx, QueryState{Month: h.request.Month})
	if err != nil {
		return "", err
	}
	run, err := r.begin(ctx, h, domain.OperationQuery, state.Month, state.QueryExecutionID)
	if err != nil {
		return "", err
	}

	err = r.await(ctx, run, r.cfg.Waits.Query, "Query", func(ctx context.Context) (bool, bool, string, error) {
		st, err := r.steps.CheckQuery(ctx, state)
		if err == nil {
			state = st
		}
		return st.AthenaComplete, st.AthenaFailure, st.ErrorMessage, err
	}, func(msg string) {
		state.AthenaFailure, state.ErrorMessage = true, msg
	})
	if err != nil {
		return "", err
	}

	if _, err := r.steps.SendReport(ctx, state); err != nil {
		return "", err
	}
	return state.ErrorMessage, nil
}

func (r *Runner) begin(ctx context.Context, h *Handle, kind domain.OperationKind, target, token string) (*domain.OperationRun, error) {
	run := &domain.OperationRun{
		ID:          uuid.New(),
		ExecutionID: h.Execution.ID,
		Kind:        kind,
		Target:      target,
		Token:       token,
		State:       domain.RunStateRunning,
		StartedAt:   r.now().UTC(),
	}
	if err := r.repo.RecordRun(ctx, run); err != nil {
		return nil, err
	}
	return run, nil
}

type checkFunc func(ctx context.Context) (complete, failure bool, errMsg string, err error)

// await waits, checks, and repeats until the check is terminal. When the poll
// budget runs out, giveUp marks the state failed.
func (r *Runner) await(ctx context.Context, run *domain.OperationRun, wait time.Duration, name string, check checkFunc, giveUp func(msg string)) error {
	for polls := 1; ; polls++ {
		if err := r.sleep(ctx, wait); err != nil {
			r.finish(ctx, run, domain.RunStateFailed, err.Error())
			return err
		}

		complete, failure, errMsg, err := check(ctx)
		if err != nil {
			r.finish(ctx, run, domain.RunStateFailed, err.Error())
			return err
		}
		switch {
		case failure:
			r.finish(ctx, run, domain.RunStateFailed, errMsg)
			return nil
		case complete:
			r.finish(ctx, run, domain.RunStateSucceeded, "")
			return nil
		}

		r.logger.Debug("workflow: operation not complete",
			zap.String("operation", string(run.Kind)), zap.String("token", run.Token), zap.Int("polls", polls))
		if r.cfg.MaxPolls > 0 && polls >= r.cfg.MaxPolls {
			msg := fmt.Sprintf("Error in %s. Status: NOT_COMPLETE after %d checks", name, polls)
			giveUp(msg)
			r.finish(ctx, run, domain.RunStateFailed, msg)
			return nil
		}
	}
}

func (r *Runner) finish(ctx context.Context, run *domain.OperationRun, state domain.RunState, msg string) {
	if err := r.repo.FinishRun(context.WithoutCancel(ctx), run.ID, state, msg, r.now().UTC()); err != nil {
		r.logger.Error("workflow: finish run", zap.String("run_id", run.ID.String()), zap.Error(err))
	}
}

func (r *Runner) period(req Request) (string, error) {
	now := r.now()
	switch req.Workflow {
	case domain.WorkflowDaily:
		d, err := operation.ResolveDate(req.Date, now)
		if err != nil {
			return "", err
		}
		return d.String(), nil
	case domain.WorkflowMonthly:
		return operation.ResolveMonth(req.Month, now)
	default:
		return "", fmt.Errorf("unknown workflow %q: %w", req.Workflow, apperrors.ErrValidation)
	}
}

func sleepCtx(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}
