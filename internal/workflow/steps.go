// Package workflow holds the step handlers of the daily transform and monthly
// report workflows, and a runner that drives them in process.
package workflow

import (
	"context"
	"fmt"
	"path"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"

	"github.com/aws-samples/amazon-chime-voiceconnector-cdr-processing/internal/infra/cloud"
	"github.com/aws-samples/amazon-chime-voiceconnector-cdr-processing/internal/notify"
	"github.com/aws-samples/amazon-chime-voiceconnector-cdr-processing/internal/operation"
	"github.com/aws-samples/amazon-chime-voiceconnector-cdr-processing/pkg/logger"
)

// StepsConfig carries the fixed names the steps need.
type StepsConfig struct {
	Database       string
	ProcessedTable string
	ResultsBucket  string
	OutputPrefix   string
	ResultLinkTTL  time.Duration
}

// Deps are the collaborators of the step handlers.
type Deps struct {
	Jobs          *operation.JobLauncher
	Crawlers      *operation.CrawlerLauncher
	Queries       *operation.QueryLauncher
	JobPoller     *operation.Poller
	CrawlerPoller *operation.Poller
	QueryPoller   *operation.Poller
	Presigner     cloud.Presigner
	Sender        notify.Sender
	Logger        *logger.Logger
}

// Steps implements every step of both workflows. Each method performs one
// unit of work and returns the flags the orchestrator branches on; none of
// them loops.
type Steps struct {
	deps Deps
	cfg  StepsConfig
	now  func() time.Time
}

// NewSteps constructs the step handlers.
func NewSteps(deps Deps, cfg StepsConfig) *Steps {
	if cfg.ResultLinkTTL <= 0 {
		cfg.ResultLinkTTL = time.Hour
	}
	return &Steps{deps: deps, cfg: cfg, now: time.Now}
}

// RunRawCrawler starts the raw CDR crawler.
func (s *Steps) RunRawCrawler(ctx context.Context, state DailyState) (CrawlStatus, error) {
	ctx, span := startSpan(ctx, "workflow.run_raw_crawler")
	defer span.End()

	if _, err := s.deps.Crawlers.Start(ctx, state.Crawlers.RawCrawler); err != nil {
		span.RecordError(err)
		return CrawlStatus{}, err
	}
	s.deps.Logger.Info("workflow: raw crawler started", zap.String("crawler", state.Crawlers.RawCrawler))
	return CrawlStatus{}, nil
}

// CheckRawCrawler reads the raw crawler once.
func (s *Steps) CheckRawCrawler(ctx context.Context, state DailyState) (CrawlStatus, error) {
	ctx, span := startSpan(ctx, "workflow.check_raw_crawler")
	defer span.End()

	name := state.Crawlers.RawCrawler
	res, err := s.deps.CrawlerPoller.Check(ctx, name, name)
	if err != nil {
		span.RecordError(err)
		return CrawlStatus{}, err
	}
	return CrawlStatus{CrawlerComplete: res.Complete, CrawlerFailure: res.Failure, ErrorMessage: res.ErrorMessage}, nil
}

// RunETL starts the transform job for the requested day, yesterday by default.
func (s *Steps) RunETL(ctx context.Context, state DailyState) (ETLStatus, error) {
	ctx, span := startSpan(ctx, "workflow.run_etl")
	defer span.End()

	date, err := operation.ResolveDate(state.Input.Date, s.now())
	if err != nil {
		span.RecordError(err)
		return ETLStatus{}, err
	}

	runID, err := s.deps.Jobs.Start(ctx, state.Jobs.ETLJob, date)
	if err != nil {
		span.RecordError(err)
		return ETLStatus{}, err
	}
	s.deps.Logger.Info("workflow: transform job started",
		zap.String("job", state.Jobs.ETLJob), zap.String("run_id", runID), zap.String("date", date.String()))
	return ETLStatus{RunID: runID, Date: date.String()}, nil
}

// CheckETL reads the transform run started by RunETL.
func (s *Steps) CheckETL(ctx context.Context, state DailyState) (ETLStatus, error) {
	ctx, span := startSpan(ctx, "workflow.check_etl")
	defer span.End()

	if state.ETL == nil || state.ETL.Payload.RunID == "" {
		return ETLStatus{}, fmt.Errorf("workflow: check etl: no run id in state")
	}
	prev := state.ETL.Payload

	res, err := s.deps.JobPoller.Check(ctx, state.Jobs.ETLJob, prev.RunID)
	if err != nil {
		span.RecordError(err)
		return ETLStatus{}, err
	}
	return ETLStatus{
		RunID:        prev.RunID,
		Date:         prev.Date,
		ETLComplete:  res.Complete,
		ETLFailure:   res.Failure,
		ErrorMessage: res.ErrorMessage,
	}, nil
}

// RunProcessedCrawler starts the processed CDR crawler.
func (s *Steps) RunProcessedCrawler(ctx context.Context, state DailyState) (ProcessedStatus, error) {
	ctx, span := startSpan(ctx, "workflow.run_processed_crawler")
	defer span.End()

	if _, err := s.deps.Crawlers.Start(ctx, state.Crawlers.ProcessedCrawler); err != nil {
		span.RecordError(err)
		return ProcessedStatus{}, err
	}
	s.deps.Logger.Info("workflow: processed crawler started", zap.String("crawler", state.Crawlers.ProcessedCrawler))
	return ProcessedStatus{}, nil
}

// CheckProcessedCrawler reads the processed crawler once.
func (s *Steps) CheckProcessedCrawler(ctx context.Context, state DailyState) (ProcessedStatus, error) {
	ctx, span := startSpan(ctx, "workflow.check_processed_crawler")
	defer span.End()

	name := state.Crawlers.ProcessedCrawler
	res, err := s.deps.CrawlerPoller.Check(ctx, name, name)
	if err != nil {
		span.RecordError(err)
		return ProcessedStatus{}, err
	}
	return ProcessedStatus{
		ProcessedCrawlerComplete: res.Complete,
		ProcessedCrawlerFailure:  res.Failure,
		ErrorMessage:             res.ErrorMessage,
	}, nil
}

// SendResults reports the daily outcome.
func (s *Steps) SendResults(ctx context.Context, state DailyState) (SendResult, error) {
	ctx, span := startSpan(ctx, "workflow.send_results")
	defer span.End()

	var runID, date string
	if state.ETL != nil {
		runID, date = state.ETL.Payload.RunID, state.ETL.Payload.Date
	}
	if date == "" {
		if d, err := operation.ResolveDate(state.Input.Date, s.now()); err == nil {
			date = d.String()
		}
	}

	n := notify.ProcessingResult(date, runID, state.ErrorMessage())
	id, err := s.deps.Sender.Send(ctx, n)
	if err != nil {
		span.RecordError(err)
		return SendResult{}, err
	}
	return sendResult(id, n), nil
}

// RunQuery starts the monthly usage query for the requested month, last
// week's month by default.
func (s *Steps) RunQuery(ctx context.Context, state QueryState) (QueryState, error) {
	ctx, span := startSpan(ctx, "workflow.run_query")
	defer span.End()

	month, err := operation.ResolveMonth(state.Month, s.now())
	if err != nil {
		span.RecordError(err)
		return QueryState{}, err
	}

	id, err := s.deps.Queries.Start(ctx, operation.MonthlyUsageQuery(s.cfg.Database, s.cfg.ProcessedTable, month))
	if err != nil {
		span.RecordError(err)
		return QueryState{}, err
	}
	s.deps.Logger.Info("workflow: monthly query started", zap.String("execution_id", id), zap.String("month", month))
	return QueryState{Month: month, QueryExecutionID: id}, nil
}

// CheckQuery reads the query once and, on success, links to its result file.
func (s *Steps) CheckQuery(ctx context.Context, state QueryState) (QueryState, error) {
	ctx, span := startSpan(ctx, "workflow.check_query")
	defer span.End()

	if state.QueryExecutionID == "" {
		return QueryState{}, fmt.Errorf("workflow: check query: no execution id in state")
	}

	res, err := s.deps.QueryPoller.Check(ctx, "", state.QueryExecutionID)
	if err != nil {
		span.RecordError(err)
		return QueryState{}, err
	}

	out := QueryState{
		Month:            state.Month,
		QueryExecutionID: state.QueryExecutionID,
		AthenaComplete:   res.Complete,
		AthenaFailure:    res.Failure,
		ErrorMessage:     res.ErrorMessage,
	}
	if res.Complete {
		key := path.Join(s.cfg.OutputPrefix, state.QueryExecutionID+".csv")
		link, err := s.deps.Presigner.PresignGetObject(s.cfg.ResultsBucket, key, s.cfg.ResultLinkTTL)
		if err != nil {
			span.RecordError(err)
			return QueryState{}, err
		}
		out.PreSignedURL = link
	}
	return out, nil
}

// SendReport reports the monthly outcome.
func (s *Steps) SendReport(ctx context.Context, state QueryState) (SendResult, error) {
	ctx, span := startSpan(ctx, "workflow.send_report")
	defer span.End()

	n := notify.QueryReport(state.PreSignedURL, state.ErrorMessage)
	id, err := s.deps.Sender.Send(ctx, n)
	if err != nil {
		span.RecordError(err)
		return SendResult{}, err
	}
	return sendResult(id, n), nil
}

func startSpan(ctx context.Context, name string, attrs ...attribute.KeyValue) (context.Context, trace.Span) {
	return otel.Tracer("cdr.workflow").Start(ctx, name, trace.WithAttributes(attrs...))
}
