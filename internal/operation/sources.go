package operation

import (
	"context"
	"fmt"

	"github.com/aws/aws-sdk-go/aws"
	"github.com/aws/aws-sdk-go/service/athena"
	"github.com/aws/aws-sdk-go/service/athena/athenaiface"
	"github.com/aws/aws-sdk-go/service/glue"
	"github.com/aws/aws-sdk-go/service/glue/glueiface"
)

// JobSource reads transform job run state.
type JobSource struct {
	client glueiface.GlueAPI
}

// NewJobSource wraps a Glue client.
func NewJobSource(client glueiface.GlueAPI) *JobSource {
	return &JobSource{client: client}
}

// Observe reads the run identified by (job, runID).
func (s *JobSource) Observe(ctx context.Context, job, runID string) (Observation, error) {
	out, err := s.client.GetJobRunWithContext(ctx, &glue.GetJobRunInput{
		JobName: aws.String(job),
		RunId:   aws.String(runID),
	})
	if err != nil {
		return Observation{}, fmt.Errorf("get job run %s/%s: %w", job, runID, err)
	}
	if out.JobRun == nil {
		return Observation{}, fmt.Errorf("get job run %s/%s: empty response", job, runID)
	}

	state := aws.StringValue(out.JobRun.JobRunState)
	return Observation{
		State:   state,
		Outcome: state,
		Detail:  aws.StringValue(out.JobRun.ErrorMessage),
	}, nil
}

// CrawlerSource reads crawler state. One instance serves every crawler; the
// crawler name is the target.
type CrawlerSource struct {
	client glueiface.GlueAPI
}

// NewCrawlerSource wraps a Glue client.
func NewCrawlerSource(client glueiface.GlueAPI) *CrawlerSource {
	return &CrawlerSource{client: client}
}

// Observe reads the crawler and its last crawl.
func (s *CrawlerSource) Observe(ctx context.Context, name, _ string) (Observation, error) {
	out, err := s.client.GetCrawlerWithContext(ctx, &glue.GetCrawlerInput{Name: aws.String(name)})
	if err != nil {
		return Observation{}, fmt.Errorf("get crawler %s: %w", name, err)
	}
	if out.Crawler == nil {
		return Observation{}, fmt.Errorf("get crawler %s: empty response", name)
	}

	obs := Observation{State: aws.StringValue(out.Crawler.State)}
	if last := out.Crawler.LastCrawl; last != nil {
		obs.Outcome = aws.StringValue(last.Status)
		obs.Detail = aws.StringValue(last.ErrorMessage)
	}
	return obs, nil
}

// QuerySource reads query execution state. The execution id is the token.
type QuerySource struct {
	client athenaiface.AthenaAPI
}

// NewQuerySource wraps an Athena client.
func NewQuerySource(client athenaiface.AthenaAPI) *QuerySource {
	return &QuerySource{client: client}
}

// Observe reads the execution status.
func (s *QuerySource) Observe(ctx context.Context, _, executionID string) (Observation, error) {
	out, err := s.client.GetQueryExecutionWithContext(ctx, &athena.GetQueryExecutionInput{
		QueryExecutionId: aws.String(executionID),
	})
	if err != nil {
		return Observation{}, fmt.Errorf("get query execution %s: %w", executionID, err)
	}
	if out.QueryExecution == nil || out.QueryExecution.Status == nil {
		return Observation{}, fmt.Errorf("get query execution %s: empty response", executionID)
	}

	status := out.QueryExecution.Status
	state := aws.StringValue(status.State)
	return Observation{
		State:   state,
		Outcome: state,
		Detail:  aws.StringValue(status.StateChangeReason),
	}, nil
}
