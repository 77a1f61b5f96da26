package operation

import (
	"context"
	"fmt"

	"github.com/aws/aws-sdk-go/aws"
	"github.com/aws/aws-sdk-go/service/athena"
	"github.com/aws/aws-sdk-go/service/athena/athenaiface"
	"github.com/aws/aws-sdk-go/service/glue"
	"github.com/aws/aws-sdk-go/service/glue/glueiface"
	"github.com/google/uuid"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
)

// JobParams are the named arguments every transform run receives.
type JobParams struct {
	DestBucket string
	Database   string
	Table      string
}

// JobLauncher starts transform job runs.
type JobLauncher struct {
	client glueiface.GlueAPI
	params JobParams
}

// NewJobLauncher constructs a job launcher.
func NewJobLauncher(client glueiface.GlueAPI, params JobParams) *JobLauncher {
	return &JobLauncher{client: client, params: params}
}

// Start launches one run of job for date and returns the run id verbatim.
func (l *JobLauncher) Start(ctx context.Context, job string, date Date) (string, error) {
	ctx, span := startSpan(ctx, "operation.start_job", attribute.String("job.name", job), attribute.String("job.date", date.String()))
	defer span.End()

	out, err := l.client.StartJobRunWithContext(ctx, &glue.StartJobRunInput{
		JobName:   aws.String(job),
		Arguments: aws.StringMap(JobArguments(l.params, date)),
	})
	if err != nil {
		span.RecordError(err)
		return "", fmt.Errorf("job launcher: start %s: %w", job, err)
	}
	return aws.StringValue(out.JobRunId), nil
}

// JobArguments renders the job's named arguments; month and day are zero padded.
func JobArguments(p JobParams, date Date) map[string]string {
	return map[string]string{
		"--DEST_BUCKET": p.DestBucket,
		"--DATABASE":    p.Database,
		"--TABLE":       p.Table,
		"--YEAR":        fmt.Sprintf("%d", date.Year),
		"--MONTH":       fmt.Sprintf("%02d", int(date.Month)),
		"--DATE":        fmt.Sprintf("%02d", date.Day),
	}
}

// CrawlerLauncher starts catalog crawlers.
type CrawlerLauncher struct {
	client glueiface.GlueAPI
}

// NewCrawlerLauncher constructs a crawler launcher.
func NewCrawlerLauncher(client glueiface.GlueAPI) *CrawlerLauncher {
	return &CrawlerLauncher{client: client}
}

// Start triggers the crawler. Crawls have no run id, so the crawler name is
// returned as the correlation token.
func (l *CrawlerLauncher) Start(ctx context.Context, name string) (string, error) {
	ctx, span := startSpan(ctx, "operation.start_crawler", attribute.String("crawler.name", name))
	defer span.End()

	if _, err := l.client.StartCrawlerWithContext(ctx, &glue.StartCrawlerInput{Name: aws.String(name)}); err != nil {
		span.RecordError(err)
		return "", fmt.Errorf("crawler launcher: start %s: %w", name, err)
	}
	return name, nil
}

// QueryTarget is where query executions run and write their results.
type QueryTarget struct {
	Database       string
	Catalog        string
	OutputLocation string
}

// QueryLauncher starts query executions.
type QueryLauncher struct {
	client   athenaiface.AthenaAPI
	target   QueryTarget
	newToken func() string
}

// NewQueryLauncher constructs a query launcher.
func NewQueryLauncher(client athenaiface.AthenaAPI, target QueryTarget) *QueryLauncher {
	return &QueryLauncher{
		client:   client,
		target:   target,
		newToken: func() string { return uuid.NewString() },
	}
}

// Start submits sql and returns the execution id verbatim. Every call carries
// its own client request token.
func (l *QueryLauncher) Start(ctx context.Context, sql string) (string, error) {
	token := l.newToken()
	ctx, span := startSpan(ctx, "operation.start_query", attribute.String("query.database", l.target.Database), attribute.String("query.token", token))
	defer span.End()

	execCtx := &athena.QueryExecutionContext{Database: aws.String(l.target.Database)}
	if l.target.Catalog != "" {
		execCtx.Catalog = aws.String(l.target.Catalog)
	}

	out, err := l.client.StartQueryExecutionWithContext(ctx, &athena.StartQueryExecutionInput{
		QueryString:           aws.String(sql),
		ClientRequestToken:    aws.String(token),
		QueryExecutionContext: execCtx,
		ResultConfiguration: &athena.ResultConfiguration{
			OutputLocation: aws.String(l.target.OutputLocation),
		},
	})
	if err != nil {
		span.RecordError(err)
		return "", fmt.Errorf("query launcher: start: %w", err)
	}
	return aws.StringValue(out.QueryExecutionId), nil
}

// OutputLocation renders s3://bucket/prefix/.
func OutputLocation(bucket, prefix string) string {
	return fmt.Sprintf("s3://%s/%s/", bucket, prefix)
}

func startSpan(ctx context.Context, name string, attrs ...attribute.KeyValue) (context.Context, trace.Span) {
	return otel.Tracer("cdr.operation").Start(ctx, name, trace.WithAttributes(attrs...))
}
