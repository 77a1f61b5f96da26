// Package testutil provides in-memory stand-ins for the AWS service clients.
package testutil

import (
	"bytes"
	"fmt"
	"io"
	"sync"
	"time"

	"github.com/aws/aws-sdk-go/aws"
	"github.com/aws/aws-sdk-go/aws/request"
	"github.com/aws/aws-sdk-go/service/athena"
	"github.com/aws/aws-sdk-go/service/athena/athenaiface"
	"github.com/aws/aws-sdk-go/service/firehose"
	"github.com/aws/aws-sdk-go/service/firehose/firehoseiface"
	"github.com/aws/aws-sdk-go/service/glue"
	"github.com/aws/aws-sdk-go/service/glue/glueiface"
	"github.com/aws/aws-sdk-go/service/s3"
	"github.com/aws/aws-sdk-go/service/s3/s3iface"
	"github.com/aws/aws-sdk-go/service/sns"
	"github.com/aws/aws-sdk-go/service/sns/snsiface"
)

// CrawlerStatus is one scripted GetCrawler answer.
type CrawlerStatus struct {
	State      string
	LastStatus string
}

// FakeGlue scripts job run and crawler states. Each Get call consumes the next
// scripted state; the last one repeats.
type FakeGlue struct {
	glueiface.GlueAPI

	mu              sync.Mutex
	JobRunID        string
	JobStates       []string
	CrawlerStates   map[string][]CrawlerStatus
	StartJobInputs  []*glue.StartJobRunInput
	StartedCrawlers []string
	GetJobRunCalls  int
	crawlerCalls    map[string]int
	StartErr        error
	GetErr          error
}

func (f *FakeGlue) StartJobRunWithContext(_ aws.Context, in *glue.StartJobRunInput, _ ...request.Option) (*glue.StartJobRunOutput, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.StartErr != nil {
		return nil, f.StartErr
	}
	f.StartJobInputs = append(f.StartJobInputs, in)
	return &glue.StartJobRunOutput{JobRunId: aws.String(f.JobRunID)}, nil
}

func (f *FakeGlue) GetJobRunWithContext(_ aws.Context, in *glue.GetJobRunInput, _ ...request.Option) (*glue.GetJobRunOutput, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.GetErr != nil {
		return nil, f.GetErr
	}
	state := pick(f.JobStates, f.GetJobRunCalls)
	f.GetJobRunCalls++
	return &glue.GetJobRunOutput{JobRun: &glue.JobRun{
		Id:          in.RunId,
		JobName:     in.JobName,
		JobRunState: aws.String(state),
	}}, nil
}

func (f *FakeGlue) StartCrawlerWithContext(_ aws.Context, in *glue.StartCrawlerInput, _ ...request.Option) (*glue.StartCrawlerOutput, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.StartErr != nil {
		return nil, f.StartErr
	}
	f.StartedCrawlers = append(f.StartedCrawlers, aws.StringValue(in.Name))
	return &glue.StartCrawlerOutput{}, nil
}

func (f *FakeGlue) GetCrawlerWithContext(_ aws.Context, in *glue.GetCrawlerInput, _ ...request.Option) (*glue.GetCrawlerOutput, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.GetErr != nil {
		return nil, f.GetErr
	}
	if f.crawlerCalls == nil {
		f.crawlerCalls = make(map[string]int)
	}
	name := aws.StringValue(in.Name)
	script := f.CrawlerStates[name]
	if len(script) == 0 {
		return nil, fmt.Errorf("EntityNotFoundException: crawler %s", name)
	}
	idx := f.crawlerCalls[name]
	if idx >= len(script) {
		idx = len(script) - 1
	}
	f.crawlerCalls[name]++

	status := script[idx]
	crawler := &glue.Crawler{Name: in.Name, State: aws.String(status.State)}
	if status.LastStatus != "" {
		crawler.LastCrawl = &glue.LastCrawlInfo{Status: aws.String(status.LastStatus)}
	}
	return &glue.GetCrawlerOutput{Crawler: crawler}, nil
}

// FakeAthena scripts query execution states.
type FakeAthena struct {
	athenaiface.AthenaAPI

	mu          sync.Mutex
	ExecutionID string
	States      []string
	StartInputs []*athena.StartQueryExecutionInput
	GetCalls    int
	StartErr    error
}

func (f *FakeAthena) StartQueryExecutionWithContext(_ aws.Context, in *athena.StartQueryExecutionInput, _ ...request.Option) (*athena.StartQueryExecutionOutput, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.StartErr != nil {
		return nil, f.StartErr
	}
	f.StartInputs = append(f.StartInputs, in)
	return &athena.StartQueryExecutionOutput{QueryExecutionId: aws.String(f.ExecutionID)}, nil
}

func (f *FakeAthena) GetQueryExecutionWithContext(_ aws.Context, in *athena.GetQueryExecutionInput, _ ...request.Option) (*athena.GetQueryExecutionOutput, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	state := pick(f.States, f.GetCalls)
	f.GetCalls++
	return &athena.GetQueryExecutionOutput{QueryExecution: &athena.QueryExecution{
		QueryExecutionId: in.QueryExecutionId,
		Status:           &athena.QueryExecutionStatus{State: aws.String(state)},
	}}, nil
}

// FakeSNS records published messages.
type FakeSNS struct {
	snsiface.SNSAPI

	mu        sync.Mutex
	Published []*sns.PublishInput
	Err       error
}

func (f *FakeSNS) PublishWithContext(_ aws.Context, in *sns.PublishInput, _ ...request.Option) (*sns.PublishOutput, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.Err != nil {
		return nil, f.Err
	}
	f.Published = append(f.Published, in)
	return &sns.PublishOutput{MessageId: aws.String(fmt.Sprintf("msg-%d", len(f.Published)))}, nil
}

// Messages returns a snapshot of published inputs.
func (f *FakeSNS) Messages() []*sns.PublishInput {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]*sns.PublishInput(nil), f.Published...)
}

// FakeS3 keeps objects in memory keyed by bucket/key.
type FakeS3 struct {
	s3iface.S3API

	mu      sync.Mutex
	Objects map[string][]byte
	PutErr  error
}

func (f *FakeS3) PutObjectWithContext(_ aws.Context, in *s3.PutObjectInput, _ ...request.Option) (*s3.PutObjectOutput, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.PutErr != nil {
		return nil, f.PutErr
	}
	body, err := io.ReadAll(in.Body)
	if err != nil {
		return nil, err
	}
	if f.Objects == nil {
		f.Objects = make(map[string][]byte)
	}
	f.Objects[aws.StringValue(in.Bucket)+"/"+aws.StringValue(in.Key)] = body
	return &s3.PutObjectOutput{}, nil
}

func (f *FakeS3) GetObjectWithContext(_ aws.Context, in *s3.GetObjectInput, _ ...request.Option) (*s3.GetObjectOutput, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	body, ok := f.Objects[aws.StringValue(in.Bucket)+"/"+aws.StringValue(in.Key)]
	if !ok {
		return nil, fmt.Errorf("NoSuchKey: %s", aws.StringValue(in.Key))
	}
	return &s3.GetObjectOutput{Body: io.NopCloser(bytes.NewReader(body))}, nil
}

// FakeFirehose records delivered payloads.
type FakeFirehose struct {
	firehoseiface.FirehoseAPI

	mu      sync.Mutex
	Streams []string
	Records [][]byte
	Err     error
}

func (f *FakeFirehose) PutRecordWithContext(_ aws.Context, in *firehose.PutRecordInput, _ ...request.Option) (*firehose.PutRecordOutput, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.Err != nil {
		return nil, f.Err
	}
	f.Streams = append(f.Streams, aws.StringValue(in.DeliveryStreamName))
	f.Records = append(f.Records, in.Record.Data)
	return &firehose.PutRecordOutput{RecordId: aws.String(fmt.Sprintf("rec-%d", len(f.Records)))}, nil
}

// FakePresigner returns deterministic links and remembers the TTLs asked for.
type FakePresigner struct {
	mu   sync.Mutex
	TTLs []time.Duration
	Err  error
}

func (f *FakePresigner) PresignGetObject(bucket, key string, ttl time.Duration) (string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.Err != nil {
		return "", f.Err
	}
	f.TTLs = append(f.TTLs, ttl)
	return fmt.Sprintf("https://%s.s3.amazonaws.com/%s?X-Amz-Expires=%d", bucket, key, int(ttl.Seconds())), nil
}

func pick(states []string, i int) string {
	if len(states) == 0 {
		return ""
	}
	if i >= len(states) {
		return states[len(states)-1]
	}
	return states[i]
}
