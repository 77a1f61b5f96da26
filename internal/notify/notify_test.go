package notify

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/aws/aws-lambda-go/events"
	"github.com/aws/aws-sdk-go/aws"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/aws-samples/amazon-chime-voiceconnector-cdr-processing/internal/testutil"
	"github.com/aws-samples/amazon-chime-voiceconnector-cdr-processing/pkg/logger"
)

func TestProcessingResult(t *testing.T) {
	t.Parallel()

	ok := ProcessingResult("2024-02-29", "jr_1", "")
	assert.Equal(t, "Processing CDRs Complete", ok.Subject)
	assert.Equal(t, "CDR Processing Complete:  2024-02-29 (run jr_1)", ok.Message)

	failed := ProcessingResult("2024-02-29", "jr_1", "Error in ETL. Status: FAILED")
	assert.Equal(t, "Error Processing CDRs", failed.Subject)
	assert.Equal(t, "Error Processing:  Error in ETL. Status: FAILED", failed.Message)
}

func TestQueryReport(t *testing.T) {
	t.Parallel()

	n := QueryReport("https://example/x.csv", "")
	assert.Equal(t, "CDR Processing Complete:  https://example/x.csv", n.Message)
	assert.Equal(t, "https://example/x.csv", n.Link)

	n = QueryReport("", "Error in Query. Status: CANCELLED")
	assert.Empty(t, n.Link)
	assert.Contains(t, n.Message, "CANCELLED")
}

func TestPublisherSend(t *testing.T) {
	t.Parallel()

	fake := &testutil.FakeSNS{}
	pub := NewPublisher(fake, "arn:aws:sns:us-east-1:123:cdr", logger.NewNop())

	id, err := pub.Send(context.Background(), ProcessingResult("2024-01-01", "", ""))
	require.NoError(t, err)
	assert.Equal(t, "msg-1", id)

	_, err = pub.Send(context.Background(), ReportLink("https://link"))
	require.NoError(t, err)

	msgs := fake.Messages()
	require.Len(t, msgs, 2)
	assert.Equal(t, "arn:aws:sns:us-east-1:123:cdr", aws.StringValue(msgs[0].TopicArn))
	assert.Equal(t, "Processing CDRs Complete", aws.StringValue(msgs[0].Subject))
	assert.Nil(t, msgs[1].Subject)
	assert.Nil(t, msgs[1].MessageStructure)
}

func TestPublisherSendError(t *testing.T) {
	t.Parallel()

	fake := &testutil.FakeSNS{Err: errors.New("AuthorizationError")}
	_, err := NewPublisher(fake, "arn", logger.NewNop()).Send(context.Background(), Failure("x"))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "AuthorizationError")
}

func TestReportHandlerSendsOneLinkPerObject(t *testing.T) {
	t.Parallel()

	sns := &testutil.FakeSNS{}
	presigner := &testutil.FakePresigner{}
	handler := NewReportHandler(presigner, NewPublisher(sns, "arn", logger.NewNop()), 0, logger.NewNop())

	event := events.S3Event{Records: []events.S3EventRecord{
		s3Record("reports", "results/a.csv"),
		s3Record("reports", "results/monthly+report%3A02.csv"),
	}}

	require.NoError(t, handler.HandleS3Event(context.Background(), event))

	msgs := sns.Messages()
	require.Len(t, msgs, 2)
	assert.Equal(t,
		"Please open the following link to view the generated CDR report. https://reports.s3.amazonaws.com/results/a.csv?X-Amz-Expires=86400",
		aws.StringValue(msgs[0].Message))
	assert.Contains(t, aws.StringValue(msgs[1].Message), "results/monthly report:02.csv")
	assert.Equal(t, []time.Duration{24 * time.Hour, 24 * time.Hour}, presigner.TTLs)
}

func TestReportHandlerContinuesAfterFailure(t *testing.T) {
	t.Parallel()

	presigner := &testutil.FakePresigner{Err: errors.New("no credentials")}
	sns := &testutil.FakeSNS{}
	handler := NewReportHandler(presigner, NewPublisher(sns, "arn", logger.NewNop()), time.Hour, logger.NewNop())

	err := handler.HandleS3Event(context.Background(), events.S3Event{Records: []events.S3EventRecord{
		s3Record("b", "k1"), s3Record("b", "k2"),
	}})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "no credentials")
	assert.Empty(t, sns.Messages())
}

func s3Record(bucket, key string) events.S3EventRecord {
	return events.S3EventRecord{S3: events.S3Entity{
		Bucket: events.S3Bucket{Name: bucket},
		Object: events.S3Object{Key: key},
	}}
}
