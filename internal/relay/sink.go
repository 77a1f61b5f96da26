package relay

import (
	"context"
	"fmt"

	"github.com/aws/aws-sdk-go/aws"
	"github.com/aws/aws-sdk-go/service/firehose"
	"github.com/aws/aws-sdk-go/service/firehose/firehoseiface"
)

// Sink receives one encoded record.
type Sink interface {
	Name() string
	Deliver(ctx context.Context, payload []byte) error
}

// FirehoseSink puts each record onto a delivery stream.
type FirehoseSink struct {
	client firehoseiface.FirehoseAPI
	stream string
}

// NewFirehoseSink constructs a delivery stream sink.
func NewFirehoseSink(client firehoseiface.FirehoseAPI, stream string) *FirehoseSink {
	return &FirehoseSink{client: client, stream: stream}
}

// Name identifies the sink in logs.
func (s *FirehoseSink) Name() string { return "firehose" }

// Deliver sends payload as a single stream record.
func (s *FirehoseSink) Deliver(ctx context.Context, payload []byte) error {
	_, err := s.client.PutRecordWithContext(ctx, &firehose.PutRecordInput{
		DeliveryStreamName: aws.String(s.stream),
		Record:             &firehose.Record{Data: payload},
	})
	if err != nil {
		return fmt.Errorf("firehose: put record to %s: %w", s.stream, err)
	}
	return nil
}
