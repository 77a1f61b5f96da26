// Package notify builds and publishes pipeline notifications.
package notify

import (
	"context"
	"fmt"

	"github.com/aws/aws-sdk-go/aws"
	"github.com/aws/aws-sdk-go/service/sns"
	"github.com/aws/aws-sdk-go/service/sns/snsiface"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"

	"github.com/aws-samples/amazon-chime-voiceconnector-cdr-processing/internal/domain"
	"github.com/aws-samples/amazon-chime-voiceconnector-cdr-processing/pkg/logger"
)

// Sender delivers one notification.
type Sender interface {
	Send(ctx context.Context, n domain.Notification) (string, error)
}

// Publisher sends notifications to a single topic. It does not retry.
type Publisher struct {
	client   snsiface.SNSAPI
	topicARN string
	logger   *logger.Logger
}

// NewPublisher constructs a topic publisher.
func NewPublisher(client snsiface.SNSAPI, topicARN string, lg *logger.Logger) *Publisher {
	return &Publisher{client: client, topicARN: topicARN, logger: lg}
}

// Send publishes n and returns the message id.
func (p *Publisher) Send(ctx context.Context, n domain.Notification) (string, error) {
	tracer := otel.Tracer("cdr.notify")
	ctx, span := tracer.Start(ctx, "notify.publish", trace.WithAttributes(
		attribute.String("notify.topic", p.topicARN),
		attribute.String("notify.subject", n.Subject),
	))
	defer span.End()

	in := &sns.PublishInput{
		TopicArn: aws.String(p.topicARN),
		Message:  aws.String(n.Message),
	}
	if n.Subject != "" {
		in.Subject = aws.String(n.Subject)
	}

	out, err := p.client.PublishWithContext(ctx, in)
	if err != nil {
		span.RecordError(err)
		return "", fmt.Errorf("notify: publish: %w", err)
	}

	id := aws.StringValue(out.MessageId)
	p.logger.Info("notify: message published", zap.String("message_id", id), zap.String("subject", n.Subject))
	return id, nil
}
