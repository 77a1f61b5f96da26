// Package relay forwards stored CDR objects to streaming destinations.
package relay

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/aws/aws-lambda-go/events"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"

	"github.com/aws-samples/amazon-chime-voiceconnector-cdr-processing/internal/infra/cloud"
	apperrors "github.com/aws-samples/amazon-chime-voiceconnector-cdr-processing/pkg/errors"
	"github.com/aws-samples/amazon-chime-voiceconnector-cdr-processing/pkg/logger"
)

// Outcome is the final state of one relayed object.
type Outcome string

const (
	OutcomeRelayed  Outcome = "relayed"
	OutcomeRejected Outcome = "rejected"
)

// Summary counts what happened to a batch.
type Summary struct {
	Relayed  int
	Rejected int
	Failed   int
}

// Relay reads CDR objects, optionally cleans them, and fans them out to sinks.
type Relay struct {
	objects   cloud.ObjectStore
	validator *Validator
	sinks     []Sink
	logger    *logger.Logger
}

// New constructs a relay. A nil validator forwards records untouched.
func New(objects cloud.ObjectStore, validator *Validator, sinks []Sink, lg *logger.Logger) *Relay {
	return &Relay{objects: objects, validator: validator, sinks: sinks, logger: lg}
}

// HandleS3Event processes every record in the batch. Rejections are logged
// and counted; read and delivery errors are collected and returned.
func (r *Relay) HandleS3Event(ctx context.Context, event events.S3Event) (Summary, error) {
	var (
		summary Summary
		errs    []error
	)
	for _, rec := range event.Records {
		key, err := cloud.ObjectKey(rec.S3.Object)
		if err != nil {
			summary.Failed++
			errs = append(errs, fmt.Errorf("relay: %w", err))
			continue
		}

		outcome, err := r.Process(ctx, rec.S3.Bucket.Name, key)
		switch {
		case err != nil:
			summary.Failed++
			errs = append(errs, err)
		case outcome == OutcomeRejected:
			summary.Rejected++
		default:
			summary.Relayed++
		}
	}
	return summary, errors.Join(errs...)
}

// Process relays a single stored object.
func (r *Relay) Process(ctx context.Context, bucket, key string) (Outcome, error) {
	tracer := otel.Tracer("cdr.relay")
	ctx, span := tracer.Start(ctx, "relay.process", trace.WithAttributes(
		attribute.String("s3.bucket", bucket),
		attribute.String("s3.key", key),
	))
	defer span.End()

	body, err := r.objects.GetObject(ctx, bucket, key)
	if err != nil {
		span.RecordError(err)
		return "", fmt.Errorf("relay: %w", err)
	}

	payload, err := r.prepare(key, body)
	if err != nil {
		r.logger.Warn("relay: record rejected", zap.String("key", key), zap.Error(err))
		span.SetAttributes(attribute.String("relay.outcome", string(OutcomeRejected)))
		return OutcomeRejected, nil
	}

	var errs []error
	for _, sink := range r.sinks {
		if err := sink.Deliver(ctx, payload); err != nil {
			span.RecordError(err)
			errs = append(errs, fmt.Errorf("relay: sink %s: %w", sink.Name(), err))
		}
	}
	if err := errors.Join(errs...); err != nil {
		return "", err
	}

	r.logger.Info("relay: record relayed", zap.String("key", key), zap.Int("sinks", len(r.sinks)))
	span.SetAttributes(attribute.String("relay.outcome", string(OutcomeRelayed)))
	return OutcomeRelayed, nil
}

func (r *Relay) prepare(key string, body []byte) ([]byte, error) {
	if r.validator == nil {
		var buf bytes.Buffer
		if err := json.Compact(&buf, bytes.TrimSpace(body)); err != nil {
			return nil, fmt.Errorf("%w: %v", apperrors.ErrRejected, err)
		}
		return buf.Bytes(), nil
	}

	record, err := decodeObject(body)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", apperrors.ErrRejected, err)
	}

	clean, removed := r.validator.Validate(record)
	if len(removed) > 0 {
		r.logger.Warn("relay: removed keys from record", zap.String("key", key), zap.Strings("removed_keys", removed))
	}
	if len(clean) == 0 {
		return nil, fmt.Errorf("%w: no valid fields remain", apperrors.ErrRejected)
	}

	payload, err := json.Marshal(clean)
	if err != nil {
		return nil, fmt.Errorf("%w: encode: %v", apperrors.ErrRejected, err)
	}
	return payload, nil
}
