// Package archive consumes relayed CDRs from Kafka and stores them for lookup.
package archive

import (
	"context"

	"github.com/segmentio/kafka-go"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"

	apperrors "github.com/aws-samples/amazon-chime-voiceconnector-cdr-processing/pkg/errors"
	"github.com/aws-samples/amazon-chime-voiceconnector-cdr-processing/pkg/logger"
)

// MessageReader is the consumer side of a kafka topic.
type MessageReader interface {
	FetchMessage(ctx context.Context) (kafka.Message, error)
	CommitMessages(ctx context.Context, msgs ...kafka.Message) error
	Close() error
}

// Store persists one encoded CDR.
type Store interface {
	Deliver(ctx context.Context, payload []byte) error
}

// Worker moves records from the relay topic into the archive.
type Worker struct {
	reader MessageReader
	store  Store
	logger *logger.Logger
}

// New creates a new archive worker.
func New(reader MessageReader, store Store, lg *logger.Logger) *Worker {
	return &Worker{reader: reader, store: store, logger: lg}
}

// Run processes records until the context is cancelled. Malformed records are
// committed and skipped; store failures leave the offset uncommitted so the
// record is redelivered after a restart.
func (w *Worker) Run(ctx context.Context) error {
	defer w.reader.Close()

	tracer := otel.Tracer("cdr.archiver")
	for {
		msg, err := w.reader.FetchMessage(ctx)
		if err != nil {
			if ctx.Err() != nil {
				return ctx.Err()
			}
			w.logger.Error("archive worker: fetch", zap.Error(err))
			continue
		}

		sctx, span := tracer.Start(ctx, "cdr.archive", trace.WithAttributes(
			attribute.String("message.key", string(msg.Key)),
			attribute.Int64("message.offset", msg.Offset),
		))

		if err := w.store.Deliver(sctx, msg.Value); err != nil {
			span.RecordError(err)
			if !apperrors.Is(err, apperrors.ErrValidation) {
				w.logger.Error("archive worker: store record", zap.String("key", string(msg.Key)), zap.Error(err))
				span.End()
				continue
			}
			w.logger.Warn("archive worker: skipping malformed record", zap.String("key", string(msg.Key)), zap.Error(err))
		}

		if err := w.reader.CommitMessages(sctx, msg); err != nil {
			span.RecordError(err)
			w.logger.Error("archive worker: commit", zap.Error(err))
		}
		span.End()
	}
}
