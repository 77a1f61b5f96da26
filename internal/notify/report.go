package notify

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/aws/aws-lambda-go/events"
	"go.uber.org/zap"

	"github.com/aws-samples/amazon-chime-voiceconnector-cdr-processing/internal/infra/cloud"
	"github.com/aws-samples/amazon-chime-voiceconnector-cdr-processing/pkg/logger"
)

// ReportHandler announces report objects as they land in storage.
type ReportHandler struct {
	presigner cloud.Presigner
	sender    Sender
	ttl       time.Duration
	logger    *logger.Logger
}

// NewReportHandler constructs a handler whose links stay valid for ttl.
func NewReportHandler(presigner cloud.Presigner, sender Sender, ttl time.Duration, lg *logger.Logger) *ReportHandler {
	if ttl <= 0 {
		ttl = 24 * time.Hour
	}
	return &ReportHandler{presigner: presigner, sender: sender, ttl: ttl, logger: lg}
}

// HandleS3Event sends one link per written object. Records are independent;
// failures are collected and returned together.
func (h *ReportHandler) HandleS3Event(ctx context.Context, event events.S3Event) error {
	var errs []error
	for _, rec := range event.Records {
		bucket := rec.S3.Bucket.Name
		key, err := cloud.ObjectKey(rec.S3.Object)
		if err != nil {
			errs = append(errs, err)
			continue
		}

		link, err := h.presigner.PresignGetObject(bucket, key, h.ttl)
		if err != nil {
			errs = append(errs, fmt.Errorf("report handler: %w", err))
			continue
		}
		if _, err := h.sender.Send(ctx, ReportLink(link)); err != nil {
			errs = append(errs, fmt.Errorf("report handler: %s/%s: %w", bucket, key, err))
			continue
		}
		h.logger.Info("report handler: link sent", zap.String("bucket", bucket), zap.String("key", key))
	}
	return errors.Join(errs...)
}
