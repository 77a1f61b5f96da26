// Package generator writes synthetic call detail records for exercising the pipeline.
package generator

import (
	"context"
	"encoding/json"
	"fmt"
	"math/rand"
	"time"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"

	"github.com/aws-samples/amazon-chime-voiceconnector-cdr-processing/internal/config"
	"github.com/aws-samples/amazon-chime-voiceconnector-cdr-processing/internal/domain"
	"github.com/aws-samples/amazon-chime-voiceconnector-cdr-processing/internal/infra/cloud"
	"github.com/aws-samples/amazon-chime-voiceconnector-cdr-processing/pkg/logger"
)

const (
	minDurationSeconds = 300
	maxDurationSeconds = 600
	billingIncrement   = 6
	progressEvery      = 10
)

// Options controls one generation run.
type Options struct {
	Bucket           string
	VoiceConnectorID string
	AccountID        string
	Region           string
	FileCount        int
	BadData          bool
	DelayMin         time.Duration
	DelayMax         time.Duration
}

// OptionsFromConfig assembles Options from application configuration.
func OptionsFromConfig(cfg *config.Config) Options {
	return Options{
		Bucket:           cfg.Storage.TargetBucket,
		VoiceConnectorID: cfg.Generator.VoiceConnectorID,
		AccountID:        cfg.Generator.AccountID,
		Region:           cfg.Generator.Region,
		FileCount:        cfg.Generator.FileCount,
		BadData:          cfg.Generator.BadData,
		DelayMin:         cfg.Generator.DelayMin,
		DelayMax:         cfg.Generator.DelayMax,
	}
}

// Generator simulates a voice connector dropping CDR objects into storage.
type Generator struct {
	store  cloud.ObjectStore
	opts   Options
	rng    *rand.Rand
	now    func() time.Time
	logger *logger.Logger

	lastStamp int64
}

// New constructs a generator seeded from the clock.
func New(store cloud.ObjectStore, opts Options, lg *logger.Logger) *Generator {
	return &Generator{
		store:  store,
		opts:   opts,
		rng:    rand.New(rand.NewSource(time.Now().UnixNano())),
		now:    time.Now,
		logger: lg,
	}
}

// Run writes FileCount records, one object each, and returns how many were
// written. It stops early when ctx is cancelled.
func (g *Generator) Run(ctx context.Context) (int, error) {
	tracer := otel.Tracer("cdr.generator")
	ctx, span := tracer.Start(ctx, "generator.run", trace.WithAttributes(
		attribute.String("generator.bucket", g.opts.Bucket),
		attribute.Int("generator.file_count", g.opts.FileCount),
	))
	defer span.End()

	started := g.now()
	written := 0
	for i := 0; i < g.opts.FileCount; i++ {
		if err := ctx.Err(); err != nil {
			return written, err
		}

		key, err := g.writeOne(ctx)
		if err != nil {
			span.RecordError(err)
			return written, err
		}
		written++
		g.logger.Debug("generator: object written", zap.String("key", key))

		if written%progressEvery == 0 {
			g.logger.Info("generator: progress", zap.Int("files_uploaded", written))
		}

		if i < g.opts.FileCount-1 {
			if err := g.pause(ctx); err != nil {
				return written, err
			}
		}
	}

	g.logger.Info("generator: run complete",
		zap.Int("files_uploaded", written),
		zap.Duration("elapsed", g.now().Sub(started)),
	)
	return written, nil
}

func (g *Generator) writeOne(ctx context.Context) (string, error) {
	now := g.now()
	record := g.Record(now)

	body, err := g.encode(record)
	if err != nil {
		return "", err
	}

	key := g.objectKey(now)
	if err := g.store.PutObject(ctx, g.opts.Bucket, key, body, "application/json"); err != nil {
		return "", fmt.Errorf("generator: write %s: %w", key, err)
	}
	return key, nil
}

// Record builds one randomised CDR that ended no later than now.
func (g *Generator) Record(now time.Time) domain.CDR {
	duration := int64(Quantize(minDurationSeconds + g.rng.Intn(maxDurationSeconds-minDurationSeconds)))
	start := now.Add(-time.Duration(1+g.rng.Intn(60)) * time.Minute).Unix()

	return domain.CDR{
		AwsAccountID:            g.opts.AccountID,
		TransactionID:           uuid.NewString(),
		CallID:                  uuid.NewString(),
		VoiceConnectorID:        g.opts.VoiceConnectorID,
		Status:                  "Completed",
		StatusMessage:           "Normal Call Clearing",
		BillableDurationSeconds: duration,
		BillableDurationMinutes: float64(duration) / 60,
		SchemaVersion:           "2.0",
		SourcePhoneNumber:       g.PhoneNumber(),
		SourceCountry:           "US",
		DestinationPhoneNumber:  g.PhoneNumber(),
		DestinationCountry:      "US",
		UsageType:               "USE1-US-inbound-minutes",
		ServiceCode:             "AmazonChimeVoiceConnector",
		Direction:               "Inbound",
		StartTimeEpochSeconds:   start,
		EndTimeEpochSeconds:     start + duration,
		Region:                  g.opts.Region,
		Streaming:               true,
		IsProxyCall:             false,
	}
}

// PhoneNumber returns a random US number in E.164 form.
func (g *Generator) PhoneNumber() string {
	area := 200 + g.rng.Intn(800)
	exchange := 200 + g.rng.Intn(800)
	line := g.rng.Intn(10000)
	return fmt.Sprintf("+1%03d%03d%04d", area, exchange, line)
}

// Quantize rounds seconds down to the billing increment.
func Quantize(seconds int) int {
	return seconds - seconds%billingIncrement
}

func (g *Generator) encode(record domain.CDR) ([]byte, error) {
	if !g.opts.BadData {
		return json.Marshal(record)
	}

	raw, err := json.Marshal(record)
	if err != nil {
		return nil, err
	}
	var fields map[string]any
	if err := json.Unmarshal(raw, &fields); err != nil {
		return nil, err
	}
	fields["BadData"] = fmt.Sprintf("bad-%d", g.rng.Intn(1000))
	return json.Marshal(fields)
}

// objectKey places the record under the connector's date partition. The file
// name is the write time in fractional seconds, bumped when two writes land on
// the same nanosecond.
func (g *Generator) objectKey(now time.Time) string {
	stamp := now.UnixNano()
	if stamp <= g.lastStamp {
		stamp = g.lastStamp + 1
	}
	g.lastStamp = stamp

	day := now.UTC().Format("2006/01/02")
	return fmt.Sprintf("%s/%s/%s/%d.%09d.json",
		domain.CDRKeyPrefix, g.opts.VoiceConnectorID, day, stamp/int64(time.Second), stamp%int64(time.Second))
}

func (g *Generator) pause(ctx context.Context) error {
	if g.opts.DelayMax <= 0 {
		return nil
	}
	delay := g.opts.DelayMin
	if spread := g.opts.DelayMax - g.opts.DelayMin; spread > 0 {
		delay += time.Duration(g.rng.Int63n(int64(spread)))
	}

	timer := time.NewTimer(delay)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}
