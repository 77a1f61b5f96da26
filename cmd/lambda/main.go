// Command lambda serves every pipeline function from one binary. The HANDLER
// environment variable selects which one a deployed function runs.
package main

import (
	"context"
	"fmt"
	"log"
	"os"

	"github.com/aws/aws-lambda-go/events"
	"github.com/aws/aws-lambda-go/lambda"
	"go.uber.org/zap"

	"github.com/aws-samples/amazon-chime-voiceconnector-cdr-processing/internal/app"
	"github.com/aws-samples/amazon-chime-voiceconnector-cdr-processing/internal/telemetry"
	apperrors "github.com/aws-samples/amazon-chime-voiceconnector-cdr-processing/pkg/errors"
)

type generateResult struct {
	Written int `json:"written"`
}

type queryResult struct {
	QueryExecutionID string `json:"QueryExecutionId"`
	Status           string `json:"Status"`
	Output           string `json:"Output"`
}

func main() {
	ctx := context.Background()

	container, err := app.Build(ctx, os.Getenv("CONFIG_FILE"))
	if err != nil {
		log.Fatalf("failed to bootstrap application: %v", err)
	}
	defer container.Close(ctx)

	shutdown, err := telemetry.Setup(ctx, container.Config.Telemetry, container.Config.App, "lambda")
	if err != nil {
		log.Fatalf("failed to initialize telemetry: %v", err)
	}
	defer func() { _ = shutdown(ctx) }()

	name := os.Getenv("HANDLER")
	handler, err := handlerFor(name, container)
	if err != nil {
		log.Fatalf("failed to select handler: %v", err)
	}

	container.Logger.Info("lambda: serving", zap.String("handler", name))
	lambda.Start(handler)
}

// handlerFor maps a function name onto its typed handler.
func handlerFor(name string, c *app.Container) (any, error) {
	if err := c.Err(); err != nil {
		return nil, err
	}
	p := c.Pipeline()
	steps := p.Steps

	switch name {
	case "runRawCrawler":
		return steps.RunRawCrawler, nil
	case "checkRawCrawler":
		return steps.CheckRawCrawler, nil
	case "runETL":
		return steps.RunETL, nil
	case "checkETL":
		return steps.CheckETL, nil
	case "runProcessedCrawler":
		return steps.RunProcessedCrawler, nil
	case "checkProcessedCrawler":
		return steps.CheckProcessedCrawler, nil
	case "sendResults":
		return steps.SendResults, nil
	case "runQuery":
		return steps.RunQuery, nil
	case "checkQuery":
		return steps.CheckQuery, nil
	case "sendReport":
		return steps.SendReport, nil
	case "processCdrs":
		return func(ctx context.Context, event events.S3Event) error {
			summary, err := p.Relay.HandleS3Event(ctx, event)
			c.Logger.Info("lambda: relay batch done",
				zap.Int("relayed", summary.Relayed),
				zap.Int("rejected", summary.Rejected),
				zap.Int("failed", summary.Failed))
			return err
		}, nil
	case "sendQueryReport":
		return p.Reports.HandleS3Event, nil
	case "generateCdrs":
		return func(ctx context.Context) (generateResult, error) {
			written, err := p.Generator.Run(ctx)
			return generateResult{Written: written}, err
		}, nil
	case "generateAthenaQuery":
		queries := c.Operations().QueryRunner
		return func(ctx context.Context) (queryResult, error) {
			out, err := queries.Run(ctx)
			if err != nil {
				return queryResult{}, err
			}
			res := queryResult{QueryExecutionID: out.ExecutionID, Status: out.Result.Status, Output: out.ResultKey}
			if !out.Result.Complete {
				return res, fmt.Errorf("query %s ended %s: %w", out.ExecutionID, out.Result.Status, apperrors.ErrOperationFailed)
			}
			return res, nil
		}, nil
	default:
		return nil, fmt.Errorf("unknown handler %q", name)
	}
}
