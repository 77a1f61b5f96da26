package operation

import (
	"context"
	"fmt"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/aws-samples/amazon-chime-voiceconnector-cdr-processing/pkg/logger"
)

// RenderQuery substitutes {database} and {table} in a query template.
func RenderQuery(template, database, table string) string {
	return strings.NewReplacer("{database}", database, "{table}", table).Replace(template)
}

// MonthlyUsageQuery aggregates call duration and count per NPA-NXX for one
// month partition of the processed table. month must already be validated.
func MonthlyUsageQuery(database, table, month string) string {
	return "SELECT npanxx, SUM(TotalDuration) AS TotalDuration, COUNT(CallCount) AS CallCount FROM " +
		"(SELECT npanxx, SUM(duration) AS TotalDuration, COUNT(callid) AS CallCount FROM " +
		database + "." + table + " WHERE month='" + month + "' GROUP BY npanxx) GROUP BY npanxx"
}

// QueryRunner starts a templated query and blocks until it is terminal.
type QueryRunner struct {
	launcher *QueryLauncher
	poller   *Poller
	template string
	database string
	table    string
	location string
	interval time.Duration
	logger   *logger.Logger
}

// QueryRunnerConfig configures a QueryRunner.
type QueryRunnerConfig struct {
	Template       string
	Database       string
	Table          string
	OutputLocation string
	PollInterval   time.Duration
}

// NewQueryRunner constructs a runner.
func NewQueryRunner(launcher *QueryLauncher, poller *Poller, cfg QueryRunnerConfig, lg *logger.Logger) *QueryRunner {
	return &QueryRunner{
		launcher: launcher,
		poller:   poller,
		template: cfg.Template,
		database: cfg.Database,
		table:    cfg.Table,
		location: cfg.OutputLocation,
		interval: cfg.PollInterval,
		logger:   lg,
	}
}

// QueryOutcome is the terminal result of a blocking query run.
type QueryOutcome struct {
	ExecutionID string
	Result      Result
	ResultKey   string
}

// Run renders the template, starts the query and waits for a terminal state.
func (r *QueryRunner) Run(ctx context.Context) (QueryOutcome, error) {
	sql := RenderQuery(r.template, r.database, r.table)
	r.logger.Info("query runner: starting query", zap.String("query", sql))

	id, err := r.launcher.Start(ctx, sql)
	if err != nil {
		return QueryOutcome{}, err
	}

	res, err := r.poller.Wait(ctx, "", id, r.interval)
	if err != nil {
		return QueryOutcome{}, fmt.Errorf("query runner: wait %s: %w", id, err)
	}

	out := QueryOutcome{ExecutionID: id, Result: res, ResultKey: r.location + id + ".csv"}
	if res.Complete {
		r.logger.Info("query runner: query execution succeeded", zap.String("execution_id", id), zap.String("output", out.ResultKey))
	} else {
		r.logger.Warn("query runner: query execution failed or was cancelled",
			zap.String("execution_id", id), zap.String("status", res.Status), zap.String("output", out.ResultKey))
	}
	return out, nil
}
