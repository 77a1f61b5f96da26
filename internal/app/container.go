package app

import (
	"context"
	"fmt"
	"sync"

	"go.uber.org/zap"

	"github.com/aws-samples/amazon-chime-voiceconnector-cdr-processing/internal/config"
	"github.com/aws-samples/amazon-chime-voiceconnector-cdr-processing/internal/domain"
	"github.com/aws-samples/amazon-chime-voiceconnector-cdr-processing/internal/generator"
	"github.com/aws-samples/amazon-chime-voiceconnector-cdr-processing/internal/infra/cloud"
	"github.com/aws-samples/amazon-chime-voiceconnector-cdr-processing/internal/infra/db"
	"github.com/aws-samples/amazon-chime-voiceconnector-cdr-processing/internal/infra/redis"
	"github.com/aws-samples/amazon-chime-voiceconnector-cdr-processing/internal/notify"
	"github.com/aws-samples/amazon-chime-voiceconnector-cdr-processing/internal/operation"
	"github.com/aws-samples/amazon-chime-voiceconnector-cdr-processing/internal/queue"
	"github.com/aws-samples/amazon-chime-voiceconnector-cdr-processing/internal/relay"
	"github.com/aws-samples/amazon-chime-voiceconnector-cdr-processing/internal/repository"
	"github.com/aws-samples/amazon-chime-voiceconnector-cdr-processing/internal/repository/memory"
	pgrepo "github.com/aws-samples/amazon-chime-voiceconnector-cdr-processing/internal/repository/postgres"
	scyllarepo "github.com/aws-samples/amazon-chime-voiceconnector-cdr-processing/internal/repository/scylla"
	"github.com/aws-samples/amazon-chime-voiceconnector-cdr-processing/internal/service/lock"
	"github.com/aws-samples/amazon-chime-voiceconnector-cdr-processing/internal/workflow"
	"github.com/aws-samples/amazon-chime-voiceconnector-cdr-processing/pkg/logger"
)

// Container wires together shared infrastructure dependencies. Postgres,
// Scylla, Redis and Kafka are optional and stay nil unless configured.
type Container struct {
	Config *config.Config
	Logger *logger.Logger
	AWS    *cloud.Clients

	Postgres *db.Postgres
	Scylla   *db.Scylla
	Redis    *redis.Client
	Kafka    *queue.Kafka

	// lazily initialised components
	components struct {
		once         sync.Once
		err          error
		repositories *repositories
		operations   *operations
		pipeline     *pipeline
		closers      []func() error
	}
}

type repositories struct {
	Runs repository.RunRepository
	// Archive is nil unless a Scylla cluster is configured.
	Archive repository.CDRArchive
	Locker  lock.Locker
}

type operations struct {
	Jobs          *operation.JobLauncher
	Crawlers      *operation.CrawlerLauncher
	Queries       *operation.QueryLauncher
	JobPoller     *operation.Poller
	CrawlerPoller *operation.Poller
	QueryPoller   *operation.Poller
	QueryRunner   *operation.QueryRunner
}

type pipeline struct {
	Publisher *notify.Publisher
	Reports   *notify.ReportHandler
	Steps     *workflow.Steps
	Runner    *workflow.Runner
	Relay     *relay.Relay
	Generator *generator.Generator
}

// Build constructs a container for the given configuration path.
func Build(ctx context.Context, configPath string) (*Container, error) {
	cfg, err := config.Load(configPath)
	if err != nil {
		return nil, err
	}

	lg, err := logger.New(cfg.App.Env, cfg.App.LogLevel)
	if err != nil {
		return nil, err
	}

	sess, err := cloud.NewSession(cfg.AWS)
	if err != nil {
		return nil, fmt.Errorf("bootstrap aws: %w", err)
	}

	container := &Container{
		Config: cfg,
		Logger: lg,
		AWS:    cloud.NewClients(sess),
	}

	if db.Enabled(cfg.Postgres) {
		pg, err := db.NewPostgres(ctx, cfg.Postgres)
		if err != nil {
			return nil, fmt.Errorf("bootstrap postgres: %w", err)
		}
		container.Postgres = pg
	}

	if len(cfg.Scylla.Hosts) > 0 {
		scylla, err := db.NewScylla(cfg.Scylla)
		if err != nil {
			_ = container.Close(ctx)
			return nil, fmt.Errorf("bootstrap scylla: %w", err)
		}
		container.Scylla = scylla
	}

	if cfg.Redis.Address != "" {
		redisClient, err := redis.NewClient(ctx, cfg.Redis)
		if err != nil {
			_ = container.Close(ctx)
			return nil, fmt.Errorf("bootstrap redis: %w", err)
		}
		container.Redis = redisClient
	}

	if len(cfg.Kafka.Brokers) > 0 {
		kafka, err := queue.NewKafka(cfg.Kafka)
		if err != nil {
			_ = container.Close(ctx)
			return nil, fmt.Errorf("bootstrap kafka: %w", err)
		}
		container.Kafka = kafka
	}

	return container, nil
}

func (c *Container) initComponents() {
	c.components.once.Do(func() {
		cfg := c.Config

		repos := &repositories{}
		if c.Postgres != nil {
			repos.Runs = pgrepo.NewRunRepository(c.Postgres.DB())
		} else {
			repos.Runs = memory.NewRunRepository()
		}
		if c.Scylla != nil {
			repos.Archive = scyllarepo.NewCDRStore(c.Scylla.Session())
		}
		if c.Redis != nil {
			repos.Locker = lock.NewRedisLocker(c.Redis.Inner(), cfg.Workflow.LockKeyPrefix, cfg.Workflow.LockTTL)
		} else {
			repos.Locker = lock.NewLocalLocker(cfg.Workflow.LockTTL)
		}

		location := operation.OutputLocation(cfg.Storage.ResultsBucket, cfg.Storage.OutputPrefix)
		ops := &operations{
			Jobs: operation.NewJobLauncher(c.AWS.Glue, operation.JobParams{
				DestBucket: cfg.Storage.DestBucket,
				Database:   cfg.Catalog.Database,
				Table:      cfg.Catalog.Table,
			}),
			Crawlers: operation.NewCrawlerLauncher(c.AWS.Glue),
			Queries: operation.NewQueryLauncher(c.AWS.Athena, operation.QueryTarget{
				Database:       cfg.Catalog.Database,
				Catalog:        cfg.Query.Catalog,
				OutputLocation: location,
			}),
			JobPoller:     operation.NewPoller(operation.JobSpec, operation.NewJobSource(c.AWS.Glue)),
			CrawlerPoller: operation.NewPoller(operation.CrawlerSpec, operation.NewCrawlerSource(c.AWS.Glue)),
			QueryPoller:   operation.NewPoller(operation.QuerySpec, operation.NewQuerySource(c.AWS.Athena)),
		}
		ops.QueryRunner = operation.NewQueryRunner(ops.Queries, ops.QueryPoller, operation.QueryRunnerConfig{
			Template:       cfg.Query.Template,
			Database:       cfg.Catalog.Database,
			Table:          cfg.Catalog.Table,
			OutputLocation: location,
			PollInterval:   cfg.Query.PollInterval,
		}, c.Logger)

		objects := cloud.NewS3ObjectStore(c.AWS.S3)
		presigner := cloud.NewS3Presigner(c.AWS.S3)

		p := &pipeline{
			Publisher: notify.NewPublisher(c.AWS.SNS, cfg.Notify.TopicARN, c.Logger),
		}
		p.Reports = notify.NewReportHandler(presigner, p.Publisher, cfg.Storage.ReportLinkTTL, c.Logger)
		p.Steps = workflow.NewSteps(workflow.Deps{
			Jobs:          ops.Jobs,
			Crawlers:      ops.Crawlers,
			Queries:       ops.Queries,
			JobPoller:     ops.JobPoller,
			CrawlerPoller: ops.CrawlerPoller,
			QueryPoller:   ops.QueryPoller,
			Presigner:     presigner,
			Sender:        p.Publisher,
			Logger:        c.Logger,
		}, workflow.StepsConfig{
			Database:       cfg.Catalog.Database,
			ProcessedTable: cfg.Catalog.ProcessedTable,
			ResultsBucket:  cfg.Storage.ResultsBucket,
			OutputPrefix:   cfg.Storage.OutputPrefix,
			ResultLinkTTL:  cfg.Storage.ResultLinkTTL,
		})
		p.Runner = workflow.NewRunner(p.Steps, repos.Runs, repos.Locker, workflow.RunnerConfig{
			Crawlers: workflow.Crawlers{
				RawCrawler:       cfg.Catalog.RawCrawler,
				ProcessedCrawler: cfg.Catalog.ProcessedCrawler,
			},
			Jobs: workflow.Jobs{ETLJob: cfg.Catalog.ETLJob},
			Waits: workflow.Waits{
				Crawler:   cfg.Workflow.CrawlerWait,
				ETL:       cfg.Workflow.ETLWait,
				Processed: cfg.Workflow.ProcessedWait,
				Query:     cfg.Workflow.QueryWait,
			},
			MaxPolls: cfg.Workflow.MaxPolls,
		}, c.Logger)
		p.Generator = generator.New(objects, generator.OptionsFromConfig(cfg), c.Logger)

		sinks, err := c.buildSinks()
		if err != nil {
			c.components.err = err
			return
		}
		var validator *relay.Validator
		if cfg.Relay.Validate {
			validator = relay.NewValidator(domain.CDRSchema)
		}
		p.Relay = relay.New(objects, validator, sinks, c.Logger)

		c.components.repositories = repos
		c.components.operations = ops
		c.components.pipeline = p
	})
}

func (c *Container) buildSinks() ([]relay.Sink, error) {
	cfg := c.Config
	sinks := make([]relay.Sink, 0, len(cfg.Relay.Sinks))
	for _, name := range cfg.Relay.Sinks {
		switch name {
		case "firehose":
			sinks = append(sinks, relay.NewFirehoseSink(c.AWS.Firehose, cfg.Relay.DeliveryStream))
		case "kafka":
			if c.Kafka == nil {
				return nil, fmt.Errorf("relay sink kafka: no brokers configured")
			}
			pub := queue.NewCDRPublisher(c.Kafka, cfg.Relay.KafkaTopic)
			c.components.closers = append(c.components.closers, pub.Close)
			sinks = append(sinks, pub)
		case "scylla":
			if c.Scylla == nil {
				return nil, fmt.Errorf("relay sink scylla: no hosts configured")
			}
			sinks = append(sinks, scyllarepo.NewCDRStore(c.Scylla.Session()))
		default:
			return nil, fmt.Errorf("relay sink %q is not supported", name)
		}
	}
	return sinks, nil
}

// Err reports a component wiring failure.
func (c *Container) Err() error {
	c.initComponents()
	return c.components.err
}

// Repositories exposes initialized repositories.
func (c *Container) Repositories() *repositories {
	c.initComponents()
	return c.components.repositories
}

// Operations exposes the launchers and pollers.
func (c *Container) Operations() *operations {
	c.initComponents()
	return c.components.operations
}

// Pipeline exposes the workflow, relay and generator components.
func (c *Container) Pipeline() *pipeline {
	c.initComponents()
	return c.components.pipeline
}

// Close releases all held resources.
func (c *Container) Close(ctx context.Context) error {
	var errs []error
	for _, closeFn := range c.components.closers {
		if err := closeFn(); err != nil {
			errs = append(errs, fmt.Errorf("sink close: %w", err))
		}
	}
	if c.Redis != nil {
		if err := c.Redis.Close(); err != nil {
			errs = append(errs, fmt.Errorf("redis close: %w", err))
		}
	}
	if c.Scylla != nil {
		if err := c.Scylla.Close(); err != nil {
			errs = append(errs, fmt.Errorf("scylla close: %w", err))
		}
	}
	if c.Postgres != nil {
		if err := c.Postgres.Close(ctx); err != nil {
			errs = append(errs, fmt.Errorf("postgres close: %w", err))
		}
	}
	if c.Logger != nil {
		c.Logger.Sync()
	}
	if len(errs) > 0 {
		return fmt.Errorf("close errors: %v", errs)
	}
	return nil
}

// EnsureTopics ensures the relay topic exists when kafka is configured.
func (c *Container) EnsureTopics(ctx context.Context) error {
	if c.Kafka == nil {
		return nil
	}
	topic := c.Config.Relay.KafkaTopic
	if err := c.Kafka.EnsureTopics(ctx, []string{topic}, 12, 1); err != nil {
		return err
	}
	c.Logger.Info("kafka topic ready", zap.String("topic", topic))
	return nil
}
