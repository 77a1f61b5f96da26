package config

import (
	"errors"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/spf13/viper"
)

// Config captures the full configuration surface for the application.
// It is read once at process start and treated as immutable afterwards.
type Config struct {
	App       AppConfig       `mapstructure:"app"`
	AWS       AWSConfig       `mapstructure:"aws"`
	Catalog   CatalogConfig   `mapstructure:"catalog"`
	Storage   StorageConfig   `mapstructure:"storage"`
	Query     QueryConfig     `mapstructure:"query"`
	Notify    NotifyConfig    `mapstructure:"notify"`
	Relay     RelayConfig     `mapstructure:"relay"`
	Generator GeneratorConfig `mapstructure:"generator"`
	Workflow  WorkflowConfig  `mapstructure:"workflow"`
	Scheduler SchedulerConfig `mapstructure:"scheduler"`
	HTTP      HTTPConfig      `mapstructure:"http"`
	Postgres  PostgresConfig  `mapstructure:"postgres"`
	Scylla    ScyllaConfig    `mapstructure:"scylla"`
	Kafka     KafkaConfig     `mapstructure:"kafka"`
	Redis     RedisConfig     `mapstructure:"redis"`
	Telemetry TelemetryConfig `mapstructure:"telemetry"`
}

type AppConfig struct {
	Name     string `mapstructure:"name"`
	Env      string `mapstructure:"env"`
	Version  string `mapstructure:"version"`
	LogLevel string `mapstructure:"log_level"`
}

type AWSConfig struct {
	Region   string `mapstructure:"region"`
	Endpoint string `mapstructure:"endpoint"`
}

// CatalogConfig names the catalog objects the pipeline drives.
type CatalogConfig struct {
	Database         string `mapstructure:"database"`
	Table            string `mapstructure:"table"`
	ProcessedTable   string `mapstructure:"processed_table"`
	RawCrawler       string `mapstructure:"raw_crawler"`
	ProcessedCrawler string `mapstructure:"processed_crawler"`
	ETLJob           string `mapstructure:"etl_job"`
}

type StorageConfig struct {
	// TargetBucket receives raw CDR objects and generated reports.
	TargetBucket  string        `mapstructure:"target_bucket"`
	DestBucket    string        `mapstructure:"dest_bucket"`
	ResultsBucket string        `mapstructure:"results_bucket"`
	OutputPrefix  string        `mapstructure:"output_prefix"`
	ResultLinkTTL time.Duration `mapstructure:"result_link_ttl"`
	ReportLinkTTL time.Duration `mapstructure:"report_link_ttl"`
}

type QueryConfig struct {
	Template     string        `mapstructure:"template"`
	Catalog      string        `mapstructure:"catalog"`
	PollInterval time.Duration `mapstructure:"poll_interval"`
}

type NotifyConfig struct {
	TopicARN string `mapstructure:"topic_arn"`
}

type RelayConfig struct {
	DeliveryStream string   `mapstructure:"delivery_stream"`
	Validate       bool     `mapstructure:"validate"`
	Sinks          []string `mapstructure:"sinks"`
	KafkaTopic     string   `mapstructure:"kafka_topic"`
}

type GeneratorConfig struct {
	VoiceConnectorID string        `mapstructure:"voice_connector_id"`
	AccountID        string        `mapstructure:"account_id"`
	Region           string        `mapstructure:"region"`
	FileCount        int           `mapstructure:"file_count"`
	BadData          bool          `mapstructure:"bad_data"`
	DelayMin         time.Duration `mapstructure:"delay_min"`
	DelayMax         time.Duration `mapstructure:"delay_max"`
}

type WorkflowConfig struct {
	CrawlerWait   time.Duration `mapstructure:"crawler_wait"`
	ETLWait       time.Duration `mapstructure:"etl_wait"`
	ProcessedWait time.Duration `mapstructure:"processed_wait"`
	QueryWait     time.Duration `mapstructure:"query_wait"`
	MaxPolls      int           `mapstructure:"max_polls"`
	LockTTL       time.Duration `mapstructure:"lock_ttl"`
	LockKeyPrefix string        `mapstructure:"lock_key_prefix"`
}

// SchedulerConfig sets when the workflows start. Clock values are HH:MM in UTC.
type SchedulerConfig struct {
	TickInterval  time.Duration `mapstructure:"tick_interval"`
	DailyAt       string        `mapstructure:"daily_at"`
	MonthlyReport bool          `mapstructure:"monthly_report"`
	MonthlyDay    int           `mapstructure:"monthly_day"`
	MonthlyAt     string        `mapstructure:"monthly_at"`
}

type HTTPConfig struct {
	Port         int           `mapstructure:"port"`
	ReadTimeout  time.Duration `mapstructure:"read_timeout"`
	WriteTimeout time.Duration `mapstructure:"write_timeout"`
	IdleTimeout  time.Duration `mapstructure:"idle_timeout"`
}

type PostgresConfig struct {
	Host            string        `mapstructure:"host"`
	Port            int           `mapstructure:"port"`
	User            string        `mapstructure:"user"`
	Password        string        `mapstructure:"password"`
	Database        string        `mapstructure:"database"`
	SSLMode         string        `mapstructure:"ssl_mode"`
	MaxConns        int32         `mapstructure:"max_conns"`
	MinConns        int32         `mapstructure:"min_conns"`
	MaxConnLifetime time.Duration `mapstructure:"max_conn_lifetime"`
	MaxConnIdleTime time.Duration `mapstructure:"max_conn_idle_time"`
}

type ScyllaConfig struct {
	Hosts       []string      `mapstructure:"hosts"`
	Port        int           `mapstructure:"port"`
	Keyspace    string        `mapstructure:"keyspace"`
	Consistency string        `mapstructure:"consistency"`
	Timeout     time.Duration `mapstructure:"timeout"`
}

type KafkaConfig struct {
	Brokers         []string `mapstructure:"brokers"`
	ClientID        string   `mapstructure:"client_id"`
	ConsumerGroupID string   `mapstructure:"consumer_group_id"`
}

type RedisConfig struct {
	Address      string        `mapstructure:"address"`
	Password     string        `mapstructure:"password"`
	DB           int           `mapstructure:"db"`
	DialTimeout  time.Duration `mapstructure:"dial_timeout"`
	ReadTimeout  time.Duration `mapstructure:"read_timeout"`
	WriteTimeout time.Duration `mapstructure:"write_timeout"`
	PoolSize     int           `mapstructure:"pool_size"`
	MaxRetries   int           `mapstructure:"max_retries"`
}

type TelemetryConfig struct {
	Endpoint        string        `mapstructure:"endpoint"`
	ServiceName     string        `mapstructure:"service_name"`
	SampleRatio     float64       `mapstructure:"sample_ratio"`
	TracingEnabled  bool          `mapstructure:"tracing_enabled"`
	ShutdownTimeout time.Duration `mapstructure:"shutdown_timeout"`
}

// legacyEnv maps config keys onto the environment variable names the
// deployed functions have always been configured with.
var legacyEnv = map[string][]string{
	"app.log_level":                {"LOG_LEVEL"},
	"catalog.database":             {"DATABASE"},
	"catalog.table":                {"TABLE"},
	"catalog.raw_crawler":          {"RAW_CDR_CRAWLER"},
	"catalog.processed_crawler":    {"PROCESSED_CDR_CRAWLER"},
	"catalog.etl_job":              {"ETL_JOB"},
	"storage.target_bucket":        {"TARGET_BUCKET"},
	"storage.dest_bucket":          {"DEST_BUCKET"},
	"storage.results_bucket":       {"RESULTS_BUCKET"},
	"storage.output_prefix":        {"OUTPUT_PREFIX"},
	"query.template":               {"ATHENA_QUERY"},
	"notify.topic_arn":             {"SNS_ARN", "TOPIC_ARN"},
	"relay.delivery_stream":        {"KINESIS_STREAM"},
	"generator.voice_connector_id": {"VOICECONNECTOR_ID"},
	"generator.file_count":         {"FILE_COUNT"},
	"generator.bad_data":           {"BAD_DATA"},
	"aws.region":                   {"AWS_REGION"},
}

// Load reads configuration from an optional file and environment variables.
// A missing file is not an error; functions are usually configured by env alone.
func Load(path string) (*Config, error) {
	v := viper.New()
	setDefaults(v)

	v.SetEnvPrefix("CDR")
	v.SetEnvKeyReplacer(NewEnvReplacer())
	v.AutomaticEnv()

	for key, envs := range legacyEnv {
		args := append([]string{key}, envs...)
		if err := v.BindEnv(args...); err != nil {
			return nil, fmt.Errorf("config: bind %s: %w", key, err)
		}
	}

	if path != "" {
		if _, err := os.Stat(path); err == nil {
			v.SetConfigFile(path)
			v.SetConfigType("yaml")
			if err := v.ReadInConfig(); err != nil {
				return nil, fmt.Errorf("config: failed to read config file: %w", err)
			}
		} else if !errors.Is(err, os.ErrNotExist) {
			return nil, fmt.Errorf("config: stat config file: %w", err)
		}
	}

	cfg := new(Config)
	if err := v.Unmarshal(cfg); err != nil {
		return nil, fmt.Errorf("config: failed to unmarshal config: %w", err)
	}

	return cfg, nil
}

// NewEnvReplacer standardizes environment variable names.
func NewEnvReplacer() *strings.Replacer {
	return strings.NewReplacer(".", "_", "-", "_")
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("app.name", "cdr-pipeline")
	v.SetDefault("app.env", "development")
	v.SetDefault("app.version", "dev")
	v.SetDefault("app.log_level", "INFO")

	v.SetDefault("aws.region", "us-east-1")
	v.SetDefault("aws.endpoint", "")

	v.SetDefault("catalog.database", "")
	v.SetDefault("catalog.table", "amazon_chime_voice_connector_cdrs")
	v.SetDefault("catalog.processed_table", "processed_cdrs")
	v.SetDefault("catalog.raw_crawler", "")
	v.SetDefault("catalog.processed_crawler", "")
	v.SetDefault("catalog.etl_job", "")

	v.SetDefault("storage.target_bucket", "")
	v.SetDefault("storage.dest_bucket", "")
	v.SetDefault("storage.results_bucket", "")
	v.SetDefault("storage.output_prefix", "results")
	v.SetDefault("storage.result_link_ttl", time.Hour)
	v.SetDefault("storage.report_link_ttl", 24*time.Hour)

	v.SetDefault("query.template", "")
	v.SetDefault("query.catalog", "awsdatacatalog")
	v.SetDefault("query.poll_interval", 5*time.Second)

	v.SetDefault("notify.topic_arn", "")

	v.SetDefault("relay.delivery_stream", "")
	v.SetDefault("relay.validate", true)
	v.SetDefault("relay.sinks", []string{"firehose"})
	v.SetDefault("relay.kafka_topic", "cdr-records")

	v.SetDefault("generator.voice_connector_id", "")
	v.SetDefault("generator.account_id", "654178722619")
	v.SetDefault("generator.region", "us-east-1")
	v.SetDefault("generator.file_count", 10)
	v.SetDefault("generator.bad_data", false)
	v.SetDefault("generator.delay_min", time.Duration(0))
	v.SetDefault("generator.delay_max", time.Duration(0))

	v.SetDefault("workflow.crawler_wait", 2*time.Minute)
	v.SetDefault("workflow.etl_wait", 10*time.Second)
	v.SetDefault("workflow.processed_wait", 10*time.Second)
	v.SetDefault("workflow.query_wait", 5*time.Second)
	v.SetDefault("workflow.max_polls", 0)
	v.SetDefault("workflow.lock_ttl", 6*time.Hour)
	v.SetDefault("workflow.lock_key_prefix", "cdr:workflow")

	v.SetDefault("scheduler.tick_interval", time.Minute)
	v.SetDefault("scheduler.daily_at", "09:00")
	v.SetDefault("scheduler.monthly_report", true)
	v.SetDefault("scheduler.monthly_day", 2)
	v.SetDefault("scheduler.monthly_at", "12:00")

	v.SetDefault("http.port", 8080)
	v.SetDefault("http.read_timeout", 10*time.Second)
	v.SetDefault("http.write_timeout", 10*time.Second)
	v.SetDefault("http.idle_timeout", 60*time.Second)

	v.SetDefault("postgres.host", "")
	v.SetDefault("postgres.port", 5432)
	v.SetDefault("postgres.user", "")
	v.SetDefault("postgres.password", "")
	v.SetDefault("postgres.database", "")
	v.SetDefault("postgres.ssl_mode", "disable")
	v.SetDefault("postgres.max_conns", 5)
	v.SetDefault("postgres.min_conns", 0)
	v.SetDefault("postgres.max_conn_lifetime", time.Hour)
	v.SetDefault("postgres.max_conn_idle_time", 10*time.Minute)

	v.SetDefault("scylla.hosts", []string{})
	v.SetDefault("scylla.port", 9042)
	v.SetDefault("scylla.keyspace", "cdr")
	v.SetDefault("scylla.consistency", "local_quorum")
	v.SetDefault("scylla.timeout", 5*time.Second)

	v.SetDefault("kafka.brokers", []string{})
	v.SetDefault("kafka.client_id", "cdr-pipeline")
	v.SetDefault("kafka.consumer_group_id", "cdr-archiver")

	v.SetDefault("redis.address", "")
	v.SetDefault("redis.password", "")
	v.SetDefault("redis.db", 0)
	v.SetDefault("redis.dial_timeout", 5*time.Second)
	v.SetDefault("redis.read_timeout", 3*time.Second)
	v.SetDefault("redis.write_timeout", 3*time.Second)
	v.SetDefault("redis.pool_size", 10)
	v.SetDefault("redis.max_retries", 3)

	v.SetDefault("telemetry.endpoint", "localhost:4318")
	v.SetDefault("telemetry.service_name", "")
	v.SetDefault("telemetry.sample_ratio", 1.0)
	v.SetDefault("telemetry.tracing_enabled", false)
	v.SetDefault("telemetry.shutdown_timeout", 5*time.Second)
}
