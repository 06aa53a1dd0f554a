// Package config loads runtime settings from defaults, an optional
// kinfolk.yaml and the environment.
package config

import (
	"fmt"
	"net/url"
	"strings"
	"time"

	"github.com/kinfolk-ai/kinfolk/pkg/merge"
	"github.com/kinfolk-ai/kinfolk/pkg/reconcile"
	"github.com/kinfolk-ai/kinfolk/pkg/similarity"

	"github.com/robfig/cron/v3"
	"github.com/spf13/viper"
)

const (
	DriverPostgres = "postgres"
	DriverSQLite   = "sqlite"
)

// Config is the full runtime configuration.
type Config struct {
	Debug     bool            `mapstructure:"debug"`
	LogJSON   bool            `mapstructure:"log_json"`
	Database  DatabaseConfig  `mapstructure:"database"`
	Reconcile ReconcileConfig `mapstructure:"reconcile"`
	Merge     MergeConfig     `mapstructure:"merge"`
	RabbitMQ  RabbitMQConfig  `mapstructure:"rabbitmq"`
	Server    ServerConfig    `mapstructure:"server"`
	Auth      AuthConfig      `mapstructure:"auth"`
	S3        S3Config        `mapstructure:"s3"`
}

// DatabaseConfig selects the store. Driver is "sqlite" or "postgres".
type DatabaseConfig struct {
	Driver       string        `mapstructure:"driver"`
	URL          string        `mapstructure:"url"`
	SQLitePath   string        `mapstructure:"sqlite_path"`
	TxMaxRetries int           `mapstructure:"tx_max_retries"`
	TxTimeout    time.Duration `mapstructure:"tx_timeout"`
}

// ReconcileConfig tunes scoring and the reconciliation policy.
type ReconcileConfig struct {
	NameThreshold  float64 `mapstructure:"name_threshold"`
	PlaceThreshold float64 `mapstructure:"place_threshold"`
	PlaceWeight    float64 `mapstructure:"place_weight"`
	Metric         string  `mapstructure:"metric"`
	MinConfidence  float64 `mapstructure:"min_confidence"`
	AutoThreshold  float64 `mapstructure:"auto_threshold"`
	BlockingPrefix int     `mapstructure:"blocking_prefix"`
	Workers        int     `mapstructure:"workers"`
	MaxMerges      int     `mapstructure:"max_merges"`
	// Schedule is a cron expression for periodic auto-reconciliation in the
	// worker. Empty disables it.
	Schedule string `mapstructure:"schedule"`
	// AutoMergeOnIngest runs an auto-approve pass after every extraction.
	AutoMergeOnIngest bool `mapstructure:"auto_merge_on_ingest"`
}

type MergeConfig struct {
	LinkCollapse string `mapstructure:"link_collapse"`
}

// RabbitMQConfig configures the ingest and event queues.
type RabbitMQConfig struct {
	User     string `mapstructure:"user"`
	Password string `mapstructure:"password"`
	Host     string `mapstructure:"host"`
	Port     string `mapstructure:"port"`
	Prefetch int    `mapstructure:"prefetch"`
}

// URL builds the AMQP connection string.
func (c RabbitMQConfig) URL() string {
	u := url.URL{
		Scheme: "amqp",
		User:   url.UserPassword(c.User, c.Password),
		Host:   c.Host + ":" + c.Port,
		Path:   "/",
	}
	return u.String()
}

type ServerConfig struct {
	Port string `mapstructure:"port"`
	// Queue connects the server to RabbitMQ so requests with async set are
	// handed to the worker and change events are published.
	Queue bool `mapstructure:"queue"`
}

type AuthConfig struct {
	URL          string `mapstructure:"url"`
	MasterAPIKey string `mapstructure:"master_api_key"`
	MasterUserID string `mapstructure:"master_user_id"`
}

type S3Config struct {
	Region         string `mapstructure:"region"`
	Endpoint       string `mapstructure:"endpoint"`
	PublicEndpoint string `mapstructure:"public_endpoint"`
	AccessKey      string `mapstructure:"access_key"`
	SecretKey      string `mapstructure:"secret_key"`
	Bucket         string `mapstructure:"bucket"`
}

// Enabled reports whether a bucket is configured.
func (c S3Config) Enabled() bool {
	return c.Bucket != ""
}

func setDefaults(v *viper.Viper) {
	scorer := similarity.DefaultConfig()

	v.SetDefault("debug", false)
	v.SetDefault("log_json", false)

	v.SetDefault("database.driver", DriverSQLite)
	v.SetDefault("database.sqlite_path", "kinfolk.db")
	v.SetDefault("database.tx_max_retries", 5)
	v.SetDefault("database.tx_timeout", 30*time.Second)

	v.SetDefault("reconcile.name_threshold", scorer.NameThreshold)
	v.SetDefault("reconcile.place_threshold", scorer.PlaceThreshold)
	v.SetDefault("reconcile.place_weight", scorer.PlaceWeight)
	v.SetDefault("reconcile.metric", scorer.Metric)
	v.SetDefault("reconcile.min_confidence", reconcile.DefaultMinConfidence)
	v.SetDefault("reconcile.auto_threshold", reconcile.DefaultAutoThreshold)
	v.SetDefault("reconcile.blocking_prefix", 0)
	v.SetDefault("reconcile.workers", 0)
	v.SetDefault("reconcile.max_merges", 0)
	v.SetDefault("reconcile.schedule", "")
	v.SetDefault("reconcile.auto_merge_on_ingest", true)

	v.SetDefault("merge.link_collapse", string(merge.LinkCollapseDocumentType))

	v.SetDefault("rabbitmq.host", "localhost")
	v.SetDefault("rabbitmq.port", "5672")
	v.SetDefault("rabbitmq.prefetch", 1)

	v.SetDefault("server.port", "8080")
	v.SetDefault("server.queue", false)
}

func bindEnv(v *viper.Viper) {
	v.SetEnvPrefix("KINFOLK")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	_ = v.BindEnv("debug", "KINFOLK_DEBUG", "DEBUG")
	_ = v.BindEnv("database.url", "KINFOLK_DATABASE_URL", "DATABASE_URL")
	_ = v.BindEnv("rabbitmq.user", "KINFOLK_RABBITMQ_USER", "RABBITMQ_USER")
	_ = v.BindEnv("rabbitmq.password", "KINFOLK_RABBITMQ_PASSWORD", "RABBITMQ_PASSWORD")
	_ = v.BindEnv("rabbitmq.host", "KINFOLK_RABBITMQ_HOST", "RABBITMQ_HOST")
	_ = v.BindEnv("rabbitmq.port", "KINFOLK_RABBITMQ_PORT", "RABBITMQ_PORT")
	_ = v.BindEnv("s3.region", "KINFOLK_S3_REGION", "AWS_REGION")
	_ = v.BindEnv("s3.endpoint", "KINFOLK_S3_ENDPOINT", "AWS_ENDPOINT")
	_ = v.BindEnv("s3.public_endpoint", "KINFOLK_S3_PUBLIC_ENDPOINT", "AWS_PUBLIC_ENDPOINT")
	_ = v.BindEnv("s3.access_key", "KINFOLK_S3_ACCESS_KEY", "AWS_ACCESS_KEY")
	_ = v.BindEnv("s3.secret_key", "KINFOLK_S3_SECRET_KEY", "AWS_SECRET_KEY")
	_ = v.BindEnv("s3.bucket", "KINFOLK_S3_BUCKET", "AWS_BUCKET")
	_ = v.BindEnv("auth.url", "KINFOLK_AUTH_URL", "AUTH_URL")
	_ = v.BindEnv("auth.master_api_key", "KINFOLK_AUTH_MASTER_API_KEY", "MASTER_API_KEY")
	_ = v.BindEnv("auth.master_user_id", "KINFOLK_AUTH_MASTER_USER_ID", "MASTER_USER_ID")
}

// Default returns the built-in settings without reading any file or the
// environment.
func Default() *Config {
	v := viper.New()
	setDefaults(v)
	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		panic(fmt.Sprintf("config defaults: %v", err))
	}
	return &cfg
}

// Load reads configuration. When file is empty, kinfolk.yaml is looked up in
// the working directory and $HOME/.kinfolk and is optional.
func Load(file string) (*Config, error) {
	v := viper.New()
	setDefaults(v)
	bindEnv(v)

	if file != "" {
		v.SetConfigFile(file)
	} else {
		v.SetConfigName("kinfolk")
		v.SetConfigType("yaml")
		v.AddConfigPath(".")
		v.AddConfigPath("$HOME/.kinfolk")
	}

	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok || file != "" {
			return nil, fmt.Errorf("reading config: %w", err)
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("unmarshalling config: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("validating config: %w", err)
	}
	return &cfg, nil
}

// Validate checks the config before anything is opened.
func (c *Config) Validate() error {
	switch c.Database.Driver {
	case DriverPostgres:
		if c.Database.URL == "" {
			return fmt.Errorf("database.url must be set for the postgres driver")
		}
	case DriverSQLite:
		if c.Database.SQLitePath == "" {
			return fmt.Errorf("database.sqlite_path must be set for the sqlite driver")
		}
	default:
		return fmt.Errorf("database.driver must be %q or %q, got %q", DriverPostgres, DriverSQLite, c.Database.Driver)
	}
	if c.Database.TxMaxRetries < 1 {
		return fmt.Errorf("database.tx_max_retries must be at least 1")
	}
	if c.Database.TxTimeout < 0 {
		return fmt.Errorf("database.tx_timeout must be >= 0")
	}

	for key, value := range map[string]float64{
		"reconcile.name_threshold":  c.Reconcile.NameThreshold,
		"reconcile.place_threshold": c.Reconcile.PlaceThreshold,
		"reconcile.place_weight":    c.Reconcile.PlaceWeight,
		"reconcile.min_confidence":  c.Reconcile.MinConfidence,
		"reconcile.auto_threshold":  c.Reconcile.AutoThreshold,
	} {
		if value < 0 || value > 1 {
			return fmt.Errorf("%s must be between 0 and 1", key)
		}
	}
	if c.Reconcile.Metric != similarity.MetricIndel && c.Reconcile.Metric != similarity.MetricLevenshtein {
		return fmt.Errorf("reconcile.metric must be %q or %q", similarity.MetricIndel, similarity.MetricLevenshtein)
	}
	if c.Reconcile.BlockingPrefix < 0 {
		return fmt.Errorf("reconcile.blocking_prefix must be >= 0")
	}
	if c.Reconcile.Workers < 0 {
		return fmt.Errorf("reconcile.workers must be >= 0")
	}
	if c.Reconcile.MaxMerges < 0 {
		return fmt.Errorf("reconcile.max_merges must be >= 0")
	}
	if c.Reconcile.Schedule != "" {
		if _, err := cron.ParseStandard(c.Reconcile.Schedule); err != nil {
			return fmt.Errorf("reconcile.schedule: %w", err)
		}
	}
	if _, err := merge.ParseLinkCollapse(c.Merge.LinkCollapse); err != nil {
		return fmt.Errorf("merge.link_collapse: %w", err)
	}
	return nil
}

func (c *Config) ScorerConfig() similarity.Config {
	return similarity.Config{
		NameThreshold:  c.Reconcile.NameThreshold,
		PlaceThreshold: c.Reconcile.PlaceThreshold,
		PlaceWeight:    c.Reconcile.PlaceWeight,
		Metric:         c.Reconcile.Metric,
	}
}

func (c *Config) FinderConfig() reconcile.FinderConfig {
	return reconcile.FinderConfig{
		MinConfidence:  c.Reconcile.MinConfidence,
		Workers:        c.Reconcile.Workers,
		BlockingPrefix: c.Reconcile.BlockingPrefix,
	}
}

// AutoPolicy is the unattended policy used by the worker.
func (c *Config) AutoPolicy(mergedBy string) reconcile.Policy {
	return reconcile.Policy{
		AutoApprove:   true,
		AutoThreshold: c.Reconcile.AutoThreshold,
		MaxMerges:     c.Reconcile.MaxMerges,
		MergedBy:      mergedBy,
		LinkCollapse:  merge.LinkCollapse(c.Merge.LinkCollapse),
	}
}
