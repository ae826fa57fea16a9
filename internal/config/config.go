// Package config assembles connector settings from defaults, an optional
// JSON or YAML file, CONNECTOR_* environment variables and command-line
// flags, in that order.
package config

import (
	"errors"
	"fmt"
	"time"

	"github.com/dmitrijs2005/authconnector/internal/models"
	"github.com/dmitrijs2005/authconnector/internal/storage"
	"github.com/dmitrijs2005/authconnector/internal/tenant"
)

// Config holds runtime settings of the connector.
type Config struct {
	ServiceURL string `env:"SERVICE_URL"`
	PublicKey  string `env:"PUBLIC_KEY"`
	SecretKey  string `env:"SECRET_KEY"`

	DatabaseDriver string `env:"DATABASE_DRIVER"`
	DatabaseDSN    string `env:"DATABASE_DSN"`

	UsersPerRequest   int           `env:"USERS_PER_REQUEST"`
	SyncTimeout       time.Duration `env:"SYNC_TIMEOUT"`
	RequestTimeout    time.Duration `env:"REQUEST_TIMEOUT"`
	RequestsPerSecond float64       `env:"REQUESTS_PER_SECOND"`
	Concurrency       int           `env:"CONCURRENCY"`
	ApplyWorkers      int           `env:"APPLY_WORKERS"`
	Retries           uint64        `env:"RETRIES"`
	RetryBackoff      time.Duration `env:"RETRY_BACKOFF"`

	DumpDir             string `env:"DUMP_DIR"`
	DefaultImportAction string `env:"DEFAULT_IMPORT_ACTION"`

	UseS3          bool          `env:"USE_S3"`
	S3Bucket       string        `env:"S3_BUCKET"`
	S3Region       string        `env:"S3_REGION"`
	S3BaseEndpoint string        `env:"S3_BASE_ENDPOINT"`
	S3AccessKey    string        `env:"S3_ACCESS_KEY"`
	S3SecretKey    string        `env:"S3_SECRET_KEY"`
	S3Prefix       string        `env:"S3_PREFIX"`
	S3LinkTTL      time.Duration `env:"S3_LINK_TTL"`

	WebhookAddr   string        `env:"WEBHOOK_ADDR"`
	WebhookRate   float64       `env:"WEBHOOK_RATE"`
	WebhookBurst  int           `env:"WEBHOOK_BURST"`
	WebhookLeeway time.Duration `env:"WEBHOOK_LEEWAY"`

	OTLPEndpoint string `env:"OTLP_ENDPOINT"`
	LogLevel     string `env:"LOG_LEVEL"`
	LogFormat    string `env:"LOG_FORMAT"`
}

// LoadDefaults populates Config with development defaults.
func (c *Config) LoadDefaults() {
	c.ServiceURL = "http://127.0.0.1:8080/"
	c.DatabaseDriver = "sqlite"
	c.DatabaseDSN = "file:connector.db"
	c.UsersPerRequest = 5000
	c.SyncTimeout = 10 * time.Minute
	c.RequestTimeout = 30 * time.Second
	c.Concurrency = 1
	c.ApplyWorkers = 1
	c.RetryBackoff = 500 * time.Millisecond
	c.DumpDir = "storage/exports"
	c.DefaultImportAction = string(models.ActionCreate)
	c.S3Region = "us-east-1"
	c.S3LinkTTL = storage.DefaultLinkTTL
	c.WebhookAddr = ":8090"
	c.WebhookRate = 10
	c.WebhookBurst = 20
	c.WebhookLeeway = 30 * time.Second
	c.LogLevel = "info"
	c.LogFormat = "text"
}

// Load builds a Config from defaults, the file named by -c/-config, the
// given environment and the recognized flags in args.
func Load(args []string, environ map[string]string) (*Config, error) {
	cfg := &Config{}
	cfg.LoadDefaults()

	if err := parseFile(cfg, args); err != nil {
		return nil, err
	}
	if err := parseEnv(cfg, environ); err != nil {
		return nil, err
	}
	if err := parseFlags(cfg, args); err != nil {
		return nil, err
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Validate checks settings that are wrong regardless of the command run.
func (c *Config) Validate() error {
	var errs []error
	if c.UsersPerRequest <= 0 {
		errs = append(errs, fmt.Errorf("users per request must be positive, got %d", c.UsersPerRequest))
	}
	if c.Concurrency <= 0 {
		errs = append(errs, fmt.Errorf("concurrency must be positive, got %d", c.Concurrency))
	}
	if c.ApplyWorkers <= 0 {
		errs = append(errs, fmt.Errorf("apply workers must be positive, got %d", c.ApplyWorkers))
	}
	if c.DefaultImportAction != "" {
		if _, err := models.ParseAction(c.DefaultImportAction); err != nil {
			errs = append(errs, fmt.Errorf("default import action: %w", err))
		}
	}
	if c.UseS3 && c.S3Bucket == "" {
		errs = append(errs, errors.New("s3 bucket is required when s3 storage is enabled"))
	}
	return errors.Join(errs...)
}

// Credentials returns the tenant key pair.
func (c *Config) Credentials() tenant.Credentials {
	return tenant.Credentials{Public: c.PublicKey, Secret: c.SecretKey}
}

// S3Options maps the S3 settings onto the store options.
func (c *Config) S3Options() storage.S3Options {
	return storage.S3Options{
		Bucket:       c.S3Bucket,
		Region:       c.S3Region,
		BaseEndpoint: c.S3BaseEndpoint,
		AccessKey:    c.S3AccessKey,
		SecretKey:    c.S3SecretKey,
		Prefix:       c.S3Prefix,
	}
}

// ImportAction is the action assigned to imported records without one.
func (c *Config) ImportAction() models.Action {
	if c.DefaultImportAction == "" {
		return models.ActionCreate
	}
	return models.Action(c.DefaultImportAction)
}
