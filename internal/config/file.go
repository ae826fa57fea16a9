package config

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/dmitrijs2005/authconnector/internal/flagx"
	"github.com/dmitrijs2005/authconnector/internal/timex"
	"gopkg.in/yaml.v3"
)

// FileConfig mirrors Config for JSON and YAML files. Durations accept
// either a string such as "3s" or integer nanoseconds. Only fields present
// in the file override earlier values.
type FileConfig struct {
	ServiceURL          *string         `json:"service_url" yaml:"service_url"`
	PublicKey           *string         `json:"public_key" yaml:"public_key"`
	SecretKey           *string         `json:"secret_key" yaml:"secret_key"`
	DatabaseDriver      *string         `json:"database_driver" yaml:"database_driver"`
	DatabaseDSN         *string         `json:"database_dsn" yaml:"database_dsn"`
	UsersPerRequest     *int            `json:"users_per_request" yaml:"users_per_request"`
	SyncTimeout         *timex.Duration `json:"sync_timeout" yaml:"sync_timeout"`
	RequestTimeout      *timex.Duration `json:"request_timeout" yaml:"request_timeout"`
	RequestsPerSecond   *float64        `json:"requests_per_second" yaml:"requests_per_second"`
	Concurrency         *int            `json:"concurrency" yaml:"concurrency"`
	ApplyWorkers        *int            `json:"apply_workers" yaml:"apply_workers"`
	Retries             *uint64         `json:"retries" yaml:"retries"`
	RetryBackoff        *timex.Duration `json:"retry_backoff" yaml:"retry_backoff"`
	DumpDir             *string         `json:"dump_dir" yaml:"dump_dir"`
	DefaultImportAction *string         `json:"default_import_action" yaml:"default_import_action"`
	UseS3               *bool           `json:"use_s3" yaml:"use_s3"`
	S3Bucket            *string         `json:"s3_bucket" yaml:"s3_bucket"`
	S3Region            *string         `json:"s3_region" yaml:"s3_region"`
	S3BaseEndpoint      *string         `json:"s3_base_endpoint" yaml:"s3_base_endpoint"`
	S3AccessKey         *string         `json:"s3_access_key" yaml:"s3_access_key"`
	S3SecretKey         *string         `json:"s3_secret_key" yaml:"s3_secret_key"`
	S3Prefix            *string         `json:"s3_prefix" yaml:"s3_prefix"`
	S3LinkTTL           *timex.Duration `json:"s3_link_ttl" yaml:"s3_link_ttl"`
	WebhookAddr         *string         `json:"webhook_addr" yaml:"webhook_addr"`
	WebhookRate         *float64        `json:"webhook_rate" yaml:"webhook_rate"`
	WebhookBurst        *int            `json:"webhook_burst" yaml:"webhook_burst"`
	WebhookLeeway       *timex.Duration `json:"webhook_leeway" yaml:"webhook_leeway"`
	OTLPEndpoint        *string         `json:"otlp_endpoint" yaml:"otlp_endpoint"`
	LogLevel            *string         `json:"log_level" yaml:"log_level"`
	LogFormat           *string         `json:"log_format" yaml:"log_format"`
}

// parseFile overlays the file named by -c/-config, if any. Files ending in
// .yaml or .yml are read as YAML, everything else as JSON.
func parseFile(cfg *Config, args []string) error {
	path := flagx.ConfigFileFlag(args)
	if path == "" {
		return nil
	}

	raw, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("read config file: %w", err)
	}

	fc := &FileConfig{}
	switch strings.ToLower(filepath.Ext(path)) {
	case ".yaml", ".yml":
		err = yaml.Unmarshal(raw, fc)
	default:
		err = json.Unmarshal(raw, fc)
	}
	if err != nil {
		return fmt.Errorf("parse config file %s: %w", path, err)
	}

	fc.apply(cfg)
	return nil
}

func (fc *FileConfig) apply(cfg *Config) {
	set(&cfg.ServiceURL, fc.ServiceURL)
	set(&cfg.PublicKey, fc.PublicKey)
	set(&cfg.SecretKey, fc.SecretKey)
	set(&cfg.DatabaseDriver, fc.DatabaseDriver)
	set(&cfg.DatabaseDSN, fc.DatabaseDSN)
	set(&cfg.UsersPerRequest, fc.UsersPerRequest)
	setDuration(&cfg.SyncTimeout, fc.SyncTimeout)
	setDuration(&cfg.RequestTimeout, fc.RequestTimeout)
	set(&cfg.RequestsPerSecond, fc.RequestsPerSecond)
	set(&cfg.Concurrency, fc.Concurrency)
	set(&cfg.ApplyWorkers, fc.ApplyWorkers)
	set(&cfg.Retries, fc.Retries)
	setDuration(&cfg.RetryBackoff, fc.RetryBackoff)
	set(&cfg.DumpDir, fc.DumpDir)
	set(&cfg.DefaultImportAction, fc.DefaultImportAction)
	set(&cfg.UseS3, fc.UseS3)
	set(&cfg.S3Bucket, fc.S3Bucket)
	set(&cfg.S3Region, fc.S3Region)
	set(&cfg.S3BaseEndpoint, fc.S3BaseEndpoint)
	set(&cfg.S3AccessKey, fc.S3AccessKey)
	set(&cfg.S3SecretKey, fc.S3SecretKey)
	set(&cfg.S3Prefix, fc.S3Prefix)
	setDuration(&cfg.S3LinkTTL, fc.S3LinkTTL)
	set(&cfg.WebhookAddr, fc.WebhookAddr)
	set(&cfg.WebhookRate, fc.WebhookRate)
	set(&cfg.WebhookBurst, fc.WebhookBurst)
	setDuration(&cfg.WebhookLeeway, fc.WebhookLeeway)
	set(&cfg.OTLPEndpoint, fc.OTLPEndpoint)
	set(&cfg.LogLevel, fc.LogLevel)
	set(&cfg.LogFormat, fc.LogFormat)
}

func set[T any](dst *T, v *T) {
	if v != nil {
		*dst = *v
	}
}

func setDuration(dst *time.Duration, v *timex.Duration) {
	if v != nil {
		*dst = v.Duration
	}
}
