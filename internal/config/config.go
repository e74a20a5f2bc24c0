// Package config loads the migration job engine's configuration from a
// YAML file, with environment-variable overrides for secrets so
// credentials can live in .env locally and in real environment
// variables in a deployed container.
package config

import (
	"fmt"
	"os"
	"time"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"
)

// Config holds all configuration for a migration job run.
type Config struct {
	Job       JobConfig       `yaml:"job"`
	Source    EndpointConfig  `yaml:"source"`
	Dest      EndpointConfig  `yaml:"destination"`
	BlobStore BlobStoreConfig `yaml:"blob_store"`
	Retry     RetryConfig     `yaml:"retry"`
	Logging   LoggingConfig   `yaml:"logging"`
}

// JobConfig holds the planning-level settings for a run.
type JobConfig struct {
	BatchSize          int64 `yaml:"batch_size"`
	WorkerPoolSize     int   `yaml:"worker_pool_size"`
	TimeoutSeconds     int   `yaml:"timeout_seconds"`
	StepTimeoutSeconds int   `yaml:"step_timeout_seconds"`
}

// Timeout returns the job-wide deadline as a duration.
func (c JobConfig) Timeout() time.Duration {
	return time.Duration(c.TimeoutSeconds) * time.Second
}

// StepTimeout returns the per-step (read/write/upload) deadline a
// single Batch Worker attempt must complete within.
func (c JobConfig) StepTimeout() time.Duration {
	return time.Duration(c.StepTimeoutSeconds) * time.Second
}

// EndpointConfig describes one side (source or destination) of a
// migration job.
type EndpointConfig struct {
	Engine   string `yaml:"engine"` // "mysql", "singlestore", "snowflake"
	Host     string `yaml:"host"`
	Port     int    `yaml:"port"`
	User     string `yaml:"user"`
	Password string `yaml:"password"`
	Database string `yaml:"database"`
	Table    string `yaml:"table"`
	Account  string `yaml:"account"` // Snowflake account identifier, empty otherwise
	Schema   string `yaml:"schema"`  // Snowflake schema, empty otherwise
	Warehouse string `yaml:"warehouse"`
	Stage    string `yaml:"stage"` // Snowflake external stage name
}

// BlobStoreConfig holds the S3 staging location settings.
type BlobStoreConfig struct {
	Bucket          string `yaml:"bucket"`
	KeyPrefix       string `yaml:"key_prefix"`
	Region          string `yaml:"region"`
	AccessKeyID     string `yaml:"access_key_id"`
	SecretAccessKey string `yaml:"secret_access_key"`
	Compression     string `yaml:"compression"`      // none, snappy, gzip, brotli, lz4, zstd
	RowGroupSize    int64  `yaml:"row_group_size"`
	DeleteOnFailure bool   `yaml:"delete_on_failure"`
}

// RetryConfig holds the exponential-backoff parameters applied to the
// Batch Worker's steps (range reads, local Parquet writes, uploads).
// Connects and the destination ingest call are not retried.
type RetryConfig struct {
	MaxRetries      int `yaml:"max_retries"`
	BaseDelayMillis int `yaml:"base_delay_millis"`
	MaxDelayMillis  int `yaml:"max_delay_millis"`
}

// BaseDelay returns the configured base delay as a duration.
func (c RetryConfig) BaseDelay() time.Duration {
	return time.Duration(c.BaseDelayMillis) * time.Millisecond
}

// MaxDelay returns the configured max delay as a duration.
func (c RetryConfig) MaxDelay() time.Duration {
	return time.Duration(c.MaxDelayMillis) * time.Millisecond
}

// LoggingConfig controls the structured logger.
type LoggingConfig struct {
	Level         string `yaml:"level"`
	RedactSecrets bool   `yaml:"redact_secrets"`
}

// Load reads and parses the configuration file, applying defaults for
// any field left unset.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("config: read %s: %w", path, err)
	}

	var cfg Config
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("config: parse %s: %w", path, err)
	}

	applyDefaults(&cfg)
	return &cfg, nil
}

func applyDefaults(cfg *Config) {
	if cfg.Job.BatchSize == 0 {
		cfg.Job.BatchSize = 5_000_000
	}
	if cfg.Job.WorkerPoolSize == 0 {
		cfg.Job.WorkerPoolSize = 4
	}
	if cfg.Job.TimeoutSeconds == 0 {
		cfg.Job.TimeoutSeconds = 3600
	}
	if cfg.Job.StepTimeoutSeconds == 0 {
		cfg.Job.StepTimeoutSeconds = 300
	}
	if cfg.Source.Port == 0 {
		cfg.Source.Port = 3306
	}
	if cfg.Dest.Port == 0 {
		cfg.Dest.Port = 3306
	}
	if cfg.BlobStore.Region == "" {
		cfg.BlobStore.Region = "us-east-1"
	}
	if cfg.BlobStore.Compression == "" {
		cfg.BlobStore.Compression = "snappy"
	}
	if cfg.BlobStore.RowGroupSize == 0 {
		cfg.BlobStore.RowGroupSize = 100_000
	}
	if cfg.Retry.MaxRetries == 0 {
		cfg.Retry.MaxRetries = 3
	}
	if cfg.Retry.BaseDelayMillis == 0 {
		cfg.Retry.BaseDelayMillis = 1000
	}
	if cfg.Retry.MaxDelayMillis == 0 {
		cfg.Retry.MaxDelayMillis = 30_000
	}
	if cfg.Logging.Level == "" {
		cfg.Logging.Level = "info"
	}
}

// LoadFromEnv loads configuration with environment-variable overrides.
// It loads a .env file (if present) before reading env vars, so
// secrets can live in .env locally and in real env vars in deployment.
func LoadFromEnv(path string) (*Config, error) {
	_ = godotenv.Load()

	cfg, err := Load(path)
	if err != nil {
		return nil, err
	}

	if v := os.Getenv("SOURCE_HOST"); v != "" {
		cfg.Source.Host = v
	}
	if v := os.Getenv("SOURCE_USER"); v != "" {
		cfg.Source.User = v
	}
	if v := os.Getenv("SOURCE_PASSWORD"); v != "" {
		cfg.Source.Password = v
	}
	if v := os.Getenv("DEST_HOST"); v != "" {
		cfg.Dest.Host = v
	}
	if v := os.Getenv("DEST_USER"); v != "" {
		cfg.Dest.User = v
	}
	if v := os.Getenv("DEST_PASSWORD"); v != "" {
		cfg.Dest.Password = v
	}
	if v := os.Getenv("BLOB_STORE_ACCESS_KEY_ID"); v != "" {
		cfg.BlobStore.AccessKeyID = v
	}
	if v := os.Getenv("BLOB_STORE_SECRET_ACCESS_KEY"); v != "" {
		cfg.BlobStore.SecretAccessKey = v
	}
	if v := os.Getenv("BLOB_STORE_BUCKET"); v != "" {
		cfg.BlobStore.Bucket = v
	}

	return cfg, nil
}
