package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoad(t *testing.T) {
	tmpDir := t.TempDir()
	configPath := filepath.Join(tmpDir, "config.yaml")

	configContent := `
job:
  batch_size: 1000000
  worker_pool_size: 8
  timeout_seconds: 1800

source:
  engine: mysql
  host: source.internal
  port: 3307
  user: migrator
  database: orders
  table: line_items

destination:
  engine: singlestore
  host: dest.internal
  database: analytics
  table: line_items

blob_store:
  bucket: migration-staging
  key_prefix: exports
  region: us-west-2
  compression: zstd
  row_group_size: 50000

retry:
  max_retries: 5
  base_delay_millis: 500
  max_delay_millis: 20000

logging:
  level: debug
  redact_secrets: true
`
	require.NoError(t, os.WriteFile(configPath, []byte(configContent), 0644))

	cfg, err := Load(configPath)
	require.NoError(t, err)

	assert.Equal(t, int64(1000000), cfg.Job.BatchSize)
	assert.Equal(t, 8, cfg.Job.WorkerPoolSize)
	assert.Equal(t, 1800, cfg.Job.TimeoutSeconds)

	assert.Equal(t, "mysql", cfg.Source.Engine)
	assert.Equal(t, "source.internal", cfg.Source.Host)
	assert.Equal(t, 3307, cfg.Source.Port)
	assert.Equal(t, "line_items", cfg.Source.Table)

	assert.Equal(t, "singlestore", cfg.Dest.Engine)
	assert.Equal(t, "analytics", cfg.Dest.Database)

	assert.Equal(t, "migration-staging", cfg.BlobStore.Bucket)
	assert.Equal(t, "zstd", cfg.BlobStore.Compression)
	assert.Equal(t, int64(50000), cfg.BlobStore.RowGroupSize)

	assert.Equal(t, 5, cfg.Retry.MaxRetries)
	assert.Equal(t, "debug", cfg.Logging.Level)
}

func TestLoadDefaults(t *testing.T) {
	tmpDir := t.TempDir()
	configPath := filepath.Join(tmpDir, "config.yaml")

	configContent := `
source:
  engine: mysql
  table: customers
destination:
  engine: snowflake
  table: customers
`
	require.NoError(t, os.WriteFile(configPath, []byte(configContent), 0644))

	cfg, err := Load(configPath)
	require.NoError(t, err)

	assert.Equal(t, int64(5_000_000), cfg.Job.BatchSize)
	assert.Equal(t, 4, cfg.Job.WorkerPoolSize)
	assert.Equal(t, 300, cfg.Job.StepTimeoutSeconds)
	assert.Equal(t, 3306, cfg.Source.Port)
	assert.Equal(t, 3306, cfg.Dest.Port)
	assert.Equal(t, "us-east-1", cfg.BlobStore.Region)
	assert.Equal(t, "snappy", cfg.BlobStore.Compression)
	assert.Equal(t, int64(100_000), cfg.BlobStore.RowGroupSize)
	assert.Equal(t, 3, cfg.Retry.MaxRetries)
	assert.Equal(t, "info", cfg.Logging.Level)
}

func TestLoadFromEnv(t *testing.T) {
	tmpDir := t.TempDir()
	configPath := filepath.Join(tmpDir, "config.yaml")

	configContent := `
source:
  engine: mysql
  host: file-host
  user: file-user
destination:
  engine: singlestore
`
	require.NoError(t, os.WriteFile(configPath, []byte(configContent), 0644))

	os.Setenv("SOURCE_HOST", "env-host")
	os.Setenv("SOURCE_PASSWORD", "env-password")
	os.Setenv("BLOB_STORE_BUCKET", "env-bucket")
	defer func() {
		os.Unsetenv("SOURCE_HOST")
		os.Unsetenv("SOURCE_PASSWORD")
		os.Unsetenv("BLOB_STORE_BUCKET")
	}()

	cfg, err := LoadFromEnv(configPath)
	require.NoError(t, err)

	assert.Equal(t, "env-host", cfg.Source.Host)
	assert.Equal(t, "file-user", cfg.Source.User)
	assert.Equal(t, "env-password", cfg.Source.Password)
	assert.Equal(t, "env-bucket", cfg.BlobStore.Bucket)
}

func TestLoadFileNotFound(t *testing.T) {
	_, err := Load("/nonexistent/path/config.yaml")
	assert.Error(t, err)
}

func TestJobTimeout(t *testing.T) {
	cfg := JobConfig{TimeoutSeconds: 45}
	assert.Equal(t, 45, int(cfg.Timeout().Seconds()))
}

func TestJobStepTimeout(t *testing.T) {
	cfg := JobConfig{StepTimeoutSeconds: 30}
	assert.Equal(t, 30, int(cfg.StepTimeout().Seconds()))
}

func TestRetryDelays(t *testing.T) {
	cfg := RetryConfig{BaseDelayMillis: 500, MaxDelayMillis: 20000}
	assert.Equal(t, 500, int(cfg.BaseDelay().Milliseconds()))
	assert.Equal(t, 20000, int(cfg.MaxDelay().Milliseconds()))
}
