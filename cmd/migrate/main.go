package main

import (
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"os"

	"github.com/google/uuid"

	"github.com/ignite/rangemigrate/internal/blobstore"
	"github.com/ignite/rangemigrate/internal/columnar"
	"github.com/ignite/rangemigrate/internal/config"
	"github.com/ignite/rangemigrate/internal/destdb"
	"github.com/ignite/rangemigrate/internal/domain"
	"github.com/ignite/rangemigrate/internal/migrate"
	"github.com/ignite/rangemigrate/internal/pkg/logger"
	"github.com/ignite/rangemigrate/internal/pkg/retry"
	"github.com/ignite/rangemigrate/internal/sourcedb"
)

func main() {
	configPath := flag.String("config", "config.yaml", "path to the job config file")
	localDir := flag.String("local-dir", ".", "root directory staged Parquet files are written under")
	flag.Parse()

	cfg, err := config.LoadFromEnv(*configPath)
	if err != nil {
		fmt.Fprintln(os.Stderr, "rangemigrate:", err)
		os.Exit(1)
	}

	logger.SetRedactSecrets(cfg.Logging.RedactSecrets)
	logger.SetLevel(parseLevel(cfg.Logging.Level))

	source := sourcedb.New(sourcedb.Config{
		Host:     cfg.Source.Host,
		Port:     cfg.Source.Port,
		User:     cfg.Source.User,
		Password: cfg.Source.Password,
		Database: cfg.Source.Database,
		PoolSize: cfg.Job.WorkerPoolSize * 2,
	})

	destination, err := buildDestination(cfg)
	if err != nil {
		fmt.Fprintln(os.Stderr, "rangemigrate:", err)
		os.Exit(1)
	}

	ctx, cancel := context.WithTimeout(context.Background(), cfg.Job.Timeout())
	defer cancel()

	store, err := blobstore.New(ctx, blobstore.Config{
		Bucket:          cfg.BlobStore.Bucket,
		KeyPrefix:       cfg.BlobStore.KeyPrefix,
		Region:          cfg.BlobStore.Region,
		AccessKeyID:     cfg.BlobStore.AccessKeyID,
		SecretAccessKey: cfg.BlobStore.SecretAccessKey,
	})
	if err != nil {
		fmt.Fprintln(os.Stderr, "rangemigrate:", err)
		os.Exit(1)
	}

	spec := domain.JobSpec{
		JobID: uuid.New().String(),
		Source: domain.Endpoint{
			Engine: cfg.Source.Engine, Host: cfg.Source.Host, Port: cfg.Source.Port,
			User: cfg.Source.User, Secret: cfg.Source.Password,
			Database: cfg.Source.Database, Table: cfg.Source.Table,
		},
		Destination: domain.Endpoint{
			Engine: cfg.Dest.Engine, Host: cfg.Dest.Host, Port: cfg.Dest.Port,
			User: cfg.Dest.User, Secret: cfg.Dest.Password,
			Database: cfg.Dest.Database, Table: cfg.Dest.Table,
		},
		BlobStore: domain.BlobStore{
			Bucket: cfg.BlobStore.Bucket, KeyPrefix: cfg.BlobStore.KeyPrefix, Region: cfg.BlobStore.Region,
			AccessID: cfg.BlobStore.AccessKeyID, Secret: cfg.BlobStore.SecretAccessKey,
		},
		BatchSize: cfg.Job.BatchSize,
	}

	coordinator := &migrate.Coordinator{
		Spec:        spec,
		Source:      source,
		Destination: destination,
		BlobStore:   store,
		WriterCfg: columnar.WriterConfig{
			Compression:      columnar.Compression(cfg.BlobStore.Compression),
			RowGroupSize:     cfg.BlobStore.RowGroupSize,
			EnableStatistics: true,
		},
		Policy: retry.Policy{
			MaxRetries: cfg.Retry.MaxRetries,
			BaseDelay:  cfg.Retry.BaseDelay(),
			MaxDelay:   cfg.Retry.MaxDelay(),
		},
		PoolSize:    cfg.Job.WorkerPoolSize,
		LocalDir:    *localDir,
		StepTimeout: cfg.Job.StepTimeout(),
	}

	logger.Info("starting migration job", "job_id", spec.JobID, "source_table", spec.Source.Table, "destination_table", spec.Destination.Table)

	report := coordinator.Run(ctx)

	out, err := json.MarshalIndent(report, "", "  ")
	if err != nil {
		fmt.Fprintln(os.Stderr, "rangemigrate: marshal report:", err)
		os.Exit(1)
	}
	fmt.Println(string(out))

	if report.Status == domain.StatusFailed {
		os.Exit(1)
	}
}

func buildDestination(cfg *config.Config) (destdb.Connector, error) {
	switch cfg.Dest.Engine {
	case "snowflake":
		return destdb.NewSnowflake(destdb.SnowflakeConfig{
			Account:   cfg.Dest.Account,
			User:      cfg.Dest.User,
			Password:  cfg.Dest.Password,
			Database:  cfg.Dest.Database,
			Schema:    cfg.Dest.Schema,
			Warehouse: cfg.Dest.Warehouse,
			Stage:     cfg.Dest.Stage,
		}), nil
	case "singlestore", "":
		return destdb.NewSingleStore(sourcedb.Config{
			Host:     cfg.Dest.Host,
			Port:     cfg.Dest.Port,
			User:     cfg.Dest.User,
			Password: cfg.Dest.Password,
			Database: cfg.Dest.Database,
			PoolSize: cfg.Job.WorkerPoolSize,
		}), nil
	default:
		return nil, fmt.Errorf("unsupported destination engine %q", cfg.Dest.Engine)
	}
}

func parseLevel(level string) logger.Level {
	switch level {
	case "debug":
		return logger.DEBUG
	case "warn":
		return logger.WARN
	case "error":
		return logger.ERROR
	default:
		return logger.INFO
	}
}
