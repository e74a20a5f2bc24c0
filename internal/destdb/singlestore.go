package destdb

import (
	"context"
	"fmt"
	"strings"

	"github.com/ignite/rangemigrate/internal/domain"
	"github.com/ignite/rangemigrate/internal/pkg/logger"
	"github.com/ignite/rangemigrate/internal/sourcedb"
)

// SingleStore is the reference destination dialect: MySQL-wire
// compatible, so schema introspection is delegated to a
// sourcedb.MySQL connector, with bulk ingest layered on top as a
// CREATE OR REPLACE PIPELINE / START PIPELINE FOREGROUND directive.
type SingleStore struct {
	conn  *sourcedb.MySQL
	table string
}

// NewSingleStore constructs a SingleStore destination connector.
func NewSingleStore(cfg sourcedb.Config) *SingleStore {
	return &SingleStore{conn: sourcedb.New(cfg)}
}

func (s *SingleStore) Connect(ctx context.Context) error    { return s.conn.Connect(ctx) }
func (s *SingleStore) Disconnect(ctx context.Context) error { return s.conn.Disconnect(ctx) }
func (s *SingleStore) Test(ctx context.Context) (bool, error) { return s.conn.Test(ctx) }

func (s *SingleStore) Describe(ctx context.Context, table string) (domain.Schema, error) {
	return s.conn.Describe(ctx, table)
}

func (s *SingleStore) RowCount(ctx context.Context, table string) (int64, error) {
	return s.conn.RowCount(ctx, table)
}

// BulkIngest creates or replaces a pipeline named {table}_pipeline
// bound to blobGlob and runs it to completion in the foreground,
// matching the reference engine's ingest_parquet. Timestamp columns
// are converted from microsecond epoch integers via FROM_UNIXTIME, the
// same coercion the reference engine applies.
func (s *SingleStore) BulkIngest(ctx context.Context, table, blobGlob string, creds Credentials) error {
	schema, err := s.conn.Describe(ctx, table)
	if err != nil {
		return domain.NewError(domain.IngestSetupError, "destdb", err)
	}
	if len(schema) == 0 {
		return domain.NewError(domain.IngestSetupError, "destdb", fmt.Errorf("no schema for table %q", table))
	}

	pipelineName := fmt.Sprintf("%s_pipeline", table)

	var mappings []string
	var timestampSets []string
	for _, col := range schema {
		if col.Type == domain.ColumnTimestamp {
			mappings = append(mappings, fmt.Sprintf("@%s <- %s", col.Name, col.Name))
			timestampSets = append(timestampSets, fmt.Sprintf("%s = FROM_UNIXTIME(@%s/1000000)", col.Name, col.Name))
		} else {
			mappings = append(mappings, fmt.Sprintf("%s <- %s", col.Name, col.Name))
		}
	}

	query := fmt.Sprintf(`CREATE OR REPLACE PIPELINE %s
  AS LOAD DATA S3 '%s'
  CONFIG '{"region": "%s"}'
  CREDENTIALS '{"aws_access_key_id": "%s", "aws_secret_access_key": "%s"}'
  INTO TABLE %s
  FORMAT PARQUET
  (
    %s
  )`, pipelineName, blobGlob, creds.Region, creds.AccessKeyID, creds.SecretAccessKey, table, strings.Join(mappings, ",\n    "))

	if len(timestampSets) > 0 {
		query += "\nSET " + strings.Join(timestampSets, ", ") + ";"
	} else {
		query += ";"
	}

	logger.Info("creating bulk-ingest pipeline", "pipeline", pipelineName, "table", table)
	if err := s.conn.ExecContext(ctx, query); err != nil {
		return domain.NewError(domain.IngestSetupError, "destdb", err)
	}

	logger.Info("starting pipeline", "pipeline", pipelineName)
	if err := s.conn.ExecContext(ctx, fmt.Sprintf("START PIPELINE %s FOREGROUND", pipelineName)); err != nil {
		return domain.NewError(domain.IngestRuntimeError, "destdb", err)
	}

	return nil
}
