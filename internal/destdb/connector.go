// Package destdb provides the Destination Connector: schema
// introspection plus the bulk-ingest directive that loads a job's
// staged Parquet files into the destination table.
package destdb

import (
	"context"

	"github.com/ignite/rangemigrate/internal/domain"
)

// Credentials scopes the blob-store access the ingest directive embeds
// in its CREDENTIALS/connection clause.
type Credentials struct {
	AccessKeyID     string
	SecretAccessKey string
	Region          string
}

// Connector is the Destination Connector interface spec.md §4.2
// describes. Dialects: SingleStore (MySQL-wire PIPELINE) and Snowflake
// (COPY INTO).
type Connector interface {
	Connect(ctx context.Context) error
	Test(ctx context.Context) (bool, error)
	Describe(ctx context.Context, table string) (domain.Schema, error)
	RowCount(ctx context.Context, table string) (int64, error)
	BulkIngest(ctx context.Context, table, blobGlob string, creds Credentials) error
	Disconnect(ctx context.Context) error
}
