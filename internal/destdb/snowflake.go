package destdb

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
	"time"

	_ "github.com/snowflakedb/gosnowflake"

	"github.com/ignite/rangemigrate/internal/domain"
	"github.com/ignite/rangemigrate/internal/pkg/logger"
)

// SnowflakeConfig holds the connection parameters for a Snowflake
// destination.
type SnowflakeConfig struct {
	Account   string
	User      string
	Password  string
	Database  string
	Schema    string
	Warehouse string
	Stage     string // external stage name the ingest COPY INTO reads from
}

// Snowflake is the alternate destination dialect: jobs whose
// destination.engine is "snowflake" COPY INTO from the same S3
// staging prefix instead of a SingleStore PIPELINE.
type Snowflake struct {
	cfg SnowflakeConfig
	db  *sql.DB
}

// NewSnowflake constructs a Snowflake destination connector.
func NewSnowflake(cfg SnowflakeConfig) *Snowflake {
	return &Snowflake{cfg: cfg}
}

// Connect opens the Snowflake session, same DSN shape as the
// teacher's internal/snowflake client: user:password@account/database/schema?warehouse=...
func (s *Snowflake) Connect(ctx context.Context) error {
	dsn := fmt.Sprintf("%s:%s@%s/%s/%s", s.cfg.User, s.cfg.Password, s.cfg.Account, s.cfg.Database, s.cfg.Schema)
	if s.cfg.Warehouse != "" {
		dsn += "?warehouse=" + s.cfg.Warehouse
	}

	db, err := sql.Open("snowflake", dsn)
	if err != nil {
		return domain.NewError(domain.ConnectError, "destdb", err)
	}
	db.SetMaxOpenConns(5)
	db.SetMaxIdleConns(2)
	db.SetConnMaxLifetime(5 * time.Minute)

	if err := db.PingContext(ctx); err != nil {
		db.Close()
		return domain.NewError(domain.ConnectError, "destdb", err)
	}

	s.db = db
	return nil
}

func (s *Snowflake) Disconnect(ctx context.Context) error {
	if s.db == nil {
		return nil
	}
	return s.db.Close()
}

func (s *Snowflake) Test(ctx context.Context) (bool, error) {
	if err := s.db.PingContext(ctx); err != nil {
		return false, domain.NewError(domain.ConnectError, "destdb", err)
	}
	return true, nil
}

// Describe maps Snowflake's DESCRIBE TABLE output to domain.Schema.
func (s *Snowflake) Describe(ctx context.Context, table string) (domain.Schema, error) {
	rows, err := s.db.QueryContext(ctx, fmt.Sprintf("DESCRIBE TABLE %s", table))
	if err != nil {
		return nil, domain.NewError(domain.SchemaError, "destdb", err)
	}
	defer rows.Close()

	cols, err := rows.Columns()
	if err != nil {
		return nil, domain.NewError(domain.SchemaError, "destdb", err)
	}

	var schema domain.Schema
	for rows.Next() {
		scanDest := make([]any, len(cols))
		for i := range scanDest {
			scanDest[i] = new(any)
		}
		if err := rows.Scan(scanDest...); err != nil {
			return nil, domain.NewError(domain.SchemaError, "destdb", err)
		}
		name, _ := (*(scanDest[0].(*any))).(string)
		rawType, _ := (*(scanDest[1].(*any))).(string)
		schema = append(schema, columnFromSnowflakeType(name, rawType))
	}
	return schema, rows.Err()
}

func (s *Snowflake) RowCount(ctx context.Context, table string) (int64, error) {
	var count int64
	q := fmt.Sprintf("SELECT COUNT(*) FROM %s", table)
	if err := s.db.QueryRowContext(ctx, q).Scan(&count); err != nil {
		return 0, domain.NewError(domain.QueryError, "destdb", err)
	}
	return count, nil
}

// BulkIngest issues a COPY INTO from the job's staging prefix on the
// configured external stage, the Snowflake analogue of SingleStore's
// PIPELINE directive: both read every object under one glob/prefix and
// insert into the destination table in one blocking call.
func (s *Snowflake) BulkIngest(ctx context.Context, table, blobGlob string, creds Credentials) error {
	if s.cfg.Stage == "" {
		return domain.NewError(domain.IngestSetupError, "destdb", fmt.Errorf("no external stage configured for table %q", table))
	}

	query := fmt.Sprintf(`COPY INTO %s
  FROM '@%s/%s'
  FILE_FORMAT = (TYPE = PARQUET)
  MATCH_BY_COLUMN_NAME = CASE_INSENSITIVE`, table, s.cfg.Stage, blobGlob)

	logger.Info("running COPY INTO", "table", table, "stage", s.cfg.Stage)
	if _, err := s.db.ExecContext(ctx, query); err != nil {
		return domain.NewError(domain.IngestRuntimeError, "destdb", err)
	}
	return nil
}

func columnFromSnowflakeType(name, rawType string) domain.Column {
	upper := strings.ToUpper(rawType)
	col := domain.Column{Name: name, Raw: rawType}

	switch {
	case strings.Contains(upper, "NUMBER") || strings.Contains(upper, "INT"):
		col.Type = domain.ColumnInt64
	case strings.Contains(upper, "FLOAT") || strings.Contains(upper, "DOUBLE"):
		col.Type = domain.ColumnFloat64
	case strings.Contains(upper, "BOOLEAN"):
		col.Type = domain.ColumnBool
	case strings.Contains(upper, "TIMESTAMP"):
		col.Type = domain.ColumnTimestamp
	case strings.Contains(upper, "DATE"):
		col.Type = domain.ColumnDate
	case strings.Contains(upper, "BINARY"):
		col.Type = domain.ColumnBinary
	default:
		col.Type = domain.ColumnString
	}
	return col
}
