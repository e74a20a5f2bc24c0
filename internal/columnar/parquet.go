// Package columnar writes a domain.RecordBatch out as a Parquet file,
// the columnar format every batch is staged in before upload.
package columnar

import (
	"fmt"
	"math/big"
	"os"
	"time"

	"github.com/apache/arrow-go/v18/arrow"
	"github.com/apache/arrow-go/v18/arrow/array"
	"github.com/apache/arrow-go/v18/arrow/decimal128"
	"github.com/apache/arrow-go/v18/arrow/memory"
	"github.com/apache/arrow-go/v18/parquet"
	"github.com/apache/arrow-go/v18/parquet/compress"
	"github.com/apache/arrow-go/v18/parquet/pqarrow"

	"github.com/ignite/rangemigrate/internal/domain"
)

// Compression is the codec applied to every row group written.
type Compression string

const (
	CompressionNone   Compression = "none"
	CompressionSnappy Compression = "snappy"
	CompressionGzip   Compression = "gzip"
	CompressionBrotli Compression = "brotli"
	CompressionLZ4    Compression = "lz4"
	CompressionZstd   Compression = "zstd"
)

func (c Compression) codec() compress.Compression {
	switch c {
	case CompressionNone:
		return compress.Codecs.Uncompressed
	case CompressionGzip:
		return compress.Codecs.Gzip
	case CompressionBrotli:
		return compress.Codecs.Brotli
	case CompressionLZ4:
		return compress.Codecs.Lz4
	case CompressionZstd:
		return compress.Codecs.Zstd
	case CompressionSnappy:
		return compress.Codecs.Snappy
	default:
		return compress.Codecs.Snappy
	}
}

// WriterConfig mirrors the reference engine's ParquetConfig: a
// compression codec, a row-group size, and a statistics toggle.
type WriterConfig struct {
	Compression      Compression
	RowGroupSize     int64
	EnableStatistics bool
}

// DefaultWriterConfig matches the reference engine's defaults.
func DefaultWriterConfig() WriterConfig {
	return WriterConfig{Compression: CompressionSnappy, RowGroupSize: 100_000, EnableStatistics: true}
}

// WriteFile builds an Arrow record from batch and writes it to path as
// a single Parquet file using cfg's compression/row-group/statistics
// settings. Returns the number of rows written.
func WriteFile(batch domain.RecordBatch, path string, cfg WriterConfig) (int64, error) {
	if cfg.RowGroupSize <= 0 {
		cfg.RowGroupSize = 100_000
	}

	mem := memory.NewGoAllocator()
	arrowSchema, err := toArrowSchema(batch.Schema)
	if err != nil {
		return 0, fmt.Errorf("columnar: build arrow schema: %w", err)
	}

	record, err := buildRecord(mem, arrowSchema, batch)
	if err != nil {
		return 0, fmt.Errorf("columnar: build record: %w", err)
	}
	defer record.Release()

	f, err := os.Create(path)
	if err != nil {
		return 0, fmt.Errorf("columnar: create %s: %w", path, err)
	}
	defer f.Close()

	props := parquet.NewWriterProperties(
		parquet.WithCompression(cfg.Compression.codec()),
		parquet.WithStats(cfg.EnableStatistics),
		parquet.WithMaxRowGroupLength(cfg.RowGroupSize),
	)

	writer, err := pqarrow.NewFileWriter(arrowSchema, f, props, pqarrow.DefaultWriterProps())
	if err != nil {
		return 0, fmt.Errorf("columnar: new file writer: %w", err)
	}

	if err := writer.Write(record); err != nil {
		writer.Close()
		return 0, fmt.Errorf("columnar: write record: %w", err)
	}
	if err := writer.Close(); err != nil {
		return 0, fmt.Errorf("columnar: close writer: %w", err)
	}

	return int64(batch.Len()), nil
}

func toArrowSchema(schema domain.Schema) (*arrow.Schema, error) {
	fields := make([]arrow.Field, len(schema))
	for i, col := range schema {
		dt, err := arrowType(col)
		if err != nil {
			return nil, err
		}
		fields[i] = arrow.Field{Name: col.Name, Type: dt, Nullable: true}
	}
	return arrow.NewSchema(fields, nil), nil
}

func arrowType(col domain.Column) (arrow.DataType, error) {
	switch col.Type {
	case domain.ColumnInt64:
		return arrow.PrimitiveTypes.Int64, nil
	case domain.ColumnFloat64:
		return arrow.PrimitiveTypes.Float64, nil
	case domain.ColumnString:
		return arrow.BinaryTypes.String, nil
	case domain.ColumnBool:
		return arrow.FixedWidthTypes.Boolean, nil
	case domain.ColumnTimestamp:
		return arrow.FixedWidthTypes.Timestamp_us, nil
	case domain.ColumnDate:
		return arrow.FixedWidthTypes.Date32, nil
	case domain.ColumnDecimal:
		precision, scale := col.Precision, col.Scale
		if precision == 0 {
			precision = 38
		}
		return &arrow.Decimal128Type{Precision: int32(precision), Scale: int32(scale)}, nil
	case domain.ColumnBinary:
		return arrow.BinaryTypes.Binary, nil
	default:
		return nil, fmt.Errorf("columnar: unsupported column type %q for %q", col.Type, col.Name)
	}
}

func buildRecord(mem memory.Allocator, schema *arrow.Schema, batch domain.RecordBatch) (arrow.Record, error) {
	b := array.NewRecordBuilder(mem, schema)
	defer b.Release()

	for _, row := range batch.Rows {
		for i, col := range batch.Schema {
			if err := appendValue(b.Field(i), col, row[i]); err != nil {
				return nil, err
			}
		}
	}

	return b.NewRecord(), nil
}

func appendValue(fb array.Builder, col domain.Column, v any) error {
	if v == nil {
		fb.AppendNull()
		return nil
	}

	switch col.Type {
	case domain.ColumnInt64:
		n, err := toInt64(v)
		if err != nil {
			return err
		}
		fb.(*array.Int64Builder).Append(n)
	case domain.ColumnFloat64:
		f, err := toFloat64(v)
		if err != nil {
			return err
		}
		fb.(*array.Float64Builder).Append(f)
	case domain.ColumnString:
		s, ok := v.(string)
		if !ok {
			return fmt.Errorf("columnar: expected string for %q, got %T", col.Name, v)
		}
		fb.(*array.StringBuilder).Append(s)
	case domain.ColumnBool:
		bv, ok := v.(bool)
		if !ok {
			return fmt.Errorf("columnar: expected bool for %q, got %T", col.Name, v)
		}
		fb.(*array.BooleanBuilder).Append(bv)
	case domain.ColumnTimestamp:
		t, ok := v.(time.Time)
		if !ok {
			return fmt.Errorf("columnar: expected time.Time for %q, got %T", col.Name, v)
		}
		fb.(*array.TimestampBuilder).Append(arrow.Timestamp(t.UnixMicro()))
	case domain.ColumnDate:
		t, ok := v.(time.Time)
		if !ok {
			return fmt.Errorf("columnar: expected time.Time for %q, got %T", col.Name, v)
		}
		days := int32(t.Unix() / 86400)
		fb.(*array.Date32Builder).Append(arrow.Date32(days))
	case domain.ColumnDecimal:
		r, ok := v.(*big.Rat)
		if !ok {
			return fmt.Errorf("columnar: expected *big.Rat for %q, got %T", col.Name, v)
		}
		scaled := new(big.Int).Quo(
			new(big.Int).Mul(r.Num(), big.NewInt(pow10(col.Scale))),
			r.Denom(),
		)
		fb.(*array.Decimal128Builder).Append(decimal128.FromBigInt(scaled))
	case domain.ColumnBinary:
		buf, ok := v.([]byte)
		if !ok {
			return fmt.Errorf("columnar: expected []byte for %q, got %T", col.Name, v)
		}
		fb.(*array.BinaryBuilder).Append(buf)
	default:
		return fmt.Errorf("columnar: unsupported column type %q for %q", col.Type, col.Name)
	}
	return nil
}

func toInt64(v any) (int64, error) {
	switch n := v.(type) {
	case int64:
		return n, nil
	case int:
		return int64(n), nil
	case int32:
		return int64(n), nil
	default:
		return 0, fmt.Errorf("columnar: expected integer, got %T", v)
	}
}

func toFloat64(v any) (float64, error) {
	switch n := v.(type) {
	case float64:
		return n, nil
	case float32:
		return float64(n), nil
	default:
		return 0, fmt.Errorf("columnar: expected float, got %T", v)
	}
}

func pow10(n int) int64 {
	r := int64(1)
	for i := 0; i < n; i++ {
		r *= 10
	}
	return r
}
