package domain

import "fmt"

// Kind classifies a failure so the Coordinator can decide whether to retry
// a batch, abort the job, or treat the error as already-terminal.
type Kind string

const (
	ConnectError      Kind = "connect_error"
	SchemaError       Kind = "schema_error"
	SchemaMismatch    Kind = "schema_mismatch"
	QueryError        Kind = "query_error"
	WriteError        Kind = "write_error"
	UploadError       Kind = "upload_error"
	IngestSetupError  Kind = "ingest_setup_error"
	IngestRuntimeError Kind = "ingest_runtime_error"
	RowCountMismatch  Kind = "row_count_mismatch"
	Cancelled         Kind = "cancelled"
	Timeout           Kind = "timeout"
)

// Error wraps an underlying error with the Kind taxonomy, the component
// that raised it, and the batch it affected (if any).
type Error struct {
	Kind       Kind
	Component  string
	BatchIndex int // -1 when not batch-scoped
	Err        error
}

func (e *Error) Error() string {
	if e.BatchIndex >= 0 {
		return fmt.Sprintf("%s[%s] batch %d: %v", e.Component, e.Kind, e.BatchIndex, e.Err)
	}
	return fmt.Sprintf("%s[%s]: %v", e.Component, e.Kind, e.Err)
}

func (e *Error) Unwrap() error { return e.Err }

// NewError builds a job-scoped (non-batch) Error.
func NewError(kind Kind, component string, err error) *Error {
	return &Error{Kind: kind, Component: component, BatchIndex: -1, Err: err}
}

// NewBatchError builds a batch-scoped Error.
func NewBatchError(kind Kind, component string, batchIndex int, err error) *Error {
	return &Error{Kind: kind, Component: component, BatchIndex: batchIndex, Err: err}
}

// Retriable reports whether errors of this Kind are worth retrying. The
// retry policy in internal/pkg/retry consults this before backing off.
// QueryError is deliberately non-retriable: a malformed query or schema
// problem will not succeed on a later attempt, so it should fail fast
// rather than burn through MaxRetries. Transient, connection-level
// causes of a failed read (a dropped socket, a lock-wait timeout) are
// classified as ConnectError instead, at the point the error is built,
// so they retry while genuine query errors do not.
func (k Kind) Retriable() bool {
	switch k {
	case ConnectError, WriteError, UploadError, IngestRuntimeError, Timeout:
		return true
	case SchemaError, SchemaMismatch, QueryError, IngestSetupError, RowCountMismatch, Cancelled:
		return false
	default:
		return false
	}
}
