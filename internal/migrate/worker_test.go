package migrate

import (
	"context"
	"fmt"
	"os"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ignite/rangemigrate/internal/columnar"
	"github.com/ignite/rangemigrate/internal/domain"
	"github.com/ignite/rangemigrate/internal/pkg/retry"
)

type fakeSource struct {
	batch            domain.RecordBatch
	failCount        int           // number of leading ReadRange calls that return a transient ConnectError
	calls            int
	rowCountOverride *int64
	delay            time.Duration // artificial per-call latency, to exercise StepTimeout
}

func (f *fakeSource) Connect(ctx context.Context) error { return nil }
func (f *fakeSource) Test(ctx context.Context) (bool, error) { return true, nil }
func (f *fakeSource) ListTables(ctx context.Context) ([]string, error) { return nil, nil }
func (f *fakeSource) Describe(ctx context.Context, table string) (domain.Schema, error) {
	return f.batch.Schema, nil
}
func (f *fakeSource) RowCount(ctx context.Context, table string) (int64, error) {
	if f.rowCountOverride != nil {
		return *f.rowCountOverride, nil
	}
	return 0, nil
}
func (f *fakeSource) PrimaryKey(ctx context.Context, table string) ([]string, error) { return nil, nil }
func (f *fakeSource) ReadRange(ctx context.Context, table string, offset, limit int64) (domain.RecordBatch, error) {
	f.calls++
	if f.delay > 0 {
		select {
		case <-time.After(f.delay):
		case <-ctx.Done():
			return domain.RecordBatch{}, ctx.Err()
		}
	}
	if f.calls <= f.failCount {
		// A dropped connection/lock-wait timeout, not a malformed query
		// — the one ReadRange failure mode the retry loop should retry.
		return domain.RecordBatch{}, domain.NewError(domain.ConnectError, "test", assert.AnError)
	}
	return f.batch, nil
}
func (f *fakeSource) Disconnect(ctx context.Context) error { return nil }

type fakeBlobStore struct {
	uploads   map[string]string
	uploadErr error
	failCount int // number of leading UploadFile calls that fail with a transient transport error
	calls     int
}

func newFakeBlobStore() *fakeBlobStore { return &fakeBlobStore{uploads: make(map[string]string)} }

func (f *fakeBlobStore) BatchKey(jobID, table string, batchIndex int) string {
	return fmt.Sprintf("%s/%s_%d.parquet", jobID, table, batchIndex)
}
func (f *fakeBlobStore) JobPrefix(jobID string) string { return jobID + "/" }
func (f *fakeBlobStore) Bucket() string                { return "test-bucket" }
func (f *fakeBlobStore) UploadFile(ctx context.Context, key, localPath string) error {
	f.calls++
	if f.calls <= f.failCount {
		return assert.AnError
	}
	if f.uploadErr != nil {
		return f.uploadErr
	}
	f.uploads[key] = localPath
	return nil
}

func sampleWorkerBatch() domain.RecordBatch {
	return domain.RecordBatch{
		Schema: domain.Schema{{Name: "id", Type: domain.ColumnInt64}},
		Rows:   [][]any{{int64(1)}, {int64(2)}},
	}
}

func fastRetryPolicy() retry.Policy {
	return retry.Policy{MaxRetries: 2, BaseDelay: time.Millisecond, MaxDelay: 5 * time.Millisecond}
}

func TestWorkerRunHappyPath(t *testing.T) {
	dir := t.TempDir()
	src := &fakeSource{batch: sampleWorkerBatch()}
	blobs := newFakeBlobStore()
	w := &Worker{
		Source:    src,
		BlobStore: blobs,
		WriterCfg: columnar.DefaultWriterConfig(),
		Policy:    fastRetryPolicy(),
		LocalDir:  dir,
	}

	result := w.Run(context.Background(), "job-1", "accounts", domain.BatchPlanEntry{BatchIndex: 0, Offset: 0, Limit: 2})
	require.Equal(t, domain.BatchDone, result.State)
	assert.Equal(t, int64(2), result.RowsRead)
	assert.NotEmpty(t, result.BlobKey)
	assert.Contains(t, blobs.uploads, result.BlobKey)

	// The local file is removed after a successful upload.
	_, statErr := os.Stat(result.LocalPath)
	assert.True(t, os.IsNotExist(statErr))
}

func TestWorkerRunFailsOnUploadError(t *testing.T) {
	dir := t.TempDir()
	src := &fakeSource{batch: sampleWorkerBatch()}
	blobs := newFakeBlobStore()
	blobs.uploadErr = assert.AnError
	w := &Worker{
		Source:    src,
		BlobStore: blobs,
		WriterCfg: columnar.DefaultWriterConfig(),
		Policy:    fastRetryPolicy(),
		LocalDir:  dir,
	}

	result := w.Run(context.Background(), "job-1", "accounts", domain.BatchPlanEntry{BatchIndex: 0, Offset: 0, Limit: 2})
	require.Equal(t, domain.BatchFailed, result.State)
	require.NotNil(t, result.Err)
	assert.Equal(t, domain.UploadError, result.Err.Kind)
}

func TestRetryDoRetriesReadOnTransientConnectionError(t *testing.T) {
	src := &fakeSource{batch: sampleWorkerBatch(), failCount: 1}

	err := retry.Do(context.Background(), fastRetryPolicy(), retriable, "test", func(ctx context.Context) error {
		_, readErr := src.ReadRange(ctx, "accounts", 0, 10)
		return readErr
	})
	require.NoError(t, err)
	assert.Equal(t, 2, src.calls)
}

func TestWorkerRunFailsFastOnPermanentQueryError(t *testing.T) {
	dir := t.TempDir()
	src := &permanentQueryErrorSource{}
	blobs := newFakeBlobStore()
	w := &Worker{
		Source:    src,
		BlobStore: blobs,
		WriterCfg: columnar.DefaultWriterConfig(),
		Policy:    fastRetryPolicy(),
		LocalDir:  dir,
	}

	result := w.Run(context.Background(), "job-1", "accounts", domain.BatchPlanEntry{BatchIndex: 0, Offset: 0, Limit: 2})
	require.Equal(t, domain.BatchFailed, result.State)
	require.NotNil(t, result.Err)
	assert.Equal(t, domain.QueryError, result.Err.Kind)
	// QueryError is non-retriable, so the step runs exactly once.
	assert.Equal(t, 1, src.calls)
	assert.Equal(t, 0, result.Retries)
}

func TestWorkerRunRetriesUploadThenSucceeds(t *testing.T) {
	dir := t.TempDir()
	src := &fakeSource{batch: sampleWorkerBatch()}
	blobs := newFakeBlobStore()
	blobs.failCount = 2
	w := &Worker{
		Source:    src,
		BlobStore: blobs,
		WriterCfg: columnar.DefaultWriterConfig(),
		Policy:    fastRetryPolicy(),
		LocalDir:  dir,
	}

	result := w.Run(context.Background(), "job-1", "accounts", domain.BatchPlanEntry{BatchIndex: 0, Offset: 0, Limit: 2})
	require.Equal(t, domain.BatchDone, result.State)
	assert.Equal(t, 2, result.Retries)
	assert.Contains(t, blobs.uploads, result.BlobKey)
}

func TestWorkerRunMarksCancelledWhenContextAlreadyCancelled(t *testing.T) {
	dir := t.TempDir()
	src := &fakeSource{batch: sampleWorkerBatch()}
	blobs := newFakeBlobStore()
	w := &Worker{
		Source:    src,
		BlobStore: blobs,
		WriterCfg: columnar.DefaultWriterConfig(),
		Policy:    fastRetryPolicy(),
		LocalDir:  dir,
	}

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	result := w.Run(ctx, "job-1", "accounts", domain.BatchPlanEntry{BatchIndex: 0, Offset: 0, Limit: 2})
	require.Equal(t, domain.BatchFailed, result.State)
	require.NotNil(t, result.Err)
	assert.Equal(t, domain.Cancelled, result.Err.Kind)
}

func TestWorkerRunMarksTimeoutWhenStepExceedsStepTimeout(t *testing.T) {
	dir := t.TempDir()
	src := &fakeSource{batch: sampleWorkerBatch(), delay: 20 * time.Millisecond}
	blobs := newFakeBlobStore()
	w := &Worker{
		Source:      src,
		BlobStore:   blobs,
		WriterCfg:   columnar.DefaultWriterConfig(),
		Policy:      retry.Policy{MaxRetries: 1, BaseDelay: time.Millisecond, MaxDelay: time.Millisecond},
		LocalDir:    dir,
		StepTimeout: 5 * time.Millisecond,
	}

	result := w.Run(context.Background(), "job-1", "accounts", domain.BatchPlanEntry{BatchIndex: 0, Offset: 0, Limit: 2})
	require.Equal(t, domain.BatchFailed, result.State)
	require.NotNil(t, result.Err)
	assert.Equal(t, domain.Timeout, result.Err.Kind)
}

// permanentQueryErrorSource always returns a domain.QueryError classified
// failure (a malformed query/schema problem), never a transient one, to
// verify the worker does not retry it.
type permanentQueryErrorSource struct {
	fakeSource
	calls int
}

func (s *permanentQueryErrorSource) ReadRange(ctx context.Context, table string, offset, limit int64) (domain.RecordBatch, error) {
	s.calls++
	return domain.RecordBatch{}, domain.NewError(domain.QueryError, "test", assert.AnError)
}

func TestRetriableClassifiesDomainErrorByKind(t *testing.T) {
	assert.True(t, retriable(domain.NewError(domain.ConnectError, "x", assert.AnError)))
	assert.False(t, retriable(domain.NewError(domain.QueryError, "x", assert.AnError)))
	assert.False(t, retriable(domain.NewError(domain.SchemaMismatch, "x", assert.AnError)))
	assert.True(t, retriable(assert.AnError))
}

func TestWorkerFailMarksBatchFailed(t *testing.T) {
	w := &Worker{}
	result := domain.BatchResult{BatchIndex: 3, State: domain.BatchReading}
	failed := w.fail(result, domain.NewBatchError(domain.WriteError, "test", 3, assert.AnError))
	assert.Equal(t, domain.BatchFailed, failed.State)
	assert.True(t, failed.Terminal())
	require.NotNil(t, failed.Err)
	assert.Equal(t, domain.WriteError, failed.Err.Kind)
}
