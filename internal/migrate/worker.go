package migrate

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/ignite/rangemigrate/internal/blobstore"
	"github.com/ignite/rangemigrate/internal/columnar"
	"github.com/ignite/rangemigrate/internal/destdb"
	"github.com/ignite/rangemigrate/internal/domain"
	"github.com/ignite/rangemigrate/internal/pkg/logger"
	"github.com/ignite/rangemigrate/internal/pkg/retry"
	"github.com/ignite/rangemigrate/internal/sourcedb"
)

// BlobStore is the subset of blobstore.Store the migration engine
// depends on, kept as an interface so tests can substitute an in-memory
// fake instead of talking to S3.
type BlobStore interface {
	BatchKey(jobID, table string, batchIndex int) string
	JobPrefix(jobID string) string
	Bucket() string
	UploadFile(ctx context.Context, key, localPath string) error
}

// retriable classifies an error for the retry loop: a *domain.Error
// defers to its Kind's classification, and anything else (e.g. a raw
// upload transport error) is assumed retriable since it crossed a
// network boundary rather than failing a semantic check.
func retriable(err error) bool {
	var derr *domain.Error
	if errors.As(err, &derr) {
		return derr.Kind.Retriable()
	}
	return true
}

// Worker drives one BatchPlanEntry through the Batch Worker state
// machine: Pending -> Reading -> Writing -> Uploading -> Done/Failed.
// Each state transition is retried independently under policy, so a
// transient read failure doesn't force re-uploading an already-written
// file and vice versa.
type Worker struct {
	Source      sourcedb.Connector
	BlobStore   BlobStore
	WriterCfg   columnar.WriterConfig
	Policy      retry.Policy
	LocalDir    string        // directory staged Parquet files are written to before upload
	StepTimeout time.Duration // per-step deadline (read, write, upload); 0 means no deadline
}

// stepContext derives a context bounded by StepTimeout, so a slow read
// or upload aborts on its own schedule instead of running unbounded.
// Callers must always invoke the returned cancel func.
func (w *Worker) stepContext(ctx context.Context) (context.Context, context.CancelFunc) {
	if w.StepTimeout <= 0 {
		return context.WithCancel(ctx)
	}
	return context.WithTimeout(ctx, w.StepTimeout)
}

// classifyStepError inspects stepCtx's own error (rather than err
// directly) so both a context cancelled by the caller and one that
// merely hit StepTimeout's deadline are reported correctly: a done
// stepCtx means the step was aborted mid-flight rather than failing on
// its own terms, and takes priority over the fallback Kind.
func classifyStepError(stepCtx context.Context, err error, fallback domain.Kind, batchIndex int) *domain.Error {
	switch {
	case errors.Is(stepCtx.Err(), context.Canceled):
		return domain.NewBatchError(domain.Cancelled, "batch-worker", batchIndex, err)
	case errors.Is(stepCtx.Err(), context.DeadlineExceeded):
		return domain.NewBatchError(domain.Timeout, "batch-worker", batchIndex, err)
	default:
		return domain.NewBatchError(fallback, "batch-worker", batchIndex, err)
	}
}

// Run executes entry against table and returns its terminal
// BatchResult. It never returns a Go error; all failure is carried in
// the result's State/Err fields so the Coordinator can aggregate many
// workers' outcomes uniformly.
func (w *Worker) Run(ctx context.Context, jobID, table string, entry domain.BatchPlanEntry) domain.BatchResult {
	result := domain.BatchResult{BatchIndex: entry.BatchIndex, State: domain.BatchPending}

	var batch domain.RecordBatch
	result.State = domain.BatchReading
	readCtx, cancelRead := w.stepContext(ctx)
	retries := 0
	err := retry.Do(readCtx, w.Policy, retriable, "batch-worker", func(stepCtx context.Context) error {
		if retries > 0 {
			logger.Warn("retrying batch read", "batch_index", entry.BatchIndex, "table", table)
		}
		retries++
		var readErr error
		batch, readErr = w.Source.ReadRange(stepCtx, table, entry.Offset, entry.Limit)
		return readErr
	})
	result.Retries = retries - 1
	if err != nil {
		failErr := classifyStepError(readCtx, err, domain.QueryError, entry.BatchIndex)
		cancelRead()
		return w.fail(result, failErr)
	}
	cancelRead()
	result.RowsRead = int64(batch.Len())

	result.State = domain.BatchWriting
	if ctxErr := ctx.Err(); ctxErr != nil {
		return w.fail(result, classifyStepError(ctx, ctxErr, domain.WriteError, entry.BatchIndex))
	}
	var localPath string
	writeAttempts := 0
	err = retry.Do(ctx, w.Policy, retriable, "batch-worker", func(context.Context) error {
		writeAttempts++
		var writeErr error
		localPath, writeErr = w.writeLocal(jobID, table, entry.BatchIndex, batch)
		return writeErr
	})
	result.Retries += writeAttempts - 1
	if err != nil {
		return w.fail(result, classifyStepError(ctx, err, domain.WriteError, entry.BatchIndex))
	}
	result.LocalPath = localPath

	result.State = domain.BatchUploading
	blobKey := w.BlobStore.BatchKey(jobID, table, entry.BatchIndex)
	uploadCtx, cancelUpload := w.stepContext(ctx)
	uploadRetries := 0
	err = retry.Do(uploadCtx, w.Policy, retriable, "batch-worker", func(stepCtx context.Context) error {
		uploadRetries++
		return w.BlobStore.UploadFile(stepCtx, blobKey, localPath)
	})
	result.Retries += uploadRetries - 1
	if err != nil {
		failErr := classifyStepError(uploadCtx, err, domain.UploadError, entry.BatchIndex)
		cancelUpload()
		return w.fail(result, failErr)
	}
	cancelUpload()
	result.BlobKey = blobKey

	os.Remove(localPath)

	result.State = domain.BatchDone
	return result
}

func (w *Worker) writeLocal(jobID, table string, batchIndex int, batch domain.RecordBatch) (string, error) {
	dir := filepath.Join(w.LocalDir, "exports", jobID)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return "", fmt.Errorf("migrate: create export dir: %w", err)
	}

	path := filepath.Join(dir, fmt.Sprintf("%s_%d.parquet", table, batchIndex))
	if _, err := columnar.WriteFile(batch, path, w.WriterCfg); err != nil {
		return "", err
	}
	return path, nil
}

func (w *Worker) fail(result domain.BatchResult, err *domain.Error) domain.BatchResult {
	result.State = domain.BatchFailed
	result.Err = err
	logger.Error("batch failed", "batch_index", result.BatchIndex, "state", string(result.State), "error", err.Error())
	return result
}

// destinationCredentials is a small adapter so the Coordinator can pass
// a blobstore.Config straight through to a destdb.Connector's
// BulkIngest without either package importing the other.
func destinationCredentials(cfg blobstore.Config) destdb.Credentials {
	return destdb.Credentials{
		AccessKeyID:     cfg.AccessKeyID,
		SecretAccessKey: cfg.SecretAccessKey,
		Region:          cfg.Region,
	}
}
