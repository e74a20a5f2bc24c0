package migrate

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"runtime"
	"sync"
	"time"

	"github.com/ignite/rangemigrate/internal/blobstore"
	"github.com/ignite/rangemigrate/internal/columnar"
	"github.com/ignite/rangemigrate/internal/destdb"
	"github.com/ignite/rangemigrate/internal/domain"
	"github.com/ignite/rangemigrate/internal/pkg/logger"
	"github.com/ignite/rangemigrate/internal/pkg/retry"
	"github.com/ignite/rangemigrate/internal/sourcedb"
)

// JobState is a state in the Job Coordinator's top-level state machine.
type JobState string

const (
	StateInit      JobState = "init"
	StatePreflight JobState = "preflight"
	StatePlanning  JobState = "planning"
	StateExecuting JobState = "executing"
	StateIngesting JobState = "ingesting"
	StateVerifying JobState = "verifying"
	StateDone      JobState = "done"
	StateFailed    JobState = "failed"
)

// Coordinator owns a JobSpec and drives it through Init -> Preflight ->
// Planning -> Executing -> Ingesting -> Verifying -> Done, falling to
// Failed from any state. Cleanup runs on every terminal path.
type Coordinator struct {
	Spec        domain.JobSpec
	Source      sourcedb.Connector
	Destination destdb.Connector
	BlobStore   BlobStore
	WriterCfg   columnar.WriterConfig
	Policy      retry.Policy
	PoolSize    int           // worker pool capacity; effective concurrency is min(cpus*2, PoolSize)
	LocalDir    string        // root directory batch files are staged under before upload
	StepTimeout time.Duration // per-step (read/write/upload) deadline passed to every Worker

	state JobState
}

// Run executes the full job lifecycle and returns the JobReport. Cleanup
// (removing staged local files, disconnecting both connectors) always
// runs before Run returns, on both the Done and Failed paths.
func (c *Coordinator) Run(ctx context.Context) domain.JobReport {
	started := time.Now()
	c.state = StateInit
	c.Spec.Normalize()

	report := domain.JobReport{JobID: c.Spec.JobID, StartedAt: started}

	totalRows, results, err := c.execute(ctx)
	finished := time.Now()

	report.FinishedAt = finished
	report.ElapsedSeconds = finished.Sub(started).Seconds()
	report.TotalRows = totalRows
	report.BatchCount = len(results)
	report.BatchStates = results
	if report.ElapsedSeconds > 0 {
		report.RowsPerSecond = float64(totalRows) / report.ElapsedSeconds
	}

	for _, r := range results {
		if r.State == domain.BatchFailed {
			report.FailedBatches = append(report.FailedBatches, r.BatchIndex)
		}
	}

	if err != nil {
		c.state = StateFailed
		report.Status = domain.StatusFailed
		logger.Error("migration job failed", "job_id", c.Spec.JobID, "state", string(c.state), "error", err.Error())
	} else {
		c.state = StateDone
		report.Status = domain.StatusDone
		logger.Info("migration job done", "job_id", c.Spec.JobID, "total_rows", totalRows, "elapsed_seconds", report.ElapsedSeconds)
	}

	c.cleanup(ctx)
	return report
}

// execute runs Preflight through Verifying and returns the captured
// total_rows plus every batch's terminal result. A non-nil error means
// the job failed at the named state; results may be partial.
func (c *Coordinator) execute(ctx context.Context) (int64, []domain.BatchResult, error) {
	c.state = StatePreflight
	if err := c.preflight(ctx); err != nil {
		return 0, nil, err
	}

	c.state = StatePlanning
	totalRows, err := c.Source.RowCount(ctx, c.Spec.Source.Table)
	if err != nil {
		return 0, nil, domain.NewError(domain.QueryError, "coordinator", err)
	}
	plan := Plan(totalRows, c.Spec.BatchSize)

	if len(plan.Entries) == 0 {
		return 0, nil, nil
	}

	c.state = StateExecuting
	results, err := c.executeBatches(ctx, plan)
	if err != nil {
		return totalRows, results, err
	}

	c.state = StateIngesting
	if err := c.ingest(ctx); err != nil {
		return totalRows, results, err
	}

	c.state = StateVerifying
	if err := c.verify(ctx, totalRows); err != nil {
		return totalRows, results, err
	}

	return totalRows, results, nil
}

// preflight connects both endpoints, tests them, and gates the job on
// structural schema equality before any byte is written.
func (c *Coordinator) preflight(ctx context.Context) error {
	if err := c.Source.Connect(ctx); err != nil {
		return domain.NewError(domain.ConnectError, "coordinator", err)
	}
	if err := c.Destination.Connect(ctx); err != nil {
		return domain.NewError(domain.ConnectError, "coordinator", err)
	}

	if ok, err := c.Source.Test(ctx); err != nil || !ok {
		return domain.NewError(domain.ConnectError, "coordinator", fmt.Errorf("source test failed: %w", err))
	}
	if ok, err := c.Destination.Test(ctx); err != nil || !ok {
		return domain.NewError(domain.ConnectError, "coordinator", fmt.Errorf("destination test failed: %w", err))
	}

	sourceSchema, err := c.Source.Describe(ctx, c.Spec.Source.Table)
	if err != nil {
		return domain.NewError(domain.SchemaError, "coordinator", err)
	}
	destSchema, err := c.Destination.Describe(ctx, c.Spec.Destination.Table)
	if err != nil {
		return domain.NewError(domain.SchemaError, "coordinator", err)
	}

	if !sourceSchema.Equal(destSchema) {
		return domain.NewError(domain.SchemaMismatch, "coordinator",
			fmt.Errorf("source schema %v does not match destination schema %v", sourceSchema, destSchema))
	}
	return nil
}

// executeBatches fans plan's entries out to a bounded worker pool and
// awaits every result via a join barrier. If any BatchResult is Failed,
// the aggregate error is non-nil and the Coordinator must not proceed
// to Ingesting.
func (c *Coordinator) executeBatches(ctx context.Context, plan domain.BatchPlan) ([]domain.BatchResult, error) {
	concurrency := c.poolConcurrency()

	entries := make(chan domain.BatchPlanEntry, len(plan.Entries))
	for _, e := range plan.Entries {
		entries <- e
	}
	close(entries)

	results := make([]domain.BatchResult, len(plan.Entries))
	var mu sync.Mutex
	var wg sync.WaitGroup

	for i := 0; i < concurrency; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			w := &Worker{
				Source:      c.Source,
				BlobStore:   c.BlobStore,
				WriterCfg:   c.WriterCfg,
				Policy:      c.Policy,
				LocalDir:    c.LocalDir,
				StepTimeout: c.StepTimeout,
			}
			for entry := range entries {
				result := w.Run(ctx, c.Spec.JobID, c.Spec.Source.Table, entry)
				mu.Lock()
				results[entry.BatchIndex] = result
				mu.Unlock()
			}
		}()
	}
	wg.Wait()

	var failed []int
	for _, r := range results {
		if r.State == domain.BatchFailed {
			failed = append(failed, r.BatchIndex)
		}
	}
	if len(failed) > 0 {
		return results, domain.NewError(domain.WriteError, "coordinator", fmt.Errorf("batches failed: %v", failed))
	}
	return results, nil
}

// poolConcurrency bounds worker concurrency to min(cpus*2, PoolSize).
func (c *Coordinator) poolConcurrency() int {
	poolCap := c.PoolSize
	if poolCap <= 0 {
		poolCap = 4
	}
	limit := runtime.NumCPU() * 2
	if limit < poolCap {
		return limit
	}
	return poolCap
}

// ingest is called only after every BatchResult is Done, and blocks
// until the destination's bulk-ingest directive reports terminal state.
func (c *Coordinator) ingest(ctx context.Context) error {
	blobGlob := fmt.Sprintf("%s/%s*.parquet", c.BlobStore.Bucket(), c.BlobStore.JobPrefix(c.Spec.JobID))
	creds := destinationCredentials(blobstore.Config{
		AccessKeyID:     c.Spec.BlobStore.AccessID,
		SecretAccessKey: c.Spec.BlobStore.Secret,
		Region:          c.Spec.BlobStore.Region,
	})

	if err := c.Destination.BulkIngest(ctx, c.Spec.Destination.Table, blobGlob, creds); err != nil {
		return err
	}
	return nil
}

// verify re-reads the destination row count and compares it against
// the total_rows snapshot captured during Planning.
func (c *Coordinator) verify(ctx context.Context, totalRows int64) error {
	count, err := c.Destination.RowCount(ctx, c.Spec.Destination.Table)
	if err != nil {
		return domain.NewError(domain.QueryError, "coordinator", err)
	}
	if count != totalRows {
		return domain.NewError(domain.RowCountMismatch, "coordinator",
			fmt.Errorf("destination row count %d != source row count %d", count, totalRows))
	}
	return nil
}

// cleanup removes any remaining local files under exports/{job_id}/ and
// disconnects both connectors. It runs on every terminal path and never
// returns an error — cleanup failures are logged, not fatal, since the
// job's own status has already been decided.
func (c *Coordinator) cleanup(ctx context.Context) {
	dir := filepath.Join(c.LocalDir, "exports", c.Spec.JobID)
	if err := os.RemoveAll(dir); err != nil {
		logger.Warn("cleanup: failed to remove local export directory", "job_id", c.Spec.JobID, "dir", dir, "error", err.Error())
	}

	if err := c.Source.Disconnect(ctx); err != nil {
		logger.Warn("cleanup: failed to disconnect source", "job_id", c.Spec.JobID, "error", err.Error())
	}
	if err := c.Destination.Disconnect(ctx); err != nil {
		logger.Warn("cleanup: failed to disconnect destination", "job_id", c.Spec.JobID, "error", err.Error())
	}
}
