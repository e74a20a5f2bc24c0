// Package migrate implements the Job Planner, Batch Worker, and Job
// Coordinator that drive a migration job from a table's total row count
// through staged Parquet uploads to destination bulk ingest.
package migrate

import "github.com/ignite/rangemigrate/internal/domain"

// Plan partitions [0, totalRows) into batchSize-sized, ordered,
// non-overlapping ranges. Entry i always has offset = i*batchSize and
// batch_index = i, so the plan is a pure function of (totalRows,
// batchSize): replanning a job never changes which rows land in which
// batch. A totalRows of 0 produces an empty plan, the signal the
// Coordinator uses to short-circuit straight to a zero-row success.
func Plan(totalRows, batchSize int64) domain.BatchPlan {
	plan := domain.BatchPlan{TotalRows: totalRows}
	if totalRows <= 0 || batchSize <= 0 {
		return plan
	}

	for offset := int64(0); offset < totalRows; offset += batchSize {
		limit := batchSize
		if remaining := totalRows - offset; remaining < limit {
			limit = remaining
		}
		plan.Entries = append(plan.Entries, domain.BatchPlanEntry{
			BatchIndex: int(offset / batchSize),
			Offset:     offset,
			Limit:      limit,
		})
	}
	return plan
}
