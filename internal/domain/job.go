package domain

import "time"

// Endpoint describes one side of a migration (source or destination).
type Endpoint struct {
	Engine   string `json:"engine" yaml:"engine"` // e.g. "mysql", "singlestore", "snowflake"
	Host     string `json:"host" yaml:"host"`
	Port     int    `json:"port" yaml:"port"`
	User     string `json:"user" yaml:"user"`
	Secret   string `json:"-" yaml:"secret"` // password; never logged
	Database string `json:"database" yaml:"database"`
	Table    string `json:"table" yaml:"table"`
}

// BlobStore describes the staging object-storage location for a job.
type BlobStore struct {
	Bucket    string `json:"bucket" yaml:"bucket"`
	KeyPrefix string `json:"key_prefix" yaml:"key_prefix"`
	Region    string `json:"region" yaml:"region"`
	AccessID  string `json:"-" yaml:"access_id"`
	Secret    string `json:"-" yaml:"secret"`
}

// JobSpec is the immutable description of a single migration run.
type JobSpec struct {
	JobID       string    `json:"job_id"`
	Source      Endpoint  `json:"source"`
	Destination Endpoint  `json:"destination"`
	BlobStore   BlobStore `json:"blob_store"`
	BatchSize   int64     `json:"batch_size"`
}

// DefaultBatchSize matches the reference migration job's batch size.
const DefaultBatchSize int64 = 5_000_000

// Normalize fills in the job's default batch size if unset. It does not
// mutate any other field.
func (s *JobSpec) Normalize() {
	if s.BatchSize <= 0 {
		s.BatchSize = DefaultBatchSize
	}
}

// BatchPlanEntry is one contiguous range of the source table assigned to a
// single batch worker.
type BatchPlanEntry struct {
	BatchIndex int   `json:"batch_index"`
	Offset     int64 `json:"offset"`
	Limit      int64 `json:"limit"`
}

// BatchPlan is the ordered, gapless, non-overlapping partition of
// [0, TotalRows) computed once per job.
type BatchPlan struct {
	TotalRows int64            `json:"total_rows"`
	Entries   []BatchPlanEntry `json:"entries"`
}

// BatchState is a state in the Batch Worker's state machine.
type BatchState string

const (
	BatchPending   BatchState = "pending"
	BatchReading   BatchState = "reading"
	BatchWriting   BatchState = "writing"
	BatchUploading BatchState = "uploading"
	BatchDone      BatchState = "done"
	BatchFailed    BatchState = "failed"
)

// BatchResult is the outcome of processing one BatchPlanEntry.
type BatchResult struct {
	BatchIndex int        `json:"batch_index"`
	RowsRead   int64      `json:"rows_read"`
	LocalPath  string     `json:"local_path,omitempty"`
	BlobKey    string     `json:"blob_key,omitempty"`
	State      BatchState `json:"state"`
	Retries    int        `json:"retries"`
	Err        *Error     `json:"error,omitempty"`
}

// Terminal reports whether the batch has reached Done or Failed.
func (r BatchResult) Terminal() bool {
	return r.State == BatchDone || r.State == BatchFailed
}

// JobStatus is the terminal or in-flight status of a job, as reported in
// the JobReport.
type JobStatus string

const (
	StatusRunning JobStatus = "running"
	StatusDone    JobStatus = "done"
	StatusFailed  JobStatus = "failed"
)

// JobReport is the summary produced at job completion or failure.
type JobReport struct {
	JobID           string        `json:"job_id"`
	TotalRows       int64         `json:"total_rows"`
	ElapsedSeconds  float64       `json:"elapsed_seconds"`
	RowsPerSecond   float64       `json:"rows_per_second"`
	BatchCount      int           `json:"batch_count"`
	StartedAt       time.Time     `json:"started_at"`
	FinishedAt      time.Time     `json:"finished_at"`
	Status          JobStatus     `json:"status"`
	FailedBatches   []int         `json:"failed_batches,omitempty"`
	BatchStates     []BatchResult `json:"batch_states,omitempty"`
}
