package jobs

import (
	"context"
	"errors"
	"time"
)

// JobType represents the type of job to be executed.
type JobType string

const (
	// JobTypeValidateReceipt represents an asynchronous receipt validation.
	JobTypeValidateReceipt JobType = "validate_receipt"
)

// JobStatus represents the current status of a job.
type JobStatus string

const (
	// JobStatusPending indicates the job is waiting to be processed.
	JobStatusPending JobStatus = "pending"
	// JobStatusRunning indicates the job is currently being processed.
	JobStatusRunning JobStatus = "running"
	// JobStatusCompleted indicates the validation ran to a verdict.
	JobStatusCompleted JobStatus = "completed"
	// JobStatusFailed indicates the validation could not reach a verdict.
	JobStatusFailed JobStatus = "failed"
)

// ErrNotFound is returned when a job ID is unknown.
var ErrNotFound = errors.New("job not found")

// ErrQueueClosed is returned when publishing to a stopped queue.
var ErrQueueClosed = errors.New("queue is closed")

// Result is the verdict recorded on a finished job. It mirrors the body of
// the synchronous endpoint.
type Result struct {
	Success   bool     `json:"success"`
	Valor     *float64 `json:"valor,omitempty"`
	Error     string   `json:"error,omitempty"`
	ErrorKind string   `json:"errorKind,omitempty"`
}

// ValidateReceiptJob represents a queued receipt validation.
type ValidateReceiptJob struct {
	// JobID is the unique identifier for this job.
	JobID string `json:"job_id"`

	// DownloadURL is the location of the receipt file.
	DownloadURL string `json:"download_url"`

	// RecordID is the financial record to reconcile, if any.
	RecordID string `json:"record_id,omitempty"`

	// RequestID ties the job to the HTTP request that created it.
	RequestID string `json:"request_id,omitempty"`

	// Status is the current status of the job.
	Status JobStatus `json:"status"`

	// CreatedAt is when the job was created.
	CreatedAt time.Time `json:"created_at"`

	// StartedAt is when the job started processing.
	StartedAt *time.Time `json:"started_at,omitempty"`

	// CompletedAt is when the job finished.
	CompletedAt *time.Time `json:"completed_at,omitempty"`

	// Result is set once the job has finished.
	Result *Result `json:"result,omitempty"`

	// Error contains error details if the job failed.
	Error string `json:"error,omitempty"`
}

// Job is a generic interface for all job types.
type Job interface {
	GetID() string
	GetType() JobType
	GetStatus() JobStatus
}

// GetID implements the Job interface.
func (j *ValidateReceiptJob) GetID() string {
	return j.JobID
}

// GetType implements the Job interface.
func (j *ValidateReceiptJob) GetType() JobType {
	return JobTypeValidateReceipt
}

// GetStatus implements the Job interface.
func (j *ValidateReceiptJob) GetStatus() JobStatus {
	return j.Status
}

// Publisher enqueues jobs.
type Publisher interface {
	// PublishValidation enqueues a receipt validation. JobID, Status and
	// CreatedAt are filled in when empty.
	PublishValidation(ctx context.Context, job *ValidateReceiptJob) error

	// Close closes the publisher and releases resources.
	Close() error
}

// Consumer runs queued jobs.
type Consumer interface {
	// Start launches the workers. The handler is called once per job.
	Start(ctx context.Context, handler JobHandler) error

	// Stop stops consuming jobs and waits for in-flight jobs to complete.
	Stop(ctx context.Context) error
}

// JobHandler processes a job and records its Result. A returned error marks
// the job failed; jobs are never retried.
type JobHandler func(ctx context.Context, job *ValidateReceiptJob) error

// JobStore stores job state for the status endpoints.
type JobStore interface {
	// SaveJob saves or updates a job's state.
	SaveJob(ctx context.Context, job *ValidateReceiptJob) error

	// GetJob retrieves a job by ID.
	GetJob(ctx context.Context, jobID string) (*ValidateReceiptJob, error)

	// ListJobs retrieves jobs, newest first, with optional filtering.
	ListJobs(ctx context.Context, filter JobFilter) ([]*ValidateReceiptJob, error)
}

// JobFilter defines filtering criteria for listing jobs.
type JobFilter struct {
	// RecordID filters jobs by financial record.
	RecordID string

	// Status filters jobs by status.
	Status JobStatus

	// Limit limits the number of results.
	Limit int

	// Offset for pagination.
	Offset int
}
