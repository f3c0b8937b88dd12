package inmemory

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/familiaschurch/receipt-validator/internal/jobs"
	"github.com/google/uuid"
	"github.com/rs/zerolog"
)

// Queue is an in-memory implementation of job publisher and consumer.
// It uses Go channels for job distribution and is safe for concurrent use.
// Jobs are lost on restart, so it suits single-instance deployments.
type Queue struct {
	jobChan     chan *jobs.ValidateReceiptJob
	closeChan   chan struct{}
	wg          sync.WaitGroup
	mu          sync.RWMutex
	store       jobs.JobStore
	workerCount int
	log         zerolog.Logger
	closed      bool
}

// NewQueue creates a new in-memory job queue. bufferSize determines how many
// jobs can wait before PublishValidation blocks; workerCount is the number of
// jobs run concurrently.
func NewQueue(bufferSize, workerCount int, store jobs.JobStore, log zerolog.Logger) *Queue {
	if workerCount <= 0 {
		workerCount = 1
	}
	return &Queue{
		jobChan:     make(chan *jobs.ValidateReceiptJob, bufferSize),
		closeChan:   make(chan struct{}),
		store:       store,
		workerCount: workerCount,
		log:         log,
	}
}

// PublishValidation implements the Publisher interface. The caller must not
// modify job after it has been published.
func (q *Queue) PublishValidation(ctx context.Context, job *jobs.ValidateReceiptJob) error {
	q.mu.RLock()
	closed := q.closed
	q.mu.RUnlock()
	if closed {
		return jobs.ErrQueueClosed
	}

	if job.JobID == "" {
		job.JobID = uuid.New().String()
	}
	if job.Status == "" {
		job.Status = jobs.JobStatusPending
	}
	if job.CreatedAt.IsZero() {
		job.CreatedAt = time.Now()
	}

	if q.store != nil {
		if err := q.store.SaveJob(ctx, job); err != nil {
			return fmt.Errorf("failed to save job: %w", err)
		}
	}

	select {
	case q.jobChan <- job:
		// a send racing Stop lands after its drain
		if q.isClosed() {
			q.failPending(context.WithoutCancel(ctx))
		}
		return nil
	case <-ctx.Done():
		return ctx.Err()
	case <-q.closeChan:
		return jobs.ErrQueueClosed
	}
}

// Start implements the Consumer interface.
func (q *Queue) Start(ctx context.Context, handler jobs.JobHandler) error {
	q.mu.RLock()
	if q.closed {
		q.mu.RUnlock()
		return jobs.ErrQueueClosed
	}
	q.mu.RUnlock()

	for i := 0; i < q.workerCount; i++ {
		q.wg.Add(1)
		go q.worker(ctx, handler)
	}

	q.log.Info().Int("workers", q.workerCount).Msg("Validation queue started")
	return nil
}

func (q *Queue) worker(ctx context.Context, handler jobs.JobHandler) {
	defer q.wg.Done()

	for {
		select {
		case <-ctx.Done():
			return
		case <-q.closeChan:
			return
		case job := <-q.jobChan:
			if job == nil {
				return
			}
			q.processJob(ctx, job, handler)
		}
	}
}

// processJob runs the handler exactly once.
func (q *Queue) processJob(ctx context.Context, job *jobs.ValidateReceiptJob, handler jobs.JobHandler) {
	job.Status = jobs.JobStatusRunning
	now := time.Now()
	job.StartedAt = &now
	q.save(ctx, job)

	err := q.run(ctx, job, handler)

	completedAt := time.Now()
	job.CompletedAt = &completedAt

	if err != nil {
		job.Status = jobs.JobStatusFailed
		job.Error = err.Error()
	} else {
		job.Status = jobs.JobStatusCompleted
		job.Error = ""
	}

	q.log.Debug().
		Str("job_id", job.JobID).
		Str("status", string(job.Status)).
		Dur("duration", completedAt.Sub(now)).
		Msg("Validation job finished")

	q.save(ctx, job)
}

func (q *Queue) run(ctx context.Context, job *jobs.ValidateReceiptJob, handler jobs.JobHandler) (err error) {
	defer func() {
		if r := recover(); r != nil {
			q.log.Error().Interface("panic", r).Str("job_id", job.JobID).Msg("Validation job panicked")
			err = fmt.Errorf("job panicked: %v", r)
		}
	}()
	return handler(ctx, job)
}

func (q *Queue) save(ctx context.Context, job *jobs.ValidateReceiptJob) {
	if q.store == nil {
		return
	}
	if err := q.store.SaveJob(ctx, job); err != nil {
		q.log.Error().Err(err).Str("job_id", job.JobID).Msg("Failed to save job state")
	}
}

func (q *Queue) isClosed() bool {
	q.mu.RLock()
	defer q.mu.RUnlock()
	return q.closed
}

// failPending marks every job still buffered as failed so none stays pending
// once the queue is stopped.
func (q *Queue) failPending(ctx context.Context) {
	for {
		select {
		case job := <-q.jobChan:
			if job == nil {
				continue
			}
			completedAt := time.Now()
			job.CompletedAt = &completedAt
			job.Status = jobs.JobStatusFailed
			job.Error = jobs.ErrQueueClosed.Error()
			q.log.Warn().Str("job_id", job.JobID).Msg("Validation job dropped by shutdown")
			q.save(ctx, job)
		default:
			return
		}
	}
}

// Stop implements the Consumer interface.
// It stops the queue, fails the jobs that never started and waits for all
// in-flight jobs to complete.
func (q *Queue) Stop(ctx context.Context) error {
	q.mu.Lock()
	if q.closed {
		q.mu.Unlock()
		return nil
	}
	q.closed = true
	close(q.closeChan)
	q.mu.Unlock()

	q.failPending(ctx)

	done := make(chan struct{})
	go func() {
		q.wg.Wait()
		close(done)
	}()

	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Close implements the Publisher interface.
func (q *Queue) Close() error {
	return q.Stop(context.Background())
}

var _ jobs.Publisher = (*Queue)(nil)
var _ jobs.Consumer = (*Queue)(nil)
