package handlers

import (
	"context"
	"fmt"
	"net/http"
	"strconv"

	"github.com/familiaschurch/receipt-validator/internal/api/middleware"
	"github.com/familiaschurch/receipt-validator/internal/errs"
	"github.com/familiaschurch/receipt-validator/internal/jobs"
	"github.com/familiaschurch/receipt-validator/internal/logger"
	"github.com/familiaschurch/receipt-validator/internal/validation"
	"github.com/go-chi/chi/v5"
)

// maxBodyBytes bounds the JSON request body.
const maxBodyBytes = 64 << 10

// Validator runs one receipt validation.
type Validator interface {
	Validate(ctx context.Context, req validation.Request) validation.Outcome
}

// ValidationHandler serves the receipt validation endpoints.
type ValidationHandler struct {
	validator Validator
	publisher jobs.Publisher
}

// NewValidationHandler creates a new validation handler. publisher may be nil
// when asynchronous validation is disabled.
func NewValidationHandler(v Validator, publisher jobs.Publisher) *ValidationHandler {
	return &ValidationHandler{validator: v, publisher: publisher}
}

// Validate handles POST /validar-pix. The status is always 200; callers
// inspect data.success.
func (h *ValidationHandler) Validate(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	req, err := validation.DecodeRequest(http.MaxBytesReader(w, r.Body, maxBodyBytes))
	if err != nil {
		log := logger.FromContext(ctx)
		log.Warn().Err(err).Msg("Invalid validation request")
		middleware.WriteJSON(w, http.StatusOK, validation.ErrorResponse(err))
		return
	}

	outcome := h.validator.Validate(ctx, req)
	middleware.WriteJSON(w, http.StatusOK, outcome.Response())
}

// Enqueue handles POST /validar-pix/async.
func (h *ValidationHandler) Enqueue(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	log := logger.FromContext(ctx)

	if h.publisher == nil {
		middleware.WriteError(w, http.StatusServiceUnavailable, "Asynchronous validation is disabled")
		return
	}

	req, err := validation.DecodeRequest(http.MaxBytesReader(w, r.Body, maxBodyBytes))
	if err != nil {
		middleware.WriteJSON(w, http.StatusBadRequest, map[string]string{
			"error":     err.Error(),
			"errorKind": string(errs.KindOf(err)),
		})
		return
	}

	job := &jobs.ValidateReceiptJob{
		DownloadURL: req.DownloadURL,
		RecordID:    req.RecordID,
		RequestID:   middleware.GetRequestID(ctx),
	}

	if err := h.publisher.PublishValidation(ctx, job); err != nil {
		log.Error().Err(err).Msg("Failed to enqueue validation job")
		middleware.WriteError(w, http.StatusServiceUnavailable, "Failed to enqueue validation job")
		return
	}

	jobID := job.JobID
	log.Info().Str("job_id", jobID).Str("record_id", req.RecordID).Msg("Validation job enqueued")

	middleware.WriteJSON(w, http.StatusAccepted, map[string]string{
		"job_id": jobID,
		"status": string(jobs.JobStatusPending),
	})
}

// Respond answers a request whose handler panicked with the failure body.
func (h *ValidationHandler) Respond(w http.ResponseWriter, r *http.Request, recovered interface{}) {
	middleware.WriteJSON(w, http.StatusOK, validation.ErrorResponse(fmt.Errorf("internal error: %v", recovered)))
}

// JobsHandler handles job-related endpoints.
type JobsHandler struct {
	store jobs.JobStore
}

// NewJobsHandler creates a new jobs handler.
func NewJobsHandler(store jobs.JobStore) *JobsHandler {
	return &JobsHandler{store: store}
}

// GetJob handles GET /api/jobs/{id}
func (h *JobsHandler) GetJob(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	jobID := chi.URLParam(r, "id")

	job, err := h.store.GetJob(ctx, jobID)
	if jobs.IsNotFound(err) {
		middleware.WriteError(w, http.StatusNotFound, "Job not found")
		return
	}
	if err != nil {
		log := logger.FromContext(ctx)
		log.Error().Err(err).Str("job_id", jobID).Msg("Failed to get job")
		middleware.WriteError(w, http.StatusInternalServerError, "Failed to get job")
		return
	}

	middleware.WriteJSON(w, http.StatusOK, job)
}

// ListJobs handles GET /api/jobs
func (h *JobsHandler) ListJobs(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	query := r.URL.Query()
	filter := jobs.JobFilter{
		RecordID: query.Get("record_id"),
		Status:   jobs.JobStatus(query.Get("status")),
	}

	switch filter.Status {
	case "", jobs.JobStatusPending, jobs.JobStatusRunning, jobs.JobStatusCompleted, jobs.JobStatusFailed:
	default:
		middleware.WriteError(w, http.StatusBadRequest, "Invalid status")
		return
	}

	var err error
	if filter.Limit, err = nonNegative(query.Get("limit")); err != nil {
		middleware.WriteError(w, http.StatusBadRequest, "Invalid limit")
		return
	}
	if filter.Offset, err = nonNegative(query.Get("offset")); err != nil {
		middleware.WriteError(w, http.StatusBadRequest, "Invalid offset")
		return
	}

	jobsList, err := h.store.ListJobs(ctx, filter)
	if err != nil {
		log := logger.FromContext(ctx)
		log.Error().Err(err).Msg("Failed to list jobs")
		middleware.WriteError(w, http.StatusInternalServerError, "Failed to list jobs")
		return
	}

	middleware.WriteJSON(w, http.StatusOK, map[string]interface{}{
		"jobs":  jobsList,
		"count": len(jobsList),
	})
}

// Health handles GET /health
func Health(w http.ResponseWriter, r *http.Request) {
	middleware.WriteJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func nonNegative(s string) (int, error) {
	if s == "" {
		return 0, nil
	}
	n, err := strconv.Atoi(s)
	if err != nil {
		return 0, err
	}
	if n < 0 {
		return 0, fmt.Errorf("negative value %d", n)
	}
	return n, nil
}
