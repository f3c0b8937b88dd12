package jobs

import (
	"context"
	"errors"

	"github.com/familiaschurch/receipt-validator/internal/logger"
	"github.com/familiaschurch/receipt-validator/internal/validation"
)

// Validator runs one receipt validation.
type Validator interface {
	Validate(ctx context.Context, req validation.Request) validation.Outcome
}

// ValidationHandler returns a JobHandler that runs v for each job. The job is
// failed only when no verdict was reached; rejected receipts complete.
func ValidationHandler(v Validator) JobHandler {
	return func(ctx context.Context, job *ValidateReceiptJob) error {
		log := logger.FromContext(ctx).With().
			Str("job_id", job.JobID).
			Str("request_id", job.RequestID).
			Logger()
		ctx = logger.WithContext(ctx, log)

		outcome := v.Validate(ctx, validation.Request{
			DownloadURL: job.DownloadURL,
			RecordID:    job.RecordID,
		})

		resp := outcome.Response().Data
		job.Result = &Result{
			Success:   resp.Success,
			Valor:     resp.Valor,
			Error:     resp.Error,
			ErrorKind: resp.ErrorKind,
		}

		if outcome.Failure != nil {
			return outcome.Failure
		}
		if outcome.StoreErr != nil {
			log.Warn().Err(outcome.StoreErr).Msg("Job verdict kept despite reconciliation failure")
		}
		return nil
	}
}

// IsNotFound reports whether err means the job does not exist.
func IsNotFound(err error) bool {
	return errors.Is(err, ErrNotFound)
}
