package validation

import (
	"context"
	"time"

	"github.com/familiaschurch/receipt-validator/internal/errs"
	"github.com/familiaschurch/receipt-validator/internal/fetch"
	"github.com/familiaschurch/receipt-validator/internal/logger"
	"github.com/familiaschurch/receipt-validator/internal/metrics"
	"github.com/familiaschurch/receipt-validator/internal/receipt"
)

// Orchestrator validates receipts. It holds only long-lived clients and is
// safe for concurrent use.
type Orchestrator struct {
	pipeline *Pipeline
	metrics  *metrics.Metrics
}

// Option tunes an Orchestrator.
type Option func(*options)

type options struct {
	extractTimeout time.Duration
	storeTimeout   time.Duration
}

// WithExtractTimeout bounds text extraction. Zero means no bound.
func WithExtractTimeout(d time.Duration) Option {
	return func(o *options) { o.extractTimeout = d }
}

// WithStoreTimeout bounds the record update or delete. Zero means no bound.
func WithStoreTimeout(d time.Duration) Option {
	return func(o *options) { o.storeTimeout = d }
}

// NewOrchestrator wires fetch, extract, analyze and reconcile into one
// pipeline. reconciler may be nil, in which case no record is ever touched.
func NewOrchestrator(
	fetcher fetch.Fetcher,
	extractor TextExtractor,
	matcher *receipt.BeneficiaryMatcher,
	reconciler RecordReconciler,
	m *metrics.Metrics,
	opts ...Option,
) *Orchestrator {
	var cfg options
	for _, opt := range opts {
		opt(&cfg)
	}
	return &Orchestrator{
		pipeline: NewPipeline(m,
			&FetchStep{Fetcher: fetcher},
			&ExtractStep{Extractor: extractor, Timeout: cfg.extractTimeout},
			&AnalyzeStep{Matcher: matcher},
			&ReconcileStep{Reconciler: reconciler, Timeout: cfg.storeTimeout},
		),
		metrics: m,
	}
}

// Validate runs the pipeline for req. It always returns an outcome; fetch and
// extraction failures are reported through Outcome.Failure, and a store
// failure through Outcome.StoreErr without altering the verdict.
//
// Once started, a validation runs to completion even if ctx is cancelled, so
// a caller that goes away cannot leave its record half reconciled. Each stage
// is bounded by its own timeout instead.
func (o *Orchestrator) Validate(ctx context.Context, req Request) Outcome {
	ctx = context.WithoutCancel(ctx)
	log := logger.FromContext(ctx).With().
		Str("record_id", req.RecordID).
		Logger()

	if err := req.Validate(); err != nil {
		o.metrics.ObserveValidation(metrics.ResultFailed)
		log.Warn().Err(err).Msg("Rejected invalid validation request")
		return Failed(err)
	}

	state := &State{Request: req}
	if err := o.pipeline.Execute(ctx, state); err != nil {
		outcome := Failed(err)
		o.metrics.ObserveValidation(outcome.Result())
		log.Warn().
			Err(err).
			Str("error_kind", string(errs.KindOf(err))).
			Msg("Receipt validation failed")
		return outcome
	}

	log.Debug().Str("text", state.Text).Msg("Extracted receipt text")

	outcome := Outcome{
		Approved:    state.Approved,
		Amount:      state.Amount,
		AmountFound: state.AmountFound,
		StoreErr:    state.StoreErr,
	}
	o.metrics.ObserveValidation(outcome.Result())

	log.Info().
		Bool("approved", outcome.Approved).
		Str("amount", outcome.Amount.String()).
		Bool("amount_found", outcome.AmountFound).
		Str("kind", string(state.Kind)).
		Msg("Receipt validated")

	if outcome.StoreErr != nil {
		log.Error().Err(outcome.StoreErr).Msg("Record reconciliation failed; verdict unchanged")
	}

	return outcome
}
