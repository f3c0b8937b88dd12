package validation

import (
	"context"
	"time"

	"github.com/familiaschurch/receipt-validator/internal/errs"
	"github.com/familiaschurch/receipt-validator/internal/extract"
	"github.com/familiaschurch/receipt-validator/internal/fetch"
	"github.com/familiaschurch/receipt-validator/internal/metrics"
	"github.com/familiaschurch/receipt-validator/internal/receipt"
	"github.com/familiaschurch/receipt-validator/internal/records"
	"github.com/shopspring/decimal"
)

// Step is a single stage of the validation pipeline.
type Step interface {
	Name() string
	Execute(ctx context.Context, state *State) error
}

// State holds the data passed between steps of one validation.
type State struct {
	Request Request
	Kind    extract.Kind
	Data    []byte
	Text    string

	Approved    bool
	Amount      decimal.Decimal
	AmountFound bool

	StoreErr error
}

// TextExtractor turns receipt bytes into text.
type TextExtractor interface {
	Extract(ctx context.Context, data []byte, kind extract.Kind) (string, error)
}

// RecordReconciler applies a verdict to a stored record.
type RecordReconciler interface {
	Reconcile(ctx context.Context, recordID string, v records.Verdict, text string) error
}

// FetchStep downloads the receipt.
type FetchStep struct {
	Fetcher fetch.Fetcher
}

func (s *FetchStep) Name() string { return metrics.StageFetch }

func (s *FetchStep) Execute(ctx context.Context, state *State) error {
	data, err := s.Fetcher.Fetch(ctx, state.Request.DownloadURL)
	if err != nil {
		return err
	}
	state.Data = data
	state.Kind = extract.KindFromLocation(state.Request.DownloadURL)
	return nil
}

// ExtractStep transcribes the receipt. A positive Timeout bounds the call
// even when the extractor ignores its context.
type ExtractStep struct {
	Extractor TextExtractor
	Timeout   time.Duration
}

func (s *ExtractStep) Name() string { return metrics.StageExtract }

type extractResult struct {
	text string
	err  error
}

func (s *ExtractStep) Execute(ctx context.Context, state *State) error {
	if s.Timeout <= 0 {
		text, err := s.Extractor.Extract(ctx, state.Data, state.Kind)
		return s.finish(state, text, err)
	}

	ctx, cancel := context.WithTimeout(ctx, s.Timeout)
	defer cancel()

	done := make(chan extractResult, 1)
	data, kind := state.Data, state.Kind
	go func() {
		text, err := s.Extractor.Extract(ctx, data, kind)
		done <- extractResult{text: text, err: err}
	}()

	select {
	case r := <-done:
		return s.finish(state, r.text, r.err)
	case <-ctx.Done():
		return errs.Extraction("ExtractStep", ctx.Err())
	}
}

func (s *ExtractStep) finish(state *State, text string, err error) error {
	if err != nil {
		return err
	}
	state.Text = text
	// the bytes are no longer needed
	state.Data = nil
	return nil
}

// AnalyzeStep reads the amount and checks the beneficiary on the same text.
type AnalyzeStep struct {
	Matcher *receipt.BeneficiaryMatcher
}

func (s *AnalyzeStep) Name() string { return metrics.StageAnalyze }

func (s *AnalyzeStep) Execute(ctx context.Context, state *State) error {
	state.Amount, state.AmountFound = receipt.ParseAmount(state.Text)
	state.Approved = s.Matcher.Matches(state.Text)
	return nil
}

// ReconcileStep writes the verdict to the record store. It never fails the
// pipeline: a store error is kept on the state.
type ReconcileStep struct {
	Reconciler RecordReconciler
	Timeout    time.Duration
}

func (s *ReconcileStep) Name() string { return metrics.StageReconcile }

func (s *ReconcileStep) Execute(ctx context.Context, state *State) error {
	if state.Request.RecordID == "" || s.Reconciler == nil {
		return nil
	}
	if s.Timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, s.Timeout)
		defer cancel()
	}
	verdict := records.Verdict{Approved: state.Approved, Amount: state.Amount}
	state.StoreErr = s.Reconciler.Reconcile(ctx, state.Request.RecordID, verdict, state.Text)
	return nil
}

// Pipeline executes steps in order, stopping at the first error.
type Pipeline struct {
	steps   []Step
	metrics *metrics.Metrics
}

// NewPipeline creates a pipeline with the given steps.
func NewPipeline(m *metrics.Metrics, steps ...Step) *Pipeline {
	return &Pipeline{steps: steps, metrics: m}
}

// Execute runs all steps sequentially.
func (p *Pipeline) Execute(ctx context.Context, state *State) error {
	for _, step := range p.steps {
		start := time.Now()
		err := step.Execute(ctx, state)
		p.metrics.ObserveStage(step.Name(), time.Since(start))
		if err != nil {
			return err
		}
	}
	return nil
}
