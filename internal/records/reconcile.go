package records

import (
	"context"
	"unicode/utf8"

	"github.com/familiaschurch/receipt-validator/internal/errs"
	"github.com/familiaschurch/receipt-validator/internal/metrics"
	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"
)

// DefaultExcerptLimit is how many characters of extracted text are persisted.
const DefaultExcerptLimit = 1000

// Verdict is the outcome of analysing one receipt.
type Verdict struct {
	Approved bool
	Amount   decimal.Decimal
}

// Reconciler applies a verdict to the record it was requested for:
// approved records are updated, everything else is deleted.
type Reconciler struct {
	store        Store
	excerptLimit int
	metrics      *metrics.Metrics
	log          zerolog.Logger
}

// NewReconciler creates a reconciler. excerptLimit <= 0 means DefaultExcerptLimit.
func NewReconciler(store Store, excerptLimit int, m *metrics.Metrics, log zerolog.Logger) *Reconciler {
	if excerptLimit <= 0 {
		excerptLimit = DefaultExcerptLimit
	}
	return &Reconciler{store: store, excerptLimit: excerptLimit, metrics: m, log: log}
}

// Reconcile writes the verdict for recordID. text is the extracted receipt
// text; only its first characters are stored. Errors are tagged errs.KindStore.
func (r *Reconciler) Reconcile(ctx context.Context, recordID string, v Verdict, text string) error {
	log := r.log.With().Str("record_id", recordID).Bool("approved", v.Approved).Logger()

	if !v.Approved {
		if err := r.store.Delete(ctx, recordID); err != nil {
			r.metrics.IncStoreError("delete")
			log.Error().Err(err).Msg("Failed to delete rejected record")
			return errs.Store("Reconciler.Reconcile", err)
		}
		log.Info().Msg("Rejected record deleted")
		return nil
	}

	err := r.store.Update(ctx, recordID, Update{
		Status:         StatusApproved,
		LastReadAmount: v.Amount,
		OCRExcerpt:     Excerpt(text, r.excerptLimit),
	})
	if err != nil {
		r.metrics.IncStoreError("update")
		log.Error().Err(err).Msg("Failed to approve record")
		return errs.Store("Reconciler.Reconcile", err)
	}

	log.Info().Str("amount", v.Amount.StringFixed(2)).Msg("Record approved")
	return nil
}

// Excerpt returns the first limit characters of text, never splitting a
// multi-byte character.
func Excerpt(text string, limit int) string {
	if limit <= 0 || utf8.RuneCountInString(text) <= limit {
		return text
	}
	n := 0
	for i := range text {
		if n == limit {
			return text[:i]
		}
		n++
	}
	return text
}
