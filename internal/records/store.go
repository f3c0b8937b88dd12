// Package records owns writes to the validated financial records: the store
// backends and the reconciler that applies a validation verdict.
package records

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/shopspring/decimal"
)

// Status is the lifecycle state of a financial record.
type Status string

const (
	// StatusPending is the state records are created in, outside this service.
	StatusPending Status = "Pendente"
	// StatusApproved marks a record whose receipt was validated.
	StatusApproved Status = "Aprovado"
)

// Document field names used by the record store.
const (
	FieldStatus         = "status"
	FieldLastReadAmount = "valorLido"
	FieldOCRExcerpt     = "ocrRaw"
)

// DefaultCollection is the collection (or table) holding the records.
const DefaultCollection = "registros_financeiros_validados"

// ErrNotFound is returned by Update when no record has the given ID.
var ErrNotFound = errors.New("record not found")

// ErrInvalidID is returned for identifiers no backend can address.
var ErrInvalidID = errors.New("invalid record id")

// Record is the persisted financial record.
type Record struct {
	ID             string          `json:"id"`
	Status         Status          `json:"status"`
	LastReadAmount decimal.Decimal `json:"valorLido"`
	OCRExcerpt     string          `json:"ocrRaw,omitempty"`
	UpdatedAt      time.Time       `json:"updatedAt,omitempty"`
}

// Update is the partial-field write applied to an approved record.
type Update struct {
	Status         Status
	LastReadAmount decimal.Decimal
	OCRExcerpt     string
}

// Store is a keyed document store of financial records.
type Store interface {
	// Update writes the given fields of an existing record.
	Update(ctx context.Context, recordID string, u Update) error
	// Delete removes the record. Deleting a missing record is not an error.
	Delete(ctx context.Context, recordID string) error
}

// ValidateID rejects identifiers no backend can address.
func ValidateID(recordID string) error {
	switch {
	case strings.TrimSpace(recordID) == "":
		return fmt.Errorf("%w: empty", ErrInvalidID)
	case strings.Contains(recordID, "/"):
		return fmt.Errorf("%w: %q must not contain '/'", ErrInvalidID, recordID)
	case recordID == "." || recordID == "..":
		return fmt.Errorf("%w: %q is reserved", ErrInvalidID, recordID)
	}
	return nil
}
