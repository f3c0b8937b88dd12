// Package errs defines the failure kinds of the validation pipeline.
package errs

import (
	"errors"
	"fmt"
)

// Kind classifies a pipeline failure.
type Kind string

const (
	// KindFetch covers network failures and non-200 responses while downloading the receipt.
	KindFetch Kind = "fetch"
	// KindExtraction covers malformed files and OCR backend failures.
	KindExtraction Kind = "extraction"
	// KindStore covers record update/delete failures.
	KindStore Kind = "store"
	// KindInvalidRequest covers inbound payloads that cannot be validated.
	KindInvalidRequest Kind = "invalid_request"
	// KindUnknown is reported for errors that carry no kind.
	KindUnknown Kind = "unknown"
)

// Error is a failure tagged with its Kind.
type Error struct {
	Kind Kind
	Op   string
	Err  error
}

func (e *Error) Error() string {
	if e.Op == "" {
		return e.Err.Error()
	}
	return fmt.Sprintf("%s: %v", e.Op, e.Err)
}

func (e *Error) Unwrap() error {
	return e.Err
}

// Fetch tags err as a fetch failure.
func Fetch(op string, err error) error {
	return wrap(KindFetch, op, err)
}

// Extraction tags err as an extraction failure.
func Extraction(op string, err error) error {
	return wrap(KindExtraction, op, err)
}

// Store tags err as a record store failure.
func Store(op string, err error) error {
	return wrap(KindStore, op, err)
}

// InvalidRequest tags err as a malformed inbound request.
func InvalidRequest(op string, err error) error {
	return wrap(KindInvalidRequest, op, err)
}

func wrap(kind Kind, op string, err error) error {
	if err == nil {
		return nil
	}
	return &Error{Kind: kind, Op: op, Err: err}
}

// KindOf returns the kind of the outermost tagged error in err's chain.
func KindOf(err error) Kind {
	var e *Error
	if errors.As(err, &e) {
		return e.Kind
	}
	return KindUnknown
}

// Is reports whether err carries the given kind.
func Is(err error, kind Kind) bool {
	return err != nil && KindOf(err) == kind
}
