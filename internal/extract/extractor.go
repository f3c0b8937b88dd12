// Package extract turns receipt bytes into text: PDFs are read directly,
// images go through an OCR backend.
package extract

import (
	"context"
	"fmt"
	"strings"

	"github.com/familiaschurch/receipt-validator/internal/errs"
	"github.com/rs/zerolog"
)

// Kind is the declared file kind of a receipt.
type Kind string

const (
	KindImage Kind = "image"
	KindPDF   Kind = "pdf"
)

// KindFromLocation classifies a fetch location by the suffix of its path.
// The query string is ignored and the comparison is case-insensitive, so
// "https://host/o/recibo.PDF?alt=media" is a PDF. Anything else is an image.
func KindFromLocation(location string) Kind {
	path := location
	if i := strings.IndexByte(path, '?'); i >= 0 {
		path = path[:i]
	}
	if strings.HasSuffix(strings.ToLower(path), ".pdf") {
		return KindPDF
	}
	return KindImage
}

// OCRBackend transcribes an image.
type OCRBackend interface {
	// DetectText returns the engine's full-page transcription, or "" when
	// the engine found no text.
	DetectText(ctx context.Context, image []byte) (string, error)
}

// PDFReader returns the embedded text of a PDF document.
type PDFReader interface {
	Text(data []byte) (string, error)
}

// Extractor produces the best-effort transcription of a receipt.
type Extractor struct {
	ocr OCRBackend
	pdf PDFReader
	log zerolog.Logger
}

// NewExtractor creates an Extractor. ocr may be nil when only PDFs are expected.
func NewExtractor(ocr OCRBackend, pdf PDFReader, log zerolog.Logger) *Extractor {
	return &Extractor{ocr: ocr, pdf: pdf, log: log}
}

// Extract returns the text of data according to its kind. Failures are tagged
// as extraction errors.
func (e *Extractor) Extract(ctx context.Context, data []byte, kind Kind) (string, error) {
	switch kind {
	case KindPDF:
		text, err := e.pdf.Text(data)
		if err != nil {
			return "", errs.Extraction("Extract", fmt.Errorf("read pdf: %w", err))
		}
		e.log.Debug().Int("chars", len(text)).Msg("PDF text extracted")
		return text, nil
	default:
		if e.ocr == nil {
			return "", errs.Extraction("Extract", fmt.Errorf("no OCR backend configured"))
		}
		text, err := e.ocr.DetectText(ctx, data)
		if err != nil {
			return "", errs.Extraction("Extract", fmt.Errorf("ocr: %w", err))
		}
		e.log.Debug().Int("chars", len(text)).Msg("OCR text detected")
		return text, nil
	}
}
