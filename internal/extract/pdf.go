package extract

import (
	"bytes"
	"fmt"
	"strings"

	"github.com/ledongthuc/pdf"
)

// LedongthucPDF reads PDF text with github.com/ledongthuc/pdf. No OCR is
// involved, so scanned PDFs without a text layer yield "".
type LedongthucPDF struct{}

// NewPDFReader creates the default PDF reader.
func NewPDFReader() *LedongthucPDF {
	return &LedongthucPDF{}
}

// Text returns the text of every page in page order. Each visual line ends
// with a newline, and so does each page, so values on adjacent lines never
// run together.
func (LedongthucPDF) Text(data []byte) (text string, err error) {
	// The parser panics on some malformed object streams.
	defer func() {
		if r := recover(); r != nil {
			text, err = "", fmt.Errorf("malformed pdf: %v", r)
		}
	}()

	r, err := pdf.NewReader(bytes.NewReader(data), int64(len(data)))
	if err != nil {
		return "", fmt.Errorf("open pdf: %w", err)
	}

	var b strings.Builder
	for i := 1; i <= r.NumPage(); i++ {
		page := r.Page(i)
		if page.V.IsNull() {
			continue
		}
		writeLines(&b, page.Content().Text)
	}

	return b.String(), nil
}

// writeLines writes the glyph runs of one page, starting a new line whenever
// the baseline moves.
func writeLines(b *strings.Builder, runs []pdf.Text) {
	if len(runs) == 0 {
		return
	}
	y := runs[0].Y
	for _, t := range runs {
		if t.Y != y {
			b.WriteByte('\n')
			y = t.Y
		}
		b.WriteString(t.S)
	}
	b.WriteByte('\n')
}
