// Package pdf provides a PDFExtractor implementation backed by the
// ledongthuc/pdf library, a pure Go PDF parser.
package pdf

import (
	"bytes"
	"context"
	"fmt"
	"strings"

	"github.com/ledongthuc/pdf"

	"github.com/financescope/financescope/internal/core/domain"
	"github.com/financescope/financescope/internal/core/ports/driven"
	"github.com/financescope/financescope/internal/logger"
)

// Extractor extracts per-page text from PDF documents.
type Extractor struct{}

var _ driven.PDFExtractor = (*Extractor)(nil)

// NewExtractor creates a new PDF extractor.
func NewExtractor() *Extractor {
	return &Extractor{}
}

// Extract parses the document and returns its pages in order. Pages
// that fail to yield text are returned with empty Text so page
// numbering stays aligned with the source document.
func (e *Extractor) Extract(ctx context.Context, data []byte) ([]domain.Page, error) {
	if len(data) == 0 {
		return nil, fmt.Errorf("%w: empty input", domain.ErrInvalidInput)
	}

	reader, err := pdf.NewReader(bytes.NewReader(data), int64(len(data)))
	if err != nil {
		return nil, fmt.Errorf("opening pdf: %w", err)
	}

	numPages := reader.NumPage()
	if numPages == 0 {
		return nil, fmt.Errorf("pdf has no pages")
	}

	pages := make([]domain.Page, 0, numPages)
	for i := 1; i <= numPages; i++ {
		if err := ctx.Err(); err != nil {
			return nil, err
		}

		page := reader.Page(i)
		if page.V.IsNull() {
			pages = append(pages, domain.Page{Number: i})
			continue
		}

		fonts := make(map[string]*pdf.Font)
		text, err := page.GetPlainText(fonts)
		if err != nil {
			logger.Warn("failed to extract text from page %d: %v", i, err)
			pages = append(pages, domain.Page{Number: i})
			continue
		}

		pages = append(pages, domain.Page{
			Number: i,
			Text:   normalizeText(text),
		})
	}

	return pages, nil
}

// normalizeText cleans up extracted text: normalizes line endings,
// collapses runs of blank lines to paragraph breaks, and trims
// trailing whitespace per line.
func normalizeText(text string) string {
	text = strings.ReplaceAll(text, "\r\n", "\n")
	text = strings.ReplaceAll(text, "\r", "\n")

	lines := strings.Split(text, "\n")
	for i, line := range lines {
		lines[i] = strings.TrimRight(line, " \t")
	}
	text = strings.Join(lines, "\n")

	for strings.Contains(text, "\n\n\n") {
		text = strings.ReplaceAll(text, "\n\n\n", "\n\n")
	}

	return strings.TrimSpace(text)
}
