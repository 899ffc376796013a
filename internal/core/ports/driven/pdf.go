package driven

import (
	"context"

	"github.com/financescope/financescope/internal/core/domain"
)

// PDFExtractor turns raw PDF bytes into per-page text and tables.
// Byte-level parsing lives behind this port; the core never inspects
// PDF structure itself.
//
// Extraction failure is a per-document error: other documents in an
// ingestion batch are unaffected.
type PDFExtractor interface {
	// Extract parses the document and returns its pages in order.
	// A page with no extractable text is returned with empty Text
	// rather than omitted, so page numbering stays intact.
	Extract(ctx context.Context, data []byte) ([]domain.Page, error)
}
