package driving

import (
	"context"
	"io"

	"github.com/financescope/financescope/internal/core/domain"
)

// ExportFormat selects the serialization of exported metrics.
type ExportFormat string

// Supported export formats.
const (
	FormatCSV  ExportFormat = "csv"
	FormatJSON ExportFormat = "json"
	FormatXLSX ExportFormat = "xlsx"
)

// ExtractService extracts structured metrics from ingested documents
// and serializes them for the export layer.
type ExtractService interface {
	// Extract proposes and validates one value per requested metric
	// per document. Every returned metric carries a terminal
	// validation status and its supporting citations.
	Extract(ctx context.Context, documentIDs []string, specs []domain.MetricSpec) ([]domain.ExtractedMetric, error)

	// Export writes the metrics as tabular rows
	// {document, metric, value, unit, page citation, status}.
	Export(metrics []domain.ExtractedMetric, format ExportFormat, w io.Writer) error
}
