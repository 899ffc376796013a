package driving

import (
	"context"

	"github.com/financescope/financescope/internal/core/domain"
)

// IngestService handles document ingestion and lifecycle.
type IngestService interface {
	// Ingest parses, chunks and indexes one document.
	// Partial failures (empty pages, unindexed chunks) are reported
	// in the IngestReport, not returned as errors.
	Ingest(ctx context.Context, title string, data []byte) (*domain.IngestReport, error)

	// IngestBatch ingests several documents, processing them in
	// parallel up to the configured concurrency limit. One unreadable
	// document does not affect the others.
	IngestBatch(ctx context.Context, docs []BatchItem) ([]BatchResult, error)

	// Delete removes a document together with all of its index records.
	Delete(ctx context.Context, documentID string) error

	// List returns all ingested documents.
	List(ctx context.Context) ([]domain.Document, error)
}

// BatchItem is one document in an ingestion batch.
type BatchItem struct {
	Title string
	Data  []byte
}

// BatchResult is the per-document outcome of a batch ingestion.
type BatchResult struct {
	Title  string
	Report *domain.IngestReport
	Err    error
}
