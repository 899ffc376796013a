package domain

// IngestReport summarises one document ingestion.
// Ingestion is partial-failure tolerant: warnings and unindexed chunks
// never fail the document as a whole.
type IngestReport struct {
	// DocumentID is the ID assigned to the ingested document.
	DocumentID string

	// Title is the document title.
	Title string

	// PageCount is the number of pages in the source PDF.
	PageCount int

	// ChunksCreated is the number of chunks produced by segmentation.
	ChunksCreated int

	// ChunksIndexed is the number of chunks successfully embedded and
	// written to the vector index.
	ChunksIndexed int

	// Unindexed lists chunk IDs that failed embedding after retries.
	// These chunks exist but are not searchable.
	Unindexed []string

	// Warnings holds non-fatal ingestion problems, e.g. pages with no
	// extractable text.
	Warnings []string
}

// Degraded reports whether the ingestion produced less than a fully
// searchable document.
func (r IngestReport) Degraded() bool {
	return len(r.Unindexed) > 0 || len(r.Warnings) > 0
}
