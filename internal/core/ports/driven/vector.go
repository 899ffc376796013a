package driven

import "context"

// RecordMetadata mirrors the chunk metadata stored alongside each
// vector, so hits can report provenance without a store round trip.
type RecordMetadata struct {
	// DocumentID is the owning document.
	DocumentID string

	// Page is the 1-indexed source page.
	Page int

	// Title is the owning document's title.
	Title string
}

// VectorHit is one similarity search result.
type VectorHit struct {
	// ChunkID is the matched chunk.
	ChunkID string

	// Score is the cosine similarity (higher is better).
	Score float64

	// Metadata is the stored metadata mirror for the chunk.
	Metadata RecordMetadata
}

// QueryFilter restricts a similarity search.
type QueryFilter struct {
	// DocumentIDs limits the search to the union of these documents.
	// Empty means all documents.
	DocumentIDs []string
}

// VectorIndex stores and searches embedding vectors.
// Index record lifecycle is tied to documents: deleting a document
// removes all of its records.
//
// Writes are per-record atomic upserts: re-indexing a chunk ID replaces
// the earlier vector and metadata (last writer wins), never leaving a
// torn record. Concurrent writers to disjoint chunk IDs do not conflict.
type VectorIndex interface {
	// Upsert inserts or replaces the record for chunkID.
	Upsert(ctx context.Context, chunkID string, vector []float32, meta RecordMetadata) error

	// Query finds the k nearest records to the query vector, restricted
	// by the filter, ranked by score descending.
	Query(ctx context.Context, vector []float32, k int, filter QueryFilter) ([]VectorHit, error)

	// Delete removes records by chunk ID. Missing IDs are not an error.
	Delete(ctx context.Context, chunkIDs []string) error

	// ModelName returns the embedding model the index was built with,
	// empty for a fresh index.
	ModelName() string

	// SetModelName records the embedding model on first write.
	SetModelName(ctx context.Context, model string) error

	// Close releases resources.
	Close() error
}
