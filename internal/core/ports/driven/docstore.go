package driven

import (
	"context"

	"github.com/financescope/financescope/internal/core/domain"
)

// DocumentStore persists documents and their chunks so citations can be
// hydrated back to full text after retrieval.
type DocumentStore interface {
	// SaveDocument stores or replaces a document.
	SaveDocument(ctx context.Context, doc *domain.Document) error

	// SaveChunks stores the chunks for a document, replacing any prior
	// set for the same document.
	SaveChunks(ctx context.Context, chunks []domain.Chunk) error

	// GetDocument retrieves a document by ID.
	// Returns domain.ErrNotFound when absent.
	GetDocument(ctx context.Context, id string) (*domain.Document, error)

	// GetChunk retrieves a single chunk by ID.
	// Returns domain.ErrNotFound when absent.
	GetChunk(ctx context.Context, id string) (*domain.Chunk, error)

	// GetChunks retrieves all chunks of a document in chunk order.
	GetChunks(ctx context.Context, documentID string) ([]domain.Chunk, error)

	// ListDocuments returns all stored documents ordered by title.
	ListDocuments(ctx context.Context) ([]domain.Document, error)

	// DeleteDocument removes a document and its chunks, returning the
	// IDs of the removed chunks so index records can be deleted too.
	DeleteDocument(ctx context.Context, id string) ([]string, error)

	// Close releases resources.
	Close() error
}
