package services

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strings"

	"github.com/financescope/financescope/internal/core/domain"
	"github.com/financescope/financescope/internal/core/ports/driven"
	"github.com/financescope/financescope/internal/logger"
)

// DefaultTopK is the default number of evidence chunks to retrieve.
const DefaultTopK = 6

// MaxTopK caps caller-supplied k to bound downstream prompt size.
const MaxTopK = 10

// Retriever embeds queries and performs similarity search over the
// vector index, returning ranked evidence chunks.
type Retriever struct {
	embedder driven.EmbeddingService
	index    driven.VectorIndex
	docStore driven.DocumentStore
}

// NewRetriever creates a retriever over the given index handle.
// The index is an explicit injected dependency so tests can run against
// isolated instances.
func NewRetriever(
	embedder driven.EmbeddingService,
	index driven.VectorIndex,
	docStore driven.DocumentStore,
) *Retriever {
	return &Retriever{
		embedder: embedder,
		index:    index,
		docStore: docStore,
	}
}

// Retrieve embeds the query and returns the top-k most similar chunks,
// restricted to the given document IDs (empty means all documents).
//
// Results are deterministic for a fixed index state: ranked by score
// descending, ties broken by earlier page then lexically smaller chunk
// ID. k defaults to DefaultTopK when non-positive and is capped at
// MaxTopK.
func (r *Retriever) Retrieve(
	ctx context.Context, query string, documentIDs []string, k int,
) ([]domain.ScoredChunk, error) {
	if r.embedder == nil {
		return nil, domain.ErrEmbeddingUnavailable
	}
	if r.index == nil {
		return nil, domain.ErrVectorIndexUnavailable
	}

	query = strings.TrimSpace(query)
	if query == "" {
		return nil, fmt.Errorf("%w: empty query", domain.ErrInvalidInput)
	}

	if k <= 0 {
		k = DefaultTopK
	}
	if k > MaxTopK {
		k = MaxTopK
	}

	// The index must have been built with the same embedding model.
	// A mismatch is a configuration error, fatal at this boundary.
	if indexed := r.index.ModelName(); indexed != "" && indexed != r.embedder.ModelName() {
		return nil, fmt.Errorf("%w: index built with %q, querying with %q",
			domain.ErrModelMismatch, indexed, r.embedder.ModelName())
	}

	logger.Debug("Retrieve: query=%q, k=%d, filter=%v", query, k, documentIDs)

	vector, err := r.embedder.Embed(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("embed query: %w", err)
	}

	hits, err := r.index.Query(ctx, vector, k, driven.QueryFilter{DocumentIDs: documentIDs})
	if err != nil {
		return nil, fmt.Errorf("vector query: %w", err)
	}

	logger.Debug("Retrieve: %d hits", len(hits))

	results := make([]domain.ScoredChunk, 0, len(hits))
	for _, hit := range hits {
		chunk, err := r.docStore.GetChunk(ctx, hit.ChunkID)
		if err != nil {
			if errors.Is(err, domain.ErrNotFound) {
				// Index record outlived its chunk, skip it.
				continue
			}
			return nil, fmt.Errorf("get chunk %s: %w", hit.ChunkID, err)
		}
		results = append(results, domain.ScoredChunk{Chunk: *chunk, Score: hit.Score})
	}

	sortScored(results)
	return results, nil
}

// sortScored orders results by score descending with the deterministic
// tie-break required for reproducible citations: earlier page first,
// then earlier chunk ID in creation order.
func sortScored(results []domain.ScoredChunk) {
	sort.SliceStable(results, func(i, j int) bool {
		if results[i].Score != results[j].Score {
			return results[i].Score > results[j].Score
		}
		if results[i].Chunk.Page != results[j].Chunk.Page {
			return results[i].Chunk.Page < results[j].Chunk.Page
		}
		return domain.ChunkIDLess(results[i].Chunk.ID, results[j].Chunk.ID)
	})
}
