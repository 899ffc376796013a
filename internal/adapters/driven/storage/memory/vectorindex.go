package memory

import (
	"context"
	"math"
	"sort"
	"sync"

	"github.com/financescope/financescope/internal/core/domain"
	"github.com/financescope/financescope/internal/core/ports/driven"
)

// Ensure VectorIndex implements the interface.
var _ driven.VectorIndex = (*VectorIndex)(nil)

// record is one stored (vector, metadata) pair.
type record struct {
	vector []float32
	meta   driven.RecordMetadata
}

// VectorIndex is an in-memory cosine-similarity index.
//
// Upserts are atomic map writes under the lock: a re-indexed chunk ID
// is replaced whole (last writer wins), and concurrent writers to
// different chunk IDs do not conflict.
type VectorIndex struct {
	mu      sync.RWMutex
	records map[string]record
	model   string
}

// NewVectorIndex creates an empty in-memory vector index.
func NewVectorIndex() *VectorIndex {
	return &VectorIndex{
		records: make(map[string]record),
	}
}

// Upsert inserts or replaces the record for chunkID.
func (x *VectorIndex) Upsert(_ context.Context, chunkID string, vector []float32, meta driven.RecordMetadata) error {
	x.mu.Lock()
	defer x.mu.Unlock()
	x.records[chunkID] = record{
		vector: append([]float32(nil), vector...),
		meta:   meta,
	}
	return nil
}

// Query returns the k records most similar to the query vector,
// restricted by the filter. Ordering is deterministic: score
// descending, then page ascending, then chunk ID in creation order.
func (x *VectorIndex) Query(_ context.Context, vector []float32, k int, filter driven.QueryFilter) ([]driven.VectorHit, error) {
	allowed := map[string]bool{}
	for _, id := range filter.DocumentIDs {
		allowed[id] = true
	}

	x.mu.RLock()
	hits := make([]driven.VectorHit, 0, len(x.records))
	for id, rec := range x.records {
		if len(allowed) > 0 && !allowed[rec.meta.DocumentID] {
			continue
		}
		hits = append(hits, driven.VectorHit{
			ChunkID:  id,
			Score:    cosine(vector, rec.vector),
			Metadata: rec.meta,
		})
	}
	x.mu.RUnlock()

	sort.Slice(hits, func(i, j int) bool {
		if hits[i].Score != hits[j].Score {
			return hits[i].Score > hits[j].Score
		}
		if hits[i].Metadata.Page != hits[j].Metadata.Page {
			return hits[i].Metadata.Page < hits[j].Metadata.Page
		}
		return domain.ChunkIDLess(hits[i].ChunkID, hits[j].ChunkID)
	})

	if k > 0 && len(hits) > k {
		hits = hits[:k]
	}
	return hits, nil
}

// Delete removes records by chunk ID. Missing IDs are ignored.
func (x *VectorIndex) Delete(_ context.Context, chunkIDs []string) error {
	x.mu.Lock()
	defer x.mu.Unlock()
	for _, id := range chunkIDs {
		delete(x.records, id)
	}
	return nil
}

// ModelName returns the embedding model recorded on first write.
func (x *VectorIndex) ModelName() string {
	x.mu.RLock()
	defer x.mu.RUnlock()
	return x.model
}

// SetModelName records the embedding model the index is built with.
func (x *VectorIndex) SetModelName(_ context.Context, model string) error {
	x.mu.Lock()
	defer x.mu.Unlock()
	x.model = model
	return nil
}

// Len returns the number of stored records.
func (x *VectorIndex) Len() int {
	x.mu.RLock()
	defer x.mu.RUnlock()
	return len(x.records)
}

// Close releases resources.
func (x *VectorIndex) Close() error {
	return nil
}

// cosine computes cosine similarity between two vectors. Mismatched or
// zero-magnitude vectors score zero.
func cosine(a, b []float32) float64 {
	if len(a) != len(b) || len(a) == 0 {
		return 0
	}
	var dot, normA, normB float64
	for i := range a {
		dot += float64(a[i]) * float64(b[i])
		normA += float64(a[i]) * float64(a[i])
		normB += float64(b[i]) * float64(b[i])
	}
	if normA == 0 || normB == 0 {
		return 0
	}
	return dot / (math.Sqrt(normA) * math.Sqrt(normB))
}
