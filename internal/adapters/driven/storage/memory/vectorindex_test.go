package memory

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/financescope/financescope/internal/core/ports/driven"
)

func seedVector(t *testing.T, x *VectorIndex, chunkID, docID string, page int, vector []float32) {
	t.Helper()
	require.NoError(t, x.Upsert(context.Background(), chunkID, vector, driven.RecordMetadata{
		DocumentID: docID,
		Page:       page,
	}))
}

func TestVectorIndex_QueryRanksByScore(t *testing.T) {
	x := NewVectorIndex()
	seedVector(t, x, "doc1:p1:c0", "doc1", 1, []float32{1, 0, 0})
	seedVector(t, x, "doc1:p2:c0", "doc1", 2, []float32{0, 1, 0})
	seedVector(t, x, "doc1:p3:c0", "doc1", 3, []float32{0.9, 0.1, 0})

	hits, err := x.Query(context.Background(), []float32{1, 0, 0}, 2, driven.QueryFilter{})

	require.NoError(t, err)
	require.Len(t, hits, 2)
	assert.Equal(t, "doc1:p1:c0", hits[0].ChunkID)
	assert.InDelta(t, 1.0, hits[0].Score, 1e-9)
	assert.Equal(t, "doc1:p3:c0", hits[1].ChunkID)
}

func TestVectorIndex_TieBreakByPageThenID(t *testing.T) {
	x := NewVectorIndex()
	seedVector(t, x, "doc1:p2:c0", "doc1", 2, []float32{1, 0, 0})
	seedVector(t, x, "doc1:p1:c1", "doc1", 1, []float32{1, 0, 0})
	seedVector(t, x, "doc1:p1:c0", "doc1", 1, []float32{1, 0, 0})

	for i := 0; i < 5; i++ {
		hits, err := x.Query(context.Background(), []float32{1, 0, 0}, 0, driven.QueryFilter{})
		require.NoError(t, err)
		require.Len(t, hits, 3)
		assert.Equal(t, "doc1:p1:c0", hits[0].ChunkID)
		assert.Equal(t, "doc1:p1:c1", hits[1].ChunkID)
		assert.Equal(t, "doc1:p2:c0", hits[2].ChunkID)
	}
}

func TestVectorIndex_TieBreakOrdinalsCompareNumerically(t *testing.T) {
	x := NewVectorIndex()
	seedVector(t, x, "doc1:p1:c10", "doc1", 1, []float32{1, 0, 0})
	seedVector(t, x, "doc1:p1:c2", "doc1", 1, []float32{1, 0, 0})

	hits, err := x.Query(context.Background(), []float32{1, 0, 0}, 0, driven.QueryFilter{})

	require.NoError(t, err)
	require.Len(t, hits, 2)
	// Creation order, not lexical: c2 was chunked before c10.
	assert.Equal(t, "doc1:p1:c2", hits[0].ChunkID)
	assert.Equal(t, "doc1:p1:c10", hits[1].ChunkID)
}

func TestVectorIndex_DocumentFilter(t *testing.T) {
	x := NewVectorIndex()
	seedVector(t, x, "doc1:p1:c0", "doc1", 1, []float32{1, 0, 0})
	seedVector(t, x, "doc2:p1:c0", "doc2", 1, []float32{1, 0, 0})

	hits, err := x.Query(context.Background(), []float32{1, 0, 0}, 0, driven.QueryFilter{
		DocumentIDs: []string{"doc2"},
	})

	require.NoError(t, err)
	require.Len(t, hits, 1)
	assert.Equal(t, "doc2:p1:c0", hits[0].ChunkID)
}

func TestVectorIndex_UpsertReplaces(t *testing.T) {
	x := NewVectorIndex()
	seedVector(t, x, "doc1:p1:c0", "doc1", 1, []float32{1, 0, 0})
	seedVector(t, x, "doc1:p1:c0", "doc1", 1, []float32{0, 1, 0})

	assert.Equal(t, 1, x.Len())

	hits, err := x.Query(context.Background(), []float32{0, 1, 0}, 1, driven.QueryFilter{})
	require.NoError(t, err)
	require.Len(t, hits, 1)
	assert.InDelta(t, 1.0, hits[0].Score, 1e-9)
}

func TestVectorIndex_Delete(t *testing.T) {
	x := NewVectorIndex()
	seedVector(t, x, "doc1:p1:c0", "doc1", 1, []float32{1, 0, 0})
	seedVector(t, x, "doc1:p2:c0", "doc1", 2, []float32{0, 1, 0})

	require.NoError(t, x.Delete(context.Background(), []string{"doc1:p1:c0", "missing"}))

	assert.Equal(t, 1, x.Len())
}

func TestVectorIndex_ModelName(t *testing.T) {
	x := NewVectorIndex()
	assert.Empty(t, x.ModelName())

	require.NoError(t, x.SetModelName(context.Background(), "nomic-embed-text"))
	assert.Equal(t, "nomic-embed-text", x.ModelName())
}

func TestCosine(t *testing.T) {
	assert.InDelta(t, 1.0, cosine([]float32{1, 0}, []float32{2, 0}), 1e-9)
	assert.InDelta(t, 0.0, cosine([]float32{1, 0}, []float32{0, 1}), 1e-9)
	assert.InDelta(t, -1.0, cosine([]float32{1, 0}, []float32{-1, 0}), 1e-9)

	// Mismatched or zero vectors score zero instead of erroring.
	assert.Zero(t, cosine([]float32{1, 0}, []float32{1}))
	assert.Zero(t, cosine([]float32{0, 0}, []float32{1, 0}))
	assert.Zero(t, cosine(nil, nil))
}
