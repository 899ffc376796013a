package services

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/financescope/financescope/internal/adapters/driven/storage/memory"
	"github.com/financescope/financescope/internal/chunker"
	"github.com/financescope/financescope/internal/core/domain"
	"github.com/financescope/financescope/internal/core/ports/driving"
)

type ingestFixture struct {
	pdf      *mockPDF
	embedder *mockEmbedder
	docStore *memory.DocumentStore
	index    *memory.VectorIndex
	ingestor *Ingestor
}

func newIngestFixture(t *testing.T, pages []domain.Page, opts ...IngestorOption) *ingestFixture {
	t.Helper()
	f := &ingestFixture{
		pdf:      &mockPDF{pages: pages},
		embedder: newMockEmbedder(),
		docStore: memory.NewDocumentStore(),
		index:    memory.NewVectorIndex(),
	}
	opts = append([]IngestorOption{WithBackoffBase(time.Millisecond)}, opts...)
	f.ingestor = NewIngestor(f.pdf, chunker.New(), f.docStore, f.embedder, f.index, opts...)
	return f
}

func docIDFor(data []byte) string {
	sum := sha256.Sum256(data)
	return hex.EncodeToString(sum[:])[:12]
}

func TestIngest_EmptyMiddlePageWarnsAndContinues(t *testing.T) {
	f := newIngestFixture(t, []domain.Page{
		{Number: 1, Text: "Revenue for the quarter was strong."},
		{Number: 2, Text: "   \n  "},
		{Number: 3, Text: "Outlook remains cautious."},
	})
	data := []byte("report-bytes")

	report, err := f.ingestor.Ingest(context.Background(), "Q3 Report", data)

	require.NoError(t, err)
	assert.Equal(t, docIDFor(data), report.DocumentID)
	assert.Equal(t, 3, report.PageCount)
	assert.Equal(t, 2, report.ChunksCreated)
	assert.Equal(t, 2, report.ChunksIndexed)
	require.Len(t, report.Warnings, 1)
	assert.Contains(t, report.Warnings[0], "page 2")
	assert.True(t, report.Degraded())

	// Chunk IDs skip the empty page but keep real page numbers.
	chunks, err := f.docStore.GetChunks(context.Background(), report.DocumentID)
	require.NoError(t, err)
	require.Len(t, chunks, 2)
	assert.Equal(t, report.DocumentID+":p1:c0", chunks[0].ID)
	assert.Equal(t, report.DocumentID+":p3:c0", chunks[1].ID)
}

func TestIngest_DeterministicAcrossRuns(t *testing.T) {
	pages := []domain.Page{{Number: 1, Text: "Identical content every run."}}
	f := newIngestFixture(t, pages)
	data := []byte("same bytes")

	first, err := f.ingestor.Ingest(context.Background(), "Report", data)
	require.NoError(t, err)
	second, err := f.ingestor.Ingest(context.Background(), "Report", data)
	require.NoError(t, err)

	assert.Equal(t, first.DocumentID, second.DocumentID)
	assert.Equal(t, first.ChunksCreated, second.ChunksCreated)

	// Re-ingestion replaces the prior version instead of duplicating it.
	docs, err := f.docStore.ListDocuments(context.Background())
	require.NoError(t, err)
	assert.Len(t, docs, 1)
	assert.Equal(t, first.ChunksIndexed, f.index.Len())
}

func TestIngest_RetriesTransientEmbedFailure(t *testing.T) {
	f := newIngestFixture(t, []domain.Page{{Number: 1, Text: "some text"}},
		WithMaxAttempts(3))
	f.embedder.failures = 2

	report, err := f.ingestor.Ingest(context.Background(), "Report", []byte("data"))

	require.NoError(t, err)
	assert.Equal(t, 1, report.ChunksIndexed)
	assert.Empty(t, report.Unindexed)
	assert.Equal(t, 3, f.embedder.batchCalls)
}

func TestIngest_PermanentEmbedFailureDegradesNotFails(t *testing.T) {
	f := newIngestFixture(t, []domain.Page{{Number: 1, Text: "some text"}},
		WithMaxAttempts(2))
	f.embedder.failures = 10

	report, err := f.ingestor.Ingest(context.Background(), "Report", []byte("data"))

	require.NoError(t, err)
	assert.Equal(t, 1, report.ChunksCreated)
	assert.Zero(t, report.ChunksIndexed)
	require.Len(t, report.Unindexed, 1)
	assert.True(t, report.Degraded())
	assert.Zero(t, f.index.Len())

	// The chunk itself is stored even though it is not searchable.
	chunks, err := f.docStore.GetChunks(context.Background(), report.DocumentID)
	require.NoError(t, err)
	assert.Len(t, chunks, 1)
}

func TestIngest_RecordsEmbeddingModelOnFirstWrite(t *testing.T) {
	f := newIngestFixture(t, []domain.Page{{Number: 1, Text: "text"}})

	_, err := f.ingestor.Ingest(context.Background(), "Report", []byte("data"))

	require.NoError(t, err)
	assert.Equal(t, "mock-embed", f.index.ModelName())
}

func TestIngest_ModelMismatchFails(t *testing.T) {
	f := newIngestFixture(t, []domain.Page{{Number: 1, Text: "text"}})
	require.NoError(t, f.index.SetModelName(context.Background(), "other-model"))

	_, err := f.ingestor.Ingest(context.Background(), "Report", []byte("data"))

	assert.ErrorIs(t, err, domain.ErrModelMismatch)
}

func TestIngest_BatchesEmbeddingCalls(t *testing.T) {
	// Long enough text to split into several chunks, batch size 1 so
	// each chunk costs one provider call.
	pages := []domain.Page{
		{Number: 1, Text: "alpha "},
		{Number: 2, Text: "beta "},
		{Number: 3, Text: "gamma "},
	}
	f := newIngestFixture(t, pages, WithEmbedBatchSize(1))

	report, err := f.ingestor.Ingest(context.Background(), "Report", []byte("data"))

	require.NoError(t, err)
	assert.Equal(t, 3, report.ChunksIndexed)
	assert.Equal(t, 3, f.embedder.batchCalls)
}

func TestIngest_EmptyData(t *testing.T) {
	f := newIngestFixture(t, nil)
	_, err := f.ingestor.Ingest(context.Background(), "Report", nil)
	assert.ErrorIs(t, err, domain.ErrInvalidInput)
}

func TestIngest_UnreadableDocument(t *testing.T) {
	f := newIngestFixture(t, nil)
	f.pdf.err = errors.New("malformed xref table")

	_, err := f.ingestor.Ingest(context.Background(), "Report", []byte("not a pdf"))

	assert.ErrorIs(t, err, domain.ErrUnreadableDocument)
}

func TestIngestBatch_IsolatesFailures(t *testing.T) {
	f := newIngestFixture(t, []domain.Page{{Number: 1, Text: "text"}}, WithWorkers(1))

	results, err := f.ingestor.IngestBatch(context.Background(), []driving.BatchItem{
		{Title: "good-a", Data: []byte("a")},
		{Title: "bad", Data: nil},
		{Title: "good-b", Data: []byte("b")},
	})

	require.NoError(t, err)
	require.Len(t, results, 3)
	assert.Equal(t, "good-a", results[0].Title)
	require.NoError(t, results[0].Err)
	assert.NotNil(t, results[0].Report)

	assert.ErrorIs(t, results[1].Err, domain.ErrInvalidInput)
	assert.Nil(t, results[1].Report)

	require.NoError(t, results[2].Err)
}

func TestDelete_RemovesDocumentAndIndexRecords(t *testing.T) {
	f := newIngestFixture(t, []domain.Page{{Number: 1, Text: "text"}})
	report, err := f.ingestor.Ingest(context.Background(), "Report", []byte("data"))
	require.NoError(t, err)
	require.Equal(t, 1, f.index.Len())

	require.NoError(t, f.ingestor.Delete(context.Background(), report.DocumentID))

	assert.Zero(t, f.index.Len())
	_, err = f.docStore.GetDocument(context.Background(), report.DocumentID)
	assert.ErrorIs(t, err, domain.ErrNotFound)
}

func TestDelete_MissingDocument(t *testing.T) {
	f := newIngestFixture(t, nil)
	err := f.ingestor.Delete(context.Background(), "nope")
	assert.ErrorIs(t, err, domain.ErrNotFound)
}

func TestList_ReturnsIngestedDocuments(t *testing.T) {
	f := newIngestFixture(t, []domain.Page{{Number: 1, Text: "text"}})
	_, err := f.ingestor.Ingest(context.Background(), "Annual Report", []byte("data"))
	require.NoError(t, err)

	docs, err := f.ingestor.List(context.Background())

	require.NoError(t, err)
	require.Len(t, docs, 1)
	assert.Equal(t, "Annual Report", docs[0].Title)
}
