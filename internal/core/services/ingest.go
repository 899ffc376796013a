package services

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"runtime"
	"sync"
	"time"

	"github.com/financescope/financescope/internal/chunker"
	"github.com/financescope/financescope/internal/core/domain"
	"github.com/financescope/financescope/internal/core/ports/driven"
	"github.com/financescope/financescope/internal/core/ports/driving"
	"github.com/financescope/financescope/internal/logger"
)

// Ensure Ingestor implements the interface.
var _ driving.IngestService = (*Ingestor)(nil)

// Default ingestion tuning.
const (
	DefaultEmbedBatchSize = 32
	DefaultMaxAttempts    = 3
	DefaultBackoffBase    = 500 * time.Millisecond
)

// IngestorOption configures the ingestor.
type IngestorOption func(*Ingestor)

// WithEmbedBatchSize sets how many chunks are embedded per provider call.
func WithEmbedBatchSize(n int) IngestorOption {
	return func(ing *Ingestor) {
		if n > 0 {
			ing.batchSize = n
		}
	}
}

// WithMaxAttempts sets the retry limit for embedding provider calls.
func WithMaxAttempts(n int) IngestorOption {
	return func(ing *Ingestor) {
		if n > 0 {
			ing.maxAttempts = n
		}
	}
}

// WithBackoffBase sets the initial retry backoff; it doubles per attempt.
func WithBackoffBase(d time.Duration) IngestorOption {
	return func(ing *Ingestor) {
		if d > 0 {
			ing.backoffBase = d
		}
	}
}

// WithWorkers bounds parallel document processing in IngestBatch.
func WithWorkers(n int) IngestorOption {
	return func(ing *Ingestor) {
		if n > 0 {
			ing.workers = n
		}
	}
}

// Ingestor parses, segments and indexes documents.
//
// Chunking within a document is sequential so overlap computation sees
// chunks in order; separate documents in a batch are independent and
// processed by a bounded worker pool.
type Ingestor struct {
	pdf      driven.PDFExtractor
	chunks   *chunker.Chunker
	docStore driven.DocumentStore
	embedder driven.EmbeddingService
	index    driven.VectorIndex

	batchSize   int
	maxAttempts int
	backoffBase time.Duration
	workers     int
}

// NewIngestor creates an ingestor with the given collaborators.
func NewIngestor(
	pdf driven.PDFExtractor,
	ch *chunker.Chunker,
	docStore driven.DocumentStore,
	embedder driven.EmbeddingService,
	index driven.VectorIndex,
	opts ...IngestorOption,
) *Ingestor {
	ing := &Ingestor{
		pdf:         pdf,
		chunks:      ch,
		docStore:    docStore,
		embedder:    embedder,
		index:       index,
		batchSize:   DefaultEmbedBatchSize,
		maxAttempts: DefaultMaxAttempts,
		backoffBase: DefaultBackoffBase,
		workers:     runtime.NumCPU(),
	}
	for _, opt := range opts {
		opt(ing)
	}
	return ing
}

// Ingest parses, chunks and indexes one document. Zero-text pages and
// chunks that fail embedding after retries are reported as warnings,
// not errors: the rest of the document remains searchable.
func (ing *Ingestor) Ingest(ctx context.Context, title string, data []byte) (*domain.IngestReport, error) {
	logger.Section("Ingest")
	logger.Info("Ingesting %q (%d bytes)", title, len(data))

	if len(data) == 0 {
		return nil, fmt.Errorf("%w: empty document", domain.ErrInvalidInput)
	}
	if ing.pdf == nil {
		return nil, fmt.Errorf("pdf extractor not configured")
	}
	if ing.embedder == nil {
		return nil, domain.ErrEmbeddingUnavailable
	}
	if ing.index == nil {
		return nil, domain.ErrVectorIndexUnavailable
	}

	sum := sha256.Sum256(data)
	digest := hex.EncodeToString(sum[:])

	pages, err := ing.pdf.Extract(ctx, data)
	if err != nil {
		return nil, fmt.Errorf("%w: %s: %v", domain.ErrUnreadableDocument, title, err)
	}

	doc := &domain.Document{
		ID:        digest[:12],
		Title:     title,
		SHA256:    digest,
		Pages:     pages,
		PageCount: len(pages),
		CreatedAt: time.Now(),
	}

	chunks, warnings := ing.chunks.Chunk(doc)
	logger.Debug("Segmented into %d chunks, %d warnings", len(chunks), len(warnings))

	// Re-ingesting identical content yields the same document ID and
	// chunk IDs, so the saves below replace the prior version atomically
	// via upsert semantics.
	if err := ing.docStore.SaveDocument(ctx, doc); err != nil {
		return nil, fmt.Errorf("save document: %w", err)
	}
	if err := ing.docStore.SaveChunks(ctx, chunks); err != nil {
		return nil, fmt.Errorf("save chunks: %w", err)
	}

	unindexed, err := ing.indexChunks(ctx, doc, chunks)
	if err != nil {
		return nil, err
	}
	for _, id := range unindexed {
		warnings = append(warnings, fmt.Sprintf("chunk %s: not indexed after %d attempts", id, ing.maxAttempts))
	}

	report := &domain.IngestReport{
		DocumentID:    doc.ID,
		Title:         doc.Title,
		PageCount:     doc.PageCount,
		ChunksCreated: len(chunks),
		ChunksIndexed: len(chunks) - len(unindexed),
		Unindexed:     unindexed,
		Warnings:      warnings,
	}
	logger.Info("Ingested %s: %d/%d chunks indexed", doc.ID, report.ChunksIndexed, report.ChunksCreated)
	return report, nil
}

// indexChunks embeds chunks in batches and upserts them into the index.
// Failed batches are retried with exponential backoff; chunks still
// failing are returned as unindexed rather than failing the document.
func (ing *Ingestor) indexChunks(ctx context.Context, doc *domain.Document, chunks []domain.Chunk) ([]string, error) {
	if len(chunks) == 0 {
		return nil, nil
	}

	// Record or verify the embedding model on the index.
	if indexed := ing.index.ModelName(); indexed == "" {
		if err := ing.index.SetModelName(ctx, ing.embedder.ModelName()); err != nil {
			return nil, fmt.Errorf("record embedding model: %w", err)
		}
	} else if indexed != ing.embedder.ModelName() {
		return nil, fmt.Errorf("%w: index built with %q, embedding with %q",
			domain.ErrModelMismatch, indexed, ing.embedder.ModelName())
	}

	var unindexed []string

	for start := 0; start < len(chunks); start += ing.batchSize {
		if err := ctx.Err(); err != nil {
			// Upserts already written are per-chunk atomic, safe to
			// abandon mid-batch.
			return nil, err
		}

		end := start + ing.batchSize
		if end > len(chunks) {
			end = len(chunks)
		}
		batch := chunks[start:end]

		texts := make([]string, len(batch))
		for i, chunk := range batch {
			texts[i] = chunk.Content
		}

		vectors, err := ing.embedBatchRetry(ctx, texts)
		if err != nil {
			logger.Warn("Batch %d-%d failed after retries: %v", start, end, err)
			for _, chunk := range batch {
				unindexed = append(unindexed, chunk.ID)
			}
			continue
		}

		for i, chunk := range batch {
			meta := driven.RecordMetadata{
				DocumentID: doc.ID,
				Page:       chunk.Page,
				Title:      doc.Title,
			}
			if err := ing.index.Upsert(ctx, chunk.ID, vectors[i], meta); err != nil {
				logger.Warn("Upsert %s failed: %v", chunk.ID, err)
				unindexed = append(unindexed, chunk.ID)
			}
		}
	}

	return unindexed, nil
}

// embedBatchRetry calls the embedding provider with exponential backoff.
func (ing *Ingestor) embedBatchRetry(ctx context.Context, texts []string) ([][]float32, error) {
	var lastErr error
	backoff := ing.backoffBase

	for attempt := 1; attempt <= ing.maxAttempts; attempt++ {
		vectors, err := ing.embedder.EmbedBatch(ctx, texts)
		if err == nil {
			if len(vectors) != len(texts) {
				return nil, fmt.Errorf("embedding provider returned %d vectors for %d texts", len(vectors), len(texts))
			}
			return vectors, nil
		}
		lastErr = err
		logger.Debug("Embed attempt %d/%d failed: %v", attempt, ing.maxAttempts, err)

		if attempt == ing.maxAttempts {
			break
		}
		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case <-time.After(backoff):
		}
		backoff *= 2
	}

	return nil, lastErr
}

// IngestBatch ingests documents in parallel, bounded by the configured
// worker count. One unreadable document does not affect the others.
func (ing *Ingestor) IngestBatch(ctx context.Context, docs []driving.BatchItem) ([]driving.BatchResult, error) {
	results := make([]driving.BatchResult, len(docs))
	sem := make(chan struct{}, ing.workers)

	var wg sync.WaitGroup
	for i, item := range docs {
		wg.Add(1)
		go func(i int, item driving.BatchItem) {
			defer wg.Done()
			sem <- struct{}{}
			defer func() { <-sem }()

			report, err := ing.Ingest(ctx, item.Title, item.Data)
			results[i] = driving.BatchResult{Title: item.Title, Report: report, Err: err}
		}(i, item)
	}
	wg.Wait()

	return results, ctx.Err()
}

// Delete removes a document, its stored chunks and all of its index
// records.
func (ing *Ingestor) Delete(ctx context.Context, documentID string) error {
	chunkIDs, err := ing.docStore.DeleteDocument(ctx, documentID)
	if err != nil {
		return fmt.Errorf("delete document: %w", err)
	}
	if ing.index != nil && len(chunkIDs) > 0 {
		if err := ing.index.Delete(ctx, chunkIDs); err != nil {
			return fmt.Errorf("delete index records: %w", err)
		}
	}
	logger.Info("Deleted document %s (%d chunks)", documentID, len(chunkIDs))
	return nil
}

// List returns all ingested documents.
func (ing *Ingestor) List(ctx context.Context) ([]domain.Document, error) {
	return ing.docStore.ListDocuments(ctx)
}
