package cli

import (
	"context"
	"io"

	"github.com/financescope/financescope/internal/core/domain"
	"github.com/financescope/financescope/internal/core/ports/driving"
)

// fakeIngestService is a test double for driving.IngestService.
type fakeIngestService struct {
	docs      []domain.Document
	deleted   []string
	ingestErr error
}

func (f *fakeIngestService) Ingest(_ context.Context, title string, data []byte) (*domain.IngestReport, error) {
	if f.ingestErr != nil {
		return nil, f.ingestErr
	}
	return &domain.IngestReport{
		DocumentID:    "abc123",
		Title:         title,
		PageCount:     3,
		ChunksCreated: 5,
		ChunksIndexed: 5,
	}, nil
}

func (f *fakeIngestService) IngestBatch(ctx context.Context, docs []driving.BatchItem) ([]driving.BatchResult, error) {
	results := make([]driving.BatchResult, 0, len(docs))
	for _, item := range docs {
		report, err := f.Ingest(ctx, item.Title, item.Data)
		results = append(results, driving.BatchResult{Title: item.Title, Report: report, Err: err})
	}
	return results, nil
}

func (f *fakeIngestService) Delete(_ context.Context, documentID string) error {
	f.deleted = append(f.deleted, documentID)
	return nil
}

func (f *fakeIngestService) List(_ context.Context) ([]domain.Document, error) {
	return f.docs, nil
}

// fakeQueryService is a test double for driving.QueryService.
type fakeQueryService struct {
	answer *domain.AnsweredQuery
	err    error

	lastCtx     context.Context
	lastQuery   string
	lastDocs    []string
	lastHistory []domain.Turn
}

func (f *fakeQueryService) Ask(ctx context.Context, query string, documentIDs []string, history []domain.Turn) (*domain.AnsweredQuery, error) {
	f.lastCtx = ctx
	f.lastQuery = query
	f.lastDocs = documentIDs
	f.lastHistory = history
	if f.err != nil {
		return nil, f.err
	}
	return f.answer, nil
}

// fakeExtractService is a test double for driving.ExtractService.
type fakeExtractService struct {
	metrics   []domain.ExtractedMetric
	lastCtx   context.Context
	lastSpecs []domain.MetricSpec
}

func (f *fakeExtractService) Extract(ctx context.Context, _ []string, specs []domain.MetricSpec) ([]domain.ExtractedMetric, error) {
	f.lastCtx = ctx
	f.lastSpecs = specs
	return f.metrics, nil
}

func (f *fakeExtractService) Export(metrics []domain.ExtractedMetric, _ driving.ExportFormat, w io.Writer) error {
	for _, m := range metrics {
		if _, err := io.WriteString(w, m.Name+"\n"); err != nil {
			return err
		}
	}
	return nil
}

// setupTestServices injects fakes into the package-level service vars
// so commands run without real providers or storage.
func setupTestServices() (ing *fakeIngestService, q *fakeQueryService, ex *fakeExtractService, cleanup func()) {
	ing = &fakeIngestService{}
	q = &fakeQueryService{answer: &domain.AnsweredQuery{Answer: "Revenue was $3.4 million."}}
	ex = &fakeExtractService{}

	ingestService = ing
	queryService = q
	extractService = ex

	cleanup = func() {
		ingestService = nil
		queryService = nil
		extractService = nil
	}
	return ing, q, ex, cleanup
}
