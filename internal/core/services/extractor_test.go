package services

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/financescope/financescope/internal/adapters/driven/storage/memory"
	"github.com/financescope/financescope/internal/core/domain"
)

func newExtractFixture(t *testing.T, llm *mockLLM) (*Extractor, *memory.DocumentStore, *memory.VectorIndex) {
	t.Helper()
	docStore := memory.NewDocumentStore()
	index := memory.NewVectorIndex()
	retriever := NewRetriever(newMockEmbedder(), index, docStore)
	return NewExtractor(retriever, llm), docStore, index
}

func currencySpec(name, period string) domain.MetricSpec {
	return domain.MetricSpec{Name: name, Period: period, Kind: domain.KindCurrency}
}

func TestExtract_ValidMetric(t *testing.T) {
	llm := &mockLLM{responses: []string{
		"VALUE: $3.4 million | REFS: doc1:p2:c1",
	}}
	e, docStore, index := newExtractFixture(t, llm)
	seedChunk(t, docStore, index, textChunk("doc1", 2, 1, "Net revenue was $3.4 million in Q3 2024."), []float32{1, 0, 0})

	metrics, err := e.Extract(context.Background(), []string{"doc1"}, []domain.MetricSpec{
		currencySpec("net revenue", "Q3 2024"),
	})

	require.NoError(t, err)
	require.Len(t, metrics, 1)
	m := metrics[0]
	assert.Equal(t, domain.StatusValid, m.Status)
	assert.Equal(t, "net revenue", m.Name)
	assert.Equal(t, "doc1", m.DocumentID)
	assert.Equal(t, "$3.4 million", m.RawValue)
	assert.InDelta(t, 3.4e6, m.Value.Number, 1e-6)
	assert.Equal(t, "USD", m.Value.Unit)
	require.Len(t, m.Citations, 1)
	assert.Equal(t, 2, m.Citations[0].Page)
}

func TestExtract_TypeMismatchRejected(t *testing.T) {
	llm := &mockLLM{responses: []string{
		"VALUE: twenty-one percent | REFS: doc1:p1:c1",
	}}
	e, docStore, index := newExtractFixture(t, llm)
	seedChunk(t, docStore, index, textChunk("doc1", 1, 1, "Margin was twenty-one percent."), []float32{1, 0, 0})

	metrics, err := e.Extract(context.Background(), []string{"doc1"}, []domain.MetricSpec{
		currencySpec("operating margin", "FY2024"),
	})

	require.NoError(t, err)
	require.Len(t, metrics, 1)
	assert.Equal(t, domain.StatusRejectedType, metrics[0].Status)
	assert.Equal(t, "twenty-one percent", metrics[0].RawValue)
	assert.Contains(t, metrics[0].Note, "not a currency value")
	// The rejection is terminal: no value survives.
	assert.Zero(t, metrics[0].Value.Number)
}

func TestExtract_OutOfRangeRejected(t *testing.T) {
	llm := &mockLLM{responses: []string{
		"VALUE: 140% | REFS: doc1:p1:c1",
	}}
	e, docStore, index := newExtractFixture(t, llm)
	seedChunk(t, docStore, index, textChunk("doc1", 1, 1, "Margin was 140% (typo in source)."), []float32{1, 0, 0})

	min, max := 0.0, 100.0
	metrics, err := e.Extract(context.Background(), []string{"doc1"}, []domain.MetricSpec{
		{Name: "operating margin", Period: "FY2024", Kind: domain.KindPercent, Min: &min, Max: &max},
	})

	require.NoError(t, err)
	require.Len(t, metrics, 1)
	assert.Equal(t, domain.StatusRejectedOutOfRange, metrics[0].Status)
	assert.Contains(t, metrics[0].Note, "above maximum")
}

func TestExtract_NotFoundIsUnverified(t *testing.T) {
	llm := &mockLLM{responses: []string{
		"VALUE: not found | REFS:",
	}}
	e, docStore, index := newExtractFixture(t, llm)
	seedChunk(t, docStore, index, textChunk("doc1", 1, 1, "Nothing about headcount here."), []float32{1, 0, 0})

	metrics, err := e.Extract(context.Background(), []string{"doc1"}, []domain.MetricSpec{
		{Name: "headcount", Kind: domain.KindCount},
	})

	require.NoError(t, err)
	require.Len(t, metrics, 1)
	assert.Equal(t, domain.StatusUnverified, metrics[0].Status)
	assert.Empty(t, metrics[0].RawValue)
}

func TestExtract_NoEvidenceYieldsNoMetric(t *testing.T) {
	llm := &mockLLM{}
	e, _, _ := newExtractFixture(t, llm)

	// Empty index: no evidence, so no proposal and no model call.
	metrics, err := e.Extract(context.Background(), nil, []domain.MetricSpec{
		currencySpec("net revenue", "Q3 2024"),
	})

	require.NoError(t, err)
	assert.Empty(t, metrics)
	assert.Zero(t, llm.calls)
}

func TestExtract_InvalidCitationsMakeUnverified(t *testing.T) {
	llm := &mockLLM{responses: []string{
		"VALUE: $5 million | REFS: doc9:p9:c9",
	}}
	e, docStore, index := newExtractFixture(t, llm)
	seedChunk(t, docStore, index, textChunk("doc1", 1, 1, "Revenue was $5 million."), []float32{1, 0, 0})

	metrics, err := e.Extract(context.Background(), []string{"doc1"}, []domain.MetricSpec{
		currencySpec("revenue", ""),
	})

	require.NoError(t, err)
	require.Len(t, metrics, 1)
	// A value without valid supporting citations is never trusted.
	assert.Equal(t, domain.StatusUnverified, metrics[0].Status)
	assert.Contains(t, metrics[0].Note, "citations")
}

func TestExtract_ConflictingValuesBothUnverified(t *testing.T) {
	// Two documents propose different Q3 revenue figures. Neither wins:
	// both are demoted to unverified with a conflict note.
	llm := &mockLLM{responses: []string{
		"VALUE: $3.4 million | REFS: doc1:p1:c1",
		"VALUE: $3.9 million | REFS: doc2:p1:c1",
	}}
	e, docStore, index := newExtractFixture(t, llm)
	seedChunk(t, docStore, index, textChunk("doc1", 1, 1, "Q3 revenue was $3.4 million."), []float32{1, 0, 0})
	seedChunk(t, docStore, index, textChunk("doc2", 1, 1, "Q3 revenue was $3.9 million."), []float32{1, 0, 0})

	metrics, err := e.Extract(context.Background(), []string{"doc1", "doc2"}, []domain.MetricSpec{
		currencySpec("revenue", "Q3 2024"),
	})

	require.NoError(t, err)
	require.Len(t, metrics, 2)
	for _, m := range metrics {
		assert.Equal(t, domain.StatusUnverified, m.Status)
		assert.Contains(t, m.Note, "conflicting values")
		assert.Contains(t, m.Note, "3400000 USD")
		assert.Contains(t, m.Note, "3900000 USD")
	}
}

func TestExtract_AgreeingValuesStayValid(t *testing.T) {
	llm := &mockLLM{responses: []string{
		"VALUE: $3.4 million | REFS: doc1:p1:c1",
		"VALUE: 3,400,000 USD | REFS: doc2:p1:c1",
	}}
	e, docStore, index := newExtractFixture(t, llm)
	seedChunk(t, docStore, index, textChunk("doc1", 1, 1, "Revenue was $3.4 million."), []float32{1, 0, 0})
	seedChunk(t, docStore, index, textChunk("doc2", 1, 1, "Revenue totalled 3,400,000 USD."), []float32{1, 0, 0})

	metrics, err := e.Extract(context.Background(), []string{"doc1", "doc2"}, []domain.MetricSpec{
		currencySpec("revenue", "Q3 2024"),
	})

	require.NoError(t, err)
	require.Len(t, metrics, 2)
	// Same normalized value is agreement, not conflict.
	for _, m := range metrics {
		assert.Equal(t, domain.StatusValid, m.Status)
	}
}

func TestExtract_NoSpecs(t *testing.T) {
	e, _, _ := newExtractFixture(t, &mockLLM{})
	_, err := e.Extract(context.Background(), nil, nil)
	assert.ErrorIs(t, err, domain.ErrInvalidInput)
}

func TestParseProposal(t *testing.T) {
	tests := []struct {
		name     string
		response string
		wantRaw  string
		wantRefs []string
		wantOK   bool
	}{
		{
			name:     "value with refs",
			response: "VALUE: $3.4 million | REFS: doc1:p2:c1, doc1:p3:c1",
			wantRaw:  "$3.4 million",
			wantRefs: []string{"doc1:p2:c1", "doc1:p3:c1"},
			wantOK:   true,
		},
		{
			name:     "value without refs",
			response: "VALUE: 42 | REFS:",
			wantRaw:  "42",
			wantOK:   true,
		},
		{
			name:     "extra prose around the line",
			response: "Sure, here is the answer:\nVALUE: 21% | REFS: doc1:p1:c1\nHope that helps!",
			wantRaw:  "21%",
			wantRefs: []string{"doc1:p1:c1"},
			wantOK:   true,
		},
		{
			name:     "no value line fails closed",
			response: "The revenue was $3.4 million.",
			wantOK:   false,
		},
		{
			name:     "empty value fails closed",
			response: "VALUE: | REFS: doc1:p1:c1",
			wantOK:   false,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			raw, refs, ok := parseProposal(tt.response)
			assert.Equal(t, tt.wantOK, ok)
			if !tt.wantOK {
				return
			}
			assert.Equal(t, tt.wantRaw, raw)
			assert.Equal(t, tt.wantRefs, refs)
		})
	}
}
