package services

import (
	"context"
	"errors"

	"github.com/financescope/financescope/internal/core/domain"
	"github.com/financescope/financescope/internal/core/ports/driven"
)

// mockEmbedder is a deterministic embedding provider for tests.
// Vectors come from the byText map; unknown texts get defaultVec.
// failures > 0 makes the next N calls fail, exercising retry paths.
type mockEmbedder struct {
	model      string
	dims       int
	byText     map[string][]float32
	defaultVec []float32

	failures   int
	embedCalls int
	batchCalls int
}

func newMockEmbedder() *mockEmbedder {
	return &mockEmbedder{
		model:      "mock-embed",
		dims:       3,
		byText:     make(map[string][]float32),
		defaultVec: []float32{1, 0, 0},
	}
}

var _ driven.EmbeddingService = (*mockEmbedder)(nil)

func (m *mockEmbedder) vectorFor(text string) []float32 {
	if v, ok := m.byText[text]; ok {
		return v
	}
	return m.defaultVec
}

func (m *mockEmbedder) Embed(_ context.Context, text string) ([]float32, error) {
	m.embedCalls++
	if m.failures > 0 {
		m.failures--
		return nil, domain.ErrEmbeddingUnavailable
	}
	return m.vectorFor(text), nil
}

func (m *mockEmbedder) EmbedBatch(_ context.Context, texts []string) ([][]float32, error) {
	m.batchCalls++
	if m.failures > 0 {
		m.failures--
		return nil, domain.ErrEmbeddingUnavailable
	}
	vectors := make([][]float32, len(texts))
	for i, text := range texts {
		vectors[i] = m.vectorFor(text)
	}
	return vectors, nil
}

func (m *mockEmbedder) Dimensions() int   { return m.dims }
func (m *mockEmbedder) ModelName() string { return m.model }
func (m *mockEmbedder) Close() error      { return nil }

var errScriptExhausted = errors.New("mock llm: script exhausted")

// mockLLM replays scripted responses in order and records the prompts
// it was called with.
type mockLLM struct {
	responses []string
	err       error

	calls   int
	prompts []string
}

var _ driven.LLMService = (*mockLLM)(nil)

func (m *mockLLM) Complete(_ context.Context, prompt string, _ driven.Constraints) (string, error) {
	m.calls++
	m.prompts = append(m.prompts, prompt)
	if m.err != nil {
		return "", m.err
	}
	if len(m.responses) == 0 {
		return "", errScriptExhausted
	}
	response := m.responses[0]
	m.responses = m.responses[1:]
	return response, nil
}

func (m *mockLLM) ModelName() string { return "mock-llm" }
func (m *mockLLM) Close() error      { return nil }

// mockPDF returns scripted pages for any input.
type mockPDF struct {
	pages []domain.Page
	err   error
}

var _ driven.PDFExtractor = (*mockPDF)(nil)

func (m *mockPDF) Extract(_ context.Context, _ []byte) ([]domain.Page, error) {
	if m.err != nil {
		return nil, m.err
	}
	return m.pages, nil
}
