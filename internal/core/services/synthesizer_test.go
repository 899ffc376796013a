package services

import (
	"context"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/financescope/financescope/internal/adapters/driven/storage/memory"
	"github.com/financescope/financescope/internal/core/domain"
)

// newAskFixture builds a synthesizer over seeded in-memory storage.
func newAskFixture(t *testing.T, llm *mockLLM) (*Synthesizer, *memory.DocumentStore, *memory.VectorIndex, *mockEmbedder) {
	t.Helper()
	docStore := memory.NewDocumentStore()
	index := memory.NewVectorIndex()
	embedder := newMockEmbedder()
	retriever := NewRetriever(embedder, index, docStore)
	return NewSynthesizer(retriever, llm), docStore, index, embedder
}

func TestAsk_EmptyIndexShortCircuits(t *testing.T) {
	llm := &mockLLM{}
	s, _, _, _ := newAskFixture(t, llm)

	// Nothing ingested: the model must not be consulted, and the answer
	// must say the evidence is insufficient rather than guess.
	answer, err := s.Ask(context.Background(), "what was Q3 revenue?", nil, nil)

	require.NoError(t, err)
	assert.True(t, answer.InsufficientEvidence)
	assert.Equal(t, InsufficientEvidenceAnswer, answer.Answer)
	assert.Empty(t, answer.Citations)
	assert.Zero(t, llm.calls, "model must not be invoked without evidence")
}

func TestAsk_BelowThresholdShortCircuits(t *testing.T) {
	llm := &mockLLM{responses: []string{"should never be used"}}
	s, docStore, index, embedder := newAskFixture(t, llm)

	// Orthogonal vectors: similarity 0, below any positive threshold.
	embedder.byText["unrelated question"] = []float32{0, 0, 1}
	seedChunk(t, docStore, index, textChunk("doc1", 1, 1, "revenue grew"), []float32{1, 0, 0})

	answer, err := s.Ask(context.Background(), "unrelated question", nil, nil)

	require.NoError(t, err)
	assert.True(t, answer.InsufficientEvidence)
	assert.Zero(t, llm.calls)
}

func TestAsk_GroundedAnswerWithCitations(t *testing.T) {
	llm := &mockLLM{responses: []string{
		"Net revenue was $3.4 million [ref:doc1:p2:c1]. Margins held steady [ref:doc1:p5:c2].",
	}}
	s, docStore, index, _ := newAskFixture(t, llm)

	seedChunk(t, docStore, index, textChunk("doc1", 2, 1, "Net revenue was $3.4 million in Q3."), []float32{1, 0, 0})
	seedChunk(t, docStore, index, textChunk("doc1", 5, 2, "Operating margins held steady at 21%."), []float32{0.9, 0.1, 0})

	answer, err := s.Ask(context.Background(), "what was net revenue?", nil, nil)

	require.NoError(t, err)
	assert.False(t, answer.InsufficientEvidence)
	assert.False(t, answer.GroundingViolation)

	// Tags are stripped from the prose.
	assert.NotContains(t, answer.Answer, "[ref:")
	assert.Contains(t, answer.Answer, "$3.4 million")

	require.Len(t, answer.Citations, 2)
	assert.Equal(t, "doc1:p2:c1", answer.Citations[0].ChunkID)
	assert.Equal(t, 2, answer.Citations[0].Page)
	assert.Equal(t, "doc1:p5:c2", answer.Citations[1].ChunkID)
	assert.NotEmpty(t, answer.Citations[0].Quote)

	require.Len(t, answer.Scores, 2)
	assert.GreaterOrEqual(t, answer.Scores[0], answer.Scores[1])
}

func TestAsk_HallucinatedReferenceDropped(t *testing.T) {
	llm := &mockLLM{responses: []string{
		"Revenue grew [ref:doc1:p1:c1]. Profit doubled [ref:doc9:p9:c9].",
	}}
	s, docStore, index, _ := newAskFixture(t, llm)

	seedChunk(t, docStore, index, textChunk("doc1", 1, 1, "Revenue grew 12%."), []float32{1, 0, 0})

	answer, err := s.Ask(context.Background(), "how did revenue do?", nil, nil)

	require.NoError(t, err)
	assert.True(t, answer.GroundingViolation)
	require.Len(t, answer.Citations, 1)
	assert.Equal(t, "doc1:p1:c1", answer.Citations[0].ChunkID)
}

func TestAsk_EvidenceOnlyInPrompt(t *testing.T) {
	llm := &mockLLM{responses: []string{"Answer [ref:doc1:p1:c1]."}}
	s, docStore, index, _ := newAskFixture(t, llm)

	seedChunk(t, docStore, index, textChunk("doc1", 1, 1, "the only evidence text"), []float32{1, 0, 0})

	_, err := s.Ask(context.Background(), "question?", nil, nil)
	require.NoError(t, err)

	require.Len(t, llm.prompts, 1)
	prompt := llm.prompts[0]
	assert.Contains(t, prompt, "[CHUNK id=doc1:p1:c1")
	assert.Contains(t, prompt, "the only evidence text")
	assert.Contains(t, prompt, "ONLY the evidence")
}

func TestAsk_FollowUpRewrittenBeforeRetrieval(t *testing.T) {
	llm := &mockLLM{responses: []string{
		"what was net revenue in Q4 2024?",
		"It was $4.1 million [ref:doc1:p1:c1].",
	}}
	s, docStore, index, embedder := newAskFixture(t, llm)

	// Only the rewritten question maps onto the evidence vector.
	embedder.defaultVec = []float32{0, 0, 1}
	embedder.byText["what was net revenue in Q4 2024?"] = []float32{1, 0, 0}
	seedChunk(t, docStore, index, textChunk("doc1", 1, 1, "Q4 revenue was $4.1 million."), []float32{1, 0, 0})

	history := []domain.Turn{
		{Role: "user", Content: "what was net revenue in Q3 2024?"},
		{Role: "assistant", Content: "Net revenue was $3.4 million."},
	}
	answer, err := s.Ask(context.Background(), "and in Q4?", nil, history)

	require.NoError(t, err)
	assert.Equal(t, "and in Q4?", answer.Query)
	assert.Equal(t, "what was net revenue in Q4 2024?", answer.RewrittenQuery)
	assert.False(t, answer.InsufficientEvidence)
	assert.Equal(t, 2, llm.calls)

	// The rewrite prompt sees the conversation.
	assert.Contains(t, llm.prompts[0], "standalone")
	assert.Contains(t, llm.prompts[0], "$3.4 million")
}

func TestAsk_RewriteFailureFallsBackToOriginal(t *testing.T) {
	llm := &mockLLM{} // Empty script: the rewrite call fails.
	s, docStore, index, embedder := newAskFixture(t, llm)

	embedder.byText["original question"] = []float32{0, 0, 1}
	seedChunk(t, docStore, index, textChunk("doc1", 1, 1, "irrelevant"), []float32{1, 0, 0})

	history := []domain.Turn{{Role: "user", Content: "earlier"}}
	answer, err := s.Ask(context.Background(), "original question", nil, history)

	// Retrieval proceeds with the original query; since nothing matches
	// it, the call short-circuits rather than erroring.
	require.NoError(t, err)
	assert.Equal(t, "original question", answer.RewrittenQuery)
	assert.True(t, answer.InsufficientEvidence)
}

func TestAsk_EmptyQuery(t *testing.T) {
	s, _, _, _ := newAskFixture(t, &mockLLM{})
	_, err := s.Ask(context.Background(), "  ", nil, nil)
	assert.ErrorIs(t, err, domain.ErrInvalidInput)
}

func TestTruncateHistory_DropsOldestWholeTurns(t *testing.T) {
	history := []domain.Turn{
		{Role: "user", Content: strings.Repeat("a", 400)},      // ~101 tokens
		{Role: "assistant", Content: strings.Repeat("b", 400)}, // ~101 tokens
		{Role: "user", Content: strings.Repeat("c", 400)},      // ~101 tokens
	}

	kept := truncateHistory(history, 220)

	// Only the two most recent turns fit; the oldest is dropped whole.
	require.Len(t, kept, 2)
	assert.Equal(t, "assistant", kept[0].Role)
	assert.Equal(t, "user", kept[1].Role)
}

func TestTruncateHistory_OverBudgetNewestTurnKeptIntact(t *testing.T) {
	history := []domain.Turn{
		{Role: "user", Content: "short"},
		{Role: "assistant", Content: strings.Repeat("x", 4000)},
	}

	kept := truncateHistory(history, 100)

	// The newest turn alone exceeds the budget; it is kept whole rather
	// than truncated mid-turn.
	require.Len(t, kept, 1)
	assert.Equal(t, history[1].Content, kept[0].Content)
}

func TestTruncateHistory_Empty(t *testing.T) {
	assert.Nil(t, truncateHistory(nil, 100))
}

func TestTailTurns(t *testing.T) {
	history := []domain.Turn{
		{Content: "1"}, {Content: "2"}, {Content: "3"}, {Content: "4"}, {Content: "5"},
	}
	tail := tailTurns(history, 4)
	require.Len(t, tail, 4)
	assert.Equal(t, "2", tail[0].Content)

	assert.Len(t, tailTurns(history, 10), 5)
}

func TestExcerpt(t *testing.T) {
	assert.Equal(t, "short", excerpt("short", 20))

	long := "alpha beta gamma delta epsilon"
	cut := excerpt(long, 17)
	assert.True(t, strings.HasSuffix(cut, "..."))
	assert.LessOrEqual(t, len(cut), 20)
	// Cut lands on a word boundary.
	assert.Equal(t, "alpha beta gamma...", cut)
}
