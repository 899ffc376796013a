package services

import (
	"context"
	"fmt"
	"strings"

	"github.com/financescope/financescope/internal/core/domain"
	"github.com/financescope/financescope/internal/core/ports/driven"
	"github.com/financescope/financescope/internal/core/ports/driving"
	"github.com/financescope/financescope/internal/logger"
)

// Ensure Synthesizer implements the interface.
var _ driving.QueryService = (*Synthesizer)(nil)

// Synthesis defaults.
const (
	// DefaultRelevanceThreshold is the minimum similarity an evidence
	// chunk must reach; below it the model is never invoked.
	DefaultRelevanceThreshold = 0.25

	// DefaultHistoryBudget is the conversation history budget in
	// (estimated) tokens.
	DefaultHistoryBudget = 2000

	// DefaultAnswerTokens bounds the model's answer length.
	DefaultAnswerTokens = 700
)

// InsufficientEvidenceAnswer is returned when retrieval produced no
// usable evidence. The model is not consulted in that case.
const InsufficientEvidenceAnswer = "The indexed documents do not contain sufficient evidence to answer this question."

// SynthesizerOption configures the synthesizer.
type SynthesizerOption func(*Synthesizer)

// WithRelevanceThreshold sets the minimum evidence similarity score.
func WithRelevanceThreshold(threshold float64) SynthesizerOption {
	return func(s *Synthesizer) {
		if threshold > 0 {
			s.threshold = threshold
		}
	}
}

// WithHistoryBudget sets the conversation history token budget.
func WithHistoryBudget(tokens int) SynthesizerOption {
	return func(s *Synthesizer) {
		if tokens > 0 {
			s.historyBudget = tokens
		}
	}
}

// WithTopK sets how many evidence chunks are retrieved per question.
func WithTopK(k int) SynthesizerOption {
	return func(s *Synthesizer) {
		if k > 0 {
			s.topK = k
		}
	}
}

// Synthesizer builds grounded prompts from retrieved evidence, invokes
// the language model and resolves its chunk references to page-level
// citations.
type Synthesizer struct {
	retriever *Retriever
	llm       driven.LLMService

	threshold     float64
	historyBudget int
	topK          int
}

// NewSynthesizer creates an answer synthesizer.
func NewSynthesizer(retriever *Retriever, llm driven.LLMService, opts ...SynthesizerOption) *Synthesizer {
	s := &Synthesizer{
		retriever:     retriever,
		llm:           llm,
		threshold:     DefaultRelevanceThreshold,
		historyBudget: DefaultHistoryBudget,
		topK:          DefaultTopK,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Ask answers a question using only retrieved document evidence.
//
// When retrieval yields nothing above the relevance threshold the call
// short-circuits with an insufficient-evidence answer and the model is
// never invoked. Model references to chunks outside the evidence set
// are dropped and flagged as a grounding violation.
func (s *Synthesizer) Ask(
	ctx context.Context, query string, documentIDs []string, history []domain.Turn,
) (*domain.AnsweredQuery, error) {
	logger.Section("Ask")

	if s.llm == nil {
		return nil, domain.ErrLLMUnavailable
	}
	query = strings.TrimSpace(query)
	if query == "" {
		return nil, fmt.Errorf("%w: empty query", domain.ErrInvalidInput)
	}

	// Follow-up questions carry pronouns and ellipses that only make
	// sense against prior turns. Rewrite them into a standalone query
	// before retrieval so they resolve against document content.
	retrievalQuery := query
	if len(history) > 0 {
		if rewritten, err := s.rewriteFollowUp(ctx, query, history); err != nil {
			logger.Warn("Follow-up rewrite failed: %v (using original query)", err)
		} else if rewritten != "" {
			retrievalQuery = rewritten
			logger.Info("Rewrote follow-up: %q", rewritten)
		}
	}

	evidence, err := s.retriever.Retrieve(ctx, retrievalQuery, documentIDs, s.topK)
	if err != nil {
		return nil, err
	}

	evidence = aboveThreshold(evidence, s.threshold)
	if len(evidence) == 0 {
		logger.Info("No evidence above threshold %.2f, skipping model call", s.threshold)
		return &domain.AnsweredQuery{
			Query:                query,
			RewrittenQuery:       retrievalQuery,
			Answer:               InsufficientEvidenceAnswer,
			Citations:            []domain.Citation{},
			InsufficientEvidence: true,
		}, nil
	}

	prompt := s.buildPrompt(query, evidence, history)
	logger.Debug("Prompt: %d chars, %d evidence chunks", len(prompt), len(evidence))

	response, err := s.llm.Complete(ctx, prompt, driven.Constraints{
		MaxTokens:   DefaultAnswerTokens,
		Temperature: 0,
	})
	if err != nil {
		return nil, fmt.Errorf("complete: %w", err)
	}

	answer, refs := parseReferences(response)

	// Resolve references against the evidence set. Anything outside it
	// is a grounding violation: dropped, flagged, never trusted.
	byID := make(map[string]domain.Chunk, len(evidence))
	for _, sc := range evidence {
		byID[sc.Chunk.ID] = sc.Chunk
	}

	var citations []domain.Citation
	violation := false
	for _, ref := range refs {
		chunk, ok := byID[ref]
		if !ok {
			logger.Warn("Grounding violation: model cited unknown chunk %q", ref)
			violation = true
			continue
		}
		citations = append(citations, domain.Citation{
			DocumentID: chunk.DocumentID,
			Page:       chunk.Page,
			ChunkID:    chunk.ID,
			Quote:      excerpt(chunk.Content, 160),
		})
	}

	// Report citations in retrieval relevance order.
	orderCitations(citations, evidence)

	scores := make([]float64, len(evidence))
	for i, sc := range evidence {
		scores[i] = sc.Score
	}

	return &domain.AnsweredQuery{
		Query:              query,
		RewrittenQuery:     retrievalQuery,
		Answer:             answer,
		Citations:          citations,
		Scores:             scores,
		GroundingViolation: violation,
	}, nil
}

// rewriteFollowUp asks the model to turn a follow-up question into a
// standalone retrieval query using recent conversation context.
func (s *Synthesizer) rewriteFollowUp(ctx context.Context, query string, history []domain.Turn) (string, error) {
	var b strings.Builder
	b.WriteString("Rewrite the follow-up question as a standalone question that can be understood without the conversation. ")
	b.WriteString("Resolve pronouns and implicit references. Return ONLY the rewritten question.\n\nConversation:\n")
	for _, turn := range tailTurns(history, 4) {
		fmt.Fprintf(&b, "%s: %s\n", turn.Role, turn.Content)
	}
	fmt.Fprintf(&b, "\nFollow-up: %s\nStandalone:", query)

	result, err := s.llm.Complete(ctx, b.String(), driven.Constraints{
		MaxTokens:   100,
		Temperature: 0,
	})
	if err != nil {
		return "", err
	}
	return strings.TrimSpace(result), nil
}

// buildPrompt assembles the grounded prompt: instructions, truncated
// history, evidence blocks tagged with their chunk IDs, and the
// question. Only retrieved chunk text enters the prompt.
func (s *Synthesizer) buildPrompt(query string, evidence []domain.ScoredChunk, history []domain.Turn) string {
	var b strings.Builder

	b.WriteString("You are a financial document analyst. Answer the question using ONLY the evidence below.\n")
	b.WriteString("Tag every factual claim with the id of the evidence chunk it comes from, in the form [ref:CHUNK_ID].\n")
	b.WriteString("If the evidence does not answer the question, say so. Do not use outside knowledge.\n\n")

	if kept := truncateHistory(history, s.historyBudget); len(kept) > 0 {
		b.WriteString("Conversation so far:\n")
		for _, turn := range kept {
			fmt.Fprintf(&b, "%s: %s\n", turn.Role, turn.Content)
		}
		b.WriteString("\n")
	}

	b.WriteString("Evidence:\n")
	for _, sc := range evidence {
		fmt.Fprintf(&b, "[CHUNK id=%s document=%s page=%d]\n%s\n[/CHUNK]\n",
			sc.Chunk.ID, sc.Chunk.DocumentID, sc.Chunk.Page, sc.Chunk.Content)
	}

	fmt.Fprintf(&b, "\nQuestion: %s\nAnswer:", query)
	return b.String()
}

// truncateHistory keeps as many recent whole turns as fit in the token
// budget, dropping the oldest turns first. A single over-budget turn is
// kept alone rather than truncated mid-turn, so the model always sees
// the latest exchange intact.
func truncateHistory(history []domain.Turn, budget int) []domain.Turn {
	if len(history) == 0 {
		return nil
	}

	total := 0
	start := len(history)
	for i := len(history) - 1; i >= 0; i-- {
		cost := estimateTokens(history[i].Content)
		if total+cost > budget && start < len(history) {
			break
		}
		total += cost
		start = i
	}

	return history[start:]
}

// tailTurns returns the most recent n turns of a conversation.
func tailTurns(history []domain.Turn, n int) []domain.Turn {
	if len(history) <= n {
		return history
	}
	return history[len(history)-n:]
}

// estimateTokens approximates token count as chars/4.
func estimateTokens(s string) int {
	return len(s)/4 + 1
}

// aboveThreshold filters evidence below the minimum relevance score.
func aboveThreshold(evidence []domain.ScoredChunk, threshold float64) []domain.ScoredChunk {
	kept := evidence[:0]
	for _, sc := range evidence {
		if sc.Score >= threshold {
			kept = append(kept, sc)
		}
	}
	return kept
}

// orderCitations sorts citations by the rank of their chunk in the
// evidence set, preserving relevance order.
func orderCitations(citations []domain.Citation, evidence []domain.ScoredChunk) {
	rank := make(map[string]int, len(evidence))
	for i, sc := range evidence {
		rank[sc.Chunk.ID] = i
	}

	for i := 1; i < len(citations); i++ {
		for j := i; j > 0 && rank[citations[j].ChunkID] < rank[citations[j-1].ChunkID]; j-- {
			citations[j], citations[j-1] = citations[j-1], citations[j]
		}
	}
}

// excerpt returns the first n characters of s, cut at a word boundary.
func excerpt(s string, n int) string {
	s = strings.TrimSpace(s)
	if len(s) <= n {
		return s
	}
	cut := s[:n]
	if i := strings.LastIndexByte(cut, ' '); i > 0 {
		cut = cut[:i]
	}
	return cut + "..."
}
