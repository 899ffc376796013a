package services

import (
	"context"
	"errors"
	"fmt"
	"io"
	"strings"

	"github.com/financescope/financescope/internal/core/domain"
	"github.com/financescope/financescope/internal/core/ports/driven"
	"github.com/financescope/financescope/internal/core/ports/driving"
	"github.com/financescope/financescope/internal/logger"
)

// Ensure Extractor implements the interface.
var _ driving.ExtractService = (*Extractor)(nil)

// ExtractorOption configures the extractor.
type ExtractorOption func(*Extractor)

// WithExtractTopK sets how many evidence chunks back each proposal.
func WithExtractTopK(k int) ExtractorOption {
	return func(e *Extractor) {
		if k > 0 {
			e.topK = k
		}
	}
}

// WithExtractThreshold sets the minimum evidence relevance score.
func WithExtractThreshold(threshold float64) ExtractorOption {
	return func(e *Extractor) {
		if threshold > 0 {
			e.threshold = threshold
		}
	}
}

// Extractor runs metric-oriented retrieval and synthesis, then
// validates and normalizes the proposed values against each metric's
// expected kind and bounds.
type Extractor struct {
	retriever *Retriever
	llm       driven.LLMService

	topK      int
	threshold float64
}

// NewExtractor creates a metric extractor.
func NewExtractor(retriever *Retriever, llm driven.LLMService, opts ...ExtractorOption) *Extractor {
	e := &Extractor{
		retriever: retriever,
		llm:       llm,
		topK:      DefaultTopK,
		threshold: DefaultRelevanceThreshold,
	}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// Extract proposes one value per requested metric per document and
// validates each proposal.
//
// Validation is terminal: a rejected or unverified metric is never
// retried and never coerced to a best guess. Retries apply only to the
// underlying provider calls. Conflicting proposals for the same metric
// and period within one run are all marked unverified with a conflict
// note rather than picking a winner silently.
func (e *Extractor) Extract(
	ctx context.Context, documentIDs []string, specs []domain.MetricSpec,
) ([]domain.ExtractedMetric, error) {
	logger.Section("Extract Metrics")

	if e.llm == nil {
		return nil, domain.ErrLLMUnavailable
	}
	if len(specs) == 0 {
		return nil, fmt.Errorf("%w: no metrics requested", domain.ErrInvalidInput)
	}

	scopes := documentIDs
	if len(scopes) == 0 {
		// Unscoped extraction searches all documents in one pass.
		scopes = []string{""}
	}

	var metrics []domain.ExtractedMetric
	for _, spec := range specs {
		for _, docID := range scopes {
			metric, err := e.extractOne(ctx, docID, spec)
			if err != nil {
				return nil, err
			}
			if metric != nil {
				metrics = append(metrics, *metric)
			}
		}
	}

	markConflicts(metrics)
	return metrics, nil
}

// extractOne retrieves evidence for one metric in one document scope
// and validates the model's proposal. A nil metric means no evidence
// was found at all for the scope.
func (e *Extractor) extractOne(
	ctx context.Context, documentID string, spec domain.MetricSpec,
) (*domain.ExtractedMetric, error) {
	query := strings.TrimSpace(spec.Name + " " + spec.Period)

	var filter []string
	if documentID != "" {
		filter = []string{documentID}
	}

	evidence, err := e.retriever.Retrieve(ctx, query, filter, e.topK)
	if err != nil {
		return nil, err
	}
	evidence = aboveThreshold(evidence, e.threshold)
	if len(evidence) == 0 {
		logger.Debug("No evidence for %q in scope %q", query, documentID)
		return nil, nil
	}

	response, err := e.llm.Complete(ctx, e.buildPrompt(spec, evidence), driven.Constraints{
		MaxTokens:   120,
		Temperature: 0,
	})
	if err != nil {
		return nil, fmt.Errorf("propose %s: %w", spec.Name, err)
	}

	metric := domain.ExtractedMetric{
		Name:       spec.Name,
		Period:     spec.Period,
		DocumentID: evidence[0].Chunk.DocumentID,
	}

	raw, refs, ok := parseProposal(response)
	if !ok || strings.EqualFold(raw, "not found") {
		metric.Status = domain.StatusUnverified
		metric.Note = "model returned no parseable value"
		return &metric, nil
	}
	metric.RawValue = raw

	// Resolve supporting refs against the evidence set; foreign refs
	// are dropped, same as in answer synthesis.
	byID := make(map[string]domain.Chunk, len(evidence))
	for _, sc := range evidence {
		byID[sc.Chunk.ID] = sc.Chunk
	}
	for _, ref := range refs {
		if chunk, found := byID[ref]; found {
			metric.Citations = append(metric.Citations, domain.Citation{
				DocumentID: chunk.DocumentID,
				Page:       chunk.Page,
				ChunkID:    chunk.ID,
				Quote:      excerpt(chunk.Content, 160),
			})
		} else {
			logger.Warn("Proposal for %q cited unknown chunk %q", spec.Name, ref)
		}
	}
	if len(metric.Citations) == 0 {
		metric.Status = domain.StatusUnverified
		metric.Note = "proposal lacked valid supporting citations"
		return &metric, nil
	}

	value, err := normalizeValue(raw, spec.Kind)
	if err != nil {
		if errors.Is(err, errTypeMismatch) {
			metric.Status = domain.StatusRejectedType
			metric.Note = fmt.Sprintf("%q is not a %s value", raw, spec.Kind)
			return &metric, nil
		}
		return nil, err
	}
	metric.Value = value

	if outOfBounds(value, spec) {
		metric.Status = domain.StatusRejectedOutOfRange
		metric.Note = boundsNote(value, spec)
		return &metric, nil
	}

	metric.Status = domain.StatusValid
	return &metric, nil
}

// buildPrompt asks the model for a single value in a strict one-line
// format that the proposal parser understands.
func (e *Extractor) buildPrompt(spec domain.MetricSpec, evidence []domain.ScoredChunk) string {
	var b strings.Builder

	fmt.Fprintf(&b, "Find the value of %q", spec.Name)
	if spec.Period != "" {
		fmt.Fprintf(&b, " for %s", spec.Period)
	}
	b.WriteString(" in the evidence below.\n")
	b.WriteString("Respond with EXACTLY one line in this format:\n")
	b.WriteString("VALUE: <value as written in the document> | REFS: <chunk ids, comma separated>\n")
	b.WriteString("If the evidence does not state the value, respond with: VALUE: not found | REFS:\n\n")

	b.WriteString("Evidence:\n")
	for _, sc := range evidence {
		fmt.Fprintf(&b, "[CHUNK id=%s page=%d]\n%s\n[/CHUNK]\n", sc.Chunk.ID, sc.Chunk.Page, sc.Chunk.Content)
	}

	return b.String()
}

// parseProposal reads the strict "VALUE: ... | REFS: ..." line. The
// parser fails closed: a response that does not match the grammar
// yields ok=false rather than a guessed value.
func parseProposal(response string) (raw string, refs []string, ok bool) {
	for _, line := range strings.Split(response, "\n") {
		line = strings.TrimSpace(line)
		if !strings.HasPrefix(line, "VALUE:") {
			continue
		}

		rest := strings.TrimPrefix(line, "VALUE:")
		value := rest
		var refPart string
		if idx := strings.Index(rest, "|"); idx >= 0 {
			value = rest[:idx]
			after := rest[idx+1:]
			refPart = strings.TrimSpace(after)
			refPart = strings.TrimPrefix(refPart, "REFS:")
		}

		value = strings.TrimSpace(value)
		if value == "" {
			return "", nil, false
		}

		for _, ref := range strings.Split(refPart, ",") {
			ref = strings.TrimSpace(ref)
			if ref != "" {
				refs = append(refs, ref)
			}
		}
		return value, refs, true
	}
	return "", nil, false
}

// outOfBounds applies the spec's numeric sanity bounds.
func outOfBounds(value domain.NormalizedValue, spec domain.MetricSpec) bool {
	if value.Kind == domain.KindDate {
		return false
	}
	if spec.Min != nil && value.Number < *spec.Min {
		return true
	}
	if spec.Max != nil && value.Number > *spec.Max {
		return true
	}
	return false
}

func boundsNote(value domain.NormalizedValue, spec domain.MetricSpec) string {
	switch {
	case spec.Min != nil && value.Number < *spec.Min:
		return fmt.Sprintf("%s below minimum %s", value.Text, formatNumber(*spec.Min))
	case spec.Max != nil && value.Number > *spec.Max:
		return fmt.Sprintf("%s above maximum %s", value.Text, formatNumber(*spec.Max))
	default:
		return ""
	}
}

// markConflicts finds proposals for the same metric and period whose
// normalized values disagree and demotes all of them to unverified
// with a conflict note. The conflict is surfaced, never resolved by
// silently picking one value.
func markConflicts(metrics []domain.ExtractedMetric) {
	groups := make(map[string][]int)
	for i, m := range metrics {
		if m.Status != domain.StatusValid {
			continue
		}
		key := strings.ToLower(m.Name) + "|" + strings.ToLower(m.Period)
		groups[key] = append(groups[key], i)
	}

	for _, idxs := range groups {
		if len(idxs) < 2 {
			continue
		}

		values := make(map[string]bool)
		for _, i := range idxs {
			values[metrics[i].Value.Text] = true
		}
		if len(values) < 2 {
			continue
		}

		texts := make([]string, 0, len(values))
		for text := range values {
			texts = append(texts, text)
		}
		note := "conflicting values proposed in this run: " + strings.Join(sortedStrings(texts), " vs ")

		for _, i := range idxs {
			metrics[i].Status = domain.StatusUnverified
			metrics[i].Note = note
		}
	}
}

func sortedStrings(values []string) []string {
	for i := 1; i < len(values); i++ {
		for j := i; j > 0 && values[j] < values[j-1]; j-- {
			values[j], values[j-1] = values[j-1], values[j]
		}
	}
	return values
}

// Export writes metrics as tabular rows via the exporter.
func (e *Extractor) Export(metrics []domain.ExtractedMetric, format driving.ExportFormat, w io.Writer) error {
	return ExportMetrics(metrics, format, w)
}
