package driving

import (
	"context"

	"github.com/financescope/financescope/internal/core/domain"
)

// QueryService answers natural-language questions with page-level
// citations, grounded in retrieved document evidence.
type QueryService interface {
	// Ask retrieves evidence for the query, synthesizes a grounded
	// answer and resolves the model's references to citations.
	//
	// documentIDs restricts retrieval to the union of the given
	// documents; empty searches everything. history supplies prior
	// conversation turns for follow-up resolution.
	Ask(ctx context.Context, query string, documentIDs []string, history []domain.Turn) (*domain.AnsweredQuery, error)
}
