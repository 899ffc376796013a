package domain

// Citation anchors a claim in an answer to a source location.
// Every citation is traceable to exactly one chunk that was part of the
// evidence set supplied to the language model for that call.
type Citation struct {
	// DocumentID identifies the cited document.
	DocumentID string

	// Page is the 1-indexed page number the evidence came from.
	Page int

	// ChunkID is the evidence chunk the model referenced.
	ChunkID string

	// Quote is an optional short excerpt from the cited chunk.
	Quote string
}

// Turn is one exchange in a conversation.
type Turn struct {
	// Role is "user" or "assistant".
	Role string

	// Content is the message text.
	Content string
}

// AnsweredQuery is the result of one grounded question-answering call.
// It is ephemeral: not persisted beyond the session unless exported.
type AnsweredQuery struct {
	// Query is the question as asked by the caller.
	Query string

	// RewrittenQuery is the standalone retrieval query after follow-up
	// expansion. Equal to Query when no rewriting took place.
	RewrittenQuery string

	// Answer is the model's prose answer with citation tags stripped.
	Answer string

	// Citations lists the resolved source locations in relevance order.
	Citations []Citation

	// Scores holds the retrieval similarity scores of the evidence set,
	// parallel to the retrieval ranking.
	Scores []float64

	// GroundingViolation is set when the model referenced a chunk ID
	// that was not part of the supplied evidence. The offending
	// reference is dropped, never surfaced as a trusted citation.
	GroundingViolation bool

	// InsufficientEvidence is set when retrieval found nothing above
	// the relevance threshold and the model was never invoked.
	InsufficientEvidence bool
}
