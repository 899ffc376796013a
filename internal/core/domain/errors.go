package domain

import "errors"

// Domain errors represent business logic failures.
// These are distinct from infrastructure errors.
var (
	// ErrNotFound indicates a requested entity does not exist.
	ErrNotFound = errors.New("not found")

	// ErrInvalidInput indicates malformed or invalid input.
	ErrInvalidInput = errors.New("invalid input")

	// ErrModelMismatch indicates the query embedding model differs from
	// the model the index was built with. This is a configuration error:
	// it is fatal at the operation boundary and never retried.
	ErrModelMismatch = errors.New("embedding model mismatch")

	// ErrNoEvidence indicates retrieval found nothing above the
	// relevance threshold. Answering short-circuits on this error
	// instead of invoking the model ungrounded.
	ErrNoEvidence = errors.New("no sufficient evidence")

	// ErrEmbeddingUnavailable indicates the embedding service is not
	// configured. Retrieval and ingestion are disabled without it.
	ErrEmbeddingUnavailable = errors.New("embedding service unavailable")

	// ErrLLMUnavailable indicates the language model service is not
	// configured. Answer synthesis and extraction are disabled.
	ErrLLMUnavailable = errors.New("LLM service unavailable")

	// ErrVectorIndexUnavailable indicates the vector index is not
	// configured.
	ErrVectorIndexUnavailable = errors.New("vector index unavailable")

	// ErrUnreadableDocument indicates the PDF could not be parsed at
	// all. Surfaced per document; other documents in a batch continue.
	ErrUnreadableDocument = errors.New("unreadable document")
)
