// Package driven provides interfaces for infrastructure adapters
// (secondary/outbound ports): PDF extraction, embeddings, the language
// model, the vector index and document storage.
package driven
