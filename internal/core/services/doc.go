// Package services implements the retrieval-and-grounding pipeline:
// document ingestion and indexing, embedding-based retrieval, grounded
// answer synthesis with citation resolution, and structured metric
// extraction with validation.
package services
