package domain

import (
	"strconv"
	"strings"
)

// ChunkKind distinguishes prose chunks from serialized table chunks.
type ChunkKind string

// Chunk kinds.
const (
	ChunkKindText  ChunkKind = "text"
	ChunkKindTable ChunkKind = "table"
)

// Chunk is a bounded, citation-traceable segment of document text.
// Chunks are created during ingestion and never mutated afterwards.
//
// IDs are deterministic and namespaced by document:
// "<documentID>:p<page>:c<ordinal>". Repeated ingestion of the same
// document with the same configuration yields identical chunk IDs.
type Chunk struct {
	// ID is the chunk identifier, unique within the document.
	ID string

	// DocumentID links to the parent Document.
	DocumentID string

	// Page is the 1-indexed page the chunk was taken from.
	Page int

	// StartOffset is the character offset of the chunk within the
	// source page text. Table chunks carry the offsets of the table's
	// placeholder within the page, not offsets into the serialized form.
	StartOffset int

	// EndOffset is the exclusive end offset within the source page text.
	EndOffset int

	// Content is the chunk text supplied as retrieval evidence.
	Content string

	// CharCount is len(Content).
	CharCount int

	// Kind marks whether the chunk is prose or a serialized table.
	Kind ChunkKind
}

// ChunkIDLess orders chunk IDs in creation order: by document, then
// page, then chunk ordinal. The "p<N>" and "c<N>" segments compare
// numerically, so "d:p1:c2" sorts before "d:p1:c10". IDs outside that
// form fall back to lexical comparison.
func ChunkIDLess(a, b string) bool {
	as := strings.Split(a, ":")
	bs := strings.Split(b, ":")
	for i := 0; i < len(as) && i < len(bs); i++ {
		if as[i] == bs[i] {
			continue
		}
		an, aok := segmentOrdinal(as[i])
		bn, bok := segmentOrdinal(bs[i])
		if aok && bok && as[i][0] == bs[i][0] {
			return an < bn
		}
		return as[i] < bs[i]
	}
	return len(as) < len(bs)
}

// segmentOrdinal parses a "p<N>" or "c<N>" chunk ID segment.
func segmentOrdinal(s string) (int, bool) {
	if len(s) < 2 || (s[0] != 'p' && s[0] != 'c') {
		return 0, false
	}
	n, err := strconv.Atoi(s[1:])
	if err != nil || n < 0 {
		return 0, false
	}
	return n, true
}

// ScoredChunk pairs a chunk with its retrieval similarity score.
type ScoredChunk struct {
	Chunk Chunk

	// Score is the cosine similarity against the query, higher is better.
	Score float64
}
