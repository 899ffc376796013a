package domain

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestChunkIDLess(t *testing.T) {
	tests := []struct {
		name string
		a, b string
		want bool
	}{
		{"earlier ordinal", "doc1:p1:c2", "doc1:p1:c10", true},
		{"later ordinal", "doc1:p1:c10", "doc1:p1:c2", false},
		{"earlier page", "doc1:p2:c0", "doc1:p10:c0", true},
		{"page before ordinal", "doc1:p1:c9", "doc1:p2:c0", true},
		{"document compares lexically", "abc:p1:c0", "abd:p1:c0", true},
		{"equal ids", "doc1:p1:c0", "doc1:p1:c0", false},
		{"prefix sorts first", "doc1:p1", "doc1:p1:c0", true},
		{"non-numeric segment falls back to lexical", "doc1:p1:cX", "doc1:p1:cY", true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, ChunkIDLess(tt.a, tt.b))
		})
	}
}
