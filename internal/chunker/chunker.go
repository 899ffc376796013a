// Package chunker segments extracted document pages into overlapping,
// citation-traceable chunks.
package chunker

import (
	"fmt"
	"strings"

	"github.com/financescope/financescope/internal/core/domain"
)

// DefaultWindowSize is the default maximum chunk size in characters.
const DefaultWindowSize = 1000

// DefaultOverlap is the default overlap between consecutive chunks.
const DefaultOverlap = 200

// Chunker splits document pages into chunks using a layered strategy:
// natural paragraph boundaries are preferred, with a fixed sliding
// window as the fallback. Tables are chunked separately and never mixed
// into prose windows.
type Chunker struct {
	window  int
	overlap int
}

// Option configures the chunker.
type Option func(*Chunker)

// WithWindowSize sets the maximum chunk size in characters.
func WithWindowSize(size int) Option {
	return func(c *Chunker) {
		if size > 0 {
			c.window = size
		}
	}
}

// WithOverlap sets the overlap between consecutive chunks in characters.
func WithOverlap(overlap int) Option {
	return func(c *Chunker) {
		if overlap >= 0 {
			c.overlap = overlap
		}
	}
}

// New creates a chunker with the given options.
func New(opts ...Option) *Chunker {
	c := &Chunker{
		window:  DefaultWindowSize,
		overlap: DefaultOverlap,
	}

	for _, opt := range opts {
		opt(c)
	}

	// Overlap must stay strictly below the window for the sliding
	// window to make progress.
	if c.overlap >= c.window {
		c.overlap = c.window / 4
	}

	return c
}

// Chunk segments every page of the document. It returns the chunks in
// page order plus warnings for pages that yielded no extractable text.
// A page with no text is never an error: ingestion continues with the
// remaining pages.
//
// Chunk IDs are deterministic: "<docID>:p<page>:c<ordinal>". Repeated
// runs over the same document and configuration produce identical IDs.
func (c *Chunker) Chunk(doc *domain.Document) ([]domain.Chunk, []string) {
	var chunks []domain.Chunk
	var warnings []string

	for _, page := range doc.Pages {
		text := strings.TrimRight(page.Text, " \n\t")
		if strings.TrimSpace(text) == "" && len(page.Tables) == 0 {
			warnings = append(warnings, fmt.Sprintf("page %d: no extractable text", page.Number))
			continue
		}

		ordinal := 0

		for _, span := range c.split(text) {
			id := chunkID(doc.ID, page.Number, ordinal)
			chunks = append(chunks, domain.Chunk{
				ID:          id,
				DocumentID:  doc.ID,
				Page:        page.Number,
				StartOffset: span.start,
				EndOffset:   span.end,
				Content:     text[span.start:span.end],
				CharCount:   span.end - span.start,
				Kind:        domain.ChunkKindText,
			})
			ordinal++
		}

		for _, table := range page.Tables {
			for _, content := range c.splitTable(table) {
				id := chunkID(doc.ID, page.Number, ordinal)
				chunks = append(chunks, domain.Chunk{
					ID:          id,
					DocumentID:  doc.ID,
					Page:        page.Number,
					StartOffset: len(text),
					EndOffset:   len(text),
					Content:     content,
					CharCount:   len(content),
					Kind:        domain.ChunkKindTable,
				})
				ordinal++
			}
		}
	}

	return chunks, warnings
}

// WindowSize returns the configured maximum chunk size.
func (c *Chunker) WindowSize() int {
	return c.window
}

// Overlap returns the configured chunk overlap.
func (c *Chunker) Overlap() int {
	return c.overlap
}

// span is a half-open character range within one page's text.
type span struct {
	start int
	end   int
}

// split computes overlapping spans over the page text. Each span is at
// most one window long. When a window does not reach the end of the
// text, the cut is pulled back to the nearest natural boundary in the
// second half of the window: paragraph break first, then line break,
// then word break. Consecutive spans overlap by the configured amount.
func (c *Chunker) split(text string) []span {
	if strings.TrimSpace(text) == "" {
		return nil
	}

	var spans []span
	start := 0

	for start < len(text) {
		end := start + c.window
		if end >= len(text) {
			spans = append(spans, span{start: start, end: len(text)})
			break
		}

		end = c.snapToBoundary(text, start, end)
		spans = append(spans, span{start: start, end: end})

		next := end - c.overlap
		if next <= start {
			next = end
		}
		start = next
	}

	return spans
}

// snapToBoundary pulls end back to the last natural boundary within
// (start+window/2, end]. The half-window floor keeps boundary snapping
// from producing degenerate short chunks.
func (c *Chunker) snapToBoundary(text string, start, end int) int {
	window := text[start:end]
	floor := c.window / 2

	if i := strings.LastIndex(window, "\n\n"); i > floor {
		return start + i + 2
	}
	if i := strings.LastIndexByte(window, '\n'); i > floor {
		return start + i + 1
	}
	if i := strings.LastIndexByte(window, ' '); i > floor {
		return start + i + 1
	}
	return end
}

// splitTable serializes a table into one or more chunk payloads.
// A table whose serialized form fits in one window stays atomic.
// Oversized tables are split by whole rows, with the header repeated in
// every sub-chunk; rows are never split. A single row that exceeds the
// window on its own still forms a complete chunk.
func (c *Chunker) splitTable(table domain.Table) []string {
	header := strings.Join(table.Header, "\t")

	whole := serializeRows(header, table.Rows)
	if len(whole) <= c.window {
		return []string{whole}
	}

	var parts []string
	var group [][]string
	groupLen := len(header)

	for _, row := range table.Rows {
		rowLen := rowSize(row)
		if len(group) > 0 && groupLen+rowLen+1 > c.window {
			parts = append(parts, serializeRows(header, group))
			group = nil
			groupLen = len(header)
		}
		group = append(group, row)
		groupLen += rowLen + 1
	}

	if len(group) > 0 {
		parts = append(parts, serializeRows(header, group))
	}

	return parts
}

// serializeRows renders a header plus rows as tab-separated lines.
func serializeRows(header string, rows [][]string) string {
	var b strings.Builder
	if header != "" {
		b.WriteString(header)
	}
	for _, row := range rows {
		if b.Len() > 0 {
			b.WriteByte('\n')
		}
		b.WriteString(strings.Join(row, "\t"))
	}
	return b.String()
}

func rowSize(row []string) int {
	n := 0
	for _, cell := range row {
		n += len(cell) + 1
	}
	return n
}

// chunkID builds the deterministic, document-namespaced chunk ID.
func chunkID(docID string, page, ordinal int) string {
	return fmt.Sprintf("%s:p%d:c%d", docID, page, ordinal)
}
