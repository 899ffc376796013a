package domain

import "time"

// Document represents an ingested financial report.
// It is immutable once ingested: re-uploading the same file replaces the
// prior document atomically under the same content-derived ID.
type Document struct {
	// ID is the stable identifier, derived from the content hash.
	ID string

	// Title is the human-readable title, usually the file name.
	Title string

	// SourcePath is the original location of the PDF on disk.
	SourcePath string

	// SHA256 is the hex digest of the raw document bytes.
	SHA256 string

	// Pages holds the extracted pages in order.
	Pages []Page

	// PageCount is the number of pages in the source PDF, including
	// pages that yielded no extractable text.
	PageCount int

	// CreatedAt is when the document was ingested.
	CreatedAt time.Time
}

// Page is one page of a document: raw text plus any extracted tables.
// Page numbers are 1-indexed.
type Page struct {
	// Number is the 1-indexed page number.
	Number int

	// Text is the extracted plain text of the page.
	Text string

	// Tables holds tables detected on the page, in reading order.
	Tables []Table
}

// Table is an extracted table: an optional header row plus data rows.
type Table struct {
	// Header holds the column titles, empty when none were detected.
	Header []string

	// Rows holds the data cells, row-major.
	Rows [][]string
}
