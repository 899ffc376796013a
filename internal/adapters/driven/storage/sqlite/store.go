package sqlite

import (
	"context"
	"database/sql"
	"embed"
	"encoding/binary"
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"math"
	"os"
	"path/filepath"
	"sort"
	"strings"

	_ "modernc.org/sqlite" // SQLite driver

	"github.com/financescope/financescope/internal/adapters/driven/storage/sqlite/migrations"
	"github.com/financescope/financescope/internal/core/domain"
	"github.com/financescope/financescope/internal/core/ports/driven"
)

// modelMetaKey is the index_meta key recording the embedding model.
const modelMetaKey = "embedding_model"

// Store is a unified SQLite-based storage that provides the document
// store and the vector index through wrapper types sharing one
// database file.
type Store struct {
	db   *sql.DB
	path string
}

// NewStore creates a new SQLite store at the specified data directory.
// If dataDir is empty, defaults to ~/.financescope/data/financescope.db.
func NewStore(dataDir string) (*Store, error) {
	if dataDir == "" {
		home, err := os.UserHomeDir()
		if err != nil {
			return nil, fmt.Errorf("getting home directory: %w", err)
		}
		dataDir = filepath.Join(home, ".financescope", "data")
	}

	if err := os.MkdirAll(dataDir, 0700); err != nil {
		return nil, fmt.Errorf("creating data directory: %w", err)
	}

	dbPath := filepath.Join(dataDir, "financescope.db")

	// WAL mode for better concurrency between ingest workers. The
	// pragmas ride on the DSN so every pooled connection applies them;
	// foreign_keys in particular is per-connection in SQLite, and the
	// chunk cascade depends on it holding for whichever connection runs
	// a delete.
	db, err := sql.Open("sqlite", dbPath+"?_pragma=journal_mode(WAL)&_pragma=busy_timeout(5000)&_pragma=foreign_keys(1)")
	if err != nil {
		return nil, fmt.Errorf("opening database: %w", err)
	}

	s := &Store{
		db:   db,
		path: dbPath,
	}

	if err := s.migrate(migrations.FS); err != nil {
		db.Close()
		return nil, fmt.Errorf("running migrations: %w", err)
	}

	return s, nil
}

// Close closes the database connection.
func (s *Store) Close() error {
	return s.db.Close()
}

// Path returns the database file path.
func (s *Store) Path() string {
	return s.path
}

// DocumentStore returns a DocumentStore interface backed by this store.
func (s *Store) DocumentStore() driven.DocumentStore {
	return &documentStore{store: s}
}

// VectorIndex returns a VectorIndex interface backed by this store.
func (s *Store) VectorIndex() driven.VectorIndex {
	return &vectorIndex{store: s}
}

// migrate runs all pending migrations.
func (s *Store) migrate(fsys embed.FS) error {
	_, err := s.db.Exec(`
		CREATE TABLE IF NOT EXISTS schema_migrations (
			version INTEGER PRIMARY KEY,
			applied_at DATETIME DEFAULT CURRENT_TIMESTAMP
		)
	`)
	if err != nil {
		return fmt.Errorf("creating schema_migrations table: %w", err)
	}

	var currentVersion int
	row := s.db.QueryRow("SELECT COALESCE(MAX(version), 0) FROM schema_migrations")
	if err := row.Scan(&currentVersion); err != nil {
		return fmt.Errorf("getting current version: %w", err)
	}

	entries, err := fs.ReadDir(fsys, ".")
	if err != nil {
		return fmt.Errorf("reading migrations directory: %w", err)
	}

	var upFiles []string
	for _, entry := range entries {
		if strings.HasSuffix(entry.Name(), ".up.sql") {
			upFiles = append(upFiles, entry.Name())
		}
	}
	sort.Strings(upFiles)

	for _, name := range upFiles {
		var version int
		if _, err := fmt.Sscanf(name, "%d_", &version); err != nil {
			continue
		}
		if version <= currentVersion {
			continue
		}

		content, err := fs.ReadFile(fsys, name)
		if err != nil {
			return fmt.Errorf("reading migration %s: %w", name, err)
		}
		if _, err := s.db.Exec(string(content)); err != nil {
			return fmt.Errorf("executing migration %s: %w", name, err)
		}
		if _, err := s.db.Exec("INSERT INTO schema_migrations (version) VALUES (?)", version); err != nil {
			return fmt.Errorf("recording migration %s: %w", name, err)
		}
	}

	return nil
}

// ==================== Document Store ====================

// documentStore implements driven.DocumentStore.
type documentStore struct {
	store *Store
}

var _ driven.DocumentStore = (*documentStore)(nil)

// SaveDocument stores or replaces a document.
func (s *documentStore) SaveDocument(ctx context.Context, doc *domain.Document) error {
	pagesJSON, err := json.Marshal(doc.Pages)
	if err != nil {
		return fmt.Errorf("marshalling pages: %w", err)
	}

	_, err = s.store.db.ExecContext(ctx, `
		INSERT INTO documents (id, title, source_path, sha256, page_count, pages, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(id) DO UPDATE SET
			title = excluded.title,
			source_path = excluded.source_path,
			sha256 = excluded.sha256,
			page_count = excluded.page_count,
			pages = excluded.pages,
			created_at = excluded.created_at
	`, doc.ID, doc.Title, doc.SourcePath, doc.SHA256, doc.PageCount, string(pagesJSON), doc.CreatedAt)
	if err != nil {
		return fmt.Errorf("saving document: %w", err)
	}
	return nil
}

// SaveChunks stores the chunks for a document, replacing any prior set.
func (s *documentStore) SaveChunks(ctx context.Context, chunks []domain.Chunk) error {
	if len(chunks) == 0 {
		return nil
	}

	tx, err := s.store.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("beginning transaction: %w", err)
	}
	defer tx.Rollback() //nolint:errcheck

	if _, err := tx.ExecContext(ctx,
		"DELETE FROM chunks WHERE document_id = ?", chunks[0].DocumentID); err != nil {
		return fmt.Errorf("clearing prior chunks: %w", err)
	}

	stmt, err := tx.PrepareContext(ctx, `
		INSERT INTO chunks (id, document_id, page, start_offset, end_offset, content, char_count, kind, position)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)
	`)
	if err != nil {
		return fmt.Errorf("preparing statement: %w", err)
	}
	defer stmt.Close()

	for i, chunk := range chunks {
		if _, err := stmt.ExecContext(ctx, chunk.ID, chunk.DocumentID, chunk.Page,
			chunk.StartOffset, chunk.EndOffset, chunk.Content, chunk.CharCount,
			string(chunk.Kind), i); err != nil {
			return fmt.Errorf("saving chunk: %w", err)
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("committing transaction: %w", err)
	}
	return nil
}

// GetDocument retrieves a document by ID.
func (s *documentStore) GetDocument(ctx context.Context, id string) (*domain.Document, error) {
	row := s.store.db.QueryRowContext(ctx, `
		SELECT id, title, source_path, sha256, page_count, pages, created_at
		FROM documents WHERE id = ?
	`, id)

	var doc domain.Document
	var pagesJSON string
	if err := row.Scan(&doc.ID, &doc.Title, &doc.SourcePath, &doc.SHA256,
		&doc.PageCount, &pagesJSON, &doc.CreatedAt); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, domain.ErrNotFound
		}
		return nil, fmt.Errorf("scanning document: %w", err)
	}
	if err := json.Unmarshal([]byte(pagesJSON), &doc.Pages); err != nil {
		return nil, fmt.Errorf("unmarshalling pages: %w", err)
	}
	return &doc, nil
}

// GetChunk retrieves a single chunk by ID.
func (s *documentStore) GetChunk(ctx context.Context, id string) (*domain.Chunk, error) {
	row := s.store.db.QueryRowContext(ctx, `
		SELECT id, document_id, page, start_offset, end_offset, content, char_count, kind
		FROM chunks WHERE id = ?
	`, id)

	var chunk domain.Chunk
	var kind string
	if err := row.Scan(&chunk.ID, &chunk.DocumentID, &chunk.Page, &chunk.StartOffset,
		&chunk.EndOffset, &chunk.Content, &chunk.CharCount, &kind); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, domain.ErrNotFound
		}
		return nil, fmt.Errorf("scanning chunk: %w", err)
	}
	chunk.Kind = domain.ChunkKind(kind)
	return &chunk, nil
}

// GetChunks retrieves all chunks of a document in chunk order.
func (s *documentStore) GetChunks(ctx context.Context, documentID string) ([]domain.Chunk, error) {
	rows, err := s.store.db.QueryContext(ctx, `
		SELECT id, document_id, page, start_offset, end_offset, content, char_count, kind
		FROM chunks WHERE document_id = ?
		ORDER BY position
	`, documentID)
	if err != nil {
		return nil, fmt.Errorf("querying chunks: %w", err)
	}
	defer rows.Close()

	var chunks []domain.Chunk //nolint:prealloc // size unknown from query
	for rows.Next() {
		var chunk domain.Chunk
		var kind string
		if err := rows.Scan(&chunk.ID, &chunk.DocumentID, &chunk.Page, &chunk.StartOffset,
			&chunk.EndOffset, &chunk.Content, &chunk.CharCount, &kind); err != nil {
			return nil, fmt.Errorf("scanning chunk: %w", err)
		}
		chunk.Kind = domain.ChunkKind(kind)
		chunks = append(chunks, chunk)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterating chunks: %w", err)
	}
	return chunks, nil
}

// ListDocuments returns all stored documents ordered by title.
func (s *documentStore) ListDocuments(ctx context.Context) ([]domain.Document, error) {
	rows, err := s.store.db.QueryContext(ctx, `
		SELECT id, title, source_path, sha256, page_count, pages, created_at
		FROM documents ORDER BY title, id
	`)
	if err != nil {
		return nil, fmt.Errorf("querying documents: %w", err)
	}
	defer rows.Close()

	var docs []domain.Document //nolint:prealloc // size unknown from query
	for rows.Next() {
		var doc domain.Document
		var pagesJSON string
		if err := rows.Scan(&doc.ID, &doc.Title, &doc.SourcePath, &doc.SHA256,
			&doc.PageCount, &pagesJSON, &doc.CreatedAt); err != nil {
			return nil, fmt.Errorf("scanning document: %w", err)
		}
		if err := json.Unmarshal([]byte(pagesJSON), &doc.Pages); err != nil {
			return nil, fmt.Errorf("unmarshalling pages: %w", err)
		}
		docs = append(docs, doc)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterating documents: %w", err)
	}
	return docs, nil
}

// DeleteDocument removes a document and its chunks, returning the IDs
// of the removed chunks.
func (s *documentStore) DeleteDocument(ctx context.Context, id string) ([]string, error) {
	rows, err := s.store.db.QueryContext(ctx, "SELECT id FROM chunks WHERE document_id = ?", id)
	if err != nil {
		return nil, fmt.Errorf("querying chunk ids: %w", err)
	}
	defer rows.Close()

	var chunkIDs []string
	for rows.Next() {
		var chunkID string
		if err := rows.Scan(&chunkID); err != nil {
			return nil, fmt.Errorf("scanning chunk id: %w", err)
		}
		chunkIDs = append(chunkIDs, chunkID)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterating chunk ids: %w", err)
	}

	res, err := s.store.db.ExecContext(ctx, "DELETE FROM documents WHERE id = ?", id)
	if err != nil {
		return nil, fmt.Errorf("deleting document: %w", err)
	}
	if n, err := res.RowsAffected(); err == nil && n == 0 {
		return nil, domain.ErrNotFound
	}

	return chunkIDs, nil
}

// Close is a no-op; the parent store owns the connection.
func (s *documentStore) Close() error {
	return nil
}

// ==================== Vector Index ====================

// vectorIndex implements driven.VectorIndex.
// Similarity is computed in process: candidate vectors are loaded with
// an optional document filter and ranked by cosine similarity with the
// deterministic page/chunk-ID tie-break.
type vectorIndex struct {
	store *Store
}

var _ driven.VectorIndex = (*vectorIndex)(nil)

// Upsert inserts or replaces the record for chunkID. The single
// INSERT .. ON CONFLICT statement keeps the write atomic per chunk.
func (x *vectorIndex) Upsert(ctx context.Context, chunkID string, vector []float32, meta driven.RecordMetadata) error {
	_, err := x.store.db.ExecContext(ctx, `
		INSERT INTO vectors (chunk_id, document_id, page, title, embedding)
		VALUES (?, ?, ?, ?, ?)
		ON CONFLICT(chunk_id) DO UPDATE SET
			document_id = excluded.document_id,
			page = excluded.page,
			title = excluded.title,
			embedding = excluded.embedding
	`, chunkID, meta.DocumentID, meta.Page, meta.Title, float32SliceToBytes(vector))
	if err != nil {
		return fmt.Errorf("upserting vector: %w", err)
	}
	return nil
}

// Query ranks stored vectors against the query vector.
func (x *vectorIndex) Query(ctx context.Context, vector []float32, k int, filter driven.QueryFilter) ([]driven.VectorHit, error) {
	query := "SELECT chunk_id, document_id, page, title, embedding FROM vectors"
	args := make([]any, 0, len(filter.DocumentIDs))
	if len(filter.DocumentIDs) > 0 {
		placeholders := strings.Repeat("?,", len(filter.DocumentIDs))
		query += " WHERE document_id IN (" + placeholders[:len(placeholders)-1] + ")"
		for _, id := range filter.DocumentIDs {
			args = append(args, id)
		}
	}

	rows, err := x.store.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("querying vectors: %w", err)
	}
	defer rows.Close()

	var hits []driven.VectorHit
	for rows.Next() {
		var hit driven.VectorHit
		var blob []byte
		if err := rows.Scan(&hit.ChunkID, &hit.Metadata.DocumentID, &hit.Metadata.Page,
			&hit.Metadata.Title, &blob); err != nil {
			return nil, fmt.Errorf("scanning vector: %w", err)
		}
		hit.Score = cosine(vector, bytesToFloat32Slice(blob))
		hits = append(hits, hit)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterating vectors: %w", err)
	}

	sort.Slice(hits, func(i, j int) bool {
		if hits[i].Score != hits[j].Score {
			return hits[i].Score > hits[j].Score
		}
		if hits[i].Metadata.Page != hits[j].Metadata.Page {
			return hits[i].Metadata.Page < hits[j].Metadata.Page
		}
		return domain.ChunkIDLess(hits[i].ChunkID, hits[j].ChunkID)
	})

	if k > 0 && len(hits) > k {
		hits = hits[:k]
	}
	return hits, nil
}

// Delete removes records by chunk ID.
func (x *vectorIndex) Delete(ctx context.Context, chunkIDs []string) error {
	if len(chunkIDs) == 0 {
		return nil
	}
	placeholders := strings.Repeat("?,", len(chunkIDs))
	args := make([]any, len(chunkIDs))
	for i, id := range chunkIDs {
		args[i] = id
	}
	_, err := x.store.db.ExecContext(ctx,
		"DELETE FROM vectors WHERE chunk_id IN ("+placeholders[:len(placeholders)-1]+")", args...)
	if err != nil {
		return fmt.Errorf("deleting vectors: %w", err)
	}
	return nil
}

// ModelName returns the embedding model recorded on first write.
func (x *vectorIndex) ModelName() string {
	var model string
	row := x.store.db.QueryRow("SELECT value FROM index_meta WHERE key = ?", modelMetaKey)
	if err := row.Scan(&model); err != nil {
		return ""
	}
	return model
}

// SetModelName records the embedding model the index is built with.
func (x *vectorIndex) SetModelName(ctx context.Context, model string) error {
	_, err := x.store.db.ExecContext(ctx, `
		INSERT INTO index_meta (key, value) VALUES (?, ?)
		ON CONFLICT(key) DO UPDATE SET value = excluded.value
	`, modelMetaKey, model)
	if err != nil {
		return fmt.Errorf("recording embedding model: %w", err)
	}
	return nil
}

// Close is a no-op; the parent store owns the connection.
func (x *vectorIndex) Close() error {
	return nil
}

// ==================== Helper Functions ====================

// float32SliceToBytes converts a []float32 to a byte slice for storage.
func float32SliceToBytes(floats []float32) []byte {
	if len(floats) == 0 {
		return nil
	}
	buf := make([]byte, len(floats)*4)
	for i, f := range floats {
		binary.LittleEndian.PutUint32(buf[i*4:], math.Float32bits(f))
	}
	return buf
}

// bytesToFloat32Slice converts a byte slice back to []float32.
func bytesToFloat32Slice(data []byte) []float32 {
	if len(data) == 0 {
		return nil
	}
	floats := make([]float32, len(data)/4)
	for i := range floats {
		floats[i] = math.Float32frombits(binary.LittleEndian.Uint32(data[i*4:]))
	}
	return floats
}

// cosine computes cosine similarity between two vectors.
func cosine(a, b []float32) float64 {
	if len(a) != len(b) || len(a) == 0 {
		return 0
	}
	var dot, normA, normB float64
	for i := range a {
		dot += float64(a[i]) * float64(b[i])
		normA += float64(a[i]) * float64(a[i])
		normB += float64(b[i]) * float64(b[i])
	}
	if normA == 0 || normB == 0 {
		return 0
	}
	return dot / (math.Sqrt(normA) * math.Sqrt(normB))
}
