package storage

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"
)

var (
	// ErrNotFound is returned when a requested entity doesn't exist
	ErrNotFound = errors.New("not found")
	// ErrAlreadyExists is returned when trying to create a duplicate entity
	ErrAlreadyExists = errors.New("already exists")
)

// SQLiteStorage implements the Storage interface using SQLite
type SQLiteStorage struct {
	db *sql.DB
}

// openDatabase opens a SQLite database with appropriate settings
func openDatabase(dbPath string) (*sql.DB, error) {
	db, err := sql.Open(DriverName, dbPath)
	if err != nil {
		return nil, err
	}

	// Enable WAL mode for better concurrency
	if _, err := db.Exec("PRAGMA journal_mode=WAL"); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("failed to enable WAL mode: %w", err)
	}

	// Set connection pool settings
	db.SetMaxOpenConns(1) // SQLite benefits from single writer
	db.SetMaxIdleConns(1)
	db.SetConnMaxLifetime(0)

	if _, err := db.Exec("PRAGMA foreign_keys=ON"); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("failed to enable foreign keys: %w", err)
	}

	return db, nil
}

// NewSQLiteStorage creates a new SQLite storage instance
func NewSQLiteStorage(dbPath string) (*SQLiteStorage, error) {
	db, err := openDatabase(dbPath)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	if err := ApplyMigrations(context.Background(), db); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("failed to apply migrations: %w", err)
	}

	return &SQLiteStorage{db: db}, nil
}

// NewWithDB wraps an already opened and migrated database handle.
func NewWithDB(db *sql.DB) *SQLiteStorage {
	return &SQLiteStorage{db: db}
}

// Close closes the database connection
func (s *SQLiteStorage) Close() error {
	return s.db.Close()
}

// BeginTx starts a new transaction
func (s *SQLiteStorage) BeginTx(ctx context.Context) (Tx, error) {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, err
	}
	return &sqliteTx{tx: tx, storage: s}, nil
}

// querier is an interface that both *sql.DB and *sql.Tx implement
type querier interface {
	ExecContext(ctx context.Context, query string, args ...interface{}) (sql.Result, error)
	QueryContext(ctx context.Context, query string, args ...interface{}) (*sql.Rows, error)
	QueryRowContext(ctx context.Context, query string, args ...interface{}) *sql.Row
}

// sqliteTx wraps a SQL transaction
type sqliteTx struct {
	tx      *sql.Tx
	storage *SQLiteStorage
}

func (t *sqliteTx) Commit() error {
	return t.tx.Commit()
}

func (t *sqliteTx) Rollback() error {
	return t.tx.Rollback()
}

func (t *sqliteTx) querier() querier {
	return t.tx
}

func (s *SQLiteStorage) querier() querier {
	return s.db
}

// Corpus operations

func (s *SQLiteStorage) saveCorpusWithQuerier(ctx context.Context, q querier, corpus *Corpus) error {
	query := `
		INSERT INTO corpus (id, build_id, embedding_provider, embedding_model, embedding_dimension,
		                    document_count, chunk_count, duplicate_count, built_at)
		VALUES (1, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(id) DO UPDATE SET
			build_id = excluded.build_id,
			embedding_provider = excluded.embedding_provider,
			embedding_model = excluded.embedding_model,
			embedding_dimension = excluded.embedding_dimension,
			document_count = excluded.document_count,
			chunk_count = excluded.chunk_count,
			duplicate_count = excluded.duplicate_count,
			built_at = excluded.built_at
	`
	if corpus.BuiltAt.IsZero() {
		corpus.BuiltAt = time.Now().UTC()
	}
	_, err := q.ExecContext(ctx, query,
		corpus.BuildID, corpus.EmbeddingProvider, corpus.EmbeddingModel, corpus.EmbeddingDimension,
		corpus.DocumentCount, corpus.ChunkCount, corpus.DuplicateCount, corpus.BuiltAt)
	if err != nil {
		return fmt.Errorf("failed to save corpus: %w", err)
	}
	return nil
}

func (s *SQLiteStorage) SaveCorpus(ctx context.Context, corpus *Corpus) error {
	return s.saveCorpusWithQuerier(ctx, s.querier(), corpus)
}

func (s *SQLiteStorage) getCorpusWithQuerier(ctx context.Context, q querier) (*Corpus, error) {
	query := `
		SELECT build_id, embedding_provider, embedding_model, embedding_dimension,
		       document_count, chunk_count, duplicate_count, built_at
		FROM corpus
		WHERE id = 1
	`
	var corpus Corpus
	err := q.QueryRowContext(ctx, query).Scan(
		&corpus.BuildID, &corpus.EmbeddingProvider, &corpus.EmbeddingModel, &corpus.EmbeddingDimension,
		&corpus.DocumentCount, &corpus.ChunkCount, &corpus.DuplicateCount, &corpus.BuiltAt,
	)
	if err == sql.ErrNoRows {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	return &corpus, nil
}

func (s *SQLiteStorage) GetCorpus(ctx context.Context) (*Corpus, error) {
	return s.getCorpusWithQuerier(ctx, s.querier())
}

// clearCorpusWithQuerier removes every row of the corpus. Dependent rows go
// first so the statements also work with foreign keys enforced.
func (s *SQLiteStorage) clearCorpusWithQuerier(ctx context.Context, q querier) error {
	statements := []string{
		"DELETE FROM embeddings",
		"DELETE FROM chunks",
		"DELETE FROM documents",
		"DELETE FROM corpus",
	}
	for _, stmt := range statements {
		if _, err := q.ExecContext(ctx, stmt); err != nil {
			return fmt.Errorf("failed to clear corpus (%s): %w", stmt, err)
		}
	}
	return nil
}

func (s *SQLiteStorage) ClearCorpus(ctx context.Context) error {
	return s.clearCorpusWithQuerier(ctx, s.querier())
}

// Document operations

func (s *SQLiteStorage) insertDocumentWithQuerier(ctx context.Context, q querier, doc *Document) error {
	query := `
		INSERT INTO documents (path, name, content_hash, size_bytes, status, error, chunk_count, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)
	`
	now := time.Now()
	result, err := q.ExecContext(ctx, query,
		doc.Path, doc.Name, doc.ContentHash[:], doc.SizeBytes, doc.Status, doc.Error, doc.ChunkCount, now)
	if err != nil {
		if isUniqueViolation(err) {
			return fmt.Errorf("document %s: %w", doc.Path, ErrAlreadyExists)
		}
		return fmt.Errorf("failed to insert document: %w", err)
	}

	id, err := result.LastInsertId()
	if err != nil {
		return err
	}
	doc.ID = id
	doc.CreatedAt = now
	return nil
}

func (s *SQLiteStorage) InsertDocument(ctx context.Context, doc *Document) error {
	return s.insertDocumentWithQuerier(ctx, s.querier(), doc)
}

func (s *SQLiteStorage) listDocumentsWithQuerier(ctx context.Context, q querier) ([]*Document, error) {
	query := `
		SELECT id, path, name, content_hash, size_bytes, status, error, chunk_count, created_at
		FROM documents
		ORDER BY path
	`
	rows, err := q.QueryContext(ctx, query)
	if err != nil {
		return nil, err
	}
	defer func() { _ = rows.Close() }()

	var docs []*Document
	for rows.Next() {
		var doc Document
		var hashBytes []byte
		var errMsg sql.NullString
		if err := rows.Scan(&doc.ID, &doc.Path, &doc.Name, &hashBytes, &doc.SizeBytes,
			&doc.Status, &errMsg, &doc.ChunkCount, &doc.CreatedAt); err != nil {
			return nil, err
		}
		copy(doc.ContentHash[:], hashBytes)
		if errMsg.Valid {
			msg := errMsg.String
			doc.Error = &msg
		}
		docs = append(docs, &doc)
	}
	return docs, rows.Err()
}

func (s *SQLiteStorage) ListDocuments(ctx context.Context) ([]*Document, error) {
	return s.listDocumentsWithQuerier(ctx, s.querier())
}

// Chunk operations

func (s *SQLiteStorage) insertChunkWithQuerier(ctx context.Context, q querier, chunk *Chunk) error {
	query := `
		INSERT INTO chunks (document_id, content, content_hash, page_number, heading_1, heading_2, ordinal, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)
	`
	var page sql.NullInt64
	if chunk.PageNumber != nil {
		page = sql.NullInt64{Int64: int64(*chunk.PageNumber), Valid: true}
	}
	now := time.Now()
	result, err := q.ExecContext(ctx, query,
		chunk.DocumentID, chunk.Content, chunk.ContentHash[:], page,
		chunk.Header1, chunk.Header2, chunk.Ordinal, now)
	if err != nil {
		if isUniqueViolation(err) {
			return fmt.Errorf("chunk content hash: %w", ErrAlreadyExists)
		}
		return fmt.Errorf("failed to insert chunk: %w", err)
	}

	id, err := result.LastInsertId()
	if err != nil {
		return err
	}
	chunk.ID = id
	chunk.CreatedAt = now
	return nil
}

func (s *SQLiteStorage) InsertChunk(ctx context.Context, chunk *Chunk) error {
	return s.insertChunkWithQuerier(ctx, s.querier(), chunk)
}

const chunkColumns = `
	c.id, c.document_id, d.name, c.content, c.content_hash, c.page_number,
	c.heading_1, c.heading_2, c.ordinal, c.created_at
`

// scanner is implemented by *sql.Row and *sql.Rows
type scanner interface {
	Scan(dest ...interface{}) error
}

func scanChunk(row scanner) (*Chunk, error) {
	var chunk Chunk
	var hashBytes []byte
	var page sql.NullInt64
	if err := row.Scan(&chunk.ID, &chunk.DocumentID, &chunk.DocumentName, &chunk.Content, &hashBytes,
		&page, &chunk.Header1, &chunk.Header2, &chunk.Ordinal, &chunk.CreatedAt); err != nil {
		return nil, err
	}
	copy(chunk.ContentHash[:], hashBytes)
	if page.Valid {
		p := int(page.Int64)
		chunk.PageNumber = &p
	}
	return &chunk, nil
}

func (s *SQLiteStorage) getChunkWithQuerier(ctx context.Context, q querier, chunkID int64) (*Chunk, error) {
	query := `SELECT ` + chunkColumns + `
		FROM chunks c
		INNER JOIN documents d ON c.document_id = d.id
		WHERE c.id = ?
	`
	chunk, err := scanChunk(q.QueryRowContext(ctx, query, chunkID))
	if err == sql.ErrNoRows {
		return nil, ErrNotFound
	}
	return chunk, err
}

func (s *SQLiteStorage) GetChunk(ctx context.Context, chunkID int64) (*Chunk, error) {
	return s.getChunkWithQuerier(ctx, s.querier(), chunkID)
}

func (s *SQLiteStorage) getChunksWithQuerier(ctx context.Context, q querier, chunkIDs []int64) (map[int64]*Chunk, error) {
	chunks := make(map[int64]*Chunk, len(chunkIDs))
	if len(chunkIDs) == 0 {
		return chunks, nil
	}

	placeholders := make([]string, len(chunkIDs))
	args := make([]interface{}, len(chunkIDs))
	for i, id := range chunkIDs {
		placeholders[i] = "?"
		args[i] = id
	}

	query := `SELECT ` + chunkColumns + `
		FROM chunks c
		INNER JOIN documents d ON c.document_id = d.id
		WHERE c.id IN (` + strings.Join(placeholders, ",") + `)`

	rows, err := q.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to fetch chunks: %w", err)
	}
	defer func() { _ = rows.Close() }()

	for rows.Next() {
		chunk, err := scanChunk(rows)
		if err != nil {
			return nil, err
		}
		chunks[chunk.ID] = chunk
	}
	return chunks, rows.Err()
}

func (s *SQLiteStorage) GetChunks(ctx context.Context, chunkIDs []int64) (map[int64]*Chunk, error) {
	return s.getChunksWithQuerier(ctx, s.querier(), chunkIDs)
}

func (s *SQLiteStorage) getChunkByHashWithQuerier(ctx context.Context, q querier, contentHash [32]byte) (*Chunk, error) {
	query := `SELECT ` + chunkColumns + `
		FROM chunks c
		INNER JOIN documents d ON c.document_id = d.id
		WHERE c.content_hash = ?
	`
	chunk, err := scanChunk(q.QueryRowContext(ctx, query, contentHash[:]))
	if err == sql.ErrNoRows {
		return nil, ErrNotFound
	}
	return chunk, err
}

func (s *SQLiteStorage) GetChunkByHash(ctx context.Context, contentHash [32]byte) (*Chunk, error) {
	return s.getChunkByHashWithQuerier(ctx, s.querier(), contentHash)
}

func (s *SQLiteStorage) countChunksWithQuerier(ctx context.Context, q querier) (int, error) {
	var count int
	err := q.QueryRowContext(ctx, "SELECT COUNT(*) FROM chunks").Scan(&count)
	return count, err
}

func (s *SQLiteStorage) CountChunks(ctx context.Context) (int, error) {
	return s.countChunksWithQuerier(ctx, s.querier())
}

// Embedding operations

func (s *SQLiteStorage) insertEmbeddingWithQuerier(ctx context.Context, q querier, embedding *Embedding) error {
	query := `
		INSERT INTO embeddings (chunk_id, vector, dimension, created_at)
		VALUES (?, ?, ?, ?)
	`
	now := time.Now()
	_, err := q.ExecContext(ctx, query, embedding.ChunkID, embedding.Vector, embedding.Dimension, now)
	if err != nil {
		return fmt.Errorf("failed to insert embedding: %w", err)
	}
	embedding.CreatedAt = now
	return nil
}

func (s *SQLiteStorage) InsertEmbedding(ctx context.Context, embedding *Embedding) error {
	return s.insertEmbeddingWithQuerier(ctx, s.querier(), embedding)
}

func (s *SQLiteStorage) getEmbeddingWithQuerier(ctx context.Context, q querier, chunkID int64) (*Embedding, error) {
	query := `
		SELECT chunk_id, vector, dimension, created_at
		FROM embeddings
		WHERE chunk_id = ?
	`
	var emb Embedding
	err := q.QueryRowContext(ctx, query, chunkID).Scan(&emb.ChunkID, &emb.Vector, &emb.Dimension, &emb.CreatedAt)
	if err == sql.ErrNoRows {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	return &emb, nil
}

func (s *SQLiteStorage) GetEmbedding(ctx context.Context, chunkID int64) (*Embedding, error) {
	return s.getEmbeddingWithQuerier(ctx, s.querier(), chunkID)
}

// Search operations

func (s *SQLiteStorage) SearchVector(ctx context.Context, queryVector []float32, limit int) ([]VectorResult, error) {
	return searchVector(ctx, s.querier(), queryVector, limit)
}

func (s *SQLiteStorage) SearchText(ctx context.Context, query string, limit int) ([]TextResult, error) {
	return searchText(ctx, s.querier(), query, limit)
}

// Status operations

func (s *SQLiteStorage) getStatusWithQuerier(ctx context.Context, q querier) (*CorpusStatus, error) {
	status := &CorpusStatus{}

	corpus, err := s.getCorpusWithQuerier(ctx, q)
	if err != nil && !errors.Is(err, ErrNotFound) {
		return nil, fmt.Errorf("failed to read corpus: %w", err)
	}
	status.Corpus = corpus

	counts := []struct {
		query string
		dest  *int
	}{
		{"SELECT COUNT(*) FROM documents", &status.DocumentsCount},
		{"SELECT COUNT(*) FROM documents WHERE status != 'indexed'", &status.FailedDocuments},
		{"SELECT COUNT(*) FROM chunks", &status.ChunksCount},
		{"SELECT COUNT(*) FROM embeddings", &status.EmbeddingsCount},
	}
	for _, c := range counts {
		if err := q.QueryRowContext(ctx, c.query).Scan(c.dest); err != nil {
			return nil, fmt.Errorf("failed to count (%s): %w", c.query, err)
		}
	}

	var pageCount, pageSize int
	err = q.QueryRowContext(ctx, "PRAGMA page_count").Scan(&pageCount)
	if err == nil {
		_ = q.QueryRowContext(ctx, "PRAGMA page_size").Scan(&pageSize)
		status.IndexSizeMB = float64(pageCount*pageSize) / (1024 * 1024)
	}

	status.Health = HealthStatus{
		DatabaseAccessible:  true,
		EmbeddingsAvailable: status.EmbeddingsCount > 0,
		FTSIndexesBuilt:     true, // created by migrations
	}

	return status, nil
}

func (s *SQLiteStorage) GetStatus(ctx context.Context) (*CorpusStatus, error) {
	return s.getStatusWithQuerier(ctx, s.querier())
}

// isUniqueViolation matches the constraint error text of both SQLite drivers
func isUniqueViolation(err error) bool {
	return err != nil && strings.Contains(err.Error(), "UNIQUE constraint failed")
}

// Transaction implementations

func (t *sqliteTx) SaveCorpus(ctx context.Context, corpus *Corpus) error {
	return t.storage.saveCorpusWithQuerier(ctx, t.querier(), corpus)
}

func (t *sqliteTx) GetCorpus(ctx context.Context) (*Corpus, error) {
	return t.storage.getCorpusWithQuerier(ctx, t.querier())
}

func (t *sqliteTx) ClearCorpus(ctx context.Context) error {
	return t.storage.clearCorpusWithQuerier(ctx, t.querier())
}

func (t *sqliteTx) InsertDocument(ctx context.Context, doc *Document) error {
	return t.storage.insertDocumentWithQuerier(ctx, t.querier(), doc)
}

func (t *sqliteTx) ListDocuments(ctx context.Context) ([]*Document, error) {
	return t.storage.listDocumentsWithQuerier(ctx, t.querier())
}

func (t *sqliteTx) InsertChunk(ctx context.Context, chunk *Chunk) error {
	return t.storage.insertChunkWithQuerier(ctx, t.querier(), chunk)
}

func (t *sqliteTx) GetChunk(ctx context.Context, chunkID int64) (*Chunk, error) {
	return t.storage.getChunkWithQuerier(ctx, t.querier(), chunkID)
}

func (t *sqliteTx) GetChunks(ctx context.Context, chunkIDs []int64) (map[int64]*Chunk, error) {
	return t.storage.getChunksWithQuerier(ctx, t.querier(), chunkIDs)
}

func (t *sqliteTx) GetChunkByHash(ctx context.Context, contentHash [32]byte) (*Chunk, error) {
	return t.storage.getChunkByHashWithQuerier(ctx, t.querier(), contentHash)
}

func (t *sqliteTx) CountChunks(ctx context.Context) (int, error) {
	return t.storage.countChunksWithQuerier(ctx, t.querier())
}

func (t *sqliteTx) InsertEmbedding(ctx context.Context, embedding *Embedding) error {
	return t.storage.insertEmbeddingWithQuerier(ctx, t.querier(), embedding)
}

func (t *sqliteTx) GetEmbedding(ctx context.Context, chunkID int64) (*Embedding, error) {
	return t.storage.getEmbeddingWithQuerier(ctx, t.querier(), chunkID)
}

func (t *sqliteTx) SearchVector(ctx context.Context, vector []float32, limit int) ([]VectorResult, error) {
	return searchVector(ctx, t.querier(), vector, limit)
}

func (t *sqliteTx) SearchText(ctx context.Context, query string, limit int) ([]TextResult, error) {
	return searchText(ctx, t.querier(), query, limit)
}

func (t *sqliteTx) GetStatus(ctx context.Context) (*CorpusStatus, error) {
	return t.storage.getStatusWithQuerier(ctx, t.querier())
}

func (t *sqliteTx) Close() error {
	// Transactions don't close the underlying connection
	return nil
}

func (t *sqliteTx) BeginTx(ctx context.Context) (Tx, error) {
	return nil, errors.New("nested transactions not supported")
}
