package storage

import (
	"context"
	"time"

	"github.com/dshills/pdfquery-mcp/pkg/types"
)

// Storage defines the interface for persisting and querying the document corpus
type Storage interface {
	// Corpus operations
	SaveCorpus(ctx context.Context, corpus *Corpus) error
	GetCorpus(ctx context.Context) (*Corpus, error)
	ClearCorpus(ctx context.Context) error

	// Document operations
	InsertDocument(ctx context.Context, doc *Document) error
	ListDocuments(ctx context.Context) ([]*Document, error)

	// Chunk operations
	InsertChunk(ctx context.Context, chunk *Chunk) error
	GetChunk(ctx context.Context, chunkID int64) (*Chunk, error)
	GetChunks(ctx context.Context, chunkIDs []int64) (map[int64]*Chunk, error)
	GetChunkByHash(ctx context.Context, contentHash [32]byte) (*Chunk, error)
	CountChunks(ctx context.Context) (int, error)

	// Embedding operations
	InsertEmbedding(ctx context.Context, embedding *Embedding) error
	GetEmbedding(ctx context.Context, chunkID int64) (*Embedding, error)

	// Search operations
	SearchVector(ctx context.Context, vector []float32, limit int) ([]VectorResult, error)
	SearchText(ctx context.Context, query string, limit int) ([]TextResult, error)

	// Status operations
	GetStatus(ctx context.Context) (*CorpusStatus, error)

	// Database operations
	Close() error
	BeginTx(ctx context.Context) (Tx, error)
}

// Tx represents a database transaction
type Tx interface {
	Commit() error
	Rollback() error
	Storage // Embed Storage interface for transaction operations
}

// Corpus is the single metadata row describing the current build
type Corpus struct {
	BuildID            string
	EmbeddingProvider  string
	EmbeddingModel     string
	EmbeddingDimension int
	DocumentCount      int
	ChunkCount         int
	DuplicateCount     int
	BuiltAt            time.Time
}

// Document status values
const (
	DocumentIndexed = "indexed"
	DocumentFailed  = "failed"
	DocumentEmpty   = "empty"
)

// Document represents a source file considered by the last build
type Document struct {
	ID          int64
	Path        string
	Name        string
	ContentHash [32]byte
	SizeBytes   int64
	Status      string
	Error       *string // Nullable
	ChunkCount  int
	CreatedAt   time.Time
}

// Chunk represents a stored passage
type Chunk struct {
	ID           int64
	DocumentID   int64
	DocumentName string // Populated on reads
	Content      string
	ContentHash  [32]byte
	PageNumber   *int // Nullable
	Header1      string
	Header2      string
	Ordinal      int
	CreatedAt    time.Time
}

// Embedding represents a vector embedding for a chunk
type Embedding struct {
	ChunkID   int64
	Vector    []byte // Serialized float32 array
	Dimension int
	CreatedAt time.Time
}

// VectorResult represents a result from vector similarity search
type VectorResult struct {
	ChunkID         int64
	SimilarityScore float64
}

// TextResult represents a result from full-text search
type TextResult struct {
	ChunkID   int64
	BM25Score float64 // Negated bm25(), higher is better
}

// CorpusStatus contains statistics about the stored corpus
type CorpusStatus struct {
	Corpus          *Corpus // Nil before the first build
	DocumentsCount  int
	FailedDocuments int
	ChunksCount     int
	EmbeddingsCount int
	IndexSizeMB     float64
	Health          HealthStatus
}

// HealthStatus represents the health of the index
type HealthStatus struct {
	DatabaseAccessible  bool
	EmbeddingsAvailable bool
	FTSIndexesBuilt     bool
}

// ToTypesChunk converts a storage Chunk to types.Chunk
func (c *Chunk) ToTypesChunk() types.Chunk {
	return types.Chunk{
		ID:             c.ID,
		Content:        c.Content,
		ContentHash:    c.ContentHash,
		SourceDocument: c.DocumentName,
		PageNumber:     c.PageNumber,
		Header1:        c.Header1,
		Header2:        c.Header2,
		Ordinal:        c.Ordinal,
	}
}

// FromTypesChunk converts types.Chunk to a storage Chunk
func FromTypesChunk(c types.Chunk, documentID int64) *Chunk {
	return &Chunk{
		ID:           c.ID,
		DocumentID:   documentID,
		DocumentName: c.SourceDocument,
		Content:      c.Content,
		ContentHash:  c.ContentHash,
		PageNumber:   c.PageNumber,
		Header1:      c.Header1,
		Header2:      c.Header2,
		Ordinal:      c.Ordinal,
	}
}
