package searcher

import (
	"context"
	"fmt"

	"github.com/dshills/pdfquery-mcp/internal/embedder"
	"github.com/dshills/pdfquery-mcp/internal/storage"
	"github.com/dshills/pdfquery-mcp/pkg/types"
)

// Index returns chunk IDs ranked by relevance to a query, best first
type Index interface {
	Search(ctx context.Context, query string, limit int) ([]types.RankedID, error)
}

// LexicalIndex ranks chunks with BM25 over the FTS5 table
type LexicalIndex struct {
	storage storage.Storage
}

// NewLexicalIndex creates a BM25 index over store
func NewLexicalIndex(store storage.Storage) *LexicalIndex {
	return &LexicalIndex{storage: store}
}

// Search returns at most limit chunks. A query without any word yields an
// empty list.
func (l *LexicalIndex) Search(ctx context.Context, query string, limit int) ([]types.RankedID, error) {
	results, err := l.storage.SearchText(ctx, query, limit)
	if err != nil {
		return nil, fmt.Errorf("lexical search: %w", err)
	}

	ranked := make([]types.RankedID, len(results))
	for i, r := range results {
		ranked[i] = types.RankedID{ChunkID: r.ChunkID, Score: r.BM25Score}
	}
	return ranked, nil
}

// SemanticIndex ranks chunks by cosine similarity between the query
// embedding and stored chunk embeddings
type SemanticIndex struct {
	storage  storage.Storage
	embedder embedder.Embedder
}

// NewSemanticIndex creates a vector index. emb must be the embedder the
// corpus was built with.
func NewSemanticIndex(store storage.Storage, emb embedder.Embedder) *SemanticIndex {
	return &SemanticIndex{storage: store, embedder: emb}
}

// Search embeds query and returns the limit most similar chunks. A failed
// query embedding is an ErrExternalService error.
func (s *SemanticIndex) Search(ctx context.Context, query string, limit int) ([]types.RankedID, error) {
	emb, err := s.embedder.GenerateEmbedding(ctx, embedder.EmbeddingRequest{Text: query})
	if err != nil {
		return nil, types.WrapError(types.ErrExternalService, "searcher.embed_query", err)
	}
	if dim := s.embedder.Dimension(); len(emb.Vector) != dim {
		return nil, types.NewError(types.ErrConfiguration, "searcher.embed_query",
			fmt.Sprintf("query embedding has dimension %d, want %d", len(emb.Vector), dim))
	}

	results, err := s.storage.SearchVector(ctx, emb.Vector, limit)
	if err != nil {
		return nil, fmt.Errorf("semantic search: %w", err)
	}

	ranked := make([]types.RankedID, len(results))
	for i, r := range results {
		ranked[i] = types.RankedID{ChunkID: r.ChunkID, Score: r.SimilarityScore}
	}
	return ranked, nil
}
