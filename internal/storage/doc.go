// Package storage provides SQLite-based persistence for the document corpus.
//
// The storage layer manages:
//   - Corpus metadata (build ID, embedding provider/model/dimension)
//   - Documents considered by the last build and their status
//   - Chunks, unique by SHA-256 content hash
//   - Vector embeddings for chunks
//   - The FTS5 full-text index used for BM25 ranking
//
// # Database Schema
//
// Tables:
//   - corpus: single metadata row of the current build
//   - documents: source files with status indexed/failed/empty
//   - chunks: passages with nullable page number and heading path
//   - embeddings: float32 vectors stored as little-endian blobs
//   - chunks_fts: FTS5 index kept in sync with chunks by triggers
//
// # Replacing the Corpus
//
// The corpus is only ever replaced as a whole:
//
//	err := storage.ReplaceCorpus(ctx, db, &storage.Snapshot{
//	    Corpus:    &storage.Corpus{BuildID: id, EmbeddingModel: "text-embedding-3-small"},
//	    Documents: docs,
//	})
//
// ReplaceCorpus clears and repopulates every table inside one transaction, so
// a failed build leaves the previous corpus untouched.
//
// # Search
//
// SearchText ranks with bm25(). Free text is reduced to lowercase words, each
// quoted and OR-ed, so user input never reaches FTS5 as query syntax.
// SearchVector ranks by cosine similarity, in SQL when the sqlite-vec
// extension is compiled in and in Go otherwise. Both break score ties by
// ascending chunk ID.
//
// # Build Modes
//
//	go build ./...                                  # modernc.org/sqlite, pure Go
//	CGO_ENABLED=1 go build -tags "sqlite_vec,sqlite_fts5" ./...   # mattn/go-sqlite3
package storage
