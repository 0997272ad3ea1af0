package engine

import (
	"context"
	"fmt"
	"time"

	"github.com/dshills/pdfquery-mcp/internal/indexer"
)

// Status is a point-in-time view of the engine and its stored corpus
type Status struct {
	State           string        `json:"state"`
	BuildInProgress bool          `json:"build_in_progress"`
	LastError       string        `json:"last_error,omitempty"`
	Corpus          *CorpusInfo   `json:"corpus,omitempty"`
	Statistics      StatusCounts  `json:"statistics"`
	Health          HealthInfo    `json:"health"`
	Documents       []DocumentRow `json:"documents"`
	LastBuild       *BuildInfo    `json:"last_build,omitempty"`
}

// CorpusInfo describes the persisted build
type CorpusInfo struct {
	BuildID            string    `json:"build_id"`
	EmbeddingProvider  string    `json:"embedding_provider"`
	EmbeddingModel     string    `json:"embedding_model"`
	EmbeddingDimension int       `json:"embedding_dimension"`
	DocumentCount      int       `json:"document_count"`
	ChunkCount         int       `json:"chunk_count"`
	DuplicateCount     int       `json:"duplicate_count"`
	BuiltAt            time.Time `json:"built_at"`
}

// StatusCounts are row counts of the store
type StatusCounts struct {
	Documents       int    `json:"documents"`
	FailedDocuments int    `json:"failed_documents"`
	Chunks          int    `json:"chunks"`
	Embeddings      int    `json:"embeddings"`
	IndexSizeMB     string `json:"index_size_mb"`
}

// HealthInfo mirrors storage health checks
type HealthInfo struct {
	DatabaseAccessible  bool `json:"database_accessible"`
	EmbeddingsAvailable bool `json:"embeddings_available"`
	FTSIndexesBuilt     bool `json:"fts_indexes_built"`
}

// DocumentRow is one document considered by the last build
type DocumentRow struct {
	Name   string `json:"name"`
	Path   string `json:"path"`
	Status string `json:"status"`
	Chunks int    `json:"chunks"`
	Error  string `json:"error,omitempty"`
}

// BuildInfo summarizes the last successful build of this process
type BuildInfo struct {
	BuildID           string   `json:"build_id"`
	DocumentsFound    int      `json:"documents_found"`
	DocumentsIndexed  int      `json:"documents_indexed"`
	DocumentsFailed   int      `json:"documents_failed"`
	DuplicatesDropped int      `json:"duplicates_dropped"`
	ChunksStored      int      `json:"chunks_stored"`
	DurationMs        int64    `json:"duration_ms"`
	Errors            []string `json:"errors,omitempty"`
}

// Status reads the engine state and the stored corpus. It does not wait for
// a running build.
func (e *Engine) Status(ctx context.Context) (*Status, error) {
	out := &Status{
		State:           e.State().String(),
		BuildInProgress: e.lock.Held(),
		Documents:       make([]DocumentRow, 0),
	}

	e.mu.Lock()
	if e.lastErr != nil {
		out.LastError = e.lastErr.Error()
	}
	if e.lastStats != nil {
		out.LastBuild = buildInfo(e.lastStats)
	}
	e.mu.Unlock()

	status, err := e.storage.GetStatus(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to get status: %w", err)
	}

	if c := status.Corpus; c != nil {
		out.Corpus = &CorpusInfo{
			BuildID:            c.BuildID,
			EmbeddingProvider:  c.EmbeddingProvider,
			EmbeddingModel:     c.EmbeddingModel,
			EmbeddingDimension: c.EmbeddingDimension,
			DocumentCount:      c.DocumentCount,
			ChunkCount:         c.ChunkCount,
			DuplicateCount:     c.DuplicateCount,
			BuiltAt:            c.BuiltAt,
		}
	}
	out.Statistics = StatusCounts{
		Documents:       status.DocumentsCount,
		FailedDocuments: status.FailedDocuments,
		Chunks:          status.ChunksCount,
		Embeddings:      status.EmbeddingsCount,
		IndexSizeMB:     fmt.Sprintf("%.2f", status.IndexSizeMB),
	}
	out.Health = HealthInfo{
		DatabaseAccessible:  status.Health.DatabaseAccessible,
		EmbeddingsAvailable: status.Health.EmbeddingsAvailable,
		FTSIndexesBuilt:     status.Health.FTSIndexesBuilt,
	}

	docs, err := e.storage.ListDocuments(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to list documents: %w", err)
	}
	for _, d := range docs {
		row := DocumentRow{
			Name:   d.Name,
			Path:   d.Path,
			Status: d.Status,
			Chunks: d.ChunkCount,
		}
		if d.Error != nil {
			row.Error = *d.Error
		}
		out.Documents = append(out.Documents, row)
	}

	return out, nil
}

func buildInfo(s *indexer.Statistics) *BuildInfo {
	return &BuildInfo{
		BuildID:           s.BuildID,
		DocumentsFound:    s.DocumentsFound,
		DocumentsIndexed:  s.DocumentsIndexed,
		DocumentsFailed:   s.DocumentsFailed,
		DuplicatesDropped: s.DuplicatesDropped,
		ChunksStored:      s.ChunksStored,
		DurationMs:        s.Duration.Milliseconds(),
		Errors:            s.ErrorMessages,
	}
}
