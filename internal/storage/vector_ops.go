package storage

import (
	"context"
	"database/sql"
	"encoding/binary"
	"fmt"
	"math"
	"regexp"
	"sort"
	"strings"
)

// searchVector performs vector similarity search using cosine similarity
func searchVector(ctx context.Context, q querier, queryVector []float32, limit int) ([]VectorResult, error) {
	if limit <= 0 || len(queryVector) == 0 {
		return []VectorResult{}, nil
	}
	if VectorExtensionAvailable {
		return searchVectorOptimized(ctx, q, queryVector, limit)
	}
	return searchVectorFallback(ctx, q, queryVector, limit)
}

// searchVectorOptimized uses the sqlite-vec extension to rank in SQL
func searchVectorOptimized(ctx context.Context, q querier, queryVector []float32, limit int) ([]VectorResult, error) {
	// vec_distance_cosine returns a distance (lower is better)
	query := `
		SELECT
			e.chunk_id,
			1.0 - vec_distance_cosine(e.vector, ?) AS similarity
		FROM embeddings e
		WHERE e.dimension = ?
		ORDER BY similarity DESC, e.chunk_id ASC
		LIMIT ?
	`
	rows, err := q.QueryContext(ctx, query, serializeVector(queryVector), len(queryVector), limit)
	if err != nil {
		return nil, fmt.Errorf("failed to execute vector search: %w", err)
	}
	defer func() { _ = rows.Close() }()

	results := make([]VectorResult, 0, limit)
	for rows.Next() {
		var result VectorResult
		if err := rows.Scan(&result.ChunkID, &result.SimilarityScore); err != nil {
			return nil, fmt.Errorf("failed to scan result: %w", err)
		}
		results = append(results, result)
	}
	return results, rows.Err()
}

// searchVectorFallback computes cosine similarity in Go for purego builds
func searchVectorFallback(ctx context.Context, q querier, queryVector []float32, limit int) ([]VectorResult, error) {
	rows, err := q.QueryContext(ctx, `SELECT chunk_id, vector FROM embeddings WHERE dimension = ?`, len(queryVector))
	if err != nil {
		return nil, fmt.Errorf("failed to query embeddings: %w", err)
	}
	defer func() { _ = rows.Close() }()

	candidates, err := computeSimilarityScores(rows, queryVector)
	if err != nil {
		return nil, err
	}

	sortCandidates(candidates)
	return buildVectorResults(candidates, limit), nil
}

// searchText performs BM25 full-text search using FTS5.
// A query without any word characters yields no results.
func searchText(ctx context.Context, q querier, query string, limit int) ([]TextResult, error) {
	match := buildFTSQuery(query)
	if match == "" || limit <= 0 {
		return []TextResult{}, nil
	}

	// bm25() is negative, lower is better
	sqlQuery := `
		SELECT rowid, bm25(chunks_fts) AS score
		FROM chunks_fts
		WHERE chunks_fts MATCH ?
		ORDER BY score ASC, rowid ASC
		LIMIT ?
	`
	rows, err := q.QueryContext(ctx, sqlQuery, match, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to execute FTS search: %w", err)
	}
	defer func() { _ = rows.Close() }()

	results := make([]TextResult, 0, limit)
	for rows.Next() {
		var result TextResult
		var raw float64
		if err := rows.Scan(&result.ChunkID, &raw); err != nil {
			return nil, err
		}
		result.BM25Score = -raw
		results = append(results, result)
	}
	return results, rows.Err()
}

// computeSimilarityScores processes rows and computes cosine similarity
func computeSimilarityScores(rows *sql.Rows, queryVector []float32) ([]candidate, error) {
	candidates := make([]candidate, 0, 256)

	for rows.Next() {
		var chunkID int64
		var vectorBlob []byte
		if err := rows.Scan(&chunkID, &vectorBlob); err != nil {
			return nil, err
		}

		vector := deserializeVector(vectorBlob)
		if len(vector) != len(queryVector) {
			continue
		}

		candidates = append(candidates, candidate{chunkID: chunkID, score: cosineSimilarity(queryVector, vector)})
	}

	return candidates, rows.Err()
}

// buildVectorResults creates VectorResult slice from sorted candidates
func buildVectorResults(candidates []candidate, limit int) []VectorResult {
	if limit > len(candidates) {
		limit = len(candidates)
	}

	results := make([]VectorResult, limit)
	for i := 0; i < limit; i++ {
		results[i] = VectorResult{
			ChunkID:         candidates[i].chunkID,
			SimilarityScore: candidates[i].score,
		}
	}
	return results
}

// serializeVector converts a float32 slice to a byte blob (little-endian)
func serializeVector(vector []float32) []byte {
	blob := make([]byte, len(vector)*4)
	for i, v := range vector {
		binary.LittleEndian.PutUint32(blob[i*4:], math.Float32bits(v))
	}
	return blob
}

// deserializeVector converts a byte blob back to a float32 slice
func deserializeVector(blob []byte) []float32 {
	vector := make([]float32, len(blob)/4)
	for i := range vector {
		bits := binary.LittleEndian.Uint32(blob[i*4:])
		vector[i] = math.Float32frombits(bits)
	}
	return vector
}

// cosineSimilarity computes the cosine similarity between two vectors
func cosineSimilarity(a, b []float32) float64 {
	if len(a) != len(b) {
		return 0
	}

	var dotProduct, normA, normB float64
	for i := range a {
		dotProduct += float64(a[i]) * float64(b[i])
		normA += float64(a[i]) * float64(a[i])
		normB += float64(b[i]) * float64(b[i])
	}

	if normA == 0 || normB == 0 {
		return 0
	}

	return dotProduct / (math.Sqrt(normA) * math.Sqrt(normB))
}

// candidate represents a chunk with its similarity score
type candidate struct {
	chunkID int64
	score   float64
}

// sortCandidates orders by score descending, then chunk ID ascending
func sortCandidates(candidates []candidate) {
	sort.SliceStable(candidates, func(i, j int) bool {
		if candidates[i].score != candidates[j].score {
			return candidates[i].score > candidates[j].score
		}
		return candidates[i].chunkID < candidates[j].chunkID
	})
}

var ftsTermPattern = regexp.MustCompile(`[\p{L}\p{N}]+`)

// buildFTSQuery turns free text into an FTS5 MATCH expression. Every word is
// quoted so operators and punctuation in the input are never interpreted, and
// the words are OR-ed so that any overlap produces a hit.
func buildFTSQuery(query string) string {
	terms := ftsTermPattern.FindAllString(strings.ToLower(query), -1)
	if len(terms) == 0 {
		return ""
	}

	seen := make(map[string]struct{}, len(terms))
	quoted := make([]string, 0, len(terms))
	for _, term := range terms {
		if _, ok := seen[term]; ok {
			continue
		}
		seen[term] = struct{}{}
		quoted = append(quoted, `"`+term+`"`)
	}
	return strings.Join(quoted, " OR ")
}

// SerializeVector is an exported helper for the indexer and tests
func SerializeVector(vector []float32) []byte {
	return serializeVector(vector)
}

// DeserializeVector is an exported helper for testing
func DeserializeVector(blob []byte) []float32 {
	return deserializeVector(blob)
}

// CosineSimilarity is an exported helper for testing
func CosineSimilarity(a, b []float32) float64 {
	return cosineSimilarity(a, b)
}
