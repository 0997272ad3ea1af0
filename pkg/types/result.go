package types

// Outcome distinguishes a retrieval with hits from one without.
type Outcome string

const (
	OutcomeResults Outcome = "results"
	OutcomeEmpty   Outcome = "empty"
)

// RankedID is a single entry of a lexical or semantic result list.
type RankedID struct {
	ChunkID int64
	Score   float64 // Higher is better within one list
}

// ScoredChunk is a chunk with its fused score and per-list ranks.
type ScoredChunk struct {
	Chunk
	Score        float64 // Fused reciprocal-rank score
	Rank         int     // Position in the fused list (1-based)
	LexicalRank  int     // 0 when absent from the lexical list
	SemanticRank int     // 0 when absent from the semantic list
}

// RetrievalResult is the ranked, truncated output of a hybrid retrieval.
type RetrievalResult struct {
	Outcome      Outcome
	Chunks       []ScoredChunk
	LexicalHits  int
	SemanticHits int
}

// Empty reports whether the retrieval produced no chunks.
func (r *RetrievalResult) Empty() bool {
	return r == nil || r.Outcome == OutcomeEmpty || len(r.Chunks) == 0
}

// Validate checks if the scored chunk is valid
func (sc *ScoredChunk) Validate() error {
	if sc.ID == 0 {
		return ErrInvalidChunkID
	}
	if sc.Rank < 1 {
		return ErrInvalidRank
	}
	if sc.Content == "" {
		return ErrEmptyContent
	}
	return nil
}

// Source is a citation attached to an answer.
type Source struct {
	DocumentName string
	PageNumber   *int
	ChunkPreview string
}

// Answer is a generated response with citations and a heuristic confidence.
type Answer struct {
	Text       string
	Sources    []Source
	Confidence float64
}
