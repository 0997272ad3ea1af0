package searcher

import (
	"context"
	"crypto/sha256"
	"fmt"
	"sort"
	"strconv"
	"strings"
	"sync"

	lru "github.com/hashicorp/golang-lru/v2"
	"golang.org/x/sync/errgroup"

	"github.com/dshills/pdfquery-mcp/internal/storage"
	"github.com/dshills/pdfquery-mcp/pkg/types"
)

// Defaults for hybrid retrieval
const (
	DefaultLexicalK       = 3
	DefaultSemanticK      = 3
	DefaultLexicalWeight  = 0.5
	DefaultSemanticWeight = 0.5
	DefaultRRFConstant    = 60
	DefaultCacheSize      = 1000
)

// Config contains hybrid retrieval parameters
type Config struct {
	LexicalK       int     // Results taken from the lexical index
	SemanticK      int     // Results taken from the semantic index
	LexicalWeight  float64 // Weight of the lexical list in fusion
	SemanticWeight float64 // Weight of the semantic list in fusion
	RRFConstant    float64 // k in w / (k + rank)
	CacheSize      int     // Query cache entries; zero disables caching
}

// DefaultConfig returns the default retrieval parameters
func DefaultConfig() Config {
	return Config{
		LexicalK:       DefaultLexicalK,
		SemanticK:      DefaultSemanticK,
		LexicalWeight:  DefaultLexicalWeight,
		SemanticWeight: DefaultSemanticWeight,
		RRFConstant:    DefaultRRFConstant,
		CacheSize:      DefaultCacheSize,
	}
}

// Validate checks the configuration
func (c Config) Validate() error {
	switch {
	case c.LexicalK <= 0 || c.SemanticK <= 0:
		return types.NewError(types.ErrConfiguration, "searcher.config", "per-index k must be positive")
	case c.LexicalWeight < 0 || c.SemanticWeight < 0:
		return types.NewError(types.ErrConfiguration, "searcher.config", "weights must be non-negative")
	case c.LexicalWeight+c.SemanticWeight <= 0:
		return types.NewError(types.ErrConfiguration, "searcher.config", "weights must not all be zero")
	case c.RRFConstant < 0:
		return types.NewError(types.ErrConfiguration, "searcher.config", "rrf constant must be non-negative")
	case c.CacheSize < 0:
		return types.NewError(types.ErrConfiguration, "searcher.config", "cache size must be non-negative")
	}
	return nil
}

// ChunkLoader fetches chunks by ID
type ChunkLoader interface {
	GetChunks(ctx context.Context, chunkIDs []int64) (map[int64]*storage.Chunk, error)
}

// HybridRetriever fuses a lexical and a semantic ranking with weighted
// reciprocal rank fusion
type HybridRetriever struct {
	lexical  Index
	semantic Index
	chunks   ChunkLoader
	config   Config

	cache   *lru.Cache[[32]byte, *types.RetrievalResult]
	cacheMu sync.RWMutex
	buildID string
}

// NewHybridRetriever creates a retriever over the given indexes
func NewHybridRetriever(lexical, semantic Index, chunks ChunkLoader, config Config) (*HybridRetriever, error) {
	if err := config.Validate(); err != nil {
		return nil, err
	}

	h := &HybridRetriever{
		lexical:  lexical,
		semantic: semantic,
		chunks:   chunks,
		config:   config,
	}

	if config.CacheSize > 0 {
		cache, err := lru.New[[32]byte, *types.RetrievalResult](config.CacheSize)
		if err != nil {
			return nil, fmt.Errorf("failed to create LRU cache: %w", err)
		}
		h.cache = cache
	}
	return h, nil
}

// Config returns the retrieval parameters in use
func (h *HybridRetriever) Config() Config {
	return h.config
}

// SetBuildID records the corpus the cache belongs to. Changing it drops
// every cached result.
func (h *HybridRetriever) SetBuildID(buildID string) {
	h.cacheMu.Lock()
	defer h.cacheMu.Unlock()

	if h.buildID == buildID {
		return
	}
	h.buildID = buildID
	if h.cache != nil {
		h.cache.Purge()
	}
}

// Retrieve returns at most limit chunks for query, ordered by fused score.
// Both indexes returning nothing is an OutcomeEmpty result, not an error.
func (h *HybridRetriever) Retrieve(ctx context.Context, query string, limit int) (*types.RetrievalResult, error) {
	query = strings.TrimSpace(query)
	if query == "" {
		return nil, types.NewError(types.ErrEmptyQuery, "searcher.retrieve", "query is blank")
	}
	if limit <= 0 {
		return nil, types.NewError(types.ErrInvalidInput, "searcher.retrieve", "limit must be positive")
	}

	key := h.cacheKey(query, limit)
	if cached, ok := h.checkCache(key); ok {
		return cached, nil
	}

	var lexical, semantic []types.RankedID
	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		var err error
		lexical, err = h.lexical.Search(gctx, query, h.config.LexicalK)
		return err
	})
	g.Go(func() error {
		var err error
		semantic, err = h.semantic.Search(gctx, query, h.config.SemanticK)
		return err
	})
	if err := g.Wait(); err != nil {
		return nil, err
	}

	result := &types.RetrievalResult{
		Outcome:      types.OutcomeEmpty,
		Chunks:       []types.ScoredChunk{},
		LexicalHits:  len(lexical),
		SemanticHits: len(semantic),
	}

	fused := fuse(lexical, semantic, h.config)
	if len(fused) > limit {
		fused = fused[:limit]
	}

	if len(fused) > 0 {
		chunks, err := h.loadChunks(ctx, fused)
		if err != nil {
			return nil, err
		}
		result.Chunks = chunks
		if len(chunks) > 0 {
			result.Outcome = types.OutcomeResults
		}
	}

	h.storeInCache(key, result)
	return result, nil
}

// fusedResult is a chunk with its fused score and per-list ranks
type fusedResult struct {
	chunkID      int64
	score        float64
	lexicalRank  int // 0 when absent
	semanticRank int // 0 when absent
}

// fuse combines two rankings with weighted reciprocal rank fusion:
//
//	fused(c) = Σ w_list / (k + rank_list(c))
//
// Ranks are 1-based and a list that does not contain c contributes nothing.
// Ties are broken by lexical rank, then semantic rank (absent sorts last),
// then chunk ID, so the order is total.
func fuse(lexical, semantic []types.RankedID, config Config) []fusedResult {
	byID := make(map[int64]*fusedResult, len(lexical)+len(semantic))
	get := func(id int64) *fusedResult {
		r, ok := byID[id]
		if !ok {
			r = &fusedResult{chunkID: id}
			byID[id] = r
		}
		return r
	}

	for i, r := range lexical {
		fr := get(r.ChunkID)
		if fr.lexicalRank != 0 {
			continue
		}
		fr.lexicalRank = i + 1
		fr.score += config.LexicalWeight / (config.RRFConstant + float64(i+1))
	}
	for i, r := range semantic {
		fr := get(r.ChunkID)
		if fr.semanticRank != 0 {
			continue
		}
		fr.semanticRank = i + 1
		fr.score += config.SemanticWeight / (config.RRFConstant + float64(i+1))
	}

	results := make([]fusedResult, 0, len(byID))
	for _, r := range byID {
		results = append(results, *r)
	}
	sortFused(results)
	return results
}

// sortFused orders by score descending with deterministic tie-breaks
func sortFused(results []fusedResult) {
	sort.Slice(results, func(i, j int) bool {
		a, b := results[i], results[j]
		if a.score != b.score {
			return a.score > b.score
		}
		if ra, rb := rankOrLast(a.lexicalRank), rankOrLast(b.lexicalRank); ra != rb {
			return ra < rb
		}
		if ra, rb := rankOrLast(a.semanticRank), rankOrLast(b.semanticRank); ra != rb {
			return ra < rb
		}
		return a.chunkID < b.chunkID
	})
}

func rankOrLast(rank int) int {
	if rank == 0 {
		return int(^uint(0) >> 1)
	}
	return rank
}

// loadChunks fetches chunk data for fused results, keeping their order.
// Chunks that no longer exist are skipped.
func (h *HybridRetriever) loadChunks(ctx context.Context, fused []fusedResult) ([]types.ScoredChunk, error) {
	ids := make([]int64, len(fused))
	for i, f := range fused {
		ids[i] = f.chunkID
	}

	stored, err := h.chunks.GetChunks(ctx, ids)
	if err != nil {
		return nil, fmt.Errorf("failed to load chunks: %w", err)
	}

	out := make([]types.ScoredChunk, 0, len(fused))
	for _, f := range fused {
		c, ok := stored[f.chunkID]
		if !ok {
			continue
		}
		out = append(out, types.ScoredChunk{
			Chunk:        c.ToTypesChunk(),
			Score:        f.score,
			Rank:         len(out) + 1,
			LexicalRank:  f.lexicalRank,
			SemanticRank: f.semanticRank,
		})
	}
	return out, nil
}

// cacheKey hashes the build ID, query and limit
func (h *HybridRetriever) cacheKey(query string, limit int) [32]byte {
	h.cacheMu.RLock()
	buildID := h.buildID
	h.cacheMu.RUnlock()

	var data strings.Builder
	data.WriteString(buildID)
	data.WriteString("|")
	data.WriteString(query)
	data.WriteString("|")
	data.WriteString(strconv.Itoa(limit))
	return sha256.Sum256([]byte(data.String()))
}

func (h *HybridRetriever) checkCache(key [32]byte) (*types.RetrievalResult, bool) {
	if h.cache == nil {
		return nil, false
	}
	h.cacheMu.RLock()
	defer h.cacheMu.RUnlock()

	entry, ok := h.cache.Get(key)
	if !ok {
		return nil, false
	}
	return copyResult(entry), true
}

func (h *HybridRetriever) storeInCache(key [32]byte, result *types.RetrievalResult) {
	if h.cache == nil {
		return
	}
	h.cacheMu.Lock()
	h.cache.Add(key, copyResult(result))
	h.cacheMu.Unlock()
}

// CacheLen returns the number of cached results
func (h *HybridRetriever) CacheLen() int {
	if h.cache == nil {
		return 0
	}
	return h.cache.Len()
}

// copyResult creates a deep copy of a RetrievalResult
func copyResult(src *types.RetrievalResult) *types.RetrievalResult {
	dst := *src
	dst.Chunks = make([]types.ScoredChunk, len(src.Chunks))
	copy(dst.Chunks, src.Chunks)
	for i := range dst.Chunks {
		if p := src.Chunks[i].PageNumber; p != nil {
			page := *p
			dst.Chunks[i].PageNumber = &page
		}
	}
	return &dst
}
