// Package searcher implements hybrid retrieval over the stored corpus.
//
// Two indexes rank chunks independently:
//   - LexicalIndex: BM25 over the SQLite FTS5 table
//   - SemanticIndex: cosine similarity between the query embedding and the
//     stored chunk embeddings
//
// HybridRetriever runs both concurrently, each bounded by its own k, and
// merges them with weighted Reciprocal Rank Fusion:
//
//	fused(c) = w_lex / (k + rank_lex(c)) + w_sem / (k + rank_sem(c))
//
// A chunk absent from a list gets nothing from that list. Ties are broken by
// lexical rank, then semantic rank, then chunk ID, so repeated calls on the
// same corpus return the same order.
//
// # Basic Usage
//
//	h, err := searcher.NewHybridRetriever(
//	    searcher.NewLexicalIndex(store),
//	    searcher.NewSemanticIndex(store, emb),
//	    store,
//	    searcher.DefaultConfig(),
//	)
//
//	result, err := h.Retrieve(ctx, "how do I reset the router", 5)
//	if result.Empty() {
//	    // valid outcome: nothing matched
//	}
//
// # Outcomes
//
// Retrieve distinguishes three cases: OutcomeResults, OutcomeEmpty (both
// indexes returned nothing) and an error (an index could not be searched).
//
// # Caching
//
// Results are cached in an LRU keyed by build ID, query and limit. SetBuildID
// purges the cache when a new corpus is loaded.
package searcher
