// Package embedder generates vector embeddings for document chunks and queries.
//
// Three providers implement the Embedder interface:
//   - openai: the OpenAI embeddings API (or a compatible endpoint) via openai-go
//   - jina: the Jina AI embeddings API over plain HTTP
//   - local: offline feature hashing, for development and tests
//
// # Basic Usage
//
//	emb, err := embedder.New(embedder.Config{
//	    Provider:  embedder.ProviderOpenAI,
//	    APIKey:    os.Getenv(embedder.EnvOpenAIAPIKey),
//	    CacheSize: embedder.DefaultCacheSize,
//	})
//	if err != nil {
//	    log.Fatal(err)
//	}
//	defer emb.Close()
//
//	resp, err := emb.GenerateBatch(ctx, embedder.BatchEmbeddingRequest{
//	    Texts: texts,
//	})
//
// The same embedder must be used to build the corpus and to embed queries.
// Provider, Model and Dimension are recorded with the corpus and compared on
// load.
//
// # Caching and Retries
//
// Batches consult the LRU cache per text and only send the misses upstream.
// Transient failures (network errors, 429, 5xx) are retried with exponential
// backoff; other 4xx responses fail immediately.
package embedder
