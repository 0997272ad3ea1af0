// Package indexer builds the document corpus end to end.
//
// A build discovers documents, converts them to Markdown, splits them on
// headings, drops duplicate chunks, embeds the survivors and replaces the
// stored corpus in one transaction.
//
// # Basic Usage
//
//	b := indexer.New(conv, emb, store, logger)
//
//	stats, err := b.Build(ctx, &indexer.Config{
//	    Root:    "/data/manuals",
//	    Workers: 4,
//	}, nil)
//
//	fmt.Print(stats.Summary())
//
// # Build Pipeline
//
//  1. Discovery: walk the root, match doublestar include/exclude patterns,
//     order by relative path
//  2. Conversion: convert documents concurrently (errgroup bounded by Workers);
//     results are consumed in discovery order
//  3. Split: heading-based sections via the chunker package
//  4. Dedup: a chunk whose SHA-256 was already seen in this build is dropped,
//     so the first document wins
//  5. Embed: batches of BatchSize texts, order preserved
//  6. Replace: clear and rewrite documents, chunks, FTS rows, embeddings and
//     corpus metadata in a single transaction
//
// There is no incremental mode. Every build replaces the whole corpus.
//
// # Error Handling
//
// A document that fails to convert, or converts to nothing, is recorded in
// Statistics and in the documents table and the build continues. The build
// itself fails with types.ErrEmptyCorpus when nothing is discovered or no
// chunk survives, and with types.ErrExternalService when embedding fails. In
// every failing case the previously stored corpus stays intact.
//
// # Concurrency
//
// BuildLock gives callers a non-blocking way to reject a second rebuild
// while one is running.
package indexer
