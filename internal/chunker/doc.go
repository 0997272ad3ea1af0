// Package chunker divides converted Markdown into heading-scoped chunks.
//
// # Basic Usage
//
//	c := chunker.New()
//	chunks := c.ChunkDocument("manual.pdf", markdown)
//	for _, chunk := range chunks {
//	    fmt.Println(chunk.HeadingPath(), len(chunk.Content))
//	}
//
// # Chunking Strategy
//
// Documents are split at level-1 (#) and level-2 (##) headings:
//   - A level-1 heading starts a new section and clears the level-2 heading
//   - A level-2 heading starts a subsection under the current level-1 heading
//   - Heading lines are recorded as metadata and removed from the content
//   - Text before the first heading forms a chunk with no headings
//   - Headings inside fenced code blocks (``` or ~~~) are content
//
// Chunks carry no page number. The Markdown produced by document conversion
// does not preserve page boundaries, and consumers treat an absent page as
// valid.
//
// Every chunk gets a SHA-256 content hash. Deduplication across documents is
// the indexer's job.
package chunker
