// Package types provides shared type definitions for the PDFQuery MCP server.
//
// # Core Types
//
// Chunk represents a passage of a converted document. Chunks are identified
// by a storage ID and deduplicated across the corpus by the SHA-256 hash of
// their content:
//
//	chunk := &types.Chunk{
//	    Content:        "Reset the device by holding the power button.",
//	    SourceDocument: "manual.pdf",
//	    Header1:        "Troubleshooting",
//	    Header2:        "Reset",
//	}
//	chunk.ComputeContentHash()
//
// PageNumber is nullable. Chunks derived from heading structure carry no page
// number, and consumers must treat an absent page as valid.
//
// # Retrieval Results
//
// RetrievalResult carries an explicit Outcome instead of signalling "no
// matches" through an error. ScoredChunk records the fused score as well as
// the rank the chunk held in the lexical and semantic lists (0 when absent),
// which is what makes tie-breaking deterministic.
//
// # Errors
//
// errors.go defines the error kinds surfaced to callers. Use WrapError to add
// operation context without losing the kind:
//
//	return types.WrapError(types.ErrExternalService, "embed query", err)
//
// and errors.Is or IsKind to match it later.
package types
