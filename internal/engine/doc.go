// Package engine ties the corpus builder and the hybrid retriever together
// behind an explicit lifecycle.
//
// # States
//
//	Uninitialized --EnsureReady/Rebuild--> Building --ok--> Ready
//	                                           |
//	                                           +--error--> Failed (or Ready if a corpus was already served)
//
// EnsureReady is the lazy initialization path used by the MCP server on the
// first request. With ReuseExisting set it first tries the persisted corpus,
// which is accepted only when it was embedded by the configured provider,
// model and dimension.
//
// Rebuild is the explicit path used by the index command and the
// index_documents tool. Only one build runs at a time; a second request gets
// types.ErrBuildInProgress. EnsureReady called during an explicit rebuild and
// queries issued while any build runs fail at once with
// types.ErrRetrieverNotReady; they never wait for the build.
package engine
