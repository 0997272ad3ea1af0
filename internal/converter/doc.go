// Package converter turns source documents into Markdown for chunking.
//
// Converters are selected per file extension by a Router. Markdown files pass
// through unchanged, PDFs are read as plain text page by page or sent to a
// docling-serve compatible HTTP service, and a CachedConverter keeps converted
// Markdown in a bbolt file keyed by the SHA-256 of the source bytes so a
// rebuild does not re-run conversion for unchanged files.
package converter
