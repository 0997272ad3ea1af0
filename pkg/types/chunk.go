package types

import (
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"strings"
)

// Chunk represents a contiguous passage of a source document that is indexed
// and retrieved as a unit.
type Chunk struct {
	// Identification
	ID int64

	// Content
	Content     string
	ContentHash [32]byte // SHA-256 of Content, unique across the corpus

	// Provenance
	SourceDocument string // Display name of the originating file
	PageNumber     *int   // Nullable - heading-based chunks carry no page
	Header1        string // Enclosing level-1 heading, "" when absent
	Header2        string // Enclosing level-2 heading, "" when absent

	// Position of the chunk within its document (0-based)
	Ordinal int
}

// ComputeContentHash computes the SHA-256 hash of the chunk content
func (c *Chunk) ComputeContentHash() {
	c.ContentHash = HashContent(c.Content)
}

// HashContent returns the SHA-256 digest used for chunk deduplication.
func HashContent(content string) [32]byte {
	return sha256.Sum256([]byte(content))
}

// HashHex returns the hex form of the content hash.
func (c *Chunk) HashHex() string {
	return hex.EncodeToString(c.ContentHash[:])
}

// HeadingPath returns the enclosing headings from outermost to innermost,
// skipping levels that are absent.
func (c *Chunk) HeadingPath() []string {
	path := make([]string, 0, 2)
	if c.Header1 != "" {
		path = append(path, c.Header1)
	}
	if c.Header2 != "" {
		path = append(path, c.Header2)
	}
	return path
}

// Validate performs comprehensive validation of the chunk
func (c *Chunk) Validate() error {
	if strings.TrimSpace(c.Content) == "" {
		return ErrEmptyContent
	}

	if c.SourceDocument == "" {
		return errors.New("source document is required")
	}

	if c.PageNumber != nil && *c.PageNumber < 1 {
		return errors.New("page number must be positive")
	}

	var zeroHash [32]byte
	if c.ContentHash == zeroHash {
		return errors.New("content hash must be computed")
	}

	if c.ContentHash != HashContent(c.Content) {
		return errors.New("content hash does not match content")
	}

	return nil
}

// IntPtr returns a pointer to v.
func IntPtr(v int) *int {
	return &v
}
