package types

import (
	"errors"
	"fmt"
)

// Domain errors for type validation
var (
	ErrInvalidChunkID = errors.New("invalid chunk ID")
	ErrInvalidRank    = errors.New("rank must be >= 1")
	ErrEmptyContent   = errors.New("content cannot be empty")
)

// Error kinds surfaced by the engine. Callers match them with errors.Is or IsKind.
var (
	// ErrConfiguration is fatal at startup.
	ErrConfiguration = errors.New("configuration error")
	// ErrEmptyCorpus means no document produced any chunk.
	ErrEmptyCorpus = errors.New("empty corpus")
	// ErrDocumentConversion is recorded per document; the build continues.
	ErrDocumentConversion = errors.New("document conversion failed")
	// ErrRetrieverNotReady is returned while no corpus has been built. Retryable.
	ErrRetrieverNotReady = errors.New("retriever not ready")
	// ErrBuildInProgress is returned when a rebuild is requested during another. Retryable.
	ErrBuildInProgress = errors.New("corpus build in progress")
	// ErrEmptyQuery is returned for blank questions.
	ErrEmptyQuery = errors.New("query cannot be empty")
	// ErrInvalidInput covers other caller-fixable argument problems.
	ErrInvalidInput = errors.New("invalid input")
	// ErrExternalService covers embedding and generation backend failures.
	ErrExternalService = errors.New("external service failure")
	// ErrGenerationTimeout is returned when answer generation exceeds its deadline.
	ErrGenerationTimeout = errors.New("generation timed out")
)

// WrapError preserves the error kind with operation context.
func WrapError(kind error, operation string, err error) error {
	if err == nil {
		return nil
	}
	return fmt.Errorf("%s: %w: %w", operation, kind, err)
}

// NewError creates an error of the given kind with a message.
func NewError(kind error, operation, message string) error {
	return fmt.Errorf("%s: %w: %s", operation, kind, message)
}

func IsKind(err error, kind error) bool {
	return errors.Is(err, kind)
}

// IsRetryable reports whether the caller may retry the same request later.
func IsRetryable(err error) bool {
	return errors.Is(err, ErrRetrieverNotReady) ||
		errors.Is(err, ErrBuildInProgress) ||
		errors.Is(err, ErrGenerationTimeout) ||
		errors.Is(err, ErrExternalService)
}
