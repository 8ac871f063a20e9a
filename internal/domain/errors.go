package domain

import "errors"

// Sentinel errors shared across packages. Match with errors.Is.
var (
	// ErrInvalidInput indicates malformed or out-of-range input.
	ErrInvalidInput = errors.New("invalid input")

	// ErrInvalidQuery indicates query text that fails validation.
	ErrInvalidQuery = errors.New("invalid query")

	// ErrNotFound indicates a requested record does not exist.
	ErrNotFound = errors.New("not found")

	// ErrEmbeddingUnavailable indicates no query vector could be computed.
	// Retrieval degrades to keyword-only search.
	ErrEmbeddingUnavailable = errors.New("embedding service unavailable")

	// ErrSearchUnavailable indicates the search collaborator failed.
	ErrSearchUnavailable = errors.New("search service unavailable")

	// ErrCompletionUnavailable indicates the completion service failed.
	ErrCompletionUnavailable = errors.New("completion service unavailable")
)
