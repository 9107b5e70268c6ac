package domain

import (
	"errors"
	"fmt"
)

var (
	// ErrBackendUnavailable is returned when the index or embedding backend is unreachable
	ErrBackendUnavailable = errors.New("index backend unavailable")

	// ErrInvalidRequest is returned when request parameters are invalid
	ErrInvalidRequest = errors.New("invalid request parameters")

	// ErrEmbeddingFailure is returned when the embedding backend cannot produce a vector
	ErrEmbeddingFailure = errors.New("embedding request failed")

	// ErrRateLimited is returned when rate limit is exceeded
	ErrRateLimited = errors.New("rate limit exceeded")

	// ErrEmptyPayload is returned when a store payload has no products to index
	ErrEmptyPayload = errors.New("store payload contains no products")
)

// PartialFailureError reports a batch operation that completed for most items
// but skipped some after retries. Callers treat it as a degraded success.
type PartialFailureError struct {
	Op     string
	Failed int
}

func (e *PartialFailureError) Error() string {
	return fmt.Sprintf("%s: %d items failed after retries", e.Op, e.Failed)
}

// IsPartialFailure reports whether err wraps a PartialFailureError.
func IsPartialFailure(err error) (*PartialFailureError, bool) {
	var pf *PartialFailureError
	if errors.As(err, &pf) {
		return pf, true
	}
	return nil, false
}
