package domain

import (
	"context"
	"errors"
	"fmt"
)

var (
	// ErrInvalidQuery means a search had neither text nor image, or a filter
	// value was malformed.
	ErrInvalidQuery = errors.New("invalid query")

	// ErrInvalidItem means a create or update request failed validation.
	ErrInvalidItem = errors.New("invalid item")

	// ErrEmbeddingUnavailable is wrapped by every Embedding Provider failure.
	ErrEmbeddingUnavailable = errors.New("embedding unavailable")

	// ErrNotFoundOrAlreadyFinal is returned by resolve and archive when the item
	// is missing or no longer active.
	ErrNotFoundOrAlreadyFinal = errors.New("item not found or already resolved/archived")

	ErrNotFound = errors.New("item not found")

	// ErrStoreUnavailable wraps persistence failures surfaced to callers.
	ErrStoreUnavailable = errors.New("store unavailable")
)

// StoreFailure wraps an error from a store call. When ctx is already done
// the failure is the caller's cancellation or deadline, not an outage, and
// the context error is wrapped instead of ErrStoreUnavailable.
func StoreFailure(ctx context.Context, err error) error {
	if ctxErr := ctx.Err(); ctxErr != nil {
		return fmt.Errorf("%w: %w", ctxErr, err)
	}
	return fmt.Errorf("%w: %w", ErrStoreUnavailable, err)
}
