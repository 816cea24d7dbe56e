// Package fault defines the error taxonomy shared across the ingestion and
// query pipelines. Callers classify with errors.Is; wrapping with %w
// preserves the kind across package boundaries.
package fault

import (
	"context"
	"errors"
)

var (
	// ErrValidation marks malformed input, rejected before any state mutation.
	ErrValidation = errors.New("validation error")

	// ErrNotFound marks a lookup for an unknown identifier.
	ErrNotFound = errors.New("not found")

	// ErrTransientProvider marks a retryable provider failure (rate limit,
	// timeout). Only the embedding gateway retries on it.
	ErrTransientProvider = errors.New("transient provider error")

	// ErrProviderExhausted marks a transient failure that outlived its retry
	// budget. Fatal to the owning job.
	ErrProviderExhausted = errors.New("provider retries exhausted")

	// ErrProtocolViolation marks a provider response whose shape does not
	// match the request (e.g. vector count mismatch). Never retried.
	ErrProtocolViolation = errors.New("provider protocol violation")

	// ErrConfiguration marks a systemic misconfiguration such as a vector
	// dimensionality mismatch with the collection. Fatal, surfaced loudly.
	ErrConfiguration = errors.New("configuration error")

	// ErrEmptyDocument marks a fetched source that produced zero chunks.
	// Jobs fail on it rather than indexing nothing silently.
	ErrEmptyDocument = errors.New("document produced no chunks")
)

// IsTransient reports whether err should be retried with backoff.
// Context deadline expiry on an external call counts as transient per the
// concurrency model: a timed-out call is indistinguishable from a slow
// provider.
func IsTransient(err error) bool {
	return errors.Is(err, ErrTransientProvider) || errors.Is(err, context.DeadlineExceeded)
}
