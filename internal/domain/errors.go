package domain

import "errors"

// Error taxonomy shared by every service. Repositories and services wrap
// these sentinels so the transport layer can map them with errors.Is.
var (
	// ErrValidation marks malformed or missing required input.
	ErrValidation = errors.New("validation failed")

	// ErrStateConflict marks an operation that would violate an invariant:
	// insufficient stock, an idempotency key reused for a different target,
	// an illegal order-status transition.
	ErrStateConflict = errors.New("state conflict")

	// ErrUpstreamUnavailable marks a failed call to the cart store, the
	// payment provider or the database. Retryable with backoff.
	ErrUpstreamUnavailable = errors.New("upstream unavailable")

	// ErrUntrusted marks a webhook that failed secret or source-address
	// verification. Never retried, always logged.
	ErrUntrusted = errors.New("untrusted request")

	// ErrNotFound marks a referenced entity that does not exist.
	ErrNotFound = errors.New("not found")
)
