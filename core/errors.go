package core

import "errors"

// Error taxonomy for the routing/memory core. Callers branch with errors.Is;
// every failure path wraps one of these sentinels so the taxonomy survives
// fmt.Errorf("%w") chains through the stack.
var (
	// ErrEmbeddingUnavailable means the embedding provider could not be
	// reached or returned a failure. The fallback classifier can still work
	// without embeddings; the caller decides whether to use it.
	ErrEmbeddingUnavailable = errors.New("embedding provider unavailable")

	// ErrRoutingUndecided means the fallback classifier failed or returned
	// output that could not be parsed into a handler identifier. Not retried
	// automatically.
	ErrRoutingUndecided = errors.New("routing undecided")

	// ErrUnknownHandler means a handler identifier is not in the registered
	// set. Expected outcome, not exceptional: callers degrade to the default
	// handler.
	ErrUnknownHandler = errors.New("unknown handler")

	// ErrMemoryStoreUnavailable means the structured store or vector index
	// is unreachable after bounded retries.
	ErrMemoryStoreUnavailable = errors.New("memory store unavailable")

	// ErrPromotionPartialFailure means one of the two writes behind a
	// long-term promotion failed after the other succeeded. The manager
	// compensates by deleting the orphaned half before surfacing this.
	ErrPromotionPartialFailure = errors.New("long-term promotion partially failed")

	// ErrTimeout means an external call exceeded its budget.
	ErrTimeout = errors.New("external call timed out")

	// ErrSessionNotFound is returned by session stores for unknown or
	// expired sessions.
	ErrSessionNotFound = errors.New("session not found")
)
