package store

import (
	"context"
	"time"
)

// Decision is the outcome of one sliding-window check.
type Decision struct {
	// Allowed reports whether the attempt was admitted and recorded.
	Allowed bool

	// Limit is the window capacity, for response headers.
	Limit int

	// Remaining is the number of attempts left in the current window.
	Remaining int

	// RetryAfter is how long until the oldest recorded attempt leaves the
	// window. Only meaningful when Allowed is false.
	RetryAfter time.Duration
}

// Store is a sliding-window attempt log keyed by client identity.
// Implementations must be safe for concurrent use, and the whole
// check-and-record cycle must be atomic with respect to other callers:
// a limited attempt persists the pruned timestamp list without appending,
// so existing attempts are never erased by hammering.
type Store interface {
	// CheckAndRecord prunes timestamps older than the window for key,
	// appends now if the pruned count is under the limit, persists the
	// result, and reports the decision.
	CheckAndRecord(ctx context.Context, key string, now time.Time) (Decision, error)

	// Close releases any resources held by the store.
	Close() error
}
