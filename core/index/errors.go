package index

import "errors"

var (
	// ErrStaleToken rejects a continuation token resolved against a shard
	// layout that has since changed. Callers must not hold tokens across
	// mutations; re-run the search instead.
	ErrStaleToken = errors.New("continuation token is stale: shard layout changed")

	// ErrMutationInFlight indicates another mutation holds the index's
	// advisory lock. The index is single-writer.
	ErrMutationInFlight = errors.New("another mutation holds the index lock")

	// ErrExternalAttached rejects attaching a second external index while
	// one is already attached.
	ErrExternalAttached = errors.New("an external index is already attached")

	// ErrClosed indicates an operation on a closed Manager.
	ErrClosed = errors.New("index manager is closed")
)
