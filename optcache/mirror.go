package optcache

import (
	"context"
	"time"
)

// Mirror is an external key-value store that keeps a copy of cached entries
// so they can be reused across sessions. Implementations must be safe for
// concurrent use.
type Mirror interface {
	// Load returns the entry stored for key. The found result is false if
	// there is no entry. Expired entries may be returned; the cache checks
	// validity itself.
	Load(ctx context.Context, key string) (ent Entry, found bool, err error)
	// Store writes the entry for key, replacing any previous entry.
	Store(ctx context.Context, key string, ent Entry) error
	// Delete removes the entry for key. Deleting a missing key is not an
	// error.
	Delete(ctx context.Context, key string) error
	// Clear removes all entries written by the cache.
	Clear(ctx context.Context) error
}

// Pruner is implemented by mirrors that do not expire entries on their own.
// Prune removes the entries that are no longer valid at now and returns how
// many were removed.
type Pruner interface {
	Prune(ctx context.Context, now time.Time) (int, error)
}
