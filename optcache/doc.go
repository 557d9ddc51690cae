// Package optcache caches dynamic option lists fetched from external service
// providers and coordinates the fetches that fill it.
//
// The Cache combines three pieces. The entry store holds option lists by
// cache key, each with its own time-to-live. An entry is valid while less
// than its TTL has passed since it was written; expired entries are treated
// as absent and removed when read. The in-flight registry tracks the fetches
// that are currently running so that concurrent resolves for the same key
// share a single fetch. The coordinator, Cache.Resolve, ties them together.
//
// ## Resolve
//
// Resolve returns cached options if they are fresh. Otherwise it joins a
// fetch already in flight for the key, or starts one. A successful fetch is
// written to the store and its result is delivered to every caller that
// joined it. A failed fetch is delivered to every joined caller but is not
// written, so the next resolve for the key fetches again. Failures are never
// retried by the cache; retry policy belongs to the fetch function.
//
// ## Cancellation
//
// A resolve whose context is already canceled does not start a fetch. If the
// context of the caller that started a fetch is canceled before the fetch
// returns, nothing is written and every joined caller receives an error that
// matches ErrCanceled. Entries already written are never removed by
// cancellation.
//
// ## Mirror
//
// A Mirror can be configured to keep a copy of the store in an external
// key-value store so that option lists survive a restart. Mirror writes are
// best effort: errors are logged and never fail a resolve. On a store miss
// the mirror is consulted before fetching, and a still-valid mirrored entry
// is loaded into the store with its original write time.
package optcache
