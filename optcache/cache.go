package optcache

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/benbjohnson/clock"
	"github.com/flowkit/go-optfetch/model"
	logging "github.com/ipfs/go-log/v2"
)

var log = logging.Logger("optcache")

// ErrCanceled is returned by Resolve when the fetch was abandoned because the
// context was canceled. Callers use it to suppress user-facing errors for
// intentionally aborted work.
var ErrCanceled = errors.New("resolve canceled")

// FetchFunc fetches the options for a single cache key. It must not call back
// into the Cache that invoked it for the same key.
type FetchFunc func(context.Context) (model.Options, error)

// Cache is an option list cache that deduplicates concurrent fetches.
type Cache struct {
	store         *Store
	inflight      *inflight
	clock         clock.Clock
	mirror        Mirror
	mirrorTimeout time.Duration
	metrics       *metrics
}

// New creates a new Cache.
func New(options ...Option) (*Cache, error) {
	opts, err := getOpts(options)
	if err != nil {
		return nil, err
	}

	m, err := newMetrics(opts.registerer)
	if err != nil {
		return nil, fmt.Errorf("cannot register metrics: %w", err)
	}

	store, err := NewStore(opts.maxEntries, opts.clock)
	if err != nil {
		return nil, err
	}
	store.onExpire = m.expired.Inc
	store.onEvict = m.evictions.Inc

	return &Cache{
		store:         store,
		inflight:      newInflight(),
		clock:         opts.clock,
		mirror:        opts.mirror,
		mirrorTimeout: opts.mirrorTimeout,
		metrics:       m,
	}, nil
}

// Resolve returns the options for key. Fresh cached options are returned
// without calling fetch. Otherwise, if a fetch for key is already in flight,
// Resolve waits for its outcome; if not, it calls fetch and, on success,
// caches the result for ttl.
//
// At most one fetch per key runs at any time. An error from fetch is returned
// to every caller waiting on that fetch and is not cached. If the caller
// leading a fetch is canceled, only that caller gets ErrCanceled; callers
// waiting on the fetch retry it under their own context.
//
// Do not modify the returned options.
func (c *Cache) Resolve(ctx context.Context, key string, ttl time.Duration, fetch FetchFunc, options ...ResolveOption) (model.Options, error) {
	ropts := getResolveOpts(options)

	if !ropts.forceRefresh {
		if value, ok := c.lookup(ctx, key); ok {
			return value, nil
		}
	}

	for {
		cl, leader := c.inflight.join(key)
		if !leader {
			c.metrics.joins.Inc()
			log.Debugw("Joined fetch in flight", "key", key)
			select {
			case <-cl.done:
			case <-ctx.Done():
				return nil, canceledError(ctx)
			}
			// The leader was canceled, not this caller. Join or lead again.
			if cl.canceled && ctx.Err() == nil {
				log.Debugw("Joined fetch was canceled, retrying", "key", key)
				continue
			}
			return cl.value, cl.err
		}

		// Another caller may have completed a fetch between the lookup and
		// becoming leader.
		if !ropts.forceRefresh {
			if value, ok := c.store.Get(key); ok {
				c.inflight.finish(key, cl, value, nil)
				return value, nil
			}
		}

		return c.fetch(ctx, key, ttl, fetch, cl)
	}
}

// fetch runs fetch as the leader of cl and delivers the outcome.
func (c *Cache) fetch(ctx context.Context, key string, ttl time.Duration, fetch FetchFunc, cl *call) (model.Options, error) {
	if ctx.Err() != nil {
		err := canceledError(ctx)
		c.metrics.canceled.Inc()
		cl.canceled = true
		c.inflight.finish(key, cl, nil, err)
		return nil, err
	}

	c.metrics.fetches.Inc()
	c.metrics.inFlight.Inc()
	start := c.clock.Now()
	value, err := callFetch(ctx, fetch)
	c.metrics.inFlight.Dec()

	if ctx.Err() != nil {
		// Canceled while fetching. Discard whatever was fetched.
		err = canceledError(ctx)
		value = nil
		cl.canceled = true
		c.metrics.canceled.Inc()
		log.Debugw("Fetch canceled", "key", key, "cause", context.Cause(ctx))
	} else if err != nil {
		c.metrics.fetchErrors.Inc()
		log.Debugw("Fetch failed", "key", key, "err", err)
	}
	if err != nil {
		c.inflight.finish(key, cl, nil, err)
		return nil, err
	}

	ent := Entry{
		Value:     value,
		WrittenAt: c.clock.Now(),
		TTL:       ttl,
	}
	c.store.setEntry(key, ent)
	c.inflight.finish(key, cl, value, nil)
	log.Debugw("Fetched options", "key", key, "count", len(value), "elapsed", ent.WrittenAt.Sub(start))

	c.mirrorStore(ctx, key, ent)
	return value, nil
}

// callFetch calls fetch, converting a panic into an error so that the call in
// flight is always finished.
func callFetch(ctx context.Context, fetch FetchFunc) (value model.Options, err error) {
	defer func() {
		if r := recover(); r != nil {
			value = nil
			err = fmt.Errorf("fetch panic: %v", r)
		}
	}()
	return fetch(ctx)
}

// lookup checks the store and then the mirror for a valid entry.
func (c *Cache) lookup(ctx context.Context, key string) (model.Options, bool) {
	if value, ok := c.store.Get(key); ok {
		c.metrics.hits.Inc()
		return value, true
	}
	if c.mirror != nil {
		if ent, ok := c.mirrorLoad(ctx, key); ok {
			c.store.setEntry(key, ent)
			c.metrics.mirrorHits.Inc()
			return ent.Value, true
		}
	}
	c.metrics.misses.Inc()
	return nil, false
}

// Peek returns the cached options for key without fetching or consulting the
// mirror.
func (c *Cache) Peek(key string) (model.Options, bool) {
	return c.store.Get(key)
}

// Set writes options for key directly, as if fetched.
func (c *Cache) Set(ctx context.Context, key string, value model.Options, ttl time.Duration) {
	ent := Entry{Value: value, WrittenAt: c.clock.Now(), TTL: ttl}
	c.store.setEntry(key, ent)
	c.mirrorStore(ctx, key, ent)
}

// Invalidate removes the entry for key from the store and the mirror. A fetch
// in flight for key is not affected and writes its result when it completes.
func (c *Cache) Invalidate(ctx context.Context, key string) {
	c.store.Invalidate(key)
	if c.mirror == nil {
		return
	}
	ctx, cancel := c.mirrorContext(ctx)
	defer cancel()
	if err := c.mirror.Delete(ctx, key); err != nil {
		log.Warnw("Cannot delete mirrored entry", "err", err, "key", key)
	}
}

// InvalidateAll removes all entries from the store and the mirror. It is
// used at sign-out or teardown.
func (c *Cache) InvalidateAll(ctx context.Context) {
	c.store.InvalidateAll()
	if c.mirror == nil {
		return
	}
	ctx, cancel := c.mirrorContext(ctx)
	defer cancel()
	if err := c.mirror.Clear(ctx); err != nil {
		log.Warnw("Cannot clear mirror", "err", err)
	}
}

// PruneMirror removes expired entries from the mirror, if the mirror is a
// Pruner, and returns the number removed. Mirrors that expire entries on
// their own need no pruning and report zero.
func (c *Cache) PruneMirror(ctx context.Context) (int, error) {
	pruner, ok := c.mirror.(Pruner)
	if !ok {
		return 0, nil
	}
	n, err := pruner.Prune(ctx, c.clock.Now())
	if err != nil {
		return 0, fmt.Errorf("cannot prune mirror: %w", err)
	}
	if n != 0 {
		log.Infow("Pruned mirror", "removed", n)
	}
	return n, nil
}

// Len returns the number of entries in the in-memory store.
func (c *Cache) Len() int {
	return c.store.Len()
}

// InFlight returns the number of fetches currently running.
func (c *Cache) InFlight() int {
	return c.inflight.len()
}

func (c *Cache) mirrorLoad(ctx context.Context, key string) (Entry, bool) {
	ctx, cancel := c.mirrorContext(ctx)
	defer cancel()

	ent, found, err := c.mirror.Load(ctx, key)
	if err != nil {
		log.Warnw("Cannot load mirrored entry", "err", err, "key", key)
		return Entry{}, false
	}
	if !found || !ent.Valid(c.clock.Now()) {
		return Entry{}, false
	}
	return ent, true
}

func (c *Cache) mirrorStore(ctx context.Context, key string, ent Entry) {
	if c.mirror == nil || ent.TTL <= 0 {
		return
	}
	ctx, cancel := c.mirrorContext(ctx)
	defer cancel()
	if err := c.mirror.Store(ctx, key, ent); err != nil {
		log.Warnw("Cannot mirror entry", "err", err, "key", key)
	}
}

func (c *Cache) mirrorContext(ctx context.Context) (context.Context, context.CancelFunc) {
	if c.mirrorTimeout == 0 {
		return context.WithCancel(ctx)
	}
	return context.WithTimeout(ctx, c.mirrorTimeout)
}

func canceledError(ctx context.Context) error {
	return fmt.Errorf("%w: %w", ErrCanceled, context.Cause(ctx))
}

// IsCanceled reports whether err is the result of cancellation rather than a
// fetch failure.
func IsCanceled(err error) bool {
	return errors.Is(err, ErrCanceled) ||
		errors.Is(err, context.Canceled) ||
		errors.Is(err, context.DeadlineExceeded)
}
