package optcache

import (
	"fmt"
	"time"

	"github.com/benbjohnson/clock"
	"github.com/prometheus/client_golang/prometheus"
)

const (
	defaultMaxEntries    = 4096
	defaultMirrorTimeout = 5 * time.Second
)

type config struct {
	clock         clock.Clock
	maxEntries    int
	mirror        Mirror
	mirrorTimeout time.Duration
	registerer    prometheus.Registerer
}

// Option is a function that sets a value in a config.
type Option func(*config) error

// getOpts creates a config and applies Options to it.
func getOpts(opts []Option) (config, error) {
	cfg := config{
		clock:         clock.New(),
		maxEntries:    defaultMaxEntries,
		mirrorTimeout: defaultMirrorTimeout,
	}
	for i, opt := range opts {
		if err := opt(&cfg); err != nil {
			return config{}, fmt.Errorf("option %d failed: %s", i, err)
		}
	}
	return cfg, nil
}

// WithClock sets the clock used to decide entry validity. Tests use a mock
// clock to move time forward.
func WithClock(c clock.Clock) Option {
	return func(cfg *config) error {
		if c != nil {
			cfg.clock = c
		}
		return nil
	}
}

// WithMaxEntries sets the maximum number of entries held in memory. When the
// store is full the least recently used entry is evicted.
//
// Default is 4096.
func WithMaxEntries(n int) Option {
	return func(cfg *config) error {
		if n <= 0 {
			return fmt.Errorf("max entries must be positive, got %d", n)
		}
		cfg.maxEntries = n
		return nil
	}
}

// WithMirror sets an external key-value store that mirrors the cache.
func WithMirror(m Mirror) Option {
	return func(cfg *config) error {
		cfg.mirror = m
		return nil
	}
}

// WithMirrorTimeout bounds each mirror read or write. A zero value means mirror
// calls are bounded only by the caller's context.
//
// Default is 5 seconds.
func WithMirrorTimeout(d time.Duration) Option {
	return func(cfg *config) error {
		cfg.mirrorTimeout = d
		return nil
	}
}

// WithRegisterer registers the cache metrics with r. Without it metrics are
// still collected but not exported.
func WithRegisterer(r prometheus.Registerer) Option {
	return func(cfg *config) error {
		cfg.registerer = r
		return nil
	}
}

type resolveConfig struct {
	forceRefresh bool
}

// ResolveOption configures a single call to Resolve.
type ResolveOption func(*resolveConfig)

// ForceRefresh makes Resolve skip cached data and fetch, unless a fetch for
// the key is already in flight, in which case that fetch is joined.
func ForceRefresh() ResolveOption {
	return func(cfg *resolveConfig) {
		cfg.forceRefresh = true
	}
}

func getResolveOpts(opts []ResolveOption) resolveConfig {
	var cfg resolveConfig
	for _, opt := range opts {
		opt(&cfg)
	}
	return cfg
}
