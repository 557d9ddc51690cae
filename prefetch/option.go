package prefetch

import (
	"fmt"
	"time"

	"github.com/flowkit/go-optfetch/session"
	"github.com/prometheus/client_golang/prometheus"
)

const (
	defaultTTL           = 5 * time.Minute
	defaultMaxConcurrent = 4
)

type config struct {
	defaultTTL    time.Duration
	maxConcurrent int
	registerer    prometheus.Registerer
	sessions      *session.Registry
}

// Option is a function that sets a value in a config.
type Option func(*config) error

// getOpts creates a config and applies Options to it.
func getOpts(opts []Option) (config, error) {
	cfg := config{
		defaultTTL:    defaultTTL,
		maxConcurrent: defaultMaxConcurrent,
	}
	for i, opt := range opts {
		if err := opt(&cfg); err != nil {
			return config{}, fmt.Errorf("option %d failed: %s", i, err)
		}
	}
	return cfg, nil
}

// WithDefaultTTL sets the time-to-live of prefetched options for fields that
// do not specify their own.
//
// Default is 5 minutes.
func WithDefaultTTL(ttl time.Duration) Option {
	return func(cfg *config) error {
		if ttl <= 0 {
			return fmt.Errorf("default ttl must be positive, got %s", ttl)
		}
		cfg.defaultTTL = ttl
		return nil
	}
}

// WithMaxConcurrent limits how many background fetches run at once, to stay
// within provider rate limits. Fetches for the first node are not limited.
//
// Default is 4.
func WithMaxConcurrent(n int) Option {
	return func(cfg *config) error {
		if n <= 0 {
			return fmt.Errorf("max concurrent must be positive, got %d", n)
		}
		cfg.maxConcurrent = n
		return nil
	}
}

// WithSessions sets the session registry used by Planner.Start.
func WithSessions(r *session.Registry) Option {
	return func(cfg *config) error {
		cfg.sessions = r
		return nil
	}
}

// WithRegisterer registers the planner metrics with r.
func WithRegisterer(r prometheus.Registerer) Option {
	return func(cfg *config) error {
		cfg.registerer = r
		return nil
	}
}
