package valkeymirror

import (
	"errors"
	"fmt"

	"github.com/benbjohnson/clock"
)

const defaultPrefix = "optcache"

type config struct {
	clock  clock.Clock
	prefix string
}

// Option is a function that sets a value in a config.
type Option func(*config) error

// getOpts creates a config and applies Options to it.
func getOpts(opts []Option) (config, error) {
	cfg := config{
		clock:  clock.New(),
		prefix: defaultPrefix,
	}
	for i, opt := range opts {
		if err := opt(&cfg); err != nil {
			return config{}, fmt.Errorf("option %d failed: %s", i, err)
		}
	}
	return cfg, nil
}

// WithPrefix sets the key prefix. A ":" separator is appended if missing.
//
// Default is "optcache".
func WithPrefix(prefix string) Option {
	return func(cfg *config) error {
		if prefix == "" {
			return errors.New("prefix must not be empty")
		}
		cfg.prefix = prefix
		return nil
	}
}

// WithClock sets the clock used to compute the remaining validity of entries.
func WithClock(c clock.Clock) Option {
	return func(cfg *config) error {
		if c != nil {
			cfg.clock = c
		}
		return nil
	}
}
