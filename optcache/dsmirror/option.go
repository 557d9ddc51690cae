package dsmirror

import (
	"errors"
	"fmt"
)

type config struct {
	prefix string
}

// Option is a function that sets a value in a config.
type Option func(*config) error

// getOpts creates a config and applies Options to it.
func getOpts(opts []Option) (config, error) {
	cfg := config{
		prefix: defaultPrefix,
	}
	for i, opt := range opts {
		if err := opt(&cfg); err != nil {
			return config{}, fmt.Errorf("option %d failed: %s", i, err)
		}
	}
	return cfg, nil
}

// WithPrefix sets the datastore key prefix under which entries are stored.
// Use distinct prefixes to keep caches of different users apart in a shared
// datastore.
//
// Default is "/optcache".
func WithPrefix(prefix string) Option {
	return func(cfg *config) error {
		if prefix == "" || prefix == "/" {
			return errors.New("prefix must not be empty")
		}
		cfg.prefix = prefix
		return nil
	}
}
