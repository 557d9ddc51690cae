package httpfetch

import (
	"fmt"
	"net/http"
	"time"
)

type config struct {
	httpClient   *http.Client
	timeout      time.Duration
	retryMax     int
	retryWaitMin time.Duration
	retryWaitMax time.Duration
}

// Option is a function that sets a value in a config.
type Option func(*config) error

// getOpts creates a config and applies Options to it.
func getOpts(opts []Option) (config, error) {
	var cfg config
	for i, opt := range opts {
		if err := opt(&cfg); err != nil {
			return config{}, fmt.Errorf("option %d failed: %s", i, err)
		}
	}
	return cfg, nil
}

// WithClient sets the http client used for requests. When retries are
// enabled, the client is wrapped by the retrying client.
func WithClient(c *http.Client) Option {
	return func(cfg *config) error {
		if c != nil {
			cfg.httpClient = c
		}
		return nil
	}
}

// WithTimeout sets the overall timeout of a single request, including its
// retries. A zero value means no timeout other than the one on the context
// passed to Fetch.
func WithTimeout(d time.Duration) Option {
	return func(cfg *config) error {
		if d < 0 {
			return fmt.Errorf("timeout cannot be negative: %s", d)
		}
		cfg.timeout = d
		return nil
	}
}

// WithRetry enables retrying of failed requests. Requests that fail with a
// connection error, a 429, or a 5xx status other than 501 are retried up to
// retryMax times, waiting between retryWaitMin and retryWaitMax with
// exponential backoff. A Retry-After header from the provider is honored.
func WithRetry(retryMax int, retryWaitMin, retryWaitMax time.Duration) Option {
	return func(cfg *config) error {
		if retryMax < 0 {
			return fmt.Errorf("retry max cannot be negative: %d", retryMax)
		}
		if retryWaitMin > retryWaitMax {
			return fmt.Errorf("retry wait min %s greater than max %s", retryWaitMin, retryWaitMax)
		}
		cfg.retryMax = retryMax
		cfg.retryWaitMin = retryWaitMin
		cfg.retryWaitMax = retryWaitMax
		return nil
	}
}
