// Package httpfetch fetches option lists from an HTTP options gateway.
//
// A Source issues requests of the form
//
//	GET {base}/providers/{providerID}/options/{resourceType}
//
// or, for resources that do not belong to a provider,
//
//	GET {base}/options/{resourceType}
//
// and decodes the JSON array of options in the response. Source.Fetch has the
// signature of prefetch.FetchFunc.
package httpfetch

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"

	"github.com/flowkit/go-optfetch/apierror"
	"github.com/flowkit/go-optfetch/model"
	"github.com/hashicorp/go-retryablehttp"
	logging "github.com/ipfs/go-log/v2"
)

var log = logging.Logger("httpfetch")

const (
	providersPath = "providers"
	optionsPath   = "options"
)

// Source is an options gateway client.
type Source struct {
	url    *url.URL
	client *http.Client
	header http.Header
}

// New creates a Source that requests options from the gateway at baseURL.
func New(baseURL string, options ...Option) (*Source, error) {
	opts, err := getOpts(options)
	if err != nil {
		return nil, err
	}

	u, err := url.Parse(baseURL)
	if err != nil {
		return nil, err
	}
	if u.Scheme != "http" && u.Scheme != "https" {
		return nil, fmt.Errorf("url must have http or https scheme: %s", baseURL)
	}
	u.RawQuery = ""
	u.Fragment = ""

	client := opts.httpClient
	if client == nil {
		client = http.DefaultClient
	}
	if opts.retryMax != 0 {
		rclient := &retryablehttp.Client{
			HTTPClient:   client,
			RetryWaitMin: opts.retryWaitMin,
			RetryWaitMax: opts.retryWaitMax,
			RetryMax:     opts.retryMax,
			CheckRetry:   retryablehttp.DefaultRetryPolicy,
			Backoff:      retryablehttp.DefaultBackoff,
			// Return the last response so that its status is reported.
			ErrorHandler: retryablehttp.PassthroughErrorHandler,
			RequestLogHook: func(_ retryablehttp.Logger, req *http.Request, attempt int) {
				if attempt > 0 {
					log.Debugw("Retrying options request", "url", req.URL.String(), "attempt", attempt)
				}
			},
		}
		client = rclient.StandardClient()
	}
	if opts.timeout != 0 {
		c := *client
		c.Timeout = opts.timeout
		client = &c
	}

	return &Source{
		url:    u,
		client: client,
	}, nil
}

// AddHeader adds a header sent with every request, such as an authorization
// token. It must not be called concurrently with Fetch.
func (s *Source) AddHeader(key, value string) {
	if s.header == nil {
		s.header = make(http.Header)
	}
	s.header.Add(key, value)
}

// Fetch requests the options of resourceType from providerID. A non-200
// response is returned as an *apierror.Error carrying the status.
func (s *Source) Fetch(ctx context.Context, resourceType, providerID string) (model.Options, error) {
	if resourceType == "" {
		return nil, errors.New("empty resource type")
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, s.optionsURL(resourceType, providerID), nil)
	if err != nil {
		return nil, err
	}
	for key, vals := range s.header {
		for _, val := range vals {
			req.Header.Add(key, val)
		}
	}
	req.Header.Add("Accept", "application/json")

	resp, err := s.client.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, err
	}

	if resp.StatusCode != http.StatusOK {
		err = apierror.FromResponse(resp.StatusCode, body)
		var apiErr *apierror.Error
		if errors.As(err, &apiErr) {
			log.Debugw("Options request failed", "resourceType", resourceType, "provider", providerID, "response", apiErr.Text())
		}
		return nil, err
	}

	opts, err := model.UnmarshalOptions(body)
	if err != nil {
		return nil, fmt.Errorf("cannot decode options for %s: %w", resourceType, err)
	}
	return opts, nil
}

func (s *Source) optionsURL(resourceType, providerID string) string {
	u := s.url
	if providerID != "" {
		u = u.JoinPath(providersPath, providerID)
	}
	return u.JoinPath(optionsPath, resourceType).String()
}

func (s *Source) String() string {
	return s.url.String()
}
