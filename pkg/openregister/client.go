// Package openregister provides a typed client for the open electoral
// register lookup provider: occupant records per address with first/last
// seen years and an age or birth-year hint.
package openregister

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/url"
	"time"

	"github.com/rotisserie/eris"
	"golang.org/x/time/rate"

	"github.com/marcuswonder/marketoffer-services-sub000/internal/resilience"
)

// Occupant is one register entry at an address.
type Occupant struct {
	FullName      string `json:"full_name"`
	FirstSeenYear *int   `json:"first_seen_year,omitempty"`
	LastSeenYear  *int   `json:"last_seen_year,omitempty"`
	BirthYear     *int   `json:"birth_year,omitempty"`
	AgeEstimate   *int   `json:"age_estimate,omitempty"`
}

// Client defines the open-register operations consumed by the core.
type Client interface {
	// Lookup returns register entries for the address. An unknown address
	// is an empty result, not an error.
	Lookup(ctx context.Context, line1, postcode string) ([]Occupant, error)
}

// Option configures the client.
type Option func(*httpClient)

// WithBaseURL sets a custom base URL (for testing).
func WithBaseURL(base string) Option {
	return func(c *httpClient) { c.baseURL = base }
}

// WithRateLimit overrides the default provider rate limit (1 req/s).
func WithRateLimit(rps float64) Option {
	return func(c *httpClient) {
		if rps > 0 {
			c.limiter = rate.NewLimiter(rate.Limit(rps), max(int(rps), 1))
		}
	}
}

type httpClient struct {
	apiKey  string
	baseURL string
	http    *http.Client
	limiter *rate.Limiter
	retry   resilience.RetryConfig
}

// NewClient creates an open-register client with the given API key.
func NewClient(apiKey, baseURL string, opts ...Option) Client {
	c := &httpClient{
		apiKey:  apiKey,
		baseURL: baseURL,
		http:    &http.Client{Timeout: 30 * time.Second},
		limiter: rate.NewLimiter(1, 1),
	}
	c.retry = resilience.DefaultRetryConfig()
	for _, opt := range opts {
		opt(c)
	}
	return c
}

func (c *httpClient) Lookup(ctx context.Context, line1, postcode string) ([]Occupant, error) {
	q := url.Values{
		"address":  {line1},
		"postcode": {postcode},
	}

	return resilience.DoVal(ctx, c.retry, func(ctx context.Context) ([]Occupant, error) {
		if err := c.limiter.Wait(ctx); err != nil {
			return nil, err
		}

		req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+"/occupants?"+q.Encode(), nil)
		if err != nil {
			return nil, eris.Wrap(err, "openregister: build request")
		}
		req.Header.Set("Authorization", "Bearer "+c.apiKey)

		resp, err := c.http.Do(req)
		if err != nil {
			return nil, err
		}
		defer resp.Body.Close()

		switch {
		case resp.StatusCode == http.StatusNotFound:
			return nil, nil
		case resp.StatusCode == http.StatusOK:
		case resilience.IsTransientHTTPStatus(resp.StatusCode):
			return nil, resilience.NewTransientError(
				eris.Errorf("openregister: status %d", resp.StatusCode), resp.StatusCode)
		default:
			return nil, eris.Errorf("openregister: unexpected status %d", resp.StatusCode)
		}

		body, err := io.ReadAll(resp.Body)
		if err != nil {
			return nil, eris.Wrap(err, "openregister: read body")
		}
		var payload struct {
			Occupants []Occupant `json:"occupants"`
		}
		if err := json.Unmarshal(body, &payload); err != nil {
			return nil, eris.Wrap(err, "openregister: decode response")
		}
		return payload.Occupants, nil
	})
}
