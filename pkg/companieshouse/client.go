// Package companieshouse provides a typed client for the UK company
// registry: officer and PSC lookups plus free-text company and officer
// search. Entities below the filing threshold return 404 from the API; the
// client maps that to an empty result rather than an error.
package companieshouse

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/rotisserie/eris"
	"golang.org/x/time/rate"

	"github.com/marcuswonder/marketoffer-services-sub000/internal/resilience"
)

// DOB is a partial date of birth as filed (day is never published).
type DOB struct {
	Month int `json:"month,omitempty"`
	Year  int `json:"year"`
}

// Address is an address as filed with the registry. For officers this is
// the personal service address; a company's registered office address is a
// different field and must not be treated as personal evidence.
type Address struct {
	Premises     string `json:"premises,omitempty"`
	AddressLine1 string `json:"address_line_1,omitempty"`
	AddressLine2 string `json:"address_line_2,omitempty"`
	Locality     string `json:"locality,omitempty"`
	PostalCode   string `json:"postal_code,omitempty"`
}

// Officer is one appointment on a company.
type Officer struct {
	Name        string  `json:"name"`
	OfficerID   string  `json:"officer_id,omitempty"`
	Role        string  `json:"officer_role"`
	AppointedOn string  `json:"appointed_on,omitempty"`
	ResignedOn  string  `json:"resigned_on,omitempty"`
	DateOfBirth *DOB    `json:"date_of_birth,omitempty"`
	Address     Address `json:"address"`
}

// PSC is a person with significant control over a company.
type PSC struct {
	Name          string  `json:"name"`
	Kind          string  `json:"kind,omitempty"`
	NotifiedOn    string  `json:"notified_on,omitempty"`
	CeasedOn      string  `json:"ceased_on,omitempty"`
	DateOfBirth   *DOB    `json:"date_of_birth,omitempty"`
	Address       Address `json:"address"`
	CompanyNumber string  `json:"company_number,omitempty"`
}

// CompanyHit is one free-text company search result.
type CompanyHit struct {
	CompanyNumber  string `json:"company_number"`
	Title          string `json:"title"`
	CompanyStatus  string `json:"company_status,omitempty"`
	AddressSnippet string `json:"address_snippet,omitempty"`
}

// OfficerHit is one free-text officer search result.
type OfficerHit struct {
	Name             string `json:"title"`
	OfficerID        string `json:"officer_id,omitempty"`
	AddressSnippet   string `json:"address_snippet,omitempty"`
	DateOfBirth      *DOB   `json:"date_of_birth,omitempty"`
	AppointmentCount int    `json:"appointment_count,omitempty"`
}

// Client defines the registry operations consumed by the resolution core.
type Client interface {
	GetOfficers(ctx context.Context, companyNumber string) ([]Officer, error)
	GetPSCs(ctx context.Context, companyNumber string) ([]PSC, error)
	SearchCompanies(ctx context.Context, query string) ([]CompanyHit, error)
	SearchOfficers(ctx context.Context, query string) ([]OfficerHit, error)
}

// Option configures the client.
type Option func(*httpClient)

// WithBaseURL sets a custom base URL (for testing).
func WithBaseURL(base string) Option {
	return func(c *httpClient) { c.baseURL = base }
}

// WithRateLimit overrides the default registry rate limit (2 req/s).
func WithRateLimit(rps float64) Option {
	return func(c *httpClient) {
		if rps > 0 {
			c.limiter = rate.NewLimiter(rate.Limit(rps), max(int(rps), 1))
		}
	}
}

// WithHTTPClient sets a custom underlying HTTP client.
func WithHTTPClient(h *http.Client) Option {
	return func(c *httpClient) { c.http = h }
}

type httpClient struct {
	apiKey  string
	baseURL string
	http    *http.Client
	limiter *rate.Limiter
	retry   resilience.RetryConfig
}

// NewClient creates a registry client authenticated with the given API key.
func NewClient(apiKey string, opts ...Option) Client {
	c := &httpClient{
		apiKey:  apiKey,
		baseURL: "https://api.company-information.service.gov.uk",
		http:    &http.Client{Timeout: 30 * time.Second},
		limiter: rate.NewLimiter(2, 2),
		retry:   resilience.DefaultRetryConfig(),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

func (c *httpClient) GetOfficers(ctx context.Context, companyNumber string) ([]Officer, error) {
	var page struct {
		Items []struct {
			Officer
			Links struct {
				Officer struct {
					Appointments string `json:"appointments"`
				} `json:"officer"`
			} `json:"links"`
		} `json:"items"`
	}
	path := fmt.Sprintf("/company/%s/officers", url.PathEscape(companyNumber))
	if err := c.get(ctx, path, nil, &page); err != nil {
		return nil, eris.Wrapf(err, "companieshouse: officers %s", companyNumber)
	}

	officers := make([]Officer, 0, len(page.Items))
	for _, item := range page.Items {
		o := item.Officer
		if o.OfficerID == "" {
			o.OfficerID = officerIDFromLink(item.Links.Officer.Appointments)
		}
		officers = append(officers, o)
	}
	return officers, nil
}

func (c *httpClient) GetPSCs(ctx context.Context, companyNumber string) ([]PSC, error) {
	var page struct {
		Items []PSC `json:"items"`
	}
	path := fmt.Sprintf("/company/%s/persons-with-significant-control", url.PathEscape(companyNumber))
	if err := c.get(ctx, path, nil, &page); err != nil {
		return nil, eris.Wrapf(err, "companieshouse: pscs %s", companyNumber)
	}
	for i := range page.Items {
		page.Items[i].CompanyNumber = companyNumber
	}
	return page.Items, nil
}

func (c *httpClient) SearchCompanies(ctx context.Context, query string) ([]CompanyHit, error) {
	var page struct {
		Items []CompanyHit `json:"items"`
	}
	q := url.Values{"q": {query}, "items_per_page": {"20"}}
	if err := c.get(ctx, "/search/companies", q, &page); err != nil {
		return nil, eris.Wrap(err, "companieshouse: search companies")
	}
	return page.Items, nil
}

func (c *httpClient) SearchOfficers(ctx context.Context, query string) ([]OfficerHit, error) {
	var page struct {
		Items []struct {
			OfficerHit
			Links struct {
				Self string `json:"self"`
			} `json:"links"`
		} `json:"items"`
	}
	q := url.Values{"q": {query}, "items_per_page": {"20"}}
	if err := c.get(ctx, "/search/officers", q, &page); err != nil {
		return nil, eris.Wrap(err, "companieshouse: search officers")
	}

	hits := make([]OfficerHit, 0, len(page.Items))
	for _, item := range page.Items {
		h := item.OfficerHit
		if h.OfficerID == "" {
			h.OfficerID = officerIDFromLink(item.Links.Self)
		}
		hits = append(hits, h)
	}
	return hits, nil
}

// get performs an authenticated GET with rate limiting and retries. A 404
// leaves out untouched: absent entities are an empty result, not an error.
func (c *httpClient) get(ctx context.Context, path string, query url.Values, out any) error {
	return resilience.Do(ctx, c.retry, func(ctx context.Context) error {
		if c.limiter != nil {
			if err := c.limiter.Wait(ctx); err != nil {
				return err
			}
		}

		u := c.baseURL + path
		if len(query) > 0 {
			u += "?" + query.Encode()
		}
		req, err := http.NewRequestWithContext(ctx, http.MethodGet, u, nil)
		if err != nil {
			return eris.Wrap(err, "build request")
		}
		req.SetBasicAuth(c.apiKey, "")

		resp, err := c.http.Do(req)
		if err != nil {
			return err
		}
		defer resp.Body.Close()

		switch {
		case resp.StatusCode == http.StatusNotFound:
			return nil
		case resp.StatusCode == http.StatusOK:
			body, err := io.ReadAll(resp.Body)
			if err != nil {
				return eris.Wrap(err, "read body")
			}
			return eris.Wrap(json.Unmarshal(body, out), "decode response")
		case resilience.IsTransientHTTPStatus(resp.StatusCode):
			return resilience.NewTransientError(
				eris.Errorf("status %d", resp.StatusCode), resp.StatusCode)
		default:
			return eris.Errorf("unexpected status %d", resp.StatusCode)
		}
	})
}

// officerIDFromLink extracts the stable officer id from an appointments or
// search self link of the form /officers/<id>/appointments.
func officerIDFromLink(link string) string {
	const prefix = "/officers/"
	i := strings.Index(link, prefix)
	if i < 0 {
		return ""
	}
	rest := link[i+len(prefix):]
	if j := strings.IndexByte(rest, '/'); j >= 0 {
		return rest[:j]
	}
	return rest
}
