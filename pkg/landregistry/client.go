// Package landregistry fetches the bulk corporate-ownership dataset
// (published as CSV over HTTP or FTP) and sale-price history by postcode
// from the land/title registry.
package landregistry

import (
	"context"
	"encoding/csv"
	"encoding/json"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/jlaffaye/ftp"
	"github.com/rotisserie/eris"
	"golang.org/x/time/rate"

	"github.com/marcuswonder/marketoffer-services-sub000/internal/resilience"
)

// OwnershipRow is one parsed row of the corporate-ownership dataset.
type OwnershipRow struct {
	TitleNumber     string
	PropertyAddress string
	District        string
	Postcode        string
	ProprietorName  string
	CompanyNumber   string
}

// SaleRecord is one price-paid transaction at a postcode.
type SaleRecord struct {
	Amount int    `json:"amount"`
	Date   string `json:"date"` // YYYY-MM-DD
	SAON   string `json:"saon,omitempty"`
	PAON   string `json:"paon,omitempty"`
	Street string `json:"street,omitempty"`
}

// Year returns the sale year, or 0 if the date is malformed.
func (s SaleRecord) Year() int {
	if len(s.Date) < 4 {
		return 0
	}
	var y int
	for _, r := range s.Date[:4] {
		if r < '0' || r > '9' {
			return 0
		}
		y = y*10 + int(r-'0')
	}
	return y
}

// RowFunc receives each dataset row as it is streamed. Returning an error
// aborts the fetch.
type RowFunc func(row OwnershipRow) error

// Client defines the land-registry operations consumed by the core.
type Client interface {
	// FetchOwnershipDataset streams the CSV at srcURL (http, https, or ftp
	// scheme) row by row into fn.
	FetchOwnershipDataset(ctx context.Context, srcURL string, fn RowFunc) (int, error)
	// PricePaidByPostcode returns sale history for a postcode, most recent
	// first. An unknown postcode is an empty result.
	PricePaidByPostcode(ctx context.Context, postcode string) ([]SaleRecord, error)
}

// Option configures the client.
type Option func(*client)

// WithBaseURL sets the price-paid API base URL (for testing).
func WithBaseURL(base string) Option {
	return func(c *client) { c.baseURL = base }
}

// WithHTTPClient sets a custom underlying HTTP client.
func WithHTTPClient(h *http.Client) Option {
	return func(c *client) { c.http = h }
}

type client struct {
	baseURL string
	http    *http.Client
	limiter *rate.Limiter
	retry   resilience.RetryConfig
}

// NewClient creates a land-registry client.
func NewClient(baseURL string, opts ...Option) Client {
	c := &client{
		baseURL: baseURL,
		http:    &http.Client{Timeout: 5 * time.Minute},
		limiter: rate.NewLimiter(1, 1),
		retry:   resilience.DefaultRetryConfig(),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

func (c *client) FetchOwnershipDataset(ctx context.Context, srcURL string, fn RowFunc) (int, error) {
	u, err := url.Parse(srcURL)
	if err != nil {
		return 0, eris.Wrap(err, "landregistry: parse dataset url")
	}

	var body io.ReadCloser
	switch u.Scheme {
	case "http", "https":
		body, err = c.openHTTP(ctx, srcURL)
	case "ftp":
		body, err = openFTP(ctx, u)
	default:
		return 0, eris.Errorf("landregistry: unsupported scheme %q", u.Scheme)
	}
	if err != nil {
		return 0, err
	}
	defer body.Close()

	return streamCSV(body, fn)
}

func (c *client) openHTTP(ctx context.Context, srcURL string) (io.ReadCloser, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, srcURL, nil)
	if err != nil {
		return nil, eris.Wrap(err, "landregistry: build request")
	}
	resp, err := c.http.Do(req)
	if err != nil {
		return nil, eris.Wrap(err, "landregistry: fetch dataset")
	}
	if resp.StatusCode != http.StatusOK {
		resp.Body.Close()
		if resilience.IsTransientHTTPStatus(resp.StatusCode) {
			return nil, resilience.NewTransientError(
				eris.Errorf("landregistry: status %d", resp.StatusCode), resp.StatusCode)
		}
		return nil, eris.Errorf("landregistry: status %d", resp.StatusCode)
	}
	return resp.Body, nil
}

// ftpBody ties the retrieved file to its connection so Close tears down both.
type ftpBody struct {
	*ftp.Response
	conn *ftp.ServerConn
}

func (b *ftpBody) Close() error {
	err := b.Response.Close()
	if quitErr := b.conn.Quit(); err == nil {
		err = quitErr
	}
	return err
}

func openFTP(ctx context.Context, u *url.URL) (io.ReadCloser, error) {
	addr := u.Host
	if u.Port() == "" {
		addr += ":21"
	}
	conn, err := ftp.Dial(addr, ftp.DialWithContext(ctx), ftp.DialWithTimeout(30*time.Second))
	if err != nil {
		return nil, eris.Wrap(err, "landregistry: ftp dial")
	}

	user, pass := "anonymous", "anonymous"
	if u.User != nil {
		user = u.User.Username()
		if p, ok := u.User.Password(); ok {
			pass = p
		}
	}
	if err := conn.Login(user, pass); err != nil {
		conn.Quit()
		return nil, eris.Wrap(err, "landregistry: ftp login")
	}

	resp, err := conn.Retr(strings.TrimPrefix(u.Path, "/"))
	if err != nil {
		conn.Quit()
		return nil, eris.Wrap(err, "landregistry: ftp retrieve")
	}
	return &ftpBody{Response: resp, conn: conn}, nil
}

// streamCSV parses the dataset header, then feeds each row to fn. Column
// positions come from the header so publisher column reordering is safe.
func streamCSV(r io.Reader, fn RowFunc) (int, error) {
	reader := csv.NewReader(r)
	reader.FieldsPerRecord = -1

	header, err := reader.Read()
	if err != nil {
		return 0, eris.Wrap(err, "landregistry: read csv header")
	}
	col := make(map[string]int, len(header))
	for i, name := range header {
		col[normalizeHeader(name)] = i
	}

	pick := func(record []string, names ...string) string {
		for _, n := range names {
			if i, ok := col[n]; ok && i < len(record) {
				return strings.TrimSpace(record[i])
			}
		}
		return ""
	}

	count := 0
	for {
		record, err := reader.Read()
		if err == io.EOF {
			return count, nil
		}
		if err != nil {
			return count, eris.Wrapf(err, "landregistry: read csv row %d", count+1)
		}

		row := OwnershipRow{
			TitleNumber:     pick(record, "title_number"),
			PropertyAddress: pick(record, "property_address"),
			District:        pick(record, "district"),
			Postcode:        pick(record, "postcode"),
			ProprietorName:  pick(record, "proprietor_name_1", "proprietor_name"),
			CompanyNumber:   pick(record, "company_registration_no_1", "company_registration_no"),
		}
		if row.ProprietorName == "" {
			continue
		}
		if err := fn(row); err != nil {
			return count, err
		}
		count++
	}
}

func normalizeHeader(name string) string {
	name = strings.ToLower(strings.TrimSpace(name))
	name = strings.ReplaceAll(name, " ", "_")
	name = strings.ReplaceAll(name, ".", "")
	name = strings.ReplaceAll(name, "(", "")
	name = strings.ReplaceAll(name, ")", "")
	return name
}

func (c *client) PricePaidByPostcode(ctx context.Context, postcode string) ([]SaleRecord, error) {
	q := url.Values{"postcode": {postcode}}

	return resilience.DoVal(ctx, c.retry, func(ctx context.Context) ([]SaleRecord, error) {
		if err := c.limiter.Wait(ctx); err != nil {
			return nil, err
		}

		req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+"/price-paid?"+q.Encode(), nil)
		if err != nil {
			return nil, eris.Wrap(err, "landregistry: build request")
		}
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
				eris.Errorf("landregistry: status %d", resp.StatusCode), resp.StatusCode)
		default:
			return nil, eris.Errorf("landregistry: unexpected status %d", resp.StatusCode)
		}

		body, err := io.ReadAll(resp.Body)
		if err != nil {
			return nil, eris.Wrap(err, "landregistry: read body")
		}
		var payload struct {
			Sales []SaleRecord `json:"sales"`
		}
		if err := json.Unmarshal(body, &payload); err != nil {
			return nil, eris.Wrap(err, "landregistry: decode response")
		}
		return payload.Sales, nil
	})
}
