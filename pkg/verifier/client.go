// Package verifier is the verification service adapter: given a host or a
// person plus collected evidence, it returns a structured verdict with a
// confidence. The resolution core consumes only the verdict types here; the
// page fetching and model call are implementation details of this adapter.
package verifier

import (
	"context"
	"encoding/json"
	"net/http"
	"strings"
	"time"

	"github.com/PuerkitoBio/goquery"
	sdk "github.com/anthropics/anthropic-sdk-go"
	"github.com/anthropics/anthropic-sdk-go/option"
	"github.com/rotisserie/eris"

	"github.com/marcuswonder/marketoffer-services-sub000/internal/resilience"
)

// SiteVerdict answers "is this host the company's site".
type SiteVerdict struct {
	IsMatch    bool    `json:"is_match"`
	Confidence float64 `json:"confidence"`
	Reason     string  `json:"reason,omitempty"`
}

// PersonQuery is the evidence bundle for a person verification.
type PersonQuery struct {
	FullName string   `json:"full_name"`
	Address  string   `json:"address"`
	Evidence []string `json:"evidence"`
}

// PersonVerdict answers "is this person the likely owner".
type PersonVerdict struct {
	IsOwner    bool    `json:"is_owner"`
	Confidence float64 `json:"confidence"`
	Reason     string  `json:"reason,omitempty"`
}

// Client defines the verification operations consumed by the core.
type Client interface {
	VerifySite(ctx context.Context, host, companyName string) (*SiteVerdict, error)
	VerifyPerson(ctx context.Context, q PersonQuery) (*PersonVerdict, error)
}

// Option configures the verifier.
type Option func(*verifier)

// WithModel overrides the model used for verdicts.
func WithModel(model string) Option {
	return func(v *verifier) { v.model = model }
}

// WithHTTPClient sets the client used to fetch pages.
func WithHTTPClient(h *http.Client) Option {
	return func(v *verifier) { v.http = h }
}

type verifier struct {
	ai    sdk.Client
	model string
	http  *http.Client
	retry resilience.RetryConfig
}

// NewClient creates a verifier backed by the Anthropic API.
func NewClient(apiKey string, opts ...Option) Client {
	v := &verifier{
		ai:    sdk.NewClient(option.WithAPIKey(apiKey)),
		model: "claude-haiku-4-5-20251001",
		http:  &http.Client{Timeout: 20 * time.Second},
		retry: resilience.DefaultRetryConfig(),
	}
	for _, opt := range opts {
		opt(v)
	}
	return v
}

const siteSystemPrompt = `You verify whether a website belongs to a named UK company.
Respond with a single JSON object: {"is_match": bool, "confidence": 0.0-1.0, "reason": "..."}.
Company registration numbers, trading names, and contact addresses on the page are strong evidence.`

const personSystemPrompt = `You assess whether a named person is the likely owner-occupier of a UK residential property, given the evidence lines provided.
Respond with a single JSON object: {"is_owner": bool, "confidence": 0.0-1.0, "reason": "..."}.`

func (v *verifier) VerifySite(ctx context.Context, host, companyName string) (*SiteVerdict, error) {
	pageText, err := v.fetchPageText(ctx, host)
	if err != nil {
		return nil, eris.Wrapf(err, "verifier: fetch %s", host)
	}

	var prompt strings.Builder
	prompt.WriteString("Company name: " + companyName + "\n")
	prompt.WriteString("Host: " + host + "\n\n")
	prompt.WriteString("Page content:\n" + pageText)

	raw, err := v.ask(ctx, siteSystemPrompt, prompt.String())
	if err != nil {
		return nil, err
	}

	var verdict SiteVerdict
	if err := json.Unmarshal([]byte(raw), &verdict); err != nil {
		return nil, eris.Wrap(err, "verifier: decode site verdict")
	}
	return &verdict, nil
}

func (v *verifier) VerifyPerson(ctx context.Context, q PersonQuery) (*PersonVerdict, error) {
	var prompt strings.Builder
	prompt.WriteString("Person: " + q.FullName + "\n")
	prompt.WriteString("Property: " + q.Address + "\n")
	prompt.WriteString("Evidence:\n")
	for _, e := range q.Evidence {
		prompt.WriteString("- " + e + "\n")
	}

	raw, err := v.ask(ctx, personSystemPrompt, prompt.String())
	if err != nil {
		return nil, err
	}

	var verdict PersonVerdict
	if err := json.Unmarshal([]byte(raw), &verdict); err != nil {
		return nil, eris.Wrap(err, "verifier: decode person verdict")
	}
	return &verdict, nil
}

// fetchPageText loads the host's homepage and extracts title, meta
// description, and visible text, truncated to keep prompts small.
func (v *verifier) fetchPageText(ctx context.Context, host string) (string, error) {
	target := host
	if !strings.Contains(target, "://") {
		target = "https://" + target
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, target, nil)
	if err != nil {
		return "", eris.Wrap(err, "build request")
	}
	resp, err := v.http.Do(req)
	if err != nil {
		return "", err
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		if resilience.IsTransientHTTPStatus(resp.StatusCode) {
			return "", resilience.NewTransientError(
				eris.Errorf("status %d", resp.StatusCode), resp.StatusCode)
		}
		return "", eris.Errorf("status %d", resp.StatusCode)
	}

	doc, err := goquery.NewDocumentFromReader(resp.Body)
	if err != nil {
		return "", eris.Wrap(err, "parse html")
	}
	doc.Find("script, style, noscript").Remove()

	var b strings.Builder
	b.WriteString("Title: " + strings.TrimSpace(doc.Find("title").First().Text()) + "\n")
	if desc, ok := doc.Find(`meta[name="description"]`).Attr("content"); ok {
		b.WriteString("Description: " + strings.TrimSpace(desc) + "\n")
	}
	text := strings.Join(strings.Fields(doc.Find("body").Text()), " ")
	const maxLen = 6000
	if len(text) > maxLen {
		text = text[:maxLen]
	}
	b.WriteString(text)
	return b.String(), nil
}

// ask sends one message and returns the JSON object from the reply.
func (v *verifier) ask(ctx context.Context, system, user string) (string, error) {
	msg, err := resilience.DoVal(ctx, v.retry, func(ctx context.Context) (*sdk.Message, error) {
		return v.ai.Messages.New(ctx, sdk.MessageNewParams{
			Model:     sdk.Model(v.model),
			MaxTokens: 512,
			System:    []sdk.TextBlockParam{{Text: system}},
			Messages: []sdk.MessageParam{
				sdk.NewUserMessage(sdk.NewTextBlock(user)),
			},
		})
	})
	if err != nil {
		return "", eris.Wrap(err, "verifier: create message")
	}

	var text strings.Builder
	for _, block := range msg.Content {
		if block.Type == "text" {
			text.WriteString(block.Text)
		}
	}
	return extractJSON(text.String()), nil
}

// extractJSON pulls the first {...} object out of a model reply, tolerating
// surrounding prose or code fences.
func extractJSON(s string) string {
	start := strings.IndexByte(s, '{')
	end := strings.LastIndexByte(s, '}')
	if start < 0 || end <= start {
		return s
	}
	return s[start : end+1]
}
