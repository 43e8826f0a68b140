package catalog

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"readingnotes/internal"
	"readingnotes/internal/util"
)

// Client is the HTTP transport shared by the provider sources. Each call is
// a single attempt: a failed request is final for that provider within one
// resolve.
type Client struct {
	name       string
	baseURL    string
	headers    http.Header
	httpClient *http.Client
	limiter    *RateLimiter
}

func newClient(name, baseURL string, headers http.Header, timeoutMs, rps int) *Client {
	return &Client{
		name:       name,
		baseURL:    baseURL,
		headers:    headers,
		httpClient: &http.Client{Timeout: time.Duration(timeoutMs) * time.Millisecond},
		limiter:    NewRateLimiter(rps),
	}
}

func (c *Client) fetchJSON(ctx context.Context, params url.Values, out any) error {
	u, err := url.Parse(c.baseURL)
	if err != nil {
		return err
	}
	q := u.Query()
	for k, vs := range params {
		for _, v := range vs {
			q.Add(k, v)
		}
	}
	u.RawQuery = q.Encode()

	if err := c.limiter.WaitTurn(ctx); err != nil {
		return err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, u.String(), nil)
	if err != nil {
		return err
	}
	for k, vs := range c.headers {
		for _, v := range vs {
			req.Header.Add(k, v)
		}
	}
	req.Header.Set("Accept", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("%s request: %w", c.name, err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return fmt.Errorf("%s read body: %w", c.name, err)
	}
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return fmt.Errorf("%s api error: status=%d body=%s", c.name, resp.StatusCode, truncate(string(body), 512))
	}
	if err := json.Unmarshal(body, out); err != nil {
		return fmt.Errorf("%s decode: %w", c.name, err)
	}
	return nil
}

func joinAuthors(names []string) string {
	out := make([]string, 0, len(names))
	for _, name := range names {
		if name = util.StripHTML(name); name != "" {
			out = append(out, name)
		}
	}
	return strings.Join(out, ", ")
}

func clampLimit(limit, lo, hi int) int {
	return min(max(limit, lo), hi)
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n] + "..."
}

// fillISBN sets isbn10/isbn13 from a raw provider field. Absent lengths stay nil.
func fillISBN(c *internal.Candidate, raw string) {
	isbn10, isbn13 := util.SplitISBN(raw)
	c.ISBN10 = util.NonEmpty(isbn10)
	c.ISBN13 = util.NonEmpty(isbn13)
}

// externalID picks the provider's document URL, falling back to isbn13 then
// isbn10. It may end up empty.
func externalID(docURL string, c internal.Candidate) string {
	if id := util.NormalizeSpaces(docURL); id != "" {
		return id
	}
	if c.ISBN13 != nil {
		return *c.ISBN13
	}
	return util.Deref(c.ISBN10)
}
