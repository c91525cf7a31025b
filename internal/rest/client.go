// Package rest talks to the platform's HTTP API and memoizes idempotent
// lookups in a TTL cache.
package rest

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/kestrelworks/roost/internal/logging"
)

// StatusError is returned for any non-2xx platform response.
type StatusError struct {
	Code int
	URL  string
	Body string
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("api error (%d) from %s: %s", e.Code, e.URL, e.Body)
}

// Client issues authenticated requests against the platform API. The token
// and bot id are opaque credentials passed through unchanged as the
// session-identifying cookie/header pair.
type Client struct {
	http    *http.Client
	baseURL string
	token   string
	botID   string
	log     *logging.Logger
}

// NewClient creates a platform API client.
func NewClient(baseURL, token, botID string, log *logging.Logger) *Client {
	return &Client{
		http:    &http.Client{Timeout: 30 * time.Second},
		baseURL: strings.TrimRight(baseURL, "/"),
		token:   token,
		botID:   botID,
		log:     log.Sub("rest"),
	}
}

// BaseURL returns the configured API base URL.
func (c *Client) BaseURL() string { return c.baseURL }

// URL joins path onto the API base URL.
func (c *Client) URL(path string) string {
	if !strings.HasPrefix(path, "/") {
		path = "/" + path
	}
	return c.baseURL + path
}

// GetJSON fetches url and decodes the JSON body into out.
func (c *Client) GetJSON(ctx context.Context, rawurl string, out any) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, rawurl, nil)
	if err != nil {
		return fmt.Errorf("creating request: %w", err)
	}
	c.authorize(req)

	body, err := c.do(req)
	if err != nil {
		return err
	}
	if err := json.Unmarshal(body, out); err != nil {
		return fmt.Errorf("decoding response from %s: %w", rawurl, err)
	}
	return nil
}

// PostForm posts form values to url. The response body is discarded; only
// the status matters.
func (c *Client) PostForm(ctx context.Context, rawurl string, form url.Values) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, rawurl, strings.NewReader(form.Encode()))
	if err != nil {
		return fmt.Errorf("creating request: %w", err)
	}
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	c.authorize(req)

	_, err = c.do(req)
	return err
}

// authorize attaches the session cookie/header pair.
func (c *Client) authorize(req *http.Request) {
	req.Header.Set("Cookie", "token="+c.token+"; botid="+c.botID)
	req.Header.Set("X-Bot-ID", c.botID)
}

func (c *Client) do(req *http.Request) ([]byte, error) {
	resp, err := c.http.Do(req)
	if err != nil {
		return nil, fmt.Errorf("request failed: %w", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("reading response: %w", err)
	}

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		c.log.Warn().Int("status", resp.StatusCode).Str("url", req.URL.String()).Msg("api request rejected")
		return nil, &StatusError{Code: resp.StatusCode, URL: req.URL.String(), Body: truncate(string(body), 200)}
	}
	return body, nil
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n] + "..."
}
