// Package jina provides a client for the Jina AI Reader, which renders
// pages in a headless browser and returns their content.
package jina

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"time"

	"github.com/rotisserie/eris"

	"github.com/sells-group/leadgen-cli/internal/resilience"
)

// Client defines the Jina AI Reader operations.
type Client interface {
	// Read fetches a URL via Jina AI Reader and returns its content.
	Read(ctx context.Context, targetURL string, opts ...ReadOption) (*ReadResponse, error)
}

// ReadResponse is the parsed Jina API response.
type ReadResponse struct {
	Code int      `json:"code"`
	Data ReadData `json:"data"`
}

// ReadData holds the content from Jina.
type ReadData struct {
	Title   string            `json:"title"`
	URL     string            `json:"url"`
	Content string            `json:"content"`
	HTML    string            `json:"html"`
	Links   map[string]string `json:"links"`
	Usage   ReadUsage         `json:"usage"`
}

// ReadUsage tracks token consumption.
type ReadUsage struct {
	Tokens int `json:"tokens"`
}

// ReadOption configures a single read.
type ReadOption func(*readOpts)

type readOpts struct {
	format      string
	waitFor     string
	timeoutSecs int
	withLinks   bool
	noCache     bool
}

// WithFormat selects the returned content format ("markdown", "html", "text").
func WithFormat(format string) ReadOption {
	return func(o *readOpts) { o.format = format }
}

// WithWaitForSelector makes the browser wait until selector appears.
func WithWaitForSelector(selector string) ReadOption {
	return func(o *readOpts) { o.waitFor = selector }
}

// WithTimeout bounds the page render time.
func WithTimeout(secs int) ReadOption {
	return func(o *readOpts) { o.timeoutSecs = secs }
}

// WithLinksSummary asks for a map of link text to URL.
func WithLinksSummary() ReadOption {
	return func(o *readOpts) { o.withLinks = true }
}

// WithNoCache bypasses Jina's page cache.
func WithNoCache() ReadOption {
	return func(o *readOpts) { o.noCache = true }
}

// Option configures the Jina client.
type Option func(*httpClient)

// WithBaseURL sets a custom base URL (for testing).
func WithBaseURL(url string) Option {
	return func(c *httpClient) {
		c.baseURL = url
	}
}

// WithHTTPClient sets a custom HTTP client.
func WithHTTPClient(hc *http.Client) Option {
	return func(c *httpClient) {
		c.http = hc
	}
}

// WithBackoff overrides the retry schedule.
func WithBackoff(b resilience.Backoff) Option {
	return func(c *httpClient) {
		c.backoff = b
	}
}

type httpClient struct {
	apiKey  string
	baseURL string
	http    *http.Client
	backoff resilience.Backoff
}

// NewClient creates a new Jina AI Reader client. The API key is optional;
// without one Jina applies its anonymous rate limit.
func NewClient(apiKey string, opts ...Option) Client {
	c := &httpClient{
		apiKey:  apiKey,
		baseURL: "https://r.jina.ai",
		http: &http.Client{
			Timeout: 60 * time.Second,
			Transport: &http.Transport{
				MaxIdleConnsPerHost: 20,
				IdleConnTimeout:     90 * time.Second,
			},
		},
		backoff: resilience.Backoff{Attempts: 3, Initial: time.Second, Max: 8 * time.Second},
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

func (c *httpClient) Read(ctx context.Context, targetURL string, opts ...ReadOption) (*ReadResponse, error) {
	ro := readOpts{format: "markdown"}
	for _, o := range opts {
		o(&ro)
	}

	reqURL := fmt.Sprintf("%s/%s", c.baseURL, targetURL)

	return resilience.Retry(ctx, c.backoff, "jina.read", func(ctx context.Context) (*ReadResponse, error) {
		req, err := http.NewRequestWithContext(ctx, http.MethodGet, reqURL, nil)
		if err != nil {
			return nil, eris.Wrap(err, "jina: create request")
		}

		if c.apiKey != "" {
			req.Header.Set("Authorization", "Bearer "+c.apiKey)
		}
		req.Header.Set("Accept", "application/json")
		req.Header.Set("X-Return-Format", ro.format)
		if ro.waitFor != "" {
			req.Header.Set("X-Wait-For-Selector", ro.waitFor)
		}
		if ro.timeoutSecs > 0 {
			req.Header.Set("X-Timeout", strconv.Itoa(ro.timeoutSecs))
		}
		if ro.withLinks {
			req.Header.Set("X-With-Links-Summary", "true")
		}
		if ro.noCache {
			req.Header.Set("X-No-Cache", "true")
		}

		resp, err := c.http.Do(req)
		if err != nil {
			return nil, eris.Wrap(err, "jina: request failed")
		}
		defer resp.Body.Close() //nolint:errcheck

		if err := resilience.CheckResponse(resp, "jina"); err != nil {
			return nil, err
		}

		body, err := io.ReadAll(resp.Body)
		if err != nil {
			return nil, eris.Wrap(err, "jina: read response body")
		}

		var result ReadResponse
		if err := json.Unmarshal(body, &result); err != nil {
			return nil, eris.Wrap(err, "jina: unmarshal response")
		}
		return &result, nil
	})
}
