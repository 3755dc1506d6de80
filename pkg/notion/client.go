// Package notion wraps the Notion API for exporting leads into a database.
package notion

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/jomei/notionapi"
	"github.com/rotisserie/eris"
	"golang.org/x/time/rate"

	"github.com/sells-group/leadgen-cli/internal/resilience"
)

// Client is the slice of the Notion API the lead export needs.
type Client interface {
	QueryDatabase(ctx context.Context, dbID string, req *notionapi.DatabaseQueryRequest) (*notionapi.DatabaseQueryResponse, error)
	CreatePage(ctx context.Context, req *notionapi.PageCreateRequest) (*notionapi.Page, error)
	UpdatePage(ctx context.Context, pageID string, req *notionapi.PageUpdateRequest) (*notionapi.Page, error)
}

// ClientOption configures the Notion client.
type ClientOption func(*notionClient)

// WithRateLimit overrides the 3 req/s default. Zero disables throttling.
func WithRateLimit(rps float64) ClientOption {
	return func(c *notionClient) {
		c.limiter = nil
		if rps > 0 {
			c.limiter = rate.NewLimiter(rate.Limit(rps), max(int(rps), 1))
		}
	}
}

// WithHTTPClient swaps the transport, e.g. to point at a test server.
func WithHTTPClient(hc *http.Client) ClientOption {
	return func(c *notionClient) { c.httpClient = hc }
}

// WithBackoff overrides the retry schedule for conflicts and 5xx replies.
func WithBackoff(b resilience.Backoff) ClientOption {
	return func(c *notionClient) { c.backoff = b }
}

type notionClient struct {
	api        *notionapi.Client
	limiter    *rate.Limiter
	httpClient *http.Client
	backoff    resilience.Backoff
}

// NewClient creates a Notion client for an integration token.
func NewClient(token string, opts ...ClientOption) Client {
	c := &notionClient{
		limiter: rate.NewLimiter(3, 1),
		backoff: resilience.Backoff{Attempts: 3, Initial: 500 * time.Millisecond, Max: 4 * time.Second, Jitter: 0.2},
	}
	for _, opt := range opts {
		opt(c)
	}
	var apiOpts []notionapi.ClientOption
	if c.httpClient != nil {
		apiOpts = append(apiOpts, notionapi.WithHTTPClient(c.httpClient))
	}
	c.api = notionapi.NewClient(notionapi.Token(token), apiOpts...)
	return c
}

// call throttles and retries fn. notionapi already backs off on 429, so
// only edit conflicts and server errors are retried here.
func call[T any](ctx context.Context, c *notionClient, op string, fn func(ctx context.Context) (T, error)) (T, error) {
	return resilience.Retry(ctx, c.backoff, op, func(ctx context.Context) (T, error) {
		var zero T
		if c.limiter != nil {
			if err := c.limiter.Wait(ctx); err != nil {
				return zero, eris.Wrap(err, "notion: rate limit")
			}
		}
		v, err := fn(ctx)
		if err != nil {
			return zero, classify(err)
		}
		return v, nil
	})
}

func classify(err error) error {
	var apiErr *notionapi.Error
	if errors.As(err, &apiErr) && (apiErr.Status == http.StatusConflict || apiErr.Status >= 500) {
		return resilience.NewTransientError(err, apiErr.Status)
	}
	return err
}

func (c *notionClient) QueryDatabase(ctx context.Context, dbID string, req *notionapi.DatabaseQueryRequest) (*notionapi.DatabaseQueryResponse, error) {
	resp, err := call(ctx, c, "notion.query", func(ctx context.Context) (*notionapi.DatabaseQueryResponse, error) {
		return c.api.Database.Query(ctx, notionapi.DatabaseID(dbID), req)
	})
	if err != nil {
		return nil, eris.Wrapf(err, "notion: query database %s", dbID)
	}
	return resp, nil
}

func (c *notionClient) CreatePage(ctx context.Context, req *notionapi.PageCreateRequest) (*notionapi.Page, error) {
	page, err := call(ctx, c, "notion.create_page", func(ctx context.Context) (*notionapi.Page, error) {
		return c.api.Page.Create(ctx, req)
	})
	if err != nil {
		return nil, eris.Wrap(err, "notion: create page")
	}
	return page, nil
}

func (c *notionClient) UpdatePage(ctx context.Context, pageID string, req *notionapi.PageUpdateRequest) (*notionapi.Page, error) {
	page, err := call(ctx, c, "notion.update_page", func(ctx context.Context) (*notionapi.Page, error) {
		return c.api.Page.Update(ctx, notionapi.PageID(pageID), req)
	})
	if err != nil {
		return nil, eris.Wrapf(err, "notion: update page %s", pageID)
	}
	return page, nil
}
