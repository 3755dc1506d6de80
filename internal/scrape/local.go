package scrape

import (
	"bytes"
	"context"
	"io"
	"net"
	"net/http"
	"strings"
	"time"

	"github.com/PuerkitoBio/goquery"
	"github.com/rotisserie/eris"
)

// DefaultUserAgent identifies the crawler to site owners.
const DefaultUserAgent = "Mozilla/5.0 (compatible; LeadgenBot/1.0)"

const maxPageBytes = 1 << 20

// LocalScraper fetches HTML directly. Blocked pages fail so the chain
// can fall through to the reader.
type LocalScraper struct {
	client    *http.Client
	userAgent string
}

// LocalOption configures a LocalScraper.
type LocalOption func(*LocalScraper)

// WithUserAgent sets the User-Agent header.
func WithUserAgent(ua string) LocalOption {
	return func(l *LocalScraper) {
		if ua != "" {
			l.userAgent = ua
		}
	}
}

// WithClient sets the HTTP client.
func WithClient(c *http.Client) LocalOption {
	return func(l *LocalScraper) { l.client = c }
}

// WithTimeout sets the whole-request timeout of the default client.
func WithTimeout(d time.Duration) LocalOption {
	return func(l *LocalScraper) {
		if d > 0 {
			l.client.Timeout = d
		}
	}
}

// NewLocalScraper creates a LocalScraper.
func NewLocalScraper(opts ...LocalOption) *LocalScraper {
	l := &LocalScraper{
		client: &http.Client{
			Timeout: 15 * time.Second,
			Transport: &http.Transport{
				DialContext: (&net.Dialer{
					Timeout: 10 * time.Second,
				}).DialContext,
				TLSHandshakeTimeout: 10 * time.Second,
			},
		},
		userAgent: DefaultUserAgent,
	}
	for _, o := range opts {
		o(l)
	}
	return l
}

func (l *LocalScraper) Name() string { return "local_http" }

func (l *LocalScraper) Supports(_ string) bool { return true }

// UserAgent returns the User-Agent the scraper sends.
func (l *LocalScraper) UserAgent() string { return l.userAgent }

// Fetch downloads a page and keeps its HTML and visible text.
func (l *LocalScraper) Fetch(ctx context.Context, targetURL string) (*Page, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, targetURL, nil)
	if err != nil {
		return nil, eris.Wrap(err, "local_http: create request")
	}
	req.Header.Set("User-Agent", l.userAgent)
	req.Header.Set("Accept", "text/html,application/xhtml+xml")
	req.Header.Set("Accept-Language", "de,en;q=0.8")

	resp, err := l.client.Do(req)
	if err != nil {
		return nil, eris.Wrap(err, "local_http: fetch")
	}
	defer func() { _ = resp.Body.Close() }()

	body, err := io.ReadAll(io.LimitReader(resp.Body, maxPageBytes))
	if err != nil {
		return nil, eris.Wrap(err, "local_http: read body")
	}

	if blocked, blockType := DetectBlock(resp, body); blocked {
		return nil, eris.Errorf("local_http: blocked (%s)", blockType)
	}
	if resp.StatusCode >= 400 {
		return nil, eris.Errorf("local_http: status %d", resp.StatusCode)
	}
	if len(bytes.TrimSpace(body)) < 100 {
		return nil, eris.New("local_http: empty page")
	}

	doc, err := goquery.NewDocumentFromReader(bytes.NewReader(body))
	if err != nil {
		return nil, eris.Wrap(err, "local_http: parse html")
	}

	finalURL := targetURL
	if resp.Request != nil && resp.Request.URL != nil {
		finalURL = resp.Request.URL.String()
	}

	return &Page{
		URL:        finalURL,
		Title:      strings.TrimSpace(doc.Find("title").First().Text()),
		HTML:       string(body),
		Text:       VisibleText(doc),
		StatusCode: resp.StatusCode,
		Source:     "local_http",
	}, nil
}

// VisibleText returns the document's body text without scripts and
// styles, whitespace collapsed. doc is modified.
func VisibleText(doc *goquery.Document) string {
	doc.Find("script, style, noscript, template").Remove()
	return strings.Join(strings.Fields(doc.Find("body").Text()), " ")
}
