package enrich

import (
	"context"
	"io"
	"net/http"
	"net/url"
	"strings"
	"sync"
	"time"

	"github.com/rotisserie/eris"
	"github.com/temoto/robotstxt"
	"go.uber.org/zap"

	"github.com/sells-group/leadgen-cli/internal/scrape"
)

// Crawler fetches a business website and returns its contact evidence.
type Crawler interface {
	// Homepage fetches the site root. A website without a scheme is
	// treated as https.
	Homepage(ctx context.Context, website string) (*Page, error)
	// Page fetches one subpage, usually a contact link from the homepage.
	Page(ctx context.Context, pageURL string) (*Page, error)
}

// Fetcher downloads a page. *scrape.Chain implements it.
type Fetcher interface {
	Fetch(ctx context.Context, url string) (*scrape.Page, error)
}

// ErrDisallowed is returned for URLs robots.txt forbids.
var ErrDisallowed = eris.New("enrich: disallowed by robots.txt")

// WebCrawler is the Crawler over a scrape chain.
type WebCrawler struct {
	fetcher       Fetcher
	region        string
	respectRobots bool
	robots        *robotsCache
}

// CrawlerOption configures a WebCrawler.
type CrawlerOption func(*WebCrawler)

// WithPhoneRegion sets the region for numbers without a country code.
func WithPhoneRegion(region string) CrawlerOption {
	return func(c *WebCrawler) {
		if region != "" {
			c.region = region
		}
	}
}

// WithRobots enables robots.txt checks with the given client and agent.
func WithRobots(client *http.Client, userAgent string) CrawlerOption {
	return func(c *WebCrawler) {
		c.respectRobots = true
		c.robots = newRobotsCache(client, userAgent)
	}
}

// NewWebCrawler creates a WebCrawler.
func NewWebCrawler(fetcher Fetcher, opts ...CrawlerOption) *WebCrawler {
	c := &WebCrawler{
		fetcher: fetcher,
		region:  DefaultRegion,
	}
	for _, o := range opts {
		o(c)
	}
	return c
}

// Homepage implements Crawler.
func (c *WebCrawler) Homepage(ctx context.Context, website string) (*Page, error) {
	u, err := NormalizeWebsite(website)
	if err != nil {
		return nil, err
	}
	return c.Page(ctx, u)
}

// Page implements Crawler.
func (c *WebCrawler) Page(ctx context.Context, pageURL string) (*Page, error) {
	if c.respectRobots && !c.robots.allowed(ctx, pageURL) {
		return nil, eris.Wrap(ErrDisallowed, pageURL)
	}

	fetched, err := c.fetcher.Fetch(ctx, pageURL)
	if err != nil {
		return nil, eris.Wrapf(err, "enrich: fetch %s", pageURL)
	}

	base := fetched.URL
	if base == "" {
		base = pageURL
	}
	return ExtractContacts(base, fetched.HTML, c.region)
}

// NormalizeWebsite adds https:// to bare hosts and rejects anything that
// is not an http(s) URL.
func NormalizeWebsite(website string) (string, error) {
	website = strings.TrimSpace(website)
	if website == "" {
		return "", eris.New("enrich: empty website")
	}
	if !strings.Contains(website, "://") {
		website = "https://" + website
	}
	u, err := url.Parse(website)
	if err != nil || u.Host == "" || (u.Scheme != "http" && u.Scheme != "https") {
		return "", eris.Errorf("enrich: invalid website %q", website)
	}
	return u.String(), nil
}

// robotsCache holds one parsed robots.txt per scheme and host. A nil
// entry allows everything.
type robotsCache struct {
	client    *http.Client
	userAgent string

	mu    sync.Mutex
	hosts map[string]*robotstxt.RobotsData
}

func newRobotsCache(client *http.Client, userAgent string) *robotsCache {
	if client == nil {
		client = &http.Client{Timeout: 10 * time.Second}
	}
	if userAgent == "" {
		userAgent = scrape.DefaultUserAgent
	}
	return &robotsCache{
		client:    client,
		userAgent: userAgent,
		hosts:     make(map[string]*robotstxt.RobotsData),
	}
}

func (r *robotsCache) allowed(ctx context.Context, pageURL string) bool {
	u, err := url.Parse(pageURL)
	if err != nil || u.Host == "" {
		return true
	}
	key := u.Scheme + "://" + u.Host

	r.mu.Lock()
	data, ok := r.hosts[key]
	r.mu.Unlock()
	if !ok {
		data = r.fetch(ctx, key)
		r.mu.Lock()
		r.hosts[key] = data
		r.mu.Unlock()
	}
	if data == nil {
		return true
	}

	path := u.EscapedPath()
	if path == "" {
		path = "/"
	}
	return data.TestAgent(path, r.userAgent)
}

// fetch returns nil on any failure so robots problems never block a crawl.
func (r *robotsCache) fetch(ctx context.Context, base string) *robotstxt.RobotsData {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, base+"/robots.txt", nil)
	if err != nil {
		return nil
	}
	req.Header.Set("User-Agent", r.userAgent)

	resp, err := r.client.Do(req)
	if err != nil {
		zap.L().Debug("enrich: robots.txt unavailable", zap.String("host", base), zap.Error(err))
		return nil
	}
	defer resp.Body.Close() //nolint:errcheck

	if resp.StatusCode != http.StatusOK {
		return nil
	}
	body, err := io.ReadAll(io.LimitReader(resp.Body, 512<<10))
	if err != nil {
		return nil
	}
	data, err := robotstxt.FromBytes(body)
	if err != nil {
		return nil
	}
	return data
}
