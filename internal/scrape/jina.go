package scrape

import (
	"context"
	"strings"
	"time"

	"github.com/PuerkitoBio/goquery"
	"github.com/rotisserie/eris"

	"github.com/sells-group/leadgen-cli/internal/resilience"
	"github.com/sells-group/leadgen-cli/pkg/jina"
)

var challengeSignatures = []string{
	"checking your browser",
	"enable javascript",
	"please enable cookies",
	"access denied",
	"403 forbidden",
	"just a moment",
	"cloudflare",
	"attention required",
}

// errNeedsFallback marks a reader response with no usable content.
var errNeedsFallback = eris.New("jina: response needs fallback")

// JinaAdapter renders pages through the Jina Reader, behind a circuit
// breaker so a failing upstream is skipped quickly.
type JinaAdapter struct {
	client  jina.Client
	breaker *resilience.Breaker
}

// NewJinaAdapter creates a JinaAdapter. Three consecutive failures open
// the circuit for a minute.
func NewJinaAdapter(client jina.Client) *JinaAdapter {
	return &JinaAdapter{
		client:  client,
		breaker: resilience.NewBreaker("scrape.jina", 3, time.Minute),
	}
}

func (j *JinaAdapter) Name() string { return "jina" }

// Supports returns true unless the circuit breaker is open.
func (j *JinaAdapter) Supports(_ string) bool {
	return j.breaker.State() != resilience.Open
}

// Fetch renders a URL to HTML via the reader.
func (j *JinaAdapter) Fetch(ctx context.Context, targetURL string) (*Page, error) {
	return resilience.Guard(ctx, j.breaker, func(ctx context.Context) (*Page, error) {
		resp, err := j.client.Read(ctx, targetURL, jina.WithFormat("html"))
		if err != nil {
			return nil, resilience.NewTransientError(err, resilience.StatusCode(err))
		}
		if needsFallback(resp) {
			return nil, resilience.NewTransientError(errNeedsFallback, 0)
		}

		html := resp.Data.HTML
		if html == "" {
			html = resp.Data.Content
		}
		text := resp.Data.Content
		if doc, err := goquery.NewDocumentFromReader(strings.NewReader(html)); err == nil {
			text = VisibleText(doc)
		}
		u := resp.Data.URL
		if u == "" {
			u = targetURL
		}
		return &Page{
			URL:        u,
			Title:      resp.Data.Title,
			HTML:       html,
			Text:       text,
			StatusCode: 200,
			Source:     "jina",
		}, nil
	})
}

// needsFallback reports whether a reader response is empty or a bot
// challenge rather than the site itself.
func needsFallback(resp *jina.ReadResponse) bool {
	if resp == nil {
		return true
	}
	if resp.Code != 0 && resp.Code != 200 {
		return true
	}

	content := strings.TrimSpace(resp.Data.Content)
	if len(content) < 100 {
		return true
	}

	lower := strings.ToLower(content)
	for _, sig := range challengeSignatures {
		if strings.Contains(lower, sig) && len(content) < 1000 {
			return true
		}
	}
	return false
}
