package scrape

import (
	"context"
)

// Page is one fetched web page.
type Page struct {
	URL        string
	Title      string
	HTML       string
	Text       string
	StatusCode int
	Source     string // e.g. "local_http", "jina"
}

// Scraper fetches a single URL.
type Scraper interface {
	Fetch(ctx context.Context, url string) (*Page, error)
	Name() string
	Supports(url string) bool
}
