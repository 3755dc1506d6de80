package scrape

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// mockScraper implements Scraper for testing.
type mockScraper struct {
	name     string
	supports bool
	page     *Page
	err      error
	calls    int
}

func (m *mockScraper) Name() string { return m.name }

func (m *mockScraper) Supports(_ string) bool { return m.supports }

func (m *mockScraper) Fetch(_ context.Context, _ string) (*Page, error) {
	m.calls++
	return m.page, m.err
}

func TestChain_Fetch_FirstSuccess(t *testing.T) {
	s1 := &mockScraper{name: "primary", supports: true, page: &Page{URL: "https://bakery-sun.de", Source: "primary"}}
	s2 := &mockScraper{name: "fallback", supports: true}

	page, err := NewChain(nil, s1, s2).Fetch(context.Background(), "https://bakery-sun.de")
	require.NoError(t, err)
	assert.Equal(t, "primary", page.Source)
	assert.Zero(t, s2.calls)
}

func TestChain_Fetch_FallbackOnError(t *testing.T) {
	s1 := &mockScraper{name: "primary", supports: true, err: errors.New("blocked")}
	s2 := &mockScraper{name: "fallback", supports: true, page: &Page{Source: "fallback"}}

	page, err := NewChain(nil, s1, s2).Fetch(context.Background(), "https://bakery-sun.de")
	require.NoError(t, err)
	assert.Equal(t, "fallback", page.Source)
}

func TestChain_Fetch_AllFail(t *testing.T) {
	s1 := &mockScraper{name: "s1", supports: true, err: errors.New("s1 error")}
	s2 := &mockScraper{name: "s2", supports: true, err: errors.New("s2 error")}

	page, err := NewChain(nil, s1, s2).Fetch(context.Background(), "https://bakery-sun.de")
	require.Error(t, err)
	assert.Nil(t, page)
	assert.Contains(t, err.Error(), "all scrapers failed")
	assert.Contains(t, err.Error(), "s2 error")
}

func TestChain_Fetch_ExcludedURL(t *testing.T) {
	s1 := &mockScraper{name: "s1", supports: true}

	_, err := NewChain(NewPathMatcher([]string{"*.pdf"}), s1).Fetch(context.Background(), "https://bakery-sun.de/karte.pdf")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "excluded")
	assert.Zero(t, s1.calls)
}

func TestChain_Fetch_SkipsUnsupported(t *testing.T) {
	s1 := &mockScraper{name: "s1", supports: false}
	s2 := &mockScraper{name: "s2", supports: true, page: &Page{Source: "s2"}}

	page, err := NewChain(nil, s1, s2).Fetch(context.Background(), "https://bakery-sun.de")
	require.NoError(t, err)
	assert.Equal(t, "s2", page.Source)
	assert.Zero(t, s1.calls)
}

func TestChain_Fetch_NoSuitableScraper(t *testing.T) {
	_, err := NewChain(nil, &mockScraper{name: "off"}).Fetch(context.Background(), "https://bakery-sun.de")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "no suitable scraper")
}
