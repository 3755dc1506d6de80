package enrich

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sells-group/leadgen-cli/internal/scrape"
)

const homeHTML = `<html><head><title>Cafe Central</title></head><body>
<h1>Cafe Central</h1><p>Coffee, cake and breakfast in the middle of the city since 1998.</p>
<a href="/impressum">Impressum</a><a href="/private/kontakt">Kontakt</a>
</body></html>`

func newSite(t *testing.T, robots string) (*httptest.Server, *atomic.Int64) {
	t.Helper()
	var robotsHits atomic.Int64
	mux := http.NewServeMux()
	mux.HandleFunc("/robots.txt", func(w http.ResponseWriter, _ *http.Request) {
		robotsHits.Add(1)
		if robots == "" {
			w.WriteHeader(http.StatusNotFound)
			return
		}
		_, _ = w.Write([]byte(robots))
	})
	mux.HandleFunc("/", func(w http.ResponseWriter, _ *http.Request) {
		_, _ = w.Write([]byte(homeHTML))
	})
	mux.HandleFunc("/private/kontakt", func(w http.ResponseWriter, _ *http.Request) {
		_, _ = w.Write([]byte(homeHTML + `<a href="mailto:hidden@cafe-central.de">mail</a>`))
	})
	srv := httptest.NewServer(mux)
	t.Cleanup(srv.Close)
	return srv, &robotsHits
}

func TestWebCrawler_Homepage(t *testing.T) {
	srv, _ := newSite(t, "")
	c := NewWebCrawler(scrape.NewChain(nil, scrape.NewLocalScraper()), WithRobots(srv.Client(), "LeadgenBot"))

	page, err := c.Homepage(context.Background(), srv.URL)
	require.NoError(t, err)
	assert.Equal(t, []string{srv.URL + "/impressum", srv.URL + "/private/kontakt"}, page.ContactLinks)
}

func TestWebCrawler_RobotsDisallow(t *testing.T) {
	srv, hits := newSite(t, "User-agent: *\nDisallow: /private/\n")
	c := NewWebCrawler(scrape.NewChain(nil, scrape.NewLocalScraper()), WithRobots(srv.Client(), "LeadgenBot"))

	_, err := c.Page(context.Background(), srv.URL+"/private/kontakt")
	require.Error(t, err)
	assert.True(t, errors.Is(err, ErrDisallowed))

	_, err = c.Page(context.Background(), srv.URL+"/")
	require.NoError(t, err)
	assert.EqualValues(t, 1, hits.Load(), "robots.txt is cached per host")
}

func TestWebCrawler_RobotsIgnoredWhenDisabled(t *testing.T) {
	srv, hits := newSite(t, "User-agent: *\nDisallow: /\n")
	c := NewWebCrawler(scrape.NewChain(nil, scrape.NewLocalScraper()))

	page, err := c.Page(context.Background(), srv.URL+"/private/kontakt")
	require.NoError(t, err)
	assert.Equal(t, []string{"hidden@cafe-central.de"}, page.Emails)
	assert.Zero(t, hits.Load())
}

func TestNormalizeWebsite(t *testing.T) {
	tests := []struct {
		in      string
		want    string
		wantErr bool
	}{
		{"bakery-sun.de", "https://bakery-sun.de", false},
		{" http://bakery-sun.de/ ", "http://bakery-sun.de/", false},
		{"", "", true},
		{"ftp://files.de", "", true},
		{"https://", "", true},
	}
	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			got, err := NormalizeWebsite(tt.in)
			if tt.wantErr {
				assert.Error(t, err)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}
