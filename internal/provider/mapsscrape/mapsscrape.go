// Package mapsscrape reads the rendered Google Maps results page through a
// headless-browser reader and pulls businesses out of it.
package mapsscrape

import (
	"context"
	"net/url"
	"regexp"
	"slices"
	"strconv"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/sells-group/leadgen-cli/internal/config"
	"github.com/sells-group/leadgen-cli/internal/model"
	"github.com/sells-group/leadgen-cli/internal/provider"
	"github.com/sells-group/leadgen-cli/internal/resilience"
	"github.com/sells-group/leadgen-cli/pkg/jina"
)

const (
	// resultSelector marks a rendered result card.
	resultSelector = "a.hfpxzc"
	renderTimeout  = 60
	lookBack       = 3
)

var (
	placeLinkRe = regexp.MustCompile(`/maps/place/([^/@?#\s)]+)/@(-?\d+\.\d+),(-?\d+\.\d+)`)
	ratingRe    = regexp.MustCompile(`^\d[.,]\d(\s?\([\d,.]+\))?$`)
	categoryRe  = regexp.MustCompile(`^[A-Z][a-z]+ (restaurant|cafe|bar|shop)$`)
	mdLinkRe    = regexp.MustCompile(`^\[([^\]]+)\]\([^)]*\)$`)
	leadingRe   = regexp.MustCompile(`^[#*\s]+`)

	separators = []string{"·", "•", "|"}

	junkWords = map[string]bool{
		"results": true, "ergebnisse": true, "search": true, "filters": true,
		"sponsored": true, "gesponsert": true, "ad": true, "ads": true,
		"menu": true, "directions": true, "route": true, "feedback": true,
		"privacy": true, "terms": true, "dine-in": true, "takeaway": true,
		"delivery": true,
	}

	consentMarkers = []string{"Before you continue", "Bevor Sie zu Google"}
)

// Provider is the browser-rendered Google Maps adapter.
type Provider struct {
	provider.Base
	reader jina.Client
}

// New creates the adapter on top of a Jina reader.
func New(cfg config.ProviderConfig, reader jina.Client, opts ...provider.Option) *Provider {
	return &Provider{
		Base: provider.NewBase(config.ProviderMapsBrowser, cfg,
			provider.RateLimit{Requests: 1, Per: 5 * time.Second}, opts...),
		reader: reader,
	}
}

// CalculateCredits is always zero; the page is scraped, not metered.
func (p *Provider) CalculateCredits(_, _ int) int { return 0 }

// SearchURL returns the Maps search page for category in location.
func (p *Provider) SearchURL(location, category string) string {
	query := strings.TrimSpace(category) + " in " + strings.TrimSpace(location)
	return p.Config().BaseURL + url.QueryEscape(query)
}

// Search renders the results page and extracts businesses from place links,
// falling back to line heuristics when the page has none.
func (p *Provider) Search(ctx context.Context, location, category string, limit int) ([]model.RawLead, error) {
	limit = p.ClampLimit(limit)
	target := p.SearchURL(location, category)

	resp, err := resilience.Call(ctx, p.Policy(), p.ID()+".read", func(ctx context.Context) (*jina.ReadResponse, error) {
		if err := p.Wait(ctx); err != nil {
			return nil, err
		}
		return p.reader.Read(ctx, target,
			jina.WithWaitForSelector(resultSelector),
			jina.WithTimeout(renderTimeout),
			jina.WithLinksSummary(),
			jina.WithNoCache(),
		)
	})
	if err != nil {
		return nil, eris.Wrap(err, "mapsscrape: render search page")
	}

	leads := p.fromPlaceLinks(resp.Data)
	if len(leads) == 0 {
		leads = p.fromHeuristics(resp.Data.Content)
		if len(leads) == 0 && consentWall(resp.Data.Content) {
			return nil, eris.New("mapsscrape: blocked by consent page")
		}
		zap.L().Debug("mapsscrape: used heuristic extraction",
			zap.String("url", target),
			zap.Int("count", len(leads)),
		)
	}

	if limit > 0 && len(leads) > limit {
		leads = leads[:limit]
	}
	return leads, nil
}

// fromPlaceLinks reads "/maps/place/<name>/@lat,lng" links in page order,
// then from the links summary.
func (p *Provider) fromPlaceLinks(data jina.ReadData) []model.RawLead {
	sources := []string{data.Content, data.HTML}
	keys := make([]string, 0, len(data.Links))
	for k := range data.Links {
		keys = append(keys, k)
	}
	slices.Sort(keys)
	for _, k := range keys {
		sources = append(sources, data.Links[k])
	}

	seen := make(map[string]bool)
	var leads []model.RawLead
	for _, src := range sources {
		for _, m := range placeLinkRe.FindAllStringSubmatch(src, -1) {
			name, err := url.QueryUnescape(m[1])
			if err != nil {
				continue
			}
			name = strings.TrimSpace(name)
			key := strings.ToLower(name)
			if name == "" || seen[key] {
				continue
			}
			lat, errLat := strconv.ParseFloat(m[2], 64)
			lon, errLon := strconv.ParseFloat(m[3], 64)
			if errLat != nil || errLon != nil {
				continue
			}
			seen[key] = true
			leads = append(leads, model.RawLead{
				Name:      name,
				Latitude:  &lat,
				Longitude: &lon,
				Source:    p.Name(),
				Additional: map[string]any{
					"extraction": "structured",
					"maps_url":   "https://www.google.com" + m[0],
				},
			})
		}
	}
	return leads
}

// fromHeuristics treats a rating or separator line as the tail of a result
// card and takes the closest plausible line above it as the name.
func (p *Provider) fromHeuristics(content string) []model.RawLead {
	lines := strings.Split(content, "\n")
	seen := make(map[string]bool)
	var leads []model.RawLead

	for i, raw := range lines {
		line := strings.TrimSpace(raw)
		if line == "" || !isDetailLine(line) {
			continue
		}
		for j := 1; j <= lookBack && i-j >= 0; j++ {
			orig := strings.TrimSpace(lines[i-j])
			name := cleanName(orig)
			if !plausibleName(name) {
				continue
			}
			// "Category · Address" rather than a name.
			if idx := strings.Index(orig, "·"); idx >= 0 && idx < len(orig)/2 {
				continue
			}
			if seen[name] {
				break
			}
			seen[name] = true
			lead := model.RawLead{
				Name:   name,
				Source: p.Name(),
				Additional: map[string]any{
					"extraction": "heuristic",
				},
			}
			if ratingRe.MatchString(line) {
				lead.Additional["rating"] = line
			}
			leads = append(leads, lead)
			break
		}
	}
	return leads
}

func isDetailLine(line string) bool {
	for _, s := range separators {
		if strings.Contains(line, s) {
			return true
		}
	}
	return ratingRe.MatchString(line)
}

func cleanName(line string) string {
	if m := mdLinkRe.FindStringSubmatch(line); m != nil {
		line = m[1]
	}
	line = leadingRe.ReplaceAllString(line, "")
	if before, _, ok := strings.Cut(line, "·"); ok {
		line = before
	}
	return strings.TrimSpace(line)
}

func plausibleName(name string) bool {
	n := utf8.RuneCountInString(name)
	if n <= 2 || n >= 80 {
		return false
	}
	if ratingRe.MatchString(name) || categoryRe.MatchString(name) {
		return false
	}
	for _, w := range strings.Fields(strings.ToLower(name)) {
		if junkWords[strings.Trim(w, ".,:;!?()")] {
			return false
		}
	}
	return true
}

func consentWall(content string) bool {
	for _, m := range consentMarkers {
		if strings.Contains(content, m) {
			return true
		}
	}
	return false
}
