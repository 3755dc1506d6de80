// Package overpass searches OpenStreetMap through the Overpass API.
package overpass

import (
	"context"
	"fmt"
	"net/http"
	"net/url"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/sells-group/leadgen-cli/internal/config"
	"github.com/sells-group/leadgen-cli/internal/model"
	"github.com/sells-group/leadgen-cli/internal/provider"
)

// tag is one OSM key/value filter.
type tag struct {
	Key, Value string
}

var categoryTags = map[string]tag{
	"restaurant":    {"amenity", "restaurant"},
	"cafe":          {"amenity", "cafe"},
	"coffee shop":   {"amenity", "cafe"},
	"bar":           {"amenity", "bar"},
	"pub":           {"amenity", "pub"},
	"kneipe":        {"amenity", "pub"},
	"fast food":     {"amenity", "fast_food"},
	"imbiss":        {"amenity", "fast_food"},
	"kebab":         {"cuisine", "kebab"},
	"doner":         {"cuisine", "kebab"},
	"pizza":         {"cuisine", "pizza"},
	"ice cream":     {"amenity", "ice_cream"},
	"bakery":        {"shop", "bakery"},
	"backerei":      {"shop", "bakery"},
	"butcher":       {"shop", "butcher"},
	"metzgerei":     {"shop", "butcher"},
	"florist":       {"shop", "florist"},
	"hairdresser":   {"shop", "hairdresser"},
	"friseur":       {"shop", "hairdresser"},
	"supermarket":   {"shop", "supermarket"},
	"car repair":    {"shop", "car_repair"},
	"hotel":         {"tourism", "hotel"},
	"hostel":        {"tourism", "hostel"},
	"pharmacy":      {"amenity", "pharmacy"},
	"apotheke":      {"amenity", "pharmacy"},
	"dentist":       {"amenity", "dentist"},
	"zahnarzt":      {"amenity", "dentist"},
	"doctor":        {"amenity", "doctors"},
	"gym":           {"leisure", "fitness_centre"},
	"plumber":       {"craft", "plumber"},
	"electrician":   {"craft", "electrician"},
	"carpenter":     {"craft", "carpenter"},
	"lawyer":        {"office", "lawyer"},
	"accountant":    {"office", "accountant"},
	"tax advisor":   {"office", "tax_advisor"},
	"steuerberater": {"office", "tax_advisor"},
}

// Provider is the OpenStreetMap adapter.
type Provider struct {
	provider.Base
}

// New creates an Overpass adapter.
func New(cfg config.ProviderConfig, opts ...provider.Option) *Provider {
	return &Provider{
		Base: provider.NewBase(config.ProviderOpenStreetMap, cfg,
			provider.RateLimit{Requests: 2, Per: time.Second}, opts...),
	}
}

// CalculateCredits is always zero; Overpass is free.
func (p *Provider) CalculateCredits(_, _ int) int { return 0 }

// Search runs one Overpass query for category inside the named area.
func (p *Provider) Search(ctx context.Context, location, category string, limit int) ([]model.RawLead, error) {
	limit = p.ClampLimit(limit)
	query := BuildQuery(location, category, limit)

	zap.L().Debug("overpass: query",
		zap.String("location", location),
		zap.String("category", category),
		zap.Int("limit", limit),
	)

	var resp response
	err := p.Do(ctx, "interpreter", func(ctx context.Context) (*http.Request, error) {
		form := url.Values{"data": {query}}
		req, err := http.NewRequestWithContext(ctx, http.MethodPost, p.Config().BaseURL, strings.NewReader(form.Encode()))
		if err != nil {
			return nil, err
		}
		req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
		return req, nil
	}, &resp)
	if err != nil {
		return nil, err
	}

	leads := make([]model.RawLead, 0, len(resp.Elements))
	for _, el := range resp.Elements {
		lead, ok := p.parseElement(el)
		if !ok {
			continue
		}
		leads = append(leads, lead)
		if limit > 0 && len(leads) >= limit {
			break
		}
	}
	return leads, nil
}

// BuildQuery renders the Overpass QL for a search. Unknown categories
// become a case-insensitive name match.
func BuildQuery(location, category string, limit int) string {
	var filter string
	if t, ok := provider.Lookup(categoryTags, category); ok {
		filter = fmt.Sprintf(`[%q=%q]`, t.Key, t.Value)
	} else {
		filter = fmt.Sprintf(`["name"~%q,i]`, provider.NormalizeCategory(category))
	}

	out := "out center;"
	if limit > 0 {
		out = fmt.Sprintf("out center %d;", limit)
	}

	return fmt.Sprintf(`[out:json][timeout:25];
area["name"=%q]->.searchArea;
(
  nwr%s(area.searchArea);
);
%s`, location, filter, out)
}

type response struct {
	Elements []element `json:"elements"`
}

type element struct {
	Type   string            `json:"type"`
	ID     int64             `json:"id"`
	Lat    *float64          `json:"lat"`
	Lon    *float64          `json:"lon"`
	Center *center           `json:"center"`
	Tags   map[string]string `json:"tags"`
}

type center struct {
	Lat float64 `json:"lat"`
	Lon float64 `json:"lon"`
}

func (p *Provider) parseElement(el element) (model.RawLead, bool) {
	name := strings.TrimSpace(el.Tags["name"])
	if name == "" {
		return model.RawLead{}, false
	}

	lat, lon := el.Lat, el.Lon
	if (lat == nil || lon == nil) && el.Center != nil {
		lat, lon = &el.Center.Lat, &el.Center.Lon
	}

	additional := map[string]any{
		"osm_id":   el.ID,
		"osm_type": el.Type,
	}
	for _, k := range []string{"opening_hours", "cuisine", "amenity", "shop"} {
		if v := el.Tags[k]; v != "" {
			additional[k] = v
		}
	}

	return model.RawLead{
		Name:       name,
		Address:    address(el.Tags),
		Latitude:   lat,
		Longitude:  lon,
		Phone:      first(el.Tags, "phone", "contact:phone"),
		Website:    first(el.Tags, "website", "contact:website", "url"),
		Email:      first(el.Tags, "email", "contact:email"),
		Source:     p.Name(),
		Additional: additional,
	}, true
}

// address joins "street housenumber, postcode city".
func address(tags map[string]string) string {
	var parts []string
	if street := tags["addr:street"]; street != "" {
		if n := tags["addr:housenumber"]; n != "" {
			street += " " + n
		}
		parts = append(parts, street)
	}
	city := strings.TrimSpace(tags["addr:postcode"] + " " + tags["addr:city"])
	if city != "" {
		parts = append(parts, city)
	}
	return strings.Join(parts, ", ")
}

func first(tags map[string]string, keys ...string) string {
	for _, k := range keys {
		if v := strings.TrimSpace(tags[k]); v != "" {
			return v
		}
	}
	return ""
}
