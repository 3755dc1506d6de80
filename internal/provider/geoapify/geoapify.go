// Package geoapify resolves a location to coordinates and then searches
// places within a radius of it.
package geoapify

import (
	"context"
	"fmt"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/rotisserie/eris"

	"github.com/sells-group/leadgen-cli/internal/config"
	"github.com/sells-group/leadgen-cli/internal/model"
	"github.com/sells-group/leadgen-cli/internal/provider"
)

const (
	pageSize       = 20
	geocodeCredits = 1
	defaultRadiusM = 10000
	fallbackGroups = "commercial,catering,service"
)

var categoryCodes = map[string]string{
	"restaurant":  "catering.restaurant",
	"cafe":        "catering.cafe",
	"coffee shop": "catering.cafe",
	"bar":         "catering.bar",
	"pub":         "catering.pub",
	"fast food":   "catering.fast_food",
	"kebab":       "catering.fast_food.kebab",
	"pizza":       "catering.restaurant.pizza",
	"ice cream":   "catering.ice_cream",
	"bakery":      "commercial.food_and_drink.bakery",
	"backerei":    "commercial.food_and_drink.bakery",
	"butcher":     "commercial.food_and_drink.butcher",
	"florist":     "commercial.florist",
	"hairdresser": "service.beauty.hairdresser",
	"friseur":     "service.beauty.hairdresser",
	"supermarket": "commercial.supermarket",
	"hotel":       "accommodation.hotel",
	"hostel":      "accommodation.hostel",
	"pharmacy":    "healthcare.pharmacy",
	"dentist":     "healthcare.dentist",
	"doctor":      "healthcare.clinic_or_praxis",
	"gym":         "sport.fitness.fitness_centre",
	"car repair":  "service.vehicle.repair",
}

// Provider is the Geoapify adapter.
type Provider struct {
	provider.Base
	radiusM int
}

// New creates a Geoapify adapter.
func New(cfg config.ProviderConfig, opts ...provider.Option) *Provider {
	return &Provider{
		Base: provider.NewBase(config.ProviderGeoapify, cfg,
			provider.RateLimit{Requests: 2, Per: time.Second}, opts...),
		radiusM: defaultRadiusM,
	}
}

// CalculateCredits is one geocode plus one credit per 20 places returned.
func (p *Provider) CalculateCredits(_, count int) int {
	return geocodeCredits + provider.Pages(count, pageSize)
}

// Search geocodes location, then queries places in a circle around it.
func (p *Provider) Search(ctx context.Context, location, category string, limit int) ([]model.RawLead, error) {
	limit = p.ClampLimit(limit)

	lat, lon, err := p.geocode(ctx, location)
	if err != nil {
		return nil, err
	}

	q := url.Values{}
	if code, ok := provider.Lookup(categoryCodes, category); ok {
		q.Set("categories", code)
	} else {
		q.Set("categories", fallbackGroups)
		q.Set("name", provider.NormalizeCategory(category))
	}
	q.Set("filter", fmt.Sprintf("circle:%s,%s,%d", ftoa(lon), ftoa(lat), p.radiusM))
	q.Set("bias", fmt.Sprintf("proximity:%s,%s", ftoa(lon), ftoa(lat)))
	if limit > 0 {
		q.Set("limit", strconv.Itoa(limit))
	}
	q.Set("apiKey", p.Config().APIKey)

	var fc featureCollection
	err = p.Do(ctx, "places", func(ctx context.Context) (*http.Request, error) {
		return http.NewRequestWithContext(ctx, http.MethodGet, p.Config().BaseURL+"/v2/places?"+q.Encode(), nil)
	}, &fc)
	if err != nil {
		return nil, err
	}

	leads := make([]model.RawLead, 0, len(fc.Features))
	for _, f := range fc.Features {
		if lead, ok := p.toLead(f); ok {
			leads = append(leads, lead)
		}
	}
	if limit > 0 && len(leads) > limit {
		leads = leads[:limit]
	}
	return leads, nil
}

func (p *Provider) geocode(ctx context.Context, location string) (float64, float64, error) {
	q := url.Values{}
	q.Set("text", location)
	q.Set("limit", "1")
	q.Set("apiKey", p.Config().APIKey)

	var fc featureCollection
	err := p.Do(ctx, "geocode", func(ctx context.Context) (*http.Request, error) {
		return http.NewRequestWithContext(ctx, http.MethodGet, p.Config().BaseURL+"/v1/geocode/search?"+q.Encode(), nil)
	}, &fc)
	if err != nil {
		return 0, 0, err
	}
	if len(fc.Features) == 0 || len(fc.Features[0].Geometry.Coordinates) < 2 {
		return 0, 0, eris.Errorf("geoapify: could not geocode %q", location)
	}
	c := fc.Features[0].Geometry.Coordinates
	return c[1], c[0], nil
}

type featureCollection struct {
	Features []feature `json:"features"`
}

type feature struct {
	Geometry struct {
		Coordinates []float64 `json:"coordinates"`
	} `json:"geometry"`
	Properties properties `json:"properties"`
}

type properties struct {
	Name        string   `json:"name"`
	Street      string   `json:"street"`
	HouseNumber string   `json:"housenumber"`
	Postcode    string   `json:"postcode"`
	City        string   `json:"city"`
	Formatted   string   `json:"formatted"`
	Website     string   `json:"website"`
	PlaceID     string   `json:"place_id"`
	Categories  []string `json:"categories"`
	Contact     struct {
		Phone string `json:"phone"`
		Email string `json:"email"`
	} `json:"contact"`
}

func (p *Provider) toLead(f feature) (model.RawLead, bool) {
	pr := f.Properties
	if strings.TrimSpace(pr.Name) == "" {
		return model.RawLead{}, false
	}

	lead := model.RawLead{
		Name:    pr.Name,
		Address: address(pr),
		Phone:   pr.Contact.Phone,
		Website: pr.Website,
		Email:   pr.Contact.Email,
		Source:  p.Name(),
		Additional: map[string]any{
			"geoapify_id": pr.PlaceID,
			"categories":  pr.Categories,
		},
	}
	if c := f.Geometry.Coordinates; len(c) >= 2 {
		lon, lat := c[0], c[1]
		lead.Latitude, lead.Longitude = &lat, &lon
	}
	return lead, true
}

func address(pr properties) string {
	var parts []string
	if pr.Street != "" {
		street := pr.Street
		if pr.HouseNumber != "" {
			street += " " + pr.HouseNumber
		}
		parts = append(parts, street)
	}
	if city := strings.TrimSpace(pr.Postcode + " " + pr.City); city != "" {
		parts = append(parts, city)
	}
	if len(parts) == 0 {
		return pr.Formatted
	}
	return strings.Join(parts, ", ")
}

func ftoa(f float64) string {
	return strconv.FormatFloat(f, 'f', 6, 64)
}
