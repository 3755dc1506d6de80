// Package tomtom searches points of interest through the TomTom Search API.
package tomtom

import (
	"context"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/sells-group/leadgen-cli/internal/config"
	"github.com/sells-group/leadgen-cli/internal/model"
	"github.com/sells-group/leadgen-cli/internal/provider"
)

// maxLimit is the largest page the POI search accepts.
const maxLimit = 100

// Provider is the TomTom adapter.
type Provider struct {
	provider.Base
}

// New creates a TomTom adapter.
func New(cfg config.ProviderConfig, opts ...provider.Option) *Provider {
	return &Provider{
		Base: provider.NewBase(config.ProviderTomTom, cfg,
			provider.RateLimit{Requests: 5, Per: time.Second}, opts...),
	}
}

// CalculateCredits charges one credit per 100 results, minimum one.
func (p *Provider) CalculateCredits(_, count int) int {
	return max(1, provider.Pages(count, maxLimit))
}

// Search runs a single POI query for "category in location".
func (p *Provider) Search(ctx context.Context, location, category string, limit int) ([]model.RawLead, error) {
	limit = p.ClampLimit(limit)
	if limit <= 0 || limit > maxLimit {
		limit = maxLimit
	}

	query := strings.TrimSpace(category) + " in " + strings.TrimSpace(location)
	q := url.Values{}
	q.Set("key", p.Config().APIKey)
	q.Set("limit", strconv.Itoa(limit))
	q.Set("typeahead", "false")
	endpoint := p.Config().BaseURL + "/poiSearch/" + url.PathEscape(query) + ".json?" + q.Encode()

	var resp searchResponse
	err := p.Do(ctx, "poi_search", func(ctx context.Context) (*http.Request, error) {
		return http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	}, &resp)
	if err != nil {
		return nil, err
	}

	leads := make([]model.RawLead, 0, len(resp.Results))
	for _, r := range resp.Results {
		if strings.TrimSpace(r.POI.Name) == "" {
			continue
		}
		leads = append(leads, p.toLead(r))
	}
	if len(leads) > limit {
		leads = leads[:limit]
	}
	return leads, nil
}

type searchResponse struct {
	Results []result `json:"results"`
}

type result struct {
	ID  string `json:"id"`
	POI struct {
		Name       string   `json:"name"`
		Phone      string   `json:"phone"`
		URL        string   `json:"url"`
		Categories []string `json:"categories"`
	} `json:"poi"`
	Address struct {
		FreeformAddress string `json:"freeformAddress"`
	} `json:"address"`
	Position *struct {
		Lat float64 `json:"lat"`
		Lon float64 `json:"lon"`
	} `json:"position"`
}

func (p *Provider) toLead(r result) model.RawLead {
	lead := model.RawLead{
		Name:    r.POI.Name,
		Address: r.Address.FreeformAddress,
		Phone:   r.POI.Phone,
		Website: website(r.POI.URL),
		Source:  p.Name(),
		Additional: map[string]any{
			"tomtom_id":  r.ID,
			"categories": r.POI.Categories,
		},
	}
	if r.Position != nil {
		lat, lon := r.Position.Lat, r.Position.Lon
		lead.Latitude, lead.Longitude = &lat, &lon
	}
	return lead
}

// website adds the scheme TomTom usually omits.
func website(u string) string {
	u = strings.TrimSpace(u)
	if u == "" || strings.Contains(u, "://") {
		return u
	}
	return "http://" + u
}
