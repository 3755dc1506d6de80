// Package googleplaces adapts Google Places Text Search into raw leads.
package googleplaces

import (
	"context"
	"time"

	"go.uber.org/zap"

	"github.com/sells-group/leadgen-cli/internal/config"
	"github.com/sells-group/leadgen-cli/internal/model"
	"github.com/sells-group/leadgen-cli/internal/provider"
	"github.com/sells-group/leadgen-cli/internal/resilience"
	"github.com/sells-group/leadgen-cli/pkg/google"
)

// maxPages is the Text Search pagination ceiling (60 results).
const maxPages = 3

// Provider is the Google Places adapter.
type Provider struct {
	provider.Base
	client    google.Client
	pageDelay time.Duration
}

// Option configures the adapter beyond the shared base options.
type Option func(*Provider)

// WithPageDelay sets the pause before requesting a next page token.
func WithPageDelay(d time.Duration) Option {
	return func(p *Provider) { p.pageDelay = d }
}

// New creates a Google Places adapter. A nil client builds one from cfg.
func New(cfg config.ProviderConfig, client google.Client, opts []provider.Option, popts ...Option) *Provider {
	if client == nil {
		var gopts []google.Option
		if cfg.BaseURL != "" {
			gopts = append(gopts, google.WithBaseURL(cfg.BaseURL))
		}
		client = google.NewClient(cfg.APIKey, gopts...)
	}
	p := &Provider{
		Base: provider.NewBase(config.ProviderGooglePlaces, cfg,
			provider.RateLimit{Requests: 10, Per: time.Second}, opts...),
		client:    client,
		pageDelay: 2 * time.Second,
	}
	for _, o := range popts {
		o(p)
	}
	return p
}

// CalculateCredits charges one request per page actually returned.
func (p *Provider) CalculateCredits(_, count int) int {
	return max(1, provider.Pages(count, google.MaxPageSize))
}

// Search pages through Text Search results for "category in location".
// A failure after the first page keeps what was already fetched.
func (p *Provider) Search(ctx context.Context, location, category string, limit int) ([]model.RawLead, error) {
	limit = p.ClampLimit(limit)
	if limit <= 0 {
		limit = google.MaxPageSize
	}
	pages := min(maxPages, provider.Pages(limit, google.MaxPageSize))
	log := zap.L().With(zap.String("provider", p.ID()), zap.String("location", location))

	req := google.SearchTextRequest{
		TextQuery: category + " in " + location,
		PageSize:  min(limit, google.MaxPageSize),
	}

	var leads []model.RawLead
	for page := 0; page < pages; page++ {
		if page > 0 {
			select {
			case <-ctx.Done():
				return leads, nil
			case <-time.After(p.pageDelay):
			}
		}

		resp, err := resilience.Call(ctx, p.Policy(), p.ID()+".search_text", func(ctx context.Context) (*google.SearchTextResponse, error) {
			if err := p.Wait(ctx); err != nil {
				return nil, err
			}
			return p.client.SearchText(ctx, req)
		})
		if err != nil {
			if page == 0 {
				return nil, err
			}
			log.Warn("googleplaces: page failed, keeping earlier pages", zap.Int("page", page), zap.Error(err))
			break
		}

		for _, pl := range resp.Places {
			if lead, ok := p.toLead(pl); ok {
				leads = append(leads, lead)
			}
		}
		if len(leads) >= limit || resp.NextPageToken == "" {
			break
		}
		req.PageToken = resp.NextPageToken
	}

	if len(leads) > limit {
		leads = leads[:limit]
	}
	return leads, nil
}

func (p *Provider) toLead(pl google.Place) (model.RawLead, bool) {
	if pl.DisplayName.Text == "" {
		return model.RawLead{}, false
	}

	lead := model.RawLead{
		Name:    pl.DisplayName.Text,
		Address: pl.FormattedAddress,
		Phone:   pl.InternationalPhoneNumber,
		Website: pl.WebsiteURI,
		Source:  p.Name(),
		Additional: map[string]any{
			"place_id":           pl.ID,
			"rating":             pl.Rating,
			"user_ratings_total": pl.UserRatingCount,
			"types":              pl.Types,
		},
	}
	if lead.Phone == "" {
		lead.Phone = pl.NationalPhoneNumber
	}
	if pl.GoogleMapsURI != "" {
		lead.Additional["maps_url"] = pl.GoogleMapsURI
	}
	if pl.Location != nil {
		lat, lon := pl.Location.Latitude, pl.Location.Longitude
		lead.Latitude, lead.Longitude = &lat, &lon
	}
	return lead, true
}
