package config

import (
	"os"

	"github.com/rotisserie/eris"
	"gopkg.in/yaml.v3"
)

// Provider IDs known to the application.
const (
	ProviderOpenStreetMap = "openstreetmap"
	ProviderGooglePlaces  = "google_places"
	ProviderGeoapify      = "geoapify"
	ProviderTomTom        = "tomtom"
	ProviderMapsBrowser   = "maps_browser"
)

// DefaultProviders returns the built-in provider table. Only the
// keyless providers are enabled out of the box.
func DefaultProviders() map[string]ProviderConfig {
	return map[string]ProviderConfig{
		ProviderOpenStreetMap: {
			Enabled:     true,
			Name:        "OpenStreetMap",
			BaseURL:     "https://overpass-api.de/api/interpreter",
			QueryLimit:  100,
			QuotaPeriod: "daily",
			Description: "Overpass API over OpenStreetMap data",
		},
		ProviderGooglePlaces: {
			Name:           "Google Places",
			BaseURL:        "https://places.googleapis.com/v1",
			QueryLimit:     60,
			QuotaLimit:     1000,
			QuotaPeriod:    "monthly",
			RequiresAPIKey: true,
			Description:    "Google Places API text search",
		},
		ProviderGeoapify: {
			Name:           "Geoapify",
			BaseURL:        "https://api.geoapify.com",
			QueryLimit:     100,
			QuotaLimit:     3000,
			QuotaPeriod:    "daily",
			RequiresAPIKey: true,
			Description:    "Geoapify geocoding and places",
		},
		ProviderTomTom: {
			Name:           "TomTom",
			BaseURL:        "https://api.tomtom.com/search/2",
			QueryLimit:     100,
			QuotaLimit:     2500,
			QuotaPeriod:    "daily",
			RequiresAPIKey: true,
			Description:    "TomTom POI search",
		},
		ProviderMapsBrowser: {
			Name:        "Google Maps (browser)",
			BaseURL:     "https://www.google.com/maps/search/",
			QueryLimit:  20,
			QuotaPeriod: "daily",
			Description: "Rendered Google Maps results page",
		},
	}
}

// providerOverlay mirrors ProviderConfig with optional fields so a file
// can override single keys.
type providerOverlay struct {
	Enabled        *bool   `yaml:"enabled"`
	Name           *string `yaml:"name"`
	APIKey         *string `yaml:"api_key"`
	BaseURL        *string `yaml:"base_url"`
	QueryLimit     *int    `yaml:"query_limit"`
	QuotaLimit     *int    `yaml:"quota_limit"`
	QuotaPeriod    *string `yaml:"quota_period"`
	RequiresAPIKey *bool   `yaml:"requires_api_key"`
	Description    *string `yaml:"description"`
}

type providersFile struct {
	DefaultProviders []string                   `yaml:"default_providers"`
	Providers        map[string]providerOverlay `yaml:"providers"`
}

// LoadProviders overlays a providers YAML file onto cfg. API keys may
// reference environment variables as ${VAR}.
func LoadProviders(path string, cfg *Config) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return eris.Wrapf(err, "config: read providers file %s", path)
	}

	var f providersFile
	if err := yaml.Unmarshal(data, &f); err != nil {
		return eris.Wrapf(err, "config: parse providers file %s", path)
	}

	if cfg.Providers == nil {
		cfg.Providers = make(map[string]ProviderConfig)
	}
	for id, o := range f.Providers {
		p := cfg.Providers[id]
		if o.Enabled != nil {
			p.Enabled = *o.Enabled
		}
		if o.Name != nil {
			p.Name = *o.Name
		}
		if o.APIKey != nil {
			p.APIKey = os.ExpandEnv(*o.APIKey)
		}
		if o.BaseURL != nil {
			p.BaseURL = *o.BaseURL
		}
		if o.QueryLimit != nil {
			p.QueryLimit = *o.QueryLimit
		}
		if o.QuotaLimit != nil {
			p.QuotaLimit = *o.QuotaLimit
		}
		if o.QuotaPeriod != nil {
			p.QuotaPeriod = *o.QuotaPeriod
		}
		if o.RequiresAPIKey != nil {
			p.RequiresAPIKey = *o.RequiresAPIKey
		}
		if o.Description != nil {
			p.Description = *o.Description
		}
		cfg.Providers[id] = p
	}

	if len(f.DefaultProviders) > 0 {
		cfg.Collect.DefaultProviders = f.DefaultProviders
	}
	return nil
}
