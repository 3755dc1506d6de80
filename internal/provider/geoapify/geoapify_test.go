package geoapify

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/time/rate"

	"github.com/sells-group/leadgen-cli/internal/config"
	"github.com/sells-group/leadgen-cli/internal/provider"
)

const geocodeFixture = `{"features":[{"geometry":{"coordinates":[13.405,52.52]},"properties":{"formatted":"Berlin, Germany"}}]}`

const placesFixture = `{"features":[
  {"geometry":{"coordinates":[13.401,52.521]},"properties":{
    "name":"Bakery Sun","street":"Main St","housenumber":"1","postcode":"10115","city":"Berlin",
    "website":"https://bakery-sun.de","place_id":"g1","categories":["commercial.food_and_drink.bakery"],
    "contact":{"phone":"+49 30 1234567","email":"info@bakery-sun.de"}}},
  {"geometry":{"coordinates":[13.3,52.5]},"properties":{"formatted":"Nameless"}},
  {"geometry":{"coordinates":[13.41,52.53]},"properties":{"name":"Other","formatted":"Somewhere 5, Berlin"}}
]}`

func newTestProvider(t *testing.T, mux *http.ServeMux) *Provider {
	t.Helper()
	srv := httptest.NewServer(mux)
	t.Cleanup(srv.Close)
	cfg := config.ProviderConfig{Enabled: true, RequiresAPIKey: true, APIKey: "geo-key", Name: "Geoapify", BaseURL: srv.URL, QueryLimit: 100}
	return New(cfg, provider.WithLimiter(rate.NewLimiter(rate.Inf, 1)))
}

func TestSearch_GeocodeThenRadius(t *testing.T) {
	mux := http.NewServeMux()
	mux.HandleFunc("/v1/geocode/search", func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "Berlin", r.URL.Query().Get("text"))
		assert.Equal(t, "geo-key", r.URL.Query().Get("apiKey"))
		_, _ = w.Write([]byte(geocodeFixture))
	})
	mux.HandleFunc("/v2/places", func(w http.ResponseWriter, r *http.Request) {
		q := r.URL.Query()
		assert.Equal(t, "commercial.food_and_drink.bakery", q.Get("categories"))
		assert.Equal(t, "circle:13.405000,52.520000,10000", q.Get("filter"))
		assert.Equal(t, "50", q.Get("limit"))
		_, _ = w.Write([]byte(placesFixture))
	})

	p := newTestProvider(t, mux)
	leads, err := p.Search(context.Background(), "Berlin", "Bakery", 50)
	require.NoError(t, err)
	require.Len(t, leads, 2)

	b := leads[0]
	assert.Equal(t, "Bakery Sun", b.Name)
	assert.Equal(t, "Main St 1, 10115 Berlin", b.Address)
	assert.Equal(t, "info@bakery-sun.de", b.Email)
	assert.Equal(t, "+49 30 1234567", b.Phone)
	assert.Equal(t, "g1", b.Additional["geoapify_id"])
	require.True(t, b.HasCoordinates())
	assert.InDelta(t, 52.521, *b.Latitude, 1e-9)
	assert.InDelta(t, 13.401, *b.Longitude, 1e-9)

	assert.Equal(t, "Somewhere 5, Berlin", leads[1].Address)
	assert.Equal(t, 2, p.CalculateCredits(50, len(leads)))
}

func TestSearch_UnknownCategoryUsesNameFilter(t *testing.T) {
	mux := http.NewServeMux()
	mux.HandleFunc("/v1/geocode/search", func(w http.ResponseWriter, _ *http.Request) {
		_, _ = w.Write([]byte(geocodeFixture))
	})
	mux.HandleFunc("/v2/places", func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, fallbackGroups, r.URL.Query().Get("categories"))
		assert.Equal(t, "tattoo", r.URL.Query().Get("name"))
		_, _ = w.Write([]byte(`{"features":[]}`))
	})

	leads, err := newTestProvider(t, mux).Search(context.Background(), "Berlin", "Tattoo", 10)
	require.NoError(t, err)
	assert.Empty(t, leads)
}

func TestSearch_GeocodeMiss(t *testing.T) {
	mux := http.NewServeMux()
	mux.HandleFunc("/v1/geocode/search", func(w http.ResponseWriter, _ *http.Request) {
		_, _ = w.Write([]byte(`{"features":[]}`))
	})
	_, err := newTestProvider(t, mux).Search(context.Background(), "Atlantis", "cafe", 10)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "could not geocode")
}

func TestCalculateCredits(t *testing.T) {
	p := New(config.ProviderConfig{})
	assert.Equal(t, 1, p.CalculateCredits(100, 0))
	assert.Equal(t, 2, p.CalculateCredits(100, 20))
	assert.Equal(t, 6, p.CalculateCredits(100, 100))
	assert.Equal(t, "geoapify", p.ID())
	assert.False(t, p.Available())
}
