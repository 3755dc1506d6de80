package googleplaces

import (
	"context"
	"errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
	"golang.org/x/time/rate"

	"github.com/sells-group/leadgen-cli/internal/config"
	"github.com/sells-group/leadgen-cli/internal/provider"
	"github.com/sells-group/leadgen-cli/pkg/google"
	"github.com/sells-group/leadgen-cli/pkg/google/mocks"
)

func places(prefix string, n int) []google.Place {
	out := make([]google.Place, n)
	for i := range out {
		out[i] = google.Place{
			ID:          fmt.Sprintf("%s-%d", prefix, i),
			DisplayName: google.DisplayName{Text: fmt.Sprintf("%s place %d", prefix, i)},
		}
	}
	return out
}

func newTestProvider(client google.Client) *Provider {
	cfg := config.ProviderConfig{Enabled: true, RequiresAPIKey: true, APIKey: "k", Name: "Google Places", QueryLimit: 60}
	return New(cfg, client, []provider.Option{provider.WithLimiter(rate.NewLimiter(rate.Inf, 1))}, WithPageDelay(0))
}

func TestSearch_SinglePage(t *testing.T) {
	m := mocks.NewMockClient(t)
	m.On("SearchText", mock.Anything, google.SearchTextRequest{TextQuery: "bakery in Berlin", PageSize: 20}).
		Return(&google.SearchTextResponse{Places: []google.Place{{
			ID:                       "p1",
			DisplayName:              google.DisplayName{Text: "Bakery Sun"},
			FormattedAddress:         "Main St 1, 10115 Berlin",
			Location:                 &google.LatLng{Latitude: 52.52, Longitude: 13.405},
			NationalPhoneNumber:      "030 1234567",
			InternationalPhoneNumber: "+49 30 1234567",
			WebsiteURI:               "https://bakery-sun.de",
			Rating:                   4.6,
			UserRatingCount:          210,
		}, {ID: "nameless"}}}, nil).Once()

	p := newTestProvider(m)
	leads, err := p.Search(context.Background(), "Berlin", "bakery", 20)
	require.NoError(t, err)
	require.Len(t, leads, 1)

	l := leads[0]
	assert.Equal(t, "Bakery Sun", l.Name)
	assert.Equal(t, "+49 30 1234567", l.Phone)
	assert.Equal(t, "https://bakery-sun.de", l.Website)
	assert.Equal(t, "Google Places", l.Source)
	assert.Equal(t, "p1", l.Additional["place_id"])
	assert.Equal(t, 210, l.Additional["user_ratings_total"])
	require.True(t, l.HasCoordinates())
}

func TestSearch_Paginates(t *testing.T) {
	m := mocks.NewMockClient(t)
	m.On("SearchText", mock.Anything, mock.MatchedBy(func(r google.SearchTextRequest) bool { return r.PageToken == "" })).
		Return(&google.SearchTextResponse{Places: places("a", 20), NextPageToken: "t2"}, nil).Once()
	m.On("SearchText", mock.Anything, mock.MatchedBy(func(r google.SearchTextRequest) bool { return r.PageToken == "t2" })).
		Return(&google.SearchTextResponse{Places: places("b", 20), NextPageToken: "t3"}, nil).Once()

	p := newTestProvider(m)
	leads, err := p.Search(context.Background(), "Berlin", "cafe", 30)
	require.NoError(t, err)
	assert.Len(t, leads, 30)
	assert.Equal(t, 2, p.CalculateCredits(30, len(leads)))
}

func TestSearch_LaterPageFailureKeepsEarlierPages(t *testing.T) {
	m := mocks.NewMockClient(t)
	m.On("SearchText", mock.Anything, mock.MatchedBy(func(r google.SearchTextRequest) bool { return r.PageToken == "" })).
		Return(&google.SearchTextResponse{Places: places("a", 20), NextPageToken: "t2"}, nil).Once()
	m.On("SearchText", mock.Anything, mock.MatchedBy(func(r google.SearchTextRequest) bool { return r.PageToken == "t2" })).
		Return(nil, errors.New("boom")).Once()

	p := newTestProvider(m)
	leads, err := p.Search(context.Background(), "Berlin", "cafe", 60)
	require.NoError(t, err)
	assert.Len(t, leads, 20)
}

func TestSearch_FirstPageFailure(t *testing.T) {
	m := mocks.NewMockClient(t)
	m.On("SearchText", mock.Anything, mock.Anything).Return(nil, errors.New("denied")).Once()

	p := newTestProvider(m)
	_, err := p.Search(context.Background(), "Berlin", "cafe", 20)
	require.Error(t, err)
}

func TestCalculateCredits(t *testing.T) {
	p := newTestProvider(mocks.NewMockClient(t))
	assert.Equal(t, 1, p.CalculateCredits(60, 0))
	assert.Equal(t, 1, p.CalculateCredits(60, 20))
	assert.Equal(t, 3, p.CalculateCredits(60, 41))
}

func TestAvailable(t *testing.T) {
	assert.True(t, newTestProvider(mocks.NewMockClient(t)).Available())
	p := New(config.ProviderConfig{Enabled: true, RequiresAPIKey: true}, mocks.NewMockClient(t), nil)
	assert.False(t, p.Available())
	assert.Equal(t, "google_places", p.ID())
	assert.Equal(t, 10, p.RateLimit().Requests)
}
