package provider

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/time/rate"

	"github.com/sells-group/leadgen-cli/internal/config"
	"github.com/sells-group/leadgen-cli/internal/model"
	"github.com/sells-group/leadgen-cli/internal/resilience"
)

type stubProvider struct{ id string }

func (s stubProvider) ID() string   { return s.id }
func (s stubProvider) Name() string { return s.id }
func (s stubProvider) Search(context.Context, string, string, int) ([]model.RawLead, error) {
	return nil, nil
}
func (s stubProvider) CalculateCredits(int, int) int { return 0 }
func (s stubProvider) RateLimit() RateLimit          { return RateLimit{Requests: 1, Per: time.Second} }
func (s stubProvider) Available() bool               { return true }

func TestRegistry_Order(t *testing.T) {
	r := NewRegistry()
	r.Register(stubProvider{id: "b"})
	r.Register(stubProvider{id: "a"})
	r.Register(stubProvider{id: "c"})
	r.Register(stubProvider{id: "a"})

	assert.Equal(t, []string{"b", "a", "c"}, r.IDs())
	require.Len(t, r.All(), 3)
	assert.Equal(t, "b", r.All()[0].ID())
	assert.NotNil(t, r.Get("c"))
	assert.Nil(t, r.Get("zzz"))
}

func TestPages(t *testing.T) {
	assert.Equal(t, 0, Pages(0, 20))
	assert.Equal(t, 1, Pages(1, 20))
	assert.Equal(t, 1, Pages(20, 20))
	assert.Equal(t, 2, Pages(21, 20))
	assert.Equal(t, 0, Pages(5, 0))
}

func TestNormalizeCategory(t *testing.T) {
	assert.Equal(t, "cafe", NormalizeCategory("Café"))
	assert.Equal(t, "backerei", NormalizeCategory("  Bäckerei "))
	assert.Equal(t, "ice cream", NormalizeCategory("Ice   Cream"))
}

func TestLookup(t *testing.T) {
	table := map[string]string{"restaurant": "amenity=restaurant", "cafe": "amenity=cafe"}

	v, ok := Lookup(table, "Restaurants")
	assert.True(t, ok)
	assert.Equal(t, "amenity=restaurant", v)

	v, ok = Lookup(table, "CAFÉ")
	assert.True(t, ok)
	assert.Equal(t, "amenity=cafe", v)

	_, ok = Lookup(table, "plumber")
	assert.False(t, ok)
}

func TestNewLimiter(t *testing.T) {
	l := NewLimiter(RateLimit{Requests: 2, Per: time.Second})
	assert.Equal(t, rate.Every(500*time.Millisecond), l.Limit())
	assert.Equal(t, 1, l.Burst())

	assert.Equal(t, rate.Inf, NewLimiter(RateLimit{}).Limit())
}

func TestBase_AvailableAndName(t *testing.T) {
	b := NewBase("tomtom", config.ProviderConfig{Enabled: true, RequiresAPIKey: true}, RateLimit{Requests: 5, Per: time.Second})
	assert.False(t, b.Available())
	assert.Equal(t, "tomtom", b.Name())

	b = NewBase("tomtom", config.ProviderConfig{Enabled: true, RequiresAPIKey: true, APIKey: "k", Name: "TomTom"}, RateLimit{})
	assert.True(t, b.Available())
	assert.Equal(t, "TomTom", b.Name())
}

func TestBase_ClampLimit(t *testing.T) {
	b := NewBase("x", config.ProviderConfig{QueryLimit: 60}, RateLimit{})
	assert.Equal(t, 60, b.ClampLimit(0))
	assert.Equal(t, 60, b.ClampLimit(100))
	assert.Equal(t, 15, b.ClampLimit(15))
}

func TestBase_DoRetriesTransient(t *testing.T) {
	calls := 0
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		calls++
		if calls == 1 {
			w.WriteHeader(http.StatusServiceUnavailable)
			return
		}
		_, _ = w.Write([]byte(`{"ok":true}`))
	}))
	defer srv.Close()

	policy := &resilience.Policy{
		Backoff: resilience.Backoff{Attempts: 2, Initial: time.Millisecond, Max: time.Millisecond},
		Breaker: resilience.NewBreaker("x", 5, time.Minute),
	}
	b := NewBase("x", config.ProviderConfig{}, RateLimit{}, WithPolicy(policy), WithLimiter(rate.NewLimiter(rate.Inf, 1)))

	var out struct {
		OK bool `json:"ok"`
	}
	err := b.Do(context.Background(), "get", func(ctx context.Context) (*http.Request, error) {
		return http.NewRequestWithContext(ctx, http.MethodGet, srv.URL, nil)
	}, &out)
	require.NoError(t, err)
	assert.True(t, out.OK)
	assert.Equal(t, 2, calls)
}

func TestBase_DoPermanentError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusForbidden)
		_, _ = w.Write([]byte("bad key"))
	}))
	defer srv.Close()

	b := NewBase("x", config.ProviderConfig{}, RateLimit{})
	var out map[string]any
	err := b.Do(context.Background(), "get", func(ctx context.Context) (*http.Request, error) {
		return http.NewRequestWithContext(ctx, http.MethodGet, srv.URL, nil)
	}, &out)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "status 403")
}
