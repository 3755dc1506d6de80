package notion

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"net/url"
	"testing"
	"time"

	"github.com/jomei/notionapi"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"github.com/sells-group/leadgen-cli/internal/resilience"
)

// MockClient implements Client for testing.
type MockClient struct {
	mock.Mock
}

func (m *MockClient) QueryDatabase(ctx context.Context, dbID string, req *notionapi.DatabaseQueryRequest) (*notionapi.DatabaseQueryResponse, error) {
	args := m.Called(ctx, dbID, req)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*notionapi.DatabaseQueryResponse), args.Error(1)
}

func (m *MockClient) CreatePage(ctx context.Context, req *notionapi.PageCreateRequest) (*notionapi.Page, error) {
	args := m.Called(ctx, req)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*notionapi.Page), args.Error(1)
}

func (m *MockClient) UpdatePage(ctx context.Context, pageID string, req *notionapi.PageUpdateRequest) (*notionapi.Page, error) {
	args := m.Called(ctx, pageID, req)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*notionapi.Page), args.Error(1)
}

// rewriteTransport sends every request to the test server.
type rewriteTransport struct {
	target *url.URL
}

func (rt rewriteTransport) RoundTrip(req *http.Request) (*http.Response, error) {
	req.URL.Scheme = rt.target.Scheme
	req.URL.Host = rt.target.Host
	return http.DefaultTransport.RoundTrip(req)
}

func TestNewClient_CreatePage(t *testing.T) {
	var gotAuth string
	var body map[string]any
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotAuth = r.Header.Get("Authorization")
		assert.Equal(t, "/v1/pages", r.URL.Path)
		raw, _ := io.ReadAll(r.Body)
		require.NoError(t, json.Unmarshal(raw, &body))
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"object":"page","id":"page-123"}`))
	}))
	defer srv.Close()

	target, _ := url.Parse(srv.URL)
	c := NewClient("secret-token",
		WithRateLimit(0),
		WithHTTPClient(&http.Client{Transport: rewriteTransport{target: target}}),
	)

	page, err := c.CreatePage(context.Background(), &notionapi.PageCreateRequest{
		Parent: notionapi.Parent{Type: notionapi.ParentTypeDatabaseID, DatabaseID: "db-1"},
		Properties: notionapi.Properties{
			"Name": Title("Bäckerei Sonne"),
		},
	})
	require.NoError(t, err)
	assert.Equal(t, notionapi.ObjectID("page-123"), page.ID)
	assert.Equal(t, "Bearer secret-token", gotAuth)
	assert.Contains(t, body, "properties")
}

func TestNewClient_ErrorWrapped(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusBadRequest)
		_, _ = w.Write([]byte(`{"object":"error","status":400,"code":"validation_error","message":"bad"}`))
	}))
	defer srv.Close()

	target, _ := url.Parse(srv.URL)
	c := NewClient("t", WithRateLimit(0), WithHTTPClient(&http.Client{Transport: rewriteTransport{target: target}}))

	_, err := c.UpdatePage(context.Background(), "page-9", &notionapi.PageUpdateRequest{Properties: notionapi.Properties{}})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "notion: update page page-9")
}

func TestWait_CancelledContext(t *testing.T) {
	c := NewClient("t", WithRateLimit(0.001)).(*notionClient)
	c.limiter.Allow() // drain the single token

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err := c.QueryDatabase(ctx, "db-1", &notionapi.DatabaseQueryRequest{})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "rate limit")
}

func TestNewClient_RetriesConflict(t *testing.T) {
	calls := 0
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		calls++
		w.Header().Set("Content-Type", "application/json")
		if calls == 1 {
			w.WriteHeader(http.StatusConflict)
			_, _ = w.Write([]byte(`{"object":"error","status":409,"code":"conflict_error","message":"conflict"}`))
			return
		}
		_, _ = w.Write([]byte(`{"object":"page","id":"page-7"}`))
	}))
	defer srv.Close()

	target, _ := url.Parse(srv.URL)
	c := NewClient("t",
		WithRateLimit(0),
		WithBackoff(resilience.Backoff{Attempts: 2, Initial: time.Millisecond, Max: time.Millisecond}),
		WithHTTPClient(&http.Client{Transport: rewriteTransport{target: target}}),
	)

	page, err := c.UpdatePage(context.Background(), "page-7", &notionapi.PageUpdateRequest{Properties: notionapi.Properties{}})
	require.NoError(t, err)
	assert.Equal(t, notionapi.ObjectID("page-7"), page.ID)
	assert.Equal(t, 2, calls)
}

func TestNewClient_NoRetryOnValidation(t *testing.T) {
	calls := 0
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		calls++
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusBadRequest)
		_, _ = w.Write([]byte(`{"object":"error","status":400,"code":"validation_error","message":"bad"}`))
	}))
	defer srv.Close()

	target, _ := url.Parse(srv.URL)
	c := NewClient("t",
		WithRateLimit(0),
		WithBackoff(resilience.Backoff{Attempts: 3, Initial: time.Millisecond, Max: time.Millisecond}),
		WithHTTPClient(&http.Client{Transport: rewriteTransport{target: target}}),
	)

	_, err := c.CreatePage(context.Background(), &notionapi.PageCreateRequest{})
	require.Error(t, err)
	assert.Equal(t, 1, calls)
}
