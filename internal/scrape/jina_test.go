package scrape

import (
	"context"
	"errors"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"github.com/sells-group/leadgen-cli/pkg/jina"
	jinamocks "github.com/sells-group/leadgen-cli/pkg/jina/mocks"
)

var renderedHTML = "<html><head><title>Cafe Central</title></head><body><p>" +
	strings.Repeat("Coffee and cake in the heart of town. ", 5) +
	`</p><a href="/kontakt">Kontakt</a></body></html>`

func TestJinaAdapter_Fetch(t *testing.T) {
	t.Parallel()
	client := jinamocks.NewMockClient(t)
	adapter := NewJinaAdapter(client)

	client.On("Read", mock.Anything, "https://cafe-central.de").Return(&jina.ReadResponse{
		Code: 200,
		Data: jina.ReadData{URL: "https://cafe-central.de/", Title: "Cafe Central", Content: renderedHTML},
	}, nil)

	page, err := adapter.Fetch(context.Background(), "https://cafe-central.de")
	require.NoError(t, err)
	assert.Equal(t, "jina", page.Source)
	assert.Equal(t, "https://cafe-central.de/", page.URL)
	assert.Contains(t, page.HTML, `href="/kontakt"`)
	assert.Contains(t, page.Text, "Coffee and cake")
	assert.NotContains(t, page.Text, "<p>")
}

func TestJinaAdapter_ChallengeNeedsFallback(t *testing.T) {
	t.Parallel()
	client := jinamocks.NewMockClient(t)
	adapter := NewJinaAdapter(client)

	client.On("Read", mock.Anything, "https://blocked.de").Return(&jina.ReadResponse{
		Code: 200,
		Data: jina.ReadData{Content: "Just a moment... " + strings.Repeat("x", 100)},
	}, nil)

	_, err := adapter.Fetch(context.Background(), "https://blocked.de")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "needs fallback")
}

func TestJinaAdapter_BreakerOpens(t *testing.T) {
	t.Parallel()
	client := jinamocks.NewMockClient(t)
	adapter := NewJinaAdapter(client)

	client.On("Read", mock.Anything, "https://down.de").Return(nil, errors.New("connection refused")).Times(3)

	for range 3 {
		_, err := adapter.Fetch(context.Background(), "https://down.de")
		require.Error(t, err)
	}
	assert.False(t, adapter.Supports("https://down.de"))

	_, err := adapter.Fetch(context.Background(), "https://down.de")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "circuit breaker is open")
}

func TestNeedsFallback(t *testing.T) {
	assert.True(t, needsFallback(nil))
	assert.True(t, needsFallback(&jina.ReadResponse{Code: 451}))
	assert.True(t, needsFallback(&jina.ReadResponse{Data: jina.ReadData{Content: "short"}}))
	assert.False(t, needsFallback(&jina.ReadResponse{Data: jina.ReadData{Content: strings.Repeat("menu ", 30)}}))
}
