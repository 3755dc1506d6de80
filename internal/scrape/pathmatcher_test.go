package scrape

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestPathMatcher_IsExcluded(t *testing.T) {
	t.Parallel()
	m := NewPathMatcher([]string{"/shop/*", "*.pdf", "/Cart/*"})

	tests := []struct {
		name     string
		url      string
		excluded bool
	}{
		{"shop product", "https://baeckerei.de/shop/brot", true},
		{"shop root", "https://baeckerei.de/shop", true},
		{"shop deep path", "https://baeckerei.de/shop/a/b/c", true},
		{"pdf at root", "https://baeckerei.de/karte.pdf", true},
		{"nested pdf", "https://baeckerei.de/docs/karte.PDF", true},
		{"pattern case folded", "https://baeckerei.de/cart/1", true},
		{"kontakt page", "https://baeckerei.de/kontakt", false},
		{"impressum", "https://baeckerei.de/impressum", false},
		{"homepage", "https://baeckerei.de/", false},
		{"shopping is not shop", "https://baeckerei.de/shopping", false},
		{"bad url", "://nope", true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			assert.Equal(t, tt.excluded, m.IsExcluded(tt.url))
		})
	}
}

func TestPathMatcher_DefaultPatterns(t *testing.T) {
	m := NewPathMatcher(nil)
	assert.Equal(t, defaultExcludePatterns, m.Patterns())
	assert.True(t, m.IsExcluded("https://cafe.de/wp-content/uploads/logo.png"))
	assert.True(t, m.IsExcluded("https://cafe.de/speisekarte.pdf"))
	assert.False(t, m.IsExcluded("https://cafe.de/ueber-uns"))
}
