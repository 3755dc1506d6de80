package scrape

import (
	"net/url"
	"path"
	"strings"
)

// defaultExcludePatterns skip documents, media and shop flows that never
// carry contact details worth a request.
var defaultExcludePatterns = []string{
	"*.pdf",
	"*.jpg",
	"*.jpeg",
	"*.png",
	"*.gif",
	"*.zip",
	"*.mp4",
	"/wp-content/*",
	"/cart/*",
	"/checkout/*",
	"/warenkorb/*",
	"/login/*",
}

// PathMatcher filters URLs by glob path patterns. "/dir/*" covers the
// whole subtree; "*.ext" matches the last path element at any depth.
type PathMatcher struct {
	patterns []string
}

// NewPathMatcher creates a PathMatcher, using the defaults when patterns
// is empty.
func NewPathMatcher(patterns []string) *PathMatcher {
	if len(patterns) == 0 {
		patterns = defaultExcludePatterns
	}
	return &PathMatcher{patterns: patterns}
}

// Patterns returns the configured patterns.
func (m *PathMatcher) Patterns() []string {
	return m.patterns
}

// IsExcluded reports whether a URL matches any pattern. Unparseable URLs
// are excluded.
func (m *PathMatcher) IsExcluded(rawURL string) bool {
	u, err := url.Parse(rawURL)
	if err != nil {
		return true
	}
	p := strings.ToLower(u.Path)
	for _, pattern := range m.patterns {
		if matchPattern(strings.ToLower(pattern), p) {
			return true
		}
	}
	return false
}

func matchPattern(pattern, urlPath string) bool {
	if !strings.HasPrefix(pattern, "/") {
		ok, _ := path.Match(pattern, path.Base(urlPath))
		return ok
	}
	if ok, _ := path.Match(pattern, urlPath); ok {
		return true
	}
	if prefix, ok := strings.CutSuffix(pattern, "/*"); ok {
		return urlPath == prefix || strings.HasPrefix(urlPath, prefix+"/")
	}
	return false
}
