package provider

import (
	"strings"
	"unicode"

	"golang.org/x/text/cases"
	"golang.org/x/text/runes"
	"golang.org/x/text/transform"
	"golang.org/x/text/unicode/norm"
)

// NormalizeCategory folds case and strips diacritics so "Café" and
// "cafe" map to the same taxonomy key.
func NormalizeCategory(category string) string {
	t := transform.Chain(norm.NFD, runes.Remove(runes.In(unicode.Mn)), norm.NFC)
	s, _, err := transform.String(t, category)
	if err != nil {
		s = category
	}
	s = cases.Fold().String(s)
	return strings.Join(strings.Fields(s), " ")
}

// Lookup maps a category through table after normalization. Plural forms
// ending in "s" are tried as singulars.
func Lookup[V any](table map[string]V, category string) (V, bool) {
	key := NormalizeCategory(category)
	if v, ok := table[key]; ok {
		return v, true
	}
	if strings.HasSuffix(key, "s") {
		if v, ok := table[strings.TrimSuffix(key, "s")]; ok {
			return v, true
		}
	}
	var zero V
	return zero, false
}
