package dedupe

import (
	"math"
	"strings"

	"github.com/pmezard/go-difflib/difflib"
)

const earthRadiusKM = 6371.0

// Ratio returns the SequenceMatcher similarity of a and b in [0,1],
// computed over runes so multi-byte characters count once.
func Ratio(a, b string) float64 {
	if a == "" && b == "" {
		return 1
	}
	return difflib.NewMatcher(runes(a), runes(b)).Ratio()
}

// NameSimilarity compares two business names case-insensitively.
// Returns 0 when either name is empty.
func NameSimilarity(a, b string) float64 {
	a, b = fold(a), fold(b)
	if a == "" || b == "" {
		return 0
	}
	return Ratio(a, b)
}

// HaversineKM returns the great-circle distance between two points in
// kilometres on a spherical earth.
func HaversineKM(lat1, lon1, lat2, lon2 float64) float64 {
	dLat := radians(lat2 - lat1)
	dLon := radians(lon2 - lon1)
	a := math.Sin(dLat/2)*math.Sin(dLat/2) +
		math.Cos(radians(lat1))*math.Cos(radians(lat2))*math.Sin(dLon/2)*math.Sin(dLon/2)
	return earthRadiusKM * 2 * math.Atan2(math.Sqrt(a), math.Sqrt(1-a))
}

func radians(deg float64) float64 { return deg * math.Pi / 180 }

// fold lowercases s and collapses runs of whitespace.
func fold(s string) string {
	return strings.Join(strings.Fields(strings.ToLower(s)), " ")
}

func runes(s string) []string {
	out := make([]string, 0, len(s))
	for _, r := range s {
		out = append(out, string(r))
	}
	return out
}
