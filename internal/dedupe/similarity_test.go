package dedupe

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestNameSimilarity(t *testing.T) {
	assert.InDelta(t, 0.8, NameSimilarity("Bakery Sun", "Bakery Sun GmbH"), 1e-9)
	assert.Equal(t, 1.0, NameSimilarity("Cafe X", "cafe  x"))
	assert.Equal(t, 0.0, NameSimilarity("", "Cafe X"))
	assert.Equal(t, 0.0, NameSimilarity("Cafe X", "   "))
	assert.Less(t, NameSimilarity("Bakery Sun", "Pizza Roma"), 0.7)
}

func TestRatio_Runes(t *testing.T) {
	// Accented characters count as one element.
	assert.InDelta(t, 2.0*3/13, Ratio("café", "cafeteria"), 1e-9)
	assert.Equal(t, 1.0, Ratio("müller", "müller"))
}

func TestHaversineKM(t *testing.T) {
	assert.Equal(t, 0.0, HaversineKM(52.52, 13.405, 52.52, 13.405))

	berlinMunich := HaversineKM(52.52, 13.405, 48.1351, 11.582)
	assert.InDelta(t, 504, berlinMunich, 5)
	assert.Equal(t, berlinMunich, HaversineKM(48.1351, 11.582, 52.52, 13.405))

	// One hundredth of a degree of latitude is about 1.11 km.
	assert.InDelta(t, 1.112, HaversineKM(52.52, 13.405, 52.53, 13.405), 0.01)
}
