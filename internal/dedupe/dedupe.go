// Package dedupe groups raw leads that describe the same business and
// merges each group into a single evidence record.
package dedupe

import (
	"strings"

	"go.uber.org/zap"

	"github.com/sells-group/leadgen-cli/internal/model"
)

// Thresholds tunes the similarity predicate.
type Thresholds struct {
	Name          float64 `yaml:"name_threshold" mapstructure:"name_threshold"`
	Maybe         float64 `yaml:"maybe_threshold" mapstructure:"maybe_threshold"`
	Address       float64 `yaml:"address_threshold" mapstructure:"address_threshold"`
	MaxDistanceKM float64 `yaml:"max_distance_km" mapstructure:"max_distance_km"`
}

// DefaultThresholds returns the standard matching thresholds.
func DefaultThresholds() Thresholds {
	return Thresholds{
		Name:          0.85,
		Maybe:         0.70,
		Address:       0.70,
		MaxDistanceKM: 0.1,
	}
}

// Deduper partitions and merges raw leads.
type Deduper struct {
	t Thresholds
}

// New creates a Deduper. Zero-valued thresholds fall back to defaults.
func New(t Thresholds) *Deduper {
	def := DefaultThresholds()
	if t.Name <= 0 {
		t.Name = def.Name
	}
	if t.Maybe <= 0 {
		t.Maybe = def.Maybe
	}
	if t.Address <= 0 {
		t.Address = def.Address
	}
	if t.MaxDistanceKM <= 0 {
		t.MaxDistanceKM = def.MaxDistanceKM
	}
	return &Deduper{t: t}
}

// AreSimilar reports whether a and b likely describe the same business.
// A decisive name match is enough; a name in the maybe band needs a
// matching address or coordinates within MaxDistanceKM.
func (d *Deduper) AreSimilar(a, b model.RawLead) bool {
	nameSim := NameSimilarity(a.Name, b.Name)
	if nameSim >= d.t.Name {
		return true
	}
	if nameSim < d.t.Maybe {
		return false
	}

	if strings.TrimSpace(a.Address) != "" && strings.TrimSpace(b.Address) != "" {
		if Ratio(fold(a.Address), fold(b.Address)) >= d.t.Address {
			return true
		}
	}

	if a.HasCoordinates() && b.HasCoordinates() {
		dist := HaversineKM(*a.Latitude, *a.Longitude, *b.Latitude, *b.Longitude)
		if dist < d.t.MaxDistanceKM {
			return true
		}
	}

	return false
}

// Group partitions leads into similarity groups. Each group is anchored on
// the first unassigned lead in input order and collects every later
// unassigned lead similar to that anchor.
func (d *Deduper) Group(leads []model.RawLead) [][]model.RawLead {
	used := make([]bool, len(leads))
	var groups [][]model.RawLead

	for i := range leads {
		if used[i] {
			continue
		}
		used[i] = true
		group := []model.RawLead{leads[i]}

		for j := i + 1; j < len(leads); j++ {
			if used[j] {
				continue
			}
			if d.AreSimilar(leads[i], leads[j]) {
				used[j] = true
				group = append(group, leads[j])
			}
		}
		groups = append(groups, group)
	}

	return groups
}

// NormalizeAndDedupe groups leads and merges each group.
func (d *Deduper) NormalizeAndDedupe(leads []model.RawLead) []model.MergedLead {
	if len(leads) == 0 {
		return nil
	}

	groups := d.Group(leads)
	out := make([]model.MergedLead, 0, len(groups))
	for _, g := range groups {
		out = append(out, Merge(g))
	}

	zap.L().Debug("dedupe: grouped leads",
		zap.Int("raw", len(leads)),
		zap.Int("merged", len(out)),
	)
	return out
}
