package dedupe

import (
	"maps"
	"slices"
	"strings"

	"github.com/sells-group/leadgen-cli/internal/model"
)

// Merge folds a group of raw leads into one MergedLead. The first lead is
// the base: a later lead only fills fields the base left empty. When a
// field is filled that way its provenance is the contributing source;
// when both sides had a value the base's source keeps the field.
func Merge(group []model.RawLead) model.MergedLead {
	if len(group) == 0 {
		return model.MergedLead{}
	}

	base := group[0]
	m := model.MergedLead{
		Name:       base.Name,
		Address:    base.Address,
		Latitude:   copyCoord(base.Latitude),
		Longitude:  copyCoord(base.Longitude),
		Phone:      base.Phone,
		Website:    base.Website,
		Email:      base.Email,
		Additional: maps.Clone(base.Additional),
	}

	if len(group) == 1 {
		m.Sources = []string{base.Source}
		return m
	}

	prov := make(map[string]string)
	sources := []string{base.Source}

	for _, l := range group[1:] {
		sources = append(sources, l.Source)
		f := fieldMerger{prov: prov, from: l.Source, base: base.Source}

		f.str(model.FieldName, &m.Name, l.Name)
		f.str(model.FieldAddress, &m.Address, l.Address)
		f.coord(model.FieldLatitude, &m.Latitude, l.Latitude)
		f.coord(model.FieldLongitude, &m.Longitude, l.Longitude)
		f.str(model.FieldPhone, &m.Phone, l.Phone)
		f.str(model.FieldWebsite, &m.Website, l.Website)
		f.str(model.FieldEmail, &m.Email, l.Email)

		switch {
		case len(l.Additional) == 0:
		case len(m.Additional) == 0:
			m.Additional = maps.Clone(l.Additional)
			prov[model.FieldAdditional] = l.Source
		default:
			f.keep(model.FieldAdditional)
		}
	}

	slices.Sort(sources)
	m.Sources = slices.Compact(sources)
	m.FieldProvenance = prov
	return m
}

type fieldMerger struct {
	prov map[string]string
	from string
	base string
}

func (f fieldMerger) str(field string, dst *string, incoming string) {
	if strings.TrimSpace(incoming) == "" {
		return
	}
	if strings.TrimSpace(*dst) == "" {
		*dst = incoming
		f.prov[field] = f.from
		return
	}
	f.keep(field)
}

func (f fieldMerger) coord(field string, dst **float64, incoming *float64) {
	if incoming == nil {
		return
	}
	if *dst == nil {
		*dst = copyCoord(incoming)
		f.prov[field] = f.from
		return
	}
	f.keep(field)
}

func (f fieldMerger) keep(field string) {
	if _, ok := f.prov[field]; !ok {
		f.prov[field] = f.base
	}
}

func copyCoord(v *float64) *float64 {
	if v == nil {
		return nil
	}
	c := *v
	return &c
}
