package model

import "strings"

// Field names used as keys in MergedLead.FieldProvenance.
const (
	FieldName       = "business_name"
	FieldAddress    = "address"
	FieldLatitude   = "latitude"
	FieldLongitude  = "longitude"
	FieldPhone      = "phone"
	FieldWebsite    = "website"
	FieldEmail      = "email"
	FieldAdditional = "additional_data"
)

// RawLead is one provider's view of a business.
type RawLead struct {
	Name       string         `json:"business_name"`
	Address    string         `json:"address,omitempty"`
	Latitude   *float64       `json:"latitude,omitempty"`
	Longitude  *float64       `json:"longitude,omitempty"`
	Phone      string         `json:"phone,omitempty"`
	Website    string         `json:"website,omitempty"`
	Email      string         `json:"email,omitempty"`
	Source     string         `json:"source"`
	Additional map[string]any `json:"additional_data,omitempty"`
}

// HasCoordinates reports whether both latitude and longitude are set.
func (l RawLead) HasCoordinates() bool {
	return l.Latitude != nil && l.Longitude != nil
}

// EnrichmentData holds contact evidence scraped from a lead's website.
type EnrichmentData struct {
	Emails      []string          `json:"emails,omitempty"`
	Phones      []string          `json:"phones,omitempty"`
	SocialLinks map[string]string `json:"social_links,omitempty"`
}

// IsEmpty reports whether no contact evidence was found.
func (e EnrichmentData) IsEmpty() bool {
	return len(e.Emails) == 0 && len(e.Phones) == 0 && len(e.SocialLinks) == 0
}

// MergedLead is the deduplicated evidence record for one business.
// FieldProvenance is nil for leads that were never merged with another.
type MergedLead struct {
	Name            string            `json:"business_name"`
	Address         string            `json:"address,omitempty"`
	Latitude        *float64          `json:"latitude,omitempty"`
	Longitude       *float64          `json:"longitude,omitempty"`
	Phone           string            `json:"phone,omitempty"`
	Website         string            `json:"website,omitempty"`
	Email           string            `json:"email,omitempty"`
	Additional      map[string]any    `json:"additional_data,omitempty"`
	Sources         []string          `json:"sources"`
	FieldProvenance map[string]string `json:"field_provenance,omitempty"`
	Enrichment      EnrichmentData    `json:"enrichment_data"`
	ConfidenceScore float64           `json:"confidence_score"`
	BestEmail       string            `json:"best_email,omitempty"`
}

// HasSource reports whether src contributed to the lead.
func (m MergedLead) HasSource(src string) bool {
	for _, s := range m.Sources {
		if s == src {
			return true
		}
	}
	return false
}

// Raw projects the merged lead back into one RawLead per contributing
// source, each carrying the merged core attributes.
func (m MergedLead) Raw() []RawLead {
	out := make([]RawLead, 0, len(m.Sources))
	for _, src := range m.Sources {
		out = append(out, RawLead{
			Name:       m.Name,
			Address:    m.Address,
			Latitude:   m.Latitude,
			Longitude:  m.Longitude,
			Phone:      m.Phone,
			Website:    m.Website,
			Email:      m.Email,
			Source:     src,
			Additional: m.Additional,
		})
	}
	return out
}

// SourceList renders the sources as a comma-separated string.
func (m MergedLead) SourceList() string {
	return strings.Join(m.Sources, ", ")
}
