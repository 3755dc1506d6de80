package export

import (
	"time"

	"github.com/sells-group/leadgen-cli/internal/model"
)

func ptr(f float64) *float64 { return &f }

func sampleLeads() []model.Lead {
	return []model.Lead{
		{
			ID:        "lead-1",
			RunID:     "run-1",
			CreatedAt: time.Date(2026, 3, 1, 0, 0, 0, 0, time.UTC),
			MergedLead: model.MergedLead{
				Name:      "Bäckerei Sonne",
				Address:   "Hauptstraße 1, 10115 Berlin",
				Latitude:  ptr(52.53),
				Longitude: ptr(13.38),
				Phone:     "+493012345",
				Website:   "https://baeckerei-sonne.de",
				Sources:   []string{"google_places", "openstreetmap"},
				Enrichment: model.EnrichmentData{
					Emails:      []string{"info@baeckerei-sonne.de"},
					SocialLinks: map[string]string{"instagram": "https://instagram.com/sonne", "facebook": "https://facebook.com/sonne"},
				},
				ConfidenceScore: 0.9,
				BestEmail:       "info@baeckerei-sonne.de",
			},
		},
		{
			ID:    "lead-2",
			RunID: "run-1",
			MergedLead: model.MergedLead{
				Name:            "Café Mond",
				Sources:         []string{"tomtom"},
				Enrichment:      model.EnrichmentData{Phones: []string{"+49301111"}},
				ConfidenceScore: 0.2,
			},
		},
	}
}
