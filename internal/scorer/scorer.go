package scorer

import (
	"math"
	"strings"

	"github.com/sells-group/leadgen-cli/internal/config"
	"github.com/sells-group/leadgen-cli/internal/model"
)

var personalDomains = map[string]struct{}{
	"gmail.com":   {},
	"yahoo.com":   {},
	"hotmail.com": {},
	"outlook.com": {},
	"icloud.com":  {},
	"aol.com":     {},
	"gmx.de":      {},
	"web.de":      {},
}

// IsPersonalDomain reports whether email belongs to a consumer webmail
// provider. An empty address is not personal.
func IsPersonalDomain(email string) bool {
	if email == "" {
		return false
	}
	domain := email
	if i := strings.LastIndex(email, "@"); i >= 0 {
		domain = email[i+1:]
	}
	_, ok := personalDomains[strings.ToLower(strings.TrimSpace(domain))]
	return ok
}

// Scorer computes confidence scores and picks contact emails.
type Scorer struct {
	w config.ScoringConfig
}

// New creates a Scorer with the given weights.
func New(w config.ScoringConfig) *Scorer {
	return &Scorer{w: w}
}

// Score returns the confidence of a merged lead in [0,1], rounded to two
// decimals.
func (s *Scorer) Score(lead model.MergedLead) float64 {
	score := 0.0

	if lead.Website != "" {
		score += s.w.Website
	}

	emails := allEmails(lead)
	switch {
	case hasBusinessEmail(emails):
		score += s.w.BusinessEmail
	case len(emails) > 0:
		score += s.w.AnyEmail
	}

	if lead.Phone != "" || len(lead.Enrichment.Phones) > 0 {
		score += s.w.Phone
	}

	if len(lead.Enrichment.SocialLinks) > 0 {
		score += s.w.Social
	}

	if len(lead.Sources) > 1 {
		score += s.w.MultiSource
	}

	score = math.Max(0, math.Min(score, 1.0))
	return math.Round(score*100) / 100
}

// BestEmail picks the most useful contact address: a business primary
// email, then a business enrichment email, then any primary email, then
// any enrichment email. Returns "" when the lead has none.
func (s *Scorer) BestEmail(lead model.MergedLead) string {
	if lead.Email != "" && !IsPersonalDomain(lead.Email) {
		return lead.Email
	}
	for _, e := range lead.Enrichment.Emails {
		if e != "" && !IsPersonalDomain(e) {
			return e
		}
	}
	if lead.Email != "" {
		return lead.Email
	}
	for _, e := range lead.Enrichment.Emails {
		if e != "" {
			return e
		}
	}
	return ""
}

// Apply sets ConfidenceScore and BestEmail on every lead in place.
func (s *Scorer) Apply(leads []model.MergedLead) {
	for i := range leads {
		leads[i].ConfidenceScore = s.Score(leads[i])
		leads[i].BestEmail = s.BestEmail(leads[i])
	}
}

func allEmails(lead model.MergedLead) []string {
	var out []string
	if lead.Email != "" {
		out = append(out, lead.Email)
	}
	for _, e := range lead.Enrichment.Emails {
		if e != "" {
			out = append(out, e)
		}
	}
	return out
}

func hasBusinessEmail(emails []string) bool {
	for _, e := range emails {
		if !IsPersonalDomain(e) {
			return true
		}
	}
	return false
}
