// Package export writes a run's scored leads to a spreadsheet, a Notion
// database or Salesforce.
package export

import (
	"fmt"
	"sort"
	"strings"

	"github.com/sells-group/leadgen-cli/internal/model"
)

// Summary counts the outcome of one export.
type Summary struct {
	Created int      `json:"created"`
	Updated int      `json:"updated"`
	Skipped int      `json:"skipped"`
	Failed  int      `json:"failed"`
	Errors  []string `json:"errors,omitempty"`
}

func (s *Summary) fail(lead model.Lead, err error) {
	s.Failed++
	s.Errors = append(s.Errors, fmt.Sprintf("%s: %v", lead.Name, err))
}

// contactEmail is the best email, else the provider-reported one.
func contactEmail(l model.Lead) string {
	if l.BestEmail != "" {
		return l.BestEmail
	}
	return l.Email
}

// contactPhone is the provider phone, else the first scraped one.
func contactPhone(l model.Lead) string {
	if l.Phone != "" {
		return l.Phone
	}
	if len(l.Enrichment.Phones) > 0 {
		return l.Enrichment.Phones[0]
	}
	return ""
}

// socialList renders social links as "platform: url" sorted by platform.
func socialList(links map[string]string) string {
	keys := make([]string, 0, len(links))
	for k := range links {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	parts := make([]string, 0, len(keys))
	for _, k := range keys {
		parts = append(parts, k+": "+links[k])
	}
	return strings.Join(parts, "\n")
}

func truncate(s string, n int) string {
	r := []rune(s)
	if len(r) <= n {
		return s
	}
	return string(r[:n])
}
