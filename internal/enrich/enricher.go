// Package enrich crawls lead websites for contact evidence and folds it
// into the leads.
package enrich

import (
	"context"
	"fmt"
	"net/url"
	"strings"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/sells-group/leadgen-cli/internal/metrics"
	"github.com/sells-group/leadgen-cli/internal/model"
)

// Defaults for Enricher.
const (
	DefaultBatchSize       = 5
	DefaultMaxContactPages = 3
)

// fallbackPaths are tried when the homepage itself cannot be fetched.
var fallbackPaths = []string{"/impressum", "/kontakt", "/contact"}

// Enricher merges crawler output into leads.
type Enricher struct {
	crawler         Crawler
	batchSize       int
	maxContactPages int
	region          string
	metrics         *metrics.Metrics
}

// Option configures an Enricher.
type Option func(*Enricher)

// WithBatchSize sets how many leads are crawled concurrently.
func WithBatchSize(n int) Option {
	return func(e *Enricher) {
		if n > 0 {
			e.batchSize = n
		}
	}
}

// WithMaxContactPages caps the subpages tried per lead.
func WithMaxContactPages(n int) Option {
	return func(e *Enricher) {
		if n >= 0 {
			e.maxContactPages = n
		}
	}
}

// WithRegion sets the phone region used to compare against the primary phone.
func WithRegion(region string) Option {
	return func(e *Enricher) {
		if region != "" {
			e.region = region
		}
	}
}

// WithMetrics records enrichment outcomes.
func WithMetrics(m *metrics.Metrics) Option {
	return func(e *Enricher) { e.metrics = m }
}

// New creates an Enricher.
func New(crawler Crawler, opts ...Option) *Enricher {
	e := &Enricher{
		crawler:         crawler,
		batchSize:       DefaultBatchSize,
		maxContactPages: DefaultMaxContactPages,
		region:          DefaultRegion,
	}
	for _, o := range opts {
		o(e)
	}
	return e
}

// Enrich crawls the lead's website. Leads without a website get empty
// data and no error. Contact subpages are tried only while no email has
// been found, up to the configured cap.
func (e *Enricher) Enrich(ctx context.Context, lead model.MergedLead) (model.EnrichmentData, error) {
	if strings.TrimSpace(lead.Website) == "" {
		return model.EnrichmentData{}, nil
	}
	log := zap.L().With(zap.String("lead", lead.Name), zap.String("website", lead.Website))

	acc := newAccumulator()
	var candidates []string
	home, homeErr := e.crawler.Homepage(ctx, lead.Website)
	if homeErr != nil {
		log.Debug("enrich: homepage failed, trying fallback paths", zap.Error(homeErr))
		candidates = fallbackURLs(lead.Website)
	} else {
		acc.add(home)
		candidates = home.ContactLinks
	}

	fetched := 0
	for _, link := range candidates {
		if acc.hasEmail() || fetched >= e.maxContactPages || ctx.Err() != nil {
			break
		}
		fetched++
		page, err := e.crawler.Page(ctx, link)
		if err != nil {
			log.Debug("enrich: contact page failed", zap.String("url", link), zap.Error(err))
			continue
		}
		acc.add(page)
	}

	if homeErr != nil && acc.pages == 0 {
		return model.EnrichmentData{}, eris.Wrap(homeErr, "enrich: crawl website")
	}
	return acc.result(lead, e.region), nil
}

// EnrichAll enriches leads in place, batchSize at a time. A lead that
// fails keeps empty enrichment data. It returns how many leads gained
// any evidence.
func (e *Enricher) EnrichAll(ctx context.Context, leads []model.MergedLead) int {
	found := make([]bool, len(leads))

	for start := 0; start < len(leads); start += e.batchSize {
		if ctx.Err() != nil {
			zap.L().Warn("enrich: stopped early", zap.Int("remaining", len(leads)-start), zap.Error(ctx.Err()))
			break
		}
		end := min(start+e.batchSize, len(leads))

		var g errgroup.Group
		for i := start; i < end; i++ {
			g.Go(func() error {
				data, err := e.safeEnrich(ctx, leads[i])
				if err != nil {
					zap.L().Warn("enrich: lead enrichment failed",
						zap.String("lead", leads[i].Name),
						zap.String("website", leads[i].Website),
						zap.Error(err),
					)
					e.metrics.IncEnrich(metrics.OutcomeError)
					data = model.EnrichmentData{}
				} else if strings.TrimSpace(leads[i].Website) == "" {
					e.metrics.IncEnrich(metrics.OutcomeSkipped)
				} else {
					e.metrics.IncEnrich(metrics.OutcomeSuccess)
				}
				leads[i].Enrichment = data
				found[i] = !data.IsEmpty()
				return nil
			})
		}
		_ = g.Wait()
	}

	n := 0
	for _, f := range found {
		if f {
			n++
		}
	}
	zap.L().Info("enrich: batch enrichment complete",
		zap.Int("leads", len(leads)),
		zap.Int("enriched", n),
	)
	return n
}

func (e *Enricher) safeEnrich(ctx context.Context, lead model.MergedLead) (data model.EnrichmentData, err error) {
	defer func() {
		if r := recover(); r != nil {
			data = model.EnrichmentData{}
			err = eris.New(fmt.Sprintf("enrich: panic: %v", r))
		}
	}()
	return e.Enrich(ctx, lead)
}

func fallbackURLs(website string) []string {
	home, err := NormalizeWebsite(website)
	if err != nil {
		return nil
	}
	base, err := url.Parse(home)
	if err != nil {
		return nil
	}
	out := make([]string, 0, len(fallbackPaths))
	for _, p := range fallbackPaths {
		out = append(out, base.ResolveReference(&url.URL{Path: p}).String())
	}
	return out
}

type accumulator struct {
	pages  int
	emails *orderedSet
	phones *orderedSet
	social map[string]string
}

func newAccumulator() *accumulator {
	return &accumulator{
		emails: newOrderedSet(),
		phones: newOrderedSet(),
		social: make(map[string]string),
	}
}

func (a *accumulator) add(p *Page) {
	if p == nil {
		return
	}
	a.pages++
	for _, v := range p.Emails {
		a.emails.add(v)
	}
	for _, v := range p.Phones {
		a.phones.add(v)
	}
	for k, v := range p.Social {
		if _, ok := a.social[k]; !ok {
			a.social[k] = v
		}
	}
}

func (a *accumulator) hasEmail() bool {
	return len(a.emails.items) > 0
}

// result drops evidence the lead already carries as its primary contact.
func (a *accumulator) result(lead model.MergedLead, region string) model.EnrichmentData {
	var data model.EnrichmentData
	for _, v := range a.emails.items {
		if v != lead.Email {
			data.Emails = append(data.Emails, v)
		}
	}

	known := map[string]bool{}
	if p := DigitsPlus(lead.Phone); p != "" {
		known[p] = true
	}
	if p := NormalizePhone(lead.Phone, region); p != "" {
		known[DigitsPlus(p)] = true
	}
	for _, v := range a.phones.items {
		if !known[DigitsPlus(v)] {
			data.Phones = append(data.Phones, v)
		}
	}

	if len(a.social) > 0 {
		data.SocialLinks = a.social
	}
	return data
}
