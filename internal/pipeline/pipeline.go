// Package pipeline runs one lead-generation run end to end: quota gate,
// collection, dedupe, enrichment, scoring, persistence, drafts and sending.
package pipeline

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/sells-group/leadgen-cli/internal/collector"
	"github.com/sells-group/leadgen-cli/internal/metrics"
	"github.com/sells-group/leadgen-cli/internal/model"
	"github.com/sells-group/leadgen-cli/internal/outreach"
	"github.com/sells-group/leadgen-cli/internal/provider"
	"github.com/sells-group/leadgen-cli/internal/store"
)

// Collector fans a request out to providers.
type Collector interface {
	Select(ids []string) []provider.Provider
	Collect(ctx context.Context, req collector.Request) (*collector.Result, error)
}

// Deduper merges raw leads that describe the same business.
type Deduper interface {
	NormalizeAndDedupe(leads []model.RawLead) []model.MergedLead
}

// Enricher fills EnrichmentData in place and returns how many leads gained any.
type Enricher interface {
	EnrichAll(ctx context.Context, leads []model.MergedLead) int
}

// Scorer sets ConfidenceScore and BestEmail in place.
type Scorer interface {
	Apply(leads []model.MergedLead)
}

// Drafter writes one outreach email per lead.
type Drafter interface {
	Draft(ctx context.Context, lead model.MergedLead, req model.RunRequest) (model.EmailDraft, error)
}

// Mailer sends a run's approved drafts.
type Mailer interface {
	SendApproved(ctx context.Context, runID string) (outreach.SendReport, error)
}

// QuotaGate splits providers by remaining quota and books consumed credits.
type QuotaGate interface {
	Gate(ctx context.Context, ids []string) (allowed, exhausted []string, err error)
	Record(ctx context.Context, usage map[string]int) error
}

// Pipeline orchestrates a run.
type Pipeline struct {
	store     store.Store
	collector Collector
	deduper   Deduper
	enricher  Enricher
	scorer    Scorer
	quota     QuotaGate
	drafter   Drafter
	mailer    Mailer
	metrics   *metrics.Metrics

	draftConcurrency int
}

// Option configures a Pipeline.
type Option func(*Pipeline)

// WithQuota gates providers on their quota before collecting.
func WithQuota(q QuotaGate) Option {
	return func(p *Pipeline) { p.quota = q }
}

// WithDrafter enables outreach drafts for runs that ask for them.
func WithDrafter(d Drafter) Option {
	return func(p *Pipeline) { p.drafter = d }
}

// WithMailer sends drafts right after a run unless the run holds them for
// approval or is a dry run.
func WithMailer(m Mailer) Option {
	return func(p *Pipeline) { p.mailer = m }
}

// WithMetrics records run outcomes.
func WithMetrics(m *metrics.Metrics) Option {
	return func(p *Pipeline) { p.metrics = m }
}

// WithDraftConcurrency bounds parallel draft generation.
func WithDraftConcurrency(n int) Option {
	return func(p *Pipeline) {
		if n > 0 {
			p.draftConcurrency = n
		}
	}
}

// New creates a Pipeline. A nil enricher skips enrichment.
func New(st store.Store, c Collector, d Deduper, e Enricher, s Scorer, opts ...Option) *Pipeline {
	p := &Pipeline{
		store:            st,
		collector:        c,
		deduper:          d,
		enricher:         e,
		scorer:           s,
		draftConcurrency: 4,
	}
	for _, o := range opts {
		o(p)
	}
	return p
}

// Start creates a run for req and executes it.
func (p *Pipeline) Start(ctx context.Context, req model.RunRequest) (*model.Run, *model.RunResult, error) {
	run, err := p.store.CreateRun(ctx, req)
	if err != nil {
		return nil, nil, eris.Wrap(err, "pipeline: create run")
	}
	res, err := p.Run(ctx, run)
	return run, res, err
}

// Run executes an already created run. On any stage error the run is
// marked failed and the error returned with the partial result.
func (p *Pipeline) Run(ctx context.Context, run *model.Run) (*model.RunResult, error) {
	start := time.Now()
	log := zap.L().With(
		zap.String("run_id", run.ID),
		zap.String("location", run.Request.Location),
		zap.String("category", run.Request.Category),
	)
	log.Info("pipeline: starting run")

	res := &model.RunResult{RunID: run.ID, Usage: make(map[string]int)}

	if err := p.store.UpdateRunStatus(ctx, run.ID, model.RunStatusRunning); err != nil {
		return res, eris.Wrap(err, "pipeline: mark running")
	}
	run.Status = model.RunStatusRunning

	total, err := p.execute(ctx, run, res)
	res.Duration = time.Since(start)
	if err != nil {
		p.fail(ctx, run, err)
		return res, err
	}

	if err := p.store.CompleteRun(ctx, run.ID, total); err != nil {
		p.fail(ctx, run, err)
		return res, eris.Wrap(err, "pipeline: complete run")
	}
	run.Status = model.RunStatusCompleted
	run.TotalLeads = total
	p.metrics.IncRun(string(model.RunStatusCompleted))

	log.Info("pipeline: run complete",
		zap.Int("raw_leads", res.RawLeads),
		zap.Int("merged_leads", res.MergedLeads),
		zap.Int("enriched", res.Enriched),
		zap.Int("drafts", res.Drafts),
		zap.Duration("duration", res.Duration),
	)
	return res, nil
}

func (p *Pipeline) execute(ctx context.Context, run *model.Run, res *model.RunResult) (int, error) {
	req := run.Request

	ids := providerIDs(p.collector.Select(req.Providers))
	if p.quota != nil && len(ids) > 0 {
		allowed, exhausted, err := p.quota.Gate(ctx, ids)
		if err != nil {
			return 0, eris.Wrap(err, "pipeline: quota gate")
		}
		for _, id := range exhausted {
			p.logRun(ctx, run.ID, model.LogWarning, fmt.Sprintf("provider %s skipped: quota exhausted", id))
		}
		res.SkippedQuota = exhausted
		ids = allowed
	}
	if len(ids) == 0 {
		p.logRun(ctx, run.ID, model.LogWarning, "no providers available")
		return 0, nil
	}

	collected, err := p.collector.Collect(ctx, collector.Request{
		Location:  req.Location,
		Category:  req.Category,
		Providers: ids,
		Limits:    req.Limits,
	})
	if err != nil {
		return 0, eris.Wrap(err, "pipeline: collect")
	}
	res.RawLeads = len(collected.Leads)
	res.Usage = collected.Usage
	res.FailedProviders = collected.Failed
	for _, id := range collected.Failed {
		p.logRun(ctx, run.ID, model.LogWarning, fmt.Sprintf("provider %s failed", id))
	}
	if p.quota != nil {
		if err := p.quota.Record(ctx, collected.Usage); err != nil {
			zap.L().Warn("pipeline: record usage failed", zap.String("run_id", run.ID), zap.Error(err))
		}
	}
	p.logRun(ctx, run.ID, model.LogInfo, fmt.Sprintf("collected %d leads from %d providers", len(collected.Leads), len(ids)-len(collected.Failed)))

	if len(collected.Leads) == 0 {
		p.logRun(ctx, run.ID, model.LogWarning, "no leads found")
		return 0, nil
	}

	merged := p.deduper.NormalizeAndDedupe(collected.Leads)
	res.MergedLeads = len(merged)
	p.metrics.AddMerged(len(merged))
	p.logRun(ctx, run.ID, model.LogInfo, fmt.Sprintf("merged into %d unique leads", len(merged)))

	if p.enricher != nil && !req.SkipEnrichment {
		res.Enriched = p.enricher.EnrichAll(ctx, merged)
		p.logRun(ctx, run.ID, model.LogInfo, fmt.Sprintf("enriched %d of %d leads", res.Enriched, len(merged)))
	}
	if err := ctx.Err(); err != nil {
		return 0, eris.Wrap(err, "pipeline: cancelled")
	}

	p.scorer.Apply(merged)

	saved, err := p.store.SaveLeads(ctx, run.ID, merged)
	if err != nil {
		return 0, eris.Wrap(err, "pipeline: save leads")
	}

	if p.drafter != nil && req.DraftEmails {
		drafts := p.draft(ctx, run, saved)
		if len(drafts) > 0 {
			if err := p.store.SaveEmailDrafts(ctx, drafts); err != nil {
				return 0, eris.Wrap(err, "pipeline: save drafts")
			}
		}
		res.Drafts = len(drafts)
		p.logRun(ctx, run.ID, model.LogInfo, fmt.Sprintf("drafted %d emails", len(drafts)))
		if len(drafts) > 0 {
			p.send(ctx, run, res)
		}
	}
	return len(saved), nil
}

// send delivers the run's approved drafts. Send errors never fail the run.
func (p *Pipeline) send(ctx context.Context, run *model.Run, res *model.RunResult) {
	switch {
	case run.Request.RequireApproval:
		p.logRun(ctx, run.ID, model.LogInfo, "emails drafted, waiting for approval")
		return
	case run.Request.DryRun:
		p.logRun(ctx, run.ID, model.LogInfo, "dry run: emails drafted, none sent")
		return
	case p.mailer == nil:
		return
	}

	rep, err := p.mailer.SendApproved(ctx, run.ID)
	res.Sent = rep.Sent
	res.SendFailed = rep.Failed
	if err != nil {
		p.logRun(ctx, run.ID, model.LogWarning, "sending stopped: "+err.Error())
	}
	p.logRun(ctx, run.ID, model.LogInfo, fmt.Sprintf("sent %d emails, %d failed, %d suppressed", rep.Sent, rep.Failed, rep.Suppressed))
	if rep.Failed > 0 {
		p.logRun(ctx, run.ID, model.LogWarning, fmt.Sprintf("%d emails failed to send", rep.Failed))
	}
}

// draft builds drafts for every saved lead with a best email, keeping
// lead order.
func (p *Pipeline) draft(ctx context.Context, run *model.Run, leads []model.Lead) []model.EmailDraft {
	out := make([]*model.EmailDraft, len(leads))

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(p.draftConcurrency)
	for i, l := range leads {
		if l.BestEmail == "" {
			continue
		}
		g.Go(func() error {
			d, err := p.drafter.Draft(gctx, l.MergedLead, run.Request)
			if err != nil {
				if !errors.Is(err, outreach.ErrNoRecipient) {
					zap.L().Warn("pipeline: draft failed", zap.String("lead", l.Name), zap.Error(err))
				}
				return nil
			}
			d.RunID = run.ID
			d.LeadID = l.ID
			d.Status = model.InitialStatus(run.Request)
			out[i] = &d
			return nil
		})
	}
	_ = g.Wait()

	var drafts []model.EmailDraft
	for _, d := range out {
		if d != nil {
			drafts = append(drafts, *d)
		}
	}
	return drafts
}

func (p *Pipeline) fail(ctx context.Context, run *model.Run, cause error) {
	ctx = context.WithoutCancel(ctx)
	zap.L().Error("pipeline: run failed", zap.String("run_id", run.ID), zap.Error(cause))
	p.logRun(ctx, run.ID, model.LogError, cause.Error())
	if err := p.store.FailRun(ctx, run.ID, cause.Error()); err != nil {
		zap.L().Warn("pipeline: mark failed", zap.String("run_id", run.ID), zap.Error(err))
	}
	run.Status = model.RunStatusFailed
	run.Error = cause.Error()
	p.metrics.IncRun(string(model.RunStatusFailed))
}

// logRun persists a run log line. Store errors are only logged.
func (p *Pipeline) logRun(ctx context.Context, runID string, level model.LogLevel, msg string) {
	switch level {
	case model.LogWarning:
		zap.L().Warn("pipeline: "+msg, zap.String("run_id", runID))
	case model.LogError:
		// already logged by fail
	default:
		zap.L().Debug("pipeline: "+msg, zap.String("run_id", runID))
	}
	if err := p.store.AddLog(ctx, runID, level, msg); err != nil {
		zap.L().Warn("pipeline: persist log", zap.String("run_id", runID), zap.Error(err))
	}
}

func providerIDs(ps []provider.Provider) []string {
	ids := make([]string, 0, len(ps))
	for _, p := range ps {
		ids = append(ids, p.ID())
	}
	return ids
}
