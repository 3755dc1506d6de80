package outreach

import (
	"context"
	"errors"
	"time"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/sells-group/leadgen-cli/internal/metrics"
	"github.com/sells-group/leadgen-cli/internal/model"
)

var (
	// ErrNotPending is returned when approving a draft that is not
	// waiting for approval.
	ErrNotPending = eris.New("outreach: draft is not pending approval")
	// ErrAlreadySent is returned when suppressing a delivered draft.
	ErrAlreadySent = eris.New("outreach: draft already sent")
)

// DraftStore is the persistence the outbox works against.
type DraftStore interface {
	GetRun(ctx context.Context, runID string) (*model.Run, error)
	GetEmailDraft(ctx context.Context, draftID string) (*model.EmailDraft, error)
	ListEmailDrafts(ctx context.Context, runID string) ([]model.EmailDraft, error)
	UpdateEmailDraftStatus(ctx context.Context, draftID string, status model.EmailStatus, errMsg string) error
}

// SendReport counts the outcomes of one send pass.
type SendReport struct {
	Sent       int `json:"sent"`
	Failed     int `json:"failed"`
	Suppressed int `json:"suppressed"`
}

// Outbox moves drafts through approval and delivery. Without a sender,
// approved drafts stay approved.
type Outbox struct {
	store   DraftStore
	sender  *Sender
	metrics *metrics.Metrics
}

// OutboxOption configures an Outbox.
type OutboxOption func(*Outbox)

// WithOutboxMetrics counts delivery outcomes.
func WithOutboxMetrics(m *metrics.Metrics) OutboxOption {
	return func(o *Outbox) { o.metrics = m }
}

// NewOutbox creates an Outbox. sender may be nil.
func NewOutbox(st DraftStore, sender *Sender, opts ...OutboxOption) *Outbox {
	o := &Outbox{store: st, sender: sender}
	for _, fn := range opts {
		fn(o)
	}
	return o
}

// CanSend reports whether a sender is configured.
func (o *Outbox) CanSend() bool { return o.sender != nil }

// SendApproved delivers every approved draft of a run in order. It stops
// early only when ctx ends.
func (o *Outbox) SendApproved(ctx context.Context, runID string) (SendReport, error) {
	var rep SendReport
	if o.sender == nil {
		return rep, nil
	}
	drafts, err := o.store.ListEmailDrafts(ctx, runID)
	if err != nil {
		return rep, eris.Wrapf(err, "outreach: list drafts for run %s", runID)
	}
	for i := range drafts {
		if drafts[i].Status != model.EmailApproved {
			continue
		}
		if err := o.deliver(ctx, &drafts[i]); err != nil {
			return rep, err
		}
		switch drafts[i].Status {
		case model.EmailSent:
			rep.Sent++
		case model.EmailFailed:
			rep.Failed++
		case model.EmailSuppressed:
			rep.Suppressed++
		}
	}
	return rep, nil
}

// Approve releases a draft held for approval and, unless its run is a dry
// run, sends it right away.
func (o *Outbox) Approve(ctx context.Context, draftID string) (*model.EmailDraft, error) {
	d, err := o.store.GetEmailDraft(ctx, draftID)
	if err != nil {
		return nil, err
	}
	if d.Status != model.EmailPendingApproval {
		return nil, eris.Wrapf(ErrNotPending, "draft %s is %s", d.ID, d.Status)
	}
	if err := o.store.UpdateEmailDraftStatus(ctx, d.ID, model.EmailApproved, ""); err != nil {
		return nil, err
	}
	d.Status = model.EmailApproved

	run, err := o.store.GetRun(ctx, d.RunID)
	if err != nil {
		return nil, err
	}
	if run.Request.DryRun || o.sender == nil {
		return d, nil
	}
	if err := o.deliver(ctx, d); err != nil {
		return nil, err
	}
	return d, nil
}

// Suppress stops a draft from ever being sent.
func (o *Outbox) Suppress(ctx context.Context, draftID string) (*model.EmailDraft, error) {
	d, err := o.store.GetEmailDraft(ctx, draftID)
	if err != nil {
		return nil, err
	}
	if d.Status == model.EmailSent {
		return nil, eris.Wrapf(ErrAlreadySent, "draft %s", d.ID)
	}
	if err := o.store.UpdateEmailDraftStatus(ctx, d.ID, model.EmailSuppressed, ""); err != nil {
		return nil, err
	}
	d.Status = model.EmailSuppressed
	return d, nil
}

// deliver sends d and records the resulting status on it and in the
// store. A dry-run send leaves the draft approved. Only context and store
// errors are returned; delivery failures become the failed status.
func (o *Outbox) deliver(ctx context.Context, d *model.EmailDraft) error {
	sent, err := o.sender.Send(ctx, *d)
	if ctxErr := ctx.Err(); ctxErr != nil {
		return eris.Wrap(ctxErr, "outreach: send cancelled")
	}

	var status model.EmailStatus
	var msg string
	switch {
	case errors.Is(err, ErrOptedOut):
		status, msg = model.EmailSuppressed, "recipient opted out"
	case err != nil:
		status, msg = model.EmailFailed, err.Error()
		zap.L().Warn("outreach: send failed", zap.String("draft_id", d.ID), zap.String("to", d.ToAddress), zap.Error(err))
	case !sent:
		return nil
	default:
		status = model.EmailSent
	}

	if err := o.store.UpdateEmailDraftStatus(ctx, d.ID, status, msg); err != nil {
		return eris.Wrapf(err, "outreach: record %s for draft %s", status, d.ID)
	}
	d.Status, d.Error = status, msg
	if status == model.EmailSent {
		now := time.Now().UTC()
		d.SentAt = &now
	}
	o.metrics.IncEmail(string(status))
	return nil
}
