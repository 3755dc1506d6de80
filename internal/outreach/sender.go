package outreach

import (
	"context"
	"time"

	"github.com/rotisserie/eris"
	mail "github.com/wneessen/go-mail"
	"go.uber.org/zap"
	"golang.org/x/time/rate"

	"github.com/sells-group/leadgen-cli/internal/config"
	"github.com/sells-group/leadgen-cli/internal/model"
)

// ErrOptedOut is returned when the recipient is on the opt-out list.
var ErrOptedOut = eris.New("outreach: recipient opted out")

const defaultPerMinute = 10

// Transport delivers a composed message.
type Transport interface {
	Send(ctx context.Context, msg *mail.Msg) error
}

// OptOutList reports recipients who asked not to be contacted.
type OptOutList interface {
	IsOptedOut(ctx context.Context, email string) (bool, error)
}

// SMTPTransport sends through one SMTP server, dialing per message.
type SMTPTransport struct {
	client *mail.Client
}

// NewSMTPTransport builds a transport from the outreach SMTP settings.
// Authentication is only attempted when a username is set.
func NewSMTPTransport(cfg config.OutreachConfig) (*SMTPTransport, error) {
	opts := []mail.Option{
		mail.WithPort(cfg.SMTPPort),
		mail.WithTLSPortPolicy(mail.TLSOpportunistic),
		mail.WithTimeout(30 * time.Second),
	}
	if cfg.SMTPUsername != "" {
		opts = append(opts,
			mail.WithSMTPAuth(mail.SMTPAuthPlain),
			mail.WithUsername(cfg.SMTPUsername),
			mail.WithPassword(cfg.SMTPPassword),
		)
	}
	client, err := mail.NewClient(cfg.SMTPHost, opts...)
	if err != nil {
		return nil, eris.Wrap(err, "outreach: smtp client")
	}
	return &SMTPTransport{client: client}, nil
}

// Send dials the server and delivers msg.
func (t *SMTPTransport) Send(ctx context.Context, msg *mail.Msg) error {
	return eris.Wrap(t.client.DialAndSendWithContext(ctx, msg), "outreach: smtp send")
}

// Sender delivers drafts under the opt-out list and a per-minute limit.
type Sender struct {
	transport Transport
	optOuts   OptOutList
	limiter   *rate.Limiter
	fromName  string
	fromAddr  string
	dryRun    bool
}

// NewSender creates a Sender. Up to MaxPerMinute messages go out at once,
// then one every minute/MaxPerMinute.
func NewSender(t Transport, optOuts OptOutList, cfg config.OutreachConfig) *Sender {
	perMin := cfg.MaxPerMinute
	if perMin <= 0 {
		perMin = defaultPerMinute
	}
	return &Sender{
		transport: t,
		optOuts:   optOuts,
		limiter:   rate.NewLimiter(rate.Every(time.Minute/time.Duration(perMin)), perMin),
		fromName:  cfg.SenderName,
		fromAddr:  cfg.SenderEmail,
		dryRun:    cfg.DryRun,
	}
}

// Send delivers d. It reports false without error in dry-run mode, where
// the message is composed and logged but never handed to the transport.
func (s *Sender) Send(ctx context.Context, d model.EmailDraft) (bool, error) {
	out, err := s.optOuts.IsOptedOut(ctx, d.ToAddress)
	if err != nil {
		return false, eris.Wrap(err, "outreach: check opt-out")
	}
	if out {
		return false, ErrOptedOut
	}

	msg, err := s.compose(d)
	if err != nil {
		return false, err
	}

	if s.dryRun {
		zap.L().Info("outreach: dry run, not sending",
			zap.String("to", d.ToAddress),
			zap.String("subject", d.Subject),
		)
		return false, nil
	}

	if err := s.limiter.Wait(ctx); err != nil {
		return false, eris.Wrap(err, "outreach: rate limit")
	}
	if err := s.transport.Send(ctx, msg); err != nil {
		return false, err
	}
	return true, nil
}

func (s *Sender) compose(d model.EmailDraft) (*mail.Msg, error) {
	msg := mail.NewMsg()
	if err := msg.FromFormat(s.fromName, s.fromAddr); err != nil {
		return nil, eris.Wrap(err, "outreach: from address")
	}
	if err := msg.To(d.ToAddress); err != nil {
		return nil, eris.Wrapf(err, "outreach: recipient %q", d.ToAddress)
	}
	msg.Subject(d.Subject)
	msg.SetGenHeader(mail.HeaderListUnsubscribe, "<mailto:"+s.fromAddr+"?subject=unsubscribe>")
	msg.SetBodyString(mail.TypeTextPlain, d.Body)
	return msg, nil
}
