// Package outreach drafts short cold emails for scored leads.
package outreach

import (
	"context"
	"fmt"
	"regexp"
	"strings"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/sells-group/leadgen-cli/internal/config"
	"github.com/sells-group/leadgen-cli/internal/model"
	"github.com/sells-group/leadgen-cli/pkg/anthropic"
)

// Languages a draft can be written in.
const (
	LangGerman  = "DE"
	LangEnglish = "EN"
)

// Generators recorded on a draft.
const (
	GeneratorLLM      = "anthropic"
	GeneratorTemplate = "template"
)

// ErrNoRecipient is returned for leads without a best email.
var ErrNoRecipient = eris.New("outreach: lead has no email")

var germanPlaces = []string{
	"germany", "deutschland", "berlin", "munich", "münchen", "muenchen",
	"hamburg", "köln", "koeln", "cologne", "frankfurt", "stuttgart",
	"düsseldorf", "duesseldorf", "leipzig", "dresden", "hannover",
	"nürnberg", "nuernberg", "bremen", "essen", "dortmund",
}

var subjectRe = regexp.MustCompile(`(?im)^\s*\**(?:subject|betreff)\**\s*:\s*(.+?)\s*$`)

const systemPrompt = "You are an expert email copywriter for B2B outreach to local businesses. " +
	"Write professional, friendly and personal emails that feel authentic and respectful."

// Option configures a Drafter.
type Option func(*Drafter)

// WithModel sets the model and token budget.
func WithModel(model string, maxTokens int) Option {
	return func(d *Drafter) {
		if model != "" {
			d.model = model
		}
		if maxTokens > 0 {
			d.maxTokens = int64(maxTokens)
		}
	}
}

// Drafter writes outreach drafts. A nil client always uses the template.
type Drafter struct {
	client    anthropic.Client
	cfg       config.OutreachConfig
	model     string
	maxTokens int64
}

// New creates a Drafter.
func New(client anthropic.Client, cfg config.OutreachConfig, opts ...Option) *Drafter {
	d := &Drafter{
		client:    client,
		cfg:       cfg,
		model:     "claude-haiku-4-5-20251001",
		maxTokens: 500,
	}
	for _, o := range opts {
		o(d)
	}
	return d
}

// Language picks German when the location names a German city or the
// country itself, English otherwise.
func Language(location string) string {
	loc := strings.ToLower(location)
	for _, p := range germanPlaces {
		if strings.Contains(loc, p) {
			return LangGerman
		}
	}
	return LangEnglish
}

// Draft builds the email for one lead. LLM failures fall back to the
// template and are not returned.
func (d *Drafter) Draft(ctx context.Context, lead model.MergedLead, req model.RunRequest) (model.EmailDraft, error) {
	if lead.BestEmail == "" {
		return model.EmailDraft{}, ErrNoRecipient
	}
	lang := Language(req.Location)
	draft := model.EmailDraft{
		ToAddress: lead.BestEmail,
		Language:  lang,
	}

	subject, body, ok := d.generate(ctx, lead, req, lang)
	if ok {
		draft.Generator = GeneratorLLM
	} else {
		subject, body = d.template(lead, req, lang)
		draft.Generator = GeneratorTemplate
	}
	draft.Subject = subject
	draft.Body = body + d.footer(lang)
	return draft, nil
}

func (d *Drafter) generate(ctx context.Context, lead model.MergedLead, req model.RunRequest, lang string) (string, string, bool) {
	if d.client == nil {
		return "", "", false
	}
	log := zap.L().With(zap.String("business", lead.Name))

	temp := 0.7
	resp, err := d.client.CreateMessage(ctx, anthropic.MessageRequest{
		Model:       d.model,
		MaxTokens:   d.maxTokens,
		System:      systemPrompt,
		Messages:    []anthropic.Message{{Role: "user", Content: d.prompt(lead, req, lang)}},
		Temperature: &temp,
	})
	if err != nil {
		log.Warn("outreach: llm draft failed, using template", zap.Error(err))
		return "", "", false
	}
	resp.Usage.LogCost(d.model, "outreach")

	subject, body, ok := ParseEmail(resp.Text())
	if !ok {
		log.Warn("outreach: llm response has no subject, using template")
		return "", "", false
	}
	return subject, body, true
}

func (d *Drafter) prompt(lead model.MergedLead, req model.RunRequest, lang string) string {
	langName := "English"
	if lang == LangGerman {
		langName = "German"
	}

	var b strings.Builder
	fmt.Fprintf(&b, "Write a short, professional outreach email in %s for this business:\n\n", langName)
	fmt.Fprintf(&b, "Business name: %s\n", lead.Name)
	fmt.Fprintf(&b, "Location: %s\n", req.Location)
	fmt.Fprintf(&b, "Category: %s\n", req.Category)
	if lead.Website != "" {
		fmt.Fprintf(&b, "Website: %s\n", lead.Website)
	}
	if d.cfg.Offer != "" {
		fmt.Fprintf(&b, "What we offer: %s\n", d.cfg.Offer)
	}
	if d.cfg.SenderName != "" {
		fmt.Fprintf(&b, "Sign as: %s", d.cfg.SenderName)
		if d.cfg.SenderCompany != "" {
			fmt.Fprintf(&b, ", %s", d.cfg.SenderCompany)
		}
		b.WriteString("\n")
	}
	b.WriteString(`
The email should be 3-4 sentences, mention the business by name and category,
briefly say how we could help it grow, and ask for a short conversation.
Friendly and authentic, not salesy.

Format your response as:
Subject: <subject>

<body>

Do not include an unsubscribe line.`)
	return b.String()
}

// ParseEmail splits an LLM response into subject and body. It reports
// false when no Subject or Betreff line is present or the body is empty.
func ParseEmail(text string) (string, string, bool) {
	loc := subjectRe.FindStringSubmatchIndex(text)
	if loc == nil {
		return "", "", false
	}
	subject := strings.Trim(strings.TrimSpace(text[loc[2]:loc[3]]), "*")
	body := strings.TrimSpace(text[loc[1]:])
	if subject == "" || body == "" {
		return "", "", false
	}
	return subject, body, true
}

func (d *Drafter) template(lead model.MergedLead, req model.RunRequest, lang string) (string, string) {
	sender := d.signature()
	if lang == LangGerman {
		subject := "Partnerschaft mit " + lead.Name
		body := fmt.Sprintf("Hallo %s Team,\n\n"+
			"wir haben Ihr %s-Unternehmen in %s entdeckt und möchten Ihnen eine Möglichkeit vorstellen, Ihr Geschäft auszubauen.\n\n"+
			"Hätten Sie Interesse an einem kurzen Gespräch?\n\n"+
			"Mit freundlichen Grüßen,\n%s", lead.Name, req.Category, req.Location, sender)
		return subject, body
	}
	subject := "Partnership with " + lead.Name
	body := fmt.Sprintf("Hello %s team,\n\n"+
		"We discovered your %s business in %s and would like to introduce an opportunity to grow your business.\n\n"+
		"Would you be interested in a brief conversation?\n\n"+
		"Best regards,\n%s", lead.Name, req.Category, req.Location, sender)
	return subject, body
}

func (d *Drafter) signature() string {
	switch {
	case d.cfg.SenderName != "" && d.cfg.SenderCompany != "":
		return d.cfg.SenderName + "\n" + d.cfg.SenderCompany
	case d.cfg.SenderName != "":
		return d.cfg.SenderName
	default:
		return d.cfg.SenderCompany
	}
}

func (d *Drafter) footer(lang string) string {
	contact := d.cfg.SenderEmail
	if contact == "" {
		contact = d.signature()
	}
	if lang == LangGerman {
		return fmt.Sprintf("\n\n---\nUm sich von zukünftigen E-Mails abzumelden, antworten Sie mit 'ABMELDEN' oder kontaktieren Sie uns unter %s.", contact)
	}
	return fmt.Sprintf("\n\n---\nTo unsubscribe from future emails, reply with 'UNSUBSCRIBE' or contact us at %s.", contact)
}
