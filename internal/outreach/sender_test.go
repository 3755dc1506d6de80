package outreach

import (
	"context"
	"strings"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	mail "github.com/wneessen/go-mail"

	"github.com/sells-group/leadgen-cli/internal/config"
	"github.com/sells-group/leadgen-cli/internal/model"
)

type recordingTransport struct {
	mu   sync.Mutex
	msgs []*mail.Msg
	err  error
}

func (r *recordingTransport) Send(_ context.Context, msg *mail.Msg) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.err != nil {
		return r.err
	}
	r.msgs = append(r.msgs, msg)
	return nil
}

func (r *recordingTransport) count() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.msgs)
}

type optOutSet map[string]bool

func (o optOutSet) IsOptedOut(_ context.Context, email string) (bool, error) {
	return o[strings.ToLower(email)], nil
}

func sendCfg() config.OutreachConfig {
	cfg := testCfg
	cfg.MaxPerMinute = 10
	return cfg
}

func testDraft() model.EmailDraft {
	return model.EmailDraft{
		ID:        "draft-1",
		ToAddress: "info@baeckerei-sonne.de",
		Subject:   "Mehr Kunden für Bäckerei Sonne",
		Body:      "Hallo Team,\nkurze Frage.",
		Status:    model.EmailApproved,
	}
}

func TestSender_Send(t *testing.T) {
	tr := &recordingTransport{}
	s := NewSender(tr, optOutSet{}, sendCfg())

	sent, err := s.Send(context.Background(), testDraft())
	require.NoError(t, err)
	assert.True(t, sent)
	require.Equal(t, 1, tr.count())

	msg := tr.msgs[0]
	rcpts, err := msg.GetRecipients()
	require.NoError(t, err)
	assert.Equal(t, []string{"info@baeckerei-sonne.de"}, rcpts)
	assert.Equal(t, []string{"Mehr Kunden für Bäckerei Sonne"}, msg.GetGenHeader(mail.HeaderSubject))
	assert.Equal(t, []string{"<mailto:anna@wachstum.de?subject=unsubscribe>"}, msg.GetGenHeader(mail.HeaderListUnsubscribe))
}

func TestSender_OptedOut(t *testing.T) {
	tr := &recordingTransport{}
	s := NewSender(tr, optOutSet{"info@baeckerei-sonne.de": true}, sendCfg())

	d := testDraft()
	d.ToAddress = "Info@Baeckerei-Sonne.de"
	sent, err := s.Send(context.Background(), d)
	assert.ErrorIs(t, err, ErrOptedOut)
	assert.False(t, sent)
	assert.Zero(t, tr.count())
}

func TestSender_DryRun(t *testing.T) {
	tr := &recordingTransport{}
	cfg := sendCfg()
	cfg.DryRun = true
	s := NewSender(tr, optOutSet{}, cfg)

	sent, err := s.Send(context.Background(), testDraft())
	require.NoError(t, err)
	assert.False(t, sent)
	assert.Zero(t, tr.count())
}

func TestSender_InvalidRecipient(t *testing.T) {
	tr := &recordingTransport{}
	s := NewSender(tr, optOutSet{}, sendCfg())

	d := testDraft()
	d.ToAddress = "not an address"
	_, err := s.Send(context.Background(), d)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "outreach: recipient")
	assert.Zero(t, tr.count())
}

func TestSender_TransportError(t *testing.T) {
	tr := &recordingTransport{err: assert.AnError}
	s := NewSender(tr, optOutSet{}, sendCfg())

	sent, err := s.Send(context.Background(), testDraft())
	assert.ErrorIs(t, err, assert.AnError)
	assert.False(t, sent)
}

func TestSender_RateLimit(t *testing.T) {
	tr := &recordingTransport{}
	cfg := sendCfg()
	cfg.MaxPerMinute = 1
	s := NewSender(tr, optOutSet{}, cfg)

	_, err := s.Send(context.Background(), testDraft())
	require.NoError(t, err)

	// The next token is a minute away.
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err = s.Send(ctx, testDraft())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "outreach: rate limit")
	assert.Equal(t, 1, tr.count())
}

func TestNewSender_DefaultRate(t *testing.T) {
	s := NewSender(&recordingTransport{}, optOutSet{}, testCfg)
	assert.Equal(t, defaultPerMinute, s.limiter.Burst())
}

func TestNewSMTPTransport(t *testing.T) {
	_, err := NewSMTPTransport(config.OutreachConfig{SMTPPort: 587})
	assert.Error(t, err)

	tr, err := NewSMTPTransport(config.OutreachConfig{
		SMTPHost: "smtp.example.com", SMTPPort: 587,
		SMTPUsername: "anna", SMTPPassword: "secret",
	})
	require.NoError(t, err)
	assert.NotNil(t, tr)
}
