package outreach

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"github.com/sells-group/leadgen-cli/internal/config"
	"github.com/sells-group/leadgen-cli/internal/model"
	"github.com/sells-group/leadgen-cli/pkg/anthropic"
	anthropicmocks "github.com/sells-group/leadgen-cli/pkg/anthropic/mocks"
)

var testCfg = config.OutreachConfig{
	SenderName:    "Anna Schmidt",
	SenderCompany: "Wachstum GmbH",
	SenderEmail:   "anna@wachstum.de",
	Offer:         "local search marketing",
}

func testLead() model.MergedLead {
	return model.MergedLead{
		Name:      "Bäckerei Sonne",
		Website:   "https://baeckerei-sonne.de",
		Sources:   []string{"openstreetmap"},
		BestEmail: "info@baeckerei-sonne.de",
	}
}

func TestLanguage(t *testing.T) {
	tests := []struct {
		location string
		want     string
	}{
		{"Berlin", LangGerman},
		{"Prenzlauer Berg, Berlin, Germany", LangGerman},
		{"München", LangGerman},
		{"Kleinstadt, Deutschland", LangGerman},
		{"London", LangEnglish},
		{"Austin, TX", LangEnglish},
		{"", LangEnglish},
	}
	for _, tt := range tests {
		t.Run(tt.location, func(t *testing.T) {
			assert.Equal(t, tt.want, Language(tt.location))
		})
	}
}

func TestParseEmail(t *testing.T) {
	subject, body, ok := ParseEmail("Subject: Mehr Kunden für Bäckerei Sonne\n\nHallo Team,\nkurze Frage.")
	require.True(t, ok)
	assert.Equal(t, "Mehr Kunden für Bäckerei Sonne", subject)
	assert.Equal(t, "Hallo Team,\nkurze Frage.", body)

	subject, _, ok = ParseEmail("Here you go:\n**Betreff:** Kurze Frage\n\nText")
	require.True(t, ok)
	assert.Equal(t, "Kurze Frage", subject)

	_, _, ok = ParseEmail("Hello team, no subject here.")
	assert.False(t, ok)

	_, _, ok = ParseEmail("Subject: Only a subject")
	assert.False(t, ok)
}

func TestDraft_LLM(t *testing.T) {
	client := anthropicmocks.NewMockClient(t)
	client.On("CreateMessage", mock.Anything, mock.MatchedBy(func(req anthropic.MessageRequest) bool {
		prompt := req.Messages[0].Content
		return req.Model == "claude-test" &&
			req.MaxTokens == 300 &&
			assert.Contains(t, prompt, "German") &&
			assert.Contains(t, prompt, "Bäckerei Sonne") &&
			assert.Contains(t, prompt, "local search marketing")
	})).Return(&anthropic.MessageResponse{
		Content: []anthropic.ContentBlock{{Type: "text", Text: "Subject: Frisches Brot, mehr Kunden\n\nHallo Bäckerei Sonne Team, ..."}},
	}, nil).Once()

	d := New(client, testCfg, WithModel("claude-test", 300))
	draft, err := d.Draft(context.Background(), testLead(), model.RunRequest{Location: "Berlin", Category: "bakery"})
	require.NoError(t, err)

	assert.Equal(t, GeneratorLLM, draft.Generator)
	assert.Equal(t, LangGerman, draft.Language)
	assert.Equal(t, "info@baeckerei-sonne.de", draft.ToAddress)
	assert.Equal(t, "Frisches Brot, mehr Kunden", draft.Subject)
	assert.Contains(t, draft.Body, "Hallo Bäckerei Sonne Team")
	assert.Contains(t, draft.Body, "ABMELDEN")
	assert.Contains(t, draft.Body, "anna@wachstum.de")
}

func TestDraft_LLMErrorFallsBack(t *testing.T) {
	client := anthropicmocks.NewMockClient(t)
	client.On("CreateMessage", mock.Anything, mock.Anything).Return(nil, errors.New("overloaded")).Once()

	d := New(client, testCfg)
	draft, err := d.Draft(context.Background(), testLead(), model.RunRequest{Location: "London", Category: "bakery"})
	require.NoError(t, err)

	assert.Equal(t, GeneratorTemplate, draft.Generator)
	assert.Equal(t, LangEnglish, draft.Language)
	assert.Equal(t, "Partnership with Bäckerei Sonne", draft.Subject)
	assert.Contains(t, draft.Body, "your bakery business in London")
	assert.Contains(t, draft.Body, "Anna Schmidt\nWachstum GmbH")
	assert.Contains(t, draft.Body, "UNSUBSCRIBE")
}

func TestDraft_NoSubjectFallsBack(t *testing.T) {
	client := anthropicmocks.NewMockClient(t)
	client.On("CreateMessage", mock.Anything, mock.Anything).Return(&anthropic.MessageResponse{
		Content: []anthropic.ContentBlock{{Type: "text", Text: "I cannot help with that."}},
	}, nil).Once()

	draft, err := New(client, testCfg).Draft(context.Background(), testLead(), model.RunRequest{Location: "Hamburg", Category: "Bäckerei"})
	require.NoError(t, err)
	assert.Equal(t, GeneratorTemplate, draft.Generator)
	assert.Equal(t, "Partnerschaft mit Bäckerei Sonne", draft.Subject)
	assert.Contains(t, draft.Body, "Ihr Bäckerei-Unternehmen in Hamburg")
}

func TestDraft_NilClientUsesTemplate(t *testing.T) {
	draft, err := New(nil, config.OutreachConfig{SenderCompany: "Wachstum GmbH"}).
		Draft(context.Background(), testLead(), model.RunRequest{Location: "Paris", Category: "bakery"})
	require.NoError(t, err)
	assert.Equal(t, GeneratorTemplate, draft.Generator)
	assert.Contains(t, draft.Body, "contact us at Wachstum GmbH.")
}

func TestDraft_NoRecipient(t *testing.T) {
	lead := testLead()
	lead.BestEmail = ""
	_, err := New(nil, testCfg).Draft(context.Background(), lead, model.RunRequest{Location: "Berlin"})
	assert.ErrorIs(t, err, ErrNoRecipient)
}
