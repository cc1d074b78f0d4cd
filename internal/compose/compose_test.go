package compose

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"ndaflow/internal/agreement/models"
	"ndaflow/internal/contacts"
	id "ndaflow/pkg/domain"
)

func sampleAgreement(t *testing.T) *models.Agreement {
	t.Helper()
	a, err := models.NewAgreement(id.NewAgreementID(), "Acme Federal", id.NewContactID(), time.Now())
	require.NoError(t, err)
	a.DisplayID = 1042
	a.AbbreviatedName = "ACME"
	a.AgencyName = "DHS"
	return a
}

func TestMerge(t *testing.T) {
	fields := map[string]string{"companyName": "Acme", "displayId": "7"}

	tests := []struct {
		name string
		in   string
		want string
	}{
		{"known tokens", "NDA #{{displayId}} for {{companyName}}", "NDA #7 for Acme"},
		{"spaces inside braces", "{{ companyName }}", "Acme"},
		{"unknown token left verbatim", "Hi {{firstName}}, {{companyName}}", "Hi {{firstName}}, Acme"},
		{"unterminated token", "Hello {{companyName", "Hello {{companyName"},
		{"repeated token", "{{companyName}}/{{companyName}}", "Acme/Acme"},
		{"no tokens", "plain text", "plain text"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, Merge(tt.in, fields))
		})
	}
}

func TestCompose(t *testing.T) {
	a := sampleAgreement(t)
	relationship := &contacts.Contact{ID: id.NewContactID(), Email: "jane.doe@acme.com", FirstName: "Jane", LastName: "Doe"}
	submitter := &contacts.Contact{ID: id.NewContactID(), Email: "pm@usmax.com"}
	parties := Parties{
		Relationship: relationship,
		Submitter:    submitter,
		Subscribers: []contacts.Contact{
			{ID: id.NewContactID(), Email: "PM@usmax.com"},
			{ID: id.NewContactID(), Email: "watcher@usmax.com"},
		},
	}
	defaults := Defaults{
		SenderName: "USMax",
		CC:         []string{"contracts@usmax.com", "Jane.Doe@acme.com"},
		BCC:        []string{"archive@usmax.com", "contracts@usmax.com"},
	}

	t.Run("built-in subject and body", func(t *testing.T) {
		got := Compose(a, nil, parties, defaults)
		assert.Equal(t, "NDA from USMax - for Acme Federal for ACME at DHS", got.Subject)
		assert.Contains(t, got.Body, "Dear Jane Doe,")
		assert.Contains(t, got.Body, "NDA Reference: #1042")
		assert.Empty(t, got.TemplateID)
	})

	t.Run("recipients are deduplicated across lists", func(t *testing.T) {
		got := Compose(a, nil, parties, defaults)
		assert.Equal(t, []string{"jane.doe@acme.com"}, got.To)
		assert.Equal(t, []string{"pm@usmax.com", "contracts@usmax.com"}, got.Cc)
		assert.Equal(t, []string{"watcher@usmax.com", "archive@usmax.com"}, got.Bcc)
	})

	t.Run("template is merged", func(t *testing.T) {
		tpl := &Template{
			ID:      id.NewTemplateID(),
			Subject: "NDA #{{displayId}} - {{companyName}}",
			Body:    "Hello {{relationshipPocFirstName}}, {{unknownField}}",
		}
		got := Compose(a, tpl, parties, defaults)
		assert.Equal(t, "NDA #1042 - Acme Federal", got.Subject)
		assert.Equal(t, "Hello Jane, {{unknownField}}", got.Body)
		assert.Equal(t, tpl.ID.String(), got.TemplateID)
	})

	t.Run("missing relationship contact", func(t *testing.T) {
		a := sampleAgreement(t)
		a.AgencyName = ""
		got := Compose(a, nil, Parties{}, Defaults{SenderName: "USMax"})
		assert.Empty(t, got.To)
		assert.Contains(t, got.Subject, "at Agency")
		assert.Contains(t, got.Body, "Dear Partner,")
	})
}
