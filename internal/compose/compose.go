// Package compose builds the default email for an agreement. Compose and Merge
// are pure; Service gathers their inputs from the stores.
package compose

import (
	"fmt"
	"strconv"
	"strings"
	"time"

	"ndaflow/internal/agreement/models"
	"ndaflow/internal/attachment"
	"ndaflow/internal/contacts"
	id "ndaflow/pkg/domain"
	pstrings "ndaflow/pkg/platform/strings"
)

// Template is an editable subject/body pair with {{placeholder}} tokens.
type Template struct {
	ID        id.TemplateID
	Name      string
	Subject   string
	Body      string
	IsDefault bool
	CreatedAt time.Time
}

// Defaults is deployment configuration applied to every composed email.
type Defaults struct {
	SenderName string
	CC         []string
	BCC        []string
}

// Parties are the resolved people an agreement's email involves. Nil contacts
// are roles the agreement does not fill.
type Parties struct {
	Relationship *contacts.Contact
	Opportunity  *contacts.Contact
	Contracts    *contacts.Contact
	Submitter    *contacts.Contact
	Subscribers  []contacts.Contact
}

// ComposedEmail is a preview; callers may edit it before enqueueing.
type ComposedEmail struct {
	Subject    string          `json:"subject"`
	Body       string          `json:"body"`
	To         []string        `json:"to"`
	Cc         []string        `json:"cc"`
	Bcc        []string        `json:"bcc"`
	TemplateID string          `json:"templateId,omitempty"`
	Attachment *attachment.Ref `json:"attachment,omitempty"`
}

const fallbackAgency = "Agency"

// Compose merges the agreement into tpl, or into the built-in subject and body
// when tpl is nil, and fills the default recipients.
func Compose(a *models.Agreement, tpl *Template, parties Parties, defaults Defaults) ComposedEmail {
	fields := Fields(a, parties, defaults)

	var out ComposedEmail
	if tpl != nil {
		out.Subject = Merge(tpl.Subject, fields)
		out.Body = Merge(tpl.Body, fields)
		out.TemplateID = tpl.ID.String()
	} else {
		out.Subject = DefaultSubject(a, defaults.SenderName)
		out.Body = DefaultBody(a, parties, defaults.SenderName)
	}

	seen := pstrings.FoldSet{}
	out.To = seen.Take(addresses(parties.Relationship))
	out.Cc = seen.Take(append(addresses(parties.Submitter), defaults.CC...))
	bcc := make([]string, 0, len(parties.Subscribers)+len(defaults.BCC))
	for _, c := range parties.Subscribers {
		bcc = append(bcc, c.Email)
	}
	out.Bcc = seen.Take(append(bcc, defaults.BCC...))
	return out
}

// DefaultSubject is used when no template applies.
func DefaultSubject(a *models.Agreement, sender string) string {
	return fmt.Sprintf("NDA from %s - for %s for %s at %s", sender, a.CompanyName, a.AbbreviatedName, agency(a))
}

// DefaultBody is used when no template applies.
func DefaultBody(a *models.Agreement, parties Parties, sender string) string {
	greeting := "Partner"
	if parties.Relationship != nil {
		if name := strings.TrimSpace(parties.Relationship.FirstName + " " + parties.Relationship.LastName); name != "" {
			greeting = name
		}
	}
	var b strings.Builder
	fmt.Fprintf(&b, "Dear %s,\n\n", greeting)
	fmt.Fprintf(&b, "Please find attached the Non-Disclosure Agreement (NDA) for %s regarding %s.\n\n", a.CompanyName, a.AbbreviatedName)
	b.WriteString("Please review the attached document, sign, and return at your earliest convenience.\n\n")
	b.WriteString("If you have any questions or concerns, please don't hesitate to reach out.\n\n")
	fmt.Fprintf(&b, "Best regards,\n%s\n\n", sender)
	fmt.Fprintf(&b, "NDA Reference: #%d", a.DisplayID)
	return b.String()
}

// Fields returns the placeholder values available to templates.
func Fields(a *models.Agreement, parties Parties, defaults Defaults) map[string]string {
	fields := map[string]string{
		"companyName":       a.CompanyName,
		"abbreviatedName":   a.AbbreviatedName,
		"agencyName":        agency(a),
		"authorizedPurpose": a.AuthorizedPurpose,
		"displayId":         strconv.FormatInt(a.DisplayID, 10),
		"senderName":        defaults.SenderName,
		"expirationDate":    "",
	}
	if a.ExpiresAt != nil {
		fields["expirationDate"] = a.ExpiresAt.Format("January 2, 2006")
	}
	fields["relationshipPocName"] = name(parties.Relationship)
	fields["relationshipPocFirstName"] = ""
	if parties.Relationship != nil {
		fields["relationshipPocFirstName"] = parties.Relationship.FirstName
	}
	fields["opportunityPocName"] = name(parties.Opportunity)
	fields["contractsPocName"] = name(parties.Contracts)
	return fields
}

// Merge replaces {{name}} tokens with fields[name]. Tokens with no field are
// left exactly as written.
func Merge(text string, fields map[string]string) string {
	var b strings.Builder
	b.Grow(len(text))
	for {
		start := strings.Index(text, "{{")
		if start < 0 {
			b.WriteString(text)
			return b.String()
		}
		end := strings.Index(text[start+2:], "}}")
		if end < 0 {
			b.WriteString(text)
			return b.String()
		}
		end += start + 2

		b.WriteString(text[:start])
		key := strings.TrimSpace(text[start+2 : end])
		if value, ok := fields[key]; ok {
			b.WriteString(value)
		} else {
			b.WriteString(text[start : end+2])
		}
		text = text[end+2:]
	}
}

func agency(a *models.Agreement) string {
	if a.AgencyName != "" {
		return a.AgencyName
	}
	return fallbackAgency
}

func name(c *contacts.Contact) string {
	if c == nil {
		return ""
	}
	return c.Name()
}

func addresses(c *contacts.Contact) []string {
	if c == nil || c.Email == "" {
		return nil
	}
	return []string{c.Email}
}
