package domain

import (
	"github.com/google/uuid"

	dErrors "ndaflow/pkg/domain-errors"
)

// Typed identifiers. Each wraps a uuid.UUID so an AgreementID can never be passed
// where a JobID is expected. Construct them with the Parse* functions at trust
// boundaries; New* functions mint fresh random IDs.
type (
	AgreementID  uuid.UUID
	JobID        uuid.UUID
	ContactID    uuid.UUID
	TemplateID   uuid.UUID
	AuditEntryID uuid.UUID
)

func NewAgreementID() AgreementID   { return AgreementID(uuid.New()) }
func NewJobID() JobID               { return JobID(uuid.New()) }
func NewContactID() ContactID       { return ContactID(uuid.New()) }
func NewTemplateID() TemplateID     { return TemplateID(uuid.New()) }
func NewAuditEntryID() AuditEntryID { return AuditEntryID(uuid.New()) }

func (i AgreementID) String() string  { return uuid.UUID(i).String() }
func (i JobID) String() string        { return uuid.UUID(i).String() }
func (i ContactID) String() string    { return uuid.UUID(i).String() }
func (i TemplateID) String() string   { return uuid.UUID(i).String() }
func (i AuditEntryID) String() string { return uuid.UUID(i).String() }

func (i AgreementID) IsNil() bool  { return uuid.UUID(i) == uuid.Nil }
func (i JobID) IsNil() bool        { return uuid.UUID(i) == uuid.Nil }
func (i ContactID) IsNil() bool    { return uuid.UUID(i) == uuid.Nil }
func (i TemplateID) IsNil() bool   { return uuid.UUID(i) == uuid.Nil }
func (i AuditEntryID) IsNil() bool { return uuid.UUID(i) == uuid.Nil }

// ParseAgreementID parses an agreement identifier from untrusted input.
func ParseAgreementID(s string) (AgreementID, error) {
	u, err := parseUUID(s, "agreement id")
	return AgreementID(u), err
}

// ParseJobID parses a delivery job identifier from untrusted input.
func ParseJobID(s string) (JobID, error) {
	u, err := parseUUID(s, "job id")
	return JobID(u), err
}

// ParseContactID parses a contact identifier from untrusted input.
func ParseContactID(s string) (ContactID, error) {
	u, err := parseUUID(s, "contact id")
	return ContactID(u), err
}

// ParseTemplateID parses an email template identifier from untrusted input.
func ParseTemplateID(s string) (TemplateID, error) {
	u, err := parseUUID(s, "template id")
	return TemplateID(u), err
}

// parseUUID rejects empty, malformed and nil UUIDs with CodeInvalidInput.
func parseUUID(s, label string) (uuid.UUID, error) {
	if s == "" {
		return uuid.Nil, dErrors.New(dErrors.CodeInvalidInput, label+" is required")
	}
	u, err := uuid.Parse(s)
	if err != nil {
		return uuid.Nil, dErrors.Wrap(err, dErrors.CodeInvalidInput, "invalid "+label)
	}
	if u == uuid.Nil {
		return uuid.Nil, dErrors.New(dErrors.CodeInvalidInput, label+" must not be nil")
	}
	return u, nil
}
