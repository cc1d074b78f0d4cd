package handler

import (
	"strings"

	"ndaflow/internal/delivery/models"
	id "ndaflow/pkg/domain"
)

// SendEmailRequest is the body of POST /agreements/{id}/emails. Field rules
// are enforced by the delivery service so direct callers get the same checks.
type SendEmailRequest struct {
	Subject    string   `json:"subject"`
	To         []string `json:"to"`
	Cc         []string `json:"cc"`
	Bcc        []string `json:"bcc"`
	Body       string   `json:"body"`
	TemplateID string   `json:"templateId,omitempty"`

	templateID id.TemplateID
}

func (r *SendEmailRequest) Validate() error {
	r.TemplateID = strings.TrimSpace(r.TemplateID)
	if r.TemplateID == "" {
		return nil
	}
	templateID, err := id.ParseTemplateID(r.TemplateID)
	if err != nil {
		return err
	}
	r.templateID = templateID
	return nil
}

func (r *SendEmailRequest) toModel(agreementID id.AgreementID) models.SendRequest {
	return models.SendRequest{
		AgreementID: agreementID,
		Subject:     r.Subject,
		To:          r.To,
		Cc:          r.Cc,
		Bcc:         r.Bcc,
		Body:        r.Body,
		TemplateID:  r.templateID,
	}
}
