package main

import (
	"context"
	"log/slog"
	"time"

	agreementmodels "ndaflow/internal/agreement/models"
	"ndaflow/internal/attachment"
	"ndaflow/internal/compose"
	"ndaflow/internal/contacts"
	jwttoken "ndaflow/internal/jwt_token"
	"ndaflow/internal/permission"
	id "ndaflow/pkg/domain"
	"ndaflow/pkg/requestcontext"
)

const demoTokenTTL = 12 * time.Hour

const demoTemplateBody = `Dear {{relationshipPocFirstName}},

Please find attached the Non-Disclosure Agreement between {{senderName}} and {{companyName}}
for {{authorizedPurpose}}.

Kindly review, sign and return the agreement at your earliest convenience.

Regards,
{{senderName}} Contracts`

// seedDemo loads one agreement with its people, a default template and a
// generated document, and logs an admin token for calling the API locally.
func seedDemo(ctx context.Context, st *stores, docs *attachment.InMemory, tokens *jwttoken.JWTService, log *slog.Logger) error {
	now := time.Now().UTC()
	people := []contacts.Contact{
		{ID: id.NewContactID(), Email: "jane.doe@usmax.com", FirstName: "Jane", LastName: "Doe"},
		{ID: id.NewContactID(), Email: "sam.lee@usmax.com", FirstName: "Sam", LastName: "Lee"},
		{ID: id.NewContactID(), Email: "contracts@usmax.com", FirstName: "Contracts", LastName: "Desk"},
	}
	for _, c := range people {
		if err := st.contacts.Save(ctx, c); err != nil {
			return err
		}
	}
	relationship, opportunity, contractsDesk := people[0], people[1], people[2]

	a, err := agreementmodels.NewAgreement(id.NewAgreementID(), "Acme Corp", relationship.ID, now)
	if err != nil {
		return err
	}
	expires := now.AddDate(1, 0, 0)
	a.DisplayID = 1001
	a.AbbreviatedName = "ACME"
	a.AgencyName = "Department of Energy"
	a.AuthorizedPurpose = "evaluation of a joint proposal"
	a.RelationshipContactID = relationship.ID
	a.OpportunityContactID = opportunity.ID
	a.ContractsContactID = contractsDesk.ID
	a.ExpiresAt = &expires
	if err := st.agreements.Create(ctx, a); err != nil {
		return err
	}

	err = st.templates.Save(ctx, compose.Template{
		ID:        id.NewTemplateID(),
		Name:      "Standard NDA",
		Subject:   "NDA from {{senderName}} for {{companyName}} at {{agencyName}}",
		Body:      demoTemplateBody,
		IsDefault: true,
		CreatedAt: now,
	})
	if err != nil {
		return err
	}

	docs.Put(a.ID, attachment.Ref{
		Key:         a.ID.String() + "/nda-v1.docx",
		Filename:    "NDA-1001-ACME.docx",
		ContentType: attachment.DefaultContentType,
	}, []byte("demo NDA document"))

	token, err := tokens.GenerateAccessToken(requestcontext.ActingIdentity{
		ID:          relationship.ID.String(),
		Email:       relationship.Email,
		Permissions: []string{string(permission.Admin)},
	}, demoTokenTTL)
	if err != nil {
		return err
	}
	log.InfoContext(ctx, "demo data loaded",
		"agreement_id", a.ID.String(),
		"display_id", a.DisplayID,
		"token", token,
	)
	return nil
}
