package compose

import (
	"context"
	"errors"
	"log/slog"

	"ndaflow/internal/agreement/models"
	"ndaflow/internal/attachment"
	"ndaflow/internal/contacts"
	"ndaflow/internal/permission"
	id "ndaflow/pkg/domain"
	dErrors "ndaflow/pkg/domain-errors"
	"ndaflow/pkg/platform/sentinel"
	"ndaflow/pkg/requestcontext"
)

type AgreementReader interface {
	Get(ctx context.Context, agreementID id.AgreementID) (*models.Agreement, error)
}

type SubscriptionReader interface {
	ListByAgreement(ctx context.Context, agreementID id.AgreementID) ([]id.ContactID, error)
}

type PermissionChecker interface {
	Has(identity requestcontext.ActingIdentity, capability permission.Capability) bool
}

// Service assembles previews from stored data.
type Service struct {
	agreements    AgreementReader
	directory     contacts.Directory
	subscriptions SubscriptionReader
	templates     TemplateStore
	attachments   attachment.Store
	permissions   PermissionChecker
	defaults      Defaults
	logger        *slog.Logger
}

func NewService(
	agreements AgreementReader,
	directory contacts.Directory,
	subscriptions SubscriptionReader,
	templates TemplateStore,
	attachments attachment.Store,
	permissions PermissionChecker,
	defaults Defaults,
	logger *slog.Logger,
) *Service {
	if logger == nil {
		logger = slog.Default()
	}
	return &Service{
		agreements:    agreements,
		directory:     directory,
		subscriptions: subscriptions,
		templates:     templates,
		attachments:   attachments,
		permissions:   permissions,
		defaults:      defaults,
		logger:        logger,
	}
}

// Preview composes the email the actor would send for an agreement. A zero
// templateID selects the default template, or the built-in text when there is none.
func (s *Service) Preview(ctx context.Context, agreementID id.AgreementID, templateID id.TemplateID,
	actor requestcontext.ActingIdentity) (ComposedEmail, error) {
	if !s.permissions.Has(actor, permission.SendEmail) {
		return ComposedEmail{}, dErrors.New(dErrors.CodeForbidden, "missing permission "+string(permission.SendEmail))
	}

	a, err := s.agreements.Get(ctx, agreementID)
	if err != nil {
		return ComposedEmail{}, err
	}

	tpl, err := s.template(ctx, templateID)
	if err != nil {
		return ComposedEmail{}, err
	}

	parties, err := s.parties(ctx, a, actor)
	if err != nil {
		return ComposedEmail{}, err
	}

	out := Compose(a, tpl, parties, s.defaults)

	ref, err := s.attachments.Latest(ctx, agreementID)
	switch {
	case err == nil:
		out.Attachment = &ref
	case errors.Is(err, sentinel.ErrNotFound):
		s.logger.InfoContext(ctx, "agreement has no generated document",
			"agreement_id", agreementID.String(),
		)
	default:
		return ComposedEmail{}, dErrors.Wrap(err, dErrors.CodeInternal, "look up latest document")
	}
	return out, nil
}

func (s *Service) template(ctx context.Context, templateID id.TemplateID) (*Template, error) {
	if !templateID.IsNil() {
		tpl, err := s.templates.FindByID(ctx, templateID)
		if errors.Is(err, sentinel.ErrNotFound) {
			return nil, dErrors.New(dErrors.CodeNotFound, "email template not found")
		}
		if err != nil {
			return nil, dErrors.Wrap(err, dErrors.CodeInternal, "load email template")
		}
		return tpl, nil
	}
	tpl, err := s.templates.Default(ctx)
	if errors.Is(err, sentinel.ErrNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, dErrors.Wrap(err, dErrors.CodeInternal, "load default email template")
	}
	return tpl, nil
}

func (s *Service) parties(ctx context.Context, a *models.Agreement, actor requestcontext.ActingIdentity) (Parties, error) {
	var (
		p   Parties
		err error
	)
	if p.Relationship, err = s.resolve(ctx, a.RelationshipContactID); err != nil {
		return p, err
	}
	if p.Opportunity, err = s.resolve(ctx, a.OpportunityContactID); err != nil {
		return p, err
	}
	if p.Contracts, err = s.resolve(ctx, a.ContractsContactID); err != nil {
		return p, err
	}
	if submitterID, parseErr := id.ParseContactID(actor.ID); parseErr == nil {
		if p.Submitter, err = s.resolve(ctx, submitterID); err != nil {
			return p, err
		}
	}
	if p.Submitter == nil && actor.Email != "" {
		p.Submitter = &contacts.Contact{Email: actor.Email}
	}

	subscriberIDs, err := s.subscriptions.ListByAgreement(ctx, a.ID)
	if err != nil {
		return p, dErrors.Wrap(err, dErrors.CodeInternal, "list subscriptions")
	}
	for _, contactID := range subscriberIDs {
		c, err := s.resolve(ctx, contactID)
		if err != nil {
			return p, err
		}
		if c != nil {
			p.Subscribers = append(p.Subscribers, *c)
		}
	}
	return p, nil
}

// resolve returns nil for an unset or unknown contact.
func (s *Service) resolve(ctx context.Context, contactID id.ContactID) (*contacts.Contact, error) {
	if contactID.IsNil() {
		return nil, nil
	}
	c, err := s.directory.Resolve(ctx, contactID)
	if errors.Is(err, sentinel.ErrNotFound) {
		s.logger.WarnContext(ctx, "contact not found", "contact_id", contactID.String())
		return nil, nil
	}
	if err != nil {
		return nil, dErrors.Wrap(err, dErrors.CodeInternal, "resolve contact")
	}
	return &c, nil
}
