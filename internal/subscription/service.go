package subscription

import (
	"context"
	"errors"
	"log/slog"

	agreementmodels "ndaflow/internal/agreement/models"
	"ndaflow/internal/audit"
	"ndaflow/internal/contacts"
	"ndaflow/internal/permission"
	id "ndaflow/pkg/domain"
	dErrors "ndaflow/pkg/domain-errors"
	"ndaflow/pkg/platform/sentinel"
	"ndaflow/pkg/platform/tx"
	"ndaflow/pkg/requestcontext"
)

type Store interface {
	Add(ctx context.Context, sub Subscription) error
	Remove(ctx context.Context, agreementID id.AgreementID, contactID id.ContactID) error
	List(ctx context.Context, agreementID id.AgreementID) ([]Subscription, error)
}

type AgreementReader interface {
	Get(ctx context.Context, agreementID id.AgreementID) (*agreementmodels.Agreement, error)
}

type AuditPublisher interface {
	Emit(ctx context.Context, entry audit.Entry) error
}

type PermissionChecker interface {
	Has(identity requestcontext.ActingIdentity, capability permission.Capability) bool
}

type Service struct {
	store       Store
	preferences PreferenceStore
	tx          tx.Runner
	agreements  AgreementReader
	directory   contacts.Directory
	audit       AuditPublisher
	permissions PermissionChecker
	logger      *slog.Logger
}

type Option func(*Service)

// WithPreferenceStore replaces the default in-memory preference store.
func WithPreferenceStore(p PreferenceStore) Option {
	return func(s *Service) { s.preferences = p }
}

func NewService(store Store, runner tx.Runner, agreements AgreementReader, directory contacts.Directory,
	auditor AuditPublisher, permissions PermissionChecker, logger *slog.Logger, opts ...Option) *Service {
	if logger == nil {
		logger = slog.Default()
	}
	s := &Service{
		store:       store,
		preferences: NewPreferencesInMemory(),
		tx:          runner,
		agreements:  agreements,
		directory:   directory,
		audit:       auditor,
		permissions: permissions,
		logger:      logger,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Subscribe makes contactID a follower of the agreement. Actors may always
// subscribe themselves; others need nda:manage_subscriptions.
func (s *Service) Subscribe(ctx context.Context, agreementID id.AgreementID, contactID id.ContactID,
	actor requestcontext.ActingIdentity) (Subscription, error) {
	if err := s.authorize(actor, contactID); err != nil {
		return Subscription{}, err
	}
	if _, err := s.agreements.Get(ctx, agreementID); err != nil {
		return Subscription{}, err
	}
	if _, err := s.directory.Resolve(ctx, contactID); err != nil {
		if errors.Is(err, sentinel.ErrNotFound) {
			return Subscription{}, dErrors.New(dErrors.CodeValidation, "unknown contact")
		}
		return Subscription{}, dErrors.Wrap(err, dErrors.CodeInternal, "contact lookup failed")
	}

	sub := Subscription{AgreementID: agreementID, ContactID: contactID, CreatedAt: requestcontext.Now(ctx)}
	err := s.tx.RunInTx(ctx, agreementID.String(), func(ctx context.Context) error {
		if err := s.store.Add(ctx, sub); err != nil {
			return err
		}
		return s.emit(ctx, audit.ActionSubscriptionAdded, sub.AgreementID, contactID, actor)
	})
	if errors.Is(err, sentinel.ErrAlreadyUsed) {
		return Subscription{}, dErrors.New(dErrors.CodeConflict, "contact already subscribed")
	}
	if err != nil {
		return Subscription{}, dErrors.Wrap(err, dErrors.CodeInternal, "subscription store failure")
	}
	s.logger.InfoContext(ctx, "subscription added",
		"request_id", requestcontext.RequestID(ctx),
		"agreement_id", agreementID.String(),
		"contact_id", contactID.String(),
	)
	return sub, nil
}

func (s *Service) Unsubscribe(ctx context.Context, agreementID id.AgreementID, contactID id.ContactID,
	actor requestcontext.ActingIdentity) error {
	if err := s.authorize(actor, contactID); err != nil {
		return err
	}
	err := s.tx.RunInTx(ctx, agreementID.String(), func(ctx context.Context) error {
		if err := s.store.Remove(ctx, agreementID, contactID); err != nil {
			return err
		}
		return s.emit(ctx, audit.ActionSubscriptionRemoved, agreementID, contactID, actor)
	})
	if errors.Is(err, sentinel.ErrNotFound) {
		return dErrors.New(dErrors.CodeNotFound, "subscription not found")
	}
	if err != nil {
		return dErrors.Wrap(err, dErrors.CodeInternal, "subscription store failure")
	}
	return nil
}

func (s *Service) List(ctx context.Context, agreementID id.AgreementID) ([]Subscription, error) {
	subs, err := s.store.List(ctx, agreementID)
	if err != nil {
		return nil, dErrors.Wrap(err, dErrors.CodeInternal, "subscription store failure")
	}
	return subs, nil
}

func (s *Service) authorize(actor requestcontext.ActingIdentity, contactID id.ContactID) error {
	if actor.ID == contactID.String() || s.permissions.Has(actor, permission.ManageSubscriptions) {
		return nil
	}
	return dErrors.New(dErrors.CodeForbidden, "missing permission "+string(permission.ManageSubscriptions))
}

func (s *Service) emit(ctx context.Context, action audit.Action, agreementID id.AgreementID, contactID id.ContactID,
	actor requestcontext.ActingIdentity) error {
	return s.audit.Emit(ctx, audit.Entry{
		EntityType:  audit.EntitySubscription,
		EntityID:    agreementID.String() + ":" + contactID.String(),
		AgreementID: agreementID,
		Action:      action,
		ActorID:     actor.ID,
		Details:     map[string]any{"contactId": contactID.String()},
	})
}
