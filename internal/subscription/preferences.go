package subscription

import (
	"context"
	"errors"
	"sync"

	"ndaflow/internal/audit"
	"ndaflow/internal/notify"
	id "ndaflow/pkg/domain"
	dErrors "ndaflow/pkg/domain-errors"
	"ndaflow/pkg/platform/sentinel"
	"ndaflow/pkg/requestcontext"
)

// PreferenceStore persists per-contact notification opt-outs. Get returns
// sentinel.ErrNotFound when the contact never saved any.
type PreferenceStore interface {
	Get(ctx context.Context, contactID id.ContactID) (notify.Preferences, error)
	Save(ctx context.Context, prefs notify.Preferences) error
}

// PreferenceUpdate changes only the flags that are set.
type PreferenceUpdate struct {
	OnStatusChanged  *bool
	OnFullyExecuted  *bool
	OnEmailSent      *bool
	OnDeliveryFailed *bool
}

func (u PreferenceUpdate) apply(p *notify.Preferences) {
	set := func(dst *bool, src *bool) {
		if src != nil {
			*dst = *src
		}
	}
	set(&p.OnStatusChanged, u.OnStatusChanged)
	set(&p.OnFullyExecuted, u.OnFullyExecuted)
	set(&p.OnEmailSent, u.OnEmailSent)
	set(&p.OnDeliveryFailed, u.OnDeliveryFailed)
}

// PreferenceReader serves a PreferenceStore to the notification dispatcher,
// filling in all-on defaults for contacts with nothing stored.
type PreferenceReader struct {
	Store PreferenceStore
}

func (r PreferenceReader) Preferences(ctx context.Context, contactID id.ContactID) (notify.Preferences, error) {
	prefs, err := r.Store.Get(ctx, contactID)
	if errors.Is(err, sentinel.ErrNotFound) {
		return notify.DefaultPreferences(contactID), nil
	}
	if err != nil {
		return notify.Preferences{}, dErrors.Wrap(err, dErrors.CodeInternal, "preference store failure")
	}
	return prefs, nil
}

// Preferences returns the contact's stored preferences, or all-on defaults.
func (s *Service) Preferences(ctx context.Context, contactID id.ContactID) (notify.Preferences, error) {
	return PreferenceReader{Store: s.preferences}.Preferences(ctx, contactID)
}

// PreferencesFor is Preferences behind the same check as Subscribe: actors
// read their own, managers read anyone's.
func (s *Service) PreferencesFor(ctx context.Context, contactID id.ContactID,
	actor requestcontext.ActingIdentity) (notify.Preferences, error) {
	if err := s.authorize(actor, contactID); err != nil {
		return notify.Preferences{}, err
	}
	return s.Preferences(ctx, contactID)
}

func (s *Service) UpdatePreferences(ctx context.Context, contactID id.ContactID, update PreferenceUpdate,
	actor requestcontext.ActingIdentity) (notify.Preferences, error) {
	if err := s.authorize(actor, contactID); err != nil {
		return notify.Preferences{}, err
	}
	if _, err := s.directory.Resolve(ctx, contactID); err != nil {
		if errors.Is(err, sentinel.ErrNotFound) {
			return notify.Preferences{}, dErrors.New(dErrors.CodeNotFound, "contact not found")
		}
		return notify.Preferences{}, dErrors.Wrap(err, dErrors.CodeInternal, "contact lookup failed")
	}

	var prefs notify.Preferences
	err := s.tx.RunInTx(ctx, "contact:"+contactID.String(), func(ctx context.Context) error {
		current, err := s.Preferences(ctx, contactID)
		if err != nil {
			return err
		}
		update.apply(&current)
		current.UpdatedAt = requestcontext.Now(ctx)
		if err := s.preferences.Save(ctx, current); err != nil {
			return err
		}
		prefs = current
		return s.audit.Emit(ctx, audit.Entry{
			EntityType: audit.EntityContact,
			EntityID:   contactID.String(),
			Action:     audit.ActionPreferencesUpdated,
			ActorID:    actor.ID,
			Details: map[string]any{
				"onStatusChanged":  current.OnStatusChanged,
				"onFullyExecuted":  current.OnFullyExecuted,
				"onEmailSent":      current.OnEmailSent,
				"onDeliveryFailed": current.OnDeliveryFailed,
			},
		})
	})
	if err != nil {
		var domainErr *dErrors.Error
		if errors.As(err, &domainErr) {
			return notify.Preferences{}, err
		}
		return notify.Preferences{}, dErrors.Wrap(err, dErrors.CodeInternal, "preference store failure")
	}
	s.logger.InfoContext(ctx, "notification preferences updated",
		"request_id", requestcontext.RequestID(ctx),
		"contact_id", contactID.String(),
	)
	return prefs, nil
}

type PreferencesInMemory struct {
	mu    sync.RWMutex
	prefs map[id.ContactID]notify.Preferences
}

func NewPreferencesInMemory() *PreferencesInMemory {
	return &PreferencesInMemory{prefs: make(map[id.ContactID]notify.Preferences)}
}

func (s *PreferencesInMemory) Get(_ context.Context, contactID id.ContactID) (notify.Preferences, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	p, ok := s.prefs[contactID]
	if !ok {
		return notify.Preferences{}, sentinel.ErrNotFound
	}
	return p, nil
}

func (s *PreferencesInMemory) Save(_ context.Context, prefs notify.Preferences) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.prefs[prefs.ContactID] = prefs
	return nil
}
