package notify

import (
	"context"
	"time"

	agreementmodels "ndaflow/internal/agreement/models"
	id "ndaflow/pkg/domain"
)

// Preferences are one contact's per-event opt-outs. A contact with nothing
// stored receives every event.
type Preferences struct {
	ContactID        id.ContactID
	OnStatusChanged  bool
	OnFullyExecuted  bool
	OnEmailSent      bool
	OnDeliveryFailed bool
	UpdatedAt        time.Time
}

func DefaultPreferences(contactID id.ContactID) Preferences {
	return Preferences{
		ContactID:        contactID,
		OnStatusChanged:  true,
		OnFullyExecuted:  true,
		OnEmailSent:      true,
		OnDeliveryFailed: true,
	}
}

// Allows reports whether the contact wants this event. A change into
// FULLY_EXECUTED is governed by OnFullyExecuted, not OnStatusChanged.
func (p Preferences) Allows(e Event) bool {
	switch e.Type {
	case EventEmailSent:
		return p.OnEmailSent
	case EventDeliveryFailed:
		return p.OnDeliveryFailed
	}
	if e.NewStatus == string(agreementmodels.StatusFullyExecuted) {
		return p.OnFullyExecuted
	}
	return p.OnStatusChanged
}

// PreferenceReader returns a contact's preferences, defaults when none are stored.
type PreferenceReader interface {
	Preferences(ctx context.Context, contactID id.ContactID) (Preferences, error)
}
