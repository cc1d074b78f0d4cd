package notify

import (
	"time"

	id "ndaflow/pkg/domain"
)

// EventType classifies agreement events that stakeholders hear about.
type EventType string

const (
	EventStatusChanged  EventType = "status_changed"
	EventReactivated    EventType = "reactivated"
	EventEmailSent      EventType = "email_sent"
	EventDeliveryFailed EventType = "delivery_failed"
)

// Event is published by the engine and the delivery worker after a change commits.
type Event struct {
	Type           EventType      `json:"type"`
	AgreementID    id.AgreementID `json:"-"`
	DisplayID      int64          `json:"displayId"`
	CompanyName    string         `json:"companyName"`
	PreviousStatus string         `json:"previousStatus,omitempty"`
	NewStatus      string         `json:"newStatus,omitempty"`
	StatusLabel    string         `json:"statusLabel,omitempty"`
	Trigger        string         `json:"trigger,omitempty"`
	ActorID        string         `json:"actorId"`
	OccurredAt     time.Time      `json:"occurredAt"`
}

// Recipient is one resolved person to notify.
type Recipient struct {
	ContactID id.ContactID
	Email     string
	Name      string
}

// Notification is one event addressed to one recipient.
type Notification struct {
	Event     Event
	Recipient Recipient
}
