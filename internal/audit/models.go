package audit

import (
	"time"

	id "ndaflow/pkg/domain"
)

// EntityType names the kind of record an entry is about.
type EntityType string

const (
	EntityAgreement    EntityType = "agreement"
	EntityDeliveryJob  EntityType = "delivery_job"
	EntityNotification EntityType = "notification"
	EntitySubscription EntityType = "subscription"
	EntityContact      EntityType = "contact"
)

// Action is what happened.
type Action string

const (
	ActionStatusChanged          Action = "nda_status_changed"
	ActionReactivated            Action = "nda_reactivated"
	ActionEmailQueued            Action = "email_queued"
	ActionEmailSent              Action = "email_sent"
	ActionEmailRetryScheduled    Action = "email_retry_scheduled"
	ActionEmailFailed            Action = "email_failed"
	ActionEmailCancelled         Action = "email_cancelled"
	ActionNotificationDispatched Action = "notification_dispatched"
	ActionSubscriptionAdded      Action = "subscription_added"
	ActionSubscriptionRemoved    Action = "subscription_removed"
	ActionPreferencesUpdated     Action = "notification_preferences_updated"
)

// Category routes entries to retention classes.
type Category string

const (
	// CategoryCompliance entries are the legal record of an agreement's lifecycle.
	CategoryCompliance Category = "compliance"
	// CategoryOperations entries explain delivery and notification behaviour.
	CategoryOperations Category = "operations"
)

var actionCategories = map[Action]Category{
	ActionStatusChanged:          CategoryCompliance,
	ActionReactivated:            CategoryCompliance,
	ActionEmailQueued:            CategoryCompliance,
	ActionEmailSent:              CategoryCompliance,
	ActionEmailFailed:            CategoryCompliance,
	ActionEmailCancelled:         CategoryCompliance,
	ActionEmailRetryScheduled:    CategoryOperations,
	ActionNotificationDispatched: CategoryOperations,
	ActionSubscriptionAdded:      CategoryOperations,
	ActionSubscriptionRemoved:    CategoryOperations,
	ActionPreferencesUpdated:     CategoryOperations,
}

// Category returns the retention class for the action, operations when unknown.
func (a Action) Category() Category {
	if c, ok := actionCategories[a]; ok {
		return c
	}
	return CategoryOperations
}

// Entry is one append-only audit record. Entries are never updated or deleted.
type Entry struct {
	ID          id.AuditEntryID
	EntityType  EntityType
	EntityID    string
	AgreementID id.AgreementID
	Action      Action
	ActorID     string
	Timestamp   time.Time
	RequestID   string
	ClientIP    string
	UserAgent   string
	// ClientSummary is the parsed browser and OS, e.g. "Chrome 120 on Windows 10".
	ClientSummary string
	Details       map[string]any
}
