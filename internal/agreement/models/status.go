package models

import (
	"fmt"
	"slices"

	dErrors "ndaflow/pkg/domain-errors"
)

// Status is an agreement lifecycle state.
type Status string

const (
	StatusCreated              Status = "CREATED"
	StatusPendingApproval      Status = "PENDING_APPROVAL"
	StatusSentPendingSignature Status = "SENT_PENDING_SIGNATURE"
	StatusInRevision           Status = "IN_REVISION"
	StatusFullyExecuted        Status = "FULLY_EXECUTED"
	StatusInactiveCanceled     Status = "INACTIVE_CANCELED"
	StatusExpired              Status = "EXPIRED"
)

var statusLabels = map[Status]string{
	StatusCreated:              "Created",
	StatusPendingApproval:      "Pending Approval",
	StatusSentPendingSignature: "Sent/Pending Signature",
	StatusInRevision:           "In Revision",
	StatusFullyExecuted:        "Fully Executed NDA Uploaded",
	StatusInactiveCanceled:     "Inactive/Canceled",
	StatusExpired:              "Expired",
}

// Label is the human-facing name used in notifications.
func (s Status) Label() string {
	if l, ok := statusLabels[s]; ok {
		return l
	}
	return string(s)
}

func (s Status) IsValid() bool {
	_, ok := statusLabels[s]
	return ok
}

// ParseStatus validates a status arriving from a request.
func ParseStatus(raw string) (Status, error) {
	s := Status(raw)
	if !s.IsValid() {
		return "", dErrors.New(dErrors.CodeValidation, fmt.Sprintf("unknown status %q", raw))
	}
	return s, nil
}

// Trigger records why a history entry was written.
type Trigger string

const (
	TriggerManual              Trigger = "manual_change"
	TriggerReactivation        Trigger = "reactivation"
	TriggerCreated             Trigger = "created"
	TriggerEmailSent           Trigger = "email_sent"
	TriggerDocumentUploaded    Trigger = "document_uploaded"
	TriggerFullyExecutedUpload Trigger = "fully_executed_upload"
	TriggerExpirationReached   Trigger = "expiration_reached"
)

// transitions is the single source of truth for legal status changes.
// Manual requests and automatic triggers both consult it.
var transitions = map[Status][]Status{
	StatusCreated: {
		StatusPendingApproval, StatusInactiveCanceled, StatusExpired,
	},
	StatusPendingApproval: {
		StatusSentPendingSignature, StatusCreated, StatusInactiveCanceled, StatusExpired,
	},
	StatusSentPendingSignature: {
		StatusInRevision, StatusFullyExecuted, StatusInactiveCanceled, StatusExpired,
	},
	StatusInRevision: {
		StatusSentPendingSignature, StatusFullyExecuted, StatusInactiveCanceled, StatusExpired,
	},
	StatusFullyExecuted:    {},
	StatusInactiveCanceled: {},
	StatusExpired:          {},
}

type autoRule struct {
	from []Status
	to   Status
}

// autoRules maps each external trigger to its eligible sources and target.
var autoRules = map[Trigger]autoRule{
	TriggerEmailSent: {
		from: []Status{StatusPendingApproval, StatusInRevision},
		to:   StatusSentPendingSignature,
	},
	TriggerDocumentUploaded: {
		from: []Status{StatusSentPendingSignature},
		to:   StatusInRevision,
	},
	TriggerFullyExecutedUpload: {
		from: []Status{StatusSentPendingSignature, StatusInRevision},
		to:   StatusFullyExecuted,
	},
	TriggerExpirationReached: {
		from: []Status{StatusCreated, StatusPendingApproval, StatusSentPendingSignature, StatusInRevision},
		to:   StatusExpired,
	},
}

// reactivatable is kept apart from the transition table: reactivation restores
// a prior status rather than moving to a fixed destination.
var reactivatable = map[Status]bool{
	StatusInactiveCanceled: true,
}

func init() {
	for trigger, rule := range autoRules {
		for _, from := range rule.from {
			if !CanTransition(from, rule.to) {
				panic(fmt.Sprintf("auto rule %s: %s -> %s is not in the transition table", trigger, from, rule.to))
			}
		}
	}
}

// LegalDestinations returns a copy of the statuses reachable from s.
func LegalDestinations(s Status) []Status {
	return slices.Clone(transitions[s])
}

// CanTransition reports whether from -> to is in the table.
func CanTransition(from, to Status) bool {
	return slices.Contains(transitions[from], to)
}

// IsTerminal reports whether s has no outgoing transitions.
func IsTerminal(s Status) bool {
	dest, ok := transitions[s]
	return ok && len(dest) == 0
}

// CanReactivate reports whether an agreement in s may be reactivated.
func CanReactivate(s Status) bool {
	return reactivatable[s]
}

// AutoTarget returns the destination for trigger when current is an eligible source.
func AutoTarget(current Status, trigger Trigger) (Status, bool) {
	rule, ok := autoRules[trigger]
	if !ok || !slices.Contains(rule.from, current) {
		return "", false
	}
	return rule.to, true
}

// IsAutoTrigger reports whether t is a known external trigger.
func IsAutoTrigger(t Trigger) bool {
	_, ok := autoRules[t]
	return ok
}

// ActiveStatuses lists the non-terminal statuses, in lifecycle order.
func ActiveStatuses() []Status {
	return []Status{StatusCreated, StatusPendingApproval, StatusSentPendingSignature, StatusInRevision}
}
