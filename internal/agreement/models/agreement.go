package models

import (
	"fmt"
	"slices"
	"time"

	id "ndaflow/pkg/domain"
	dErrors "ndaflow/pkg/domain-errors"
)

// HistoryEntry is one immutable step in an agreement's status history.
// Sequence starts at 1 and equals the agreement Version the step produced.
type HistoryEntry struct {
	Sequence       int
	Status         Status
	PreviousStatus Status
	Trigger        Trigger
	ActorID        string
	Reason         string
	ChangedAt      time.Time
}

// Agreement is an NDA record. Status and History are written only through
// ApplyTransition, ApplyAutoTransition and ApplyReactivation.
type Agreement struct {
	ID                    id.AgreementID
	DisplayID             int64
	CompanyName           string
	AbbreviatedName       string
	AgencyName            string
	AuthorizedPurpose     string
	RelationshipContactID id.ContactID
	OpportunityContactID  id.ContactID
	ContractsContactID    id.ContactID
	CreatedByID           id.ContactID
	ExpiresAt             *time.Time
	Status                Status
	Version               int
	History               []HistoryEntry
	CreatedAt             time.Time
	UpdatedAt             time.Time
}

// NewAgreement creates an agreement in CREATED with its first history entry.
func NewAgreement(agreementID id.AgreementID, companyName string, createdBy id.ContactID, now time.Time) (*Agreement, error) {
	if agreementID.IsNil() {
		return nil, dErrors.New(dErrors.CodeInvariantViolation, "agreement id required")
	}
	if companyName == "" {
		return nil, dErrors.New(dErrors.CodeValidation, "company name required")
	}
	return &Agreement{
		ID:          agreementID,
		CompanyName: companyName,
		CreatedByID: createdBy,
		Status:      StatusCreated,
		Version:     1,
		History: []HistoryEntry{{
			Sequence:  1,
			Status:    StatusCreated,
			Trigger:   TriggerCreated,
			ActorID:   createdBy.String(),
			ChangedAt: now,
		}},
		CreatedAt: now,
		UpdatedAt: now,
	}, nil
}

// IsTerminal reports whether the agreement can no longer change status.
func (a *Agreement) IsTerminal() bool {
	return IsTerminal(a.Status)
}

// CanTransitionTo returns CodeIllegalTransition when target is not reachable.
func (a *Agreement) CanTransitionTo(target Status) error {
	if !CanTransition(a.Status, target) {
		return dErrors.New(dErrors.CodeIllegalTransition,
			fmt.Sprintf("cannot change status from %s to %s", a.Status, target))
	}
	return nil
}

// ApplyTransition appends a manual status change.
func (a *Agreement) ApplyTransition(target Status, actorID, reason string, now time.Time) (HistoryEntry, error) {
	if err := a.CanTransitionTo(target); err != nil {
		return HistoryEntry{}, err
	}
	return a.append(target, TriggerManual, actorID, reason, now), nil
}

// ApplyAutoTransition appends the change a trigger implies, or reports false when
// the current status is not an eligible source.
func (a *Agreement) ApplyAutoTransition(trigger Trigger, actorID string, now time.Time) (HistoryEntry, bool) {
	target, ok := AutoTarget(a.Status, trigger)
	if !ok || !CanTransition(a.Status, target) {
		return HistoryEntry{}, false
	}
	return a.append(target, trigger, actorID, "", now), true
}

// ApplyReactivation restores the most recent non-terminal status.
func (a *Agreement) ApplyReactivation(actorID, reason string, now time.Time) (HistoryEntry, error) {
	if !CanReactivate(a.Status) {
		return HistoryEntry{}, dErrors.New(dErrors.CodeIllegalTransition,
			fmt.Sprintf("agreement in status %s cannot be reactivated", a.Status))
	}
	return a.append(a.LastActiveStatus(), TriggerReactivation, actorID, reason, now), nil
}

// LastActiveStatus is the most recent non-terminal status in history, or CREATED.
func (a *Agreement) LastActiveStatus() Status {
	for i := len(a.History) - 1; i >= 0; i-- {
		if s := a.History[i].Status; !IsTerminal(s) {
			return s
		}
	}
	return StatusCreated
}

func (a *Agreement) append(target Status, trigger Trigger, actorID, reason string, now time.Time) HistoryEntry {
	entry := HistoryEntry{
		Sequence:       a.Version + 1,
		Status:         target,
		PreviousStatus: a.Status,
		Trigger:        trigger,
		ActorID:        actorID,
		Reason:         reason,
		ChangedAt:      now,
	}
	a.History = append(a.History, entry)
	a.Status = target
	a.Version = entry.Sequence
	a.UpdatedAt = now
	return entry
}

// Clone returns a deep copy, so stores never share history slices with callers.
func (a *Agreement) Clone() *Agreement {
	if a == nil {
		return nil
	}
	c := *a
	c.History = slices.Clone(a.History)
	if a.ExpiresAt != nil {
		t := *a.ExpiresAt
		c.ExpiresAt = &t
	}
	return &c
}

// Stakeholders returns the contact ids attached to the agreement's roles, without nils.
func (a *Agreement) Stakeholders() []id.ContactID {
	out := make([]id.ContactID, 0, 4)
	for _, c := range []id.ContactID{a.RelationshipContactID, a.OpportunityContactID, a.ContractsContactID, a.CreatedByID} {
		if !c.IsNil() && !slices.Contains(out, c) {
			out = append(out, c)
		}
	}
	return out
}
