package handler

import (
	"time"

	"ndaflow/internal/agreement/models"
)

type HistoryResponse struct {
	Sequence       int       `json:"sequence"`
	Status         string    `json:"status"`
	StatusLabel    string    `json:"statusLabel"`
	PreviousStatus string    `json:"previousStatus,omitempty"`
	Trigger        string    `json:"trigger"`
	ActorID        string    `json:"actorId"`
	Reason         string    `json:"reason,omitempty"`
	ChangedAt      time.Time `json:"changedAt"`
}

type AgreementResponse struct {
	ID                string            `json:"id"`
	DisplayID         int64             `json:"displayId"`
	CompanyName       string            `json:"companyName"`
	AgencyName        string            `json:"agencyName,omitempty"`
	Status            string            `json:"status"`
	StatusLabel       string            `json:"statusLabel"`
	Version           int               `json:"version"`
	ExpiresAt         *time.Time        `json:"expiresAt,omitempty"`
	LegalDestinations []string          `json:"legalDestinations"`
	CanReactivate     bool              `json:"canReactivate"`
	History           []HistoryResponse `json:"history"`
}

type TransitionResponse struct {
	Agreement    AgreementResponse `json:"agreement"`
	HistoryEntry HistoryResponse   `json:"historyEntry"`
}

func toHistoryResponse(e models.HistoryEntry) HistoryResponse {
	return HistoryResponse{
		Sequence:       e.Sequence,
		Status:         string(e.Status),
		StatusLabel:    e.Status.Label(),
		PreviousStatus: string(e.PreviousStatus),
		Trigger:        string(e.Trigger),
		ActorID:        e.ActorID,
		Reason:         e.Reason,
		ChangedAt:      e.ChangedAt,
	}
}

func toAgreementResponse(a *models.Agreement) AgreementResponse {
	destinations := models.LegalDestinations(a.Status)
	legal := make([]string, len(destinations))
	for i, s := range destinations {
		legal[i] = string(s)
	}
	history := make([]HistoryResponse, len(a.History))
	for i, e := range a.History {
		history[i] = toHistoryResponse(e)
	}
	return AgreementResponse{
		ID:                a.ID.String(),
		DisplayID:         a.DisplayID,
		CompanyName:       a.CompanyName,
		AgencyName:        a.AgencyName,
		Status:            string(a.Status),
		StatusLabel:       a.Status.Label(),
		Version:           a.Version,
		ExpiresAt:         a.ExpiresAt,
		LegalDestinations: legal,
		CanReactivate:     models.CanReactivate(a.Status),
		History:           history,
	}
}
