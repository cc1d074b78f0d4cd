package handler

import (
	"strings"

	"ndaflow/internal/agreement/models"
	dErrors "ndaflow/pkg/domain-errors"
)

const maxReasonLength = 2000

// TransitionRequest is the body of POST /agreements/{id}/transitions.
type TransitionRequest struct {
	TargetStatus string `json:"targetStatus"`
	Reason       string `json:"reason"`

	target models.Status
}

func (r *TransitionRequest) Validate() error {
	r.TargetStatus = strings.TrimSpace(r.TargetStatus)
	if r.TargetStatus == "" {
		return dErrors.New(dErrors.CodeValidation, "targetStatus is required")
	}
	target, err := models.ParseStatus(r.TargetStatus)
	if err != nil {
		return err
	}
	r.target = target
	return validateReason(&r.Reason)
}

// ReactivateRequest is the body of POST /agreements/{id}/reactivate.
type ReactivateRequest struct {
	Reason string `json:"reason"`
}

func (r *ReactivateRequest) Validate() error {
	return validateReason(&r.Reason)
}

func validateReason(reason *string) error {
	*reason = strings.TrimSpace(*reason)
	if len(*reason) > maxReasonLength {
		return dErrors.New(dErrors.CodeValidation, "reason is too long")
	}
	return nil
}
