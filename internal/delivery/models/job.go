// Package models holds the delivery job and its state machine.
package models

import (
	"fmt"
	"slices"
	"strings"
	"time"

	"github.com/google/uuid"

	"ndaflow/internal/attachment"
	id "ndaflow/pkg/domain"
	dErrors "ndaflow/pkg/domain-errors"
)

type Status string

const (
	StatusQueued    Status = "QUEUED"
	StatusSending   Status = "SENDING"
	StatusSent      Status = "SENT"
	StatusFailed    Status = "FAILED"
	StatusCancelled Status = "CANCELLED"
)

func (s Status) IsFinal() bool {
	return s == StatusSent || s == StatusFailed || s == StatusCancelled
}

// MaxRecipients bounds To, Cc and Bcc combined.
const MaxRecipients = 50

const maxLastErrorLength = 1000

// SendRequest is a caller's request to email an agreement's latest document.
type SendRequest struct {
	AgreementID id.AgreementID
	Subject     string
	To          []string
	Cc          []string
	Bcc         []string
	Body        string
	TemplateID  id.TemplateID
}

// Job is one durable send request. Once created it is changed only by the
// worker, except for cancellation while QUEUED.
type Job struct {
	ID                 id.JobID
	AgreementID        id.AgreementID
	Subject            string
	To                 []string
	Cc                 []string
	Bcc                []string
	Body               string
	TemplateID         id.TemplateID
	Attachment         attachment.Ref
	Status             Status
	RetryCount         int
	LastError          string
	NextAttemptAt      time.Time
	ClaimedAt          *time.Time
	ClaimToken         uuid.UUID
	TransportMessageID string
	RequestedBy        string
	CreatedAt          time.Time
	UpdatedAt          time.Time
	SentAt             *time.Time
}

// NewJob validates req and returns a QUEUED job that is due immediately.
func NewJob(req SendRequest, ref attachment.Ref, requestedBy string, now time.Time) (*Job, error) {
	if err := Validate(req); err != nil {
		return nil, err
	}
	if ref.IsZero() {
		return nil, dErrors.New(dErrors.CodeValidation, "agreement has no generated document to attach")
	}
	return &Job{
		ID:            id.NewJobID(),
		AgreementID:   req.AgreementID,
		Subject:       strings.TrimSpace(req.Subject),
		To:            trimAll(req.To),
		Cc:            trimAll(req.Cc),
		Bcc:           trimAll(req.Bcc),
		Body:          req.Body,
		TemplateID:    req.TemplateID,
		Attachment:    ref,
		Status:        StatusQueued,
		NextAttemptAt: now,
		RequestedBy:   requestedBy,
		CreatedAt:     now,
		UpdatedAt:     now,
	}, nil
}

// Recipients returns every envelope recipient, Bcc included.
func (j *Job) Recipients() []string {
	out := make([]string, 0, len(j.To)+len(j.Cc)+len(j.Bcc))
	out = append(out, j.To...)
	out = append(out, j.Cc...)
	return append(out, j.Bcc...)
}

// Claim moves a QUEUED job to SENDING under a fresh claim token.
func (j *Job) Claim(token uuid.UUID, now time.Time) error {
	if j.Status != StatusQueued {
		return fmt.Errorf("claim job in status %s", j.Status)
	}
	j.Status = StatusSending
	j.ClaimToken = token
	j.ClaimedAt = &now
	j.UpdatedAt = now
	return nil
}

func (j *Job) MarkSent(messageID string, now time.Time) {
	j.Status = StatusSent
	j.TransportMessageID = messageID
	j.LastError = ""
	j.SentAt = &now
	j.UpdatedAt = now
}

// RecordFailure counts one failed attempt. It requeues the job for retryAt
// while attempts remain, and otherwise marks it FAILED and returns true.
func (j *Job) RecordFailure(cause string, maxRetries int, retryAt time.Time, now time.Time) bool {
	j.RetryCount++
	j.LastError = truncate(cause)
	j.UpdatedAt = now
	if j.RetryCount >= maxRetries {
		j.Status = StatusFailed
		return true
	}
	j.Status = StatusQueued
	j.NextAttemptAt = retryAt
	return false
}

// MarkFailed ends the job without further attempts.
func (j *Job) MarkFailed(cause string, now time.Time) {
	j.RetryCount++
	j.LastError = truncate(cause)
	j.Status = StatusFailed
	j.UpdatedAt = now
}

// Cancel is allowed only while the job is waiting in the queue.
func (j *Job) Cancel(now time.Time) error {
	if j.Status != StatusQueued {
		return dErrors.New(dErrors.CodeConflict, fmt.Sprintf("job in status %s cannot be cancelled", j.Status))
	}
	j.Status = StatusCancelled
	j.UpdatedAt = now
	return nil
}

// Clone returns a deep copy.
func (j *Job) Clone() *Job {
	if j == nil {
		return nil
	}
	c := *j
	c.To = slices.Clone(j.To)
	c.Cc = slices.Clone(j.Cc)
	c.Bcc = slices.Clone(j.Bcc)
	if j.ClaimedAt != nil {
		t := *j.ClaimedAt
		c.ClaimedAt = &t
	}
	if j.SentAt != nil {
		t := *j.SentAt
		c.SentAt = &t
	}
	return &c
}

func trimAll(values []string) []string {
	out := make([]string, 0, len(values))
	for _, v := range values {
		if v = strings.TrimSpace(v); v != "" {
			out = append(out, v)
		}
	}
	return out
}

func truncate(s string) string {
	if len(s) <= maxLastErrorLength {
		return s
	}
	return s[:maxLastErrorLength]
}
