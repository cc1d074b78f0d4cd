package handler

import (
	"time"

	"ndaflow/internal/delivery/models"
)

// JobStatusResponse acknowledges an accepted or cancelled send.
type JobStatusResponse struct {
	JobID  string `json:"jobId"`
	Status string `json:"status"`
}

// JobResponse is one row of an agreement's delivery history.
type JobResponse struct {
	JobID              string     `json:"jobId"`
	Status             string     `json:"status"`
	Subject            string     `json:"subject"`
	To                 []string   `json:"to"`
	Cc                 []string   `json:"cc"`
	Bcc                []string   `json:"bcc"`
	Attachment         string     `json:"attachment"`
	RetryCount         int        `json:"retryCount"`
	LastError          string     `json:"lastError,omitempty"`
	NextAttemptAt      *time.Time `json:"nextAttemptAt,omitempty"`
	TransportMessageID string     `json:"transportMessageId,omitempty"`
	RequestedBy        string     `json:"requestedBy"`
	CreatedAt          time.Time  `json:"createdAt"`
	SentAt             *time.Time `json:"sentAt,omitempty"`
}

func toJobStatusResponse(job *models.Job) JobStatusResponse {
	return JobStatusResponse{JobID: job.ID.String(), Status: string(job.Status)}
}

func toJobResponses(jobs []*models.Job) []JobResponse {
	out := make([]JobResponse, 0, len(jobs))
	for _, job := range jobs {
		resp := JobResponse{
			JobID:              job.ID.String(),
			Status:             string(job.Status),
			Subject:            job.Subject,
			To:                 job.To,
			Cc:                 job.Cc,
			Bcc:                job.Bcc,
			Attachment:         job.Attachment.Filename,
			RetryCount:         job.RetryCount,
			LastError:          job.LastError,
			TransportMessageID: job.TransportMessageID,
			RequestedBy:        job.RequestedBy,
			CreatedAt:          job.CreatedAt,
			SentAt:             job.SentAt,
		}
		if job.Status == models.StatusQueued {
			next := job.NextAttemptAt
			resp.NextAttemptAt = &next
		}
		out = append(out, resp)
	}
	return out
}
