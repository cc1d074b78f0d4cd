// Package store persists delivery jobs and hands them to workers one claim at a time.
package store

import (
	"cmp"
	"context"
	"slices"
	"sync"
	"time"

	"github.com/google/uuid"

	"ndaflow/internal/delivery/models"
	id "ndaflow/pkg/domain"
	"ndaflow/pkg/platform/sentinel"
)

// InMemory keeps jobs in a map and signals waiting workers through a channel.
type InMemory struct {
	mu   sync.Mutex
	jobs map[id.JobID]*models.Job
	wake chan struct{}
}

func NewInMemory() *InMemory {
	return &InMemory{
		jobs: make(map[id.JobID]*models.Job),
		wake: make(chan struct{}, 1),
	}
}

// Wake fires after a job becomes claimable.
func (s *InMemory) Wake() <-chan struct{} {
	return s.wake
}

func (s *InMemory) signal() {
	select {
	case s.wake <- struct{}{}:
	default:
	}
}

func (s *InMemory) Create(_ context.Context, job *models.Job) error {
	s.mu.Lock()
	if _, exists := s.jobs[job.ID]; exists {
		s.mu.Unlock()
		return sentinel.ErrAlreadyUsed
	}
	s.jobs[job.ID] = job.Clone()
	s.mu.Unlock()
	s.signal()
	return nil
}

func (s *InMemory) FindByID(_ context.Context, jobID id.JobID) (*models.Job, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	job, ok := s.jobs[jobID]
	if !ok {
		return nil, sentinel.ErrNotFound
	}
	return job.Clone(), nil
}

// ListByAgreement returns the agreement's jobs, newest first.
func (s *InMemory) ListByAgreement(_ context.Context, agreementID id.AgreementID) ([]*models.Job, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]*models.Job, 0)
	for _, job := range s.jobs {
		if job.AgreementID == agreementID {
			out = append(out, job.Clone())
		}
	}
	slices.SortFunc(out, func(a, b *models.Job) int { return b.CreatedAt.Compare(a.CreatedAt) })
	return out, nil
}

// ClaimNext flips the earliest due QUEUED job to SENDING and returns it.
func (s *InMemory) ClaimNext(_ context.Context, now time.Time) (*models.Job, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var next *models.Job
	for _, job := range s.jobs {
		if job.Status != models.StatusQueued || job.NextAttemptAt.After(now) {
			continue
		}
		if next == nil || cmp.Or(job.NextAttemptAt.Compare(next.NextAttemptAt), job.CreatedAt.Compare(next.CreatedAt)) < 0 {
			next = job
		}
	}
	if next == nil {
		return nil, sentinel.ErrNotFound
	}
	if err := next.Claim(uuid.New(), now); err != nil {
		return nil, err
	}
	return next.Clone(), nil
}

// Complete records the outcome of an attempt. It fails with ErrConflict unless
// the stored job is still SENDING under the same claim token.
func (s *InMemory) Complete(_ context.Context, job *models.Job) error {
	s.mu.Lock()
	current, ok := s.jobs[job.ID]
	if !ok {
		s.mu.Unlock()
		return sentinel.ErrNotFound
	}
	if current.Status != models.StatusSending || current.ClaimToken != job.ClaimToken {
		s.mu.Unlock()
		return sentinel.ErrConflict
	}
	stored := job.Clone()
	stored.ClaimToken = uuid.Nil
	stored.ClaimedAt = nil
	s.jobs[job.ID] = stored
	s.mu.Unlock()
	if job.Status == models.StatusQueued {
		s.signal()
	}
	return nil
}

// Cancel persists a cancelled job if it is still QUEUED.
func (s *InMemory) Cancel(_ context.Context, job *models.Job) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	current, ok := s.jobs[job.ID]
	if !ok {
		return sentinel.ErrNotFound
	}
	if current.Status != models.StatusQueued {
		return sentinel.ErrConflict
	}
	s.jobs[job.ID] = job.Clone()
	return nil
}

// ListStale returns SENDING jobs claimed before the cutoff.
func (s *InMemory) ListStale(_ context.Context, claimedBefore time.Time) ([]*models.Job, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]*models.Job, 0)
	for _, job := range s.jobs {
		if job.Status == models.StatusSending && job.ClaimedAt != nil && job.ClaimedAt.Before(claimedBefore) {
			out = append(out, job.Clone())
		}
	}
	return out, nil
}
