package store

import (
	"context"
	"slices"
	"sync"
	"time"

	"ndaflow/internal/agreement/models"
	id "ndaflow/pkg/domain"
	"ndaflow/pkg/platform/sentinel"
)

// InMemory stores agreements in a map. Writes are compare-and-swap on Version;
// per-agreement serialization comes from the sharded tx runner.
type InMemory struct {
	mu         sync.RWMutex
	agreements map[id.AgreementID]*models.Agreement
	nextID     int64
}

func NewInMemory() *InMemory {
	return &InMemory{agreements: make(map[id.AgreementID]*models.Agreement)}
}

// Create inserts a new agreement and assigns its display id.
func (s *InMemory) Create(_ context.Context, a *models.Agreement) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, exists := s.agreements[a.ID]; exists {
		return sentinel.ErrAlreadyUsed
	}
	s.nextID++
	a.DisplayID = s.nextID
	s.agreements[a.ID] = a.Clone()
	return nil
}

func (s *InMemory) FindByID(_ context.Context, agreementID id.AgreementID) (*models.Agreement, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	a, ok := s.agreements[agreementID]
	if !ok {
		return nil, sentinel.ErrNotFound
	}
	return a.Clone(), nil
}

// FindForUpdate is FindByID; the caller already holds the agreement's shard lock.
func (s *InMemory) FindForUpdate(ctx context.Context, agreementID id.AgreementID) (*models.Agreement, error) {
	return s.FindByID(ctx, agreementID)
}

// SaveTransition persists a after entry was applied, failing with ErrConflict
// when the stored version is not the one entry was built on.
func (s *InMemory) SaveTransition(_ context.Context, a *models.Agreement, entry models.HistoryEntry) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	current, ok := s.agreements[a.ID]
	if !ok {
		return sentinel.ErrNotFound
	}
	if current.Version != entry.Sequence-1 || a.Version != entry.Sequence {
		return sentinel.ErrConflict
	}
	s.agreements[a.ID] = a.Clone()
	return nil
}

// ListExpiring returns active agreements whose expiry is at or before now.
func (s *InMemory) ListExpiring(_ context.Context, now time.Time, limit int) ([]id.AgreementID, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	due := make([]*models.Agreement, 0)
	for _, a := range s.agreements {
		if a.ExpiresAt != nil && !a.ExpiresAt.After(now) && !a.IsTerminal() {
			due = append(due, a)
		}
	}
	slices.SortFunc(due, func(x, y *models.Agreement) int { return x.ExpiresAt.Compare(*y.ExpiresAt) })
	if limit > 0 && len(due) > limit {
		due = due[:limit]
	}
	out := make([]id.AgreementID, len(due))
	for i, a := range due {
		out[i] = a.ID
	}
	return out, nil
}
