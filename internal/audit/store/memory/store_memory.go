package memory

import (
	"context"
	"slices"
	"sync"

	"ndaflow/internal/audit"
	id "ndaflow/pkg/domain"
)

// InMemoryStore keeps entries in append order.
type InMemoryStore struct {
	mu      sync.RWMutex
	entries []audit.Entry
}

func NewInMemoryStore() *InMemoryStore {
	return &InMemoryStore{}
}

func (s *InMemoryStore) Append(_ context.Context, entry audit.Entry) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	entry.Details = cloneDetails(entry.Details)
	s.entries = append(s.entries, entry)
	return nil
}

func (s *InMemoryStore) ListByAgreement(_ context.Context, agreementID id.AgreementID) ([]audit.Entry, error) {
	return s.filter(func(e audit.Entry) bool { return e.AgreementID == agreementID }), nil
}

func (s *InMemoryStore) ListByEntity(_ context.Context, entityType audit.EntityType, entityID string) ([]audit.Entry, error) {
	return s.filter(func(e audit.Entry) bool { return e.EntityType == entityType && e.EntityID == entityID }), nil
}

// ListAll returns every entry, for tests.
func (s *InMemoryStore) ListAll() []audit.Entry {
	return s.filter(func(audit.Entry) bool { return true })
}

// CountAction returns how many entries carry the action, for tests.
func (s *InMemoryStore) CountAction(action audit.Action) int {
	return len(s.filter(func(e audit.Entry) bool { return e.Action == action }))
}

func (s *InMemoryStore) filter(keep func(audit.Entry) bool) []audit.Entry {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]audit.Entry, 0)
	for _, e := range s.entries {
		if keep(e) {
			out = append(out, e)
		}
	}
	return slices.Clip(out)
}

func cloneDetails(in map[string]any) map[string]any {
	if in == nil {
		return nil
	}
	out := make(map[string]any, len(in))
	for k, v := range in {
		out[k] = v
	}
	return out
}
