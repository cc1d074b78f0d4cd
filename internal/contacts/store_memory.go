package contacts

import (
	"context"
	"sync"

	id "ndaflow/pkg/domain"
	"ndaflow/pkg/platform/sentinel"
)

type InMemory struct {
	mu       sync.RWMutex
	contacts map[id.ContactID]Contact
}

func NewInMemory(seed ...Contact) *InMemory {
	s := &InMemory{contacts: make(map[id.ContactID]Contact, len(seed))}
	for _, c := range seed {
		s.contacts[c.ID] = c
	}
	return s
}

func (s *InMemory) Save(_ context.Context, c Contact) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.contacts[c.ID] = c
	return nil
}

func (s *InMemory) Resolve(_ context.Context, contactID id.ContactID) (Contact, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	c, ok := s.contacts[contactID]
	if !ok {
		return Contact{}, sentinel.ErrNotFound
	}
	return c, nil
}
