package subscription

import (
	"context"
	"slices"
	"sync"

	id "ndaflow/pkg/domain"
	"ndaflow/pkg/platform/sentinel"
)

type InMemory struct {
	mu   sync.RWMutex
	subs map[id.AgreementID][]Subscription
}

func NewInMemory() *InMemory {
	return &InMemory{subs: make(map[id.AgreementID][]Subscription)}
}

// Add fails with sentinel.ErrAlreadyUsed when the contact already follows the agreement.
func (s *InMemory) Add(_ context.Context, sub Subscription) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, existing := range s.subs[sub.AgreementID] {
		if existing.ContactID == sub.ContactID {
			return sentinel.ErrAlreadyUsed
		}
	}
	s.subs[sub.AgreementID] = append(s.subs[sub.AgreementID], sub)
	return nil
}

func (s *InMemory) Remove(_ context.Context, agreementID id.AgreementID, contactID id.ContactID) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	subs := s.subs[agreementID]
	i := slices.IndexFunc(subs, func(sub Subscription) bool { return sub.ContactID == contactID })
	if i < 0 {
		return sentinel.ErrNotFound
	}
	s.subs[agreementID] = slices.Delete(subs, i, i+1)
	return nil
}

func (s *InMemory) List(_ context.Context, agreementID id.AgreementID) ([]Subscription, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return slices.Clone(s.subs[agreementID]), nil
}

// ListByAgreement returns subscriber contact ids in subscription order.
func (s *InMemory) ListByAgreement(ctx context.Context, agreementID id.AgreementID) ([]id.ContactID, error) {
	subs, _ := s.List(ctx, agreementID)
	return contactIDs(subs), nil
}

func contactIDs(subs []Subscription) []id.ContactID {
	out := make([]id.ContactID, 0, len(subs))
	for _, sub := range subs {
		out = append(out, sub.ContactID)
	}
	return out
}
