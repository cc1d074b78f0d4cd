package attachment

import (
	"context"
	"slices"
	"sync"

	id "ndaflow/pkg/domain"
	"ndaflow/pkg/platform/sentinel"
)

// InMemory holds documents in a map, newest last per agreement.
type InMemory struct {
	mu          sync.RWMutex
	blobs       map[string][]byte
	byAgreement map[id.AgreementID][]Ref
}

func NewInMemory() *InMemory {
	return &InMemory{
		blobs:       make(map[string][]byte),
		byAgreement: make(map[id.AgreementID][]Ref),
	}
}

// Put stores data under ref and makes it the agreement's latest document.
func (s *InMemory) Put(agreementID id.AgreementID, ref Ref, data []byte) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.blobs[ref.Key] = slices.Clone(data)
	s.byAgreement[agreementID] = append(s.byAgreement[agreementID], ref)
}

func (s *InMemory) Get(_ context.Context, ref Ref) ([]byte, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	data, ok := s.blobs[ref.Key]
	if !ok {
		return nil, sentinel.ErrNotFound
	}
	return slices.Clone(data), nil
}

func (s *InMemory) Exists(_ context.Context, ref Ref) (bool, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	_, ok := s.blobs[ref.Key]
	return ok, nil
}

func (s *InMemory) Latest(_ context.Context, agreementID id.AgreementID) (Ref, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	refs := s.byAgreement[agreementID]
	if len(refs) == 0 {
		return Ref{}, sentinel.ErrNotFound
	}
	return refs[len(refs)-1], nil
}
