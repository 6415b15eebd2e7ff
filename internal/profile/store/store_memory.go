package store

import (
	"context"
	"sync"

	"qualtrack/internal/profile/models"
	id "qualtrack/pkg/domain"
	"qualtrack/pkg/platform/sentinel"
	txcontext "qualtrack/pkg/platform/tx"
)

// InMemory keeps profiles in a map. Returned profiles are copies.
type InMemory struct {
	mu       sync.RWMutex
	profiles map[id.HolderID]*models.Profile
}

func NewInMemory() *InMemory {
	return &InMemory{profiles: make(map[id.HolderID]*models.Profile)}
}

func (s *InMemory) Create(_ context.Context, p *models.Profile) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, exists := s.profiles[p.ID]; exists {
		return sentinel.ErrAlreadyUsed
	}
	cp := *p
	s.profiles[p.ID] = &cp
	return nil
}

func (s *InMemory) FindByID(_ context.Context, holderID id.HolderID) (*models.Profile, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	p, ok := s.profiles[holderID]
	if !ok {
		return nil, sentinel.ErrNotFound
	}
	cp := *p
	return &cp, nil
}

// List returns all profiles, or those of one organization when orgID is set.
func (s *InMemory) List(_ context.Context, orgID id.OrgID) ([]*models.Profile, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]*models.Profile, 0, len(s.profiles))
	for _, p := range s.profiles {
		if !orgID.IsNil() && p.OrgID != orgID {
			continue
		}
		cp := *p
		out = append(out, &cp)
	}
	return out, nil
}

func (s *InMemory) Update(ctx context.Context, p *models.Profile) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	prev, ok := s.profiles[p.ID]
	if !ok {
		return sentinel.ErrNotFound
	}
	cp := *p
	s.profiles[p.ID] = &cp
	txcontext.OnRollback(ctx, func() {
		s.mu.Lock()
		defer s.mu.Unlock()
		s.profiles[p.ID] = prev
	})
	return nil
}
