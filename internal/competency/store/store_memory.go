package store

import (
	"context"
	"sync"

	"qualtrack/internal/competency/models"
	id "qualtrack/pkg/domain"
	"qualtrack/pkg/platform/sentinel"
	txcontext "qualtrack/pkg/platform/tx"
)

type holderDefinition struct {
	holder     id.HolderID
	definition id.DefinitionID
}

// InMemory keeps records in maps guarded by one mutex. Execute holds the lock
// across validate and mutate.
type InMemory struct {
	mu      sync.RWMutex
	records map[id.RecordID]*models.Record
	byPair  map[holderDefinition]id.RecordID
}

func NewInMemory() *InMemory {
	return &InMemory{
		records: make(map[id.RecordID]*models.Record),
		byPair:  make(map[holderDefinition]id.RecordID),
	}
}

func (s *InMemory) Create(ctx context.Context, r *models.Record) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	key := holderDefinition{holder: r.HolderID, definition: r.DefinitionID}
	if _, exists := s.byPair[key]; exists {
		return sentinel.ErrAlreadyUsed
	}
	if _, exists := s.records[r.ID]; exists {
		return sentinel.ErrAlreadyUsed
	}
	s.records[r.ID] = clone(r)
	s.byPair[key] = r.ID
	txcontext.OnRollback(ctx, func() {
		s.mu.Lock()
		defer s.mu.Unlock()
		delete(s.records, r.ID)
		delete(s.byPair, key)
	})
	return nil
}

func (s *InMemory) FindByID(_ context.Context, recordID id.RecordID) (*models.Record, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	r, ok := s.records[recordID]
	if !ok {
		return nil, sentinel.ErrNotFound
	}
	return clone(r), nil
}

func (s *InMemory) FindByHolderAndDefinition(_ context.Context, holderID id.HolderID, definitionID id.DefinitionID) (*models.Record, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	recordID, ok := s.byPair[holderDefinition{holder: holderID, definition: definitionID}]
	if !ok {
		return nil, sentinel.ErrNotFound
	}
	return clone(s.records[recordID]), nil
}

func (s *InMemory) ListByHolder(_ context.Context, holderID id.HolderID) ([]*models.Record, error) {
	return s.filter(func(r *models.Record) bool { return r.HolderID == holderID }), nil
}

// ListByHolders returns records for any of holderIDs. A nil slice means every holder.
func (s *InMemory) ListByHolders(_ context.Context, holderIDs []id.HolderID) ([]*models.Record, error) {
	if holderIDs == nil {
		return s.filter(func(*models.Record) bool { return true }), nil
	}
	set := make(map[id.HolderID]struct{}, len(holderIDs))
	for _, h := range holderIDs {
		set[h] = struct{}{}
	}
	return s.filter(func(r *models.Record) bool {
		_, ok := set[r.HolderID]
		return ok
	}), nil
}

func (s *InMemory) ListByStatus(_ context.Context, status models.Status) ([]*models.Record, error) {
	return s.filter(func(r *models.Record) bool { return r.Status == status }), nil
}

// Execute loads the record, runs validate, and stores the result of mutate
// atomically. Nothing is written when validate fails.
func (s *InMemory) Execute(ctx context.Context, recordID id.RecordID, validate func(*models.Record) error, mutate func(*models.Record)) (*models.Record, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	current, ok := s.records[recordID]
	if !ok {
		return nil, sentinel.ErrNotFound
	}
	r := clone(current)
	if err := validate(r); err != nil {
		return nil, err
	}
	mutate(r)
	s.records[recordID] = clone(r)
	txcontext.OnRollback(ctx, func() {
		s.mu.Lock()
		defer s.mu.Unlock()
		s.records[recordID] = current
	})
	return r, nil
}

func (s *InMemory) Delete(ctx context.Context, recordID id.RecordID) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	r, ok := s.records[recordID]
	if !ok {
		return sentinel.ErrNotFound
	}
	key := holderDefinition{holder: r.HolderID, definition: r.DefinitionID}
	delete(s.byPair, key)
	delete(s.records, recordID)
	txcontext.OnRollback(ctx, func() {
		s.mu.Lock()
		defer s.mu.Unlock()
		s.records[recordID] = r
		s.byPair[key] = recordID
	})
	return nil
}

func (s *InMemory) filter(keep func(*models.Record) bool) []*models.Record {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]*models.Record, 0)
	for _, r := range s.records {
		if keep(r) {
			out = append(out, clone(r))
		}
	}
	return out
}

func clone(r *models.Record) *models.Record {
	cp := *r
	cp.IssuedDate = copyTime(r.IssuedDate)
	cp.ExpiryDate = copyTime(r.ExpiryDate)
	cp.ReviewedAt = copyTime(r.ReviewedAt)
	cp.SubmittedAt = copyTime(r.SubmittedAt)
	if r.ReviewedBy != nil {
		v := *r.ReviewedBy
		cp.ReviewedBy = &v
	}
	return &cp
}
