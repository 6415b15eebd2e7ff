package store

import (
	"context"
	"sort"
	"sync"

	"qualtrack/internal/permission/models"
	id "qualtrack/pkg/domain"
	"qualtrack/pkg/platform/sentinel"
	txcontext "qualtrack/pkg/platform/tx"
)

// InMemory keeps permission requests in a map and indexes the single pending
// request per requester.
type InMemory struct {
	mu       sync.RWMutex
	requests map[id.RequestID]*models.Request
	pending  map[id.HolderID]id.RequestID
}

func NewInMemory() *InMemory {
	return &InMemory{
		requests: make(map[id.RequestID]*models.Request),
		pending:  make(map[id.HolderID]id.RequestID),
	}
}

func (s *InMemory) Create(ctx context.Context, r *models.Request) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, exists := s.requests[r.ID]; exists {
		return sentinel.ErrAlreadyUsed
	}
	if r.IsPending() {
		if _, exists := s.pending[r.RequesterID]; exists {
			return sentinel.ErrAlreadyUsed
		}
		s.pending[r.RequesterID] = r.ID
	}
	s.requests[r.ID] = clone(r)
	txcontext.OnRollback(ctx, func() {
		s.mu.Lock()
		defer s.mu.Unlock()
		delete(s.requests, r.ID)
		if s.pending[r.RequesterID] == r.ID {
			delete(s.pending, r.RequesterID)
		}
	})
	return nil
}

func (s *InMemory) FindByID(_ context.Context, requestID id.RequestID) (*models.Request, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	r, ok := s.requests[requestID]
	if !ok {
		return nil, sentinel.ErrNotFound
	}
	return clone(r), nil
}

func (s *InMemory) FindPendingByRequester(_ context.Context, requesterID id.HolderID) (*models.Request, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	reqID, ok := s.pending[requesterID]
	if !ok {
		return nil, sentinel.ErrNotFound
	}
	return clone(s.requests[reqID]), nil
}

// ListByRequester returns the requester's history, newest first.
func (s *InMemory) ListByRequester(_ context.Context, requesterID id.HolderID) ([]*models.Request, error) {
	return s.filter(func(r *models.Request) bool { return r.RequesterID == requesterID }), nil
}

// ListByStatus returns requests in status, newest first.
func (s *InMemory) ListByStatus(_ context.Context, status models.Status) ([]*models.Request, error) {
	return s.filter(func(r *models.Request) bool { return r.Status == status }), nil
}

// Execute runs validate and mutate on the stored request under the store lock.
func (s *InMemory) Execute(ctx context.Context, requestID id.RequestID, validate func(*models.Request) error, mutate func(*models.Request)) (*models.Request, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	current, ok := s.requests[requestID]
	if !ok {
		return nil, sentinel.ErrNotFound
	}
	working := clone(current)
	if err := validate(working); err != nil {
		return nil, err
	}
	mutate(working)
	if !working.IsPending() && s.pending[working.RequesterID] == working.ID {
		delete(s.pending, working.RequesterID)
	}
	s.requests[requestID] = working
	txcontext.OnRollback(ctx, func() {
		s.mu.Lock()
		defer s.mu.Unlock()
		s.requests[requestID] = current
		if current.IsPending() {
			s.pending[current.RequesterID] = current.ID
		}
	})
	return clone(working), nil
}

func (s *InMemory) filter(keep func(*models.Request) bool) []*models.Request {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var out []*models.Request
	for _, r := range s.requests {
		if keep(r) {
			out = append(out, clone(r))
		}
	}
	SortNewestFirst(out)
	return out
}

// SortNewestFirst orders by creation time descending, then id.
func SortNewestFirst(requests []*models.Request) {
	sort.SliceStable(requests, func(i, j int) bool {
		a, b := requests[i], requests[j]
		if !a.CreatedAt.Equal(b.CreatedAt) {
			return a.CreatedAt.After(b.CreatedAt)
		}
		return a.ID.String() < b.ID.String()
	})
}

func clone(r *models.Request) *models.Request {
	cp := *r
	if r.ReviewedBy != nil {
		by := *r.ReviewedBy
		cp.ReviewedBy = &by
	}
	if r.ReviewedAt != nil {
		at := *r.ReviewedAt
		cp.ReviewedAt = &at
	}
	return &cp
}
