package memory

import (
	"context"
	"sync"

	id "qualtrack/pkg/domain"
	audit "qualtrack/pkg/platform/audit"
	txcontext "qualtrack/pkg/platform/tx"
)

type InMemoryStore struct {
	mu     sync.RWMutex
	events map[id.HolderID][]audit.Event
	order  []audit.Event
}

func NewInMemoryStore() *InMemoryStore {
	return &InMemoryStore{events: make(map[id.HolderID][]audit.Event)}
}

func (s *InMemoryStore) Clear() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.events = make(map[id.HolderID][]audit.Event)
	s.order = nil
}

// Append records event. Inside a failing memory transaction the event is
// withdrawn again, matching the outbox row rolling back in Postgres.
func (s *InMemoryStore) Append(ctx context.Context, event audit.Event) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	holderLen, orderLen := len(s.events[event.HolderID]), len(s.order)
	s.events[event.HolderID] = append(s.events[event.HolderID], event)
	s.order = append(s.order, event)
	txcontext.OnRollback(ctx, func() {
		s.mu.Lock()
		defer s.mu.Unlock()
		s.events[event.HolderID] = s.events[event.HolderID][:holderLen]
		s.order = s.order[:orderLen]
	})
	return nil
}

func (s *InMemoryStore) ListByHolder(_ context.Context, holderID id.HolderID) ([]audit.Event, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return append([]audit.Event{}, s.events[holderID]...), nil
}

// ListRecent returns up to limit events, oldest first, ending with the newest.
func (s *InMemoryStore) ListRecent(_ context.Context, limit int) ([]audit.Event, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	start := max(len(s.order)-limit, 0)
	return append([]audit.Event{}, s.order[start:]...), nil
}
