package store

import (
	"context"
	"sort"
	"sync"

	"qualtrack/internal/catalog/models"
	id "qualtrack/pkg/domain"
	"qualtrack/pkg/platform/sentinel"
)

// InMemory holds definitions in a map keyed by id.
type InMemory struct {
	mu          sync.RWMutex
	definitions map[id.DefinitionID]*models.Definition
}

func NewInMemory() *InMemory {
	return &InMemory{definitions: make(map[id.DefinitionID]*models.Definition)}
}

func (s *InMemory) Create(_ context.Context, d *models.Definition) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, exists := s.definitions[d.ID]; exists {
		return sentinel.ErrAlreadyUsed
	}
	cp := *d
	s.definitions[d.ID] = &cp
	return nil
}

func (s *InMemory) FindByID(_ context.Context, defID id.DefinitionID) (*models.Definition, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	d, ok := s.definitions[defID]
	if !ok {
		return nil, sentinel.ErrNotFound
	}
	cp := *d
	return &cp, nil
}

// List returns every definition ordered by category name, then name.
func (s *InMemory) List(_ context.Context) ([]*models.Definition, error) {
	s.mu.RLock()
	out := make([]*models.Definition, 0, len(s.definitions))
	for _, d := range s.definitions {
		cp := *d
		out = append(out, &cp)
	}
	s.mu.RUnlock()
	SortDefinitions(out)
	return out, nil
}

// SortDefinitions orders definitions the way every store lists them.
func SortDefinitions(defs []*models.Definition) {
	sort.SliceStable(defs, func(i, j int) bool {
		if defs[i].Category.Name != defs[j].Category.Name {
			return defs[i].Category.Name < defs[j].Category.Name
		}
		if defs[i].Name != defs[j].Name {
			return defs[i].Name < defs[j].Name
		}
		return defs[i].ID.String() < defs[j].ID.String()
	})
}
