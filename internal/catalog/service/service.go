package service

import (
	"context"
	"errors"
	"log/slog"

	"qualtrack/internal/catalog/models"
	id "qualtrack/pkg/domain"
	dErrors "qualtrack/pkg/domain-errors"
	"qualtrack/pkg/platform/sentinel"
)

// Store is the read side of the catalog. The Redis cache satisfies it too.
type Store interface {
	FindByID(ctx context.Context, defID id.DefinitionID) (*models.Definition, error)
	List(ctx context.Context) ([]*models.Definition, error)
}

// Service answers catalog lookups and applies each definition's shape to
// incoming record fields before they reach the lifecycle engine.
type Service struct {
	store  Store
	logger *slog.Logger
}

type Option func(*Service)

func WithLogger(logger *slog.Logger) Option {
	return func(s *Service) {
		s.logger = logger
	}
}

func New(store Store, opts ...Option) *Service {
	s := &Service{store: store}
	for _, opt := range opts {
		if opt != nil {
			opt(s)
		}
	}
	return s
}

func (s *Service) Get(ctx context.Context, defID id.DefinitionID) (*models.Definition, error) {
	d, err := s.store.FindByID(ctx, defID)
	if err != nil {
		if errors.Is(err, sentinel.ErrNotFound) {
			return nil, dErrors.New(dErrors.CodeNotFound, "competency definition not found")
		}
		return nil, dErrors.Wrap(err, dErrors.CodeInternal, "failed to load competency definition")
	}
	return d, nil
}

func (s *Service) List(ctx context.Context) ([]*models.Definition, error) {
	defs, err := s.store.List(ctx)
	if err != nil {
		return nil, dErrors.Wrap(err, dErrors.CodeInternal, "failed to list competency definitions")
	}
	return defs, nil
}

// ListCompliance returns the definitions that take part in compliance views,
// that is every definition that is not a personal detail.
func (s *Service) ListCompliance(ctx context.Context) ([]*models.Definition, error) {
	defs, err := s.List(ctx)
	if err != nil {
		return nil, err
	}
	out := make([]*models.Definition, 0, len(defs))
	for _, d := range defs {
		if !d.IsPersonalDetail() {
			out = append(out, d)
		}
	}
	return out, nil
}

// Resolve loads the definition and returns fields restricted to its shape,
// normalized and validated.
func (s *Service) Resolve(ctx context.Context, defID id.DefinitionID, fields models.FieldSet) (*models.Definition, models.FieldSet, error) {
	d, err := s.Get(ctx, defID)
	if err != nil {
		return nil, models.FieldSet{}, err
	}
	restricted := d.Restrict(fields)
	restricted.Normalize()
	if err := restricted.Validate(); err != nil {
		return nil, models.FieldSet{}, err
	}
	return d, restricted, nil
}
